package model

import (
	"strconv"
	"strings"

	"github.com/pelikan-mail/imapcore/lexer"
	imap "github.com/pelikan-mail/imapcore"
)

// AttachBodyStructure decodes a BODYSTRUCTURE list (RFC 3501 §7.4.2)
// starting at c and builds its part tree under message, returning the
// decoded imap.BodyStructure for callers that just want the flat view and
// the handle of the top-level part for callers that want to walk the tree.
//
// Per RFC 3501 §7.4.2, a message with a non-multipart body has an implicit
// top-level part numbered "1" even though no BODY[1] section specifier is
// required to fetch the whole thing; AttachBodyStructure always materializes
// that top-level Part node so BODY[] section lookups have somewhere to land.
func AttachBodyStructure(t *Tree, message Handle, b lexer.Buf, c lexer.Cursor) (*imap.BodyStructure, Handle, lexer.Cursor, error) {
	bs, path, next, err := decodeBodyStructure(b, c, nil)
	if err != nil {
		return nil, Invalid, c, err
	}
	root := buildPartTree(t, bs, path)
	t.get(message).message.topLevelPart = root
	return bs, root, next, nil
}

func decodeBodyStructure(b lexer.Buf, c lexer.Cursor, path []int) (*imap.BodyStructure, []int, lexer.Cursor, error) {
	if ch, ok := peek(b, c); !ok || ch != '(' {
		return nil, nil, c, lexer.ErrNoData
	}
	c++

	// Multipart bodies start with a list of child body structures; a
	// simple body starts directly with the media type string.
	if ch, ok := peek(b, c); ok && ch == '(' {
		var children []imap.BodyStructure
		idx := 1
		for {
			child, _, next, err := decodeBodyStructure(b, c, append(path, idx))
			if err != nil {
				return nil, nil, c, err
			}
			children = append(children, *child)
			c = next
			idx++
			if ch, ok = peek(b, c); ok && ch == '(' {
				continue
			}
			break
		}
		c, _ = lexer.SkipSpace(b, c)
		subtype, _, next, err := lexer.NString(b, c)
		if err != nil {
			return nil, nil, c, err
		}
		c = next

		// body-ext-mpart: body-fld-param SP body-fld-dsp [...]; both are
		// optional past this point, so absorb whatever extension data is
		// present and fall back to skipToClose for language/location/the
		// extension tail this pass doesn't model field-by-field.
		var params map[string]string
		var disposition string
		var dispositionParams map[string]string
		if ch, ok := peek(b, c); ok && ch == ' ' {
			c, err = lexer.SkipSpace(b, c)
			if err != nil {
				return nil, nil, c, err
			}
			params, c, err = decodeParamList(b, c)
			if err != nil {
				return nil, nil, c, err
			}
			if ch, ok := peek(b, c); ok && ch == ' ' {
				c, err = lexer.SkipSpace(b, c)
				if err != nil {
					return nil, nil, c, err
				}
				disposition, dispositionParams, c, err = decodeDisposition(b, c)
				if err != nil {
					return nil, nil, c, err
				}
			}
		}
		c, err = skipToClose(b, c)
		if err != nil {
			return nil, nil, c, err
		}
		return &imap.BodyStructure{
			Type: "multipart", Subtype: subtype, Children: children,
			Params: params, Disposition: disposition, DispositionParams: dispositionParams,
		}, path, c, nil
	}

	mtype, _, next, err := lexer.NString(b, c)
	if err != nil {
		return nil, nil, c, err
	}
	c = next
	c, err = lexer.SkipSpace(b, c)
	if err != nil {
		return nil, nil, c, err
	}
	subtype, _, next, err := lexer.NString(b, c)
	if err != nil {
		return nil, nil, c, err
	}
	c = next
	c, err = lexer.SkipSpace(b, c)
	if err != nil {
		return nil, nil, c, err
	}
	params, next, err := decodeParamList(b, c)
	if err != nil {
		return nil, nil, c, err
	}
	c = next
	c, err = lexer.SkipSpace(b, c)
	if err != nil {
		return nil, nil, c, err
	}
	bodyID, _, c, err := lexer.NString(b, c) // body-fld-id
	if err != nil {
		return nil, nil, c, err
	}
	c, err = lexer.SkipSpace(b, c)
	if err != nil {
		return nil, nil, c, err
	}
	_, _, c, err = lexer.NString(b, c) // body-fld-desc
	if err != nil {
		return nil, nil, c, err
	}
	c, err = lexer.SkipSpace(b, c)
	if err != nil {
		return nil, nil, c, err
	}
	encoding, _, c, err := lexer.NString(b, c)
	if err != nil {
		return nil, nil, c, err
	}
	c, err = lexer.SkipSpace(b, c)
	if err != nil {
		return nil, nil, c, err
	}
	size, c, err := lexer.Uint(b, c)
	if err != nil {
		return nil, nil, c, err
	}

	var embeddedEnvelope *imap.Envelope
	var embeddedBody *imap.BodyStructure
	var lines uint32
	switch {
	case strings.EqualFold(mtype, "text") && !atClose(b, c):
		// body-type-text's one extra mandatory field past body-fld-octets.
		// Some servers omit it for zero-line bodies; tolerate that too.
		c, err = lexer.SkipSpace(b, c)
		if err != nil {
			return nil, nil, c, err
		}
		if !atClose(b, c) {
			lines, c, err = lexer.Uint(b, c)
			if err != nil {
				return nil, nil, c, err
			}
		}
	case strings.EqualFold(mtype, "message") && strings.EqualFold(subtype, "rfc822") && !atClose(b, c):
		// body-type-msg's mandatory envelope + nested bodystructure + lines.
		c, err = lexer.SkipSpace(b, c)
		if err != nil {
			return nil, nil, c, err
		}
		embeddedEnvelope, c, err = DecodeEnvelope(b, c)
		if err != nil {
			return nil, nil, c, err
		}
		c, err = lexer.SkipSpace(b, c)
		if err != nil {
			return nil, nil, c, err
		}
		embeddedBody, _, c, err = decodeBodyStructure(b, c, nil)
		if err != nil {
			return nil, nil, c, err
		}
		c, err = lexer.SkipSpace(b, c)
		if err != nil {
			return nil, nil, c, err
		}
		if !atClose(b, c) {
			lines, c, err = lexer.Uint(b, c)
			if err != nil {
				return nil, nil, c, err
			}
		}
	}

	// body-ext-1part: SP body-fld-md5 [SP body-fld-dsp [...]], all optional.
	var disposition string
	var dispositionParams map[string]string
	if ch, ok := peek(b, c); ok && ch == ' ' {
		c, err = lexer.SkipSpace(b, c)
		if err != nil {
			return nil, nil, c, err
		}
		_, _, next, err := lexer.NString(b, c) // body-fld-md5
		if err != nil {
			return nil, nil, c, err
		}
		c = next
		if ch, ok := peek(b, c); ok && ch == ' ' {
			c, err = lexer.SkipSpace(b, c)
			if err != nil {
				return nil, nil, c, err
			}
			if ch, ok := peek(b, c); ok && ch != ')' {
				disposition, dispositionParams, c, err = decodeDisposition(b, c)
				if err != nil {
					return nil, nil, c, err
				}
			}
		}
	}
	c, err = skipToClose(b, c)
	if err != nil {
		return nil, nil, c, err
	}

	return &imap.BodyStructure{
		Type: mtype, Subtype: subtype, Params: params, ID: bodyID, Encoding: encoding, Size: size, Lines: lines,
		Envelope: embeddedEnvelope, BodyStructure: embeddedBody,
		Disposition: disposition, DispositionParams: dispositionParams,
	}, path, c, nil
}

// atClose reports whether c sits on the body's closing paren, i.e. whether
// an optional trailing field was omitted entirely.
func atClose(b lexer.Buf, c lexer.Cursor) bool {
	ch, ok := peek(b, c)
	return ok && ch == ')'
}

// decodeDisposition parses body-fld-dsp: NIL, or "(" string SP body-fld-param ")".
func decodeDisposition(b lexer.Buf, c lexer.Cursor) (string, map[string]string, lexer.Cursor, error) {
	if hasPrefix(b, c, "NIL") {
		return "", nil, c + 3, nil
	}
	if ch, ok := peek(b, c); !ok || ch != '(' {
		return "", nil, c, nil
	}
	c++
	name, _, next, err := lexer.NString(b, c)
	if err != nil {
		return "", nil, c, err
	}
	c = next
	c, err = lexer.SkipSpace(b, c)
	if err != nil {
		return "", nil, c, err
	}
	params, next, err := decodeParamList(b, c)
	if err != nil {
		return "", nil, c, err
	}
	c = next
	if ch, ok := peek(b, c); ok && ch == ')' {
		c++
	}
	return name, params, c, nil
}

func decodeParamList(b lexer.Buf, c lexer.Cursor) (map[string]string, lexer.Cursor, error) {
	if hasPrefix(b, c, "NIL") {
		return nil, c + 3, nil
	}
	if ch, ok := peek(b, c); !ok || ch != '(' {
		return nil, c, lexer.ErrNoData
	}
	c++
	params := map[string]string{}
	for {
		ch, ok := peek(b, c)
		if !ok {
			return nil, c, lexer.ErrNoData
		}
		if ch == ')' {
			return params, c + 1, nil
		}
		key, _, next, err := lexer.NString(b, c)
		if err != nil {
			return nil, c, err
		}
		c, err = lexer.SkipSpace(b, next)
		if err != nil {
			return nil, c, err
		}
		val, _, next2, err := lexer.NString(b, c)
		if err != nil {
			return nil, c, err
		}
		params[strings.ToLower(key)] = val
		c = next2
		if ch, ok = peek(b, c); ok && ch == ' ' {
			c, _ = lexer.SkipSpace(b, c)
		}
	}
}

// skipToClose consumes whatever extension data remains, tracking paren
// depth and quoted strings/literals, until the body's closing paren.
func skipToClose(b lexer.Buf, c lexer.Cursor) (lexer.Cursor, error) {
	depth := 1
	for depth > 0 {
		ch, ok := peek(b, c)
		if !ok {
			return c, lexer.ErrNoData
		}
		switch ch {
		case '(':
			depth++
			c++
		case ')':
			depth--
			c++
		case '"':
			_, next, err := lexer.QuotedString(b, c)
			if err != nil {
				return c, err
			}
			c = next
		case '{':
			_, next, err := lexer.Literal(b, c)
			if err != nil {
				return c, err
			}
			c = next
		default:
			c++
		}
	}
	return c, nil
}

func buildPartTree(t *Tree, bs *imap.BodyStructure, path []int) Handle {
	topLevelMultipart := len(path) == 0 && bs.IsMultipart()

	segs := make([]string, len(path))
	for i, p := range path {
		segs[i] = strconv.Itoa(p)
	}
	id := strings.Join(segs, ".")
	if id == "" && !topLevelMultipart {
		id = "1"
	}

	filename := bs.DispositionParams["filename"]
	if filename == "" {
		filename = bs.DispositionParams["filename*"]
	}

	pd := &partData{
		partID: id, mimeType: bs.Type, mimeSubtype: bs.Subtype,
		charset: bs.Params["charset"], size: bs.Size, encoding: bs.Encoding,
		bodyFldID: bs.ID, disposition: bs.Disposition, dispositionFilename: filename,
		dispositionParams: bs.DispositionParams, bodyFldParams: bs.Params,
		isTopLevelMultipart: topLevelMultipart,
	}
	h := t.alloc(node{kind: KindPart, part: pd})
	for i := range bs.Children {
		child := buildPartTree(t, &bs.Children[i], append(append([]int{}, path...), i+1))
		t.get(h).children = append(t.get(h).children, child)
		t.get(child).parent = h
	}

	// A top-level multipart has no section id of its own; its HEADER/TEXT
	// are reached through the enclosing message instead, so it gets no
	// pseudo-column children of its own (see SpecialPartChild).
	if !topLevelMultipart {
		for _, sp := range [4]SpecialPart{SpecialHeader, SpecialText, SpecialMIME, SpecialRaw} {
			kid := t.alloc(node{kind: KindPart, parent: h, part: &partData{partID: id, special: sp}})
			pd.specialKids[specialIndex(sp)] = kid
		}
	}
	return h
}

// PartID returns a part node's dotted section number (e.g. "1.2").
func (t *Tree) PartID(h Handle) string { return t.get(h).part.partID }

// PartMIMEType returns a part's "type/subtype".
func (t *Tree) PartMIMEType(h Handle) string {
	p := t.get(h).part
	return p.mimeType + "/" + p.mimeSubtype
}
