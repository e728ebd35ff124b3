package respparser

import (
	"github.com/pelikan-mail/imapcore/lexer"
	imap "github.com/pelikan-mail/imapcore"
)

// parseFetchItems consumes the parenthesized data-item list of a FETCH
// response. It does not attempt a full BODYSTRUCTURE/ENVELOPE grammar
// (that lives in the model package, which needs the arena to build the
// part tree); the values of ENVELOPE, BODY and BODYSTRUCTURE are skipped
// and not kept, so FetchData.Envelope and FetchData.BodyStructure stay nil.
func parseFetchItems(b lexer.Buf, c lexer.Cursor) (*FetchData, lexer.Cursor, error) {
	c, err := lexer.SkipSpace(b, c)
	if err != nil {
		return nil, c, err
	}
	if ch, ok := bufAt(b, c); !ok || ch != '(' {
		return nil, c, lexer.ErrNoData
	}
	c++
	fd := &FetchData{BodySections: map[string][]byte{}}
	first := true
	for {
		ch, ok := bufAt(b, c)
		if !ok {
			return nil, c, lexer.ErrNoData
		}
		if ch == ')' {
			return fd, c + 1, nil
		}
		if !first {
			c, err = lexer.SkipSpace(b, c)
			if err != nil {
				return nil, c, err
			}
		}
		first = false

		name, next, nerr := itemName(b, c)
		if nerr != nil {
			return nil, c, nerr
		}
		c = next

		switch name {
		case "UID":
			c, err = lexer.SkipSpace(b, c)
			if err != nil {
				return nil, c, err
			}
			n, n2, e := lexer.Uint(b, c)
			if e != nil {
				return nil, c, e
			}
			fd.UID, c = imap.UID(n), n2

		case "FLAGS":
			c, err = lexer.SkipSpace(b, c)
			if err != nil {
				return nil, c, err
			}
			items, n2, e := lexer.List(b, c, atomElem)
			if e != nil {
				return nil, c, e
			}
			fd.Flags, c = toFlags(items), n2

		case "INTERNALDATE":
			c, err = lexer.SkipSpace(b, c)
			if err != nil {
				return nil, c, err
			}
			s, n2, e := lexer.QuotedString(b, c)
			if e != nil {
				return nil, c, e
			}
			t, perr := imap.ParseInternalDate(s)
			if perr == nil {
				fd.InternalDate = &t
			}
			c = n2

		case "RFC822.SIZE":
			c, err = lexer.SkipSpace(b, c)
			if err != nil {
				return nil, c, err
			}
			n, n2, e := lexer.Uint(b, c)
			if e != nil {
				return nil, c, e
			}
			fd.RFC822Size, c = n, n2

		case "MODSEQ":
			c, err = lexer.SkipSpace(b, c)
			if err != nil {
				return nil, c, err
			}
			if ch, ok := bufAt(b, c); ok && ch == '(' {
				c++
				n, n2, e := lexer.Uint64(b, c)
				if e == nil {
					fd.ModSeq = n
				}
				c = n2
				if ch, ok = bufAt(b, c); ok && ch == ')' {
					c++
				}
			}

		case "ENVELOPE":
			c, err = lexer.SkipSpace(b, c)
			if err != nil {
				return nil, c, err
			}
			// The full ENVELOPE grammar is decoded by model.DecodeEnvelope;
			// here the balanced parenthesized group is skipped and its
			// bytes are discarded.
			_, c, err = skipBalanced(b, c)
			if err != nil {
				return nil, c, err
			}

		case "BODY", "BODYSTRUCTURE":
			c, err = lexer.SkipSpace(b, c)
			if err != nil {
				return nil, c, err
			}
			_, c, err = skipBalanced(b, c)
			if err != nil {
				return nil, c, err
			}

		default:
			// BODY[section]<partial> and BINARY[section]<partial>: read the
			// bracketed section spec, optional partial offset, then a
			// string or literal payload.
			if (len(name) >= 4 && name[:4] == "BODY") || (len(name) >= 7 && name[:7] == "BINARY[") {
				c, err = skipSection(b, c)
				if err != nil {
					return nil, c, err
				}
			}
			c, err = lexer.SkipSpace(b, c)
			if err != nil {
				return nil, c, err
			}
			val, ok, n2, e := lexer.NString(b, c)
			if e != nil {
				return nil, c, e
			}
			if ok {
				fd.BodySections[name] = []byte(val)
			}
			c = n2
		}
	}
}

func itemName(b lexer.Buf, c lexer.Cursor) (string, lexer.Cursor, error) {
	start := c
	for {
		ch, ok := bufAt(b, c)
		if !ok {
			break
		}
		if ch == ' ' || ch == '(' {
			break
		}
		if ch == '[' {
			// consume through matching ']' as part of the name
			c++
			for {
				ch2, ok2 := bufAt(b, c)
				if !ok2 {
					return "", c, lexer.ErrNoData
				}
				c++
				if ch2 == ']' {
					break
				}
			}
			continue
		}
		c++
	}
	if c == start {
		return "", start, lexer.ErrNoData
	}
	return string(b[start:c]), c, nil
}

// skipSection consumes an optional "<offset>" partial spec after a
// BODY[section]/BINARY[section] item name (the name itself, including its
// brackets, was already consumed by itemName).
func skipSection(b lexer.Buf, c lexer.Cursor) (lexer.Cursor, error) {
	if ch, ok := bufAt(b, c); ok && ch == '<' {
		c++
		for {
			ch2, ok2 := bufAt(b, c)
			if !ok2 {
				return c, lexer.ErrNoData
			}
			c++
			if ch2 == '>' {
				break
			}
		}
	}
	return c, nil
}

// skipBalanced consumes a parenthesized group, tracking nesting and quoted
// strings/literals so inner parens and spaces don't confuse the count.
func skipBalanced(b lexer.Buf, c lexer.Cursor) (string, lexer.Cursor, error) {
	start := c
	ch, ok := bufAt(b, c)
	if !ok {
		if hasPrefixWord(b, c, "NIL") {
			return "NIL", c + 3, nil
		}
		return "", c, lexer.ErrNoData
	}
	if ch != '(' {
		if hasPrefixWord(b, c, "NIL") {
			return "NIL", c + 3, nil
		}
		return "", c, lexer.ErrNoData
	}
	depth := 0
	for {
		ch, ok = bufAt(b, c)
		if !ok {
			return "", c, lexer.ErrNoData
		}
		switch ch {
		case '(':
			depth++
			c++
		case ')':
			depth--
			c++
			if depth == 0 {
				return string(b[start:c]), c, nil
			}
		case '"':
			_, next, err := lexer.QuotedString(b, c)
			if err != nil {
				return "", c, err
			}
			c = next
		case '{':
			_, next, err := lexer.Literal(b, c)
			if err != nil {
				return "", c, err
			}
			c = next
		default:
			c++
		}
	}
}
