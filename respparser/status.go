package respparser

import (
	"strconv"
	"strings"

	"github.com/pelikan-mail/imapcore/lexer"
	imap "github.com/pelikan-mail/imapcore"
)

func parseStatusResponse(word string, b lexer.Buf, c lexer.Cursor) (*imap.StatusResponse, lexer.Cursor, error) {
	st := &imap.StatusResponse{Type: imap.StatusResponseType(word)}

	if ch, ok := bufAt(b, c); ok && ch == ' ' {
		c, _ = lexer.SkipSpace(b, c)
	}

	if ch, ok := bufAt(b, c); ok && ch == '[' {
		c++
		atom, next, err := lexer.Atom(b, c)
		if err != nil {
			return nil, c, err
		}
		st.Code = imap.ResponseCode(atom)
		c = next
		if ch, ok = bufAt(b, c); ok && ch == ' ' {
			c, _ = lexer.SkipSpace(b, c)
			argStart := int(c)
			for {
				ch, ok = bufAt(b, c)
				if !ok || ch == ']' {
					break
				}
				c++
			}
			st.CodeArg = string(b[argStart:c])
		}
		if ch, ok = bufAt(b, c); !ok || ch != ']' {
			return nil, c, lexer.ErrNoData
		}
		c++
		if ch, ok = bufAt(b, c); ok && ch == ' ' {
			c, _ = lexer.SkipSpace(b, c)
		}
	}

	st.Text = string(b[c:])
	return st, lexer.Cursor(len(b)), nil
}

func parseCapabilities(b lexer.Buf, c lexer.Cursor) ([]imap.Cap, lexer.Cursor, error) {
	if ch, ok := bufAt(b, c); ok && ch == ' ' {
		c, _ = lexer.SkipSpace(b, c)
	}
	var caps []imap.Cap
	for {
		if _, ok := bufAt(b, c); !ok {
			break
		}
		atom, next, err := lexer.Atom(b, c)
		if err != nil {
			break
		}
		caps = append(caps, imap.Cap(atom))
		c = next
		if ch, ok := bufAt(b, c); ok && ch == ' ' {
			c, _ = lexer.SkipSpace(b, c)
			continue
		}
		break
	}
	return caps, c, nil
}

func parseStatusData(b lexer.Buf, c lexer.Cursor) (*imap.StatusData, lexer.Cursor, error) {
	c, err := lexer.SkipSpace(b, c)
	if err != nil {
		return nil, c, err
	}
	mbox, next, err := lexer.Mailbox(b, c)
	if err != nil {
		return nil, c, err
	}
	c = next
	c, err = lexer.SkipSpace(b, c)
	if err != nil {
		return nil, c, err
	}

	sd := &imap.StatusData{Mailbox: mbox}
	items, next, err := lexer.List(b, c, func(bb lexer.Buf, cc lexer.Cursor) (any, lexer.Cursor, error) {
		name, n2, e := lexer.Atom(bb, cc)
		if e != nil {
			return nil, cc, e
		}
		n2, e = lexer.SkipSpace(bb, n2)
		if e != nil {
			return nil, cc, e
		}
		val, n3, e := lexer.Uint64(bb, n2)
		if e != nil {
			return nil, cc, e
		}
		return [2]any{name, val}, n3, nil
	})
	if err != nil {
		return nil, c, err
	}
	for _, it := range items {
		pair := it.([2]any)
		name := pair[0].(string)
		val := pair[1].(uint64)
		v32 := uint32(val)
		switch name {
		case "MESSAGES":
			sd.NumMessages = &v32
		case "UIDNEXT":
			sd.UIDNext = &v32
		case "UIDVALIDITY":
			sd.UIDValidity = &v32
		case "UNSEEN":
			sd.NumUnseen = &v32
		case "RECENT":
			sd.NumRecent = &v32
		case "SIZE":
			sz := int64(val)
			sd.Size = &sz
		case "APPENDLIMIT":
			sd.AppendLimit = &v32
		case "HIGHESTMODSEQ":
			sd.HighestModSeq = &val
		case "MAILBOXID":
			sd.MailboxID = strconv.FormatUint(val, 10)
		}
	}
	return sd, next, nil
}

func parseID(b lexer.Buf, c lexer.Cursor) (map[string]string, lexer.Cursor, error) {
	c, err := lexer.SkipSpace(b, c)
	if err != nil {
		return nil, c, err
	}
	if strings.HasPrefix(string(b[c:]), "NIL") {
		return nil, c + 3, nil
	}
	items, next, err := lexer.List(b, c, func(bb lexer.Buf, cc lexer.Cursor) (any, lexer.Cursor, error) {
		s, n2, e := lexer.QuotedString(bb, cc)
		if e != nil {
			return nil, cc, e
		}
		return s, n2, nil
	})
	if err != nil {
		return nil, c, err
	}
	m := make(map[string]string, len(items)/2)
	for i := 0; i+1 < len(items); i += 2 {
		m[items[i].(string)] = items[i+1].(string)
	}
	return m, next, nil
}
