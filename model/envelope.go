package model

import (
	"github.com/pelikan-mail/imapcore/lexer"
	imap "github.com/pelikan-mail/imapcore"
)

// DecodeEnvelope parses the parenthesized ENVELOPE structure (RFC 3501
// §7.4.2) starting at c, which must point at the opening '('.
func DecodeEnvelope(b lexer.Buf, c lexer.Cursor) (*imap.Envelope, lexer.Cursor, error) {
	if ch, ok := peek(b, c); !ok || ch != '(' {
		return nil, c, lexer.ErrNoData
	}
	c++

	env := &imap.Envelope{}

	dateStr, ok, next, err := lexer.NString(b, c)
	if err != nil {
		return nil, c, err
	}
	if ok {
		if t, derr := lexer.RFC2822DateTime(dateStr); derr == nil {
			env.Date = t
		}
	}
	c = next

	c, err = lexer.SkipSpace(b, c)
	if err != nil {
		return nil, c, err
	}
	env.Subject, ok, c, err = lexer.NString(b, c)
	if err != nil {
		return nil, c, err
	}
	if !ok {
		env.Subject = ""
	}

	addrLists := [...]*[]*imap.Address{
		&env.From, &env.Sender, &env.ReplyTo, &env.To, &env.Cc, &env.Bcc,
	}
	for _, dst := range addrLists {
		c, err = lexer.SkipSpace(b, c)
		if err != nil {
			return nil, c, err
		}
		list, next2, aerr := decodeAddressList(b, c)
		if aerr != nil {
			return nil, c, aerr
		}
		*dst = list
		c = next2
	}

	c, err = lexer.SkipSpace(b, c)
	if err != nil {
		return nil, c, err
	}
	env.InReplyTo, _, c, err = lexer.NString(b, c)
	if err != nil {
		return nil, c, err
	}

	c, err = lexer.SkipSpace(b, c)
	if err != nil {
		return nil, c, err
	}
	env.MessageID, _, c, err = lexer.NString(b, c)
	if err != nil {
		return nil, c, err
	}

	if ch, ok := peek(b, c); !ok || ch != ')' {
		return nil, c, lexer.ErrNoData
	}
	return env, c + 1, nil
}

func decodeAddressList(b lexer.Buf, c lexer.Cursor) ([]*imap.Address, lexer.Cursor, error) {
	if ch, ok := peek(b, c); ok && ch != '(' {
		// NIL
		if hasPrefix(b, c, "NIL") {
			return nil, c + 3, nil
		}
		return nil, c, lexer.ErrNoData
	}
	c++
	var out []*imap.Address
	for {
		ch, ok := peek(b, c)
		if !ok {
			return nil, c, lexer.ErrNoData
		}
		if ch == ')' {
			return out, c + 1, nil
		}
		addr, next, err := decodeOneAddress(b, c)
		if err != nil {
			return nil, c, err
		}
		out = append(out, addr)
		c = next
	}
}

func decodeOneAddress(b lexer.Buf, c lexer.Cursor) (*imap.Address, lexer.Cursor, error) {
	if ch, ok := peek(b, c); !ok || ch != '(' {
		return nil, c, lexer.ErrNoData
	}
	c++
	addr := &imap.Address{}
	fields := [...]*string{&addr.Name, &addr.SourceRoute, &addr.Mailbox, &addr.Host}
	for i, dst := range fields {
		if i > 0 {
			var err error
			c, err = lexer.SkipSpace(b, c)
			if err != nil {
				return nil, c, err
			}
		}
		s, _, next, err := lexer.NString(b, c)
		if err != nil {
			return nil, c, err
		}
		*dst = s
		c = next
	}
	if ch, ok := peek(b, c); !ok || ch != ')' {
		return nil, c, lexer.ErrNoData
	}
	return addr, c + 1, nil
}

func peek(b lexer.Buf, c lexer.Cursor) (byte, bool) {
	if int(c) >= len(b) {
		return 0, false
	}
	return b[c], true
}

func hasPrefix(b lexer.Buf, c lexer.Cursor, s string) bool {
	if int(c)+len(s) > len(b) {
		return false
	}
	return string(b[int(c):int(c)+len(s)]) == s
}
