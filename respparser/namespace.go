package respparser

import "github.com/pelikan-mail/imapcore/lexer"

func parseNamespace(b lexer.Buf, c lexer.Cursor) (*NamespaceData, lexer.Cursor, error) {
	c, err := lexer.SkipSpace(b, c)
	if err != nil {
		return nil, c, err
	}
	ns := &NamespaceData{}
	groups := [3]*[]NamespaceDescr{&ns.Personal, &ns.Other, &ns.Shared}
	for i := 0; i < 3; i++ {
		if i > 0 {
			c, err = lexer.SkipSpace(b, c)
			if err != nil {
				return nil, c, err
			}
		}
		if hasPrefixWord(b, c, "NIL") {
			c += 3
			continue
		}
		list, next, derr := parseNamespaceList(b, c)
		if derr != nil {
			return nil, c, derr
		}
		*groups[i] = list
		c = next
	}
	return ns, c, nil
}

func parseNamespaceList(b lexer.Buf, c lexer.Cursor) ([]NamespaceDescr, lexer.Cursor, error) {
	if ch, ok := bufAt(b, c); !ok || ch != '(' {
		return nil, c, lexer.ErrNoData
	}
	c++
	var out []NamespaceDescr
	for {
		ch, ok := bufAt(b, c)
		if !ok {
			return nil, c, lexer.ErrNoData
		}
		if ch == ')' {
			return out, c + 1, nil
		}
		if ch != '(' {
			return nil, c, lexer.ErrNoData
		}
		c++
		prefix, next, err := lexer.Mailbox(b, c)
		if err != nil {
			return nil, c, err
		}
		c, err = lexer.SkipSpace(b, next)
		if err != nil {
			return nil, c, err
		}
		var delim rune
		if hasPrefixWord(b, c, "NIL") {
			c += 3
		} else {
			d, next2, derr := lexer.QuotedString(b, c)
			if derr != nil {
				return nil, c, derr
			}
			if len(d) == 1 {
				delim = rune(d[0])
			}
			c = next2
		}
		// skip any namespace-response-extensions to the closing paren
		depth := 1
		for depth > 0 {
			ch2, ok2 := bufAt(b, c)
			if !ok2 {
				return nil, c, lexer.ErrNoData
			}
			switch ch2 {
			case '(':
				depth++
			case ')':
				depth--
			}
			c++
		}
		out = append(out, NamespaceDescr{Prefix: prefix, Delim: delim})
	}
}
