package respparser

import (
	"github.com/pelikan-mail/imapcore/lexer"
	imap "github.com/pelikan-mail/imapcore"
)

func parseListData(b lexer.Buf, c lexer.Cursor) (*imap.ListData, lexer.Cursor, error) {
	c, err := lexer.SkipSpace(b, c)
	if err != nil {
		return nil, c, err
	}
	attrItems, next, err := lexer.List(b, c, func(bb lexer.Buf, cc lexer.Cursor) (any, lexer.Cursor, error) {
		return lexer.Atom(bb, cc)
	})
	if err != nil {
		return nil, c, err
	}
	c = next
	c, err = lexer.SkipSpace(b, c)
	if err != nil {
		return nil, c, err
	}

	ld := &imap.ListData{}
	for _, a := range attrItems {
		ld.Attrs = append(ld.Attrs, imap.MailboxAttr(a.(string)))
	}

	// delimiter: quoted-char or NIL
	if ch, ok := bufAt(b, c); ok && ch == '"' {
		delim, n2, e := lexer.QuotedString(b, c)
		if e != nil {
			return nil, c, e
		}
		if len(delim) == 1 {
			ld.Delim = rune(delim[0])
		}
		c = n2
	} else {
		// NIL
		c += 3
	}
	c, err = lexer.SkipSpace(b, c)
	if err != nil {
		return nil, c, err
	}
	mbox, next2, err := lexer.Mailbox(b, c)
	if err != nil {
		return nil, c, err
	}
	ld.Mailbox = mbox
	return ld, next2, nil
}
