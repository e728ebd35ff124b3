package respparser

import (
	"github.com/pelikan-mail/imapcore/lexer"
)

// parseSearch handles both the classic "SEARCH 1 2 3" response and the
// CONDSTORE-extended "SEARCH 1 2 3 (MODSEQ 917162500)" form; UID SEARCH
// numbers are distinguished by the caller's command context, hence the
// bare uid bool here always comes back false and is set by the caller that
// knows whether this answered a UID SEARCH.
func parseSearch(b lexer.Buf, c lexer.Cursor) ([]uint32, bool, uint64, error) {
	nums, next, err := parseNumList(b, skipLeadingSpace(b, c))
	if err != nil {
		return nil, false, 0, err
	}
	c = next
	c, spErr := lexer.SkipSpace(b, c)
	if spErr != nil {
		return nums, false, 0, nil
	}
	if ch, ok := bufAt(b, c); !ok || ch != '(' {
		return nums, false, 0, nil
	}
	items, _, err := lexer.List(b, c, func(bb lexer.Buf, cc lexer.Cursor) (any, lexer.Cursor, error) {
		return lexer.Atom(bb, cc)
	})
	if err != nil {
		return nums, false, 0, nil
	}
	var modseq uint64
	for i, it := range items {
		if it.(string) == "MODSEQ" && i+1 < len(items) {
			// MODSEQ value was consumed as an atom; re-parse as number.
			for _, ch := range items[i+1].(string) {
				modseq = modseq*10 + uint64(ch-'0')
			}
		}
	}
	return nums, false, modseq, nil
}

func skipLeadingSpace(b lexer.Buf, c lexer.Cursor) lexer.Cursor {
	if ch, ok := bufAt(b, c); ok && ch == ' ' {
		return c + 1
	}
	return c
}

func parseESearch(b lexer.Buf, c lexer.Cursor) (*ESearchData, lexer.Cursor, error) {
	es := &ESearchData{}
	c = skipLeadingSpace(b, c)

	if ch, ok := bufAt(b, c); ok && ch == '(' {
		items, next, err := lexer.List(b, c, func(bb lexer.Buf, cc lexer.Cursor) (any, lexer.Cursor, error) {
			return lexer.AString(bb, cc)
		})
		if err != nil {
			return nil, c, err
		}
		for i, it := range items {
			if it.(string) == "TAG" && i+1 < len(items) {
				es.Tag = items[i+1].(string)
			}
		}
		c = next
		c, _ = lexer.SkipSpace(b, c)
	}

	if hasPrefixWord(b, c, "UID") {
		es.UID = true
		c += 3
		c, _ = lexer.SkipSpace(b, c)
	}

	for {
		if _, ok := bufAt(b, c); !ok {
			break
		}
		word, next, err := lexer.Atom(b, c)
		if err != nil {
			break
		}
		c = next
		c, _ = lexer.SkipSpace(b, c)
		switch word {
		case "MIN":
			n, n2, e := lexer.Uint(b, c)
			if e != nil {
				return es, c, nil
			}
			es.Min, c = n, n2
		case "MAX":
			n, n2, e := lexer.Uint(b, c)
			if e != nil {
				return es, c, nil
			}
			es.Max, c = n, n2
		case "COUNT":
			n, n2, e := lexer.Uint(b, c)
			if e != nil {
				return es, c, nil
			}
			es.Count, c = n, n2
		case "MODSEQ":
			n, n2, e := lexer.Uint64(b, c)
			if e != nil {
				return es, c, nil
			}
			es.ModSeq, c = n, n2
		case "ALL":
			s, n2, e := lexer.SequenceSet(b, c)
			if e != nil {
				return es, c, nil
			}
			es.All, c = s, n2
		case "ADDTO", "REMOVEFROM":
			pair, n2, e := lexer.List(b, c, func(bb lexer.Buf, cc lexer.Cursor) (any, lexer.Cursor, error) {
				n, cc2, e := lexer.Uint(bb, cc)
				if e != nil {
					return nil, cc, e
				}
				cc2, e = lexer.SkipSpace(bb, cc2)
				if e != nil {
					return nil, cc, e
				}
				s, cc3, e := lexer.SequenceSet(bb, cc2)
				if e != nil {
					return nil, cc, e
				}
				return OffsetSeq{Offset: int(n), SeqSet: s}, cc3, nil
			})
			if e != nil {
				return es, c, nil
			}
			c = n2
			for _, p := range pair {
				os := p.(OffsetSeq)
				if word == "ADDTO" {
					es.AddTo = append(es.AddTo, os)
				} else {
					es.RemoveFrom = append(es.RemoveFrom, os)
				}
			}
		}
		if ch, ok := bufAt(b, c); ok && ch == ' ' {
			c, _ = lexer.SkipSpace(b, c)
			continue
		}
		break
	}
	return es, c, nil
}

func hasPrefixWord(b lexer.Buf, c lexer.Cursor, word string) bool {
	if int(c)+len(word) > len(b) {
		return false
	}
	return string(b[int(c):int(c)+len(word)]) == word
}
