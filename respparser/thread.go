package respparser

import "github.com/pelikan-mail/imapcore/lexer"

// parseThread decodes a THREAD response's forest of parenthesized lists
// (RFC 5256 §4). Each top-level "(n m (k l) p)" production is a chain of
// numbers optionally branching into nested lists; we flatten a chain into
// parent/child ThreadNode links the way the reference grammar intends: the
// first number starts the thread, each following bare number continues the
// chain linearly, and a nested list starts a sibling sub-thread hanging off
// the node just emitted.
func parseThread(b lexer.Buf, c lexer.Cursor) ([]ThreadNode, lexer.Cursor, error) {
	if ch, ok := bufAt(b, c); !ok || ch != '(' {
		if hasPrefixWord(b, c, "NIL") {
			return nil, c + 3, nil
		}
		return nil, c, lexer.ErrNoData
	}
	var roots []ThreadNode
	for {
		ch, ok := bufAt(b, c)
		if !ok || ch != '(' {
			break
		}
		node, next, err := parseThreadChain(b, c)
		if err != nil {
			return nil, c, err
		}
		roots = append(roots, node)
		c = next
		if ch, ok = bufAt(b, c); ok && ch == ' ' {
			c, _ = lexer.SkipSpace(b, c)
			continue
		}
		break
	}
	return roots, c, nil
}

func parseThreadChain(b lexer.Buf, c lexer.Cursor) (ThreadNode, lexer.Cursor, error) {
	c++ // consume '('
	var head *ThreadNode
	var tail *ThreadNode
	for {
		ch, ok := bufAt(b, c)
		if !ok {
			return ThreadNode{}, c, lexer.ErrNoData
		}
		if ch == ')' {
			c++
			break
		}
		if ch == ' ' {
			c, _ = lexer.SkipSpace(b, c)
			continue
		}
		if ch == '(' {
			child, next, err := parseThreadChain(b, c)
			if err != nil {
				return ThreadNode{}, c, err
			}
			if tail != nil {
				tail.Children = append(tail.Children, child)
			}
			c = next
			continue
		}
		n, next, err := lexer.Uint(b, c)
		if err != nil {
			return ThreadNode{}, c, err
		}
		c = next
		node := ThreadNode{Num: n}
		if head == nil {
			head = &node
			tail = head
		} else {
			tail.Children = append(tail.Children, node)
			tail = &tail.Children[len(tail.Children)-1]
		}
	}
	if head == nil {
		return ThreadNode{}, c, lexer.ErrNoData
	}
	return *head, c, nil
}

func parseVanished(b lexer.Buf, c lexer.Cursor) (*VanishedData, lexer.Cursor, error) {
	vd := &VanishedData{}
	c, err := lexer.SkipSpace(b, c)
	if err != nil {
		return nil, c, err
	}
	if ch, ok := bufAt(b, c); ok && ch == '(' {
		items, next, lerr := lexer.List(b, c, func(bb lexer.Buf, cc lexer.Cursor) (any, lexer.Cursor, error) {
			return lexer.Atom(bb, cc)
		})
		if lerr != nil {
			return nil, c, lerr
		}
		for _, it := range items {
			if it.(string) == "EARLIER" {
				vd.Earlier = true
			}
		}
		c = next
		c, err = lexer.SkipSpace(b, c)
		if err != nil {
			return nil, c, err
		}
	}
	uids, next, err := lexer.SequenceSet(b, c)
	if err != nil {
		return nil, c, err
	}
	vd.UIDs = uids
	return vd, next, nil
}
