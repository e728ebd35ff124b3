// Package respparser turns a line already tokenized by the lexer package
// into a typed Response value. Where an ad hoc reader might grow a family
// of string-matching helpers (processUntagged, handleResponseCode, ...),
// this package replaces the dispatch with a single tagged-variant type:
// one Response struct carries a Kind discriminant plus the one payload field
// that Kind makes valid, so callers switch once instead of re-deriving "what
// is this line" from string prefixes scattered across the codebase.
package respparser

import (
	"fmt"

	"github.com/pelikan-mail/imapcore/lexer"
	imap "github.com/pelikan-mail/imapcore"
)

// Kind discriminates the payload carried by a Response.
type Kind int

const (
	KindStatus Kind = iota
	KindCapability
	KindExists
	KindRecent
	KindExpunge
	KindFlags
	KindList
	KindLSub
	KindSearch
	KindESearch
	KindStatusData
	KindFetch
	KindNamespace
	KindSort
	KindThread
	KindID
	KindEnabled
	KindVanished
	KindGenURLAuth
	KindContinuation
)

func (k Kind) String() string {
	names := [...]string{
		"Status", "Capability", "Exists", "Recent", "Expunge", "Flags",
		"List", "LSub", "Search", "ESearch", "StatusData", "Fetch",
		"Namespace", "Sort", "Thread", "ID", "Enabled", "Vanished",
		"GenURLAuth", "Continuation",
	}
	if int(k) < len(names) {
		return names[k]
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

// Response is the tagged union of every server response this package knows
// how to parse. Exactly one of the pointer/slice fields matching Kind is
// populated; the rest are left at their zero value.
type Response struct {
	Kind Kind
	Tag  string // "*" for untagged, "+" for continuation, or the command tag

	Status     *imap.StatusResponse
	Capability []imap.Cap
	Num        uint32 // EXISTS / RECENT / EXPUNGE / seq-num of a FETCH
	Flags      []imap.Flag
	List       *imap.ListData
	Search     []uint32
	SearchUID  bool
	SearchModSeq uint64
	ESearch    *ESearchData
	StatusData *imap.StatusData
	Fetch      *FetchData
	Namespace  *NamespaceData
	Sort       []uint32
	Thread     []ThreadNode
	ID         map[string]string
	Enabled    []imap.Cap
	Vanished   *VanishedData
	ContinuationText string
}

// ESearchData is the parsed result of an ESEARCH response (RFC 4731).
type ESearchData struct {
	Tag    string
	UID    bool
	Min    uint32
	Max    uint32
	All    string // raw sequence-set, parse on demand via numset
	Count  uint32
	ModSeq uint64

	// AddTo/RemoveFrom carry CONTEXT=SORT-style incremental updates: each
	// pair is (offset, sequence-set) per RFC 5267 §4.
	AddTo      []OffsetSeq
	RemoveFrom []OffsetSeq
	IncThread  bool
}

// OffsetSeq pairs a 1-based result-list offset with the sequence-set
// inserted or removed starting at that offset.
type OffsetSeq struct {
	Offset int
	SeqSet string
}

// FetchData is the decoded set of data items for one FETCH response.
type FetchData struct {
	SeqNum        uint32
	UID           imap.UID
	Flags         []imap.Flag
	InternalDate  *imap.InternalDate
	Envelope      *imap.Envelope
	BodyStructure *imap.BodyStructure
	RFC822Size    uint32
	ModSeq        uint64
	BodySections  map[string][]byte
	BinarySection []byte
	BinarySize    *int64
}

// NamespaceData is the decoded NAMESPACE response (RFC 2342).
type NamespaceData struct {
	Personal []NamespaceDescr
	Other    []NamespaceDescr
	Shared   []NamespaceDescr
}

// NamespaceDescr is one namespace entry: a prefix plus hierarchy delimiter.
type NamespaceDescr struct {
	Prefix string
	Delim  rune
}

// ThreadNode is one node of a THREAD response tree (RFC 5256).
type ThreadNode struct {
	Num      uint32
	Children []ThreadNode
}

// VanishedData is the decoded VANISHED response (RFC 7162, QRESYNC).
type VanishedData struct {
	Earlier bool
	UIDs    string // raw UID sequence-set
}

// ParseErrorResponse is returned when a response line fails to parse as any
// known kind. It wraps the lexer error that stopped progress.
type ParseErrorResponse struct {
	Line string
	Err  error
}

func (e *ParseErrorResponse) Error() string {
	return fmt.Sprintf("respparser: cannot parse %q: %v", e.Line, e.Err)
}

func (e *ParseErrorResponse) Unwrap() error { return e.Err }

// Parse dispatches a single response line (tag already split off by the
// caller's line reader) into a typed Response.
func Parse(tag string, line string) (*Response, error) {
	b := lexer.Buf(line)
	var c lexer.Cursor

	if tag == "+" {
		return &Response{Kind: KindContinuation, Tag: tag, ContinuationText: line}, nil
	}

	// Untagged numeric responses: "<n> EXISTS" / "<n> RECENT" / "<n> EXPUNGE" / "<n> FETCH (...)"
	if n, next, err := lexer.Uint(b, c); err == nil {
		c2 := next
		var sperr error
		c2, sperr = lexer.SkipSpace(b, c2)
		if sperr == nil {
			word, next2, werr := lexer.Atom(b, c2)
			if werr == nil {
				switch word {
				case "EXISTS":
					return &Response{Kind: KindExists, Tag: tag, Num: n}, nil
				case "RECENT":
					return &Response{Kind: KindRecent, Tag: tag, Num: n}, nil
				case "EXPUNGE":
					return &Response{Kind: KindExpunge, Tag: tag, Num: n}, nil
				case "FETCH":
					fd, _, ferr := parseFetchItems(b, next2)
					if ferr != nil {
						return nil, &ParseErrorResponse{Line: line, Err: ferr}
					}
					fd.SeqNum = n
					return &Response{Kind: KindFetch, Tag: tag, Num: n, Fetch: fd}, nil
				}
			}
		}
	}

	word, next, err := lexer.Atom(b, c)
	if err != nil {
		return nil, &ParseErrorResponse{Line: line, Err: err}
	}
	c = next

	switch word {
	case "OK", "NO", "BAD", "BYE", "PREAUTH":
		st, _, perr := parseStatusResponse(word, b, c)
		if perr != nil {
			return nil, &ParseErrorResponse{Line: line, Err: perr}
		}
		return &Response{Kind: KindStatus, Tag: tag, Status: st}, nil

	case "CAPABILITY":
		caps, _, perr := parseCapabilities(b, c)
		if perr != nil {
			return nil, &ParseErrorResponse{Line: line, Err: perr}
		}
		return &Response{Kind: KindCapability, Tag: tag, Capability: caps}, nil

	case "FLAGS":
		c, perr := lexer.SkipSpace(b, c)
		if perr != nil {
			return nil, &ParseErrorResponse{Line: line, Err: perr}
		}
		items, next, lerr := lexer.List(b, c, atomElem)
		if lerr != nil {
			return nil, &ParseErrorResponse{Line: line, Err: lerr}
		}
		_ = next
		return &Response{Kind: KindFlags, Tag: tag, Flags: toFlags(items)}, nil

	case "LIST", "LSUB":
		ld, _, perr := parseListData(b, c)
		if perr != nil {
			return nil, &ParseErrorResponse{Line: line, Err: perr}
		}
		k := KindList
		if word == "LSUB" {
			k = KindLSub
		}
		return &Response{Kind: k, Tag: tag, List: ld}, nil

	case "SEARCH":
		nums, uid, modseq, perr := parseSearch(b, c)
		if perr != nil {
			return nil, &ParseErrorResponse{Line: line, Err: perr}
		}
		return &Response{Kind: KindSearch, Tag: tag, Search: nums, SearchUID: uid, SearchModSeq: modseq}, nil

	case "ESEARCH":
		es, _, perr := parseESearch(b, c)
		if perr != nil {
			return nil, &ParseErrorResponse{Line: line, Err: perr}
		}
		return &Response{Kind: KindESearch, Tag: tag, ESearch: es}, nil

	case "STATUS":
		sd, _, perr := parseStatusData(b, c)
		if perr != nil {
			return nil, &ParseErrorResponse{Line: line, Err: perr}
		}
		return &Response{Kind: KindStatusData, Tag: tag, StatusData: sd}, nil

	case "NAMESPACE":
		ns, _, perr := parseNamespace(b, c)
		if perr != nil {
			return nil, &ParseErrorResponse{Line: line, Err: perr}
		}
		return &Response{Kind: KindNamespace, Tag: tag, Namespace: ns}, nil

	case "SORT":
		nums, _, perr := parseNumList(b, skipLeadingSpace(b, c))
		if perr != nil {
			return nil, &ParseErrorResponse{Line: line, Err: perr}
		}
		return &Response{Kind: KindSort, Tag: tag, Sort: nums}, nil

	case "THREAD":
		nodes, _, perr := parseThread(b, skipLeadingSpace(b, c))
		if perr != nil {
			return nil, &ParseErrorResponse{Line: line, Err: perr}
		}
		return &Response{Kind: KindThread, Tag: tag, Thread: nodes}, nil

	case "ID":
		m, _, perr := parseID(b, c)
		if perr != nil {
			return nil, &ParseErrorResponse{Line: line, Err: perr}
		}
		return &Response{Kind: KindID, Tag: tag, ID: m}, nil

	case "ENABLED":
		caps, _, perr := parseCapabilities(b, c)
		if perr != nil {
			return nil, &ParseErrorResponse{Line: line, Err: perr}
		}
		return &Response{Kind: KindEnabled, Tag: tag, Enabled: caps}, nil

	case "VANISHED":
		vd, _, perr := parseVanished(b, c)
		if perr != nil {
			return nil, &ParseErrorResponse{Line: line, Err: perr}
		}
		return &Response{Kind: KindVanished, Tag: tag, Vanished: vd}, nil

	case "GENURLAUTH":
		return &Response{Kind: KindGenURLAuth, Tag: tag}, nil
	}

	return nil, &ParseErrorResponse{Line: line, Err: fmt.Errorf("unrecognized response keyword %q", word)}
}

// atomElem parses one list member as an atom, or as a flag when it starts
// with a backslash (e.g. \Seen).
func atomElem(b lexer.Buf, c lexer.Cursor) (any, lexer.Cursor, error) {
	start := c
	if int(c) < len(b) && b[c] == '\\' {
		c++
	}
	_, next, err := lexer.Atom(b, c)
	if err != nil {
		return nil, start, err
	}
	return string(b[start:next]), next, nil
}

func toFlags(items []any) []imap.Flag {
	out := make([]imap.Flag, 0, len(items))
	for _, it := range items {
		out = append(out, imap.Flag(it.(string)))
	}
	return out
}

func parseNumList(b lexer.Buf, c lexer.Cursor) ([]uint32, lexer.Cursor, error) {
	var nums []uint32
	for {
		if _, ok := bufAt(b, c); !ok {
			break
		}
		var sperr error
		if len(nums) > 0 {
			c, sperr = lexer.SkipSpace(b, c)
			if sperr != nil {
				break
			}
		}
		n, next, err := lexer.Uint(b, c)
		if err != nil {
			break
		}
		nums = append(nums, n)
		c = next
	}
	return nums, c, nil
}

func bufAt(b lexer.Buf, c lexer.Cursor) (byte, bool) {
	if int(c) >= len(b) {
		return 0, false
	}
	return b[c], true
}
