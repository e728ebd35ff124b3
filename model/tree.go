// Package model holds the mailbox/message/part tree that trojita's
// MailboxTree.h expresses with cyclic parent/child Qt pointers and a
// QAbstractItemModel role system (ItemRoles.h). Go has no item-model
// framework and doesn't want cyclic pointer ownership, so the tree here is
// an arena of nodes addressed by integer handles: a Tree owns every node in
// flat slices, and Handle values are indices into those slices. Handles
// remain valid as long as the owning Tree is alive and never get freed
// individually, trading a little memory for the absence of parent/child
// pointer cycles and the nil-checking that comes with them.
package model

import (
	"fmt"
	"strings"
	"time"

	imap "github.com/pelikan-mail/imapcore"
)

// FetchState records whether a node's data has been requested from the
// server yet, mirroring RoleIsFetched/RoleIsUnavailable.
type FetchState int

const (
	FetchNone FetchState = iota
	FetchLoading
	FetchDone
	FetchUnavailable
)

func (s FetchState) String() string {
	switch s {
	case FetchNone:
		return "none"
	case FetchLoading:
		return "loading"
	case FetchDone:
		return "done"
	case FetchUnavailable:
		return "unavailable"
	default:
		return fmt.Sprintf("unknown(%d)", int(s))
	}
}

// Handle identifies a node within a Tree. The zero Handle is never a valid
// node; it is used as a sentinel "no parent"/"no node" value.
type Handle int

// Invalid is the sentinel zero handle.
const Invalid Handle = 0

// Role enumerates the queryable facets of a tree node, following the shape
// (not the Qt plumbing) of ItemRoles.h's custom data roles. The catalog below
// is comprehensive for Mailbox/MessageList/Message/Part data, with the
// exceptions noted in DESIGN.md (MessageFuzzyDate and the display-only Part
// roles PartContentFormat/PartContentDelSp/PartMultipartRelatedMainCid/
// PartBufferPtr/PartForceFetchFromCache, which belong to a MIME-rendering/GUI
// layer this client core doesn't implement).
type Role int

const (
	RoleIsFetched Role = iota
	RoleIsUnavailable

	RoleMailboxName
	RoleMailboxShortName
	RoleMailboxSeparator
	RoleMailboxIsINBOX
	RoleMailboxIsSelectable
	RoleMailboxHasChildMailboxes
	RoleMailboxNumbersFetched
	RoleMailboxUIDValidity
	RoleMailboxIsSubscribed
	RoleTotalMessageCount
	RoleUnreadMessageCount
	RoleRecentMessageCount

	RoleMessageUID
	RoleMessageSubject
	RoleMessageFrom
	RoleMessageSender
	RoleMessageReplyTo
	RoleMessageTo
	RoleMessageCc
	RoleMessageBcc
	RoleMessageMessageID
	RoleMessageInReplyTo
	RoleMessageDate
	RoleMessageInternalDate
	RoleMessageSize
	RoleMessageIsMarkedRead
	RoleMessageIsMarkedDeleted
	RoleMessageIsMarkedForwarded
	RoleMessageIsMarkedReplied
	RoleMessageIsMarkedRecent
	RoleMessageIsMarkedFlagged
	RoleMessageIsMarkedJunk
	RoleMessageIsMarkedNotJunk
	RoleMessageWasUnread
	RoleMessageHeaderReferences
	RoleMessageHeaderListPost
	RoleMessageHeaderListPostNo
	RoleMessageEnvelope
	RoleMessageFlags

	RolePartData
	RolePartMimeType
	RolePartCharset
	RolePartEncoding
	RolePartBodyFldId
	RolePartBodyDisposition
	RolePartFileName
	RolePartOctets
	RolePartId
	RolePartPathToPart
	RolePartBodyFldParam
	RolePartIsTopLevelMultipart
)

// NodeKind discriminates the three shapes of node the arena can hold.
type NodeKind int

const (
	KindMailbox NodeKind = iota
	KindMessageList
	KindMessage
	KindPart
)

// mailboxData holds the per-mailbox fields; embedded in node via the arena.
type mailboxData struct {
	name          string
	separator     rune
	selectable    bool
	subscribed    bool
	uidValidity   uint32
	messageList   Handle
}

// messageListData is the synthetic container node between a Mailbox and its
// Message children, giving SELECT/EXAMINE a place to attach SyncState
// without overloading the Mailbox node itself.
type messageListData struct {
	fetchStatus FetchState
	totalCount  uint32
	unreadCount uint32
	recentCount uint32
}

type messageData struct {
	uid          uint32
	seqNum       uint32
	flags        []string
	subject      string
	from         []*imap.Address
	sender       []*imap.Address
	replyTo      []*imap.Address
	to           []*imap.Address
	cc           []*imap.Address
	bcc          []*imap.Address
	messageID    string
	inReplyTo    string
	date         time.Time
	internalDate time.Time
	size         uint32
	wasUnread    bool
	references   []string
	listPost     string
	listPostNo   bool
	envelope     *imap.Envelope
	topLevelPart Handle // root of the MIME structure, 0 if not fetched
}

// partData models one node of a message's MIME structure. Per RFC 3501
// §7.4.2, a non-multipart body has an implicit top-level part "1"; trojita
// special-cases HEADER/TEXT/MIME/RAW pseudo-parts the same way BODY section
// specifiers do, so those are represented as a Special marker rather than a
// numeric PartID. A fetchable part's four pseudo-columns are materialized as
// sibling-ish nodes reachable only via specialKids, never mixed into
// children, so row_count over children still reflects the MIME structure
// alone.
type partData struct {
	partID              string // "1", "1.2", "" for a top-level multipart
	special             SpecialPart
	mimeType            string
	mimeSubtype         string
	charset             string
	size                uint32
	encoding            string
	bodyFldID           string
	disposition         string
	dispositionFilename string
	dispositionParams   map[string]string
	bodyFldParams       map[string]string
	isTopLevelMultipart bool
	payload             []byte
	fetched             bool
	children            []Handle
	specialKids         [4]Handle
}

// SpecialPart names the non-numeric column specifiers BODY[...] can
// address on a part (RFC 3501 §6.4.5).
type SpecialPart int

const (
	SpecialNone SpecialPart = iota
	SpecialHeader
	SpecialText
	SpecialMIME
	SpecialRaw
)

// specialIndex maps a SpecialPart to its slot in partData.specialKids, or -1
// for SpecialNone (not a valid lookup key).
func specialIndex(sp SpecialPart) int {
	switch sp {
	case SpecialHeader:
		return 0
	case SpecialText:
		return 1
	case SpecialMIME:
		return 2
	case SpecialRaw:
		return 3
	default:
		return -1
	}
}

type node struct {
	kind       NodeKind
	fetchState FetchState
	parent     Handle
	children   []Handle

	mailbox     *mailboxData
	messageList *messageListData
	message     *messageData
	part        *partData
}

// Tree is the arena. The zero Tree is not usable; call NewTree.
type Tree struct {
	nodes []node
}

// NewTree creates an empty arena. Handle 0 is reserved as Invalid, so the
// first node allocated gets handle 1; no root mailbox node is created, and
// top-level mailboxes are added with parent Invalid.
func NewTree() *Tree {
	t := &Tree{nodes: make([]node, 1, 64)} // index 0 reserved
	return t
}

func (t *Tree) alloc(n node) Handle {
	t.nodes = append(t.nodes, n)
	return Handle(len(t.nodes) - 1)
}

func (t *Tree) get(h Handle) *node {
	if int(h) <= 0 || int(h) >= len(t.nodes) {
		panic(fmt.Sprintf("model: invalid handle %d", h))
	}
	return &t.nodes[h]
}

// AddMailbox appends a new mailbox node as a child of parent (Invalid for a
// top-level mailbox) and returns its handle. Each mailbox gets an attached
// MessageList node eagerly, since trojita always keeps one around even
// before SELECT populates it.
func (t *Tree) AddMailbox(parent Handle, name string, sep rune, selectable bool) Handle {
	mh := t.alloc(node{kind: KindMailbox, parent: parent, mailbox: &mailboxData{
		name: name, separator: sep, selectable: selectable,
	}})
	if parent != Invalid {
		p := t.get(parent)
		p.children = append(p.children, mh)
	}
	mlh := t.alloc(node{kind: KindMessageList, parent: mh, messageList: &messageListData{}})
	t.get(mh).children = append(t.get(mh).children, mlh)
	t.get(mh).mailbox.messageList = mlh
	return mh
}

// MessageListOf returns the handle of a mailbox's message-list child.
func (t *Tree) MessageListOf(mailbox Handle) Handle {
	return t.get(mailbox).mailbox.messageList
}

// AddMessage appends a message node under a message-list node and returns
// its handle.
func (t *Tree) AddMessage(list Handle, uid uint32, seqNum uint32) Handle {
	n := t.get(list)
	if n.kind != KindMessageList {
		panic("model: AddMessage requires a message-list handle")
	}
	mh := t.alloc(node{kind: KindMessage, parent: list, message: &messageData{uid: uid, seqNum: seqNum}})
	n.children = append(n.children, mh)
	return mh
}

// RemoveMessage detaches a message from its list, implementing the EXPUNGE
// renumbering rule: callers are responsible for decrementing the seqNum of
// every sibling that followed it, since the arena itself has no global
// sequence-number index.
func (t *Tree) RemoveMessage(h Handle) {
	n := t.get(h)
	parent := t.get(n.parent)
	for i, c := range parent.children {
		if c == h {
			parent.children = append(parent.children[:i], parent.children[i+1:]...)
			break
		}
	}
}

// Children returns the child handles of a node in order.
func (t *Tree) Children(h Handle) []Handle {
	return t.get(h).children
}

// Parent returns the parent handle of a node, or Invalid for a root mailbox.
func (t *Tree) Parent(h Handle) Handle {
	return t.get(h).parent
}

// Kind returns the node kind stored at h.
func (t *Tree) Kind(h Handle) NodeKind {
	return t.get(h).kind
}

// MailboxName returns a mailbox node's name.
func (t *Tree) MailboxName(h Handle) string {
	return t.get(h).mailbox.name
}

// SetMailboxUIDValidity records UIDVALIDITY observed during SELECT/EXAMINE.
func (t *Tree) SetMailboxUIDValidity(h Handle, v uint32) {
	t.get(h).mailbox.uidValidity = v
}

// MailboxUIDValidity returns the last-known UIDVALIDITY for a mailbox.
func (t *Tree) MailboxUIDValidity(h Handle) uint32 {
	return t.get(h).mailbox.uidValidity
}

// SetFetchStatus records the message-list node's load state.
func (t *Tree) SetFetchStatus(list Handle, s FetchState) {
	t.get(list).messageList.fetchStatus = s
}

// FetchStatus returns a message-list node's load state.
func (t *Tree) FetchStatus(list Handle) FetchState {
	return t.get(list).messageList.fetchStatus
}

// SetCounts records EXISTS/unread/recent counts on a message-list node.
func (t *Tree) SetCounts(list Handle, total, unread, recent uint32) {
	ml := t.get(list).messageList
	ml.totalCount, ml.unreadCount, ml.recentCount = total, unread, recent
}

// MessageUID returns a message node's UID.
func (t *Tree) MessageUID(h Handle) uint32 {
	return t.get(h).message.uid
}

// MessageSeqNum returns a message node's current sequence number.
func (t *Tree) MessageSeqNum(h Handle) uint32 {
	return t.get(h).message.seqNum
}

// SetMessageSeqNum updates a message's sequence number, used when an
// EXPUNGE shifts everything after it down by one.
func (t *Tree) SetMessageSeqNum(h Handle, seq uint32) {
	t.get(h).message.seqNum = seq
}

// SetMessageFlags replaces a message's flag set.
func (t *Tree) SetMessageFlags(h Handle, flags []string) {
	t.get(h).message.flags = flags
}

// MessageFlags returns a message's flags.
func (t *Tree) MessageFlags(h Handle) []string {
	return t.get(h).message.flags
}

// SetMessageEnvelope records a message's decoded ENVELOPE and the
// denormalized fields the role catalog exposes individually (subject,
// date, address lists, message-id, in-reply-to) so Role lookups don't need
// to reach back into the envelope struct each time.
func (t *Tree) SetMessageEnvelope(h Handle, env *imap.Envelope) {
	m := t.get(h).message
	m.envelope = env
	if env == nil {
		return
	}
	m.subject = env.Subject
	m.date = env.Date
	m.from = env.From
	m.sender = env.Sender
	m.replyTo = env.ReplyTo
	m.to = env.To
	m.cc = env.Cc
	m.bcc = env.Bcc
	m.messageID = env.MessageID
	m.inReplyTo = env.InReplyTo
}

// MessageEnvelope returns a message's decoded ENVELOPE, or nil if not yet fetched.
func (t *Tree) MessageEnvelope(h Handle) *imap.Envelope {
	return t.get(h).message.envelope
}

// SetMessageInternalDate records a message's INTERNALDATE.
func (t *Tree) SetMessageInternalDate(h Handle, d time.Time) {
	t.get(h).message.internalDate = d
}

// SetMessageSize records a message's RFC822.SIZE.
func (t *Tree) SetMessageSize(h Handle, size uint32) {
	t.get(h).message.size = size
}

// SetMessageWasUnread records the "was unread at list entry" sticky bit used
// for UI filtering: once a message has been shown as unread in a session, it
// stays so regardless of later \Seen changes.
func (t *Tree) SetMessageWasUnread(h Handle, wasUnread bool) {
	t.get(h).message.wasUnread = wasUnread
}

// SetMessageHeaderFields records the parsed References / List-Post /
// List-Post-NO header values that don't arrive via ENVELOPE.
func (t *Tree) SetMessageHeaderFields(h Handle, references []string, listPost string, listPostNo bool) {
	m := t.get(h).message
	m.references = references
	m.listPost = listPost
	m.listPostNo = listPostNo
}

// SetFetchState records the generic fetch lifecycle (NONE/LOADING/DONE/
// UNAVAILABLE) for any node kind, backing RoleIsFetched/RoleIsUnavailable.
func (t *Tree) SetFetchState(h Handle, s FetchState) {
	t.get(h).fetchState = s
}

// NodeFetchState returns a node's generic fetch lifecycle state.
func (t *Tree) NodeFetchState(h Handle) FetchState {
	return t.get(h).fetchState
}

// hasFlag reports whether flags contains name, case-insensitively, the way
// IMAP flag comparisons are defined.
func hasFlag(flags []string, name string) bool {
	for _, f := range flags {
		if strings.EqualFold(f, name) {
			return true
		}
	}
	return false
}

// SpecialPartChild returns the pseudo-part node for one of a fetchable
// part's HEADER/TEXT/MIME/RAW section specifiers. Returns Invalid for a
// top-level multipart, which has no section id of its own to suffix; bytes
// for its HEADER/TEXT are fetched through the enclosing message's own
// pseudo-columns instead (trojita's sibling-routing rule).
func (t *Tree) SpecialPartChild(h Handle, sp SpecialPart) Handle {
	idx := specialIndex(sp)
	if idx < 0 {
		return Invalid
	}
	return t.get(h).part.specialKids[idx]
}

// SpecialPartKind reports which pseudo-column, if any, a part node represents.
func (t *Tree) SpecialPartKind(h Handle) SpecialPart {
	return t.get(h).part.special
}

// PartSectionSpecifier returns the BODY[...]/BINARY[...] section text a
// fetch for this part node should use: the bare dotted id for a regular
// part, or "<id>.HEADER"/"<id>.TEXT"/"<id>.MIME" for a pseudo-column node.
func (t *Tree) PartSectionSpecifier(h Handle) string {
	p := t.get(h).part
	switch p.special {
	case SpecialHeader:
		return joinSection(p.partID, "HEADER")
	case SpecialText:
		return joinSection(p.partID, "TEXT")
	case SpecialMIME:
		return joinSection(p.partID, "MIME")
	default:
		return p.partID
	}
}

func joinSection(partID, suffix string) string {
	if partID == "" {
		return suffix
	}
	return partID + "." + suffix
}

// PartCacheKey returns the key a Part's bytes should be cached/fetched
// under: its bare section number normally, or "<id>.X-RAW" for the
// synthesized RAW twin holding the un-decoded transfer-encoded bytes.
func (t *Tree) PartCacheKey(h Handle) string {
	p := t.get(h).part
	if p.special == SpecialRaw {
		return p.partID + ".X-RAW"
	}
	return p.partID
}

// SetPartPayload records a part's fetched bytes and marks it DONE.
func (t *Tree) SetPartPayload(h Handle, data []byte) {
	p := t.get(h).part
	p.payload = append([]byte(nil), data...)
	p.fetched = true
	t.get(h).fetchState = FetchDone
}

// PartPayload returns a part's cached bytes, if fetched.
func (t *Tree) PartPayload(h Handle) ([]byte, bool) {
	p := t.get(h).part
	return p.payload, p.fetched
}

// Role reads a single data facet off a node, the Go analogue of
// QAbstractItemModel::data(index, role) without the Qt variant boxing.
func (t *Tree) Role(h Handle, role Role) (any, bool) {
	n := t.get(h)
	switch role {
	case RoleIsFetched:
		return n.fetchState == FetchDone, true
	case RoleIsUnavailable:
		return n.fetchState == FetchUnavailable, true

	case RoleMailboxName:
		if n.mailbox != nil {
			return n.mailbox.name, true
		}
	case RoleMailboxShortName:
		if n.mailbox != nil {
			if i := strings.LastIndexByte(n.mailbox.name, byte(n.mailbox.separator)); i >= 0 {
				return n.mailbox.name[i+1:], true
			}
			return n.mailbox.name, true
		}
	case RoleMailboxSeparator:
		if n.mailbox != nil {
			return n.mailbox.separator, true
		}
	case RoleMailboxIsINBOX:
		if n.mailbox != nil {
			return n.mailbox.name == "INBOX", true
		}
	case RoleMailboxIsSelectable:
		if n.mailbox != nil {
			return n.mailbox.selectable, true
		}
	case RoleMailboxHasChildMailboxes:
		if n.mailbox != nil {
			return len(n.children) > 1, true // > the synthetic message-list child
		}
	case RoleMailboxNumbersFetched:
		if n.mailbox != nil {
			ml := t.get(n.mailbox.messageList).messageList
			return ml.fetchStatus == FetchDone, true
		}
	case RoleMailboxUIDValidity:
		if n.mailbox != nil {
			return n.mailbox.uidValidity, true
		}
	case RoleMailboxIsSubscribed:
		if n.mailbox != nil {
			return n.mailbox.subscribed, true
		}
	case RoleTotalMessageCount:
		if n.messageList != nil {
			return n.messageList.totalCount, true
		}
	case RoleUnreadMessageCount:
		if n.messageList != nil {
			return n.messageList.unreadCount, true
		}
	case RoleRecentMessageCount:
		if n.messageList != nil {
			return n.messageList.recentCount, true
		}

	case RoleMessageUID:
		if n.message != nil {
			return n.message.uid, true
		}
	case RoleMessageSubject:
		if n.message != nil {
			return n.message.subject, true
		}
	case RoleMessageFrom:
		if n.message != nil {
			return n.message.from, true
		}
	case RoleMessageSender:
		if n.message != nil {
			return n.message.sender, true
		}
	case RoleMessageReplyTo:
		if n.message != nil {
			return n.message.replyTo, true
		}
	case RoleMessageTo:
		if n.message != nil {
			return n.message.to, true
		}
	case RoleMessageCc:
		if n.message != nil {
			return n.message.cc, true
		}
	case RoleMessageBcc:
		if n.message != nil {
			return n.message.bcc, true
		}
	case RoleMessageMessageID:
		if n.message != nil {
			return n.message.messageID, true
		}
	case RoleMessageInReplyTo:
		if n.message != nil {
			return n.message.inReplyTo, true
		}
	case RoleMessageDate:
		if n.message != nil {
			return n.message.date, true
		}
	case RoleMessageInternalDate:
		if n.message != nil {
			return n.message.internalDate, true
		}
	case RoleMessageSize:
		if n.message != nil {
			return n.message.size, true
		}
	case RoleMessageIsMarkedRead:
		if n.message != nil {
			return hasFlag(n.message.flags, string(imap.FlagSeen)), true
		}
	case RoleMessageIsMarkedDeleted:
		if n.message != nil {
			return hasFlag(n.message.flags, string(imap.FlagDeleted)), true
		}
	case RoleMessageIsMarkedReplied:
		if n.message != nil {
			return hasFlag(n.message.flags, string(imap.FlagAnswered)), true
		}
	case RoleMessageIsMarkedForwarded:
		if n.message != nil {
			return hasFlag(n.message.flags, "$Forwarded"), true
		}
	case RoleMessageIsMarkedRecent:
		if n.message != nil {
			return hasFlag(n.message.flags, string(imap.FlagRecent)), true
		}
	case RoleMessageIsMarkedFlagged:
		if n.message != nil {
			return hasFlag(n.message.flags, string(imap.FlagFlagged)), true
		}
	case RoleMessageIsMarkedJunk:
		if n.message != nil {
			return hasFlag(n.message.flags, "$Junk"), true
		}
	case RoleMessageIsMarkedNotJunk:
		if n.message != nil {
			return hasFlag(n.message.flags, "$NotJunk"), true
		}
	case RoleMessageWasUnread:
		if n.message != nil {
			return n.message.wasUnread, true
		}
	case RoleMessageHeaderReferences:
		if n.message != nil {
			return n.message.references, true
		}
	case RoleMessageHeaderListPost:
		if n.message != nil {
			return n.message.listPost, true
		}
	case RoleMessageHeaderListPostNo:
		if n.message != nil {
			return n.message.listPostNo, true
		}
	case RoleMessageEnvelope:
		if n.message != nil {
			return n.message.envelope, true
		}
	case RoleMessageFlags:
		if n.message != nil {
			return n.message.flags, true
		}

	case RolePartData:
		if n.part != nil {
			return n.part.payload, n.part.fetched
		}
	case RolePartMimeType:
		if n.part != nil {
			return n.part.mimeType + "/" + n.part.mimeSubtype, true
		}
	case RolePartCharset:
		if n.part != nil {
			return n.part.charset, true
		}
	case RolePartEncoding:
		if n.part != nil {
			return n.part.encoding, true
		}
	case RolePartBodyFldId:
		if n.part != nil {
			return n.part.bodyFldID, true
		}
	case RolePartBodyDisposition:
		if n.part != nil {
			return n.part.disposition, true
		}
	case RolePartFileName:
		if n.part != nil {
			return n.part.dispositionFilename, true
		}
	case RolePartOctets:
		if n.part != nil {
			return n.part.size, true
		}
	case RolePartId:
		if n.part != nil {
			return n.part.partID, true
		}
	case RolePartPathToPart:
		if n.part != nil {
			return partPath(t, h), true
		}
	case RolePartBodyFldParam:
		if n.part != nil {
			return n.part.bodyFldParams, true
		}
	case RolePartIsTopLevelMultipart:
		if n.part != nil {
			return n.part.isTopLevelMultipart, true
		}
	}
	return nil, false
}

// partPath returns the sequence of part handles from the top-level part down
// to h, used by RolePartPathToPart to answer "where does this part sit".
func partPath(t *Tree, h Handle) []Handle {
	var path []Handle
	for cur := h; cur != Invalid; cur = t.get(cur).parent {
		if t.get(cur).kind != KindPart {
			break
		}
		path = append([]Handle{cur}, path...)
	}
	return path
}
