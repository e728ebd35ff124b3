package cache

import (
	"context"
	"sync"

	imap "github.com/pelikan-mail/imapcore"
)

type mailboxEntry struct {
	children     []MailboxMetadata
	childrenFresh bool
	syncState    *imap.SyncState
	seqToUID     []imap.UID
	messages     map[imap.UID]*MessageDataBundle
	parts        map[imap.UID]map[string][]byte
}

// MemoryCache is a process-local Cache backed by a guarded map, the default
// cache for short-lived sessions and for tests. It never evicts; a long
// running process should layer SQLiteCache or RedisCache underneath instead.
type MemoryCache struct {
	mu        sync.RWMutex
	mailboxes map[string]*mailboxEntry
}

// NewMemoryCache returns an empty MemoryCache.
func NewMemoryCache() *MemoryCache {
	return &MemoryCache{mailboxes: make(map[string]*mailboxEntry)}
}

func (c *MemoryCache) entry(mailbox string) *mailboxEntry {
	e, ok := c.mailboxes[mailbox]
	if !ok {
		e = &mailboxEntry{
			messages: make(map[imap.UID]*MessageDataBundle),
			parts:    make(map[imap.UID]map[string][]byte),
		}
		c.mailboxes[mailbox] = e
	}
	return e
}

func (c *MemoryCache) ChildMailboxes(ctx context.Context, mailbox string) ([]MailboxMetadata, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	e, ok := c.mailboxes[mailbox]
	if !ok {
		return nil, nil
	}
	return append([]MailboxMetadata(nil), e.children...), nil
}

func (c *MemoryCache) ChildMailboxesFresh(ctx context.Context, mailbox string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	e, ok := c.mailboxes[mailbox]
	return ok && e.childrenFresh
}

func (c *MemoryCache) SetChildMailboxes(ctx context.Context, mailbox string, data []MailboxMetadata) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	e := c.entry(mailbox)
	e.children = append([]MailboxMetadata(nil), data...)
	e.childrenFresh = true
	return nil
}

func (c *MemoryCache) ForgetChildMailboxes(ctx context.Context, mailbox string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if e, ok := c.mailboxes[mailbox]; ok {
		e.children = nil
		e.childrenFresh = false
	}
	return nil
}

func (c *MemoryCache) MailboxSyncState(ctx context.Context, mailbox string) (*imap.SyncState, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	e, ok := c.mailboxes[mailbox]
	if !ok || e.syncState == nil {
		return nil, ErrNotFound
	}
	cp := *e.syncState
	return &cp, nil
}

func (c *MemoryCache) SetMailboxSyncState(ctx context.Context, mailbox string, state *imap.SyncState, seqToUID []imap.UID) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	e := c.entry(mailbox)
	cp := *state
	e.syncState = &cp
	e.seqToUID = append([]imap.UID(nil), seqToUID...)
	return nil
}

func (c *MemoryCache) UIDMapping(ctx context.Context, mailbox string) ([]imap.UID, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	e, ok := c.mailboxes[mailbox]
	if !ok {
		return nil, nil
	}
	return append([]imap.UID(nil), e.seqToUID...), nil
}

func (c *MemoryCache) ClearUIDMapping(ctx context.Context, mailbox string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if e, ok := c.mailboxes[mailbox]; ok {
		e.seqToUID = nil
	}
	return nil
}

func (c *MemoryCache) ClearAllMessages(ctx context.Context, mailbox string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if e, ok := c.mailboxes[mailbox]; ok {
		e.messages = make(map[imap.UID]*MessageDataBundle)
		e.parts = make(map[imap.UID]map[string][]byte)
	}
	return nil
}

func (c *MemoryCache) ClearMessage(ctx context.Context, mailbox string, uid imap.UID) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if e, ok := c.mailboxes[mailbox]; ok {
		delete(e.messages, uid)
		delete(e.parts, uid)
	}
	return nil
}

func (c *MemoryCache) bundle(mailbox string, uid imap.UID) *MessageDataBundle {
	e := c.entry(mailbox)
	m, ok := e.messages[uid]
	if !ok {
		m = &MessageDataBundle{UID: uid}
		e.messages[uid] = m
	}
	return m
}

func (c *MemoryCache) SetMsgPart(ctx context.Context, mailbox string, uid imap.UID, partID string, data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	e := c.entry(mailbox)
	parts, ok := e.parts[uid]
	if !ok {
		parts = make(map[string][]byte)
		e.parts[uid] = parts
	}
	parts[partID] = append([]byte(nil), data...)
	return nil
}

func (c *MemoryCache) SetMsgEnvelope(ctx context.Context, mailbox string, uid imap.UID, env *imap.Envelope) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.bundle(mailbox, uid).Envelope = env
	return nil
}

func (c *MemoryCache) SetMsgSize(ctx context.Context, mailbox string, uid imap.UID, size uint32) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.bundle(mailbox, uid).Size = size
	return nil
}

func (c *MemoryCache) SetMsgStructure(ctx context.Context, mailbox string, uid imap.UID, serialized []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.bundle(mailbox, uid).SerializedBodyStructure = append([]byte(nil), serialized...)
	return nil
}

func (c *MemoryCache) SetMsgFlags(ctx context.Context, mailbox string, uid imap.UID, flags []imap.Flag) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.bundle(mailbox, uid).Flags = append([]imap.Flag(nil), flags...)
	return nil
}

func (c *MemoryCache) MessageMetadata(ctx context.Context, mailbox string, uid imap.UID) (*MessageDataBundle, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	e, ok := c.mailboxes[mailbox]
	if !ok {
		return nil, ErrNotFound
	}
	m, ok := e.messages[uid]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *m
	return &cp, nil
}

func (c *MemoryCache) MessagePart(ctx context.Context, mailbox string, uid imap.UID, partID string) ([]byte, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	e, ok := c.mailboxes[mailbox]
	if !ok {
		return nil, ErrNotFound
	}
	parts, ok := e.parts[uid]
	if !ok {
		return nil, ErrNotFound
	}
	data, ok := parts[partID]
	if !ok {
		return nil, ErrNotFound
	}
	return append([]byte(nil), data...), nil
}

func (c *MemoryCache) Close() error { return nil }

var _ Cache = (*MemoryCache)(nil)
