// Package cache defines the persistence boundary between a synchronized
// mailbox and durable storage, grounded directly on trojita's
// Imap::Mailbox::AbstractCache (src/Imap/Model/Cache.h). The interface
// shape is kept 1:1 with the original virtual methods; only the calling
// convention changes (Go errors instead of silently-empty return values,
// context.Context on anything that might touch disk or network).
package cache

import (
	"context"
	"errors"

	imap "github.com/pelikan-mail/imapcore"
)

// ErrNotFound is returned by lookups that find no cached entry. Unlike the
// original C++ interface, which returned a default-constructed value for a
// miss, callers here can distinguish "empty" from "never cached".
var ErrNotFound = errors.New("cache: not found")

// MailboxMetadata is one entry of a LIST/LSUB listing, cached so the
// mailbox tree can be painted before the server round-trip completes.
type MailboxMetadata struct {
	Mailbox    string
	Separator  rune
	Attributes []imap.MailboxAttr
}

// MessageDataBundle carries everything known about one message short of
// its part bodies, mirroring AbstractCache::MessageDataBundle.
type MessageDataBundle struct {
	UID                   imap.UID
	Envelope              *imap.Envelope
	Size                  uint32
	Flags                 []imap.Flag
	SerializedBodyStructure []byte
}

// Cache is the storage interface a SyncEngine reconciles against. All
// UID-mapping and SyncState writes for a single mailbox must be applied
// atomically from the caller's point of view: a reader must never observe
// a SyncState that claims to be UIDVALIDITY-consistent with a UID map that
// hasn't been written yet (see SetMailboxSyncState doc).
type Cache interface {
	// ChildMailboxes returns the last-cached listing of mailbox immediately under parent.
	ChildMailboxes(ctx context.Context, mailbox string) ([]MailboxMetadata, error)
	// ChildMailboxesFresh reports whether that listing is still considered valid.
	ChildMailboxesFresh(ctx context.Context, mailbox string) bool
	// SetChildMailboxes replaces the cached listing for mailbox.
	SetChildMailboxes(ctx context.Context, mailbox string, data []MailboxMetadata) error
	// ForgetChildMailboxes invalidates the cached listing for mailbox.
	ForgetChildMailboxes(ctx context.Context, mailbox string) error

	// MailboxSyncState returns the last-known SyncState for mailbox, or
	// ErrNotFound if none was ever recorded.
	MailboxSyncState(ctx context.Context, mailbox string) (*imap.SyncState, error)
	// SetMailboxSyncState atomically replaces the cached SyncState along
	// with the UID map it's consistent with. Implementations must not let
	// a crash between the two writes leave a SyncState that references a
	// UID map that was never stored, since a SyncEngine uses the pairing
	// to decide whether incremental reconciliation is safe at all.
	SetMailboxSyncState(ctx context.Context, mailbox string, state *imap.SyncState, seqToUID []imap.UID) error

	// UIDMapping returns the cached sequence-number-to-UID array.
	UIDMapping(ctx context.Context, mailbox string) ([]imap.UID, error)
	// ClearUIDMapping forgets the cached seq->UID mapping.
	ClearUIDMapping(ctx context.Context, mailbox string) error

	// ClearAllMessages removes every cached message in mailbox.
	ClearAllMessages(ctx context.Context, mailbox string) error
	// ClearMessage removes cached data for one message.
	ClearMessage(ctx context.Context, mailbox string, uid imap.UID) error

	// SetMsgPart caches one decoded MIME part body.
	SetMsgPart(ctx context.Context, mailbox string, uid imap.UID, partID string, data []byte) error
	// SetMsgEnvelope caches a message's ENVELOPE.
	SetMsgEnvelope(ctx context.Context, mailbox string, uid imap.UID, env *imap.Envelope) error
	// SetMsgSize caches a message's RFC822.SIZE.
	SetMsgSize(ctx context.Context, mailbox string, uid imap.UID, size uint32) error
	// SetMsgStructure caches a message's serialized BODYSTRUCTURE.
	SetMsgStructure(ctx context.Context, mailbox string, uid imap.UID, serialized []byte) error
	// SetMsgFlags caches a message's flags.
	SetMsgFlags(ctx context.Context, mailbox string, uid imap.UID, flags []imap.Flag) error

	// MessageMetadata returns everything cached about one message except
	// its part bodies.
	MessageMetadata(ctx context.Context, mailbox string, uid imap.UID) (*MessageDataBundle, error)
	// MessagePart returns one cached part body, or ErrNotFound.
	MessagePart(ctx context.Context, mailbox string, uid imap.UID, partID string) ([]byte, error)

	// Close releases any resources (file handles, connections) held by the cache.
	Close() error
}
