package cache

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	imap "github.com/pelikan-mail/imapcore"
)

func TestMemoryCacheSyncStateRoundTrip(t *testing.T) {
	ctx := context.Background()
	c := NewMemoryCache()

	_, err := c.MailboxSyncState(ctx, "INBOX")
	require.ErrorIs(t, err, ErrNotFound)

	var st imap.SyncState
	st.SetUIDValidity(123)
	st.SetUIDNext(imap.UID(50))
	st.SetExists(10)

	require.NoError(t, c.SetMailboxSyncState(ctx, "INBOX", &st, []imap.UID{1, 2, 3}))

	got, err := c.MailboxSyncState(ctx, "INBOX")
	require.NoError(t, err)
	v, ok := got.UIDValidity()
	require.True(t, ok)
	require.Equal(t, uint32(123), v)
	require.True(t, got.IsUsableForSyncing())

	uids, err := c.UIDMapping(ctx, "INBOX")
	require.NoError(t, err)
	require.Len(t, uids, 3)
}

func TestMemoryCacheMessageMetadata(t *testing.T) {
	ctx := context.Background()
	c := NewMemoryCache()

	env := &imap.Envelope{Subject: "hello"}
	require.NoError(t, c.SetMsgEnvelope(ctx, "INBOX", 42, env))
	require.NoError(t, c.SetMsgFlags(ctx, "INBOX", 42, []imap.Flag{imap.FlagSeen}))

	bundle, err := c.MessageMetadata(ctx, "INBOX", 42)
	require.NoError(t, err)
	require.Equal(t, "hello", bundle.Envelope.Subject)
	require.Equal(t, []imap.Flag{imap.FlagSeen}, bundle.Flags)

	require.NoError(t, c.ClearMessage(ctx, "INBOX", 42))
	_, err = c.MessageMetadata(ctx, "INBOX", 42)
	require.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryCachePartStorage(t *testing.T) {
	ctx := context.Background()
	c := NewMemoryCache()
	require.NoError(t, c.SetMsgPart(ctx, "INBOX", 7, "1.2", []byte("payload")))

	got, err := c.MessagePart(ctx, "INBOX", 7, "1.2")
	require.NoError(t, err)
	require.Equal(t, "payload", string(got))
}

func TestMemoryCacheChildMailboxes(t *testing.T) {
	ctx := context.Background()
	c := NewMemoryCache()

	require.False(t, c.ChildMailboxesFresh(ctx, "INBOX"))

	entries := []MailboxMetadata{
		{Mailbox: "INBOX.Sent", Separator: '.', Attributes: []imap.MailboxAttr{imap.MailboxAttrHasNoChildren}},
	}
	require.NoError(t, c.SetChildMailboxes(ctx, "INBOX", entries))
	require.True(t, c.ChildMailboxesFresh(ctx, "INBOX"))

	got, err := c.ChildMailboxes(ctx, "INBOX")
	require.NoError(t, err)
	require.Equal(t, entries, got)

	require.NoError(t, c.ForgetChildMailboxes(ctx, "INBOX"))
	require.False(t, c.ChildMailboxesFresh(ctx, "INBOX"))
}
