package syncengine

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	imap "github.com/pelikan-mail/imapcore"
	"github.com/pelikan-mail/imapcore/cache"
)

type fakeSession struct {
	selectState  *imap.SyncState
	selectErr    error
	allUIDs      []imap.UID
	sinceUIDs    []imap.UID
	flagsBySeq   map[uint32][]imap.Flag
	fetchErr     error
}

func (f *fakeSession) Select(ctx context.Context, mailbox string) (*imap.SyncState, error) {
	return f.selectState, f.selectErr
}

func (f *fakeSession) UIDSearchAll(ctx context.Context) ([]imap.UID, error) {
	return f.allUIDs, nil
}

func (f *fakeSession) UIDSearchSince(ctx context.Context, sinceUID imap.UID) ([]imap.UID, error) {
	return f.sinceUIDs, nil
}

func (f *fakeSession) FetchFlags(ctx context.Context, count uint32) (map[uint32][]imap.Flag, error) {
	return f.flagsBySeq, f.fetchErr
}

func serverState(validity uint32, uidNext imap.UID, exists uint32) *imap.SyncState {
	var s imap.SyncState
	s.SetUIDValidity(validity)
	s.SetUIDNext(uidNext)
	s.SetExists(exists)
	return &s
}

func TestEngineFullResyncOnNoCachedState(t *testing.T) {
	ctx := context.Background()
	sess := &fakeSession{
		selectState: serverState(1, 11, 3),
		allUIDs:     []imap.UID{1, 2, 3},
		flagsBySeq:  map[uint32][]imap.Flag{1: {imap.FlagSeen}, 2: {}, 3: {imap.FlagFlagged}},
	}
	c := cache.NewMemoryCache()
	e := New(sess, c, "INBOX")

	require.NoError(t, e.Run(ctx))
	require.Equal(t, StateDone, e.State())
	require.Equal(t, DecisionFull, e.decision)
	require.Len(t, e.LiveUIDs(), 3)

	cached, err := c.MailboxSyncState(ctx, "INBOX")
	require.NoError(t, err)
	v, _ := cached.UIDValidity()
	require.Equal(t, uint32(1), v)
}

func TestEngineUIDValidityChangeForcesFullResync(t *testing.T) {
	ctx := context.Background()
	c := cache.NewMemoryCache()
	var cached imap.SyncState
	cached.SetUIDValidity(1)
	cached.SetUIDNext(imap.UID(5))
	cached.SetExists(2)
	require.NoError(t, c.SetMailboxSyncState(ctx, "INBOX", &cached, []imap.UID{1, 2}))

	sess := &fakeSession{
		selectState: serverState(2, 11, 3), // UIDVALIDITY changed: 1 -> 2
		allUIDs:     []imap.UID{10, 11, 12},
		flagsBySeq:  map[uint32][]imap.Flag{1: {}, 2: {}, 3: {}},
	}
	e := New(sess, c, "INBOX")
	require.NoError(t, e.Run(ctx))
	require.Equal(t, DecisionFull, e.decision)
}

func TestEngineUIDValidityChangeClearsCachedMessages(t *testing.T) {
	ctx := context.Background()
	c := cache.NewMemoryCache()
	var cached imap.SyncState
	cached.SetUIDValidity(1)
	cached.SetUIDNext(imap.UID(5))
	cached.SetExists(2)
	require.NoError(t, c.SetMailboxSyncState(ctx, "INBOX", &cached, []imap.UID{1, 2}))
	require.NoError(t, c.SetMsgFlags(ctx, "INBOX", imap.UID(1), []imap.Flag{imap.FlagSeen}))
	require.NoError(t, c.SetMsgPart(ctx, "INBOX", imap.UID(1), "1", []byte("body")))

	sess := &fakeSession{
		selectState: serverState(2, 11, 3), // UIDVALIDITY changed: 1 -> 2
		allUIDs:     []imap.UID{10, 11, 12},
		flagsBySeq:  map[uint32][]imap.Flag{1: {}, 2: {}, 3: {}},
	}
	e := New(sess, c, "INBOX")
	require.NoError(t, e.Run(ctx))
	require.Equal(t, DecisionFull, e.decision)

	_, err := c.MessagePart(ctx, "INBOX", imap.UID(1), "1")
	require.ErrorIs(t, err, cache.ErrNotFound, "cached part from the old UIDVALIDITY epoch must be discarded")
	_, err = c.MessageMetadata(ctx, "INBOX", imap.UID(1))
	require.ErrorIs(t, err, cache.ErrNotFound, "cached flags from the old UIDVALIDITY epoch must be discarded")
}

func TestEngineExpungePathClearsRemovedMessages(t *testing.T) {
	ctx := context.Background()
	c := cache.NewMemoryCache()
	var cached imap.SyncState
	cached.SetUIDValidity(1)
	cached.SetUIDNext(imap.UID(15))
	cached.SetExists(6)
	require.NoError(t, c.SetMailboxSyncState(ctx, "INBOX", &cached, []imap.UID{6, 9, 10, 11, 12, 14}))
	require.NoError(t, c.SetMsgFlags(ctx, "INBOX", imap.UID(9), []imap.Flag{imap.FlagSeen}))
	require.NoError(t, c.SetMsgFlags(ctx, "INBOX", imap.UID(11), []imap.Flag{imap.FlagSeen}))
	require.NoError(t, c.SetMsgFlags(ctx, "INBOX", imap.UID(12), []imap.Flag{imap.FlagSeen}))

	sess := &fakeSession{
		selectState: serverState(1, 15, 5), // EXISTS decreased 6 -> 5
		allUIDs:     []imap.UID{6, 10, 11, 14},
		flagsBySeq:  map[uint32][]imap.Flag{1: {}, 2: {}, 3: {}, 4: {}},
	}
	e := New(sess, c, "INBOX")
	require.NoError(t, e.Run(ctx))
	require.Equal(t, DecisionExpunge, e.decision)
	require.Equal(t, []imap.UID{6, 10, 11, 14}, e.LiveUIDs())

	_, err := c.MessageMetadata(ctx, "INBOX", imap.UID(9))
	require.ErrorIs(t, err, cache.ErrNotFound, "UID 9 was removed server-side and its cached flags must be cleared")
	_, err = c.MessageMetadata(ctx, "INBOX", imap.UID(12))
	require.ErrorIs(t, err, cache.ErrNotFound, "UID 12 was removed server-side and its cached flags must be cleared")
	bundle11, err := c.MessageMetadata(ctx, "INBOX", imap.UID(11))
	require.NoError(t, err)
	require.Equal(t, []imap.Flag{imap.FlagSeen}, bundle11.Flags, "UID 11 survived and its cached flags must be untouched")
}

func TestEngineArrivalsPath(t *testing.T) {
	ctx := context.Background()
	c := cache.NewMemoryCache()
	var cached imap.SyncState
	cached.SetUIDValidity(1)
	cached.SetUIDNext(imap.UID(5))
	cached.SetExists(2)
	require.NoError(t, c.SetMailboxSyncState(ctx, "INBOX", &cached, []imap.UID{1, 2}))

	sess := &fakeSession{
		selectState: serverState(1, 10, 3), // one more message arrived
		sinceUIDs:   []imap.UID{5},
		flagsBySeq:  map[uint32][]imap.Flag{1: {}, 2: {}, 3: {imap.FlagRecent}},
	}
	e := New(sess, c, "INBOX")
	require.NoError(t, e.Run(ctx))
	require.Equal(t, DecisionArrivals, e.decision)
	uids := e.LiveUIDs()
	require.Len(t, uids, 3)
	require.Equal(t, imap.UID(5), uids[2])
}

func TestEngineSelectFailurePreservesCache(t *testing.T) {
	ctx := context.Background()
	c := cache.NewMemoryCache()
	var cached imap.SyncState
	cached.SetUIDValidity(1)
	cached.SetUIDNext(imap.UID(5))
	cached.SetExists(2)
	_ = c.SetMailboxSyncState(ctx, "INBOX", &cached, []imap.UID{1, 2})

	sess := &fakeSession{selectErr: errDenied}
	e := New(sess, c, "INBOX")
	require.Error(t, e.Run(ctx))
	require.Equal(t, StateFailed, e.State())

	got, err := c.MailboxSyncState(ctx, "INBOX")
	require.NoError(t, err)
	v, _ := got.UIDValidity()
	require.Equal(t, uint32(1), v, "cache must not be mutated on SELECT failure")
}

func TestEngineOnExpungeShiftsSequenceNumbers(t *testing.T) {
	e := &Engine{liveUIDs: []imap.UID{1, 2, 3}, flags: map[imap.UID][]imap.Flag{2: {imap.FlagSeen}}}
	e.OnExpunge(2)
	require.Equal(t, []imap.UID{1, 3}, e.liveUIDs)
	_, ok := e.flags[2]
	require.False(t, ok, "expected flags for expunged UID to be dropped")
}

func TestEngineOnVanishedRemovesMatchingUIDs(t *testing.T) {
	e := &Engine{liveUIDs: []imap.UID{1, 2, 3, 4}, flags: map[imap.UID][]imap.Flag{}}
	e.OnVanished([]imap.UID{2, 4}, false)
	require.Equal(t, []imap.UID{1, 3}, e.liveUIDs)
}

var errDenied = &selectError{"mailbox unavailable"}

type selectError struct{ msg string }

func (e *selectError) Error() string { return e.msg }
