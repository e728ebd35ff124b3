// Package syncengine implements ObtainSynchronizedMailbox, the state
// machine that reconciles a mailbox's cached state against what SELECT and
// the subsequent UID SEARCH/FETCH round trip reveal. It is the Go
// counterpart of trojita's SyncingHandler/SelectedHandler pair, collapsed
// into one explicit state-enum task. Run walks the states in order and
// blocks on each Session call; it does not yield between I/O events.
package syncengine

import (
	"context"
	"fmt"
	"time"

	imap "github.com/pelikan-mail/imapcore"
	"github.com/pelikan-mail/imapcore/cache"
)

// State is a position in the ObtainSynchronizedMailbox state machine.
type State int

const (
	StateStart State = iota
	StateSelecting
	StateDeciding
	StateUidSearching
	StateUidSearchingTail
	StateFlagsFetching
	StateDone
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateStart:
		return "Start"
	case StateSelecting:
		return "Selecting"
	case StateDeciding:
		return "Deciding"
	case StateUidSearching:
		return "UidSearching"
	case StateUidSearchingTail:
		return "UidSearchingTail"
	case StateFlagsFetching:
		return "FlagsFetching"
	case StateDone:
		return "Done"
	case StateFailed:
		return "Failed"
	default:
		return fmt.Sprintf("unknown(%d)", int(s))
	}
}

// Decision is what Deciding concluded about how to reconcile, driving
// which branch of the state table executes next.
type Decision int

const (
	DecisionFull Decision = iota
	DecisionArrivals
	DecisionExpunge
	DecisionSame
)

func (d Decision) String() string {
	switch d {
	case DecisionFull:
		return "full"
	case DecisionArrivals:
		return "arrivals"
	case DecisionExpunge:
		return "expunge"
	case DecisionSame:
		return "same"
	default:
		return fmt.Sprintf("unknown(%d)", int(d))
	}
}

// Session is the subset of connection behavior the engine needs to issue
// commands; imapconn supplies the concrete implementation.
type Session interface {
	Select(ctx context.Context, mailbox string) (*imap.SyncState, error)
	UIDSearchAll(ctx context.Context) ([]imap.UID, error)
	UIDSearchSince(ctx context.Context, sinceUID imap.UID) ([]imap.UID, error)
	FetchFlags(ctx context.Context, count uint32) (map[uint32][]imap.Flag, error)
}

// ErrUnexpectedResponse signals a response that doesn't belong to this
// task's outstanding tag, which per spec should let the task scheduler
// decide whether to kill the connection rather than silently absorbing it.
var ErrUnexpectedResponse = fmt.Errorf("syncengine: unexpected response received")

// Observer receives reconciliation metrics, matching task.Observer's
// shape so *metrics.Registry can implement both without this package
// importing anything Prometheus-specific.
type Observer interface {
	ReconcileFinished(outcome string, d time.Duration)
	VanishedAbsorbed(n int)
	ExpungeAbsorbed(n int)
}

type noopObserver struct{}

func (noopObserver) ReconcileFinished(string, time.Duration) {}
func (noopObserver) VanishedAbsorbed(int)                    {}
func (noopObserver) ExpungeAbsorbed(int)                     {}

// Engine drives one mailbox's ObtainSynchronizedMailbox run.
type Engine struct {
	session  Session
	cache    cache.Cache
	mailbox  string
	observer Observer

	state    State
	decision Decision

	cachedState *imap.SyncState
	cachedUIDs  []imap.UID
	serverState *imap.SyncState

	// liveUIDs is the in-memory UID map being built up as SEARCH/FETCH
	// responses and interleaved EXISTS/EXPUNGE/VANISHED events arrive.
	liveUIDs []imap.UID
	flags    map[imap.UID][]imap.Flag

	pendingExtraFetch bool // case 1: EXISTS grew again after UID SEARCH was issued
	searchBaseUIDNext imap.UID
}

// New creates an engine for mailbox, ready to Run.
func New(session Session, c cache.Cache, mailbox string) *Engine {
	return &Engine{session: session, cache: c, mailbox: mailbox, flags: map[imap.UID][]imap.Flag{}, observer: noopObserver{}}
}

// NewWithObserver creates an engine that reports reconciliation metrics to obs.
func NewWithObserver(session Session, c cache.Cache, mailbox string, obs Observer) *Engine {
	e := New(session, c, mailbox)
	e.observer = obs
	return e
}

// State returns the engine's current state.
func (e *Engine) State() State { return e.state }

// Run drives the engine from Start to Done or Failed. It is written as a
// single function rather than a callback-per-state because, unlike the
// teacher's socket-driven tasks, every step here already blocks on ctx via
// the Session, so there's no response-handler registration to model.
func (e *Engine) Run(ctx context.Context) error {
	start := time.Now()
	defer func() {
		outcome := "failed"
		if e.state == StateDone {
			outcome = e.decision.String()
		}
		e.observer.ReconcileFinished(outcome, time.Since(start))
	}()

	e.state = StateSelecting
	serverState, err := e.session.Select(ctx, e.mailbox)
	if err != nil {
		e.state = StateFailed
		return err
	}
	e.serverState = serverState

	e.state = StateDeciding
	e.cachedState, err = e.cache.MailboxSyncState(ctx, e.mailbox)
	if err != nil && err != cache.ErrNotFound {
		e.state = StateFailed
		return err
	}
	if e.cachedState != nil {
		e.cachedUIDs, _ = e.cache.UIDMapping(ctx, e.mailbox)
	}
	e.decision = e.decide()

	switch e.decision {
	case DecisionFull:
		// UIDVALIDITY changed (or the cache was never usable): discard every
		// cached flag/envelope/bodystructure/part for this mailbox before
		// treating it as never seen (Scenario D).
		if err := e.cache.ClearAllMessages(ctx, e.mailbox); err != nil {
			e.state = StateFailed
			return err
		}
		e.state = StateUidSearching
		uids, serr := e.session.UIDSearchAll(ctx)
		if serr != nil {
			e.state = StateFailed
			return serr
		}
		e.liveUIDs = uids
	case DecisionExpunge:
		e.state = StateUidSearching
		uids, serr := e.session.UIDSearchAll(ctx)
		if serr != nil {
			e.state = StateFailed
			return serr
		}
		// Some messages were removed while the mailbox was closed: diff the
		// server's UID set against what was cached and drop the removed
		// ones' cached per-message data (Scenario E).
		live := make(map[imap.UID]bool, len(uids))
		for _, u := range uids {
			live[u] = true
		}
		for _, cached := range e.cachedUIDs {
			if cached != 0 && !live[cached] {
				if err := e.cache.ClearMessage(ctx, e.mailbox, cached); err != nil {
					e.state = StateFailed
					return err
				}
			}
		}
		e.liveUIDs = uids
	case DecisionArrivals:
		e.state = StateUidSearchingTail
		e.searchBaseUIDNext, _ = e.cachedState.UIDNext()
		newUIDs, serr := e.session.UIDSearchSince(ctx, e.searchBaseUIDNext)
		if serr != nil {
			e.state = StateFailed
			return serr
		}
		e.liveUIDs = append(append([]imap.UID(nil), e.cachedUIDs...), newUIDs...)
	case DecisionSame:
		e.liveUIDs = append([]imap.UID(nil), e.cachedUIDs...)
	}

	if e.pendingExtraFetch {
		// Dynamic case 1: EXISTS grew again between SELECT and the UID
		// SEARCH completing; pick up the tail we missed.
		since := imap.UID(1)
		if n := len(e.liveUIDs); n > 0 {
			since = e.liveUIDs[n-1] + 1
		}
		extra, serr := e.session.UIDSearchSince(ctx, since)
		if serr == nil {
			e.liveUIDs = append(e.liveUIDs, extra...)
		}
	}

	e.state = StateFlagsFetching
	count, _ := e.serverState.Exists()
	flagsBySeq, ferr := e.session.FetchFlags(ctx, count)
	if ferr != nil {
		e.state = StateFailed
		return ferr
	}
	for seq, fl := range flagsBySeq {
		if int(seq) >= 1 && int(seq) <= len(e.liveUIDs) {
			e.flags[e.liveUIDs[seq-1]] = fl
		}
	}

	if err := e.commit(ctx); err != nil {
		e.state = StateFailed
		return err
	}
	e.state = StateDone
	return nil
}

// decide implements the "Deciding" branch of the reconciliation rules. Every
// SyncState accessor's presence bit is checked explicitly rather than
// discarded: missing server information must never masquerade as a zero
// value, so any absent bit on either side routes straight to a full resync
// instead of being compared as 0.
func (e *Engine) decide() Decision {
	if e.cachedState == nil || !e.cachedState.IsUsableForSyncing() {
		return DecisionFull
	}
	if !e.serverState.IsUsableForSyncing() {
		return DecisionFull
	}
	cachedValidity, ok := e.cachedState.UIDValidity()
	if !ok {
		return DecisionFull
	}
	serverValidity, ok := e.serverState.UIDValidity()
	if !ok {
		return DecisionFull
	}
	if cachedValidity != serverValidity {
		return DecisionFull
	}
	cachedNext, ok := e.cachedState.UIDNext()
	if !ok {
		return DecisionFull
	}
	serverNext, ok := e.serverState.UIDNext()
	if !ok {
		return DecisionFull
	}
	if serverNext < cachedNext {
		// UIDNEXT decreased without UIDVALIDITY change: protocol error,
		// behave as a full resync.
		return DecisionFull
	}
	cachedExists, ok := e.cachedState.Exists()
	if !ok {
		return DecisionFull
	}
	serverExists, ok := e.serverState.Exists()
	if !ok {
		return DecisionFull
	}
	switch {
	case serverExists == cachedExists:
		return DecisionSame
	case serverExists > cachedExists:
		return DecisionArrivals
	default:
		return DecisionExpunge
	}
}

// OnExists handles an EXISTS response observed while a UID SEARCH is still
// outstanding (dynamic case 1): it doesn't issue anything itself, it just
// notes that a follow-up UID SEARCH for the tail is needed once the search
// returns.
func (e *Engine) OnExists(newCount uint32) {
	if e.state == StateUidSearching || e.state == StateUidSearchingTail {
		e.pendingExtraFetch = true
	}
}

// OnExpunge handles an EXPUNGE observed during UID SEARCH or the
// flag-refreshing FETCH (dynamic cases 2 and 3): the node at seqNum is
// removed immediately and every later sequence number shifts down by one.
func (e *Engine) OnExpunge(seqNum uint32) {
	idx := int(seqNum) - 1
	if idx < 0 || idx >= len(e.liveUIDs) {
		return
	}
	removed := e.liveUIDs[idx]
	e.liveUIDs = append(e.liveUIDs[:idx], e.liveUIDs[idx+1:]...)
	delete(e.flags, removed)
	if e.observer != nil {
		e.observer.ExpungeAbsorbed(1)
	}
}

// OnVanished handles a QRESYNC VANISHED response (dynamic case 4). uids are
// matched against the live UID map by linear scan tolerating UID-zero
// placeholders (a binary search would require the map to stay sorted,
// which placeholder reinsertion can violate transiently).
func (e *Engine) OnVanished(uids []imap.UID, earlier bool) {
	remove := make(map[imap.UID]bool, len(uids))
	for _, u := range uids {
		remove[u] = true
	}
	absorbed := 0
	out := e.liveUIDs[:0]
	for _, u := range e.liveUIDs {
		if remove[u] {
			delete(e.flags, u)
			absorbed++
			continue
		}
		out = append(out, u)
	}
	e.liveUIDs = out
	if e.observer != nil && absorbed > 0 {
		e.observer.VanishedAbsorbed(absorbed)
	}
}

// OnUnsolicitedFetch handles dynamic case 5: a FETCH for a sequence number
// whose UID this engine hasn't learned yet. Flags are stashed by sequence
// number; callers must re-apply them once the UID is known (typically once
// the search/fetch round trip completes and liveUIDs[seq-1] is valid).
type UnsolicitedFetch struct {
	SeqNum uint32
	Flags  []imap.Flag
}

func (e *Engine) OnUnsolicitedFetch(uf UnsolicitedFetch) {
	idx := int(uf.SeqNum) - 1
	if idx >= 0 && idx < len(e.liveUIDs) {
		e.flags[e.liveUIDs[idx]] = uf.Flags
	}
	// Else: UID genuinely unknown yet; caller is expected to retain uf and
	// replay it once liveUIDs grows to cover SeqNum.
}

// commit writes the reconciled SyncState and UID map to the cache as one
// logical transaction.
func (e *Engine) commit(ctx context.Context) error {
	return e.cache.SetMailboxSyncState(ctx, e.mailbox, e.serverState, e.liveUIDs)
}

// LiveUIDs returns the reconciled sequence-number-to-UID map (1-indexed by position).
func (e *Engine) LiveUIDs() []imap.UID { return append([]imap.UID(nil), e.liveUIDs...) }

// Flags returns the reconciled per-UID flag set.
func (e *Engine) Flags() map[imap.UID][]imap.Flag { return e.flags }
