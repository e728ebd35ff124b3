package task

import (
	"context"
	"sync"
)

// MailboxSession is the subset of connection behavior KeepMailboxOpen needs:
// sending commands and learning when the mailbox has actually been selected.
// Concrete wiring lives in the imapconn package; this interface keeps the
// scheduler package free of a wire/model import cycle.
type MailboxSession interface {
	Select(ctx context.Context, mailbox string) error
	Idle(ctx context.Context) error
	Close(ctx context.Context) error
}

// KeepMailboxOpen is the long-lived task that owns a SELECTed mailbox for
// as long as the user keeps it open, mirroring trojita's
// Imap::Mailbox::KeepMailboxOpenTask. It selects the mailbox once and keeps
// a count of foreground commands announced through BeginActivity. Other
// tasks are not linked to it, and it never issues IDLE or DONE itself;
// ShouldIdle only reports whether the count is zero.
type KeepMailboxOpen struct {
	session MailboxSession
	mailbox string

	mu        sync.Mutex
	idling    bool
	activeJobs int
	closed    bool
}

// NewKeepMailboxOpen creates the task for the given mailbox. It does not
// select the mailbox until Run is called by the scheduler.
func NewKeepMailboxOpen(session MailboxSession, mailbox string) *KeepMailboxOpen {
	return &KeepMailboxOpen{session: session, mailbox: mailbox}
}

func (k *KeepMailboxOpen) Name() string { return "KEEPMAILBOXOPEN " + k.mailbox }

// Run selects the mailbox and then blocks until ctx is canceled. It does
// not issue IDLE, and Close does not end it.
func (k *KeepMailboxOpen) Run(ctx context.Context, tag string) error {
	if err := k.session.Select(ctx, k.mailbox); err != nil {
		return err
	}
	<-ctx.Done()
	return ctx.Err()
}

// BeginActivity records that a foreground command is about to run against
// this mailbox by raising the activity count; it sends nothing to the
// server. The returned function must be called when that command finishes.
func (k *KeepMailboxOpen) BeginActivity() func() {
	k.mu.Lock()
	k.activeJobs++
	k.mu.Unlock()
	return func() {
		k.mu.Lock()
		k.activeJobs--
		k.mu.Unlock()
	}
}

// ShouldIdle reports whether the task should currently be sitting in IDLE:
// true exactly when no foreground command has an activity in flight.
func (k *KeepMailboxOpen) ShouldIdle() bool {
	k.mu.Lock()
	defer k.mu.Unlock()
	return k.activeJobs == 0 && !k.closed
}

// Close marks the mailbox as no longer wanted, letting Run's context
// cancellation (driven by the caller) tear the task down.
func (k *KeepMailboxOpen) Close(ctx context.Context) error {
	k.mu.Lock()
	k.closed = true
	k.mu.Unlock()
	return k.session.Close(ctx)
}
