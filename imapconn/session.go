package imapconn

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	imap "github.com/pelikan-mail/imapcore"
	"github.com/pelikan-mail/imapcore/respparser"
	"github.com/pelikan-mail/imapcore/task"
)

// commandTask is a generic task.Task that sends one command line and
// collects every untagged response observed while its tag is outstanding,
// handing control back to the caller once the tagged completion arrives.
// It is the Go analogue of a per-command continuation closure,
// generalized so syncengine/KeepMailboxOpen don't each need their own
// Task implementation.
type commandTask struct {
	conn    *Conn
	line    string
	collect func(resp *respparser.Response) // called for every untagged response seen while running
}

func (t *commandTask) Name() string {
	if idx := strings.IndexByte(t.line, ' '); idx > 0 {
		return t.line[:idx]
	}
	return t.line
}

func (t *commandTask) Run(ctx context.Context, tag string) error {
	done := make(chan error, 1)
	var unregister func()
	unregister = t.conn.onTaggedOrUntagged(tag, func(resp *respparser.Response, isTagged bool) {
		if !isTagged {
			if t.collect != nil {
				t.collect(resp)
			}
			return
		}
		defer unregister()
		if resp.Kind != respparser.KindStatus || resp.Status == nil {
			done <- fmt.Errorf("imapconn: %s: unexpected tagged response kind %v", t.Name(), resp.Kind)
			return
		}
		switch resp.Status.Type {
		case imap.StatusResponseTypeOK:
			done <- nil
		default:
			done <- &imap.IMAPError{StatusResponse: resp.Status}
		}
	})

	if err := t.conn.SendCommand(tag, t.line); err != nil {
		unregister()
		return err
	}

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		unregister()
		return ctx.Err()
	}
}

// onTaggedOrUntagged is a narrower hook than OnUntagged: it also observes
// the one tagged response matching tag, then removes itself. Conn's
// readLoop doesn't natively know about per-tag subscribers, so this is
// layered on top of OnUntagged plus a tag comparison closure captured by
// the caller-supplied fn, with isTagged computed here.
func (c *Conn) onTaggedOrUntagged(tag string, fn func(resp *respparser.Response, isTagged bool)) func() {
	var h UntaggedHandler
	h = func(resp *respparser.Response) {
		if resp.Tag == tag && resp.Tag != "" && resp.Tag != "*" {
			fn(resp, true)
			return
		}
		fn(resp, false)
	}
	c.mu.Lock()
	c.handlers = append(c.handlers, h)
	idx := len(c.handlers) - 1
	c.mu.Unlock()

	return func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		if idx < len(c.handlers) && sameHandler(c.handlers[idx], h) {
			c.handlers = append(c.handlers[:idx], c.handlers[idx+1:]...)
		}
	}
}

func sameHandler(a, b UntaggedHandler) bool {
	// UntaggedHandler is a closure, so pointer identity on the underlying
	// func value is the best we can do; since unregister runs once right
	// after registration's index is captured, this only needs to guard
	// against a concurrent unrelated handler shifting the slice.
	return fmt.Sprintf("%p", a) == fmt.Sprintf("%p", b)
}

// Select issues SELECT and returns the SyncState built from the untagged
// EXISTS/RECENT/FLAGS/OK[UIDVALIDITY]/OK[UIDNEXT] responses observed before
// the tagged completion. This satisfies syncengine.Session.
func (c *Conn) Select(ctx context.Context, mailbox string) (*imap.SyncState, error) {
	var state imap.SyncState
	t := &commandTask{conn: c, line: "SELECT " + quoteMailbox(mailbox), collect: func(resp *respparser.Response) {
		applySelectResponse(&state, resp)
	}}
	h := c.Scheduler().Enqueue(ctx, t)
	if err := h.Wait(ctx); err != nil {
		return nil, err
	}
	return &state, nil
}

func applySelectResponse(state *imap.SyncState, resp *respparser.Response) {
	switch resp.Kind {
	case respparser.KindExists:
		state.SetExists(resp.Num)
	case respparser.KindRecent:
		state.SetRecent(resp.Num)
	case respparser.KindFlags:
		state.SetPermanentFlags(resp.Flags)
	case respparser.KindStatus:
		if resp.Status == nil || resp.Status.Code == "" {
			return
		}
		arg, _ := resp.Status.CodeArg.(string)
		n, err := strconv.ParseUint(strings.TrimSpace(arg), 10, 64)
		if err != nil {
			return
		}
		switch resp.Status.Code {
		case imap.ResponseCodeUIDValidity:
			state.SetUIDValidity(uint32(n))
		case imap.ResponseCodeUIDNext:
			state.SetUIDNext(imap.UID(n))
		case imap.ResponseCodeHighestModSeq:
			state.SetHighestModSeq(n)
		}
	}
}

// UIDSearchAll implements syncengine.Session.
func (c *Conn) UIDSearchAll(ctx context.Context) ([]imap.UID, error) {
	return c.uidSearch(ctx, "ALL")
}

// UIDSearchSince implements syncengine.Session: UID SEARCH UID n:*.
func (c *Conn) UIDSearchSince(ctx context.Context, sinceUID imap.UID) ([]imap.UID, error) {
	return c.uidSearch(ctx, fmt.Sprintf("UID %d:*", sinceUID))
}

func (c *Conn) uidSearch(ctx context.Context, criteria string) ([]imap.UID, error) {
	var uids []imap.UID
	t := &commandTask{conn: c, line: "UID SEARCH " + criteria, collect: func(resp *respparser.Response) {
		if resp.Kind == respparser.KindSearch {
			for _, n := range resp.Search {
				uids = append(uids, imap.UID(n))
			}
		}
	}}
	h := c.Scheduler().Enqueue(ctx, t)
	if err := h.Wait(ctx); err != nil {
		return nil, err
	}
	return uids, nil
}

// FetchFlags implements syncengine.Session: FETCH 1:count (FLAGS).
func (c *Conn) FetchFlags(ctx context.Context, count uint32) (map[uint32][]imap.Flag, error) {
	result := make(map[uint32][]imap.Flag)
	if count == 0 {
		return result, nil
	}
	t := &commandTask{conn: c, line: fmt.Sprintf("FETCH 1:%d (FLAGS)", count), collect: func(resp *respparser.Response) {
		if resp.Kind == respparser.KindFetch && resp.Fetch != nil {
			result[resp.Num] = resp.Fetch.Flags
		}
	}}
	h := c.Scheduler().Enqueue(ctx, t)
	if err := h.Wait(ctx); err != nil {
		return nil, err
	}
	return result, nil
}

// Idle issues IDLE and blocks until ctx is canceled, at which point it
// sends DONE and waits for the tagged OK.
func (c *Conn) Idle(ctx context.Context) error {
	t := &commandTask{conn: c, line: "IDLE"}
	h := c.Scheduler().Enqueue(ctx, t)
	<-ctx.Done()
	if err := c.enc.RawString("DONE").CRLF().Flush(); err != nil {
		return err
	}
	return h.Wait(context.Background())
}

func quoteMailbox(name string) string {
	return `"` + strings.ReplaceAll(strings.ReplaceAll(name, `\`, `\\`), `"`, `\"`) + `"`
}

// mailboxSession adapts Conn to task.MailboxSession, whose Select needs
// only an error since KeepMailboxOpen doesn't consume the SyncState
// itself (syncengine.Engine is the caller that wants the full state).
type mailboxSession struct{ conn *Conn }

// AsMailboxSession returns the task.MailboxSession view of this connection.
func (c *Conn) AsMailboxSession() task.MailboxSession { return mailboxSession{conn: c} }

func (m mailboxSession) Select(ctx context.Context, mailbox string) error {
	_, err := m.conn.Select(ctx, mailbox)
	return err
}

func (m mailboxSession) Idle(ctx context.Context) error { return m.conn.Idle(ctx) }

func (m mailboxSession) Close(ctx context.Context) error {
	t := &commandTask{conn: m.conn, line: "CLOSE"}
	h := m.conn.Scheduler().Enqueue(ctx, t)
	return h.Wait(ctx)
}

var _ task.MailboxSession = mailboxSession{}
