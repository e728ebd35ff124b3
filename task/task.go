// Package task implements the cooperative, single-threaded-per-connection
// scheduler that trojita calls "ImapTask": every command in flight on a
// connection is modeled as one Task with its own tag. Tasks carry no
// dependencies on one another, and the scheduler starts every enqueued
// task at once without a concurrency limit. This package salvages the tag-generation and
// pending-command bookkeeping a single-purpose client used to implement
// inline, and turns it into a standalone reusable scheduler.
package task

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
)

// State is a task's position in its lifecycle.
type State int

const (
	StateQueued State = iota
	StateRunning
	StateDone
	StateFailed
	StateAborted
)

func (s State) String() string {
	switch s {
	case StateQueued:
		return "queued"
	case StateRunning:
		return "running"
	case StateDone:
		return "done"
	case StateFailed:
		return "failed"
	case StateAborted:
		return "aborted"
	default:
		return fmt.Sprintf("unknown(%d)", int(s))
	}
}

// Task is one unit of scheduled work. Run receives a Tag already reserved
// by the scheduler and must use it as the IMAP command tag it sends; the
// scheduler correlates the eventual tagged response back to this Task.
type Task interface {
	// Name identifies the task kind for logging (e.g. "SELECT", "FETCH").
	Name() string
	// Run executes the task to completion or until ctx is canceled.
	Run(ctx context.Context, tag string) error
}

// Handle is returned by Scheduler.Enqueue and lets a caller wait for
// completion and read the task's state. Scheduler.Abort aborts every
// pending handle at once; a single handle cannot be aborted on its own.
type Handle struct {
	ID    string
	Tag   string
	task  Task
	done  chan struct{}
	err   error
	state State
	mu    sync.Mutex
}

// State returns the handle's current lifecycle state.
func (h *Handle) State() State {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.state
}

// Wait blocks until the task finishes, returning its terminal error (nil on success).
func (h *Handle) Wait(ctx context.Context) error {
	select {
	case <-h.done:
		h.mu.Lock()
		defer h.mu.Unlock()
		return h.err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (h *Handle) finish(state State, err error) {
	h.mu.Lock()
	h.state = state
	h.err = err
	h.mu.Unlock()
	close(h.done)
}

// TagGenerator produces unique, monotonically distinguishable command tags.
// trojita generates short sequential tags (y1, y2, ...); this uses a
// counter prefixed with a per-connection random token so tags from
// reconnects never collide with stale in-flight responses.
type TagGenerator struct {
	mu     sync.Mutex
	prefix string
	next   int
}

// NewTagGenerator creates a generator scoped to one connection lifetime.
func NewTagGenerator() *TagGenerator {
	return &TagGenerator{prefix: uuid.NewString()[:8]}
}

// Next returns the next tag, e.g. "a1b2c3d4.1".
func (g *TagGenerator) Next() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.next++
	return fmt.Sprintf("%s.%d", g.prefix, g.next)
}

// Observer receives lifecycle events for tasks run by a Scheduler. The
// metrics package implements this to feed Prometheus collectors without
// this package needing to import anything Prometheus-specific.
type Observer interface {
	TaskStarted(kind string)
	TaskCompleted(kind string)
	TaskFailed(kind string)
}

type noopObserver struct{}

func (noopObserver) TaskStarted(string)   {}
func (noopObserver) TaskCompleted(string) {}
func (noopObserver) TaskFailed(string)    {}

// Scheduler runs tasks against a single IMAP connection. It reserves a tag
// for each task and tracks pending tasks by tag. It does not limit how many
// tasks are active at once: every enqueued task runs in its own goroutine
// as soon as it is enqueued.
type Scheduler struct {
	tags     *TagGenerator
	observer Observer

	mu      sync.Mutex
	pending map[string]*Handle // tag -> handle, for correlating tagged responses
	order   []*Handle
}

// NewScheduler creates a Scheduler using its own TagGenerator and no metrics observer.
func NewScheduler() *Scheduler {
	return &Scheduler{tags: NewTagGenerator(), pending: make(map[string]*Handle), observer: noopObserver{}}
}

// NewSchedulerWithObserver creates a Scheduler that reports task lifecycle
// events to obs, e.g. a *metrics.Registry.
func NewSchedulerWithObserver(obs Observer) *Scheduler {
	s := NewScheduler()
	s.observer = obs
	return s
}

// Enqueue reserves a tag for t and starts it in its own goroutine. The
// handle finishes when t.Run returns; until then Lookup(h.Tag) finds it,
// which is how the connection read loop checks that a tagged response
// belongs to a pending task.
func (s *Scheduler) Enqueue(ctx context.Context, t Task) *Handle {
	h := &Handle{ID: uuid.NewString(), Tag: s.tags.Next(), task: t, done: make(chan struct{}), state: StateQueued}

	s.mu.Lock()
	s.pending[h.Tag] = h
	s.order = append(s.order, h)
	s.mu.Unlock()

	s.observer.TaskStarted(t.Name())

	go func() {
		h.mu.Lock()
		h.state = StateRunning
		h.mu.Unlock()
		err := t.Run(ctx, h.Tag)
		if err != nil {
			s.observer.TaskFailed(t.Name())
			h.finish(StateFailed, err)
		} else {
			s.observer.TaskCompleted(t.Name())
			h.finish(StateDone, nil)
		}
		s.mu.Lock()
		delete(s.pending, h.Tag)
		s.mu.Unlock()
	}()

	return h
}

// Lookup returns the Handle awaiting the tagged response with the given tag.
func (s *Scheduler) Lookup(tag string) (*Handle, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	h, ok := s.pending[tag]
	return h, ok
}

// Abort marks every still-pending task aborted, used when the connection
// drops and no tagged response will ever arrive for them.
func (s *Scheduler) Abort(err error) {
	s.mu.Lock()
	pending := make([]*Handle, 0, len(s.pending))
	for _, h := range s.pending {
		pending = append(pending, h)
	}
	s.pending = make(map[string]*Handle)
	s.mu.Unlock()

	for _, h := range pending {
		select {
		case <-h.done:
		default:
			h.finish(StateAborted, err)
		}
	}
}

// PendingCount returns the number of tasks awaiting a tagged response.
func (s *Scheduler) PendingCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.pending)
}
