package task

import (
	"context"
	"errors"
	"testing"
	"time"
)

type fakeTask struct {
	name string
	fn   func(ctx context.Context, tag string) error
}

func (f *fakeTask) Name() string { return f.name }
func (f *fakeTask) Run(ctx context.Context, tag string) error { return f.fn(ctx, tag) }

func TestSchedulerEnqueueSuccess(t *testing.T) {
	s := NewScheduler()
	h := s.Enqueue(context.Background(), &fakeTask{name: "NOOP", fn: func(ctx context.Context, tag string) error {
		if tag == "" {
			t.Fatal("expected non-empty tag")
		}
		return nil
	}})
	if err := h.Wait(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if h.State() != StateDone {
		t.Fatalf("got state %v", h.State())
	}
}

func TestSchedulerEnqueueFailure(t *testing.T) {
	s := NewScheduler()
	wantErr := errors.New("boom")
	h := s.Enqueue(context.Background(), &fakeTask{name: "FETCH", fn: func(ctx context.Context, tag string) error {
		return wantErr
	}})
	err := h.Wait(context.Background())
	if !errors.Is(err, wantErr) {
		t.Fatalf("got %v", err)
	}
	if h.State() != StateFailed {
		t.Fatalf("got state %v", h.State())
	}
}

func TestSchedulerAbortPending(t *testing.T) {
	s := NewScheduler()
	started := make(chan struct{})
	h := s.Enqueue(context.Background(), &fakeTask{name: "IDLE", fn: func(ctx context.Context, tag string) error {
		close(started)
		<-ctx.Done()
		return ctx.Err()
	}})
	<-started
	time.Sleep(10 * time.Millisecond)
	s.Abort(errors.New("connection lost"))
	if h.State() != StateAborted && h.State() != StateFailed {
		t.Fatalf("got state %v", h.State())
	}
}

type recordingObserver struct {
	started, completed, failed []string
}

func (r *recordingObserver) TaskStarted(kind string)   { r.started = append(r.started, kind) }
func (r *recordingObserver) TaskCompleted(kind string) { r.completed = append(r.completed, kind) }
func (r *recordingObserver) TaskFailed(kind string)    { r.failed = append(r.failed, kind) }

func TestSchedulerReportsToObserver(t *testing.T) {
	obs := &recordingObserver{}
	s := NewSchedulerWithObserver(obs)

	h1 := s.Enqueue(context.Background(), &fakeTask{name: "SELECT", fn: func(ctx context.Context, tag string) error { return nil }})
	if err := h1.Wait(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	wantErr := errors.New("boom")
	h2 := s.Enqueue(context.Background(), &fakeTask{name: "FETCH", fn: func(ctx context.Context, tag string) error { return wantErr }})
	_ = h2.Wait(context.Background())

	if len(obs.started) != 2 || obs.started[0] != "SELECT" || obs.started[1] != "FETCH" {
		t.Fatalf("got started=%v", obs.started)
	}
	if len(obs.completed) != 1 || obs.completed[0] != "SELECT" {
		t.Fatalf("got completed=%v", obs.completed)
	}
	if len(obs.failed) != 1 || obs.failed[0] != "FETCH" {
		t.Fatalf("got failed=%v", obs.failed)
	}
}

func TestTagGeneratorUnique(t *testing.T) {
	g := NewTagGenerator()
	seen := map[string]bool{}
	for i := 0; i < 100; i++ {
		tag := g.Next()
		if seen[tag] {
			t.Fatalf("duplicate tag %q", tag)
		}
		seen[tag] = true
	}
}
