package host

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

type recordingBackend struct {
	mu        sync.Mutex
	events    []string
	beginErr  error
	commitErr error
}

func (b *recordingBackend) record(e string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.events = append(b.events, e)
}

func (b *recordingBackend) Events() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]string(nil), b.events...)
}

func (b *recordingBackend) Begin() error {
	b.record("begin")
	return b.beginErr
}

func (b *recordingBackend) Commit() error {
	b.record("commit")
	return b.commitErr
}

func (b *recordingBackend) Rollback() {
	b.record("rollback")
}

func TestRunnerOrder(t *testing.T) {
	backend := &recordingBackend{}
	var finished error = errors.New("unset")
	r := NewRunner(backend, func(err error) { finished = err })

	var reqs []*Request
	for i := 0; i < 50; i++ {
		i := i
		reqs = append(reqs, r.Submit(func() (any, error) {
			backend.record("task")
			return i, nil
		}))
	}
	if err := r.Commit(); err != nil {
		t.Fatalf("Commit failed: %v", err)
	}
	for i, req := range reqs {
		v, err := req.Result()
		if err != nil || v != i {
			t.Errorf("Expected result %d, got %v (%v)", i, v, err)
		}
	}
	if err := r.Err(); err != nil {
		t.Errorf("Expected a successful commit, got %v", err)
	}
	if finished != nil {
		t.Errorf("Expected onFinish to see the commit, got %v", finished)
	}
	events := backend.Events()
	if events[0] != "begin" || events[len(events)-1] != "commit" || len(events) != 52 {
		t.Errorf("Unexpected backend events %v", events)
	}

	if req := r.Submit(func() (any, error) { return nil, nil }); !IsName(awaitErr(t, req), NameTransactionInactive) {
		t.Errorf("Expected submit after commit to fail")
	}
	if err := r.Commit(); !IsName(err, NameInvalidState) {
		t.Errorf("Expected a second commit to fail, got %v", err)
	}
}

func TestRunnerAbort(t *testing.T) {
	backend := &recordingBackend{}
	r := NewRunner(backend, nil)

	release := make(chan struct{})
	first := r.Submit(func() (any, error) {
		<-release
		return "done", nil
	})
	second := r.Submit(func() (any, error) {
		t.Errorf("Queued request ran after abort")
		return nil, nil
	})

	// wait until the first request is executing
	deadline := time.Now().Add(time.Second)
	for len(backend.Events()) == 0 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	if err := r.Abort(); err != nil {
		t.Fatalf("Abort failed: %v", err)
	}
	close(release)

	if v, err := first.Result(); err != nil || v != "done" {
		t.Errorf("The executing request should complete, got %v (%v)", v, err)
	}
	if !IsName(awaitErr(t, second), NameAbort) {
		t.Errorf("Expected the queued request to be aborted")
	}
	if !IsName(r.Err(), NameAbort) {
		t.Errorf("Expected an AbortError outcome, got %v", r.Err())
	}
	if events := backend.Events(); events[len(events)-1] != "rollback" {
		t.Errorf("Expected a rollback, got %v", events)
	}
	if err := r.Abort(); !IsName(err, NameInvalidState) {
		t.Errorf("Expected a second abort to fail, got %v", err)
	}
}

func TestRunnerLazyBegin(t *testing.T) {
	backend := &recordingBackend{}
	r := NewRunner(backend, nil)
	_ = r.Commit()
	if err := r.Err(); err != nil {
		t.Errorf("Expected an empty transaction to commit, got %v", err)
	}
	if events := backend.Events(); len(events) != 0 {
		t.Errorf("Expected no backend calls for an empty transaction, got %v", events)
	}
}

func TestRunnerFailures(t *testing.T) {
	t.Run("Begin", func(t *testing.T) {
		backend := &recordingBackend{beginErr: errors.New("locked")}
		r := NewRunner(backend, nil)
		req := r.Submit(func() (any, error) { return nil, nil })
		if err := awaitErr(t, req); !IsName(err, NameAbort) || !errors.Is(err, backend.beginErr) {
			t.Errorf("Expected an AbortError wrapping the begin error, got %v", err)
		}
		if !IsName(r.Err(), NameAbort) {
			t.Errorf("Expected the transaction to abort, got %v", r.Err())
		}
	})

	t.Run("Commit", func(t *testing.T) {
		backend := &recordingBackend{commitErr: errors.New("disk full")}
		r := NewRunner(backend, nil)
		r.Submit(func() (any, error) { return nil, nil })
		_ = r.Commit()
		if err := r.Err(); !IsName(err, NameAbort) || !errors.Is(err, backend.commitErr) {
			t.Errorf("Expected an AbortError wrapping the commit error, got %v", err)
		}
	})

	t.Run("Panic", func(t *testing.T) {
		r := NewRunner(&recordingBackend{}, nil)
		req := r.Submit(func() (any, error) { panic("boom") })
		if !IsName(awaitErr(t, req), NameUnknown) {
			t.Errorf("Expected a panic to become an UnknownError")
		}
		_ = r.Commit()
		if err := r.Err(); err != nil {
			t.Errorf("A failed request must not abort the transaction, got %v", err)
		}
	})
}

func TestRequest(t *testing.T) {
	req := NewRequest()
	if !req.Resolve(1) {
		t.Errorf("Expected the first resolve to settle the request")
	}
	if req.Reject(errors.New("late")) || req.Resolve(2) {
		t.Errorf("A settled request must ignore later outcomes")
	}
	if v, err := req.Result(); v != 1 || err != nil {
		t.Errorf("Expected 1, got %v (%v)", v, err)
	}

	pending := NewRequest()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	if _, err := pending.Wait(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Expected Wait to give up, got %v", err)
	}

	if _, err := Rejected(ErrKeyExists).Result(); !errors.Is(err, ErrKeyExists) {
		t.Errorf("Expected a rejected request, got %v", err)
	}
}

func awaitErr(t *testing.T, req *Request) error {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_, err := req.Wait(ctx)
	if err == nil {
		t.Fatalf("Expected the request to fail")
	}
	return err
}
