package host

import "sync"

// TxBackend is the engine specific part of a transaction driven by a Runner.
// All methods are called on the runner goroutine.
type TxBackend interface {
	// Begin is called before the first request is executed. Engines acquire
	// locks or open their native transaction here.
	Begin() error
	// Commit makes the writes of the transaction durable and visible.
	Commit() error
	// Rollback discards the writes of the transaction and releases it.
	Rollback()
}

type runnerState int

const (
	stateActive runnerState = iota
	stateCommitting
	stateAborting
	stateFinished
)

type task struct {
	req *Request
	fn  func() (any, error)
}

// Runner executes the requests of one transaction in submission order on a
// dedicated goroutine and finishes the transaction with a commit or an abort.
// It is shared by the engines that have no event loop of their own.
type Runner struct {
	backend  TxBackend
	onFinish func(err error)

	mu    sync.Mutex
	queue []task
	state runnerState
	wake  chan struct{}

	done chan struct{}
	err  error
}

// NewRunner starts the runner goroutine. onFinish (optional) is called once
// with the final outcome, before Done is closed.
func NewRunner(backend TxBackend, onFinish func(err error)) *Runner {
	r := &Runner{
		backend:  backend,
		onFinish: onFinish,
		wake:     make(chan struct{}, 1),
		done:     make(chan struct{}),
	}
	go r.run()
	return r
}

// Submit queues fn for execution. The returned request settles with fn's
// outcome, or with an error if the transaction is no longer active.
func (r *Runner) Submit(fn func() (any, error)) *Request {
	req := NewRequest()
	r.mu.Lock()
	if r.state != stateActive {
		r.mu.Unlock()
		req.Reject(NewError(NameTransactionInactive, "the transaction has finished or is finishing"))
		return req
	}
	r.queue = append(r.queue, task{req: req, fn: fn})
	r.mu.Unlock()
	r.signal()
	return req
}

// Call submits fn and blocks until it has been executed.
func (r *Runner) Call(fn func() (any, error)) (any, error) {
	return r.Submit(fn).Result()
}

// Commit requests a commit after the queued requests have been executed.
func (r *Runner) Commit() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.state != stateActive {
		return NewError(NameInvalidState, "the transaction is not active")
	}
	r.state = stateCommitting
	r.signal()
	return nil
}

// Abort requests a rollback. Queued requests are rejected with an AbortError.
func (r *Runner) Abort() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.state == stateFinished || r.state == stateAborting {
		return NewError(NameInvalidState, "the transaction has already finished")
	}
	r.state = stateAborting
	r.signal()
	return nil
}

// Done is closed when the transaction has finished.
func (r *Runner) Done() <-chan struct{} {
	return r.done
}

// Err returns the outcome of the transaction once Done is closed.
func (r *Runner) Err() error {
	<-r.done
	return r.err
}

func (r *Runner) signal() {
	select {
	case r.wake <- struct{}{}:
	default:
	}
}

func (r *Runner) run() {
	begun := false
	for {
		r.mu.Lock()
		switch {
		case r.state == stateAborting:
			pending := r.queue
			r.queue = nil
			r.mu.Unlock()
			abortErr := NewError(NameAbort, "the transaction was aborted")
			for _, t := range pending {
				t.req.Reject(abortErr)
			}
			if begun {
				r.backend.Rollback()
			}
			r.finish(abortErr)
			return

		case len(r.queue) > 0:
			t := r.queue[0]
			r.queue = r.queue[1:]
			r.mu.Unlock()
			if !begun {
				if err := r.backend.Begin(); err != nil {
					r.fail(t, err)
					return
				}
				begun = true
			}
			t.req.settle(r.execute(t.fn))

		case r.state == stateCommitting:
			r.mu.Unlock()
			var err error
			if begun {
				if err = r.backend.Commit(); err != nil {
					err = Wrap(NameAbort, err, "commit failed")
				}
			}
			r.finish(err)
			return

		default:
			r.mu.Unlock()
			<-r.wake
		}
	}
}

// fail ends a transaction whose backend could not begin.
func (r *Runner) fail(first task, err error) {
	r.mu.Lock()
	pending := r.queue
	r.queue = nil
	r.state = stateAborting
	r.mu.Unlock()

	abortErr := Wrap(NameAbort, err, "the transaction could not be started")
	first.req.Reject(abortErr)
	for _, t := range pending {
		t.req.Reject(abortErr)
	}
	r.finish(abortErr)
}

func (r *Runner) finish(err error) {
	r.mu.Lock()
	r.state = stateFinished
	r.mu.Unlock()
	r.err = err
	if r.onFinish != nil {
		r.onFinish(err)
	}
	close(r.done)
}

// execute runs fn and converts a panic into an UnknownError.
func (r *Runner) execute(fn func() (any, error)) (result any, err error) {
	defer func() {
		if p := recover(); p != nil {
			result, err = nil, NewError(NameUnknown, "request panicked: %v", p)
		}
	}()
	return fn()
}
