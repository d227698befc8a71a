package host

import (
	"context"
	"sync"
)

// Request is the completion signal of a single asynchronous host operation.
// It is resolved or rejected exactly once; later attempts are ignored.
type Request struct {
	done   chan struct{}
	once   sync.Once
	result any
	err    error
}

// NewRequest creates a pending request.
func NewRequest() *Request {
	return &Request{done: make(chan struct{})}
}

// Rejected returns a request that already failed with err.
func Rejected(err error) *Request {
	r := NewRequest()
	r.Reject(err)
	return r
}

// Resolve settles the request successfully. It reports whether this call
// settled the request.
func (r *Request) Resolve(result any) bool {
	return r.settle(result, nil)
}

// Reject settles the request with err. It reports whether this call settled
// the request.
func (r *Request) Reject(err error) bool {
	return r.settle(nil, err)
}

func (r *Request) settle(result any, err error) (settled bool) {
	r.once.Do(func() {
		r.result = result
		r.err = err
		settled = true
		close(r.done)
	})
	return settled
}

// Done is closed once the request is settled.
func (r *Request) Done() <-chan struct{} {
	return r.done
}

// Result blocks until the request is settled and returns its outcome.
func (r *Request) Result() (any, error) {
	<-r.done
	return r.result, r.err
}

// Wait is like Result but gives up when ctx is done.
func (r *Request) Wait(ctx context.Context) (any, error) {
	select {
	case <-r.done:
		return r.result, r.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}
