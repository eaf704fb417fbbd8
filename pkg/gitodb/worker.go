package gitodb

import "runtime"

// Request is a mutating operation dispatched to a Worker. Each request type
// is a closure over its own arguments and a response channel, mirroring the
// pkg/gitlib.Worker request/response shape but generalized to a
// single func(*Handle) error slot, since gitodb's mutating surface (commit,
// tag, fetch) shares nothing request-specific beyond running against the
// handle, serialized.
type Request struct {
	Op       func(h *Handle) (any, error)
	Response chan<- Result
}

// Result is a Request's outcome.
type Result struct {
	Value any
	Err   error
}

// Worker serializes all mutating operations against a real Handle onto a
// single OS thread, satisfying libgit2's non-reentrancy requirements
//.
type Worker struct {
	handle   *Handle
	requests chan Request
	done     chan struct{}
}

// NewWorker creates a Worker bound to handle. Start must be called before
// submitting requests.
func NewWorker(handle *Handle) *Worker {
	return &Worker{
		handle:   handle,
		requests: make(chan Request, 64),
		done:     make(chan struct{}),
	}
}

// Start runs the worker loop on a locked OS thread.
func (w *Worker) Start() {
	go func() {
		runtime.LockOSThread()
		defer runtime.UnlockOSThread()
		defer close(w.done)

		for req := range w.requests {
			value, err := req.Op(w.handle)
			req.Response <- Result{Value: value, Err: err}
		}
	}()
}

// Shutdown closes the request channel and waits for the worker to drain.
func (w *Worker) Shutdown() {
	close(w.requests)
	<-w.done
}

// Submit dispatches op to the worker and blocks for its result.
func (w *Worker) Submit(op func(h *Handle) (any, error)) (any, error) {
	response := make(chan Result, 1)

	w.requests <- Request{Op: op, Response: response}

	result := <-response

	return result.Value, result.Err
}
