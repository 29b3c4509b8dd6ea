package server

import (
	"fmt"

	"github.com/TheBB/Paltry/jit"
)

// workRequest represents a unit of work to be executed on the session goroutine.
type workRequest struct {
	fn   func(*jit.Session) interface{}
	done chan workResult
}

// workResult holds the return value from a session operation.
type workResult struct {
	value interface{}
	err   error
}

// Worker serializes all session access through a single goroutine.
// A Paltry session is single-threaded; all RPC and LSP handlers
// must go through the worker.
type Worker struct {
	session  *jit.Session
	requests chan workRequest
	quit     chan struct{}
}

// NewWorker creates a Worker and starts the processing goroutine.
func NewWorker(s *jit.Session) *Worker {
	w := &Worker{
		session:  s,
		requests: make(chan workRequest, 64),
		quit:     make(chan struct{}),
	}
	go w.loop()
	return w
}

// loop processes requests sequentially on a dedicated goroutine.
func (w *Worker) loop() {
	for {
		select {
		case req := <-w.requests:
			result := w.execute(req.fn)
			req.done <- result
		case <-w.quit:
			return
		}
	}
}

// execute runs a function on the session, recovering from panics.
func (w *Worker) execute(fn func(*jit.Session) interface{}) workResult {
	var result workResult
	func() {
		defer func() {
			if r := recover(); r != nil {
				result.err = fmt.Errorf("%v", r)
			}
		}()
		result.value = fn(w.session)
	}()
	return result
}

// Do submits a function for execution on the session goroutine and blocks
// until it completes. Returns the result and any error (including panics).
func (w *Worker) Do(fn func(*jit.Session) interface{}) (interface{}, error) {
	req := workRequest{
		fn:   fn,
		done: make(chan workResult, 1),
	}
	w.requests <- req
	result := <-req.done
	return result.value, result.err
}

// Stop shuts down the worker goroutine.
func (w *Worker) Stop() {
	close(w.quit)
}

// Session returns the underlying session.
func (w *Worker) Session() *jit.Session {
	return w.session
}
