package server

import (
	"errors"
	"fmt"
	"sync"
)

var errStopped = errors.New("server: worker stopped")

// workRequest represents a unit of work to be executed on the worker
// goroutine.
type workRequest struct {
	fn   func(*Workspace) any
	done chan workResult
}

// workResult holds the return value from a workspace operation.
type workResult struct {
	value any
	err   error
}

// Worker serializes all workspace access through a single goroutine.
// LSP handlers run concurrently; the analysis cache is only touched here.
type Worker struct {
	ws       *Workspace
	requests chan workRequest
	quit     chan struct{}
	stopOnce sync.Once
}

// NewWorker creates a Worker owning ws and starts the processing goroutine.
func NewWorker(ws *Workspace) *Worker {
	w := &Worker{
		ws:       ws,
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
			req.done <- w.execute(req.fn)
		case <-w.quit:
			return
		}
	}
}

// execute runs a function on the workspace, recovering from panics.
func (w *Worker) execute(fn func(*Workspace) any) (result workResult) {
	defer func() {
		if r := recover(); r != nil {
			result.err = fmt.Errorf("%v", r)
		}
	}()
	result.value = fn(w.ws)
	return result
}

// Do submits a function for execution on the worker goroutine and blocks
// until it completes. Returns the result and any error (including panics).
// Do fails once the worker is stopped.
func (w *Worker) Do(fn func(*Workspace) any) (any, error) {
	select {
	case <-w.quit:
		return nil, errStopped
	default:
	}
	req := workRequest{
		fn:   fn,
		done: make(chan workResult, 1),
	}
	select {
	case w.requests <- req:
	case <-w.quit:
		return nil, errStopped
	}
	select {
	case result := <-req.done:
		return result.value, result.err
	case <-w.quit:
		return nil, errStopped
	}
}

// Stop shuts down the worker goroutine. It is safe to call more than once.
func (w *Worker) Stop() {
	w.stopOnce.Do(func() { close(w.quit) })
}
