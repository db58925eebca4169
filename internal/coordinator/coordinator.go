package coordinator

import (
	"errors"
	"sync"
)

// RequestID identifies one logical "assistant is composing a reply" unit of
// work, minted by the caller when the message slot is created.
type RequestID string

// Canceler issues a best-effort cancellation of a running backend task.
type Canceler interface {
	CancelTask(taskHandle string) error
}

// Notifier receives cancellation failures. *logger.Logger satisfies it.
type Notifier interface {
	Error(v ...interface{})
}

// ErrAlreadyTracked is returned by Start when the request id is still present
// in the table. Callers must mint fresh ids; reuse is a programming error.
var ErrAlreadyTracked = errors.New("coordinator: request id already tracked")

// record is the per-request bookkeeping kept between the handshake, push
// events, and user stop. taskHandle stays empty until the handshake resolves.
type record struct {
	taskHandle    string
	stopRequested bool
	errored       bool
}

// Coordinator tracks in-flight generation requests and keeps backend cleanup
// consistent no matter in which order the handshake, push events, and the
// user's stop arrive.
//
// Two pieces of state: a table of records keyed by request id, and a single
// active slot naming the request the user is currently waiting on. A record
// can outlive being active (mid-cleanup after the user moved on), which is
// what lets a new request start without waiting on network cancellation of
// the old one. Both change together under one mutex.
type Coordinator struct {
	mu      sync.Mutex
	records map[RequestID]*record
	active  RequestID

	canceler Canceler
	notifier Notifier
}

func New(canceler Canceler, notifier Notifier) *Coordinator {
	return &Coordinator{
		records:  make(map[RequestID]*record),
		canceler: canceler,
		notifier: notifier,
	}
}

// Start begins tracking a fresh request and makes it the active one.
func (c *Coordinator) Start(id RequestID) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.records[id]; ok {
		return ErrAlreadyTracked
	}
	c.records[id] = &record{}
	c.active = id
	return nil
}

// HandshakeComplete records the task handle the backend assigned to a
// request.
//
// For the active request this normally just stores the handle, making the
// request cancelable; but if a stop or a push error got there first, the
// request is torn down on the spot. For a request that is no longer active
// the handle arrived too late to matter: the record, if any remains, is torn
// down unconditionally so a superseded request never keeps consuming backend
// resources. Until this point there was nothing to cancel, since no handle
// was known.
func (c *Coordinator) HandshakeComplete(id RequestID, taskHandle string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	rec, ok := c.records[id]
	if !ok {
		return
	}
	rec.taskHandle = taskHandle

	if id == c.active {
		if rec.stopRequested || rec.errored {
			c.terminateLocked(id)
			c.active = ""
		}
		return
	}
	c.terminateLocked(id)
}

// Stop abandons the active request. It always returns with the active slot
// cleared; backend cleanup either happens now (handle known) or is deferred
// to HandshakeComplete via the stopRequested flag. The caller is never
// blocked on network latency of the cancellation.
func (c *Coordinator) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.active == "" {
		return
	}
	if rec, ok := c.records[c.active]; ok {
		if rec.taskHandle != "" {
			c.terminateLocked(c.active)
		} else {
			rec.stopRequested = true
		}
	}
	c.active = ""
}

// OnPushCanceled handles an out-of-band notification that the backend
// canceled the task for id. The backend already ended the task, so no
// cancellation call is ever issued from here. If the task handle is not yet
// known the record stays behind with the errored flag set, so a racing late
// handshake still removes it; if the handle is already known no further
// network action can be needed and the record is dropped on the spot. Stale
// ids are ignored.
func (c *Coordinator) OnPushCanceled(id RequestID) {
	c.pushEnded(id)
}

// OnPushStreamError handles an out-of-band notification that streaming for
// id failed. Same contract as OnPushCanceled.
func (c *Coordinator) OnPushStreamError(id RequestID) {
	c.pushEnded(id)
}

func (c *Coordinator) pushEnded(id RequestID) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if id != c.active {
		return
	}
	c.active = ""

	rec, ok := c.records[id]
	if !ok {
		return
	}
	if rec.taskHandle != "" {
		delete(c.records, id)
		return
	}
	rec.errored = true
}

// OnCompletionFinished handles the terminal success notification for a
// request that finished streaming normally. The record is dropped outright;
// the backend already considers the task done. Stale ids are ignored.
func (c *Coordinator) OnCompletionFinished(id RequestID) {
	c.completed(id)
}

// OnCompletionFailed handles the terminal failure notification. Same
// contract as OnCompletionFinished: nothing is left to cancel.
func (c *Coordinator) OnCompletionFailed(id RequestID) {
	c.completed(id)
}

func (c *Coordinator) completed(id RequestID) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if id != c.active {
		return
	}
	c.active = ""
	delete(c.records, id)
}

// Active reports the request the user is currently waiting on, if any.
func (c *Coordinator) Active() (RequestID, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.active, c.active != ""
}

// terminateLocked removes the record for id and, if a task handle was known,
// issues the cancellation on its own goroutine. The record is deleted before
// the network call so the id is immediately free and a duplicate call finds
// nothing to do. Cancellation is best-effort: failures are reported and
// otherwise dropped.
func (c *Coordinator) terminateLocked(id RequestID) {
	rec, ok := c.records[id]
	if !ok {
		return
	}
	delete(c.records, id)

	if rec.taskHandle == "" || c.canceler == nil {
		return
	}
	handle := rec.taskHandle
	go func() {
		if err := c.canceler.CancelTask(handle); err != nil && c.notifier != nil {
			c.notifier.Error("Failed to cancel task ", handle, ": ", err)
		}
	}()
}
