package tasks

import (
	"context"
	"sync"
	"time"
)

// Task is one running generation on the gateway. The cancel func aborts the
// upstream model request; RequestID ties the task back to the client-side
// reply slot it is filling.
type Task struct {
	ID        string
	RequestID string
	StartedAt time.Time
	cancel    context.CancelFunc
}

// Registry is a thread-safe, in-memory table of running tasks. State is
// ephemeral, it lives only for the duration of the gateway process.
type Registry struct {
	mu    sync.Mutex
	tasks map[string]*Task
}

func NewRegistry() *Registry {
	return &Registry{
		tasks: make(map[string]*Task),
	}
}

// Register adds a running task. The chat handler calls this before the first
// token is streamed, so a cancel request can always find the task.
func (r *Registry) Register(taskID, requestID string, cancel context.CancelFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tasks[taskID] = &Task{
		ID:        taskID,
		RequestID: requestID,
		StartedAt: time.Now(),
		cancel:    cancel,
	}
}

// Cancel aborts the task's upstream request and removes it. Returns false
// when the task is unknown, which is expected for stale cancels of tasks
// that already finished.
func (r *Registry) Cancel(taskID string) bool {
	r.mu.Lock()
	task, ok := r.tasks[taskID]
	if ok {
		delete(r.tasks, taskID)
	}
	r.mu.Unlock()

	if !ok {
		return false
	}
	task.cancel()
	return true
}

// Done removes a task that finished on its own.
func (r *Registry) Done(taskID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.tasks, taskID)
}

// Get returns a copy of the task, so callers never race with Register/Cancel.
func (r *Registry) Get(taskID string) (Task, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	task, ok := r.tasks[taskID]
	if !ok {
		return Task{}, false
	}
	return *task, true
}

func (r *Registry) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.tasks)
}
