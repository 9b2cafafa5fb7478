package core

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// TaskStatus is the lifecycle state of a background task.
type TaskStatus string

const (
	TaskRunning   TaskStatus = "running"
	TaskCompleted TaskStatus = "completed"
	TaskError     TaskStatus = "error"
)

// Task is a snapshot of one background job.
type Task struct {
	ID          string     `json:"id"`
	Type        string     `json:"type"`
	Description string     `json:"description"`
	Status      TaskStatus `json:"status"`
	Progress    int        `json:"progress"`
	StartedAt   time.Time  `json:"started_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	Result      any        `json:"result,omitempty"`
	Error       string     `json:"error,omitempty"`
}

// TaskFunc does the work of a task. report updates the progress percentage.
type TaskFunc func(ctx context.Context, report func(percent int)) (any, error)

// TaskRegistry runs and tracks background tasks.
type TaskRegistry struct {
	now func() time.Time

	mu    sync.RWMutex
	tasks map[string]*taskState
	wg    sync.WaitGroup
}

type taskState struct {
	task Task
	done chan struct{}
}

// NewTaskRegistry returns an empty registry.
func NewTaskRegistry() *TaskRegistry {
	return &TaskRegistry{now: time.Now, tasks: make(map[string]*taskState)}
}

// Start runs fn in a new goroutine and returns the task id immediately.
// fn receives ctx detached from the caller's cancellation.
func (r *TaskRegistry) Start(ctx context.Context, typ, description string, fn TaskFunc) string {
	id := uuid.New().String()
	st := &taskState{
		task: Task{
			ID:          id,
			Type:        typ,
			Description: description,
			Status:      TaskRunning,
			StartedAt:   r.now(),
		},
		done: make(chan struct{}),
	}

	r.mu.Lock()
	r.tasks[id] = st
	r.mu.Unlock()

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		defer close(st.done)

		report := func(p int) {
			r.mu.Lock()
			st.task.Progress = min(max(p, 0), 100)
			r.mu.Unlock()
		}
		result, err := r.run(context.WithoutCancel(ctx), fn, report)

		r.mu.Lock()
		defer r.mu.Unlock()
		at := r.now()
		st.task.CompletedAt = &at
		if err != nil {
			st.task.Status = TaskError
			st.task.Error = err.Error()
			slog.Error("background task failed", "task_id", id, "type", typ, "error", err)
			return
		}
		st.task.Status = TaskCompleted
		st.task.Progress = 100
		st.task.Result = result
	}()
	return id
}

// run calls fn, turning a panic into an error.
func (r *TaskRegistry) run(ctx context.Context, fn TaskFunc, report func(int)) (result any, err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("task panicked: %v", p)
		}
	}()
	return fn(ctx, report)
}

// Get returns a snapshot of the task.
func (r *TaskRegistry) Get(id string) (Task, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	st, ok := r.tasks[id]
	if !ok {
		return Task{}, fmt.Errorf("%s: %w", id, ErrTaskNotFound)
	}
	return st.task, nil
}

// Wait blocks until the task finishes or ctx is done.
func (r *TaskRegistry) Wait(ctx context.Context, id string) (Task, error) {
	r.mu.RLock()
	st, ok := r.tasks[id]
	r.mu.RUnlock()
	if !ok {
		return Task{}, fmt.Errorf("%s: %w", id, ErrTaskNotFound)
	}
	select {
	case <-st.done:
		return r.Get(id)
	case <-ctx.Done():
		return Task{}, ctx.Err()
	}
}

// Recent returns up to n tasks, most recently started first.
func (r *TaskRegistry) Recent(n int) []Task {
	r.mu.RLock()
	out := make([]Task, 0, len(r.tasks))
	for _, st := range r.tasks {
		out = append(out, st.task)
	}
	r.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].StartedAt.After(out[j].StartedAt) })
	if n > 0 && len(out) > n {
		out = out[:n]
	}
	return out
}

// ActiveCount returns the number of running tasks.
func (r *TaskRegistry) ActiveCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	n := 0
	for _, st := range r.tasks {
		if st.task.Status == TaskRunning {
			n++
		}
	}
	return n
}

// Prune forgets finished tasks that completed more than age ago.
func (r *TaskRegistry) Prune(age time.Duration) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	cutoff := r.now().Add(-age)
	n := 0
	for id, st := range r.tasks {
		if st.task.CompletedAt != nil && st.task.CompletedAt.Before(cutoff) {
			delete(r.tasks, id)
			n++
		}
	}
	return n
}

// Drain waits for every running task or until ctx is done.
func (r *TaskRegistry) Drain(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
