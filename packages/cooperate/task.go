package cooperate

import (
	"errors"

	"go.uber.org/zap"

	"github.com/abdul-hamid-achik/formstream/packages/async"
)

// TaskState describes where a task is in its lifecycle
type TaskState int

const (
	TaskRunning TaskState = iota
	TaskDone
	TaskFailed
	TaskStopped
)

func (s TaskState) String() string {
	switch s {
	case TaskRunning:
		return "running"
	case TaskDone:
		return "done"
	case TaskFailed:
		return "failed"
	case TaskStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// Task is an iterator scheduled on a Cooperator.
type Task struct {
	id       uint64
	c        *Cooperator
	it       Iterator
	done     *async.Signal
	state    TaskState
	pauses   int
	waiting  bool
	stepping bool
}

// Done returns the signal resolved when the task completes. It resolves
// with nil on exhaustion, the step or wait error on failure, and
// ErrTaskStopped after Stop.
func (t *Task) Done() *async.Signal {
	return t.done
}

// State returns the current lifecycle state.
func (t *Task) State() TaskState {
	t.c.mu.Lock()
	defer t.c.mu.Unlock()
	return t.state
}

// Paused reports whether the task holds at least one pause.
func (t *Task) Paused() bool {
	t.c.mu.Lock()
	defer t.c.mu.Unlock()
	return t.pauses > 0
}

// Pause suspends the task before its next step. Pauses nest: each Pause
// needs a matching Resume.
func (t *Task) Pause() {
	t.c.mu.Lock()
	if t.state == TaskRunning {
		t.pauses++
	}
	t.c.mu.Unlock()
}

// Resume releases one pause. It is a no-op on a task that is not paused.
func (t *Task) Resume() {
	t.c.mu.Lock()
	if t.state == TaskRunning && t.pauses > 0 {
		t.pauses--
	}
	t.c.mu.Unlock()
	t.c.notify()
}

// Stop ends the task. Its Done signal resolves with ErrTaskStopped. Stop
// on a finished task is a no-op.
func (t *Task) Stop() {
	if !t.finish(TaskStopped) {
		return
	}
	t.c.logger.Debug("task stopped", zap.Uint64("task", t.id))
	t.done.Resolve(ErrTaskStopped)
}

func (t *Task) runnableLocked() bool {
	return t.state == TaskRunning && t.pauses == 0 && !t.waiting && !t.stepping
}

func (t *Task) finish(state TaskState) bool {
	t.c.mu.Lock()
	defer t.c.mu.Unlock()
	if t.state != TaskRunning {
		return false
	}
	t.state = state
	t.c.removeLocked(t)
	return true
}

func (t *Task) step() {
	wait, err := t.it.Next()

	t.c.mu.Lock()
	t.stepping = false
	if t.state != TaskRunning {
		t.c.mu.Unlock()
		return
	}
	if err == nil && wait != nil {
		t.waiting = true
	}
	t.c.mu.Unlock()

	switch {
	case errors.Is(err, ErrDone):
		if t.finish(TaskDone) {
			t.c.logger.Debug("task done", zap.Uint64("task", t.id))
			t.done.Resolve(nil)
		}
	case err != nil:
		t.fail(err)
	case wait != nil:
		wait.OnDone(t.waitDone)
	}
}

func (t *Task) waitDone(err error) {
	t.c.mu.Lock()
	t.waiting = false
	running := t.state == TaskRunning
	t.c.mu.Unlock()

	if !running {
		return
	}
	if err != nil {
		t.fail(err)
		return
	}
	t.c.notify()
}

func (t *Task) fail(err error) {
	if !t.finish(TaskFailed) {
		return
	}
	t.c.logger.Debug("task failed", zap.Uint64("task", t.id), zap.Error(err))
	t.done.Resolve(err)
}
