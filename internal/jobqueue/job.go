package jobqueue

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"

	"github.com/google/uuid"
)

// ErrCancelled is the fault recorded on a job that was cancelled before it finished.
var ErrCancelled = errors.New("job cancelled")

// Status is the lifecycle state of a job.
type Status int32

const (
	Pending Status = iota
	Running
	Finished
	Faulted
)

func (s Status) String() string {
	switch s {
	case Pending:
		return "pending"
	case Running:
		return "running"
	case Finished:
		return "finished"
	case Faulted:
		return "faulted"
	default:
		return fmt.Sprintf("status(%d)", int32(s))
	}
}

// Terminal reports whether no further steps will run.
func (s Status) Terminal() bool {
	return s == Finished || s == Faulted
}

// Work is a unit of cooperative work. Step performs one small slice of it
// and reports whether the work is complete. A step must keep itself well
// under the queue's per-tick budget; the queue never interrupts a step.
type Work interface {
	Step(ctx context.Context) (done bool, err error)
}

// Waiter is implemented by work that idles between steps. When a step
// returns not done and Waiting reports true, Process ends for this call.
type Waiter interface {
	Waiting() bool
}

// WorkFunc adapts a function to Work.
type WorkFunc func(ctx context.Context) (bool, error)

// Step calls f.
func (f WorkFunc) Step(ctx context.Context) (bool, error) {
	return f(ctx)
}

// PanicError wraps a value recovered from a panicking step.
type PanicError struct {
	Value any
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("job step panicked: %v", e.Value)
}

// Job is a queue entry. It owns its cancel flag; status transitions are
// monotonic towards Finished or Faulted.
type Job struct {
	ID   uuid.UUID
	Work Work

	status    atomic.Int32
	cancelled atomic.Bool
	err       error
	steps     int
}

// NewJob wraps w in a pending job.
func NewJob(w Work) *Job {
	return &Job{
		ID:   uuid.New(),
		Work: w,
	}
}

// Status returns the current status.
func (j *Job) Status() Status {
	return Status(j.status.Load())
}

// Err returns the fault of a Faulted job, nil otherwise.
func (j *Job) Err() error {
	if j.Status() != Faulted {
		return nil
	}
	return j.err
}

// Steps returns how many steps have run so far.
func (j *Job) Steps() int {
	return j.steps
}

// Cancelled reports whether Cancel took effect.
func (j *Job) Cancelled() bool {
	return j.cancelled.Load()
}

// Cancel stops the job at its next step boundary. A job that already
// reached a terminal status is left untouched.
func (j *Job) Cancel() {
	for {
		cur := j.status.Load()
		if Status(cur).Terminal() {
			return
		}
		if j.status.CompareAndSwap(cur, int32(Faulted)) {
			j.err = ErrCancelled
			j.cancelled.Store(true)
			return
		}
	}
}

func (j *Job) start() bool {
	return j.status.CompareAndSwap(int32(Pending), int32(Running)) || j.Status() == Running
}

func (j *Job) finish() {
	j.status.CompareAndSwap(int32(Running), int32(Finished))
}

func (j *Job) fault(err error) {
	if j.status.CompareAndSwap(int32(Running), int32(Faulted)) {
		j.err = err
	}
}

// step runs one unit of work, converting a panic into a fault.
func (j *Job) step(ctx context.Context) (done bool, err error) {
	defer func() {
		if r := recover(); r != nil {
			done, err = false, &PanicError{Value: r}
		}
	}()
	j.steps++
	return j.Work.Step(ctx)
}
