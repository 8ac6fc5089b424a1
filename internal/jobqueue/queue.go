// Package jobqueue runs cooperative jobs on the simulation goroutine without
// holding it for more than a bounded slice of time per tick.
package jobqueue

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// ErrShutdown is returned by Enqueue once the queue has been shut down.
var ErrShutdown = errors.New("job queue shut down")

// Option configures a Queue.
type Option func(*Queue)

// WithClock replaces the wall clock used to measure the per-tick budget.
func WithClock(now func() time.Time) Option {
	return func(q *Queue) {
		q.now = now
	}
}

// WithContext sets the context handed to every step.
func WithContext(ctx context.Context) Option {
	return func(q *Queue) {
		q.ctx = ctx
	}
}

// Queue is a FIFO of jobs serviced by Process. It is not safe for
// concurrent use; the owner calls every method from the tick goroutine.
type Queue struct {
	jobs   []*Job
	length atomic.Int64 // len(jobs) for the metric reader
	closed bool
	now    func() time.Time
	ctx    context.Context

	// OTEL metrics
	steps    metric.Int64Counter
	outcomes metric.Int64Counter
	size     metric.Int64ObservableGauge
	reg      metric.Registration
}

// New creates an empty queue. Metrics go to the global OTel meter
// (no-op if not configured).
func New(opts ...Option) (*Queue, error) {
	q := &Queue{
		jobs: make([]*Job, 0),
		now:  time.Now,
		ctx:  context.Background(),
	}
	for _, opt := range opts {
		opt(q)
	}

	m := meter()

	var err error

	q.steps, err = m.Int64Counter(
		"jobqueue.steps",
		metric.WithDescription("Total job steps executed"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating steps counter: %w", err)
	}

	q.outcomes, err = m.Int64Counter(
		"jobqueue.jobs.completed",
		metric.WithDescription("Jobs leaving the queue, by terminal status"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating outcome counter: %w", err)
	}

	q.size, err = m.Int64ObservableGauge(
		"jobqueue.size",
		metric.WithDescription("Jobs waiting in the queue"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating size gauge: %w", err)
	}

	q.reg, err = m.RegisterCallback(
		func(ctx context.Context, o metric.Observer) error {
			o.ObserveInt64(q.size, q.length.Load())
			return nil
		},
		q.size,
	)
	if err != nil {
		return nil, fmt.Errorf("registering size callback: %w", err)
	}

	return q, nil
}

// Enqueue appends a job. It is a no-op returning ErrShutdown after Shutdown.
func (q *Queue) Enqueue(j *Job) error {
	if q.closed {
		return ErrShutdown
	}
	q.jobs = append(q.jobs, j)
	q.length.Store(int64(len(q.jobs)))
	return nil
}

// Len returns the number of queued jobs, including cancelled ones not yet dropped.
func (q *Queue) Len() int {
	return len(q.jobs)
}

// Process runs queued jobs in FIFO order, one step at a time, until the
// budget is spent or the queue is empty. The job at the head keeps the
// queue until it finishes or faults; if the budget runs out first it
// resumes on the next call. Returns the number of steps executed.
func (q *Queue) Process(budget time.Duration) int {
	start := q.now()
	steps := 0

	for len(q.jobs) > 0 {
		if q.now().Sub(start) >= budget {
			break
		}

		j := q.jobs[0]

		// cancelled or reaped by someone else: drop without running
		if j.Status().Terminal() {
			q.pop(j)
			continue
		}

		j.start()
		done, err := j.step(q.ctx)
		steps++
		q.steps.Add(q.ctx, 1)

		switch {
		case err != nil:
			j.fault(err)
			q.pop(j)
		case done:
			j.finish()
			q.pop(j)
		case j.Status().Terminal():
			// cancelled from inside its own step
			q.pop(j)
		default:
			if w, ok := j.Work.(Waiter); ok && w.Waiting() {
				return steps
			}
		}
	}

	return steps
}

// Shutdown cancels every queued job and makes later Enqueue calls no-ops.
func (q *Queue) Shutdown() {
	q.closed = true
	for _, j := range q.jobs {
		j.Cancel()
	}
	q.jobs = q.jobs[:0]
	q.length.Store(0)
	if q.reg != nil {
		_ = q.reg.Unregister()
	}
}

func (q *Queue) pop(j *Job) {
	q.jobs[0] = nil
	q.jobs = q.jobs[1:]
	q.length.Store(int64(len(q.jobs)))
	q.outcomes.Add(q.ctx, 1, metric.WithAttributes(attribute.String("status", j.Status().String())))
}
