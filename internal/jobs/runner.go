package jobs

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"order-processing-service/pkg/logkey"
)

// Store is the persistence the runner needs. *Conf implements it.
type Store interface {
	ClaimDue(ctx context.Context, queue string) (*Job, error)
	MarkDone(ctx context.Context, jobID string) error
	Reschedule(ctx context.Context, job Job, runAt time.Time, lastError string) error
	MarkDead(ctx context.Context, job Job, lastError string) error
}

// AdminNotifier is the best-effort channel used when a job dead-letters.
// Its failure is swallowed: it must never start a second retry loop.
type AdminNotifier interface {
	Alert(ctx context.Context, title string, fields map[string]string) error
}

// Handler executes one job kind. OnDead runs once when the retry budget is
// exhausted and typically marks the owning entity failed; it may be nil.
type Handler struct {
	Run    func(ctx context.Context, job Job) error
	OnDead func(ctx context.Context, job Job, cause error) error
}

// Runner drains one queue lane: claim a due job, execute its handler,
// reschedule on transient failure, dead-letter on permanent failure.
type Runner struct {
	store    Store
	notifier AdminNotifier
	handlers map[string]Handler
	queue    string
	poll     time.Duration
	nowFunc  func() time.Time
}

func NewRunner(store Store, notifier AdminNotifier, queue string, poll time.Duration) *Runner {
	return &Runner{
		store:    store,
		notifier: notifier,
		handlers: map[string]Handler{},
		queue:    queue,
		poll:     poll,
		nowFunc:  time.Now,
	}
}

// Register binds a handler to a job kind. Call before Run.
func (r *Runner) Register(kind string, h Handler) {
	r.handlers[kind] = h
}

// Run polls the lane until the context is cancelled.
func (r *Runner) Run(ctx context.Context) {
	ticker := time.NewTicker(r.poll)
	defer ticker.Stop()

	for {
		// drain everything currently due before sleeping
		for {
			processed, err := r.RunOnce(ctx)
			if err != nil {
				slog.Error("job claim failed", slog.String("queue", r.queue), slog.String(logkey.ERROR, err.Error()))
				break
			}
			if !processed {
				break
			}
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// RunOnce claims and executes at most one job. Returns whether a job was
// processed.
func (r *Runner) RunOnce(ctx context.Context) (bool, error) {
	job, err := r.store.ClaimDue(ctx, r.queue)
	if err != nil {
		return false, err
	}
	if job == nil {
		return false, nil
	}
	r.execute(ctx, *job)
	return true, nil
}

func (r *Runner) execute(ctx context.Context, job Job) {
	h, ok := r.handlers[job.Kind]
	if !ok {
		// no handler registered: nothing will ever run this, dead-letter it
		r.deadLetter(ctx, job, fmt.Errorf("no handler for kind %s", job.Kind))
		return
	}

	if r.nowFunc().After(job.Deadline) {
		// claimed late, e.g. after a worker outage; the attempt never runs
		r.deadLetter(ctx, job, fmt.Errorf("deadline exceeded before attempt %d", job.Attempts))
		return
	}

	runErr := r.runSafely(ctx, h, job)
	if runErr == nil {
		if err := r.store.MarkDone(ctx, job.ID); err != nil {
			slog.Error("mark job done failed", slog.String(logkey.JobID, job.ID), slog.String(logkey.ERROR, err.Error()))
		}
		return
	}

	slog.Error("job attempt failed",
		slog.String(logkey.JobID, job.ID),
		slog.String(logkey.JobKind, job.Kind),
		slog.Int("attempt", job.Attempts),
		slog.String(logkey.ERROR, runErr.Error()),
	)

	// The deadline bounds execution, not just claiming: a retry that
	// could only run after the deadline is dead now.
	now := r.nowFunc()
	next := nextRunAt(job, now)
	if exhausted(job, now) || next.After(job.Deadline) {
		r.deadLetter(ctx, job, runErr)
		return
	}

	if err := r.store.Reschedule(ctx, job, next, runErr.Error()); err != nil {
		slog.Error("reschedule failed", slog.String(logkey.JobID, job.ID), slog.String(logkey.ERROR, err.Error()))
	}
}

func (r *Runner) runSafely(ctx context.Context, h Handler, job Job) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("job handler panicked: %v", rec)
		}
	}()
	return h.Run(ctx, job)
}

// deadLetter marks the job dead exactly once, lets the handler fail the
// owning entity, then fires one best-effort admin alert.
func (r *Runner) deadLetter(ctx context.Context, job Job, cause error) {
	if err := r.store.MarkDead(ctx, job, cause.Error()); err != nil {
		slog.Error("mark job dead failed", slog.String(logkey.JobID, job.ID), slog.String(logkey.ERROR, err.Error()))
	}

	if h, ok := r.handlers[job.Kind]; ok && h.OnDead != nil {
		if err := h.OnDead(ctx, job, cause); err != nil {
			slog.Error("dead-letter hook failed",
				slog.String(logkey.JobID, job.ID),
				slog.String(logkey.JobKind, job.Kind),
				slog.String(logkey.ERROR, err.Error()),
			)
		}
	}

	if r.notifier != nil {
		err := r.notifier.Alert(ctx, "job permanently failed", map[string]string{
			"job_id":    job.ID,
			"kind":      job.Kind,
			"entity_id": job.EntityID,
			"attempts":  fmt.Sprintf("%d", job.Attempts),
			"error":     cause.Error(),
		})
		if err != nil {
			// swallowed: the alert path must never retry
			slog.Error("admin alert failed", slog.String(logkey.JobID, job.ID), slog.String(logkey.ERROR, err.Error()))
		}
	}
}
