package jobs

import (
	"context"
	"errors"
	"testing"
	"time"
)

// memStore is an in-memory Store good enough to drive the runner.
type memStore struct {
	jobs map[string]*Job
	now  func() time.Time
}

func newMemStore(now func() time.Time) *memStore {
	return &memStore{jobs: map[string]*Job{}, now: now}
}

func (m *memStore) add(job Job) {
	j := job
	m.jobs[j.ID] = &j
}

func (m *memStore) ClaimDue(ctx context.Context, queue string) (*Job, error) {
	for _, j := range m.jobs {
		if j.Queue == queue && j.Status == StatusQueued && !j.RunAt.After(m.now()) {
			j.Attempts++
			j.Status = StatusRunning
			cp := *j
			return &cp, nil
		}
	}
	return nil, nil
}

func (m *memStore) MarkDone(ctx context.Context, jobID string) error {
	m.jobs[jobID].Status = StatusDone
	return nil
}

func (m *memStore) Reschedule(ctx context.Context, job Job, runAt time.Time, lastError string) error {
	j := m.jobs[job.ID]
	j.Status = StatusQueued
	j.RunAt = runAt
	j.LastError = lastError
	return nil
}

func (m *memStore) MarkDead(ctx context.Context, job Job, lastError string) error {
	j := m.jobs[job.ID]
	j.Status = StatusDead
	j.LastError = lastError
	return nil
}

type memNotifier struct {
	alerts int
	fail   bool
}

func (n *memNotifier) Alert(ctx context.Context, title string, fields map[string]string) error {
	n.alerts++
	if n.fail {
		return errors.New("chat endpoint down")
	}
	return nil
}

func testJob(kind string) Job {
	now := time.Now()
	p := PolicyFor(kind)
	return Job{
		ID:          "job-1",
		Kind:        kind,
		EntityID:    "order-1",
		Queue:       p.Queue,
		Status:      StatusQueued,
		MaxAttempts: p.MaxAttempts,
		Payload:     []byte(`{}`),
		RunAt:       now.Add(-time.Second),
		Deadline:    now.Add(p.TTL),
	}
}

// driveUntilSettled runs the lane, advancing the fake clock past each
// backoff, until no queued work remains.
func driveUntilSettled(t *testing.T, r *Runner, store *memStore, clock *time.Time) {
	t.Helper()
	for i := 0; i < 100; i++ {
		processed, err := r.RunOnce(context.Background())
		if err != nil {
			t.Fatalf("RunOnce error: %v", err)
		}
		if !processed {
			// nothing due now; jump forward in case a retry is scheduled
			anyQueued := false
			for _, j := range store.jobs {
				if j.Status == StatusQueued {
					anyQueued = true
				}
			}
			if !anyQueued {
				return
			}
			*clock = clock.Add(10 * time.Minute)
		}
	}
	t.Fatal("jobs never settled")
}

func TestRunnerSucceedsFirstAttempt(t *testing.T) {
	clock := time.Now()
	store := newMemStore(func() time.Time { return clock })
	r := NewRunner(store, &memNotifier{}, QueueEmails, time.Second)
	r.nowFunc = func() time.Time { return clock }

	var runs int
	r.Register(KindEmailOrderConfirmation, Handler{
		Run: func(ctx context.Context, job Job) error {
			runs++
			return nil
		},
	})

	store.add(testJob(KindEmailOrderConfirmation))
	driveUntilSettled(t, r, store, &clock)

	if runs != 1 {
		t.Fatalf("expected 1 run, got %d", runs)
	}
	if store.jobs["job-1"].Status != StatusDone {
		t.Fatalf("expected done, got %s", store.jobs["job-1"].Status)
	}
}

func TestRunnerRetriesThenSucceeds(t *testing.T) {
	clock := time.Now()
	store := newMemStore(func() time.Time { return clock })
	r := NewRunner(store, &memNotifier{}, QueueEmails, time.Second)
	r.nowFunc = func() time.Time { return clock }

	var runs int
	r.Register(KindEmailPaymentReceipt, Handler{
		Run: func(ctx context.Context, job Job) error {
			runs++
			if runs < 3 {
				return errors.New("smtp unavailable")
			}
			return nil
		},
	})

	store.add(testJob(KindEmailPaymentReceipt))
	driveUntilSettled(t, r, store, &clock)

	if runs != 3 {
		t.Fatalf("expected 3 runs, got %d", runs)
	}
	if store.jobs["job-1"].Status != StatusDone {
		t.Fatalf("expected done, got %s", store.jobs["job-1"].Status)
	}
}

// A job failing every attempt dead-letters exactly once: one OnDead call
// marking the entity failed and one admin alert, even when the alert
// itself fails.
func TestRunnerDeadLettersOnExhaustedAttempts(t *testing.T) {
	clock := time.Now()
	store := newMemStore(func() time.Time { return clock })
	notifier := &memNotifier{fail: true}
	r := NewRunner(store, notifier, QueueFulfillment, time.Second)
	r.nowFunc = func() time.Time { return clock }

	var runs, deadCalls int
	r.Register(KindFulfillmentSubmit, Handler{
		Run: func(ctx context.Context, job Job) error {
			runs++
			return errors.New("fulfillment endpoint unreachable")
		},
		OnDead: func(ctx context.Context, job Job, cause error) error {
			deadCalls++
			return nil
		},
	})

	store.add(testJob(KindFulfillmentSubmit))
	driveUntilSettled(t, r, store, &clock)

	if want := PolicyFor(KindFulfillmentSubmit).MaxAttempts; runs != want {
		t.Fatalf("expected %d attempts, got %d", want, runs)
	}
	if deadCalls != 1 {
		t.Fatalf("expected exactly one OnDead call, got %d", deadCalls)
	}
	if notifier.alerts != 1 {
		t.Fatalf("expected exactly one admin alert attempt, got %d", notifier.alerts)
	}
	if store.jobs["job-1"].Status != StatusDead {
		t.Fatalf("expected dead, got %s", store.jobs["job-1"].Status)
	}
}

// The absolute deadline terminates the retry loop even with attempt
// budget remaining.
func TestRunnerDeadLettersOnDeadline(t *testing.T) {
	clock := time.Now()
	store := newMemStore(func() time.Time { return clock })
	notifier := &memNotifier{}
	r := NewRunner(store, notifier, QueueEmails, time.Second)
	r.nowFunc = func() time.Time { return clock }

	var runs int
	r.Register(KindEmailPaymentFailed, Handler{
		Run: func(ctx context.Context, job Job) error {
			runs++
			return errors.New("still failing")
		},
	})

	job := testJob(KindEmailPaymentFailed)
	job.Deadline = clock.Add(time.Minute) // far fewer than MaxAttempts backoffs
	store.add(job)
	driveUntilSettled(t, r, store, &clock)

	if runs >= PolicyFor(KindEmailPaymentFailed).MaxAttempts {
		t.Fatalf("deadline should have cut retries short, got %d runs", runs)
	}
	if store.jobs["job-1"].Status != StatusDead {
		t.Fatalf("expected dead, got %s", store.jobs["job-1"].Status)
	}
	if notifier.alerts != 1 {
		t.Fatalf("expected one admin alert, got %d", notifier.alerts)
	}
}

// A failed attempt whose backoff lands past the absolute deadline is
// dead-lettered immediately instead of being rescheduled, and no further
// attempt ever executes after the deadline.
func TestRunnerNeverRetriesPastDeadline(t *testing.T) {
	clock := time.Now()
	store := newMemStore(func() time.Time { return clock })
	notifier := &memNotifier{}
	r := NewRunner(store, notifier, QueueFulfillment, time.Second)
	r.nowFunc = func() time.Time { return clock }

	var runs int
	r.Register(KindFulfillmentSubmit, Handler{
		Run: func(ctx context.Context, job Job) error {
			runs++
			return errors.New("fulfillment endpoint unreachable")
		},
	})

	// 30s of deadline left, but the kind's backoff is minutes: the retry
	// could only run after the deadline.
	job := testJob(KindFulfillmentSubmit)
	job.Deadline = clock.Add(30 * time.Second)
	store.add(job)

	processed, err := r.RunOnce(context.Background())
	if err != nil || !processed {
		t.Fatalf("expected one processed job, got processed=%v err=%v", processed, err)
	}
	if runs != 1 {
		t.Fatalf("expected a single attempt, got %d", runs)
	}
	if store.jobs["job-1"].Status != StatusDead {
		t.Fatalf("expected dead after unretriable failure, got %s", store.jobs["job-1"].Status)
	}

	// Even if the job had been left queued, advancing the clock past the
	// deadline must not execute the handler again.
	clock = clock.Add(5 * time.Minute)
	store.jobs["job-1"].Status = StatusQueued
	store.jobs["job-1"].RunAt = clock.Add(-time.Second)
	if _, err := r.RunOnce(context.Background()); err != nil {
		t.Fatalf("RunOnce error: %v", err)
	}
	if runs != 1 {
		t.Fatalf("attempt executed %s after the deadline", clock.Sub(store.jobs["job-1"].Deadline))
	}
	if store.jobs["job-1"].Status != StatusDead {
		t.Fatalf("expected expired job to dead-letter, got %s", store.jobs["job-1"].Status)
	}
}

func TestRunnerDeadLettersUnknownKind(t *testing.T) {
	clock := time.Now()
	store := newMemStore(func() time.Time { return clock })
	r := NewRunner(store, &memNotifier{}, QueueEmails, time.Second)
	r.nowFunc = func() time.Time { return clock }

	job := testJob(KindEmailOrderConfirmation)
	job.Kind = "no.such.kind"
	store.add(job)

	processed, err := r.RunOnce(context.Background())
	if err != nil || !processed {
		t.Fatalf("expected one processed job, got processed=%v err=%v", processed, err)
	}
	if store.jobs["job-1"].Status != StatusDead {
		t.Fatalf("expected dead, got %s", store.jobs["job-1"].Status)
	}
}

func TestExhaustedConditionsAreIndependent(t *testing.T) {
	now := time.Now()
	base := Job{MaxAttempts: 3, Deadline: now.Add(time.Hour)}

	j := base
	j.Attempts = 2
	if exhausted(j, now) {
		t.Fatal("budget remaining and deadline ahead: not exhausted")
	}

	j.Attempts = 3
	if !exhausted(j, now) {
		t.Fatal("attempt budget spent: exhausted")
	}

	j = base
	j.Attempts = 1
	if !exhausted(j, now.Add(2*time.Hour)) {
		t.Fatal("past deadline: exhausted regardless of attempts")
	}
}
