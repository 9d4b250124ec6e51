package jobs

import (
	"encoding/json"
	"time"
)

// Job statuses.
const (
	StatusQueued  = "queued"
	StatusRunning = "running"
	StatusDone    = "done"
	StatusDead    = "dead"
)

// Queue lanes. Fulfillment work is keyed per order so one order's jobs
// never race each other; emails are plain fan-out.
const (
	QueueFulfillment = "fulfillment"
	QueueEmails      = "emails"
)

// Job kinds.
const (
	KindFulfillmentSubmit      = "order.fulfillment.submit"
	KindEmailOrderConfirmation = "email.order.confirmation"
	KindEmailPaymentReceipt    = "email.payment.receipt"
	KindEmailPaymentFailed     = "email.payment.failed"
)

// Job is one unit of deferred work bound to an entity. The entity is
// re-hydrated by id inside the handler; no live object graph is ever
// serialized into the payload.
type Job struct {
	ID          string          `json:"id"`
	Kind        string          `json:"kind"`
	EntityID    string          `json:"entity_id"`
	Queue       string          `json:"queue"`
	Status      string          `json:"status"`
	Attempts    int             `json:"attempts"`
	MaxAttempts int             `json:"max_attempts"`
	Payload     json.RawMessage `json:"payload"`
	LastError   string          `json:"last_error"`
	RunAt       time.Time       `json:"run_at"`
	Deadline    time.Time       `json:"deadline"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
}

// Policy fixes the retry behaviour of a job kind: bounded attempts, a
// fixed backoff between attempts, and an absolute deadline after which no
// further attempt is made regardless of remaining attempt budget.
type Policy struct {
	Queue       string
	MaxAttempts int
	Backoff     time.Duration
	TTL         time.Duration
}

var policies = map[string]Policy{
	KindFulfillmentSubmit:      {Queue: QueueFulfillment, MaxAttempts: 5, Backoff: 5 * time.Minute, TTL: 24 * time.Hour},
	KindEmailOrderConfirmation: {Queue: QueueEmails, MaxAttempts: 3, Backoff: time.Minute, TTL: 2 * time.Hour},
	KindEmailPaymentReceipt:    {Queue: QueueEmails, MaxAttempts: 3, Backoff: time.Minute, TTL: 2 * time.Hour},
	KindEmailPaymentFailed:     {Queue: QueueEmails, MaxAttempts: 3, Backoff: time.Minute, TTL: 2 * time.Hour},
}

var defaultPolicy = Policy{Queue: "default", MaxAttempts: 3, Backoff: time.Minute, TTL: 2 * time.Hour}

// PolicyFor returns the retry policy of a kind.
func PolicyFor(kind string) Policy {
	if p, ok := policies[kind]; ok {
		return p
	}
	return defaultPolicy
}

// exhausted reports whether the job has no retry budget left: either the
// attempt count or the deadline terminates the loop, independently.
func exhausted(job Job, now time.Time) bool {
	return job.Attempts >= job.MaxAttempts || now.After(job.Deadline)
}

// nextRunAt computes the fixed-backoff schedule for the following attempt.
func nextRunAt(job Job, now time.Time) time.Time {
	return now.Add(PolicyFor(job.Kind).Backoff)
}
