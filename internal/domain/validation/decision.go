package validation

import (
	"context"
	"time"
)

// Outcome is the result of an administrator decision
type Outcome string

const (
	OutcomePending  Outcome = "pending"
	OutcomeOk       Outcome = "ok"
	OutcomeTimedOut Outcome = "timed_out"
	OutcomeFailed   Outcome = "failed"
)

// Decision is an approve/reject command issued by this administrator
type Decision struct {
	DecisionID   string        `json:"decision_id"`
	ValidationID ID            `json:"validation_id"`
	Approved     bool          `json:"approved"`
	Reason       string        `json:"reason"`
	Admin        string        `json:"admin"`
	Monto        string        `json:"monto,omitempty"`
	Outcome      Outcome       `json:"outcome"`
	Detail       string        `json:"detail,omitempty"`
	RequestedAt  time.Time     `json:"requested_at"`
	CompletedAt  *time.Time    `json:"completed_at,omitempty"`
	Latency      time.Duration `json:"latency,omitempty"`
}

// DecisionLock guarantees at most one outstanding decision per id, possibly
// across several admin instances
type DecisionLock interface {
	// Acquire returns false when another decision holds the id
	Acquire(ctx context.Context, id ID, ttl time.Duration) (bool, error)
	Release(ctx context.Context, id ID) error
}

// DecisionJournal is the local audit trail of decisions and their outcomes
type DecisionJournal interface {
	Record(ctx context.Context, d *Decision) error
	Complete(ctx context.Context, decisionID string, outcome Outcome, detail string, completedAt time.Time) error
	ListRecent(ctx context.Context, limit int) ([]Decision, error)
}
