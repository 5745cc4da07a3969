package contracts

import "time"

// Outcome is the history ledger row recorded for every dispatched decision.
// Value is 1 for a certified success and 0 otherwise; ledger aggregates of
// Value warm-start the reinforcement scorer.
//
//nolint:govet // fieldalignment: struct layout is human-readable
type Outcome struct {
	ID         string    `json:"id"`
	DecidedAt  time.Time `json:"decided_at"`
	Action     Action    `json:"action"`
	Strategy   string    `json:"strategy"`
	Reason     string    `json:"reason"`
	Certified  bool      `json:"certified"`
	Value      float64   `json:"outcome"`
	DurationMS int64     `json:"duration_ms"`
}
