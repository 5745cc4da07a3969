// Package certify attests remediation results before they are committed.
// The local certifier validates result payloads against a JSON Schema,
// evaluates CEL acceptance rules, and issues offline-verifiable ed25519
// certificates over the canonical payload hash.
package certify

import (
	"context"
	"log/slog"
)

// Result is a certifier's verdict on one remediation result.
type Result struct {
	Certified     bool           `json:"certified"`
	Reason        string         `json:"reason,omitempty"`
	CertificateID string         `json:"certificate_id,omitempty"`
	Details       map[string]any `json:"details,omitempty"`
}

// Certifier attests one result payload. An error return means the
// certifier itself was unavailable, not that the result was rejected; the
// Gate translates unavailability according to the configured fail mode.
type Certifier interface {
	Certify(ctx context.Context, result map[string]any) (Result, error)
}

// Fail modes for an unavailable certifier.
const (
	// FailOpen treats unavailability as certified, flagged with reason
	// certifier_unavailable. This preserves the historical behavior; it is
	// a deliberate trust-boundary choice, configurable because reasonable
	// deployments disagree on it.
	FailOpen = "fail_open"
	// FailClosed treats unavailability as not certified.
	FailClosed = "fail_closed"
)

// ReasonUnavailable flags verdicts produced by the fail mode rather than
// a real attestation.
const ReasonUnavailable = "certifier_unavailable"

// Gate wraps a Certifier with the configured unavailability policy. A nil
// inner certifier is permanently unavailable.
type Gate struct {
	inner  Certifier
	mode   string
	logger *slog.Logger
}

// NewGate builds a gate. Unknown modes behave as FailOpen.
func NewGate(inner Certifier, mode string) *Gate {
	return &Gate{
		inner:  inner,
		mode:   mode,
		logger: slog.Default().With("component", "certify.gate"),
	}
}

// Certify implements Certifier. Gate itself never returns an error.
func (g *Gate) Certify(ctx context.Context, result map[string]any) (Result, error) {
	if g.inner == nil {
		return g.unavailable(nil), nil
	}

	verdict, err := g.inner.Certify(ctx, result)
	if err != nil {
		return g.unavailable(err), nil
	}
	return verdict, nil
}

func (g *Gate) unavailable(cause error) Result {
	certified := g.mode != FailClosed
	g.logger.Warn("certifier unavailable",
		"mode", g.mode, "certified", certified, "error", cause)
	return Result{Certified: certified, Reason: ReasonUnavailable}
}
