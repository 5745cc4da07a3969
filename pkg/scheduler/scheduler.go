// Package scheduler runs the integrity pipeline on a fixed interval. One
// failed cycle never stops the loop; the next tick runs regardless.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/Mindburn-Labs/remedy/pkg/audit"
	"github.com/Mindburn-Labs/remedy/pkg/certify"
	"github.com/Mindburn-Labs/remedy/pkg/contracts"
	"github.com/Mindburn-Labs/remedy/pkg/events"
	"github.com/Mindburn-Labs/remedy/pkg/integrity"
)

// Runner executes one pipeline pass. The integrity pipeline is the
// production implementation.
type Runner interface {
	Run(ctx context.Context, opts integrity.RunOptions) (contracts.Summary, error)
}

// Scheduler drives periodic autonomous pipeline runs.
type Scheduler struct {
	interval  time.Duration
	policy    contracts.PolicyTier
	owner     string
	runner    Runner
	certifier certify.Certifier
	publisher events.Publisher
	logs      *audit.Logs
	logger    *slog.Logger
	stop      chan struct{}
}

// Option configures optional scheduler collaborators.
type Option func(*Scheduler)

// WithCertifier attests each cycle summary and records certified runs.
func WithCertifier(c certify.Certifier) Option {
	return func(s *Scheduler) { s.certifier = c }
}

// WithPublisher attaches the event bus.
func WithPublisher(p events.Publisher) Option {
	return func(s *Scheduler) { s.publisher = p }
}

// WithLogs attaches the autorun and certified ring logs.
func WithLogs(l *audit.Logs) Option {
	return func(s *Scheduler) { s.logs = l }
}

// WithOwner sets the operator handle allowed to trigger manual runs.
func WithOwner(owner string) Option {
	return func(s *Scheduler) { s.owner = owner }
}

// New builds a scheduler. A non-positive interval falls back to 12 hours.
func New(runner Runner, interval time.Duration, policy contracts.PolicyTier, opts ...Option) *Scheduler {
	if interval <= 0 {
		interval = 12 * time.Hour
	}
	if policy == "" {
		policy = contracts.PolicySafeEdit
	}
	s := &Scheduler{
		interval: interval,
		policy:   policy,
		runner:   runner,
		logger:   slog.Default().With("component", "scheduler"),
		stop:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Run blocks, executing one cycle per interval until the context is
// cancelled or Stop is called. Stop takes effect between cycles.
func (s *Scheduler) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.logger.Info("scheduler started", "interval", s.interval, "policy", string(s.policy))
	for {
		select {
		case <-ctx.Done():
			s.logger.Info("scheduler stopped", "cause", "context")
			return
		case <-s.stop:
			s.logger.Info("scheduler stopped", "cause", "stop")
			return
		case <-ticker.C:
			s.publish(events.TopicScheduleTick, map[string]any{"policy": string(s.policy)})
			s.runCycle(ctx)
		}
	}
}

// Stop requests a cooperative shutdown. Safe to call once.
func (s *Scheduler) Stop() {
	close(s.stop)
}

// TriggerManual runs one cycle immediately. Only the configured owner may
// trigger it.
func (s *Scheduler) TriggerManual(ctx context.Context, owner string) error {
	if s.owner == "" || owner != s.owner {
		return fmt.Errorf("scheduler: manual trigger denied for %q", owner)
	}
	s.logger.Info("manual run triggered", "owner", owner)
	s.runCycle(ctx)
	return nil
}

// runCycle executes one pipeline pass and records its outcome. Errors are
// logged and absorbed.
func (s *Scheduler) runCycle(ctx context.Context) {
	summary, err := s.runner.Run(ctx, integrity.RunOptions{
		Policy: s.policy,
		Apply:  true,
	})
	if err != nil {
		s.logger.Error("autonomous run failed", "error", err)
		s.appendAutorun(map[string]any{"status": "error", "error": err.Error()})
		return
	}

	entry := map[string]any{
		"status":         "completed",
		"run_id":         summary.RunID,
		"policy":         string(summary.Policy),
		"findings_count": summary.FindingsCount,
		"fixes_applied":  summary.FixesApplied,
		"fixes_failed":   summary.FixesFailed,
	}

	var verdict certify.Result
	if s.certifier != nil {
		var certErr error
		verdict, certErr = s.certifier.Certify(ctx, entry)
		switch {
		case certErr != nil:
			summary.CertificationStatus = "unavailable"
		case verdict.Certified:
			summary.CertificationStatus = "certified"
		default:
			summary.CertificationStatus = "rejected"
		}
		entry["certification_status"] = summary.CertificationStatus
	}

	s.appendAutorun(entry)
	s.publish(events.TopicScheduleSummary, entry)

	if !verdict.Certified {
		if s.certifier != nil {
			s.logger.Warn("autonomous run not certified", "run_id", summary.RunID, "status", summary.CertificationStatus)
		}
		return
	}
	if s.logs != nil {
		if appendErr := s.logs.Certified.Append(map[string]any{
			"run_id":         summary.RunID,
			"certificate_id": verdict.CertificateID,
			"fixes_applied":  summary.FixesApplied,
		}); appendErr != nil {
			s.logger.Error("certified append failed", "error", appendErr)
		}
	}
}

func (s *Scheduler) appendAutorun(entry map[string]any) {
	if s.logs == nil {
		return
	}
	if err := s.logs.Autorun.Append(entry); err != nil {
		s.logger.Error("autorun append failed", "error", err)
	}
}

func (s *Scheduler) publish(topic string, payload map[string]any) {
	if s.publisher == nil {
		return
	}
	s.publisher.Publish(topic, payload)
}
