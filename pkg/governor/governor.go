// Package governor is the decision core of the remediation controller. It
// evaluates incidents against guardrails and an ordered policy table,
// dispatches repair strategies, certifies their results, and rolls back
// uncertified changes.
package governor

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/Mindburn-Labs/remedy/pkg/audit"
	"github.com/Mindburn-Labs/remedy/pkg/certify"
	"github.com/Mindburn-Labs/remedy/pkg/config"
	"github.com/Mindburn-Labs/remedy/pkg/contracts"
	"github.com/Mindburn-Labs/remedy/pkg/events"
	"github.com/Mindburn-Labs/remedy/pkg/strategy"
)

// Recorder persists executed decisions and aggregates their outcomes. A nil
// recorder disables history; recording errors are logged and swallowed.
type Recorder interface {
	Record(ctx context.Context, o contracts.Outcome) error
	SuccessRates(ctx context.Context) (map[string]float64, error)
}

// Rollbacker reverts a journaled patch by id. The integrity pipeline is the
// production implementation.
type Rollbacker interface {
	Rollback(ctx context.Context, patchID string, force bool) contracts.RollbackResult
}

// Governor owns the guardrail state and the decide/execute cycle. It is
// driven from a single incident loop; concurrent calls are not supported.
type Governor struct {
	maxPerHour     int
	cooldown       time.Duration
	streakTrip     int
	truthMandatory bool

	state     state
	scorer    *Scorer
	rules     *guardRules
	registry  *strategy.Registry
	certifier certify.Certifier

	publisher  events.Publisher
	logs       *audit.Logs
	trail      *audit.Trail
	rollbacker Rollbacker
	recorder   Recorder

	clock  Clock
	logger *slog.Logger
}

// Option configures optional governor collaborators.
type Option func(*Governor)

// WithClock replaces the wall clock.
func WithClock(c Clock) Option {
	return func(g *Governor) { g.clock = c }
}

// WithPublisher attaches the event bus.
func WithPublisher(p events.Publisher) Option {
	return func(g *Governor) { g.publisher = p }
}

// WithLogs attaches the operational ring logs.
func WithLogs(l *audit.Logs) Option {
	return func(g *Governor) { g.logs = l }
}

// WithTrail attaches the tamper-evident audit trail.
func WithTrail(t *audit.Trail) Option {
	return func(g *Governor) { g.trail = t }
}

// WithRollbacker attaches the patch rollback backend.
func WithRollbacker(r Rollbacker) Option {
	return func(g *Governor) { g.rollbacker = r }
}

// WithRecorder attaches the history ledger. Prior success rates warm-start
// the scorer; ledger unavailability is non-fatal.
func WithRecorder(r Recorder) Option {
	return func(g *Governor) { g.recorder = r }
}

// WithRules appends profile policy rules evaluated after the static table.
func WithRules(rules []config.PolicyRule) Option {
	return func(g *Governor) {
		compiled, err := compileGuardRules(rules, g.logger)
		if err != nil {
			g.logger.Warn("profile rules unavailable", "error", err)
			return
		}
		g.rules = compiled
	}
}

// New builds a governor from configuration. The certifier is wrapped in the
// configured fail-mode gate so certification never returns an error here.
func New(cfg *config.Config, registry *strategy.Registry, certifier certify.Certifier, opts ...Option) *Governor {
	g := &Governor{
		maxPerHour:     cfg.MaxActionsPerHour,
		cooldown:       cfg.Cooldown,
		streakTrip:     cfg.FailStreakTrip,
		truthMandatory: cfg.TruthMandatory,
		registry:       registry,
		certifier:      certify.NewGate(certifier, cfg.CertifyFailMode),
		clock:          wallClock{},
		logger:         slog.Default().With("component", "governor"),
	}
	for _, opt := range opts {
		opt(g)
	}

	g.scorer = NewScorer(g.warmRates())
	return g
}

// warmRates loads prior per-strategy success rates from the ledger.
func (g *Governor) warmRates() map[string]float64 {
	if g.recorder == nil {
		return nil
	}
	rates, err := g.recorder.SuccessRates(context.Background())
	if err != nil {
		g.logger.Warn("scorer warm-start skipped", "error", err)
		return nil
	}
	return rates
}

// Decide evaluates one incident. Guardrails run first, in fixed order:
// circuit breaker, rate limit, cooldown. Only then is the policy table
// consulted, static rows before profile rules.
func (g *Governor) Decide(inc contracts.Incident) contracts.Decision {
	now := g.clock.Now()

	if g.state.failStreak >= g.streakTrip {
		g.logger.Warn("circuit breaker tripped", "fail_streak", g.state.failStreak)
		return contracts.Decision{Action: contracts.ActionEscalate, Reason: contracts.ReasonCircuitBreakerTripped}
	}

	if g.state.pruneWindow(now.Add(-time.Hour)) >= g.maxPerHour {
		g.logger.Info("rate limited", "actions_last_hour", len(g.state.window))
		return contracts.Decision{Action: contracts.ActionNoop, Reason: contracts.ReasonRateLimited}
	}

	if !g.state.lastActionAt.IsZero() && now.Sub(g.state.lastActionAt) < g.cooldown {
		g.logger.Info("in cooldown", "since_last_action", now.Sub(g.state.lastActionAt))
		return contracts.Decision{Action: contracts.ActionNoop, Reason: contracts.ReasonCooldown}
	}

	if d, ok := routeStatic(inc); ok {
		return d
	}
	if d, ok := g.rules.route(inc); ok {
		return d
	}

	g.logger.Warn("unrecognized incident kind", "kind", inc.Kind)
	return contracts.Decision{Action: contracts.ActionNoop, Reason: contracts.ReasonUnrecognizedIncident}
}

// Execute carries out a decision and updates guardrail state. The window
// entry and last action time are recorded before dispatch so failed and
// skipped attempts still consume budget. Errors never escape as panics or
// returned errors; they ride in the result.
func (g *Governor) Execute(ctx context.Context, decision contracts.Decision) contracts.ExecResult {
	now := g.clock.Now()
	g.state.recordAction(now)

	result := contracts.ExecResult{Decision: decision}

	switch decision.Action {
	case contracts.ActionNoop:
		result.Status = contracts.ExecSkipped
		g.appendAudit(decision, string(contracts.ExecSkipped), "")
		return result
	case contracts.ActionEscalate:
		result.Status = contracts.ExecSkipped
		g.escalate(decision, "guardrail escalation")
		return result
	}

	strat, err := g.registry.Resolve(decision.Action)
	if err != nil {
		g.state.failStreak++
		result.Status = contracts.ExecError
		result.Error = err.Error()
		g.logger.Error("strategy resolution failed", "action", decision.Action, "error", err)
		g.publish(events.TopicHealError, map[string]any{"decision": decisionPayload(decision), "error": err.Error()})
		g.appendAudit(decision, string(contracts.ExecError), err.Error())
		g.record(ctx, now, decision, "", false, 0)
		return result
	}

	started := g.clock.Now()
	report, err := strat.Execute(ctx, decision.Targets)
	elapsed := g.clock.Now().Sub(started)
	result.Report = report

	if err != nil {
		g.state.failStreak++
		g.scorer.Observe(strat.Name(), false)
		result.Status = contracts.ExecError
		result.Error = err.Error()
		g.logger.Error("strategy execution failed", "strategy", strat.Name(), "error", err)
		g.publish(events.TopicHealError, map[string]any{"decision": decisionPayload(decision), "error": err.Error()})
		g.appendAudit(decision, string(contracts.ExecError), err.Error())
		g.record(ctx, now, decision, strat.Name(), false, elapsed)
		return result
	}

	verdict, _ := g.certifier.Certify(ctx, report)
	result.Certified = verdict.Certified
	result.CertInfo = map[string]any{"reason": verdict.Reason}
	if verdict.CertificateID != "" {
		result.CertInfo["certificate_id"] = verdict.CertificateID
	}

	if verdict.Certified {
		g.state.failStreak = 0
		g.scorer.Observe(strat.Name(), true)
		result.Status = contracts.ExecApplied

		g.publish(events.TopicHealApplied, map[string]any{
			"decision":  decisionPayload(decision),
			"certified": result.CertInfo,
		})
		g.appendAudit(decision, string(contracts.ExecApplied), "")
		g.appendCertified(decision, verdict)
		g.appendTrail("HEAL_APPLIED", decision.Reason, verdict.CertificateID)
		g.record(ctx, now, decision, strat.Name(), true, elapsed)
		return result
	}

	// Certification rejected the result.
	g.state.failStreak++
	g.scorer.Observe(strat.Name(), false)
	certErr := &contracts.CertificationError{Reason: verdict.Reason}
	result.Status = contracts.ExecError
	result.Error = certErr.Error()
	g.logger.Error("certification rejected result", "strategy", strat.Name(), "reason", verdict.Reason)

	if g.truthMandatory {
		result.Rollbacks = g.rollbackPatches(ctx, report)
		for _, rb := range result.Rollbacks {
			if rb.Success {
				continue
			}
			rbErr := &contracts.RollbackError{PatchID: rb.PatchID, Err: errors.New(rb.Error)}
			g.logger.Error("ESCALATION: rollback failed, state unknown", "patch_id", rb.PatchID, "error", rb.Error)
			g.escalate(decision, rbErr.Error())
			result.Error = result.Error + "; " + rbErr.Error()
		}
	}

	g.publish(events.TopicHealError, map[string]any{"decision": decisionPayload(decision), "error": result.Error})
	g.appendAudit(decision, string(contracts.ExecError), result.Error)
	g.record(ctx, now, decision, strat.Name(), false, elapsed)
	return result
}

// Handle is the daemon entry point: decide then execute.
func (g *Governor) Handle(ctx context.Context, inc contracts.Incident) contracts.ExecResult {
	return g.Execute(ctx, g.Decide(inc))
}

// Scores reports the advisory strategy scores: success rate minus the
// decaying cooldown penalty. Read-only telemetry; never consulted by
// Decide or Execute.
func (g *Governor) Scores() map[string]float64 {
	elapsed := time.Duration(-1)
	if !g.state.lastActionAt.IsZero() {
		elapsed = g.clock.Now().Sub(g.state.lastActionAt)
	}

	out := make(map[string]float64)
	for name := range g.scorer.Rates() {
		out[name] = g.scorer.Score(name, elapsed, g.cooldown)
	}
	return out
}

// FailStreak exposes the current consecutive-failure count.
func (g *Governor) FailStreak() int { return g.state.failStreak }

// rollbackPatches reverts every patch id carried in a strategy report.
func (g *Governor) rollbackPatches(ctx context.Context, report map[string]any) []contracts.RollbackResult {
	ids := patchIDs(report)
	if len(ids) == 0 {
		return nil
	}
	if g.rollbacker == nil {
		g.logger.Warn("no rollback backend configured", "patch_ids", ids)
		return nil
	}

	results := make([]contracts.RollbackResult, 0, len(ids))
	for _, id := range ids {
		results = append(results, g.rollbacker.Rollback(ctx, id, false))
	}
	return results
}

// escalate records an escalation in every audit surface.
func (g *Governor) escalate(decision contracts.Decision, detail string) {
	g.appendTrail("ESCALATION", decision.Reason, detail)
	if g.logs != nil {
		if err := g.logs.Audit.Append(map[string]any{
			"marker": "ESCALATION",
			"action": string(decision.Action),
			"reason": decision.Reason,
			"detail": detail,
		}); err != nil {
			g.logger.Error("audit append failed", "error", err)
		}
	}
	g.publish(events.TopicAudit, map[string]any{
		"marker":   "ESCALATION",
		"decision": decisionPayload(decision),
		"detail":   detail,
	})
}

func (g *Governor) appendAudit(decision contracts.Decision, status, errMsg string) {
	if g.logs == nil {
		return
	}
	entry := map[string]any{
		"action": string(decision.Action),
		"reason": decision.Reason,
		"status": status,
	}
	if errMsg != "" {
		entry["error"] = errMsg
	}
	if err := g.logs.Audit.Append(entry); err != nil {
		g.logger.Error("audit append failed", "error", err)
	}
}

func (g *Governor) appendCertified(decision contracts.Decision, verdict certify.Result) {
	if g.logs == nil {
		return
	}
	if err := g.logs.Certified.Append(map[string]any{
		"action":         string(decision.Action),
		"reason":         decision.Reason,
		"cert_reason":    verdict.Reason,
		"certificate_id": verdict.CertificateID,
	}); err != nil {
		g.logger.Error("certified append failed", "error", err)
	}
}

func (g *Governor) appendTrail(action, ref, details string) {
	if g.trail == nil {
		return
	}
	if _, err := g.trail.Append("governor", action, ref, details); err != nil {
		g.logger.Error("trail append failed", "error", err)
	}
}

func (g *Governor) publish(topic string, payload map[string]any) {
	if g.publisher == nil {
		return
	}
	g.publisher.Publish(topic, payload)
}

// record appends one outcome row to the history ledger.
func (g *Governor) record(ctx context.Context, decidedAt time.Time, decision contracts.Decision, strategyName string, certified bool, elapsed time.Duration) {
	if g.recorder == nil {
		return
	}

	value := 0.0
	if certified {
		value = 1.0
	}
	o := contracts.Outcome{
		ID:         uuid.NewString(),
		DecidedAt:  decidedAt,
		Action:     decision.Action,
		Strategy:   strategyName,
		Reason:     decision.Reason,
		Certified:  certified,
		Value:      value,
		DurationMS: elapsed.Milliseconds(),
	}
	if err := g.recorder.Record(ctx, o); err != nil {
		g.logger.Warn("history record failed", "error", err)
	}
}

func decisionPayload(d contracts.Decision) map[string]any {
	payload := map[string]any{
		"action": string(d.Action),
		"reason": d.Reason,
	}
	if len(d.Targets) > 0 {
		payload["targets"] = d.Targets
	}
	return payload
}

// patchIDs extracts journaled patch ids from a strategy report.
func patchIDs(report map[string]any) []string {
	if report == nil {
		return nil
	}
	switch ids := report["patch_ids"].(type) {
	case []string:
		return ids
	case []any:
		out := make([]string, 0, len(ids))
		for _, id := range ids {
			if s, ok := id.(string); ok {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}
