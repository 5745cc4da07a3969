package governor

import (
	"fmt"
	"log/slog"

	"github.com/google/cel-go/cel"

	"github.com/Mindburn-Labs/remedy/pkg/config"
	"github.com/Mindburn-Labs/remedy/pkg/contracts"
)

// route is one row of the static policy table. Rows are evaluated in
// declared order and the first kind match wins.
type route struct {
	kinds   []string
	action  contracts.Action
	reason  string
	targets func(contracts.Incident) []string
}

func fixed(targets ...string) func(contracts.Incident) []string {
	return func(contracts.Incident) []string { return targets }
}

// secretTargets pulls the missing key names out of the incident details,
// accepting either a "keys" list or a single "key" string.
func secretTargets(inc contracts.Incident) []string {
	if inc.Details == nil {
		return nil
	}
	switch keys := inc.Details["keys"].(type) {
	case []string:
		return keys
	case []any:
		out := make([]string, 0, len(keys))
		for _, k := range keys {
			if s, ok := k.(string); ok {
				out = append(out, s)
			}
		}
		return out
	}
	if key := inc.DetailString("key"); key != "" {
		return []string{key}
	}
	return nil
}

// staticRoutes is the ordered incident-to-action table. Order is part of
// the decision contract and must not change.
var staticRoutes = []route{
	{kinds: []string{"deploy.netlify.preview_failed"}, action: contracts.ActionRepairConfig, reason: "preview_failed", targets: fixed("netlify")},
	{kinds: []string{"deploy.render.failed", "deploy.render.rollback"}, action: contracts.ActionRetry, reason: "render_retry_once", targets: fixed("render")},
	{kinds: []string{"deploy.failure"}, action: contracts.ActionSyncAndCertify, reason: "deploy_failure"},
	{kinds: []string{"deploy.rollback.requested"}, action: contracts.ActionRollback, reason: "rollback_requested"},
	{kinds: []string{"env.drift.detected"}, action: contracts.ActionSyncEnvs, reason: "env_drift"},
	{kinds: []string{"envrecon.drift"}, action: contracts.ActionSyncEnvs, reason: "envrecon_drift"},
	{kinds: []string{"env.secret.missing"}, action: contracts.ActionCreateSecret, reason: "secret_missing", targets: secretTargets},
	{kinds: []string{"config.blueprint.stale"}, action: contracts.ActionRegenerateConfig, reason: "blueprint_stale"},
	{kinds: []string{"code.integrity.deprecated"}, action: contracts.ActionRepairCode, reason: "integrity_safe_edit"},
	{kinds: []string{"integrity.deprecated.detected"}, action: contracts.ActionRepairCode, reason: "integrity_safe_edit"},
}

// routeStatic resolves an incident against the static table.
func routeStatic(inc contracts.Incident) (contracts.Decision, bool) {
	for _, r := range staticRoutes {
		for _, kind := range r.kinds {
			if inc.Kind != kind {
				continue
			}
			d := contracts.Decision{Action: r.action, Reason: r.reason}
			if r.targets != nil {
				d.Targets = r.targets(inc)
			}
			return d, true
		}
	}
	return contracts.Decision{}, false
}

// guardRule is one compiled profile rule evaluated after the static table.
type guardRule struct {
	prg     cel.Program
	expr    string
	action  contracts.Action
	reason  string
	targets []string
}

// guardRules compiles profile policy rules. A rule that fails to compile or
// names an unknown action is logged and dropped; the remaining rules stay
// live.
type guardRules struct {
	rules  []guardRule
	logger *slog.Logger
}

func compileGuardRules(rules []config.PolicyRule, logger *slog.Logger) (*guardRules, error) {
	env, err := cel.NewEnv(
		cel.Variable("kind", cel.StringType),
		cel.Variable("source", cel.StringType),
		cel.Variable("details", cel.DynType),
	)
	if err != nil {
		return nil, fmt.Errorf("governor: cel environment: %w", err)
	}

	g := &guardRules{logger: logger}
	for _, r := range rules {
		action := contracts.Action(r.Action)
		if !action.Valid() {
			logger.Warn("profile rule dropped: unknown action", "expr", r.Expr, "action", r.Action)
			continue
		}
		ast, issues := env.Compile(r.Expr)
		if issues != nil && issues.Err() != nil {
			logger.Warn("profile rule dropped: compile error", "expr", r.Expr, "error", issues.Err())
			continue
		}
		prg, err := env.Program(ast)
		if err != nil {
			logger.Warn("profile rule dropped: program error", "expr", r.Expr, "error", err)
			continue
		}
		g.rules = append(g.rules, guardRule{
			prg:     prg,
			expr:    r.Expr,
			action:  action,
			reason:  r.Reason,
			targets: r.Targets,
		})
	}
	return g, nil
}

// route evaluates the compiled rules in declared order. Evaluation errors
// skip the rule; a rule must evaluate to boolean true to match.
func (g *guardRules) route(inc contracts.Incident) (contracts.Decision, bool) {
	if g == nil || len(g.rules) == 0 {
		return contracts.Decision{}, false
	}

	details := inc.Details
	if details == nil {
		details = map[string]any{}
	}
	activation := map[string]any{
		"kind":    inc.Kind,
		"source":  inc.Source,
		"details": details,
	}

	for _, r := range g.rules {
		out, _, err := r.prg.Eval(activation)
		if err != nil {
			g.logger.Warn("profile rule evaluation failed", "expr", r.expr, "error", err)
			continue
		}
		if pass, ok := out.Value().(bool); ok && pass {
			return contracts.Decision{Action: r.action, Reason: r.reason, Targets: r.targets}, true
		}
	}
	return contracts.Decision{}, false
}
