package contracts

// Action is the kind of response the governor can choose for an incident.
type Action string

// Action constants. NOOP and ESCALATE are terminal governor responses; the
// rest resolve to a registered repair strategy.
const (
	ActionNoop             Action = "NOOP"
	ActionRetry            Action = "RETRY"
	ActionRepairConfig     Action = "REPAIR_CONFIG"
	ActionRepairCode       Action = "REPAIR_CODE"
	ActionSyncEnvs         Action = "SYNC_ENVS"
	ActionRollback         Action = "ROLLBACK"
	ActionCreateSecret     Action = "CREATE_SECRET"
	ActionRegenerateConfig Action = "REGENERATE_CONFIG"
	ActionSyncAndCertify   Action = "SYNC_AND_CERTIFY"
	ActionEscalate         Action = "ESCALATE"
)

// Valid reports whether a is one of the defined action constants.
func (a Action) Valid() bool {
	switch a {
	case ActionNoop, ActionRetry, ActionRepairConfig, ActionRepairCode,
		ActionSyncEnvs, ActionRollback, ActionCreateSecret,
		ActionRegenerateConfig, ActionSyncAndCertify, ActionEscalate:
		return true
	}
	return false
}

// Decision is the governor's chosen response to an incident, including
// inaction. Decisions are never mutated after creation.
//
//nolint:govet // fieldalignment: struct layout is human-readable
type Decision struct {
	Action  Action   `json:"action"`
	Reason  string   `json:"reason"`
	Targets []string `json:"targets,omitempty"`
}

// Blocked reports whether the decision was produced by a guardrail rather
// than the policy table.
func (d Decision) Blocked() bool {
	switch d.Reason {
	case ReasonCircuitBreakerTripped, ReasonRateLimited, ReasonCooldown:
		return true
	}
	return false
}

// Guardrail and fallback reason strings. These are part of the decision
// contract and are matched by callers and tests.
const (
	ReasonCircuitBreakerTripped = "circuit_breaker_tripped"
	ReasonRateLimited           = "rate_limited"
	ReasonCooldown              = "cooldown"
	ReasonUnrecognizedIncident  = "unrecognized_incident"
)
