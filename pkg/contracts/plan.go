package contracts

import "fmt"

// PolicyTier bounds how invasive a plan's actions may be.
type PolicyTier string

const (
	// PolicyLintOnly reports findings and plans no fixes.
	PolicyLintOnly PolicyTier = "LINT_ONLY"
	// PolicySafeEdit allows comment- and deprecated-call-level edits.
	PolicySafeEdit PolicyTier = "SAFE_EDIT"
	// PolicyRefactor adds structural categories. Requires approval.
	PolicyRefactor PolicyTier = "REFACTOR"
	// PolicyArchive adds file move/delete categories. Requires approval.
	PolicyArchive PolicyTier = "ARCHIVE"
)

// ParsePolicyTier converts a configuration string into a PolicyTier.
func ParsePolicyTier(s string) (PolicyTier, error) {
	switch PolicyTier(s) {
	case PolicyLintOnly, PolicySafeEdit, PolicyRefactor, PolicyArchive:
		return PolicyTier(s), nil
	}
	return "", fmt.Errorf("unknown policy tier %q", s)
}

// RequiresApproval reports whether plans at this tier need an operator
// approval token before they may be applied.
func (p PolicyTier) RequiresApproval() bool {
	return p == PolicyRefactor || p == PolicyArchive
}

// PlannedAction is one fix or archive operation inside a plan.
type PlannedAction struct {
	Type      string `json:"type"` // "fix" or "archive"
	FindingID string `json:"finding_id"`
	Target    string `json:"target"` // file path the action touches
}

// Plan is a policy-filtered, pre-authorized set of actions derived from
// findings. Plans are immutable and consumed by the pipeline's fix stage.
//
//nolint:govet // fieldalignment: struct layout is human-readable
type Plan struct {
	ID               string          `json:"id"`
	Policy           PolicyTier      `json:"policy"`
	Findings         []Finding       `json:"findings"`
	Actions          []PlannedAction `json:"actions"`
	EstimatedImpact  string          `json:"estimated_impact"`
	RequiresApproval bool            `json:"requires_approval"`
	CreatedAt        string          `json:"created_at"`
}

// FindingByID returns the plan's finding with the given id, or nil.
func (p *Plan) FindingByID(id string) *Finding {
	for i := range p.Findings {
		if p.Findings[i].ID == id {
			return &p.Findings[i]
		}
	}
	return nil
}
