package contracts

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestActionValid(t *testing.T) {
	assert.True(t, ActionRepairConfig.Valid())
	assert.True(t, ActionNoop.Valid())
	assert.False(t, Action("REPAIR_EVERYTHING").Valid())
	assert.False(t, Action("").Valid())
}

func TestParsePolicyTier(t *testing.T) {
	tier, err := ParsePolicyTier("SAFE_EDIT")
	require.NoError(t, err)
	assert.Equal(t, PolicySafeEdit, tier)

	_, err = ParsePolicyTier("YOLO")
	assert.Error(t, err)
}

func TestPolicyTierApproval(t *testing.T) {
	assert.False(t, PolicyLintOnly.RequiresApproval())
	assert.False(t, PolicySafeEdit.RequiresApproval())
	assert.True(t, PolicyRefactor.RequiresApproval())
	assert.True(t, PolicyArchive.RequiresApproval())
}

func TestDecisionBlocked(t *testing.T) {
	assert.True(t, Decision{Action: ActionNoop, Reason: ReasonRateLimited}.Blocked())
	assert.True(t, Decision{Action: ActionEscalate, Reason: ReasonCircuitBreakerTripped}.Blocked())
	assert.False(t, Decision{Action: ActionNoop, Reason: ReasonUnrecognizedIncident}.Blocked())
	assert.False(t, Decision{Action: ActionSyncEnvs, Reason: "env_drift"}.Blocked())
}

func TestPlanFindingByID(t *testing.T) {
	p := Plan{Findings: []Finding{
		{ID: "f1", Category: CategoryDeprecated},
		{ID: "f2", Category: CategoryStub},
	}}
	require.NotNil(t, p.FindingByID("f2"))
	assert.Equal(t, CategoryStub, p.FindingByID("f2").Category)
	assert.Nil(t, p.FindingByID("f3"))
}

func TestRollbackErrorUnwrap(t *testing.T) {
	inner := errors.New("disk gone")
	err := &RollbackError{PatchID: "patch_1", Err: inner}
	assert.ErrorIs(t, err, inner)
	assert.Contains(t, err.Error(), "patch_1")
}

func TestIncidentDetailString(t *testing.T) {
	inc := NewIncident("env.secret.missing", "steward", map[string]any{"key": "API_TOKEN", "n": 3})
	assert.Equal(t, "API_TOKEN", inc.DetailString("key"))
	assert.Equal(t, "", inc.DetailString("n"))
	assert.Equal(t, "", Incident{}.DetailString("key"))
	assert.False(t, inc.Timestamp.IsZero())
}
