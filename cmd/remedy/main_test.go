package main

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Mindburn-Labs/remedy/pkg/approval"
	"github.com/Mindburn-Labs/remedy/pkg/audit"
	"github.com/Mindburn-Labs/remedy/pkg/contracts"
	"github.com/Mindburn-Labs/remedy/pkg/journal"
)

func runCLI(t *testing.T, args ...string) (int, string, string) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	code := Run(append([]string{"remedy"}, args...), &stdout, &stderr)
	return code, stdout.String(), stderr.String()
}

func setTestEnv(t *testing.T) {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("REMEDY_DATA_DIR", dir)
	t.Setenv("REMEDY_TARGET_ROOT", dir)
	t.Setenv("REMEDY_PROFILE", "")
	t.Setenv("REMEDY_DATABASE_URL", "")
}

func TestRunHelp(t *testing.T) {
	code, stdout, _ := runCLI(t, "help")
	assert.Equal(t, 0, code)
	assert.Contains(t, stdout, "Commands:")
	assert.Contains(t, stdout, "rollback")
}

func TestRunUnknownCommand(t *testing.T) {
	code, _, stderr := runCLI(t, "frobnicate")
	assert.Equal(t, 2, code)
	assert.Contains(t, stderr, "unknown command")
}

func TestDecideKnownKind(t *testing.T) {
	setTestEnv(t)
	code, stdout, _ := runCLI(t, "decide", "deploy.render.failed")
	require.Equal(t, 0, code)

	var decision contracts.Decision
	require.NoError(t, json.Unmarshal([]byte(stdout), &decision))
	assert.Equal(t, contracts.ActionRetry, decision.Action)
	assert.Equal(t, "render_retry_once", decision.Reason)
	assert.Equal(t, []string{"render"}, decision.Targets)
}

func TestDecideUnrecognizedKind(t *testing.T) {
	setTestEnv(t)
	code, stdout, _ := runCLI(t, "decide", "totally.unknown")
	require.Equal(t, 0, code)

	var decision contracts.Decision
	require.NoError(t, json.Unmarshal([]byte(stdout), &decision))
	assert.Equal(t, contracts.ActionNoop, decision.Action)
	assert.Equal(t, "unrecognized_incident", decision.Reason)
}

func TestDecideWithDetails(t *testing.T) {
	setTestEnv(t)
	code, stdout, _ := runCLI(t, "decide", "-details", `{"keys":["API_KEY"]}`, "env.secret.missing")
	require.Equal(t, 0, code)

	var decision contracts.Decision
	require.NoError(t, json.Unmarshal([]byte(stdout), &decision))
	assert.Equal(t, contracts.ActionCreateSecret, decision.Action)
	assert.Equal(t, []string{"API_KEY"}, decision.Targets)
}

func TestDecideMissingKind(t *testing.T) {
	setTestEnv(t)
	code, _, stderr := runCLI(t, "decide")
	assert.Equal(t, 2, code)
	assert.Contains(t, stderr, "Usage")
}

func TestJournalEmpty(t *testing.T) {
	setTestEnv(t)
	code, stdout, _ := runCLI(t, "journal")
	assert.Equal(t, 0, code)
	assert.Contains(t, stdout, "journal is empty")
}

func TestAuditVerify(t *testing.T) {
	setTestEnv(t)
	trail := audit.NewTrail()
	_, err := trail.Append("governor", "HEAL_APPLIED", "env_drift", "cert-1")
	require.NoError(t, err)
	_, err = trail.Append("governor", "ESCALATION", "deploy_failure", "rollback failed")
	require.NoError(t, err)

	entries := trail.Entries()
	raw, err := json.Marshal(entries)
	require.NoError(t, err)
	path := filepath.Join(t.TempDir(), "trail.json")
	require.NoError(t, os.WriteFile(path, raw, 0o600))

	code, stdout, _ := runCLI(t, "audit", "verify", path)
	assert.Equal(t, 0, code)
	assert.Contains(t, stdout, "chain intact")

	entries[1].Details = "tampered"
	raw, err = json.Marshal(entries)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, raw, 0o600))

	code, _, stderr := runCLI(t, "audit", "verify", path)
	assert.Equal(t, 1, code)
	assert.Contains(t, stderr, "chain broken")
}

func TestAuditUsage(t *testing.T) {
	code, _, stderr := runCLI(t, "audit")
	assert.Equal(t, 2, code)
	assert.Contains(t, stderr, "Usage")
}

func TestApproveRequiresSecret(t *testing.T) {
	setTestEnv(t)
	t.Setenv("REMEDY_APPROVAL_SECRET", "")
	code, _, stderr := runCLI(t, "approve", "plan-1")
	assert.Equal(t, 1, code)
	assert.Contains(t, stderr, "REMEDY_APPROVAL_SECRET")
}

func TestApproveMintsValidToken(t *testing.T) {
	setTestEnv(t)
	t.Setenv("REMEDY_APPROVAL_SECRET", "a-shared-secret")
	t.Setenv("REMEDY_OWNER_HANDLE", "ops-lead")

	code, stdout, _ := runCLI(t, "approve", "-tier", "ARCHIVE", "plan-42")
	require.Equal(t, 0, code)

	token := trimNewline(stdout)
	minter, err := approval.NewMinter("a-shared-secret", approval.DefaultTTL)
	require.NoError(t, err)
	require.NoError(t, minter.Validate(token, "plan-42"))

	claims, err := minter.Parse(token)
	require.NoError(t, err)
	assert.Equal(t, contracts.PolicyArchive, claims.Tier)
	assert.Equal(t, "ops-lead", claims.Approver)
}

func TestApproveRejectsBadTier(t *testing.T) {
	setTestEnv(t)
	t.Setenv("REMEDY_APPROVAL_SECRET", "s")
	code, _, stderr := runCLI(t, "approve", "-tier", "YOLO", "plan-1")
	assert.Equal(t, 2, code)
	assert.Contains(t, stderr, "unknown policy tier")
}

func TestRollbackUsage(t *testing.T) {
	setTestEnv(t)
	code, _, stderr := runCLI(t, "rollback")
	assert.Equal(t, 2, code)
	assert.Contains(t, stderr, "Usage")
}

func TestRollbackUnknownPatch(t *testing.T) {
	setTestEnv(t)
	code, stdout, _ := runCLI(t, "rollback", "patch_missing")
	assert.Equal(t, 1, code)

	var result contracts.RollbackResult
	require.NoError(t, json.Unmarshal([]byte(stdout), &result))
	assert.False(t, result.Success)
}

func TestMarkCertifiedStampsJournaledPatches(t *testing.T) {
	jnl, err := journal.Open(filepath.Join(t.TempDir(), "journal"))
	require.NoError(t, err)

	require.NoError(t, jnl.Save(contracts.Patch{ID: "patch_a", FilesModified: []string{"a.py"}}))
	require.NoError(t, jnl.Save(contracts.Patch{ID: "patch_b", FilesModified: []string{"b.py"}}))

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	markCertified(jnl, []string{"patch_a", "patch_b", "patch_missing"}, "cert-42", logger)

	for _, id := range []string{"patch_a", "patch_b"} {
		patch, err := jnl.Load(id)
		require.NoError(t, err)
		assert.True(t, patch.Certified, "patch %s not stamped", id)
		assert.Equal(t, "cert-42", patch.CertificateID)
	}
}

func trimNewline(s string) string {
	for len(s) > 0 && (s[len(s)-1] == '\n' || s[len(s)-1] == '\r') {
		s = s[:len(s)-1]
	}
	return s
}
