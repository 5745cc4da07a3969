package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeProfile(t *testing.T, dir, name, body string) {
	t.Helper()
	path := filepath.Join(dir, "profile_"+name+".yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
}

func TestLoadProfile(t *testing.T) {
	dir := t.TempDir()
	writeProfile(t, dir, "staging", `
name: staging
requires: ">=1.0.0"
guardrails:
  max_actions_per_hour: 12
  cooldown_minutes: 1
rules:
  - expr: 'kind.startsWith("deploy.") && details.attempts < 3'
    action: RETRY
    reason: staged_retry
`)

	p, err := LoadProfile(dir, "STAGING")
	require.NoError(t, err)
	assert.Equal(t, "staging", p.Name)
	require.Len(t, p.Rules, 1)
	assert.Equal(t, "RETRY", p.Rules[0].Action)

	cfg := Load()
	p.Apply(cfg)
	assert.Equal(t, 12, cfg.MaxActionsPerHour)
	assert.Equal(t, 1*time.Minute, cfg.Cooldown)
	assert.Equal(t, 3, cfg.FailStreakTrip) // untouched
}

func TestLoadProfileMissing(t *testing.T) {
	_, err := LoadProfile(t.TempDir(), "nope")
	assert.Error(t, err)
}

func TestProfileEngineGate(t *testing.T) {
	dir := t.TempDir()
	writeProfile(t, dir, "future", "name: future\nrequires: \">=99.0.0\"\n")

	_, err := LoadProfile(dir, "future")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "requires engine")
}

func TestCheckEngineBadConstraint(t *testing.T) {
	p := &Profile{Name: "x", Requires: "not-a-range"}
	assert.Error(t, p.CheckEngine("1.0.0"))

	p = &Profile{Name: "x"}
	assert.NoError(t, p.CheckEngine("1.0.0"))
}
