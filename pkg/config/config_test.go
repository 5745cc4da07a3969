package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLoadDefaults(t *testing.T) {
	cfg := Load()
	assert.Equal(t, 6, cfg.MaxActionsPerHour)
	assert.Equal(t, 5*time.Minute, cfg.Cooldown)
	assert.Equal(t, 3, cfg.FailStreakTrip)
	assert.Equal(t, 12*time.Hour, cfg.ScheduleInterval)
	assert.Equal(t, "SAFE_EDIT", cfg.Policy)
	assert.True(t, cfg.TruthMandatory)
	assert.False(t, cfg.ScheduleEnabled)
	assert.Equal(t, ".remedy", cfg.DataDir)
	assert.Equal(t, "fail_open", cfg.CertifyFailMode)
	assert.Equal(t, "fs", cfg.ArchiveBackend)
	assert.Equal(t, "blueprint.yaml", cfg.BlueprintPath)
	assert.Equal(t, ".env", cfg.SecretFile)
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("REMEDY_MAX_ACTIONS_PER_HOUR", "2")
	t.Setenv("REMEDY_COOLDOWN_MINUTES", "30")
	t.Setenv("REMEDY_TRUTH_MANDATORY", "false")
	t.Setenv("REMEDY_SCHEDULE_ENABLED", "1")
	t.Setenv("REMEDY_WATCH_PATHS", ".env, deploy/.env.production ,")

	cfg := Load()
	assert.Equal(t, 2, cfg.MaxActionsPerHour)
	assert.Equal(t, 30*time.Minute, cfg.Cooldown)
	assert.False(t, cfg.TruthMandatory)
	assert.True(t, cfg.ScheduleEnabled)
	assert.Equal(t, []string{".env", "deploy/.env.production"}, cfg.WatchPaths)
}

func TestLoadIgnoresGarbageInts(t *testing.T) {
	t.Setenv("REMEDY_FAIL_STREAK_TRIP", "many")
	cfg := Load()
	assert.Equal(t, 3, cfg.FailStreakTrip)
}

func TestVersionOverride(t *testing.T) {
	assert.Equal(t, EngineVersion, Version())
	t.Setenv("REMEDY_ENGINE_VERSION", "9.9.9")
	assert.Equal(t, "9.9.9", Version())
}
