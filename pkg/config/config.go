// Package config loads controller configuration from the environment and
// optional YAML profiles.
package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// EngineVersion is the controller version profiles gate against. Overridable
// for tests via REMEDY_ENGINE_VERSION.
const EngineVersion = "1.4.0"

// Config holds the remediation controller configuration.
//
//nolint:govet // fieldalignment: struct layout is human-readable
type Config struct {
	// Guardrails.
	MaxActionsPerHour int
	Cooldown          time.Duration
	FailStreakTrip    int

	// Scheduler.
	ScheduleEnabled  bool
	ScheduleInterval time.Duration
	Policy           string
	TruthMandatory   bool

	// Paths.
	DataDir    string
	TargetRoot string
	WatchPaths []string

	// Certification.
	CertifyFailMode string // "fail_open" | "fail_closed"

	// Backends.
	DatabaseURL string
	RedisAddr   string

	// Strategy collaborators.
	DeployRetryHook    string
	DeployRollbackHook string
	BlueprintPath      string
	EnvIntentPath      string
	EnvTargets         []string
	SecretFile         string
	SecretSeed         string

	// Evidence archive.
	ArchiveBackend  string // "fs" | "s3" | "gcs"
	ArchiveBucket   string
	ArchiveRegion   string
	ArchiveEndpoint string
	ArchivePrefix   string

	// Operator.
	OwnerHandle    string
	ApprovalSecret string

	// Profiles.
	Profile    string
	ProfileDir string

	// Telemetry.
	OTelEnabled  bool
	OTLPEndpoint string
	LogLevel     string
}

// Load reads configuration from environment variables, applying defaults
// for everything unset.
func Load() *Config {
	return &Config{
		MaxActionsPerHour: getInt("REMEDY_MAX_ACTIONS_PER_HOUR", 6),
		Cooldown:          time.Duration(getInt("REMEDY_COOLDOWN_MINUTES", 5)) * time.Minute,
		FailStreakTrip:    getInt("REMEDY_FAIL_STREAK_TRIP", 3),

		ScheduleEnabled:  getBool("REMEDY_SCHEDULE_ENABLED", false),
		ScheduleInterval: time.Duration(getInt("REMEDY_SCHEDULE_INTERVAL_HOURS", 12)) * time.Hour,
		Policy:           getString("REMEDY_POLICY", "SAFE_EDIT"),
		TruthMandatory:   getBool("REMEDY_TRUTH_MANDATORY", true),

		DataDir:    getString("REMEDY_DATA_DIR", ".remedy"),
		TargetRoot: getString("REMEDY_TARGET_ROOT", "."),
		WatchPaths: getList("REMEDY_WATCH_PATHS"),

		CertifyFailMode: getString("REMEDY_CERTIFY_FAIL_MODE", "fail_open"),

		DatabaseURL: os.Getenv("REMEDY_DATABASE_URL"),
		RedisAddr:   os.Getenv("REMEDY_REDIS_ADDR"),

		DeployRetryHook:    os.Getenv("REMEDY_DEPLOY_RETRY_HOOK"),
		DeployRollbackHook: os.Getenv("REMEDY_DEPLOY_ROLLBACK_HOOK"),
		BlueprintPath:      getString("REMEDY_BLUEPRINT_PATH", "blueprint.yaml"),
		EnvIntentPath:      getString("REMEDY_ENV_INTENT", ".env.intent"),
		EnvTargets:         getList("REMEDY_ENV_TARGETS"),
		SecretFile:         getString("REMEDY_SECRET_FILE", ".env"),
		SecretSeed:         os.Getenv("REMEDY_SECRET_SEED"),

		ArchiveBackend:  getString("REMEDY_ARCHIVE_BACKEND", "fs"),
		ArchiveBucket:   os.Getenv("REMEDY_ARCHIVE_BUCKET"),
		ArchiveRegion:   os.Getenv("REMEDY_ARCHIVE_REGION"),
		ArchiveEndpoint: os.Getenv("REMEDY_ARCHIVE_ENDPOINT"),
		ArchivePrefix:   os.Getenv("REMEDY_ARCHIVE_PREFIX"),

		OwnerHandle:    os.Getenv("REMEDY_OWNER_HANDLE"),
		ApprovalSecret: os.Getenv("REMEDY_APPROVAL_SECRET"),

		Profile:    os.Getenv("REMEDY_PROFILE"),
		ProfileDir: getString("REMEDY_PROFILE_DIR", "profiles"),

		OTelEnabled:  getBool("REMEDY_OTEL_ENABLED", false),
		OTLPEndpoint: getString("REMEDY_OTLP_ENDPOINT", "localhost:4317"),
		LogLevel:     getString("REMEDY_LOG_LEVEL", "INFO"),
	}
}

// Version returns the engine version, honoring the test override.
func Version() string {
	if v := os.Getenv("REMEDY_ENGINE_VERSION"); v != "" {
		return v
	}
	return EngineVersion
}

func getString(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

func getBool(key string, fallback bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	return strings.EqualFold(v, "true") || v == "1"
}

func getList(key string) []string {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
