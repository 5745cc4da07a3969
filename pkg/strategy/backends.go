package strategy

import "context"

// The strategy backends are external collaborators: deployment retry and
// rollback clients, config generators, environment sync engines, secret
// stores. The core only inspects their success or failure.

// DeployClient retries or rolls back the last deployment on a platform.
type DeployClient interface {
	RetryLastDeploy(ctx context.Context) (map[string]any, error)
	RollbackLastDeploy(ctx context.Context) (map[string]any, error)
}

// ConfigGenerator re-emits platform configuration from the blueprint.
type ConfigGenerator interface {
	// Repair heals the configuration of specific platforms in place.
	Repair(ctx context.Context, platforms []string) (map[string]any, error)
	// Regenerate rebuilds all configuration wholesale from the blueprint,
	// without diffing against live state.
	Regenerate(ctx context.Context) (map[string]any, error)
}

// SyncReport is what an environment reconciliation produced.
type SyncReport struct {
	Created []string `json:"created"`
	Updated []string `json:"updated"`
	Skipped []string `json:"skipped"`
}

// EnvSyncer reconciles environment variables across provider adapters.
type EnvSyncer interface {
	Sync(ctx context.Context) (SyncReport, error)
}

// SecretWriter stores one secret value under a key name.
type SecretWriter interface {
	WriteSecret(ctx context.Context, key, value string) error
}
