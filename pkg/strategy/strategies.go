package strategy

import (
	"context"
	"fmt"
	"regexp"
	"time"

	"golang.org/x/time/rate"

	"github.com/Mindburn-Labs/remedy/pkg/certify"
	"github.com/Mindburn-Labs/remedy/pkg/contracts"
	"github.com/Mindburn-Labs/remedy/pkg/integrity"
)

// deployLimit bounds calls to the deployment platform: one retry or
// rollback per minute with a small burst, protecting the platform from a
// retry storm the governor's own guardrails let through.
var deployLimit = rate.Every(time.Minute)

// Retry retries the last deployment through a rate-limited client.
type Retry struct {
	client  DeployClient
	limiter *rate.Limiter
}

// NewRetry wraps a deploy client.
func NewRetry(client DeployClient) *Retry {
	return &Retry{client: client, limiter: rate.NewLimiter(deployLimit, 2)}
}

func (s *Retry) Name() string { return "retry_deploy" }

func (s *Retry) Execute(ctx context.Context, _ []string) (map[string]any, error) {
	if err := s.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("retry: limiter: %w", err)
	}
	result, err := s.client.RetryLastDeploy(ctx)
	if err != nil {
		return nil, fmt.Errorf("retry last deploy: %w", err)
	}
	return withStatus(result, "retried"), nil
}

// RollbackDeploy rolls back the last deployment through the same client.
type RollbackDeploy struct {
	client  DeployClient
	limiter *rate.Limiter
}

// NewRollbackDeploy wraps a deploy client.
func NewRollbackDeploy(client DeployClient) *RollbackDeploy {
	return &RollbackDeploy{client: client, limiter: rate.NewLimiter(deployLimit, 2)}
}

func (s *RollbackDeploy) Name() string { return "rollback_deploy" }

func (s *RollbackDeploy) Execute(ctx context.Context, _ []string) (map[string]any, error) {
	if err := s.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rollback: limiter: %w", err)
	}
	result, err := s.client.RollbackLastDeploy(ctx)
	if err != nil {
		return nil, fmt.Errorf("rollback last deploy: %w", err)
	}
	return withStatus(result, "rolled_back"), nil
}

// RepairConfig re-emits platform configuration for the decision's targets.
type RepairConfig struct {
	generator ConfigGenerator
}

// NewRepairConfig wraps a config generator.
func NewRepairConfig(generator ConfigGenerator) *RepairConfig {
	return &RepairConfig{generator: generator}
}

func (s *RepairConfig) Name() string { return "repair_config" }

func (s *RepairConfig) Execute(ctx context.Context, targets []string) (map[string]any, error) {
	if len(targets) == 0 {
		targets = []string{"netlify"}
	}
	result, err := s.generator.Repair(ctx, targets)
	if err != nil {
		return nil, fmt.Errorf("repair config: %w", err)
	}
	result = withStatus(result, "repaired")
	result["platforms"] = targets
	return result, nil
}

// RegenerateConfig rebuilds all configuration from the blueprint.
type RegenerateConfig struct {
	generator ConfigGenerator
}

// NewRegenerateConfig wraps a config generator.
func NewRegenerateConfig(generator ConfigGenerator) *RegenerateConfig {
	return &RegenerateConfig{generator: generator}
}

func (s *RegenerateConfig) Name() string { return "regenerate_config" }

func (s *RegenerateConfig) Execute(ctx context.Context, _ []string) (map[string]any, error) {
	result, err := s.generator.Regenerate(ctx)
	if err != nil {
		return nil, fmt.Errorf("regenerate config: %w", err)
	}
	return withStatus(result, "regenerated"), nil
}

var secretKeyPattern = regexp.MustCompile(`(?i)(secret|token|password|pwd|credential|private)`)

// SyncEnvs reconciles environment variables across providers.
type SyncEnvs struct {
	syncer EnvSyncer
}

// NewSyncEnvs wraps an env syncer.
func NewSyncEnvs(syncer EnvSyncer) *SyncEnvs {
	return &SyncEnvs{syncer: syncer}
}

func (s *SyncEnvs) Name() string { return "sync_envs" }

func (s *SyncEnvs) Execute(ctx context.Context, _ []string) (map[string]any, error) {
	report, err := s.syncer.Sync(ctx)
	if err != nil {
		return nil, fmt.Errorf("sync envs: %w", err)
	}
	return map[string]any{
		"status":  "synced",
		"created": maskSecretKeys(report.Created),
		"updated": maskSecretKeys(report.Updated),
		"skipped": maskSecretKeys(report.Skipped),
	}, nil
}

// maskSecretKeys obscures key names that look like credentials. Values are
// never carried in reports; this guards the names too.
func maskSecretKeys(keys []string) []string {
	out := make([]string, len(keys))
	for i, k := range keys {
		if secretKeyPattern.MatchString(k) {
			if len(k) > 4 {
				k = k[:4] + "***"
			} else {
				k = "***"
			}
		}
		out[i] = k
	}
	return out
}

// SyncAndCertify runs an environment sync followed by an immediate
// certification probe of the sync report; used for whole-deploy failures.
type SyncAndCertify struct {
	sync      *SyncEnvs
	certifier certify.Certifier
}

// NewSyncAndCertify wraps a syncer and a certifier.
func NewSyncAndCertify(syncer EnvSyncer, certifier certify.Certifier) *SyncAndCertify {
	return &SyncAndCertify{sync: NewSyncEnvs(syncer), certifier: certifier}
}

func (s *SyncAndCertify) Name() string { return "sync_and_certify" }

func (s *SyncAndCertify) Execute(ctx context.Context, targets []string) (map[string]any, error) {
	result, err := s.sync.Execute(ctx, targets)
	if err != nil {
		return nil, err
	}

	probe, err := s.certifier.Certify(ctx, result)
	if err != nil {
		return nil, fmt.Errorf("certification probe: %w", err)
	}
	result["probe_certified"] = probe.Certified
	result["probe_reason"] = probe.Reason
	if !probe.Certified {
		return result, fmt.Errorf("sync probe rejected: %s", probe.Reason)
	}
	return result, nil
}

// RepairCode runs the integrity pipeline at the configured policy tier.
type RepairCode struct {
	pipeline *integrity.Pipeline
	policy   contracts.PolicyTier
}

// NewRepairCode wraps the pipeline.
func NewRepairCode(pipeline *integrity.Pipeline, policy contracts.PolicyTier) *RepairCode {
	if policy == "" {
		policy = contracts.PolicySafeEdit
	}
	return &RepairCode{pipeline: pipeline, policy: policy}
}

func (s *RepairCode) Name() string { return "repair_code" }

func (s *RepairCode) Execute(ctx context.Context, _ []string) (map[string]any, error) {
	summary, err := s.pipeline.Run(ctx, integrity.RunOptions{
		Policy: s.policy,
		Apply:  true,
	})
	if err != nil {
		return nil, fmt.Errorf("repair code: %w", err)
	}

	patchIDs := make([]string, 0, len(summary.Patches))
	rollbackAvailable := true
	for _, p := range summary.Patches {
		patchIDs = append(patchIDs, p.ID)
		rollbackAvailable = rollbackAvailable && p.RollbackAvailable
	}

	return map[string]any{
		"status":             "applied",
		"run_id":             summary.RunID,
		"policy":             string(summary.Policy),
		"findings_count":     summary.FindingsCount,
		"fixes_applied":      summary.FixesApplied,
		"fixes_failed":       summary.FixesFailed,
		"patch_ids":          patchIDs,
		"rollback_available": rollbackAvailable,
	}, nil
}

// withStatus stamps a default status onto a backend result, preserving a
// status the backend already set.
func withStatus(result map[string]any, status string) map[string]any {
	if result == nil {
		result = make(map[string]any)
	}
	if _, ok := result["status"]; !ok {
		result["status"] = status
	}
	return result
}
