package main

import (
	"context"
	"crypto/rand"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/Mindburn-Labs/remedy/pkg/approval"
	"github.com/Mindburn-Labs/remedy/pkg/archive"
	"github.com/Mindburn-Labs/remedy/pkg/audit"
	"github.com/Mindburn-Labs/remedy/pkg/certify"
	"github.com/Mindburn-Labs/remedy/pkg/config"
	"github.com/Mindburn-Labs/remedy/pkg/contracts"
	"github.com/Mindburn-Labs/remedy/pkg/events"
	"github.com/Mindburn-Labs/remedy/pkg/governor"
	"github.com/Mindburn-Labs/remedy/pkg/history"
	"github.com/Mindburn-Labs/remedy/pkg/integrity"
	"github.com/Mindburn-Labs/remedy/pkg/journal"
	"github.com/Mindburn-Labs/remedy/pkg/observability"
	"github.com/Mindburn-Labs/remedy/pkg/platform"
	"github.com/Mindburn-Labs/remedy/pkg/scheduler"
	"github.com/Mindburn-Labs/remedy/pkg/strategy"
	"github.com/Mindburn-Labs/remedy/pkg/watch"
)

// runServe starts the daemon: event bus, integrity pipeline, strategy
// registry, governor, history ledger, optional scheduler and watcher, and
// the single incident loop that serializes everything through the governor.
func runServe(_ []string, _, stderr io.Writer) int {
	cfg, prof, err := loadConfig()
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "remedy serve: %v\n", err)
		return 1
	}
	setupLogging(cfg, stderr)
	logger := slog.Default().With("component", "daemon")

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	obs, err := observability.New(ctx, cfg)
	if err != nil {
		logger.Warn("telemetry disabled", "error", err)
		obs = nil
	} else {
		defer func() { _ = obs.Shutdown(context.Background()) }()
	}

	logs, err := audit.OpenLogs(filepath.Join(cfg.DataDir, "logs"))
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "remedy serve: open logs: %v\n", err)
		return 1
	}
	trail := audit.NewTrail()

	bus := events.NewBus(64)
	defer bus.Close()
	var pub events.Publisher = bus
	if cfg.RedisAddr != "" {
		redisPub, err := events.DialRedisPublisher(ctx, cfg.RedisAddr)
		if err != nil {
			logger.Warn("redis fanout unavailable, events stay in-process", "addr", cfg.RedisAddr, "error", err)
		} else {
			pub = events.Fanout{bus, redisPub}
		}
	}

	pipeOpts := []integrity.Option{integrity.WithPublisher(pub), integrity.WithLogs(logs)}
	if prof != nil && len(prof.Analyzers) > 0 {
		pipeOpts = append(pipeOpts, integrity.WithAnalyzers(integrity.AnalyzersByName(cfg.TargetRoot, prof.Analyzers)))
	}
	if cfg.ApprovalSecret != "" {
		minter, err := approval.NewMinter(cfg.ApprovalSecret, approval.DefaultTTL)
		if err != nil {
			_, _ = fmt.Fprintf(stderr, "remedy serve: approval: %v\n", err)
			return 1
		}
		pipeOpts = append(pipeOpts, integrity.WithApprover(minter.Validate))
	}
	pipeline, err := integrity.New(cfg.TargetRoot, filepath.Join(cfg.DataDir, "journal"), pipeOpts...)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "remedy serve: pipeline: %v\n", err)
		return 1
	}

	keyring, err := certify.NewMemoryKeyring()
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "remedy serve: keyring: %v\n", err)
		return 1
	}
	certifier, err := certify.NewLocalCertifier(keyring)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "remedy serve: certifier: %v\n", err)
		return 1
	}

	registry, err := buildRegistry(cfg, pipeline, certifier, logger)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "remedy serve: registry: %v\n", err)
		return 1
	}

	govOpts := []governor.Option{
		governor.WithPublisher(pub),
		governor.WithLogs(logs),
		governor.WithTrail(trail),
		governor.WithRollbacker(pipeline),
		governor.WithRules(profileRules(prof)),
	}

	ledger, err := history.Open(ctx, cfg.DatabaseURL, cfg.DataDir)
	if err != nil {
		logger.Warn("history ledger unavailable, outcomes will not persist", "error", err)
	} else {
		defer func() { _ = ledger.Close() }()
		govOpts = append(govOpts, governor.WithRecorder(ledger))
	}

	gov := governor.New(cfg, registry, certifier, govOpts...)

	var archiver *archive.Archiver
	store, err := archive.New(ctx, cfg)
	if err != nil {
		logger.Warn("evidence archive unavailable", "backend", cfg.ArchiveBackend, "error", err)
	} else {
		archiver = archive.NewArchiver(store, pipeline.Journal())
	}

	// All incident sources funnel into one channel; the governor is only
	// ever driven from the loop below.
	incidents := make(chan contracts.Incident, 64)
	intake := func(event events.Event) {
		inc := incidentFromPayload(event.Payload)
		if inc.Kind == "" {
			logger.Warn("dropping incident without kind", "topic", event.Topic)
			return
		}
		select {
		case incidents <- inc:
		default:
			logger.Warn("incident queue full, dropping", "kind", inc.Kind)
		}
	}
	defer bus.Subscribe(events.TopicIncident, intake)()
	defer bus.Subscribe(events.TopicEnvDrift, intake)()

	if len(cfg.WatchPaths) > 0 {
		watcher, err := watch.New(cfg.WatchPaths, watch.DefaultDebounce, bus)
		if err != nil {
			logger.Warn("watcher disabled", "error", err)
		} else {
			defer func() { _ = watcher.Close() }()
			go watcher.Run(ctx)
		}
	}

	if cfg.ScheduleEnabled {
		tier, err := contracts.ParsePolicyTier(cfg.Policy)
		if err != nil {
			logger.Warn("bad schedule policy, using SAFE_EDIT", "policy", cfg.Policy)
			tier = contracts.PolicySafeEdit
		}
		sched := scheduler.New(pipeline, cfg.ScheduleInterval, tier,
			scheduler.WithCertifier(certifier),
			scheduler.WithPublisher(pub),
			scheduler.WithLogs(logs),
			scheduler.WithOwner(cfg.OwnerHandle),
		)
		go sched.Run(ctx)
	}

	logger.Info("daemon started",
		"data_dir", cfg.DataDir,
		"target_root", cfg.TargetRoot,
		"watch_paths", len(cfg.WatchPaths),
		"schedule", cfg.ScheduleEnabled,
		"profile", cfg.Profile)

	for {
		select {
		case <-ctx.Done():
			logger.Info("daemon stopping")
			return 0
		case inc := <-incidents:
			handleIncident(ctx, gov, obs, archiver, pipeline.Journal(), inc, logger)
		}
	}
}

// handleIncident drives one incident through decide and execute, records
// telemetry, stamps certification onto the journaled patches, and archives
// the evidence.
func handleIncident(ctx context.Context, gov *governor.Governor, obs *observability.Provider, archiver *archive.Archiver, jnl *journal.Journal, inc contracts.Incident, logger *slog.Logger) {
	if obs != nil {
		spanCtx, span := obs.StartSpan(ctx, "governor.handle")
		defer span.End()
		ctx = spanCtx
	}

	started := time.Now()
	result := gov.Handle(ctx, inc)
	elapsed := time.Since(started)
	logger.Info("incident handled",
		"kind", inc.Kind,
		"action", result.Decision.Action,
		"reason", result.Decision.Reason,
		"status", result.Status,
		"certified", result.Certified)

	if obs != nil {
		obs.RecordDecision(ctx, string(result.Decision.Action), result.Decision.Reason)
		obs.RecordExecution(ctx, string(result.Status), elapsed)
	}

	if result.Certified {
		if ids := patchIDsFromReport(result.Report); len(ids) > 0 {
			certID, _ := result.CertInfo["certificate_id"].(string)
			markCertified(jnl, ids, certID, logger)
			if archiver != nil {
				archiver.ArchiveAll(ctx, ids)
			}
		}
	}
}

// markCertified writes the certification verdict back onto the journaled
// patches, so evidence bundles and later journal inspection carry it.
func markCertified(jnl *journal.Journal, patchIDs []string, certificateID string, logger *slog.Logger) {
	for _, id := range patchIDs {
		patch, err := jnl.Load(id)
		if err != nil {
			logger.Warn("certified patch missing from journal", "patch_id", id, "error", err)
			continue
		}
		patch.Certified = true
		patch.CertificateID = certificateID
		if err := jnl.Update(patch); err != nil {
			logger.Warn("certification stamp failed", "patch_id", id, "error", err)
		}
	}
}

// buildRegistry wires every repair strategy to its concrete backend. A
// backend whose configuration is absent leaves its actions unregistered;
// the governor reports them as unavailable instead of failing startup.
func buildRegistry(cfg *config.Config, pipeline *integrity.Pipeline, certifier certify.Certifier, logger *slog.Logger) (*strategy.Registry, error) {
	registry := strategy.NewRegistry()

	deploy := platform.NewDeployHooks(cfg.DeployRetryHook, cfg.DeployRollbackHook)
	if cfg.DeployRetryHook != "" {
		if err := registry.Register(contracts.ActionRetry, strategy.NewRetry(deploy)); err != nil {
			return nil, err
		}
	}
	if cfg.DeployRollbackHook != "" {
		if err := registry.Register(contracts.ActionRollback, strategy.NewRollbackDeploy(deploy)); err != nil {
			return nil, err
		}
	}

	if bp, err := platform.LoadBlueprint(cfg.BlueprintPath); err != nil {
		logger.Warn("blueprint unavailable, config repair disabled", "path", cfg.BlueprintPath, "error", err)
	} else {
		gen := platform.NewBlueprintGenerator(bp, cfg.TargetRoot)
		if err := registry.Register(contracts.ActionRepairConfig, strategy.NewRepairConfig(gen)); err != nil {
			return nil, err
		}
		if err := registry.Register(contracts.ActionRegenerateConfig, strategy.NewRegenerateConfig(gen)); err != nil {
			return nil, err
		}
	}

	envTargets := cfg.EnvTargets
	if len(envTargets) == 0 {
		envTargets = []string{cfg.SecretFile}
	}
	syncer := platform.NewEnvFileSyncer(cfg.EnvIntentPath, envTargets)
	if err := registry.Register(contracts.ActionSyncEnvs, strategy.NewSyncEnvs(syncer)); err != nil {
		return nil, err
	}
	if err := registry.Register(contracts.ActionSyncAndCertify, strategy.NewSyncAndCertify(syncer, certifier)); err != nil {
		return nil, err
	}

	seed := []byte(cfg.SecretSeed)
	if len(seed) == 0 {
		seed = make([]byte, 32)
		if _, err := rand.Read(seed); err != nil {
			return nil, fmt.Errorf("generate secret seed: %w", err)
		}
	}
	writer := &platform.EnvFileWriter{Path: cfg.SecretFile}
	if err := registry.Register(contracts.ActionCreateSecret, strategy.NewCreateSecret(seed, writer)); err != nil {
		return nil, err
	}

	tier, err := contracts.ParsePolicyTier(cfg.Policy)
	if err != nil {
		tier = contracts.PolicySafeEdit
	}
	if err := registry.Register(contracts.ActionRepairCode, strategy.NewRepairCode(pipeline, tier)); err != nil {
		return nil, err
	}

	return registry, nil
}

// incidentFromPayload rebuilds an incident from a bus event payload.
func incidentFromPayload(payload map[string]any) contracts.Incident {
	kind, _ := payload["kind"].(string)
	source, _ := payload["source"].(string)
	details, _ := payload["details"].(map[string]any)
	return contracts.NewIncident(kind, source, details)
}

// patchIDsFromReport extracts journaled patch ids from a strategy report.
func patchIDsFromReport(report map[string]any) []string {
	raw, ok := report["patch_ids"]
	if !ok {
		return nil
	}
	switch v := raw.(type) {
	case []string:
		return v
	case []any:
		ids := make([]string, 0, len(v))
		for _, item := range v {
			if s, ok := item.(string); ok {
				ids = append(ids, s)
			}
		}
		return ids
	}
	return nil
}
