// Package integrity implements the source-level remediation pipeline:
// discover → analyze → plan → fix → verify → report, with journaled
// pre-image snapshots backing byte-for-byte rollback.
package integrity

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/Mindburn-Labs/remedy/pkg/audit"
	"github.com/Mindburn-Labs/remedy/pkg/contracts"
	"github.com/Mindburn-Labs/remedy/pkg/events"
	"github.com/Mindburn-Labs/remedy/pkg/journal"
)

// excludedDirs are never descended into during discovery or repository
// scans.
var excludedDirs = map[string]bool{
	".git": true, "__pycache__": true, "node_modules": true,
	"dist": true, "build": true, ".cache": true,
	"venv": true, "env": true, ".venv": true,
	"vault": true, "logs": true, ".remedy": true,
}

// scanExtensions is the file extension allowlist for discovery.
var scanExtensions = map[string]bool{
	".py": true, ".js": true, ".ts": true,
	".jsx": true, ".tsx": true, ".md": true,
}

// analyzeParallelism bounds concurrent per-file analysis.
const analyzeParallelism = 8

// ApproveFunc validates an operator approval token against a plan id.
type ApproveFunc func(token, planID string) error

// Pipeline orchestrates the integrity stages over one target tree.
type Pipeline struct {
	root      string
	journal   *journal.Journal
	analyzers []Analyzer
	fixers    []Fixer
	publisher events.Publisher
	logs      *audit.Logs
	approve   ApproveFunc
	logger    *slog.Logger

	mu          sync.Mutex
	lastSummary *contracts.Summary
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithPublisher wires the event bus for fix.applied / fix.rollback topics.
func WithPublisher(p events.Publisher) Option {
	return func(pl *Pipeline) { pl.publisher = p }
}

// WithLogs wires the ring logs for rollback records.
func WithLogs(l *audit.Logs) Option {
	return func(pl *Pipeline) { pl.logs = l }
}

// WithApprover wires approval-token validation for REFACTOR and ARCHIVE
// plans.
func WithApprover(fn ApproveFunc) Option {
	return func(pl *Pipeline) { pl.approve = fn }
}

// WithAnalyzers replaces the default analyzer set.
func WithAnalyzers(a []Analyzer) Option {
	return func(pl *Pipeline) { pl.analyzers = a }
}

// New builds a pipeline over root with its journal under journalDir.
func New(root, journalDir string, opts ...Option) (*Pipeline, error) {
	j, err := journal.Open(journalDir)
	if err != nil {
		return nil, err
	}

	p := &Pipeline{
		root:      root,
		journal:   j,
		analyzers: defaultAnalyzers(root),
		fixers:    defaultFixers(),
		logger:    slog.Default().With("component", "integrity"),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p, nil
}

// Journal exposes the patch journal for CLI inspection.
func (p *Pipeline) Journal() *journal.Journal { return p.journal }

// Discover enumerates candidate files relative to the pipeline root, or
// returns the explicit list unchanged.
func (p *Pipeline) Discover(paths []string) ([]string, error) {
	if len(paths) > 0 {
		return paths, nil
	}

	var files []string
	err := filepath.WalkDir(p.root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return nil //nolint:nilerr // best-effort scan
		}
		if d.IsDir() {
			if excludedDirs[d.Name()] {
				return filepath.SkipDir
			}
			return nil
		}
		if !scanExtensions[filepath.Ext(d.Name())] {
			return nil
		}
		rel, err := filepath.Rel(p.root, path)
		if err != nil {
			return nil //nolint:nilerr
		}
		files = append(files, filepath.ToSlash(rel))
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("integrity: discover: %w", err)
	}
	sort.Strings(files)
	return files, nil
}

// Analyze runs every per-file analyzer over the files (in parallel across
// independent files), then the repository-level scanners. Unreadable files
// and analyzer panics skip that file: scanning is best-effort.
func (p *Pipeline) Analyze(ctx context.Context, files []string) []contracts.Finding {
	var mu sync.Mutex
	var findings []contracts.Finding

	g, _ := errgroup.WithContext(ctx)
	g.SetLimit(analyzeParallelism)

	for _, rel := range files {
		g.Go(func() error {
			raw, err := os.ReadFile(filepath.Join(p.root, filepath.FromSlash(rel)))
			if err != nil {
				return nil //nolint:nilerr // skip unreadable files
			}
			content := string(raw)

			fileFindings := p.analyzeOne(rel, content)
			if len(fileFindings) == 0 {
				return nil
			}

			mu.Lock()
			findings = append(findings, fileFindings...)
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	for _, a := range p.analyzers {
		scanner, ok := a.(RepoScanner)
		if !ok {
			continue
		}
		findings = append(findings, scanner.ScanRepository()...)
	}

	sort.Slice(findings, func(i, k int) bool { return findings[i].ID < findings[k].ID })
	return findings
}

// analyzeOne runs all per-file analyzers on one file, containing panics so
// a misbehaving analyzer cannot take down the scan.
func (p *Pipeline) analyzeOne(rel, content string) (findings []contracts.Finding) {
	for _, a := range p.analyzers {
		func() {
			defer func() {
				if r := recover(); r != nil {
					p.logger.Warn("analyzer panicked", "analyzer", a.Name(), "file", rel, "panic", r)
				}
			}()
			findings = append(findings, a.Analyze(rel, content)...)
		}()
	}
	return findings
}

// policyCategories maps each tier to the finding categories it may act on.
// LINT_ONLY is absent: it plans zero actions for any finding set.
var policyCategories = map[contracts.PolicyTier]map[string]bool{
	contracts.PolicySafeEdit: {
		contracts.CategoryDeprecated:  true,
		contracts.CategoryStub:        true,
		contracts.CategoryConfigSmell: true,
	},
	contracts.PolicyRefactor: {
		contracts.CategoryDeprecated:     true,
		contracts.CategoryStub:           true,
		contracts.CategoryImportHealth:   true,
		contracts.CategoryRouteIntegrity: true,
	},
	contracts.PolicyArchive: {
		contracts.CategoryDuplicate: true,
		contracts.CategoryDeadFile:  true,
	},
}

// BuildPlan filters findings by policy tier into an executable plan.
func (p *Pipeline) BuildPlan(findings []contracts.Finding, policy contracts.PolicyTier) contracts.Plan {
	allowed := policyCategories[policy]
	actionType := "fix"
	if policy == contracts.PolicyArchive {
		actionType = "archive"
	}

	var planned []contracts.Finding
	var actions []contracts.PlannedAction
	for _, f := range findings {
		if !allowed[f.Category] {
			continue
		}
		planned = append(planned, f)
		actions = append(actions, contracts.PlannedAction{
			Type:      actionType,
			FindingID: f.ID,
			Target:    f.FilePath,
		})
	}

	return contracts.Plan{
		ID:               "plan_" + uuid.NewString(),
		Policy:           policy,
		Findings:         planned,
		Actions:          actions,
		EstimatedImpact:  fmt.Sprintf("%d findings, %d actions", len(planned), len(actions)),
		RequiresApproval: policy.RequiresApproval(),
		CreatedAt:        time.Now().UTC().Format(time.RFC3339),
	}
}

// Fix applies every planned action, snapshotting each file into the
// journal before its first mutation and recording a unified diff. A failed
// action is reported in the patch without aborting its siblings.
func (p *Pipeline) Fix(ctx context.Context, plan contracts.Plan) (contracts.Patch, error) {
	patch := contracts.Patch{
		ID:                "patch_" + uuid.NewString(),
		PlanID:            plan.ID,
		Timestamp:         time.Now().UTC().Format(time.RFC3339),
		RollbackAvailable: true,
		Metadata:          map[string]string{"policy": string(plan.Policy)},
	}

	var diffs []string
	modified := make(map[string]bool)

	for _, action := range plan.Actions {
		if err := ctx.Err(); err != nil {
			break
		}

		finding := plan.FindingByID(action.FindingID)
		if finding == nil {
			patch.FailedActions = append(patch.FailedActions, contracts.FailedAction{
				FindingID: action.FindingID,
				File:      action.Target,
				Error:     "finding missing from plan",
			})
			continue
		}

		fileDiff, err := p.applyAction(patch.ID, action, *finding)
		if err != nil {
			patch.FailedActions = append(patch.FailedActions, contracts.FailedAction{
				FindingID: action.FindingID,
				File:      action.Target,
				Error:     err.Error(),
			})
			continue
		}
		if fileDiff == "" {
			continue
		}

		diffs = append(diffs, fileDiff)
		if !modified[finding.FilePath] {
			modified[finding.FilePath] = true
			patch.FilesModified = append(patch.FilesModified, finding.FilePath)
		}
	}

	patch.Diff = strings.Join(diffs, "")

	if err := p.journal.Save(patch); err != nil {
		return patch, err
	}

	if p.publisher != nil {
		p.publisher.Publish(events.TopicFixApplied, map[string]any{
			"patch_id":       patch.ID,
			"plan_id":        plan.ID,
			"files_modified": patch.FilesModified,
			"fixes_failed":   len(patch.FailedActions),
		})
	}
	return patch, nil
}

// applyAction executes a single fix or archive action and returns the
// unified diff of what changed ("" when nothing changed).
func (p *Pipeline) applyAction(patchID string, action contracts.PlannedAction, finding contracts.Finding) (string, error) {
	rel := finding.FilePath
	abs := filepath.Join(p.root, filepath.FromSlash(rel))

	before, existed, err := readIfExists(abs)
	if err != nil {
		return "", err
	}

	// Snapshot once per file per patch, before the first mutation.
	if !p.journal.HasPreImage(patchID, rel) {
		if err := p.journal.SnapshotPreImage(patchID, rel, before, existed); err != nil {
			return "", err
		}
	}

	switch action.Type {
	case "archive":
		if !existed {
			return "", fmt.Errorf("archive target %s does not exist", rel)
		}
		if err := os.Remove(abs); err != nil {
			return "", fmt.Errorf("archive %s: %w", rel, err)
		}
		return unifiedDiff(rel, string(before), "")

	case "fix":
		fixer := p.fixerFor(finding)
		if fixer == nil {
			return "", fmt.Errorf("no fixer handles analyzer %q", finding.Analyzer)
		}
		if err := fixer.Fix(abs, finding); err != nil {
			return "", err
		}

		after, _, err := readIfExists(abs)
		if err != nil {
			return "", err
		}
		if string(after) == string(before) {
			return "", nil
		}
		return unifiedDiff(rel, string(before), string(after))

	default:
		return "", fmt.Errorf("unknown action type %q", action.Type)
	}
}

func (p *Pipeline) fixerFor(finding contracts.Finding) Fixer {
	for _, f := range p.fixers {
		if f.CanFix(finding) {
			return f
		}
	}
	return nil
}

// Report assembles the run summary.
func (p *Pipeline) Report(findings []contracts.Finding, patches []contracts.Patch, policy contracts.PolicyTier, dryRun bool, duration time.Duration) contracts.Summary {
	bySeverity := make(map[string]int)
	byCategory := make(map[string]int)
	for _, f := range findings {
		bySeverity[string(f.Severity)]++
		byCategory[f.Category]++
	}

	applied, failed := 0, 0
	for _, patch := range patches {
		applied += len(patch.FilesModified)
		failed += len(patch.FailedActions)
	}

	summary := contracts.Summary{
		RunID:              "run_" + uuid.NewString(),
		Timestamp:          time.Now().UTC().Format(time.RFC3339),
		Policy:             policy,
		DryRun:             dryRun,
		FindingsCount:      len(findings),
		FindingsBySeverity: bySeverity,
		FindingsByCategory: byCategory,
		FixesApplied:       applied,
		FixesFailed:        failed,
		DurationSeconds:    duration.Seconds(),
		Findings:           findings,
		Patches:            patches,
	}

	p.mu.Lock()
	p.lastSummary = &summary
	p.mu.Unlock()
	return summary
}

// LastSummary returns the most recent run summary, or nil.
func (p *Pipeline) LastSummary() *contracts.Summary {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.lastSummary
}

// RunOptions parameterize one pipeline run.
type RunOptions struct {
	Policy        contracts.PolicyTier
	DryRun        bool
	Apply         bool
	Paths         []string
	ApprovalToken string
}

// Run executes the full pipeline. Stages are strictly sequential and none
// is skipped; fixes are only applied when Apply is set, the run is not a
// dry run, and any required approval token validates.
func (p *Pipeline) Run(ctx context.Context, opts RunOptions) (contracts.Summary, error) {
	start := time.Now()

	policy := opts.Policy
	if policy == "" {
		policy = contracts.PolicySafeEdit
	}

	files, err := p.Discover(opts.Paths)
	if err != nil {
		return contracts.Summary{}, err
	}

	findings := p.Analyze(ctx, files)
	plan := p.BuildPlan(findings, policy)

	var patches []contracts.Patch
	if opts.Apply && !opts.DryRun && len(plan.Actions) > 0 {
		if err := p.checkApproval(plan, opts.ApprovalToken); err != nil {
			p.logger.Warn("fixes skipped", "plan_id", plan.ID, "error", err)
		} else {
			patch, err := p.Fix(ctx, plan)
			if err != nil {
				return contracts.Summary{}, err
			}
			if p.Verify(patch) {
				patches = append(patches, patch)
			} else {
				patch = p.rollbackUnverified(ctx, patch)
				if len(patch.FailedActions) > 0 {
					patches = append(patches, patch)
				}
			}
		}
	}

	return p.Report(findings, patches, policy, opts.DryRun, time.Since(start)), nil
}

// rollbackUnverified unwinds a patch that failed verification: every file
// it touched is restored from its pre-image and reported as a failed
// action. The mutations never count as applied fixes.
func (p *Pipeline) rollbackUnverified(ctx context.Context, patch contracts.Patch) contracts.Patch {
	p.logger.Warn("patch failed verification", "patch_id", patch.ID, "files", len(patch.FilesModified))
	if len(patch.FilesModified) == 0 {
		return patch
	}

	rb := p.Rollback(ctx, patch.ID, true)
	reason := "verification failed, changes rolled back"
	if !rb.Success {
		reason = fmt.Sprintf("verification failed, rollback incomplete: %s", rb.Error)
	}
	for _, f := range patch.FilesModified {
		patch.FailedActions = append(patch.FailedActions, contracts.FailedAction{
			File:  f,
			Error: reason,
		})
	}
	patch.FilesModified = nil
	return patch
}

// checkApproval enforces the operator gate on REFACTOR and ARCHIVE plans.
func (p *Pipeline) checkApproval(plan contracts.Plan, token string) error {
	if !plan.RequiresApproval {
		return nil
	}
	if p.approve == nil || token == "" {
		return contracts.ErrApprovalRequired
	}
	return p.approve(token, plan.ID)
}

// Rollback restores every pre-image snapshot recorded for a patch. It
// fails closed for unknown patches and for patches marked non-rollbackable
// unless force is set. Partial restore failures populate Error and leave
// Success false: the system is then in an unknown state and the caller
// must escalate.
func (p *Pipeline) Rollback(_ context.Context, patchID string, force bool) contracts.RollbackResult {
	result := contracts.RollbackResult{
		ID:        "rollback_" + patchID,
		PatchID:   patchID,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}

	patch, err := p.journal.Load(patchID)
	if err != nil {
		result.Error = "patch not found"
		p.recordRollback(result)
		return result
	}
	if !patch.RollbackAvailable && !force {
		result.Error = "rollback not available for this patch"
		p.recordRollback(result)
		return result
	}

	images, err := p.journal.PreImages(patchID)
	if err != nil {
		result.Error = err.Error()
		p.recordRollback(result)
		return result
	}

	var failures []string
	for _, img := range images {
		abs := filepath.Join(p.root, filepath.FromSlash(img.Path))
		if img.Existed {
			if err := os.MkdirAll(filepath.Dir(abs), 0o755); err != nil {
				failures = append(failures, fmt.Sprintf("%s: %v", img.Path, err))
				continue
			}
			if err := os.WriteFile(abs, img.Content, 0o644); err != nil {
				failures = append(failures, fmt.Sprintf("%s: %v", img.Path, err))
				continue
			}
		} else {
			if err := os.Remove(abs); err != nil && !os.IsNotExist(err) {
				failures = append(failures, fmt.Sprintf("%s: %v", img.Path, err))
				continue
			}
		}
		result.RestoredFiles = append(result.RestoredFiles, img.Path)
	}

	if len(failures) > 0 {
		result.Error = strings.Join(failures, "; ")
	} else {
		result.Success = true
	}

	p.recordRollback(result)
	return result
}

func (p *Pipeline) recordRollback(result contracts.RollbackResult) {
	if p.logs != nil {
		entry := map[string]any{
			"rollback_id": result.ID,
			"patch_id":    result.PatchID,
			"success":     result.Success,
		}
		if result.Error != "" {
			entry["error"] = result.Error
		}
		if err := p.logs.Rollback.Append(entry); err != nil {
			p.logger.Warn("rollback log append failed", "error", err)
		}
	}
	if p.publisher != nil {
		p.publisher.Publish(events.TopicFixRollback, map[string]any{
			"patch_id":       result.PatchID,
			"success":        result.Success,
			"restored_files": result.RestoredFiles,
		})
	}
}

func readIfExists(path string) ([]byte, bool, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("read %s: %w", path, err)
	}
	return data, true, nil
}
