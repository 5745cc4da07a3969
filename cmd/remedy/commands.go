package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/Mindburn-Labs/remedy/pkg/approval"
	"github.com/Mindburn-Labs/remedy/pkg/audit"
	"github.com/Mindburn-Labs/remedy/pkg/contracts"
	"github.com/Mindburn-Labs/remedy/pkg/governor"
	"github.com/Mindburn-Labs/remedy/pkg/history"
	"github.com/Mindburn-Labs/remedy/pkg/integrity"
	"github.com/Mindburn-Labs/remedy/pkg/journal"
	"github.com/Mindburn-Labs/remedy/pkg/strategy"
)

// runPipeline executes one integrity pipeline run and prints its summary.
func runPipeline(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("run", flag.ContinueOnError)
	fs.SetOutput(stderr)
	policy := fs.String("policy", "", "policy tier (LINT_ONLY|SAFE_EDIT|REFACTOR|ARCHIVE)")
	dryRun := fs.Bool("dry-run", false, "plan fixes without touching files")
	apply := fs.Bool("apply", false, "apply planned fixes")
	paths := fs.String("paths", "", "comma-separated path filter")
	token := fs.String("token", "", "approval token for REFACTOR/ARCHIVE runs")
	if err := fs.Parse(args); err != nil {
		return 2
	}

	cfg, prof, err := loadConfig()
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "remedy run: %v\n", err)
		return 1
	}
	setupLogging(cfg, stderr)

	tierName := cfg.Policy
	if *policy != "" {
		tierName = *policy
	}
	tier, err := contracts.ParsePolicyTier(tierName)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "remedy run: %v\n", err)
		return 2
	}

	var opts []integrity.Option
	if prof != nil && len(prof.Analyzers) > 0 {
		opts = append(opts, integrity.WithAnalyzers(integrity.AnalyzersByName(cfg.TargetRoot, prof.Analyzers)))
	}
	if cfg.ApprovalSecret != "" {
		minter, err := approval.NewMinter(cfg.ApprovalSecret, approval.DefaultTTL)
		if err != nil {
			_, _ = fmt.Fprintf(stderr, "remedy run: approval: %v\n", err)
			return 1
		}
		opts = append(opts, integrity.WithApprover(minter.Validate))
	}
	pipeline, err := integrity.New(cfg.TargetRoot, filepath.Join(cfg.DataDir, "journal"), opts...)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "remedy run: %v\n", err)
		return 1
	}

	summary, err := pipeline.Run(context.Background(), integrity.RunOptions{
		Policy:        tier,
		DryRun:        *dryRun,
		Apply:         *apply,
		Paths:         splitList(*paths),
		ApprovalToken: *token,
	})
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "remedy run: %v\n", err)
		return 1
	}

	printJSON(stdout, summary)
	if summary.FixesFailed > 0 {
		return 1
	}
	return 0
}

// runDecide prints the decision the governor would make for an incident,
// without executing anything.
func runDecide(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("decide", flag.ContinueOnError)
	fs.SetOutput(stderr)
	source := fs.String("source", "cli", "incident source")
	detailsJSON := fs.String("details", "", "incident details as JSON")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if fs.NArg() < 1 {
		_, _ = fmt.Fprintln(stderr, "Usage: remedy decide [-source s] [-details json] <kind>")
		return 2
	}

	cfg, prof, err := loadConfig()
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "remedy decide: %v\n", err)
		return 1
	}
	setupLogging(cfg, stderr)

	var details map[string]any
	if *detailsJSON != "" {
		if err := json.Unmarshal([]byte(*detailsJSON), &details); err != nil {
			_, _ = fmt.Fprintf(stderr, "remedy decide: bad details: %v\n", err)
			return 2
		}
	}

	gov := governor.New(cfg, strategy.NewRegistry(), nil, governor.WithRules(profileRules(prof)))
	decision := gov.Decide(contracts.NewIncident(fs.Arg(0), *source, details))
	printJSON(stdout, decision)
	return 0
}

// runJournal lists journaled patches or shows one in full.
func runJournal(args []string, stdout, stderr io.Writer) int {
	cfg, _, err := loadConfig()
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "remedy journal: %v\n", err)
		return 1
	}

	j, err := journal.Open(filepath.Join(cfg.DataDir, "journal"))
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "remedy journal: %v\n", err)
		return 1
	}

	if len(args) >= 2 && args[0] == "show" {
		patch, err := j.Load(args[1])
		if err != nil {
			_, _ = fmt.Fprintf(stderr, "remedy journal: %v\n", err)
			return 1
		}
		printJSON(stdout, patch)
		return 0
	}

	ids, err := j.List()
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "remedy journal: %v\n", err)
		return 1
	}
	if len(ids) == 0 {
		_, _ = fmt.Fprintln(stdout, "journal is empty")
		return 0
	}
	for _, id := range ids {
		_, _ = fmt.Fprintln(stdout, id)
	}
	return 0
}

// runRollback restores a journaled patch's pre-images.
func runRollback(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("rollback", flag.ContinueOnError)
	fs.SetOutput(stderr)
	force := fs.Bool("force", false, "roll back even when the live file drifted from the patch")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if fs.NArg() < 1 {
		_, _ = fmt.Fprintln(stderr, "Usage: remedy rollback [-force] <patch-id>")
		return 2
	}

	cfg, _, err := loadConfig()
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "remedy rollback: %v\n", err)
		return 1
	}
	setupLogging(cfg, stderr)

	pipeline, err := integrity.New(cfg.TargetRoot, filepath.Join(cfg.DataDir, "journal"))
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "remedy rollback: %v\n", err)
		return 1
	}

	result := pipeline.Rollback(context.Background(), fs.Arg(0), *force)
	printJSON(stdout, result)
	if !result.Success {
		return 1
	}
	return 0
}

// runAudit verifies the hash chain of an exported audit trail file.
func runAudit(args []string, stdout, stderr io.Writer) int {
	if len(args) < 2 || args[0] != "verify" {
		_, _ = fmt.Fprintln(stderr, "Usage: remedy audit verify <trail.json>")
		return 2
	}

	raw, err := os.ReadFile(args[1])
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "remedy audit: %v\n", err)
		return 1
	}
	var entries []audit.TrailEntry
	if err := json.Unmarshal(raw, &entries); err != nil {
		_, _ = fmt.Fprintf(stderr, "remedy audit: parse trail: %v\n", err)
		return 1
	}

	if err := audit.VerifyChain(entries); err != nil {
		_, _ = fmt.Fprintf(stderr, "remedy audit: chain broken: %v\n", err)
		return 1
	}
	_, _ = fmt.Fprintf(stdout, "trail verified: %d entries, chain intact\n", len(entries))
	return 0
}

// runApprove mints an approval token binding a plan id to a policy tier.
func runApprove(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("approve", flag.ContinueOnError)
	fs.SetOutput(stderr)
	tierName := fs.String("tier", string(contracts.PolicyRefactor), "policy tier the approval covers")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if fs.NArg() < 1 {
		_, _ = fmt.Fprintln(stderr, "Usage: remedy approve [-tier t] <plan-id>")
		return 2
	}

	cfg, _, err := loadConfig()
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "remedy approve: %v\n", err)
		return 1
	}
	tier, err := contracts.ParsePolicyTier(*tierName)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "remedy approve: %v\n", err)
		return 2
	}

	minter, err := approval.NewMinter(cfg.ApprovalSecret, approval.DefaultTTL)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "remedy approve: %v (set REMEDY_APPROVAL_SECRET)\n", err)
		return 1
	}
	token, err := minter.Mint(fs.Arg(0), tier, cfg.OwnerHandle)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "remedy approve: %v\n", err)
		return 1
	}
	_, _ = fmt.Fprintln(stdout, token)
	return 0
}

// runHistory prints recent outcomes and per-strategy success rates from
// the ledger.
func runHistory(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("history", flag.ContinueOnError)
	fs.SetOutput(stderr)
	limit := fs.Int("limit", 20, "number of recent outcomes")
	if err := fs.Parse(args); err != nil {
		return 2
	}

	cfg, _, err := loadConfig()
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "remedy history: %v\n", err)
		return 1
	}

	ctx := context.Background()
	ledger, err := history.Open(ctx, cfg.DatabaseURL, cfg.DataDir)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "remedy history: %v\n", err)
		return 1
	}
	defer func() { _ = ledger.Close() }()

	outcomes, err := ledger.Recent(ctx, *limit)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "remedy history: %v\n", err)
		return 1
	}
	rates, err := ledger.SuccessRates(ctx)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "remedy history: %v\n", err)
		return 1
	}

	printJSON(stdout, map[string]any{
		"recent":        outcomes,
		"success_rates": rates,
	})
	return 0
}

// runScores prints the advisory per-strategy score panel, warm-started
// from the ledger when one is reachable.
func runScores(_ []string, stdout, stderr io.Writer) int {
	cfg, prof, err := loadConfig()
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "remedy scores: %v\n", err)
		return 1
	}
	setupLogging(cfg, stderr)

	ctx := context.Background()
	opts := []governor.Option{governor.WithRules(profileRules(prof))}
	if ledger, err := history.Open(ctx, cfg.DatabaseURL, cfg.DataDir); err == nil {
		defer func() { _ = ledger.Close() }()
		opts = append(opts, governor.WithRecorder(ledger))
	}

	gov := governor.New(cfg, strategy.NewRegistry(), nil, opts...)
	printJSON(stdout, gov.Scores())
	return 0
}

func printJSON(w io.Writer, v any) {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	_ = enc.Encode(v)
}

func splitList(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
