// Command remedy is the remediation controller: a daemon that turns
// incident signals into guarded repair actions, plus one-shot operator
// subcommands for pipeline runs, journal inspection, rollback, audit
// verification, approvals, and outcome history.
package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/Mindburn-Labs/remedy/pkg/config"
)

func main() {
	os.Exit(Run(os.Args, os.Stdout, os.Stderr))
}

// Run is the entrypoint for testing.
func Run(args []string, stdout, stderr io.Writer) int {
	if len(args) < 2 {
		return runServe(nil, stdout, stderr)
	}

	switch args[1] {
	case "serve", "daemon":
		return runServe(args[2:], stdout, stderr)
	case "run":
		return runPipeline(args[2:], stdout, stderr)
	case "decide":
		return runDecide(args[2:], stdout, stderr)
	case "journal":
		return runJournal(args[2:], stdout, stderr)
	case "rollback":
		return runRollback(args[2:], stdout, stderr)
	case "audit":
		return runAudit(args[2:], stdout, stderr)
	case "approve":
		return runApprove(args[2:], stdout, stderr)
	case "history":
		return runHistory(args[2:], stdout, stderr)
	case "scores":
		return runScores(args[2:], stdout, stderr)
	case "help", "-h", "--help":
		printUsage(stdout)
		return 0
	default:
		_, _ = fmt.Fprintf(stderr, "remedy: unknown command %q\n\n", args[1])
		printUsage(stderr)
		return 2
	}
}

func printUsage(w io.Writer) {
	_, _ = fmt.Fprint(w, `Usage: remedy <command> [flags]

Commands:
  serve                      run the remediation daemon (bus, watcher, scheduler, incident loop)
  run                        execute one integrity pipeline run (-policy, -dry-run, -apply, -paths, -token)
  decide <kind>              show the decision the governor would make for an incident kind
  journal [list|show <id>]   inspect journaled patches
  rollback <patch-id>        restore a patch's pre-images (-force to bypass certification checks)
  audit verify <file>        verify the hash chain of an exported audit trail
  approve <plan-id>          mint an approval token for a plan (-tier)
  history                    show recent outcomes and per-strategy success rates (-limit)
  scores                     show the advisory strategy score panel
  help                       show this help

Configuration is read from REMEDY_* environment variables.
`)
}

// setupLogging installs the process-wide structured logger at the
// configured level.
func setupLogging(cfg *config.Config, w io.Writer) {
	var level slog.Level
	switch strings.ToUpper(cfg.LogLevel) {
	case "DEBUG":
		level = slog.LevelDebug
	case "WARN", "WARNING":
		level = slog.LevelWarn
	case "ERROR":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level})))
}

// loadConfig reads the environment configuration and applies the active
// profile's guardrail overrides. The profile is nil when none is selected;
// its rules extend the policy table and its analyzer list restricts the
// pipeline.
func loadConfig() (*config.Config, *config.Profile, error) {
	cfg := config.Load()
	if cfg.Profile == "" {
		return cfg, nil, nil
	}
	p, err := config.LoadProfile(cfg.ProfileDir, cfg.Profile)
	if err != nil {
		return nil, nil, err
	}
	p.Apply(cfg)
	return cfg, p, nil
}

// profileRules returns the profile's policy rules, tolerating no profile.
func profileRules(p *config.Profile) []config.PolicyRule {
	if p == nil {
		return nil
	}
	return p.Rules
}
