package platform

import (
	"bufio"
	"context"
	"fmt"
	"log/slog"
	"os"
	"sort"
	"strings"

	"github.com/Mindburn-Labs/remedy/pkg/strategy"
)

// EnvFileSyncer reconciles target env files against a desired intent file.
// Keys present in the intent but missing from a target are created; keys
// with differing values are updated; matching keys are skipped.
type EnvFileSyncer struct {
	IntentPath string
	Targets    []string

	logger *slog.Logger
}

// NewEnvFileSyncer reconciles the given targets against intentPath.
func NewEnvFileSyncer(intentPath string, targets []string) *EnvFileSyncer {
	return &EnvFileSyncer{
		IntentPath: intentPath,
		Targets:    targets,
		logger:     slog.Default().With("component", "platform.envsync"),
	}
}

// Sync applies the intent to every target file.
func (s *EnvFileSyncer) Sync(_ context.Context) (strategy.SyncReport, error) {
	intent, _, err := readEnvFile(s.IntentPath)
	if err != nil {
		return strategy.SyncReport{}, fmt.Errorf("platform: read intent: %w", err)
	}

	var report strategy.SyncReport
	for _, target := range s.Targets {
		live, lines, err := readEnvFile(target)
		if err != nil && !os.IsNotExist(err) {
			return strategy.SyncReport{}, fmt.Errorf("platform: read %s: %w", target, err)
		}

		changed := false
		keys := make([]string, 0, len(intent))
		for k := range intent {
			keys = append(keys, k)
		}
		sort.Strings(keys)

		for _, key := range keys {
			want := intent[key]
			have, ok := live[key]
			switch {
			case !ok:
				lines = append(lines, key+"="+want)
				report.Created = append(report.Created, key)
				changed = true
			case have != want:
				lines = replaceEnvLine(lines, key, want)
				report.Updated = append(report.Updated, key)
				changed = true
			default:
				report.Skipped = append(report.Skipped, key)
			}
		}

		if changed {
			if err := writeEnvFile(target, lines); err != nil {
				return strategy.SyncReport{}, err
			}
		}
	}

	s.logger.Info("env files reconciled",
		"targets", len(s.Targets),
		"created", len(report.Created),
		"updated", len(report.Updated),
		"skipped", len(report.Skipped))
	return report, nil
}

// EnvFileWriter appends or replaces one secret in a single env file.
// Values never reach the log output.
type EnvFileWriter struct {
	Path string
}

// WriteSecret stores key=value in the env file, replacing an existing entry.
func (w *EnvFileWriter) WriteSecret(_ context.Context, key, value string) error {
	live, lines, err := readEnvFile(w.Path)
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("platform: read %s: %w", w.Path, err)
	}
	if _, ok := live[key]; ok {
		lines = replaceEnvLine(lines, key, value)
	} else {
		lines = append(lines, key+"="+value)
	}
	return writeEnvFile(w.Path, lines)
}

// readEnvFile parses KEY=VALUE lines, preserving the raw lines for rewrite.
// Blank lines and # comments pass through untouched.
func readEnvFile(path string) (map[string]string, []string, error) {
	f, err := os.Open(path)
	if err != nil {
		return map[string]string{}, nil, err
	}
	defer func() { _ = f.Close() }()

	vars := make(map[string]string)
	var lines []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := scanner.Text()
		lines = append(lines, line)
		trimmed := strings.TrimSpace(line)
		if trimmed == "" || strings.HasPrefix(trimmed, "#") {
			continue
		}
		key, value, ok := strings.Cut(trimmed, "=")
		if !ok {
			continue
		}
		vars[strings.TrimSpace(key)] = strings.TrimSpace(value)
	}
	return vars, lines, scanner.Err()
}

func replaceEnvLine(lines []string, key, value string) []string {
	prefix := key + "="
	for i, line := range lines {
		if strings.HasPrefix(strings.TrimSpace(line), prefix) {
			lines[i] = key + "=" + value
		}
	}
	return lines
}

func writeEnvFile(path string, lines []string) error {
	content := strings.Join(lines, "\n")
	if content != "" && !strings.HasSuffix(content, "\n") {
		content += "\n"
	}
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		return fmt.Errorf("platform: write %s: %w", path, err)
	}
	return nil
}
