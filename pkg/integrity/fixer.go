package integrity

import (
	"errors"
	"fmt"
	"os"
	"regexp"
	"strings"

	"github.com/Mindburn-Labs/remedy/pkg/contracts"
)

// ErrNoFixAvailable marks a finding whose fixer declares no safe automatic
// fix. The action is reported failed; siblings proceed.
var ErrNoFixAvailable = errors.New("no automatic fix available")

// Fixer applies a bounded edit for findings from one analyzer family. A
// fixer whose precondition is unmet must fail its single action without
// aborting the remaining actions of the patch.
type Fixer interface {
	Name() string
	CanFix(f contracts.Finding) bool
	Fix(absPath string, f contracts.Finding) error
}

// defaultFixers returns the fixed fixer set registered at startup.
func defaultFixers() []Fixer {
	return []Fixer{
		&deprecatedCallFixer{},
		&stubMarkerFixer{},
		&importAliasFixer{},
	}
}

// deprecatedCallFixer rewrites datetime.utcnow() to datetime.now(UTC) and
// amends the datetime import when UTC is not yet imported.
type deprecatedCallFixer struct{}

func (f *deprecatedCallFixer) Name() string { return "deprecated_call_fixer" }

func (f *deprecatedCallFixer) CanFix(finding contracts.Finding) bool {
	return finding.Analyzer == "deprecated_call"
}

func (f *deprecatedCallFixer) Fix(absPath string, _ contracts.Finding) error {
	raw, err := os.ReadFile(absPath)
	if err != nil {
		return fmt.Errorf("read %s: %w", absPath, err)
	}
	content := string(raw)

	modified := strings.ReplaceAll(content, "datetime.utcnow()", "datetime.now(UTC)")
	if strings.Contains(modified, "from datetime import") &&
		!strings.Contains(modified, ", UTC") && !strings.Contains(modified, "import UTC") {
		modified = strings.Replace(modified,
			"from datetime import datetime",
			"from datetime import datetime, UTC", 1)
	}

	if modified == content {
		return fmt.Errorf("%w: no deprecated call present", ErrNoFixAvailable)
	}
	if err := os.WriteFile(absPath, []byte(modified), 0o644); err != nil {
		return fmt.Errorf("write %s: %w", absPath, err)
	}
	return nil
}

var stubCommentPatterns = []*regexp.Regexp{
	regexp.MustCompile(`//\s*TODO:?\s*stub.*`),
	regexp.MustCompile(`#\s*TODO:?\s*stub.*`),
	regexp.MustCompile(`/\*\s*TODO:?\s*stub.*\*/`),
}

// stubMarkerFixer clears TODO stub comments from the finding's line.
type stubMarkerFixer struct{}

func (f *stubMarkerFixer) Name() string { return "stub_marker_fixer" }

func (f *stubMarkerFixer) CanFix(finding contracts.Finding) bool {
	return finding.Analyzer == "stub_marker"
}

func (f *stubMarkerFixer) Fix(absPath string, finding contracts.Finding) error {
	raw, err := os.ReadFile(absPath)
	if err != nil {
		return fmt.Errorf("read %s: %w", absPath, err)
	}
	lines := strings.Split(string(raw), "\n")

	if finding.LineNumber < 1 || finding.LineNumber > len(lines) {
		return fmt.Errorf("line number %d out of range", finding.LineNumber)
	}

	line := lines[finding.LineNumber-1]
	for _, pattern := range stubCommentPatterns {
		line = pattern.ReplaceAllString(line, "")
	}
	lines[finding.LineNumber-1] = strings.TrimRight(line, " \t")

	if err := os.WriteFile(absPath, []byte(strings.Join(lines, "\n")), 0o644); err != nil {
		return fmt.Errorf("write %s: %w", absPath, err)
	}
	return nil
}

// importAliasFixer claims import_health findings but declares no automatic
// fix: relative-import rewrites need semantic analysis the pipeline does
// not attempt.
type importAliasFixer struct{}

func (f *importAliasFixer) Name() string { return "import_alias_fixer" }

func (f *importAliasFixer) CanFix(finding contracts.Finding) bool {
	return finding.Analyzer == "import_health" &&
		strings.Contains(strings.ToLower(finding.Description), "relative import")
}

func (f *importAliasFixer) Fix(string, contracts.Finding) error {
	return ErrNoFixAvailable
}
