package integrity

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"golang.org/x/text/unicode/norm"

	"github.com/Mindburn-Labs/remedy/pkg/contracts"
)

// Analyzer inspects one file and reports findings. Analyzers only ever add
// findings; they never remove or mutate another analyzer's output.
type Analyzer interface {
	Name() string
	Analyze(relPath, content string) []contracts.Finding
}

// RepoScanner is implemented by analyzers that need a whole-repository view
// (duplicate detection, dead-file detection). Repository scans run after
// all per-file analysis.
type RepoScanner interface {
	ScanRepository() []contracts.Finding
}

// defaultAnalyzers returns the fixed analyzer set registered at startup.
func defaultAnalyzers(root string) []Analyzer {
	return []Analyzer{
		&deprecatedCallAnalyzer{},
		&stubMarkerAnalyzer{},
		&routeRegistryAnalyzer{},
		&importHealthAnalyzer{},
		&configSmellAnalyzer{},
		&duplicateFileAnalyzer{root: root},
		&deadFileAnalyzer{root: root},
	}
}

// AnalyzersByName selects analyzers from the default set by name, in the
// default set's order. Unknown names are skipped; profiles that restrict
// the analyzer set pass their enable list here.
func AnalyzersByName(root string, names []string) []Analyzer {
	enabled := make(map[string]bool, len(names))
	for _, n := range names {
		enabled[n] = true
	}
	var selected []Analyzer
	for _, a := range defaultAnalyzers(root) {
		if enabled[a.Name()] {
			selected = append(selected, a)
		}
	}
	return selected
}

// deprecatedCallAnalyzer flags datetime.utcnow() usage in Python sources.
type deprecatedCallAnalyzer struct{}

func (a *deprecatedCallAnalyzer) Name() string { return "deprecated_call" }

func (a *deprecatedCallAnalyzer) Analyze(relPath, content string) []contracts.Finding {
	if filepath.Ext(relPath) != ".py" {
		return nil
	}

	var findings []contracts.Finding
	for i, line := range strings.Split(content, "\n") {
		if !strings.Contains(line, "datetime.utcnow()") {
			continue
		}
		n := i + 1
		findings = append(findings, contracts.Finding{
			ID:           fmt.Sprintf("%s_%s_%d", a.Name(), relPath, n),
			Analyzer:     a.Name(),
			Severity:     contracts.SeverityMedium,
			Category:     contracts.CategoryDeprecated,
			FilePath:     relPath,
			LineNumber:   n,
			Description:  fmt.Sprintf("Deprecated datetime.utcnow() usage at line %d", n),
			CodeSnippet:  strings.TrimSpace(line),
			SuggestedFix: "Replace with datetime.now(UTC)",
		})
	}
	return findings
}

// stubMarkerAnalyzer flags TODO stub markers left in generated client files.
type stubMarkerAnalyzer struct{}

func (a *stubMarkerAnalyzer) Name() string { return "stub_marker" }

func (a *stubMarkerAnalyzer) Analyze(relPath, content string) []contracts.Finding {
	if !strings.Contains(relPath, "generated") {
		return nil
	}

	var findings []contracts.Finding
	for i, line := range strings.Split(content, "\n") {
		if !strings.Contains(line, "TODO stub") && !strings.Contains(line, "TODO: stub") {
			continue
		}
		n := i + 1
		findings = append(findings, contracts.Finding{
			ID:           fmt.Sprintf("%s_%s_%d", a.Name(), relPath, n),
			Analyzer:     a.Name(),
			Severity:     contracts.SeverityLow,
			Category:     contracts.CategoryStub,
			FilePath:     relPath,
			LineNumber:   n,
			Description:  fmt.Sprintf("Stub marker found at line %d", n),
			CodeSnippet:  strings.TrimSpace(line),
			SuggestedFix: "Remove TODO stub comment",
		})
	}
	return findings
}

// routeRegistryAnalyzer flags entrypoints that import a router type but
// never register a router with the application.
type routeRegistryAnalyzer struct{}

func (a *routeRegistryAnalyzer) Name() string { return "route_registry" }

func (a *routeRegistryAnalyzer) Analyze(relPath, content string) []contracts.Finding {
	base := filepath.Base(relPath)
	if base != "main.py" || filepath.Ext(relPath) != ".py" {
		return nil
	}

	hasRouterImport := false
	hasIncludeRouter := false
	for _, line := range strings.Split(content, "\n") {
		if strings.Contains(line, "from fastapi import") && strings.Contains(line, "APIRouter") {
			hasRouterImport = true
		}
		if strings.Contains(line, "app.include_router") {
			hasIncludeRouter = true
		}
	}

	if !hasRouterImport || hasIncludeRouter {
		return nil
	}
	return []contracts.Finding{{
		ID:           fmt.Sprintf("%s_%s_missing_registration", a.Name(), relPath),
		Analyzer:     a.Name(),
		Severity:     contracts.SeverityHigh,
		Category:     contracts.CategoryRouteIntegrity,
		FilePath:     relPath,
		Description:  "Router imported but not registered with app.include_router",
		SuggestedFix: "Add app.include_router() call for imported router",
	}}
}

// importHealthAnalyzer flags overly nested relative imports.
type importHealthAnalyzer struct{}

func (a *importHealthAnalyzer) Name() string { return "import_health" }

func (a *importHealthAnalyzer) Analyze(relPath, content string) []contracts.Finding {
	if filepath.Ext(relPath) != ".py" {
		return nil
	}

	var findings []contracts.Finding
	for i, line := range strings.Split(content, "\n") {
		trimmed := strings.TrimSpace(line)
		if !strings.HasPrefix(trimmed, "from .") {
			continue
		}
		head, _, found := strings.Cut(trimmed[len("from"):], "import")
		if !found {
			continue
		}
		dots := strings.Count(head, ".")
		if dots <= 3 {
			continue
		}
		n := i + 1
		findings = append(findings, contracts.Finding{
			ID:           fmt.Sprintf("%s_%s_%d", a.Name(), relPath, n),
			Analyzer:     a.Name(),
			Severity:     contracts.SeverityLow,
			Category:     contracts.CategoryImportHealth,
			FilePath:     relPath,
			LineNumber:   n,
			Description:  fmt.Sprintf("Overly nested relative import (%d levels) at line %d", dots, n),
			CodeSnippet:  trimmed,
			SuggestedFix: "Consider using absolute imports",
		})
	}
	return findings
}

var getenvNoDefault = regexp.MustCompile(`os\.getenv\(\s*["'][^"']+["']\s*\)`)

// configSmellAnalyzer flags environment reads without a default value.
type configSmellAnalyzer struct{}

func (a *configSmellAnalyzer) Name() string { return "config_smell" }

func (a *configSmellAnalyzer) Analyze(relPath, content string) []contracts.Finding {
	if filepath.Ext(relPath) != ".py" {
		return nil
	}

	var findings []contracts.Finding
	for i, line := range strings.Split(content, "\n") {
		if !getenvNoDefault.MatchString(line) {
			continue
		}
		n := i + 1
		findings = append(findings, contracts.Finding{
			ID:           fmt.Sprintf("%s_%s_%d", a.Name(), relPath, n),
			Analyzer:     a.Name(),
			Severity:     contracts.SeverityLow,
			Category:     contracts.CategoryConfigSmell,
			FilePath:     relPath,
			LineNumber:   n,
			Description:  fmt.Sprintf("ENV access without default at line %d", n),
			CodeSnippet:  strings.TrimSpace(line),
			SuggestedFix: "Add default value to os.getenv()",
		})
	}
	return findings
}

// duplicateFileAnalyzer groups byte-identical files by content hash across
// the whole repository.
type duplicateFileAnalyzer struct {
	root string
}

func (a *duplicateFileAnalyzer) Name() string { return "duplicate_file" }

// Analyze is a no-op: this analyzer only works at repository level.
func (a *duplicateFileAnalyzer) Analyze(string, string) []contracts.Finding { return nil }

const maxHashableSize = 5 * 1024 * 1024

func (a *duplicateFileAnalyzer) ScanRepository() []contracts.Finding {
	groups := make(map[string][]string)

	_ = filepath.WalkDir(a.root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return nil //nolint:nilerr // best-effort scan, unreadable entries skipped
		}
		if d.IsDir() {
			if excludedDirs[d.Name()] {
				return filepath.SkipDir
			}
			return nil
		}
		info, err := d.Info()
		if err != nil || info.Size() > maxHashableSize {
			return nil
		}

		sum, err := hashFile(path)
		if err != nil {
			return nil //nolint:nilerr
		}
		rel, err := filepath.Rel(a.root, path)
		if err != nil {
			return nil //nolint:nilerr
		}
		groups[sum] = append(groups[sum], norm.NFC.String(filepath.ToSlash(rel)))
		return nil
	})

	var findings []contracts.Finding
	for sum, files := range groups {
		if len(files) < 2 {
			continue
		}
		if allInitModules(files) {
			continue
		}
		sort.Strings(files)
		findings = append(findings, contracts.Finding{
			ID:           fmt.Sprintf("%s_%s", a.Name(), sum[:8]),
			Analyzer:     a.Name(),
			Severity:     contracts.SeverityLow,
			Category:     contracts.CategoryDuplicate,
			FilePath:     files[0],
			Description:  fmt.Sprintf("Duplicate file found (%d copies): %s", len(files), strings.Join(files, ", ")),
			SuggestedFix: fmt.Sprintf("Keep one copy, remove %d duplicate(s)", len(files)-1),
		})
	}

	sort.Slice(findings, func(i, k int) bool { return findings[i].ID < findings[k].ID })
	return findings
}

// allInitModules reports whether every file in the group is a package
// __init__.py, which are intentional duplicates.
func allInitModules(files []string) bool {
	for _, f := range files {
		if filepath.Base(f) != "__init__.py" {
			return false
		}
	}
	return true
}

func hashFile(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer func() { _ = f.Close() }()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// deadFileAnalyzer flags orphaned verification scripts left at the
// repository root.
type deadFileAnalyzer struct {
	root string
}

var deadFilePrefixes = []string{
	"verify_v196", "verify_v197", "validate_anchorhold",
	"verify_autonomy_deployment", "verify_autonomy_integration",
	"verify_communication", "verify_netlify_build",
}

func (a *deadFileAnalyzer) Name() string { return "dead_file" }

// Analyze is a no-op: this analyzer only works at repository level.
func (a *deadFileAnalyzer) Analyze(string, string) []contracts.Finding { return nil }

func (a *deadFileAnalyzer) ScanRepository() []contracts.Finding {
	entries, err := os.ReadDir(a.root)
	if err != nil {
		return nil
	}

	var findings []contracts.Finding
	for _, e := range entries {
		if e.IsDir() || filepath.Ext(e.Name()) != ".py" {
			continue
		}
		for _, prefix := range deadFilePrefixes {
			if !strings.HasPrefix(e.Name(), prefix) {
				continue
			}
			findings = append(findings, contracts.Finding{
				ID:           fmt.Sprintf("%s_%s", a.Name(), e.Name()),
				Analyzer:     a.Name(),
				Severity:     contracts.SeverityLow,
				Category:     contracts.CategoryDeadFile,
				FilePath:     e.Name(),
				Description:  fmt.Sprintf("Dead verification script: %s", e.Name()),
				SuggestedFix: "Remove or archive this file",
			})
			break
		}
	}
	return findings
}
