package integrity

import (
	"fmt"
	"path"
	"strings"

	"github.com/pmezard/go-difflib/difflib"
	godiff "github.com/sourcegraph/go-diff/diff"

	"github.com/Mindburn-Labs/remedy/pkg/contracts"
)

// unifiedDiff renders the change to one file as a unified diff with a/ b/
// prefixed headers, the form both git tooling and Verify's parser accept.
func unifiedDiff(rel, before, after string) (string, error) {
	out, err := difflib.GetUnifiedDiffString(difflib.UnifiedDiff{
		A:        difflib.SplitLines(before),
		B:        difflib.SplitLines(after),
		FromFile: "a/" + rel,
		ToFile:   "b/" + rel,
		Context:  3,
	})
	if err != nil {
		return "", fmt.Errorf("diff %s: %w", rel, err)
	}
	return out, nil
}

// Verify is the pipeline's cheap self-check: the patch modified at least
// one file, its recorded diff parses as a well-formed unified diff, and
// the diff's file set matches FilesModified. Deep behavioral verification
// is delegated to the certifier.
func (p *Pipeline) Verify(patch contracts.Patch) bool {
	if len(patch.FilesModified) == 0 {
		return false
	}

	parsed, err := godiff.ParseMultiFileDiff([]byte(patch.Diff))
	if err != nil {
		p.logger.Warn("patch diff failed to parse", "error", err)
		return false
	}

	diffFiles := make(map[string]bool, len(parsed))
	for _, fd := range parsed {
		diffFiles[stripDiffPrefix(fd.OrigName)] = true
		diffFiles[stripDiffPrefix(fd.NewName)] = true
	}
	for _, f := range patch.FilesModified {
		if !diffFiles[path.Clean(f)] {
			p.logger.Warn("modified file missing from diff", "file", f)
			return false
		}
	}
	return true
}

func stripDiffPrefix(name string) string {
	name = strings.TrimPrefix(name, "a/")
	name = strings.TrimPrefix(name, "b/")
	return path.Clean(name)
}
