package platform

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"

	"gopkg.in/yaml.v3"
)

// Blueprint is the declarative source of truth for platform config files.
// Each platform maps relative file paths to their full desired contents.
type Blueprint struct {
	Platforms map[string]BlueprintPlatform `yaml:"platforms"`
}

// BlueprintPlatform is one platform's slice of the blueprint.
type BlueprintPlatform struct {
	Files map[string]string `yaml:"files"`
}

// LoadBlueprint parses a blueprint YAML file.
func LoadBlueprint(path string) (*Blueprint, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("platform: read blueprint: %w", err)
	}
	var bp Blueprint
	if err := yaml.Unmarshal(raw, &bp); err != nil {
		return nil, fmt.Errorf("platform: parse blueprint %s: %w", path, err)
	}
	return &bp, nil
}

// BlueprintGenerator rewrites platform config files from a blueprint.
type BlueprintGenerator struct {
	blueprint *Blueprint
	root      string
	logger    *slog.Logger
}

// NewBlueprintGenerator targets the given repository root.
func NewBlueprintGenerator(bp *Blueprint, root string) *BlueprintGenerator {
	return &BlueprintGenerator{
		blueprint: bp,
		root:      root,
		logger:    slog.Default().With("component", "platform.blueprint"),
	}
}

// Repair rewrites the config files of the named platforms. Unknown platform
// names are reported, not errors; the blueprint is authoritative about what
// exists.
func (g *BlueprintGenerator) Repair(_ context.Context, platforms []string) (map[string]any, error) {
	written := make([]string, 0, 4)
	unknown := make([]string, 0)

	for _, name := range platforms {
		pf, ok := g.blueprint.Platforms[name]
		if !ok {
			unknown = append(unknown, name)
			continue
		}
		files, err := g.write(pf)
		if err != nil {
			return nil, err
		}
		written = append(written, files...)
	}

	sort.Strings(written)
	g.logger.Info("config repaired", "files", len(written), "unknown_platforms", len(unknown))
	return map[string]any{
		"files_written":     written,
		"unknown_platforms": unknown,
	}, nil
}

// Regenerate rewrites every platform's config files.
func (g *BlueprintGenerator) Regenerate(_ context.Context) (map[string]any, error) {
	written := make([]string, 0, 8)
	for _, pf := range g.blueprint.Platforms {
		files, err := g.write(pf)
		if err != nil {
			return nil, err
		}
		written = append(written, files...)
	}
	sort.Strings(written)
	g.logger.Info("config regenerated", "files", len(written))
	return map[string]any{"files_written": written}, nil
}

func (g *BlueprintGenerator) write(pf BlueprintPlatform) ([]string, error) {
	files := make([]string, 0, len(pf.Files))
	for rel, content := range pf.Files {
		dst := filepath.Join(g.root, filepath.FromSlash(rel))
		if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
			return nil, fmt.Errorf("platform: mkdir for %s: %w", rel, err)
		}
		if err := os.WriteFile(dst, []byte(content), 0o644); err != nil {
			return nil, fmt.Errorf("platform: write %s: %w", rel, err)
		}
		files = append(files, rel)
	}
	return files, nil
}
