package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/Masterminds/semver/v3"
	"gopkg.in/yaml.v3"
)

// Profile is a named bundle of guardrail overrides and extra policy rules
// loaded from profiles/profile_<name>.yaml.
//
//nolint:govet // fieldalignment: struct layout is human-readable
type Profile struct {
	Name     string `yaml:"name" json:"name"`
	Requires string `yaml:"requires,omitempty" json:"requires,omitempty"`

	Guardrails GuardrailOverrides `yaml:"guardrails" json:"guardrails"`
	Analyzers  []string           `yaml:"analyzers,omitempty" json:"analyzers,omitempty"`
	Rules      []PolicyRule       `yaml:"rules,omitempty" json:"rules,omitempty"`
}

// GuardrailOverrides optionally replaces guardrail defaults. Zero values
// mean "keep the configured value".
type GuardrailOverrides struct {
	MaxActionsPerHour int `yaml:"max_actions_per_hour,omitempty" json:"max_actions_per_hour,omitempty"`
	CooldownMinutes   int `yaml:"cooldown_minutes,omitempty" json:"cooldown_minutes,omitempty"`
	FailStreakTrip    int `yaml:"fail_streak_trip,omitempty" json:"fail_streak_trip,omitempty"`
}

// PolicyRule is a CEL-guarded routing rule appended after the static policy
// table. Expr is evaluated against {kind, source, details}.
//
//nolint:govet // fieldalignment: struct layout is human-readable
type PolicyRule struct {
	Expr    string   `yaml:"expr" json:"expr"`
	Action  string   `yaml:"action" json:"action"`
	Reason  string   `yaml:"reason" json:"reason"`
	Targets []string `yaml:"targets,omitempty" json:"targets,omitempty"`
}

// LoadProfile loads profile_<name>.yaml from dir and checks its engine
// constraint against the running version.
func LoadProfile(dir, name string) (*Profile, error) {
	name = strings.ToLower(name)
	path := filepath.Join(dir, fmt.Sprintf("profile_%s.yaml", name))

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("load profile %q: %w", name, err)
	}

	var p Profile
	if err := yaml.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("parse profile %q: %w", name, err)
	}
	if p.Name == "" {
		p.Name = name
	}

	if err := p.CheckEngine(Version()); err != nil {
		return nil, err
	}
	return &p, nil
}

// CheckEngine validates the profile's requires constraint against an engine
// version string. Profiles without a constraint accept any engine.
func (p *Profile) CheckEngine(engineVersion string) error {
	if p.Requires == "" {
		return nil
	}
	c, err := semver.NewConstraint(p.Requires)
	if err != nil {
		return fmt.Errorf("profile %q: bad requires constraint %q: %w", p.Name, p.Requires, err)
	}
	v, err := semver.NewVersion(engineVersion)
	if err != nil {
		return fmt.Errorf("profile %q: bad engine version %q: %w", p.Name, engineVersion, err)
	}
	if !c.Check(v) {
		return fmt.Errorf("profile %q requires engine %q, running %s", p.Name, p.Requires, engineVersion)
	}
	return nil
}

// Apply merges the profile's guardrail overrides into cfg.
func (p *Profile) Apply(cfg *Config) {
	if p.Guardrails.MaxActionsPerHour > 0 {
		cfg.MaxActionsPerHour = p.Guardrails.MaxActionsPerHour
	}
	if p.Guardrails.CooldownMinutes > 0 {
		cfg.Cooldown = minutes(p.Guardrails.CooldownMinutes)
	}
	if p.Guardrails.FailStreakTrip > 0 {
		cfg.FailStreakTrip = p.Guardrails.FailStreakTrip
	}
}

func minutes(n int) time.Duration {
	return time.Duration(n) * time.Minute
}

