// Package contracts defines the shared types exchanged between the governor,
// the repair strategies, the integrity pipeline, and the certification layer.
package contracts

import "time"

// Incident is an external signal describing something that may need
// remediation. Incidents are immutable once created and are consumed
// exactly once by the governor.
//
//nolint:govet // fieldalignment: struct layout is human-readable
type Incident struct {
	Kind      string         `json:"kind"`
	Source    string         `json:"source"`
	Details   map[string]any `json:"details,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}

// NewIncident builds an incident stamped with the current UTC time.
func NewIncident(kind, source string, details map[string]any) Incident {
	return Incident{
		Kind:      kind,
		Source:    source,
		Details:   details,
		Timestamp: time.Now().UTC(),
	}
}

// DetailString returns a string detail by key, or "" when absent.
func (i Incident) DetailString(key string) string {
	if i.Details == nil {
		return ""
	}
	s, _ := i.Details[key].(string)
	return s
}
