package contracts

// Summary aggregates one full pipeline run. It is immutable once reported
// and is the unit handed to the certifier and to the caller.
//
//nolint:govet // fieldalignment: struct layout is human-readable
type Summary struct {
	RunID               string         `json:"run_id"`
	Timestamp           string         `json:"timestamp"`
	Policy              PolicyTier     `json:"policy"`
	DryRun              bool           `json:"dry_run"`
	FindingsCount       int            `json:"findings_count"`
	FindingsBySeverity  map[string]int `json:"findings_by_severity"`
	FindingsByCategory  map[string]int `json:"findings_by_category"`
	FixesApplied        int            `json:"fixes_applied"`
	FixesFailed         int            `json:"fixes_failed"`
	DurationSeconds     float64        `json:"duration_seconds"`
	CertificationStatus string         `json:"certification_status,omitempty"`
	Findings            []Finding      `json:"findings"`
	Patches             []Patch        `json:"patches"`
}

// ExecStatus is the terminal status of one governor execution cycle.
type ExecStatus string

const (
	ExecApplied ExecStatus = "applied"
	ExecSkipped ExecStatus = "skipped"
	ExecError   ExecStatus = "error"
)

// ExecResult is what Governor.Execute returns. Execution errors never
// propagate as Go errors past the governor boundary; they ride in the Error
// field so a caller loop cannot be broken by one bad incident.
//
//nolint:govet // fieldalignment: struct layout is human-readable
type ExecResult struct {
	Status    ExecStatus       `json:"status"`
	Decision  Decision         `json:"decision"`
	Certified bool             `json:"certified"`
	CertInfo  map[string]any   `json:"cert_info,omitempty"`
	Report    map[string]any   `json:"report,omitempty"`
	Rollbacks []RollbackResult `json:"rollbacks,omitempty"`
	Error     string           `json:"error,omitempty"`
}
