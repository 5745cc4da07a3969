package contracts

// Patch records the files actually mutated by applying a plan. A patch is
// persisted to the journal under its ID; only the certification fields may
// change after creation.
//
//nolint:govet // fieldalignment: struct layout is human-readable
type Patch struct {
	ID                string            `json:"id"`
	PlanID            string            `json:"plan_id"`
	Timestamp         string            `json:"timestamp"`
	FilesModified     []string          `json:"files_modified"`
	Diff              string            `json:"diff"`
	Certified         bool              `json:"certified"`
	CertificateID     string            `json:"certificate_id,omitempty"`
	RollbackAvailable bool              `json:"rollback_available"`
	FailedActions     []FailedAction    `json:"failed_actions,omitempty"`
	Metadata          map[string]string `json:"metadata,omitempty"`
}

// FailedAction reports one planned action that could not be applied. Failed
// actions never abort the sibling actions of the same patch.
type FailedAction struct {
	FindingID string `json:"finding_id"`
	File      string `json:"file"`
	Error     string `json:"error"`
}

// RollbackResult is the terminal record of reverting a patch. It is created
// only in response to a failed certification or a failed downstream action
// and is never re-executed.
//
//nolint:govet // fieldalignment: struct layout is human-readable
type RollbackResult struct {
	ID            string   `json:"id"`
	PatchID       string   `json:"patch_id"`
	Timestamp     string   `json:"timestamp"`
	Success       bool     `json:"success"`
	RestoredFiles []string `json:"restored_files,omitempty"`
	Error         string   `json:"error,omitempty"`
}
