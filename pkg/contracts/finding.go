package contracts

// Severity grades how urgent a finding is.
type Severity string

const (
	SeverityLow    Severity = "LOW"
	SeverityMedium Severity = "MEDIUM"
	SeverityHigh   Severity = "HIGH"
)

// Finding is a single detected issue produced by an analyzer. Findings are
// read-only once produced; plans reference them by ID.
//
//nolint:govet // fieldalignment: struct layout is human-readable
type Finding struct {
	ID           string   `json:"id"`
	Analyzer     string   `json:"analyzer"`
	Severity     Severity `json:"severity"`
	Category     string   `json:"category"`
	FilePath     string   `json:"file_path"`
	LineNumber   int      `json:"line_number,omitempty"`
	Description  string   `json:"description"`
	CodeSnippet  string   `json:"code_snippet,omitempty"`
	SuggestedFix string   `json:"suggested_fix,omitempty"`
}

// Finding categories. Plan filtering keys off these, so analyzers must only
// emit categories from this set.
const (
	CategoryDeprecated     = "deprecated"
	CategoryStub           = "stub"
	CategoryImportHealth   = "import_health"
	CategoryConfigSmell    = "config_smell"
	CategoryRouteIntegrity = "route_integrity"
	CategoryDuplicate      = "duplicate"
	CategoryDeadFile       = "dead_file"
)
