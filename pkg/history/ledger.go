// Package history persists executed decisions in a SQL ledger. It is the
// non-lossy record behind the capped ring logs and the warm-start source
// for the governor's reinforcement scorer.
package history

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"

	_ "github.com/lib/pq"  // postgres driver, selected by DSN
	_ "modernc.org/sqlite" // cgo-free sqlite driver, the default store

	"github.com/Mindburn-Labs/remedy/pkg/contracts"
)

// schema is executed on open. The $N placeholder style below works for
// both drivers.
const schema = `
CREATE TABLE IF NOT EXISTS outcomes (
	id TEXT PRIMARY KEY,
	decided_at TIMESTAMP NOT NULL,
	action TEXT NOT NULL,
	strategy TEXT NOT NULL,
	reason TEXT NOT NULL,
	certified BOOLEAN NOT NULL,
	outcome REAL NOT NULL,
	duration_ms INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_outcomes_decided_at ON outcomes (decided_at);
CREATE INDEX IF NOT EXISTS idx_outcomes_strategy ON outcomes (strategy);
`

// Ledger stores decision outcomes through database/sql.
type Ledger struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewLedger wraps an existing database handle.
func NewLedger(db *sql.DB) *Ledger {
	return &Ledger{
		db:     db,
		logger: slog.Default().With("component", "history"),
	}
}

// Open connects to the configured database and runs migrations. An empty
// DSN selects SQLite under dataDir; a postgres:// DSN selects Postgres.
func Open(ctx context.Context, dsn, dataDir string) (*Ledger, error) {
	driver := "sqlite"
	if dsn == "" {
		dsn = filepath.Join(dataDir, "history.db")
	}
	if strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://") {
		driver = "postgres"
	}

	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("history: open %s: %w", driver, err)
	}

	l := NewLedger(db)
	if err := l.Init(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return l, nil
}

// Init creates the schema. Idempotent.
func (l *Ledger) Init(ctx context.Context) error {
	if _, err := l.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("history: migrate: %w", err)
	}
	return nil
}

// Record appends one outcome row.
func (l *Ledger) Record(ctx context.Context, o contracts.Outcome) error {
	query := `
		INSERT INTO outcomes (id, decided_at, action, strategy, reason, certified, outcome, duration_ms)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`
	_, err := l.db.ExecContext(ctx, query,
		o.ID, o.DecidedAt, string(o.Action), o.Strategy, o.Reason, o.Certified, o.Value, o.DurationMS,
	)
	if err != nil {
		return fmt.Errorf("history: record outcome: %w", err)
	}
	return nil
}

// Recent returns the newest outcomes, most recent first.
func (l *Ledger) Recent(ctx context.Context, limit int) ([]contracts.Outcome, error) {
	if limit <= 0 {
		limit = 20
	}
	query := `
		SELECT id, decided_at, action, strategy, reason, certified, outcome, duration_ms
		FROM outcomes ORDER BY decided_at DESC LIMIT $1
	`
	rows, err := l.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("history: query recent: %w", err)
	}
	defer func() { _ = rows.Close() }()

	out := make([]contracts.Outcome, 0, limit)
	for rows.Next() {
		var o contracts.Outcome
		var action string
		if err := rows.Scan(&o.ID, &o.DecidedAt, &action, &o.Strategy, &o.Reason, &o.Certified, &o.Value, &o.DurationMS); err != nil {
			return nil, fmt.Errorf("history: scan outcome: %w", err)
		}
		o.Action = contracts.Action(action)
		out = append(out, o)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("history: iterate outcomes: %w", err)
	}
	return out, nil
}

// SuccessRates aggregates the mean outcome per strategy. Rows without a
// strategy (NOOP, unresolved actions) are excluded.
func (l *Ledger) SuccessRates(ctx context.Context) (map[string]float64, error) {
	query := `
		SELECT strategy, AVG(outcome)
		FROM outcomes WHERE strategy <> '' GROUP BY strategy
	`
	rows, err := l.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("history: query success rates: %w", err)
	}
	defer func() { _ = rows.Close() }()

	rates := make(map[string]float64)
	for rows.Next() {
		var strategy string
		var rate float64
		if err := rows.Scan(&strategy, &rate); err != nil {
			return nil, fmt.Errorf("history: scan success rate: %w", err)
		}
		rates[strategy] = rate
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("history: iterate success rates: %w", err)
	}
	return rates, nil
}

// Close releases the database handle.
func (l *Ledger) Close() error {
	return l.db.Close()
}
