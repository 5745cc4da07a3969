package history

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Mindburn-Labs/remedy/pkg/contracts"
)

func TestRecordInsertsOutcomeRow(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer func() { _ = db.Close() }()

	decidedAt := time.Date(2026, 2, 1, 9, 30, 0, 0, time.UTC)
	mock.ExpectExec("INSERT INTO outcomes").
		WithArgs("out-1", decidedAt, "SYNC_ENVS", "sync_envs", "env_drift", true, 1.0, int64(420)).
		WillReturnResult(sqlmock.NewResult(0, 1))

	ledger := NewLedger(db)
	err = ledger.Record(context.Background(), contracts.Outcome{
		ID:         "out-1",
		DecidedAt:  decidedAt,
		Action:     contracts.ActionSyncEnvs,
		Strategy:   "sync_envs",
		Reason:     "env_drift",
		Certified:  true,
		Value:      1.0,
		DurationMS: 420,
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRecentReturnsNewestFirst(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer func() { _ = db.Close() }()

	newer := time.Date(2026, 2, 1, 10, 0, 0, 0, time.UTC)
	older := newer.Add(-time.Hour)

	rows := sqlmock.NewRows([]string{
		"id", "decided_at", "action", "strategy", "reason", "certified", "outcome", "duration_ms",
	}).
		AddRow("out-2", newer, "RETRY", "retry_deploy", "render_retry_once", false, 0.0, int64(900)).
		AddRow("out-1", older, "SYNC_ENVS", "sync_envs", "env_drift", true, 1.0, int64(420))

	mock.ExpectQuery("SELECT (.+) FROM outcomes ORDER BY decided_at DESC").
		WithArgs(2).
		WillReturnRows(rows)

	out, err := NewLedger(db).Recent(context.Background(), 2)
	require.NoError(t, err)
	require.Len(t, out, 2)
	assert.Equal(t, "out-2", out[0].ID)
	assert.Equal(t, contracts.ActionRetry, out[0].Action)
	assert.False(t, out[0].Certified)
	assert.Equal(t, "out-1", out[1].ID)
	assert.Equal(t, 1.0, out[1].Value)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSuccessRatesAggregatesPerStrategy(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer func() { _ = db.Close() }()

	rows := sqlmock.NewRows([]string{"strategy", "AVG(outcome)"}).
		AddRow("sync_envs", 0.75).
		AddRow("retry_deploy", 0.5)

	mock.ExpectQuery("SELECT strategy, AVG\\(outcome\\)").WillReturnRows(rows)

	rates, err := NewLedger(db).SuccessRates(context.Background())
	require.NoError(t, err)
	assert.InDelta(t, 0.75, rates["sync_envs"], 1e-9)
	assert.InDelta(t, 0.5, rates["retry_deploy"], 1e-9)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestInitRunsMigrations(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer func() { _ = db.Close() }()

	mock.ExpectExec("CREATE TABLE IF NOT EXISTS outcomes").
		WillReturnResult(sqlmock.NewResult(0, 0))

	require.NoError(t, NewLedger(db).Init(context.Background()))
	assert.NoError(t, mock.ExpectationsWereMet())
}
