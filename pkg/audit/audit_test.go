package audit

import (
	"fmt"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRingLogAppendAndRead(t *testing.T) {
	ring := NewRingLog(filepath.Join(t.TempDir(), "audit.json"))

	require.NoError(t, ring.Append(map[string]any{"action": "REPAIR_CONFIG"}))
	require.NoError(t, ring.Append(map[string]any{"action": "SYNC_ENVS"}))

	entries, err := ring.Entries()
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "REPAIR_CONFIG", entries[0]["action"])
	assert.NotEmpty(t, entries[0]["timestamp"])
}

func TestRingLogCapsAtLastHundred(t *testing.T) {
	ring := NewRingLog(filepath.Join(t.TempDir(), "audit.json"))

	for i := 0; i < RingCap+25; i++ {
		require.NoError(t, ring.Append(map[string]any{"seq": fmt.Sprintf("%d", i)}))
	}

	entries, err := ring.Entries()
	require.NoError(t, err)
	require.Len(t, entries, RingCap)

	// Oldest 25 silently dropped, but counted.
	assert.Equal(t, "25", entries[0]["seq"])
	assert.Equal(t, uint64(25), ring.Dropped())
}

func TestOpenLogs(t *testing.T) {
	logs, err := OpenLogs(filepath.Join(t.TempDir(), "logs"))
	require.NoError(t, err)

	require.NoError(t, logs.Rollback.Append(map[string]any{"patch_id": "p1"}))
	entries, err := logs.Rollback.Entries()
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestTrailVerify(t *testing.T) {
	trail := NewTrail()

	_, err := trail.Append("governor", "DECISION", "inc-1", `{"action":"RETRY"}`)
	require.NoError(t, err)
	_, err = trail.Append("governor", "COMMITTED", "inc-1", "")
	require.NoError(t, err)

	require.NoError(t, trail.Verify())

	entries := trail.Entries()
	require.Len(t, entries, 2)
	assert.Equal(t, entries[0].Hash, entries[1].PrevHash)
}

func TestTrailDetectsTampering(t *testing.T) {
	trail := NewTrail()
	_, err := trail.Append("governor", "DECISION", "inc-1", "a")
	require.NoError(t, err)
	_, err = trail.Append("governor", "DECISION", "inc-2", "b")
	require.NoError(t, err)

	entries := trail.Entries()
	entries[0].Action = "FORGED"
	assert.Error(t, VerifyChain(entries))

	// A relinked but content-tampered chain still fails the content hash.
	entries = trail.Entries()
	entries[1].PrevHash = "sha256:bogus"
	assert.Error(t, VerifyChain(entries))
}

func TestVerifyChainEmpty(t *testing.T) {
	assert.NoError(t, VerifyChain(nil))
}
