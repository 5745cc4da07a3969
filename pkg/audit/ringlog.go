// Package audit records remediation outcomes in two complementary forms:
// capped JSON ring logs on disk (the operational view, oldest entries
// dropped on overflow) and an in-memory hash-chained trail (the
// tamper-evident view).
package audit

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// RingCap is how many entries a ring log retains. Overflow drops the
// oldest entries; the drop is counted and logged but not surfaced as an
// error; the hash chain and the history ledger hold the non-lossy record.
const RingCap = 100

// RingLog is an append-only JSON array file capped at RingCap entries.
type RingLog struct {
	mu      sync.Mutex
	path    string
	logger  *slog.Logger
	dropped uint64
}

// NewRingLog creates a ring log backed by path. The parent directory must
// exist.
func NewRingLog(path string) *RingLog {
	return &RingLog{
		path:   path,
		logger: slog.Default().With("component", "audit.ring", "path", filepath.Base(path)),
	}
}

// Append adds one entry, stamping it with the current UTC time when the
// entry has no "timestamp" key, and trims the file to the last RingCap
// entries.
func (r *RingLog) Append(entry map[string]any) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	entries, err := r.readLocked()
	if err != nil {
		return err
	}

	if _, ok := entry["timestamp"]; !ok {
		stamped := make(map[string]any, len(entry)+1)
		for k, v := range entry {
			stamped[k] = v
		}
		stamped["timestamp"] = time.Now().UTC().Format(time.RFC3339Nano)
		entry = stamped
	}

	entries = append(entries, entry)
	if over := len(entries) - RingCap; over > 0 {
		entries = entries[over:]
		r.dropped += uint64(over)
		r.logger.Debug("ring log overflow", "dropped", over, "total_dropped", r.dropped)
	}

	data, err := json.MarshalIndent(entries, "", "  ")
	if err != nil {
		return fmt.Errorf("audit: encode ring log: %w", err)
	}
	if err := os.WriteFile(r.path, data, 0o644); err != nil {
		return fmt.Errorf("audit: write ring log: %w", err)
	}
	return nil
}

// Entries returns the current contents of the ring log, oldest first.
func (r *RingLog) Entries() ([]map[string]any, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.readLocked()
}

// Dropped returns how many entries have been lost to the cap.
func (r *RingLog) Dropped() uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.dropped
}

func (r *RingLog) readLocked() ([]map[string]any, error) {
	data, err := os.ReadFile(r.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("audit: read ring log: %w", err)
	}

	var entries []map[string]any
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("audit: decode ring log: %w", err)
	}
	return entries, nil
}

// Logs bundles the controller's fixed set of ring logs under one directory.
type Logs struct {
	Audit     *RingLog
	Rollback  *RingLog
	Autorun   *RingLog
	Certified *RingLog
}

// OpenLogs creates dir and the standard ring logs inside it.
func OpenLogs(dir string) (*Logs, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("audit: create %s: %w", dir, err)
	}
	return &Logs{
		Audit:     NewRingLog(filepath.Join(dir, "audit.json")),
		Rollback:  NewRingLog(filepath.Join(dir, "rollback.json")),
		Autorun:   NewRingLog(filepath.Join(dir, "autorun.json")),
		Certified: NewRingLog(filepath.Join(dir, "certified.json")),
	}, nil
}
