package audit

import (
	"fmt"
	"sync"
	"time"

	"github.com/Mindburn-Labs/remedy/pkg/canon"
)

// TrailEntry is one tamper-evident record. PrevHash links it to the
// preceding entry; Hash covers every field including PrevHash.
type TrailEntry struct {
	ID        string    `json:"id"`
	Timestamp time.Time `json:"timestamp"`
	Actor     string    `json:"actor"`
	Action    string    `json:"action"`
	Ref       string    `json:"ref"`
	Details   string    `json:"details,omitempty"`
	PrevHash  string    `json:"prev_hash"`
	Hash      string    `json:"hash"`
}

// Trail is an in-memory hash-chained audit log.
type Trail struct {
	mu      sync.Mutex
	entries []TrailEntry
}

// NewTrail returns an empty trail.
func NewTrail() *Trail {
	return &Trail{}
}

// Append links a new entry to the chain head and returns it.
func (t *Trail) Append(actor, action, ref, details string) (TrailEntry, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	prev := ""
	if n := len(t.entries); n > 0 {
		prev = t.entries[n-1].Hash
	}

	now := time.Now().UTC()
	entry := TrailEntry{
		ID:        fmt.Sprintf("evt_%d", now.UnixNano()),
		Timestamp: now,
		Actor:     actor,
		Action:    action,
		Ref:       ref,
		Details:   details,
		PrevHash:  prev,
	}

	hash, err := entryHash(entry)
	if err != nil {
		return TrailEntry{}, err
	}
	entry.Hash = hash

	t.entries = append(t.entries, entry)
	return entry, nil
}

// Entries returns a copy of the chain, oldest first.
func (t *Trail) Entries() []TrailEntry {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]TrailEntry, len(t.entries))
	copy(out, t.entries)
	return out
}

// Verify walks the chain checking linkage and per-entry content hashes.
func (t *Trail) Verify() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return VerifyChain(t.entries)
}

// VerifyChain validates an exported chain without needing the Trail that
// produced it.
func VerifyChain(entries []TrailEntry) error {
	for i, entry := range entries {
		if i == 0 {
			if entry.PrevHash != "" {
				return fmt.Errorf("audit: genesis entry has non-empty prev hash")
			}
		} else if entry.PrevHash != entries[i-1].Hash {
			return fmt.Errorf("audit: chain broken at index %d: prev hash mismatch", i)
		}

		computed, err := entryHash(entry)
		if err != nil {
			return fmt.Errorf("audit: recompute hash at index %d: %w", i, err)
		}
		if computed != entry.Hash {
			return fmt.Errorf("audit: integrity failure at index %d", i)
		}
	}
	return nil
}

// entryHash hashes the canonical form of the entry with the Hash field
// excluded.
func entryHash(e TrailEntry) (string, error) {
	hashable := map[string]any{
		"id":        e.ID,
		"timestamp": e.Timestamp.Format(time.RFC3339Nano),
		"actor":     e.Actor,
		"action":    e.Action,
		"ref":       e.Ref,
		"details":   e.Details,
		"prev_hash": e.PrevHash,
	}
	hash, err := canon.Hash(hashable)
	if err != nil {
		return "", fmt.Errorf("audit: hash entry: %w", err)
	}
	return hash, nil
}
