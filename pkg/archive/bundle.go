package archive

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/Mindburn-Labs/remedy/pkg/canon"
	"github.com/Mindburn-Labs/remedy/pkg/contracts"
	"github.com/Mindburn-Labs/remedy/pkg/journal"
)

// Bundle encodes a patch and its certification metadata into canonical
// JSON, so equal evidence always yields the same handle.
func Bundle(patch contracts.Patch) ([]byte, error) {
	data, err := canon.Canonicalize(map[string]any{
		"patch_id":       patch.ID,
		"plan_id":        patch.PlanID,
		"timestamp":      patch.Timestamp,
		"files_modified": patch.FilesModified,
		"diff":           patch.Diff,
		"certified":      patch.Certified,
		"certificate_id": patch.CertificateID,
	})
	if err != nil {
		return nil, fmt.Errorf("archive: bundle patch %s: %w", patch.ID, err)
	}
	return data, nil
}

// Archiver stores certified patch bundles out of the journal. Archival is
// best-effort: failures are logged and never fail the remediation that
// produced the patch.
type Archiver struct {
	store   Store
	journal *journal.Journal
	logger  *slog.Logger
}

// NewArchiver wires a store to the patch journal.
func NewArchiver(store Store, j *journal.Journal) *Archiver {
	return &Archiver{
		store:   store,
		journal: j,
		logger:  slog.Default().With("component", "archive"),
	}
}

// ArchivePatch bundles and stores one journaled patch, returning the
// evidence handle.
func (a *Archiver) ArchivePatch(ctx context.Context, patchID string) (string, error) {
	patch, err := a.journal.Load(patchID)
	if err != nil {
		return "", err
	}
	data, err := Bundle(patch)
	if err != nil {
		return "", err
	}
	handle, err := a.store.Store(ctx, data)
	if err != nil {
		return "", err
	}
	a.logger.Info("evidence archived", "patch_id", patchID, "handle", handle)
	return handle, nil
}

// ArchiveAll archives every patch id, logging failures and continuing.
// Returns the handles that were stored.
func (a *Archiver) ArchiveAll(ctx context.Context, patchIDs []string) []string {
	handles := make([]string, 0, len(patchIDs))
	for _, id := range patchIDs {
		handle, err := a.ArchivePatch(ctx, id)
		if err != nil {
			a.logger.Warn("evidence archival failed", "patch_id", id, "error", err)
			continue
		}
		handles = append(handles, handle)
	}
	return handles
}
