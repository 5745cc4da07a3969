// Package journal persists patches and their pre-image snapshots to disk.
// The layout is one <patch-id>.json per patch plus a <patch-id>.pre/
// directory holding the byte content of every file before it was mutated.
// Records are append-only: writers never overwrite another patch's record,
// so concurrent writers from different processes are safe without locking.
package journal

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/Mindburn-Labs/remedy/pkg/contracts"
)

// Journal is a file-per-patch store rooted at a fixed directory.
type Journal struct {
	dir string
}

// Open creates the journal directory if needed and returns a Journal.
func Open(dir string) (*Journal, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("journal: create %s: %w", dir, err)
	}
	return &Journal{dir: dir}, nil
}

// Dir returns the journal root directory.
func (j *Journal) Dir() string { return j.dir }

// Save writes a new patch record. Saving an id twice is an error: the
// journal is append-only.
func (j *Journal) Save(patch contracts.Patch) error {
	path := j.patchPath(patch.ID)
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("journal: patch %s already exists", patch.ID)
	}
	return j.write(path, patch)
}

// Update rewrites an existing patch record. Only the certification fields
// are expected to change after creation; callers enforce that.
func (j *Journal) Update(patch contracts.Patch) error {
	path := j.patchPath(patch.ID)
	if _, err := os.Stat(path); err != nil {
		return fmt.Errorf("journal: %w: %s", contracts.ErrPatchNotFound, patch.ID)
	}
	return j.write(path, patch)
}

// Load reads a patch by id. Returns contracts.ErrPatchNotFound for unknown
// ids.
func (j *Journal) Load(id string) (contracts.Patch, error) {
	data, err := os.ReadFile(j.patchPath(id))
	if err != nil {
		if os.IsNotExist(err) {
			return contracts.Patch{}, fmt.Errorf("journal: %w: %s", contracts.ErrPatchNotFound, id)
		}
		return contracts.Patch{}, fmt.Errorf("journal: read patch %s: %w", id, err)
	}

	var patch contracts.Patch
	if err := json.Unmarshal(data, &patch); err != nil {
		return contracts.Patch{}, fmt.Errorf("journal: decode patch %s: %w", id, err)
	}
	return patch, nil
}

// List returns all journaled patch ids, sorted.
func (j *Journal) List() ([]string, error) {
	entries, err := os.ReadDir(j.dir)
	if err != nil {
		return nil, fmt.Errorf("journal: list: %w", err)
	}

	var ids []string
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".json") {
			continue
		}
		ids = append(ids, strings.TrimSuffix(e.Name(), ".json"))
	}
	sort.Strings(ids)
	return ids, nil
}

// SnapshotPreImage records the pre-mutation content of one file under the
// patch's snapshot directory. existed=false marks files the fix created,
// so rollback removes them instead of restoring bytes.
func (j *Journal) SnapshotPreImage(patchID, relPath string, content []byte, existed bool) error {
	dir := j.preDir(patchID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("journal: create snapshot dir: %w", err)
	}

	name := encodePath(relPath)
	if !existed {
		name += ".new"
	}
	if err := os.WriteFile(filepath.Join(dir, name), content, 0o644); err != nil {
		return fmt.Errorf("journal: snapshot %s: %w", relPath, err)
	}
	return nil
}

// PreImage is one snapshotted file.
type PreImage struct {
	Path    string
	Content []byte
	Existed bool
}

// PreImages returns every snapshot recorded for a patch.
func (j *Journal) PreImages(patchID string) ([]PreImage, error) {
	dir := j.preDir(patchID)
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("journal: read snapshots for %s: %w", patchID, err)
	}

	images := make([]PreImage, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		existed := !strings.HasSuffix(name, ".new")
		name = strings.TrimSuffix(name, ".new")

		rel, err := decodePath(name)
		if err != nil {
			return nil, fmt.Errorf("journal: bad snapshot name %q: %w", e.Name(), err)
		}
		content, err := os.ReadFile(filepath.Join(dir, e.Name()))
		if err != nil {
			return nil, fmt.Errorf("journal: read snapshot %s: %w", rel, err)
		}
		images = append(images, PreImage{Path: rel, Content: content, Existed: existed})
	}

	sort.Slice(images, func(a, b int) bool { return images[a].Path < images[b].Path })
	return images, nil
}

// HasPreImage reports whether a snapshot for relPath already exists under
// patchID. Fix uses this to snapshot each file only once per patch.
func (j *Journal) HasPreImage(patchID, relPath string) bool {
	name := encodePath(relPath)
	dir := j.preDir(patchID)
	if _, err := os.Stat(filepath.Join(dir, name)); err == nil {
		return true
	}
	_, err := os.Stat(filepath.Join(dir, name+".new"))
	return err == nil
}

func (j *Journal) write(path string, patch contracts.Patch) error {
	data, err := json.MarshalIndent(patch, "", "  ")
	if err != nil {
		return fmt.Errorf("journal: encode patch %s: %w", patch.ID, err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("journal: write patch %s: %w", patch.ID, err)
	}
	return nil
}

func (j *Journal) patchPath(id string) string {
	return filepath.Join(j.dir, id+".json")
}

func (j *Journal) preDir(patchID string) string {
	return filepath.Join(j.dir, patchID+".pre")
}

// encodePath flattens a relative path into a single url-safe file name.
func encodePath(rel string) string {
	return base64.RawURLEncoding.EncodeToString([]byte(filepath.ToSlash(rel)))
}

func decodePath(name string) (string, error) {
	raw, err := base64.RawURLEncoding.DecodeString(name)
	if err != nil {
		return "", err
	}
	return filepath.FromSlash(string(raw)), nil
}
