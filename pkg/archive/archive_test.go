package archive

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Mindburn-Labs/remedy/pkg/config"
	"github.com/Mindburn-Labs/remedy/pkg/contracts"
	"github.com/Mindburn-Labs/remedy/pkg/journal"
)

func TestFileStoreRoundTrip(t *testing.T) {
	store, err := NewFileStore(t.TempDir())
	require.NoError(t, err)
	ctx := context.Background()

	data := []byte(`{"patch_id":"patch_1"}`)
	handle, err := store.Store(ctx, data)
	require.NoError(t, err)
	assert.Contains(t, handle, "sha256:")

	got, err := store.Get(ctx, handle)
	require.NoError(t, err)
	assert.Equal(t, data, got)

	exists, err := store.Exists(ctx, handle)
	require.NoError(t, err)
	assert.True(t, exists)
}

func TestFileStoreIsIdempotent(t *testing.T) {
	store, err := NewFileStore(t.TempDir())
	require.NoError(t, err)
	ctx := context.Background()

	h1, err := store.Store(ctx, []byte("evidence"))
	require.NoError(t, err)
	h2, err := store.Store(ctx, []byte("evidence"))
	require.NoError(t, err)
	assert.Equal(t, h1, h2)
}

func TestFileStoreDeleteAndMissing(t *testing.T) {
	store, err := NewFileStore(t.TempDir())
	require.NoError(t, err)
	ctx := context.Background()

	handle, err := store.Store(ctx, []byte("to remove"))
	require.NoError(t, err)
	require.NoError(t, store.Delete(ctx, handle))

	exists, err := store.Exists(ctx, handle)
	require.NoError(t, err)
	assert.False(t, exists)

	_, err = store.Get(ctx, handle)
	assert.Error(t, err)

	// Deleting again is not an error.
	assert.NoError(t, store.Delete(ctx, handle))
}

func TestStoreRejectsMalformedHandle(t *testing.T) {
	store, err := NewFileStore(t.TempDir())
	require.NoError(t, err)

	_, err = store.Get(context.Background(), "md5:abc")
	assert.Error(t, err)
}

func TestBundleIsDeterministic(t *testing.T) {
	patch := contracts.Patch{
		ID:            "patch_1",
		PlanID:        "plan_1",
		FilesModified: []string{"svc/clock.py"},
		Diff:          "--- a/svc/clock.py\n+++ b/svc/clock.py\n",
		Certified:     true,
		CertificateID: "cert_1",
	}

	b1, err := Bundle(patch)
	require.NoError(t, err)
	b2, err := Bundle(patch)
	require.NoError(t, err)
	assert.Equal(t, b1, b2)
}

func TestArchiverStoresJournaledPatch(t *testing.T) {
	dir := t.TempDir()
	j, err := journal.Open(dir)
	require.NoError(t, err)

	patch := contracts.Patch{ID: "patch_1", PlanID: "plan_1", Certified: true}
	require.NoError(t, j.Save(patch))

	store, err := NewFileStore(t.TempDir())
	require.NoError(t, err)
	archiver := NewArchiver(store, j)

	handle, err := archiver.ArchivePatch(context.Background(), "patch_1")
	require.NoError(t, err)

	exists, err := store.Exists(context.Background(), handle)
	require.NoError(t, err)
	assert.True(t, exists)
}

func TestArchiveAllSkipsFailures(t *testing.T) {
	j, err := journal.Open(t.TempDir())
	require.NoError(t, err)
	require.NoError(t, j.Save(contracts.Patch{ID: "patch_ok"}))

	store, err := NewFileStore(t.TempDir())
	require.NoError(t, err)
	archiver := NewArchiver(store, j)

	handles := archiver.ArchiveAll(context.Background(), []string{"patch_ok", "patch_missing"})
	assert.Len(t, handles, 1)
}

func TestFactoryDefaultsToFilesystem(t *testing.T) {
	cfg := &config.Config{DataDir: t.TempDir(), ArchiveBackend: "fs"}
	store, err := New(context.Background(), cfg)
	require.NoError(t, err)
	_, ok := store.(*FileStore)
	assert.True(t, ok)
}

func TestFactoryRejectsUnknownBackend(t *testing.T) {
	cfg := &config.Config{DataDir: t.TempDir(), ArchiveBackend: "tape"}
	_, err := New(context.Background(), cfg)
	assert.Error(t, err)
}

func TestFactoryRequiresBucketForS3(t *testing.T) {
	cfg := &config.Config{DataDir: t.TempDir(), ArchiveBackend: "s3"}
	_, err := New(context.Background(), cfg)
	assert.Error(t, err)
}
