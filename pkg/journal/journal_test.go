package journal

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Mindburn-Labs/remedy/pkg/contracts"
)

func TestSaveLoadRoundTrip(t *testing.T) {
	j, err := Open(filepath.Join(t.TempDir(), "patchlog"))
	require.NoError(t, err)

	patch := contracts.Patch{
		ID:                "patch_abc",
		PlanID:            "plan_xyz",
		FilesModified:     []string{"a.py", "b.py"},
		Diff:              "--- a.py\n+++ a.py\n",
		RollbackAvailable: true,
	}
	require.NoError(t, j.Save(patch))

	got, err := j.Load("patch_abc")
	require.NoError(t, err)
	assert.Equal(t, patch, got)
}

func TestSaveIsAppendOnly(t *testing.T) {
	j, err := Open(t.TempDir())
	require.NoError(t, err)

	require.NoError(t, j.Save(contracts.Patch{ID: "p1"}))
	assert.Error(t, j.Save(contracts.Patch{ID: "p1"}))
}

func TestLoadUnknownPatch(t *testing.T) {
	j, err := Open(t.TempDir())
	require.NoError(t, err)

	_, err = j.Load("missing")
	assert.ErrorIs(t, err, contracts.ErrPatchNotFound)
}

func TestUpdateCertificationFields(t *testing.T) {
	j, err := Open(t.TempDir())
	require.NoError(t, err)

	patch := contracts.Patch{ID: "p1", RollbackAvailable: true}
	require.NoError(t, j.Save(patch))

	patch.Certified = true
	patch.CertificateID = "cert-1"
	require.NoError(t, j.Update(patch))

	got, err := j.Load("p1")
	require.NoError(t, err)
	assert.True(t, got.Certified)
	assert.Equal(t, "cert-1", got.CertificateID)

	assert.ErrorIs(t, j.Update(contracts.Patch{ID: "nope"}), contracts.ErrPatchNotFound)
}

func TestPreImageRoundTrip(t *testing.T) {
	j, err := Open(t.TempDir())
	require.NoError(t, err)

	content := []byte("original bytes\nwith a second line\n")
	require.NoError(t, j.SnapshotPreImage("p1", filepath.Join("sub", "file.py"), content, true))
	require.NoError(t, j.SnapshotPreImage("p1", "created.py", nil, false))

	assert.True(t, j.HasPreImage("p1", filepath.Join("sub", "file.py")))
	assert.False(t, j.HasPreImage("p1", "other.py"))

	images, err := j.PreImages("p1")
	require.NoError(t, err)
	require.Len(t, images, 2)

	assert.Equal(t, "created.py", images[0].Path)
	assert.False(t, images[0].Existed)
	assert.Equal(t, filepath.Join("sub", "file.py"), images[1].Path)
	assert.Equal(t, content, images[1].Content)
	assert.True(t, images[1].Existed)
}

func TestPreImagesEmptyForUnknownPatch(t *testing.T) {
	j, err := Open(t.TempDir())
	require.NoError(t, err)

	images, err := j.PreImages("nothing")
	require.NoError(t, err)
	assert.Empty(t, images)
}

func TestList(t *testing.T) {
	j, err := Open(t.TempDir())
	require.NoError(t, err)

	require.NoError(t, j.Save(contracts.Patch{ID: "b"}))
	require.NoError(t, j.Save(contracts.Patch{ID: "a"}))

	ids, err := j.List()
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, ids)
}
