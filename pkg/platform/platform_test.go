package platform

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDeployHooksRetry(t *testing.T) {
	var hits int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits++
		assert.Equal(t, http.MethodPost, r.Method)
		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()

	d := NewDeployHooks(srv.URL, "")
	result, err := d.RetryLastDeploy(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, hits)
	assert.Equal(t, http.StatusAccepted, result["hook_status"])
}

func TestDeployHooksRollbackUnconfigured(t *testing.T) {
	d := NewDeployHooks("http://example.invalid/retry", "")
	_, err := d.RollbackLastDeploy(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no rollback hook configured")
}

func TestDeployHooksServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	d := NewDeployHooks(srv.URL, srv.URL)
	_, err := d.RetryLastDeploy(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "returned 502")
}

func TestBlueprintRepair(t *testing.T) {
	root := t.TempDir()
	bp := &Blueprint{Platforms: map[string]BlueprintPlatform{
		"netlify": {Files: map[string]string{"netlify.toml": "[build]\ncommand = \"make\"\n"}},
		"render":  {Files: map[string]string{"render.yaml": "services: []\n"}},
	}}
	gen := NewBlueprintGenerator(bp, root)

	result, err := gen.Repair(context.Background(), []string{"netlify", "vercel"})
	require.NoError(t, err)
	assert.Equal(t, []string{"netlify.toml"}, result["files_written"])
	assert.Equal(t, []string{"vercel"}, result["unknown_platforms"])

	written, err := os.ReadFile(filepath.Join(root, "netlify.toml"))
	require.NoError(t, err)
	assert.Contains(t, string(written), "command = \"make\"")
	assert.NoFileExists(t, filepath.Join(root, "render.yaml"))
}

func TestBlueprintRegenerateWritesAll(t *testing.T) {
	root := t.TempDir()
	bp := &Blueprint{Platforms: map[string]BlueprintPlatform{
		"netlify": {Files: map[string]string{"netlify.toml": "a\n"}},
		"render":  {Files: map[string]string{"deploy/render.yaml": "b\n"}},
	}}
	gen := NewBlueprintGenerator(bp, root)

	result, err := gen.Regenerate(context.Background())
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"netlify.toml", "deploy/render.yaml"}, result["files_written"])
	assert.FileExists(t, filepath.Join(root, "deploy", "render.yaml"))
}

func TestLoadBlueprint(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "blueprint.yaml")
	require.NoError(t, os.WriteFile(path, []byte(
		"platforms:\n  netlify:\n    files:\n      netlify.toml: |\n        [build]\n"), 0o644))

	bp, err := LoadBlueprint(path)
	require.NoError(t, err)
	require.Contains(t, bp.Platforms, "netlify")
	assert.Contains(t, bp.Platforms["netlify"].Files["netlify.toml"], "[build]")

	_, err = LoadBlueprint(filepath.Join(dir, "missing.yaml"))
	assert.Error(t, err)
}

func TestEnvFileSyncerReconciles(t *testing.T) {
	dir := t.TempDir()
	intent := filepath.Join(dir, "intent.env")
	target := filepath.Join(dir, "live.env")
	require.NoError(t, os.WriteFile(intent, []byte("API_URL=https://api.example.com\nPORT=8080\nREGION=eu\n"), 0o600))
	require.NoError(t, os.WriteFile(target, []byte("# live config\nPORT=3000\nREGION=eu\n"), 0o600))

	s := NewEnvFileSyncer(intent, []string{target})
	report, err := s.Sync(context.Background())
	require.NoError(t, err)

	assert.Equal(t, []string{"API_URL"}, report.Created)
	assert.Equal(t, []string{"PORT"}, report.Updated)
	assert.Equal(t, []string{"REGION"}, report.Skipped)

	after, _, err := readEnvFile(target)
	require.NoError(t, err)
	assert.Equal(t, "8080", after["PORT"])
	assert.Equal(t, "https://api.example.com", after["API_URL"])
}

func TestEnvFileSyncerCreatesMissingTarget(t *testing.T) {
	dir := t.TempDir()
	intent := filepath.Join(dir, "intent.env")
	target := filepath.Join(dir, "fresh.env")
	require.NoError(t, os.WriteFile(intent, []byte("TOKEN=abc\n"), 0o600))

	report, err := NewEnvFileSyncer(intent, []string{target}).Sync(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"TOKEN"}, report.Created)
	assert.FileExists(t, target)
}

func TestEnvFileWriterReplacesAndAppends(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".env")
	w := &EnvFileWriter{Path: path}

	require.NoError(t, w.WriteSecret(context.Background(), "DB_PASSWORD", "first"))
	require.NoError(t, w.WriteSecret(context.Background(), "DB_PASSWORD", "second"))
	require.NoError(t, w.WriteSecret(context.Background(), "API_KEY", "k"))

	vars, lines, err := readEnvFile(path)
	require.NoError(t, err)
	assert.Equal(t, "second", vars["DB_PASSWORD"])
	assert.Equal(t, "k", vars["API_KEY"])
	assert.Len(t, lines, 2)
}
