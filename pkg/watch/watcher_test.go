package watch

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Mindburn-Labs/remedy/pkg/events"
)

type recordingPublisher struct {
	mu       sync.Mutex
	payloads []map[string]any
}

func (r *recordingPublisher) Publish(_ string, payload map[string]any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.payloads = append(r.payloads, payload)
}

func (r *recordingPublisher) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.payloads)
}

func (r *recordingPublisher) first() map[string]any {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.payloads) == 0 {
		return nil
	}
	return r.payloads[0]
}

func TestWatcherPublishesDriftIncident(t *testing.T) {
	dir := t.TempDir()
	pub := &recordingPublisher{}

	w, err := New([]string{dir}, 20*time.Millisecond, pub)
	require.NoError(t, err)
	defer func() { _ = w.Close() }()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go w.Run(ctx)

	envFile := filepath.Join(dir, ".env")
	require.NoError(t, os.WriteFile(envFile, []byte("API_URL=https://example.test\n"), 0o644))

	require.Eventually(t, func() bool { return pub.count() >= 1 }, 3*time.Second, 10*time.Millisecond)

	payload := pub.first()
	assert.Equal(t, events.TopicEnvDrift, payload["kind"])
	assert.Equal(t, "watcher", payload["source"])
	details, ok := payload["details"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, envFile, details["path"])
}

func TestWatcherDebouncesBursts(t *testing.T) {
	dir := t.TempDir()
	pub := &recordingPublisher{}

	w, err := New([]string{dir}, 100*time.Millisecond, pub)
	require.NoError(t, err)
	defer func() { _ = w.Close() }()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go w.Run(ctx)

	envFile := filepath.Join(dir, ".env")
	for i := 0; i < 5; i++ {
		require.NoError(t, os.WriteFile(envFile, []byte("K=v\n"), 0o644))
		time.Sleep(5 * time.Millisecond)
	}

	require.Eventually(t, func() bool { return pub.count() >= 1 }, 3*time.Second, 10*time.Millisecond)
	time.Sleep(150 * time.Millisecond)
	assert.Equal(t, 1, pub.count())
}

func TestWatcherRejectsUnwatchablePaths(t *testing.T) {
	_, err := New([]string{filepath.Join(t.TempDir(), "missing")}, 0, &recordingPublisher{})
	assert.Error(t, err)
}
