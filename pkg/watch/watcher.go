// Package watch turns filesystem changes under configured env paths into
// drift incidents on the event bus.
package watch

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/Mindburn-Labs/remedy/pkg/events"
)

// DefaultDebounce is the quiet period collapsing bursts of writes to the
// same path into one incident.
const DefaultDebounce = 500 * time.Millisecond

// Watcher publishes env.drift.detected incidents for writes, creations,
// removals, and renames under the watched paths. Watch errors are logged
// and the watcher keeps running.
type Watcher struct {
	fsw       *fsnotify.Watcher
	publisher events.Publisher
	debounce  time.Duration
	logger    *slog.Logger
}

// New builds a watcher over paths. Paths that cannot be watched are logged
// and skipped; at least one path must attach.
func New(paths []string, debounce time.Duration, publisher events.Publisher) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if debounce <= 0 {
		debounce = DefaultDebounce
	}

	w := &Watcher{
		fsw:       fsw,
		publisher: publisher,
		debounce:  debounce,
		logger:    slog.Default().With("component", "watch"),
	}

	attached := 0
	for _, p := range paths {
		if err := fsw.Add(p); err != nil {
			w.logger.Warn("watch path skipped", "path", p, "error", err)
			continue
		}
		attached++
	}
	if attached == 0 {
		_ = fsw.Close()
		return nil, errWatchNothing(paths)
	}
	return w, nil
}

// Run blocks, forwarding debounced drift incidents until the context is
// cancelled.
func (w *Watcher) Run(ctx context.Context) {
	pending := make(map[string]string)
	var timer *time.Timer
	var fire <-chan time.Time

	for {
		select {
		case <-ctx.Done():
			return

		case event, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			if !relevant(event.Op) {
				continue
			}
			pending[event.Name] = event.Op.String()
			if timer == nil {
				timer = time.NewTimer(w.debounce)
				fire = timer.C
			} else {
				timer.Reset(w.debounce)
			}

		case <-fire:
			for path, op := range pending {
				w.publisher.Publish(events.TopicEnvDrift, map[string]any{
					"kind":   events.TopicEnvDrift,
					"source": "watcher",
					"details": map[string]any{
						"path": path,
						"op":   op,
					},
				})
				w.logger.Info("drift detected", "path", path, "op", op)
			}
			pending = make(map[string]string)
			timer = nil
			fire = nil

		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			w.logger.Error("watch error", "error", err)
		}
	}
}

// Close releases the underlying filesystem watcher.
func (w *Watcher) Close() error {
	return w.fsw.Close()
}

func errWatchNothing(paths []string) error {
	return fmt.Errorf("watch: no watchable paths in %v", paths)
}

func relevant(op fsnotify.Op) bool {
	return op.Has(fsnotify.Write) || op.Has(fsnotify.Create) ||
		op.Has(fsnotify.Remove) || op.Has(fsnotify.Rename)
}
