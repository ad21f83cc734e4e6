package policy

import (
	"context"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/opsforge/remedy-engine/internal/metrics"
)

// Watcher hot-reloads a policy pack when the file changes on disk. Each reload
// swaps the engine's full rule set atomically, so a concurrent Select observes
// either the old or the new pack, never a mix.
type Watcher struct {
	engine   *Engine
	packPath string
	logger   *slog.Logger
	debounce time.Duration
}

// NewWatcher constructs a watcher for the given pack path.
func NewWatcher(engine *Engine, packPath string, logger *slog.Logger) *Watcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Watcher{
		engine:   engine,
		packPath: packPath,
		logger:   logger,
		debounce: 200 * time.Millisecond,
	}
}

// Run blocks watching for pack changes until ctx is cancelled. The parent
// directory is watched because editors typically replace files by rename.
func (w *Watcher) Run(ctx context.Context) error {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer fsw.Close()

	dir := filepath.Dir(w.packPath)
	if err := fsw.Add(dir); err != nil {
		return err
	}

	var timer *time.Timer
	pending := make(chan struct{}, 1)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case event, ok := <-fsw.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != filepath.Clean(w.packPath) {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
				continue
			}
			// Debounce bursts from editors writing in chunks.
			if timer != nil {
				timer.Stop()
			}
			timer = time.AfterFunc(w.debounce, func() {
				select {
				case pending <- struct{}{}:
				default:
				}
			})
		case err, ok := <-fsw.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn("policy watcher error", slog.Any("error", err))
		case <-pending:
			w.reload()
		}
	}
}

func (w *Watcher) reload() {
	rules, err := LoadPack(w.packPath)
	if err != nil {
		w.logger.Error("policy pack reload rejected", slog.String("path", w.packPath), slog.Any("error", err))
		return
	}
	w.engine.ReplaceAll(rules)
	metrics.ObservePolicyReload()
	w.logger.Info("policy pack reloaded", slog.String("path", w.packPath), slog.Int("rules", len(rules)))
}
