package config

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

// DefaultDebounce coalesces the burst of events an editor produces on save.
const DefaultDebounce = 100 * time.Millisecond

// Watcher reloads a config file into a Store when it changes.
type Watcher struct {
	path     string
	store    *Store
	logger   *slog.Logger
	debounce time.Duration
	fs       *fsnotify.Watcher
	errCh    chan error
	reloadCh chan struct{}
}

// NewWatcher watches the directory holding path, so files replaced by rename are
// still seen.
//
// Parameters:
//   - path: Config file to watch
//   - store: Store receiving validated reloads
//   - logger: Reload logger, nil for slog.Default
//
// Returns:
//   - *Watcher: Watcher ready to Run
//   - error: fsnotify setup error
func NewWatcher(path string, store *Store, logger *slog.Logger) (*Watcher, error) {
	if logger == nil {
		logger = slog.Default()
	}

	fs, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create watcher: %w", err)
	}
	if err := fs.Add(filepath.Dir(path)); err != nil {
		fs.Close()
		return nil, fmt.Errorf("watch directory: %w", err)
	}

	return &Watcher{
		path:     path,
		store:    store,
		logger:   logger,
		debounce: DefaultDebounce,
		fs:       fs,
		errCh:    make(chan error, 1),
		reloadCh: make(chan struct{}, 1),
	}, nil
}

// Errors reports reload failures. Errors are dropped while one is unread.
func (w *Watcher) Errors() <-chan error {
	return w.errCh
}

// Close releases the fsnotify watcher. It is safe to call after Run has returned.
func (w *Watcher) Close() error {
	return w.fs.Close()
}

// Run processes file events until ctx is done, then closes the fsnotify watcher.
func (w *Watcher) Run(ctx context.Context) error {
	defer w.fs.Close()

	var timer *time.Timer
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	name := filepath.Base(w.path)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case ev, ok := <-w.fs.Events:
			if !ok {
				return nil
			}
			if filepath.Base(ev.Name) != name || !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) {
				continue
			}
			if timer != nil {
				timer.Stop()
			}
			timer = time.AfterFunc(w.debounce, func() {
				select {
				case w.reloadCh <- struct{}{}:
				default:
				}
			})

		case <-w.reloadCh:
			w.reload()

		case err, ok := <-w.fs.Errors:
			if !ok {
				return nil
			}
			w.report(err)
		}
	}
}

func (w *Watcher) reload() {
	k, err := Load(w.path)
	if err != nil {
		w.report(fmt.Errorf("reload config: %w", err))
		return
	}

	snap, err := w.store.Update(k)
	if err != nil {
		w.report(fmt.Errorf("apply config: %w", err))
		return
	}

	w.logger.Info("config reloaded",
		slog.String("path", w.path),
		slog.Uint64("generation", snap.Generation),
		slog.Uint64("wpm", uint64(k.Iambic.WPM)),
		slog.String("mode", k.Iambic.Mode.String()),
	)
}

func (w *Watcher) report(err error) {
	w.logger.Warn("config watcher", slog.Any("error", err))
	select {
	case w.errCh <- err:
	default:
	}
}
