package config

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/macropower/relay/pkg/command"
	"github.com/macropower/relay/pkg/log"
)

// DefaultDebounce is the default delay between a file event and the reload.
const DefaultDebounce = 100 * time.Millisecond

// WatcherOpt configures a [Watcher].
type WatcherOpt func(*Watcher)

// WithDebounce sets the delay between a file event and the reload. Events
// during the delay restart it.
func WithDebounce(d time.Duration) WatcherOpt {
	return func(w *Watcher) {
		w.debounce = d
	}
}

// WithErrorHandler sets the handler for failed reloads.
func WithErrorHandler(h command.ExceptionHandler) WatcherOpt {
	return func(w *Watcher) {
		w.onError = h
	}
}

// WithLoaderOpts sets options for the [Loader] used on reload.
func WithLoaderOpts(opts ...LoaderOpt) WatcherOpt {
	return func(w *Watcher) {
		w.loaderOpts = opts
	}
}

// Watcher reloads a configuration file when it changes.
//
// Reloads run through a cancellable [command.Async], so a burst of events
// results in one reload of the final file contents.
type Watcher struct {
	fsw        *fsnotify.Watcher
	reload     *command.Async
	onLoad     func(*Config)
	onError    command.ExceptionHandler
	path       string
	loaderOpts []LoaderOpt
	debounce   time.Duration
}

// NewWatcher watches the file at path and calls onLoad with each successfully
// reloaded [Config].
func NewWatcher(path string, onLoad func(*Config), opts ...WatcherOpt) (*Watcher, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("get absolute path: %w", err)
	}

	w := &Watcher{
		path:     abs,
		onLoad:   onLoad,
		debounce: DefaultDebounce,
	}
	for _, opt := range opts {
		opt(w)
	}

	w.reload = command.NewAsync(w.load, nil,
		command.WithName("reload-config"),
		command.WithCancellation(),
		command.WithReentrancy(command.ReentrancyAllow),
		command.WithExceptionHandler(w.handleError),
	)

	w.fsw, err = fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create watcher: %w", err)
	}

	// Watch the directory, since editors often replace the file.
	if err := w.fsw.Add(filepath.Dir(abs)); err != nil {
		_ = w.fsw.Close()

		return nil, fmt.Errorf("watch %s: %w", filepath.Dir(abs), err)
	}

	return w, nil
}

// Reload returns the command that reloads the file.
func (w *Watcher) Reload() *command.Async {
	return w.reload
}

// Path returns the watched file path.
func (w *Watcher) Path() string {
	return w.path
}

// Run delivers file events until ctx is done or the watcher is closed.
func (w *Watcher) Run(ctx context.Context) error {
	logger := log.WithContext(ctx).With(slog.String("path", w.path))

	for {
		select {
		case <-ctx.Done():
			w.reload.Cancel()

			return nil

		case evt, ok := <-w.fsw.Events:
			if !ok {
				return nil
			}

			if filepath.Clean(evt.Name) != w.path {
				continue
			}

			if !evt.Op.Has(fsnotify.Write) && !evt.Op.Has(fsnotify.Create) && !evt.Op.Has(fsnotify.Rename) {
				continue
			}

			logger.DebugContext(ctx, "config file changed", slog.String("op", evt.Op.String()))

			w.reload.RunAsync(ctx, nil)

		case err, ok := <-w.fsw.Errors:
			if !ok {
				return nil
			}

			logger.WarnContext(ctx, "watch config", slog.Any("error", err))
		}
	}
}

// Close stops watching.
func (w *Watcher) Close() error {
	w.reload.Cancel()

	if err := w.fsw.Close(); err != nil {
		return fmt.Errorf("close watcher: %w", err)
	}

	return nil
}

func (w *Watcher) load(ctx context.Context) error {
	timer := time.NewTimer(w.debounce)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
	}

	l, err := NewLoaderFromFile(w.path, w.loaderOpts...)
	if err != nil {
		return err
	}

	c, err := l.ValidateAndLoad()
	if err != nil {
		return err
	}

	// A newer event may have arrived while loading.
	if err := ctx.Err(); err != nil {
		return err
	}

	log.WithContext(ctx).InfoContext(ctx, "reloaded config",
		slog.String("path", w.path),
		slog.Int("commands", len(c.Commands)),
	)

	if w.onLoad != nil {
		w.onLoad(c)
	}

	return nil
}

func (w *Watcher) handleError(err error) {
	if errors.Is(err, context.Canceled) {
		return
	}

	if w.onError != nil {
		w.onError(err)

		return
	}

	slog.Error("reload config", slog.Any("error", err))
}
