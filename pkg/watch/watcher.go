// Package watch reruns a migration when its input file grows or is replaced.
package watch

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

// DefaultDebounce coalesces bursts of writes into one rerun.
const DefaultDebounce = 500 * time.Millisecond

// Watcher monitors one input file.
type Watcher struct {
	path     string
	debounce time.Duration
	logger   zerolog.Logger
	fs       *fsnotify.Watcher

	modTime time.Time
	size    int64
}

// New starts watching path. The containing directory is watched so that
// editors replacing the file by rename are still seen.
func New(path string, debounce time.Duration, logger zerolog.Logger) (*Watcher, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolve path: %w", err)
	}
	stat, err := os.Stat(abs)
	if err != nil {
		return nil, fmt.Errorf("stat input: %w", err)
	}
	if debounce <= 0 {
		debounce = DefaultDebounce
	}

	fs, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create watcher: %w", err)
	}
	if err := fs.Add(filepath.Dir(abs)); err != nil {
		fs.Close()
		return nil, fmt.Errorf("watch directory: %w", err)
	}

	return &Watcher{
		path:     abs,
		debounce: debounce,
		logger:   logger.With().Str("component", "watch").Str("path", abs).Logger(),
		fs:       fs,
		modTime:  stat.ModTime(),
		size:     stat.Size(),
	}, nil
}

// Run calls fn once per settled change until stop is closed or ctx ends.
// Calls never overlap; changes seen while fn runs are coalesced into one more call.
// fn receives ctx, so closing stop lets a running call finish.
// An error from fn ends the watch and is returned.
func (w *Watcher) Run(ctx context.Context, stop <-chan struct{}, fn func(context.Context) error) error {
	defer w.fs.Close()

	trigger := make(chan struct{}, 1)
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		defer close(trigger)
		return w.loop(gctx, stop, trigger)
	})
	g.Go(func() error {
		for range trigger {
			if err := fn(ctx); err != nil {
				return err
			}
		}
		return nil
	})

	return g.Wait()
}

func (w *Watcher) loop(ctx context.Context, stop <-chan struct{}, trigger chan<- struct{}) error {
	var fire <-chan time.Time
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case <-stop:
			w.logger.Debug().Msg("watch stopped")
			return nil

		case event, ok := <-w.fs.Events:
			if !ok {
				return nil
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			if abs, err := filepath.Abs(event.Name); err != nil || abs != w.path {
				continue
			}
			fire = time.After(w.debounce)

		case <-fire:
			fire = nil
			if !w.changed() {
				continue
			}
			w.logger.Info().Int64("size", w.size).Msg("input changed")
			select {
			case trigger <- struct{}{}:
			default:
			}

		case err, ok := <-w.fs.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn().Err(err).Msg("watch error")
		}
	}
}

// changed reports whether the file differs from the last seen state and records it.
func (w *Watcher) changed() bool {
	stat, err := os.Stat(w.path)
	if err != nil {
		w.logger.Debug().Err(err).Msg("input not readable yet")
		return false
	}
	if stat.ModTime().Equal(w.modTime) && stat.Size() == w.size {
		return false
	}
	w.modTime = stat.ModTime()
	w.size = stat.Size()
	return true
}
