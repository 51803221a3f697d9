package lightpaint

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/fsnotify/fsnotify"
	"libdb.so/lightpaint/internal/metrics"
)

// MediaEvents carries media mount notifications to the render loop. The
// requests are flags: setting one never blocks, and the render loop takes
// them at the top of each cycle.
type MediaEvents struct {
	rescan     atomic.Bool
	invalidate atomic.Bool
	metrics    *metrics.Metrics
}

// NewMediaEvents creates a new MediaEvents.
func NewMediaEvents(m *metrics.Metrics) *MediaEvents {
	return &MediaEvents{metrics: m}
}

// RequestRescan asks for the media to be scanned again.
func (e *MediaEvents) RequestRescan() {
	e.metrics.MediaEvents.WithLabelValues("rescan").Inc()
	e.rescan.Store(true)
}

// RequestInvalidate asks for the catalog to be dropped.
func (e *MediaEvents) RequestInvalidate() {
	e.metrics.MediaEvents.WithLabelValues("invalidate").Inc()
	e.invalidate.Store(true)
}

// take returns and clears the pending requests.
func (e *MediaEvents) take() (invalidate, rescan bool) {
	return e.invalidate.Swap(false), e.rescan.Swap(false)
}

// Notify relays SIGUSR1 as a rescan request and SIGUSR2 as an invalidate
// request until ctx is canceled. The mount scripts send these.
func (e *MediaEvents) Notify(ctx context.Context, logger *slog.Logger) error {
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGUSR1, syscall.SIGUSR2)
	defer signal.Stop(sigs)

	for {
		select {
		case <-ctx.Done():
			return nil
		case sig := <-sigs:
			logger.Debug("received media signal", "signal", sig)
			switch sig {
			case syscall.SIGUSR1:
				e.RequestRescan()
			case syscall.SIGUSR2:
				e.RequestInvalidate()
			}
		}
	}
}

// Watch watches the parent directory of root for the mount point appearing
// or disappearing until ctx is canceled. Appearance requests a rescan once
// events settle for debounce; disappearance requests invalidation
// immediately. Changes inside root also request a rescan.
//
// Watching is best effort. If the watcher cannot start, the error is
// logged and Watch returns nil; signals still work.
func (e *MediaEvents) Watch(ctx context.Context, root string, debounce time.Duration, logger *slog.Logger) error {
	root = filepath.Clean(root)
	logger = logger.With("root", root)

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		logger.Warn("cannot watch media", "error", err)
		return nil
	}
	defer watcher.Close()

	if err := watcher.Add(filepath.Dir(root)); err != nil {
		logger.Warn("cannot watch media", "error", err)
		return nil
	}
	// The mount point may not exist yet.
	if err := watcher.Add(root); err != nil {
		logger.Debug("cannot watch mount point", "error", err)
	}

	logger.Debug("watching media", "debounce", debounce)

	var timer *time.Timer
	var timerC <-chan time.Time
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil

		case ev, ok := <-watcher.Events:
			if !ok {
				return nil
			}

			name := filepath.Clean(ev.Name)
			switch {
			case name == root && ev.Op&(fsnotify.Remove|fsnotify.Rename) != 0:
				logger.Info("media removed")
				if timer != nil {
					timer.Stop()
					timerC = nil
				}
				e.RequestInvalidate()
				continue

			case name == root && ev.Op&fsnotify.Create != 0:
				logger.Info("media appeared")
				if err := watcher.Add(root); err != nil {
					logger.Debug("cannot watch mount point", "error", err)
				}

			case filepath.Dir(name) == root && ev.Op&(fsnotify.Create|fsnotify.Remove|fsnotify.Rename|fsnotify.Write) != 0:
				logger.Debug("media changed", "file", name, "op", ev.Op.String())

			default:
				continue
			}

			if timer != nil {
				timer.Stop()
			}
			timer = time.NewTimer(debounce)
			timerC = timer.C

		case <-timerC:
			timerC = nil
			e.RequestRescan()

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			logger.Warn("media watcher error", "error", err)
		}
	}
}
