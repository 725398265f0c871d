package backend

import (
	"context"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog/log"
)

const defaultPollInterval = 100 * time.Millisecond

// Waiter blocks until the backend's rendezvous socket exists. There is no
// timeout by default; bound the wait through the context when one is wanted.
type Waiter struct {
	PollInterval time.Duration
}

// Await watches the socket's parent directory for create events and also
// polls at a fixed short interval. The poll covers events lost before the
// watch was established and hosts where fsnotify is unavailable.
func (w Waiter) Await(ctx context.Context, socketPath string) error {
	if socketExists(socketPath) {
		return nil
	}

	interval := w.PollInterval
	if interval <= 0 {
		interval = defaultPollInterval
	}

	var events chan fsnotify.Event
	var errs chan error
	watcher, err := fsnotify.NewWatcher()
	if err == nil {
		defer watcher.Close()
		if err := watcher.Add(filepath.Dir(socketPath)); err == nil {
			events = watcher.Events
			errs = watcher.Errors
		} else {
			log.Debug().Err(err).Msg("socket watch unavailable, polling only")
		}
	} else {
		log.Debug().Err(err).Msg("fsnotify unavailable, polling only")
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev := <-events:
			if ev.Name != socketPath {
				continue
			}
		case err := <-errs:
			log.Debug().Err(err).Msg("socket watch error")
			continue
		case <-ticker.C:
		}
		if socketExists(socketPath) {
			return nil
		}
	}
}

func socketExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
