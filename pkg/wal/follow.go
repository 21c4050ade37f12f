package wal

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/bft-labs/walfp/pkg/log"
)

// Follower blocks until the WAL directory shows new data: a segment file is
// created or written. When the directory is quiet it still wakes up after
// an interval that backs off from poll to maxPoll, since some filesystems
// (NFS, bind mounts) do not deliver inotify events.
type Follower struct {
	dir     string
	watcher *fsnotify.Watcher
	backoff *backoff
	logger  log.Logger
}

// NewFollower starts watching dir.
func NewFollower(dir string, poll, maxPoll time.Duration, logger log.Logger) (*Follower, error) {
	if logger == nil {
		logger = log.NewNoopLogger()
	}
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create watcher: %w", err)
	}
	if err := watcher.Add(dir); err != nil {
		watcher.Close()
		return nil, fmt.Errorf("watch %s: %w", dir, err)
	}
	return &Follower{
		dir:     dir,
		watcher: watcher,
		backoff: newBackoff(poll, maxPoll),
		logger:  logger,
	}, nil
}

// Wait returns when a segment file changes, the poll interval elapses or ctx is done.
func (f *Follower) Wait(ctx context.Context) error {
	timer := time.NewTimer(f.backoff.Next())
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case <-timer.C:
			return nil

		case event, ok := <-f.watcher.Events:
			if !ok {
				return fmt.Errorf("watcher for %s closed", f.dir)
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			if len(filepath.Base(event.Name)) != segmentNameLen {
				continue
			}
			f.backoff.Reset()
			return nil

		case err, ok := <-f.watcher.Errors:
			if !ok {
				return fmt.Errorf("watcher for %s closed", f.dir)
			}
			f.logger.Warn("WAL directory watcher error", log.Err(err))
		}
	}
}

// Close stops watching.
func (f *Follower) Close() error {
	return f.watcher.Close()
}
