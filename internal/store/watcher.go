package store

import (
	"context"
	"fmt"

	"github.com/fsnotify/fsnotify"

	"skeptic/internal/logging"
)

// EventOp describes what happened to an artifact file.
type EventOp string

const (
	EventWritten EventOp = "written"
	EventRemoved EventOp = "removed"
)

// Event reports a change to one artifact file.
type Event struct {
	Key Key
	Op  EventOp
}

// Watch reports artifact changes in s's directory until ctx is done.
// Temp files and unknown names are ignored. The callback runs on the
// watcher goroutine; Watch returns after it has stopped.
func (s *ArtifactStore) Watch(ctx context.Context, fn func(Event)) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	defer w.Close()

	if err := w.Add(s.dir); err != nil {
		return fmt.Errorf("failed to watch %s: %w", s.dir, err)
	}
	logging.StoreDebug("watching %s", s.dir)

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			key, known := KeyForFile(ev.Name)
			if !known {
				continue
			}
			switch {
			case ev.Has(fsnotify.Create), ev.Has(fsnotify.Write):
				fn(Event{Key: key, Op: EventWritten})
			case ev.Has(fsnotify.Remove), ev.Has(fsnotify.Rename):
				fn(Event{Key: key, Op: EventRemoved})
			}
		case werr, ok := <-w.Errors:
			if !ok {
				return nil
			}
			logging.StoreError("watcher error: %v", werr)
		}
	}
}
