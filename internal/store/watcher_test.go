package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestWatch_ReportsArtifactChanges(t *testing.T) {
	s, err := NewArtifactStore(t.TempDir())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	events := make(chan Event, 32)
	done := make(chan error, 1)
	go func() {
		done <- s.Watch(ctx, func(ev Event) { events <- ev })
	}()

	// Give the watcher time to register the directory.
	time.Sleep(100 * time.Millisecond)
	require.NoError(t, s.Save(KeyConsolidated, []int{1, 2, 3}))

	waitFor := func(want Event) {
		t.Helper()
		deadline := time.After(5 * time.Second)
		for {
			select {
			case ev := <-events:
				if ev == want {
					return
				}
			case <-deadline:
				t.Fatalf("timed out waiting for %+v", want)
			}
		}
	}
	waitFor(Event{Key: KeyConsolidated, Op: EventWritten})

	require.NoError(t, s.Delete(KeyConsolidated))
	waitFor(Event{Key: KeyConsolidated, Op: EventRemoved})

	cancel()
	require.NoError(t, <-done)
}
