package loader

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"vectormap/internal/tile"
)

// pollInterval bounds how long Await can miss an entry finished by a job
// some other request queued; those jobs never call our onReady.
const pollInterval = 25 * time.Millisecond

// Await requests coords, loading what is missing, and blocks until every
// entry is terminal. It returns ctx.Err() when ctx is done first and
// ErrCancelled when the loader is closed first; the snapshot is the last one
// taken and is partial in both cases.
func (l *Loader) Await(ctx context.Context, coords []tile.Coord) (Snapshot, error) {
	unique := make(map[tile.Coord]struct{}, len(coords))
	for _, c := range coords {
		if c.Valid() {
			unique[c] = struct{}{}
		}
	}
	want := len(unique) * len(l.Kinds())

	ready := make(chan struct{}, 1)
	onReady := func(tile.Coord) {
		select {
		case ready <- struct{}{}:
		default:
		}
	}

	snap := l.RequestTiles(coords, onReady, true)
	if len(snap.States) >= want {
		return snap, nil
	}

	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	for len(snap.States) < want {
		if l.isClosed() {
			// Close may have finished the last entries as it drained the queue.
			snap = l.RequestTiles(coords, nil, false)
			if len(snap.States) >= want {
				break
			}
			return snap, ErrCancelled
		}
		select {
		case <-ctx.Done():
			return snap, ctx.Err()
		case <-ready:
		case <-ticker.C:
		}
		snap = l.RequestTiles(coords, nil, false)
	}
	return snap, nil
}

// Prefetch loads coords with at most window of them awaited at once and
// calls progress, if set, after each one. It returns ctx.Err() when
// interrupted and ErrCancelled when the loader is closed underneath it.
func (l *Loader) Prefetch(ctx context.Context, coords []tile.Coord, window int, progress func(tile.Coord)) error {
	if window <= 0 {
		window = 1
	}

	l.log.Info("Starting prefetch", zap.Int("tiles", len(coords)), zap.Int("window", window))

	slots := make(chan struct{}, window)
	var wg sync.WaitGroup
	var closed atomic.Bool

	for _, c := range coords {
		select {
		case slots <- struct{}{}: // Acquire slot
		case <-ctx.Done():
			wg.Wait()
			return ctx.Err()
		}

		wg.Add(1)
		go func(c tile.Coord) {
			defer wg.Done()
			defer func() { <-slots }() // Release slot

			if _, err := l.Await(ctx, []tile.Coord{c}); errors.Is(err, ErrCancelled) {
				closed.Store(true)
				return
			}
			if progress != nil {
				progress(c)
			}
		}(c)
	}

	wg.Wait()
	if err := ctx.Err(); err != nil {
		return err
	}
	if closed.Load() {
		return ErrCancelled
	}
	l.log.Info("Prefetch completed", zap.Int("tiles", len(coords)))
	return nil
}

func (l *Loader) isClosed() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.closed
}
