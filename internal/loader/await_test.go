package loader_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"vectormap/internal/loader"
	"vectormap/internal/tile"
)

func TestAwaitReturnsWhenAllTerminal(t *testing.T) {
	data := vectorBytes(t)
	l := loader.New(loader.Options{
		Workers: 2,
		Override: func(c tile.Coord, _ tile.Kind) ([]byte, bool) {
			return data, c != c3
		},
	})
	defer l.Close()

	snap, err := l.Await(context.Background(), []tile.Coord{c1, c2, c3, {Z: 1, X: 5}})
	require.NoError(t, err)
	require.Len(t, snap.States, 3, "invalid coordinates are ignored")
	assert.Equal(t, loader.Ok, snap.States[vkey(c1)])
	assert.Equal(t, loader.Ok, snap.States[vkey(c2)])
	assert.Equal(t, loader.UnknownError, snap.States[vkey(c3)])
	assert.Len(t, snap.Vector, 2)
}

func TestAwaitSeesJobsQueuedByOthers(t *testing.T) {
	data := vectorBytes(t)
	release := make(chan struct{})
	l := loader.New(loader.Options{
		Workers: 1,
		Override: func(tile.Coord, tile.Kind) ([]byte, bool) {
			<-release
			return data, true
		},
	})
	defer l.Close()

	l.RequestTiles([]tile.Coord{c1}, nil, true)

	done := make(chan loader.Snapshot, 1)
	go func() {
		snap, _ := l.Await(context.Background(), []tile.Coord{c1})
		done <- snap
	}()

	close(release)
	select {
	case snap := <-done:
		assert.Equal(t, loader.Ok, snap.States[vkey(c1)])
	case <-time.After(5 * time.Second):
		t.Fatal("Await did not notice the other request's job")
	}
}

func TestAwaitStopsAtDeadline(t *testing.T) {
	release := make(chan struct{})
	l := loader.New(loader.Options{
		Workers: 1,
		Override: func(tile.Coord, tile.Kind) ([]byte, bool) {
			<-release
			return nil, false
		},
	})
	defer l.Close()
	defer close(release)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	snap, err := l.Await(ctx, []tile.Coord{c1})
	assert.Empty(t, snap.States)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestAwaitReturnsCancelledWhenLoaderCloses(t *testing.T) {
	release := make(chan struct{})
	started := make(chan struct{}, 1)
	l := loader.New(loader.Options{
		Workers: 1,
		Override: func(tile.Coord, tile.Kind) ([]byte, bool) {
			select {
			case started <- struct{}{}:
			default:
			}
			<-release
			return nil, false
		},
	})

	type result struct {
		snap loader.Snapshot
		err  error
	}
	done := make(chan result, 1)
	go func() {
		snap, err := l.Await(context.Background(), []tile.Coord{c1, c2})
		done <- result{snap, err}
	}()
	select {
	case <-started:
	case <-time.After(5 * time.Second):
		t.Fatal("worker never picked up a job")
	}

	closed := make(chan struct{})
	go func() {
		l.Close()
		close(closed)
	}()

	select {
	case res := <-done:
		assert.ErrorIs(t, res.err, loader.ErrCancelled)
		assert.Equal(t, loader.Cancelled, res.snap.States[vkey(c2)], "the queued job is drained")
		assert.NotContains(t, res.snap.States, vkey(c1), "the running job never finished")
	case <-time.After(5 * time.Second):
		t.Fatal("Await did not return after Close")
	}

	close(release)
	<-closed
}

func TestAwaitAfterCloseReportsCancelled(t *testing.T) {
	l := loader.New(loader.Options{Workers: 1, Override: func(tile.Coord, tile.Kind) ([]byte, bool) {
		return nil, false
	}})
	require.NoError(t, l.Close())

	snap, err := l.Await(context.Background(), []tile.Coord{c1})
	assert.ErrorIs(t, err, loader.ErrCancelled)
	assert.Empty(t, snap.States)
}

func TestPrefetchReportsProgress(t *testing.T) {
	data := vectorBytes(t)
	l := loader.New(loader.Options{
		Workers: 2,
		Override: func(tile.Coord, tile.Kind) ([]byte, bool) {
			return data, true
		},
	})
	defer l.Close()

	var mu sync.Mutex
	var seen []tile.Coord
	coords := []tile.Coord{c1, c2, c3}

	err := l.Prefetch(context.Background(), coords, 2, func(c tile.Coord) {
		mu.Lock()
		seen = append(seen, c)
		mu.Unlock()
	})
	require.NoError(t, err)
	assert.ElementsMatch(t, coords, seen)

	for _, c := range coords {
		state, ok := l.State(c, tile.Vector)
		require.True(t, ok)
		assert.Equal(t, loader.Ok, state)
	}
}

func TestPrefetchOnClosedLoader(t *testing.T) {
	l := loader.New(loader.Options{Workers: 1, Override: func(tile.Coord, tile.Kind) ([]byte, bool) {
		return nil, false
	}})
	require.NoError(t, l.Close())

	var calls int
	err := l.Prefetch(context.Background(), []tile.Coord{c1, c2}, 1, func(tile.Coord) { calls++ })
	assert.ErrorIs(t, err, loader.ErrCancelled)
	assert.Zero(t, calls)
}

func TestPrefetchCancelled(t *testing.T) {
	l := loader.New(loader.Options{Workers: 1, Override: func(tile.Coord, tile.Kind) ([]byte, bool) {
		return nil, false
	}})
	defer l.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, l.Prefetch(ctx, []tile.Coord{c1, c2}, 1, nil), context.Canceled)
}
