package main

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/encoding/mvt"
	"github.com/paulmach/orb/geojson"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"vectormap/internal/cache"
	"vectormap/internal/loader"
	"vectormap/internal/tile"
)

func vectorTile(t *testing.T) []byte {
	t.Helper()
	fc := geojson.NewFeatureCollection()
	fc.Append(geojson.NewFeature(orb.Point{100, 100}))
	data, err := mvt.Marshal(mvt.Layers{mvt.NewLayer("poi", fc)})
	require.NoError(t, err)
	return data
}

func states(rows []stateRow) map[tile.Coord]string {
	out := make(map[tile.Coord]string, len(rows))
	for _, r := range rows {
		out[r.coord] = r.state
	}
	return out
}

func TestTileStatesWithoutLoadQueuesNothing(t *testing.T) {
	data := vectorTile(t)
	var calls atomic.Int32
	l := loader.New(loader.Options{Workers: 1, Override: func(tile.Coord, tile.Kind) ([]byte, bool) {
		calls.Add(1)
		return data, true
	}})
	defer l.Close()

	cached := tile.Coord{Z: 3, X: 2, Y: 1}
	absent := tile.Coord{Z: 3, X: 4, Y: 4}
	mem := cache.NewMemoryCache(16)
	require.NoError(t, mem.Set(cache.Key{Coord: cached, Kind: tile.Vector}, data))

	rows, err := tileStates(context.Background(), l, mem, []tile.Coord{cached, absent}, false, time.Second)
	require.NoError(t, err)
	assert.Equal(t, map[tile.Coord]string{cached: "cached", absent: "absent"}, states(rows))
	assert.Zero(t, l.Stats().Enqueued)
	assert.Zero(t, calls.Load())

	_, seen := l.State(absent, tile.Vector)
	assert.False(t, seen)
}

func TestTileStatesWithLoad(t *testing.T) {
	data := vectorTile(t)
	good := tile.Coord{Z: 2, X: 1, Y: 1}
	bad := tile.Coord{Z: 2, X: 3, Y: 0}
	l := loader.New(loader.Options{Workers: 2, Override: func(c tile.Coord, _ tile.Kind) ([]byte, bool) {
		return data, c == good
	}})
	defer l.Close()

	rows, err := tileStates(context.Background(), l, nil, []tile.Coord{good, bad}, true, 5*time.Second)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, map[tile.Coord]string{good: "ok", bad: "unknown_error"}, states(rows))

	again, err := tileStates(context.Background(), l, nil, []tile.Coord{good}, false, time.Second)
	require.NoError(t, err)
	assert.Equal(t, "ok", again[0].state, "known entries are reported without loading")
}

func TestTileStatesWaitExpires(t *testing.T) {
	release := make(chan struct{})
	l := loader.New(loader.Options{Workers: 1, Override: func(tile.Coord, tile.Kind) ([]byte, bool) {
		<-release
		return nil, false
	}})
	defer l.Close()
	defer close(release)

	c := tile.Coord{Z: 1, X: 1, Y: 1}
	rows, err := tileStates(context.Background(), l, nil, []tile.Coord{c}, true, 30*time.Millisecond)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	require.Len(t, rows, 1)
	assert.Equal(t, "pending", rows[0].state)
}
