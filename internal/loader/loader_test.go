package loader_test

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/png"
	"net/http"
	"net/http/httptest"
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

func vectorBytes(t *testing.T) []byte {
	t.Helper()
	fc := geojson.NewFeatureCollection()
	road := geojson.NewFeature(orb.LineString{{0, 0}, {4096, 4096}})
	road.Properties["class"] = "primary"
	fc.Append(road)

	data, err := mvt.Marshal(mvt.Layers{mvt.NewLayer("roads", fc)})
	require.NoError(t, err)
	return data
}

func rasterBytes(t *testing.T) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 256, 256))
	img.Set(10, 10, color.RGBA{R: 255, A: 255})

	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func readyChan() (chan tile.Coord, func(tile.Coord)) {
	ch := make(chan tile.Coord, 64)
	return ch, func(c tile.Coord) { ch <- c }
}

func waitReady(t *testing.T, ch <-chan tile.Coord, n int) []tile.Coord {
	t.Helper()
	var got []tile.Coord
	for len(got) < n {
		select {
		case c := <-ch:
			got = append(got, c)
		case <-time.After(5 * time.Second):
			t.Fatalf("timed out after %d of %d ready callbacks", len(got), n)
		}
	}
	return got
}

func vkey(c tile.Coord) cache.Key {
	return cache.Key{Coord: c, Kind: tile.Vector}
}

var (
	c1 = tile.Coord{Z: 2, X: 1, Y: 1}
	c2 = tile.Coord{Z: 2, X: 2, Y: 1}
	c3 = tile.Coord{Z: 2, X: 3, Y: 1}
)

func TestRequestTilesDeduplicatesPendingWork(t *testing.T) {
	data := vectorBytes(t)
	release := make(chan struct{})
	var calls atomic.Int32
	l := loader.New(loader.Options{
		Workers: 2,
		Override: func(tile.Coord, tile.Kind) ([]byte, bool) {
			calls.Add(1)
			<-release
			return data, true
		},
	})
	defer l.Close()

	ready, onReady := readyChan()
	coords := []tile.Coord{c1, c2, c3}

	snap := l.RequestTiles(coords, onReady, true)
	assert.Empty(t, snap.States)

	snap = l.RequestTiles(coords, onReady, true)
	assert.Empty(t, snap.States, "pending entries are not reported")
	assert.EqualValues(t, 3, l.Stats().Enqueued)

	close(release)
	got := waitReady(t, ready, 3)
	assert.ElementsMatch(t, coords, got)
	assert.EqualValues(t, 3, calls.Load())

	snap = l.RequestTiles(coords, onReady, true)
	assert.EqualValues(t, 3, l.Stats().Enqueued)
	assert.EqualValues(t, 3, l.Stats().Completed)
	for _, c := range coords {
		assert.Equal(t, loader.Ok, snap.States[vkey(c)])
		require.NotNil(t, snap.Vector[c])
		assert.NotNil(t, snap.Vector[c].Layer("roads"))
	}
}

func TestRequestTilesWithoutLoadMissing(t *testing.T) {
	l := loader.New(loader.Options{Workers: 1})
	defer l.Close()

	snap := l.RequestTiles([]tile.Coord{c1, c2}, nil, false)
	assert.Empty(t, snap.States)
	assert.Empty(t, snap.Vector)
	assert.EqualValues(t, 0, l.Stats().Enqueued)

	_, ok := l.State(c1, tile.Vector)
	assert.False(t, ok)
}

func TestRequestTilesSkipsInvalidCoords(t *testing.T) {
	l := loader.New(loader.Options{Workers: 1})
	defer l.Close()

	l.RequestTiles([]tile.Coord{{Z: 1, X: 2, Y: 0}, {Z: -1}}, nil, true)
	assert.EqualValues(t, 0, l.Stats().Enqueued)
}

func TestPayloadPresentOnlyWhenOk(t *testing.T) {
	data := vectorBytes(t)
	l := loader.New(loader.Options{
		Workers: 2,
		Override: func(c tile.Coord, _ tile.Kind) ([]byte, bool) {
			switch c {
			case c1:
				return data, true
			case c2:
				return []byte("not a tile"), true
			default:
				return nil, false
			}
		},
	})
	defer l.Close()

	ready, onReady := readyChan()
	coords := []tile.Coord{c1, c2, c3}
	l.RequestTiles(coords, onReady, true)
	waitReady(t, ready, 3)

	snap := l.RequestTiles(coords, nil, false)
	assert.Equal(t, map[cache.Key]loader.State{
		vkey(c1): loader.Ok,
		vkey(c2): loader.ParsingFailed,
		vkey(c3): loader.UnknownError,
	}, snap.States)
	assert.Len(t, snap.Vector, 1)
	assert.Contains(t, snap.Vector, c1)

	state, ok := l.State(c2, tile.Vector)
	require.True(t, ok)
	assert.Equal(t, loader.ParsingFailed, state)
}

func TestLoadRasterTiles(t *testing.T) {
	vec, ras := vectorBytes(t), rasterBytes(t)
	l := loader.New(loader.Options{
		Workers:    1,
		LoadRaster: true,
		Override: func(c tile.Coord, kind tile.Kind) ([]byte, bool) {
			if kind == tile.Vector {
				return vec, true
			}
			if c == c2 {
				return nil, false
			}
			return ras, true
		},
	})
	defer l.Close()

	ready, onReady := readyChan()
	l.RequestTiles([]tile.Coord{c1, c2}, onReady, true)
	waitReady(t, ready, 2)
	assert.EqualValues(t, 2, l.Stats().Enqueued, "one job per coordinate")

	snap := l.RequestTiles([]tile.Coord{c1, c2}, nil, false)
	require.Contains(t, snap.Raster, c1)
	assert.Equal(t, image.Rect(0, 0, 256, 256), snap.Raster[c1].Bounds())
	assert.NotContains(t, snap.Raster, c2)
	assert.Equal(t, loader.UnknownError, snap.States[cache.Key{Coord: c2, Kind: tile.Raster}])
	assert.Equal(t, loader.Ok, snap.States[vkey(c2)])
}

func newTileServer(t *testing.T, body []byte, hits *atomic.Int32) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		if r.URL.Path == "/2/3/1.mvt" {
			http.NotFound(w, r)
			return
		}
		_, _ = w.Write(body)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func newFetcher(t *testing.T, srv *httptest.Server) loader.Fetcher {
	t.Helper()
	f, err := loader.NewHTTPFetcher(loader.HTTPFetcherConfig{VectorURL: srv.URL + "/{z}/{x}/{y}.mvt"})
	require.NoError(t, err)
	require.NotNil(t, f)
	return f
}

func TestNetworkFillsDiskCache(t *testing.T) {
	data := vectorBytes(t)
	var hits atomic.Int32
	srv := newTileServer(t, data, &hits)
	disk := cache.NewMemoryCache(16)

	l := loader.New(loader.Options{Cache: disk, Fetcher: newFetcher(t, srv), Workers: 2})
	ready, onReady := readyChan()
	l.RequestTiles([]tile.Coord{c1, c3}, onReady, true)
	waitReady(t, ready, 2)
	require.NoError(t, l.Close())

	state, _ := l.State(c1, tile.Vector)
	assert.Equal(t, loader.Ok, state)
	state, _ = l.State(c3, tile.Vector)
	assert.Equal(t, loader.UnknownError, state)

	stored, ok := disk.Get(vkey(c1))
	require.True(t, ok)
	assert.Equal(t, data, stored)
	assert.False(t, disk.Has(vkey(c3)))
	assert.EqualValues(t, 2, hits.Load())

	local := loader.NewLocalOnly(disk, false, nil)
	defer local.Close()
	ready, onReady = readyChan()
	local.RequestTiles([]tile.Coord{c1}, onReady, true)
	waitReady(t, ready, 1)

	state, _ = local.State(c1, tile.Vector)
	assert.Equal(t, loader.Ok, state)
	assert.EqualValues(t, 2, hits.Load(), "disk hit must not touch the network")
}

func TestCorruptDiskTileIsRefetched(t *testing.T) {
	data := vectorBytes(t)
	var hits atomic.Int32
	srv := newTileServer(t, data, &hits)
	disk := cache.NewMemoryCache(16)
	require.NoError(t, disk.Set(vkey(c1), []byte("garbage")))

	l := loader.New(loader.Options{Cache: disk, Fetcher: newFetcher(t, srv), Workers: 1})
	defer l.Close()
	ready, onReady := readyChan()
	l.RequestTiles([]tile.Coord{c1}, onReady, true)
	waitReady(t, ready, 1)

	state, _ := l.State(c1, tile.Vector)
	assert.Equal(t, loader.Ok, state)
	assert.EqualValues(t, 1, hits.Load())

	stored, _ := disk.Get(vkey(c1))
	assert.Equal(t, data, stored)
}

func TestLocalOnlyMisses(t *testing.T) {
	disk := cache.NewMemoryCache(16)
	require.NoError(t, disk.Set(vkey(c1), []byte("garbage")))

	l := loader.NewLocalOnly(disk, false, nil)
	defer l.Close()
	ready, onReady := readyChan()
	l.RequestTiles([]tile.Coord{c1, c2}, onReady, true)
	waitReady(t, ready, 2)

	snap := l.RequestTiles([]tile.Coord{c1, c2}, nil, true)
	assert.Equal(t, loader.ParsingFailed, snap.States[vkey(c1)])
	assert.Equal(t, loader.UnknownError, snap.States[vkey(c2)])
	assert.Empty(t, snap.Vector)
	assert.EqualValues(t, 2, l.Stats().Enqueued, "terminal entries are not retried")
}

func TestCloseCancelsQueuedJobs(t *testing.T) {
	data := vectorBytes(t)
	entered := make(chan struct{}, 1)
	release := make(chan struct{})
	l := loader.New(loader.Options{
		Workers: 1,
		Override: func(tile.Coord, tile.Kind) ([]byte, bool) {
			entered <- struct{}{}
			<-release
			return data, true
		},
	})

	ready, onReady := readyChan()
	l.RequestTiles([]tile.Coord{c1, c2, c3}, onReady, true)
	<-entered

	done := make(chan struct{})
	go func() {
		assert.NoError(t, l.Close())
		close(done)
	}()
	require.Eventually(t, func() bool {
		state, _ := l.State(c3, tile.Vector)
		return state == loader.Cancelled
	}, 5*time.Second, 5*time.Millisecond)

	close(release)
	<-done

	got := waitReady(t, ready, 1)
	assert.Equal(t, []tile.Coord{c1}, got)

	snap := l.RequestTiles([]tile.Coord{c1, c2, c3, {Z: 0}}, onReady, true)
	assert.Equal(t, map[cache.Key]loader.State{
		vkey(c1): loader.Ok,
		vkey(c2): loader.Cancelled,
		vkey(c3): loader.Cancelled,
	}, snap.States)

	stats := l.Stats()
	assert.EqualValues(t, 3, stats.Enqueued, "a closed loader queues nothing")
	assert.EqualValues(t, 1, stats.Completed)
	assert.EqualValues(t, 2, stats.Cancelled)
	assert.NoError(t, l.Close())
}

type blockingFetcher struct {
	entered chan struct{}
}

func (f *blockingFetcher) Fetch(ctx context.Context, _ tile.Coord, _ tile.Kind) ([]byte, error) {
	f.entered <- struct{}{}
	<-ctx.Done()
	return nil, ctx.Err()
}

func TestCloseAbortsInFlightFetch(t *testing.T) {
	f := &blockingFetcher{entered: make(chan struct{}, 1)}
	l := loader.New(loader.Options{Fetcher: f, Workers: 1})

	ready, onReady := readyChan()
	l.RequestTiles([]tile.Coord{c1}, onReady, true)
	<-f.entered
	require.NoError(t, l.Close())

	state, ok := l.State(c1, tile.Vector)
	require.True(t, ok)
	assert.Equal(t, loader.Cancelled, state)
	assert.Empty(t, ready, "cancelled jobs do not report ready")
	assert.EqualValues(t, 1, l.Stats().Cancelled)
}

func TestStateString(t *testing.T) {
	for state, want := range map[loader.State]string{
		loader.Pending:       "pending",
		loader.Ok:            "ok",
		loader.ParsingFailed: "parsing_failed",
		loader.Cancelled:     "cancelled",
		loader.UnknownError:  "unknown_error",
	} {
		assert.Equal(t, want, state.String())
	}
	assert.False(t, loader.Pending.Terminal())
	assert.True(t, loader.Cancelled.Terminal())
}
