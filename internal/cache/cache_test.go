package cache_test

import (
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"vectormap/internal/cache"
	"vectormap/internal/tile"
)

func key(z, x, y int, kind tile.Kind) cache.Key {
	return cache.Key{Coord: tile.Coord{Z: z, X: x, Y: y}, Kind: kind}
}

func testRoundTrip(t *testing.T, c cache.Cache) {
	t.Helper()
	vec := key(3, 2, 1, tile.Vector)
	ras := key(3, 2, 1, tile.Raster)

	_, ok := c.Get(vec)
	assert.False(t, ok)
	assert.False(t, c.Has(vec))

	require.NoError(t, c.Set(vec, []byte("vector payload")))
	require.NoError(t, c.Set(ras, []byte("raster payload")))

	got, ok := c.Get(vec)
	require.True(t, ok)
	assert.Equal(t, []byte("vector payload"), got)
	assert.True(t, c.Has(vec))

	got, ok = c.Get(ras)
	require.True(t, ok)
	assert.Equal(t, []byte("raster payload"), got)

	require.NoError(t, c.Set(vec, []byte("replaced")))
	got, _ = c.Get(vec)
	assert.Equal(t, []byte("replaced"), got)

	require.NoError(t, c.Clear())
	assert.False(t, c.Has(vec))
	assert.False(t, c.Has(ras))
}

func TestFileCache(t *testing.T) {
	c, err := cache.NewFileCache(t.TempDir())
	require.NoError(t, err)
	defer c.Close()

	testRoundTrip(t, c)
}

func TestFileCacheLayout(t *testing.T) {
	dir := t.TempDir()
	c, err := cache.NewFileCache(dir)
	require.NoError(t, err)

	require.NoError(t, c.Set(key(5, 10, 12, tile.Vector), []byte("mvt")))
	data, err := os.ReadFile(filepath.Join(dir, "vector", "5", "10", "12.mvt"))
	require.NoError(t, err)
	assert.Equal(t, []byte("mvt"), data)

	entries, err := os.ReadDir(filepath.Join(dir, "vector", "5", "10"))
	require.NoError(t, err)
	assert.Len(t, entries, 1, "temporary files must not be left behind")
}

func TestFileCacheConcurrentWriters(t *testing.T) {
	c, err := cache.NewFileCache(t.TempDir())
	require.NoError(t, err)

	k := key(1, 1, 1, tile.Raster)
	var wg sync.WaitGroup
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, c.Set(k, []byte("same bytes")))
		}()
	}
	wg.Wait()

	got, ok := c.Get(k)
	require.True(t, ok)
	assert.Equal(t, []byte("same bytes"), got)
}

func TestMBTilesCache(t *testing.T) {
	dir := t.TempDir()
	c, err := cache.NewMBTilesCache(dir)
	require.NoError(t, err)
	defer c.Close()

	testRoundTrip(t, c)

	assert.FileExists(t, filepath.Join(dir, "vector.mbtiles"))
	assert.FileExists(t, filepath.Join(dir, "raster.mbtiles"))
}

func TestMBTilesCacheReopen(t *testing.T) {
	dir := t.TempDir()
	c, err := cache.NewMBTilesCache(dir)
	require.NoError(t, err)
	require.NoError(t, c.Set(key(4, 3, 0, tile.Vector), []byte("persisted")))
	require.NoError(t, c.Close())

	c, err = cache.NewMBTilesCache(dir)
	require.NoError(t, err)
	defer c.Close()

	got, ok := c.Get(key(4, 3, 0, tile.Vector))
	require.True(t, ok)
	assert.Equal(t, []byte("persisted"), got)
	assert.False(t, c.Has(key(4, 3, 15, tile.Vector)))
}

func TestMemoryCacheEvictsLeastRecentlyUsed(t *testing.T) {
	c := cache.NewMemoryCache(2)
	a, b, d := key(0, 0, 0, tile.Vector), key(1, 0, 0, tile.Vector), key(1, 1, 0, tile.Vector)

	require.NoError(t, c.Set(a, []byte("a")))
	require.NoError(t, c.Set(b, []byte("b")))
	_, ok := c.Get(a)
	require.True(t, ok)
	require.NoError(t, c.Set(d, []byte("d")))

	assert.True(t, c.Has(a))
	assert.False(t, c.Has(b))
	assert.True(t, c.Has(d))
	assert.Equal(t, 2, c.Len())

	testRoundTrip(t, cache.NewMemoryCache(10))
}

func TestNoopCache(t *testing.T) {
	c := cache.NewNoopCache()
	require.NoError(t, c.Set(key(0, 0, 0, tile.Vector), []byte("x")))
	assert.False(t, c.Has(key(0, 0, 0, tile.Vector)))
}

func TestNewCache(t *testing.T) {
	dir := t.TempDir()
	for _, typ := range []string{"file", "mbtiles", "memory", "disabled"} {
		c, err := cache.NewCache(typ, filepath.Join(dir, typ), 16, nil)
		require.NoError(t, err, typ)
		require.NoError(t, c.Close())
	}

	_, err := cache.NewCache("redis", dir, 16, nil)
	assert.Error(t, err)
}
