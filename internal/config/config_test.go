package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"vectormap/internal/style"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("CONFIG_FILE", "")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Port)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, "json", cfg.LogEncoding)
	assert.Equal(t, "file", cfg.CacheType)
	assert.Equal(t, "basic", cfg.DefaultStyle)
	assert.Equal(t, 2*time.Second, cfg.RenderWait)
	assert.Equal(t, 256, cfg.RasterTileSize)
	assert.False(t, cfg.LoadRaster)
	assert.NotEmpty(t, cfg.CacheFileDir)
	assert.True(t, cfg.IsLocalOnly())
}

func TestLoadEnvironment(t *testing.T) {
	t.Setenv("CONFIG_FILE", "")
	t.Setenv("PORT", "9090")
	t.Setenv("CACHE", "MBTiles")
	t.Setenv("VECTOR_URL", "https://tiles.example.com/{z}/{x}/{y}.pbf?key={key}")
	t.Setenv("LOAD_RASTER", "true")
	t.Setenv("RENDER_WAIT", "750ms")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Port)
	assert.Equal(t, "mbtiles", cfg.CacheType)
	assert.True(t, cfg.LoadRaster)
	assert.Equal(t, 750*time.Millisecond, cfg.RenderWait)
	assert.False(t, cfg.IsLocalOnly())
}

func TestLoadConfigFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "vectormap.toml")
	require.NoError(t, os.WriteFile(path, []byte(`
port = 7000
styles_dir = "/srv/styles"
warmup_levels = 3
`), 0644))
	t.Setenv("CONFIG_FILE", path)
	t.Setenv("WARMUP_LEVELS", "2")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 7000, cfg.Port)
	assert.Equal(t, "/srv/styles", cfg.StylesDir)
	assert.Equal(t, 2, cfg.WarmupLevels, "environment wins over the file")
}

func TestLoadMissingConfigFile(t *testing.T) {
	t.Setenv("CONFIG_FILE", filepath.Join(t.TempDir(), "absent.toml"))

	_, err := Load()
	assert.Error(t, err)
}

func TestTileTemplatesFallBackToSheet(t *testing.T) {
	sheet, err := style.Parse([]byte(`{"sources": {
	  "osm": {"type": "vector", "tiles": ["https://v.example.com/{z}/{x}/{y}.pbf"]},
	  "sat": {"type": "raster", "tiles": ["https://r.example.com/{z}/{x}/{y}.png"]}},
	  "layers": []}`))
	require.NoError(t, err)

	cfg := &Config{}
	vector, raster := cfg.TileTemplates(sheet)
	assert.Equal(t, "https://v.example.com/{z}/{x}/{y}.pbf", vector)
	assert.Equal(t, "https://r.example.com/{z}/{x}/{y}.png", raster)

	cfg.VectorURL = " https://mine.example.com/{z}/{x}/{y}.pbf "
	vector, raster = cfg.TileTemplates(sheet)
	assert.Equal(t, "https://mine.example.com/{z}/{x}/{y}.pbf", vector, "configured templates win")
	assert.Equal(t, "https://r.example.com/{z}/{x}/{y}.png", raster)

	vector, raster = (&Config{}).TileTemplates(nil)
	assert.Empty(t, vector)
	assert.Empty(t, raster)

	bare, err := style.Parse([]byte(`{"layers": []}`))
	require.NoError(t, err)
	vector, raster = (&Config{}).TileTemplates(bare)
	assert.Empty(t, vector)
	assert.Empty(t, raster)
}
