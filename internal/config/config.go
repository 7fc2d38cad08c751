package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"

	"vectormap/internal/style"
)

type Config struct {
	Port          int
	LogLevel      string
	LogEncoding   string
	AllowedOrigin string

	CacheType        string
	CacheMemoryTiles int
	CacheFileDir     string

	VectorURL  string
	RasterURL  string
	APIKey     string
	UserAgent  string
	LoadRaster bool
	Workers    int

	StylesDir    string
	DefaultStyle string
	FontFile     string
	RenderWait   time.Duration

	WarmupLevels  int
	WarmupWorkers int

	VipsEnabled     bool
	VipsMaxCacheMB  int
	VipsConcurrency int
	RasterTileSize  int
}

// Load reads the configuration from the environment, falling back to the
// TOML file named by CONFIG_FILE and then to defaults. Keys are the
// lower-case environment names, e.g. cache_file_dir.
func Load() (*Config, error) {
	v := viper.New()
	setDefaults(v)
	v.AutomaticEnv()

	if cfgFile := os.Getenv("CONFIG_FILE"); cfgFile != "" {
		v.SetConfigType("toml")
		v.SetConfigFile(cfgFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", cfgFile, err)
		}
	}

	cfg := &Config{
		Port:          v.GetInt("port"),
		LogLevel:      v.GetString("log_level"),
		LogEncoding:   v.GetString("log_encoding"),
		AllowedOrigin: v.GetString("allowed_origin"),

		CacheType:        strings.ToLower(v.GetString("cache")),
		CacheMemoryTiles: v.GetInt("cache_memory_tiles"),
		CacheFileDir:     v.GetString("cache_file_dir"),

		VectorURL:  v.GetString("vector_url"),
		RasterURL:  v.GetString("raster_url"),
		APIKey:     v.GetString("api_key"),
		UserAgent:  v.GetString("user_agent"),
		LoadRaster: v.GetBool("load_raster"),
		Workers:    v.GetInt("workers"),

		StylesDir:    v.GetString("styles_dir"),
		DefaultStyle: v.GetString("default_style"),
		FontFile:     v.GetString("font_file"),
		RenderWait:   v.GetDuration("render_wait"),

		WarmupLevels:  v.GetInt("warmup_levels"),
		WarmupWorkers: v.GetInt("warmup_workers"),

		VipsEnabled:     v.GetBool("vips_enabled"),
		VipsMaxCacheMB:  v.GetInt("vips_max_cache_mb"),
		VipsConcurrency: v.GetInt("vips_concurrency"),
		RasterTileSize:  v.GetInt("raster_tile_size"),
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("port", 8080)
	v.SetDefault("log_level", "info")
	v.SetDefault("log_encoding", "json")
	v.SetDefault("allowed_origin", "")

	v.SetDefault("cache", "file")
	v.SetDefault("cache_memory_tiles", 2000)
	v.SetDefault("cache_file_dir", defaultCacheDir())

	v.SetDefault("vector_url", "")
	v.SetDefault("raster_url", "")
	v.SetDefault("api_key", "")
	v.SetDefault("user_agent", "")
	v.SetDefault("load_raster", false)
	v.SetDefault("workers", 0) // one per CPU

	v.SetDefault("styles_dir", "styles")
	v.SetDefault("default_style", "basic")
	v.SetDefault("font_file", "")
	v.SetDefault("render_wait", "2s")

	v.SetDefault("warmup_levels", 0)
	v.SetDefault("warmup_workers", 4)

	v.SetDefault("vips_enabled", false)
	v.SetDefault("vips_max_cache_mb", 64)
	v.SetDefault("vips_concurrency", 1)
	v.SetDefault("raster_tile_size", 256)
}

func defaultCacheDir() string {
	dir, err := os.UserCacheDir()
	if err != nil {
		return filepath.Join("cache", "tiles")
	}
	return filepath.Join(dir, "vectormap", "tiles")
}

// TileTemplates returns the configured tile URL templates. An empty one is
// taken from the first source of that type in sheet, if sheet has any.
func (c *Config) TileTemplates(sheet *style.Sheet) (vector, raster string) {
	vector = strings.TrimSpace(c.VectorURL)
	raster = strings.TrimSpace(c.RasterURL)
	if sheet == nil {
		return vector, raster
	}
	if vector == "" {
		vector, _ = sheet.VectorURLTemplate("")
	}
	if raster == "" {
		raster, _ = sheet.RasterURLTemplate("")
	}
	return vector, raster
}

// IsLocalOnly reports whether no tile server is configured.
func (c *Config) IsLocalOnly() bool {
	return strings.TrimSpace(c.VectorURL) == "" && strings.TrimSpace(c.RasterURL) == ""
}
