package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/cshum/vipsgen/vips"
	"go.uber.org/zap"

	"vectormap/internal/cache"
	"vectormap/internal/config"
	httphandlers "vectormap/internal/http"
	"vectormap/internal/loader"
	"vectormap/internal/logger"
	"vectormap/internal/map_renderer"
	"vectormap/internal/raster_normalizer"
	"vectormap/internal/render/ggcanvas"
	"vectormap/internal/style_list"
	"vectormap/internal/tile"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(fmt.Sprintf("failed to load config: %v", err))
	}

	log, err := logger.New(cfg.LogLevel, cfg.LogEncoding)
	if err != nil {
		panic(fmt.Sprintf("failed to initialize logger: %v", err))
	}
	defer log.Sync()

	log.Info("Starting vectormap server",
		zap.Int("port", cfg.Port),
		zap.String("styles_dir", cfg.StylesDir),
	)

	var decodeRaster loader.RasterDecoder
	if cfg.VipsEnabled && cfg.LoadRaster {
		startVips(cfg, log)
		defer vips.Shutdown()
		decodeRaster = raster_normalizer.New(cfg.RasterTileSize, log).Decode
	}

	styles := style_list.New(cfg.StylesDir, log)
	if err := styles.Scan(); err != nil {
		log.Warn("Initial style scan failed", zap.Error(err))
	}
	defaultSheet, ok := styles.GetStyleByID(cfg.DefaultStyle)
	if !ok {
		log.Fatal("Default style not found", zap.String("style", cfg.DefaultStyle))
	}

	var fontData []byte
	if cfg.FontFile != "" {
		if fontData, err = os.ReadFile(cfg.FontFile); err != nil {
			log.Fatal("Failed to read font file", zap.String("path", cfg.FontFile), zap.Error(err))
		}
	}
	fonts, err := ggcanvas.NewFonts(fontData)
	if err != nil {
		log.Fatal("Failed to load font", zap.Error(err))
	}
	defer fonts.Close()

	tileCache, err := cache.NewCache(cfg.CacheType, cfg.CacheFileDir, cfg.CacheMemoryTiles, log)
	if err != nil {
		log.Fatal("Failed to initialize cache", zap.Error(err))
	}
	defer tileCache.Close()

	vectorURL, rasterURL := cfg.TileTemplates(defaultSheet)
	fetcher, err := loader.NewHTTPFetcher(loader.HTTPFetcherConfig{
		VectorURL: vectorURL,
		RasterURL: rasterURL,
		APIKey:    cfg.APIKey,
		UserAgent: cfg.UserAgent,
	})
	if err != nil {
		log.Fatal("Invalid tile url template", zap.Error(err))
	}
	opts := loader.Options{
		Cache:        tileCache,
		LoadRaster:   cfg.LoadRaster,
		Workers:      cfg.Workers,
		DecodeRaster: decodeRaster,
		Logger:       log,
	}
	if fetcher != nil {
		opts.Fetcher = fetcher
		log.Info("Fetching tiles",
			zap.Bool("from_style", cfg.IsLocalOnly()),
			zap.Bool("vector", vectorURL != ""),
			zap.Bool("raster", rasterURL != ""))
	} else {
		log.Info("No usable tile server configured, running local-only")
	}
	tileLoader := loader.New(opts)

	renderer := map_renderer.New(tileLoader, styles, fonts, cfg.DefaultStyle, log)
	handlers := httphandlers.New(cfg, log, styles, tileLoader, renderer)
	handler := handlers.CORSMiddleware(handlers.RequestLoggingMiddleware(handlers.Routes()))

	warmupCtx, stopWarmup := context.WithCancel(context.Background())
	defer stopWarmup()
	if cfg.WarmupLevels > 0 {
		go warmupTiles(warmupCtx, cfg.WarmupLevels, cfg.WarmupWorkers, tileLoader, log)
	}

	server := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Port),
		Handler: handler,
	}

	go func() {
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("Server failed", zap.Error(err))
		}
	}()

	log.Info("Server started", zap.Int("port", cfg.Port))

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("Shutting down server...")
	stopWarmup()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Error("Server forced to shutdown", zap.Error(err))
	}
	if err := tileLoader.Close(); err != nil {
		log.Error("Failed to stop tile loader", zap.Error(err))
	}

	log.Info("Server stopped", zap.Int64("tiles_loaded", tileLoader.Stats().Completed))
}

func startVips(cfg *config.Config, log *zap.Logger) {
	vipsConfig := &vips.Config{
		ConcurrencyLevel: cfg.VipsConcurrency,
		MaxCacheMem:      cfg.VipsMaxCacheMB * 1024 * 1024, // Convert MB to bytes
		MaxCacheFiles:    0,                                // Disable disk cache
		MaxCacheSize:     0,                                // Disable disk cache
		ReportLeaks:      false,
		CacheTrace:       false,
		VectorEnabled:    true,
	}

	vips.SetLogging(func(domain string, level vips.LogLevel, message string) {
		if level >= vips.LogLevelError {
			log.Error("vips", zap.String("domain", domain), zap.Int("level", int(level)), zap.String("message", message))
		} else if level >= vips.LogLevelWarning {
			log.Warn("vips", zap.String("domain", domain), zap.Int("level", int(level)), zap.String("message", message))
		}
	}, vips.LogLevelError)

	vips.Startup(vipsConfig)

	log.Info("VIPS initialized",
		zap.Int("max_cache_mb", cfg.VipsMaxCacheMB),
		zap.Int("concurrency", cfg.VipsConcurrency),
		zap.Int("raster_tile_size", cfg.RasterTileSize),
	)
}

// warmupTiles loads every tile of zoom levels below levels, lowest first.
func warmupTiles(ctx context.Context, levels int, workerLimit int, l *loader.Loader, log *zap.Logger) {
	if workerLimit <= 0 {
		workerLimit = 1
	}
	levels = min(levels, tile.MaxZoom+1)

	log.Info("Starting tile warmup", zap.Int("levels", levels), zap.Int("workers", workerLimit))

	for z := 0; z < levels; z++ {
		n := 1 << z
		coords := make([]tile.Coord, 0, n*n)
		for y := 0; y < n; y++ {
			for x := 0; x < n; x++ {
				coords = append(coords, tile.Coord{Z: z, X: x, Y: y})
			}
		}
		tile.SortHilbert(coords)

		if err := l.Prefetch(ctx, coords, workerLimit, nil); err != nil {
			log.Info("Tile warmup interrupted", zap.Int("zoom", z), zap.Error(err))
			return
		}
	}

	log.Info("Tile warmup completed")
}
