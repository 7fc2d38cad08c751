package main

import (
	"errors"
	"fmt"

	"go.uber.org/zap"

	"vectormap/internal/cache"
	"vectormap/internal/config"
	"vectormap/internal/loader"
	"vectormap/internal/logger"
	"vectormap/internal/style"
	"vectormap/internal/style_list"
)

// env is what every subcommand needs: configuration, a console logger, the
// style sheets and a loader over the configured cache and tile server.
type env struct {
	cfg    *config.Config
	log    *zap.Logger
	cache  cache.Cache
	styles *style_list.Scanner
	loader *loader.Loader
}

// openEnv builds the loader. With localOnly, or when neither the config nor
// the default style names a tile server, tiles come from the cache alone.
func openEnv(localOnly bool) (*env, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}

	log, err := logger.New(cfg.LogLevel, "console")
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}

	styles := style_list.New(cfg.StylesDir, log)
	if err := styles.Scan(); err != nil {
		log.Warn("Style scan failed", zap.Error(err))
	}

	tileCache, err := cache.NewCache(cfg.CacheType, cfg.CacheFileDir, cfg.CacheMemoryTiles, log)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize cache: %w", err)
	}

	e := &env{cfg: cfg, log: log, cache: tileCache, styles: styles}
	if localOnly {
		e.loader = loader.NewLocalOnly(tileCache, cfg.LoadRaster, log)
		return e, nil
	}

	sheet, _ := styles.GetStyleByID(cfg.DefaultStyle)
	fetcher, err := newFetcher(cfg, sheet)
	if err != nil {
		tileCache.Close()
		return nil, err
	}
	if fetcher == nil {
		log.Warn("No usable tile server configured, using cached tiles only")
		e.loader = loader.NewLocalOnly(tileCache, cfg.LoadRaster, log)
		return e, nil
	}

	e.loader = loader.New(loader.Options{
		Cache:      tileCache,
		Fetcher:    fetcher,
		LoadRaster: cfg.LoadRaster,
		Workers:    cfg.Workers,
		Logger:     log,
	})
	return e, nil
}

// newFetcher returns nil when there is no usable template.
func newFetcher(cfg *config.Config, sheet *style.Sheet) (*loader.HTTPFetcher, error) {
	vectorURL, rasterURL := cfg.TileTemplates(sheet)
	return loader.NewHTTPFetcher(loader.HTTPFetcherConfig{
		VectorURL: vectorURL,
		RasterURL: rasterURL,
		APIKey:    cfg.APIKey,
		UserAgent: cfg.UserAgent,
	})
}

func (e *env) Close() error {
	err := errors.Join(e.loader.Close(), e.cache.Close())
	e.log.Sync()
	return err
}
