package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/google/subcommands"
	"go.uber.org/zap"

	"vectormap/internal/map_renderer"
	"vectormap/internal/render/ggcanvas"
)

type renderCmd struct {
	x, y, zoom    float64
	width, height int
	style         string
	wait          time.Duration
	output        string
	localOnly     bool
}

func (c *renderCmd) Name() string     { return "render" }
func (c *renderCmd) Synopsis() string { return "render one map view to a PNG file" }
func (c *renderCmd) Usage() string {
	return "mapctl render -o <path> [-x <0..1> -y <0..1> -zoom <z> -w <px> -h <px> -style <id> -wait <duration>]\n"
}
func (c *renderCmd) SetFlags(f *flag.FlagSet) {
	f.Float64Var(&c.x, "x", 0.5, "Viewport center, normalized x")
	f.Float64Var(&c.y, "y", 0.5, "Viewport center, normalized y")
	f.Float64Var(&c.zoom, "zoom", 0, "Viewport zoom")
	f.IntVar(&c.width, "w", 1024, "Image width")
	f.IntVar(&c.height, "h", 768, "Image height")
	f.StringVar(&c.style, "style", "", "Style id (default from config)")
	f.DurationVar(&c.wait, "wait", 30*time.Second, "How long to wait for tiles")
	f.StringVar(&c.output, "o", "map.png", "Output file path")
	f.BoolVar(&c.localOnly, "local", false, "Only use cached tiles")
}

func (c *renderCmd) Execute(ctx context.Context, _ *flag.FlagSet, _ ...any) subcommands.ExitStatus {
	e, err := openEnv(c.localOnly)
	if err != nil {
		fmt.Println(err)
		return subcommands.ExitFailure
	}
	defer e.Close()

	var fontData []byte
	if e.cfg.FontFile != "" {
		if fontData, err = os.ReadFile(e.cfg.FontFile); err != nil {
			e.log.Error("Failed to read font file", zap.Error(err))
			return subcommands.ExitFailure
		}
	}
	fonts, err := ggcanvas.NewFonts(fontData)
	if err != nil {
		e.log.Error("Failed to load font", zap.Error(err))
		return subcommands.ExitFailure
	}
	defer fonts.Close()

	renderer := map_renderer.New(e.loader, e.styles, fonts, e.cfg.DefaultStyle, e.log)
	result, err := renderer.RenderPNG(ctx, map_renderer.Request{
		X:      c.x,
		Y:      c.y,
		Zoom:   c.zoom,
		Width:  c.width,
		Height: c.height,
		Style:  c.style,
		Wait:   c.wait,
	})
	if err != nil {
		e.log.Error("Failed to render map", zap.Error(err))
		return subcommands.ExitFailure
	}

	if err := os.WriteFile(c.output, result.Data, 0644); err != nil {
		e.log.Error("Failed to write image", zap.Error(err))
		return subcommands.ExitFailure
	}

	e.log.Info("Wrote map",
		zap.String("path", c.output),
		zap.Int("map_zoom", result.MapZoom),
		zap.Int("tiles", result.Tiles),
		zap.Int("missing", result.Missing),
		zap.Int("labels", result.Labels))
	if !result.Complete {
		e.log.Warn("Some tiles were still loading when the map was drawn")
	}
	return subcommands.ExitSuccess
}
