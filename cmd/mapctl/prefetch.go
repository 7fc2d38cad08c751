package main

import (
	"context"
	"flag"
	"fmt"
	"strconv"
	"strings"

	"github.com/google/subcommands"
	"github.com/paulmach/orb"
	"github.com/schollz/progressbar/v3"
	"go.uber.org/zap"

	"vectormap/internal/loader"
	"vectormap/internal/tile"
)

type prefetchCmd struct {
	bbox    string
	minZoom int
	maxZoom int
	window  int
}

func (c *prefetchCmd) Name() string     { return "prefetch" }
func (c *prefetchCmd) Synopsis() string { return "download the tiles covering an area into the cache" }
func (c *prefetchCmd) Usage() string {
	return "mapctl prefetch -bbox <minlon,minlat,maxlon,maxlat> [-minzoom <z> -maxzoom <z> -window <n>]\n"
}
func (c *prefetchCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.bbox, "bbox", "-180,-85,180,85", "Area to cover, in degrees")
	f.IntVar(&c.minZoom, "minzoom", 0, "Lowest zoom level")
	f.IntVar(&c.maxZoom, "maxzoom", 4, "Highest zoom level")
	f.IntVar(&c.window, "window", 16, "Tiles in flight at once")
}

func (c *prefetchCmd) Execute(ctx context.Context, _ *flag.FlagSet, _ ...any) subcommands.ExitStatus {
	bound, err := parseBBox(c.bbox)
	if err != nil {
		fmt.Println(err)
		return subcommands.ExitUsageError
	}
	if c.minZoom < 0 || c.maxZoom > tile.MaxZoom || c.minZoom > c.maxZoom {
		fmt.Printf("zoom range must lie within 0..%d\n", tile.MaxZoom)
		return subcommands.ExitUsageError
	}

	coords, err := coverZooms(bound, c.minZoom, c.maxZoom)
	if err != nil {
		fmt.Println(err)
		return subcommands.ExitFailure
	}

	e, err := openEnv(false)
	if err != nil {
		fmt.Println(err)
		return subcommands.ExitFailure
	}
	defer e.Close()

	bar := progressbar.New(len(coords))
	err = e.loader.Prefetch(ctx, coords, c.window, func(tile.Coord) {
		bar.Add(1)
	})
	bar.Finish()
	if err != nil {
		e.log.Error("Prefetch interrupted", zap.Error(err))
		return subcommands.ExitFailure
	}

	failed := countFailed(e.loader, coords)
	e.log.Info("Prefetch finished",
		zap.Int("tiles", len(coords)),
		zap.Int("failed", failed),
		zap.Int64("loaded", e.loader.Stats().Completed))
	return subcommands.ExitSuccess
}

// coverZooms lists the tiles covering bound at every zoom in [minZoom,
// maxZoom], each level in Hilbert order so neighbouring requests hit
// neighbouring tiles.
func coverZooms(bound orb.Bound, minZoom, maxZoom int) ([]tile.Coord, error) {
	var coords []tile.Coord
	for z := minZoom; z <= maxZoom; z++ {
		level, err := tile.Cover(bound, z)
		if err != nil {
			return nil, err
		}
		coords = append(coords, level...)
	}
	tile.SortHilbert(coords)
	return coords, nil
}

func countFailed(l *loader.Loader, coords []tile.Coord) int {
	failed := 0
	for _, c := range coords {
		for _, kind := range l.Kinds() {
			if state, ok := l.State(c, kind); ok && state != loader.Ok {
				failed++
			}
		}
	}
	return failed
}

func parseBBox(s string) (orb.Bound, error) {
	parts := strings.Split(s, ",")
	if len(parts) != 4 {
		return orb.Bound{}, fmt.Errorf("bbox needs 4 comma separated numbers, got %q", s)
	}
	var v [4]float64
	for i, p := range parts {
		f, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			return orb.Bound{}, fmt.Errorf("invalid bbox value %q", p)
		}
		v[i] = f
	}
	if v[0] >= v[2] || v[1] >= v[3] {
		return orb.Bound{}, fmt.Errorf("bbox min must be below max")
	}
	return orb.Bound{Min: orb.Point{v[0], v[1]}, Max: orb.Point{v[2], v[3]}}, nil
}
