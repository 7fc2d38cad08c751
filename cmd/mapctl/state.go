package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/google/subcommands"

	"vectormap/internal/cache"
	"vectormap/internal/loader"
	"vectormap/internal/tile"
)

type stateCmd struct {
	load bool
	wait time.Duration
}

func (c *stateCmd) Name() string     { return "state" }
func (c *stateCmd) Synopsis() string { return "print the loading state of tiles" }
func (c *stateCmd) Usage() string {
	return "mapctl state [-load] <z/x/y>...\n"
}
func (c *stateCmd) SetFlags(f *flag.FlagSet) {
	f.BoolVar(&c.load, "load", false, "Load tiles the process has not seen yet, from cache or network")
	f.DurationVar(&c.wait, "wait", 10*time.Second, "How long to wait for tiles")
}

func (c *stateCmd) Execute(ctx context.Context, f *flag.FlagSet, _ ...any) subcommands.ExitStatus {
	if f.NArg() == 0 {
		fmt.Print(c.Usage())
		return subcommands.ExitUsageError
	}

	coords := make([]tile.Coord, 0, f.NArg())
	for _, arg := range f.Args() {
		var tc tile.Coord
		if _, err := fmt.Sscanf(arg, "%d/%d/%d", &tc.Z, &tc.X, &tc.Y); err != nil || !tc.Valid() {
			fmt.Printf("invalid tile %q\n", arg)
			return subcommands.ExitUsageError
		}
		coords = append(coords, tc)
	}

	e, err := openEnv(!c.load)
	if err != nil {
		fmt.Println(err)
		return subcommands.ExitFailure
	}
	defer e.Close()

	rows, err := tileStates(ctx, e.loader, e.cache, coords, c.load, c.wait)
	if errors.Is(err, context.DeadlineExceeded) {
		fmt.Println("some tiles were still loading")
	} else if err != nil {
		fmt.Println(err)
		return subcommands.ExitFailure
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "TILE\tKIND\tSTATE")
	for _, r := range rows {
		fmt.Fprintf(w, "%s\t%s\t%s\n", r.coord, r.kind, r.state)
	}
	w.Flush()
	return subcommands.ExitSuccess
}

type stateRow struct {
	coord tile.Coord
	kind  tile.Kind
	state string
}

// tileStates lists one row per coordinate and kind. With load it waits up to
// wait for the loader to finish them. Without it nothing is queued: entries
// the loader never saw are reported "cached" when the cache holds them and
// "absent" otherwise.
func tileStates(ctx context.Context, l *loader.Loader, c cache.Cache, coords []tile.Coord, load bool, wait time.Duration) ([]stateRow, error) {
	var snap loader.Snapshot
	var err error
	if load {
		waitCtx, cancel := context.WithTimeout(ctx, wait)
		snap, err = l.Await(waitCtx, coords)
		cancel()
		if err != nil && !errors.Is(err, context.DeadlineExceeded) {
			return nil, err
		}
	} else {
		snap = l.RequestTiles(coords, nil, false)
	}

	rows := make([]stateRow, 0, len(coords)*len(l.Kinds()))
	for _, tc := range coords {
		for _, kind := range l.Kinds() {
			key := cache.Key{Coord: tc, Kind: kind}
			row := stateRow{coord: tc, kind: kind}
			if s, ok := snap.States[key]; ok {
				row.state = s.String()
			} else if s, ok := l.State(tc, kind); ok {
				row.state = s.String()
			} else if c != nil && c.Has(key) {
				row.state = "cached"
			} else {
				row.state = "absent"
			}
			rows = append(rows, row)
		}
	}
	return rows, err
}
