package tile_test

import (
	"errors"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/paulmach/orb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"vectormap/internal/tile"
)

func TestVisibleTilesWithinGrid(t *testing.T) {
	positions := []float64{-0.5, 0, 0.1, 0.5, 0.9, 1, 1.5}
	zooms := []float64{-2, 0, 0.5, 1, 3.7, 8}
	aspects := []float64{0.25, 1, 1.77, 4}

	for mapZoom := 0; mapZoom <= 8; mapZoom++ {
		n := 1 << mapZoom
		for _, x := range positions {
			for _, y := range positions {
				for _, vpZoom := range zooms {
					for _, aspect := range aspects {
						for _, c := range tile.VisibleTiles(x, y, aspect, vpZoom, mapZoom) {
							if c.X < 0 || c.X >= n || c.Y < 0 || c.Y >= n || c.Z != mapZoom {
								t.Fatalf("VisibleTiles(%v, %v, %v, %v, %v) returned out of grid tile %v", x, y, aspect, vpZoom, mapZoom, c)
							}
						}
					}
				}
			}
		}
	}
}

func TestVisibleTilesCenteredWorld(t *testing.T) {
	got := tile.VisibleTiles(0.5, 0.5, 1.0, 0, 0)
	if diff := cmp.Diff([]tile.Coord{{Z: 0, X: 0, Y: 0}}, got); diff != "" {
		t.Errorf("VisibleTiles mismatch (-want +got):\n%v", diff)
	}
}

func TestVisibleTilesRectangle(t *testing.T) {
	// The footprint spans [0.25, 0.75] on both axes; floor/ceil at zoom 2
	// gives the inclusive index range [1, 3].
	got := tile.VisibleTiles(0.5, 0.5, 1.0, 1, 2)
	var want []tile.Coord
	for y := 1; y <= 3; y++ {
		for x := 1; x <= 3; x++ {
			want = append(want, tile.Coord{Z: 2, X: x, Y: y})
		}
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("VisibleTiles mismatch (-want +got):\n%v", diff)
	}
}

func TestVisibleTilesLandscapeIsWider(t *testing.T) {
	wide := tile.VisibleTiles(0.5, 0.5, 4, 3, 5)
	tall := tile.VisibleTiles(0.5, 0.5, 0.25, 3, 5)

	span := func(coords []tile.Coord) (int, int) {
		minX, maxX, minY, maxY := coords[0].X, coords[0].X, coords[0].Y, coords[0].Y
		for _, c := range coords {
			minX, maxX = min(minX, c.X), max(maxX, c.X)
			minY, maxY = min(minY, c.Y), max(maxY, c.Y)
		}
		return maxX - minX, maxY - minY
	}
	wx, wy := span(wide)
	tx, ty := span(tall)
	assert.Greater(t, wx, wy)
	assert.Greater(t, ty, tx)
}

func TestMapZoomForPixelSize(t *testing.T) {
	cases := []struct {
		w, h    int
		vpZoom  float64
		desired int
		want    int
	}{
		{512, 512, 0, 512, 0},
		{1024, 512, 0, 512, 1},
		{1024, 768, 2, 256, 4},
		{512, 512, 20, 512, tile.MaxZoom},
		{512, 512, -5, 512, 0},
		{0, 0, 0, 0, 0},
	}
	for _, c := range cases {
		got := tile.MapZoomForPixelSize(c.w, c.h, c.vpZoom, c.desired)
		assert.Equal(t, c.want, got, "MapZoomForPixelSize(%d, %d, %v, %d)", c.w, c.h, c.vpZoom, c.desired)
	}
}

func TestPlacement(t *testing.T) {
	vp := tile.Viewport{X: 0.5, Y: 0.5, Zoom: 0, Width: 512, Height: 512}
	assert.Equal(t, tile.Rect{X: 0, Y: 0, W: 512, H: 512}, vp.Placement(0, tile.Coord{}))
	assert.Equal(t, tile.Rect{X: 256, Y: 0, W: 256, H: 256}, vp.Placement(1, tile.Coord{Z: 1, X: 1, Y: 0}))

	landscape := tile.Viewport{X: 0.5, Y: 0.5, Zoom: 0, Width: 1024, Height: 512}
	assert.Equal(t, tile.Rect{X: 0, Y: -256, W: 1024, H: 1024}, landscape.Placement(0, tile.Coord{}))
}

func TestCoordOrderAndValidity(t *testing.T) {
	coords := []tile.Coord{{Z: 1, X: 1, Y: 0}, {Z: 0}, {Z: 1, X: 0, Y: 1}, {Z: 1, X: 0, Y: 0}}
	tile.Sort(coords)
	want := []tile.Coord{{Z: 0}, {Z: 1, X: 0, Y: 0}, {Z: 1, X: 1, Y: 0}, {Z: 1, X: 0, Y: 1}}
	if diff := cmp.Diff(want, coords); diff != "" {
		t.Errorf("Sort mismatch (-want +got):\n%v", diff)
	}

	assert.True(t, tile.Coord{Z: 3, X: 7, Y: 7}.Valid())
	assert.False(t, tile.Coord{Z: 3, X: 8, Y: 0}.Valid())
	assert.False(t, tile.Coord{Z: -1}.Valid())
	assert.Equal(t, "3/2/1", tile.Coord{Z: 3, X: 2, Y: 1}.String())
}

func TestMapTileRoundTrip(t *testing.T) {
	c := tile.Coord{Z: 12, X: 2200, Y: 1300}
	assert.Equal(t, c, tile.FromMapTile(c.MapTile()))
}

func TestSortHilbertKeepsNeighboursClose(t *testing.T) {
	var coords []tile.Coord
	for y := range 4 {
		for x := range 4 {
			coords = append(coords, tile.Coord{Z: 2, X: x, Y: y})
		}
	}
	tile.SortHilbert(coords)
	for i := 1; i < len(coords); i++ {
		dx := coords[i].X - coords[i-1].X
		dy := coords[i].Y - coords[i-1].Y
		assert.Equal(t, 1, dx*dx+dy*dy, "consecutive tiles %v and %v are not adjacent", coords[i-1], coords[i])
	}
}

func TestCover(t *testing.T) {
	coords, err := tile.Cover(orb.Bound{Min: orb.Point{-180, -85}, Max: orb.Point{180, 85}}, 1)
	require.NoError(t, err)
	assert.Len(t, coords, 4)
}

func TestTemplates(t *testing.T) {
	const tmpl = "https://tiles.example.com/{z}/{x}/{y}.pbf?key={key}"
	require.NoError(t, tile.ValidateTemplate(tmpl))
	assert.True(t, tile.NeedsKey(tmpl))
	assert.Equal(t,
		"https://tiles.example.com/3/2/1.pbf?key=secret",
		tile.FormatURL(tile.WithKey(tmpl, "secret"), tile.Coord{Z: 3, X: 2, Y: 1}))

	err := tile.ValidateTemplate("https://tiles.example.com/{z}/{x}.png")
	assert.True(t, errors.Is(err, tile.ErrInvalidTemplate))
}

func TestDiskSubPath(t *testing.T) {
	c := tile.Coord{Z: 5, X: 10, Y: 12}
	assert.Equal(t, filepath.Join("vector", "5", "10", "12.mvt"), tile.DiskSubPath(c, tile.Vector))
	assert.Equal(t, filepath.Join("raster", "5", "10", "12.png"), tile.DiskSubPath(c, tile.Raster))
}
