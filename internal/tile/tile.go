// Package tile holds tile identities and the pure math that maps a viewport
// onto the power-of-two tile grid.
package tile

import (
	"fmt"
	"sort"

	"github.com/google/hilbert"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/maptile"
	"github.com/paulmach/orb/maptile/tilecover"
)

// MaxZoom is the deepest zoom level the grid math will produce.
const MaxZoom = 16

// Coord identifies a tile in the XYZ scheme. X and Y are in [0, 2^Z).
type Coord struct {
	Z int
	X int
	Y int
}

func (c Coord) Valid() bool {
	if c.Z < 0 || c.Z > 30 {
		return false
	}
	n := 1 << c.Z
	return c.X >= 0 && c.X < n && c.Y >= 0 && c.Y < n
}

// Less orders coordinates by zoom, then row, then column.
func (c Coord) Less(o Coord) bool {
	if c.Z != o.Z {
		return c.Z < o.Z
	}
	if c.Y != o.Y {
		return c.Y < o.Y
	}
	return c.X < o.X
}

func (c Coord) String() string {
	return fmt.Sprintf("%d/%d/%d", c.Z, c.X, c.Y)
}

// MapTile converts the coordinate to its orb representation.
func (c Coord) MapTile() maptile.Tile {
	return maptile.New(uint32(c.X), uint32(c.Y), maptile.Zoom(c.Z))
}

// FromMapTile converts an orb tile back to a Coord.
func FromMapTile(t maptile.Tile) Coord {
	return Coord{Z: int(t.Z), X: int(t.X), Y: int(t.Y)}
}

// HilbertIndex returns the position of the tile along the Hilbert curve of its
// zoom level. Tiles close on the curve are close on the map.
func (c Coord) HilbertIndex() int {
	h, err := hilbert.NewHilbert(1 << c.Z)
	if err != nil {
		return 0
	}
	t, err := h.MapInverse(c.X, c.Y)
	if err != nil {
		return 0
	}
	return t
}

// Sort orders coords in place using Less.
func Sort(coords []Coord) {
	sort.Slice(coords, func(i, j int) bool { return coords[i].Less(coords[j]) })
}

// SortHilbert orders coords by zoom and then by Hilbert index.
func SortHilbert(coords []Coord) {
	sort.SliceStable(coords, func(i, j int) bool {
		if coords[i].Z != coords[j].Z {
			return coords[i].Z < coords[j].Z
		}
		return coords[i].HilbertIndex() < coords[j].HilbertIndex()
	})
}

// Cover returns the tiles at zoom z covering a lon/lat bound, sorted.
func Cover(bound orb.Bound, z int) ([]Coord, error) {
	set, err := tilecover.Geometry(bound.ToPolygon(), maptile.Zoom(z))
	if err != nil {
		return nil, fmt.Errorf("failed to cover bound at zoom %d: %w", z, err)
	}

	coords := make([]Coord, 0, len(set))
	for t := range set {
		c := FromMapTile(t)
		if c.Valid() {
			coords = append(coords, c)
		}
	}
	Sort(coords)
	return coords, nil
}

// Kind distinguishes the payload types cached per coordinate.
type Kind int

const (
	Vector Kind = iota
	Raster
)

// Kinds lists every tile kind in load order.
var Kinds = []Kind{Vector, Raster}

func (k Kind) String() string {
	switch k {
	case Vector:
		return "vector"
	case Raster:
		return "raster"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Ext is the file extension used when a tile of this kind is stored on disk.
func (k Kind) Ext() string {
	switch k {
	case Vector:
		return "mvt"
	case Raster:
		return "png"
	default:
		return "bin"
	}
}
