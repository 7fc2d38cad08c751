package tile

import "math"

// Viewport describes what the map view shows. X and Y are the view center in
// normalized world space ([0, 1] on both axes, y growing south). Zoom is the
// continuous viewport zoom; Width and Height are the output size in pixels.
type Viewport struct {
	X      float64
	Y      float64
	Zoom   float64
	Width  int
	Height int
}

// Aspect is width over height. A degenerate viewport reports 1.
func (v Viewport) Aspect() float64 {
	if v.Width <= 0 || v.Height <= 0 {
		return 1
	}
	return float64(v.Width) / float64(v.Height)
}

func (v Viewport) largestDimension() float64 {
	return float64(max(v.Width, v.Height))
}

// Rect is an axis-aligned pixel rectangle.
type Rect struct {
	X, Y, W, H float64
}

func clampZoom(z int) int {
	return min(max(z, 0), MaxZoom)
}

func clampIndex(i, n int) int {
	return min(max(i, 0), n-1)
}

// footprint returns the normalized width and height of the world area the
// viewport covers. The larger viewport side always spans 2^-zoom.
func footprint(vpZoom, aspect float64) (w, h float64) {
	if aspect <= 0 || math.IsNaN(aspect) || math.IsInf(aspect, 0) {
		aspect = 1
	}
	span := math.Exp2(-vpZoom)
	return span * math.Min(1, aspect), span * math.Min(1, 1/aspect)
}

// VisibleTiles returns every tile at mapZoom intersecting the viewport
// footprint, in row-major order. Indices are clamped to the grid.
func VisibleTiles(vpX, vpY, aspect, vpZoom float64, mapZoom int) []Coord {
	mapZoom = clampZoom(mapZoom)
	w, h := footprint(vpZoom, aspect)

	n := 1 << mapZoom
	fn := float64(n)
	minX := clampIndex(int(math.Floor((vpX-w/2)*fn)), n)
	maxX := clampIndex(int(math.Ceil((vpX+w/2)*fn)), n)
	minY := clampIndex(int(math.Floor((vpY-h/2)*fn)), n)
	maxY := clampIndex(int(math.Ceil((vpY+h/2)*fn)), n)

	coords := make([]Coord, 0, (maxX-minX+1)*(maxY-minY+1))
	for y := minY; y <= maxY; y++ {
		for x := minX; x <= maxX; x++ {
			coords = append(coords, Coord{Z: mapZoom, X: x, Y: y})
		}
	}
	return coords
}

// Visible is VisibleTiles for a Viewport.
func (v Viewport) Visible(mapZoom int) []Coord {
	return VisibleTiles(v.X, v.Y, v.Aspect(), v.Zoom, mapZoom)
}

// MapZoomForPixelSize picks the integer map zoom whose tiles are drawn closest
// to desiredSize pixels wide.
func MapZoomForPixelSize(vpWidth, vpHeight int, vpZoom float64, desiredSize int) int {
	largest := max(vpWidth, vpHeight, 1)
	if desiredSize <= 0 {
		desiredSize = 1
	}
	scale := float64(desiredSize) / float64(largest)
	z := vpZoom - math.Log2(scale)
	if math.IsNaN(z) {
		return 0
	}
	return clampZoom(int(math.Round(z)))
}

// Placement returns the pixel rectangle tile c occupies in the viewport when
// the map is drawn at mapZoom.
func (v Viewport) Placement(mapZoom int, c Coord) Rect {
	largest := v.largestDimension()
	scale := math.Exp2(v.Zoom - float64(mapZoom))
	world := math.Exp2(v.Zoom) * largest
	n := float64(int(1) << mapZoom)

	x := (float64(c.X)/n-v.X)*world + float64(v.Width)/2
	y := (float64(c.Y)/n-v.Y)*world + float64(v.Height)/2
	size := math.Round(scale * largest)
	return Rect{X: math.Round(x), Y: math.Round(y), W: size, H: size}
}
