package render

import (
	"math"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/planar"
)

// polyline is a line string measured by arc length.
type polyline struct {
	pts orb.LineString
	cum []float64
}

func newPolyline(ls orb.LineString) polyline {
	var p polyline
	for _, pt := range ls {
		if n := len(p.pts); n > 0 && p.pts[n-1].Equal(pt) {
			continue
		}
		if len(p.pts) == 0 {
			p.cum = append(p.cum, 0)
		} else {
			last := p.pts[len(p.pts)-1]
			p.cum = append(p.cum, p.cum[len(p.cum)-1]+planar.Distance(last, pt))
		}
		p.pts = append(p.pts, pt)
	}
	return p
}

func (p polyline) Length() float64 {
	if len(p.cum) == 0 {
		return 0
	}
	return p.cum[len(p.cum)-1]
}

// segment returns i such that the point at length s lies on pts[i]..pts[i+1].
func (p polyline) segment(s float64) int {
	last := len(p.pts) - 2
	for i := 0; i < last; i++ {
		if s < p.cum[i+1] {
			return i
		}
	}
	return max(last, 0)
}

// PointAt returns the point at arc length s, clamped to the ends.
func (p polyline) PointAt(s float64) orb.Point {
	switch len(p.pts) {
	case 0:
		return orb.Point{}
	case 1:
		return p.pts[0]
	}
	s = math.Min(math.Max(s, 0), p.Length())
	i := p.segment(s)
	a, b := p.pts[i], p.pts[i+1]
	t := (s - p.cum[i]) / (p.cum[i+1] - p.cum[i])
	return orb.Point{a[0] + (b[0]-a[0])*t, a[1] + (b[1]-a[1])*t}
}

// AngleAt returns the direction of the path at arc length s in degrees,
// counter-clockwise from east as seen on screen, in [0, 360).
func (p polyline) AngleAt(s float64) float64 {
	if len(p.pts) < 2 {
		return 0
	}
	i := p.segment(s)
	a, b := p.pts[i], p.pts[i+1]
	deg := math.Atan2(-(b[1]-a[1]), b[0]-a[0]) * 180 / math.Pi
	if deg < 0 {
		deg += 360
	}
	return deg
}

// angleDelta is the smallest difference between two directions in degrees.
func angleDelta(a, b float64) float64 {
	d := math.Mod(math.Abs(a-b), 360)
	if d > 180 {
		d = 360 - d
	}
	return d
}
