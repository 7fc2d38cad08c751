package render

import (
	"math"

	"github.com/paulmach/orb"
)

// CollisionSet accumulates the label rectangles accepted during one render
// pass. Rectangles are never removed.
type CollisionSet struct {
	rects []orb.Bound
}

// overlaps reports whether a and b share interior area. Touching edges do
// not count.
func overlaps(a, b orb.Bound) bool {
	return a.Min[0] < b.Max[0] && b.Min[0] < a.Max[0] &&
		a.Min[1] < b.Max[1] && b.Min[1] < a.Max[1]
}

func (s *CollisionSet) Overlaps(b orb.Bound) bool {
	for _, r := range s.rects {
		if overlaps(r, b) {
			return true
		}
	}
	return false
}

// TryAdd accepts b unless it overlaps an accepted rectangle. A rectangle
// with a non-finite corner is never accepted.
func (s *CollisionSet) TryAdd(b orb.Bound) bool {
	if !finite(b) || s.Overlaps(b) {
		return false
	}
	s.rects = append(s.rects, b)
	return true
}

func (s *CollisionSet) Len() int { return len(s.rects) }

func finite(b orb.Bound) bool {
	for _, v := range [4]float64{b.Min[0], b.Min[1], b.Max[0], b.Max[1]} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}
