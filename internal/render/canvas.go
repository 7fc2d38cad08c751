// Package render turns ready tiles and a style sheet into draw operations
// against an abstract canvas, placing labels without overlap.
package render

import (
	"image"
	"unicode/utf8"

	"github.com/paulmach/orb"

	"vectormap/internal/expr"
	"vectormap/internal/tile"
)

// Canvas receives draw operations in viewport pixel space. Push and Pop
// save and restore the clip.
type Canvas interface {
	Push()
	Pop()
	ClipRect(r tile.Rect)
	FillRect(r tile.Rect, c expr.Color)
	FillPath(p orb.MultiPolygon, c expr.Color, antialias bool)
	StrokePath(p orb.MultiLineString, c expr.Color, width float64)
	DrawImage(img image.Image, r tile.Rect)
	DrawGlyphRun(run GlyphRun)
}

// Glyph is a piece of text drawn as a unit: a whole line for horizontal
// labels, a single character for curved ones. X and Y locate the middle of
// the glyph cell's left edge; Angle rotates the cell about that point, in
// radians, clockwise on screen.
type Glyph struct {
	Text  string
	X, Y  float64
	Angle float64
}

type GlyphRun struct {
	Glyphs    []Glyph
	Size      float64
	Color     expr.Color
	HaloColor expr.Color
	HaloWidth float64
}

// FontMetrics measures text at a pixel size.
type FontMetrics interface {
	Advance(s string, size float64) float64
	LineHeight(size float64) float64
}

// FixedMetrics gives every rune the same advance. It stands in for a real
// font where exact shapes do not matter.
type FixedMetrics struct {
	// CharWidth is the advance of one rune in ems.
	CharWidth float64
	// Leading is the line height in ems.
	Leading float64
}

func (m FixedMetrics) Advance(s string, size float64) float64 {
	return float64(utf8.RuneCountInString(s)) * m.CharWidth * size
}

func (m FixedMetrics) LineHeight(size float64) float64 {
	return m.Leading * size
}
