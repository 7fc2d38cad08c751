package render

import (
	"fmt"
	"image"

	"github.com/paulmach/orb"

	"vectormap/internal/expr"
	"vectormap/internal/tile"
)

type OpKind int

const (
	OpPush OpKind = iota
	OpPop
	OpClip
	OpFillRect
	OpFillPath
	OpStrokePath
	OpImage
	OpText
)

func (k OpKind) String() string {
	switch k {
	case OpPush:
		return "push"
	case OpPop:
		return "pop"
	case OpClip:
		return "clip"
	case OpFillRect:
		return "fill_rect"
	case OpFillPath:
		return "fill_path"
	case OpStrokePath:
		return "stroke_path"
	case OpImage:
		return "image"
	case OpText:
		return "text"
	default:
		return fmt.Sprintf("op(%d)", int(k))
	}
}

// Op is one recorded draw call. Only the fields relevant to Kind are set.
type Op struct {
	Kind      OpKind
	Rect      tile.Rect
	Color     expr.Color
	Width     float64
	Antialias bool
	Polygons  orb.MultiPolygon
	Lines     orb.MultiLineString
	Image     image.Image
	Run       GlyphRun
}

// Recorder is a Canvas that keeps the draw list instead of drawing.
type Recorder struct {
	Ops []Op
}

func (r *Recorder) Push() { r.Ops = append(r.Ops, Op{Kind: OpPush}) }
func (r *Recorder) Pop()  { r.Ops = append(r.Ops, Op{Kind: OpPop}) }

func (r *Recorder) ClipRect(rect tile.Rect) {
	r.Ops = append(r.Ops, Op{Kind: OpClip, Rect: rect})
}

func (r *Recorder) FillRect(rect tile.Rect, c expr.Color) {
	r.Ops = append(r.Ops, Op{Kind: OpFillRect, Rect: rect, Color: c})
}

func (r *Recorder) FillPath(p orb.MultiPolygon, c expr.Color, antialias bool) {
	r.Ops = append(r.Ops, Op{Kind: OpFillPath, Polygons: p, Color: c, Antialias: antialias})
}

func (r *Recorder) StrokePath(p orb.MultiLineString, c expr.Color, width float64) {
	r.Ops = append(r.Ops, Op{Kind: OpStrokePath, Lines: p, Color: c, Width: width})
}

func (r *Recorder) DrawImage(img image.Image, rect tile.Rect) {
	r.Ops = append(r.Ops, Op{Kind: OpImage, Image: img, Rect: rect})
}

func (r *Recorder) DrawGlyphRun(run GlyphRun) {
	r.Ops = append(r.Ops, Op{Kind: OpText, Run: run})
}

// Kinds lists the recorded op kinds in order.
func (r *Recorder) Kinds() []OpKind {
	kinds := make([]OpKind, len(r.Ops))
	for i, op := range r.Ops {
		kinds[i] = op.Kind
	}
	return kinds
}

// Texts returns the recorded glyph runs in draw order.
func (r *Recorder) Texts() []GlyphRun {
	var runs []GlyphRun
	for _, op := range r.Ops {
		if op.Kind == OpText {
			runs = append(runs, op.Run)
		}
	}
	return runs
}
