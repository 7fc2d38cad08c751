// Package ggcanvas draws render operations with gogpu/gg.
package ggcanvas

import (
	"fmt"
	"image"
	"io"
	"math"

	"github.com/gogpu/gg"
	"github.com/paulmach/orb"
	"go.uber.org/zap"

	"vectormap/internal/expr"
	"vectormap/internal/render"
	"vectormap/internal/style"
	"vectormap/internal/tile"
)

// Canvas is a render.Canvas backed by a software gg context.
type Canvas struct {
	dc    *gg.Context
	fonts *Fonts
	log   *zap.Logger
}

var _ render.Canvas = (*Canvas)(nil)

// New creates a canvas cleared to the given color. Failed fills and strokes
// leave the frame as it was and are logged at debug level.
func New(width, height int, fonts *Fonts, clear expr.Color, log *zap.Logger) *Canvas {
	if log == nil {
		log = zap.NewNop()
	}
	dc := gg.NewContext(width, height)
	dc.ClearWithColor(style.ToRGBA(clear))
	return &Canvas{dc: dc, fonts: fonts, log: log}
}

func (c *Canvas) check(op string, err error) {
	if err != nil {
		c.log.Debug("Canvas operation failed", zap.String("op", op), zap.Error(err))
	}
}

func (c *Canvas) Push() { c.dc.Push() }
func (c *Canvas) Pop()  { c.dc.Pop() }

func (c *Canvas) ClipRect(r tile.Rect) {
	c.dc.ClipRect(r.X, r.Y, r.W, r.H)
}

func (c *Canvas) setColor(col expr.Color) {
	c.dc.SetRGBA(col.R, col.G, col.B, col.A)
}

func (c *Canvas) FillRect(r tile.Rect, col expr.Color) {
	c.setColor(col)
	c.dc.DrawRectangle(r.X, r.Y, r.W, r.H)
	c.check("fill_rect", c.dc.Fill())
}

func (c *Canvas) FillPath(p orb.MultiPolygon, col expr.Color, _ bool) {
	c.setColor(col)
	c.dc.SetFillRule(gg.FillRuleEvenOdd)
	for _, poly := range p {
		for _, ring := range poly {
			c.trace(orb.LineString(ring))
			c.dc.ClosePath()
		}
	}
	c.check("fill_path", c.dc.Fill())
}

func (c *Canvas) StrokePath(p orb.MultiLineString, col expr.Color, width float64) {
	if width <= 0 {
		return
	}
	c.setColor(col)
	c.dc.SetLineWidth(width)
	c.dc.SetLineCap(gg.LineCapRound)
	c.dc.SetLineJoin(gg.LineJoinRound)
	for _, ls := range p {
		c.trace(ls)
	}
	c.check("stroke_path", c.dc.Stroke())
}

func (c *Canvas) trace(ls orb.LineString) {
	for i, pt := range ls {
		if i == 0 {
			c.dc.MoveTo(pt[0], pt[1])
			continue
		}
		c.dc.LineTo(pt[0], pt[1])
	}
}

func (c *Canvas) DrawImage(img image.Image, r tile.Rect) {
	c.dc.DrawImageEx(gg.ImageBufFromImage(img), gg.DrawImageOptions{
		X:         r.X,
		Y:         r.Y,
		DstWidth:  r.W,
		DstHeight: r.H,
	})
}

// haloOffsets approximate a text outline by stamping the text around its
// position.
var haloOffsets = [][2]float64{
	{-1, -1}, {0, -1}, {1, -1},
	{-1, 0}, {1, 0},
	{-1, 1}, {0, 1}, {1, 1},
}

func (c *Canvas) DrawGlyphRun(run render.GlyphRun) {
	if c.fonts == nil || run.Size <= 0 {
		return
	}
	c.dc.SetFont(c.fonts.Face(run.Size))

	for _, g := range run.Glyphs {
		c.dc.Push()
		c.dc.Translate(g.X, g.Y)
		c.dc.Rotate(g.Angle)

		if run.HaloWidth > 0 && run.HaloColor.A > 0 {
			c.setColor(run.HaloColor)
			w := math.Ceil(run.HaloWidth)
			for _, o := range haloOffsets {
				c.dc.DrawStringAnchored(g.Text, o[0]*w, o[1]*w, 0, 0.5)
			}
		}
		c.setColor(run.Color)
		c.dc.DrawStringAnchored(g.Text, 0, 0, 0, 0.5)

		c.dc.Pop()
	}
}

func (c *Canvas) Image() image.Image {
	return c.dc.Image()
}

func (c *Canvas) EncodePNG(w io.Writer) error {
	if err := c.dc.EncodePNG(w); err != nil {
		return fmt.Errorf("failed to encode png: %w", err)
	}
	return nil
}

func (c *Canvas) Close() error {
	return c.dc.Close()
}
