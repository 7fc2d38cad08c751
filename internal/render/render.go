package render

import (
	"image"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/clip"
	"github.com/paulmach/orb/planar"

	"vectormap/internal/expr"
	"vectormap/internal/style"
	"vectormap/internal/tile"
	"vectormap/internal/vectortile"
)

// Frame is everything one render pass reads. Only Ok payloads belong in
// Vector and Raster.
type Frame struct {
	Viewport tile.Viewport
	MapZoom  int
	// Tiles is the visible set in draw order. Nil means the tiles visible
	// from Viewport at MapZoom.
	Tiles  []tile.Coord
	Vector map[tile.Coord]*vectortile.Tile
	Raster map[tile.Coord]image.Image
	Style  *style.Sheet
}

// Label is a text label that survived collision checks.
type Label struct {
	Text   string
	Bound  orb.Bound
	Curved bool
}

type Result struct {
	// Drawn lists the tiles that had a payload, Missing those that did not.
	Drawn    []tile.Coord
	Missing  []tile.Coord
	Labels   []Label
	Rejected int
}

type pass struct {
	frame      Frame
	canvas     Canvas
	metrics    FontMetrics
	collisions CollisionSet
	labels     []label
	rejected   int
}

// Render draws every visible tile in order, then the accepted labels on top.
// Each tile is clipped to its placement; a raster image goes under the
// vector layers and stands in for background layers.
func Render(f Frame, c Canvas, m FontMetrics) Result {
	p := &pass{frame: f, canvas: c, metrics: m}

	tiles := f.Tiles
	if tiles == nil {
		tiles = f.Viewport.Visible(f.MapZoom)
	}

	var res Result
	for _, coord := range tiles {
		vt := f.Vector[coord]
		img := f.Raster[coord]
		if vt == nil && img == nil {
			res.Missing = append(res.Missing, coord)
			continue
		}

		rect := f.Viewport.Placement(f.MapZoom, coord)
		c.Push()
		c.ClipRect(rect)
		if img != nil {
			c.DrawImage(img, rect)
		}
		if vt != nil && f.Style != nil {
			p.drawTile(vt, rect, img != nil)
		}
		c.Pop()
		res.Drawn = append(res.Drawn, coord)
	}

	for _, l := range p.labels {
		c.DrawGlyphRun(l.run)
		res.Labels = append(res.Labels, Label{Text: l.text, Bound: l.bound, Curved: l.curved})
	}
	res.Rejected = p.rejected
	return res
}

func (p *pass) context(f vectortile.Feature) expr.Context {
	ctx := expr.Context{MapZoom: p.frame.MapZoom, ViewportZoom: p.frame.Viewport.Zoom}
	if f != nil {
		ctx.Feature = f
	}
	return ctx
}

func (p *pass) drawTile(vt *vectortile.Tile, rect tile.Rect, hasRaster bool) {
	for _, layer := range p.frame.Style.Layers {
		base := layer.Base()
		if !base.VisibleAt(p.frame.MapZoom) {
			continue
		}

		switch l := layer.(type) {
		case *style.Background:
			if hasRaster {
				continue
			}
			ctx := p.context(nil)
			p.canvas.FillRect(rect, withOpacity(l.Color.Color(ctx), l.Opacity.Number(ctx)))
		case *style.Fill:
			src := vt.Layer(base.SourceLayer)
			if src == nil {
				continue
			}
			tr := newTransform(rect, src.Extent)
			for _, f := range src.Features {
				pf, ok := f.(*vectortile.PolygonFeature)
				if !ok {
					continue
				}
				ctx := p.context(pf)
				if !base.Accepts(ctx) {
					continue
				}
				color := withOpacity(l.Color.Color(ctx), l.Opacity.Number(ctx))
				p.canvas.FillPath(tr.polygons(pf.Geometry), color, l.Antialias.Bool(ctx))
			}
		case *style.Line:
			src := vt.Layer(base.SourceLayer)
			if src == nil {
				continue
			}
			tr := newTransform(rect, src.Extent)
			for _, f := range src.Features {
				lf, ok := f.(*vectortile.LineFeature)
				if !ok {
					continue
				}
				ctx := p.context(lf)
				if !base.Accepts(ctx) {
					continue
				}
				color := withOpacity(l.Color.Color(ctx), l.Opacity.Number(ctx))
				p.canvas.StrokePath(tr.lines(lf.Geometry), color, l.Width.Number(ctx))
			}
		case *style.Symbol:
			src := vt.Layer(base.SourceLayer)
			if src == nil || !l.TextField.IsSet() {
				continue
			}
			p.collectLabels(l, src, newTransform(rect, src.Extent))
		}
	}
}

func (p *pass) collectLabels(l *style.Symbol, src *vectortile.Layer, tr transform) {
	for _, f := range src.Features {
		ctx := p.context(f)
		if !l.Accepts(ctx) {
			continue
		}
		switch f := f.(type) {
		case *vectortile.PointFeature:
			if len(f.Geometry) == 0 || !tr.extentBound().Contains(f.Geometry[0]) {
				continue
			}
			text := l.Text(ctx)
			st := resolveTextStyle(l, ctx)
			if text == "" || st.size <= 0 {
				continue
			}
			p.place(layoutHorizontal(text, tr.point(f.Geometry[0]), st, p.metrics))
		case *vectortile.LineFeature:
			path, ok := longestPart(clip.Geometry(tr.extentBound(), orb.Clone(f.Geometry)))
			if !ok {
				continue
			}
			text := l.Text(ctx)
			st := resolveTextStyle(l, ctx)
			if text == "" || st.size <= 0 {
				continue
			}
			if lbl, ok := layoutCurved(text, newPolyline(tr.lineString(path)), st, p.metrics); ok {
				p.place(lbl)
			}
		case *vectortile.PolygonFeature:
			// no polygon labels
		}
	}
}

// place accepts a label unless it overlaps one accepted earlier in the pass.
func (p *pass) place(l label) {
	if !p.collisions.TryAdd(l.bound) {
		p.rejected++
		return
	}
	p.labels = append(p.labels, l)
}

// longestPart picks the longest line string of a clipped line geometry.
func longestPart(g orb.Geometry) (orb.LineString, bool) {
	switch g := g.(type) {
	case orb.LineString:
		return g, len(g) >= 2
	case orb.MultiLineString:
		var best orb.LineString
		var bestLen float64
		for _, ls := range g {
			if n := planar.Length(ls); len(ls) >= 2 && n > bestLen {
				best, bestLen = ls, n
			}
		}
		return best, best != nil
	default:
		return nil, false
	}
}

func withOpacity(c expr.Color, opacity float64) expr.Color {
	c.A *= min(max(opacity, 0), 1)
	return c
}

// transform maps tile-local coordinates onto the tile's pixel rectangle.
type transform struct {
	rect   tile.Rect
	extent float64
}

func newTransform(rect tile.Rect, extent int) transform {
	if extent <= 0 {
		extent = vectortile.DefaultExtent
	}
	return transform{rect: rect, extent: float64(extent)}
}

func (t transform) extentBound() orb.Bound {
	return orb.Bound{Max: orb.Point{t.extent, t.extent}}
}

func (t transform) point(pt orb.Point) orb.Point {
	return orb.Point{
		t.rect.X + pt[0]/t.extent*t.rect.W,
		t.rect.Y + pt[1]/t.extent*t.rect.H,
	}
}

func (t transform) lineString(ls orb.LineString) orb.LineString {
	out := make(orb.LineString, len(ls))
	for i, pt := range ls {
		out[i] = t.point(pt)
	}
	return out
}

func (t transform) lines(mls orb.MultiLineString) orb.MultiLineString {
	out := make(orb.MultiLineString, len(mls))
	for i, ls := range mls {
		out[i] = t.lineString(ls)
	}
	return out
}

func (t transform) polygons(mp orb.MultiPolygon) orb.MultiPolygon {
	out := make(orb.MultiPolygon, len(mp))
	for i, poly := range mp {
		rings := make(orb.Polygon, len(poly))
		for j, ring := range poly {
			rings[j] = orb.Ring(t.lineString(orb.LineString(ring)))
		}
		out[i] = rings
	}
	return out
}
