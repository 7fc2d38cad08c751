// Package vectortile holds decoded vector tile data in tile-local
// coordinates, ready for styling.
package vectortile

import (
	"github.com/paulmach/orb"

	"vectormap/internal/expr"
)

// DefaultExtent is the tile coordinate range used when a layer omits it.
const DefaultExtent = 4096

// GeometryType names the geometry of a feature as filters see it through the
// "$type" attribute.
type GeometryType string

const (
	PolygonType    GeometryType = "Polygon"
	LineStringType GeometryType = "LineString"
	PointType      GeometryType = "Point"
)

// Tile maps source layer names to layers, keeping decode order.
type Tile struct {
	names  []string
	layers map[string]*Layer
}

func NewTile() *Tile {
	return &Tile{layers: make(map[string]*Layer)}
}

// Add appends a layer. A layer with a name already present replaces the
// previous one but keeps its position.
func (t *Tile) Add(l *Layer) {
	if _, ok := t.layers[l.Name]; !ok {
		t.names = append(t.names, l.Name)
	}
	t.layers[l.Name] = l
}

// Layer returns the named layer, or nil.
func (t *Tile) Layer(name string) *Layer {
	if t == nil {
		return nil
	}
	return t.layers[name]
}

func (t *Tile) Names() []string {
	out := make([]string, len(t.names))
	copy(out, t.names)
	return out
}

func (t *Tile) Len() int { return len(t.names) }

type Layer struct {
	Name     string
	Extent   int
	Features []Feature
}

// Feature is one of *PolygonFeature, *LineFeature or *PointFeature.
type Feature interface {
	expr.Attributes
	Type() GeometryType
	Bound() orb.Bound
	feature()
}

// Properties holds feature metadata. The geometry type is exposed as "$type"
// unless the data carries its own value under that key.
type Properties map[string]expr.Value

type base struct {
	ID         uint64
	Properties Properties
}

func (b *base) attribute(t GeometryType, key string) (expr.Value, bool) {
	if v, ok := b.Properties[key]; ok {
		return v, true
	}
	if key == "$type" {
		return expr.String(string(t)), true
	}
	return expr.Null, false
}

type PolygonFeature struct {
	base
	Geometry orb.MultiPolygon
}

type LineFeature struct {
	base
	Geometry orb.MultiLineString
}

type PointFeature struct {
	base
	Geometry orb.MultiPoint
}

func NewPolygon(id uint64, props Properties, g orb.MultiPolygon) *PolygonFeature {
	return &PolygonFeature{base: base{ID: id, Properties: props}, Geometry: g}
}

func NewLine(id uint64, props Properties, g orb.MultiLineString) *LineFeature {
	return &LineFeature{base: base{ID: id, Properties: props}, Geometry: g}
}

func NewPoint(id uint64, props Properties, g orb.MultiPoint) *PointFeature {
	return &PointFeature{base: base{ID: id, Properties: props}, Geometry: g}
}

func (f *PolygonFeature) Attribute(key string) (expr.Value, bool) {
	return f.attribute(PolygonType, key)
}

func (f *LineFeature) Attribute(key string) (expr.Value, bool) {
	return f.attribute(LineStringType, key)
}

func (f *PointFeature) Attribute(key string) (expr.Value, bool) {
	return f.attribute(PointType, key)
}

func (*PolygonFeature) Type() GeometryType { return PolygonType }
func (*LineFeature) Type() GeometryType    { return LineStringType }
func (*PointFeature) Type() GeometryType   { return PointType }

func (f *PolygonFeature) Bound() orb.Bound { return f.Geometry.Bound() }
func (f *LineFeature) Bound() orb.Bound    { return f.Geometry.Bound() }
func (f *PointFeature) Bound() orb.Bound   { return f.Geometry.Bound() }

func (*PolygonFeature) feature() {}
func (*LineFeature) feature()    {}
func (*PointFeature) feature()   {}
