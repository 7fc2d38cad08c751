package vectortile

import (
	"bytes"
	"errors"
	"fmt"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/encoding/mvt"
	"github.com/paulmach/orb/geojson"

	"vectormap/internal/expr"
)

var ErrParsingFailed = errors.New("vectortile: parsing failed")

var gzipMagic = []byte{0x1f, 0x8b}

// Decode parses a Mapbox Vector Tile, plain or gzip compressed. Geometry is
// kept in tile coordinates. Any failure wraps ErrParsingFailed.
func Decode(data []byte) (*Tile, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: empty payload", ErrParsingFailed)
	}

	var (
		layers mvt.Layers
		err    error
	)
	if bytes.HasPrefix(data, gzipMagic) {
		layers, err = mvt.UnmarshalGzipped(data)
	} else {
		layers, err = mvt.Unmarshal(data)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrParsingFailed, err)
	}

	t := NewTile()
	for _, l := range layers {
		t.Add(convertLayer(l))
	}
	return t, nil
}

func convertLayer(l *mvt.Layer) *Layer {
	out := &Layer{
		Name:     l.Name,
		Extent:   int(l.Extent),
		Features: make([]Feature, 0, len(l.Features)),
	}
	if out.Extent <= 0 {
		out.Extent = DefaultExtent
	}
	for _, f := range l.Features {
		if feat := convertFeature(f); feat != nil {
			out.Features = append(out.Features, feat)
		}
	}
	return out
}

// convertFeature maps a decoded feature to the sealed feature types. Features
// without geometry are dropped.
func convertFeature(f *geojson.Feature) Feature {
	if f == nil || f.Geometry == nil {
		return nil
	}
	props := convertProperties(f.Properties)
	id := featureID(f.ID)

	switch g := f.Geometry.(type) {
	case orb.Polygon:
		return NewPolygon(id, props, orb.MultiPolygon{g})
	case orb.MultiPolygon:
		return NewPolygon(id, props, g)
	case orb.LineString:
		return NewLine(id, props, orb.MultiLineString{g})
	case orb.MultiLineString:
		return NewLine(id, props, g)
	case orb.Point:
		return NewPoint(id, props, orb.MultiPoint{g})
	case orb.MultiPoint:
		return NewPoint(id, props, g)
	default:
		return nil
	}
}

func convertProperties(in geojson.Properties) Properties {
	out := make(Properties, len(in))
	for k, raw := range in {
		if v, ok := expr.FromJSON(raw); ok {
			out[k] = v
		}
	}
	return out
}

func featureID(raw any) uint64 {
	switch id := raw.(type) {
	case uint64:
		return id
	case int64:
		return uint64(id)
	case float64:
		return uint64(id)
	default:
		return 0
	}
}
