// Package style parses map style sheets into typed layers whose properties
// resolve against features through the expression evaluator.
package style

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"

	"go.uber.org/zap"

	"vectormap/internal/expr"
)

// Sheet is an ordered list of layers plus the tile sources they draw from.
type Sheet struct {
	Name    string
	Sources map[string]Source
	Layers  []Layer
	// Digest identifies the document the sheet was parsed from: the hex
	// SHA-256 of its bytes.
	Digest string
}

type Source struct {
	Type  string   `json:"type"`
	Tiles []string `json:"tiles"`
	URL   string   `json:"url"`
}

type document struct {
	Name    string            `json:"name"`
	Sources map[string]Source `json:"sources"`
	Layers  []layerDocument   `json:"layers"`
}

type layerDocument struct {
	ID          string         `json:"id"`
	Type        string         `json:"type"`
	Source      string         `json:"source"`
	SourceLayer string         `json:"source-layer"`
	MinZoom     *float64       `json:"minzoom"`
	MaxZoom     *float64       `json:"maxzoom"`
	Filter      any            `json:"filter"`
	Layout      map[string]any `json:"layout"`
	Paint       map[string]any `json:"paint"`
}

type options struct {
	log *zap.Logger
}

type Option func(*options)

// WithLogger sets the logger used for skipped layers and property fallbacks.
func WithLogger(log *zap.Logger) Option {
	return func(o *options) { o.log = log }
}

const defaultMaxZoom = 24

// Parse reads a style sheet document. Layer types other than background,
// fill, line and symbol are skipped. A property that cannot be parsed keeps
// its default and is logged; malformed JSON or filters fail the whole sheet.
func Parse(data []byte, opts ...Option) (*Sheet, error) {
	o := options{log: zap.NewNop()}
	for _, opt := range opts {
		opt(&o)
	}

	var doc document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to decode style sheet: %w", err)
	}

	sum := sha256.Sum256(data)
	sheet := &Sheet{Name: doc.Name, Sources: doc.Sources, Digest: hex.EncodeToString(sum[:])}
	if sheet.Sources == nil {
		sheet.Sources = make(map[string]Source)
	}

	for i, ld := range doc.Layers {
		l, err := buildLayer(ld, o.log)
		if err != nil {
			return nil, fmt.Errorf("layer %d (%s): %w", i, ld.ID, err)
		}
		if l == nil {
			o.log.Debug("Skipping unsupported layer",
				zap.String("layer", ld.ID),
				zap.String("type", ld.Type))
			continue
		}
		sheet.Layers = append(sheet.Layers, l)
	}
	return sheet, nil
}

func buildLayer(ld layerDocument, log *zap.Logger) (Layer, error) {
	rep := &reporter{log: log, layer: ld.ID}
	common := Common{
		ID:          ld.ID,
		Source:      ld.Source,
		SourceLayer: ld.SourceLayer,
		MaxZoom:     defaultMaxZoom,
		Visible:     true,
		rep:         rep,
	}
	if ld.MinZoom != nil {
		common.MinZoom = *ld.MinZoom
	}
	if ld.MaxZoom != nil {
		common.MaxZoom = *ld.MaxZoom
	}
	if v, ok := ld.Layout["visibility"].(string); ok && v == "none" {
		common.Visible = false
	}
	if ld.Filter != nil {
		f, err := expr.Parse(ld.Filter)
		if err != nil {
			return nil, fmt.Errorf("filter: %w", err)
		}
		common.Filter = f
	}

	b := propertyBuilder{layout: ld.Layout, paint: ld.Paint, log: log, layer: ld.ID}

	switch ld.Type {
	case "background":
		return &Background{
			Common:  common,
			Color:   b.paintProp("background-color", colorType, expr.ColorValue(expr.Color{A: 1})),
			Opacity: b.paintProp("background-opacity", numberType, expr.Number(1)),
		}, nil
	case "fill":
		return &Fill{
			Common:    common,
			Color:     b.paintProp("fill-color", colorType, expr.ColorValue(expr.Color{A: 1})),
			Opacity:   b.paintProp("fill-opacity", numberType, expr.Number(1)),
			Antialias: b.paintProp("fill-antialias", boolType, expr.Bool(true)),
		}, nil
	case "line":
		return &Line{
			Common:  common,
			Color:   b.paintProp("line-color", colorType, expr.ColorValue(expr.Color{A: 1})),
			Width:   b.paintProp("line-width", numberType, expr.Number(1)),
			Opacity: b.paintProp("line-opacity", numberType, expr.Number(1)),
		}, nil
	case "symbol":
		return &Symbol{
			Common:            common,
			TextField:         b.layoutProp("text-field", stringType, expr.Null),
			TextSize:          b.layoutProp("text-size", numberType, expr.Number(16)),
			TextMaxWidth:      b.layoutProp("text-max-width", numberType, expr.Number(10)),
			TextMaxAngle:      b.layoutProp("text-max-angle", numberType, expr.Number(45)),
			TextLetterSpacing: b.layoutProp("text-letter-spacing", numberType, expr.Number(0)),
			TextTransform:     b.layoutProp("text-transform", stringType, expr.String("none")),
			TextColor:         b.paintProp("text-color", colorType, expr.ColorValue(expr.Color{A: 1})),
			TextOpacity:       b.paintProp("text-opacity", numberType, expr.Number(1)),
			TextHaloColor:     b.paintProp("text-halo-color", colorType, expr.ColorValue(expr.Color{})),
			TextHaloWidth:     b.paintProp("text-halo-width", numberType, expr.Number(0)),
		}, nil
	default:
		return nil, nil
	}
}

type propertyBuilder struct {
	layout map[string]any
	paint  map[string]any
	log    *zap.Logger
	layer  string
}

func (b propertyBuilder) layoutProp(name string, typ valueType, def expr.Value) Property {
	return b.build(name, b.layout[name], typ, def)
}

func (b propertyBuilder) paintProp(name string, typ valueType, def expr.Value) Property {
	return b.build(name, b.paint[name], typ, def)
}

func (b propertyBuilder) build(name string, raw any, typ valueType, def expr.Value) Property {
	rep := &reporter{log: b.log, layer: b.layer}
	p, err := parseProperty(name, raw, typ, def, rep)
	if err != nil {
		b.log.Warn("Ignoring style property",
			zap.String("layer", b.layer),
			zap.String("property", name),
			zap.Error(err))
		return Property{Name: name, Default: def, typ: typ, rep: rep}
	}
	return p
}

// VectorURLTemplate returns the first tile URL template of the named vector
// source, or of the first vector source by name when source is empty.
func (s *Sheet) VectorURLTemplate(source string) (string, bool) {
	return s.urlTemplate(source, "vector")
}

// RasterURLTemplate is VectorURLTemplate for raster sources.
func (s *Sheet) RasterURLTemplate(source string) (string, bool) {
	return s.urlTemplate(source, "raster")
}

func (s *Sheet) urlTemplate(source, typ string) (string, bool) {
	if source != "" {
		src, ok := s.Sources[source]
		if !ok || src.Type != typ || len(src.Tiles) == 0 {
			return "", false
		}
		return src.Tiles[0], true
	}

	names := make([]string, 0, len(s.Sources))
	for name := range s.Sources {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		src := s.Sources[name]
		if src.Type == typ && len(src.Tiles) > 0 {
			return src.Tiles[0], true
		}
	}
	return "", false
}

// SourceLayers lists the distinct source layers referenced by the sheet, in
// first-use order.
func (s *Sheet) SourceLayers() []string {
	seen := make(map[string]bool)
	var out []string
	for _, l := range s.Layers {
		name := l.Base().SourceLayer
		if name == "" || seen[name] {
			continue
		}
		seen[name] = true
		out = append(out, name)
	}
	return out
}
