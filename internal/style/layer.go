package style

import (
	"strings"

	"vectormap/internal/expr"
)

// Layer is one of *Background, *Fill, *Line or *Symbol.
type Layer interface {
	Base() *Common
	layer()
}

// Common holds the fields every layer type shares.
type Common struct {
	ID          string
	Source      string
	SourceLayer string
	MinZoom     float64
	MaxZoom     float64
	Visible     bool
	Filter      expr.Node

	rep *reporter
}

func (c *Common) Base() *Common { return c }

// VisibleAt reports whether the layer draws at the given map zoom. MaxZoom is
// exclusive.
func (c *Common) VisibleAt(mapZoom int) bool {
	z := float64(mapZoom)
	return c.Visible && z >= c.MinZoom && z < c.MaxZoom
}

// Accepts evaluates the layer filter for a feature. A filter that fails to
// evaluate rejects the feature.
func (c *Common) Accepts(ctx expr.Context) bool {
	if c.Filter == nil {
		return true
	}
	v, err := expr.Evaluate(c.Filter, ctx)
	if err != nil {
		Property{Name: "filter", rep: c.rep}.report(err)
		return false
	}
	return v.Truthy()
}

type Background struct {
	Common
	Color   Property
	Opacity Property
}

type Fill struct {
	Common
	Color     Property
	Opacity   Property
	Antialias Property
}

type Line struct {
	Common
	Color   Property
	Width   Property
	Opacity Property
}

// Symbol layers carry text labels. Point features get wrapped text centered
// on the anchor; line features get text following the path.
type Symbol struct {
	Common
	TextField         Property
	TextSize          Property
	TextMaxWidth      Property
	TextMaxAngle      Property
	TextLetterSpacing Property
	TextTransform     Property
	TextColor         Property
	TextOpacity       Property
	TextHaloColor     Property
	TextHaloWidth     Property
}

// Text resolves the label for a feature. A string text-field is a template
// where {key} is replaced by the attribute value.
func (s *Symbol) Text(ctx expr.Context) string {
	v, err := s.TextField.Resolve(ctx)
	if err != nil {
		s.TextField.report(err)
		return ""
	}
	text, ok := v.AsString()
	if !ok {
		return ""
	}
	if !s.TextField.isExpression() {
		text = substitute(text, ctx.Feature)
	}

	switch s.TextTransform.StringValue(ctx) {
	case "uppercase":
		text = strings.ToUpper(text)
	case "lowercase":
		text = strings.ToLower(text)
	}
	return text
}

func (*Background) layer() {}
func (*Fill) layer()       {}
func (*Line) layer()       {}
func (*Symbol) layer()     {}
