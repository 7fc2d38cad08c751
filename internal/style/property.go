package style

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"go.uber.org/zap"

	"vectormap/internal/expr"
)

type valueType int

const (
	numberType valueType = iota
	colorType
	stringType
	boolType
)

// Property is a style value: a constant, a set of zoom stops or an
// expression. Every property carries the default used when it is unset or
// fails to resolve.
type Property struct {
	Name    string
	Default expr.Value

	node  expr.Node
	stops []stop
	typ   valueType
	rep   *reporter
}

type stop struct {
	zoom float64
	node expr.Node
}

// reporter logs the first resolution failure of a property and stays quiet
// afterwards; a bad expression would otherwise log once per feature.
type reporter struct {
	once  sync.Once
	log   *zap.Logger
	layer string
}

func (p Property) report(err error) {
	if p.rep == nil || p.rep.log == nil {
		return
	}
	p.rep.once.Do(func() {
		p.rep.log.Warn("Style property fell back to default",
			zap.String("layer", p.rep.layer),
			zap.String("property", p.Name),
			zap.Error(err))
	})
}

// IsSet reports whether the style sheet gave the property a value.
func (p Property) IsSet() bool {
	return p.node != nil || len(p.stops) > 0
}

// Resolve picks the stop for the map zoom (the last one at or below it, or
// the first when the zoom is below every stop) and evaluates it.
func (p Property) Resolve(ctx expr.Context) (expr.Value, error) {
	n := p.node
	if len(p.stops) > 0 {
		n = p.stops[0].node
		for _, s := range p.stops {
			if s.zoom > float64(ctx.MapZoom) {
				break
			}
			n = s.node
		}
	}
	if n == nil {
		return p.Default, nil
	}
	return expr.Evaluate(n, ctx)
}

func (p Property) isExpression() bool {
	if _, ok := p.node.(*expr.Call); ok {
		return true
	}
	for _, s := range p.stops {
		if _, ok := s.node.(*expr.Call); ok {
			return true
		}
	}
	return false
}

func (p Property) resolve(ctx expr.Context) (expr.Value, bool) {
	v, err := p.Resolve(ctx)
	if err != nil {
		p.report(err)
		return expr.Null, false
	}
	if v.IsNull() {
		return expr.Null, false
	}
	return v, true
}

// Number resolves the property as a number, falling back to the default.
func (p Property) Number(ctx expr.Context) float64 {
	def, _ := p.Default.AsNumber()
	v, ok := p.resolve(ctx)
	if !ok {
		return def
	}
	n, ok := v.AsNumber()
	if !ok {
		p.report(fmt.Errorf("expected number, got %v", v.Kind()))
		return def
	}
	return n
}

// Color resolves the property as a color. Strings are parsed as CSS colors.
func (p Property) Color(ctx expr.Context) expr.Color {
	def, _ := p.Default.AsColor()
	v, ok := p.resolve(ctx)
	if !ok {
		return def
	}
	if c, ok := v.AsColor(); ok {
		return c
	}
	if s, ok := v.AsString(); ok {
		c, err := ParseColor(s)
		if err == nil {
			return c
		}
		p.report(err)
		return def
	}
	p.report(fmt.Errorf("expected color, got %v", v.Kind()))
	return def
}

func (p Property) StringValue(ctx expr.Context) string {
	def, _ := p.Default.AsString()
	v, ok := p.resolve(ctx)
	if !ok {
		return def
	}
	s, ok := v.AsString()
	if !ok {
		p.report(fmt.Errorf("expected string, got %v", v.Kind()))
		return def
	}
	return s
}

func (p Property) Bool(ctx expr.Context) bool {
	def, _ := p.Default.AsBool()
	v, ok := p.resolve(ctx)
	if !ok {
		return def
	}
	b, ok := v.AsBool()
	if !ok {
		p.report(fmt.Errorf("expected boolean, got %v", v.Kind()))
		return def
	}
	return b
}

// parseProperty builds a property from its decoded JSON value. A nil raw
// value leaves the property unset.
func parseProperty(name string, raw any, typ valueType, def expr.Value, rep *reporter) (Property, error) {
	p := Property{Name: name, Default: def, typ: typ, rep: rep}
	if raw == nil {
		return p, nil
	}

	if obj, ok := raw.(map[string]any); ok {
		rawStops, ok := obj["stops"].([]any)
		if !ok {
			return p, fmt.Errorf("%s: object value without stops", name)
		}
		for i, rs := range rawStops {
			pair, ok := rs.([]any)
			if !ok || len(pair) != 2 {
				return p, fmt.Errorf("%s: stop %d is not a [zoom, value] pair", name, i)
			}
			z, ok := pair[0].(float64)
			if !ok {
				return p, fmt.Errorf("%s: stop %d zoom is not a number", name, i)
			}
			n, err := parseValue(pair[1], typ)
			if err != nil {
				return p, fmt.Errorf("%s: stop %d: %w", name, i, err)
			}
			p.stops = append(p.stops, stop{zoom: z, node: n})
		}
		sort.SliceStable(p.stops, func(i, j int) bool { return p.stops[i].zoom < p.stops[j].zoom })
		return p, nil
	}

	n, err := parseValue(raw, typ)
	if err != nil {
		return p, fmt.Errorf("%s: %w", name, err)
	}
	p.node = n
	return p, nil
}

func parseValue(raw any, typ valueType) (expr.Node, error) {
	if typ == colorType {
		if s, ok := raw.(string); ok {
			c, err := ParseColor(s)
			if err != nil {
				return nil, err
			}
			return &expr.Literal{Value: expr.ColorValue(c)}, nil
		}
	}

	n, err := expr.Parse(raw)
	if err != nil {
		return nil, err
	}
	if typ == colorType {
		n = expr.MapLiterals(n, colorLiteral)
	}
	return n, nil
}

func colorLiteral(v expr.Value) expr.Value {
	s, ok := v.AsString()
	if !ok || v.Kind() != expr.StringKind || !looksLikeColor(s) {
		return v
	}
	c, err := ParseColor(s)
	if err != nil {
		return v
	}
	return expr.ColorValue(c)
}

// substitute expands {key} tokens in a text-field template from feature
// attributes. Missing attributes expand to nothing.
func substitute(tmpl string, f expr.Attributes) string {
	if !strings.Contains(tmpl, "{") {
		return tmpl
	}
	var b strings.Builder
	for {
		open := strings.IndexByte(tmpl, '{')
		if open < 0 {
			b.WriteString(tmpl)
			break
		}
		end := strings.IndexByte(tmpl[open:], '}')
		if end < 0 {
			b.WriteString(tmpl)
			break
		}
		b.WriteString(tmpl[:open])
		key := tmpl[open+1 : open+end]
		if f != nil {
			if v, ok := f.Attribute(key); ok {
				s, _ := v.AsString()
				b.WriteString(s)
			}
		}
		tmpl = tmpl[open+end+1:]
	}
	return strings.TrimSpace(b.String())
}
