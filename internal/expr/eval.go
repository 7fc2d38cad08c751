// Package expr implements the small expression language used by style sheet
// properties and filters.
package expr

import (
	"fmt"
	"strings"
)

// Attributes gives the evaluator read access to a feature's metadata.
type Attributes interface {
	Attribute(key string) (Value, bool)
}

// Context is the evaluation environment. Feature may be nil, in which case
// every attribute is absent.
type Context struct {
	Feature      Attributes
	MapZoom      int
	ViewportZoom float64
}

func (ctx Context) attribute(key string) (Value, bool) {
	if ctx.Feature == nil {
		return Null, false
	}
	return ctx.Feature.Attribute(key)
}

type operator func(args []Node, ctx Context) (Value, error)

var operators map[string]operator

func init() {
	operators = map[string]operator{
		"get":         get,
		"has":         has,
		"!has":        negate(has),
		"in":          in,
		"!in":         negate(in),
		"==":          comparator("=="),
		"!=":          comparator("!="),
		"<":           comparator("<"),
		"<=":          comparator("<="),
		">":           comparator(">"),
		">=":          comparator(">="),
		"all":         all,
		"any":         anyOf,
		"!":           not,
		"case":        caseOf,
		"coalesce":    coalesce,
		"match":       match,
		"interpolate": interpolate,
		"zoom":        zoom,
		"to-string":   toString,
	}
}

// Evaluate resolves n against ctx. Evaluation has no side effects; the same
// node may be evaluated concurrently.
func Evaluate(n Node, ctx Context) (Value, error) {
	switch n := n.(type) {
	case *Literal:
		return n.Value, nil
	case *List:
		return Null, fmt.Errorf("%w: collection used as a value", ErrInvalidExpression)
	case *Call:
		op, ok := operators[n.Op]
		if !ok {
			return Null, fmt.Errorf("%w: %q", ErrUnknownOperator, n.Op)
		}
		v, err := op(n.Args, ctx)
		if err != nil {
			return Null, fmt.Errorf("%s: %w", n.Op, err)
		}
		return v, nil
	default:
		return Null, fmt.Errorf("%w: nil node", ErrInvalidExpression)
	}
}

func arity(args []Node, n int) error {
	if len(args) < n {
		return fmt.Errorf("%w: expected at least %d operands, got %d", ErrInvalidExpression, n, len(args))
	}
	return nil
}

// attributeKey reads a bare string operand used as an attribute name, the
// form legacy filters use (["==", "class", "park"]).
func attributeKey(n Node) (string, bool) {
	lit, ok := n.(*Literal)
	if !ok || lit.Value.Kind() != StringKind {
		return "", false
	}
	return lit.Value.str, true
}

func keyOperand(n Node, ctx Context) (string, error) {
	v, err := Evaluate(n, ctx)
	if err != nil {
		return "", err
	}
	key, ok := v.AsString()
	if !ok {
		return "", fmt.Errorf("%w: key must be a string, got %v", ErrInvalidExpression, v.Kind())
	}
	return key, nil
}

func get(args []Node, ctx Context) (Value, error) {
	if err := arity(args, 1); err != nil {
		return Null, err
	}
	key, err := keyOperand(args[0], ctx)
	if err != nil {
		return Null, err
	}
	v, _ := ctx.attribute(key)
	return v, nil
}

func has(args []Node, ctx Context) (Value, error) {
	if err := arity(args, 1); err != nil {
		return Null, err
	}
	key, err := keyOperand(args[0], ctx)
	if err != nil {
		return Null, err
	}
	_, ok := ctx.attribute(key)
	return Bool(ok), nil
}

func negate(op operator) operator {
	return func(args []Node, ctx Context) (Value, error) {
		v, err := op(args, ctx)
		if err != nil {
			return Null, err
		}
		return Bool(!v.Truthy()), nil
	}
}

func in(args []Node, ctx Context) (Value, error) {
	if err := arity(args, 2); err != nil {
		return Null, err
	}

	if key, ok := attributeKey(args[0]); ok {
		needle, _ := ctx.attribute(key)
		for _, a := range args[1:] {
			candidate, err := Evaluate(a, ctx)
			if err != nil {
				return Null, err
			}
			if candidate.Equal(needle) {
				return Bool(true), nil
			}
		}
		return Bool(false), nil
	}

	needle, err := Evaluate(args[0], ctx)
	if err != nil {
		return Null, err
	}
	if list, ok := args[1].(*List); ok {
		for _, v := range list.Values {
			if v.Equal(needle) {
				return Bool(true), nil
			}
		}
		return Bool(false), nil
	}

	haystack, err := Evaluate(args[1], ctx)
	if err != nil {
		return Null, err
	}
	if haystack.Kind() == StringKind {
		s, ok := needle.AsString()
		return Bool(ok && strings.Contains(haystack.str, s)), nil
	}
	return Bool(false), nil
}

// operand resolves a comparison operand; in first position a bare string is
// an attribute name and "$type" names the geometry type.
func operand(args []Node, i int, ctx Context) (Value, error) {
	if i == 0 {
		if key, ok := attributeKey(args[0]); ok {
			v, _ := ctx.attribute(key)
			return v, nil
		}
	}
	return Evaluate(args[i], ctx)
}

// order compares two values of the same orderable kind.
func order(a, b Value) (int, bool) {
	switch {
	case a.Kind() == NumberKind && b.Kind() == NumberKind:
		switch {
		case a.num < b.num:
			return -1, true
		case a.num > b.num:
			return 1, true
		default:
			return 0, true
		}
	case a.Kind() == StringKind && b.Kind() == StringKind:
		return strings.Compare(a.str, b.str), true
	default:
		return 0, false
	}
}

func comparator(op string) operator {
	return func(args []Node, ctx Context) (Value, error) {
		if err := arity(args, 2); err != nil {
			return Null, err
		}
		a, err := operand(args, 0, ctx)
		if err != nil {
			return Null, err
		}
		b, err := operand(args, 1, ctx)
		if err != nil {
			return Null, err
		}

		switch op {
		case "==":
			return Bool(a.Equal(b)), nil
		case "!=":
			return Bool(!a.Equal(b)), nil
		}

		c, ok := order(a, b)
		if !ok {
			return Bool(false), nil
		}
		switch op {
		case "<":
			return Bool(c < 0), nil
		case "<=":
			return Bool(c <= 0), nil
		case ">":
			return Bool(c > 0), nil
		default:
			return Bool(c >= 0), nil
		}
	}
}

func all(args []Node, ctx Context) (Value, error) {
	result := true
	for _, a := range args {
		v, err := Evaluate(a, ctx)
		if err != nil {
			return Null, err
		}
		result = result && v.Truthy()
	}
	return Bool(result), nil
}

func anyOf(args []Node, ctx Context) (Value, error) {
	result := false
	for _, a := range args {
		v, err := Evaluate(a, ctx)
		if err != nil {
			return Null, err
		}
		result = result || v.Truthy()
	}
	return Bool(result), nil
}

func not(args []Node, ctx Context) (Value, error) {
	if err := arity(args, 1); err != nil {
		return Null, err
	}
	v, err := Evaluate(args[0], ctx)
	if err != nil {
		return Null, err
	}
	return Bool(!v.Truthy()), nil
}

func caseOf(args []Node, ctx Context) (Value, error) {
	i := 0
	for ; i+1 < len(args); i += 2 {
		cond, err := Evaluate(args[i], ctx)
		if err != nil {
			return Null, err
		}
		if cond.Truthy() {
			return Evaluate(args[i+1], ctx)
		}
	}
	if i < len(args) {
		return Evaluate(args[i], ctx)
	}
	return Null, nil
}

func coalesce(args []Node, ctx Context) (Value, error) {
	for _, a := range args {
		v, err := Evaluate(a, ctx)
		if err != nil {
			return Null, err
		}
		if !v.IsNull() {
			return v, nil
		}
	}
	return Null, nil
}

func match(args []Node, ctx Context) (Value, error) {
	if err := arity(args, 2); err != nil {
		return Null, err
	}
	input, err := Evaluate(args[0], ctx)
	if err != nil {
		return Null, err
	}

	rest := args[1:]
	i := 0
	for ; i+1 < len(rest); i += 2 {
		if matchesLabel(rest[i], input, ctx) {
			return Evaluate(rest[i+1], ctx)
		}
	}
	if i < len(rest) {
		return Evaluate(rest[i], ctx)
	}
	return Null, nil
}

func matchesLabel(label Node, input Value, ctx Context) bool {
	if list, ok := label.(*List); ok {
		for _, v := range list.Values {
			if v.Equal(input) {
				return true
			}
		}
		return false
	}
	v, err := Evaluate(label, ctx)
	return err == nil && v.Equal(input)
}

func zoom(args []Node, ctx Context) (Value, error) {
	return Number(ctx.ViewportZoom), nil
}

func toString(args []Node, ctx Context) (Value, error) {
	if err := arity(args, 1); err != nil {
		return Null, err
	}
	v, err := Evaluate(args[0], ctx)
	if err != nil {
		return Null, err
	}
	s, _ := v.AsString()
	return String(s), nil
}

// interpolate evaluates ["interpolate", type, input, z1, v1, z2, v2, ...].
// The interpolation type is accepted but every curve is linear. Inputs
// outside the stop range clamp to the nearest stop.
func interpolate(args []Node, ctx Context) (Value, error) {
	if err := arity(args, 4); err != nil {
		return Null, err
	}

	input, err := Evaluate(args[1], ctx)
	if err != nil {
		return Null, err
	}
	x, ok := input.AsNumber()
	if !ok {
		return Null, fmt.Errorf("%w: interpolation input is %v", ErrInvalidExpression, input.Kind())
	}

	stops := args[2:]
	if len(stops)%2 != 0 {
		return Null, fmt.Errorf("%w: stops must come in pairs", ErrInvalidExpression)
	}
	inputs := make([]float64, 0, len(stops)/2)
	for i := 0; i < len(stops); i += 2 {
		lit, ok := stops[i].(*Literal)
		if !ok {
			return Null, fmt.Errorf("%w: stop input must be a number literal", ErrInvalidExpression)
		}
		z, ok := lit.Value.AsNumber()
		if !ok {
			return Null, fmt.Errorf("%w: stop input must be a number literal", ErrInvalidExpression)
		}
		inputs = append(inputs, z)
	}

	last := len(inputs) - 1
	if x <= inputs[0] {
		return Evaluate(stops[1], ctx)
	}
	if x >= inputs[last] {
		return Evaluate(stops[2*last+1], ctx)
	}

	i := 0
	for i < last && !(x < inputs[i+1]) {
		i++
	}
	lower, err := Evaluate(stops[2*i+1], ctx)
	if err != nil {
		return Null, err
	}
	upper, err := Evaluate(stops[2*i+3], ctx)
	if err != nil {
		return Null, err
	}
	t := (x - inputs[i]) / (inputs[i+1] - inputs[i])
	return Lerp(lower, upper, t), nil
}

// Lerp blends numbers and colors linearly. Other kinds step: the lower value
// is kept until the upper stop is reached.
func Lerp(a, b Value, t float64) Value {
	if t == 0 {
		return a
	}
	switch {
	case a.Kind() == NumberKind && b.Kind() == NumberKind:
		return Number(a.num + (b.num-a.num)*t)
	case a.Kind() == ColorKind && b.Kind() == ColorKind:
		return ColorValue(a.color.Lerp(b.color, t))
	default:
		return a
	}
}
