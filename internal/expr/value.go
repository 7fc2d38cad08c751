package expr

import (
	"fmt"
	"strconv"
)

// Kind enumerates the variants a Value can hold.
type Kind int

const (
	NullKind Kind = iota
	NumberKind
	StringKind
	BoolKind
	ColorKind
)

func (k Kind) String() string {
	switch k {
	case NullKind:
		return "null"
	case NumberKind:
		return "number"
	case StringKind:
		return "string"
	case BoolKind:
		return "boolean"
	case ColorKind:
		return "color"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Color is a straight-alpha RGBA color with components in [0, 1].
type Color struct {
	R, G, B, A float64
}

// Lerp mixes c towards o by t.
func (c Color) Lerp(o Color, t float64) Color {
	return Color{
		R: c.R + (o.R-c.R)*t,
		G: c.G + (o.G-c.G)*t,
		B: c.B + (o.B-c.B)*t,
		A: c.A + (o.A-c.A)*t,
	}
}

// Value is the dynamically typed result of evaluating an expression. The
// zero Value is Null.
type Value struct {
	kind  Kind
	num   float64
	str   string
	flag  bool
	color Color
}

var Null = Value{}

func Number(n float64) Value { return Value{kind: NumberKind, num: n} }
func String(s string) Value  { return Value{kind: StringKind, str: s} }
func Bool(b bool) Value      { return Value{kind: BoolKind, flag: b} }
func ColorValue(c Color) Value {
	return Value{kind: ColorKind, color: c}
}

func (v Value) Kind() Kind   { return v.kind }
func (v Value) IsNull() bool { return v.kind == NullKind }

// AsNumber returns numbers as is, booleans as 0/1 and strings that parse as
// floats. Other kinds report false.
func (v Value) AsNumber() (float64, bool) {
	switch v.kind {
	case NumberKind:
		return v.num, true
	case BoolKind:
		if v.flag {
			return 1, true
		}
		return 0, true
	case StringKind:
		n, err := strconv.ParseFloat(v.str, 64)
		return n, err == nil
	default:
		return 0, false
	}
}

// AsString returns strings as is and formats numbers and booleans. Null and
// colors report false.
func (v Value) AsString() (string, bool) {
	switch v.kind {
	case StringKind:
		return v.str, true
	case NumberKind:
		return strconv.FormatFloat(v.num, 'f', -1, 64), true
	case BoolKind:
		return strconv.FormatBool(v.flag), true
	default:
		return "", false
	}
}

// AsBool only accepts booleans.
func (v Value) AsBool() (bool, bool) {
	if v.kind != BoolKind {
		return false, false
	}
	return v.flag, true
}

// AsColor only accepts colors. String color literals are parsed by the style
// layer, not here.
func (v Value) AsColor() (Color, bool) {
	if v.kind != ColorKind {
		return Color{}, false
	}
	return v.color, true
}

// Truthy is the boolean reading used by conditions: false, null, zero and the
// empty string are false.
func (v Value) Truthy() bool {
	switch v.kind {
	case BoolKind:
		return v.flag
	case NumberKind:
		return v.num != 0
	case StringKind:
		return v.str != ""
	case ColorKind:
		return true
	default:
		return false
	}
}

// Equal compares kind and payload.
func (v Value) Equal(o Value) bool {
	if v.kind != o.kind {
		return false
	}
	switch v.kind {
	case NullKind:
		return true
	case NumberKind:
		return v.num == o.num
	case StringKind:
		return v.str == o.str
	case BoolKind:
		return v.flag == o.flag
	case ColorKind:
		return v.color == o.color
	default:
		return false
	}
}

func (v Value) String() string {
	switch v.kind {
	case NullKind:
		return "null"
	case ColorKind:
		return fmt.Sprintf("rgba(%g, %g, %g, %g)", v.color.R*255, v.color.G*255, v.color.B*255, v.color.A)
	case StringKind:
		return strconv.Quote(v.str)
	default:
		s, _ := v.AsString()
		return s
	}
}

// FromJSON converts a decoded JSON scalar into a Value. Arrays and objects
// are not scalars and report false.
func FromJSON(raw any) (Value, bool) {
	switch x := raw.(type) {
	case nil:
		return Null, true
	case float64:
		return Number(x), true
	case string:
		return String(x), true
	case bool:
		return Bool(x), true
	case int:
		return Number(float64(x)), true
	case int64:
		return Number(float64(x)), true
	case int32:
		return Number(float64(x)), true
	case uint64:
		return Number(float64(x)), true
	case uint32:
		return Number(float64(x)), true
	case float32:
		return Number(float64(x)), true
	default:
		return Null, false
	}
}
