package expr

import (
	"errors"
	"fmt"
)

var (
	ErrUnknownOperator   = errors.New("expr: unknown operator")
	ErrInvalidExpression = errors.New("expr: invalid expression")
)

// Node is a parsed expression tree element: a *Literal, a *List or a *Call.
type Node interface {
	node()
}

// Literal is a scalar operand.
type Literal struct {
	Value Value
}

// List is an array of scalars used as a collection operand (match labels,
// the haystack of "in").
type List struct {
	Values []Value
}

// Call applies an operator to its operands.
type Call struct {
	Op   string
	Args []Node
}

func (*Literal) node() {}
func (*List) node()    {}
func (*Call) node()    {}

// IsExpression reports whether a decoded JSON value has the shape of an
// expression: an array whose first element is an operator name.
func IsExpression(raw any) bool {
	arr, ok := raw.([]any)
	if !ok || len(arr) == 0 {
		return false
	}
	_, ok = arr[0].(string)
	return ok
}

// Parse builds a Node from a value decoded by encoding/json. Operators are
// not checked here; an unknown operator fails when evaluated.
func Parse(raw any) (Node, error) {
	arr, ok := raw.([]any)
	if !ok {
		v, ok := FromJSON(raw)
		if !ok {
			return nil, fmt.Errorf("%w: unsupported operand %T", ErrInvalidExpression, raw)
		}
		return &Literal{Value: v}, nil
	}

	if !IsExpression(arr) {
		return parseList(arr)
	}

	op := arr[0].(string)
	operands := arr[1:]

	switch op {
	case "literal":
		if len(operands) != 1 {
			return nil, fmt.Errorf("%w: literal takes one operand", ErrInvalidExpression)
		}
		if inner, ok := operands[0].([]any); ok {
			return parseList(inner)
		}
		return Parse(operands[0])
	case "match":
		return parseMatch(operands)
	}

	call := &Call{Op: op, Args: make([]Node, 0, len(operands))}
	for i, operand := range operands {
		n, err := Parse(operand)
		if err != nil {
			return nil, fmt.Errorf("%s operand %d: %w", op, i, err)
		}
		call.Args = append(call.Args, n)
	}
	return call, nil
}

func parseList(arr []any) (*List, error) {
	list := &List{Values: make([]Value, 0, len(arr))}
	for _, item := range arr {
		v, ok := FromJSON(item)
		if !ok {
			return nil, fmt.Errorf("%w: nested collection", ErrInvalidExpression)
		}
		list.Values = append(list.Values, v)
	}
	return list, nil
}

// parseMatch keeps label positions as literal collections so that an array
// label such as ["park", "forest"] is not mistaken for an operator call.
func parseMatch(operands []any) (Node, error) {
	if len(operands) < 2 {
		return nil, fmt.Errorf("%w: match needs an input and a default", ErrInvalidExpression)
	}
	call := &Call{Op: "match", Args: make([]Node, 0, len(operands))}

	input, err := Parse(operands[0])
	if err != nil {
		return nil, fmt.Errorf("match input: %w", err)
	}
	call.Args = append(call.Args, input)

	rest := operands[1:]
	for i, operand := range rest {
		isLabel := i%2 == 0 && i != len(rest)-1
		var n Node
		if label, ok := operand.([]any); ok && isLabel {
			n, err = parseList(label)
		} else {
			n, err = Parse(operand)
		}
		if err != nil {
			return nil, fmt.Errorf("match operand %d: %w", i+1, err)
		}
		call.Args = append(call.Args, n)
	}
	return call, nil
}

// MapLiterals returns a copy of n with every literal passed through f. The
// style layer uses it to turn color strings into color values up front.
func MapLiterals(n Node, f func(Value) Value) Node {
	switch n := n.(type) {
	case *Literal:
		return &Literal{Value: f(n.Value)}
	case *List:
		out := &List{Values: make([]Value, len(n.Values))}
		for i, v := range n.Values {
			out.Values[i] = f(v)
		}
		return out
	case *Call:
		out := &Call{Op: n.Op, Args: make([]Node, len(n.Args))}
		for i, a := range n.Args {
			out.Args[i] = MapLiterals(a, f)
		}
		return out
	default:
		return n
	}
}
