package loader

import (
	"errors"
	"fmt"
)

var (
	ErrCancelled = errors.New("loader: cancelled")
	ErrNotFound  = errors.New("loader: tile not found")
)

// State is the loading state of one (coordinate, kind) pair. An entry is
// created Pending and moves exactly once to one of the terminal states.
type State int

const (
	Pending State = iota
	Ok
	ParsingFailed
	Cancelled
	UnknownError
)

func (s State) String() string {
	switch s {
	case Pending:
		return "pending"
	case Ok:
		return "ok"
	case ParsingFailed:
		return "parsing_failed"
	case Cancelled:
		return "cancelled"
	case UnknownError:
		return "unknown_error"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

func (s State) Terminal() bool {
	return s != Pending
}

func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}
