package cache

import (
	"fmt"

	"vectormap/internal/tile"
)

// Key identifies one stored tile payload.
type Key struct {
	Coord tile.Coord
	Kind  tile.Kind
}

func (k Key) String() string {
	return fmt.Sprintf("%s/%s", k.Kind, k.Coord)
}

// Cache is the byte-level disk tier behind the loader. Writes are
// idempotent overwrites; a failed Set leaves any previous value intact.
type Cache interface {
	Get(key Key) ([]byte, bool)
	Set(key Key, value []byte) error
	Has(key Key) bool // Check if tile exists without reading it (lightweight check)
	Clear() error
	Close() error
}
