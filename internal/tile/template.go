package tile

import (
	"errors"
	"fmt"
	"path/filepath"
	"strconv"
	"strings"
)

var ErrInvalidTemplate = errors.New("tile: invalid url template")

// ValidateTemplate checks that all of {z}, {x} and {y} appear in template.
func ValidateTemplate(template string) error {
	for _, p := range []string{"{z}", "{x}", "{y}"} {
		if !strings.Contains(template, p) {
			return fmt.Errorf("%w: placeholder %v not found", ErrInvalidTemplate, p)
		}
	}
	return nil
}

// NeedsKey reports whether template carries a {key} placeholder.
func NeedsKey(template string) bool {
	return strings.Contains(template, "{key}")
}

// FormatURL substitutes the coordinate into template.
func FormatURL(template string, c Coord) string {
	url := strings.ReplaceAll(template, "{x}", strconv.Itoa(c.X))
	url = strings.ReplaceAll(url, "{y}", strconv.Itoa(c.Y))
	url = strings.ReplaceAll(url, "{z}", strconv.Itoa(c.Z))
	return url
}

// WithKey fills the {key} placeholder of template.
func WithKey(template, key string) string {
	return strings.ReplaceAll(template, "{key}", key)
}

// DiskSubPath is the relative cache path of a tile: <kind>/<z>/<x>/<y>.<ext>.
func DiskSubPath(c Coord, kind Kind) string {
	return filepath.Join(
		kind.String(),
		strconv.Itoa(c.Z),
		strconv.Itoa(c.X),
		strconv.Itoa(c.Y)+"."+kind.Ext(),
	)
}
