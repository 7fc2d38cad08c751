package ggcanvas

import (
	"fmt"
	"math"
	"sync"

	"github.com/gogpu/gg/text"
	"golang.org/x/image/font/gofont/goregular"
)

const (
	// Sizes are rounded to this step before a face is looked up.
	sizeStep = 0.5
	minSize  = 1
	maxSize  = 512
	// maxFaces bounds the face cache; it is emptied when full.
	maxFaces = 64
)

// Fonts hands out faces of one font source by pixel size and measures text
// with them. It is safe for concurrent use.
type Fonts struct {
	source *text.FontSource

	mu    sync.Mutex
	faces map[float64]text.Face
}

// NewFonts parses a TrueType or OpenType font. Nil data selects Go Regular.
func NewFonts(data []byte) (*Fonts, error) {
	if data == nil {
		data = goregular.TTF
	}
	source, err := text.NewFontSource(data)
	if err != nil {
		return nil, fmt.Errorf("failed to load label font: %w", err)
	}
	return &Fonts{source: source, faces: make(map[float64]text.Face)}, nil
}

// Face returns the face for size rounded to the nearest half pixel and
// clamped to a sane range.
func (f *Fonts) Face(size float64) text.Face {
	size = quantizeSize(size)

	f.mu.Lock()
	defer f.mu.Unlock()

	face, ok := f.faces[size]
	if !ok {
		if len(f.faces) >= maxFaces {
			clear(f.faces)
		}
		face = f.source.Face(size)
		f.faces[size] = face
	}
	return face
}

func quantizeSize(size float64) float64 {
	if math.IsNaN(size) {
		return minSize
	}
	size = math.Round(size/sizeStep) * sizeStep
	return min(max(size, minSize), maxSize)
}

func (f *Fonts) Advance(s string, size float64) float64 {
	return f.Face(size).Advance(s)
}

func (f *Fonts) LineHeight(size float64) float64 {
	return f.Face(size).Metrics().LineHeight()
}

func (f *Fonts) Name() string {
	return f.source.Name()
}

func (f *Fonts) Close() error {
	return f.source.Close()
}
