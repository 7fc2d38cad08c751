// Package map_renderer turns a viewport request into a PNG: it asks the
// loader for the visible tiles, optionally waits for them, and draws what is
// loaded with the style sheet.
package map_renderer

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"math"
	"time"

	"go.uber.org/zap"

	"vectormap/internal/expr"
	"vectormap/internal/loader"
	"vectormap/internal/render"
	"vectormap/internal/render/ggcanvas"
	"vectormap/internal/style"
	"vectormap/internal/tile"
)

const (
	// DesiredTileSize is the on-screen pixel size the map zoom is chosen for.
	DesiredTileSize = 512
	MaxImageSize    = 4096
	// MaxViewportZoom leaves room to magnify the deepest tiles well past
	// their native size; beyond it label geometry stops being finite.
	MaxViewportZoom = tile.MaxZoom + 8
)

var (
	ErrInvalidRequest = errors.New("invalid render request")
	ErrStyleNotFound  = errors.New("style not found")
)

// Missing tiles leave this color showing.
var clearColor = expr.Color{R: 221.0 / 255, G: 221.0 / 255, B: 221.0 / 255, A: 1}

type StyleSource interface {
	GetStyleByID(id string) (*style.Sheet, bool)
}

type Request struct {
	X, Y   float64
	Zoom   float64
	Width  int
	Height int
	Style  string
	// Wait bounds how long to wait for missing tiles. Zero renders what is
	// loaded right now.
	Wait time.Duration
}

type Result struct {
	Data     []byte
	ETag     string
	Size     int
	MapZoom  int
	Tiles    int
	Missing  int
	Labels   int
	Complete bool
}

type Renderer struct {
	loader       *loader.Loader
	styles       StyleSource
	fonts        *ggcanvas.Fonts
	defaultStyle string
	logger       *zap.Logger
}

func New(l *loader.Loader, styles StyleSource, fonts *ggcanvas.Fonts, defaultStyle string, logger *zap.Logger) *Renderer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Renderer{
		loader:       l,
		styles:       styles,
		fonts:        fonts,
		defaultStyle: defaultStyle,
		logger:       logger,
	}
}

func (r *Renderer) validate(req *Request) error {
	if req.Style == "" {
		req.Style = r.defaultStyle
	}
	switch {
	case math.IsNaN(req.X) || req.X < 0 || req.X > 1,
		math.IsNaN(req.Y) || req.Y < 0 || req.Y > 1:
		return fmt.Errorf("%w: center must lie in [0, 1]", ErrInvalidRequest)
	case math.IsNaN(req.Zoom) || req.Zoom < 0 || req.Zoom > MaxViewportZoom:
		return fmt.Errorf("%w: zoom must lie in [0, %d]", ErrInvalidRequest, MaxViewportZoom)
	case req.Width <= 0 || req.Height <= 0 || req.Width > MaxImageSize || req.Height > MaxImageSize:
		return fmt.Errorf("%w: size must be between 1 and %d pixels", ErrInvalidRequest, MaxImageSize)
	case req.Wait < 0:
		return fmt.Errorf("%w: negative wait", ErrInvalidRequest)
	}
	return nil
}

// RenderPNG draws one frame. Tiles that are not loaded by the time drawing
// starts are requested and left blank; Result.Complete reports whether every
// visible tile was terminal. Only complete frames get an ETag.
func (r *Renderer) RenderPNG(ctx context.Context, req Request) (*Result, error) {
	if err := r.validate(&req); err != nil {
		return nil, err
	}
	sheet, ok := r.styles.GetStyleByID(req.Style)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrStyleNotFound, req.Style)
	}

	vp := tile.Viewport{X: req.X, Y: req.Y, Zoom: req.Zoom, Width: req.Width, Height: req.Height}
	mapZoom := tile.MapZoomForPixelSize(req.Width, req.Height, req.Zoom, DesiredTileSize)
	coords := vp.Visible(mapZoom)

	var snap loader.Snapshot
	if req.Wait > 0 {
		waitCtx, cancel := context.WithTimeout(ctx, req.Wait)
		var err error
		snap, err = r.loader.Await(waitCtx, coords)
		cancel()
		// A missed deadline still renders what arrived.
		if errors.Is(err, loader.ErrCancelled) {
			return nil, err
		}
	} else {
		snap = r.loader.RequestTiles(coords, nil, true)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	canvas := ggcanvas.New(req.Width, req.Height, r.fonts, clearColor, r.logger)
	defer canvas.Close()

	res := render.Render(render.Frame{
		Viewport: vp,
		MapZoom:  mapZoom,
		Tiles:    coords,
		Vector:   snap.Vector,
		Raster:   snap.Raster,
		Style:    sheet,
	}, canvas, r.fonts)

	var buf bytes.Buffer
	if err := canvas.EncodePNG(&buf); err != nil {
		return nil, err
	}

	complete := len(snap.States) == len(coords)*len(r.loader.Kinds())
	result := &Result{
		Data:     buf.Bytes(),
		Size:     buf.Len(),
		MapZoom:  mapZoom,
		Tiles:    len(coords),
		Missing:  len(res.Missing),
		Labels:   len(res.Labels),
		Complete: complete,
	}
	if complete {
		result.ETag = generateETag(req, sheet.Digest, mapZoom)
	}

	r.logger.Debug("Rendered map",
		zap.String("style", req.Style),
		zap.Int("map_zoom", mapZoom),
		zap.Int("tiles", len(coords)),
		zap.Int("missing", len(res.Missing)),
		zap.Int("labels", len(res.Labels)),
		zap.Int("rejected_labels", res.Rejected),
		zap.Bool("complete", complete),
	)
	return result, nil
}

// generateETag covers the sheet digest so an edited or rescanned style never
// revalidates against frames drawn with the old one.
func generateETag(req Request, digest string, mapZoom int) string {
	keyStr := fmt.Sprintf("%s@%s_%d/%g/%g/%g_%dx%d", req.Style, digest, mapZoom, req.Zoom, req.X, req.Y, req.Width, req.Height)
	hash := sha256.Sum256([]byte(keyStr))
	return hex.EncodeToString(hash[:])[:16]
}
