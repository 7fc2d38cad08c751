// Package raster_normalizer resamples raster map tiles with libvips so every
// decoded tile has the same pixel size regardless of what the server sent.
package raster_normalizer

import (
	"bytes"
	"fmt"
	"image"
	"image/jpeg"
	"net/http"
	"os"

	"github.com/cshum/vipsgen/vips"
	"go.uber.org/zap"
)

const DefaultTileSize = 256

type Normalizer struct {
	tileSize int
	quality  int
	tempDir  string
	logger   *zap.Logger
}

// New returns a normalizer producing tileSize×tileSize tiles. libvips must
// already be started.
func New(tileSize int, logger *zap.Logger) *Normalizer {
	if tileSize <= 0 {
		tileSize = DefaultTileSize
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Normalizer{
		tileSize: tileSize,
		quality:  90,
		tempDir:  os.TempDir(),
		logger:   logger,
	}
}

func (n *Normalizer) TileSize() int {
	return n.tileSize
}

// Decode has the shape of loader.RasterDecoder.
func (n *Normalizer) Decode(data []byte) (image.Image, error) {
	out, err := n.Normalize(data)
	if err != nil {
		return nil, err
	}
	img, err := jpeg.Decode(bytes.NewReader(out))
	if err != nil {
		return nil, fmt.Errorf("failed to decode normalized tile: %w", err)
	}
	return img, nil
}

// Normalize scales the longer side of a PNG, JPEG or WebP tile to the tile
// size, pads the rest and returns it as JPEG.
func (n *Normalizer) Normalize(data []byte) ([]byte, error) {
	ext, err := sniffExt(data)
	if err != nil {
		return nil, err
	}

	// The loaders read from paths, so the tile goes through a temp file.
	tmp, err := os.CreateTemp(n.tempDir, "raster_*"+ext)
	if err != nil {
		return nil, fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return nil, fmt.Errorf("failed to write temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return nil, fmt.Errorf("failed to write temp file: %w", err)
	}

	img, err := loadImage(tmpPath, ext)
	if err != nil {
		return nil, fmt.Errorf("failed to open raster tile: %w", err)
	}
	defer img.Close()

	w, h := img.Width(), img.Height()
	if w <= 0 || h <= 0 {
		return nil, fmt.Errorf("invalid raster tile size %dx%d", w, h)
	}

	if w != n.tileSize || h != n.tileSize {
		scale := float64(n.tileSize) / float64(max(w, h))
		resizeOpts := vips.DefaultResizeOptions()
		resizeOpts.Kernel = vips.KernelLanczos3
		if err := img.Resize(scale, resizeOpts); err != nil {
			return nil, fmt.Errorf("failed to resize: %w", err)
		}
		n.logger.Debug("Resampled raster tile",
			zap.Int("width", w),
			zap.Int("height", h),
			zap.Float64("scale", scale))
	}

	// Non-square tiles are anchored top-left, like the grid they came from.
	if img.Width() < n.tileSize || img.Height() < n.tileSize {
		embedOpts := vips.DefaultEmbedOptions()
		embedOpts.Extend = vips.ExtendBackground
		embedOpts.Background = []float64{221, 221, 221} // #ddd
		if err := img.Embed(0, 0, n.tileSize, n.tileSize, embedOpts); err != nil {
			return nil, fmt.Errorf("failed to pad: %w", err)
		}
	}

	jpegOpts := vips.DefaultJpegsaveBufferOptions()
	jpegOpts.Q = n.quality
	jpegOpts.Interlace = false

	out, err := img.JpegsaveBuffer(jpegOpts)
	if err != nil {
		return nil, fmt.Errorf("failed to export: %w", err)
	}
	return out, nil
}

func sniffExt(data []byte) (string, error) {
	switch ct := http.DetectContentType(data); ct {
	case "image/png":
		return ".png", nil
	case "image/jpeg":
		return ".jpg", nil
	case "image/webp":
		return ".webp", nil
	default:
		return "", fmt.Errorf("unsupported raster tile format: %s", ct)
	}
}

func loadImage(path, ext string) (*vips.Image, error) {
	// A tile is read once, top to bottom.
	access := vips.AccessSequential

	switch ext {
	case ".jpg":
		opts := vips.DefaultJpegloadOptions()
		opts.Access = access
		return vips.NewJpegload(path, opts)
	case ".png":
		opts := vips.DefaultPngloadOptions()
		opts.Access = access
		return vips.NewPngload(path, opts)
	case ".webp":
		opts := vips.DefaultWebploadOptions()
		opts.Access = access
		return vips.NewWebpload(path, opts)
	default:
		return nil, fmt.Errorf("unsupported image format: %s", ext)
	}
}
