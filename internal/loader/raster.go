package loader

import (
	"bytes"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"

	_ "golang.org/x/image/webp"
)

// RasterDecoder turns raster tile bytes into an image.
type RasterDecoder func(data []byte) (image.Image, error)

// DecodeImage decodes PNG, JPEG and WebP raster tiles.
func DecodeImage(data []byte) (image.Image, error) {
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to decode raster tile: %w", err)
	}
	return img, nil
}
