package convert

import (
	"bytes"
	"fmt"
	"image"

	"github.com/chai2010/webp"
	"github.com/disintegration/imaging"
)

// ThumbnailRenderer scales a first-page raster into a bounded WebP image.
type ThumbnailRenderer struct {
	MaxEdge int
	Quality float32
}

// NewThumbnailRenderer returns a renderer fitting images inside maxEdge×maxEdge.
func NewThumbnailRenderer(maxEdge, quality int) *ThumbnailRenderer {
	if maxEdge <= 0 {
		maxEdge = 500
	}
	if quality <= 0 || quality > 100 {
		quality = 75
	}
	return &ThumbnailRenderer{MaxEdge: maxEdge, Quality: float32(quality)}
}

// Render decodes the raster at path and returns WebP bytes. Aspect ratio is preserved and
// images already inside the bounds are not enlarged.
func (r *ThumbnailRenderer) Render(path string) ([]byte, error) {
	src, err := imaging.Open(path)
	if err != nil {
		return nil, fmt.Errorf("decode raster: %w", err)
	}
	return r.Encode(src)
}

// Encode scales img and encodes it as WebP.
func (r *ThumbnailRenderer) Encode(img image.Image) ([]byte, error) {
	bounds := img.Bounds()
	if bounds.Dx() > r.MaxEdge || bounds.Dy() > r.MaxEdge {
		img = imaging.Fit(img, r.MaxEdge, r.MaxEdge, imaging.Lanczos)
	}

	var buf bytes.Buffer
	if err := webp.Encode(&buf, img, &webp.Options{Quality: r.Quality}); err != nil {
		return nil, fmt.Errorf("encode webp: %w", err)
	}
	return buf.Bytes(), nil
}
