package convert

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/jung-kurt/gofpdf"
)

var imageTypes = map[string]string{
	"image/png":  "PNG",
	"image/jpeg": "JPG",
	"image/gif":  "GIF",
}

// ImagePDF wraps a single raster image into a one-page PDF sized to the image.
type ImagePDF struct{}

// NewImagePDF constructs an in-process image converter.
func NewImagePDF() *ImagePDF {
	return &ImagePDF{}
}

// Supports reports whether contentType can be embedded directly.
func (ImagePDF) Supports(contentType string) bool {
	_, ok := imageTypes[contentType]
	return ok
}

// ConvertToPDF writes <outDir>/<source stem>.pdf.
func (c ImagePDF) ConvertToPDF(ctx context.Context, src, contentType, outDir string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	imageType, ok := imageTypes[contentType]
	if !ok {
		return "", fmt.Errorf("image type %s not supported", contentType)
	}

	pdf := gofpdf.New("P", "pt", "A4", "")
	opts := gofpdf.ImageOptions{ImageType: imageType}
	info := pdf.RegisterImageOptions(src, opts)
	if err := pdf.Error(); err != nil {
		return "", fmt.Errorf("read image: %w", err)
	}
	wd, ht := info.Extent()
	orientation := "P"
	if wd > ht {
		orientation = "L"
	}
	pdf.AddPageFormat(orientation, gofpdf.SizeType{Wd: wd, Ht: ht})
	pdf.ImageOptions(src, 0, 0, wd, ht, false, opts, 0, "")

	stem := strings.TrimSuffix(filepath.Base(src), filepath.Ext(src))
	out := filepath.Join(outDir, stem+".pdf")
	if err := pdf.OutputFileAndClose(out); err != nil {
		return "", fmt.Errorf("render image pdf: %w", err)
	}
	return out, nil
}
