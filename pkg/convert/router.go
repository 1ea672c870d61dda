package convert

import (
	"context"
	"errors"
	"fmt"
)

// OfficeConverter turns an office-format file into a PDF inside outDir.
type OfficeConverter interface {
	ConvertToPDF(ctx context.Context, src, outDir string) (string, error)
}

// Router picks the PDF producer for a content type. Raster images are tried in-process
// first; images gofpdf cannot embed (16-bit or interlaced PNG, for example) and every
// other type go through the office converter.
type Router struct {
	Office OfficeConverter
	Images *ImagePDF
}

// NewRouter builds a router over the given office converter.
func NewRouter(office OfficeConverter) *Router {
	return &Router{Office: office, Images: NewImagePDF()}
}

// ConvertToPDF implements the pipeline's PDF conversion capability.
func (r *Router) ConvertToPDF(ctx context.Context, src, contentType, outDir string) (string, error) {
	if r.Images == nil || !r.Images.Supports(contentType) {
		if r.Office == nil {
			return "", fmt.Errorf("no converter for %s", contentType)
		}
		return r.Office.ConvertToPDF(ctx, src, outDir)
	}

	out, imgErr := r.Images.ConvertToPDF(ctx, src, contentType, outDir)
	if imgErr == nil {
		return out, nil
	}
	if ctx.Err() != nil || r.Office == nil {
		return "", imgErr
	}
	out, err := r.Office.ConvertToPDF(ctx, src, outDir)
	if err != nil {
		return "", errors.Join(imgErr, err)
	}
	return out, nil
}
