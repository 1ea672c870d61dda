package convert

import (
	"context"
	"fmt"
	"os"
	"strconv"
)

// Ghostscript drives gs for PDF/A normalization and first-page rasterization.
type Ghostscript struct {
	Bin    string
	DPI    int
	Runner Runner
}

// NewGhostscript returns a Ghostscript adapter rendering rasters at dpi.
func NewGhostscript(bin string, dpi int, runner Runner) *Ghostscript {
	if bin == "" {
		bin = "gs"
	}
	if dpi <= 0 {
		dpi = 150
	}
	return &Ghostscript{Bin: bin, DPI: dpi, Runner: runner}
}

// NormalizeToPDFA rewrites in as a PDF/A document at out.
func (g *Ghostscript) NormalizeToPDFA(ctx context.Context, in, out string) error {
	args := []string{
		"-dPDFA",
		"-dBATCH",
		"-dNOPAUSE",
		"-dSAFER",
		"-sDEVICE=pdfwrite",
		"-sColorConversionStrategy=UseDeviceIndependentColor",
		"-dPDFACompatibilityPolicy=1",
		"-sOutputFile=" + out,
		in,
	}
	if _, err := g.Runner.Run(ctx, g.Bin, args...); err != nil {
		return err
	}
	return g.expectOutput(out)
}

// RasterizeFirstPage renders page one of in as a 24-bit PNG at out.
func (g *Ghostscript) RasterizeFirstPage(ctx context.Context, in, out string) error {
	args := []string{
		"-dNOPAUSE",
		"-dBATCH",
		"-dSAFER",
		"-sDEVICE=png16m",
		"-dFirstPage=1",
		"-dLastPage=1",
		"-r" + strconv.Itoa(g.DPI),
		"-sOutputFile=" + out,
		in,
	}
	if _, err := g.Runner.Run(ctx, g.Bin, args...); err != nil {
		return err
	}
	return g.expectOutput(out)
}

func (g *Ghostscript) expectOutput(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return &ToolError{Tool: g.Bin, Err: fmt.Errorf("expected output missing: %w", err)}
	}
	if info.Size() == 0 {
		return &ToolError{Tool: g.Bin, Err: fmt.Errorf("empty output %s", path)}
	}
	return nil
}
