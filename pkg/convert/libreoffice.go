package convert

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
)

// LibreOffice converts office documents to PDF with a headless soffice process.
type LibreOffice struct {
	Bin    string
	Runner Runner
}

// NewLibreOffice returns a converter invoking bin through runner.
func NewLibreOffice(bin string, runner Runner) *LibreOffice {
	if bin == "" {
		bin = "libreoffice"
	}
	return &LibreOffice{Bin: bin, Runner: runner}
}

// ConvertToPDF writes <outDir>/<source stem>.pdf and returns its path. Each call uses a
// private user profile inside outDir so parallel conversions do not share lock files.
func (l *LibreOffice) ConvertToPDF(ctx context.Context, src, outDir string) (string, error) {
	profile := filepath.Join(outDir, "lo-profile")
	if err := os.MkdirAll(profile, 0o700); err != nil {
		return "", fmt.Errorf("prepare libreoffice profile: %w", err)
	}
	absProfile, err := filepath.Abs(profile)
	if err != nil {
		return "", err
	}
	profileURL := url.URL{Scheme: "file", Path: filepath.ToSlash(absProfile)}

	args := []string{
		"-env:UserInstallation=" + profileURL.String(),
		"--headless",
		"--convert-to", "pdf",
		"--outdir", outDir,
		src,
	}
	if _, err := l.Runner.Run(ctx, l.Bin, args...); err != nil {
		return "", err
	}

	stem := strings.TrimSuffix(filepath.Base(src), filepath.Ext(src))
	out := filepath.Join(outDir, stem+".pdf")
	if _, err := os.Stat(out); err != nil {
		return "", &ToolError{Tool: l.Bin, Err: fmt.Errorf("expected output %s missing: %w", filepath.Base(out), err)}
	}
	return out, nil
}
