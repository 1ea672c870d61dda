package convert

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/png"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/chai2010/webp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingRunner struct {
	name   string
	args   []string
	output func(args []string) error
	err    error
}

func (r *recordingRunner) Run(_ context.Context, name string, args ...string) ([]byte, error) {
	r.name = name
	r.args = args
	if r.err != nil {
		return nil, r.err
	}
	if r.output != nil {
		if err := r.output(args); err != nil {
			return nil, err
		}
	}
	return nil, nil
}

func writeOutputArg(args []string) error {
	for _, a := range args {
		if strings.HasPrefix(a, "-sOutputFile=") {
			return os.WriteFile(strings.TrimPrefix(a, "-sOutputFile="), []byte("data"), 0o644)
		}
	}
	return errors.New("no output arg")
}

func TestGhostscriptNormalizeArgs(t *testing.T) {
	dir := t.TempDir()
	runner := &recordingRunner{output: writeOutputArg}
	gs := NewGhostscript("", 0, runner)

	out := filepath.Join(dir, "out.pdf")
	require.NoError(t, gs.NormalizeToPDFA(context.Background(), "in.pdf", out))

	assert.Equal(t, "gs", runner.name)
	assert.Equal(t, []string{
		"-dPDFA", "-dBATCH", "-dNOPAUSE", "-dSAFER", "-sDEVICE=pdfwrite",
		"-sColorConversionStrategy=UseDeviceIndependentColor", "-dPDFACompatibilityPolicy=1",
		"-sOutputFile=" + out, "in.pdf",
	}, runner.args)
}

func TestGhostscriptRasterizeArgs(t *testing.T) {
	dir := t.TempDir()
	runner := &recordingRunner{output: writeOutputArg}
	gs := NewGhostscript("/usr/bin/gs", 150, runner)

	out := filepath.Join(dir, "0000007_temp.png")
	require.NoError(t, gs.RasterizeFirstPage(context.Background(), "archive.pdf", out))
	assert.Contains(t, runner.args, "-sDEVICE=png16m")
	assert.Contains(t, runner.args, "-dFirstPage=1")
	assert.Contains(t, runner.args, "-dLastPage=1")
	assert.Contains(t, runner.args, "-r150")
}

func TestGhostscriptMissingOutputIsToolError(t *testing.T) {
	gs := NewGhostscript("gs", 150, &recordingRunner{})
	err := gs.NormalizeToPDFA(context.Background(), "in.pdf", filepath.Join(t.TempDir(), "out.pdf"))

	var toolErr *ToolError
	require.ErrorAs(t, err, &toolErr)
	assert.Equal(t, "gs", toolErr.Tool)
}

func TestLibreOfficeConvert(t *testing.T) {
	dir := t.TempDir()
	runner := &recordingRunner{output: func(args []string) error {
		return os.WriteFile(filepath.Join(dir, "abc_report.pdf"), []byte("%PDF"), 0o644)
	}}
	lo := NewLibreOffice("", runner)

	out, err := lo.ConvertToPDF(context.Background(), "/originals/abc_report.docx", dir)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "abc_report.pdf"), out)
	assert.Equal(t, "libreoffice", runner.name)
	assert.True(t, strings.HasPrefix(runner.args[0], "-env:UserInstallation=file://"))
	assert.Equal(t, []string{"--headless", "--convert-to", "pdf", "--outdir", dir, "/originals/abc_report.docx"}, runner.args[1:])
}

func TestLibreOfficePropagatesToolError(t *testing.T) {
	runner := &recordingRunner{err: &ToolError{Tool: "libreoffice", ExitCode: 1, Output: "source file could not be loaded"}}
	lo := NewLibreOffice("libreoffice", runner)

	_, err := lo.ConvertToPDF(context.Background(), "broken.docx", t.TempDir())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "exited with status 1")
	assert.Contains(t, err.Error(), "could not be loaded")
}

func TestExecRunnerExitCodeAndTimeout(t *testing.T) {
	if _, err := exec.LookPath("sh"); err != nil {
		t.Skip("sh not available")
	}
	runner := NewExecRunner(time.Second)
	_, err := runner.Run(context.Background(), "sh", "-c", "echo nope >&2; exit 3")
	var toolErr *ToolError
	require.ErrorAs(t, err, &toolErr)
	assert.Equal(t, 3, toolErr.ExitCode)
	assert.Contains(t, toolErr.Output, "nope")

	runner = NewExecRunner(50 * time.Millisecond)
	start := time.Now()
	_, err = runner.Run(context.Background(), "sh", "-c", "exec sleep 5")
	require.ErrorAs(t, err, &toolErr)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, time.Since(start), 4*time.Second)
}

func writePNG(t *testing.T, path string, w, h int) {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for x := 0; x < w; x++ {
		img.Set(x, h/2, color.RGBA{B: 255, A: 255})
	}
	f, err := os.Create(path)
	require.NoError(t, err)
	defer f.Close()
	require.NoError(t, png.Encode(f, img))
}

func TestThumbnailRendererFitsBounds(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "0000001_temp.png")
	writePNG(t, src, 1000, 600)

	data, err := NewThumbnailRenderer(500, 75).Render(src)
	require.NoError(t, err)
	cfg, err := webp.DecodeConfig(bytes.NewReader(data))
	require.NoError(t, err)
	assert.Equal(t, 500, cfg.Width)
	assert.Equal(t, 300, cfg.Height)
}

func TestThumbnailRendererDoesNotUpscale(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 120, 80))
	data, err := NewThumbnailRenderer(500, 75).Encode(img)
	require.NoError(t, err)
	cfg, err := webp.DecodeConfig(bytes.NewReader(data))
	require.NoError(t, err)
	assert.Equal(t, 120, cfg.Width)
	assert.Equal(t, 80, cfg.Height)
}

func TestRouterSendsImagesInProcess(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "abc_scan.png")
	writePNG(t, src, 40, 20)
	office := &recordingRunner{}
	router := NewRouter(NewLibreOffice("libreoffice", office))

	out, err := router.ConvertToPDF(context.Background(), src, "image/png", dir)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "abc_scan.pdf"), out)
	assert.Empty(t, office.name)

	data, err := os.ReadFile(out)
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(data, []byte("%PDF")))
}

func writeGray16PNG(t *testing.T, path string) {
	t.Helper()
	img := image.NewGray16(image.Rect(0, 0, 32, 16))
	for x := 0; x < 32; x++ {
		img.SetGray16(x, x%16, color.Gray16{Y: 0xffff})
	}
	f, err := os.Create(path)
	require.NoError(t, err)
	defer f.Close()
	require.NoError(t, png.Encode(f, img))
}

func TestRouterFallsBackToOfficeForUnembeddableImages(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "abc_scan16.png")
	writeGray16PNG(t, src)
	office := &recordingRunner{output: func(args []string) error {
		return os.WriteFile(filepath.Join(dir, "abc_scan16.pdf"), []byte("%PDF"), 0o644)
	}}
	router := NewRouter(NewLibreOffice("libreoffice", office))

	out, err := router.ConvertToPDF(context.Background(), src, "image/png", dir)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "abc_scan16.pdf"), out)
	assert.Equal(t, "libreoffice", office.name)
	assert.Equal(t, src, office.args[len(office.args)-1])
}

func TestRouterReportsBothFailures(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "abc_scan16.png")
	writeGray16PNG(t, src)
	office := &recordingRunner{err: &ToolError{Tool: "libreoffice", ExitCode: 1, Output: "general input/output error"}}

	_, err := NewRouter(NewLibreOffice("libreoffice", office)).ConvertToPDF(context.Background(), src, "image/png", dir)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "read image")
	assert.Contains(t, err.Error(), "general input/output error")
}
