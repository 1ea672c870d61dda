package config

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	chdirTemp(t)

	cfg, err := Load()
	require.NoError(t, err)
	require.Equal(t, QueueBackendMemory, cfg.Pipeline.QueueBackend)
	require.Equal(t, 0, cfg.Pipeline.MaxRetries)
	require.Equal(t, 90*time.Second, cfg.Tools.Timeout)
	require.Equal(t, 500, cfg.Tools.ThumbnailMaxEdge)
	require.Equal(t, 75, cfg.Tools.ThumbnailQuality)
	require.Contains(t, cfg.Storage.AllowedMIMEs, "application/pdf")
}

func TestLoadOverrides(t *testing.T) {
	chdirTemp(t)
	t.Setenv("QUEUE_BACKEND", "Redis")
	t.Setenv("UPLOAD_ALLOWED_MIME_TYPES", "application/pdf, image/png")
	t.Setenv("TOOLS_TIMEOUT", "bogus")

	cfg, err := Load()
	require.NoError(t, err)
	require.Equal(t, QueueBackendRedis, cfg.Pipeline.QueueBackend)
	require.Equal(t, []string{"application/pdf", "image/png"}, cfg.Storage.AllowedMIMEs)
	require.Equal(t, 90*time.Second, cfg.Tools.Timeout)
}

func chdirTemp(t *testing.T) {
	t.Helper()
	wd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(t.TempDir()))
	t.Cleanup(func() { _ = os.Chdir(wd) })
}
