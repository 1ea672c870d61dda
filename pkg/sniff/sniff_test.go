package sniff

import (
	"bytes"
	"image"
	"image/color"
	"image/png"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDetectIgnoresDeclaredName(t *testing.T) {
	d := NewDetector()

	assert.Equal(t, "application/pdf", d.Detect([]byte("%PDF-1.7\n%âãÏÓ\n1 0 obj\n")))

	img := image.NewRGBA(image.Rect(0, 0, 2, 2))
	img.Set(0, 0, color.RGBA{R: 255, A: 255})
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	assert.Equal(t, "image/png", d.Detect(buf.Bytes()))

	assert.Equal(t, "text/plain", d.Detect([]byte("just some text")))
}

func TestEssence(t *testing.T) {
	assert.Equal(t, "text/plain", Essence("Text/Plain; charset=utf-8"))
	assert.Equal(t, "", Essence(""))
}

func TestAllowList(t *testing.T) {
	allow := NewAllowList([]string{"application/pdf", "image/png", " "})

	assert.True(t, allow.Allows("application/pdf"))
	assert.True(t, allow.Allows("image/png; foo=bar"))
	assert.False(t, allow.Allows("text/plain"))
	assert.False(t, allow.Allows(""))
	assert.ElementsMatch(t, []string{"application/pdf", "image/png"}, allow.Types())
}
