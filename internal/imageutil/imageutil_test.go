package imageutil

import (
	"bytes"
	"errors"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"auto-creative-engine/internal/creative"
)

func pngBytes(t *testing.T, w, h int, c color.Color) []byte {
	t.Helper()
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, c)
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func TestToJPEGFlattensTransparency(t *testing.T) {
	out, err := ToJPEG(pngBytes(t, 8, 4, color.NRGBA{A: 0}))
	require.NoError(t, err)

	img, err := jpeg.Decode(bytes.NewReader(out))
	require.NoError(t, err)
	assert.Equal(t, image.Rect(0, 0, 8, 4), img.Bounds())

	r, g, b, _ := img.At(3, 2).RGBA()
	assert.Greater(t, r>>8, uint32(240))
	assert.Greater(t, g>>8, uint32(240))
	assert.Greater(t, b>>8, uint32(240))
}

func TestToJPEGRejectsGarbage(t *testing.T) {
	_, err := ToJPEG([]byte("definitely not an image"))
	assert.Error(t, err)

	_, err = ToJPEG(nil)
	assert.ErrorIs(t, err, ErrEmptyImage)
}

func TestResize(t *testing.T) {
	img, err := Decode(pngBytes(t, 40, 10, color.NRGBA{R: 255, A: 255}))
	require.NoError(t, err)

	out := Resize(img, 20, 20, nil)
	assert.Equal(t, image.Rect(0, 0, 20, 20), out.Bounds())
	r, _, _, _ := out.At(10, 10).RGBA()
	assert.Greater(t, r, uint32(0xf000))
}

func TestValidateFile(t *testing.T) {
	dir := t.TempDir()

	good := filepath.Join(dir, "logo.png")
	require.NoError(t, os.WriteFile(good, pngBytes(t, 2, 2, color.Black), 0o644))
	assert.NoError(t, ValidateFile("logo", good))

	bad := filepath.Join(dir, "broken.jpg")
	require.NoError(t, os.WriteFile(bad, []byte("nope"), 0o644))

	unsupported := filepath.Join(dir, "logo.bmp")
	require.NoError(t, os.WriteFile(unsupported, pngBytes(t, 2, 2, color.Black), 0o644))

	big := filepath.Join(dir, "big.png")
	require.NoError(t, os.WriteFile(big, make([]byte, MaxFileBytes+1), 0o644))

	for name, path := range map[string]string{
		"missing":     filepath.Join(dir, "missing.png"),
		"directory":   dir,
		"broken":      bad,
		"unsupported": unsupported,
		"too large":   big,
		"empty":       "",
	} {
		err := ValidateFile("logo", path)
		var ve *creative.ValidationError
		require.True(t, errors.As(err, &ve), name)
		assert.Equal(t, "logo", ve.Field, name)
	}
}

func TestLoadReference(t *testing.T) {
	path := filepath.Join(t.TempDir(), "product.png")
	require.NoError(t, os.WriteFile(path, pngBytes(t, 2, 2, color.White), 0o644))

	ref, err := LoadReference(path)
	require.NoError(t, err)
	assert.Equal(t, "image/png", ref.MimeType)
	assert.NotEmpty(t, ref.Data)
}
