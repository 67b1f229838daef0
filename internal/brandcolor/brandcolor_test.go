package brandcolor

import (
	"bytes"
	"image"
	"image/color"
	"image/png"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func encodePNG(t *testing.T, img image.Image) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

// split paints the first `share` columns out of 100 with a and the rest with b.
func split(a, b color.Color, share int) image.Image {
	img := image.NewRGBA(image.Rect(0, 0, 100, 100))
	for y := 0; y < 100; y++ {
		for x := 0; x < 100; x++ {
			if x < share {
				img.Set(x, y, a)
			} else {
				img.Set(x, y, b)
			}
		}
	}
	return img
}

func TestExtractTwoColorLogo(t *testing.T) {
	red := color.RGBA{R: 255, A: 255}
	blue := color.RGBA{B: 255, A: 255}

	colors := New(Options{}).Extract(encodePNG(t, split(red, blue, 50)))

	assert.ElementsMatch(t, []string{"#ff0000", "#0000ff"}, colors)
}

func TestExtractOrdersByClusterSize(t *testing.T) {
	green := color.RGBA{G: 200, A: 255}
	orange := color.RGBA{R: 250, G: 120, A: 255}

	colors := New(Options{}).Extract(encodePNG(t, split(orange, green, 25)))

	require.Len(t, colors, 2)
	assert.Equal(t, "#00c800", colors[0])
	assert.Equal(t, "#fa7800", colors[1])
}

func TestExtractIgnoresBackgroundUnlessAlone(t *testing.T) {
	white := color.RGBA{R: 255, G: 255, B: 255, A: 255}
	purple := color.RGBA{R: 120, B: 160, A: 255}

	assert.Equal(t, []string{"#7800a0"}, New(Options{}).Extract(encodePNG(t, split(purple, white, 10))))
	assert.Equal(t, []string{"#ffffff"}, New(Options{}).Extract(encodePNG(t, split(white, white, 50))))
}

func TestExtractManyColorsIsBoundedAndDeterministic(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 64, 64))
	for y := 0; y < 64; y++ {
		for x := 0; x < 64; x++ {
			img.Set(x, y, color.RGBA{R: uint8(x * 4), G: uint8(y * 4), B: 128, A: 255})
		}
	}
	data := encodePNG(t, img)

	first := New(Options{}).Extract(data)
	second := New(Options{}).Extract(data)

	assert.Len(t, first, DefaultColors)
	assert.Equal(t, first, second)
	for _, c := range first {
		assert.Regexp(t, `^#[0-9a-f]{6}$`, c)
	}
}

func TestExtractCorruptInputReturnsDefaults(t *testing.T) {
	e := New(Options{})
	assert.Equal(t, DefaultPalette, e.Extract([]byte("not a png")))
	assert.Equal(t, DefaultPalette, e.Extract([]byte{0x89, 'P', 'N', 'G', 0, 0}))
	assert.Equal(t, DefaultPalette, e.Extract(nil))
}

func TestDefaultsIsACopy(t *testing.T) {
	d := Defaults()
	d[0] = "#000000"
	assert.Equal(t, "#1a1a1a", DefaultPalette[0])
}
