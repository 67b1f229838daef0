// Package imageutil decodes, validates and re-encodes images produced by the
// generation backends and supplied by users.
package imageutil

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/jpeg"
	"net/http"
	"os"
	"path/filepath"
	"slices"
	"strings"

	_ "image/gif"
	_ "image/png"

	"golang.org/x/image/draw"
	_ "golang.org/x/image/webp"

	"auto-creative-engine/internal/creative"
)

const (
	JPEGQuality  = 95
	MaxFileBytes = 10 << 20
)

var SupportedExtensions = []string{".jpg", ".jpeg", ".png", ".webp"}

var ErrEmptyImage = errors.New("empty image data")

// ToJPEG decodes any supported format and re-encodes it as a 3-channel JPEG.
// Transparent pixels are flattened onto white.
func ToJPEG(data []byte) ([]byte, error) {
	img, err := Decode(data)
	if err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, flatten(img), &jpeg.Options{Quality: JPEGQuality}); err != nil {
		return nil, fmt.Errorf("encode jpeg: %w", err)
	}
	return buf.Bytes(), nil
}

func Decode(data []byte) (image.Image, error) {
	if len(data) == 0 {
		return nil, ErrEmptyImage
	}
	img, format, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("decode image: %w", err)
	}
	if b := img.Bounds(); b.Dx() == 0 || b.Dy() == 0 {
		return nil, fmt.Errorf("decode image: %s has zero size", format)
	}
	return img, nil
}

func flatten(img image.Image) *image.RGBA {
	b := img.Bounds()
	dst := image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(dst, dst.Bounds(), &image.Uniform{C: color.White}, image.Point{}, draw.Src)
	draw.Draw(dst, dst.Bounds(), img, b.Min, draw.Over)
	return dst
}

// Resize scales img to exactly w×h with the given interpolator.
func Resize(img image.Image, w, h int, interp draw.Interpolator) *image.RGBA {
	if interp == nil {
		interp = draw.ApproxBiLinear
	}
	dst := image.NewRGBA(image.Rect(0, 0, w, h))
	interp.Scale(dst, dst.Bounds(), img, img.Bounds(), draw.Src, nil)
	return dst
}

// ValidateFile checks that path names a readable image of a supported type
// no larger than MaxFileBytes. field is used in the returned ValidationError.
func ValidateFile(field, path string) error {
	path = strings.TrimSpace(path)
	if path == "" {
		return &creative.ValidationError{Field: field, Reason: "path is empty"}
	}

	info, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return &creative.ValidationError{Field: field, Reason: fmt.Sprintf("file not found: %s", path)}
		}
		return &creative.ValidationError{Field: field, Reason: err.Error()}
	}
	if !info.Mode().IsRegular() {
		return &creative.ValidationError{Field: field, Reason: fmt.Sprintf("not a regular file: %s", path)}
	}
	if info.Size() > MaxFileBytes {
		return &creative.ValidationError{Field: field, Reason: fmt.Sprintf("file too large: %.1f MB (max %d MB)", float64(info.Size())/(1<<20), MaxFileBytes>>20)}
	}

	ext := strings.ToLower(filepath.Ext(path))
	if !slices.Contains(SupportedExtensions, ext) {
		return &creative.ValidationError{Field: field, Reason: fmt.Sprintf("unsupported format %q (supported: %s)", ext, strings.Join(SupportedExtensions, ", "))}
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return &creative.ValidationError{Field: field, Reason: err.Error()}
	}
	if _, err := Decode(data); err != nil {
		return &creative.ValidationError{Field: field, Reason: "not a valid image"}
	}
	return nil
}

// LoadReference reads a validated image file as a backend reference.
func LoadReference(path string) (*creative.Reference, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return &creative.Reference{Data: data, MimeType: MimeType(data)}, nil
}

func MimeType(data []byte) string {
	mime := http.DetectContentType(data)
	if mime, _, ok := strings.Cut(mime, ";"); ok {
		return strings.TrimSpace(mime)
	}
	return mime
}
