package creative

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"
)

const (
	CreativePrefix   = "creative"
	ImageExt         = ".jpg"
	CaptionExt       = ".txt"
	DefaultZipName   = "creatives.zip"
	timestampLayout  = "20060102_150405"
	zipNameSeparator = "_creatives"
)

// ImageName returns the stable file name for the creative at a 0-based index.
func ImageName(index int) string {
	return fmt.Sprintf("%s_%03d%s", CreativePrefix, index+1, ImageExt)
}

// ImageKey is the image name without its extension; captions and mapping
// entries are keyed by it.
func ImageKey(name string) string {
	return strings.TrimSuffix(filepath.Base(name), filepath.Ext(name))
}

func CaptionName(imageName string) string {
	return ImageKey(imageName) + CaptionExt
}

// ZipName builds "<brand>_creatives_<timestamp>.zip", or "creatives_<timestamp>.zip"
// without a brand.
func ZipName(brand string, now time.Time) string {
	ts := now.Format(timestampLayout)
	brand = strings.TrimSpace(brand)
	if brand == "" {
		return fmt.Sprintf("creatives_%s.zip", ts)
	}
	return fmt.Sprintf("%s%s_%s.zip", sanitizeFileName(brand), zipNameSeparator, ts)
}

func sanitizeFileName(name string) string {
	var b strings.Builder
	for _, r := range name {
		switch {
		case r == '/' || r == '\\' || r == ':' || r == '*' || r == '?' || r == '"' || r == '<' || r == '>' || r == '|':
			b.WriteRune('_')
		case r == ' ':
			b.WriteRune('_')
		default:
			b.WriteRune(r)
		}
	}
	return b.String()
}
