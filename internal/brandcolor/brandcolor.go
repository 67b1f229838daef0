// Package brandcolor extracts a brand palette from a logo.
package brandcolor

import (
	"fmt"
	"image"
	"log/slog"
	"math"
	"math/rand/v2"
	"slices"

	"golang.org/x/image/draw"

	"auto-creative-engine/internal/imageutil"
	"auto-creative-engine/internal/logging"
)

const (
	DefaultColors = 5

	sampleSize = 200
	seed       = 42
	restarts   = 10
	maxIter    = 50

	minChannelSum = 30
	maxChannelSum = 750
)

// DefaultPalette is returned whenever extraction fails.
var DefaultPalette = []string{"#1a1a1a", "#4a90e2", "#50c878", "#ff6b6b", "#ffd93d"}

type Options struct {
	Colors int
	Logger *slog.Logger
}

type Extractor struct {
	k      int
	logger *slog.Logger
}

func New(opts Options) *Extractor {
	k := opts.Colors
	if k < 1 {
		k = DefaultColors
	}

	logger := opts.Logger
	if logger == nil {
		logger = logging.Discard()
	}

	return &Extractor{k: k, logger: logger}
}

// Extract returns up to k hex colors ordered by cluster size, largest first.
// It never fails: undecodable input yields the default palette.
func (e *Extractor) Extract(data []byte) []string {
	img, err := imageutil.Decode(data)
	if err != nil {
		e.logger.Warn("brand color extraction failed, using defaults", "err", err)
		return Defaults()
	}

	// nearest neighbour keeps flat logo colors exact
	colors := Palette(imageutil.Resize(img, sampleSize, sampleSize, draw.NearestNeighbor), e.k)
	e.logger.Info("brand colors extracted", "colors", colors)
	return colors
}

func Defaults() []string {
	return slices.Clone(DefaultPalette)
}

type point [3]float64

// Palette clusters the pixels of img into at most k colors. Near-black and
// near-white pixels are ignored unless nothing else is left.
func Palette(img *image.RGBA, k int) []string {
	pixels := samplePixels(img)
	if len(pixels) == 0 {
		return Defaults()
	}

	if distinct := countDistinct(pixels, k); distinct < k {
		k = distinct
	}

	rng := rand.New(rand.NewPCG(seed, seed))
	var (
		best        []point
		bestSizes   []int
		bestInertia = math.Inf(1)
	)
	for range restarts {
		centers, sizes, inertia := kmeans(pixels, k, rng)
		if inertia < bestInertia {
			best, bestSizes, bestInertia = centers, sizes, inertia
		}
	}

	order := make([]int, len(best))
	for i := range order {
		order[i] = i
	}
	slices.SortStableFunc(order, func(a, b int) int { return bestSizes[b] - bestSizes[a] })

	out := make([]string, 0, len(order))
	for _, i := range order {
		out = append(out, hex(best[i]))
	}
	return out
}

func samplePixels(img *image.RGBA) []point {
	b := img.Bounds()
	all := make([]point, 0, b.Dx()*b.Dy())
	kept := make([]point, 0, b.Dx()*b.Dy())
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			off := img.PixOffset(x, y)
			p := point{float64(img.Pix[off]), float64(img.Pix[off+1]), float64(img.Pix[off+2])}
			all = append(all, p)
			if sum := p[0] + p[1] + p[2]; sum > minChannelSum && sum < maxChannelSum {
				kept = append(kept, p)
			}
		}
	}
	if len(kept) == 0 {
		return all
	}
	return kept
}

func countDistinct(pixels []point, limit int) int {
	seen := make(map[point]struct{}, limit)
	for _, p := range pixels {
		seen[p] = struct{}{}
		if len(seen) >= limit {
			break
		}
	}
	return len(seen)
}

func kmeans(pixels []point, k int, rng *rand.Rand) ([]point, []int, float64) {
	centers := seedCenters(pixels, k, rng)
	assign := make([]int, len(pixels))
	sizes := make([]int, k)

	for iter := 0; iter < maxIter; iter++ {
		changed := false
		for i, p := range pixels {
			c := nearest(p, centers)
			if iter == 0 || c != assign[i] {
				assign[i] = c
				changed = true
			}
		}
		if !changed {
			break
		}

		sums := make([]point, k)
		clear(sizes)
		for i, p := range pixels {
			c := assign[i]
			sizes[c]++
			sums[c][0] += p[0]
			sums[c][1] += p[1]
			sums[c][2] += p[2]
		}
		for c := range centers {
			if sizes[c] == 0 {
				// re-seed an empty cluster on a random pixel
				centers[c] = pixels[rng.IntN(len(pixels))]
				continue
			}
			n := float64(sizes[c])
			centers[c] = point{sums[c][0] / n, sums[c][1] / n, sums[c][2] / n}
		}
	}

	clear(sizes)
	var inertia float64
	for i, p := range pixels {
		c := nearest(p, centers)
		assign[i] = c
		sizes[c]++
		inertia += dist2(p, centers[c])
	}
	return centers, sizes, inertia
}

// seedCenters is k-means++ initialisation.
func seedCenters(pixels []point, k int, rng *rand.Rand) []point {
	centers := make([]point, 0, k)
	centers = append(centers, pixels[rng.IntN(len(pixels))])

	d := make([]float64, len(pixels))
	for len(centers) < k {
		var total float64
		for i, p := range pixels {
			d[i] = dist2(p, centers[nearest(p, centers)])
			total += d[i]
		}
		if total == 0 {
			centers = append(centers, pixels[rng.IntN(len(pixels))])
			continue
		}

		target := rng.Float64() * total
		idx := len(pixels) - 1
		for i, w := range d {
			target -= w
			if target <= 0 {
				idx = i
				break
			}
		}
		centers = append(centers, pixels[idx])
	}
	return centers
}

func nearest(p point, centers []point) int {
	best, bestD := 0, math.Inf(1)
	for i, c := range centers {
		if d := dist2(p, c); d < bestD {
			best, bestD = i, d
		}
	}
	return best
}

func dist2(a, b point) float64 {
	dr, dg, db := a[0]-b[0], a[1]-b[1], a[2]-b[2]
	return dr*dr + dg*dg + db*db
}

func hex(p point) string {
	return fmt.Sprintf("#%02x%02x%02x", clamp(p[0]), clamp(p[1]), clamp(p[2]))
}

func clamp(v float64) uint8 {
	switch {
	case v <= 0:
		return 0
	case v >= 255:
		return 255
	}
	return uint8(v)
}
