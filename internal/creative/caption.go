package creative

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"strings"
	"unicode/utf8"

	"auto-creative-engine/internal/logging"
)

const (
	DefaultCaptionStyle     = "engaging"
	DefaultCaptionMaxLength = 150

	captionTemperature = 0.7
	captionMaxTokens   = 200
	ellipsis           = "..."
)

type CaptionBuilder struct {
	text   TextGenerator
	pick   func(n int) int
	logger *slog.Logger
}

type CaptionBuilderOptions struct {
	Text   TextGenerator
	Logger *slog.Logger
	// Pick selects a fallback template; defaults to math/rand/v2.IntN.
	Pick func(n int) int
}

func NewCaptionBuilder(opts CaptionBuilderOptions) *CaptionBuilder {
	pick := opts.Pick
	if pick == nil {
		pick = rand.IntN
	}

	logger := opts.Logger
	if logger == nil {
		logger = logging.Discard()
	}

	return &CaptionBuilder{
		text:   opts.Text,
		pick:   pick,
		logger: logger,
	}
}

// Build returns a non-empty caption of at most maxLength runes.
func (b *CaptionBuilder) Build(ctx context.Context, imageDescription, product string, brand BrandConfig, style string, maxLength int) string {
	if style == "" {
		style = DefaultCaptionStyle
	}
	if maxLength <= 0 {
		maxLength = DefaultCaptionMaxLength
	}

	if b.text == nil {
		return Truncate(b.fallback(product), maxLength)
	}

	out, err := b.text.GenerateText(ctx, captionPrompt(imageDescription, product, brand, style, maxLength), TextOptions{
		Temperature: captionTemperature,
		MaxTokens:   captionMaxTokens,
	})
	if err != nil {
		b.logger.Warn("caption generation failed, using template", "err", err)
		return Truncate(b.fallback(product), maxLength)
	}

	out = stripQuotes(out)
	if out == "" {
		b.logger.Warn("caption generation returned empty text, using template")
		return Truncate(b.fallback(product), maxLength)
	}

	caption := Truncate(out, maxLength)
	b.logger.Debug("caption generated", "chars", utf8.RuneCountInString(caption))
	return caption
}

func captionPrompt(imageDescription, product string, brand BrandConfig, style string, maxLength int) string {
	if strings.TrimSpace(product) == "" {
		product = "Not specified"
	}

	return fmt.Sprintf(`Generate a compelling social media ad caption for this creative.

Image Description: %s
Product: %s
Brand: %s
Brand Tone: %s
Style: %s

Requirements:
- Engaging and attention-grabbing
- Suitable for social media (Instagram, Facebook, Twitter)
- Include a call-to-action
- Match the brand tone: %s
- Maximum %d characters
- Use emojis sparingly (1-2 max)
- Be concise and impactful

Generate ONLY the caption text, nothing else:`, imageDescription, product, brand.Name, brand.Tone, style, brand.Tone, maxLength)
}

func (b *CaptionBuilder) fallback(product string) string {
	product = strings.TrimSpace(product)
	if product == "" {
		product = "product"
	}

	templates := FallbackCaptions(product)
	idx := b.pick(len(templates))
	if idx < 0 || idx >= len(templates) {
		idx = 0
	}
	return templates[idx]
}

// FallbackCaptions lists the template captions for a product.
func FallbackCaptions(product string) []string {
	return []string{
		fmt.Sprintf("Discover %s! ✨ Perfect for your lifestyle. Shop now!", product),
		fmt.Sprintf("Elevate your experience with %s. Limited time offer!", product),
		fmt.Sprintf("%s - Quality you can trust. Order today!", product),
		fmt.Sprintf("Transform your day with %s. Get yours now!", product),
	}
}

// Truncate cuts s to maxLength runes, replacing the tail with an ellipsis
// when there is room for one.
func Truncate(s string, maxLength int) string {
	if maxLength <= 0 || utf8.RuneCountInString(s) <= maxLength {
		return s
	}
	runes := []rune(s)
	if maxLength <= len(ellipsis) {
		return string(runes[:maxLength])
	}
	return string(runes[:maxLength-len(ellipsis)]) + ellipsis
}
