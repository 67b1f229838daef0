package creative

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"auto-creative-engine/internal/logging"
)

const (
	promptTemperature = 0.8
	promptMaxTokens   = 300
)

type PromptBuilder struct {
	text   TextGenerator
	styles []string
	now    func() time.Time
	logger *slog.Logger
}

type PromptBuilderOptions struct {
	Text   TextGenerator
	Styles []string
	// Now picks the season for fallback prompts. Defaults to time.Now.
	Now    func() time.Time
	Logger *slog.Logger
}

func NewPromptBuilder(opts PromptBuilderOptions) *PromptBuilder {
	styles := opts.Styles
	if len(styles) == 0 {
		styles = Styles
	}

	now := opts.Now
	if now == nil {
		now = time.Now
	}

	logger := opts.Logger
	if logger == nil {
		logger = logging.Discard()
	}

	return &PromptBuilder{
		text:   opts.Text,
		styles: styles,
		now:    now,
		logger: logger,
	}
}

// Build returns exactly count prompts with contiguous indices. A failed or
// empty text generation falls back to a template for that index only.
func (b *PromptBuilder) Build(ctx context.Context, req GenerationRequest, count int) []PromptItem {
	if count < 0 {
		count = 0
	}
	brand := req.Brand()

	items := make([]PromptItem, count)
	for i := 0; i < count; i++ {
		style := b.StyleFor(i)
		items[i] = PromptItem{
			Index: i,
			Style: style,
			Text:  b.single(ctx, req.ProductDescription, brand, style, i),
		}
	}

	b.logger.Info("prompts generated", "count", len(items))
	return items
}

// StyleFor cycles through the style list by index.
func (b *PromptBuilder) StyleFor(index int) string {
	return b.styles[index%len(b.styles)]
}

func (b *PromptBuilder) single(ctx context.Context, product string, brand BrandConfig, style string, index int) string {
	accent := SeasonalAccent(b.now().Month(), index)
	if b.text == nil {
		return FallbackPrompt(product, brand, style, accent)
	}

	out, err := b.text.GenerateText(ctx, instructionPrompt(product, brand, style), TextOptions{
		Temperature: promptTemperature,
		MaxTokens:   promptMaxTokens,
	})
	if err != nil {
		b.logger.Warn("prompt generation failed, using template", "index", index, "style", style, "err", err)
		return FallbackPrompt(product, brand, style, accent)
	}

	out = stripQuotes(out)
	if out == "" {
		b.logger.Warn("prompt generation returned empty text, using template", "index", index, "style", style)
		return FallbackPrompt(product, brand, style, accent)
	}
	return out
}

func instructionPrompt(product string, brand BrandConfig, style string) string {
	colors := "Not specified"
	if len(brand.Colors) > 0 {
		colors = strings.Join(brand.Colors, ", ")
	}

	return fmt.Sprintf(`Generate a creative, detailed image generation prompt for an advertisement.

Product Description: %s
Style: %s
Brand Name: %s
Brand Theme: %s
Brand Tone: %s
Brand Colors: %s

Requirements:
- Create a compelling, visually striking ad creative
- Include the product naturally in the scene
- Use the specified style and theme
- Make it suitable for social media advertising
- Be specific about composition, lighting, mood, and colors
- Keep the prompt under 200 words
- Do NOT include any text or words in the image description

Generate ONLY the image prompt, nothing else:`, product, style, brand.Name, brand.Theme, brand.Tone, colors)
}

// FallbackPrompt is built only from local fields and is never empty. accent
// is an optional seasonal touch such as "cozy fall".
func FallbackPrompt(product string, brand BrandConfig, style, accent string) string {
	product = strings.TrimSpace(product)
	if product == "" {
		product = "the product"
	}

	var colors string
	if len(brand.Colors) > 0 {
		colors = " with brand colors " + strings.Join(brand.Colors, ", ")
	}

	var season string
	if accent = strings.TrimSpace(accent); accent != "" {
		season = " Subtle " + accent + " atmosphere."
	}

	attrs := AttributesFor(brand.Theme)
	title := cases.Title(language.English)

	return fmt.Sprintf(
		"Professional advertisement image featuring %s in %s style%s. "+
			"%s theme, %s tone, %s mood, %s composition, %s palette.%s "+
			"Eye-catching composition, high quality, suitable for social media marketing, "+
			"clean background, professional lighting, vibrant colors, modern design.",
		product, strings.ReplaceAll(style, "_", " "), colors,
		title.String(brand.Theme), brand.Tone, attrs.Mood, attrs.Style, attrs.Colors, season,
	)
}

// EnhanceWithBrand appends brand guidelines to an existing prompt.
func EnhanceWithBrand(prompt string, brand BrandConfig) string {
	var parts []string
	if len(brand.Colors) > 0 {
		parts = append(parts, "Brand colors: "+strings.Join(brand.Colors, ", "))
	}
	if brand.Theme != "" {
		parts = append(parts, "Theme: "+brand.Theme)
	}
	if brand.Tone != "" {
		parts = append(parts, "Tone: "+brand.Tone)
	}
	if len(parts) == 0 {
		return prompt
	}
	return prompt + "\n\nBrand guidelines: " + strings.Join(parts, ", ")
}

func stripQuotes(s string) string {
	s = strings.TrimSpace(s)
	if len(s) >= 2 && s[0] == '"' && s[len(s)-1] == '"' {
		s = strings.TrimSpace(s[1 : len(s)-1])
	}
	return s
}
