package creative

import (
	"slices"
	"strings"
	"time"
)

var themes = []string{
	"modern",
	"minimalist",
	"luxury",
	"playful",
	"professional",
	"bold",
	"elegant",
	"vibrant",
	"calm",
	"energetic",
}

// Styles is the fixed style cycle used by PromptBuilder.
var Styles = []string{
	"photorealistic",
	"illustration",
	"3d_render",
	"watercolor",
	"digital_art",
	"minimalist",
	"vintage",
	"futuristic",
}

var seasonalThemes = map[string][]string{
	"spring": {"fresh", "bright", "floral", "pastel"},
	"summer": {"vibrant", "sunny", "tropical", "energetic"},
	"fall":   {"warm", "cozy", "earthy", "rustic"},
	"winter": {"cool", "crisp", "festive", "elegant"},
}

// ThemeAttributes describe how a theme should look and feel.
type ThemeAttributes struct {
	Style  string
	Colors string
	Mood   string
}

var themeAttributes = map[string]ThemeAttributes{
	"modern":       {Style: "clean", Colors: "neutral", Mood: "sophisticated"},
	"minimalist":   {Style: "simple", Colors: "monochrome", Mood: "calm"},
	"luxury":       {Style: "elegant", Colors: "rich", Mood: "premium"},
	"playful":      {Style: "fun", Colors: "bright", Mood: "energetic"},
	"professional": {Style: "corporate", Colors: "conservative", Mood: "trustworthy"},
}

func Themes() []string {
	return slices.Clone(themes)
}

func IsTheme(theme string) bool {
	return slices.Contains(themes, strings.ToLower(strings.TrimSpace(theme)))
}

// AttributesFor falls back to the modern attributes for themes without a
// dedicated entry.
func AttributesFor(theme string) ThemeAttributes {
	if attrs, ok := themeAttributes[strings.ToLower(theme)]; ok {
		return attrs
	}
	return themeAttributes["modern"]
}

// Season maps a month to its season name.
func Season(month time.Month) string {
	switch month {
	case time.December, time.January, time.February:
		return "winter"
	case time.March, time.April, time.May:
		return "spring"
	case time.June, time.July, time.August:
		return "summer"
	default:
		return "fall"
	}
}

func SeasonalVariations(season string) []string {
	if v, ok := seasonalThemes[season]; ok {
		return slices.Clone(v)
	}
	return []string{"modern", "vibrant"}
}

// SeasonalAccent names the season of month and one of its variations,
// chosen by prompt index so a batch spreads across them.
func SeasonalAccent(month time.Month, index int) string {
	season := Season(month)
	variations := SeasonalVariations(season)
	if index < 0 {
		index = 0
	}
	return variations[index%len(variations)] + " " + season
}
