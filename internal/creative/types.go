package creative

import (
	"context"
	"strings"
)

const (
	MinCount     = 1
	MaxCount     = 50
	DefaultCount = 10

	DefaultBrandName   = "Brand"
	DefaultTheme       = "modern"
	DefaultTone        = "professional"
	DefaultAspectRatio = "1:1"

	maxBrandNameLen = 100
)

// AspectRatios lists the ratios every image backend accepts.
var AspectRatios = []string{"1:1", "16:9", "9:16", "4:3", "3:4"}

// BrandConfig is read-only for the lifetime of a request. Builders receive it
// by value and never write back into it.
type BrandConfig struct {
	Name   string
	Colors []string
	Theme  string
	Tone   string
}

// Reference is an optional conditioning image passed to backends that accept one.
type Reference struct {
	Data     []byte
	MimeType string
}

// GenerationRequest is built once per run from user input.
type GenerationRequest struct {
	ProductDescription string `validate:"required"`
	BrandName          string
	BrandColors        []string `validate:"dive,hexcolor"`
	Theme              string   `validate:"omitempty,theme"`
	Tone               string
	Count              int    `validate:"min=1,max=50"`
	AspectRatio        string `validate:"omitempty,oneof=1:1 16:9 9:16 4:3 3:4"`
	ProductImage       *Reference
}

// Brand returns the brand view of the request with defaults applied.
func (r GenerationRequest) Brand() BrandConfig {
	colors := make([]string, len(r.BrandColors))
	copy(colors, r.BrandColors)

	tone := strings.TrimSpace(r.Tone)
	if tone == "" {
		tone = DefaultTone
	}
	theme := strings.TrimSpace(r.Theme)
	if theme == "" {
		theme = DefaultTheme
	}

	return BrandConfig{
		Name:   NormalizeBrandName(r.BrandName),
		Colors: colors,
		Theme:  theme,
		Tone:   tone,
	}
}

// NormalizeBrandName trims the name, caps its length and substitutes the
// default for an empty value.
func NormalizeBrandName(name string) string {
	name = strings.TrimSpace(name)
	if name == "" {
		return DefaultBrandName
	}
	runes := []rune(name)
	if len(runes) > maxBrandNameLen {
		name = strings.TrimSpace(string(runes[:maxBrandNameLen]))
	}
	return name
}

type PromptItem struct {
	Index int
	Text  string
	Style string
}

type Status int

const (
	StatusFailure Status = iota
	StatusSuccess
)

func (s Status) String() string {
	if s == StatusSuccess {
		return "success"
	}
	return "failure"
}

// Outcome is the result of one image unit. Index is the only link back to
// the PromptItem it came from.
type Outcome struct {
	Index  int
	Status Status
	Image  []byte
	Err    error
}

func (o Outcome) OK() bool { return o.Status == StatusSuccess }

type CaptionItem struct {
	Key  string
	Text string
}

// Creative is one persisted image of a CreativeSet.
type Creative struct {
	Index  int
	Name   string
	Path   string
	Prompt PromptItem
}

// CreativeSet is the terminal artifact of a run. Images and Captions are
// index aligned and Mapping holds the same captions keyed by image base name.
type CreativeSet struct {
	Requested int
	Images    []Creative
	Captions  []CaptionItem
	Mapping   map[string]string
	Prompts   []PromptItem
}

func (s CreativeSet) Delivered() int { return len(s.Images) }

type TextOptions struct {
	Temperature float64
	MaxTokens   int
}

type TextGenerator interface {
	GenerateText(ctx context.Context, prompt string, opts TextOptions) (string, error)
}

type ImageRequest struct {
	Prompt      string
	AspectRatio string
	Reference   *Reference
}

// ImageGenerator produces exactly one encoded image per call.
type ImageGenerator interface {
	Generate(ctx context.Context, req ImageRequest) ([]byte, error)
}

// ImageStore persists a successful image under name and returns its path.
type ImageStore interface {
	SaveImage(ctx context.Context, name string, data []byte) (string, error)
}
