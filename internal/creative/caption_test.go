package creative

import (
	"context"
	"errors"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCaptionBuilderLengthIsBounded(t *testing.T) {
	brand := BrandConfig{Name: "Brewly", Tone: "warm"}
	for _, maxLen := range []int{1, 3, 4, 10, 150} {
		for _, n := range []int{0, 1, 5, 149, 150, 151, 400} {
			body := strings.Repeat("é", n)
			text := &stubText{fn: func(prompt string, call int) (string, error) {
				return body + "x", nil
			}}
			cb := NewCaptionBuilder(CaptionBuilderOptions{Text: text})

			out := cb.Build(context.Background(), "desc", "coffee", brand, "", maxLen)

			assert.LessOrEqual(t, utf8.RuneCountInString(out), maxLen, "max=%d n=%d", maxLen, n)
			assert.NotEmpty(t, out)
		}
	}
}

func TestCaptionBuilderTruncatesWithEllipsis(t *testing.T) {
	text := &stubText{fn: func(prompt string, call int) (string, error) {
		return strings.Repeat("a", 200), nil
	}}
	cb := NewCaptionBuilder(CaptionBuilderOptions{Text: text})

	out := cb.Build(context.Background(), "desc", "coffee", BrandConfig{}, "", 150)

	assert.Equal(t, strings.Repeat("a", 147)+"...", out)
}

func TestCaptionBuilderStripsQuotes(t *testing.T) {
	text := &stubText{fn: func(prompt string, call int) (string, error) {
		return "  \"Sip slow. Live bold. Order now!\"  ", nil
	}}
	cb := NewCaptionBuilder(CaptionBuilderOptions{Text: text})

	assert.Equal(t, "Sip slow. Live bold. Order now!", cb.Build(context.Background(), "d", "p", BrandConfig{}, "", 0))
}

func TestCaptionBuilderPromptMentionsBrandAndStyle(t *testing.T) {
	var seen string
	text := &stubText{fn: func(prompt string, call int) (string, error) {
		seen = prompt
		return "caption", nil
	}}
	cb := NewCaptionBuilder(CaptionBuilderOptions{Text: text})

	cb.Build(context.Background(), "bottle on marble", "", BrandConfig{Name: "Brewly", Tone: "calm"}, "", 0)

	assert.Contains(t, seen, "Image Description: bottle on marble")
	assert.Contains(t, seen, "Product: Not specified")
	assert.Contains(t, seen, "Brand: Brewly")
	assert.Contains(t, seen, "Style: engaging")
	assert.Contains(t, seen, "Maximum 150 characters")
}

func TestCaptionBuilderFallback(t *testing.T) {
	text := &stubText{fn: func(prompt string, call int) (string, error) {
		return "", errors.New("timeout")
	}}

	for i, want := range FallbackCaptions("cold brew") {
		idx := i
		cb := NewCaptionBuilder(CaptionBuilderOptions{
			Text: text,
			Pick: func(n int) int {
				require.Equal(t, 4, n)
				return idx
			},
		})
		assert.Equal(t, want, cb.Build(context.Background(), "desc", "cold brew", BrandConfig{}, "", 150))
	}
}

func TestCaptionBuilderFallbackIsTruncatedAndNonEmpty(t *testing.T) {
	cb := NewCaptionBuilder(CaptionBuilderOptions{Pick: func(int) int { return 99 }})

	out := cb.Build(context.Background(), "desc", strings.Repeat("long product ", 40), BrandConfig{}, "", 50)
	assert.Equal(t, 50, utf8.RuneCountInString(out))
	assert.True(t, strings.HasSuffix(out, "..."))
	assert.True(t, strings.HasPrefix(out, "Discover long product"))

	out = cb.Build(context.Background(), "desc", "", BrandConfig{}, "", 150)
	assert.Contains(t, out, "product")
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "short", Truncate("short", 10))
	assert.Equal(t, "abcdefg...", Truncate("abcdefghijklmnop", 10))
	assert.Equal(t, "ab", Truncate("abcdef", 2))
	assert.Equal(t, "unchanged", Truncate("unchanged", 0))
}
