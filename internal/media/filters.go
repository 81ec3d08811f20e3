package media

import (
	"fmt"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// TextStyle controls how overlay captions are drawn.
type TextStyle struct {
	FontFile    string
	FontSize    int
	FontColor   string
	ShadowColor string
	Shadow      int
	Margin      int
}

func DefaultTextStyle() TextStyle {
	return TextStyle{
		FontSize:    32,
		FontColor:   "white",
		ShadowColor: "black",
		Shadow:      2,
		Margin:      15,
	}
}

// filterChain builds a comma separated ffmpeg filter description.
type filterChain struct {
	filters []string
}

func (fc *filterChain) Scale(size Dimensions) *filterChain {
	if size.Width <= 0 || size.Height <= 0 {
		return fc
	}
	fc.filters = append(fc.filters, fmt.Sprintf("scale=%d:%d", size.Width, size.Height), "setsar=1")
	return fc
}

// DrawText appends a drawtext filter; x and y are ffmpeg expressions.
func (fc *filterChain) DrawText(text string, style TextStyle, x, y string) *filterChain {
	opts := make([]string, 0, 10)
	if style.FontFile != "" {
		opts = append(opts, "fontfile="+escapeFilterValue(style.FontFile))
	}
	opts = append(opts,
		"text="+escapeFilterValue(cleanText(text)),
		"expansion=none",
		"fontcolor="+style.FontColor,
		fmt.Sprintf("fontsize=%d", style.FontSize),
	)
	if style.Shadow > 0 {
		opts = append(opts,
			"shadowcolor="+style.ShadowColor,
			fmt.Sprintf("shadowx=%d", style.Shadow),
			fmt.Sprintf("shadowy=%d", style.Shadow),
		)
	}
	opts = append(opts, "x="+x, "y="+y)
	fc.filters = append(fc.filters, "drawtext="+strings.Join(opts, ":"))
	return fc
}

func (fc *filterChain) String() string {
	return strings.Join(fc.filters, ",")
}

// cleanText composes the text to NFC and drops control characters such as
// newlines, which drawtext would otherwise render literally.
func cleanText(s string) string {
	t := transform.Chain(norm.NFC, runes.Remove(runes.In(unicode.Cc)))
	out, _, err := transform.String(t, s)
	if err != nil {
		return s
	}
	return strings.TrimSpace(out)
}

// escapeFilterValue applies both levels of ffmpeg escaping to an option value:
// first the option level (\ ' :), then the filtergraph level (\ ' [ ] , ;).
func escapeFilterValue(s string) string {
	return escapeRunes(escapeRunes(s, `\':`), `\'[],;`)
}

func escapeRunes(s, special string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if strings.ContainsRune(special, r) {
			b.WriteByte('\\')
		}
		b.WriteRune(r)
	}
	return b.String()
}
