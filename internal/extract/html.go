package extract

import (
	"html"
	"regexp"
	"strconv"
	"strings"

	"github.com/local/exammarker/internal/geom"
	"github.com/local/exammarker/internal/layout"
)

// MuPDF's HTML output positions each paragraph with inline styles in points:
//
//	<p style="top:101.5pt;left:56.7pt;line-height:13.9pt"><span ...>text</span></p>
//
// Property order inside the style attribute is not guaranteed, so each one is
// matched on its own.
var (
	reParagraph = regexp.MustCompile(`(?s)<p\s+style="([^"]*)"[^>]*>(.*?)</p>`)
	reTop       = regexp.MustCompile(`top:([0-9.]+)pt`)
	reLeft      = regexp.MustCompile(`left:([0-9.]+)pt`)
	reLineH     = regexp.MustCompile(`line-height:([0-9.]+)pt`)
	reFontSize  = regexp.MustCompile(`font-size:([0-9.]+)pt`)
	reTag       = regexp.MustCompile(`<[^>]*>`)
)

const (
	defaultLineHeight = 14.0
	defaultFontSize   = 12.0
	// Width estimate per character as a fraction of the font size, matching
	// the approximation the placement side uses.
	charWidthFactor = 0.5
)

// parsePageHTML turns one page's HTML into positioned lines. Paragraphs
// without usable coordinates or text are dropped. The right edge is estimated
// from the glyph count since MuPDF does not emit line widths.
func parsePageHTML(page int, pageHTML string) []layout.Line {
	var lines []layout.Line

	for _, m := range reParagraph.FindAllStringSubmatch(pageHTML, -1) {
		style, body := m[1], m[2]

		top, okTop := styleValue(reTop, style)
		left, okLeft := styleValue(reLeft, style)
		if !okTop || !okLeft {
			continue
		}

		text := strings.TrimSpace(html.UnescapeString(reTag.ReplaceAllString(body, "")))
		if text == "" {
			continue
		}

		height := defaultLineHeight
		if v, ok := styleValue(reLineH, style); ok {
			height = v
		}
		fontSize := defaultFontSize
		if v, ok := styleValue(reFontSize, body); ok {
			fontSize = v
		}

		width := float64(len([]rune(text))) * charWidthFactor * fontSize

		lines = append(lines, layout.Line{
			Page: page,
			BBox: geom.Rect{X0: left, Y0: top, X1: left + width, Y1: top + height},
			Text: text,
		})
	}

	return lines
}

func styleValue(re *regexp.Regexp, s string) (float64, bool) {
	m := re.FindStringSubmatch(s)
	if m == nil {
		return 0, false
	}
	v, err := strconv.ParseFloat(m[1], 64)
	if err != nil {
		return 0, false
	}
	return v, true
}
