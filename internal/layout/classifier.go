package layout

import (
	"sort"
	"strings"

	"github.com/rs/zerolog/log"
)

// Classifier turns raw extracted lines into typed regions. The matcher list is
// pluggable so individual marker patterns can be tested in isolation.
type Classifier struct {
	matchers []Matcher
}

// NewClassifier returns a classifier with the default marker patterns.
func NewClassifier() *Classifier {
	return &Classifier{matchers: DefaultMatchers()}
}

// NewClassifierWith returns a classifier using the given ordered matchers.
func NewClassifierWith(matchers []Matcher) *Classifier {
	return &Classifier{matchers: matchers}
}

// Classify walks the lines in order, tracking the most recently opened prompt.
// A line matching a prompt pattern opens a new prompt; an explicit answer
// marker, or any non-prompt line vertically below the current prompt, becomes
// a response tied to that prompt; everything else is plain text. Malformed
// lines are skipped with a warning, never fatal.
func (c *Classifier) Classify(lines []Line) Analysis {
	var regions []Region

	currentOrdinal := 0
	haveCurrent := false
	var currentBottom float64
	currentPage := -1

	for _, ln := range lines {
		text := strings.TrimSpace(ln.Text)
		if text == "" || !ln.BBox.Valid() || ln.Page < 0 {
			log.Warn().
				Int("page", ln.Page).
				Str("bbox", ln.BBox.String()).
				Msg("skipping malformed line")
			continue
		}

		m := c.match(text)
		switch m.Kind {
		case MatchPrompt:
			regions = append(regions, Region{
				Page:    ln.Page,
				BBox:    ln.BBox,
				Text:    m.Text,
				Kind:    KindPrompt,
				Ordinal: m.Ordinal,
			})
			currentOrdinal = m.Ordinal
			haveCurrent = true
			currentBottom = ln.BBox.Y1
			currentPage = ln.Page

		case MatchResponse:
			if !haveCurrent {
				regions = append(regions, Region{Page: ln.Page, BBox: ln.BBox, Text: text, Kind: KindPlain})
				continue
			}
			regions = append(regions, Region{
				Page:    ln.Page,
				BBox:    ln.BBox,
				Text:    m.Text,
				Kind:    KindResponse,
				Ordinal: currentOrdinal,
			})

		default:
			// Implied response: below the current prompt and not a prompt itself.
			if haveCurrent && belowPrompt(ln, currentPage, currentBottom) {
				regions = append(regions, Region{
					Page:    ln.Page,
					BBox:    ln.BBox,
					Text:    text,
					Kind:    KindResponse,
					Ordinal: currentOrdinal,
				})
				continue
			}
			regions = append(regions, Region{Page: ln.Page, BBox: ln.BBox, Text: text, Kind: KindPlain})
		}
	}

	sort.SliceStable(regions, func(i, j int) bool {
		if regions[i].Page != regions[j].Page {
			return regions[i].Page < regions[j].Page
		}
		return regions[i].BBox.Y0 < regions[j].BBox.Y0
	})

	prompts := 0
	for _, r := range regions {
		if r.Kind == KindPrompt {
			prompts++
		}
	}

	confidence := 0.0
	if prompts > 0 {
		confidence = 0.9
	} else {
		log.Warn().Int("lines", len(lines)).Msg("no prompt regions detected in document")
	}

	log.Debug().
		Int("regions", len(regions)).
		Int("prompts", prompts).
		Float64("confidence", confidence).
		Msg("layout classification complete")

	return Analysis{Regions: regions, Confidence: confidence}
}

func (c *Classifier) match(text string) Match {
	for _, m := range c.matchers {
		if got := m(text); got.Kind != MatchNone {
			return got
		}
	}
	return Match{Kind: MatchNone}
}

// belowPrompt is true when the line sits below the prompt's bounding box:
// on the prompt's page below its bottom edge, or anywhere on a later page.
func belowPrompt(ln Line, promptPage int, promptBottom float64) bool {
	if ln.Page > promptPage {
		return true
	}
	return ln.Page == promptPage && ln.BBox.Y0 > promptBottom
}
