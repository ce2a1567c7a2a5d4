package layout

import "github.com/local/exammarker/internal/geom"

// Kind classifies a region's role on the page.
type Kind string

const (
	KindPrompt   Kind = "prompt"
	KindResponse Kind = "response"
	KindPlain    Kind = "plain"
)

// Line is one raw text line with its bounding box, as produced by the
// extraction collaborator. Lines arrive sorted by page, then vertical position.
type Line struct {
	Page int
	BBox geom.Rect
	Text string
}

// Region is a classified rectangular area of a page. Regions are produced once
// per document and are read-only afterwards. Ordinal is the prompt number for
// prompt/response kinds and 0 for plain text.
type Region struct {
	Page    int
	BBox    geom.Rect
	Text    string
	Kind    Kind
	Ordinal int
}

// Analysis is the classifier output. Confidence is 0.9 when at least one
// prompt was detected, 0.0 otherwise; callers must treat 0.0 as "no usable
// structure" and abort before planning placements.
type Analysis struct {
	Regions    []Region
	Confidence float64
}

// Prompts returns the prompt regions in document order.
func (a Analysis) Prompts() []Region {
	var out []Region
	for _, r := range a.Regions {
		if r.Kind == KindPrompt {
			out = append(out, r)
		}
	}
	return out
}

// ResponseFor returns the first response region tied to ordinal, if any.
func (a Analysis) ResponseFor(ordinal int) (Region, bool) {
	for _, r := range a.Regions {
		if r.Kind == KindResponse && r.Ordinal == ordinal {
			return r, true
		}
	}
	return Region{}, false
}
