package quality

import (
	"fmt"
	"sort"

	"github.com/rs/zerolog/log"

	"github.com/local/exammarker/internal/geom"
	"github.com/local/exammarker/internal/layout"
	"github.com/local/exammarker/internal/placement"
)

// IssueKind enumerates the defects the gate can report.
type IssueKind string

const (
	IssueOverlap     IssueKind = "overlap"
	IssueOutOfBounds IssueKind = "out_of_bounds"
	IssueMissing     IssueKind = "missing_annotation"
	IssueInvalidRect IssueKind = "invalid_rect"
)

// Issue is one defect found in a produced layout.
type Issue struct {
	Kind    IssueKind
	Page    int
	Ordinal int       // set for IssueMissing
	A, B    geom.Rect // B set only for IssueOverlap
}

func (i Issue) String() string {
	switch i.Kind {
	case IssueOverlap:
		return fmt.Sprintf("page %d: rectangles %s and %s overlap", i.Page+1, i.A, i.B)
	case IssueOutOfBounds:
		return fmt.Sprintf("page %d: rectangle %s extends beyond page bounds", i.Page+1, i.A)
	case IssueMissing:
		return fmt.Sprintf("no annotation placed for question %d", i.Ordinal)
	case IssueInvalidRect:
		return fmt.Sprintf("page %d: malformed rectangle %s", i.Page+1, i.A)
	}
	return string(i.Kind)
}

// Report is the gate's verdict for one attempt. The gate only reports; it
// never corrects anything itself.
type Report struct {
	Approved bool
	Issues   []Issue
}

// Strings renders the issue list for surfacing to callers.
func (r Report) Strings() []string {
	out := make([]string, len(r.Issues))
	for i, is := range r.Issues {
		out[i] = is.String()
	}
	return out
}

// Verify re-scans a full placement set against the original regions: pairwise
// overlap per page, page-bounds violations, and one placement per requested
// ordinal. Malformed rectangles are reported as their own issue kind instead
// of failing the scan, so the retry loop always gets a usable report.
func Verify(placements []placement.Placement, regions []layout.Region, pages map[int]geom.PageDims, requests []placement.AnnotationRequest) Report {
	var issues []Issue

	byPage := make(map[int][]geom.Rect)

	add := func(page int, r geom.Rect) {
		if !r.Valid() {
			issues = append(issues, Issue{Kind: IssueInvalidRect, Page: page, A: r})
			return
		}
		byPage[page] = append(byPage[page], r)
	}

	for _, reg := range regions {
		add(reg.Page, reg.BBox)
	}
	for _, pl := range placements {
		add(pl.Page, pl.Rect)
	}

	// Pairwise overlap per page. Per-page counts are small (tens), so the
	// quadratic scan is fine.
	pageNums := make([]int, 0, len(byPage))
	for p := range byPage {
		pageNums = append(pageNums, p)
	}
	sort.Ints(pageNums)

	for _, p := range pageNums {
		rects := byPage[p]
		for i := 0; i < len(rects); i++ {
			for j := i + 1; j < len(rects); j++ {
				if rects[i].Overlaps(rects[j]) {
					issues = append(issues, Issue{Kind: IssueOverlap, Page: p, A: rects[i], B: rects[j]})
				}
			}
		}
		dims, ok := pages[p]
		if !ok {
			continue
		}
		for _, r := range rects {
			if !dims.Contains(r) {
				issues = append(issues, Issue{Kind: IssueOutOfBounds, Page: p, A: r})
			}
		}
	}

	// Completeness: every requested ordinal needs a placement.
	placed := make(map[int]bool, len(placements))
	for _, pl := range placements {
		placed[pl.Ordinal] = true
	}
	for _, req := range requests {
		if !placed[req.Ordinal] {
			issues = append(issues, Issue{Kind: IssueMissing, Ordinal: req.Ordinal})
		}
	}

	approved := len(issues) == 0
	if !approved {
		log.Warn().Int("issues", len(issues)).Msg("quality gate rejected layout")
		for _, is := range issues {
			log.Debug().Str("issue", is.String()).Msg("quality issue")
		}
	}

	return Report{Approved: approved, Issues: issues}
}
