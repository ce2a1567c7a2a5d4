package quality

import (
	"testing"

	"github.com/local/exammarker/internal/geom"
	"github.com/local/exammarker/internal/layout"
	"github.com/local/exammarker/internal/placement"
)

func dims() map[int]geom.PageDims {
	return map[int]geom.PageDims{0: {Width: 600, Height: 800}}
}

func TestVerifyApprovesCleanLayout(t *testing.T) {
	regions := []layout.Region{
		{Page: 0, BBox: geom.Rect{X0: 50, Y0: 50, X1: 300, Y1: 70}, Kind: layout.KindPrompt, Ordinal: 1},
		{Page: 0, BBox: geom.Rect{X0: 50, Y0: 80, X1: 300, Y1: 100}, Kind: layout.KindResponse, Ordinal: 1},
	}
	placements := []placement.Placement{
		{Ordinal: 1, Page: 0, Rect: geom.Rect{X0: 320, Y0: 75, X1: 500, Y1: 100}},
	}
	requests := []placement.AnnotationRequest{{Ordinal: 1, Text: "Good answer"}}

	rep := Verify(placements, regions, dims(), requests)
	if !rep.Approved {
		t.Fatalf("expected approval, got issues: %v", rep.Strings())
	}
}

func TestVerifyReportsOverlap(t *testing.T) {
	regions := []layout.Region{
		{Page: 0, BBox: geom.Rect{X0: 100, Y0: 100, X1: 300, Y1: 120}, Kind: layout.KindResponse, Ordinal: 1},
	}
	placements := []placement.Placement{
		{Ordinal: 1, Page: 0, Rect: geom.Rect{X0: 250, Y0: 110, X1: 400, Y1: 130}},
	}
	requests := []placement.AnnotationRequest{{Ordinal: 1}}

	rep := Verify(placements, regions, dims(), requests)
	if rep.Approved {
		t.Fatal("expected rejection")
	}
	if len(rep.Issues) != 1 || rep.Issues[0].Kind != IssueOverlap {
		t.Fatalf("expected one overlap issue, got %v", rep.Strings())
	}
	if rep.Issues[0].Page != 0 {
		t.Errorf("overlap reported on page %d", rep.Issues[0].Page)
	}
}

func TestVerifyIgnoresRectsOnDifferentPages(t *testing.T) {
	placements := []placement.Placement{
		{Ordinal: 1, Page: 0, Rect: geom.Rect{X0: 100, Y0: 100, X1: 300, Y1: 120}},
		{Ordinal: 2, Page: 1, Rect: geom.Rect{X0: 100, Y0: 100, X1: 300, Y1: 120}},
	}
	pages := map[int]geom.PageDims{
		0: {Width: 600, Height: 800},
		1: {Width: 600, Height: 800},
	}
	requests := []placement.AnnotationRequest{{Ordinal: 1}, {Ordinal: 2}}

	rep := Verify(placements, nil, pages, requests)
	if !rep.Approved {
		t.Fatalf("identical rects on different pages must not conflict: %v", rep.Strings())
	}
}

func TestVerifyReportsOutOfBounds(t *testing.T) {
	placements := []placement.Placement{
		{Ordinal: 1, Page: 0, Rect: geom.Rect{X0: 500, Y0: 100, X1: 650, Y1: 120}},
	}
	requests := []placement.AnnotationRequest{{Ordinal: 1}}

	rep := Verify(placements, nil, dims(), requests)
	if rep.Approved {
		t.Fatal("expected rejection")
	}
	found := false
	for _, is := range rep.Issues {
		if is.Kind == IssueOutOfBounds {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected out_of_bounds issue, got %v", rep.Strings())
	}
}

func TestVerifyReportsMissingAnnotation(t *testing.T) {
	placements := []placement.Placement{
		{Ordinal: 1, Page: 0, Rect: geom.Rect{X0: 100, Y0: 100, X1: 200, Y1: 120}},
	}
	requests := []placement.AnnotationRequest{{Ordinal: 1}, {Ordinal: 2}}

	rep := Verify(placements, nil, dims(), requests)
	if rep.Approved {
		t.Fatal("expected rejection")
	}
	if len(rep.Issues) != 1 || rep.Issues[0].Kind != IssueMissing || rep.Issues[0].Ordinal != 2 {
		t.Fatalf("expected missing_annotation for ordinal 2, got %v", rep.Strings())
	}
}

func TestVerifyReportsInvalidRectWithoutFailing(t *testing.T) {
	placements := []placement.Placement{
		{Ordinal: 1, Page: 0, Rect: geom.Rect{X0: 300, Y0: 120, X1: 100, Y1: 100}},
	}
	requests := []placement.AnnotationRequest{{Ordinal: 1}}

	rep := Verify(placements, nil, dims(), requests)
	if rep.Approved {
		t.Fatal("expected rejection")
	}
	if rep.Issues[0].Kind != IssueInvalidRect {
		t.Fatalf("expected invalid_rect, got %v", rep.Strings())
	}
}

func TestVerifyUnknownPageSkipsBoundsCheck(t *testing.T) {
	placements := []placement.Placement{
		{Ordinal: 1, Page: 5, Rect: geom.Rect{X0: 100, Y0: 100, X1: 200, Y1: 120}},
	}
	requests := []placement.AnnotationRequest{{Ordinal: 1}}

	rep := Verify(placements, nil, dims(), requests)
	if !rep.Approved {
		t.Fatalf("bounds check must be skipped when page dims are unknown: %v", rep.Strings())
	}
}
