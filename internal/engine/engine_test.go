package engine

import (
	"context"
	"testing"

	"github.com/local/exammarker/internal/geom"
	"github.com/local/exammarker/internal/layout"
	"github.com/local/exammarker/internal/placement"
	"github.com/local/exammarker/internal/quality"
)

func testPages() map[int]geom.PageDims {
	return map[int]geom.PageDims{0: {Width: 600, Height: 800}}
}

func simpleAnalysis() layout.Analysis {
	return layout.Analysis{
		Regions: []layout.Region{
			{Page: 0, BBox: geom.Rect{X0: 50, Y0: 50, X1: 300, Y1: 70}, Kind: layout.KindPrompt, Ordinal: 1},
			{Page: 0, BBox: geom.Rect{X0: 50, Y0: 80, X1: 300, Y1: 100}, Kind: layout.KindResponse, Ordinal: 1},
		},
		Confidence: 0.9,
	}
}

func newTestEngine() *Engine {
	return New(placement.NewPlanner(placement.DefaultConfig()), DefaultMaxRetries)
}

func TestRunApprovesOnFirstAttempt(t *testing.T) {
	requests := []placement.AnnotationRequest{{Ordinal: 1, Text: "Good", Polarity: placement.PolarityCorrect}}

	res, err := newTestEngine().Run(context.Background(), simpleAnalysis(), requests, testPages())
	if err != nil {
		t.Fatal(err)
	}
	if !res.Approved || res.Degraded {
		t.Fatalf("expected clean approval, got %+v issues %v", res, res.Report.Strings())
	}
	if res.Attempts != 1 {
		t.Errorf("attempts = %d, want 1", res.Attempts)
	}
	if len(res.Placements) != 1 || res.Placements[0].Strategy != placement.StrategyRightOf {
		t.Errorf("placements = %+v", res.Placements)
	}
}

func TestRunExhaustsAndReturnsBestAttempt(t *testing.T) {
	// A region covering the whole page makes every placement degrade and
	// overlap, so no attempt can pass the gate.
	analysis := layout.Analysis{
		Regions: []layout.Region{
			{Page: 0, BBox: geom.Rect{X0: 0, Y0: 0, X1: 600, Y1: 800}, Kind: layout.KindResponse, Ordinal: 1},
		},
		Confidence: 0.9,
	}
	requests := []placement.AnnotationRequest{{Ordinal: 1, Text: "No room at all"}}

	res, err := newTestEngine().Run(context.Background(), analysis, requests, testPages())
	if err != nil {
		t.Fatal(err)
	}
	if res.Approved {
		t.Fatal("impossible layout must not be approved")
	}
	if !res.Degraded {
		t.Fatal("exhausted run must be flagged degraded")
	}
	if res.Attempts != DefaultMaxRetries {
		t.Errorf("attempts = %d, want %d", res.Attempts, DefaultMaxRetries)
	}
	if len(res.Placements) != 1 {
		t.Fatalf("degraded result must still carry placements, got %d", len(res.Placements))
	}
	if !res.Placements[0].Degraded {
		t.Error("placement should be the degraded fallback")
	}
	if len(res.Report.Issues) == 0 {
		t.Error("degraded result must carry the failing report")
	}
}

func TestRunAnchorsOnPromptWhenResponseMissing(t *testing.T) {
	analysis := layout.Analysis{
		Regions: []layout.Region{
			{Page: 0, BBox: geom.Rect{X0: 100, Y0: 100, X1: 300, Y1: 120}, Kind: layout.KindPrompt, Ordinal: 1},
		},
		Confidence: 0.9,
	}
	requests := []placement.AnnotationRequest{{Ordinal: 1, Text: "No answer given"}}

	res, err := newTestEngine().Run(context.Background(), analysis, requests, testPages())
	if err != nil {
		t.Fatal(err)
	}
	if !res.Approved {
		t.Fatalf("expected approval, issues: %v", res.Report.Strings())
	}
	if len(res.Placements) != 1 || res.Placements[0].Page != 0 {
		t.Fatalf("placements = %+v", res.Placements)
	}
}

func TestRunReportsMissingWhenNoAnchorExists(t *testing.T) {
	requests := []placement.AnnotationRequest{{Ordinal: 7, Text: "Orphan"}}

	res, err := newTestEngine().Run(context.Background(), simpleAnalysis(), requests, testPages())
	if err != nil {
		t.Fatal(err)
	}
	if res.Approved {
		t.Fatal("unanchorable annotation must fail the gate")
	}
	if !res.Degraded {
		t.Error("expected degraded result")
	}
	found := false
	for _, is := range res.Report.Issues {
		if is.Kind == quality.IssueMissing && is.Ordinal == 7 {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected missing_annotation for ordinal 7, got %v", res.Report.Strings())
	}
}

func TestRunHonorsContextCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := newTestEngine().Run(ctx, simpleAnalysis(), nil, testPages())
	if err == nil {
		t.Fatal("expected context error")
	}
}

func TestNewDefaultsMaxRetries(t *testing.T) {
	e := New(placement.NewPlanner(placement.DefaultConfig()), 0)
	if e.maxRetries != DefaultMaxRetries {
		t.Fatalf("maxRetries = %d", e.maxRetries)
	}
}
