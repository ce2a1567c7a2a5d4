package render

import (
	"testing"
	"time"

	"github.com/fogleman/gg"

	"github.com/local/exammarker/internal/grading"
	"github.com/local/exammarker/internal/placement"
)

func newTestAnnotator(t *testing.T) *Annotator {
	t.Helper()
	a, err := NewAnnotator(Options{DPI: 72, FontSize: 11})
	if err != nil {
		t.Fatal(err)
	}
	return a
}

func TestNewAnnotatorEmbeddedFont(t *testing.T) {
	a := newTestAnnotator(t)
	if a.font == nil {
		t.Fatal("embedded font not loaded")
	}
	if a.opts.DPI != 72 {
		t.Errorf("dpi = %d", a.opts.DPI)
	}
}

func TestNewAnnotatorDefaults(t *testing.T) {
	a, err := NewAnnotator(Options{})
	if err != nil {
		t.Fatal(err)
	}
	if a.opts.DPI != DefaultDPI || a.opts.FontSize != 11 {
		t.Errorf("opts = %+v", a.opts)
	}
}

func TestNewAnnotatorMissingFontFile(t *testing.T) {
	if _, err := NewAnnotator(Options{FontPath: "/nonexistent/font.ttf"}); err == nil {
		t.Fatal("expected error for missing font file")
	}
}

func TestDrawPage(t *testing.T) {
	a := newTestAnnotator(t)
	dc := gg.NewContext(600, 800)

	placements := []placement.Placement{
		{
			Ordinal:    1,
			AnchorX:    310,
			AnchorY:    100,
			Lines:      []string{"Good answer"},
			LineHeight: 15,
			Color:      placement.ColorPositive,
		},
		{
			Ordinal:    2,
			AnchorX:    100,
			AnchorY:    200,
			Lines:      []string{"Wrong sign in", "the last step"},
			LineHeight: 15,
			Color:      placement.ColorNegative,
		},
	}

	// Must not panic; pixel-exact output is not asserted.
	a.drawPage(dc, placements, 1)
	a.drawPage(dc, nil, 1)
}

func TestReportTotals(t *testing.T) {
	data := ReportData{Grades: []grading.Grade{
		{Ordinal: 1, Score: 5, MaxScore: 5},
		{Ordinal: 2, Score: 2.5, MaxScore: 10},
	}}
	score, max := data.Totals()
	if score != 7.5 || max != 15 {
		t.Fatalf("totals = %v/%v", score, max)
	}
}

func TestReportPagesPaginate(t *testing.T) {
	a := newTestAnnotator(t)

	var grades []grading.Grade
	for i := 1; i <= 60; i++ {
		grades = append(grades, grading.Grade{Ordinal: i, Score: 1, MaxScore: 1, Feedback: "ok", Correct: true})
	}
	data := ReportData{
		JobID:       "j1",
		StudentName: "Sample Student",
		GradedAt:    time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC),
		Grades:      grades,
		Degraded:    true,
	}

	pages := a.reportPages(data, 1)
	if len(pages) < 2 {
		t.Fatalf("60 graded questions must spill onto a second page, got %d", len(pages))
	}
}
