package layout

import (
	"testing"

	"github.com/local/exammarker/internal/geom"
)

func line(page int, y0, y1 float64, text string) Line {
	return Line{Page: page, BBox: geom.Rect{X0: 50, Y0: y0, X1: 400, Y1: y1}, Text: text}
}

func TestClassifyPromptAnswerFlow(t *testing.T) {
	lines := []Line{
		line(0, 40, 55, "Midterm Exam"),
		line(0, 100, 115, "Question 1: Define a goroutine."),
		line(0, 130, 145, "Answer: A lightweight thread managed by the runtime."),
		line(0, 200, 215, "Question 2: What does gofmt do?"),
		line(0, 230, 245, "It formats source code."),
	}

	a := NewClassifier().Classify(lines)

	if a.Confidence != 0.9 {
		t.Fatalf("confidence = %v, want 0.9", a.Confidence)
	}
	if len(a.Regions) != 5 {
		t.Fatalf("got %d regions, want 5", len(a.Regions))
	}

	if a.Regions[0].Kind != KindPlain {
		t.Errorf("title should be plain, got %v", a.Regions[0].Kind)
	}

	prompts := a.Prompts()
	if len(prompts) != 2 || prompts[0].Ordinal != 1 || prompts[1].Ordinal != 2 {
		t.Fatalf("prompts = %+v", prompts)
	}

	r1, ok := a.ResponseFor(1)
	if !ok || r1.Text != "A lightweight thread managed by the runtime." {
		t.Errorf("response 1 = %+v ok=%v", r1, ok)
	}

	// Implied response: plain prose below the most recent prompt.
	r2, ok := a.ResponseFor(2)
	if !ok || r2.Text != "It formats source code." {
		t.Errorf("implied response 2 = %+v ok=%v", r2, ok)
	}
}

func TestClassifyNoPromptsZeroConfidence(t *testing.T) {
	lines := []Line{
		line(0, 40, 55, "A plain paragraph."),
		line(0, 70, 85, "Another one."),
	}
	a := NewClassifier().Classify(lines)
	if a.Confidence != 0.0 {
		t.Fatalf("confidence = %v, want 0.0", a.Confidence)
	}
	for _, r := range a.Regions {
		if r.Kind != KindPlain {
			t.Errorf("region %+v should be plain", r)
		}
	}
}

func TestClassifyAnswerBeforeAnyPromptIsPlain(t *testing.T) {
	lines := []Line{
		line(0, 40, 55, "Answer: orphaned"),
		line(0, 100, 115, "Question 1: real prompt"),
	}
	a := NewClassifier().Classify(lines)
	if a.Regions[0].Kind != KindPlain {
		t.Errorf("orphan answer should be plain, got %v", a.Regions[0].Kind)
	}
}

func TestClassifyMultiplePromptsTrackLatest(t *testing.T) {
	lines := []Line{
		line(0, 100, 115, "1. first"),
		line(0, 130, 145, "alpha"),
		line(0, 160, 175, "2. second"),
		line(0, 190, 205, "beta"),
	}
	a := NewClassifier().Classify(lines)

	r, ok := a.ResponseFor(2)
	if !ok || r.Text != "beta" {
		t.Fatalf("response 2 = %+v ok=%v", r, ok)
	}
	r, ok = a.ResponseFor(1)
	if !ok || r.Text != "alpha" {
		t.Fatalf("response 1 = %+v ok=%v", r, ok)
	}
}

func TestClassifySkipsMalformedLines(t *testing.T) {
	lines := []Line{
		{Page: 0, BBox: geom.Rect{X0: 10, Y0: 30, X1: 5, Y1: 20}, Text: "inverted bbox"},
		line(0, 100, 115, "   "),
		line(0, 130, 145, "Question 1: kept"),
	}
	a := NewClassifier().Classify(lines)
	if len(a.Regions) != 1 || a.Regions[0].Kind != KindPrompt {
		t.Fatalf("regions = %+v", a.Regions)
	}
}

func TestClassifyOutputSortedByPageThenY(t *testing.T) {
	lines := []Line{
		line(0, 100, 115, "Question 1: p0"),
		line(1, 50, 65, "Question 2: p1"),
		line(1, 90, 105, "Answer: second page answer"),
	}
	a := NewClassifier().Classify(lines)
	last := struct {
		page int
		y    float64
	}{-1, -1}
	for _, r := range a.Regions {
		if r.Page < last.page || (r.Page == last.page && r.BBox.Y0 < last.y) {
			t.Fatalf("regions out of order: %+v", a.Regions)
		}
		last.page, last.y = r.Page, r.BBox.Y0
	}
}
