package render

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/fogleman/gg"
	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/rs/zerolog/log"

	"github.com/local/exammarker/internal/grading"
)

// US Letter in points.
const (
	reportPageWidth  = 612.0
	reportPageHeight = 792.0
)

// ReportData is everything the score report shows.
type ReportData struct {
	JobID       string
	StudentName string
	GradedAt    time.Time
	Grades      []grading.Grade
	Degraded    bool // annotation layout never passed the quality gate
}

// Totals sums scores across all questions.
func (r ReportData) Totals() (score, max float64) {
	for _, g := range r.Grades {
		score += g.Score
		max += g.MaxScore
	}
	return score, max
}

// WriteReport renders a one-or-more page score report PDF to outPath.
func (a *Annotator) WriteReport(data ReportData, outPath string) error {
	tmpDir, err := os.MkdirTemp("", "exammarker-report-*")
	if err != nil {
		return fmt.Errorf("failed to create report dir: %w", err)
	}
	defer os.RemoveAll(tmpDir)

	scale := float64(a.opts.DPI) / 72.0
	pages := a.reportPages(data, scale)

	files := make([]string, 0, len(pages))
	for i, dc := range pages {
		f := filepath.Join(tmpDir, fmt.Sprintf("report-%02d.png", i))
		if err := dc.SavePNG(f); err != nil {
			return fmt.Errorf("failed to save report page %d: %w", i+1, err)
		}
		files = append(files, f)
	}

	if err := api.ImportImagesFile(files, outPath, nil, nil); err != nil {
		return fmt.Errorf("failed to assemble report PDF: %w", err)
	}

	score, max := data.Totals()
	log.Info().
		Str("job_id", data.JobID).
		Str("out", outPath).
		Float64("score", score).
		Float64("max", max).
		Msg("score report written")
	return nil
}

func (a *Annotator) reportPages(data ReportData, scale float64) []*gg.Context {
	const margin = 56.0
	lineStep := a.opts.FontSize + 8

	newPage := func() *gg.Context {
		dc := gg.NewContext(int(reportPageWidth*scale), int(reportPageHeight*scale))
		dc.SetRGB(1, 1, 1)
		dc.Clear()
		return dc
	}

	var pages []*gg.Context
	dc := newPage()
	y := margin

	text := func(s string, size float64, r, g, b float64) {
		if y+lineStep > reportPageHeight-margin {
			pages = append(pages, dc)
			dc = newPage()
			y = margin
		}
		dc.SetRGB(r, g, b)
		dc.SetFontFace(faceAt(a.font, size*scale))
		dc.DrawString(s, margin*scale, (y+size)*scale)
		y += size + 8
	}

	text("Grading Report", 20, 0, 0, 0)
	y += 4
	if data.StudentName != "" {
		text("Student: "+data.StudentName, a.opts.FontSize, 0.2, 0.2, 0.2)
	}
	text("Graded: "+data.GradedAt.Format("2006-01-02 15:04"), a.opts.FontSize, 0.2, 0.2, 0.2)
	if data.Degraded {
		text("Note: some annotations could not be placed cleanly, please review the marked copy.", a.opts.FontSize, 0.8, 0.3, 0)
	}
	y += 8

	for _, g := range data.Grades {
		r, gr, b := 0.8, 0.08, 0.08
		if g.Correct {
			r, gr, b = 0, 0.55, 0.12
		}
		text(fmt.Sprintf("Question %d: %.1f / %.1f", g.Ordinal, g.Score, g.MaxScore), a.opts.FontSize, r, gr, b)
		if g.Feedback != "" {
			text("    "+g.Feedback, a.opts.FontSize-1, 0.25, 0.25, 0.25)
		}
	}

	y += 8
	score, max := data.Totals()
	pct := 0.0
	if max > 0 {
		pct = 100 * score / max
	}
	text(fmt.Sprintf("Total: %.1f / %.1f (%.0f%%)", score, max, pct), a.opts.FontSize+3, 0, 0, 0)

	return append(pages, dc)
}
