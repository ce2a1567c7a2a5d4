package extract

import (
	"fmt"

	"github.com/gen2brain/go-fitz"
	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/rs/zerolog/log"

	"github.com/local/exammarker/internal/geom"
	"github.com/local/exammarker/internal/layout"
)

// Document is the positional text content of one PDF: every text line with
// its bounding box, plus per-page dimensions in points.
type Document struct {
	Lines     []layout.Line
	Pages     map[int]geom.PageDims
	PageCount int
}

// Extractor pulls positioned text lines out of PDFs using MuPDF.
type Extractor struct{}

func NewExtractor() *Extractor {
	return &Extractor{}
}

// PageCount returns the number of pages in a PDF.
func (e *Extractor) PageCount(pdfPath string) (int, error) {
	doc, err := fitz.New(pdfPath)
	if err != nil {
		return 0, fmt.Errorf("failed to open PDF: %w", err)
	}
	defer doc.Close()

	return doc.NumPage(), nil
}

// Extract reads every page's positioned lines. Line coordinates come from
// MuPDF's structured HTML output, which carries per-paragraph offsets in
// points. The page count is cross-checked against a second parser; a mismatch
// is logged but the MuPDF count wins.
func (e *Extractor) Extract(pdfPath string) (Document, error) {
	doc, err := fitz.New(pdfPath)
	if err != nil {
		return Document{}, fmt.Errorf("failed to open PDF: %w", err)
	}
	defer doc.Close()

	out := Document{
		Pages:     make(map[int]geom.PageDims),
		PageCount: doc.NumPage(),
	}

	if n, err := api.PageCountFile(pdfPath); err == nil && n != out.PageCount {
		log.Warn().
			Str("pdf", pdfPath).
			Int("mupdf_pages", out.PageCount).
			Int("pdfcpu_pages", n).
			Msg("page count mismatch between parsers")
	}

	for i := 0; i < out.PageCount; i++ {
		bound, err := doc.Bound(i)
		if err != nil {
			return Document{}, fmt.Errorf("failed to measure page %d: %w", i+1, err)
		}
		out.Pages[i] = geom.PageDims{
			Width:  float64(bound.Dx()),
			Height: float64(bound.Dy()),
		}

		pageHTML, err := doc.HTML(i, false)
		if err != nil {
			log.Warn().Err(err).Int("page", i+1).Msg("failed to extract page layout")
			continue
		}

		lines := parsePageHTML(i, pageHTML)
		out.Lines = append(out.Lines, lines...)
	}

	log.Debug().
		Str("pdf", pdfPath).
		Int("pages", out.PageCount).
		Int("lines", len(out.Lines)).
		Msg("extracted positioned text")

	return out, nil
}
