package render

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/fogleman/gg"
	"github.com/gen2brain/go-fitz"
	"github.com/golang/freetype/truetype"
	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/rs/zerolog/log"

	"github.com/local/exammarker/internal/placement"
)

// DefaultDPI is the raster resolution for marked pages. Placement coordinates
// are in points (72/inch), so drawing scales by DPI/72.
const DefaultDPI = 150

// Options configures the annotator.
type Options struct {
	DPI      int
	FontSize float64 // annotation font size in points
	FontPath string  // empty means the embedded fallback face
}

// Annotator draws placed annotations onto rasterized PDF pages and assembles
// the result back into a PDF.
type Annotator struct {
	opts Options
	font *truetype.Font
}

func NewAnnotator(opts Options) (*Annotator, error) {
	if opts.DPI <= 0 {
		opts.DPI = DefaultDPI
	}
	if opts.FontSize <= 0 {
		opts.FontSize = 11
	}
	f, err := loadFont(opts.FontPath)
	if err != nil {
		return nil, err
	}
	return &Annotator{opts: opts, font: f}, nil
}

// MarkDocument renders every page of pdfPath, draws the annotations placed on
// it, and writes the marked document to outPath. Pages without annotations
// are still carried over so the output has the same page count as the input.
func (a *Annotator) MarkDocument(pdfPath string, placements []placement.Placement, outPath string) error {
	doc, err := fitz.New(pdfPath)
	if err != nil {
		return fmt.Errorf("failed to open PDF: %w", err)
	}
	defer doc.Close()

	byPage := make(map[int][]placement.Placement)
	for _, pl := range placements {
		byPage[pl.Page] = append(byPage[pl.Page], pl)
	}

	tmpDir, err := os.MkdirTemp("", "exammarker-pages-*")
	if err != nil {
		return fmt.Errorf("failed to create page dir: %w", err)
	}
	defer os.RemoveAll(tmpDir)

	scale := float64(a.opts.DPI) / 72.0
	pageFiles := make([]string, 0, doc.NumPage())

	for i := 0; i < doc.NumPage(); i++ {
		img, err := doc.ImageDPI(i, float64(a.opts.DPI))
		if err != nil {
			return fmt.Errorf("failed to render page %d: %w", i+1, err)
		}

		dc := gg.NewContextForImage(img)
		a.drawPage(dc, byPage[i], scale)

		pageFile := filepath.Join(tmpDir, fmt.Sprintf("page-%04d.png", i))
		if err := dc.SavePNG(pageFile); err != nil {
			return fmt.Errorf("failed to save page %d: %w", i+1, err)
		}
		pageFiles = append(pageFiles, pageFile)

		log.Debug().
			Int("page", i+1).
			Int("annotations", len(byPage[i])).
			Msg("page rendered")
	}

	if err := api.ImportImagesFile(pageFiles, outPath, nil, nil); err != nil {
		return fmt.Errorf("failed to assemble marked PDF: %w", err)
	}

	log.Info().
		Str("out", outPath).
		Int("pages", len(pageFiles)).
		Int("annotations", len(placements)).
		Msg("marked document written")
	return nil
}

// drawPage paints one page's annotations. The anchor is the top-left corner
// of the block; gg draws strings from the baseline, so each line drops by one
// font size first.
func (a *Annotator) drawPage(dc *gg.Context, placements []placement.Placement, scale float64) {
	if len(placements) == 0 {
		return
	}
	dc.SetFontFace(faceAt(a.font, a.opts.FontSize*scale))

	for _, pl := range placements {
		if pl.Color == placement.ColorPositive {
			dc.SetRGB(0, 0.55, 0.12)
		} else {
			dc.SetRGB(0.8, 0.08, 0.08)
		}

		y := pl.AnchorY + a.opts.FontSize
		for _, line := range pl.Lines {
			dc.DrawString(line, pl.AnchorX*scale, y*scale)
			y += pl.LineHeight
		}
	}
}
