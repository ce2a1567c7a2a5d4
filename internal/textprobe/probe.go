// Package textprobe decides whether a PDF carries enough extractable text to
// grade. Scanned image-only submissions fail the probe and are rejected
// before any provider budget is spent on them.
package textprobe

import (
	"fmt"
	"math/rand"
	"regexp"
	"sort"
	"time"
)

// DefaultThreshold is the minimum rune count across sampled pages.
const DefaultThreshold = 300

// PageProbe records the result for one sampled page.
type PageProbe struct {
	PageIndex int    `json:"page_index"`
	CharCount int    `json:"char_count"`
	Err       string `json:"err,omitempty"`
}

// Diagnostics explains a probe verdict.
type Diagnostics struct {
	FilePath     string      `json:"file_path"`
	TotalPages   int         `json:"total_pages"`
	SampledPages []int       `json:"sampled_pages"`
	TotalChars   int         `json:"total_chars"`
	Threshold    int         `json:"threshold"`
	Probes       []PageProbe `json:"probes"`
	Extractable  bool        `json:"extractable"`
	DurationMs   int64       `json:"duration_ms"`
}

// Doc abstracts an open PDF for probing.
type Doc interface {
	NumPage() int
	PageText(i int) (string, error)
	Close() error
}

// Opener opens a PDF path into a Doc. The default uses go-fitz.
type Opener interface {
	Open(path string) (Doc, error)
}

var whitespace = regexp.MustCompile(`\s+`)

// Check samples a handful of pages and reports whether the stripped rune
// count reaches threshold. threshold <= 0 uses DefaultThreshold.
func Check(opener Opener, pdfPath string, threshold int) (bool, *Diagnostics, error) {
	if threshold <= 0 {
		threshold = DefaultThreshold
	}
	if opener == nil {
		opener = fitzOpener{}
	}

	start := time.Now()
	d, err := opener.Open(pdfPath)
	if err != nil {
		return false, nil, fmt.Errorf("failed to open PDF: %w", err)
	}
	defer d.Close()

	total := d.NumPage()
	diag := &Diagnostics{
		FilePath:   pdfPath,
		TotalPages: total,
		Threshold:  threshold,
	}
	if total <= 0 {
		diag.SampledPages = []int{}
		diag.DurationMs = time.Since(start).Milliseconds()
		return false, diag, nil
	}

	sample := sampleIndices(total)
	diag.SampledPages = sample

	for _, idx := range sample {
		probe := PageProbe{PageIndex: idx}
		text, terr := d.PageText(idx)
		if terr != nil {
			probe.Err = terr.Error()
			diag.Probes = append(diag.Probes, probe)
			continue
		}
		probe.CharCount = len([]rune(whitespace.ReplaceAllString(text, "")))
		diag.TotalChars += probe.CharCount
		diag.Probes = append(diag.Probes, probe)
		if diag.TotalChars >= threshold {
			break
		}
	}

	diag.Extractable = diag.TotalChars >= threshold
	diag.DurationMs = time.Since(start).Milliseconds()
	return diag.Extractable, diag, nil
}

// sampleIndices picks up to 5 pages: all of them for short documents, else
// first, middle, last plus random fill.
func sampleIndices(total int) []int {
	if total <= 5 {
		idx := make([]int, total)
		for i := range idx {
			idx[i] = i
		}
		return idx
	}

	picked := map[int]struct{}{0: {}, total / 2: {}, total - 1: {}}
	rnd := rand.New(rand.NewSource(time.Now().UnixNano()))
	for len(picked) < 5 {
		picked[rnd.Intn(total)] = struct{}{}
	}
	out := make([]int, 0, len(picked))
	for i := range picked {
		out = append(out, i)
	}
	sort.Ints(out)
	return out
}
