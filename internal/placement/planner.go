package placement

import (
	"github.com/rs/zerolog/log"

	"github.com/local/exammarker/internal/geom"
	"github.com/local/exammarker/internal/layout"
)

// Planner computes non-overlapping annotation layouts against a per-page
// occupancy set. All arithmetic is in the page's native point units.
type Planner struct {
	cfg Config
}

// NewPlanner returns a planner using the given layout constants.
func NewPlanner(cfg Config) *Planner {
	return &Planner{cfg: cfg}
}

// Plan finds a spot for one annotation near its response region. Strategies
// are tried in order, first success wins:
//
//  1. right of the response, on the same baseline
//  2. below the response, shifting downward until free
//  3. top-down scan of a fixed-width column over the whole page
//
// If everything is taken, the annotation degrades to a fixed top-left
// position; the overlap is accepted and left for the quality gate to report.
// On success the placed block's padded rectangle is committed to occ, so later
// placements on the same page see it as taken.
func (p *Planner) Plan(resp layout.Region, req AnnotationRequest, occ *Occupancy, page geom.PageDims, con Constraints) Placement {
	margin := p.cfg.Margin + con.ExtraMargin
	gap := p.cfg.Gap + con.ExtraMargin

	if !con.NoRightOf {
		if pl, ok := p.tryRightOf(resp, req, occ, page, margin, gap); ok {
			p.commit(occ, pl)
			return pl
		}
	}

	if pl, ok := p.tryBelow(resp, req, occ, page, margin, gap); ok {
		p.commit(occ, pl)
		return pl
	}

	if pl, ok := p.tryScan(resp.Page, req, occ, page, margin, gap); ok {
		p.commit(occ, pl)
		return pl
	}

	pl := p.degraded(resp.Page, req, page, margin)
	log.Warn().
		Int("ordinal", req.Ordinal).
		Int("page", resp.Page).
		Msg("all placement strategies exhausted, using degraded top-left fallback")
	p.commit(occ, pl)
	return pl
}

func (p *Planner) tryRightOf(resp layout.Region, req AnnotationRequest, occ *Occupancy, page geom.PageDims, margin, gap float64) (Placement, bool) {
	x := resp.BBox.X1 + gap
	y := resp.BBox.Y0
	avail := page.Width - x - margin
	if avail < p.cfg.CharWidth() {
		return Placement{}, false
	}

	pl := p.build(resp.Page, req, x, y, avail, StrategyRightOf)
	if occ.Overlapping(resp.Page, pl.Rect) || !page.Contains(pl.Rect) {
		return Placement{}, false
	}
	return pl, true
}

func (p *Planner) tryBelow(resp layout.Region, req AnnotationRequest, occ *Occupancy, page geom.PageDims, margin, gap float64) (Placement, bool) {
	x := resp.BBox.X0
	y := resp.BBox.Y1 + gap
	avail := page.Width - x - margin
	if avail < p.cfg.CharWidth() {
		return Placement{}, false
	}

	step := p.cfg.LineHeight() + gap
	for y <= page.Height-margin {
		pl := p.build(resp.Page, req, x, y, avail, StrategyBelow)
		if pl.Rect.Y1 > page.Height-margin {
			return Placement{}, false
		}
		if !occ.Overlapping(resp.Page, pl.Rect) {
			return pl, true
		}
		y += step
	}
	return Placement{}, false
}

// tryScan walks a fixed-width column from the top of the page looking for the
// first free slot.
func (p *Planner) tryScan(pageNum int, req AnnotationRequest, occ *Occupancy, page geom.PageDims, margin, gap float64) (Placement, bool) {
	x := margin
	avail := page.Width - 2*margin
	if avail < p.cfg.CharWidth() {
		return Placement{}, false
	}

	step := p.cfg.LineHeight() + gap
	for y := margin; y <= page.Height-margin; y += step {
		pl := p.build(pageNum, req, x, y, avail, StrategyScan)
		if pl.Rect.Y1 > page.Height-margin {
			break
		}
		if !occ.Overlapping(pageNum, pl.Rect) {
			return pl, true
		}
	}
	return Placement{}, false
}

// degraded is the accepted-overlap last resort at the top-left margin.
func (p *Planner) degraded(pageNum int, req AnnotationRequest, page geom.PageDims, margin float64) Placement {
	avail := page.Width - 2*margin
	if avail < p.cfg.CharWidth() {
		avail = p.cfg.CharWidth()
	}
	pl := p.build(pageNum, req, margin, margin, avail, StrategyDegraded)
	pl.Degraded = true
	return pl
}

// build wraps the text at the given anchor and computes the padded extent.
func (p *Planner) build(pageNum int, req AnnotationRequest, x, y, avail float64, strat Strategy) Placement {
	lines := wrap(req.Text, avail, p.cfg.CharWidth())
	w := blockWidth(lines, p.cfg.CharWidth())
	h := float64(len(lines)) * p.cfg.LineHeight()
	rect := geom.Rect{X0: x, Y0: y, X1: x + w, Y1: y + h}.Expand(p.cfg.Padding)

	return Placement{
		Ordinal:    req.Ordinal,
		Page:       pageNum,
		AnchorX:    x,
		AnchorY:    y,
		Lines:      lines,
		LineHeight: p.cfg.LineHeight(),
		Color:      req.ColorFor(),
		Rect:       rect,
		Strategy:   strat,
	}
}

func (p *Planner) commit(occ *Occupancy, pl Placement) {
	occ.Add(pl.Page, pl.Rect)
	log.Debug().
		Int("ordinal", pl.Ordinal).
		Int("page", pl.Page).
		Str("strategy", string(pl.Strategy)).
		Str("rect", pl.Rect.String()).
		Int("lines", len(pl.Lines)).
		Msg("annotation placed")
}
