package engine

import (
	"context"

	"github.com/rs/zerolog/log"

	"github.com/local/exammarker/internal/geom"
	"github.com/local/exammarker/internal/layout"
	mpkg "github.com/local/exammarker/internal/metrics"
	"github.com/local/exammarker/internal/placement"
	"github.com/local/exammarker/internal/quality"
)

// State names the phases of one placement run. Exposed mainly for logging
// and progress reporting.
type State string

const (
	StatePlanning   State = "planning"
	StateValidating State = "validating"
	StateApproved   State = "approved"
	StateRejected   State = "rejected"
	StateExhausted  State = "exhausted"
)

// DefaultMaxRetries bounds the plan/validate loop.
const DefaultMaxRetries = 3

// extraMarginStep is how much spacing each escalation adds, in points.
const extraMarginStep = 5.0

// Result is the outcome of a full run. Degraded is set when no attempt ever
// passed the gate; the best attempt is still returned rather than nothing.
type Result struct {
	Placements []placement.Placement
	Report     quality.Report
	Attempts   int
	Approved   bool
	Degraded   bool
}

// Engine drives planner and gate in a bounded retry loop.
type Engine struct {
	planner    *placement.Planner
	maxRetries int
}

// New returns an engine around the given planner. maxRetries <= 0 falls back
// to DefaultMaxRetries.
func New(planner *placement.Planner, maxRetries int) *Engine {
	if maxRetries <= 0 {
		maxRetries = DefaultMaxRetries
	}
	return &Engine{planner: planner, maxRetries: maxRetries}
}

// Run plans every annotation, validates the full set, and retries with
// escalated constraints while the gate keeps rejecting. Escalation widens
// spacing each attempt and disables the right-of strategy for ordinals
// implicated in overlap issues. If all attempts fail, the attempt with the
// fewest issues is returned with Degraded set.
func (e *Engine) Run(ctx context.Context, analysis layout.Analysis, requests []placement.AnnotationRequest, pages map[int]geom.PageDims) (Result, error) {
	noRightOf := make(map[int]bool)
	var best Result

	for attempt := 1; attempt <= e.maxRetries; attempt++ {
		if err := ctx.Err(); err != nil {
			return best, err
		}

		extra := float64(attempt-1) * extraMarginStep
		log.Info().
			Int("attempt", attempt).
			Int("max_retries", e.maxRetries).
			Float64("extra_margin", extra).
			Str("state", string(StatePlanning)).
			Msg("planning annotation layout")

		placements := e.plan(analysis, requests, pages, noRightOf, extra)

		log.Debug().Str("state", string(StateValidating)).Msg("validating layout")
		report := quality.Verify(placements, analysis.Regions, pages, requests)

		cur := Result{Placements: placements, Report: report, Attempts: attempt, Approved: report.Approved}
		if report.Approved {
			log.Info().Int("attempt", attempt).Str("state", string(StateApproved)).Msg("layout approved")
			countPlacements(placements)
			return cur, nil
		}

		if best.Attempts == 0 || len(report.Issues) < len(best.Report.Issues) {
			best = cur
		}
		log.Warn().
			Int("attempt", attempt).
			Int("issues", len(report.Issues)).
			Str("state", string(StateRejected)).
			Msg("layout rejected, escalating constraints")

		e.escalate(report, placements, noRightOf)
	}

	best.Degraded = true
	best.Attempts = e.maxRetries
	countPlacements(best.Placements)
	for _, issue := range best.Report.Issues {
		mpkg.IncGateIssue(string(issue.Kind))
	}
	log.Warn().
		Int("attempts", e.maxRetries).
		Int("issues", len(best.Report.Issues)).
		Str("state", string(StateExhausted)).
		Msg("retries exhausted, returning best degraded layout")
	return best, nil
}

// countPlacements records the strategies of the final accepted layout only,
// so retried attempts do not inflate the counters.
func countPlacements(placements []placement.Placement) {
	for _, pl := range placements {
		mpkg.IncPlacement(string(pl.Strategy))
	}
}

// plan runs one full attempt: occupancy seeded from the original regions,
// then one placement per request in ordinal order.
func (e *Engine) plan(analysis layout.Analysis, requests []placement.AnnotationRequest, pages map[int]geom.PageDims, noRightOf map[int]bool, extra float64) []placement.Placement {
	occ := placement.NewOccupancy()
	for _, reg := range analysis.Regions {
		occ.Add(reg.Page, reg.BBox)
	}

	placements := make([]placement.Placement, 0, len(requests))
	for _, req := range requests {
		target, ok := e.anchorRegion(analysis, req.Ordinal)
		if !ok {
			log.Warn().Int("ordinal", req.Ordinal).Msg("no region to anchor annotation, skipping")
			continue
		}
		dims, ok := pages[target.Page]
		if !ok {
			log.Warn().Int("page", target.Page).Msg("unknown page dimensions, skipping annotation")
			continue
		}
		con := placement.Constraints{NoRightOf: noRightOf[req.Ordinal], ExtraMargin: extra}
		placements = append(placements, e.planner.Plan(target, req, occ, dims, con))
	}
	return placements
}

// anchorRegion picks the region an annotation attaches to: the response for
// its ordinal, or the prompt when no response was detected.
func (e *Engine) anchorRegion(analysis layout.Analysis, ordinal int) (layout.Region, bool) {
	if reg, ok := analysis.ResponseFor(ordinal); ok {
		return reg, true
	}
	for _, reg := range analysis.Regions {
		if reg.Kind == layout.KindPrompt && reg.Ordinal == ordinal {
			return reg, true
		}
	}
	return layout.Region{}, false
}

// escalate records which ordinals were implicated in overlap issues so the
// next attempt skips their first-choice strategy.
func (e *Engine) escalate(report quality.Report, placements []placement.Placement, noRightOf map[int]bool) {
	for _, issue := range report.Issues {
		if issue.Kind != quality.IssueOverlap {
			continue
		}
		for _, pl := range placements {
			if pl.Page == issue.Page && (pl.Rect == issue.A || pl.Rect == issue.B) {
				noRightOf[pl.Ordinal] = true
			}
		}
	}
}
