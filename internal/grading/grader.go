package grading

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog/log"

	"github.com/local/exammarker/internal/limiter"
	mpkg "github.com/local/exammarker/internal/metrics"
)

// ProviderModels names the model tiers for one provider.
type ProviderModels struct {
	Primary   string
	Secondary string
}

// Options configures the failover grader.
type Options struct {
	PrimaryProvider  string // "openai" or "anthropic"
	OpenAI           ProviderModels
	Anthropic        ProviderModels
	RequestTimeout   time.Duration
	RateLimitRetries uint64
	RateLimitWait    time.Duration
	MaxInflight      int // concurrent requests per provider:model, 0 = unlimited
}

// Grader grades answers with 4-step provider/model failover and a circuit
// breaker, retrying rate-limited calls with a constant backoff before moving
// to the next tier.
type Grader struct {
	clients  map[string]Client
	breaker  Breaker
	inflight *limiter.Inflight
	opts     Options
}

func NewGrader(openai, anthropic Client, breaker Breaker, opts Options) *Grader {
	if breaker == nil {
		breaker = noopBreaker{}
	}
	if opts.PrimaryProvider == "" {
		opts.PrimaryProvider = "openai"
	}
	if opts.RequestTimeout <= 0 {
		opts.RequestTimeout = 60 * time.Second
	}
	if opts.RateLimitRetries == 0 {
		opts.RateLimitRetries = 4
	}
	if opts.RateLimitWait <= 0 {
		opts.RateLimitWait = 2 * time.Second
	}
	return &Grader{
		clients:  map[string]Client{"openai": openai, "anthropic": anthropic},
		breaker:  breaker,
		inflight: limiter.NewInflight(opts.MaxInflight),
		opts:     opts,
	}
}

// WithPrimary returns a copy of the grader whose failover ladder starts at
// the given provider. Unknown providers return the receiver unchanged.
func (g *Grader) WithPrimary(provider string) *Grader {
	if provider != "openai" && provider != "anthropic" {
		return g
	}
	c := *g
	c.opts.PrimaryProvider = provider
	return &c
}

func (g *Grader) models(provider string) ProviderModels {
	if provider == "anthropic" {
		return g.opts.Anthropic
	}
	return g.opts.OpenAI
}

// GradeAnswer runs the failover ladder for one question:
//
//	1. primary provider, primary model
//	2. primary provider, secondary model
//	3. secondary provider, primary model
//	4. secondary provider, secondary model
//
// Tiers behind an open breaker are skipped; transient failures trip the
// breaker and fall through; fatal errors stop the ladder immediately.
func (g *Grader) GradeAnswer(ctx context.Context, req Request) (Grade, error) {
	primary := g.opts.PrimaryProvider
	secondary := "anthropic"
	if primary == "anthropic" {
		secondary = "openai"
	}

	type tier struct {
		provider string
		model    string
	}
	tiers := []tier{
		{primary, g.models(primary).Primary},
		{primary, g.models(primary).Secondary},
		{secondary, g.models(secondary).Primary},
		{secondary, g.models(secondary).Secondary},
	}

	var lastErr error
	seen := make(map[tier]bool)

	for i, t := range tiers {
		if t.model == "" || seen[t] {
			continue
		}
		seen[t] = true

		client := g.clients[t.provider]
		if client == nil {
			continue
		}
		if g.breaker.IsOpen(ctx, t.provider, t.model) {
			log.Debug().
				Str("provider", t.provider).
				Str("model", t.model).
				Msg("circuit breaker OPEN - skipping tier")
			continue
		}

		log.Info().
			Str("job_id", req.JobID).
			Int("ordinal", req.Ordinal).
			Str("provider", t.provider).
			Str("model", t.model).
			Msgf("grading attempt [%d/%d]", i+1, len(tiers))

		grade, err := g.callProvider(ctx, client, t.provider, t.model, req)
		if err == nil {
			g.breaker.Close(ctx, t.provider, t.model)
			mpkg.BreakerClosed(t.provider, t.model)
			return grade, nil
		}

		if isFatalError(err) {
			log.Error().
				Err(err).
				Str("job_id", req.JobID).
				Int("ordinal", req.Ordinal).
				Str("provider", t.provider).
				Str("model", t.model).
				Msg("fatal grading error - no retry")
			return Grade{}, err
		}
		if isTransientError(err) {
			g.breaker.Open(ctx, t.provider, t.model)
			mpkg.BreakerOpened(t.provider, t.model)
			log.Warn().
				Err(err).
				Str("job_id", req.JobID).
				Int("ordinal", req.Ordinal).
				Str("provider", t.provider).
				Str("model", t.model).
				Msg("transient grading error - trying next tier")
		}
		lastErr = err
	}

	mpkg.ObserveProvider("all", "all", "exhausted", 0)
	if lastErr == nil {
		lastErr = fmt.Errorf("all grading providers exhausted for job %s question %d", req.JobID, req.Ordinal)
	}
	return Grade{}, lastErr
}

// callProvider runs one tier with a per-call timeout, retrying rate-limited
// responses with a constant backoff before giving the tier up.
func (g *Grader) callProvider(ctx context.Context, client Client, provider, model string, req Request) (Grade, error) {
	req.Model = model

	release, err := g.inflight.Acquire(ctx, provider, model)
	if err != nil {
		return Grade{}, err
	}
	defer release()

	op := func() (Grade, error) {
		// Fresh timeout per attempt so an exhausted deadline from a previous
		// try does not poison this one.
		cctx, cancel := context.WithTimeout(ctx, g.opts.RequestTimeout)
		defer cancel()

		start := time.Now()
		grade, err := client.Grade(cctx, req)
		dur := time.Since(start)

		if err != nil && cctx.Err() == context.DeadlineExceeded {
			mpkg.ObserveProvider(provider, model, "timeout", dur)
			return Grade{}, backoff.Permanent(&RateLimitError{Provider: provider, Model: model, Reason: "timeout"})
		}

		result := "success"
		if err != nil {
			switch {
			case IsRateLimited(err):
				result = "rate_limited"
			case isTransientError(err):
				result = "transient"
			case isFatalError(err):
				result = "fatal"
			default:
				result = "unknown"
			}
		}
		mpkg.ObserveProvider(provider, model, result, dur)

		if err != nil && !IsRateLimited(err) {
			return Grade{}, backoff.Permanent(err)
		}
		return grade, err
	}

	grade, err := backoff.RetryWithData(op, backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewConstantBackOff(g.opts.RateLimitWait), g.opts.RateLimitRetries), ctx))
	if err != nil {
		var perm *backoff.PermanentError
		if errors.As(err, &perm) {
			return Grade{}, perm.Unwrap()
		}
		return Grade{}, err
	}
	return grade, nil
}

// GradeAll grades every request in order. A question whose ladder is fully
// exhausted still gets a zero-score grade so the annotation set stays
// complete; the document is not failed for one ungradeable answer.
func (g *Grader) GradeAll(ctx context.Context, reqs []Request) ([]Grade, error) {
	grades := make([]Grade, 0, len(reqs))
	for _, req := range reqs {
		if err := ctx.Err(); err != nil {
			return grades, err
		}
		grade, err := g.GradeAnswer(ctx, req)
		if err != nil {
			log.Error().
				Err(err).
				Str("job_id", req.JobID).
				Int("ordinal", req.Ordinal).
				Msg("question could not be graded, recording zero score")
			grade = Grade{
				Ordinal:  req.Ordinal,
				Score:    0,
				MaxScore: req.MaxScore,
				Feedback: "Could not grade this answer automatically, please review",
				Correct:  false,
			}
		}
		grades = append(grades, grade)
	}
	return grades, nil
}
