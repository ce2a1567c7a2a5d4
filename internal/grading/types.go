package grading

import (
	"context"
	"errors"
	"strings"
)

// MaxFeedbackLen caps annotation feedback so it stays placeable on a page.
const MaxFeedbackLen = 200

// Request carries one extracted question/answer pair to a grading provider.
type Request struct {
	JobID     string
	Ordinal   int
	Question  string
	Answer    string
	KeyAnswer string // expected answer from the answer key, may be empty
	MaxScore  float64
	Model     string
}

// Grade is one provider verdict for a single question.
type Grade struct {
	Ordinal  int
	Score    float64
	MaxScore float64
	Feedback string
	Correct  bool
}

// Client interface for providers like OpenAI, Anthropic.
type Client interface {
	Name() string
	Grade(ctx context.Context, req Request) (Grade, error)
}

var ErrRateLimited = errors.New("rate_limited")

func IsRateLimited(err error) bool { return errors.Is(err, ErrRateLimited) }

// trimFeedback enforces the feedback length cap, cutting at a word boundary
// where possible.
func trimFeedback(s string) string {
	s = strings.TrimSpace(s)
	if len(s) <= MaxFeedbackLen {
		return s
	}
	cut := s[:MaxFeedbackLen]
	if i := strings.LastIndexByte(cut, ' '); i > MaxFeedbackLen/2 {
		cut = cut[:i]
	}
	return cut
}
