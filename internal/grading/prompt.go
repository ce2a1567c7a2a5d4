package grading

import (
	"encoding/json"
	"fmt"
	"strings"
)

const systemPrompt = `You are an exam grader. You receive one question, the student's answer, and optionally the expected answer from the answer key. Respond with a single JSON object and nothing else:
{"score": <number between 0 and max_score>, "feedback": "<one short sentence for the student>", "is_correct": <true|false>}
Keep the feedback under 200 characters. Award partial credit where the working is partly right.`

// userPrompt renders one grading request for the model.
func userPrompt(req Request) string {
	var b strings.Builder
	fmt.Fprintf(&b, "QUESTION %d (max_score %.1f):\n%s\n\n", req.Ordinal, req.MaxScore, req.Question)
	fmt.Fprintf(&b, "STUDENT ANSWER:\n%s\n", req.Answer)
	if req.KeyAnswer != "" {
		fmt.Fprintf(&b, "\nEXPECTED ANSWER:\n%s\n", req.KeyAnswer)
	}
	return b.String()
}

type gradePayload struct {
	Score     float64 `json:"score"`
	Feedback  string  `json:"feedback"`
	IsCorrect bool    `json:"is_correct"`
}

// parseGrade decodes the provider's JSON verdict. Models wrap JSON in
// markdown fences often enough that stripping them first is worth it.
func parseGrade(text string, req Request) (Grade, error) {
	text = strings.TrimSpace(text)
	text = strings.TrimPrefix(text, "```json")
	text = strings.TrimPrefix(text, "```")
	text = strings.TrimSuffix(text, "```")
	text = strings.TrimSpace(text)

	var p gradePayload
	if err := json.Unmarshal([]byte(text), &p); err != nil {
		return Grade{}, &ValidationError{Message: fmt.Sprintf("unparseable grading response: %v", err)}
	}

	score := p.Score
	if score < 0 {
		score = 0
	}
	if req.MaxScore > 0 && score > req.MaxScore {
		score = req.MaxScore
	}

	return Grade{
		Ordinal:  req.Ordinal,
		Score:    score,
		MaxScore: req.MaxScore,
		Feedback: trimFeedback(p.Feedback),
		Correct:  p.IsCorrect,
	}, nil
}
