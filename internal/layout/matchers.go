package layout

import (
	"regexp"
	"strconv"
	"strings"
)

// MatchKind tags the result of a single line matcher.
type MatchKind int

const (
	MatchNone MatchKind = iota
	MatchPrompt
	MatchResponse
)

// Match is the tagged result of running a Matcher against a line of text.
// Ordinal is set only for MatchPrompt; Text carries the line content with the
// marker stripped.
type Match struct {
	Kind    MatchKind
	Ordinal int
	Text    string
}

// Matcher tests one line of raw text against a single marker pattern.
type Matcher func(text string) Match

var (
	reQuestionColon = regexp.MustCompile(`(?i)^Question\s*(\d+)\s*:\s*(.*)`)
	reQuestionDot   = regexp.MustCompile(`(?i)^Question\s*(\d+)\s*[.)\]]\s*(.*)`)
	reQAbbrev       = regexp.MustCompile(`(?i)^Q\.?\s*(\d+)\s*[:.]\s*(.*)`)
	reBareNumber    = regexp.MustCompile(`^(\d+)\s*[.)\]]\s*(.*)`)

	reAnswer = regexp.MustCompile(`(?i)^(?:Answer|Ans|A)\s*:\s*(.*)`)
)

func promptMatcher(re *regexp.Regexp) Matcher {
	return func(text string) Match {
		m := re.FindStringSubmatch(strings.TrimSpace(text))
		if m == nil {
			return Match{Kind: MatchNone}
		}
		n, err := strconv.Atoi(m[1])
		if err != nil {
			return Match{Kind: MatchNone}
		}
		return Match{Kind: MatchPrompt, Ordinal: n, Text: strings.TrimSpace(m[2])}
	}
}

// MatchAnswerMarker matches explicit response markers ("Answer:", "A:", "Ans:").
func MatchAnswerMarker(text string) Match {
	m := reAnswer.FindStringSubmatch(strings.TrimSpace(text))
	if m == nil {
		return Match{Kind: MatchNone}
	}
	return Match{Kind: MatchResponse, Text: strings.TrimSpace(m[1])}
}

// DefaultMatchers is the ordered matcher list used by the classifier. Prompt
// patterns come first; order matters because the first match wins.
func DefaultMatchers() []Matcher {
	return []Matcher{
		promptMatcher(reQuestionColon),
		promptMatcher(reQuestionDot),
		promptMatcher(reQAbbrev),
		promptMatcher(reBareNumber),
		MatchAnswerMarker,
	}
}
