package placement

import "strings"

// wrap splits text into lines using greedy word packing: words accumulate
// while the running width plus the next word still fits the available width.
// A word wider than the whole line gets a line of its own rather than being
// split, so the original text always survives a join with single spaces.
func wrap(text string, availableWidth, charWidth float64) []string {
	words := strings.Fields(text)
	if len(words) == 0 {
		return nil
	}

	var lines []string
	var current []string
	running := 0.0

	for _, w := range words {
		wordWidth := float64(len(w)) * charWidth
		if len(current) > 0 && running+wordWidth > availableWidth {
			lines = append(lines, strings.Join(current, " "))
			current = current[:0]
			running = 0
		}
		current = append(current, w)
		running += wordWidth + charWidth // account for the trailing space
	}
	if len(current) > 0 {
		lines = append(lines, strings.Join(current, " "))
	}
	return lines
}

// blockWidth is the width of the longest wrapped line.
func blockWidth(lines []string, charWidth float64) float64 {
	maxLen := 0
	for _, ln := range lines {
		if len(ln) > maxLen {
			maxLen = len(ln)
		}
	}
	return float64(maxLen) * charWidth
}
