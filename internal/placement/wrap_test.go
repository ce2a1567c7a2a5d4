package placement

import (
	"strings"
	"testing"
)

func TestWrapSingleLine(t *testing.T) {
	lines := wrap("Good answer", 260, 5.5)
	if len(lines) != 1 || lines[0] != "Good answer" {
		t.Fatalf("got %q", lines)
	}
}

func TestWrapEmpty(t *testing.T) {
	if lines := wrap("   ", 100, 5.5); lines != nil {
		t.Fatalf("expected nil, got %q", lines)
	}
}

func TestWrapPacksGreedily(t *testing.T) {
	// charWidth 10, available 100: "aaaa bbbb" consumes 40+10+40 = 90, the
	// next word would push past 100 and must start a new line.
	lines := wrap("aaaa bbbb cccc", 100, 10)
	if len(lines) != 2 {
		t.Fatalf("expected 2 lines, got %q", lines)
	}
	if lines[0] != "aaaa bbbb" || lines[1] != "cccc" {
		t.Fatalf("got %q", lines)
	}
}

func TestWrapOversizeWordGetsOwnLine(t *testing.T) {
	lines := wrap("hi incomprehensibilities ok", 50, 10)
	if len(lines) != 3 {
		t.Fatalf("expected 3 lines, got %q", lines)
	}
	if lines[1] != "incomprehensibilities" {
		t.Fatalf("got %q", lines)
	}
}

func TestWrapPreservesText(t *testing.T) {
	text := "The reasoning is mostly sound but the final step drops a negative sign"
	for _, avail := range []float64{40, 90, 200, 1000} {
		lines := wrap(text, avail, 5.5)
		joined := strings.Join(lines, " ")
		if joined != text {
			t.Errorf("avail %.0f: join mismatch: %q", avail, joined)
		}
	}
}

func TestBlockWidth(t *testing.T) {
	if w := blockWidth([]string{"ab", "abcd", "a"}, 10); w != 40 {
		t.Fatalf("got %v", w)
	}
	if w := blockWidth(nil, 10); w != 0 {
		t.Fatalf("got %v", w)
	}
}
