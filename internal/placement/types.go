package placement

import "github.com/local/exammarker/internal/geom"

// Polarity marks whether the graded answer was judged correct.
type Polarity string

const (
	PolarityCorrect   Polarity = "correct"
	PolarityIncorrect Polarity = "incorrect"
)

// Color selects the annotation ink. Positive renders green, Negative red.
type Color string

const (
	ColorPositive Color = "positive"
	ColorNegative Color = "negative"
)

// AnnotationRequest is one graded item supplied by the grading collaborator:
// short feedback text to place near the response with the given ordinal.
type AnnotationRequest struct {
	Ordinal  int
	Text     string
	Polarity Polarity
}

// ColorFor maps a request's polarity to the annotation ink.
func (a AnnotationRequest) ColorFor() Color {
	if a.Polarity == PolarityCorrect {
		return ColorPositive
	}
	return ColorNegative
}

// Strategy identifies which placement strategy produced a Placement.
type Strategy string

const (
	StrategyRightOf  Strategy = "right_of"
	StrategyBelow    Strategy = "below"
	StrategyScan     Strategy = "scan"
	StrategyDegraded Strategy = "degraded"
)

// Placement is a computed annotation layout, consumed by the rendering
// collaborator. Anchor is the top-left corner of the first wrapped line;
// Rect is the padded extent committed to the occupancy set. Degraded marks
// the accepted-overlap last resort; it is never silently dropped.
type Placement struct {
	Ordinal    int
	Page       int
	AnchorX    float64
	AnchorY    float64
	Lines      []string
	LineHeight float64
	Color      Color
	Rect       geom.Rect
	Strategy   Strategy
	Degraded   bool
}

// Config holds the tunable layout constants. Character width is approximated
// as CharWidthFactor*FontSize per character rather than derived from glyph
// metrics; this is an intentional approximation.
type Config struct {
	Gap             float64 // space between a response and its annotation
	Margin          float64 // page margin kept free on all sides
	FontSize        float64 // annotation font size in points
	CharWidthFactor float64 // approximate glyph width as a fraction of FontSize
	LineLeading     float64 // extra points between lines
	Padding         float64 // padding added around a block for overlap checks
}

// DefaultConfig mirrors the constants used by the rendering side.
func DefaultConfig() Config {
	return Config{
		Gap:             10,
		Margin:          30,
		FontSize:        11,
		CharWidthFactor: 0.5,
		LineLeading:     4,
		Padding:         5,
	}
}

// LineHeight is the vertical advance for one wrapped line.
func (c Config) LineHeight() float64 { return c.FontSize + c.LineLeading }

// CharWidth is the approximate width of a single character.
func (c Config) CharWidth() float64 { return c.CharWidthFactor * c.FontSize }

// Constraints adjust a single planning call. The retry orchestrator disables
// the right-of strategy for ordinals implicated in overlap issues and widens
// spacing on later attempts.
type Constraints struct {
	NoRightOf   bool
	ExtraMargin float64
}
