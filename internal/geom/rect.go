package geom

import "fmt"

// Rect is an axis-aligned rectangle in document point units.
// Invariant: X0 <= X1 and Y0 <= Y1 for valid rectangles.
type Rect struct {
	X0, Y0, X1, Y1 float64
}

// NewRect normalizes the coordinates so the invariant holds.
func NewRect(x0, y0, x1, y1 float64) Rect {
	if x0 > x1 {
		x0, x1 = x1, x0
	}
	if y0 > y1 {
		y0, y1 = y1, y0
	}
	return Rect{X0: x0, Y0: y0, X1: x1, Y1: y1}
}

// Valid reports whether the rectangle satisfies the ordering invariant.
func (r Rect) Valid() bool {
	return r.X0 <= r.X1 && r.Y0 <= r.Y1
}

func (r Rect) Width() float64  { return r.X1 - r.X0 }
func (r Rect) Height() float64 { return r.Y1 - r.Y0 }

// Overlaps reports whether r and o intersect. This is the single overlap
// predicate used everywhere in the system; do not reimplement it.
func (r Rect) Overlaps(o Rect) bool {
	return !(r.X1 < o.X0 || r.X0 > o.X1 || r.Y1 < o.Y0 || r.Y0 > o.Y1)
}

// Expand grows the rectangle by pad on all sides.
func (r Rect) Expand(pad float64) Rect {
	return Rect{X0: r.X0 - pad, Y0: r.Y0 - pad, X1: r.X1 + pad, Y1: r.Y1 + pad}
}

// Union returns the smallest rectangle containing both r and o.
func (r Rect) Union(o Rect) Rect {
	return Rect{
		X0: min(r.X0, o.X0),
		Y0: min(r.Y0, o.Y0),
		X1: max(r.X1, o.X1),
		Y1: max(r.Y1, o.Y1),
	}
}

func (r Rect) String() string {
	return fmt.Sprintf("(%.1f,%.1f,%.1f,%.1f)", r.X0, r.Y0, r.X1, r.Y1)
}
