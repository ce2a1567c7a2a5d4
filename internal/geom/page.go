package geom

// PageDims holds a page's dimensions in point units.
type PageDims struct {
	Width  float64
	Height float64
}

// Bounds returns the page rectangle with origin at the top-left corner.
func (p PageDims) Bounds() Rect {
	return Rect{X0: 0, Y0: 0, X1: p.Width, Y1: p.Height}
}

// Contains reports whether r lies fully inside the page.
func (p PageDims) Contains(r Rect) bool {
	return r.X0 >= 0 && r.Y0 >= 0 && r.X1 <= p.Width && r.Y1 <= p.Height
}
