package placement

import "github.com/local/exammarker/internal/geom"

// Occupancy tracks the rectangles already drawn on each page during one
// placement attempt: the original regions plus every committed annotation.
// It grows monotonically within an attempt and is rebuilt from scratch for the
// next one. Access is strictly sequential; it is not safe for concurrent use.
type Occupancy struct {
	pages map[int][]geom.Rect
}

// NewOccupancy returns an empty occupancy set.
func NewOccupancy() *Occupancy {
	return &Occupancy{pages: make(map[int][]geom.Rect)}
}

// Add marks r as taken on page.
func (o *Occupancy) Add(page int, r geom.Rect) {
	o.pages[page] = append(o.pages[page], r)
}

// Overlapping reports whether r intersects any rectangle taken on page.
func (o *Occupancy) Overlapping(page int, r geom.Rect) bool {
	for _, taken := range o.pages[page] {
		if r.Overlaps(taken) {
			return true
		}
	}
	return false
}

// Rects returns the rectangles taken on page.
func (o *Occupancy) Rects(page int) []geom.Rect {
	return o.pages[page]
}

// Count returns the number of rectangles taken on page.
func (o *Occupancy) Count(page int) int {
	return len(o.pages[page])
}
