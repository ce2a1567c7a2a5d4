package geom

import "testing"

func TestOverlaps(t *testing.T) {
	tests := []struct {
		name string
		a, b Rect
		want bool
	}{
		{"disjoint horizontal", Rect{0, 0, 10, 10}, Rect{20, 0, 30, 10}, false},
		{"disjoint vertical", Rect{0, 0, 10, 10}, Rect{0, 20, 10, 30}, false},
		{"touching edges", Rect{0, 0, 10, 10}, Rect{10, 0, 20, 10}, true},
		{"partial overlap", Rect{0, 0, 10, 10}, Rect{5, 5, 15, 15}, true},
		{"contained", Rect{0, 0, 100, 100}, Rect{10, 10, 20, 20}, true},
		{"identical", Rect{5, 5, 15, 15}, Rect{5, 5, 15, 15}, true},
		{"diagonal disjoint", Rect{0, 0, 10, 10}, Rect{11, 11, 20, 20}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.a.Overlaps(tt.b); got != tt.want {
				t.Errorf("Overlaps(%v, %v) = %v, want %v", tt.a, tt.b, got, tt.want)
			}
			// Symmetry must hold for every pair.
			if got := tt.b.Overlaps(tt.a); got != tt.want {
				t.Errorf("Overlaps(%v, %v) = %v, want %v (symmetry)", tt.b, tt.a, got, tt.want)
			}
		})
	}
}

func TestOverlapsReflexive(t *testing.T) {
	r := Rect{3, 4, 30, 40}
	if !r.Overlaps(r) {
		t.Error("a non-degenerate rectangle must overlap itself")
	}
}

func TestNewRectNormalizes(t *testing.T) {
	r := NewRect(10, 20, 5, 2)
	if !r.Valid() {
		t.Fatalf("NewRect produced invalid rect %v", r)
	}
	if r.X0 != 5 || r.Y0 != 2 || r.X1 != 10 || r.Y1 != 20 {
		t.Errorf("unexpected normalization: %v", r)
	}
}

func TestExpandUnion(t *testing.T) {
	r := Rect{10, 10, 20, 20}
	e := r.Expand(5)
	if e.X0 != 5 || e.Y1 != 25 {
		t.Errorf("Expand = %v", e)
	}
	u := r.Union(Rect{0, 15, 12, 30})
	if u != (Rect{0, 10, 20, 30}) {
		t.Errorf("Union = %v", u)
	}
}
