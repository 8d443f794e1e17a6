package grid

import "testing"

func mustGrid(t *testing.T, sx, sy int, topo Topology) *Grid[string] {
	t.Helper()
	g, err := New[string](sx, sy, topo)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return g
}

func TestNeighbours_Hex5x4(t *testing.T) {
	g := mustGrid(t, 5, 4, Hex)
	cases := []struct{ x, y, want int }{
		{0, 0, 2},
		{0, 1, 4},
		{1, 0, 5},
		{2, 1, 6},
		{4, 3, 3},
	}
	for _, tc := range cases {
		if got := len(g.Neighbours(tc.x, tc.y, 1)); got != tc.want {
			t.Fatalf("hex (%d,%d): got %d want %d", tc.x, tc.y, got, tc.want)
		}
	}
}

func TestNeighbours_Square5x4(t *testing.T) {
	g := mustGrid(t, 5, 4, Square)
	cases := []struct{ x, y, want int }{
		{0, 0, 3},
		{0, 1, 5},
		{1, 0, 5},
		{2, 1, 8},
		{3, 2, 8},
		{4, 3, 3},
	}
	for _, tc := range cases {
		if got := len(g.Neighbours(tc.x, tc.y, 1)); got != tc.want {
			t.Fatalf("square (%d,%d): got %d want %d", tc.x, tc.y, got, tc.want)
		}
	}
}

func TestNeighbours_SquareRadius(t *testing.T) {
	g := mustGrid(t, 7, 7, Square)
	cases := []struct{ x, y, r, want int }{
		{2, 2, 1, 8},
		{2, 2, 2, 24},
		{2, 2, 4, 48},
		{1, 2, 2, 19},
		{0, 0, 2, 8},
		{0, 0, 3, 15},
	}
	for _, tc := range cases {
		if got := len(g.Neighbours(tc.x, tc.y, tc.r)); got != tc.want {
			t.Fatalf("(%d,%d) r=%d: got %d want %d", tc.x, tc.y, tc.r, got, tc.want)
		}
	}
}

func TestNeighbours_EmptyCases(t *testing.T) {
	g := mustGrid(t, 3, 3, Hex)
	if got := g.Neighbours(1, 1, 0); len(got) != 0 {
		t.Fatalf("distance 0: got %v", got)
	}
	if got := g.Neighbours(-1, 0, 2); len(got) != 0 {
		t.Fatalf("out of bounds origin: got %v", got)
	}
	if got := g.Neighbours(3, 0, 2); len(got) != 0 {
		t.Fatalf("out of bounds origin: got %v", got)
	}
}

func TestNeighbours_UniqueAndWithinDistance(t *testing.T) {
	for _, topo := range []Topology{Square, Hex} {
		g := mustGrid(t, 9, 8, topo)
		for r := 1; r <= 3; r++ {
			seen := map[Coord]bool{}
			for _, c := range g.Neighbours(4, 4, r) {
				if c == (Coord{4, 4}) {
					t.Fatalf("%v r=%d: origin included", topo, r)
				}
				if seen[c] {
					t.Fatalf("%v r=%d: %v listed twice", topo, r, c)
				}
				seen[c] = true
				if !g.Contains(c.X, c.Y) {
					t.Fatalf("%v r=%d: %v out of bounds", topo, r, c)
				}
			}
		}
	}
}

func TestDistance_Square(t *testing.T) {
	cases := []struct{ x1, y1, x2, y2, want int }{
		{1, 1, 1, 1, 0},
		{5, 6, 5, 5, 1},
		{4, 4, 5, 5, 1},
		{0, 0, 2, 2, 2},
		{0, 2, 2, 2, 2},
		{0, 1, 2, 2, 2},
		{3, 5, 1, 1, 4},
	}
	g := mustGrid(t, 10, 10, Square)
	for _, tc := range cases {
		if got := g.Distance(tc.x1, tc.y1, tc.x2, tc.y2); got != tc.want {
			t.Fatalf("Distance(%d,%d,%d,%d)=%d want %d", tc.x1, tc.y1, tc.x2, tc.y2, got, tc.want)
		}
	}
}

func TestDistance_Hex(t *testing.T) {
	g := mustGrid(t, 10, 10, Hex)
	if got := g.Distance(3, 3, 3, 3); got != 0 {
		t.Fatalf("same cell: %d", got)
	}
	if got := g.Distance(0, 4, 0, 0); got != 4 {
		t.Fatalf("(0,4)-(0,0): %d want 4", got)
	}
	for i := 1; i <= 4; i++ {
		if got := g.Distance(3, 2, 0, i); got != 3 {
			t.Fatalf("(3,2)-(0,%d): %d want 3", i, got)
		}
	}
}

func TestDistance_Symmetric(t *testing.T) {
	for _, topo := range []Topology{Square, Hex} {
		g := mustGrid(t, 6, 5, topo)
		g.Each(func(a Coord, _ *Cell[string]) {
			g.Each(func(b Coord, _ *Cell[string]) {
				d1 := g.Distance(a.X, a.Y, b.X, b.Y)
				d2 := g.Distance(b.X, b.Y, a.X, a.Y)
				if d1 != d2 {
					t.Fatalf("%v: distance %v-%v not symmetric: %d vs %d", topo, a, b, d1, d2)
				}
				if d1 < 0 || (a == b && d1 != 0) {
					t.Fatalf("%v: distance %v-%v=%d", topo, a, b, d1)
				}
			})
		})
	}
}

func TestCell_OrderedOccupants(t *testing.T) {
	g := mustGrid(t, 2, 2, Square)
	c := g.Cell(1, 1)
	c.Add("ground")
	c.Add("a")
	c.Add("b")
	if !c.Remove("a") {
		t.Fatalf("remove a failed")
	}
	if c.Remove("missing") {
		t.Fatalf("remove of missing occupant reported success")
	}
	got := c.Objects()
	if len(got) != 2 || got[0] != "ground" || got[1] != "b" {
		t.Fatalf("objects=%v", got)
	}
	if first, ok := c.First(); !ok || first != "ground" {
		t.Fatalf("first=%q", first)
	}
	if g.Cell(2, 0) != nil {
		t.Fatalf("expected nil cell out of bounds")
	}
}

func TestNew_RejectsBadSize(t *testing.T) {
	if _, err := New[string](0, 3, Square); err == nil {
		t.Fatalf("expected error for zero size")
	}
	if _, err := ParseTopology("triangle"); err == nil {
		t.Fatalf("expected error for unknown topology")
	}
}
