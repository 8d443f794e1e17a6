// Package grid is the fixed-size spatial index the world lives on.
//
// Coordinates are (x, y) with x in [0, SizeX) and y in [0, SizeY). Maps are
// loaded row by row, so x is the row index and y the column index. Hex
// adjacency depends on the parity of x.
package grid

import (
	"fmt"
	"math"
)

type Topology int

const (
	// Square grids have 8 neighbours per cell and use the Chebyshev metric.
	Square Topology = iota
	// Hex grids use offset rows.
	Hex
)

func (t Topology) String() string {
	switch t {
	case Square:
		return "square"
	case Hex:
		return "hex"
	default:
		return fmt.Sprintf("topology(%d)", int(t))
	}
}

// ParseTopology accepts "square", "octagonal" or "hex"/"hexagonal".
func ParseTopology(s string) (Topology, error) {
	switch s {
	case "square", "octagonal", "":
		return Square, nil
	case "hex", "hexagonal":
		return Hex, nil
	default:
		return Square, fmt.Errorf("unknown grid topology %q", s)
	}
}

type Coord struct {
	X, Y int
}

// Grid is a rectangular array of cells. It is not safe for concurrent use;
// the world mutates it only from the tick goroutine.
type Grid[T comparable] struct {
	sizeX, sizeY int
	topo         Topology
	cells        []Cell[T]
}

func New[T comparable](sizeX, sizeY int, topo Topology) (*Grid[T], error) {
	if sizeX < 1 || sizeY < 1 {
		return nil, fmt.Errorf("grid size must be positive: %dx%d", sizeX, sizeY)
	}
	if topo != Square && topo != Hex {
		return nil, fmt.Errorf("bad topology %d", int(topo))
	}
	return &Grid[T]{
		sizeX: sizeX,
		sizeY: sizeY,
		topo:  topo,
		cells: make([]Cell[T], sizeX*sizeY),
	}, nil
}

func (g *Grid[T]) SizeX() int         { return g.sizeX }
func (g *Grid[T]) SizeY() int         { return g.sizeY }
func (g *Grid[T]) Topology() Topology { return g.topo }

func (g *Grid[T]) Contains(x, y int) bool {
	return x >= 0 && x < g.sizeX && y >= 0 && y < g.sizeY
}

// Cell returns the cell at (x, y), or nil when out of bounds.
func (g *Grid[T]) Cell(x, y int) *Cell[T] {
	if !g.Contains(x, y) {
		return nil
	}
	return &g.cells[x*g.sizeY+y]
}

// Each visits every cell in row-major order.
func (g *Grid[T]) Each(fn func(c Coord, cell *Cell[T])) {
	for x := 0; x < g.sizeX; x++ {
		for y := 0; y < g.sizeY; y++ {
			fn(Coord{X: x, Y: y}, &g.cells[x*g.sizeY+y])
		}
	}
}

// Adjacent returns the in-bounds cells one step from (x, y).
func (g *Grid[T]) Adjacent(x, y int) []Coord {
	if !g.Contains(x, y) {
		return nil
	}
	var cand []Coord
	if g.topo == Hex {
		off := 1
		if x%2 == 0 {
			off = -1
		}
		cand = []Coord{
			{x - 1, y}, {x - 1, y + off}, {x, y - 1},
			{x + 1, y}, {x + 1, y + off}, {x, y + 1},
		}
	} else {
		cand = make([]Coord, 0, 8)
		for dx := -1; dx <= 1; dx++ {
			for dy := -1; dy <= 1; dy++ {
				if dx != 0 || dy != 0 {
					cand = append(cand, Coord{x + dx, y + dy})
				}
			}
		}
	}
	out := cand[:0]
	for _, c := range cand {
		if g.Contains(c.X, c.Y) {
			out = append(out, c)
		}
	}
	return out
}

// Neighbours returns every coordinate within distance steps of (x, y),
// excluding the origin, in breadth-first order. It returns nothing when the
// origin is outside the grid or distance < 1.
func (g *Grid[T]) Neighbours(x, y, distance int) []Coord {
	if !g.Contains(x, y) || distance < 1 {
		return nil
	}
	origin := Coord{X: x, Y: y}
	left := map[Coord]int{origin: distance}
	queue := []Coord{origin}
	var out []Coord
	for len(queue) > 0 {
		c := queue[0]
		queue = queue[1:]
		d := left[c] - 1
		if d < 0 {
			continue
		}
		for _, n := range g.Adjacent(c.X, c.Y) {
			if _, seen := left[n]; seen {
				continue
			}
			left[n] = d
			queue = append(queue, n)
			out = append(out, n)
		}
	}
	return out
}

// Distance is the step distance between two coordinates under the grid's
// topology. Bounds are not checked.
func (g *Grid[T]) Distance(x1, y1, x2, y2 int) int {
	if g.topo == Hex {
		return HexDistance(x1, y1, x2, y2)
	}
	return SquareDistance(x1, y1, x2, y2)
}

func SquareDistance(x1, y1, x2, y2 int) int {
	return max(abs(x1-x2), abs(y1-y2))
}

// HexDistance skews offset coordinates so the Chebyshev metric approximates
// hex steps. Rounding is half-to-even.
func HexDistance(x1, y1, x2, y2 int) int {
	ax := math.RoundToEven(0.9 * float64(x1))
	ay := math.RoundToEven(0.5*float64(x1) + float64(y1))
	bx := math.RoundToEven(0.9 * float64(x2))
	by := math.RoundToEven(0.5*float64(x2) + float64(y2))
	return int(math.Max(math.Abs(ax-bx), math.Abs(ay-by)))
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
