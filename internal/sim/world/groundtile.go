package world

import (
	"encoding/json"
	"fmt"
	"io"
	"strconv"

	"terrasim.io/internal/protocol"
	"terrasim.io/internal/sim/grid"
)

const maxWetness = 5

// GroundTile is the bottom occupant of every cell of a loaded map.
type GroundTile struct {
	Base

	SpeedCap  int
	Darkening int

	wetness  int
	lighting IntensityLevel
}

func NewGroundTile(name, typ string, speedCap, darkening int) *GroundTile {
	return &GroundTile{
		Base:      NewBase(name, typ),
		SpeedCap:  speedCap,
		Darkening: darkening,
		lighting:  Full,
	}
}

func (t *GroundTile) Humidity() IntensityLevel { return IntensityLevel(t.wetness) }
func (t *GroundTile) Lighting() IntensityLevel { return t.lighting }

// Passable reports whether agents may step onto the tile.
func (t *GroundTile) Passable() bool { return t.SpeedCap > 0 }

func (t *GroundTile) IncreaseHumidity(levels int) {
	t.wetness = clamp(t.wetness+levels, 0, maxWetness)
}

func (t *GroundTile) WasWatered(*TickContext) { t.IncreaseHumidity(2) }

// Update dries the tile in sunshine, wets it in rain and follows the
// world's light level minus the tile's own darkening.
func (t *GroundTile) Update(ctx *TickContext) error {
	switch ctx.World.Weather() {
	case Sunny:
		t.IncreaseHumidity(-1)
	case Rainy:
		t.IncreaseHumidity(1)
	}
	t.lighting = IntensityLevel(clamp(int(ctx.World.Light())-t.Darkening, int(VeryLow), int(Full)))
	return nil
}

func (t *GroundTile) Marshal(dc *protocol.DataCollection) {
	dc.AddAttribute(t.Name(), "humidity", t.Humidity().String())
	dc.AddAttribute(t.Name(), "lighting", t.lighting.String())
	t.Base.Marshal(dc)
}

// TileDef is one entry of a tile definition file.
type TileDef struct {
	Type              string `json:"type"`
	SpeedCap          int    `json:"speedcap"`
	LightingReduction int    `json:"lighting_reduction"`
}

// TileFactory stamps out uniquely named ground tiles from definitions.
type TileFactory struct {
	defs    map[string]TileDef
	created int

	// Dispatch, when set, supplies the dispatch target for each new tile.
	Dispatch func(*GroundTile) any
}

func NewTileFactory(defs []TileDef) (*TileFactory, error) {
	f := &TileFactory{defs: make(map[string]TileDef, len(defs))}
	for _, d := range defs {
		if d.Type == "" {
			return nil, fmt.Errorf("tile definition without type")
		}
		if _, dup := f.defs[d.Type]; dup {
			return nil, fmt.Errorf("duplicate tile type %q", d.Type)
		}
		f.defs[d.Type] = d
	}
	return f, nil
}

// LoadTileFactory reads a JSON array of TileDef.
func LoadTileFactory(r io.Reader) (*TileFactory, error) {
	var defs []TileDef
	if err := json.NewDecoder(r).Decode(&defs); err != nil {
		return nil, fmt.Errorf("tile definitions: %w", err)
	}
	return NewTileFactory(defs)
}

// Create returns a tile named "<type>_<n>".
func (f *TileFactory) Create(typ string) (*GroundTile, error) {
	d, ok := f.defs[typ]
	if !ok {
		return nil, fmt.Errorf("unknown tile type %q", typ)
	}
	f.created++
	t := NewGroundTile(typ+"_"+strconv.Itoa(f.created), d.Type, d.SpeedCap, d.LightingReduction)
	if f.Dispatch != nil {
		t.SetDispatch(f.Dispatch(t))
	}
	return t, nil
}

// GridFromTiles builds a grid where rows[x][y] names the tile type at (x, y).
// Every row must have the same length.
func GridFromTiles(rows [][]string, f *TileFactory, topo grid.Topology) (*grid.Grid[NamedObject], error) {
	if len(rows) == 0 || len(rows[0]) == 0 {
		return nil, fmt.Errorf("map has no tiles")
	}
	g, err := grid.New[NamedObject](len(rows), len(rows[0]), topo)
	if err != nil {
		return nil, err
	}
	for x, row := range rows {
		if len(row) != len(rows[0]) {
			return nil, fmt.Errorf("map row %d has %d tiles, want %d", x, len(row), len(rows[0]))
		}
		for y, typ := range row {
			t, err := f.Create(typ)
			if err != nil {
				return nil, fmt.Errorf("map (%d,%d): %w", x, y, err)
			}
			t.x, t.y = x, y
			g.Cell(x, y).Add(t)
		}
	}
	return g, nil
}

// GroundAt returns the first ground tile of the cell at (x, y).
func GroundAt(g *grid.Grid[NamedObject], x, y int) (*GroundTile, bool) {
	c := g.Cell(x, y)
	if c == nil {
		return nil, false
	}
	for _, o := range c.Objects() {
		if t, ok := o.(*GroundTile); ok {
			return t, true
		}
	}
	return nil, false
}
