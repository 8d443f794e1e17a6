// Package basic is the reference content pack: a hexagonal tile map and
// agents that drive around on wheels, shoot, water tiles and sense their
// surroundings.
package basic

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math/rand"
	"os"
	"path/filepath"
	"strconv"

	"terrasim.io/internal/sim/grid"
	"terrasim.io/internal/sim/markov"
	"terrasim.io/internal/sim/world"
)

// Start cell of every generated agent.
const (
	SpawnX = 1
	SpawnY = 1
)

var ErrAlreadyBound = errors.New("provider already bound to a world")

// MapFile is the on-disk map description. Relative file names are resolved
// against Options.Dir.
type MapFile struct {
	Name     string     `json:"name"`
	Topology string     `json:"topology,omitempty"`
	Tiles    [][]string `json:"tiles"`

	TileDefs  []world.TileDef `json:"tile_defs,omitempty"`
	TilesFile string          `json:"tiles_file,omitempty"`

	WeatherModelFile string          `json:"weather_model_file,omitempty"`
	Settings         *world.Settings `json:"settings,omitempty"`
}

type Options struct {
	// Settings, when set, override the map's own settings.
	Settings *world.Settings
	Dir      string
	Rand     *rand.Rand

	// TilesFile and WeatherModelFile, when set, replace the map's own
	// references. They are used as given, not resolved against Dir.
	TilesFile        string
	WeatherModelFile string
}

// Provider implements world.ContentProvider. One Provider serves one World.
type Provider struct {
	opts  Options
	world *world.World
}

func New(opts Options) *Provider {
	if opts.Rand == nil {
		opts.Rand = rand.New(rand.NewSource(1))
	}
	return &Provider{opts: opts}
}

func (p *Provider) World() *world.World { return p.world }

func (p *Provider) LoadMap(r io.Reader) (*world.World, error) {
	if p.world != nil {
		return nil, ErrAlreadyBound
	}
	var mf MapFile
	if err := json.NewDecoder(r).Decode(&mf); err != nil {
		return nil, fmt.Errorf("decode map: %w", err)
	}

	settings := world.DefaultSettings()
	if mf.Settings != nil {
		settings = *mf.Settings
	}
	if p.opts.Settings != nil {
		settings = *p.opts.Settings
	}

	factory, err := p.tileFactory(mf)
	if err != nil {
		return nil, err
	}

	topo := grid.Hex
	if mf.Topology != "" {
		if topo, err = grid.ParseTopology(mf.Topology); err != nil {
			return nil, err
		}
	}
	g, err := world.GridFromTiles(mf.Tiles, factory, topo)
	if err != nil {
		return nil, fmt.Errorf("map %q: %w", mf.Name, err)
	}

	var weather *markov.Model
	if settings.WeatherEnabled {
		switch {
		case p.opts.WeatherModelFile != "":
			weather, err = markov.LoadFile(p.opts.WeatherModelFile, p.opts.Rand)
		case mf.WeatherModelFile != "":
			weather, err = markov.LoadFile(p.path(mf.WeatherModelFile), p.opts.Rand)
		default:
			weather = world.DefaultWeatherModel(p.opts.Rand)
		}
		if err != nil {
			return nil, err
		}
	}

	w, err := world.New(world.Config{
		Name:      mf.Name,
		Settings:  settings,
		Grid:      g,
		Generator: p.GenerateAgent,
		Weather:   weather,
		Rand:      p.opts.Rand,
	})
	if err != nil {
		return nil, err
	}
	p.world = w
	return w, nil
}

func (p *Provider) tileFactory(mf MapFile) (*world.TileFactory, error) {
	path := p.opts.TilesFile
	if path == "" {
		if len(mf.TileDefs) > 0 {
			return world.NewTileFactory(mf.TileDefs)
		}
		if mf.TilesFile == "" {
			return nil, fmt.Errorf("map %q has neither tile_defs nor tiles_file", mf.Name)
		}
		path = p.path(mf.TilesFile)
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open tile definitions: %w", err)
	}
	defer f.Close()
	return world.LoadTileFactory(f)
}

func (p *Provider) path(name string) string {
	if filepath.IsAbs(name) || p.opts.Dir == "" {
		return name
	}
	return filepath.Join(p.opts.Dir, name)
}

// GenerateAgent equips a new agent named agent_<id> and starts it at
// (SpawnX, SpawnY).
func (p *Provider) GenerateAgent(id int) (*world.UserAgent, int, int, error) {
	if p.world == nil {
		return nil, 0, 0, fmt.Errorf("generate agent %d: no world loaded", id)
	}
	a := world.NewUserAgent("agent_"+strconv.Itoa(id), id)
	a.SetDispatch(&agentDispatch{agent: a})

	b := p.world.Broadcaster()
	for _, act := range []world.Actuator{
		NewGun(a.Agent, b),
		NewWheels(a.Agent, b),
		NewWaterTank(a.Agent, b),
	} {
		if err := a.AddActuator(act); err != nil {
			return nil, 0, 0, err
		}
	}
	acc, err := NewAccumulator(a.Agent, b)
	if err != nil {
		return nil, 0, 0, err
	}
	for _, s := range []world.Sensor{
		NewBrightness(a.Agent),
		NewCamera(a.Agent),
		NewHygrometer(a.Agent),
		acc,
		NewClock(a.Agent),
		NewBarometer(a.Agent),
	} {
		if err := a.AddSensor(s); err != nil {
			return nil, 0, 0, err
		}
	}
	return a, SpawnX, SpawnY, nil
}

// agentDispatch receives interactions aimed at an agent.
type agentDispatch struct {
	agent *world.UserAgent
}

// WasShot disarms the agent once the tick's sensing is done.
func (d *agentDispatch) WasShot(ctx *world.TickContext) {
	a := d.agent
	ctx.World.Defer(func() {
		a.RemoveActuators()
		a.RemoveSensors()
		_ = a.AddSensor(NewPostmortem(a.Agent))
	})
}
