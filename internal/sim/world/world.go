package world

import (
	"fmt"
	"math/rand"
	"sort"
	"strings"
	"sync"
	"sync/atomic"

	"terrasim.io/internal/protocol"
	"terrasim.io/internal/sim/coord"
	"terrasim.io/internal/sim/grid"
	"terrasim.io/internal/sim/markov"
)

// AgentGenerator builds the agent for a newly admitted client and picks its
// starting cell.
type AgentGenerator func(id int) (agent *UserAgent, x, y int, err error)

type Config struct {
	Name      string
	Settings  Settings
	Grid      *grid.Grid[NamedObject]
	Generator AgentGenerator

	// Weather drives pressure changes; states 0, 1 and 2 mean rise, stay and
	// fall. Required when Settings.WeatherEnabled.
	Weather *markov.Model
	Rand    *rand.Rand
}

// PooledCommand is a client command waiting for the next tick.
type PooledCommand struct {
	ClientID int
	Action   string
	Arg1     string
	Arg2     string
}

// World is the authoritative simulation state. Everything except the
// command pool and Metrics is owned by the goroutine calling Update.
type World struct {
	name     string
	settings Settings

	grid     *grid.Grid[NamedObject]
	entities map[string]NamedObject
	agents   map[int]*UserAgent
	generate AgentGenerator

	broadcaster *coord.Broadcaster
	deferred    *coord.Queue

	weatherModel *markov.Model
	rng          *rand.Rand

	tick      uint64
	timeOfDay int
	day       int
	pressure  int
	weather   WeatherType
	light     IntensityLevel

	cmdMu    sync.Mutex
	commands []PooledCommand

	beforeUpdate []func(*World)
	afterUpdate  []func(*World)
	newDay       []func(*World)

	metrics atomic.Value // Metrics
}

func New(cfg Config) (*World, error) {
	if err := cfg.Settings.Validate(); err != nil {
		return nil, fmt.Errorf("world settings: %w", err)
	}
	if cfg.Grid == nil {
		return nil, fmt.Errorf("world needs a grid")
	}
	if cfg.Settings.WeatherEnabled {
		if cfg.Weather == nil {
			return nil, fmt.Errorf("weather enabled but no weather model given")
		}
		if cfg.Weather.Len() != 3 {
			return nil, fmt.Errorf("weather model needs 3 states (rise, stay, fall), got %d", cfg.Weather.Len())
		}
	}
	rng := cfg.Rand
	if rng == nil {
		rng = rand.New(rand.NewSource(1))
	}
	w := &World{
		name:         cfg.Name,
		settings:     cfg.Settings,
		grid:         cfg.Grid,
		entities:     map[string]NamedObject{},
		agents:       map[int]*UserAgent{},
		generate:     cfg.Generator,
		broadcaster:  coord.NewBroadcaster(),
		deferred:     coord.NewQueue(),
		weatherModel: cfg.Weather,
		rng:          rng,
		pressure:     cfg.Settings.BarometricPressure,
		light:        Full,
	}
	w.weather = weatherFor(w.pressure)

	var dupErr error
	w.grid.Each(func(c grid.Coord, cell *grid.Cell[NamedObject]) {
		for _, o := range cell.Objects() {
			b := o.base()
			b.x, b.y = c.X, c.Y
			if _, dup := w.entities[o.Name()]; dup && dupErr == nil {
				dupErr = fmt.Errorf("duplicate object name %q on map", o.Name())
			}
			w.entities[o.Name()] = o
		}
	})
	if dupErr != nil {
		return nil, dupErr
	}
	w.publishMetrics()
	return w, nil
}

func (w *World) Name() string                    { return w.name }
func (w *World) Settings() Settings              { return w.settings }
func (w *World) Map() *grid.Grid[NamedObject]    { return w.grid }
func (w *World) Broadcaster() *coord.Broadcaster { return w.broadcaster }
func (w *World) MaxClients() int                 { return w.settings.MaxClients }
func (w *World) Tick() uint64                    { return w.tick }
func (w *World) TimeOfDay() int                  { return w.timeOfDay }
func (w *World) Day() int                        { return w.day }
func (w *World) Pressure() int                   { return w.pressure }
func (w *World) Weather() WeatherType            { return w.weather }
func (w *World) Light() IntensityLevel           { return w.light }
func (w *World) SetGenerator(g AgentGenerator)   { w.generate = g }
func (w *World) OnBeforeUpdate(fn func(*World))  { w.beforeUpdate = append(w.beforeUpdate, fn) }
func (w *World) OnAfterUpdate(fn func(*World))   { w.afterUpdate = append(w.afterUpdate, fn) }
func (w *World) OnNewDay(fn func(*World))        { w.newDay = append(w.newDay, fn) }

// Defer schedules fn to run after every sensor of the current tick has sensed.
func (w *World) Defer(fn func()) { w.deferred.Defer(fn) }

// AddObject places a non-client entity.
func (w *World) AddObject(obj NamedObject, x, y int) error {
	if _, ok := obj.(*UserAgent); ok {
		return fmt.Errorf("add %s: client agents are added with AddAgent", obj.Name())
	}
	return w.addEntity(obj, x, y)
}

// AddAgent creates the client's agent through the generator and places it.
func (w *World) AddAgent(clientID int) (*UserAgent, error) {
	if w.generate == nil {
		return nil, fmt.Errorf("world has no agent generator")
	}
	if _, exists := w.agents[clientID]; exists {
		return nil, fmt.Errorf("agent for client %d already exists", clientID)
	}
	a, x, y, err := w.generate(clientID)
	if err != nil {
		return nil, fmt.Errorf("generate agent %d: %w", clientID, err)
	}
	if err := w.addEntity(a, x, y); err != nil {
		return nil, err
	}
	w.agents[a.ID()] = a
	return a, nil
}

// RemoveAgent takes the client's agent out of the world, drops its
// subscriptions and any commands still pooled for it.
func (w *World) RemoveAgent(clientID int) bool {
	a, ok := w.agents[clientID]
	if !ok {
		return false
	}
	delete(w.agents, clientID)
	w.removeEntity(a)
	w.broadcaster.UnsubscribeAll(a)
	w.broadcaster.UnsubscribeAll(a.Agent)

	w.cmdMu.Lock()
	kept := w.commands[:0]
	for _, c := range w.commands {
		if c.ClientID != clientID {
			kept = append(kept, c)
		}
	}
	w.commands = kept
	w.cmdMu.Unlock()
	return true
}

func (w *World) MoveObject(obj NamedObject, x, y int) error {
	if !w.grid.Contains(x, y) {
		return fmt.Errorf("move %s: (%d,%d) is outside the map", obj.Name(), x, y)
	}
	b := obj.base()
	cur, ok := w.entities[obj.Name()]
	if !ok || cur.base() != b {
		return fmt.Errorf("move %s: %w", obj.Name(), ErrObjectNotFound)
	}
	// The grid holds the registered value, which may wrap obj.
	if c := w.grid.Cell(b.x, b.y); c != nil {
		c.Remove(cur)
	}
	w.grid.Cell(x, y).Add(cur)
	b.x, b.y = x, y
	return nil
}

func (w *World) RemoveObject(obj NamedObject) error {
	cur, ok := w.entities[obj.Name()]
	if !ok || cur.base() != obj.base() {
		return fmt.Errorf("remove %s: %w", obj.Name(), ErrObjectNotFound)
	}
	if ua, ok := cur.(*UserAgent); ok {
		w.RemoveAgent(ua.ID())
		return nil
	}
	w.removeEntity(cur)
	return nil
}

func (w *World) addEntity(obj NamedObject, x, y int) error {
	if !w.grid.Contains(x, y) {
		return fmt.Errorf("add %s: (%d,%d) is outside the map", obj.Name(), x, y)
	}
	if _, dup := w.entities[obj.Name()]; dup {
		return fmt.Errorf("add %s: name already in use", obj.Name())
	}
	w.grid.Cell(x, y).Add(obj)
	b := obj.base()
	b.x, b.y = x, y
	w.entities[obj.Name()] = obj
	return nil
}

func (w *World) removeEntity(obj NamedObject) {
	b := obj.base()
	if c := w.grid.Cell(b.x, b.y); c != nil {
		c.Remove(obj)
	}
	delete(w.entities, obj.Name())
	b.x, b.y = -1, -1
}

// ObjectByName returns nil when no entity has that (case-sensitive) name.
func (w *World) ObjectByName(name string) NamedObject {
	return w.entities[name]
}

func (w *World) Agent(clientID int) (*UserAgent, bool) {
	a, ok := w.agents[clientID]
	return a, ok
}

// AgentIDByName resolves an agent name to its client id.
func (w *World) AgentIDByName(name string) (int, bool) {
	if ua, ok := w.entities[name].(*UserAgent); ok {
		return ua.ID(), true
	}
	return 0, false
}

// AgentIDs returns the client ids of all agents in ascending order.
func (w *World) AgentIDs() []int {
	ids := make([]int, 0, len(w.agents))
	for id := range w.agents {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	return ids
}

func (w *World) AgentCount() int  { return len(w.agents) }
func (w *World) EntityCount() int { return len(w.entities) }

// AgentData marshals the agent's current state into a fresh collection.
func (w *World) AgentData(clientID int) (*protocol.DataCollection, error) {
	a, ok := w.agents[clientID]
	if !ok {
		return nil, fmt.Errorf("client %d: %w", clientID, ErrAgentNotFound)
	}
	dc := protocol.NewDataCollection()
	a.Marshal(dc)
	return dc, nil
}

func (w *World) AgentCapabilities(clientID int) ([]string, error) {
	a, ok := w.agents[clientID]
	if !ok {
		return nil, fmt.Errorf("client %d: %w", clientID, ErrAgentNotFound)
	}
	return a.PossibleActions(), nil
}

// EnqueueCommand pools a command for the next tick. Safe for concurrent use.
func (w *World) EnqueueCommand(clientID int, action, arg1, arg2 string) {
	w.cmdMu.Lock()
	w.commands = append(w.commands, PooledCommand{
		ClientID: clientID,
		Action:   strings.ToLower(action),
		Arg1:     arg1,
		Arg2:     arg2,
	})
	w.cmdMu.Unlock()
}

func (w *World) PendingCommands() int {
	w.cmdMu.Lock()
	defer w.cmdMu.Unlock()
	return len(w.commands)
}

func (w *World) takeCommands() []PooledCommand {
	w.cmdMu.Lock()
	defer w.cmdMu.Unlock()
	out := w.commands
	w.commands = nil
	return out
}

// SameObject reports whether a and b are the same entity, even when one is
// an *Agent and the other the *UserAgent wrapping it.
func SameObject(a, b NamedObject) bool {
	if a == nil || b == nil {
		return false
	}
	return a.base() == b.base()
}
