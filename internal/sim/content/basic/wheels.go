package basic

import (
	"fmt"
	"strconv"

	"terrasim.io/internal/protocol"
	"terrasim.io/internal/sim/coord"
	"terrasim.io/internal/sim/world"
)

const (
	wheelsPrice = 5
	wheelsDelay = 1
)

// Heading offsets into the six hex neighbours, indexed by x parity. Heading
// 0 points to the upper-left neighbour and increases clockwise.
var headingOffsets = [2][6][2]int{
	{{-1, -1}, {-1, 0}, {0, 1}, {1, 0}, {1, -1}, {0, -1}},
	{{-1, 0}, {-1, 1}, {0, 1}, {1, 1}, {1, 0}, {0, -1}},
}

var wheelsActions = []string{"motor_stats", "left", "right", "forward", "backward"}

// Wheels turns and moves the agent one cell at a time. Every manoeuvre costs
// energy and completes one tick after it was ordered.
type Wheels struct {
	world.ActuatorBase
	b *coord.Broadcaster

	heading int
	current string
	wait    int

	sendStats bool
	turns     int
	steps     int
}

func NewWheels(owner *world.Agent, b *coord.Broadcaster) *Wheels {
	return &Wheels{ActuatorBase: world.NewActuatorBase(owner), b: b}
}

func (w *Wheels) ActionList() []string { return wheelsActions }

func (w *Wheels) Heading() int { return w.heading }

func (w *Wheels) Perform(_ *world.TickContext, action, _, _ string) error {
	switch action {
	case "motor_stats":
		w.sendStats = true
	case "left", "right", "forward", "backward":
		if payEnergy(w.b, w.Owner(), wheelsPrice) {
			w.current = action
			w.wait = wheelsDelay
		}
	default:
		return fmt.Errorf("wheels: %w %q", world.ErrUnknownAction, action)
	}
	return nil
}

func (w *Wheels) Update(ctx *world.TickContext) error {
	if w.current == "" {
		return nil
	}
	if w.wait > 0 {
		w.wait--
		return nil
	}
	switch w.current {
	case "left":
		w.heading = (w.heading + 5) % 6
		w.turns++
	case "right":
		w.heading = (w.heading + 1) % 6
		w.turns++
	case "forward":
		w.step(ctx, w.heading)
		w.steps++
	case "backward":
		w.step(ctx, (w.heading+3)%6)
		w.steps++
	}
	w.current = ""
	return nil
}

// step schedules a move towards dir. Impassable and off-map cells are
// ignored.
func (w *Wheels) step(ctx *world.TickContext, dir int) {
	owner := w.Owner()
	x, y := owner.Position()
	off := headingOffsets[x%2][dir]
	nx, ny := x+off[0], y+off[1]
	tile, ok := world.GroundAt(ctx.World.Map(), nx, ny)
	if !ok || !tile.Passable() {
		return
	}
	ctx.World.Defer(func() {
		if err := ctx.World.MoveObject(owner, nx, ny); err != nil {
			return
		}
		if s, ok := world.DispatchTarget(tile).(world.SteppedOn); ok {
			s.WasSteppedOn(ctx, owner)
		}
	})
}

func (w *Wheels) Marshal(dc *protocol.DataCollection) {
	name := w.Owner().Name()
	dc.AddAttribute(name, "heading", strconv.Itoa(w.heading))
	if w.sendStats {
		dc.AddAttribute(name, "steps_taken", strconv.Itoa(w.steps))
		dc.AddAttribute(name, "turns_made", strconv.Itoa(w.turns))
		w.sendStats = false
	}
	if w.current != "" {
		dc.AddAction(name, w.current, "", "")
	}
}
