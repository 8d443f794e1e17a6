package basic

import (
	"fmt"
	"strconv"

	"terrasim.io/internal/protocol"
	"terrasim.io/internal/sim/coord"
	"terrasim.io/internal/sim/world"
)

const (
	TankCapacity  = 5
	WaterTileType = "water"

	initialWater = 3
	wateringCost = 4
)

var tankActions = []string{"watertank_stats", "water", "refill"}

// WaterTank waters objects next to the agent and refills from an adjacent
// water tile.
type WaterTank struct {
	world.ActuatorBase
	b *coord.Broadcaster

	level   int
	current string
	wait    int
	target  world.NamedObject

	sendStats bool
	watered   int
	refills   int
}

func NewWaterTank(owner *world.Agent, b *coord.Broadcaster) *WaterTank {
	return &WaterTank{ActuatorBase: world.NewActuatorBase(owner), b: b, level: initialWater}
}

func (t *WaterTank) ActionList() []string { return tankActions }

func (t *WaterTank) Level() int { return t.level }

func (t *WaterTank) Perform(ctx *world.TickContext, action, arg1, _ string) error {
	switch action {
	case "watertank_stats":
		t.sendStats = true
	case "water":
		t.startWatering(ctx.World, ctx.World.ObjectByName(arg1))
	case "refill":
		t.startRefill(ctx.World, arg1)
	default:
		return fmt.Errorf("water tank: %w %q", world.ErrUnknownAction, action)
	}
	return nil
}

func (t *WaterTank) startWatering(w *world.World, target world.NamedObject) {
	if !payEnergy(t.b, t.Owner(), wateringCost) {
		return
	}
	if t.level == 0 || target == nil || !t.inReach(w, target) {
		return
	}
	t.current, t.wait, t.target = "water", 1, target
}

// startRefill charges two energy per tick of pumping.
func (t *WaterTank) startRefill(w *world.World, tileName string) {
	wait := (TankCapacity - t.level) / 2
	if wait > 1 {
		wait = 1
	}
	if !payEnergy(t.b, t.Owner(), wait*2) {
		return
	}
	tile, ok := w.ObjectByName(tileName).(*world.GroundTile)
	if !ok || tile.Type() != WaterTileType {
		return
	}
	t.current, t.wait, t.target = "refill", wait, tile
}

func (t *WaterTank) inReach(w *world.World, obj world.NamedObject) bool {
	ox, oy := t.Owner().Position()
	x, y := obj.Position()
	return w.Map().Distance(x, y, ox, oy) <= 1
}

func (t *WaterTank) Update(ctx *world.TickContext) error {
	if t.current == "" {
		return nil
	}
	if t.wait > 0 {
		t.wait--
		return nil
	}
	switch t.current {
	case "water":
		t.level--
		t.watered++
		if wt, ok := world.DispatchTarget(t.target).(world.Waterable); ok {
			wt.WasWatered(ctx)
		}
	case "refill":
		if t.inReach(ctx.World, t.target) {
			t.level = TankCapacity
			t.refills++
		}
	}
	t.current, t.target = "", nil
	return nil
}

func (t *WaterTank) Marshal(dc *protocol.DataCollection) {
	name := t.Owner().Name()
	if t.sendStats {
		dc.AddAttribute(name, "times_watered", strconv.Itoa(t.watered))
		dc.AddAttribute(name, "times_refilled", strconv.Itoa(t.refills))
		dc.AddAttribute(name, "tank_capacity", strconv.Itoa(TankCapacity))
		t.sendStats = false
	}
	dc.AddAttribute(name, "water_level", strconv.Itoa(t.level))
	if t.current != "" {
		dc.AddAction(name, t.current, "", "")
	}
}
