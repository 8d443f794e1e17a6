package basic

import (
	"fmt"
	"strconv"

	"terrasim.io/internal/protocol"
	"terrasim.io/internal/sim/coord"
	"terrasim.io/internal/sim/world"
)

const (
	MagazineCapacity = 3
	gunPrice         = 3
)

var gunActions = []string{"gun_stats", "shoot", "reload"}

// Gun shoots at named objects. A shot lands one tick after it was ordered,
// a reload two ticks after.
type Gun struct {
	world.ActuatorBase
	b *coord.Broadcaster

	bullets int
	current string
	wait    int
	target  string

	sendStats bool
	shot      int
	reloads   int
}

func NewGun(owner *world.Agent, b *coord.Broadcaster) *Gun {
	return &Gun{ActuatorBase: world.NewActuatorBase(owner), b: b, bullets: MagazineCapacity}
}

func (g *Gun) ActionList() []string { return gunActions }

func (g *Gun) Bullets() int { return g.bullets }

func (g *Gun) Perform(_ *world.TickContext, action, arg1, _ string) error {
	switch action {
	case "gun_stats":
		g.sendStats = true
	case "shoot":
		if g.bullets < 1 || !payEnergy(g.b, g.Owner(), gunPrice) {
			return nil
		}
		g.current, g.wait, g.target = action, 1, arg1
	case "reload":
		if !payEnergy(g.b, g.Owner(), gunPrice) {
			return nil
		}
		g.current, g.wait, g.target = action, 2, ""
	default:
		return fmt.Errorf("gun: %w %q", world.ErrUnknownAction, action)
	}
	return nil
}

func (g *Gun) Update(ctx *world.TickContext) error {
	if g.current == "" {
		return nil
	}
	if g.wait > 0 {
		g.wait--
		return nil
	}
	switch g.current {
	case "shoot":
		g.shot++
		g.bullets--
		if obj := ctx.World.ObjectByName(g.target); obj != nil {
			if s, ok := world.DispatchTarget(obj).(world.Shootable); ok {
				s.WasShot(ctx)
			}
			g.b.Broadcast(MsgLoudNoise, nil, g.Owner(), nil, "")
		}
	case "reload":
		g.bullets = MagazineCapacity
		g.reloads++
	}
	g.current, g.target = "", ""
	return nil
}

func (g *Gun) Marshal(dc *protocol.DataCollection) {
	name := g.Owner().Name()
	dc.AddAttribute(name, "bullets_left", strconv.Itoa(g.bullets))
	if g.sendStats {
		dc.AddAttribute(name, "magazine_capacity", strconv.Itoa(MagazineCapacity))
		dc.AddAttribute(name, "bullets_shot", strconv.Itoa(g.shot))
		dc.AddAttribute(name, "reload_count", strconv.Itoa(g.reloads))
		g.sendStats = false
	}
	if g.current != "" {
		dc.AddAction(name, g.current, g.target, "")
	}
}
