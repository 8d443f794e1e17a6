package basic

import (
	"strconv"

	"terrasim.io/internal/sim/world"
)

// SightRange is how far Camera and Hygrometer reach, in steps.
const SightRange = 3

// Attributes about the world itself are reported under this target.
const worldTarget = "world"

type Clock struct{ world.SensorBase }

func NewClock(owner *world.Agent) *Clock { return &Clock{world.NewSensorBase(owner)} }

func (c *Clock) Sense(ctx *world.TickContext) error {
	c.LastInput.Clear()
	c.LastInput.AddAttribute(worldTarget, "time", strconv.Itoa(ctx.World.TimeOfDay()))
	return nil
}

type Barometer struct{ world.SensorBase }

func NewBarometer(owner *world.Agent) *Barometer { return &Barometer{world.NewSensorBase(owner)} }

func (b *Barometer) Sense(ctx *world.TickContext) error {
	b.LastInput.Clear()
	b.LastInput.AddAttribute(worldTarget, "pressure", strconv.Itoa(ctx.World.Pressure()))
	return nil
}

// Brightness reports the light on the agent's own tile.
type Brightness struct{ world.SensorBase }

func NewBrightness(owner *world.Agent) *Brightness { return &Brightness{world.NewSensorBase(owner)} }

func (b *Brightness) Sense(ctx *world.TickContext) error {
	b.LastInput.Clear()
	x, y := b.Owner().Position()
	if t, ok := world.GroundAt(ctx.World.Map(), x, y); ok {
		b.LastInput.AddAttribute(worldTarget, "light_intensity", t.Lighting().String())
	}
	return nil
}

// Hygrometer reports the humidity of every tile within SightRange.
type Hygrometer struct{ world.SensorBase }

func NewHygrometer(owner *world.Agent) *Hygrometer { return &Hygrometer{world.NewSensorBase(owner)} }

func (h *Hygrometer) Sense(ctx *world.TickContext) error {
	h.LastInput.Clear()
	x, y := h.Owner().Position()
	for _, c := range ctx.World.Map().Neighbours(x, y, SightRange) {
		for _, o := range ctx.World.Map().Cell(c.X, c.Y).Objects() {
			t, ok := o.(*world.GroundTile)
			if !ok {
				continue
			}
			tx, ty := t.Position()
			h.LastInput.AddAttribute(t.Name(), "position_x", strconv.Itoa(tx))
			h.LastInput.AddAttribute(t.Name(), "position_y", strconv.Itoa(ty))
			h.LastInput.AddAttribute(t.Name(), "humidity", t.Humidity().String())
		}
	}
	return nil
}

// Camera sees everything in the agent's cell and within SightRange, plus
// the weather. Other agents are seen from the outside only.
type Camera struct{ world.SensorBase }

func NewCamera(owner *world.Agent) *Camera { return &Camera{world.NewSensorBase(owner)} }

func (c *Camera) Sense(ctx *world.TickContext) error {
	c.LastInput.Clear()
	owner := c.Owner()
	m := ctx.World.Map()
	x, y := owner.Position()
	if cell := m.Cell(x, y); cell != nil {
		for _, o := range cell.Objects() {
			if !world.SameObject(o, owner) {
				c.see(o)
			}
		}
	}
	for _, n := range m.Neighbours(x, y, SightRange) {
		for _, o := range m.Cell(n.X, n.Y).Objects() {
			c.see(o)
		}
	}
	c.LastInput.AddAttribute(worldTarget, "weather", ctx.World.Weather().String())
	return nil
}

func (c *Camera) see(o world.NamedObject) {
	switch v := o.(type) {
	case *world.GroundTile:
		x, y := v.Position()
		c.LastInput.AddAttribute(v.Name(), "position_x", strconv.Itoa(x))
		c.LastInput.AddAttribute(v.Name(), "position_y", strconv.Itoa(y))
		c.LastInput.AddAttribute(v.Name(), "type", v.Type())
		c.LastInput.AddAttribute(v.Name(), "lighting", v.Lighting().String())
	case *world.UserAgent:
		v.Agent.Base.Marshal(c.LastInput)
	default:
		o.Marshal(c.LastInput)
	}
}

// Postmortem replaces every sensor of a shot agent.
type Postmortem struct{ world.SensorBase }

func NewPostmortem(owner *world.Agent) *Postmortem {
	p := &Postmortem{world.NewSensorBase(owner)}
	p.LastInput.AddAttribute(owner.Name(), "dead", "true")
	return p
}

func (p *Postmortem) Sense(*world.TickContext) error { return nil }
