package basic

import (
	"fmt"
	"strconv"

	"terrasim.io/internal/sim/coord"
	"terrasim.io/internal/sim/world"
)

// Broadcast messages used by this pack.
const (
	MsgPayEnergy = "pay_energy"
	MsgLoudNoise = "loud_noise"
)

const AccumulatorCapacity = 70

// payEnergy asks the owner's accumulator for amount. It reports false when
// nobody answered or the battery is too low.
func payEnergy(b *coord.Broadcaster, owner *world.Agent, amount int) bool {
	paid := false
	b.Broadcast(MsgPayEnergy, amount, owner, func(v any) {
		if ok, _ := v.(bool); ok {
			paid = true
		}
	}, owner.Name())
	return paid
}

// Accumulator is the agent's battery. It recharges from the light of the
// tile the agent stands on and pays for actions on request.
type Accumulator struct {
	world.SensorBase
	level int
}

func NewAccumulator(owner *world.Agent, b *coord.Broadcaster) (*Accumulator, error) {
	acc := &Accumulator{SensorBase: world.NewSensorBase(owner), level: AccumulatorCapacity}
	err := b.SubscribeWithCallback(MsgPayEnergy, owner, func(arg any, reply coord.Reply) {
		amount, _ := arg.(int)
		ok := acc.Pay(amount)
		if reply != nil {
			reply(ok)
		}
	})
	if err != nil {
		return nil, fmt.Errorf("accumulator for %s: %w", owner.Name(), err)
	}
	return acc, nil
}

func (a *Accumulator) Level() int { return a.level }

// Pay subtracts amount when enough energy is stored.
func (a *Accumulator) Pay(amount int) bool {
	if amount < 0 || a.level < amount {
		return false
	}
	a.level -= amount
	return true
}

func (a *Accumulator) Sense(ctx *world.TickContext) error {
	a.LastInput.Clear()
	x, y := a.Owner().Position()
	if t, ok := world.GroundAt(ctx.World.Map(), x, y); ok {
		a.level += int(t.Lighting())
	}
	if a.level > AccumulatorCapacity {
		a.level = AccumulatorCapacity
	}
	if a.level < 0 {
		a.level = 0
	}
	a.LastInput.AddAttribute(a.Owner().Name(), "battery_energy_level", strconv.Itoa(a.level))
	return nil
}
