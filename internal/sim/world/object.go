package world

import (
	"strconv"

	"terrasim.io/internal/protocol"
)

// NamedObject is anything that occupies a grid cell.
//
// Implementations embed Base, which carries the name, type and the position
// the World maintains.
type NamedObject interface {
	Name() string
	Type() string
	Position() (x, y int)
	Marshal(dc *protocol.DataCollection)
	Update(ctx *TickContext) error

	base() *Base
}

// TickContext is handed to every update, sense and perform call of a tick.
type TickContext struct {
	World *World
	Tick  uint64
}

// Base is the embeddable part of every NamedObject.
type Base struct {
	name string
	typ  string
	x, y int

	dispatch any
}

// NewBase returns an unplaced object (position -1,-1).
func NewBase(name, typ string) Base {
	return Base{name: name, typ: typ, x: -1, y: -1}
}

func (b *Base) Name() string         { return b.name }
func (b *Base) Type() string         { return b.typ }
func (b *Base) SetType(t string)     { b.typ = t }
func (b *Base) Position() (int, int) { return b.x, b.y }
func (b *Base) base() *Base          { return b }

// Marshal exports position_x, position_y and type.
func (b *Base) Marshal(dc *protocol.DataCollection) {
	dc.AddAttribute(b.name, "position_x", strconv.Itoa(b.x))
	dc.AddAttribute(b.name, "position_y", strconv.Itoa(b.y))
	dc.AddAttribute(b.name, "type", b.typ)
}

// SetDispatch attaches the value other entities type-assert against when
// they interact with this object (see Shootable, Waterable). Without one the
// object itself is used.
func (b *Base) SetDispatch(v any) { b.dispatch = v }

// DispatchTarget returns what interactions with obj should be delivered to.
func DispatchTarget(obj NamedObject) any {
	if d := obj.base().dispatch; d != nil {
		return d
	}
	return obj
}

// Optional capabilities. Callers type-assert DispatchTarget(obj); an entity
// that does not implement one simply ignores the interaction.

type Shootable interface {
	WasShot(ctx *TickContext)
}

type Waterable interface {
	WasWatered(ctx *TickContext)
}

type SteppedOn interface {
	WasSteppedOn(ctx *TickContext, by NamedObject)
}
