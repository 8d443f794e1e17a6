package world

import (
	"errors"
	"fmt"
	"strings"

	"terrasim.io/internal/protocol"
)

const AgentType = "user_agent"

var (
	ErrForeignPart    = errors.New("part is owned by another agent")
	ErrUnknownAction  = errors.New("unknown action")
	ErrAgentNotFound  = errors.New("agent not found")
	ErrObjectNotFound = errors.New("object not found")
)

// Sensor produces an agent's perception. Sense runs once per tick after the
// environment update; Marshal exports the last reading.
type Sensor interface {
	Owner() *Agent
	Sense(ctx *TickContext) error
	Marshal(dc *protocol.DataCollection)
}

// Actuator carries out agent actions. Perform is called while commands are
// drained; Update runs once per tick afterwards.
type Actuator interface {
	Owner() *Agent
	ActionList() []string
	Perform(ctx *TickContext, action, arg1, arg2 string) error
	Update(ctx *TickContext) error
	Marshal(dc *protocol.DataCollection)
}

// SensorBase keeps the last reading of a sensor and exports it verbatim.
type SensorBase struct {
	owner     *Agent
	LastInput *protocol.DataCollection
}

func NewSensorBase(owner *Agent) SensorBase {
	return SensorBase{owner: owner, LastInput: protocol.NewDataCollection()}
}

func (s *SensorBase) Owner() *Agent                       { return s.owner }
func (s *SensorBase) Marshal(dc *protocol.DataCollection) { dc.AddFrom(s.LastInput) }

type ActuatorBase struct {
	owner *Agent
}

func NewActuatorBase(owner *Agent) ActuatorBase { return ActuatorBase{owner: owner} }

func (a *ActuatorBase) Owner() *Agent { return a.owner }

// Agent is a NamedObject with exclusively owned actuators and sensors.
type Agent struct {
	Base

	actuators []Actuator
	sensors   []Sensor

	onActuatorAdded func(Actuator)
}

func NewAgent(name string) *Agent {
	return &Agent{Base: NewBase(name, AgentType)}
}

func (a *Agent) AddActuator(act Actuator) error {
	if act.Owner() != a {
		return fmt.Errorf("add actuator to %s: %w", a.Name(), ErrForeignPart)
	}
	a.actuators = append(a.actuators, act)
	if a.onActuatorAdded != nil {
		a.onActuatorAdded(act)
	}
	return nil
}

func (a *Agent) AddSensor(s Sensor) error {
	if s.Owner() != a {
		return fmt.Errorf("add sensor to %s: %w", a.Name(), ErrForeignPart)
	}
	a.sensors = append(a.sensors, s)
	return nil
}

func (a *Agent) Actuators() []Actuator { return append([]Actuator(nil), a.actuators...) }
func (a *Agent) Sensors() []Sensor     { return append([]Sensor(nil), a.sensors...) }

func (a *Agent) RemoveSensors()   { a.sensors = nil }
func (a *Agent) RemoveActuators() { a.actuators = nil }

// Update advances every actuator.
func (a *Agent) Update(ctx *TickContext) error {
	for _, act := range a.actuators {
		if err := act.Update(ctx); err != nil {
			return fmt.Errorf("%s: %w", a.Name(), err)
		}
	}
	return nil
}

func (a *Agent) UpdateSensors(ctx *TickContext) error {
	for _, s := range a.sensors {
		if err := s.Sense(ctx); err != nil {
			return fmt.Errorf("%s: %w", a.Name(), err)
		}
	}
	return nil
}

// Marshal exports the base attributes, then each actuator, then each sensor.
func (a *Agent) Marshal(dc *protocol.DataCollection) {
	a.Base.Marshal(dc)
	for _, act := range a.actuators {
		act.Marshal(dc)
	}
	for _, s := range a.sensors {
		s.Marshal(dc)
	}
}

// UserAgent is the agent a connected client controls.
type UserAgent struct {
	*Agent

	id       int
	bindings map[string]Actuator
	actions  []string
}

func NewUserAgent(name string, id int) *UserAgent {
	u := &UserAgent{
		Agent:    NewAgent(name),
		id:       id,
		bindings: map[string]Actuator{},
	}
	u.Agent.onActuatorAdded = u.bind
	return u
}

func (u *UserAgent) ID() int { return u.id }

// bind maps each action of act to it. A later actuator claiming the same
// action name wins.
func (u *UserAgent) bind(act Actuator) {
	for _, name := range act.ActionList() {
		k := strings.ToLower(name)
		if _, exists := u.bindings[k]; !exists {
			u.actions = append(u.actions, k)
		}
		u.bindings[k] = act
	}
}

// RemoveActuators also forgets every action binding.
func (u *UserAgent) RemoveActuators() {
	u.Agent.RemoveActuators()
	u.bindings = map[string]Actuator{}
	u.actions = nil
}

// PossibleActions lists bound action names in first-registration order.
func (u *UserAgent) PossibleActions() []string {
	return append([]string(nil), u.actions...)
}

// PerformAction dispatches to the bound actuator. It reports false for an
// action nobody handles.
func (u *UserAgent) PerformAction(ctx *TickContext, action, arg1, arg2 string) (bool, error) {
	act, ok := u.bindings[strings.ToLower(action)]
	if !ok {
		return false, nil
	}
	if err := act.Perform(ctx, strings.ToLower(action), arg1, arg2); err != nil {
		return true, fmt.Errorf("%s %s: %w", u.Name(), action, err)
	}
	return true, nil
}
