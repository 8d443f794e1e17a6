// Package core drives a World on a fixed time unit and connects it to the
// client transport.
package core

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"terrasim.io/internal/protocol"
	"terrasim.io/internal/sim/world"
)

const (
	DefaultMinTimeUnit = 100 * time.Millisecond

	// tellAction delivers a command to the agent named in Arg1 instead of
	// the sender's own agent.
	tellAction = "tell"
)

var ErrTickTooShort = errors.New("time unit too short")

// Transport is the server side of client connections.
type Transport interface {
	Send(clientID int, m protocol.Message) bool
	Kick(clientID int)
	IsConnected(clientID int) bool
}

type Config struct {
	// DayCycle is the wall-clock length of one simulated day.
	DayCycle time.Duration
	// MinTimeUnit is the shortest accepted tick; zero means DefaultMinTimeUnit.
	MinTimeUnit time.Duration
}

type pendingCommand struct {
	clientID int
	cmd      protocol.Command
}

// Core owns the tick loop. Network callbacks only append to the pending
// queues; everything touching the World runs in Step.
type Core struct {
	w        *world.World
	tr       Transport
	log      *log.Logger
	timeUnit time.Duration
	started  time.Time

	mu        sync.Mutex
	admitted  map[int]struct{}
	joins     []int
	leaves    []int
	kicks     []SessionEvent
	commands  []pendingCommand
	capReqs   []int
	statsReqs []int

	tickSinks    []TickSink
	sessionSinks []SessionSink

	stepping  atomic.Bool
	ticks     atomic.Uint64
	skipped   atomic.Uint64
	failures  atomic.Uint64
	malformed atomic.Uint64

	stop     chan struct{}
	stopOnce sync.Once
}

func New(cfg Config, w *world.World, tr Transport, logger *log.Logger) (*Core, error) {
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	minUnit := cfg.MinTimeUnit
	if minUnit <= 0 {
		minUnit = DefaultMinTimeUnit
	}
	parts := w.Settings().DayPartCount
	unit := cfg.DayCycle / time.Duration(parts)
	if unit < minUnit {
		return nil, fmt.Errorf("%w: a day of %s split into %d parts gives %s per tick, the minimum is %s; lengthen the day cycle",
			ErrTickTooShort, cfg.DayCycle, parts, unit, minUnit)
	}
	return &Core{
		w:        w,
		tr:       tr,
		log:      logger,
		timeUnit: unit,
		started:  time.Now(),
		admitted: map[int]struct{}{},
		stop:     make(chan struct{}),
	}, nil
}

func (c *Core) World() *world.World     { return c.w }
func (c *Core) TimeUnit() time.Duration { return c.timeUnit }

func (c *Core) AddTickSink(s TickSink)       { c.tickSinks = append(c.tickSinks, s) }
func (c *Core) AddSessionSink(s SessionSink) { c.sessionSinks = append(c.sessionSinks, s) }

// HandleConnected admits the client while there is room and kicks it
// otherwise. Its agent is created at the start of the next tick.
func (c *Core) HandleConnected(clientID int) {
	c.mu.Lock()
	if len(c.admitted) >= c.w.MaxClients() {
		c.kicks = append(c.kicks, SessionEvent{
			ClientID: clientID,
			Kind:     SessionKick,
			Reason:   "server full",
		})
		c.mu.Unlock()
		c.log.Printf("client %d rejected: %d clients already admitted", clientID, c.w.MaxClients())
		c.tr.Kick(clientID)
		return
	}
	c.admitted[clientID] = struct{}{}
	c.joins = append(c.joins, clientID)
	c.capReqs = append(c.capReqs, clientID)
	c.mu.Unlock()
}

func (c *Core) HandleDisconnected(clientID int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.admitted[clientID]; !ok {
		return
	}
	delete(c.admitted, clientID)
	c.leaves = append(c.leaves, clientID)
}

// HandleMessage routes one inbound message. Malformed commands are logged
// and dropped.
func (c *Core) HandleMessage(clientID int, m protocol.Message) {
	switch m.Type {
	case protocol.TypeCommand:
		if m.Format != protocol.FormatJSON {
			c.malformed.Add(1)
			c.log.Printf("client %d: unsupported command format %s", clientID, m.Format)
			return
		}
		cmd, err := protocol.DecodeCommand(m.Body)
		if err != nil {
			c.malformed.Add(1)
			c.log.Printf("client %d: %v", clientID, err)
			return
		}
		c.mu.Lock()
		c.commands = append(c.commands, pendingCommand{clientID: clientID, cmd: cmd})
		c.mu.Unlock()
	case protocol.TypeCapabilities:
		c.mu.Lock()
		c.capReqs = append(c.capReqs, clientID)
		c.mu.Unlock()
	case protocol.TypeRequestStatistics:
		c.mu.Lock()
		c.statsReqs = append(c.statsReqs, clientID)
		c.mu.Unlock()
	case protocol.TypeExit:
		c.tr.Kick(clientID)
	case protocol.TypeJoin:
		// Admission already happened on connect.
	default:
		c.log.Printf("client %d: ignoring %s message", clientID, m.Type)
	}
}

// Run ticks until ctx is done or Stop is called.
func (c *Core) Run(ctx context.Context) error {
	ticker := time.NewTicker(c.timeUnit)
	defer ticker.Stop()
	c.log.Printf("running: time unit %s, max clients %d", c.timeUnit, c.w.MaxClients())
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-c.stop:
			return nil
		case <-ticker.C:
			c.Step()
		}
	}
}

func (c *Core) Stop() { c.stopOnce.Do(func() { close(c.stop) }) }

type batch struct {
	joins     []int
	leaves    []int
	kicks     []SessionEvent
	commands  []pendingCommand
	capReqs   []int
	statsReqs []int
}

func (c *Core) take() batch {
	c.mu.Lock()
	defer c.mu.Unlock()
	b := batch{
		joins:     c.joins,
		leaves:    c.leaves,
		kicks:     c.kicks,
		commands:  c.commands,
		capReqs:   c.capReqs,
		statsReqs: c.statsReqs,
	}
	c.joins, c.leaves, c.kicks, c.commands, c.capReqs, c.statsReqs = nil, nil, nil, nil, nil, nil
	return b
}

// Step runs one tick. It returns false without doing anything when another
// Step is still in progress.
func (c *Core) Step() bool {
	if !c.stepping.CompareAndSwap(false, true) {
		c.skipped.Add(1)
		return false
	}
	defer c.stepping.Store(false)

	start := time.Now()
	b := c.take()
	rec := TickRecord{}
	var sessions []SessionEvent

	for _, id := range b.leaves {
		name := ""
		if a, ok := c.w.Agent(id); ok {
			name = a.Name()
		}
		if c.w.RemoveAgent(id) {
			sessions = append(sessions, SessionEvent{ClientID: id, Agent: name, Kind: SessionLeave})
			rec.Leaves = append(rec.Leaves, id)
		}
	}
	for _, id := range b.joins {
		if !c.tr.IsConnected(id) {
			continue
		}
		a, err := c.w.AddAgent(id)
		if err != nil {
			c.log.Printf("client %d: add agent: %v", id, err)
			c.mu.Lock()
			delete(c.admitted, id)
			c.mu.Unlock()
			c.tr.Kick(id)
			sessions = append(sessions, SessionEvent{ClientID: id, Kind: SessionKick, Reason: err.Error()})
			continue
		}
		sessions = append(sessions, SessionEvent{ClientID: id, Agent: a.Name(), Kind: SessionJoin})
		rec.Joins = append(rec.Joins, id)
	}
	sessions = append(sessions, b.kicks...)

	for _, pc := range b.commands {
		target := pc.clientID
		if pc.cmd.ActionName == tellAction {
			id, ok := c.w.AgentIDByName(pc.cmd.Arg1)
			if !ok {
				rec.Dropped++
				continue
			}
			target = id
		}
		if _, ok := c.w.Agent(target); !ok {
			rec.Dropped++
			continue
		}
		c.w.EnqueueCommand(target, pc.cmd.ActionName, pc.cmd.Arg1, pc.cmd.Arg2)
	}

	res, err := c.w.Update()
	rec.Tick = res.Tick
	rec.Commands = res.Commands
	rec.Unhandled = res.Unhandled
	rec.Deferred = res.Deferred
	rec.NewDay = res.NewDay
	if err != nil {
		c.failures.Add(1)
		rec.Error = err.Error()
		c.log.Printf("tick %d aborted: %v", res.Tick, err)
	} else {
		c.afterTick(b)
	}
	c.ticks.Add(1)

	m := c.w.Metrics()
	rec.TsMs = start.UnixMilli()
	rec.Day, rec.TimeOfDay, rec.Pressure = c.w.Day(), c.w.TimeOfDay(), c.w.Pressure()
	rec.Weather, rec.Light = c.w.Weather().String(), c.w.Light().String()
	rec.Agents = m.Agents
	rec.Clients = c.ClientCount()
	rec.DurationUs = time.Since(start).Microseconds()

	for i := range sessions {
		sessions[i].Tick = rec.Tick
		sessions[i].TsMs = rec.TsMs
		for _, s := range c.sessionSinks {
			if err := s.WriteSession(sessions[i]); err != nil {
				c.log.Printf("session sink: %v", err)
			}
		}
	}
	for _, s := range c.tickSinks {
		if err := s.WriteTick(rec); err != nil {
			c.log.Printf("tick sink: %v", err)
		}
	}
	return true
}

// afterTick answers queued requests and pushes every agent's state to its
// client.
func (c *Core) afterTick(b batch) {
	for _, id := range b.capReqs {
		if !c.tr.IsConnected(id) {
			continue
		}
		actions, err := c.w.AgentCapabilities(id)
		if err != nil {
			continue
		}
		c.tr.Send(id, protocol.CapabilitiesMessage(actions))
	}
	if len(b.statsReqs) > 0 {
		st := c.Statistics()
		for _, id := range b.statsReqs {
			if c.tr.IsConnected(id) {
				c.tr.Send(id, protocol.StatisticsMessage(st))
			}
		}
	}
	for _, id := range c.w.AgentIDs() {
		if !c.tr.IsConnected(id) {
			continue
		}
		dc, err := c.w.AgentData(id)
		if err != nil {
			continue
		}
		c.tr.Send(id, protocol.NewMessage(protocol.TypeStateUpdate, protocol.FormatJSON, dc.ToJSON()))
	}
}

func (c *Core) ClientCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.admitted)
}

// Statistics describes the world as of the last tick.
func (c *Core) Statistics() protocol.Statistics {
	m := c.w.Metrics()
	return protocol.Statistics{
		Tick:      m.Tick,
		Day:       m.Day,
		TimeOfDay: m.TimeOfDay,
		Pressure:  m.Pressure,
		Weather:   m.Weather,
		Light:     m.Light,
		Clients:   c.ClientCount(),
		Agents:    m.Agents,
		UptimeMs:  time.Since(c.started).Milliseconds(),
	}
}

type Counters struct {
	Ticks            uint64 `json:"ticks"`
	SkippedTicks     uint64 `json:"skipped_ticks"`
	FailedTicks      uint64 `json:"failed_ticks"`
	MalformedInbound uint64 `json:"malformed_inbound"`
}

func (c *Core) Counters() Counters {
	return Counters{
		Ticks:            c.ticks.Load(),
		SkippedTicks:     c.skipped.Load(),
		FailedTicks:      c.failures.Load(),
		MalformedInbound: c.malformed.Load(),
	}
}
