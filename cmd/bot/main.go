package main

import (
	"context"
	"flag"
	"log"
	"math/rand"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"terrasim.io/internal/protocol"
	"terrasim.io/internal/transport/tcp"
)

var moves = []string{"forward", "forward", "forward", "left", "right", "backward"}

func main() {
	var (
		addr      = flag.String("addr", "127.0.0.1:8183", "server address")
		seed      = flag.Int64("seed", 0, "random seed (0 picks one from the clock)")
		statsEach = flag.Int("stats_every", 50, "request statistics every N state updates (0 disables)")
	)
	flag.Parse()

	logger := log.New(os.Stdout, "[bot] ", log.LstdFlags|log.Lmicroseconds)
	if *seed == 0 {
		*seed = time.Now().UnixNano()
	}
	b := &bot{
		log:        logger,
		rng:        rand.New(rand.NewSource(*seed)),
		statsEvery: *statsEach,
		done:       make(chan struct{}),
	}
	b.client = tcp.NewClient(tcp.ClientHandlers{
		Disconnected: b.disconnected,
		Message:      b.handle,
	}, logger)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	dialCtx, cancelDial := context.WithTimeout(ctx, 5*time.Second)
	err := b.client.Connect(dialCtx, *addr)
	cancelDial()
	if err != nil {
		logger.Fatalf("%v", err)
	}

	select {
	case <-ctx.Done():
		b.client.SendMessage("", protocol.TypeExit, protocol.FormatSettings)
		_ = b.client.Close()
	case <-b.done:
	}
}

type bot struct {
	log        *log.Logger
	client     *tcp.Client
	statsEvery int

	mu      sync.Mutex
	rng     *rand.Rand
	name    string
	actions map[string]bool
	updates int

	doneOnce sync.Once
	done     chan struct{}
}

func (b *bot) disconnected() {
	b.log.Printf("disconnected")
	b.doneOnce.Do(func() { close(b.done) })
}

func (b *bot) handle(m protocol.Message) {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch m.Type {
	case protocol.TypeSettings:
		if id, ok := protocol.ParseSettings(m.Body)[protocol.KeyYourID]; ok {
			b.name = "agent_" + id
			b.log.Printf("welcome: %s=%s", protocol.KeyYourID, id)
		}
	case protocol.TypeCapabilities:
		actions, err := protocol.ParseCapabilities(m.Body)
		if err != nil {
			b.log.Printf("capabilities: %v", err)
			return
		}
		b.actions = make(map[string]bool, len(actions))
		for _, a := range actions {
			b.actions[a] = true
		}
		b.log.Printf("capabilities: %v", actions)
	case protocol.TypeRequestStatistics:
		b.log.Printf("statistics: %s", m.Body)
	case protocol.TypeStateUpdate:
		dc, err := protocol.ParseDataCollection(m.Body)
		if err != nil {
			b.log.Printf("state update: %v", err)
			return
		}
		b.updates++
		b.act(dc)
	case protocol.TypeExit:
		b.log.Printf("server asked us to leave")
	}
}

// act issues one movement command per state update, unless the agent is
// dead or still busy with the previous one.
func (b *bot) act(dc *protocol.DataCollection) {
	if b.statsEvery > 0 && b.updates%b.statsEvery == 0 {
		b.client.SendMessage("", protocol.TypeRequestStatistics, protocol.FormatJSON)
	}
	if dead, _ := dc.Attribute(b.name, "dead"); dead == "true" {
		return
	}
	for _, a := range dc.Actions() {
		if a[0] == b.name {
			return
		}
	}
	x, _ := dc.Attribute(b.name, "position_x")
	y, _ := dc.Attribute(b.name, "position_y")
	energy, _ := dc.Attribute(b.name, "battery_energy_level")

	move := moves[b.rng.Intn(len(moves))]
	if b.actions != nil && !b.actions[move] {
		return
	}
	if b.updates%20 == 0 {
		b.log.Printf("at (%s,%s) energy=%s, next %s", x, y, energy, move)
	}
	b.client.SendCommand(protocol.Command{ActionName: move})
}
