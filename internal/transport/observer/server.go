package observer

import (
	"context"
	"encoding/json"
	"io"
	"log"
	"net"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"terrasim.io/internal/observerproto"
	"terrasim.io/internal/sim/core"
	"terrasim.io/internal/sim/world"
)

// Server streams one TICK message per simulation tick to websocket
// watchers. It is a core.TickSink: WriteTick runs on the tick goroutine and
// is the only place the World is read.
type Server struct {
	world *world.World
	log   *log.Logger

	upgrader websocket.Upgrader
	nextID   atomic.Uint64

	boot observerproto.BootstrapResponse
	tick atomic.Uint64

	mu       sync.Mutex
	watchers map[uint64]*watcher
	dropped  atomic.Uint64
}

type watcher struct {
	out    chan []byte
	agents atomic.Bool
}

// NewServer snapshots the map for /observer/bootstrap; call it before the
// tick loop starts.
func NewServer(w *world.World, timeUnit time.Duration, logger *log.Logger) *Server {
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	g := w.Map()
	tiles := make([][]string, g.SizeX())
	for x := range tiles {
		tiles[x] = make([]string, g.SizeY())
		for y := range tiles[x] {
			if t, ok := world.GroundAt(g, x, y); ok {
				tiles[x][y] = t.Type()
			}
		}
	}
	st := w.Settings()
	s := &Server{
		world: w,
		log:   logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4 * 1024,
			WriteBufferSize: 64 * 1024,
			CheckOrigin:     func(r *http.Request) bool { return true }, // loopback only, see isLoopbackRemote
		},
		boot: observerproto.BootstrapResponse{
			ProtocolVersion: observerproto.Version,
			World:           w.Name(),
			WorldParams: observerproto.WorldParams{
				Topology:     g.Topology().String(),
				SizeX:        g.SizeX(),
				SizeY:        g.SizeY(),
				DayPartCount: st.DayPartCount,
				DawnTime:     st.Dawn,
				DuskTime:     st.Dusk,
				MaxClients:   st.MaxClients,
				TimeUnitMs:   timeUnit.Milliseconds(),
			},
			Tiles: tiles,
		},
		watchers: map[uint64]*watcher{},
	}
	s.tick.Store(w.Tick())
	return s
}

// Watchers returns the number of subscribed connections.
func (s *Server) Watchers() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.watchers)
}

// Dropped counts TICK messages not delivered to a slow watcher.
func (s *Server) Dropped() uint64 { return s.dropped.Load() }

func (s *Server) WriteTick(rec core.TickRecord) error {
	s.tick.Store(rec.Tick)

	s.mu.Lock()
	ws := make([]*watcher, 0, len(s.watchers))
	wantAgents := false
	for _, w := range s.watchers {
		ws = append(ws, w)
		if w.agents.Load() {
			wantAgents = true
		}
	}
	s.mu.Unlock()
	if len(ws) == 0 {
		return nil
	}

	msg := observerproto.TickMsg{
		Type:            "TICK",
		ProtocolVersion: observerproto.Version,
		Tick:            rec.Tick,
		Day:             rec.Day,
		TimeOfDay:       rec.TimeOfDay,
		Pressure:        rec.Pressure,
		Weather:         rec.Weather,
		Light:           rec.Light,
		Clients:         rec.Clients,
		Joins:           rec.Joins,
		Leaves:          rec.Leaves,
		Error:           rec.Error,
	}
	plain, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	full := plain
	if wantAgents {
		msg.Agents = s.agentStates()
		if full, err = json.Marshal(msg); err != nil {
			return err
		}
	}
	for _, w := range ws {
		b := plain
		if w.agents.Load() {
			b = full
		}
		select {
		case w.out <- b:
		default:
			s.dropped.Add(1)
		}
	}
	return nil
}

func (s *Server) agentStates() []observerproto.AgentState {
	ids := s.world.AgentIDs()
	out := make([]observerproto.AgentState, 0, len(ids))
	for _, id := range ids {
		a, ok := s.world.Agent(id)
		if !ok {
			continue
		}
		x, y := a.Position()
		out = append(out, observerproto.AgentState{ClientID: id, Name: a.Name(), Pos: [2]int{x, y}})
	}
	return out
}

func (s *Server) BootstrapHandler() http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			rw.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		if !isLoopbackRemote(r.RemoteAddr) {
			http.Error(rw, "forbidden", http.StatusForbidden)
			return
		}
		resp := s.boot
		resp.Tick = s.tick.Load()
		rw.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(rw).Encode(resp)
	}
}

func (s *Server) WSHandler() http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		if !isLoopbackRemote(r.RemoteAddr) {
			http.Error(rw, "forbidden", http.StatusForbidden)
			return
		}

		conn, err := s.upgrader.Upgrade(rw, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		// Handshake: must send SUBSCRIBE first.
		_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
		_, msg, err := conn.ReadMessage()
		if err != nil {
			return
		}
		sub, ok := parseSubscribe(msg)
		if !ok {
			_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "expected SUBSCRIBE"), time.Now().Add(time.Second))
			return
		}

		id := s.nextID.Add(1)
		w := &watcher{out: make(chan []byte, 64)}
		w.agents.Store(sub.Agents)
		s.mu.Lock()
		s.watchers[id] = w
		s.mu.Unlock()
		s.log.Printf("observer %d subscribed from %s", id, r.RemoteAddr)
		defer func() {
			s.mu.Lock()
			delete(s.watchers, id)
			s.mu.Unlock()
		}()

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		writeErr := make(chan error, 1)
		go func() {
			for {
				select {
				case <-ctx.Done():
					writeErr <- ctx.Err()
					return
				case b := <-w.out:
					_ = conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
					if err := conn.WriteMessage(websocket.TextMessage, b); err != nil {
						writeErr <- err
						return
					}
				}
			}
		}()

		// Reader loop: allow SUBSCRIBE updates.
		for {
			_ = conn.SetReadDeadline(time.Now().Add(60 * time.Second))
			_, msg, err := conn.ReadMessage()
			if err != nil {
				break
			}
			if sub, ok := parseSubscribe(msg); ok {
				w.agents.Store(sub.Agents)
			}
		}

		cancel()
		_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, "bye"), time.Now().Add(time.Second))

		select {
		case <-writeErr:
		case <-time.After(500 * time.Millisecond):
		}
	}
}

func parseSubscribe(b []byte) (observerproto.SubscribeMsg, bool) {
	var sub observerproto.SubscribeMsg
	if err := json.Unmarshal(b, &sub); err != nil {
		return sub, false
	}
	return sub, sub.Type == "SUBSCRIBE" && sub.ProtocolVersion == observerproto.Version
}

func isLoopbackRemote(remoteAddr string) bool {
	host := remoteAddr
	if h, _, err := net.SplitHostPort(remoteAddr); err == nil {
		host = h
	}
	host = strings.TrimPrefix(host, "[")
	host = strings.TrimSuffix(host, "]")
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}
