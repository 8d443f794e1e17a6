// Package tcp carries framed protocol messages over plain TCP connections.
package tcp

import (
	"errors"
	"fmt"
	"io"
	"log"
	"net"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"

	"terrasim.io/internal/protocol"
)

const (
	readBufferSize = 4096
	writeTimeout   = 5 * time.Second
)

// Handlers are the server's event callbacks. They run on connection
// goroutines and must not block for long.
type Handlers struct {
	Connected    func(clientID int)
	Disconnected func(clientID int)
	Message      func(clientID int, m protocol.Message)
}

type ServerConfig struct {
	Addr string

	// MessagesPerSecond limits inbound messages per connection; excess
	// messages are dropped. Zero disables the limit.
	MessagesPerSecond float64
	Burst             int
}

type Server struct {
	cfg ServerConfig
	log *log.Logger
	h   Handlers

	ln     net.Listener
	mu     sync.Mutex
	nextID int
	conns  map[int]*serverConn

	closed  atomic.Bool
	wg      sync.WaitGroup
	limited atomic.Uint64
}

type serverConn struct {
	id      int
	c       net.Conn
	writeMu sync.Mutex
	limiter *rate.Limiter
}

func NewServer(cfg ServerConfig, h Handlers, logger *log.Logger) *Server {
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	return &Server{cfg: cfg, h: h, log: logger, conns: map[int]*serverConn{}}
}

// Start listens on the configured address and begins accepting.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.cfg.Addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", s.cfg.Addr, err)
	}
	s.ln = ln
	s.wg.Add(1)
	go s.acceptLoop()
	s.log.Printf("listening on %s", ln.Addr())
	return nil
}

func (s *Server) Addr() net.Addr {
	if s.ln == nil {
		return nil
	}
	return s.ln.Addr()
}

func (s *Server) acceptLoop() {
	defer s.wg.Done()
	for {
		c, err := s.ln.Accept()
		if err != nil {
			if s.closed.Load() || errors.Is(err, net.ErrClosed) {
				return
			}
			s.log.Printf("accept: %v", err)
			continue
		}
		s.admit(c)
	}
}

func (s *Server) admit(c net.Conn) {
	sc := &serverConn{c: c}
	if s.cfg.MessagesPerSecond > 0 {
		burst := s.cfg.Burst
		if burst < 1 {
			burst = 1
		}
		sc.limiter = rate.NewLimiter(rate.Limit(s.cfg.MessagesPerSecond), burst)
	}

	s.mu.Lock()
	s.nextID++
	sc.id = s.nextID
	s.conns[sc.id] = sc
	s.mu.Unlock()

	s.log.Printf("client %d connected from %s", sc.id, c.RemoteAddr())
	if err := sc.write(protocol.WelcomeMessage(sc.id)); err != nil {
		s.log.Printf("client %d: welcome: %v", sc.id, err)
	}
	if s.h.Connected != nil {
		s.h.Connected(sc.id)
	}

	s.wg.Add(1)
	go s.receiveLoop(sc)
}

func (s *Server) receiveLoop(sc *serverConn) {
	defer s.wg.Done()
	asm := protocol.NewAssembler(s.log)
	buf := make([]byte, readBufferSize)
	for {
		n, err := sc.c.Read(buf)
		if n > 0 {
			for _, m := range asm.Feed(buf[:n]) {
				if sc.limiter != nil && !sc.limiter.Allow() {
					s.limited.Add(1)
					continue
				}
				if s.h.Message != nil {
					s.h.Message(sc.id, m)
				}
			}
		}
		if err != nil || n == 0 {
			break
		}
	}

	s.mu.Lock()
	_, active := s.conns[sc.id]
	delete(s.conns, sc.id)
	s.mu.Unlock()
	_ = sc.c.Close()

	if active && !s.closed.Load() {
		s.log.Printf("client %d disconnected", sc.id)
		if s.h.Disconnected != nil {
			s.h.Disconnected(sc.id)
		}
	}
}

func (sc *serverConn) write(m protocol.Message) error {
	sc.writeMu.Lock()
	defer sc.writeMu.Unlock()
	_ = sc.c.SetWriteDeadline(time.Now().Add(writeTimeout))
	_, err := sc.c.Write(m.Encode())
	return err
}

func (s *Server) conn(id int) *serverConn {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conns[id]
}

// Send writes m to the client. It reports false when the client is gone or
// the write failed.
func (s *Server) Send(clientID int, m protocol.Message) bool {
	sc := s.conn(clientID)
	if sc == nil {
		return false
	}
	if err := sc.write(m); err != nil {
		s.log.Printf("client %d: send %s: %v", clientID, m.Type, err)
		_ = sc.c.Close()
		return false
	}
	return true
}

// Kick sends an empty Exit and closes the connection. The receive loop then
// reports the disconnect.
func (s *Server) Kick(clientID int) {
	sc := s.conn(clientID)
	if sc == nil {
		return
	}
	_ = sc.write(protocol.ExitMessage())
	_ = sc.c.Close()
}

func (s *Server) IsConnected(clientID int) bool { return s.conn(clientID) != nil }

// Clients returns the connected client ids in ascending order.
func (s *Server) Clients() []int {
	s.mu.Lock()
	ids := make([]int, 0, len(s.conns))
	for id := range s.conns {
		ids = append(ids, id)
	}
	s.mu.Unlock()
	sort.Ints(ids)
	return ids
}

func (s *Server) ClientCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.conns)
}

// RateLimited counts inbound messages dropped by the per-connection limiter.
func (s *Server) RateLimited() uint64 { return s.limited.Load() }

// Stop closes the listener and every connection, then waits for all
// goroutines to exit. No Disconnected callbacks fire during Stop.
func (s *Server) Stop() {
	if !s.closed.CompareAndSwap(false, true) {
		return
	}
	if s.ln != nil {
		_ = s.ln.Close()
	}
	s.mu.Lock()
	for _, sc := range s.conns {
		_ = sc.c.Close()
	}
	s.conns = map[int]*serverConn{}
	s.mu.Unlock()
	s.wg.Wait()
}
