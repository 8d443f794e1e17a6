package tcp

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"net"
	"sync"

	"terrasim.io/internal/protocol"
)

var ErrNotConnected = errors.New("not connected")

type ClientHandlers struct {
	Connected    func()
	Disconnected func()
	Message      func(m protocol.Message)
}

// Client is the agent side of a connection.
type Client struct {
	log *log.Logger
	h   ClientHandlers

	mu      sync.Mutex
	c       net.Conn
	writeMu sync.Mutex
	done    chan struct{}
}

func NewClient(h ClientHandlers, logger *log.Logger) *Client {
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	return &Client{h: h, log: logger}
}

// Connect dials addr, sends Join and starts the receive loop.
func (cl *Client) Connect(ctx context.Context, addr string) error {
	cl.mu.Lock()
	if cl.c != nil {
		cl.mu.Unlock()
		return fmt.Errorf("connect %s: already connected", addr)
	}
	cl.mu.Unlock()

	var d net.Dialer
	c, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return fmt.Errorf("connect %s: %w", addr, err)
	}
	done := make(chan struct{})
	cl.mu.Lock()
	cl.c = c
	cl.done = done
	cl.mu.Unlock()

	if err := cl.write(c, protocol.JoinMessage()); err != nil {
		_ = c.Close()
		cl.mu.Lock()
		cl.c = nil
		cl.mu.Unlock()
		return fmt.Errorf("join: %w", err)
	}
	if cl.h.Connected != nil {
		cl.h.Connected()
	}
	go cl.receiveLoop(c, done)
	return nil
}

func (cl *Client) receiveLoop(c net.Conn, done chan struct{}) {
	defer close(done)
	asm := protocol.NewAssembler(cl.log)
	buf := make([]byte, readBufferSize)
	for {
		n, err := c.Read(buf)
		if n > 0 {
			for _, m := range asm.Feed(buf[:n]) {
				if cl.h.Message != nil {
					cl.h.Message(m)
				}
			}
		}
		if err != nil || n == 0 {
			break
		}
	}
	_ = c.Close()
	cl.mu.Lock()
	if cl.c == c {
		cl.c = nil
	}
	cl.mu.Unlock()
	if cl.h.Disconnected != nil {
		cl.h.Disconnected()
	}
}

func (cl *Client) write(c net.Conn, m protocol.Message) error {
	cl.writeMu.Lock()
	defer cl.writeMu.Unlock()
	_, err := c.Write(m.Encode())
	return err
}

func (cl *Client) IsConnected() bool {
	cl.mu.Lock()
	defer cl.mu.Unlock()
	return cl.c != nil
}

// SendMessage reports false when the client is not connected or the write
// failed.
func (cl *Client) SendMessage(body string, t protocol.MessageType, f protocol.MessageFormat) bool {
	cl.mu.Lock()
	c := cl.c
	cl.mu.Unlock()
	if c == nil {
		return false
	}
	if err := cl.write(c, protocol.NewMessage(t, f, body)); err != nil {
		cl.log.Printf("send %s: %v", t, err)
		return false
	}
	return true
}

// SendCommand encodes cmd as a JSON Command message.
func (cl *Client) SendCommand(cmd protocol.Command) bool {
	return cl.SendMessage(cmd.Encode(), protocol.TypeCommand, protocol.FormatJSON)
}

// Close disconnects and waits for the receive loop to finish.
func (cl *Client) Close() error {
	cl.mu.Lock()
	c, done := cl.c, cl.done
	cl.mu.Unlock()
	if c == nil {
		if done != nil {
			<-done
		}
		return ErrNotConnected
	}
	err := c.Close()
	<-done
	return err
}
