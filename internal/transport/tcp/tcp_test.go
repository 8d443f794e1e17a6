package tcp

import (
	"context"
	"net"
	"testing"
	"time"

	"terrasim.io/internal/protocol"
)

type serverEvent struct {
	kind string
	id   int
	msg  protocol.Message
}

func startServer(t *testing.T, cfg ServerConfig) (*Server, chan serverEvent) {
	t.Helper()
	events := make(chan serverEvent, 64)
	cfg.Addr = "127.0.0.1:0"
	s := NewServer(cfg, Handlers{
		Connected:    func(id int) { events <- serverEvent{kind: "connected", id: id} },
		Disconnected: func(id int) { events <- serverEvent{kind: "disconnected", id: id} },
		Message:      func(id int, m protocol.Message) { events <- serverEvent{kind: "message", id: id, msg: m} },
	}, nil)
	if err := s.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	t.Cleanup(s.Stop)
	return s, events
}

func waitServer(t *testing.T, ch chan serverEvent, kind string) serverEvent {
	t.Helper()
	timeout := time.After(3 * time.Second)
	for {
		select {
		case ev := <-ch:
			if ev.kind == kind {
				return ev
			}
		case <-timeout:
			t.Fatalf("timed out waiting for %s", kind)
		}
	}
}

func waitMessage(t *testing.T, ch chan protocol.Message, typ protocol.MessageType) protocol.Message {
	t.Helper()
	timeout := time.After(3 * time.Second)
	for {
		select {
		case m := <-ch:
			if m.Type == typ {
				return m
			}
		case <-timeout:
			t.Fatalf("timed out waiting for %s", typ)
		}
	}
}

func connectClient(t *testing.T, addr string) (*Client, chan protocol.Message, chan struct{}) {
	t.Helper()
	msgs := make(chan protocol.Message, 64)
	gone := make(chan struct{}, 1)
	cl := NewClient(ClientHandlers{
		Message:      func(m protocol.Message) { msgs <- m },
		Disconnected: func() { gone <- struct{}{} },
	}, nil)
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := cl.Connect(ctx, addr); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	t.Cleanup(func() { _ = cl.Close() })
	return cl, msgs, gone
}

func TestServerClient_WelcomeJoinCommand(t *testing.T) {
	s, events := startServer(t, ServerConfig{})
	cl, msgs, _ := connectClient(t, s.Addr().String())

	welcome := waitMessage(t, msgs, protocol.TypeSettings)
	if got := protocol.ParseSettings(welcome.Body)[protocol.KeyYourID]; got != "1" {
		t.Fatalf("your_id=%q want 1", got)
	}
	if ev := waitServer(t, events, "connected"); ev.id != 1 {
		t.Fatalf("connected id=%d", ev.id)
	}
	if ev := waitServer(t, events, "message"); ev.msg.Type != protocol.TypeJoin {
		t.Fatalf("first client message %s, want Join", ev.msg.Type)
	}

	if !cl.SendCommand(protocol.Command{ActionName: "forward"}) {
		t.Fatalf("SendCommand failed")
	}
	ev := waitServer(t, events, "message")
	cmd, err := protocol.DecodeCommand(ev.msg.Body)
	if err != nil || cmd.ActionName != "forward" || ev.id != 1 {
		t.Fatalf("command=%+v id=%d err=%v", cmd, ev.id, err)
	}

	if !s.Send(1, protocol.NewMessage(protocol.TypeStateUpdate, protocol.FormatJSON, `{"x":1}`)) {
		t.Fatalf("Send failed")
	}
	if m := waitMessage(t, msgs, protocol.TypeStateUpdate); m.Body != `{"x":1}` {
		t.Fatalf("body=%q", m.Body)
	}
}

func TestServer_IncreasingIDs(t *testing.T) {
	s, events := startServer(t, ServerConfig{})
	for want := 1; want <= 3; want++ {
		connectClient(t, s.Addr().String())
		if ev := waitServer(t, events, "connected"); ev.id != want {
			t.Fatalf("id=%d want %d", ev.id, want)
		}
	}
	if got := s.Clients(); len(got) != 3 || got[0] != 1 || got[2] != 3 {
		t.Fatalf("Clients=%v", got)
	}
}

func TestServer_KickSendsExit(t *testing.T) {
	s, events := startServer(t, ServerConfig{})
	cl, msgs, gone := connectClient(t, s.Addr().String())
	waitServer(t, events, "connected")

	s.Kick(1)
	waitMessage(t, msgs, protocol.TypeExit)
	select {
	case <-gone:
	case <-time.After(3 * time.Second):
		t.Fatalf("client never saw the disconnect")
	}
	if ev := waitServer(t, events, "disconnected"); ev.id != 1 {
		t.Fatalf("disconnected id=%d", ev.id)
	}
	if s.IsConnected(1) || s.Send(1, protocol.ExitMessage()) {
		t.Fatalf("kicked client still reachable")
	}
	if cl.SendMessage("", protocol.TypeJoin, protocol.FormatSettings) {
		t.Fatalf("SendMessage succeeded after disconnect")
	}
}

func TestServer_ClientCloseNotifies(t *testing.T) {
	s, events := startServer(t, ServerConfig{})
	cl, _, _ := connectClient(t, s.Addr().String())
	waitServer(t, events, "connected")
	if err := cl.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	waitServer(t, events, "disconnected")
	if s.ClientCount() != 0 {
		t.Fatalf("ClientCount=%d", s.ClientCount())
	}
}

func TestServer_SplitAndCoalescedFrames(t *testing.T) {
	s, events := startServer(t, ServerConfig{})
	c, err := net.Dial("tcp", s.Addr().String())
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer c.Close()
	waitServer(t, events, "connected")

	a := protocol.NewMessage(protocol.TypeCommand, protocol.FormatJSON, `{"ActionName":"left"}`).Encode()
	b := protocol.NewMessage(protocol.TypeCommand, protocol.FormatJSON, `{"ActionName":"right"}`).Encode()
	stream := append(append([]byte{}, a...), b...)
	cut := len(a) + 3
	if _, err := c.Write(stream[:cut]); err != nil {
		t.Fatalf("write: %v", err)
	}
	first := waitServer(t, events, "message")
	time.Sleep(20 * time.Millisecond)
	if _, err := c.Write(stream[cut:]); err != nil {
		t.Fatalf("write: %v", err)
	}
	second := waitServer(t, events, "message")
	if first.msg.Body != `{"ActionName":"left"}` || second.msg.Body != `{"ActionName":"right"}` {
		t.Fatalf("bodies %q, %q", first.msg.Body, second.msg.Body)
	}
}

func TestServer_RateLimitDrops(t *testing.T) {
	s, events := startServer(t, ServerConfig{MessagesPerSecond: 0.001, Burst: 2})
	c, err := net.Dial("tcp", s.Addr().String())
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer c.Close()
	waitServer(t, events, "connected")

	var stream []byte
	for i := 0; i < 5; i++ {
		stream = append(stream, protocol.NewMessage(protocol.TypeCommand, protocol.FormatJSON, `{"ActionName":"left"}`).Encode()...)
	}
	if _, err := c.Write(stream); err != nil {
		t.Fatalf("write: %v", err)
	}
	waitServer(t, events, "message")
	waitServer(t, events, "message")
	deadline := time.Now().Add(3 * time.Second)
	for s.RateLimited() < 3 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	if s.RateLimited() != 3 {
		t.Fatalf("RateLimited=%d want 3", s.RateLimited())
	}
}

func TestClient_SendWhileDisconnected(t *testing.T) {
	cl := NewClient(ClientHandlers{}, nil)
	if cl.SendMessage("x", protocol.TypeCommand, protocol.FormatJSON) {
		t.Fatalf("SendMessage succeeded without a connection")
	}
	if cl.IsConnected() {
		t.Fatalf("IsConnected on a fresh client")
	}
}
