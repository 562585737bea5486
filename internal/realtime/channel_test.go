package realtime

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/example/ride-sync/internal/logging"
	"github.com/example/ride-sync/internal/models"
	"github.com/example/ride-sync/internal/session"
)

// pushServer upgrades every request, records its token, writes frames and
// then either closes normally or holds the connection open.
type pushServer struct {
	frames []string
	hold   bool

	mu     sync.Mutex
	tokens []string
}

func (p *pushServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	up := websocket.Upgrader{}
	conn, err := up.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()
	p.mu.Lock()
	p.tokens = append(p.tokens, r.URL.Query().Get("token"))
	p.mu.Unlock()

	for _, f := range p.frames {
		if err := conn.WriteMessage(websocket.TextMessage, []byte(f)); err != nil {
			return
		}
	}
	if p.hold {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}
	_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, "bye"))
}

func (p *pushServer) seen() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.tokens...)
}

func wsURL(srv *httptest.Server) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/v1/ws"
}

func TestChannelDeliversValidFramesOnly(t *testing.T) {
	ps := &pushServer{frames: []string{
		`{"user_id":"u1","kind":"ride_assigned","payload":{}}`,
		`not json`,
		`{"user_id":"u1"}`,
		`{"user_id":"u1","kind":"ride_started"}`,
	}}
	srv := httptest.NewServer(ps)
	defer srv.Close()

	ch := NewChannel(wsURL(srv), logging.Discard())
	var got []string
	var connectedDuring bool
	err := ch.Run(context.Background(), "tok en", func(n models.Notification) {
		got = append(got, n.Kind)
		connectedDuring = ch.Connected()
	})
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if len(got) != 2 || got[0] != "ride_assigned" || got[1] != "ride_started" {
		t.Fatalf("unexpected kinds %v", got)
	}
	if !connectedDuring || ch.Connected() {
		t.Fatalf("connected flag wrong: during=%v after=%v", connectedDuring, ch.Connected())
	}
	if tokens := ps.seen(); len(tokens) != 1 || tokens[0] != "tok en" {
		t.Fatalf("token not passed as query parameter: %v", tokens)
	}
}

func TestChannelClosesOnCancel(t *testing.T) {
	ps := &pushServer{frames: []string{`{"kind":"ride_assigned"}`}, hold: true}
	srv := httptest.NewServer(ps)
	defer srv.Close()

	ch := NewChannel(wsURL(srv), logging.Discard())
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- ch.Run(ctx, "tok", func(models.Notification) { cancel() })
	}()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("expected nil on cancel, got %v", err)
		}
	case <-time.After(3 * time.Second):
		t.Fatalf("channel did not close on cancel")
	}
	if ch.Connected() {
		t.Fatalf("still connected after teardown")
	}
}

func TestChannelRefusesWithoutToken(t *testing.T) {
	ch := NewChannel("ws://127.0.0.1:1/ws", logging.Discard())
	if err := ch.Run(context.Background(), "", func(models.Notification) {}); !errors.Is(err, ErrNoToken) {
		t.Fatalf("expected ErrNoToken, got %v", err)
	}
}

func TestChannelDialFailure(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := wsURL(srv)
	srv.Close()

	ch := NewChannel(url, logging.Discard())
	if err := ch.Run(context.Background(), "tok", func(models.Notification) {}); !errors.Is(err, ErrDial) {
		t.Fatalf("expected ErrDial, got %v", err)
	}
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("condition not met in time")
}

func TestSupervisorWaitsForSessionAndReconnects(t *testing.T) {
	ps := &pushServer{frames: []string{`{"kind":"ride_started"}`}}
	srv := httptest.NewServer(ps)
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	gate := session.NewGate(session.NewMemoryStore(), logging.Discard())

	sup := NewSupervisor(NewChannel(wsURL(srv), logging.Discard()), gate, 10*time.Millisecond, 40*time.Millisecond, logging.Discard())
	var mu sync.Mutex
	received := 0
	go sup.Run(ctx, func(models.Notification) {
		mu.Lock()
		received++
		mu.Unlock()
	})

	time.Sleep(50 * time.Millisecond)
	if n := len(ps.seen()); n != 0 {
		t.Fatalf("dialed %d times before hydration", n)
	}

	_ = gate.Hydrate(ctx)
	time.Sleep(50 * time.Millisecond)
	if n := len(ps.seen()); n != 0 {
		t.Fatalf("dialed %d times without a token", n)
	}

	gate.SetToken(ctx, "t1")
	waitFor(t, func() bool { return len(ps.seen()) >= 2 })
	mu.Lock()
	if received < 1 {
		t.Fatalf("no notifications delivered")
	}
	mu.Unlock()

	gate.SetToken(ctx, "t2")
	waitFor(t, func() bool {
		tokens := ps.seen()
		return tokens[len(tokens)-1] == "t2"
	})

	gate.Logout(ctx)
	time.Sleep(30 * time.Millisecond)
	after := len(ps.seen())
	time.Sleep(100 * time.Millisecond)
	if n := len(ps.seen()); n != after {
		t.Fatalf("kept dialing after logout: %d -> %d", after, n)
	}
}

func TestSupervisorTearsDownOnTokenChange(t *testing.T) {
	ps := &pushServer{hold: true}
	srv := httptest.NewServer(ps)
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	gate := session.NewGate(session.NewMemoryStore(), logging.Discard())
	_ = gate.Hydrate(ctx)
	gate.SetToken(ctx, "t1")

	ch := NewChannel(wsURL(srv), logging.Discard())
	sup := NewSupervisor(ch, gate, 10*time.Millisecond, 20*time.Millisecond, logging.Discard())
	stopped := make(chan struct{})
	go func() {
		sup.Run(ctx, func(models.Notification) {})
		close(stopped)
	}()

	waitFor(t, ch.Connected)
	gate.SetUser(ctx, &models.User{ID: "u1"})
	time.Sleep(30 * time.Millisecond)
	if n := len(ps.seen()); n != 1 {
		t.Fatalf("unrelated session change reopened the channel: %d dials", n)
	}

	gate.SetToken(ctx, "t2")
	waitFor(t, func() bool {
		tokens := ps.seen()
		return len(tokens) == 2 && tokens[1] == "t2"
	})

	cancel()
	select {
	case <-stopped:
	case <-time.After(3 * time.Second):
		t.Fatalf("supervisor did not stop")
	}
}
