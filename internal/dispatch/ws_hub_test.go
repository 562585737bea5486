package dispatch

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/example/ride-sync/internal/logging"
	"github.com/example/ride-sync/internal/models"
)

func newHubServer(t *testing.T, h *Hub) *httptest.Server {
	t.Helper()
	up := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := up.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		h.Add(conn)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func dial(t *testing.T, srv *httptest.Server) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	return conn
}

func waitLen(t *testing.T, h *Hub, n int) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if h.Len() == n {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("hub has %d sessions, want %d", h.Len(), n)
}

func TestHubBroadcastsToEveryClient(t *testing.T) {
	h := NewHub(logging.Discard())
	srv := newHubServer(t, h)

	a, b := dial(t, srv), dial(t, srv)
	defer a.Close()
	defer b.Close()
	waitLen(t, h, 2)

	n := models.Notification{UserID: "u1", Kind: models.KindRideStarted}
	if got := h.Broadcast(n); got != 2 {
		t.Fatalf("delivered to %d clients, want 2", got)
	}
	for _, c := range []*websocket.Conn{a, b} {
		var got models.Notification
		_ = c.SetReadDeadline(time.Now().Add(2 * time.Second))
		if err := c.ReadJSON(&got); err != nil || got.Kind != models.KindRideStarted || got.UserID != "u1" {
			t.Fatalf("unexpected frame %+v %v", got, err)
		}
	}
}

func TestHubDropsClosedClients(t *testing.T) {
	h := NewHub(logging.Discard())
	srv := newHubServer(t, h)

	c := dial(t, srv)
	waitLen(t, h, 1)
	c.Close()
	waitLen(t, h, 0)

	if got := h.Broadcast(models.Notification{Kind: "x"}); got != 0 {
		t.Fatalf("delivered to %d clients after close", got)
	}
	if err := h.Send("missing", "x"); err != ErrNoSession {
		t.Fatalf("expected ErrNoSession, got %v", err)
	}
}

func TestHubCloseDisconnects(t *testing.T) {
	h := NewHub(logging.Discard())
	srv := newHubServer(t, h)
	c := dial(t, srv)
	defer c.Close()
	waitLen(t, h, 1)

	h.Close()
	_ = c.SetReadDeadline(time.Now().Add(2 * time.Second))
	if _, _, err := c.ReadMessage(); !websocket.IsCloseError(err, websocket.CloseGoingAway) {
		t.Fatalf("expected going-away close, got %v", err)
	}
	if h.Len() != 0 {
		t.Fatalf("sessions left after close")
	}
}
