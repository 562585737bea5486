package realtime

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/example/ride-sync/internal/events"
	"github.com/example/ride-sync/internal/models"
	"github.com/example/ride-sync/internal/observability"
)

var (
	ErrNoToken = errors.New("realtime: no token")
	ErrDial    = errors.New("realtime: dial failed")
)

// Sink receives every notification that survived normalization.
type Sink func(models.Notification)

// Channel is the push connection of one session. It never reconnects on
// its own; see Supervisor.
type Channel struct {
	baseURL   string
	dialer    *websocket.Dialer
	logger    *slog.Logger
	connected atomic.Bool
}

func NewChannel(baseURL string, logger *slog.Logger) *Channel {
	if logger == nil {
		logger = slog.Default()
	}
	return &Channel{
		baseURL: baseURL,
		dialer:  &websocket.Dialer{HandshakeTimeout: 10 * time.Second},
		logger:  logger.With("component", "realtime"),
	}
}

func (c *Channel) Connected() bool { return c.connected.Load() }

// Run opens one connection authenticated by token and feeds sink until the
// connection drops or ctx is cancelled. Cancellation closes the socket and
// returns nil. Malformed frames are logged and skipped.
func (c *Channel) Run(ctx context.Context, token string, sink Sink) error {
	if token == "" {
		return ErrNoToken
	}
	endpoint, err := c.endpoint(token)
	if err != nil {
		return err
	}

	conn, _, err := c.dialer.DialContext(ctx, endpoint, nil)
	if err != nil {
		observability.ChannelDials.WithLabelValues("error").Inc()
		return fmt.Errorf("%w: %v", ErrDial, err)
	}
	observability.ChannelDials.WithLabelValues("ok").Inc()
	c.setConnected(true)
	c.logger.Info("channel connected")
	defer func() {
		c.setConnected(false)
		_ = conn.Close()
		c.logger.Info("channel closed")
	}()

	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(time.Second))
			_ = conn.Close()
		case <-done:
		}
	}()

	for {
		_, frame, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil || websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return nil
			}
			return fmt.Errorf("reading frame: %w", err)
		}
		observability.FramesReceived.Inc()

		n, err := events.Normalize(frame)
		if err != nil {
			reason := "not_json"
			if errors.Is(err, events.ErrMissingKind) {
				reason = "missing_kind"
			}
			observability.FramesDropped.WithLabelValues(reason).Inc()
			c.logger.Debug("dropping frame", "reason", reason, "error", err)
			continue
		}
		sink(n)
	}
}

func (c *Channel) endpoint(token string) (string, error) {
	u, err := url.Parse(c.baseURL)
	if err != nil {
		return "", fmt.Errorf("parsing channel url: %w", err)
	}
	q := u.Query()
	q.Set("token", token)
	u.RawQuery = q.Encode()
	return u.String(), nil
}

func (c *Channel) setConnected(v bool) {
	c.connected.Store(v)
	if v {
		observability.ChannelConnected.Set(1)
	} else {
		observability.ChannelConnected.Set(0)
	}
}
