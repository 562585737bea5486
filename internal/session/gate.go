package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/golang-jwt/jwt"

	"github.com/example/ride-sync/internal/models"
)

// AuthKey is the store key the session is persisted under.
const AuthKey = "ride-auth"

// Snapshot is a copy of the session at one point in time.
type Snapshot struct {
	Token      string       `json:"token"`
	User       *models.User `json:"user"`
	IsDriver   bool         `json:"isDriver"`
	IsHydrated bool         `json:"-"`
}

// Gate owns the authenticated session. Nothing that needs the token may run
// before Hydrate returned; Watch lets dependents react to token changes.
type Gate struct {
	store  Store
	logger *slog.Logger
	now    func() time.Time

	mu      sync.RWMutex
	s       Snapshot
	changed chan struct{}
	version uint64

	saveMu sync.Mutex
	saved  uint64
}

func NewGate(store Store, logger *slog.Logger) *Gate {
	if logger == nil {
		logger = slog.Default()
	}
	return &Gate{
		store:   store,
		logger:  logger.With("component", "session"),
		now:     time.Now,
		changed: make(chan struct{}),
	}
}

// Hydrate loads the persisted session. The gate is marked hydrated even when
// the load fails; it then starts logged out and the error is returned.
func (g *Gate) Hydrate(ctx context.Context) error {
	var loaded Snapshot
	var loadErr error

	b, err := g.store.Load(ctx, AuthKey)
	switch {
	case errors.Is(err, ErrNotFound):
	case err != nil:
		loadErr = fmt.Errorf("loading session: %w", err)
	default:
		if err := json.Unmarshal(b, &loaded); err != nil {
			loadErr = fmt.Errorf("decoding session: %w", err)
			loaded = Snapshot{}
		}
	}

	g.mu.Lock()
	g.s = loaded
	g.s.IsHydrated = true
	g.notifyLocked()
	g.mu.Unlock()

	if loadErr != nil {
		g.logger.Warn("session hydration failed, starting logged out", "error", loadErr)
	}
	return loadErr
}

func (g *Gate) Snapshot() Snapshot {
	g.mu.RLock()
	defer g.mu.RUnlock()
	out := g.s
	if g.s.User != nil {
		u := *g.s.User
		out.User = &u
	}
	return out
}

func (g *Gate) Token() string {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.s.Token
}

func (g *Gate) Hydrated() bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.s.IsHydrated
}

// Ready reports whether the session is hydrated and holds a token that is
// not known to be expired.
func (g *Gate) Ready() bool {
	g.mu.RLock()
	hydrated, token := g.s.IsHydrated, g.s.Token
	g.mu.RUnlock()
	return hydrated && token != "" && !g.expired(token)
}

// DriverID returns the driver id learned from go-online, or "".
func (g *Gate) DriverID() string {
	g.mu.RLock()
	defer g.mu.RUnlock()
	if g.s.User == nil {
		return ""
	}
	return g.s.User.DriverID
}

// Watch returns a channel that is closed on the next session change.
func (g *Gate) Watch() <-chan struct{} {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.changed
}

func (g *Gate) SetToken(ctx context.Context, token string) {
	g.update(ctx, func(s *Snapshot) bool {
		if s.Token == token {
			return false
		}
		s.Token = token
		return true
	})
}

func (g *Gate) SetUser(ctx context.Context, user *models.User) {
	g.update(ctx, func(s *Snapshot) bool {
		if user == nil {
			s.User = nil
			return true
		}
		u := *user
		s.User = &u
		return true
	})
}

func (g *Gate) SetIsDriver(ctx context.Context, isDriver bool) {
	g.update(ctx, func(s *Snapshot) bool {
		if s.IsDriver == isDriver {
			return false
		}
		s.IsDriver = isDriver
		return true
	})
}

// SetDriverID records the driver id on the session user. It is a no-op
// without a user or when the id is empty or unchanged.
func (g *Gate) SetDriverID(ctx context.Context, driverID string) bool {
	return g.update(ctx, func(s *Snapshot) bool {
		if s.User == nil || driverID == "" || s.User.DriverID == driverID {
			return false
		}
		u := *s.User
		u.DriverID = driverID
		s.User = &u
		return true
	})
}

// Logout clears token, user and role. The stored session is deleted, which
// hydrates the same as a cleared one.
func (g *Gate) Logout(ctx context.Context) {
	g.update(ctx, func(s *Snapshot) bool {
		s.Token = ""
		s.User = nil
		s.IsDriver = false
		return true
	})
}

func (g *Gate) update(ctx context.Context, fn func(*Snapshot) bool) bool {
	g.mu.Lock()
	if !fn(&g.s) {
		g.mu.Unlock()
		return false
	}
	g.version++
	version := g.version
	var (
		b   []byte
		err error
	)
	if g.s.Token != "" || g.s.User != nil || g.s.IsDriver {
		b, err = json.Marshal(g.s)
	}
	g.notifyLocked()
	g.mu.Unlock()

	if err == nil {
		err = g.persist(ctx, version, b)
	}
	if err != nil {
		g.logger.Error("persisting session failed", "error", err)
	}
	return true
}

// persist writes b, or deletes the key when b is nil. Saves are serialized
// and one older than the last written version is skipped.
func (g *Gate) persist(ctx context.Context, version uint64, b []byte) error {
	g.saveMu.Lock()
	defer g.saveMu.Unlock()
	if version <= g.saved {
		return nil
	}
	g.saved = version
	if b == nil {
		return g.store.Delete(ctx, AuthKey)
	}
	return g.store.Save(ctx, AuthKey, b)
}

func (g *Gate) notifyLocked() {
	close(g.changed)
	g.changed = make(chan struct{})
}

// expired inspects the exp claim without verifying the signature; the
// backend remains the authority. Opaque tokens are never considered expired.
func (g *Gate) expired(token string) bool {
	claims := jwt.MapClaims{}
	if _, _, err := new(jwt.Parser).ParseUnverified(token, claims); err != nil {
		return false
	}
	return !claims.VerifyExpiresAt(g.now().Unix(), false)
}
