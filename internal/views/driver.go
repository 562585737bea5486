package views

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync"

	"github.com/example/ride-sync/internal/api"
	"github.com/example/ride-sync/internal/history"
	"github.com/example/ride-sync/internal/lifecycle"
	"github.com/example/ride-sync/internal/models"
	"github.com/example/ride-sync/internal/observability"
	"github.com/example/ride-sync/internal/session"
)

// DriverStoreKey is the store key the driver's online flag and assignment
// set are persisted under.
const DriverStoreKey = "driver-store"

// DriverCommands is the command surface the driver view issues.
type DriverCommands interface {
	GoOnline(ctx context.Context, loc models.Location) (api.OnlineResult, error)
	GoOffline(ctx context.Context) error
	Accept(ctx context.Context, rideID string) (models.Ride, error)
	Reject(ctx context.Context, rideID string) error
	Start(ctx context.Context, rideID string) (models.Ride, error)
	Complete(ctx context.Context, rideID string) (models.Ride, error)
}

type DriverDeps struct {
	Commands DriverCommands
	Session  Session
	Store    session.Store
	History  *history.Loader
	// Connected reports the realtime channel state; optional.
	Connected func() bool
	Logger    *slog.Logger
}

// DriverSnapshot is the driver state plus view flags.
type DriverSnapshot struct {
	lifecycle.DriverState
	Busy      bool `json:"busy"`
	Connected bool `json:"connected"`
}

type persistedDriver struct {
	Online      bool                `json:"online"`
	Assignments []models.Assignment `json:"assignments"`
}

type DriverView struct {
	deps   DriverDeps
	logger *slog.Logger
	core   core[lifecycle.DriverState]

	// Guarded by core.mu: whether a command already decided Online, and the
	// sequence number of the latest persisted document.
	onlineSet  bool
	persistSeq uint64

	saveMu   sync.Mutex
	savedSeq uint64
}

func NewDriverView(deps DriverDeps) *DriverView {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &DriverView{deps: deps, logger: logger.With("component", "driver_view")}
}

// Start restores the persisted driver store and loads the driver's history
// when a driver id is known. It refuses an unauthenticated session.
func (v *DriverView) Start(ctx context.Context) error {
	if !v.deps.Session.Ready() {
		return ErrUnauthenticated
	}
	if v.core.isClosed() {
		return ErrClosed
	}
	if v.deps.Store != nil {
		b, err := v.deps.Store.Load(ctx, DriverStoreKey)
		switch {
		case errors.Is(err, session.ErrNotFound):
		case err != nil:
			v.logger.Warn("driver store load failed", "error", err)
		default:
			var p persistedDriver
			if err := json.Unmarshal(b, &p); err != nil {
				v.logger.Warn("driver store decode failed", "error", err)
				break
			}
			v.applyPersist(ctx, func(s lifecycle.DriverState) lifecycle.DriverState {
				online := p.Online
				if v.onlineSet {
					online = s.Online
				}
				return lifecycle.RestoreDriver(s, online, p.Assignments)
			})
		}
	}
	v.SyncHistory(ctx)
	return nil
}

// HandleNotification folds one driver notification. It is the realtime sink.
func (v *DriverView) HandleNotification(n models.Notification) {
	var line string
	_, ok := v.applyPersist(context.Background(), func(s lifecycle.DriverState) lifecycle.DriverState {
		next, l := lifecycle.ReduceDriver(s, n)
		line = l
		return next
	})
	if !ok {
		return
	}
	observability.NotificationsApplied.WithLabelValues("driver", n.Kind).Inc()
	v.logger.Debug("notification applied", "kind", n.Kind, "line", line)
}

func (v *DriverView) GoOnline(ctx context.Context, loc models.Location) error {
	if _, err := v.core.begin(); err != nil {
		return err
	}
	defer v.core.end()

	res, err := v.deps.Commands.GoOnline(ctx, loc)
	if err != nil {
		return err
	}
	if _, ok := v.applyPersist(ctx, func(s lifecycle.DriverState) lifecycle.DriverState {
		v.onlineSet = true
		return lifecycle.ApplyOnline(s)
	}); !ok {
		return nil
	}
	if res.DriverID != "" && v.deps.Session.SetDriverID(ctx, res.DriverID) {
		v.logger.Info("driver id recorded on session", "driver_id", res.DriverID)
	}
	v.SyncHistory(ctx)
	return nil
}

func (v *DriverView) GoOffline(ctx context.Context) error {
	if _, err := v.core.begin(); err != nil {
		return err
	}
	defer v.core.end()

	if err := v.deps.Commands.GoOffline(ctx); err != nil {
		return err
	}
	v.applyPersist(ctx, func(s lifecycle.DriverState) lifecycle.DriverState {
		v.onlineSet = true
		return lifecycle.ApplyOffline(s)
	})
	return nil
}

func (v *DriverView) AcceptRide(ctx context.Context) error {
	s, err := v.core.begin()
	if err != nil {
		return err
	}
	defer v.core.end()
	if s.IncomingRide == nil {
		return ErrNoIncomingRide
	}

	ride, err := v.deps.Commands.Accept(ctx, s.IncomingRide.ID)
	if err != nil {
		return err
	}
	v.applyPersist(ctx, func(s lifecycle.DriverState) lifecycle.DriverState {
		return lifecycle.ApplyAccepted(s, ride)
	})
	return nil
}

func (v *DriverView) RejectRide(ctx context.Context) error {
	s, err := v.core.begin()
	if err != nil {
		return err
	}
	defer v.core.end()
	if s.IncomingRide == nil {
		return ErrNoIncomingRide
	}

	rideID := s.IncomingRide.ID
	if err := v.deps.Commands.Reject(ctx, rideID); err != nil {
		return err
	}
	v.applyPersist(ctx, func(s lifecycle.DriverState) lifecycle.DriverState {
		return lifecycle.ApplyRejected(s, rideID)
	})
	return nil
}

func (v *DriverView) StartRide(ctx context.Context) error {
	return v.advance(ctx, v.deps.Commands.Start)
}

func (v *DriverView) CompleteRide(ctx context.Context) error {
	return v.advance(ctx, v.deps.Commands.Complete)
}

func (v *DriverView) advance(ctx context.Context, cmd func(context.Context, string) (models.Ride, error)) error {
	s, err := v.core.begin()
	if err != nil {
		return err
	}
	defer v.core.end()
	if s.CurrentRide == nil {
		return ErrNoCurrentRide
	}

	ride, err := cmd(ctx, s.CurrentRide.ID)
	if err != nil {
		return err
	}
	v.applyPersist(ctx, func(s lifecycle.DriverState) lifecycle.DriverState {
		return lifecycle.ApplyStatus(s, ride.Status)
	})
	return nil
}

// SyncHistory loads the driver's event page if the session's driver id is
// new to the loader. Without a driver id nothing is requested.
func (v *DriverView) SyncHistory(ctx context.Context) {
	v.loadHistory(ctx, false)
}

// RefreshHistory refetches the driver's event page.
func (v *DriverView) RefreshHistory(ctx context.Context) {
	v.loadHistory(ctx, true)
}

func (v *DriverView) loadHistory(ctx context.Context, force bool) {
	if v.deps.History == nil {
		return
	}
	var (
		events []models.PersistedEvent
		ok     bool
	)
	id := v.deps.Session.DriverID()
	if force && id != "" && id == v.deps.History.Current() {
		events, ok = v.deps.History.Refresh(ctx)
	} else {
		events, ok = v.deps.History.Load(ctx, id)
	}
	if !ok {
		return
	}
	v.core.apply(func(s lifecycle.DriverState) lifecycle.DriverState {
		return lifecycle.ApplyDriverHistory(s, events)
	})
}

func (v *DriverView) Snapshot() DriverSnapshot {
	s, busy := v.core.read()
	snap := DriverSnapshot{DriverState: s, Busy: busy}
	if v.deps.Connected != nil {
		snap.Connected = v.deps.Connected()
	}
	return snap
}

// Close stops the view from applying anything further, including results of
// commands still in flight.
func (v *DriverView) Close() {
	if v.core.close() {
		v.logger.Info("driver view closed")
	}
}

// applyPersist applies fn and saves the persisted fields when they changed.
// The document is captured under the state lock and written after it is
// released; a save never overwrites a newer one.
func (v *DriverView) applyPersist(ctx context.Context, fn func(lifecycle.DriverState) lifecycle.DriverState) (lifecycle.DriverState, bool) {
	var (
		doc persistedDriver
		seq uint64
	)
	next, ok := v.core.apply(func(s lifecycle.DriverState) lifecycle.DriverState {
		next := fn(s)
		if v.deps.Store != nil && persistedChanged(s, next) {
			v.persistSeq++
			seq = v.persistSeq
			doc = persistedDriver{Online: next.Online, Assignments: append([]models.Assignment{}, next.Assignments...)}
		}
		return next
	})
	if seq != 0 {
		v.persist(ctx, seq, doc)
	}
	return next, ok
}

func (v *DriverView) persist(ctx context.Context, seq uint64, doc persistedDriver) {
	v.saveMu.Lock()
	defer v.saveMu.Unlock()
	if seq <= v.savedSeq {
		return
	}
	v.savedSeq = seq
	b, err := json.Marshal(doc)
	if err == nil {
		err = v.deps.Store.Save(ctx, DriverStoreKey, b)
	}
	if err != nil {
		v.logger.Warn("driver store save failed", "error", err)
	}
}

func persistedChanged(a, b lifecycle.DriverState) bool {
	if a.Online != b.Online || len(a.Assignments) != len(b.Assignments) {
		return true
	}
	for i := range a.Assignments {
		if a.Assignments[i] != b.Assignments[i] {
			return true
		}
	}
	return false
}
