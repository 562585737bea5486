package views

import (
	"context"
	"log/slog"
	"sync"

	"github.com/example/ride-sync/internal/history"
	"github.com/example/ride-sync/internal/lifecycle"
	"github.com/example/ride-sync/internal/models"
	"github.com/example/ride-sync/internal/observability"
)

// RiderCommands is the command surface the rider view issues.
type RiderCommands interface {
	RequestRide(ctx context.Context, req models.RideRequest) (models.Ride, error)
	ListRides(ctx context.Context, limit, offset int) ([]models.Ride, error)
}

type RiderDeps struct {
	Commands   RiderCommands
	Session    Session
	History    *history.Loader
	RidesLimit int
	// RefreshOnEvent re-reads the ride list after every rider lifecycle
	// notification.
	RefreshOnEvent bool
	Connected      func() bool
	Logger         *slog.Logger
}

type RiderSnapshot struct {
	lifecycle.RiderState
	Busy      bool `json:"busy"`
	Connected bool `json:"connected"`
}

type RiderView struct {
	deps   RiderDeps
	logger *slog.Logger
	core   core[lifecycle.RiderState]

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	// refreshing collapses notification bursts into one pending refresh.
	refreshMu  sync.Mutex
	refreshing bool
	again      bool
}

func NewRiderView(deps RiderDeps) *RiderView {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if deps.RidesLimit <= 0 {
		deps.RidesLimit = 10
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &RiderView{deps: deps, logger: logger.With("component", "rider_view"), ctx: ctx, cancel: cancel}
}

// Start loads the rider's rides. A failed load is logged and leaves the
// list empty.
func (v *RiderView) Start(ctx context.Context) error {
	if !v.deps.Session.Ready() {
		return ErrUnauthenticated
	}
	if v.core.isClosed() {
		return ErrClosed
	}
	if err := v.LoadRides(ctx); err != nil {
		v.logger.Warn("initial ride load failed", "error", err)
	}
	return nil
}

// LoadRides replaces the ride list and selects its first ride.
func (v *RiderView) LoadRides(ctx context.Context) error {
	rides, err := v.deps.Commands.ListRides(ctx, v.deps.RidesLimit, 0)
	if err != nil {
		return err
	}
	if _, ok := v.core.apply(func(s lifecycle.RiderState) lifecycle.RiderState {
		return lifecycle.ApplyRidesLoaded(s, rides)
	}); !ok {
		return ErrClosed
	}
	v.syncHistory(ctx, false)
	return nil
}

// SelectRide makes a listed ride current.
func (v *RiderView) SelectRide(ctx context.Context, rideID string) error {
	var found bool
	if _, ok := v.core.apply(func(s lifecycle.RiderState) lifecycle.RiderState {
		next, ok := lifecycle.ApplySelect(s, rideID)
		found = ok
		return next
	}); !ok {
		return ErrClosed
	}
	if !found {
		return ErrUnknownRide
	}
	v.syncHistory(ctx, false)
	return nil
}

func (v *RiderView) RequestRide(ctx context.Context, req models.RideRequest) (models.Ride, error) {
	if _, err := v.core.begin(); err != nil {
		return models.Ride{}, err
	}
	defer v.core.end()

	ride, err := v.deps.Commands.RequestRide(ctx, req)
	if err != nil {
		return models.Ride{}, err
	}
	if _, ok := v.core.apply(func(s lifecycle.RiderState) lifecycle.RiderState {
		return lifecycle.ApplyRideRequested(s, ride)
	}); !ok {
		return ride, nil
	}
	v.syncHistory(ctx, false)
	return ride, nil
}

// HandleNotification folds one rider notification into the log and, when
// enabled, schedules a re-read of the ride list. It is the realtime sink.
func (v *RiderView) HandleNotification(n models.Notification) {
	var line string
	if _, ok := v.core.apply(func(s lifecycle.RiderState) lifecycle.RiderState {
		next, l := lifecycle.ReduceRider(s, n)
		line = l
		return next
	}); !ok {
		return
	}
	observability.NotificationsApplied.WithLabelValues("rider", n.Kind).Inc()
	v.logger.Debug("notification applied", "kind", n.Kind, "line", line)

	if v.deps.RefreshOnEvent && lifecycle.IsRiderLifecycleKind(n.Kind) {
		v.scheduleRefresh()
	}
}

// RefreshHistory refetches the event page of the current ride.
func (v *RiderView) RefreshHistory(ctx context.Context) {
	v.syncHistory(ctx, true)
}

func (v *RiderView) Snapshot() RiderSnapshot {
	s, busy := v.core.read()
	snap := RiderSnapshot{RiderState: s, Busy: busy}
	if v.deps.Connected != nil {
		snap.Connected = v.deps.Connected()
	}
	return snap
}

// Close stops the view from applying anything further and waits for a
// pending refresh to give up.
func (v *RiderView) Close() {
	if v.core.close() {
		v.refreshMu.Lock()
		v.cancel()
		v.refreshMu.Unlock()
		v.wg.Wait()
		v.logger.Info("rider view closed")
	}
}

func (v *RiderView) scheduleRefresh() {
	v.refreshMu.Lock()
	defer v.refreshMu.Unlock()
	if v.ctx.Err() != nil {
		return
	}
	if v.refreshing {
		v.again = true
		return
	}
	v.refreshing = true
	v.wg.Add(1)
	go v.refreshLoop()
}

func (v *RiderView) refreshLoop() {
	defer v.wg.Done()
	for {
		v.refresh(v.ctx)

		v.refreshMu.Lock()
		if !v.again || v.ctx.Err() != nil {
			v.refreshing = false
			v.refreshMu.Unlock()
			return
		}
		v.again = false
		v.refreshMu.Unlock()
	}
}

// refresh re-reads the ride list keeping the selection, then refreshes the
// selected ride's history. Failures keep the current state.
func (v *RiderView) refresh(ctx context.Context) {
	rides, err := v.deps.Commands.ListRides(ctx, v.deps.RidesLimit, 0)
	if err != nil {
		v.logger.Warn("ride refresh failed", "error", err)
		return
	}
	if _, ok := v.core.apply(func(s lifecycle.RiderState) lifecycle.RiderState {
		return lifecycle.ApplyRidesRefreshed(s, rides)
	}); !ok {
		return
	}
	v.syncHistory(ctx, true)
}

func (v *RiderView) syncHistory(ctx context.Context, force bool) {
	if v.deps.History == nil {
		return
	}
	s, _ := v.core.read()
	id := s.CurrentRideID()

	var (
		events []models.PersistedEvent
		ok     bool
	)
	if force && id != "" && id == v.deps.History.Current() {
		events, ok = v.deps.History.Refresh(ctx)
	} else {
		events, ok = v.deps.History.Load(ctx, id)
	}
	if !ok {
		return
	}
	v.core.apply(func(s lifecycle.RiderState) lifecycle.RiderState {
		return lifecycle.ApplyRideHistory(s, id, events)
	})
}
