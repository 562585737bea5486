package gateway

import (
	"context"

	"github.com/example/ride-sync/internal/api"
	"github.com/example/ride-sync/internal/models"
)

// Command names used for policies, metrics and logs.
const (
	CmdGoOnline    = "go_online"
	CmdGoOffline   = "go_offline"
	CmdAccept      = "accept"
	CmdReject      = "reject"
	CmdStart       = "start"
	CmdComplete    = "complete"
	CmdRequestRide = "request_ride"
	CmdListRides   = "list_rides"
)

// DriverAPI is the backend surface behind driver commands.
type DriverAPI interface {
	GoOnline(ctx context.Context, loc models.Location) (api.OnlineResult, error)
	GoOffline(ctx context.Context) error
	AcceptRide(ctx context.Context, rideID string) (models.Ride, error)
	RejectRide(ctx context.Context, rideID string) error
	StartRide(ctx context.Context, rideID string) (models.Ride, error)
	CompleteRide(ctx context.Context, rideID string) (models.Ride, error)
}

// RiderAPI is the backend surface behind rider commands.
type RiderAPI interface {
	RequestRide(ctx context.Context, req models.RideRequest) (models.Ride, error)
	ListRides(ctx context.Context, limit, offset int) ([]models.Ride, error)
}

type Driver struct {
	api DriverAPI
	run *Runner
}

func NewDriver(a DriverAPI, run *Runner) *Driver {
	return &Driver{api: a, run: run}
}

func (d *Driver) GoOnline(ctx context.Context, loc models.Location) (api.OnlineResult, error) {
	return call(ctx, d.run, CmdGoOnline, func(ctx context.Context) (api.OnlineResult, error) {
		return d.api.GoOnline(ctx, loc)
	})
}

func (d *Driver) GoOffline(ctx context.Context) error {
	return d.run.Do(ctx, CmdGoOffline, d.api.GoOffline)
}

func (d *Driver) Accept(ctx context.Context, rideID string) (models.Ride, error) {
	return call(ctx, d.run, CmdAccept, func(ctx context.Context) (models.Ride, error) {
		return d.api.AcceptRide(ctx, rideID)
	})
}

func (d *Driver) Reject(ctx context.Context, rideID string) error {
	return d.run.Do(ctx, CmdReject, func(ctx context.Context) error {
		return d.api.RejectRide(ctx, rideID)
	})
}

func (d *Driver) Start(ctx context.Context, rideID string) (models.Ride, error) {
	return call(ctx, d.run, CmdStart, func(ctx context.Context) (models.Ride, error) {
		return d.api.StartRide(ctx, rideID)
	})
}

func (d *Driver) Complete(ctx context.Context, rideID string) (models.Ride, error) {
	return call(ctx, d.run, CmdComplete, func(ctx context.Context) (models.Ride, error) {
		return d.api.CompleteRide(ctx, rideID)
	})
}

type Rider struct {
	api RiderAPI
	run *Runner
}

func NewRider(a RiderAPI, run *Runner) *Rider {
	return &Rider{api: a, run: run}
}

func (r *Rider) RequestRide(ctx context.Context, req models.RideRequest) (models.Ride, error) {
	return call(ctx, r.run, CmdRequestRide, func(ctx context.Context) (models.Ride, error) {
		return r.api.RequestRide(ctx, req)
	})
}

func (r *Rider) ListRides(ctx context.Context, limit, offset int) ([]models.Ride, error) {
	return call(ctx, r.run, CmdListRides, func(ctx context.Context) ([]models.Ride, error) {
		return r.api.ListRides(ctx, limit, offset)
	})
}
