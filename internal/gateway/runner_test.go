package gateway

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/example/ride-sync/internal/api"
	"github.com/example/ride-sync/internal/logging"
	"github.com/example/ride-sync/internal/models"
)

// flakyDriverAPI fails the first failN calls of every method.
type flakyDriverAPI struct {
	failN int
	calls int
}

func (f *flakyDriverAPI) attempt() error {
	f.calls++
	if f.calls <= f.failN {
		return errors.New("backend unavailable")
	}
	return nil
}

func (f *flakyDriverAPI) GoOnline(context.Context, models.Location) (api.OnlineResult, error) {
	if err := f.attempt(); err != nil {
		return api.OnlineResult{}, err
	}
	return api.OnlineResult{DriverID: "d1"}, nil
}
func (f *flakyDriverAPI) GoOffline(context.Context) error { return f.attempt() }
func (f *flakyDriverAPI) AcceptRide(_ context.Context, id string) (models.Ride, error) {
	if err := f.attempt(); err != nil {
		return models.Ride{}, err
	}
	return models.Ride{ID: id, Status: models.StatusAccepted}, nil
}
func (f *flakyDriverAPI) RejectRide(context.Context, string) error { return f.attempt() }
func (f *flakyDriverAPI) StartRide(_ context.Context, id string) (models.Ride, error) {
	if err := f.attempt(); err != nil {
		return models.Ride{}, err
	}
	return models.Ride{ID: id, Status: models.StatusInProgress}, nil
}
func (f *flakyDriverAPI) CompleteRide(_ context.Context, id string) (models.Ride, error) {
	if err := f.attempt(); err != nil {
		return models.Ride{}, err
	}
	return models.Ride{ID: id, Status: models.StatusCompleted}, nil
}

func TestDefaultPolicyDoesNotRetry(t *testing.T) {
	f := &flakyDriverAPI{failN: 1}
	d := NewDriver(f, NewRunner(logging.Discard(), LogOnly))

	if _, err := d.Accept(context.Background(), "r1"); err == nil {
		t.Fatalf("expected failure")
	}
	if f.calls != 1 {
		t.Fatalf("expected a single attempt, got %d", f.calls)
	}
}

func TestPolicyOverrideRetries(t *testing.T) {
	f := &flakyDriverAPI{failN: 2}
	run := NewRunner(logging.Discard(), LogOnly).WithPolicy(CmdGoOnline, FailurePolicy{Retries: 3, Backoff: 5 * time.Millisecond})
	d := NewDriver(f, run)

	start := time.Now()
	res, err := d.GoOnline(context.Background(), models.Location{})
	if err != nil || res.DriverID != "d1" {
		t.Fatalf("expected success after retries, got %+v %v", res, err)
	}
	if f.calls != 3 {
		t.Fatalf("expected 3 attempts, got %d", f.calls)
	}
	if time.Since(start) < 10*time.Millisecond {
		t.Fatalf("expected backoff between attempts")
	}

	f.calls, f.failN = 0, 1
	if err := d.GoOffline(context.Background()); err == nil {
		t.Fatalf("override leaked to another command")
	}
}

func TestPolicyRetryableFilter(t *testing.T) {
	f := &flakyDriverAPI{failN: 5}
	run := NewRunner(logging.Discard(), FailurePolicy{Retries: 4, Retryable: func(error) bool { return false }})
	if _, err := NewDriver(f, run).Start(context.Background(), "r1"); err == nil {
		t.Fatalf("expected failure")
	}
	if f.calls != 1 {
		t.Fatalf("non-retryable error was retried %d times", f.calls-1)
	}
}

func TestRetryStopsOnCancel(t *testing.T) {
	f := &flakyDriverAPI{failN: 100}
	run := NewRunner(logging.Discard(), FailurePolicy{Retries: 50, Backoff: time.Hour})
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if _, err := NewDriver(f, run).Complete(ctx, "r1"); err == nil {
		t.Fatalf("expected failure")
	}
	if f.calls != 1 {
		t.Fatalf("expected cancellation to stop retries, got %d calls", f.calls)
	}
}

type fakeRiderAPI struct{ rides []models.Ride }

func (f *fakeRiderAPI) RequestRide(_ context.Context, req models.RideRequest) (models.Ride, error) {
	return models.Ride{ID: "new", Status: models.StatusRequested, PickupAddress: req.Pickup.Address}, nil
}
func (f *fakeRiderAPI) ListRides(context.Context, int, int) ([]models.Ride, error) {
	return f.rides, nil
}

func TestRiderCommands(t *testing.T) {
	r := NewRider(&fakeRiderAPI{rides: []models.Ride{{ID: "a"}}}, NewRunner(logging.Discard(), LogOnly))
	ride, err := r.RequestRide(context.Background(), models.RideRequest{Pickup: models.Location{Address: "P"}})
	if err != nil || ride.ID != "new" || ride.PickupAddress != "P" {
		t.Fatalf("unexpected %+v %v", ride, err)
	}
	rides, err := r.ListRides(context.Background(), 10, 0)
	if err != nil || len(rides) != 1 {
		t.Fatalf("unexpected %+v %v", rides, err)
	}
}
