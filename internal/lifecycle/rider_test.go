package lifecycle

import (
	"testing"

	"github.com/example/ride-sync/internal/models"
)

func TestReduceRiderLogLines(t *testing.T) {
	cases := []struct {
		n    models.Notification
		want string
	}{
		{models.Notification{Kind: models.KindRideAssigned}, "Driver assigned to your ride"},
		{models.Notification{Kind: models.KindRideAccepted}, "Driver accepted your ride"},
		{models.Notification{Kind: models.KindRideStarted}, "Ride started"},
		{note(models.KindRideCompleted, map[string]any{"ride_id": "r1", "distance_km": 4.2, "fare_amount": 120.5}), "Ride completed. Distance=4.20 km Fare=120.5"},
		{models.Notification{Kind: models.KindRideCompleted}, "Ride completed. Distance=? km Fare=?"},
		{models.Notification{Kind: models.KindRideRejectedByDriver}, "Driver rejected your ride"},
		{models.Notification{Kind: "promo"}, "WS: promo"},
	}
	current := &models.Ride{ID: "r1", Status: models.StatusAccepted}
	for _, c := range cases {
		s, line := ReduceRider(RiderState{CurrentRide: current}, c.n)
		if line != c.want || s.Log[0] != c.want {
			t.Fatalf("%s: got %q", c.n.Kind, line)
		}
		if s.CurrentRide.Status != models.StatusAccepted {
			t.Fatalf("%s: rider notification rewrote status", c.n.Kind)
		}
	}
}

func TestRiderAndDriverVocabulariesDoNotOverlap(t *testing.T) {
	_, line := ReduceRider(RiderState{}, assigned("r1"))
	if line != "WS: "+models.KindRideAssignedToDriver {
		t.Fatalf("rider interpreted a driver kind: %q", line)
	}
	s, line := ReduceDriver(DriverState{}, models.Notification{Kind: models.KindRideCompleted})
	if line != "WS: "+models.KindRideCompleted || len(s.Assignments) != 0 {
		t.Fatalf("driver interpreted a rider kind: %q", line)
	}
}

func TestApplyRideRequestedScenario(t *testing.T) {
	prev := RiderState{
		Rides:  []models.Ride{{ID: "old", Status: models.StatusCompleted}},
		Events: []models.PersistedEvent{{ID: "e1", Kind: "ride_requested"}},
	}
	ride := models.Ride{ID: "r2", Status: models.StatusRequested, PickupAddress: "Pickup", DestAddress: "Destination"}
	s := ApplyRideRequested(prev, ride)
	if s.CurrentRide == nil || *s.CurrentRide != ride {
		t.Fatalf("unexpected current ride: %+v", s.CurrentRide)
	}
	if len(s.Rides) != 2 || s.Rides[0].ID != "r2" || s.Rides[1].ID != "old" {
		t.Fatalf("expected ride prepended, got %+v", s.Rides)
	}
	if s.Events == nil || len(s.Events) != 0 {
		t.Fatalf("expected empty event list, got %+v", s.Events)
	}
	if len(prev.Rides) != 1 {
		t.Fatalf("input mutated")
	}
}

func TestApplyRidesLoadedSelectsFirst(t *testing.T) {
	s := ApplyRidesLoaded(RiderState{}, []models.Ride{{ID: "a"}, {ID: "b"}})
	if s.CurrentRideID() != "a" {
		t.Fatalf("expected a selected, got %q", s.CurrentRideID())
	}
	s = ApplyRidesLoaded(s, nil)
	if s.CurrentRide != nil || len(s.Events) != 0 {
		t.Fatalf("expected nothing selected, got %+v", s)
	}
}

func TestApplyRidesRefreshedKeepsSelection(t *testing.T) {
	s := RiderState{
		Rides:       []models.Ride{{ID: "a"}, {ID: "b", Status: models.StatusAssigned}},
		CurrentRide: &models.Ride{ID: "b", Status: models.StatusAssigned},
		Events:      []models.PersistedEvent{{ID: "e1"}},
	}
	s = ApplyRidesRefreshed(s, []models.Ride{{ID: "a"}, {ID: "b", Status: models.StatusInProgress}})
	if s.CurrentRideID() != "b" || s.CurrentRide.Status != models.StatusInProgress {
		t.Fatalf("unexpected current ride: %+v", s.CurrentRide)
	}
	if len(s.Events) != 1 {
		t.Fatalf("events for the same ride should stay, got %+v", s.Events)
	}

	s = ApplyRidesRefreshed(s, []models.Ride{{ID: "c"}})
	if s.CurrentRideID() != "c" || len(s.Events) != 0 {
		t.Fatalf("expected fallback to first ride, got %+v", s)
	}
}

func TestApplySelect(t *testing.T) {
	s := RiderState{Rides: []models.Ride{{ID: "a"}, {ID: "b"}}, CurrentRide: &models.Ride{ID: "a"}, Events: []models.PersistedEvent{{ID: "e"}}}
	if _, ok := ApplySelect(s, "zzz"); ok {
		t.Fatalf("unknown ride selected")
	}
	out, ok := ApplySelect(s, "b")
	if !ok || out.CurrentRideID() != "b" || len(out.Events) != 0 {
		t.Fatalf("unexpected select result: %+v", out)
	}
}

func TestApplyRideHistoryIgnoresStaleSubject(t *testing.T) {
	s := RiderState{CurrentRide: &models.Ride{ID: "b"}}
	s = ApplyRideHistory(s, "a", []models.PersistedEvent{{ID: "x"}})
	if len(s.Events) != 0 {
		t.Fatalf("stale history applied: %+v", s.Events)
	}
	s = ApplyRideHistory(s, "b", []models.PersistedEvent{{ID: "y"}})
	if len(s.Events) != 1 || s.Events[0].ID != "y" {
		t.Fatalf("history not applied: %+v", s.Events)
	}
}
