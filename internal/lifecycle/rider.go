package lifecycle

import (
	"fmt"

	"github.com/example/ride-sync/internal/models"
)

type RiderState struct {
	Rides       []models.Ride           `json:"rides"`
	CurrentRide *models.Ride            `json:"current_ride"`
	Events      []models.PersistedEvent `json:"ride_events"`
	Log         []string                `json:"log"`
}

func (s RiderState) Clone() RiderState {
	out := s
	out.Rides = append([]models.Ride(nil), s.Rides...)
	out.CurrentRide = cloneRide(s.CurrentRide)
	out.Events = append([]models.PersistedEvent(nil), s.Events...)
	out.Log = append([]string(nil), s.Log...)
	return out
}

// CurrentRideID returns the selected ride id or "".
func (s RiderState) CurrentRideID() string {
	if s.CurrentRide == nil {
		return ""
	}
	return s.CurrentRide.ID
}

// ReduceRider folds one rider notification. Rider notifications only
// produce log lines; the ride objects are refreshed over REST.
func ReduceRider(s RiderState, n models.Notification) (RiderState, string) {
	out := s.Clone()
	var line string

	switch n.Kind {
	case models.KindRideAssigned:
		line = "Driver assigned to your ride"
	case models.KindRideAccepted:
		line = "Driver accepted your ride"
	case models.KindRideStarted:
		line = "Ride started"
	case models.KindRideCompleted:
		var p ridePayload
		decode(n.Payload, &p)
		line = fmt.Sprintf("Ride completed. Distance=%s km Fare=%s", formatDistance(p.DistanceKm), formatFare(p.FareAmount))
	case models.KindRideRejectedByDriver:
		line = "Driver rejected your ride"
	default:
		line = unknownLine(n.Kind)
	}

	out.Log = PushLog(out.Log, line)
	return out, line
}

// IsRiderLifecycleKind reports whether kind is one of the rider ride
// lifecycle notifications.
func IsRiderLifecycleKind(kind string) bool {
	switch kind {
	case models.KindRideAssigned, models.KindRideAccepted, models.KindRideStarted,
		models.KindRideCompleted, models.KindRideRejectedByDriver:
		return true
	}
	return false
}

// ApplyRideRequested makes ride current, prepends it to the list and empties
// the event list until the history loader fetches it.
func ApplyRideRequested(s RiderState, ride models.Ride) RiderState {
	out := s.Clone()
	current := ride
	out.CurrentRide = &current
	out.Rides = append([]models.Ride{ride}, out.Rides...)
	out.Events = []models.PersistedEvent{}
	return out
}

// ApplyRidesLoaded replaces the list and selects its first ride.
func ApplyRidesLoaded(s RiderState, rides []models.Ride) RiderState {
	out := s.Clone()
	out.Rides = append([]models.Ride(nil), rides...)
	out.CurrentRide = nil
	if len(rides) > 0 {
		first := rides[0]
		out.CurrentRide = &first
	}
	if out.CurrentRideID() != s.CurrentRideID() {
		out.Events = []models.PersistedEvent{}
	}
	return out
}

// ApplyRidesRefreshed replaces the list but keeps the selected ride when it
// is still listed, taking the server's copy of it.
func ApplyRidesRefreshed(s RiderState, rides []models.Ride) RiderState {
	id := s.CurrentRideID()
	if id == "" {
		return ApplyRidesLoaded(s, rides)
	}
	for _, r := range rides {
		if r.ID == id {
			out := s.Clone()
			out.Rides = append([]models.Ride(nil), rides...)
			fresh := r
			out.CurrentRide = &fresh
			return out
		}
	}
	return ApplyRidesLoaded(s, rides)
}

// ApplySelect makes the listed ride with id current. It reports false and
// returns s unchanged when id is not listed.
func ApplySelect(s RiderState, id string) (RiderState, bool) {
	for _, r := range s.Rides {
		if r.ID == id {
			out := s.Clone()
			sel := r
			out.CurrentRide = &sel
			if id != s.CurrentRideID() {
				out.Events = []models.PersistedEvent{}
			}
			return out, true
		}
	}
	return s, false
}

// ApplyRideHistory replaces the ride event list, but only while rideID is
// still the selected ride.
func ApplyRideHistory(s RiderState, rideID string, events []models.PersistedEvent) RiderState {
	if s.CurrentRideID() != rideID {
		return s
	}
	out := s.Clone()
	out.Events = append([]models.PersistedEvent(nil), events...)
	return out
}
