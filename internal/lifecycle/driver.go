package lifecycle

import (
	"fmt"

	"github.com/example/ride-sync/internal/models"
)

type DriverState struct {
	Online       bool                    `json:"online"`
	IncomingRide *models.Ride            `json:"incoming_ride"`
	CurrentRide  *models.Ride            `json:"current_ride"`
	Assignments  []models.Assignment     `json:"assignments"`
	History      []models.PersistedEvent `json:"history"`
	Log          []string                `json:"log"`
}

// Clone returns a deep copy so callers can hand the state out without
// sharing slices or ride pointers.
func (s DriverState) Clone() DriverState {
	out := s
	out.IncomingRide = cloneRide(s.IncomingRide)
	out.CurrentRide = cloneRide(s.CurrentRide)
	out.Assignments = append([]models.Assignment(nil), s.Assignments...)
	out.History = append([]models.PersistedEvent(nil), s.History...)
	out.Log = append([]string(nil), s.Log...)
	return out
}

// HasAssignment reports whether the assignment set holds rideID.
func (s DriverState) HasAssignment(rideID string) bool {
	for _, a := range s.Assignments {
		if a.RideID == rideID {
			return true
		}
	}
	return false
}

// ReduceDriver folds one driver notification into s and returns the new
// state together with the log line it recorded.
func ReduceDriver(s DriverState, n models.Notification) (DriverState, string) {
	out := s.Clone()
	var line string

	switch n.Kind {
	case models.KindRideAssignedToDriver:
		var p assignedPayload
		if !decode(n.Payload, &p) || p.Ride == nil || p.Ride.ID == "" {
			line = unknownLine(n.Kind)
			break
		}
		incoming := p.Ride.Flatten()
		out.IncomingRide = &incoming
		out.Assignments = upsertAssignment(out.Assignments, models.Assignment{
			RideID:      p.Ride.ID,
			Status:      p.Ride.Status,
			Pickup:      p.Ride.Pickup,
			Destination: p.Ride.Destination,
		})
		line = fmt.Sprintf("Incoming ride %s", p.Ride.ID)

	case models.KindRideAcceptedForDriver:
		var p ridePayload
		if !decode(n.Payload, &p) || p.RideID == "" {
			line = unknownLine(n.Kind)
			break
		}
		line = fmt.Sprintf("Ride accepted: %s", p.RideID)

	case models.KindRideStartedForDriver:
		var p ridePayload
		if !decode(n.Payload, &p) || p.RideID == "" {
			line = unknownLine(n.Kind)
			break
		}
		line = fmt.Sprintf("Ride started: %s", p.RideID)

	case models.KindRideCompletedDriver:
		var p ridePayload
		if !decode(n.Payload, &p) || p.RideID == "" {
			line = unknownLine(n.Kind)
			break
		}
		out.CurrentRide = nil
		out.Assignments = removeAssignment(out.Assignments, p.RideID)
		line = fmt.Sprintf("Ride completed: %s (Dist=%skm Fare=%s)", p.RideID, formatDistance(p.DistanceKm), formatFare(p.FareAmount))

	default:
		line = unknownLine(n.Kind)
	}

	out.Log = PushLog(out.Log, line)
	return out, line
}

// ApplyOnline folds a successful go-online result.
func ApplyOnline(s DriverState) DriverState {
	out := s.Clone()
	out.Online = true
	out.Log = PushLog(out.Log, "You are online")
	return out
}

// ApplyOffline folds a successful go-offline result.
func ApplyOffline(s DriverState) DriverState {
	out := s.Clone()
	out.Online = false
	out.Log = PushLog(out.Log, "You are offline")
	return out
}

// ApplyAccepted replaces the incoming ride with the server-confirmed ride.
func ApplyAccepted(s DriverState, ride models.Ride) DriverState {
	out := s.Clone()
	current := ride.Flatten()
	out.CurrentRide = &current
	out.IncomingRide = nil
	return out
}

// ApplyRejected clears the incoming ride and drops its assignment without
// waiting for a notification.
func ApplyRejected(s DriverState, rideID string) DriverState {
	out := s.Clone()
	out.IncomingRide = nil
	out.Assignments = removeAssignment(out.Assignments, rideID)
	return out
}

// ApplyStatus merges the status returned by start or complete into the
// current ride; every other field keeps its local value. A result that
// would move the ride backwards is not folded.
func ApplyStatus(s DriverState, status models.Status) DriverState {
	if s.CurrentRide == nil {
		return s.Clone()
	}
	out := s.Clone()
	prev := out.CurrentRide.Status
	if !models.CanAdvance(prev, status) {
		out.Log = PushLog(out.Log, fmt.Sprintf("Ride %s: ignored status %s after %s", out.CurrentRide.ID, status, prev))
		return out
	}
	out.CurrentRide.Status = status
	return out
}

// ApplyDriverHistory replaces the displayed driver event page.
func ApplyDriverHistory(s DriverState, events []models.PersistedEvent) DriverState {
	out := s.Clone()
	out.History = append([]models.PersistedEvent(nil), events...)
	return out
}

// RestoreDriver merges the persisted part of a previous session into s.
// Assignments already in s win over persisted ones with the same ride id, so
// anything folded before the restore survives it.
func RestoreDriver(s DriverState, online bool, assignments []models.Assignment) DriverState {
	out := s.Clone()
	out.Online = online
	for _, a := range assignments {
		if a.RideID == "" || out.HasAssignment(a.RideID) {
			continue
		}
		out.Assignments = append(out.Assignments, a)
	}
	return out
}

func upsertAssignment(list []models.Assignment, a models.Assignment) []models.Assignment {
	for _, x := range list {
		if x.RideID == a.RideID {
			return list
		}
	}
	out := make([]models.Assignment, 0, len(list)+1)
	out = append(out, a)
	return append(out, list...)
}

func removeAssignment(list []models.Assignment, rideID string) []models.Assignment {
	out := make([]models.Assignment, 0, len(list))
	for _, x := range list {
		if x.RideID != rideID {
			out = append(out, x)
		}
	}
	return out
}

func cloneRide(r *models.Ride) *models.Ride {
	if r == nil {
		return nil
	}
	c := *r
	return &c
}
