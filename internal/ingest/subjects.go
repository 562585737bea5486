package ingest

import (
	"encoding/json"

	"github.com/example/ride-sync/internal/models"
	"github.com/example/ride-sync/internal/storage"
)

// Subjects lists the event logs a record belongs to: the ride named in its
// payload and, for records tapped on a driver panel, that driver.
func (r Record) Subjects() []storage.Subject {
	var out []storage.Subject
	if id := rideID(r.Notification.Payload); id != "" {
		out = append(out, storage.Subject{Type: storage.SubjectRide, ID: id})
	}
	if r.DriverID != "" {
		out = append(out, storage.Subject{Type: storage.SubjectDriver, ID: r.DriverID})
	}
	return out
}

// rideID reads payload.ride_id, or payload.ride.id for assignment events.
func rideID(payload json.RawMessage) string {
	var p struct {
		RideID string `json:"ride_id"`
		Ride   *struct {
			ID string `json:"id"`
		} `json:"ride"`
	}
	if len(payload) == 0 || json.Unmarshal(payload, &p) != nil {
		return ""
	}
	if p.RideID != "" {
		return p.RideID
	}
	if p.Ride != nil {
		return p.Ride.ID
	}
	return ""
}

// Event converts the record into the persisted-event shape served by history.
func (r Record) Event() models.PersistedEvent {
	at := r.ReceivedAt
	return models.PersistedEvent{ID: r.ID, Kind: r.Notification.Kind, Payload: r.Notification.Payload, CreatedAt: &at}
}
