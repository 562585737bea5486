package models

import (
	"encoding/json"
	"time"
)

type Location struct {
	Lat     float64 `json:"lat"`
	Lon     float64 `json:"lon"`
	Address string  `json:"address,omitempty"`
}

// Ride is the client's view of a ride. The backend returns either the nested
// pickup/destination descriptors or the flattened *_address fields depending on
// the endpoint, so both are accepted.
type Ride struct {
	ID            string    `json:"id"`
	Status        Status    `json:"status"`
	PickupAddress string    `json:"pickup_address,omitempty"`
	DestAddress   string    `json:"dest_address,omitempty"`
	Pickup        *Location `json:"pickup,omitempty"`
	Destination   *Location `json:"destination,omitempty"`
	DistanceKm    *float64  `json:"distance_km,omitempty"`
	FareAmount    *float64  `json:"fare_amount,omitempty"`
}

// Flatten returns the ride reduced to id, status and the two addresses.
func (r Ride) Flatten() Ride {
	out := Ride{ID: r.ID, Status: r.Status, PickupAddress: r.PickupAddress, DestAddress: r.DestAddress}
	if out.PickupAddress == "" && r.Pickup != nil {
		out.PickupAddress = r.Pickup.Address
	}
	if out.DestAddress == "" && r.Destination != nil {
		out.DestAddress = r.Destination.Address
	}
	return out
}

// Assignment is a driver-side projection of a ride, keyed by RideID.
type Assignment struct {
	RideID      string    `json:"ride_id"`
	Status      Status    `json:"status"`
	Pickup      *Location `json:"pickup,omitempty"`
	Destination *Location `json:"destination,omitempty"`
}

// Notification is one push envelope from the realtime channel.
type Notification struct {
	UserID  string          `json:"user_id"`
	Kind    string          `json:"kind"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// PersistedEvent is one entry of the server-side event log.
type PersistedEvent struct {
	ID        string          `json:"id"`
	Kind      string          `json:"kind"`
	Payload   json.RawMessage `json:"payload,omitempty"`
	CreatedAt *time.Time      `json:"created_at,omitempty"`
}

type User struct {
	ID          string `json:"id"`
	Email       string `json:"email,omitempty"`
	PhoneNumber string `json:"phone_number,omitempty"`
	TenantID    string `json:"tenant_id,omitempty"`
	DriverID    string `json:"driver_id,omitempty"`
	Deleted     bool   `json:"deleted,omitempty"`
	Locked      bool   `json:"locked,omitempty"`
}

type RideRequest struct {
	Pickup          Location `json:"pickup"`
	Destination     Location `json:"destination"`
	Tier            string   `json:"tier"`
	PaymentMethodID string   `json:"payment_method_id"`
}

// Notification kinds delivered to drivers.
const (
	KindRideAssignedToDriver  = "ride_assigned_to_driver"
	KindRideAcceptedForDriver = "ride_accepted_for_driver"
	KindRideStartedForDriver  = "ride_started_for_driver"
	KindRideCompletedDriver   = "ride_completed_for_driver"
)

// Notification kinds delivered to riders.
const (
	KindRideAssigned         = "ride_assigned"
	KindRideAccepted         = "ride_accepted"
	KindRideStarted          = "ride_started"
	KindRideCompleted        = "ride_completed"
	KindRideRejectedByDriver = "ride_rejected_by_driver"
)
