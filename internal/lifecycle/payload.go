package lifecycle

import (
	"encoding/json"
	"strconv"

	"github.com/example/ride-sync/internal/models"
)

type assignedPayload struct {
	Ride *models.Ride `json:"ride"`
}

type ridePayload struct {
	RideID     string   `json:"ride_id"`
	DistanceKm *float64 `json:"distance_km"`
	FareAmount *float64 `json:"fare_amount"`
}

func decode(raw json.RawMessage, v any) bool {
	if len(raw) == 0 {
		return false
	}
	return json.Unmarshal(raw, v) == nil
}

func unknownLine(kind string) string { return "WS: " + kind }

func formatDistance(d *float64) string {
	if d == nil {
		return "?"
	}
	return strconv.FormatFloat(*d, 'f', 2, 64)
}

func formatFare(f *float64) string {
	if f == nil {
		return "?"
	}
	return strconv.FormatFloat(*f, 'f', -1, 64)
}
