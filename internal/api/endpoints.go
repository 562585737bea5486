package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"

	"github.com/example/ride-sync/internal/models"
)

// Page selects one page of a paginated listing; it travels as the
// X-Requested-Page and X-Requested-Limit headers.
type Page struct {
	Page  int
	Limit int
}

func (p Page) headers() map[string]string {
	return map[string]string{
		"X-Requested-Page":  strconv.Itoa(p.Page),
		"X-Requested-Limit": strconv.Itoa(p.Limit),
	}
}

type OnlineResult struct {
	DriverID  string `json:"driver_id"`
	Status    string `json:"status,omitempty"`
	SessionID string `json:"session_id,omitempty"`
}

func (c *Client) GoOnline(ctx context.Context, loc models.Location) (OnlineResult, error) {
	var out OnlineResult
	body := struct {
		Lat float64 `json:"lat"`
		Lon float64 `json:"lon"`
	}{loc.Lat, loc.Lon}
	if err := c.do(ctx, http.MethodPost, "/drivers/online", body, nil, &out); err != nil {
		return OnlineResult{}, err
	}
	return out, nil
}

func (c *Client) GoOffline(ctx context.Context) error {
	return c.do(ctx, http.MethodPost, "/drivers/offline", nil, nil, nil)
}

func (c *Client) AcceptRide(ctx context.Context, rideID string) (models.Ride, error) {
	return c.rideCommand(ctx, rideID, "accept")
}

func (c *Client) RejectRide(ctx context.Context, rideID string) error {
	return c.do(ctx, http.MethodPost, ridePath(rideID, "reject"), nil, nil, nil)
}

func (c *Client) StartRide(ctx context.Context, rideID string) (models.Ride, error) {
	return c.rideCommand(ctx, rideID, "start")
}

func (c *Client) CompleteRide(ctx context.Context, rideID string) (models.Ride, error) {
	return c.rideCommand(ctx, rideID, "complete")
}

func (c *Client) rideCommand(ctx context.Context, rideID, action string) (models.Ride, error) {
	var out models.Ride
	if err := c.do(ctx, http.MethodPost, ridePath(rideID, action), nil, nil, &out); err != nil {
		return models.Ride{}, err
	}
	return out, nil
}

func (c *Client) RequestRide(ctx context.Context, req models.RideRequest) (models.Ride, error) {
	var out struct {
		Ride *models.Ride `json:"ride"`
	}
	if err := c.do(ctx, http.MethodPost, "/rides/request", req, nil, &out); err != nil {
		return models.Ride{}, err
	}
	if out.Ride == nil {
		return models.Ride{}, ErrEmptyResponse
	}
	return *out.Ride, nil
}

func (c *Client) ListRides(ctx context.Context, limit, offset int) ([]models.Ride, error) {
	var out struct {
		Rides []models.Ride `json:"rides"`
	}
	q := url.Values{}
	q.Set("limit", strconv.Itoa(limit))
	q.Set("offset", strconv.Itoa(offset))
	if err := c.do(ctx, http.MethodGet, "/rides?"+q.Encode(), nil, nil, &out); err != nil {
		return nil, err
	}
	return out.Rides, nil
}

func (c *Client) RideEvents(ctx context.Context, rideID string, p Page) ([]models.PersistedEvent, error) {
	return c.events(ctx, fmt.Sprintf("/events/rides/%s/events", url.PathEscape(rideID)), p)
}

func (c *Client) DriverEvents(ctx context.Context, driverID string, p Page) ([]models.PersistedEvent, error) {
	return c.events(ctx, fmt.Sprintf("/events/drivers/%s/events", url.PathEscape(driverID)), p)
}

func (c *Client) events(ctx context.Context, path string, p Page) ([]models.PersistedEvent, error) {
	var out []models.PersistedEvent
	err := c.do(ctx, http.MethodGet, path, nil, p.headers(), &out)
	if errors.Is(err, ErrEmptyResponse) {
		return []models.PersistedEvent{}, nil
	}
	if err != nil {
		return nil, err
	}
	return out, nil
}

func ridePath(rideID, action string) string {
	return fmt.Sprintf("/rides/%s/%s", url.PathEscape(rideID), action)
}
