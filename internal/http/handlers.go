package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/example/ride-sync/internal/api"
	"github.com/example/ride-sync/internal/dispatch"
	"github.com/example/ride-sync/internal/models"
	"github.com/example/ride-sync/internal/session"
	"github.com/example/ride-sync/internal/views"
)

// Session is the session control surface exposed by the panel.
type Session interface {
	Snapshot() session.Snapshot
	SetToken(ctx context.Context, token string)
	SetUser(ctx context.Context, user *models.User)
	SetIsDriver(ctx context.Context, isDriver bool)
	Logout(ctx context.Context)
}

type DriverPanel interface {
	Snapshot() views.DriverSnapshot
	GoOnline(ctx context.Context, loc models.Location) error
	GoOffline(ctx context.Context) error
	AcceptRide(ctx context.Context) error
	RejectRide(ctx context.Context) error
	StartRide(ctx context.Context) error
	CompleteRide(ctx context.Context) error
	SyncHistory(ctx context.Context)
	RefreshHistory(ctx context.Context)
}

type RiderPanel interface {
	Snapshot() views.RiderSnapshot
	LoadRides(ctx context.Context) error
	SelectRide(ctx context.Context, rideID string) error
	RequestRide(ctx context.Context, req models.RideRequest) (models.Ride, error)
	RefreshHistory(ctx context.Context)
}

// Deps wires one panel. Exactly one of Driver and Rider is expected.
type Deps struct {
	Session Session
	Driver  DriverPanel
	Rider   RiderPanel
	// Ready reports whether the session is hydrated and the channel is up.
	Ready func() bool
	// Live, when set, serves applied notifications on /api/v1/live.
	Live *dispatch.Hub
	// Location is sent with go-online when the request carries none.
	Location models.Location
	Logger   *slog.Logger
}

type Server struct {
	deps   Deps
	logger *slog.Logger
	mux    *mux.Router
}

func NewServer(deps Deps) *Server {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{deps: deps, logger: logger.With("component", "http"), mux: mux.NewRouter()}
	s.registerMiddleware()
	s.routes()
	return s
}

func (s *Server) routes() {
	s.mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(200); w.Write([]byte("ok")) }).Methods("GET")
	s.mux.HandleFunc("/ready", s.handleReady).Methods("GET")
	s.mux.Handle("/metrics", promhttp.Handler())

	v1 := s.mux.PathPrefix("/api/v1").Subrouter()
	v1.HandleFunc("/state", s.handleState).Methods("GET")
	v1.HandleFunc("/session", s.handleSetSession).Methods("PUT")
	v1.HandleFunc("/session", s.handleLogout).Methods("DELETE")
	if s.deps.Live != nil {
		v1.HandleFunc("/live", s.handleLive).Methods("GET")
	}

	if s.deps.Driver != nil {
		d := v1.PathPrefix("/driver").Subrouter()
		d.HandleFunc("/online", s.handleGoOnline).Methods("POST")
		d.HandleFunc("/offline", s.driverCommand(s.deps.Driver.GoOffline)).Methods("POST")
		d.HandleFunc("/ride/accept", s.driverCommand(s.deps.Driver.AcceptRide)).Methods("POST")
		d.HandleFunc("/ride/reject", s.driverCommand(s.deps.Driver.RejectRide)).Methods("POST")
		d.HandleFunc("/ride/start", s.driverCommand(s.deps.Driver.StartRide)).Methods("POST")
		d.HandleFunc("/ride/complete", s.driverCommand(s.deps.Driver.CompleteRide)).Methods("POST")
		d.HandleFunc("/history/refresh", s.handleDriverHistory).Methods("POST")
	}
	if s.deps.Rider != nil {
		rd := v1.PathPrefix("/rider").Subrouter()
		rd.HandleFunc("/rides", s.handleRequestRide).Methods("POST")
		rd.HandleFunc("/rides/reload", s.handleLoadRides).Methods("POST")
		rd.HandleFunc("/rides/{id}/select", s.handleSelectRide).Methods("POST")
		rd.HandleFunc("/history/refresh", s.handleRiderHistory).Methods("POST")
	}
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) { s.mux.ServeHTTP(w, r) }

type sessionView struct {
	Hydrated      bool         `json:"hydrated"`
	Authenticated bool         `json:"authenticated"`
	IsDriver      bool         `json:"is_driver"`
	User          *models.User `json:"user"`
}

type stateResponse struct {
	Session sessionView           `json:"session"`
	Driver  *views.DriverSnapshot `json:"driver,omitempty"`
	Rider   *views.RiderSnapshot  `json:"rider,omitempty"`
}

func (s *Server) state() stateResponse {
	snap := s.deps.Session.Snapshot()
	resp := stateResponse{Session: sessionView{
		Hydrated:      snap.IsHydrated,
		Authenticated: snap.Token != "",
		IsDriver:      snap.IsDriver,
		User:          snap.User,
	}}
	if s.deps.Driver != nil {
		d := s.deps.Driver.Snapshot()
		resp.Driver = &d
	}
	if s.deps.Rider != nil {
		r := s.deps.Rider.Snapshot()
		resp.Rider = &r
	}
	return resp
}

func (s *Server) handleState(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.state())
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	if s.deps.Ready != nil && !s.deps.Ready() {
		http.Error(w, "not ready", http.StatusServiceUnavailable)
		return
	}
	w.WriteHeader(200)
	w.Write([]byte("ready"))
}

var upgrader = websocket.Upgrader{}

func (s *Server) handleLive(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Debug("live upgrade failed", "error", err)
		return
	}
	id := s.deps.Live.Add(conn)
	_ = s.deps.Live.Send(id, s.state())
}

type sessionRequest struct {
	Token    *string      `json:"token"`
	User     *models.User `json:"user"`
	IsDriver *bool        `json:"is_driver"`
}

func (s *Server) handleSetSession(w http.ResponseWriter, r *http.Request) {
	var req sessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	ctx := r.Context()
	if req.Token != nil {
		s.deps.Session.SetToken(ctx, *req.Token)
	}
	if req.User != nil {
		s.deps.Session.SetUser(ctx, req.User)
	}
	if req.IsDriver != nil {
		s.deps.Session.SetIsDriver(ctx, *req.IsDriver)
	}
	if s.deps.Driver != nil {
		s.deps.Driver.SyncHistory(ctx)
	}
	writeJSON(w, http.StatusOK, s.state())
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	s.deps.Session.Logout(r.Context())
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleGoOnline(w http.ResponseWriter, r *http.Request) {
	loc := s.deps.Location
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&loc); err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
	}
	s.respond(w, r, s.deps.Driver.GoOnline(r.Context(), loc))
}

func (s *Server) driverCommand(cmd func(context.Context) error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s.respond(w, r, cmd(r.Context()))
	}
}

func (s *Server) handleDriverHistory(w http.ResponseWriter, r *http.Request) {
	s.deps.Driver.RefreshHistory(r.Context())
	writeJSON(w, http.StatusOK, s.state())
}

func (s *Server) handleRequestRide(w http.ResponseWriter, r *http.Request) {
	var req models.RideRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	_, err := s.deps.Rider.RequestRide(r.Context(), req)
	s.respond(w, r, err)
}

func (s *Server) handleLoadRides(w http.ResponseWriter, r *http.Request) {
	s.respond(w, r, s.deps.Rider.LoadRides(r.Context()))
}

func (s *Server) handleSelectRide(w http.ResponseWriter, r *http.Request) {
	s.respond(w, r, s.deps.Rider.SelectRide(r.Context(), mux.Vars(r)["id"]))
}

func (s *Server) handleRiderHistory(w http.ResponseWriter, r *http.Request) {
	s.deps.Rider.RefreshHistory(r.Context())
	writeJSON(w, http.StatusOK, s.state())
}

// respond writes the panel state after a command, or the command's error
// with the backend message when one is available.
func (s *Server) respond(w http.ResponseWriter, r *http.Request, err error) {
	if err == nil {
		writeJSON(w, http.StatusOK, s.state())
		return
	}
	status := statusFor(err)
	msg := api.Message(err)
	if msg == "" {
		msg = err.Error()
	}
	if status >= 500 {
		s.logger.Warn("command failed", "route", routeTemplate(r), "error", err)
	}
	writeError(w, status, msg)
}

// statusFor maps view errors to panel status codes; backend and transport
// failures surface as 502.
func statusFor(err error) int {
	switch {
	case errors.Is(err, views.ErrBusy), errors.Is(err, views.ErrNoIncomingRide), errors.Is(err, views.ErrNoCurrentRide):
		return http.StatusConflict
	case errors.Is(err, views.ErrUnknownRide):
		return http.StatusNotFound
	case errors.Is(err, views.ErrClosed), errors.Is(err, views.ErrUnauthenticated):
		return http.StatusServiceUnavailable
	default:
		return http.StatusBadGateway
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": http.StatusText(status), "message": msg})
}
