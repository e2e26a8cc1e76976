package httpapi

import (
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/example/ride-hailing/internal/auth"
	"github.com/example/ride-hailing/internal/dispatch"
	"github.com/example/ride-hailing/internal/fare"
	"github.com/example/ride-hailing/internal/geo"
	"github.com/example/ride-hailing/internal/ingest"
	"github.com/example/ride-hailing/internal/lifecycle"
	"github.com/example/ride-hailing/internal/loyalty"
	"github.com/example/ride-hailing/internal/models"
	"github.com/example/ride-hailing/internal/observability"
	"github.com/example/ride-hailing/internal/payments"
)

// Deps is everything the API surface needs; wiring happens in cmd/server.
type Deps struct {
	Engine   *lifecycle.Engine
	Notifier *dispatch.Notifier
	Presence geo.Geo
	Ledger   loyalty.Ledger
	Payments payments.Gateway
	Kafka    *ingest.KafkaProducer // optional
	Verifier auth.Verifier         // optional; nil trusts ids from request bodies
	Logger   *slog.Logger
}

type Server struct {
	engine   *lifecycle.Engine
	notifier *dispatch.Notifier
	presence geo.Geo
	ledger   loyalty.Ledger
	payments payments.Gateway
	kafka    *ingest.KafkaProducer
	verifier auth.Verifier
	logger   *slog.Logger
	mux      *mux.Router
}

func New(d Deps) *Server {
	s := &Server{
		engine:   d.Engine,
		notifier: d.Notifier,
		presence: d.Presence,
		ledger:   d.Ledger,
		payments: d.Payments,
		kafka:    d.Kafka,
		verifier: d.Verifier,
		logger:   d.Logger,
		mux:      mux.NewRouter(),
	}
	s.registerMiddleware()
	s.routes()
	return s
}

func (s *Server) routes() {
	api := s.mux.PathPrefix("/api/v1").Subrouter()
	api.HandleFunc("/rides", s.handleRequestRide).Methods("POST")
	api.HandleFunc("/rides/{ride_id}", s.handleGetRide).Methods("GET")
	api.HandleFunc("/rides/{ride_id}/accept", s.handleAccept).Methods("POST")
	api.HandleFunc("/rides/{ride_id}/start", s.handleStart).Methods("POST")
	api.HandleFunc("/rides/{ride_id}/complete", s.handleComplete).Methods("POST")
	api.HandleFunc("/rides/{ride_id}/cancel", s.handleCancel).Methods("POST")
	api.HandleFunc("/rides/{ride_id}/pay", s.handlePay).Methods("POST")
	api.HandleFunc("/loyalty/balance", s.handleLoyaltyBalance).Methods("GET")
	api.HandleFunc("/drivers/presence", s.handlePresenceToggle).Methods("POST")

	s.mux.HandleFunc("/internal/driver/locations", s.handleDriverLocation).Methods("POST")
	s.mux.HandleFunc("/ws/driver/{driver_id}", s.handleDriverFeed)
	s.mux.HandleFunc("/ws/rides/{ride_id}", s.handleRideWatch)
	s.mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	}).Methods("GET")
	s.mux.Handle("/metrics", promhttp.Handler())
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) { s.mux.ServeHTTP(w, r) }

func (s *Server) handleRequestRide(w http.ResponseWriter, r *http.Request) {
	var req models.RideRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", err.Error())
		return
	}
	passengerID, ok := s.actorID(w, r, req.PassengerID)
	if !ok {
		return
	}
	req.PassengerID = passengerID

	ride, err := s.engine.Request(r.Context(), req)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, ride)
}

func (s *Server) handleGetRide(w http.ResponseWriter, r *http.Request) {
	ride, err := s.engine.Get(r.Context(), mux.Vars(r)["ride_id"])
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, ride)
}

// transitionBody carries the acting party for accept/start/complete/cancel.
// When a token verifier is configured, the session subject overrides it.
type transitionBody struct {
	DriverID string `json:"driver_id"`
	ActorID  string `json:"actor_id"`
}

func (s *Server) handleAccept(w http.ResponseWriter, r *http.Request) {
	body, ok := s.decodeTransition(w, r)
	if !ok {
		return
	}
	driverID, ok := s.actorID(w, r, body.DriverID)
	if !ok {
		return
	}
	ride, err := s.engine.Accept(r.Context(), mux.Vars(r)["ride_id"], driverID)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, ride)
}

func (s *Server) handleStart(w http.ResponseWriter, r *http.Request) {
	body, ok := s.decodeTransition(w, r)
	if !ok {
		return
	}
	driverID, ok := s.actorID(w, r, body.DriverID)
	if !ok {
		return
	}
	ride, err := s.engine.Start(r.Context(), mux.Vars(r)["ride_id"], driverID)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, ride)
}

func (s *Server) handleComplete(w http.ResponseWriter, r *http.Request) {
	body, ok := s.decodeTransition(w, r)
	if !ok {
		return
	}
	driverID, ok := s.actorID(w, r, body.DriverID)
	if !ok {
		return
	}
	ride, err := s.engine.Complete(r.Context(), mux.Vars(r)["ride_id"], driverID)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, ride)
}

func (s *Server) handleCancel(w http.ResponseWriter, r *http.Request) {
	body, ok := s.decodeTransition(w, r)
	if !ok {
		return
	}
	actorID, ok := s.actorID(w, r, body.ActorID)
	if !ok {
		return
	}
	ride, err := s.engine.Cancel(r.Context(), mux.Vars(r)["ride_id"], actorID)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, ride)
}

// handlePay kicks off fare collection for a completed ride. Settlement is
// asynchronous; 202 only means the provider accepted the request.
func (s *Server) handlePay(w http.ResponseWriter, r *http.Request) {
	if s.payments == nil {
		writeError(w, http.StatusNotImplemented, "payments_disabled", "no payment gateway configured")
		return
	}
	var body struct {
		PhoneNumber string `json:"phone_number"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", err.Error())
		return
	}

	ride, err := s.engine.Get(r.Context(), mux.Vars(r)["ride_id"])
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	if sess, ok := sessionFromContext(r.Context()); ok && sess.UserID != ride.PassengerID {
		writeError(w, http.StatusForbidden, "forbidden", "only the passenger can pay for a ride")
		return
	}
	if ride.Status != models.StatusCompleted {
		writeError(w, http.StatusConflict, "not_payable", "ride is not completed")
		return
	}

	if err := s.payments.Initiate(r.Context(), body.PhoneNumber, ride.Fare, ride.ID); err != nil {
		if errors.Is(err, payments.ErrRejected) {
			writeError(w, http.StatusPaymentRequired, "payment_rejected", err.Error())
			return
		}
		s.logger.Error("payment initiation failed", "ride_id", ride.ID, "error", err)
		writeError(w, http.StatusBadGateway, "payment_failed", "payment provider unavailable")
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]any{"ride_id": ride.ID, "amount": ride.Fare, "status": "initiated"})
}

func (s *Server) handleLoyaltyBalance(w http.ResponseWriter, r *http.Request) {
	passengerID, ok := s.actorID(w, r, r.URL.Query().Get("passenger_id"))
	if !ok {
		return
	}
	points, err := s.ledger.Balance(r.Context(), passengerID)
	if err != nil {
		writeError(w, http.StatusServiceUnavailable, "upstream_unavailable", "loyalty store unavailable")
		return
	}
	writeJSON(w, http.StatusOK, models.LoyaltyAccount{PassengerID: passengerID, Points: points})
}

// handleDriverLocation ingests one presence report. Reports also flow to
// Kafka when a producer is configured, so the consumer can keep the Redis
// index warm in multi-node deployments.
func (s *Server) handleDriverLocation(w http.ResponseWriter, r *http.Request) {
	var p models.DriverPresence
	if err := json.NewDecoder(r.Body).Decode(&p); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", err.Error())
		return
	}
	if p.DriverID == "" {
		writeError(w, http.StatusBadRequest, "bad_request", "driver_id is required")
		return
	}
	p.Online = true
	p.Updated = time.Now()

	if s.kafka != nil {
		if err := s.kafka.PublishPresence(p); err != nil {
			s.logger.Warn("presence publish failed", "driver_id", p.DriverID, "error", err)
		}
	}
	if err := s.presence.Upsert(r.Context(), p); err != nil {
		writeError(w, http.StatusServiceUnavailable, "upstream_unavailable", "presence index unavailable")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handlePresenceToggle(w http.ResponseWriter, r *http.Request) {
	var body struct {
		DriverID string `json:"driver_id"`
		Online   bool   `json:"online"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", err.Error())
		return
	}
	driverID, ok := s.actorID(w, r, body.DriverID)
	if !ok {
		return
	}
	was, err := s.presence.IsOnline(r.Context(), driverID)
	if err != nil {
		writeError(w, http.StatusServiceUnavailable, "upstream_unavailable", "presence index unavailable")
		return
	}
	if err := s.presence.SetOnline(r.Context(), driverID, body.Online); err != nil {
		writeError(w, http.StatusServiceUnavailable, "upstream_unavailable", "presence index unavailable")
		return
	}
	// gauge moves only when the state actually flips; repeated toggles in the
	// same direction are no-ops
	if body.Online != was {
		if body.Online {
			observability.DriversOnline.Inc()
		} else {
			observability.DriversOnline.Dec()
		}
	}
	w.WriteHeader(http.StatusNoContent)
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
}

// handleDriverFeed streams dispatch offers and retractions to one driver.
func (s *Server) handleDriverFeed(w http.ResponseWriter, r *http.Request) {
	driverID := mux.Vars(r)["driver_id"]
	if sess, ok := sessionFromContext(r.Context()); ok && sess.UserID != driverID {
		writeError(w, http.StatusForbidden, "forbidden", "feed belongs to another driver")
		return
	}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return // Upgrade already wrote the response
	}
	reg := s.notifier.Registry()
	sub := reg.SubscribeFeed(driverID)
	observability.FeedSessions.Inc()
	defer observability.FeedSessions.Dec()

	// replay the pending backlog so offers published before the connect are
	// not lost
	if rides, err := s.engine.ListPending(r.Context()); err == nil {
		for _, ride := range rides {
			reg.ReplayFeed(driverID, sub, dispatch.Event{Type: dispatch.EventRidePublished, RideID: ride.ID, Ride: ride})
		}
	} else {
		s.logger.Warn("pending backlog replay failed", "driver_id", driverID, "error", err)
	}

	dispatch.NewWSSession(conn, sub, s.logger).Run()
}

// handleRideWatch streams status updates for one ride to its participants.
func (s *Server) handleRideWatch(w http.ResponseWriter, r *http.Request) {
	rideID := mux.Vars(r)["ride_id"]
	ride, err := s.engine.Get(r.Context(), rideID)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	if sess, ok := sessionFromContext(r.Context()); ok && sess.UserID != ride.PassengerID && sess.UserID != ride.DriverID {
		writeError(w, http.StatusForbidden, "forbidden", "ride belongs to other parties")
		return
	}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	sub := s.notifier.Registry().SubscribeRide(rideID)
	dispatch.NewWSSession(conn, sub, s.logger).Run()
}

func (s *Server) decodeTransition(w http.ResponseWriter, r *http.Request) (transitionBody, bool) {
	var body transitionBody
	if r.Body != nil && r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			writeError(w, http.StatusBadRequest, "bad_request", err.Error())
			return body, false
		}
	}
	return body, true
}

// actorID resolves who is acting. With a verifier configured the session
// subject is authoritative; otherwise the caller-supplied id is trusted
// (single-tenant and test deployments).
func (s *Server) actorID(w http.ResponseWriter, r *http.Request, fallback string) (string, bool) {
	if s.verifier != nil {
		sess, ok := sessionFromContext(r.Context())
		if !ok {
			writeError(w, http.StatusUnauthorized, "unauthorized", "missing or invalid bearer token")
			return "", false
		}
		return sess.UserID, true
	}
	if fallback == "" {
		writeError(w, http.StatusBadRequest, "bad_request", "caller id is required")
		return "", false
	}
	return fallback, true
}

func (s *Server) writeDomainError(w http.ResponseWriter, err error) {
	var it *lifecycle.InvalidTransitionError
	switch {
	case errors.Is(err, lifecycle.ErrRideNotFound):
		writeError(w, http.StatusNotFound, "ride_not_found", err.Error())
	case errors.Is(err, lifecycle.ErrAlreadyTaken):
		writeError(w, http.StatusConflict, "already_taken", err.Error())
	case errors.As(err, &it):
		writeJSON(w, http.StatusConflict, map[string]any{
			"error":     err.Error(),
			"code":      "invalid_transition",
			"current":   it.Current,
			"requested": it.Requested,
		})
	case errors.Is(err, lifecycle.ErrInvalidTransition):
		writeError(w, http.StatusConflict, "invalid_transition", err.Error())
	case errors.Is(err, lifecycle.ErrActiveRide):
		writeError(w, http.StatusConflict, "active_ride", err.Error())
	case errors.Is(err, lifecycle.ErrDriverOffline):
		writeError(w, http.StatusConflict, "driver_offline", err.Error())
	case errors.Is(err, lifecycle.ErrInvalidRoute), errors.Is(err, fare.ErrInvalidVehicleClass):
		writeError(w, http.StatusBadRequest, "bad_request", err.Error())
	case errors.Is(err, lifecycle.ErrUpstreamUnavailable):
		writeError(w, http.StatusServiceUnavailable, "upstream_unavailable", "temporarily unavailable, retry")
	default:
		s.logger.Error("unhandled domain error", "error", err)
		writeError(w, http.StatusInternalServerError, "internal", "internal error")
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, msg string) {
	writeJSON(w, status, map[string]string{"error": msg, "code": code})
}

func newID() string { b := make([]byte, 8); _, _ = rand.Read(b); return hex.EncodeToString(b) }
