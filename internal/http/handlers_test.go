package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/example/ride-hailing/internal/auth"
	"github.com/example/ride-hailing/internal/dispatch"
	"github.com/example/ride-hailing/internal/geo"
	"github.com/example/ride-hailing/internal/lifecycle"
	"github.com/example/ride-hailing/internal/loyalty"
	"github.com/example/ride-hailing/internal/models"
	"github.com/example/ride-hailing/internal/observability"
	"github.com/example/ride-hailing/internal/payments"
	"github.com/example/ride-hailing/internal/storage"
)

type fakeGateway struct {
	err   error
	calls int
}

func (f *fakeGateway) Initiate(ctx context.Context, phoneNumber string, amount int64, reference string) error {
	f.calls++
	return f.err
}

type fakeVerifier struct {
	sessions map[string]auth.Session
}

func (f *fakeVerifier) Verify(token string) (auth.Session, error) {
	sess, ok := f.sessions[token]
	if !ok {
		return auth.Session{}, auth.ErrInvalidSession
	}
	return sess, nil
}

func newTestServer(gateway payments.Gateway) *Server {
	return newTestServerWith(gateway, nil)
}

func newTestServerWith(gateway payments.Gateway, verifier auth.Verifier) *Server {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	presence := geo.NewIndex()
	ledger := loyalty.NewMemoryLedger()
	notifier := dispatch.NewNotifier(dispatch.NewRegistry(), nil, nil, logger)
	engine := &lifecycle.Engine{
		Store:         storage.NewMemoryStore(),
		Notifier:      notifier,
		Presence:      presence,
		Loyalty:       ledger,
		PointsPerRide: loyalty.DefaultPointsPerRide,
		Logger:        logger,
	}
	return New(Deps{
		Engine:   engine,
		Notifier: notifier,
		Presence: presence,
		Ledger:   ledger,
		Payments: gateway,
		Verifier: verifier,
		Logger:   logger,
	})
}

func doJSON(t *testing.T, s *Server, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	s.ServeHTTP(w, req)
	return w
}

func requestRide(t *testing.T, s *Server, passengerID string) models.Ride {
	t.Helper()
	w := doJSON(t, s, "POST", "/api/v1/rides", models.RideRequest{
		PassengerID:  passengerID,
		VehicleClass: models.VehicleTaxi,
		Pickup:       models.Coord{Lat: -1.2921, Lon: 36.8219},
		Dropoff:      models.Coord{Lat: -1.3032, Lon: 36.8440},
	})
	if w.Code != http.StatusCreated {
		t.Fatalf("request ride: status %d body %s", w.Code, w.Body.String())
	}
	var ride models.Ride
	if err := json.NewDecoder(w.Body).Decode(&ride); err != nil {
		t.Fatalf("decode ride: %v", err)
	}
	return ride
}

func setOnline(t *testing.T, s *Server, driverID string) {
	t.Helper()
	w := doJSON(t, s, "POST", "/api/v1/drivers/presence", map[string]any{"driver_id": driverID, "online": true})
	if w.Code != http.StatusNoContent {
		t.Fatalf("presence toggle: status %d body %s", w.Code, w.Body.String())
	}
}

func errCode(t *testing.T, w *httptest.ResponseRecorder) string {
	t.Helper()
	var body struct {
		Code string `json:"code"`
	}
	if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
		t.Fatalf("decode error body: %v", err)
	}
	return body.Code
}

func TestRideLifecycleOverHTTP(t *testing.T) {
	s := newTestServer(nil)

	ride := requestRide(t, s, "p1")
	if ride.Status != models.StatusPending || ride.Fare <= 0 {
		t.Fatalf("created ride = %+v", ride)
	}

	// offline drivers cannot accept
	w := doJSON(t, s, "POST", "/api/v1/rides/"+ride.ID+"/accept", map[string]string{"driver_id": "d1"})
	if w.Code != http.StatusConflict || errCode(t, w) != "driver_offline" {
		t.Fatalf("offline accept: status %d", w.Code)
	}

	setOnline(t, s, "d1")
	setOnline(t, s, "d2")

	w = doJSON(t, s, "POST", "/api/v1/rides/"+ride.ID+"/accept", map[string]string{"driver_id": "d1"})
	if w.Code != http.StatusOK {
		t.Fatalf("accept: status %d body %s", w.Code, w.Body.String())
	}

	// the race is already settled
	w = doJSON(t, s, "POST", "/api/v1/rides/"+ride.ID+"/accept", map[string]string{"driver_id": "d2"})
	if w.Code != http.StatusConflict || errCode(t, w) != "already_taken" {
		t.Fatalf("late accept: status %d", w.Code)
	}

	// only the bound driver can start
	w = doJSON(t, s, "POST", "/api/v1/rides/"+ride.ID+"/start", map[string]string{"driver_id": "d2"})
	if w.Code != http.StatusConflict || errCode(t, w) != "invalid_transition" {
		t.Fatalf("foreign start: status %d", w.Code)
	}
	w = doJSON(t, s, "POST", "/api/v1/rides/"+ride.ID+"/start", map[string]string{"driver_id": "d1"})
	if w.Code != http.StatusOK {
		t.Fatalf("start: status %d body %s", w.Code, w.Body.String())
	}

	w = doJSON(t, s, "POST", "/api/v1/rides/"+ride.ID+"/complete", map[string]string{"driver_id": "d1"})
	if w.Code != http.StatusOK {
		t.Fatalf("complete: status %d body %s", w.Code, w.Body.String())
	}

	w = doJSON(t, s, "GET", "/api/v1/rides/"+ride.ID, nil)
	var got models.Ride
	json.NewDecoder(w.Body).Decode(&got)
	if got.Status != models.StatusCompleted || got.DriverID != "d1" {
		t.Fatalf("final ride = %+v", got)
	}

	w = doJSON(t, s, "GET", "/api/v1/loyalty/balance?passenger_id=p1", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("balance: status %d", w.Code)
	}
	var acct models.LoyaltyAccount
	json.NewDecoder(w.Body).Decode(&acct)
	if acct.Points != loyalty.DefaultPointsPerRide {
		t.Fatalf("points = %d, want %d", acct.Points, loyalty.DefaultPointsPerRide)
	}

	// terminal rides reject further transitions
	w = doJSON(t, s, "POST", "/api/v1/rides/"+ride.ID+"/cancel", map[string]string{"actor_id": "p1"})
	if w.Code != http.StatusConflict {
		t.Fatalf("cancel of completed: status %d", w.Code)
	}
}

func TestRequestValidationOverHTTP(t *testing.T) {
	s := newTestServer(nil)

	w := doJSON(t, s, "POST", "/api/v1/rides", map[string]any{
		"passenger_id": "p1", "vehicle_class": "hoverboard",
		"pickup": models.Coord{Lat: 1}, "dropoff": models.Coord{Lat: 2},
	})
	if w.Code != http.StatusBadRequest {
		t.Fatalf("unknown class: status %d", w.Code)
	}

	req := httptest.NewRequest("POST", "/api/v1/rides", bytes.NewReader([]byte("{not json")))
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("malformed body: status %d", rec.Code)
	}

	if w := doJSON(t, s, "GET", "/api/v1/rides/does-not-exist", nil); w.Code != http.StatusNotFound {
		t.Fatalf("missing ride: status %d", w.Code)
	}
}

func TestPayEndpoint(t *testing.T) {
	gw := &fakeGateway{}
	s := newTestServer(gw)

	ride := requestRide(t, s, "p1")
	setOnline(t, s, "d1")
	doJSON(t, s, "POST", "/api/v1/rides/"+ride.ID+"/accept", map[string]string{"driver_id": "d1"})

	// not payable until completed
	w := doJSON(t, s, "POST", "/api/v1/rides/"+ride.ID+"/pay", map[string]string{"phone_number": "254700000001"})
	if w.Code != http.StatusConflict || errCode(t, w) != "not_payable" {
		t.Fatalf("early pay: status %d", w.Code)
	}

	doJSON(t, s, "POST", "/api/v1/rides/"+ride.ID+"/start", map[string]string{"driver_id": "d1"})
	doJSON(t, s, "POST", "/api/v1/rides/"+ride.ID+"/complete", map[string]string{"driver_id": "d1"})

	w = doJSON(t, s, "POST", "/api/v1/rides/"+ride.ID+"/pay", map[string]string{"phone_number": "254700000001"})
	if w.Code != http.StatusAccepted {
		t.Fatalf("pay: status %d body %s", w.Code, w.Body.String())
	}
	if gw.calls != 1 {
		t.Fatalf("gateway calls = %d", gw.calls)
	}

	gw.err = fmt.Errorf("%w: insufficient funds", payments.ErrRejected)
	w = doJSON(t, s, "POST", "/api/v1/rides/"+ride.ID+"/pay", map[string]string{"phone_number": "254700000001"})
	if w.Code != http.StatusPaymentRequired || errCode(t, w) != "payment_rejected" {
		t.Fatalf("rejected pay: status %d", w.Code)
	}
}

func TestDriverFeedReplaysPendingBacklog(t *testing.T) {
	s := newTestServer(nil)
	ride := requestRide(t, s, "p1")

	srv := httptest.NewServer(s)
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws/driver/d1"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var ev dispatch.Event
	if err := conn.ReadJSON(&ev); err != nil {
		t.Fatalf("read: %v", err)
	}
	if ev.Type != dispatch.EventRidePublished || ev.RideID != ride.ID {
		t.Fatalf("backlog event = %+v", ev)
	}
	if ev.Ride == nil || ev.Ride.Status != models.StatusPending {
		t.Fatalf("backlog ride = %+v", ev.Ride)
	}
}

func TestPresenceGaugeCountsFlipsOnly(t *testing.T) {
	s := newTestServer(nil)
	base := testutil.ToFloat64(observability.DriversOnline)

	setOnline(t, s, "g1")
	setOnline(t, s, "g1") // repeated online must not double count
	if got := testutil.ToFloat64(observability.DriversOnline) - base; got != 1 {
		t.Fatalf("gauge delta after two online posts = %v, want 1", got)
	}

	offline := map[string]any{"driver_id": "g1", "online": false}
	for i := 0; i < 2; i++ { // repeated offline must not go negative
		if w := doJSON(t, s, "POST", "/api/v1/drivers/presence", offline); w.Code != http.StatusNoContent {
			t.Fatalf("offline toggle: status %d", w.Code)
		}
	}
	if got := testutil.ToFloat64(observability.DriversOnline) - base; got != 0 {
		t.Fatalf("gauge delta after offline posts = %v, want 0", got)
	}
}

func TestRideWatchRequiresParticipant(t *testing.T) {
	verifier := &fakeVerifier{sessions: map[string]auth.Session{
		"passenger-token": {UserID: "p1", Role: "passenger"},
		"stranger-token":  {UserID: "lurker", Role: "passenger"},
	}}
	s := newTestServerWith(nil, verifier)

	var buf bytes.Buffer
	json.NewEncoder(&buf).Encode(models.RideRequest{
		VehicleClass: models.VehicleTaxi,
		Pickup:       models.Coord{Lat: -1.2921, Lon: 36.8219},
		Dropoff:      models.Coord{Lat: -1.3032, Lon: 36.8440},
	})
	req := httptest.NewRequest("POST", "/api/v1/rides", &buf)
	req.Header.Set("Authorization", "Bearer passenger-token")
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)
	if rec.Code != http.StatusCreated {
		t.Fatalf("request ride: status %d body %s", rec.Code, rec.Body.String())
	}
	var ride models.Ride
	json.NewDecoder(rec.Body).Decode(&ride)

	watch := func(token string) *httptest.ResponseRecorder {
		req := httptest.NewRequest("GET", "/ws/rides/"+ride.ID, nil)
		req.Header.Set("Authorization", "Bearer "+token)
		w := httptest.NewRecorder()
		s.ServeHTTP(w, req)
		return w
	}

	if w := watch("stranger-token"); w.Code != http.StatusForbidden {
		t.Fatalf("stranger watch: status %d, want 403", w.Code)
	}
	// the participant clears the gate; the plain recorder cannot complete the
	// upgrade, so anything but 403 means authorization passed
	if w := watch("passenger-token"); w.Code == http.StatusForbidden {
		t.Fatalf("participant watch rejected: status %d", w.Code)
	}
}

func TestPayWithoutGateway(t *testing.T) {
	s := newTestServer(nil)
	ride := requestRide(t, s, "p1")
	w := doJSON(t, s, "POST", "/api/v1/rides/"+ride.ID+"/pay", map[string]string{"phone_number": "254700000001"})
	if w.Code != http.StatusNotImplemented {
		t.Fatalf("status %d, want 501", w.Code)
	}
}
