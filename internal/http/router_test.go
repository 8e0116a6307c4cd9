// README: Router tests with fake services; covers auth, failure mapping and request decoding.
package http_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	logtest "github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"yatra/internal/failure"
	httptransport "yatra/internal/http"
	"yatra/internal/infra"
	"yatra/internal/modules/booking"
	"yatra/internal/modules/matching"
	"yatra/internal/modules/rating"
	"yatra/internal/modules/route"
	"yatra/internal/modules/trip"
	"yatra/internal/types"
)

type fakeTrips struct{}

func (fakeTrips) CreateTrip(_ context.Context, cmd trip.CreateCommand) (*trip.Trip, error) {
	return &trip.Trip{ID: "trip-1", DriverID: cmd.DriverID, TotalSeats: cmd.TotalSeats}, nil
}

func (fakeTrips) GetTripSnapshot(_ context.Context, id types.ID) (*trip.Trip, error) {
	if id != "trip-1" {
		return nil, failure.ErrTripNotFound
	}
	return &trip.Trip{ID: id}, nil
}

func (fakeTrips) GetRoute(context.Context, *trip.Trip) (*route.Route, error) {
	return &route.Route{ID: "route-1"}, nil
}

func (fakeTrips) ListUpcomingScheduledTrips(context.Context, int) ([]*trip.Trip, error) {
	return []*trip.Trip{{ID: "trip-1"}}, nil
}

func (fakeTrips) ListByDriver(context.Context, types.ID) ([]*trip.Trip, error) {
	return nil, nil
}

type fakeSearch struct {
	pickup, drop types.Point
}

func (f *fakeSearch) FindCandidateTrips(_ context.Context, pickup, drop types.Point) ([]matching.Candidate, error) {
	f.pickup, f.drop = pickup, drop
	return []matching.Candidate{{TripID: "trip-1"}}, nil
}

// fakeBookings returns err from every call and records the last command.
type fakeBookings struct {
	err      error
	applied  bool
	lastBook booking.BookCommand
	lastPos  booking.PositionCommand
}

func (f *fakeBookings) CreateRideRequest(_ context.Context, cmd booking.BookCommand) (*booking.RideRequest, error) {
	f.lastBook = cmd
	if f.err != nil {
		return nil, f.err
	}
	return &booking.RideRequest{ID: "req-1", TripID: cmd.TripID, RiderID: cmd.RiderID, Seats: cmd.Seats}, nil
}

func (f *fakeBookings) CancelRideRequest(context.Context, booking.CancelRequestCommand) (bool, error) {
	return f.applied, f.err
}

func (f *fakeBookings) RejectRideRequest(context.Context, booking.CancelRequestCommand) (bool, error) {
	return f.applied, f.err
}

func (f *fakeBookings) CancelTrip(context.Context, booking.CancelTripCommand) (bool, error) {
	return f.applied, f.err
}

func (f *fakeBookings) StartTrip(context.Context, types.ID, types.ID) error { return f.err }

func (f *fakeBookings) CompleteTrip(context.Context, booking.CompleteTripCommand) error { return f.err }

func (f *fakeBookings) MarkOnboard(_ context.Context, cmd booking.PositionCommand) error {
	f.lastPos = cmd
	return f.err
}

func (f *fakeBookings) MarkDroppedOff(_ context.Context, cmd booking.PositionCommand) error {
	f.lastPos = cmd
	return f.err
}

func (f *fakeBookings) GetRideRequest(_ context.Context, id, _ types.ID) (*booking.RideRequest, error) {
	return &booking.RideRequest{ID: id}, f.err
}

func (f *fakeBookings) ListByRider(context.Context, types.ID) ([]*booking.RideRequest, error) {
	return nil, f.err
}

func (f *fakeBookings) ListByTrip(context.Context, types.ID, types.ID) ([]*booking.RideRequest, error) {
	return nil, f.err
}

type fakeRatings struct {
	err error
}

func (f fakeRatings) SubmitRating(context.Context, rating.SubmitCommand) error { return f.err }

func (f fakeRatings) ListByRequest(_ context.Context, requestID, _ types.ID) ([]*rating.Rating, error) {
	if f.err != nil {
		return nil, f.err
	}
	return []*rating.Rating{{RequestID: requestID, Direction: rating.RiderToDriver, Score: 5}}, nil
}

func (f fakeRatings) Aggregate(_ context.Context, p rating.Party, id types.ID) (rating.Aggregate, error) {
	return rating.Aggregate{Party: p, ID: id, Average: 4.5, Count: 2}, f.err
}

type fakeGeocoder struct{}

func (fakeGeocoder) ReverseLabel(context.Context, types.Point) (string, error) {
	return "Lakeside", nil
}

func buildTestRouter(b *fakeBookings, r fakeRatings, s *fakeSearch) *gin.Engine {
	gin.SetMode(gin.TestMode)
	log, _ := logtest.NewNullLogger()
	return httptransport.NewRouter(httptransport.RouterDeps{
		Trips:    fakeTrips{},
		Search:   s,
		Bookings: b,
		Ratings:  r,
		Geocoder: fakeGeocoder{},
		Verifier: infra.DevVerifier{},
		Log:      log,
	})
}

func doRequest(r *gin.Engine, method, path string, body any, uid string) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		_ = json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if uid != "" {
		req.Header.Set("Authorization", "Bearer "+uid)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func doRaw(r *gin.Engine, method, path, body, uid string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+uid)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out))
	return out
}

func TestHealthAndMetricsArePublic(t *testing.T) {
	r := buildTestRouter(&fakeBookings{}, fakeRatings{}, &fakeSearch{})
	assert.Equal(t, http.StatusOK, doRequest(r, http.MethodGet, "/health", nil, "").Code)
	assert.Equal(t, http.StatusOK, doRequest(r, http.MethodGet, "/metrics", nil, "").Code)
}

func TestAPIRequiresToken(t *testing.T) {
	r := buildTestRouter(&fakeBookings{}, fakeRatings{}, &fakeSearch{})
	w := doRequest(r, http.MethodPost, "/api/trips/trip-1/book", map[string]any{"seats": 1}, "")
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestBookSuccessFillsLabelsAndActor(t *testing.T) {
	b := &fakeBookings{}
	r := buildTestRouter(b, fakeRatings{}, &fakeSearch{})

	w := doRequest(r, http.MethodPost, "/api/trips/trip-1/book", map[string]any{
		"seats":  2,
		"pickup": map[string]float64{"lat": 28.2, "lng": 83.98},
	}, "rider-1")

	require.Equal(t, http.StatusCreated, w.Code)
	body := decode(t, w)
	assert.Equal(t, true, body["ok"])
	assert.Equal(t, "req-1", body["request_id"])
	assert.Equal(t, types.ID("rider-1"), b.lastBook.RiderID)
	assert.Equal(t, types.ID("trip-1"), b.lastBook.TripID)
	assert.Equal(t, "Lakeside", b.lastBook.PickupAddress)
	assert.Empty(t, b.lastBook.DropAddress, "no drop point, trip destination label is used")
	assert.Nil(t, b.lastBook.Drop)
}

func TestFailureMapping(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
		reason string
	}{
		{"not enough seats", failure.ErrNotEnoughSeats, http.StatusConflict, "not_enough_seats"},
		{"duplicate", failure.ErrDuplicateRequest, http.StatusConflict, "duplicate_request"},
		{"route mismatch", failure.ErrRouteMismatch, http.StatusConflict, "route_mismatch"},
		{"not found", failure.ErrTripNotFound, http.StatusNotFound, "trip_not_found"},
		{"own trip", failure.ErrOwnTrip, http.StatusConflict, "own_trip"},
		{"unauthorized", failure.ErrUnauthorized, http.StatusForbidden, "unauthorized"},
		{"invalid input", failure.Wrap(failure.ErrInvalidInput, "seats must be at least 1"), http.StatusBadRequest, "invalid_input"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := buildTestRouter(&fakeBookings{err: tt.err}, fakeRatings{}, &fakeSearch{})
			w := doRequest(r, http.MethodPost, "/api/trips/trip-1/book", map[string]any{"seats": 1}, "rider-1")
			assert.Equal(t, tt.status, w.Code)
			body := decode(t, w)
			assert.Equal(t, false, body["ok"])
			assert.Equal(t, tt.reason, body["reason"])
		})
	}
}

func TestTransientFailureAsksForRetry(t *testing.T) {
	err := failure.Transient("book", errors.New("lock timeout"))
	r := buildTestRouter(&fakeBookings{err: err}, fakeRatings{}, &fakeSearch{})

	w := doRequest(r, http.MethodPost, "/api/trips/trip-1/book", map[string]any{"seats": 1}, "rider-1")
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Equal(t, "1", w.Header().Get("Retry-After"))
}

func TestUnexpectedErrorIsInternal(t *testing.T) {
	r := buildTestRouter(&fakeBookings{err: errors.New("boom")}, fakeRatings{}, &fakeSearch{})
	w := doRequest(r, http.MethodPost, "/api/trips/trip-1/book", map[string]any{"seats": 1}, "rider-1")
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.NotContains(t, w.Body.String(), "boom")
}

func TestCancelReportsGuardOutcome(t *testing.T) {
	r := buildTestRouter(&fakeBookings{applied: false}, fakeRatings{}, &fakeSearch{})
	w := doRequest(r, http.MethodPost, "/api/requests/req-1/cancel", nil, "rider-1")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, false, decode(t, w)["ok"])

	r = buildTestRouter(&fakeBookings{applied: true}, fakeRatings{}, &fakeSearch{})
	w = doRequest(r, http.MethodPost, "/api/trips/trip-1/cancel", map[string]string{"reason": "sick"}, "driver-1")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, true, decode(t, w)["ok"])
}

func TestOnboardNeedsPosition(t *testing.T) {
	b := &fakeBookings{}
	r := buildTestRouter(b, fakeRatings{}, &fakeSearch{})

	w := doRequest(r, http.MethodPost, "/api/requests/req-1/onboard", map[string]any{}, "rider-1")
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = doRequest(r, http.MethodPost, "/api/requests/req-1/onboard", map[string]any{
		"position": map[string]float64{"lat": 28.2, "lng": 83.98},
	}, "rider-1")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, types.ID("req-1"), b.lastPos.RequestID)
	assert.Equal(t, types.ID("rider-1"), b.lastPos.RiderID)
}

func TestSearch(t *testing.T) {
	s := &fakeSearch{}
	r := buildTestRouter(&fakeBookings{}, fakeRatings{}, s)

	w := doRequest(r, http.MethodGet, "/api/trips/search?pickup_lat=1", nil, "rider-1")
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = doRequest(r, http.MethodGet, "/api/trips/search?pickup_lat=1&pickup_lng=2&drop_lat=3&drop_lng=4", nil, "rider-1")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, types.Point{Lat: 1, Lng: 2}, s.pickup)
	assert.Equal(t, types.Point{Lat: 3, Lng: 4}, s.drop)
}

func TestGetTrip(t *testing.T) {
	r := buildTestRouter(&fakeBookings{}, fakeRatings{}, &fakeSearch{})
	assert.Equal(t, http.StatusOK, doRequest(r, http.MethodGet, "/api/trips/trip-1", nil, "rider-1").Code)
	assert.Equal(t, http.StatusNotFound, doRequest(r, http.MethodGet, "/api/trips/other", nil, "rider-1").Code)
}

func TestCreateTripNeedsPath(t *testing.T) {
	r := buildTestRouter(&fakeBookings{}, fakeRatings{}, &fakeSearch{})
	w := doRequest(r, http.MethodPost, "/api/trips", map[string]any{
		"from": map[string]float64{"lat": 1, "lng": 1},
		"to":   map[string]float64{"lat": 2, "lng": 2},
	}, "driver-1:driver")
	assert.Equal(t, http.StatusBadRequest, w.Code, "no path and no path finder configured")
	assert.Equal(t, "invalid_input", decode(t, w)["reason"])
}

func TestCreateTripRequiresDriverRole(t *testing.T) {
	r := buildTestRouter(&fakeBookings{}, fakeRatings{}, &fakeSearch{})
	body := map[string]any{
		"path":        []map[string]float64{{"lat": 1, "lng": 1}, {"lat": 2, "lng": 2}},
		"total_seats": 3,
	}

	w := doRequest(r, http.MethodPost, "/api/trips", body, "rider-1")
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Equal(t, "unauthorized", decode(t, w)["reason"])

	w = doRequest(r, http.MethodPost, "/api/trips", body, "driver-1:driver")
	assert.Equal(t, http.StatusCreated, w.Code)
}

func TestBookRejectsMissingOrMalformedBody(t *testing.T) {
	b := &fakeBookings{}
	r := buildTestRouter(b, fakeRatings{}, &fakeSearch{})

	for name, body := range map[string]string{"empty": "", "malformed": `{"seats":`, "wrong type": `{"seats":"two"}`} {
		w := doRaw(r, http.MethodPost, "/api/trips/trip-1/book", body, "rider-1")
		assert.Equal(t, http.StatusBadRequest, w.Code, name)
		out := decode(t, w)
		assert.Equal(t, false, out["ok"], name)
		assert.Equal(t, "invalid_input", out["reason"], name)
	}
	assert.Empty(t, b.lastBook.TripID, "engine must not be called")
}

func TestRate(t *testing.T) {
	r := buildTestRouter(&fakeBookings{}, fakeRatings{err: failure.ErrAlreadyRated}, &fakeSearch{})
	w := doRequest(r, http.MethodPost, "/api/requests/req-1/ratings", map[string]any{"direction": "rider_to_driver", "score": 5}, "rider-1")
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, "already_rated", decode(t, w)["reason"])

	r = buildTestRouter(&fakeBookings{}, fakeRatings{err: failure.ErrInvalidScore}, &fakeSearch{})
	w = doRequest(r, http.MethodPost, "/api/requests/req-1/ratings", map[string]any{"direction": "rider_to_driver", "score": 9}, "rider-1")
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = doRequest(r, http.MethodGet, "/api/ratings/driver/driver-1", nil, "rider-1")
	assert.Equal(t, http.StatusBadRequest, w.Code, "aggregate shares the fake error")

	r = buildTestRouter(&fakeBookings{}, fakeRatings{}, &fakeSearch{})
	w = doRequest(r, http.MethodGet, "/api/ratings/driver/driver-1", nil, "rider-1")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 4.5, decode(t, w)["avg_rating"])
}

func TestListRatings(t *testing.T) {
	r := buildTestRouter(&fakeBookings{}, fakeRatings{}, &fakeSearch{})
	w := doRequest(r, http.MethodGet, "/api/requests/req-1/ratings", nil, "rider-1")
	require.Equal(t, http.StatusOK, w.Code)
	list, ok := decode(t, w)["ratings"].([]any)
	require.True(t, ok)
	assert.Len(t, list, 1)

	r = buildTestRouter(&fakeBookings{}, fakeRatings{err: failure.ErrRequestNotFound}, &fakeSearch{})
	w = doRequest(r, http.MethodGet, "/api/requests/req-1/ratings", nil, "stranger")
	assert.Equal(t, http.StatusNotFound, w.Code)
}
