// README: Trip handlers: publish, browse, search and the driver-side lifecycle.
package handlers

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"yatra/internal/failure"
	"yatra/internal/http/middleware"
	"yatra/internal/modules/booking"
	"yatra/internal/modules/trip"
	"yatra/internal/types"
)

type TripHandler struct {
	trips    TripService
	bookings BookingService
	search   SearchService
	paths    PathFinder
	log      logrus.FieldLogger
}

func NewTripHandler(trips TripService, bookings BookingService, search SearchService, paths PathFinder, log logrus.FieldLogger) *TripHandler {
	return &TripHandler{trips: trips, bookings: bookings, search: search, paths: paths, log: log}
}

type createTripReq struct {
	Path        []types.Point `json:"path"`
	From        *types.Point  `json:"from"`
	To          *types.Point  `json:"to"`
	FromAddress string        `json:"from_address"`
	ToAddress   string        `json:"to_address"`
	TravelDate  time.Time     `json:"travel_date"`
	FarePerSeat int64         `json:"fare_per_seat"`
	Currency    string        `json:"currency"`
	TotalSeats  int           `json:"total_seats"`
	Description string        `json:"description"`
}

// Create publishes a trip for the calling driver; the token must carry the
// driver role. When no path is given the driving path between from and to is
// fetched before any transaction starts.
func (h *TripHandler) Create(c *gin.Context) {
	if middleware.CallerRole(c) != "driver" {
		writeJSON(c, http.StatusForbidden, failureResponse{Reason: failure.ReasonUnauthorized, Detail: "driver role required"})
		return
	}
	var req createTripReq
	if !requireJSON(c, &req) {
		return
	}
	path := req.Path
	if len(path) == 0 {
		if req.From == nil || req.To == nil || h.paths == nil {
			writeInvalid(c, "path or from/to is required")
			return
		}
		var err error
		path, err = h.paths.DrivingPath(c.Request.Context(), *req.From, *req.To)
		if err != nil {
			h.log.WithError(err).Warn("driving path lookup failed")
			writeError(c, http.StatusBadGateway, "route lookup failed")
			return
		}
	}

	t, err := h.trips.CreateTrip(c.Request.Context(), trip.CreateCommand{
		DriverID:    types.ID(middleware.CallerUID(c)),
		Path:        path,
		FromAddress: req.FromAddress,
		ToAddress:   req.ToAddress,
		TravelDate:  req.TravelDate,
		FarePerSeat: types.Money{Amount: req.FarePerSeat, Currency: req.Currency},
		TotalSeats:  req.TotalSeats,
		Description: req.Description,
	})
	if err != nil {
		writeFailure(c, h.log, err)
		return
	}
	writeJSON(c, http.StatusCreated, gin.H{"ok": true, "trip": t})
}

func (h *TripHandler) List(c *gin.Context) {
	limit, _ := strconv.Atoi(c.Query("limit"))
	trips, err := h.trips.ListUpcomingScheduledTrips(c.Request.Context(), limit)
	if err != nil {
		writeFailure(c, h.log, err)
		return
	}
	writeJSON(c, http.StatusOK, gin.H{"trips": trips})
}

func (h *TripHandler) Mine(c *gin.Context) {
	trips, err := h.trips.ListByDriver(c.Request.Context(), types.ID(middleware.CallerUID(c)))
	if err != nil {
		writeFailure(c, h.log, err)
		return
	}
	writeJSON(c, http.StatusOK, gin.H{"trips": trips})
}

func (h *TripHandler) Get(c *gin.Context) {
	t, err := h.trips.GetTripSnapshot(c.Request.Context(), pathID(c))
	if err != nil {
		writeFailure(c, h.log, err)
		return
	}
	r, err := h.trips.GetRoute(c.Request.Context(), t)
	if err != nil {
		writeFailure(c, h.log, err)
		return
	}
	writeJSON(c, http.StatusOK, gin.H{"trip": t, "route": r})
}

// Search returns advisory candidates; booking re-checks everything.
func (h *TripHandler) Search(c *gin.Context) {
	pickup, ok1 := queryPoint(c, "pickup")
	drop, ok2 := queryPoint(c, "drop")
	if !ok1 || !ok2 {
		writeInvalid(c, "pickup_lat, pickup_lng, drop_lat and drop_lng are required")
		return
	}
	cands, err := h.search.FindCandidateTrips(c.Request.Context(), pickup, drop)
	if err != nil {
		writeFailure(c, h.log, err)
		return
	}
	writeJSON(c, http.StatusOK, gin.H{"trips": cands})
}

type reasonReq struct {
	Reason string `json:"reason"`
}

func (h *TripHandler) Cancel(c *gin.Context) {
	var req reasonReq
	if !bindJSON(c, &req) {
		return
	}
	ok, err := h.bookings.CancelTrip(c.Request.Context(), booking.CancelTripCommand{
		TripID:   pathID(c),
		DriverID: types.ID(middleware.CallerUID(c)),
		Reason:   req.Reason,
	})
	if err != nil {
		writeFailure(c, h.log, err)
		return
	}
	writeJSON(c, http.StatusOK, gin.H{"ok": ok})
}

func (h *TripHandler) Start(c *gin.Context) {
	err := h.bookings.StartTrip(c.Request.Context(), pathID(c), types.ID(middleware.CallerUID(c)))
	if err != nil {
		writeFailure(c, h.log, err)
		return
	}
	writeJSON(c, http.StatusOK, gin.H{"ok": true, "status": trip.StatusOngoing})
}

type positionReq struct {
	Position *types.Point `json:"position"`
}

func (h *TripHandler) Complete(c *gin.Context) {
	var req positionReq
	if !bindJSON(c, &req) {
		return
	}
	err := h.bookings.CompleteTrip(c.Request.Context(), booking.CompleteTripCommand{
		TripID:   pathID(c),
		DriverID: types.ID(middleware.CallerUID(c)),
		Position: req.Position,
	})
	if err != nil {
		writeFailure(c, h.log, err)
		return
	}
	writeJSON(c, http.StatusOK, gin.H{"ok": true, "status": trip.StatusCompleted})
}

func (h *TripHandler) Requests(c *gin.Context) {
	reqs, err := h.bookings.ListByTrip(c.Request.Context(), pathID(c), types.ID(middleware.CallerUID(c)))
	if err != nil {
		writeFailure(c, h.log, err)
		return
	}
	writeJSON(c, http.StatusOK, gin.H{"requests": reqs})
}

// positionFrom validates an optional position body field.
func positionFrom(p *types.Point) (types.Point, error) {
	if p == nil || !p.Valid() {
		return types.Point{}, failure.Wrap(failure.ErrInvalidInput, "position is required")
	}
	return *p, nil
}
