// README: Base handler utilities (service ports, JSON helpers, failure mapping).
package handlers

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"yatra/internal/failure"
	"yatra/internal/modules/booking"
	"yatra/internal/modules/matching"
	"yatra/internal/modules/rating"
	"yatra/internal/modules/route"
	"yatra/internal/modules/trip"
	"yatra/internal/types"
)

type TripService interface {
	CreateTrip(ctx context.Context, cmd trip.CreateCommand) (*trip.Trip, error)
	GetTripSnapshot(ctx context.Context, id types.ID) (*trip.Trip, error)
	GetRoute(ctx context.Context, t *trip.Trip) (*route.Route, error)
	ListUpcomingScheduledTrips(ctx context.Context, limit int) ([]*trip.Trip, error)
	ListByDriver(ctx context.Context, driverID types.ID) ([]*trip.Trip, error)
}

type SearchService interface {
	FindCandidateTrips(ctx context.Context, pickup, drop types.Point) ([]matching.Candidate, error)
}

type BookingService interface {
	CreateRideRequest(ctx context.Context, cmd booking.BookCommand) (*booking.RideRequest, error)
	CancelRideRequest(ctx context.Context, cmd booking.CancelRequestCommand) (bool, error)
	RejectRideRequest(ctx context.Context, cmd booking.CancelRequestCommand) (bool, error)
	CancelTrip(ctx context.Context, cmd booking.CancelTripCommand) (bool, error)
	StartTrip(ctx context.Context, tripID, driverID types.ID) error
	CompleteTrip(ctx context.Context, cmd booking.CompleteTripCommand) error
	MarkOnboard(ctx context.Context, cmd booking.PositionCommand) error
	MarkDroppedOff(ctx context.Context, cmd booking.PositionCommand) error
	GetRideRequest(ctx context.Context, id, viewerID types.ID) (*booking.RideRequest, error)
	ListByRider(ctx context.Context, riderID types.ID) ([]*booking.RideRequest, error)
	ListByTrip(ctx context.Context, tripID, driverID types.ID) ([]*booking.RideRequest, error)
}

type RatingService interface {
	SubmitRating(ctx context.Context, cmd rating.SubmitCommand) error
	Aggregate(ctx context.Context, party rating.Party, id types.ID) (rating.Aggregate, error)
	ListByRequest(ctx context.Context, requestID, viewerID types.ID) ([]*rating.Rating, error)
}

// Geocoder labels coordinates for display. Optional.
type Geocoder interface {
	ReverseLabel(ctx context.Context, p types.Point) (string, error)
}

// PathFinder computes a driving path between two points. Optional.
type PathFinder interface {
	DrivingPath(ctx context.Context, from, to types.Point) ([]types.Point, error)
}

type errorResponse struct {
	Error string `json:"error"`
}

// failureResponse is the body of every domain failure.
type failureResponse struct {
	OK     bool           `json:"ok"`
	Reason failure.Reason `json:"reason"`
	Detail string         `json:"detail,omitempty"`
}

func writeJSON(c *gin.Context, status int, v any) {
	c.JSON(status, v)
}

func writeError(c *gin.Context, status int, msg string) {
	writeJSON(c, status, errorResponse{Error: msg})
}

// writeFailure maps an engine error onto an HTTP response. Domain failures
// become {ok:false, reason}; transient failures ask the client to retry.
func writeFailure(c *gin.Context, log logrus.FieldLogger, err error) {
	if reason := failure.ReasonOf(err); reason != "" {
		resp := failureResponse{Reason: reason}
		var fe *failure.Error
		if errors.As(err, &fe) {
			resp.Detail = fe.Detail
		}
		writeJSON(c, statusFor(err), resp)
		return
	}
	if failure.IsTransient(err) {
		c.Header("Retry-After", "1")
		writeError(c, http.StatusServiceUnavailable, "temporarily unavailable, retry")
		return
	}
	log.WithError(err).WithField("path", c.FullPath()).Error("unhandled error")
	writeError(c, http.StatusInternalServerError, "internal error")
}

// writeInvalid rejects a request the engine never saw.
func writeInvalid(c *gin.Context, detail string) {
	writeJSON(c, http.StatusBadRequest, failureResponse{Reason: failure.ReasonInvalidInput, Detail: detail})
}

func statusFor(err error) int {
	if failure.IsNotFound(err) {
		return http.StatusNotFound
	}
	switch failure.ReasonOf(err) {
	case failure.ReasonUnauthorized:
		return http.StatusForbidden
	case failure.ReasonInvalidInput, failure.ReasonInvalidScore:
		return http.StatusBadRequest
	default:
		return http.StatusConflict
	}
}

// bindJSON decodes an optional JSON body. An empty body leaves v untouched.
func bindJSON(c *gin.Context, v any) bool {
	if c.Request.ContentLength == 0 {
		return true
	}
	return requireJSON(c, v)
}

// requireJSON decodes a mandatory JSON body; a missing or malformed body is
// answered with invalid_input.
func requireJSON(c *gin.Context, v any) bool {
	err := c.ShouldBindJSON(v)
	switch {
	case err == nil:
		return true
	case errors.Is(err, io.EOF):
		writeInvalid(c, "request body is required")
	default:
		writeInvalid(c, "malformed JSON body")
	}
	return false
}

func queryPoint(c *gin.Context, prefix string) (types.Point, bool) {
	lat, err1 := strconv.ParseFloat(c.Query(prefix+"_lat"), 64)
	lng, err2 := strconv.ParseFloat(c.Query(prefix+"_lng"), 64)
	if err1 != nil || err2 != nil {
		return types.Point{}, false
	}
	return types.Point{Lat: lat, Lng: lng}, true
}

func pathID(c *gin.Context) types.ID {
	return types.ID(c.Param("id"))
}
