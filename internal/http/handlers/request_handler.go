// README: Ride request handlers: book, reverse, board, drop off and read.
package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"yatra/internal/http/middleware"
	"yatra/internal/modules/booking"
	"yatra/internal/types"
)

type RequestHandler struct {
	bookings BookingService
	geocoder Geocoder
	log      logrus.FieldLogger
}

func NewRequestHandler(bookings BookingService, geocoder Geocoder, log logrus.FieldLogger) *RequestHandler {
	return &RequestHandler{bookings: bookings, geocoder: geocoder, log: log}
}

type bookReq struct {
	Seats         int          `json:"seats"`
	Pickup        *types.Point `json:"pickup"`
	Drop          *types.Point `json:"drop"`
	PickupAddress string       `json:"pickup_address"`
	DropAddress   string       `json:"drop_address"`
}

// Book reserves seats on the trip for the caller. Missing address labels are
// looked up before the booking transaction; a failed lookup leaves them empty.
func (h *RequestHandler) Book(c *gin.Context) {
	var req bookReq
	if !requireJSON(c, &req) {
		return
	}
	ctx := c.Request.Context()
	if req.PickupAddress == "" {
		req.PickupAddress = h.label(ctx, req.Pickup)
	}
	if req.DropAddress == "" {
		req.DropAddress = h.label(ctx, req.Drop)
	}

	rr, err := h.bookings.CreateRideRequest(ctx, booking.BookCommand{
		TripID:        pathID(c),
		RiderID:       types.ID(middleware.CallerUID(c)),
		Seats:         req.Seats,
		Pickup:        req.Pickup,
		Drop:          req.Drop,
		PickupAddress: req.PickupAddress,
		DropAddress:   req.DropAddress,
	})
	if err != nil {
		writeFailure(c, h.log, err)
		return
	}
	writeJSON(c, http.StatusCreated, gin.H{"ok": true, "request_id": rr.ID, "request": rr})
}

func (h *RequestHandler) label(ctx context.Context, p *types.Point) string {
	if h.geocoder == nil || p == nil || !p.Valid() {
		return ""
	}
	l, err := h.geocoder.ReverseLabel(ctx, *p)
	if err != nil {
		h.log.WithError(err).Warn("reverse geocoding failed")
		return ""
	}
	return l
}

func (h *RequestHandler) Cancel(c *gin.Context) {
	h.reverse(c, h.bookings.CancelRideRequest)
}

func (h *RequestHandler) Reject(c *gin.Context) {
	h.reverse(c, h.bookings.RejectRideRequest)
}

func (h *RequestHandler) reverse(c *gin.Context, op func(context.Context, booking.CancelRequestCommand) (bool, error)) {
	var req reasonReq
	if !bindJSON(c, &req) {
		return
	}
	ok, err := op(c.Request.Context(), booking.CancelRequestCommand{
		RequestID: pathID(c),
		ActorID:   types.ID(middleware.CallerUID(c)),
		Reason:    req.Reason,
	})
	if err != nil {
		writeFailure(c, h.log, err)
		return
	}
	writeJSON(c, http.StatusOK, gin.H{"ok": ok})
}

func (h *RequestHandler) Onboard(c *gin.Context) {
	h.advance(c, h.bookings.MarkOnboard, booking.StatusOnboard)
}

func (h *RequestHandler) DropOff(c *gin.Context) {
	h.advance(c, h.bookings.MarkDroppedOff, booking.StatusDroppedOff)
}

func (h *RequestHandler) advance(c *gin.Context, op func(context.Context, booking.PositionCommand) error, to booking.Status) {
	var req positionReq
	if !bindJSON(c, &req) {
		return
	}
	pos, err := positionFrom(req.Position)
	if err != nil {
		writeFailure(c, h.log, err)
		return
	}
	err = op(c.Request.Context(), booking.PositionCommand{
		RequestID: pathID(c),
		RiderID:   types.ID(middleware.CallerUID(c)),
		Position:  pos,
	})
	if err != nil {
		writeFailure(c, h.log, err)
		return
	}
	writeJSON(c, http.StatusOK, gin.H{"ok": true, "status": to})
}

func (h *RequestHandler) Get(c *gin.Context) {
	rr, err := h.bookings.GetRideRequest(c.Request.Context(), pathID(c), types.ID(middleware.CallerUID(c)))
	if err != nil {
		writeFailure(c, h.log, err)
		return
	}
	writeJSON(c, http.StatusOK, gin.H{"request": rr})
}

func (h *RequestHandler) Mine(c *gin.Context) {
	reqs, err := h.bookings.ListByRider(c.Request.Context(), types.ID(middleware.CallerUID(c)))
	if err != nil {
		writeFailure(c, h.log, err)
		return
	}
	writeJSON(c, http.StatusOK, gin.H{"requests": reqs})
}
