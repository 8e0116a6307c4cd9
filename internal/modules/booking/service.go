// README: Booking service: seat reservation, reversal and the ride lifecycle, each as one trip-locked transaction.
package booking

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/sirupsen/logrus"

	"yatra/internal/events"
	"yatra/internal/failure"
	"yatra/internal/geo"
	"yatra/internal/infra"
	"yatra/internal/modules/route"
	"yatra/internal/modules/trip"
	"yatra/internal/observability"
	"yatra/internal/types"
)

const defaultProximityM = 100

type Service struct {
	store      *Store
	trips      *trip.Store
	routes     *route.Store
	tx         *infra.TxRunner
	db         infra.DBTX
	events     events.Publisher
	log        logrus.FieldLogger
	now        func() time.Time
	proximityM float64
}

type Deps struct {
	Store      *Store
	Trips      *trip.Store
	Routes     *route.Store
	Tx         *infra.TxRunner
	Events     events.Publisher
	Log        logrus.FieldLogger
	Now        func() time.Time
	ProximityM float64
}

func NewService(d Deps) *Service {
	s := &Service{
		store:      d.Store,
		trips:      d.Trips,
		routes:     d.Routes,
		tx:         d.Tx,
		events:     d.Events,
		log:        d.Log,
		now:        d.Now,
		proximityM: d.ProximityM,
	}
	if d.Tx != nil {
		s.db = d.Tx.Pool()
	}
	if s.events == nil {
		s.events = events.Nop{}
	}
	if s.log == nil {
		s.log = logrus.StandardLogger()
	}
	if s.now == nil {
		s.now = time.Now
	}
	if s.proximityM <= 0 {
		s.proximityM = defaultProximityM
	}
	return s
}

type BookCommand struct {
	TripID        types.ID
	RiderID       types.ID
	Seats         int
	Pickup        *types.Point // trip origin when nil
	Drop          *types.Point // trip destination when nil
	PickupAddress string
	DropAddress   string
}

func (c BookCommand) validate() error {
	if c.TripID == "" || c.RiderID == "" {
		return failure.Wrap(failure.ErrInvalidInput, "trip and rider are required")
	}
	if c.Seats < 1 {
		return failure.Wrap(failure.ErrInvalidInput, "seats must be at least 1")
	}
	for _, p := range []*types.Point{c.Pickup, c.Drop} {
		if p != nil && geo.Validate(*p) != nil {
			return failure.Wrap(failure.ErrInvalidInput, "pickup and drop must be valid coordinates")
		}
	}
	return nil
}

type CancelRequestCommand struct {
	RequestID types.ID
	ActorID   types.ID
	Reason    string
}

type CancelTripCommand struct {
	TripID   types.ID
	DriverID types.ID
	Reason   string
}

type CompleteTripCommand struct {
	TripID   types.ID
	DriverID types.ID
	Position *types.Point
}

type PositionCommand struct {
	RequestID types.ID
	RiderID   types.ID
	Position  types.Point
}

// CreateRideRequest reserves seats on a trip. Under the trip row lock it
// evaluates the booking chain, snaps pickup and drop onto the route, inserts
// a waiting request and decrements available seats. Any failure leaves no
// trace; domain failures carry a failure reason.
func (s *Service) CreateRideRequest(ctx context.Context, cmd BookCommand) (*RideRequest, error) {
	if err := cmd.validate(); err != nil {
		s.finish("book", logrus.Fields{"trip_id": cmd.TripID, "actor_id": cmd.RiderID}, err)
		return nil, err
	}

	start := time.Now()
	var req *RideRequest
	err := s.tx.Run(ctx, "book", func(tx pgx.Tx) error {
		t, err := s.trips.GetForUpdate(ctx, tx, cmd.TripID)
		if errors.Is(err, trip.ErrNotFound) {
			return failure.ErrTripNotFound
		}
		if err != nil {
			return err
		}
		r, err := s.routes.Get(ctx, tx, t.RouteID)
		if err != nil {
			return err
		}

		pickup, pickupAddr := t.From, t.FromAddress
		if cmd.Pickup != nil {
			pickup, pickupAddr = *cmd.Pickup, ""
		}
		drop, dropAddr := t.To, t.ToAddress
		if cmd.Drop != nil {
			drop, dropAddr = *cmd.Drop, ""
		}
		if cmd.PickupAddress != "" {
			pickupAddr = cmd.PickupAddress
		}
		if cmd.DropAddress != "" {
			dropAddr = cmd.DropAddress
		}

		now := s.now()
		adm, err := checkBookable(t, r, cmd.RiderID, cmd.Seats, pickup, drop, now)
		if err != nil {
			return err
		}
		live, err := s.store.HasLive(ctx, tx, cmd.RiderID, t.ID)
		if err != nil {
			return err
		}
		if live {
			return failure.ErrDuplicateRequest
		}
		if err := s.store.EnsureRider(ctx, tx, cmd.RiderID); err != nil {
			return err
		}

		req = &RideRequest{
			ID:             types.NewID(),
			RiderID:        cmd.RiderID,
			TripID:         t.ID,
			Pickup:         pickup,
			Drop:           drop,
			PickupOnRoute:  adm.pickup.Snapped,
			DropOnRoute:    adm.drop.Snapped,
			PickupFraction: adm.pickup.Fraction,
			DropFraction:   adm.drop.Fraction,
			PickupAddress:  pickupAddr,
			DropAddress:    dropAddr,
			Seats:          cmd.Seats,
			TotalFare:      t.FarePerSeat.Times(cmd.Seats),
			Status:         StatusWaiting,
			CreatedAt:      now.UTC(),
			UpdatedAt:      now.UTC(),
		}
		if err := s.store.Insert(ctx, tx, req); err != nil {
			// a concurrent booking by the same rider won the partial unique index
			if failure.IsUniqueViolation(err) {
				return failure.ErrDuplicateRequest
			}
			return err
		}
		return s.trips.AdjustSeats(ctx, tx, t.ID, -cmd.Seats)
	})
	observability.BookingTxSeconds.Observe(time.Since(start).Seconds())

	fields := logrus.Fields{"trip_id": cmd.TripID, "actor_id": cmd.RiderID, "seats": cmd.Seats}
	s.finish("book", fields, err)
	if err != nil {
		return nil, err
	}
	s.events.Publish(ctx, events.Event{
		Type: events.RequestCreated, TripID: req.TripID, RequestID: req.ID,
		ActorID: req.RiderID, Seats: req.Seats, At: req.CreatedAt,
	})
	return req, nil
}

// CancelRideRequest moves a waiting request to cancelled and gives its seats
// back to the trip. The actor must be the rider or the trip's driver and the
// trip must still be scheduled. It reports false, with a nil error, when any
// guard does not hold.
func (s *Service) CancelRideRequest(ctx context.Context, cmd CancelRequestCommand) (bool, error) {
	return s.reverse(ctx, "cancel", cmd, func(t *trip.Trip, r *RideRequest) bool {
		return cmd.ActorID == r.RiderID || cmd.ActorID == t.DriverID
	})
}

// RejectRideRequest is the driver-initiated form of CancelRideRequest.
func (s *Service) RejectRideRequest(ctx context.Context, cmd CancelRequestCommand) (bool, error) {
	return s.reverse(ctx, "reject", cmd, func(t *trip.Trip, _ *RideRequest) bool {
		return cmd.ActorID == t.DriverID
	})
}

func (s *Service) reverse(ctx context.Context, kind string, cmd CancelRequestCommand, allowed func(*trip.Trip, *RideRequest) bool) (bool, error) {
	var done bool
	var req *RideRequest
	at := s.now().UTC()
	err := s.tx.Run(ctx, kind+" request", func(tx pgx.Tx) error {
		tripID, err := s.store.TripOf(ctx, tx, cmd.RequestID)
		if errors.Is(err, ErrNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		t, err := s.trips.GetForUpdate(ctx, tx, tripID)
		if err != nil {
			return err
		}
		req, err = s.store.GetForUpdate(ctx, tx, cmd.RequestID)
		if err != nil {
			return err
		}
		if req.Status != StatusWaiting || t.Status != trip.StatusScheduled || !allowed(t, req) {
			return nil
		}
		if err := s.store.Cancel(ctx, tx, req.ID, cmd.Reason, at); err != nil {
			return err
		}
		if err := s.trips.AdjustSeats(ctx, tx, t.ID, req.Seats); err != nil {
			return err
		}
		done = true
		return nil
	})

	fields := logrus.Fields{"request_id": cmd.RequestID, "actor_id": cmd.ActorID, "applied": done}
	observability.CancellationsTotal.WithLabelValues(kind, reversalOutcome(done, err)).Inc()
	s.logResult(kind+" request", fields, err)
	if err != nil {
		return false, err
	}
	if done {
		typ := events.RequestCancelled
		if kind == "reject" {
			typ = events.RequestRejected
		}
		s.events.Publish(ctx, events.Event{
			Type: typ, TripID: req.TripID, RequestID: req.ID, ActorID: cmd.ActorID,
			Seats: req.Seats, Reason: cmd.Reason, At: at,
		})
	}
	return done, nil
}

// CancelTrip cancels a scheduled trip, restores every seat and cancels all
// waiting and onboard requests in the same transaction. Only the trip's
// driver may do this; any other case reports false.
func (s *Service) CancelTrip(ctx context.Context, cmd CancelTripCommand) (bool, error) {
	var done bool
	var cascaded int64
	at := s.now().UTC()
	err := s.tx.Run(ctx, "cancel trip", func(tx pgx.Tx) error {
		t, err := s.trips.GetForUpdate(ctx, tx, cmd.TripID)
		if errors.Is(err, trip.ErrNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		if t.DriverID != cmd.DriverID || !trip.CanTransition(t.Status, trip.StatusCancelled) {
			return nil
		}
		if cascaded, err = s.store.CancelAllLive(ctx, tx, t.ID, cmd.Reason, at); err != nil {
			return err
		}
		if err := s.trips.Cancel(ctx, tx, t.ID, cmd.Reason, at); err != nil {
			return err
		}
		done = true
		return nil
	})

	fields := logrus.Fields{"trip_id": cmd.TripID, "actor_id": cmd.DriverID, "applied": done, "cascaded": cascaded}
	observability.CancellationsTotal.WithLabelValues("trip", reversalOutcome(done, err)).Inc()
	s.logResult("cancel trip", fields, err)
	if err != nil {
		return false, err
	}
	if done {
		s.events.Publish(ctx, events.Event{
			Type: events.TripCancelled, TripID: cmd.TripID, ActorID: cmd.DriverID, Reason: cmd.Reason, At: at,
		})
	}
	return done, nil
}

// StartTrip moves a scheduled trip to ongoing. A driver runs one trip at a time.
func (s *Service) StartTrip(ctx context.Context, tripID, driverID types.ID) error {
	err := s.tx.Run(ctx, "start trip", func(tx pgx.Tx) error {
		t, err := s.lockOwnedTrip(ctx, tx, tripID, driverID)
		if err != nil {
			return err
		}
		if !trip.CanTransition(t.Status, trip.StatusOngoing) {
			return failure.Wrap(failure.ErrInvalidState, "only scheduled trips can be started")
		}
		busy, err := s.trips.HasOtherOngoing(ctx, tx, driverID, tripID)
		if err != nil {
			return err
		}
		if busy {
			return failure.Wrap(failure.ErrInvalidState, "driver already has an ongoing trip")
		}
		return s.trips.SetStatus(ctx, tx, tripID, trip.StatusOngoing)
	})
	s.finish("start trip", logrus.Fields{"trip_id": tripID, "actor_id": driverID}, err)
	if err == nil {
		s.events.Publish(ctx, events.Event{Type: events.TripStarted, TripID: tripID, ActorID: driverID, At: s.now().UTC()})
	}
	return err
}

// CompleteTrip moves an ongoing trip to completed. Onboard riders are dropped
// off and riders still waiting are cancelled. When a position is given it
// must be within the proximity radius of the destination.
func (s *Service) CompleteTrip(ctx context.Context, cmd CompleteTripCommand) error {
	at := s.now().UTC()
	err := s.tx.Run(ctx, "complete trip", func(tx pgx.Tx) error {
		t, err := s.lockOwnedTrip(ctx, tx, cmd.TripID, cmd.DriverID)
		if err != nil {
			return err
		}
		if !trip.CanTransition(t.Status, trip.StatusCompleted) {
			return failure.Wrap(failure.ErrInvalidState, "only ongoing trips can be completed")
		}
		if cmd.Position != nil {
			if d := geo.DistanceMeters(*cmd.Position, t.To); d > s.proximityM {
				return failure.Wrap(failure.ErrTooFar, "%.0fm from destination", d)
			}
		}
		if err := s.store.SettleOnCompletion(ctx, tx, t.ID, at); err != nil {
			return err
		}
		return s.trips.SetStatus(ctx, tx, t.ID, trip.StatusCompleted)
	})
	s.finish("complete trip", logrus.Fields{"trip_id": cmd.TripID, "actor_id": cmd.DriverID}, err)
	if err == nil {
		s.events.Publish(ctx, events.Event{Type: events.TripCompleted, TripID: cmd.TripID, ActorID: cmd.DriverID, At: at})
	}
	return err
}

// MarkOnboard records that the rider boarded. The trip must be ongoing and
// the rider within the proximity radius of the snapped pickup point.
func (s *Service) MarkOnboard(ctx context.Context, cmd PositionCommand) error {
	return s.advance(ctx, "onboard", cmd, StatusWaiting, StatusOnboard, func(r *RideRequest) types.Point {
		return r.PickupOnRoute
	})
}

// MarkDroppedOff records that the rider left the car near the snapped drop
// point. Seats stay spent for the rest of the trip.
func (s *Service) MarkDroppedOff(ctx context.Context, cmd PositionCommand) error {
	return s.advance(ctx, "dropoff", cmd, StatusOnboard, StatusDroppedOff, func(r *RideRequest) types.Point {
		return r.DropOnRoute
	})
}

func (s *Service) advance(ctx context.Context, op string, cmd PositionCommand, from, to Status, target func(*RideRequest) types.Point) error {
	if geo.Validate(cmd.Position) != nil {
		return failure.Wrap(failure.ErrInvalidInput, "position must be a valid coordinate")
	}
	var tripID types.ID
	err := s.tx.Run(ctx, op, func(tx pgx.Tx) error {
		var err error
		tripID, err = s.store.TripOf(ctx, tx, cmd.RequestID)
		if errors.Is(err, ErrNotFound) {
			return failure.ErrRequestNotFound
		}
		if err != nil {
			return err
		}
		t, err := s.trips.GetForUpdate(ctx, tx, tripID)
		if err != nil {
			return err
		}
		req, err := s.store.GetForUpdate(ctx, tx, cmd.RequestID)
		if err != nil {
			return err
		}
		if req.RiderID != cmd.RiderID {
			return failure.ErrUnauthorized
		}
		if t.Status != trip.StatusOngoing {
			return failure.Wrap(failure.ErrInvalidState, "trip is %s", t.Status)
		}
		if req.Status != from || !CanTransition(from, to) {
			return failure.Wrap(failure.ErrInvalidState, "request is %s", req.Status)
		}
		if d := geo.DistanceMeters(cmd.Position, target(req)); d > s.proximityM {
			return failure.Wrap(failure.ErrTooFar, "%.0fm away", d)
		}
		return s.store.SetStatus(ctx, tx, req.ID, to)
	})
	s.finish(op, logrus.Fields{"request_id": cmd.RequestID, "actor_id": cmd.RiderID}, err)
	if err == nil {
		typ := events.RequestOnboard
		if to == StatusDroppedOff {
			typ = events.RequestDroppedOff
		}
		s.events.Publish(ctx, events.Event{Type: typ, TripID: tripID, RequestID: cmd.RequestID, ActorID: cmd.RiderID, At: s.now().UTC()})
	}
	return err
}

func (s *Service) lockOwnedTrip(ctx context.Context, tx pgx.Tx, tripID, driverID types.ID) (*trip.Trip, error) {
	t, err := s.trips.GetForUpdate(ctx, tx, tripID)
	if errors.Is(err, trip.ErrNotFound) {
		return nil, failure.ErrTripNotFound
	}
	if err != nil {
		return nil, err
	}
	if t.DriverID != driverID {
		return nil, failure.ErrUnauthorized
	}
	return t, nil
}

// GetRideRequest returns a request to its rider or to the trip's driver.
// Anyone else sees request_not_found.
func (s *Service) GetRideRequest(ctx context.Context, id, viewerID types.ID) (*RideRequest, error) {
	req, err := s.store.Get(ctx, s.db, id)
	if errors.Is(err, ErrNotFound) {
		return nil, failure.ErrRequestNotFound
	}
	if err != nil {
		return nil, failure.FromDB("get request", err)
	}
	if req.RiderID == viewerID {
		return req, nil
	}
	t, err := s.trips.Get(ctx, s.db, req.TripID)
	if err != nil {
		return nil, failure.FromDB("get request trip", err)
	}
	if t.DriverID != viewerID {
		return nil, failure.ErrRequestNotFound
	}
	return req, nil
}

func (s *Service) ListByRider(ctx context.Context, riderID types.ID) ([]*RideRequest, error) {
	out, err := s.store.ListByRider(ctx, s.db, riderID)
	if err != nil {
		return nil, failure.FromDB("list rider requests", err)
	}
	return out, nil
}

// ListByTrip returns every request on a trip; only the trip's driver may ask.
func (s *Service) ListByTrip(ctx context.Context, tripID, driverID types.ID) ([]*RideRequest, error) {
	t, err := s.trips.Get(ctx, s.db, tripID)
	if errors.Is(err, trip.ErrNotFound) {
		return nil, failure.ErrTripNotFound
	}
	if err != nil {
		return nil, failure.FromDB("get trip", err)
	}
	if t.DriverID != driverID {
		return nil, failure.ErrUnauthorized
	}
	out, err := s.store.ListByTrip(ctx, s.db, tripID)
	if err != nil {
		return nil, failure.FromDB("list trip requests", err)
	}
	return out, nil
}

// finish records the booking metric for "book" and logs the outcome.
func (s *Service) finish(op string, fields logrus.Fields, err error) {
	if op == "book" {
		observability.BookingsTotal.WithLabelValues(
			observability.Outcome(string(failure.ReasonOf(err)), failure.IsTransient(err), err),
		).Inc()
	}
	s.logResult(op, fields, err)
}

func (s *Service) logResult(op string, fields logrus.Fields, err error) {
	entry := s.log.WithFields(fields).WithField("op", op)
	switch {
	case err == nil:
		entry.Debug("done")
	case failure.IsDomain(err):
		entry.WithField("reason", failure.ReasonOf(err)).Info("rejected")
	case failure.IsTransient(err):
		entry.WithError(err).Warn("transient failure")
	default:
		entry.WithError(err).Error("failed")
	}
}

func reversalOutcome(done bool, err error) string {
	switch {
	case err != nil && failure.IsTransient(err):
		return "transient"
	case err != nil:
		return "error"
	case done:
		return "ok"
	default:
		return "noop"
	}
}
