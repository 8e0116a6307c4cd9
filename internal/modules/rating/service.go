// README: Rating service: one rating per request and direction, aggregate updated in the same transaction.
package rating

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/sirupsen/logrus"

	"yatra/internal/events"
	"yatra/internal/failure"
	"yatra/internal/infra"
	"yatra/internal/modules/booking"
	"yatra/internal/modules/trip"
	"yatra/internal/observability"
	"yatra/internal/types"
)

type Service struct {
	store    *Store
	trips    *trip.Store
	requests *booking.Store
	tx       *infra.TxRunner
	db       infra.DBTX
	events   events.Publisher
	log      logrus.FieldLogger
	now      func() time.Time
}

type Deps struct {
	Store    *Store
	Trips    *trip.Store
	Requests *booking.Store
	Tx       *infra.TxRunner
	Events   events.Publisher
	Log      logrus.FieldLogger
	Now      func() time.Time
}

func NewService(d Deps) *Service {
	s := &Service{
		store:    d.Store,
		trips:    d.Trips,
		requests: d.Requests,
		tx:       d.Tx,
		events:   d.Events,
		log:      d.Log,
		now:      d.Now,
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
	return s
}

type SubmitCommand struct {
	RequestID types.ID
	ActorID   types.ID
	Direction Direction
	Score     int
	Comment   string
}

// SubmitRating records a rating for a dropped-off request on a completed trip
// and folds the score into the ratee's running average. A second rating for
// the same request and direction fails with already_rated.
func (s *Service) SubmitRating(ctx context.Context, cmd SubmitCommand) error {
	err := s.submit(ctx, cmd)

	observability.RatingsTotal.WithLabelValues(
		observability.Outcome(string(failure.ReasonOf(err)), failure.IsTransient(err), err),
	).Inc()
	entry := s.log.WithFields(logrus.Fields{
		"op": "rate", "request_id": cmd.RequestID, "actor_id": cmd.ActorID, "direction": cmd.Direction,
	})
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
	return err
}

func (s *Service) submit(ctx context.Context, cmd SubmitCommand) error {
	if !ValidScore(cmd.Score) {
		return failure.ErrInvalidScore
	}
	if !cmd.Direction.Valid() {
		return failure.Wrap(failure.ErrInvalidInput, "unknown direction %q", cmd.Direction)
	}

	at := s.now().UTC()
	var tripID types.ID
	err := s.tx.Run(ctx, "rate", func(tx pgx.Tx) error {
		var err error
		tripID, err = s.requests.TripOf(ctx, tx, cmd.RequestID)
		if errors.Is(err, booking.ErrNotFound) {
			return failure.ErrRequestNotFound
		}
		if err != nil {
			return err
		}
		t, err := s.trips.GetForUpdate(ctx, tx, tripID)
		if err != nil {
			return err
		}
		req, err := s.requests.GetForUpdate(ctx, tx, cmd.RequestID)
		if err != nil {
			return err
		}
		if t.Status != trip.StatusCompleted {
			return failure.Wrap(failure.ErrInvalidState, "trip is %s", t.Status)
		}
		if req.Status != booking.StatusDroppedOff {
			return failure.Wrap(failure.ErrInvalidState, "request is %s", req.Status)
		}

		rater, ratee := req.RiderID, t.DriverID
		if cmd.Direction == DriverToRider {
			rater, ratee = t.DriverID, req.RiderID
		}
		if cmd.ActorID != rater {
			return failure.ErrUnauthorized
		}

		inserted, err := s.store.Insert(ctx, tx, &Rating{
			ID:        types.NewID(),
			RequestID: req.ID,
			Direction: cmd.Direction,
			RaterID:   rater,
			RateeID:   ratee,
			Score:     cmd.Score,
			Comment:   cmd.Comment,
			CreatedAt: at,
		})
		if err != nil {
			return err
		}
		if !inserted {
			return failure.ErrAlreadyRated
		}

		agg, err := s.store.LockAggregate(ctx, tx, cmd.Direction.Ratee(), ratee)
		if err != nil {
			return err
		}
		return s.store.SaveAggregate(ctx, tx, agg.Add(cmd.Score))
	})
	if err != nil {
		return err
	}
	s.events.Publish(ctx, events.Event{
		Type: events.RatingSubmitted, TripID: tripID, RequestID: cmd.RequestID, ActorID: cmd.ActorID,
		Reason: string(cmd.Direction), At: at,
	})
	return nil
}

// Aggregate returns the current average and count for a rider or driver.
func (s *Service) Aggregate(ctx context.Context, party Party, id types.ID) (Aggregate, error) {
	if !party.Valid() {
		return Aggregate{}, failure.Wrap(failure.ErrInvalidInput, "unknown party %q", party)
	}
	agg, err := s.store.GetAggregate(ctx, s.db, party, id)
	if errors.Is(err, ErrNoAggregate) {
		return Aggregate{}, failure.Wrap(failure.ErrInvalidInput, "no %s %s", party, id)
	}
	if err != nil {
		return Aggregate{}, failure.FromDB("get aggregate", err)
	}
	return agg, nil
}

// ListByRequest returns the ratings left on a request. Only the rider and the
// trip's driver can see them; anyone else gets request_not_found.
func (s *Service) ListByRequest(ctx context.Context, requestID, viewerID types.ID) ([]*Rating, error) {
	req, err := s.requests.Get(ctx, s.db, requestID)
	if errors.Is(err, booking.ErrNotFound) {
		return nil, failure.ErrRequestNotFound
	}
	if err != nil {
		return nil, failure.FromDB("get request", err)
	}
	if req.RiderID != viewerID {
		t, err := s.trips.Get(ctx, s.db, req.TripID)
		if err != nil {
			return nil, failure.FromDB("get request trip", err)
		}
		if t.DriverID != viewerID {
			return nil, failure.ErrRequestNotFound
		}
	}
	out, err := s.store.ListByRequest(ctx, s.db, requestID)
	if err != nil {
		return nil, failure.FromDB("list ratings", err)
	}
	return out, nil
}
