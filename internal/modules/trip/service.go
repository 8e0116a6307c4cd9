// README: Trip service creates trips with their routes and serves read-only trip views.
package trip

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/sirupsen/logrus"

	"yatra/internal/events"
	"yatra/internal/failure"
	"yatra/internal/infra"
	"yatra/internal/modules/route"
	"yatra/internal/types"
)

const (
	defaultCurrency  = "NPR"
	maxListLimit     = 200
	defaultListLimit = 50
)

type Service struct {
	store  *Store
	routes *route.Service
	rstore *route.Store
	tx     *infra.TxRunner
	db     infra.DBTX
	events events.Publisher
	log    logrus.FieldLogger
	now    func() time.Time
}

type Deps struct {
	Store      *Store
	Routes     *route.Service
	RouteStore *route.Store
	Tx         *infra.TxRunner
	Events     events.Publisher
	Log        logrus.FieldLogger
	Now        func() time.Time
}

func NewService(d Deps) *Service {
	s := &Service{
		store:  d.Store,
		routes: d.Routes,
		rstore: d.RouteStore,
		tx:     d.Tx,
		events: d.Events,
		log:    d.Log,
		now:    d.Now,
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

type CreateCommand struct {
	DriverID    types.ID
	Path        []types.Point
	FromAddress string
	ToAddress   string
	TravelDate  time.Time
	FarePerSeat types.Money
	TotalSeats  int
	Description string
}

func (c CreateCommand) validate(now time.Time) error {
	switch {
	case c.DriverID == "":
		return failure.Wrap(failure.ErrInvalidInput, "driver id is required")
	case c.TotalSeats < 1:
		return failure.Wrap(failure.ErrInvalidInput, "total seats must be at least 1")
	case c.FarePerSeat.Amount < 0:
		return failure.Wrap(failure.ErrInvalidInput, "fare per seat must not be negative")
	case !c.TravelDate.After(now):
		return failure.Wrap(failure.ErrInvalidInput, "travel date must be in the future")
	}
	return nil
}

// CreateTrip persists the route and the trip in one transaction. Origin and
// destination are the route endpoints and every seat starts available.
func (s *Service) CreateTrip(ctx context.Context, cmd CreateCommand) (*Trip, error) {
	now := s.now()
	if err := cmd.validate(now); err != nil {
		return nil, err
	}
	r, err := s.routes.Build(cmd.Path)
	if err != nil {
		return nil, err
	}
	currency := strings.ToUpper(strings.TrimSpace(cmd.FarePerSeat.Currency))
	if currency == "" {
		currency = defaultCurrency
	}

	t := &Trip{
		ID:             types.NewID(),
		DriverID:       cmd.DriverID,
		RouteID:        r.ID,
		From:           r.Start,
		To:             r.End,
		FromAddress:    cmd.FromAddress,
		ToAddress:      cmd.ToAddress,
		TravelDate:     cmd.TravelDate.UTC(),
		FarePerSeat:    types.Money{Amount: cmd.FarePerSeat.Amount, Currency: currency},
		TotalSeats:     cmd.TotalSeats,
		AvailableSeats: cmd.TotalSeats,
		Description:    cmd.Description,
		Status:         StatusScheduled,
		CreatedAt:      now.UTC(),
		UpdatedAt:      now.UTC(),
	}

	err = s.tx.Run(ctx, "create trip", func(tx pgx.Tx) error {
		ok, err := s.store.DriverExists(ctx, tx, cmd.DriverID)
		if err != nil {
			return err
		}
		if !ok {
			return failure.Wrap(failure.ErrUnauthorized, "caller has no driver profile")
		}
		if err := s.rstore.Create(ctx, tx, r); err != nil {
			return err
		}
		return s.store.Create(ctx, tx, t)
	})
	if err != nil {
		return nil, err
	}

	s.log.WithFields(logrus.Fields{"trip_id": t.ID, "actor_id": t.DriverID}).Info("trip created")
	s.events.Publish(ctx, events.Event{Type: events.TripCreated, TripID: t.ID, ActorID: t.DriverID, Seats: t.TotalSeats, At: now})
	return t, nil
}

// GetTripSnapshot is a read-only view; it never takes locks.
func (s *Service) GetTripSnapshot(ctx context.Context, id types.ID) (*Trip, error) {
	t, err := s.store.Get(ctx, s.db, id)
	if errors.Is(err, ErrNotFound) {
		return nil, failure.ErrTripNotFound
	}
	if err != nil {
		return nil, failure.FromDB("get trip", err)
	}
	return t, nil
}

// GetRoute returns the trip's route polyline for display.
func (s *Service) GetRoute(ctx context.Context, t *Trip) (*route.Route, error) {
	r, err := s.rstore.Get(ctx, s.db, t.RouteID)
	if err != nil {
		return nil, failure.FromDB("get route", err)
	}
	return r, nil
}

func (s *Service) ListUpcomingScheduledTrips(ctx context.Context, limit int) ([]*Trip, error) {
	if limit <= 0 {
		limit = defaultListLimit
	}
	if limit > maxListLimit {
		limit = maxListLimit
	}
	trips, err := s.store.ListUpcomingScheduled(ctx, s.db, s.now(), limit)
	if err != nil {
		return nil, failure.FromDB("list upcoming trips", err)
	}
	return trips, nil
}

func (s *Service) ListByDriver(ctx context.Context, driverID types.ID) ([]*Trip, error) {
	trips, err := s.store.ListByDriver(ctx, s.db, driverID)
	if err != nil {
		return nil, failure.FromDB("list driver trips", err)
	}
	return trips, nil
}
