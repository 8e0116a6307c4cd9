// README: Trip store backed by PostgreSQL; locking reads are used by the booking engine.
package trip

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"

	"yatra/internal/infra"
	"yatra/internal/types"
)

var ErrNotFound = errors.New("trip not found")

type Store struct{}

func NewStore() *Store {
	return &Store{}
}

const tripColumns = `
	id, driver_id, route_id,
	from_lat, from_lng, to_lat, to_lng, from_address, to_address,
	travel_date, fare_per_seat, currency, total_seats, available_seats,
	description, status, cancelled_at, cancelled_reason, created_at, updated_at`

func scanTrip(row pgx.Row) (*Trip, error) {
	var t Trip
	err := row.Scan(
		&t.ID, &t.DriverID, &t.RouteID,
		&t.From.Lat, &t.From.Lng, &t.To.Lat, &t.To.Lng, &t.FromAddress, &t.ToAddress,
		&t.TravelDate, &t.FarePerSeat.Amount, &t.FarePerSeat.Currency, &t.TotalSeats, &t.AvailableSeats,
		&t.Description, &t.Status, &t.CancelledAt, &t.CancelledReason, &t.CreatedAt, &t.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func (s *Store) Create(ctx context.Context, q infra.DBTX, t *Trip) error {
	_, err := q.Exec(ctx, `
		INSERT INTO trips (
			id, driver_id, route_id,
			from_lat, from_lng, to_lat, to_lng, from_address, to_address,
			travel_date, fare_per_seat, currency, total_seats, available_seats,
			description, status, created_at, updated_at
		) VALUES (
			$1, $2, $3,
			$4, $5, $6, $7, $8, $9,
			$10, $11, $12, $13, $14,
			$15, $16, $17, $17
		)`,
		string(t.ID), string(t.DriverID), string(t.RouteID),
		t.From.Lat, t.From.Lng, t.To.Lat, t.To.Lng, t.FromAddress, t.ToAddress,
		t.TravelDate, t.FarePerSeat.Amount, t.FarePerSeat.Currency, t.TotalSeats, t.AvailableSeats,
		t.Description, string(t.Status), t.CreatedAt,
	)
	return err
}

func (s *Store) Get(ctx context.Context, q infra.DBTX, id types.ID) (*Trip, error) {
	return scanTrip(q.QueryRow(ctx, `SELECT `+tripColumns+` FROM trips WHERE id = $1`, string(id)))
}

// GetForUpdate loads the trip and holds its row lock until tx ends. Every
// mutation of a trip or its requests goes through this lock.
func (s *Store) GetForUpdate(ctx context.Context, tx pgx.Tx, id types.ID) (*Trip, error) {
	return scanTrip(tx.QueryRow(ctx, `SELECT `+tripColumns+` FROM trips WHERE id = $1 FOR UPDATE`, string(id)))
}

func (s *Store) ListUpcomingScheduled(ctx context.Context, q infra.DBTX, now time.Time, limit int) ([]*Trip, error) {
	return s.list(ctx, q, `
		SELECT `+tripColumns+`
		FROM trips
		WHERE status = 'scheduled' AND travel_date > $1
		ORDER BY travel_date ASC
		LIMIT $2`, now, limit)
}

func (s *Store) ListByDriver(ctx context.Context, q infra.DBTX, driverID types.ID) ([]*Trip, error) {
	return s.list(ctx, q, `
		SELECT `+tripColumns+`
		FROM trips
		WHERE driver_id = $1
		ORDER BY travel_date DESC`, string(driverID))
}

func (s *Store) list(ctx context.Context, q infra.DBTX, sql string, args ...any) ([]*Trip, error) {
	rows, err := q.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*Trip
	for rows.Next() {
		t, err := scanTrip(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// AdjustSeats adds delta to available_seats. The table CHECK keeps the
// counter inside [0, total_seats]; callers validate before calling.
func (s *Store) AdjustSeats(ctx context.Context, tx pgx.Tx, id types.ID, delta int) error {
	_, err := tx.Exec(ctx, `
		UPDATE trips SET available_seats = available_seats + $1, updated_at = NOW()
		WHERE id = $2`, delta, string(id))
	return err
}

func (s *Store) SetStatus(ctx context.Context, tx pgx.Tx, id types.ID, to Status) error {
	_, err := tx.Exec(ctx, `UPDATE trips SET status = $1, updated_at = NOW() WHERE id = $2`, string(to), string(id))
	return err
}

// Cancel marks the trip cancelled and restores every seat.
func (s *Store) Cancel(ctx context.Context, tx pgx.Tx, id types.ID, reason string, at time.Time) error {
	_, err := tx.Exec(ctx, `
		UPDATE trips
		SET status = 'cancelled',
		    available_seats = total_seats,
		    cancelled_at = $1,
		    cancelled_reason = NULLIF($2, ''),
		    updated_at = NOW()
		WHERE id = $3`, at, reason, string(id))
	return err
}

func (s *Store) HasOtherOngoing(ctx context.Context, tx pgx.Tx, driverID, exceptTripID types.ID) (bool, error) {
	var exists bool
	err := tx.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM trips
			WHERE driver_id = $1 AND status = 'ongoing' AND id <> $2
		)`, string(driverID), string(exceptTripID),
	).Scan(&exists)
	return exists, err
}

func (s *Store) DriverExists(ctx context.Context, q infra.DBTX, driverID types.ID) (bool, error) {
	var exists bool
	err := q.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM drivers WHERE user_id = $1)`, string(driverID)).Scan(&exists)
	return exists, err
}
