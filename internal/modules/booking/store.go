// README: Ride request store backed by PostgreSQL; mutating methods run inside the trip-locked transaction.
package booking

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"

	"yatra/internal/infra"
	"yatra/internal/types"
)

var ErrNotFound = errors.New("ride request not found")

type Store struct{}

func NewStore() *Store {
	return &Store{}
}

const requestColumns = `
	id, rider_id, trip_id,
	pickup_lat, pickup_lng, drop_lat, drop_lng,
	pickup_snap_lat, pickup_snap_lng, drop_snap_lat, drop_snap_lng,
	pickup_fraction, drop_fraction, pickup_address, drop_address,
	seats, total_fare, status, cancelled_at, cancelled_reason, created_at, updated_at`

// requestSelect joins the trip for the fare currency.
const requestSelect = `
	SELECT rr.id, rr.rider_id, rr.trip_id,
	       rr.pickup_lat, rr.pickup_lng, rr.drop_lat, rr.drop_lng,
	       rr.pickup_snap_lat, rr.pickup_snap_lng, rr.drop_snap_lat, rr.drop_snap_lng,
	       rr.pickup_fraction, rr.drop_fraction, rr.pickup_address, rr.drop_address,
	       rr.seats, rr.total_fare, t.currency, rr.status, rr.cancelled_at, rr.cancelled_reason,
	       rr.created_at, rr.updated_at
	FROM ride_requests rr
	JOIN trips t ON t.id = rr.trip_id`

func scanRequest(row pgx.Row) (*RideRequest, error) {
	var r RideRequest
	err := row.Scan(
		&r.ID, &r.RiderID, &r.TripID,
		&r.Pickup.Lat, &r.Pickup.Lng, &r.Drop.Lat, &r.Drop.Lng,
		&r.PickupOnRoute.Lat, &r.PickupOnRoute.Lng, &r.DropOnRoute.Lat, &r.DropOnRoute.Lng,
		&r.PickupFraction, &r.DropFraction, &r.PickupAddress, &r.DropAddress,
		&r.Seats, &r.TotalFare.Amount, &r.TotalFare.Currency, &r.Status, &r.CancelledAt, &r.CancelledReason,
		&r.CreatedAt, &r.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &r, nil
}

// EnsureRider creates the rider's account row on first booking. Identities
// come from the external auth layer; the row carries the rating aggregate.
func (s *Store) EnsureRider(ctx context.Context, tx pgx.Tx, riderID types.ID) error {
	_, err := tx.Exec(ctx, `INSERT INTO users (id) VALUES ($1) ON CONFLICT (id) DO NOTHING`, string(riderID))
	return err
}

func (s *Store) Insert(ctx context.Context, tx pgx.Tx, r *RideRequest) error {
	_, err := tx.Exec(ctx, `
		INSERT INTO ride_requests (`+requestColumns+`)
		VALUES (
			$1, $2, $3,
			$4, $5, $6, $7,
			$8, $9, $10, $11,
			$12, $13, $14, $15,
			$16, $17, $18, NULL, NULL, $19, $19
		)`,
		string(r.ID), string(r.RiderID), string(r.TripID),
		r.Pickup.Lat, r.Pickup.Lng, r.Drop.Lat, r.Drop.Lng,
		r.PickupOnRoute.Lat, r.PickupOnRoute.Lng, r.DropOnRoute.Lat, r.DropOnRoute.Lng,
		r.PickupFraction, r.DropFraction, r.PickupAddress, r.DropAddress,
		r.Seats, r.TotalFare.Amount, string(r.Status), r.CreatedAt,
	)
	return err
}

func (s *Store) Get(ctx context.Context, q infra.DBTX, id types.ID) (*RideRequest, error) {
	return scanRequest(q.QueryRow(ctx, requestSelect+` WHERE rr.id = $1`, string(id)))
}

// GetForUpdate locks the request row. Callers must already hold the trip lock.
func (s *Store) GetForUpdate(ctx context.Context, tx pgx.Tx, id types.ID) (*RideRequest, error) {
	return scanRequest(tx.QueryRow(ctx, requestSelect+` WHERE rr.id = $1 FOR UPDATE OF rr`, string(id)))
}

// TripOf returns the trip id of a request without locking anything.
func (s *Store) TripOf(ctx context.Context, q infra.DBTX, id types.ID) (types.ID, error) {
	var tripID types.ID
	err := q.QueryRow(ctx, `SELECT trip_id FROM ride_requests WHERE id = $1`, string(id)).Scan(&tripID)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", ErrNotFound
	}
	return tripID, err
}

func (s *Store) HasLive(ctx context.Context, tx pgx.Tx, riderID, tripID types.ID) (bool, error) {
	var exists bool
	err := tx.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM ride_requests
			WHERE rider_id = $1 AND trip_id = $2 AND status <> 'cancelled'
		)`, string(riderID), string(tripID),
	).Scan(&exists)
	return exists, err
}

func (s *Store) SetStatus(ctx context.Context, tx pgx.Tx, id types.ID, to Status) error {
	_, err := tx.Exec(ctx, `UPDATE ride_requests SET status = $1, updated_at = NOW() WHERE id = $2`, string(to), string(id))
	return err
}

func (s *Store) Cancel(ctx context.Context, tx pgx.Tx, id types.ID, reason string, at time.Time) error {
	_, err := tx.Exec(ctx, `
		UPDATE ride_requests
		SET status = 'cancelled', cancelled_at = $1, cancelled_reason = NULLIF($2, ''), updated_at = NOW()
		WHERE id = $3`, at, reason, string(id))
	return err
}

// CancelAllLive cancels every waiting or onboard request of a trip and
// returns how many rows changed.
func (s *Store) CancelAllLive(ctx context.Context, tx pgx.Tx, tripID types.ID, reason string, at time.Time) (int64, error) {
	tag, err := tx.Exec(ctx, `
		UPDATE ride_requests
		SET status = 'cancelled', cancelled_at = $1, cancelled_reason = NULLIF($2, ''), updated_at = NOW()
		WHERE trip_id = $3 AND status IN ('waiting', 'onboard')`, at, reason, string(tripID))
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

// SettleOnCompletion drops off onboard riders and cancels riders who never
// boarded. Seats are not touched.
func (s *Store) SettleOnCompletion(ctx context.Context, tx pgx.Tx, tripID types.ID, at time.Time) error {
	_, err := tx.Exec(ctx, `
		UPDATE ride_requests
		SET status = CASE WHEN status = 'onboard' THEN 'dropedoff' ELSE 'cancelled' END,
		    cancelled_at = CASE WHEN status = 'waiting' THEN $1 ELSE cancelled_at END,
		    cancelled_reason = CASE WHEN status = 'waiting' THEN $2 ELSE cancelled_reason END,
		    updated_at = NOW()
		WHERE trip_id = $3 AND status IN ('waiting', 'onboard')`, at, CompletedTripReason, string(tripID))
	return err
}

func (s *Store) ListByRider(ctx context.Context, q infra.DBTX, riderID types.ID) ([]*RideRequest, error) {
	return s.list(ctx, q, requestSelect+` WHERE rr.rider_id = $1 ORDER BY rr.created_at DESC`, string(riderID))
}

func (s *Store) ListByTrip(ctx context.Context, q infra.DBTX, tripID types.ID) ([]*RideRequest, error) {
	return s.list(ctx, q, requestSelect+` WHERE rr.trip_id = $1 ORDER BY rr.created_at ASC`, string(tripID))
}

func (s *Store) list(ctx context.Context, q infra.DBTX, sql string, args ...any) ([]*RideRequest, error) {
	rows, err := q.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*RideRequest
	for rows.Next() {
		r, err := scanRequest(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}
