// README: Route store backed by PostgreSQL; the path is kept as an encoded polyline.
package route

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"

	"yatra/internal/geo"
	"yatra/internal/infra"
	"yatra/internal/types"
)

// Store methods take the querier explicitly so trip creation can insert the
// route in the same transaction as the trip.
type Store struct{}

func NewStore() *Store {
	return &Store{}
}

func (s *Store) Create(ctx context.Context, q infra.DBTX, r *Route) error {
	_, err := q.Exec(ctx, `
		INSERT INTO routes (
			id, polyline, corridor_m,
			min_lat, min_lng, max_lat, max_lng,
			start_lat, start_lng, end_lat, end_lng,
			length_m, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`,
		string(r.ID), geo.EncodePath(r.Path), r.CorridorM,
		r.Bounds.MinLat, r.Bounds.MinLng, r.Bounds.MaxLat, r.Bounds.MaxLng,
		r.Start.Lat, r.Start.Lng, r.End.Lat, r.End.Lng,
		r.LengthM, r.CreatedAt,
	)
	return err
}

func (s *Store) Get(ctx context.Context, q infra.DBTX, id types.ID) (*Route, error) {
	row := q.QueryRow(ctx, `
		SELECT id, polyline, corridor_m,
		       min_lat, min_lng, max_lat, max_lng,
		       start_lat, start_lng, end_lat, end_lng,
		       length_m, created_at
		FROM routes
		WHERE id = $1`, string(id),
	)

	var r Route
	var encoded string
	err := row.Scan(
		&r.ID, &encoded, &r.CorridorM,
		&r.Bounds.MinLat, &r.Bounds.MinLng, &r.Bounds.MaxLat, &r.Bounds.MaxLng,
		&r.Start.Lat, &r.Start.Lng, &r.End.Lat, &r.End.Lng,
		&r.LengthM, &r.CreatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if r.Path, err = geo.DecodePath(encoded); err != nil {
		return nil, err
	}
	return &r, nil
}
