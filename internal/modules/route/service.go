// README: Route service validates a polyline and derives corridor data once at creation.
package route

import (
	"context"
	"errors"
	"time"

	"yatra/internal/failure"
	"yatra/internal/geo"
	"yatra/internal/infra"
	"yatra/internal/types"
)

var ErrNotFound = errors.New("route not found")

type Service struct {
	store     *Store
	db        infra.DBTX
	corridorM float64
}

func NewService(store *Store, db infra.DBTX, corridorM float64) *Service {
	return &Service{store: store, db: db, corridorM: corridorM}
}

// Build validates path and computes the immutable route record. The path is
// quantized to polyline precision first so the stored geometry and the
// derived bbox agree exactly.
func (s *Service) Build(path []types.Point) (*Route, error) {
	if err := geo.ValidatePath(path); err != nil {
		return nil, failure.Wrap(failure.ErrInvalidInput, "route: %v", err)
	}
	quantized, err := geo.DecodePath(geo.EncodePath(path))
	if err != nil {
		return nil, err
	}
	length := geo.PathLength(quantized)
	if length == 0 {
		return nil, failure.Wrap(failure.ErrInvalidInput, "route: path has no length")
	}
	corridor, err := geo.NewCorridor(quantized, s.corridorM)
	if err != nil {
		return nil, failure.Wrap(failure.ErrInvalidInput, "route: %v", err)
	}
	return &Route{
		ID:        types.NewID(),
		Path:      quantized,
		CorridorM: s.corridorM,
		Bounds:    corridor.Bounds,
		Start:     quantized[0],
		End:       quantized[len(quantized)-1],
		LengthM:   length,
		CreatedAt: time.Now().UTC(),
	}, nil
}

// CreateRoute persists a standalone route and returns its id.
func (s *Service) CreateRoute(ctx context.Context, path []types.Point) (types.ID, error) {
	r, err := s.Build(path)
	if err != nil {
		return "", err
	}
	if err := s.store.Create(ctx, s.db, r); err != nil {
		return "", failure.FromDB("create route", err)
	}
	return r.ID, nil
}

func (s *Service) Get(ctx context.Context, id types.ID) (*Route, error) {
	return s.store.Get(ctx, s.db, id)
}
