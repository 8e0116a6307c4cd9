// README: Matching service finds candidate trips for a pickup/drop pair (read-only, non-authoritative).
package matching

import (
	"context"
	"sort"
	"time"

	"github.com/sirupsen/logrus"

	"yatra/internal/config"
	"yatra/internal/failure"
	"yatra/internal/geo"
	"yatra/internal/observability"
	"yatra/internal/types"
)

type TripSource interface {
	Prefilter(ctx context.Context, q Query, now time.Time, limit int) ([]Row, error)
}

type SearchCache interface {
	Get(ctx context.Context, q Query) ([]Candidate, bool, error)
	Set(ctx context.Context, q Query, candidates []Candidate, ttl time.Duration) error
}

type Service struct {
	source TripSource
	cache  SearchCache
	cfg    config.MatchingConfig
	log    logrus.FieldLogger
	now    func() time.Time
}

// NewService wires the engine. cache may be nil, which disables caching.
func NewService(source TripSource, cache SearchCache, cfg config.MatchingConfig, log logrus.FieldLogger) *Service {
	if log == nil {
		log = logrus.StandardLogger()
	}
	if cfg.SearchLimit <= 0 {
		cfg.SearchLimit = 200
	}
	return &Service{source: source, cache: cache, cfg: cfg, log: log, now: time.Now}
}

// FindCandidateTrips returns scheduled, future trips with free seats whose
// corridor contains both points and which pass the pickup before the drop,
// ordered by travel date.
func (s *Service) FindCandidateTrips(ctx context.Context, pickup, drop types.Point) ([]Candidate, error) {
	if geo.Validate(pickup) != nil || geo.Validate(drop) != nil {
		return nil, failure.Wrap(failure.ErrInvalidInput, "pickup and drop must be valid coordinates")
	}
	q := Query{Pickup: pickup, Drop: drop}

	if s.caching() {
		cached, ok, err := s.cache.Get(ctx, q)
		switch {
		case err != nil:
			observability.SearchCacheTotal.WithLabelValues("error").Inc()
			s.log.WithError(err).Warn("search cache get")
		case ok:
			observability.SearchCacheTotal.WithLabelValues("hit").Inc()
			return cached, nil
		default:
			observability.SearchCacheTotal.WithLabelValues("miss").Inc()
		}
	}

	rows, err := s.source.Prefilter(ctx, q, s.now(), s.cfg.SearchLimit)
	if err != nil {
		return nil, failure.FromDB("search trips", err)
	}
	candidates := Filter(rows, pickup, drop)

	if s.caching() {
		if err := s.cache.Set(ctx, q, candidates, s.cfg.SearchCacheTTL); err != nil {
			s.log.WithError(err).Warn("search cache set")
		}
	}
	return candidates, nil
}

func (s *Service) caching() bool {
	return s.cache != nil && s.cfg.SearchCacheTTL > 0
}

// Filter applies the exact corridor and ordering checks to prefiltered rows.
func Filter(rows []Row, pickup, drop types.Point) []Candidate {
	out := make([]Candidate, 0, len(rows))
	for _, row := range rows {
		pu, dr, ok, err := row.Route.Corridor().PlacePair(pickup, drop)
		if err != nil || !ok {
			continue
		}
		t := row.Trip
		out = append(out, Candidate{
			TripID:         t.ID,
			DriverID:       t.DriverID,
			DriverName:     row.DriverName,
			DriverRating:   row.DriverRating,
			DriverRatings:  row.DriverRatings,
			VehicleType:    row.VehicleType,
			VehicleNumber:  row.VehicleNumber,
			FromAddress:    t.FromAddress,
			ToAddress:      t.ToAddress,
			TravelDate:     t.TravelDate,
			FarePerSeat:    t.FarePerSeat,
			AvailableSeats: t.AvailableSeats,
			TotalSeats:     t.TotalSeats,
			PickupOnRoute:  pu.Snapped,
			DropOnRoute:    dr.Snapped,
			PickupFraction: pu.Fraction,
			DropFraction:   dr.Fraction,
			RideDistanceM:  (dr.Fraction - pu.Fraction) * row.Route.LengthM,
		})
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].TravelDate.Before(out[j].TravelDate)
	})
	return out
}
