// README: Matching stores: Postgres bbox prefilter and the Redis search cache.
package matching

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"yatra/internal/geo"
	"yatra/internal/infra"
	"yatra/internal/modules/route"
	"yatra/internal/modules/trip"
)

// Store runs the coarse SQL filter: bookable trips whose expanded route
// bbox contains both points. The exact corridor test runs in Go afterwards.
type Store struct {
	db infra.DBTX
}

func NewStore(db infra.DBTX) *Store {
	return &Store{db: db}
}

func (s *Store) Prefilter(ctx context.Context, q Query, now time.Time, limit int) ([]Row, error) {
	rows, err := s.db.Query(ctx, `
		SELECT t.id, t.driver_id, t.route_id,
		       t.from_lat, t.from_lng, t.to_lat, t.to_lng, t.from_address, t.to_address,
		       t.travel_date, t.fare_per_seat, t.currency, t.total_seats, t.available_seats,
		       t.description, t.status,
		       r.polyline, r.corridor_m, r.min_lat, r.min_lng, r.max_lat, r.max_lng, r.length_m,
		       u.name, d.avg_rating, d.total_ratings, d.vehicle_type, d.vehicle_number
		FROM trips t
		JOIN routes r ON r.id = t.route_id
		JOIN drivers d ON d.user_id = t.driver_id
		JOIN users u ON u.id = d.user_id
		WHERE t.status = 'scheduled'
		  AND t.available_seats > 0
		  AND t.travel_date > $1
		  AND $2 BETWEEN r.min_lat AND r.max_lat AND $3 BETWEEN r.min_lng AND r.max_lng
		  AND $4 BETWEEN r.min_lat AND r.max_lat AND $5 BETWEEN r.min_lng AND r.max_lng
		ORDER BY t.travel_date ASC
		LIMIT $6`,
		now, q.Pickup.Lat, q.Pickup.Lng, q.Drop.Lat, q.Drop.Lng, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Row
	for rows.Next() {
		var t trip.Trip
		var r route.Route
		var encoded string
		row := Row{Trip: &t, Route: &r}
		if err := rows.Scan(
			&t.ID, &t.DriverID, &t.RouteID,
			&t.From.Lat, &t.From.Lng, &t.To.Lat, &t.To.Lng, &t.FromAddress, &t.ToAddress,
			&t.TravelDate, &t.FarePerSeat.Amount, &t.FarePerSeat.Currency, &t.TotalSeats, &t.AvailableSeats,
			&t.Description, &t.Status,
			&encoded, &r.CorridorM, &r.Bounds.MinLat, &r.Bounds.MinLng, &r.Bounds.MaxLat, &r.Bounds.MaxLng, &r.LengthM,
			&row.DriverName, &row.DriverRating, &row.DriverRatings, &row.VehicleType, &row.VehicleNumber,
		); err != nil {
			return nil, err
		}
		r.ID = t.RouteID
		if r.Path, err = geo.DecodePath(encoded); err != nil {
			return nil, fmt.Errorf("decode route %s: %w", r.ID, err)
		}
		r.Start, r.End = r.Path[0], r.Path[len(r.Path)-1]
		out = append(out, row)
	}
	return out, rows.Err()
}

const searchKeyPrefix = "matching:search:"

// Cache keeps search results in Redis for a short TTL. Keys round both points
// to 1e-4 degrees (about 11 m).
type Cache struct {
	redis *redis.Client
}

func NewCache(redis *redis.Client) *Cache {
	return &Cache{redis: redis}
}

func (c *Cache) Get(ctx context.Context, q Query) ([]Candidate, bool, error) {
	val, err := c.redis.Get(ctx, searchKey(q)).Bytes()
	if err == redis.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	var out []Candidate
	if err := json.Unmarshal(val, &out); err != nil {
		return nil, false, err
	}
	return out, true, nil
}

func (c *Cache) Set(ctx context.Context, q Query, candidates []Candidate, ttl time.Duration) error {
	b, err := json.Marshal(candidates)
	if err != nil {
		return err
	}
	return c.redis.Set(ctx, searchKey(q), b, ttl).Err()
}

func searchKey(q Query) string {
	return fmt.Sprintf("%s%.4f,%.4f:%.4f,%.4f", searchKeyPrefix, q.Pickup.Lat, q.Pickup.Lng, q.Drop.Lat, q.Drop.Lng)
}
