// README: Search candidates returned by the matching engine.
package matching

import (
	"time"

	"yatra/internal/modules/route"
	"yatra/internal/modules/trip"
	"yatra/internal/types"
)

// Candidate is a scheduled trip whose corridor contains both the pickup and
// the drop, with pickup strictly before drop along the route. Candidates are
// advisory; the booking transaction re-checks everything under the trip lock.
type Candidate struct {
	TripID         types.ID    `json:"trip_id"`
	DriverID       types.ID    `json:"driver_id"`
	DriverName     string      `json:"driver_name"`
	DriverRating   float64     `json:"driver_rating"`
	DriverRatings  int         `json:"driver_total_ratings"`
	VehicleType    string      `json:"vehicle_type"`
	VehicleNumber  string      `json:"vehicle_number"`
	FromAddress    string      `json:"from_address"`
	ToAddress      string      `json:"to_address"`
	TravelDate     time.Time   `json:"travel_date"`
	FarePerSeat    types.Money `json:"fare_per_seat"`
	AvailableSeats int         `json:"available_seats"`
	TotalSeats     int         `json:"total_seats"`
	PickupOnRoute  types.Point `json:"pickup_on_route"`
	DropOnRoute    types.Point `json:"drop_on_route"`
	PickupFraction float64     `json:"pickup_fraction"`
	DropFraction   float64     `json:"drop_fraction"`
	RideDistanceM  float64     `json:"ride_distance_m"`
}

// Row is one prefiltered trip with the data needed for the exact corridor check.
type Row struct {
	Trip          *trip.Trip
	Route         *route.Route
	DriverName    string
	DriverRating  float64
	DriverRatings int
	VehicleType   string
	VehicleNumber string
}

type Query struct {
	Pickup types.Point
	Drop   types.Point
}
