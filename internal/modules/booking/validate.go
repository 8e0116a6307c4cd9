package booking

import (
	"time"

	"yatra/internal/failure"
	"yatra/internal/geo"
	"yatra/internal/modules/route"
	"yatra/internal/modules/trip"
	"yatra/internal/types"
)

// admission is the outcome of a successful booking check.
type admission struct {
	pickup geo.Placement
	drop   geo.Placement
}

// checkBookable runs every booking precondition that only needs the locked
// trip and its route, in fixed precedence:
// trip_not_found, trip_not_scheduled, trip_departed, own_trip,
// not_enough_seats, route_mismatch. The first failing check wins.
// duplicate_request is checked by the caller afterwards.
func checkBookable(t *trip.Trip, r *route.Route, riderID types.ID, seats int, pickup, drop types.Point, now time.Time) (admission, error) {
	if t == nil || r == nil {
		return admission{}, failure.ErrTripNotFound
	}
	if t.Status != trip.StatusScheduled {
		return admission{}, failure.ErrTripNotScheduled
	}
	if t.Departed(now) {
		return admission{}, failure.ErrTripDeparted
	}
	if t.DriverID == riderID {
		return admission{}, failure.ErrOwnTrip
	}
	if t.AvailableSeats < seats {
		return admission{}, failure.ErrNotEnoughSeats
	}
	pu, dr, ok, err := r.Corridor().PlacePair(pickup, drop)
	if err != nil || !ok {
		return admission{}, failure.ErrRouteMismatch
	}
	return admission{pickup: pu, drop: dr}, nil
}
