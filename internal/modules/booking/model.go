// README: Ride request aggregate and status definitions.
package booking

import (
	"time"

	"yatra/internal/types"
)

type Status string

const (
	StatusWaiting    Status = "waiting"
	StatusOnboard    Status = "onboard"
	StatusDroppedOff Status = "dropedoff"
	StatusCancelled  Status = "cancelled"
)

// RideRequest is a seat reservation on one trip. Pickup and Drop are the
// points the rider asked for; the OnRoute points are their projections onto
// the trip route and the fractions are their line-locate positions.
type RideRequest struct {
	ID              types.ID    `json:"id"`
	RiderID         types.ID    `json:"rider_id"`
	TripID          types.ID    `json:"trip_id"`
	Pickup          types.Point `json:"pickup"`
	Drop            types.Point `json:"drop"`
	PickupOnRoute   types.Point `json:"pickup_on_route"`
	DropOnRoute     types.Point `json:"drop_on_route"`
	PickupFraction  float64     `json:"pickup_fraction"`
	DropFraction    float64     `json:"drop_fraction"`
	PickupAddress   string      `json:"pickup_address"`
	DropAddress     string      `json:"drop_address"`
	Seats           int         `json:"seats"`
	TotalFare       types.Money `json:"total_fare"`
	Status          Status      `json:"status"`
	CancelledAt     *time.Time  `json:"cancelled_at,omitempty"`
	CancelledReason *string     `json:"cancelled_reason,omitempty"`
	CreatedAt       time.Time   `json:"created_at"`
	UpdatedAt       time.Time   `json:"updated_at"`
}

// AllowedTransitions represents the request state flow as code.
// onboard -> cancelled only happens through a trip cancellation cascade.
var AllowedTransitions = map[Status][]Status{
	StatusWaiting: {StatusOnboard, StatusCancelled},
	StatusOnboard: {StatusDroppedOff, StatusCancelled},
}

func CanTransition(from, to Status) bool {
	next, ok := AllowedTransitions[from]
	if !ok {
		return false
	}
	for _, s := range next {
		if s == to {
			return true
		}
	}
	return false
}

// Live reports whether the request still holds (or held) its seats.
func (r *RideRequest) Live() bool {
	return r.Status != StatusCancelled
}

const CompletedTripReason = "Trip completed"
