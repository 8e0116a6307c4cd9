// README: Trip aggregate and status definitions.
package trip

import (
	"time"

	"yatra/internal/types"
)

type Status string

const (
	StatusScheduled Status = "scheduled"
	StatusOngoing   Status = "ongoing"
	StatusCompleted Status = "completed"
	StatusCancelled Status = "cancelled"
)

type Trip struct {
	ID              types.ID    `json:"id"`
	DriverID        types.ID    `json:"driver_id"`
	RouteID         types.ID    `json:"route_id"`
	From            types.Point `json:"from"`
	To              types.Point `json:"to"`
	FromAddress     string      `json:"from_address"`
	ToAddress       string      `json:"to_address"`
	TravelDate      time.Time   `json:"travel_date"`
	FarePerSeat     types.Money `json:"fare_per_seat"`
	TotalSeats      int         `json:"total_seats"`
	AvailableSeats  int         `json:"available_seats"`
	Description     string      `json:"description"`
	Status          Status      `json:"status"`
	CancelledAt     *time.Time  `json:"cancelled_at,omitempty"`
	CancelledReason *string     `json:"cancelled_reason,omitempty"`
	CreatedAt       time.Time   `json:"created_at"`
	UpdatedAt       time.Time   `json:"updated_at"`
}

// Departed reports whether the trip's departure time is not after now.
func (t *Trip) Departed(now time.Time) bool {
	return !t.TravelDate.After(now)
}

// AllowedTransitions represents the trip state flow as code.
var AllowedTransitions = map[Status][]Status{
	StatusScheduled: {StatusOngoing, StatusCancelled},
	StatusOngoing:   {StatusCompleted},
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
