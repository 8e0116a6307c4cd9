// README: Rating records and the running-average aggregate of a rated party.
package rating

import (
	"time"

	"yatra/internal/types"
)

type Direction string

const (
	RiderToDriver Direction = "rider_to_driver"
	DriverToRider Direction = "driver_to_rider"
)

func (d Direction) Valid() bool {
	return d == RiderToDriver || d == DriverToRider
}

// Party selects which aggregate row a rating updates.
type Party string

const (
	PartyRider  Party = "rider"
	PartyDriver Party = "driver"
)

func (p Party) Valid() bool {
	return p == PartyRider || p == PartyDriver
}

// Ratee returns the party rated in this direction.
func (d Direction) Ratee() Party {
	if d == RiderToDriver {
		return PartyDriver
	}
	return PartyRider
}

type Rating struct {
	ID        types.ID  `json:"id"`
	RequestID types.ID  `json:"request_id"`
	Direction Direction `json:"direction"`
	RaterID   types.ID  `json:"rater_id"`
	RateeID   types.ID  `json:"ratee_id"`
	Score     int       `json:"score"`
	Comment   string    `json:"comment,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

type Aggregate struct {
	Party   Party    `json:"party"`
	ID      types.ID `json:"id"`
	Average float64  `json:"avg_rating"`
	Count   int      `json:"total_ratings"`
}

// Add folds one score into the running average.
func (a Aggregate) Add(score int) Aggregate {
	a.Average = (a.Average*float64(a.Count) + float64(score)) / float64(a.Count+1)
	a.Count++
	return a
}

func ValidScore(score int) bool {
	return score >= 1 && score <= 5
}
