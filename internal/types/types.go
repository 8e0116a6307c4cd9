// README: Identifier and coordinate value objects shared by every module.
package types

import "github.com/google/uuid"

// ID is an opaque generated identifier (uuid text form).
type ID string

func NewID() ID {
	return ID(uuid.New().String())
}

// Point is a WGS84 coordinate.
type Point struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

func (p Point) Valid() bool {
	return p.Lat >= -90 && p.Lat <= 90 && p.Lng >= -180 && p.Lng <= 180
}
