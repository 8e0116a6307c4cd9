// README: Immutable route geometry owned by a trip.
package route

import (
	"time"

	"yatra/internal/geo"
	"yatra/internal/types"
)

// Route is a driving polyline plus the derived data the matching and booking
// engines need: corridor radius, expanded bbox, endpoints and length.
type Route struct {
	ID        types.ID      `json:"id"`
	Path      []types.Point `json:"path"`
	CorridorM float64       `json:"corridor_m"`
	Bounds    geo.BBox      `json:"bounds"`
	Start     types.Point   `json:"start"`
	End       types.Point   `json:"end"`
	LengthM   float64       `json:"length_m"`
	CreatedAt time.Time     `json:"created_at"`
}

func (r *Route) Corridor() geo.Corridor {
	return geo.Corridor{Path: r.Path, RadiusM: r.CorridorM, Bounds: r.Bounds}
}
