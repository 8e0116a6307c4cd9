// Package geo holds the pure spatial primitives used by matching and booking:
// great-circle distance, projection of a point onto a route polyline,
// line-locate fractions and the route corridor test.
//
// Projection works in a local equirectangular frame centred on the query
// point. At corridor scale (hundreds of metres) and for segments shorter than
// a few tens of kilometres the error stays well below a metre, which is the
// precision the corridor and ordering checks need. Antimeridian and polar
// paths are not handled.
package geo

import (
	"errors"
	"math"

	"yatra/internal/types"
)

const (
	earthRadiusKm = 6371.0
	earthRadiusM  = earthRadiusKm * 1000
	metersPerDeg  = earthRadiusM * math.Pi / 180
)

var (
	ErrEmptyPath    = errors.New("geo: path has no points")
	ErrShortPath    = errors.New("geo: path needs at least 2 points")
	ErrInvalidPoint = errors.New("geo: latitude must be [-90, 90], longitude must be [-180, 180]")
)

// Distance returns the great-circle distance in kilometres between two points.
func Distance(a, b types.Point) float64 {
	dLat := degreesToRadians(b.Lat - a.Lat)
	dLng := degreesToRadians(b.Lng - a.Lng)

	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(degreesToRadians(a.Lat))*math.Cos(degreesToRadians(b.Lat))*math.Sin(dLng/2)*math.Sin(dLng/2)
	return 2 * earthRadiusKm * math.Asin(math.Min(1, math.Sqrt(h)))
}

// DistanceMeters is Distance in metres.
func DistanceMeters(a, b types.Point) float64 {
	return Distance(a, b) * 1000
}

// PathLength returns the length of the polyline in metres.
func PathLength(path []types.Point) float64 {
	total := 0.0
	for i := 0; i+1 < len(path); i++ {
		total += DistanceMeters(path[i], path[i+1])
	}
	return total
}

func Validate(p types.Point) error {
	if !p.Valid() || math.IsNaN(p.Lat) || math.IsNaN(p.Lng) {
		return ErrInvalidPoint
	}
	return nil
}

// ValidatePath checks that path is a usable route polyline.
func ValidatePath(path []types.Point) error {
	if len(path) == 0 {
		return ErrEmptyPath
	}
	if len(path) < 2 {
		return ErrShortPath
	}
	for _, p := range path {
		if err := Validate(p); err != nil {
			return err
		}
	}
	return nil
}

// projection is the nearest point of a path to some query point.
type projection struct {
	segment int
	t       float64
	point   types.Point
	dist    float64 // metres from the query point
}

// frame is a local planar approximation centred on origin.
type frame struct {
	origin types.Point
	kx, ky float64
}

func newFrame(origin types.Point) frame {
	return frame{
		origin: origin,
		kx:     metersPerDeg * math.Cos(degreesToRadians(origin.Lat)),
		ky:     metersPerDeg,
	}
}

func (f frame) xy(p types.Point) (float64, float64) {
	return (p.Lng - f.origin.Lng) * f.kx, (p.Lat - f.origin.Lat) * f.ky
}

func (f frame) point(x, y float64) types.Point {
	p := types.Point{Lat: f.origin.Lat + y/f.ky}
	if f.kx == 0 {
		p.Lng = f.origin.Lng
	} else {
		p.Lng = f.origin.Lng + x/f.kx
	}
	return p
}

func project(path []types.Point, p types.Point) (projection, error) {
	if len(path) == 0 {
		return projection{}, ErrEmptyPath
	}
	if err := Validate(p); err != nil {
		return projection{}, err
	}
	if len(path) == 1 {
		return projection{point: path[0], dist: DistanceMeters(p, path[0])}, nil
	}

	f := newFrame(p)
	best := projection{dist: math.Inf(1)}
	for i := 0; i+1 < len(path); i++ {
		ax, ay := f.xy(path[i])
		bx, by := f.xy(path[i+1])
		dx, dy := bx-ax, by-ay

		t := 0.0
		if seg := dx*dx + dy*dy; seg > 0 {
			t = clamp((-ax*dx-ay*dy)/seg, 0, 1)
		}
		x, y := ax+t*dx, ay+t*dy
		// strict comparison keeps the earliest segment on ties (self-touching paths)
		if d := math.Hypot(x, y); d < best.dist {
			best = projection{segment: i, t: t, point: f.point(x, y), dist: d}
		}
	}
	return best, nil
}

// ClosestPointOnPath snaps p onto the nearest segment of path.
func ClosestPointOnPath(path []types.Point, p types.Point) (types.Point, error) {
	proj, err := project(path, p)
	if err != nil {
		return types.Point{}, err
	}
	return proj.point, nil
}

// DistanceToPath returns the distance in metres from p to the nearest point of path.
func DistanceToPath(path []types.Point, p types.Point) (float64, error) {
	proj, err := project(path, p)
	if err != nil {
		return 0, err
	}
	return proj.dist, nil
}

// LineLocate returns the position of p's projection along path as a fraction
// of the path length: 0 at the first point, 1 at the last.
func LineLocate(path []types.Point, p types.Point) (float64, error) {
	proj, err := project(path, p)
	if err != nil {
		return 0, err
	}
	return locate(path, proj), nil
}

func locate(path []types.Point, proj projection) float64 {
	total := PathLength(path)
	if total == 0 {
		return 0
	}
	along := 0.0
	for i := 0; i < proj.segment; i++ {
		along += DistanceMeters(path[i], path[i+1])
	}
	if proj.segment+1 < len(path) {
		along += proj.t * DistanceMeters(path[proj.segment], path[proj.segment+1])
	}
	return clamp(along/total, 0, 1)
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}

func degreesToRadians(deg float64) float64 {
	return deg * math.Pi / 180.0
}
