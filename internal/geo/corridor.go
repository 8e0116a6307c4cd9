package geo

import (
	"math"

	"github.com/twpayne/go-polyline"

	"yatra/internal/types"
)

// BBox is an axis-aligned lat/lng box.
type BBox struct {
	MinLat float64 `json:"min_lat"`
	MinLng float64 `json:"min_lng"`
	MaxLat float64 `json:"max_lat"`
	MaxLng float64 `json:"max_lng"`
}

// BoundsOf returns the bounding box of path. The zero box is returned for an empty path.
func BoundsOf(path []types.Point) BBox {
	if len(path) == 0 {
		return BBox{}
	}
	b := BBox{MinLat: path[0].Lat, MaxLat: path[0].Lat, MinLng: path[0].Lng, MaxLng: path[0].Lng}
	for _, p := range path[1:] {
		b.MinLat = math.Min(b.MinLat, p.Lat)
		b.MaxLat = math.Max(b.MaxLat, p.Lat)
		b.MinLng = math.Min(b.MinLng, p.Lng)
		b.MaxLng = math.Max(b.MaxLng, p.Lng)
	}
	return b
}

// Expand grows the box by meters on every side.
func (b BBox) Expand(meters float64) BBox {
	dLat := meters / metersPerDeg
	maxAbsLat := math.Min(89, math.Max(math.Abs(b.MinLat), math.Abs(b.MaxLat))+dLat)
	dLng := meters / (metersPerDeg * math.Cos(degreesToRadians(maxAbsLat)))
	return BBox{
		MinLat: b.MinLat - dLat,
		MinLng: b.MinLng - dLng,
		MaxLat: b.MaxLat + dLat,
		MaxLng: b.MaxLng + dLng,
	}
}

func (b BBox) Contains(p types.Point) bool {
	return p.Lat >= b.MinLat && p.Lat <= b.MaxLat && p.Lng >= b.MinLng && p.Lng <= b.MaxLng
}

// Corridor is the buffer of RadiusM metres around a route polyline.
// Bounds is the path bounding box already expanded by the radius.
type Corridor struct {
	Path    []types.Point
	RadiusM float64
	Bounds  BBox
}

func NewCorridor(path []types.Point, radiusM float64) (Corridor, error) {
	if err := ValidatePath(path); err != nil {
		return Corridor{}, err
	}
	return Corridor{Path: path, RadiusM: radiusM, Bounds: BoundsOf(path).Expand(radiusM)}, nil
}

// Contains reports whether p lies inside the corridor.
func (c Corridor) Contains(p types.Point) bool {
	if Validate(p) != nil || !c.Bounds.Contains(p) {
		return false
	}
	d, err := DistanceToPath(c.Path, p)
	return err == nil && d <= c.RadiusM
}

// Placement is a point snapped onto a corridor's path.
type Placement struct {
	Raw      types.Point `json:"raw"`
	Snapped  types.Point `json:"snapped"`
	Fraction float64     `json:"fraction"`
	OffsetM  float64     `json:"offset_m"`
	Inside   bool        `json:"inside"`
}

// Place snaps p onto the path and reports its line-locate fraction and
// whether it is inside the corridor.
func (c Corridor) Place(p types.Point) (Placement, error) {
	proj, err := project(c.Path, p)
	if err != nil {
		return Placement{}, err
	}
	return Placement{
		Raw:      p,
		Snapped:  proj.point,
		Fraction: locate(c.Path, proj),
		OffsetM:  proj.dist,
		Inside:   c.Bounds.Contains(p) && proj.dist <= c.RadiusM,
	}, nil
}

// PlacePair places pickup and drop and reports whether the pair is a valid
// ride along the corridor: both inside and pickup strictly before drop.
func (c Corridor) PlacePair(pickup, drop types.Point) (Placement, Placement, bool, error) {
	pu, err := c.Place(pickup)
	if err != nil {
		return Placement{}, Placement{}, false, err
	}
	dr, err := c.Place(drop)
	if err != nil {
		return Placement{}, Placement{}, false, err
	}
	return pu, dr, pu.Inside && dr.Inside && pu.Fraction < dr.Fraction, nil
}

// EncodePath encodes path as a Google encoded polyline (1e-5 precision).
func EncodePath(path []types.Point) string {
	coords := make([][]float64, len(path))
	for i, p := range path {
		coords[i] = []float64{p.Lat, p.Lng}
	}
	return string(polyline.EncodeCoords(coords))
}

// DecodePath decodes a Google encoded polyline.
func DecodePath(encoded string) ([]types.Point, error) {
	if encoded == "" {
		return nil, ErrEmptyPath
	}
	coords, _, err := polyline.DecodeCoords([]byte(encoded))
	if err != nil {
		return nil, err
	}
	path := make([]types.Point, len(coords))
	for i, c := range coords {
		path[i] = types.Point{Lat: c[0], Lng: c[1]}
	}
	return path, nil
}
