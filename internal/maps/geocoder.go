package maps

import (
	"context"
	"fmt"

	"googlemaps.github.io/maps"

	"yatra/internal/types"
)

// Geocoder turns coordinates into display labels. Labels are opaque to the
// booking engine.
type Geocoder struct {
	client *maps.Client
}

func NewGeocoder(client *maps.Client) *Geocoder {
	return &Geocoder{client: client}
}

// ReverseLabel returns the formatted address of the best match, or "" when
// Google has nothing for the point.
func (g *Geocoder) ReverseLabel(ctx context.Context, p types.Point) (string, error) {
	results, err := g.client.ReverseGeocode(ctx, &maps.GeocodingRequest{
		LatLng: &maps.LatLng{Lat: p.Lat, Lng: p.Lng},
	})
	if err != nil {
		return "", fmt.Errorf("geocoding api error: %w", err)
	}
	if len(results) == 0 {
		return "", nil
	}
	return results[0].FormattedAddress, nil
}
