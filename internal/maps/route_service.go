package maps

import (
	"context"
	"errors"
	"fmt"
	"time"

	"googlemaps.github.io/maps"

	"yatra/internal/types"
)

var ErrNoRoute = errors.New("no route found")

// NewClient builds a Google Maps client shared by the route and geocoding
// adapters. Extra options are used by tests to point at a local server.
func NewClient(apiKey string, opts ...maps.ClientOption) (*maps.Client, error) {
	client, err := maps.NewClient(append([]maps.ClientOption{maps.WithAPIKey(apiKey)}, opts...)...)
	if err != nil {
		return nil, fmt.Errorf("failed to create maps client: %w", err)
	}
	return client, nil
}

// RouteService handles interactions with the Google Directions API.
type RouteService struct {
	client *maps.Client
}

func NewRouteService(client *maps.Client) *RouteService {
	return &RouteService{client: client}
}

func latLng(p types.Point) string {
	return fmt.Sprintf("%f,%f", p.Lat, p.Lng)
}

func (s *RouteService) directions(ctx context.Context, from, to types.Point) (*maps.Route, error) {
	routes, _, err := s.client.Directions(ctx, &maps.DirectionsRequest{
		Origin:      latLng(from),
		Destination: latLng(to),
		Mode:        maps.TravelModeDriving,
	})
	if err != nil {
		return nil, fmt.Errorf("maps api error: %w", err)
	}
	if len(routes) == 0 || len(routes[0].Legs) == 0 {
		return nil, ErrNoRoute
	}
	return &routes[0], nil
}

// DrivingPath returns the overview polyline of the first driving route
// between two points.
func (s *RouteService) DrivingPath(ctx context.Context, from, to types.Point) ([]types.Point, error) {
	r, err := s.directions(ctx, from, to)
	if err != nil {
		return nil, err
	}
	pts, err := r.OverviewPolyline.Decode()
	if err != nil {
		return nil, fmt.Errorf("decode overview polyline: %w", err)
	}
	path := make([]types.Point, len(pts))
	for i, p := range pts {
		path[i] = types.Point{Lat: p.Lat, Lng: p.Lng}
	}
	return path, nil
}

// TravelEstimate returns the driving duration and a human readable distance.
func (s *RouteService) TravelEstimate(ctx context.Context, from, to types.Point) (time.Duration, string, error) {
	r, err := s.directions(ctx, from, to)
	if err != nil {
		return 0, "", err
	}
	leg := r.Legs[0]
	return leg.Duration, leg.Distance.HumanReadable, nil
}
