package geocode

import (
	"context"

	"googlemaps.github.io/maps"
)

// GoogleClient geocodes through the Google Maps Geocoding API.
type GoogleClient struct {
	client *maps.Client
}

// NewGoogle creates a Google geocoder. Extra options (e.g. maps.WithBaseURL)
// are passed through to the maps client.
func NewGoogle(apiKey string, opts ...maps.ClientOption) (*GoogleClient, error) {
	c, err := maps.NewClient(append([]maps.ClientOption{maps.WithAPIKey(apiKey)}, opts...)...)
	if err != nil {
		return nil, err
	}
	return &GoogleClient{client: c}, nil
}

// Lookup geocodes an address.
func (g *GoogleClient) Lookup(ctx context.Context, text string) ([]Candidate, error) {
	results, err := g.client.Geocode(ctx, &maps.GeocodingRequest{Address: text})
	if err != nil {
		return nil, err
	}
	res := make([]Candidate, 0, len(results))
	for _, r := range results {
		res = append(res, Candidate{
			Lat:         r.Geometry.Location.Lat,
			Lng:         r.Geometry.Location.Lng,
			DisplayName: r.FormattedAddress,
		})
	}
	return res, nil
}
