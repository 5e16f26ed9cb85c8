package geocode

import (
	"context"
	"errors"
)

// Candidate is one geocoding match. Coordinates are kept in the provider's
// raw form (Nominatim returns strings) and normalized by the Resolver.
type Candidate struct {
	Lat         any    `json:"lat"`
	Lng         any    `json:"lng"`
	DisplayName string `json:"display_name,omitempty"`
}

// Lookup resolves free text to candidate coordinates, best match first.
type Lookup interface {
	Lookup(ctx context.Context, text string) ([]Candidate, error)
}

// ErrMalformedResponse is returned when a provider answers with a body that
// cannot be decoded.
var ErrMalformedResponse = errors.New("geocode: malformed response")
