package geocode

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"
)

const defaultNominatimURL = "https://nominatim.openstreetmap.org"

// NominatimClient calls the OpenStreetMap Nominatim search endpoint.
type NominatimClient struct {
	BaseURL   string
	UserAgent string
	HTTP      *http.Client
}

// NewNominatim creates a client. Nominatim's usage policy requires an
// identifying User-Agent.
func NewNominatim(baseURL, userAgent string) *NominatimClient {
	if baseURL == "" {
		baseURL = defaultNominatimURL
	}
	if userAgent == "" {
		userAgent = "trackas/1.0"
	}
	return &NominatimClient{
		BaseURL:   baseURL,
		UserAgent: userAgent,
		HTTP:      &http.Client{Timeout: 10 * time.Second},
	}
}

// Lookup runs a free-text search limited to one result.
func (c *NominatimClient) Lookup(ctx context.Context, text string) ([]Candidate, error) {
	q := url.Values{}
	q.Set("q", text)
	q.Set("format", "json")
	q.Set("limit", "1")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.BaseURL+"/search?"+q.Encode(), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", c.UserAgent)

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return nil, fmt.Errorf("nominatim request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("nominatim error %s: %s", resp.Status, string(body))
	}

	var out []struct {
		Lat         string `json:"lat"`
		Lon         string `json:"lon"`
		DisplayName string `json:"display_name"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}

	res := make([]Candidate, 0, len(out))
	for _, o := range out {
		res = append(res, Candidate{Lat: o.Lat, Lng: o.Lon, DisplayName: o.DisplayName})
	}
	return res, nil
}
