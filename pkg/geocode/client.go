// Package geocode resolves free-text locations to bounding rectangles and
// points via the Google Geocoding API.
package geocode

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/rotisserie/eris"
	"golang.org/x/time/rate"
)

const defaultBaseURL = "https://maps.googleapis.com/maps/api/geocode/json"

// pointBoxDelta is the half-width of the fallback box around a bare point,
// in degrees (~15 miles).
const pointBoxDelta = 0.15

// LatLng is a geographic coordinate pair.
type LatLng struct {
	Lat float64
	Lng float64
}

// Rect is a bounding rectangle (Low = southwest, High = northeast).
type Rect struct {
	Low  LatLng
	High LatLng
}

// Client resolves locations against the geocoding provider.
type Client interface {
	// Viewport resolves a zip code or city name to a search rectangle.
	// Prefers the result's viewport, then bounds, then a fixed-size box
	// around the location point. Returns an error naming the input when
	// the provider has no result for it.
	Viewport(ctx context.Context, location string) (*Rect, error)

	// Locate resolves an address to its center point.
	Locate(ctx context.Context, address string) (*LatLng, error)
}

// Option configures the client.
type Option func(*geocoder)

// WithBaseURL overrides the default API base URL.
func WithBaseURL(u string) Option {
	return func(g *geocoder) {
		g.baseURL = u
	}
}

// WithHTTPClient overrides the default http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(g *geocoder) {
		g.http = hc
	}
}

// WithRateLimit sets the requests-per-second limit for provider calls.
func WithRateLimit(rps float64) Option {
	return func(g *geocoder) {
		g.limiter = rate.NewLimiter(rate.Limit(rps), 1)
	}
}

type geocoder struct {
	apiKey  string
	baseURL string
	http    *http.Client
	limiter *rate.Limiter
}

// NewClient creates a geocoding client.
func NewClient(apiKey string, opts ...Option) Client {
	g := &geocoder{
		apiKey:  apiKey,
		baseURL: defaultBaseURL,
		http:    &http.Client{Timeout: 30 * time.Second},
		limiter: rate.NewLimiter(10, 1),
	}
	for _, o := range opts {
		o(g)
	}
	return g
}

type wireLatLng struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

type wireBounds struct {
	Northeast wireLatLng `json:"northeast"`
	Southwest wireLatLng `json:"southwest"`
}

type geocodeResponse struct {
	Results []struct {
		Geometry struct {
			Viewport *wireBounds `json:"viewport"`
			Bounds   *wireBounds `json:"bounds"`
			Location *wireLatLng `json:"location"`
		} `json:"geometry"`
	} `json:"results"`
	Status string `json:"status"`
}

func (g *geocoder) Viewport(ctx context.Context, location string) (*Rect, error) {
	// Append the country to disambiguate (zip 75001 vs. Paris 75001).
	address := location + ", USA"

	resp, err := g.query(ctx, address)
	if err != nil {
		return nil, err
	}
	if resp.Status != "OK" || len(resp.Results) == 0 {
		return nil, eris.Errorf("geocode: could not resolve %q; try a zip code (e.g. 75001) or city (e.g. Dallas, TX)", location)
	}

	geom := resp.Results[0].Geometry
	bounds := geom.Viewport
	if bounds == nil {
		bounds = geom.Bounds
	}
	if bounds == nil {
		if geom.Location == nil {
			return nil, eris.Errorf("geocode: no geometry for %q", location)
		}
		loc := geom.Location
		return &Rect{
			Low:  LatLng{Lat: loc.Lat - pointBoxDelta, Lng: loc.Lng - pointBoxDelta},
			High: LatLng{Lat: loc.Lat + pointBoxDelta, Lng: loc.Lng + pointBoxDelta},
		}, nil
	}

	return &Rect{
		Low:  LatLng{Lat: bounds.Southwest.Lat, Lng: bounds.Southwest.Lng},
		High: LatLng{Lat: bounds.Northeast.Lat, Lng: bounds.Northeast.Lng},
	}, nil
}

func (g *geocoder) Locate(ctx context.Context, address string) (*LatLng, error) {
	resp, err := g.query(ctx, address)
	if err != nil {
		return nil, err
	}
	if resp.Status != "OK" || len(resp.Results) == 0 {
		return nil, eris.Errorf("geocode: could not resolve %q", address)
	}
	loc := resp.Results[0].Geometry.Location
	if loc == nil {
		return nil, eris.Errorf("geocode: no location for %q", address)
	}
	return &LatLng{Lat: loc.Lat, Lng: loc.Lng}, nil
}

func (g *geocoder) query(ctx context.Context, address string) (*geocodeResponse, error) {
	if err := g.limiter.Wait(ctx); err != nil {
		return nil, eris.Wrap(err, "geocode: rate limit")
	}

	params := url.Values{
		"address": {address},
		"key":     {g.apiKey},
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, g.baseURL+"?"+params.Encode(), nil)
	if err != nil {
		return nil, eris.Wrap(err, "geocode: build request")
	}

	resp, err := g.http.Do(req)
	if err != nil {
		return nil, eris.Wrap(err, "geocode: request")
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode != http.StatusOK {
		return nil, eris.Errorf("geocode: returned status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, eris.Wrap(err, "geocode: read body")
	}

	var parsed geocodeResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, eris.Wrap(err, "geocode: parse response")
	}

	return &parsed, nil
}
