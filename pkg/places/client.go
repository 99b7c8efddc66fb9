// Package places is a client for the Google Places API (New, v1).
package places

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rotisserie/eris"
)

const defaultBaseURL = "https://places.googleapis.com/v1"

// searchFieldMask lists every place field the ingestion pipeline consumes.
const searchFieldMask = "places.id,places.displayName,places.formattedAddress," +
	"places.shortFormattedAddress,places.location,places.addressComponents," +
	"places.nationalPhoneNumber,places.internationalPhoneNumber,places.websiteUri," +
	"places.businessStatus,places.googleMapsUri,places.primaryType," +
	"places.primaryTypeDisplayName,places.types,places.rating,places.userRatingCount," +
	"places.plusCode,places.priceLevel,places.photos,places.editorialSummary," +
	"places.generativeSummary,places.regularOpeningHours,nextPageToken"

// detailsFieldMask covers the fields the detail enricher backfills.
const detailsFieldMask = "id,displayName,primaryType,primaryTypeDisplayName,types," +
	"editorialSummary,generativeSummary"

// Client performs Google Places API operations.
type Client interface {
	// SearchText runs a Places Text Search, optionally restricted to a
	// bounding rectangle and resumed from a page token.
	SearchText(ctx context.Context, req SearchTextRequest) (*SearchTextResponse, error)

	// GetDetails fetches a single place to backfill type and summary fields.
	GetDetails(ctx context.Context, placeID string) (*Place, error)

	// PhotoMedia fetches a place photo, returning the image bytes and
	// content type.
	PhotoMedia(ctx context.Context, photoName string, maxPx int) ([]byte, string, error)
}

// LatLng is a geographic coordinate pair.
type LatLng struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// Rectangle is a lat/lng bounding rectangle (low = southwest, high = northeast).
type Rectangle struct {
	Low  LatLng `json:"low"`
	High LatLng `json:"high"`
}

// LocationRect restricts a search to a rectangle.
type LocationRect struct {
	Rectangle Rectangle `json:"rectangle"`
}

// SearchTextRequest parameterizes a Text Search call.
type SearchTextRequest struct {
	TextQuery           string        `json:"textQuery"`
	PageSize            int           `json:"pageSize,omitempty"`
	PageToken           string        `json:"pageToken,omitempty"`
	LocationRestriction *LocationRect `json:"locationRestriction,omitempty"`
}

// SearchTextResponse is the response from Places Text Search.
type SearchTextResponse struct {
	Places        []Place `json:"places"`
	NextPageToken string  `json:"nextPageToken"`
}

// DisplayName holds a localized text value.
type DisplayName struct {
	Text string `json:"text"`
}

// PlusCode holds a place's plus code forms.
type PlusCode struct {
	GlobalCode   string `json:"globalCode"`
	CompoundCode string `json:"compoundCode"`
}

// Photo references a place photo resource.
type Photo struct {
	Name string `json:"name"`
}

// GenerativeSummary is the AI-generated place overview.
type GenerativeSummary struct {
	Overview DisplayName `json:"overview"`
}

// AddressComponent is a structured piece of a place's address.
type AddressComponent struct {
	LongText  string   `json:"longText"`
	ShortText string   `json:"shortText"`
	Types     []string `json:"types"`
}

// Place is a place resource as returned by search or details. Every field is
// optional on the wire; absent fields decode to zero values.
type Place struct {
	ID                       string             `json:"id"`
	Name                     string             `json:"name"` // resource name, "places/<id>"
	DisplayName              DisplayName        `json:"displayName"`
	FormattedAddress         string             `json:"formattedAddress"`
	ShortFormattedAddress    string             `json:"shortFormattedAddress"`
	Location                 *LatLng            `json:"location"`
	AddressComponents        []AddressComponent `json:"addressComponents"`
	NationalPhoneNumber      string             `json:"nationalPhoneNumber"`
	InternationalPhoneNumber string             `json:"internationalPhoneNumber"`
	WebsiteURI               string             `json:"websiteUri"`
	BusinessStatus           string             `json:"businessStatus"`
	GoogleMapsURI            string             `json:"googleMapsUri"`
	PrimaryType              string             `json:"primaryType"`
	PrimaryTypeDisplayName   DisplayName        `json:"primaryTypeDisplayName"`
	Types                    []string           `json:"types"`
	Rating                   *float64           `json:"rating"`
	UserRatingCount          *int               `json:"userRatingCount"`
	PlusCode                 *PlusCode          `json:"plusCode"`
	PriceLevel               string             `json:"priceLevel"`
	Photos                   []Photo            `json:"photos"`
	EditorialSummary         *DisplayName       `json:"editorialSummary"`
	GenerativeSummary        *GenerativeSummary `json:"generativeSummary"`
	RegularOpeningHours      json.RawMessage    `json:"regularOpeningHours"`
}

// Option configures the client.
type Option func(*httpClient)

// WithBaseURL overrides the default API base URL.
func WithBaseURL(url string) Option {
	return func(c *httpClient) {
		c.baseURL = url
	}
}

// WithHTTPClient overrides the default http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *httpClient) {
		c.http = hc
	}
}

type httpClient struct {
	apiKey  string
	baseURL string
	http    *http.Client
}

// NewClient creates a Google Places API client.
func NewClient(apiKey string, opts ...Option) Client {
	c := &httpClient{
		apiKey:  apiKey,
		baseURL: defaultBaseURL,
		http: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

func (c *httpClient) SearchText(ctx context.Context, searchReq SearchTextRequest) (*SearchTextResponse, error) {
	if searchReq.PageSize == 0 {
		searchReq.PageSize = 20
	}

	body, err := json.Marshal(searchReq)
	if err != nil {
		return nil, eris.Wrap(err, "places: marshal request")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/places:searchText", bytes.NewReader(body))
	if err != nil {
		return nil, eris.Wrap(err, "places: create request")
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Goog-Api-Key", c.apiKey)
	req.Header.Set("X-Goog-FieldMask", searchFieldMask)

	respBody, err := c.do(req)
	if err != nil {
		return nil, err
	}

	var result SearchTextResponse
	if err := json.Unmarshal(respBody, &result); err != nil {
		return nil, eris.Wrap(err, "places: unmarshal response")
	}

	return &result, nil
}

func (c *httpClient) GetDetails(ctx context.Context, placeID string) (*Place, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/places/"+placeID, nil)
	if err != nil {
		return nil, eris.Wrap(err, "places: create details request")
	}

	req.Header.Set("X-Goog-Api-Key", c.apiKey)
	req.Header.Set("X-Goog-FieldMask", detailsFieldMask)

	respBody, err := c.do(req)
	if err != nil {
		return nil, err
	}

	var place Place
	if err := json.Unmarshal(respBody, &place); err != nil {
		return nil, eris.Wrap(err, "places: unmarshal details")
	}

	return &place, nil
}

func (c *httpClient) PhotoMedia(ctx context.Context, photoName string, maxPx int) ([]byte, string, error) {
	if maxPx <= 0 {
		maxPx = 150
	}
	url := fmt.Sprintf("%s/%s/media?maxWidthPx=%d&maxHeightPx=%d&key=%s",
		c.baseURL, photoName, maxPx, maxPx, c.apiKey)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, "", eris.Wrap(err, "places: create photo request")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, "", eris.Wrap(err, "places: photo request")
	}
	defer resp.Body.Close() //nolint:errcheck

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, "", eris.Wrap(err, "places: read photo")
	}

	if resp.StatusCode != http.StatusOK {
		return nil, "", eris.Errorf("places: photo status %d", resp.StatusCode)
	}

	contentType := resp.Header.Get("Content-Type")
	if contentType == "" {
		contentType = "image/jpeg"
	}
	return body, contentType, nil
}

func (c *httpClient) do(req *http.Request) ([]byte, error) {
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, eris.Wrap(err, "places: send request")
	}
	defer resp.Body.Close() //nolint:errcheck

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, eris.Wrap(err, "places: read response")
	}

	if resp.StatusCode != http.StatusOK {
		return nil, eris.Errorf("places: unexpected status %d: %s", resp.StatusCode, string(respBody))
	}

	return respBody, nil
}
