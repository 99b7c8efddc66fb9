// Package hunter is a client for the Hunter.io Domain Search API, used to
// discover operations and plant-management contacts at a facility.
package hunter

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/rotisserie/eris"
)

const defaultBaseURL = "https://api.hunter.io/v2"

// manufacturingTitles are the job titles worth a sales call at a plant.
var manufacturingTitles = []string{
	"plant manager",
	"maintenance manager",
	"maintenance director",
	"director of maintenance",
	"purchasing manager",
	"procurement manager",
	"operations manager",
	"facilities manager",
	"facilities director",
	"vp operations",
	"vp of operations",
	"coo",
	"chief operating officer",
}

// Email is one discovered address with its person details.
type Email struct {
	Value       string `json:"value"`
	FirstName   string `json:"first_name"`
	LastName    string `json:"last_name"`
	Position    string `json:"position"`
	Seniority   string `json:"seniority"`
	Department  string `json:"department"`
	LinkedIn    string `json:"linkedin"`
	PhoneNumber string `json:"phone_number"`
	Type        string `json:"type"`
	Confidence  int    `json:"confidence"`
}

// DomainSearchResponse is the Domain Search payload.
type DomainSearchResponse struct {
	Data struct {
		Domain       string  `json:"domain"`
		Organization string  `json:"organization"`
		Emails       []Email `json:"emails"`
	} `json:"data"`
	Errors []apiError `json:"errors"`
}

type apiError struct {
	ID      string `json:"id"`
	Code    int    `json:"code"`
	Details string `json:"details"`
}

// Client performs Hunter.io operations.
type Client interface {
	// DomainSearch finds personal emails at a domain, filtered to
	// manufacturing-relevant titles and departments.
	DomainSearch(ctx context.Context, domain string, limit int) (*DomainSearchResponse, error)
}

// Option configures the client.
type Option func(*httpClient)

// WithBaseURL overrides the default API base URL.
func WithBaseURL(u string) Option {
	return func(c *httpClient) {
		c.baseURL = u
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

// NewClient creates a Hunter.io client.
func NewClient(apiKey string, opts ...Option) Client {
	c := &httpClient{
		apiKey:  apiKey,
		baseURL: defaultBaseURL,
		http:    &http.Client{Timeout: 30 * time.Second},
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

func (c *httpClient) DomainSearch(ctx context.Context, domain string, limit int) (*DomainSearchResponse, error) {
	if strings.TrimSpace(c.apiKey) == "" {
		return nil, eris.New("hunter: api key is required")
	}
	if limit <= 0 || limit > 100 {
		limit = 10
	}

	params := url.Values{
		"domain": {domain},
		"limit":  {strconv.Itoa(limit)},
		// Generic role addresses (info@, sales@) are useless for outreach.
		"type":       {"personal"},
		"job_titles": {strings.Join(manufacturingTitles, ",")},
		"department": {"operations,management"},
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/domain-search?"+params.Encode(), nil)
	if err != nil {
		return nil, eris.Wrap(err, "hunter: build request")
	}
	req.Header.Set("X-Api-Key", c.apiKey)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, eris.Wrap(err, "hunter: request")
	}
	defer resp.Body.Close() //nolint:errcheck

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, eris.Wrap(err, "hunter: read response")
	}

	if resp.StatusCode != http.StatusOK {
		return nil, eris.Errorf("hunter: unexpected status %d: %s", resp.StatusCode, string(body))
	}

	var parsed DomainSearchResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, eris.Wrap(err, "hunter: unmarshal response")
	}

	if len(parsed.Errors) > 0 {
		e := parsed.Errors[0]
		if e.Details != "" {
			return nil, eris.Errorf("hunter: %s", e.Details)
		}
		return nil, eris.Errorf("hunter: api error %s (%d)", e.ID, e.Code)
	}

	return &parsed, nil
}

// ExtractDomain pulls the bare domain out of a website URL
// (https://www.acme.com/about -> acme.com). Returns "" when the input is
// empty or unparseable.
func ExtractDomain(website string) string {
	w := strings.TrimSpace(website)
	if w == "" {
		return ""
	}
	if !strings.HasPrefix(w, "http://") && !strings.HasPrefix(w, "https://") {
		w = "https://" + w
	}
	u, err := url.Parse(w)
	if err != nil || u.Hostname() == "" {
		return ""
	}
	return strings.TrimPrefix(u.Hostname(), "www.")
}
