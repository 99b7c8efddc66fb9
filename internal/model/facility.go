package model

import "time"

// Relevance is the LLM's four-level manufacturing-relevance judgment.
type Relevance string

const (
	RelevanceHigh   Relevance = "high"
	RelevanceMedium Relevance = "medium"
	RelevanceLow    Relevance = "low"
	RelevanceNone   Relevance = "none"
)

// Valid reports whether r is one of the four known relevance levels.
func (r Relevance) Valid() bool {
	switch r {
	case RelevanceHigh, RelevanceMedium, RelevanceLow, RelevanceNone:
		return true
	}
	return false
}

// Candidate is a place record retrieved from the search provider, before
// relevance filtering and classification. Ephemeral: lives only for the
// duration of an ingestion run.
type Candidate struct {
	PlaceID                string   `json:"place_id"`
	Name                   string   `json:"name"`
	FormattedAddress       string   `json:"formatted_address"`
	ShortFormattedAddress  string   `json:"short_formatted_address"`
	Lat                    *float64 `json:"lat"`
	Lng                    *float64 `json:"lng"`
	Phone                  string   `json:"phone"`
	Website                string   `json:"website"`
	BusinessStatus         string   `json:"business_status"`
	GoogleMapsURI          string   `json:"google_maps_uri"`
	PrimaryType            string   `json:"primary_type"`
	PrimaryTypeDisplayName string   `json:"primary_type_display_name"`
	Types                  []string `json:"types"`
	Rating                 *float64 `json:"rating"`
	UserRatingCount        *int     `json:"user_rating_count"`
	PlusCode               string   `json:"plus_code"`
	PriceLevel             string   `json:"price_level"`
	OpeningHours           string   `json:"regular_opening_hours"` // raw provider JSON
	PhotoName              string   `json:"photo_name"`
	EditorialSummary       string   `json:"editorial_summary"`
	GenerativeSummary      string   `json:"generative_summary"`
	City                   string   `json:"city"`
	State                  string   `json:"state"`
	PostalCode             string   `json:"postal_code"`
}

// Summary returns the candidate's best summary text, preferring the
// AI-generated overview over the editorial one.
func (c Candidate) Summary() string {
	if c.GenerativeSummary != "" {
		return c.GenerativeSummary
	}
	return c.EditorialSummary
}

// Facility is the persisted record for a confirmed manufacturing prospect.
// Provider-sourced fields are overwritten on every re-ingestion; CRM-only
// fields (Contacted, CurrentCustomer, FollowUpDate, Notes) are preserved.
type Facility struct {
	ID                     string    `json:"id"`
	PlaceID                string    `json:"place_id"`
	Name                   string    `json:"name"`
	FormattedAddress       string    `json:"formatted_address"`
	ShortFormattedAddress  string    `json:"short_formatted_address"`
	Lat                    *float64  `json:"lat"`
	Lng                    *float64  `json:"lng"`
	Phone                  string    `json:"phone"`
	Website                string    `json:"website"`
	BusinessStatus         string    `json:"business_status"`
	GoogleMapsURI          string    `json:"google_maps_uri"`
	PrimaryType            string    `json:"primary_type"`
	PrimaryTypeDisplayName string    `json:"primary_type_display_name"`
	Types                  []string  `json:"types"`
	Rating                 *float64  `json:"rating"`
	UserRatingCount        *int      `json:"user_rating_count"`
	PlusCode               string    `json:"plus_code"`
	PriceLevel             string    `json:"price_level"`
	OpeningHours           string    `json:"regular_opening_hours"`
	PhotoName              string    `json:"photo_name"`
	EditorialSummary       string    `json:"editorial_summary"`
	GenerativeSummary      string    `json:"generative_summary"`
	City                   string    `json:"city"`
	State                  string    `json:"state"`
	PostalCode             string    `json:"postal_code"`
	Relevance              Relevance `json:"manufacturing_relevance,omitempty"`
	RelevanceReason        string    `json:"manufacturing_reason,omitempty"`
	DataSource             string    `json:"data_source"`

	// CRM-only fields, never touched by ingestion once set.
	Contacted       bool    `json:"contacted"`
	CurrentCustomer bool    `json:"current_customer"`
	FollowUpDate    *string `json:"follow_up_date"`
	Notes           *string `json:"notes"`

	DistanceMiles *float64 `json:"distance_miles,omitempty"` // computed, not stored

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// FacilityFromCandidate builds a Facility carrying the candidate's
// provider-sourced fields. ID, CRM fields and timestamps are left for the
// store to assign or preserve.
func FacilityFromCandidate(c Candidate, rel Relevance, reason string) Facility {
	return Facility{
		PlaceID:                c.PlaceID,
		Name:                   c.Name,
		FormattedAddress:       c.FormattedAddress,
		ShortFormattedAddress:  c.ShortFormattedAddress,
		Lat:                    c.Lat,
		Lng:                    c.Lng,
		Phone:                  c.Phone,
		Website:                c.Website,
		BusinessStatus:         c.BusinessStatus,
		GoogleMapsURI:          c.GoogleMapsURI,
		PrimaryType:            c.PrimaryType,
		PrimaryTypeDisplayName: c.PrimaryTypeDisplayName,
		Types:                  c.Types,
		Rating:                 c.Rating,
		UserRatingCount:        c.UserRatingCount,
		PlusCode:               c.PlusCode,
		PriceLevel:             c.PriceLevel,
		OpeningHours:           c.OpeningHours,
		PhotoName:              c.PhotoName,
		EditorialSummary:       c.EditorialSummary,
		GenerativeSummary:      c.GenerativeSummary,
		City:                   c.City,
		State:                  c.State,
		PostalCode:             c.PostalCode,
		Relevance:              rel,
		RelevanceReason:        reason,
		DataSource:             "google_places",
	}
}

// Metrics summarizes the facility table for the dashboard cards.
type Metrics struct {
	Total            int `json:"total"`
	Contacted        int `json:"contacted"`
	CurrentCustomers int `json:"currentCustomers"`
	PendingFollowUps int `json:"pendingFollowUps"`
	NewThisWeek      int `json:"newThisWeek"`
}
