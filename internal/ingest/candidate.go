package ingest

import (
	"encoding/json"
	"strings"

	"github.com/integratec/plant-crm/internal/model"
	"github.com/integratec/plant-crm/pkg/places"
)

// genericTypes carry no classification signal on their own.
var genericTypes = map[string]struct{}{
	"establishment":     {},
	"point_of_interest": {},
}

// onlyGenericTypes reports whether the type list is empty or contains
// nothing beyond establishment/point_of_interest.
func onlyGenericTypes(types []string) bool {
	for _, t := range types {
		if _, ok := genericTypes[strings.ToLower(t)]; !ok {
			return false
		}
	}
	return true
}

// needsEnrichment reports whether a candidate is missing both summaries or
// all meaningful type information, making a details call worthwhile.
func needsEnrichment(c model.Candidate) bool {
	missingSummary := c.EditorialSummary == "" && c.GenerativeSummary == ""
	missingTypes := c.PrimaryType == "" && onlyGenericTypes(c.Types)
	return missingSummary || missingTypes
}

// mergeDetails backfills summary and type fields from a details response
// without overwriting anything the search result already had.
func mergeDetails(c *model.Candidate, details *places.Place) {
	if details.GenerativeSummary != nil && details.GenerativeSummary.Overview.Text != "" {
		c.GenerativeSummary = details.GenerativeSummary.Overview.Text
	}
	if details.EditorialSummary != nil && details.EditorialSummary.Text != "" && c.EditorialSummary == "" {
		c.EditorialSummary = details.EditorialSummary.Text
	}
	if c.PrimaryType != "" || !onlyGenericTypes(c.Types) {
		return
	}
	if details.PrimaryType != "" {
		c.PrimaryType = details.PrimaryType
		if details.PrimaryTypeDisplayName.Text != "" {
			c.PrimaryTypeDisplayName = details.PrimaryTypeDisplayName.Text
		}
	}
	if len(details.Types) > 0 {
		c.Types = details.Types
	}
}

// toCandidate flattens a wire place into a Candidate. Returns false when the
// place has no usable ID.
func toCandidate(p places.Place) (model.Candidate, bool) {
	id := p.ID
	if id == "" {
		id = strings.TrimPrefix(p.Name, "places/")
	}
	if id == "" {
		return model.Candidate{}, false
	}

	c := model.Candidate{
		PlaceID:                id,
		Name:                   p.DisplayName.Text,
		FormattedAddress:       p.FormattedAddress,
		ShortFormattedAddress:  p.ShortFormattedAddress,
		Phone:                  p.NationalPhoneNumber,
		Website:                p.WebsiteURI,
		BusinessStatus:         p.BusinessStatus,
		GoogleMapsURI:          p.GoogleMapsURI,
		PrimaryType:            p.PrimaryType,
		PrimaryTypeDisplayName: p.PrimaryTypeDisplayName.Text,
		Types:                  p.Types,
		Rating:                 p.Rating,
		UserRatingCount:        p.UserRatingCount,
		PriceLevel:             p.PriceLevel,
	}

	if c.Name == "" {
		c.Name = p.FormattedAddress
	}
	if c.Phone == "" {
		c.Phone = p.InternationalPhoneNumber
	}
	if p.Location != nil {
		lat, lng := p.Location.Latitude, p.Location.Longitude
		c.Lat, c.Lng = &lat, &lng
	}
	if p.PlusCode != nil {
		c.PlusCode = p.PlusCode.CompoundCode
		if c.PlusCode == "" {
			c.PlusCode = p.PlusCode.GlobalCode
		}
	}
	if len(p.Photos) > 0 {
		c.PhotoName = p.Photos[0].Name
	}
	if p.EditorialSummary != nil {
		c.EditorialSummary = p.EditorialSummary.Text
	}
	if p.GenerativeSummary != nil {
		c.GenerativeSummary = p.GenerativeSummary.Overview.Text
	}
	if len(p.RegularOpeningHours) > 0 && string(p.RegularOpeningHours) != "null" {
		if compact, err := json.Marshal(json.RawMessage(p.RegularOpeningHours)); err == nil {
			c.OpeningHours = string(compact)
		}
	}

	for _, comp := range p.AddressComponents {
		text := comp.LongText
		if text == "" {
			text = comp.ShortText
		}
		if text == "" {
			continue
		}
		for _, t := range comp.Types {
			switch t {
			case "locality":
				c.City = text
			case "administrative_area_level_1":
				c.State = text
			case "postal_code":
				c.PostalCode = text
			}
		}
	}

	return c, true
}
