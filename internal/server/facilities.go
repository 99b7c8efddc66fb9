package server

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/tealeg/xlsx/v2"
	"go.uber.org/zap"

	"github.com/integratec/plant-crm/internal/geo"
	"github.com/integratec/plant-crm/internal/ingest"
	"github.com/integratec/plant-crm/internal/model"
	"github.com/integratec/plant-crm/internal/store"
	"github.com/integratec/plant-crm/pkg/hunter"
)

const photoMaxWidthPx = 150

func (s *Server) listFacilities(w http.ResponseWriter, r *http.Request) {
	filter, err := parseFacilityFilter(r)
	if err != nil {
		badRequest(w, err.Error())
		return
	}

	facilities, err := s.store.ListFacilities(r.Context(), filter)
	if err != nil {
		writeError(w, err)
		return
	}

	if s.ref != nil {
		for i := range facilities {
			facilities[i].DistanceMiles = s.ref.DistanceMiles(r.Context(), facilities[i].Lat, facilities[i].Lng)
		}
	}
	if facilities == nil {
		facilities = []model.Facility{}
	}
	writeJSON(w, http.StatusOK, facilities)
}

func parseFacilityFilter(r *http.Request) (store.FacilityFilter, error) {
	var filter store.FacilityFilter
	q := r.URL.Query()

	if v := q.Get("contacted"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return filter, fmt.Errorf("invalid contacted value %q", v)
		}
		filter.Contacted = &b
	}
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			return filter, fmt.Errorf("invalid limit value %q", v)
		}
		filter.Limit = n
	}
	if v := q.Get("offset"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			return filter, fmt.Errorf("invalid offset value %q", v)
		}
		filter.Offset = n
	}
	return filter, nil
}

func (s *Server) facilityMetrics(w http.ResponseWriter, r *http.Request) {
	m, err := s.store.FacilityMetrics(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, m)
}

func (s *Server) facilityBounds(w http.ResponseWriter, r *http.Request) {
	facilities, err := s.store.ListFacilities(r.Context(), store.FacilityFilter{Limit: 1000})
	if err != nil {
		writeError(w, err)
		return
	}

	bounds := geoBounds(facilities)
	writeJSON(w, http.StatusOK, bounds)
}

type boundsBody struct {
	MinLat float64 `json:"minLat"`
	MinLng float64 `json:"minLng"`
	MaxLat float64 `json:"maxLat"`
	MaxLng float64 `json:"maxLng"`
}

func geoBounds(facilities []model.Facility) *boundsBody {
	b := geo.FacilityBounds(facilities)
	if b == nil {
		return nil
	}
	return &boundsBody{
		MinLng: b.Min(0), MinLat: b.Min(1),
		MaxLng: b.Max(0), MaxLat: b.Max(1),
	}
}

func (s *Server) getFacility(w http.ResponseWriter, r *http.Request) {
	f, err := s.store.GetFacility(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	if s.ref != nil {
		f.DistanceMiles = s.ref.DistanceMiles(r.Context(), f.Lat, f.Lng)
	}
	writeJSON(w, http.StatusOK, f)
}

func (s *Server) patchFacility(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Contacted       *bool           `json:"contacted"`
		CurrentCustomer *bool           `json:"current_customer"`
		FollowUpDate    json.RawMessage `json:"follow_up_date"`
		Notes           json.RawMessage `json:"notes"`
	}
	if err := decodeJSON(r, &body); err != nil {
		badRequest(w, "invalid request body")
		return
	}

	update := store.CRMUpdate{
		Contacted:       body.Contacted,
		CurrentCustomer: body.CurrentCustomer,
	}
	if body.FollowUpDate != nil {
		update.FollowUpDateSet = true
		if v, ok := decodeNullableString(body.FollowUpDate); ok {
			update.FollowUpDate = v
		} else {
			badRequest(w, "invalid follow_up_date")
			return
		}
	}
	if body.Notes != nil {
		update.NotesSet = true
		if v, ok := decodeNullableString(body.Notes); ok {
			update.Notes = v
		} else {
			badRequest(w, "invalid notes")
			return
		}
	}
	if update.Empty() {
		badRequest(w, "no fields to update")
		return
	}

	f, err := s.store.UpdateFacilityCRM(r.Context(), chi.URLParam(r, "id"), update)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, f)
}

// decodeNullableString interprets a raw JSON value as either null or a
// string. The second return is false for any other shape.
func decodeNullableString(raw json.RawMessage) (*string, bool) {
	if string(raw) == "null" {
		return nil, true
	}
	var v string
	if err := json.Unmarshal(raw, &v); err != nil {
		return nil, false
	}
	return &v, true
}

func (s *Server) deleteFacility(w http.ResponseWriter, r *http.Request) {
	if err := s.store.DeleteFacility(r.Context(), chi.URLParam(r, "id")); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"deleted": true})
}

func (s *Server) bulkDeleteFacilities(w http.ResponseWriter, r *http.Request) {
	var body struct {
		IDs []string `json:"ids"`
	}
	if err := decodeJSON(r, &body); err != nil || len(body.IDs) == 0 {
		badRequest(w, "ids is required")
		return
	}

	n, err := s.store.DeleteFacilities(r.Context(), body.IDs)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"deleted": n})
}

// cleanupNonManufacturing re-screens stored facilities through the ruleset
// and deletes the ones that no longer pass, e.g. after a ruleset update.
func (s *Server) cleanupNonManufacturing(w http.ResponseWriter, r *http.Request) {
	var toDelete []string
	offset := 0
	for {
		page, err := s.store.ListFacilities(r.Context(), store.FacilityFilter{Limit: 1000, Offset: offset})
		if err != nil {
			writeError(w, err)
			return
		}
		for _, f := range page {
			if ingest.ExcludedStored(f) {
				toDelete = append(toDelete, f.ID)
			}
		}
		if len(page) < 1000 {
			break
		}
		offset += len(page)
	}

	n, err := s.store.DeleteFacilities(r.Context(), toDelete)
	if err != nil {
		writeError(w, err)
		return
	}
	zap.L().Info("cleanup removed non-manufacturing facilities", zap.Int("deleted", n))
	writeJSON(w, http.StatusOK, map[string]int{"deleted": n})
}

func (s *Server) facilityPhoto(w http.ResponseWriter, r *http.Request) {
	if s.places == nil {
		unavailable(w, "places api not configured")
		return
	}

	f, err := s.store.GetFacility(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	if f.PhotoName == "" {
		writeJSON(w, http.StatusNotFound, errorBody{Error: "facility has no photo"})
		return
	}

	data, contentType, err := s.places.PhotoMedia(r.Context(), f.PhotoName, photoMaxWidthPx)
	if err != nil {
		writeError(w, err)
		return
	}
	if contentType == "" {
		contentType = "image/jpeg"
	}
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Cache-Control", "public, max-age=86400")
	w.WriteHeader(http.StatusOK)
	w.Write(data)
}

func (s *Server) listFacilityContacts(w http.ResponseWriter, r *http.Request) {
	contacts, err := s.store.ListContacts(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	if contacts == nil {
		contacts = []model.Contact{}
	}
	writeJSON(w, http.StatusOK, contacts)
}

func (s *Server) findContacts(w http.ResponseWriter, r *http.Request) {
	if s.hunter == nil {
		unavailable(w, "contact search not configured")
		return
	}

	f, err := s.store.GetFacility(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	domain := hunter.ExtractDomain(f.Website)
	if domain == "" {
		badRequest(w, "facility has no usable website")
		return
	}

	resp, err := s.hunter.DomainSearch(r.Context(), domain, 10)
	if err != nil {
		writeError(w, err)
		return
	}

	existing, err := s.store.ContactSourceIDs(r.Context(), f.ID)
	if err != nil {
		writeError(w, err)
		return
	}

	created := []model.Contact{}
	for _, email := range resp.Data.Emails {
		if email.Value == "" {
			continue
		}
		if _, seen := existing[email.Value]; seen {
			continue
		}
		c, err := s.store.CreateContact(r.Context(), model.Contact{
			FacilityID:  f.ID,
			SourceID:    email.Value,
			FirstName:   email.FirstName,
			LastName:    email.LastName,
			Title:       email.Position,
			Email:       email.Value,
			Phone:       email.PhoneNumber,
			LinkedInURL: email.LinkedIn,
			Source:      "hunter",
		})
		if err != nil {
			writeError(w, err)
			return
		}
		created = append(created, *c)
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"added":    len(created),
		"contacts": created,
	})
}

func (s *Server) exportFacilities(w http.ResponseWriter, r *http.Request) {
	facilities, err := s.store.ListFacilities(r.Context(), store.FacilityFilter{Limit: 1000})
	if err != nil {
		writeError(w, err)
		return
	}

	file := xlsx.NewFile()
	sheet, err := file.AddSheet("Facilities")
	if err != nil {
		writeError(w, err)
		return
	}

	header := sheet.AddRow()
	for _, col := range []string{
		"Name", "Address", "City", "State", "Zip", "Phone", "Website",
		"Relevance", "Contacted", "Current Customer", "Follow Up", "Notes",
	} {
		header.AddCell().Value = col
	}

	for _, f := range facilities {
		row := sheet.AddRow()
		row.AddCell().Value = f.Name
		row.AddCell().Value = f.FormattedAddress
		row.AddCell().Value = f.City
		row.AddCell().Value = f.State
		row.AddCell().Value = f.PostalCode
		row.AddCell().Value = f.Phone
		row.AddCell().Value = f.Website
		row.AddCell().Value = string(f.Relevance)
		row.AddCell().Value = strconv.FormatBool(f.Contacted)
		row.AddCell().Value = strconv.FormatBool(f.CurrentCustomer)
		if f.FollowUpDate != nil {
			row.AddCell().Value = *f.FollowUpDate
		} else {
			row.AddCell()
		}
		if f.Notes != nil {
			row.AddCell().Value = *f.Notes
		} else {
			row.AddCell()
		}
	}

	filename := fmt.Sprintf("facilities-%s.xlsx", time.Now().Format("2006-01-02"))
	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", `attachment; filename="`+filename+`"`)
	if err := file.Write(w); err != nil {
		zap.L().Error("write xlsx export", zap.Error(err))
	}
}
