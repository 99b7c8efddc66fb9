package server

import (
	"mime/multipart"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/rotisserie/eris"

	"github.com/integratec/plant-crm/internal/model"
)

const maxUploadBytes = 10 << 20 // 10 MB per file

var visitFileExts = map[string]bool{
	".pdf":  true,
	".doc":  true,
	".docx": true,
}

func (s *Server) listVisits(w http.ResponseWriter, r *http.Request) {
	visits, err := s.store.ListVisits(r.Context(), r.URL.Query().Get("facility_id"))
	if err != nil {
		writeError(w, err)
		return
	}
	if visits == nil {
		visits = []model.Visit{}
	}
	writeJSON(w, http.StatusOK, visits)
}

func (s *Server) getVisit(w http.ResponseWriter, r *http.Request) {
	v, err := s.store.GetVisit(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, v)
}

// createVisit accepts a multipart form with facility_id, visit_date, notes
// and optional document attachments.
func (s *Server) createVisit(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		badRequest(w, "invalid multipart form")
		return
	}

	facilityID := r.FormValue("facility_id")
	visitDate := r.FormValue("visit_date")
	if facilityID == "" || visitDate == "" {
		badRequest(w, "facility_id and visit_date are required")
		return
	}
	if _, err := s.store.GetFacility(r.Context(), facilityID); err != nil {
		writeError(w, err)
		return
	}

	visit, err := s.store.CreateVisit(r.Context(), model.Visit{
		FacilityID: facilityID,
		VisitDate:  visitDate,
		Notes:      r.FormValue("notes"),
	})
	if err != nil {
		writeError(w, err)
		return
	}

	for _, fh := range r.MultipartForm.File["files"] {
		stored, err := s.saveVisitUpload(r, visit.ID, fh)
		if err != nil {
			badRequest(w, err.Error())
			return
		}
		visit.Files = append(visit.Files, *stored)
	}

	writeJSON(w, http.StatusCreated, visit)
}

func (s *Server) uploadVisitFile(w http.ResponseWriter, r *http.Request) {
	visitID := chi.URLParam(r, "id")
	if _, err := s.store.GetVisit(r.Context(), visitID); err != nil {
		writeError(w, err)
		return
	}

	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		badRequest(w, "invalid multipart form")
		return
	}
	files := r.MultipartForm.File["files"]
	if len(files) == 0 {
		badRequest(w, "no files provided")
		return
	}

	added := []model.VisitFile{}
	for _, fh := range files {
		stored, err := s.saveVisitUpload(r, visitID, fh)
		if err != nil {
			badRequest(w, err.Error())
			return
		}
		added = append(added, *stored)
	}
	writeJSON(w, http.StatusCreated, added)
}

func (s *Server) saveVisitUpload(r *http.Request, visitID string, fh *multipart.FileHeader) (*model.VisitFile, error) {
	if err := checkUpload(fh, visitFileExts); err != nil {
		return nil, err
	}

	src, err := fh.Open()
	if err != nil {
		return nil, err
	}
	defer src.Close()

	stored, err := s.uploads.SaveVisitFile(visitID, fh.Filename, src)
	if err != nil {
		return nil, err
	}

	return s.store.AddVisitFile(r.Context(), model.VisitFile{
		VisitID:      visitID,
		Filename:     stored,
		OriginalName: fh.Filename,
		ContentType:  fh.Header.Get("Content-Type"),
	})
}

func (s *Server) downloadVisitFile(w http.ResponseWriter, r *http.Request) {
	visitID := chi.URLParam(r, "id")
	filename := chi.URLParam(r, "filename")

	f, err := s.store.GetVisitFile(r.Context(), visitID, filename)
	if err != nil {
		writeError(w, err)
		return
	}

	w.Header().Set("Content-Disposition", `attachment; filename="`+f.OriginalName+`"`)
	if f.ContentType != "" {
		w.Header().Set("Content-Type", f.ContentType)
	}
	http.ServeFile(w, r, s.uploads.VisitFilePath(visitID, f.Filename))
}

func (s *Server) deleteVisit(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := s.store.DeleteVisit(r.Context(), id); err != nil {
		writeError(w, err)
		return
	}
	if err := s.uploads.RemoveVisitFiles(id); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"deleted": true})
}

func checkUpload(fh *multipart.FileHeader, allowed map[string]bool) error {
	if fh.Size > maxUploadBytes {
		return eris.Errorf("%s exceeds the 10MB limit", fh.Filename)
	}
	ext := strings.ToLower(filepath.Ext(fh.Filename))
	if !allowed[ext] {
		return eris.Errorf("%s has an unsupported file type", fh.Filename)
	}
	return nil
}
