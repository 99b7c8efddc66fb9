package server

import (
	"mime/multipart"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/integratec/plant-crm/internal/model"
	"github.com/integratec/plant-crm/internal/store"
)

var projectFileExts = map[string]bool{
	".pdf":  true,
	".doc":  true,
	".docx": true,
	".xls":  true,
	".xlsx": true,
	".jpg":  true,
	".jpeg": true,
	".png":  true,
}

// projectFileType buckets an upload for the project detail view.
func projectFileType(filename string) string {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".xls", ".xlsx":
		return "spreadsheet"
	case ".jpg", ".jpeg", ".png":
		return "photo"
	case ".pdf", ".doc", ".docx":
		return "document"
	}
	return "other"
}

func (s *Server) listProjects(w http.ResponseWriter, r *http.Request) {
	projects, err := s.store.ListProjects(r.Context(), r.URL.Query().Get("facility_id"))
	if err != nil {
		writeError(w, err)
		return
	}
	if projects == nil {
		projects = []model.Project{}
	}
	writeJSON(w, http.StatusOK, projects)
}

func (s *Server) getProject(w http.ResponseWriter, r *http.Request) {
	p, err := s.store.GetProject(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (s *Server) createProject(w http.ResponseWriter, r *http.Request) {
	var body struct {
		FacilityID    string  `json:"facility_id"`
		SourceVisitID *string `json:"source_visit_id"`
		Status        string  `json:"status"`
		Notes         string  `json:"notes"`
	}
	if err := decodeJSON(r, &body); err != nil {
		badRequest(w, "invalid request body")
		return
	}
	if body.FacilityID == "" {
		badRequest(w, "facility_id is required")
		return
	}
	if _, err := s.store.GetFacility(r.Context(), body.FacilityID); err != nil {
		writeError(w, err)
		return
	}

	p, err := s.store.CreateProject(r.Context(), model.Project{
		FacilityID:    body.FacilityID,
		SourceVisitID: body.SourceVisitID,
		Status:        model.ProjectStatus(body.Status),
		Notes:         body.Notes,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, p)
}

func (s *Server) patchProject(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Status *string `json:"status"`
		Notes  *string `json:"notes"`
	}
	if err := decodeJSON(r, &body); err != nil {
		badRequest(w, "invalid request body")
		return
	}
	if body.Status == nil && body.Notes == nil {
		badRequest(w, "no fields to update")
		return
	}

	update := store.ProjectUpdate{Notes: body.Notes}
	if body.Status != nil {
		status := model.ProjectStatus(*body.Status)
		switch status {
		case model.ProjectStatusDraft, model.ProjectStatusQuoted, model.ProjectStatusWon,
			model.ProjectStatusLost, model.ProjectStatusCancelled:
		default:
			badRequest(w, "invalid status")
			return
		}
		update.Status = &status
	}

	p, err := s.store.UpdateProject(r.Context(), chi.URLParam(r, "id"), update)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (s *Server) deleteProject(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := s.store.DeleteProject(r.Context(), id); err != nil {
		writeError(w, err)
		return
	}
	if err := s.uploads.RemoveProjectFiles(id); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"deleted": true})
}

func (s *Server) uploadProjectFile(w http.ResponseWriter, r *http.Request) {
	projectID := chi.URLParam(r, "id")
	if _, err := s.store.GetProject(r.Context(), projectID); err != nil {
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

	added := []model.ProjectFile{}
	for _, fh := range files {
		stored, err := s.saveProjectUpload(r, projectID, fh)
		if err != nil {
			badRequest(w, err.Error())
			return
		}
		added = append(added, *stored)
	}
	writeJSON(w, http.StatusCreated, added)
}

func (s *Server) saveProjectUpload(r *http.Request, projectID string, fh *multipart.FileHeader) (*model.ProjectFile, error) {
	if err := checkUpload(fh, projectFileExts); err != nil {
		return nil, err
	}

	src, err := fh.Open()
	if err != nil {
		return nil, err
	}
	defer src.Close()

	stored, err := s.uploads.SaveProjectFile(projectID, fh.Filename, src)
	if err != nil {
		return nil, err
	}

	return s.store.AddProjectFile(r.Context(), model.ProjectFile{
		ProjectID:    projectID,
		Filename:     stored,
		OriginalName: fh.Filename,
		FileType:     projectFileType(fh.Filename),
	})
}

func (s *Server) downloadProjectFile(w http.ResponseWriter, r *http.Request) {
	projectID := chi.URLParam(r, "id")
	filename := chi.URLParam(r, "filename")

	f, err := s.store.GetProjectFile(r.Context(), projectID, filename)
	if err != nil {
		writeError(w, err)
		return
	}

	w.Header().Set("Content-Disposition", `attachment; filename="`+f.OriginalName+`"`)
	http.ServeFile(w, r, s.uploads.ProjectFilePath(projectID, f.Filename))
}

func (s *Server) convertToCommissioning(w http.ResponseWriter, r *http.Request) {
	projectID := chi.URLParam(r, "id")
	if _, err := s.store.GetProject(r.Context(), projectID); err != nil {
		writeError(w, err)
		return
	}

	c, err := s.store.CreateCommissioning(r.Context(), projectID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, c)
}

func (s *Server) listCommissionings(w http.ResponseWriter, r *http.Request) {
	comms, err := s.store.ListCommissionings(r.Context(), r.URL.Query().Get("facility_id"))
	if err != nil {
		writeError(w, err)
		return
	}
	if comms == nil {
		comms = []model.Commissioning{}
	}
	writeJSON(w, http.StatusOK, comms)
}
