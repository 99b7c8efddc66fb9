package server

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/integratec/plant-crm/internal/model"
	"github.com/integratec/plant-crm/internal/store"
	"github.com/integratec/plant-crm/internal/uploads"
	"github.com/integratec/plant-crm/pkg/hunter"
	"github.com/integratec/plant-crm/pkg/places"
)

// stubStore overrides the Store methods a test needs; calling anything else
// panics through the nil embedded interface.
type stubStore struct {
	store.Store

	listFacilitiesFn    func(context.Context, store.FacilityFilter) ([]model.Facility, error)
	getFacilityFn       func(context.Context, string) (*model.Facility, error)
	updateCRMFn         func(context.Context, string, store.CRMUpdate) (*model.Facility, error)
	deleteFacilitiesFn  func(context.Context, []string) (int, error)
	metricsFn           func(context.Context) (*model.Metrics, error)
	listContactsFn      func(context.Context, string) ([]model.Contact, error)
	contactSourceIDsFn  func(context.Context, string) (map[string]struct{}, error)
	createContactFn     func(context.Context, model.Contact) (*model.Contact, error)
	createVisitFn       func(context.Context, model.Visit) (*model.Visit, error)
	addVisitFileFn      func(context.Context, model.VisitFile) (*model.VisitFile, error)
	getProjectFn        func(context.Context, string) (*model.Project, error)
	createProjectFn     func(context.Context, model.Project) (*model.Project, error)
	createCommFn        func(context.Context, string) (*model.Commissioning, error)
}

func (s *stubStore) ListFacilities(ctx context.Context, f store.FacilityFilter) ([]model.Facility, error) {
	return s.listFacilitiesFn(ctx, f)
}

func (s *stubStore) GetFacility(ctx context.Context, id string) (*model.Facility, error) {
	return s.getFacilityFn(ctx, id)
}

func (s *stubStore) UpdateFacilityCRM(ctx context.Context, id string, u store.CRMUpdate) (*model.Facility, error) {
	return s.updateCRMFn(ctx, id, u)
}

func (s *stubStore) DeleteFacilities(ctx context.Context, ids []string) (int, error) {
	return s.deleteFacilitiesFn(ctx, ids)
}

func (s *stubStore) FacilityMetrics(ctx context.Context) (*model.Metrics, error) {
	return s.metricsFn(ctx)
}

func (s *stubStore) ListContacts(ctx context.Context, facilityID string) ([]model.Contact, error) {
	return s.listContactsFn(ctx, facilityID)
}

func (s *stubStore) ContactSourceIDs(ctx context.Context, facilityID string) (map[string]struct{}, error) {
	return s.contactSourceIDsFn(ctx, facilityID)
}

func (s *stubStore) CreateContact(ctx context.Context, c model.Contact) (*model.Contact, error) {
	return s.createContactFn(ctx, c)
}

func (s *stubStore) CreateVisit(ctx context.Context, v model.Visit) (*model.Visit, error) {
	return s.createVisitFn(ctx, v)
}

func (s *stubStore) AddVisitFile(ctx context.Context, f model.VisitFile) (*model.VisitFile, error) {
	return s.addVisitFileFn(ctx, f)
}

func (s *stubStore) GetProject(ctx context.Context, id string) (*model.Project, error) {
	return s.getProjectFn(ctx, id)
}

func (s *stubStore) CreateProject(ctx context.Context, p model.Project) (*model.Project, error) {
	return s.createProjectFn(ctx, p)
}

func (s *stubStore) CreateCommissioning(ctx context.Context, projectID string) (*model.Commissioning, error) {
	return s.createCommFn(ctx, projectID)
}

type stubPlaces struct {
	photo       []byte
	contentType string
	err         error
}

func (s *stubPlaces) SearchText(context.Context, places.SearchTextRequest) (*places.SearchTextResponse, error) {
	return nil, eris.New("not implemented")
}

func (s *stubPlaces) GetDetails(context.Context, string) (*places.Place, error) {
	return nil, eris.New("not implemented")
}

func (s *stubPlaces) PhotoMedia(context.Context, string, int) ([]byte, string, error) {
	return s.photo, s.contentType, s.err
}

type stubHunter struct {
	resp *hunter.DomainSearchResponse
	err  error
}

func (s *stubHunter) DomainSearch(context.Context, string, int) (*hunter.DomainSearchResponse, error) {
	return s.resp, s.err
}

func serve(t *testing.T, srv *Server, req *http.Request) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)
	return rec
}

func newServer(t *testing.T, st store.Store, opts ...Option) *Server {
	t.Helper()
	return New(st, uploads.New(t.TempDir()), opts...)
}

func TestHealth(t *testing.T) {
	srv := newServer(t, &stubStore{})
	rec := serve(t, srv, httptest.NewRequest("GET", "/health", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}

func TestListFacilities_ContactedFilter(t *testing.T) {
	var got store.FacilityFilter
	st := &stubStore{
		listFacilitiesFn: func(_ context.Context, f store.FacilityFilter) ([]model.Facility, error) {
			got = f
			return []model.Facility{{ID: "f1", Name: "Acme Foundry"}}, nil
		},
	}
	srv := newServer(t, st)

	rec := serve(t, srv, httptest.NewRequest("GET", "/api/facilities/?contacted=true&limit=50", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	require.NotNil(t, got.Contacted)
	assert.True(t, *got.Contacted)
	assert.Equal(t, 50, got.Limit)

	var body []model.Facility
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Len(t, body, 1)
	assert.Equal(t, "Acme Foundry", body[0].Name)
}

func TestListFacilities_BadContacted(t *testing.T) {
	srv := newServer(t, &stubStore{})
	rec := serve(t, srv, httptest.NewRequest("GET", "/api/facilities/?contacted=maybe", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestGetFacility_NotFound(t *testing.T) {
	st := &stubStore{
		getFacilityFn: func(_ context.Context, id string) (*model.Facility, error) {
			return nil, eris.Wrapf(store.ErrNotFound, "facility %s", id)
		},
	}
	srv := newServer(t, st)

	rec := serve(t, srv, httptest.NewRequest("GET", "/api/facilities/missing/", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestPatchFacility_NullClearsFollowUpDate(t *testing.T) {
	var got store.CRMUpdate
	st := &stubStore{
		updateCRMFn: func(_ context.Context, _ string, u store.CRMUpdate) (*model.Facility, error) {
			got = u
			return &model.Facility{ID: "f1"}, nil
		},
	}
	srv := newServer(t, st)

	req := httptest.NewRequest("PATCH", "/api/facilities/f1/",
		strings.NewReader(`{"contacted":true,"follow_up_date":null}`))
	rec := serve(t, srv, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	require.NotNil(t, got.Contacted)
	assert.True(t, *got.Contacted)
	assert.True(t, got.FollowUpDateSet)
	assert.Nil(t, got.FollowUpDate)
	assert.False(t, got.NotesSet)
}

func TestPatchFacility_EmptyBody(t *testing.T) {
	srv := newServer(t, &stubStore{})
	rec := serve(t, srv, httptest.NewRequest("PATCH", "/api/facilities/f1/", strings.NewReader(`{}`)))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestBulkDeleteFacilities(t *testing.T) {
	st := &stubStore{
		deleteFacilitiesFn: func(_ context.Context, ids []string) (int, error) {
			return len(ids), nil
		},
	}
	srv := newServer(t, st)

	rec := serve(t, srv, httptest.NewRequest("DELETE", "/api/facilities/",
		strings.NewReader(`{"ids":["a","b"]}`)))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"deleted":2}`, rec.Body.String())

	rec = serve(t, srv, httptest.NewRequest("DELETE", "/api/facilities/", strings.NewReader(`{}`)))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestFacilityMetrics(t *testing.T) {
	st := &stubStore{
		metricsFn: func(context.Context) (*model.Metrics, error) {
			return &model.Metrics{Total: 5, Contacted: 2}, nil
		},
	}
	srv := newServer(t, st)

	rec := serve(t, srv, httptest.NewRequest("GET", "/api/facilities/metrics", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"total":5`)
	assert.Contains(t, rec.Body.String(), `"contacted":2`)
}

func TestFacilityBounds(t *testing.T) {
	lat1, lng1 := 32.5, -97.0
	lat2, lng2 := 33.0, -96.5
	st := &stubStore{
		listFacilitiesFn: func(context.Context, store.FacilityFilter) ([]model.Facility, error) {
			return []model.Facility{
				{Lat: &lat1, Lng: &lng1},
				{Lat: &lat2, Lng: &lng2},
				{}, // no coordinates
			}, nil
		},
	}
	srv := newServer(t, st)

	rec := serve(t, srv, httptest.NewRequest("GET", "/api/facilities/bounds", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"minLat":32.5,"minLng":-97.0,"maxLat":33.0,"maxLng":-96.5}`, rec.Body.String())
}

func TestFacilityBounds_NoCoordinates(t *testing.T) {
	st := &stubStore{
		listFacilitiesFn: func(context.Context, store.FacilityFilter) ([]model.Facility, error) {
			return nil, nil
		},
	}
	srv := newServer(t, st)

	rec := serve(t, srv, httptest.NewRequest("GET", "/api/facilities/bounds", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "null\n", rec.Body.String())
}

func TestExportFacilities_ContentType(t *testing.T) {
	st := &stubStore{
		listFacilitiesFn: func(context.Context, store.FacilityFilter) ([]model.Facility, error) {
			return []model.Facility{{Name: "Acme Foundry", City: "Dallas"}}, nil
		},
	}
	srv := newServer(t, st)

	rec := serve(t, srv, httptest.NewRequest("GET", "/api/facilities/export", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet",
		rec.Header().Get("Content-Type"))
	assert.Contains(t, rec.Header().Get("Content-Disposition"), "facilities-")
	assert.NotZero(t, rec.Body.Len())
}

func TestFacilityPhoto(t *testing.T) {
	st := &stubStore{
		getFacilityFn: func(context.Context, string) (*model.Facility, error) {
			return &model.Facility{ID: "f1", PhotoName: "places/p1/photos/ph1"}, nil
		},
	}

	t.Run("proxies with cache header", func(t *testing.T) {
		pc := &stubPlaces{photo: []byte("jpegbytes"), contentType: "image/jpeg"}
		srv := newServer(t, st, WithPlaces(pc))

		rec := serve(t, srv, httptest.NewRequest("GET", "/api/facilities/f1/photo", nil))
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "image/jpeg", rec.Header().Get("Content-Type"))
		assert.Equal(t, "public, max-age=86400", rec.Header().Get("Cache-Control"))
		assert.Equal(t, "jpegbytes", rec.Body.String())
	})

	t.Run("503 without places client", func(t *testing.T) {
		srv := newServer(t, st)
		rec := serve(t, srv, httptest.NewRequest("GET", "/api/facilities/f1/photo", nil))
		assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	})

	t.Run("404 without photo", func(t *testing.T) {
		noPhoto := &stubStore{
			getFacilityFn: func(context.Context, string) (*model.Facility, error) {
				return &model.Facility{ID: "f1"}, nil
			},
		}
		srv := newServer(t, noPhoto, WithPlaces(&stubPlaces{}))
		rec := serve(t, srv, httptest.NewRequest("GET", "/api/facilities/f1/photo", nil))
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})
}

func TestFindContacts_DedupsBySourceID(t *testing.T) {
	var created []model.Contact
	st := &stubStore{
		getFacilityFn: func(context.Context, string) (*model.Facility, error) {
			return &model.Facility{ID: "f1", Website: "https://www.acme.com"}, nil
		},
		contactSourceIDsFn: func(context.Context, string) (map[string]struct{}, error) {
			return map[string]struct{}{"old@acme.com": {}}, nil
		},
		createContactFn: func(_ context.Context, c model.Contact) (*model.Contact, error) {
			c.ID = "c" + c.Email
			created = append(created, c)
			return &c, nil
		},
	}
	hc := &stubHunter{resp: &hunter.DomainSearchResponse{}}
	hc.resp.Data.Emails = []hunter.Email{
		{Value: "old@acme.com", FirstName: "Old"},
		{Value: "new@acme.com", FirstName: "New", Position: "Plant Manager"},
	}
	srv := newServer(t, st, WithHunter(hc))

	rec := serve(t, srv, httptest.NewRequest("POST", "/api/facilities/f1/find-contacts", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	require.Len(t, created, 1)
	assert.Equal(t, "new@acme.com", created[0].Email)
	assert.Equal(t, "Plant Manager", created[0].Title)
	assert.Equal(t, "hunter", created[0].Source)
	assert.Contains(t, rec.Body.String(), `"added":1`)
}

func TestFindContacts_NoWebsite(t *testing.T) {
	st := &stubStore{
		getFacilityFn: func(context.Context, string) (*model.Facility, error) {
			return &model.Facility{ID: "f1"}, nil
		},
	}
	srv := newServer(t, st, WithHunter(&stubHunter{}))

	rec := serve(t, srv, httptest.NewRequest("POST", "/api/facilities/f1/find-contacts", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestRunPipeline_Unconfigured(t *testing.T) {
	srv := newServer(t, &stubStore{})
	rec := serve(t, srv, httptest.NewRequest("POST", "/api/pipeline/run", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestCreateProject(t *testing.T) {
	st := &stubStore{
		getFacilityFn: func(context.Context, string) (*model.Facility, error) {
			return &model.Facility{ID: "f1"}, nil
		},
		createProjectFn: func(_ context.Context, p model.Project) (*model.Project, error) {
			p.ID = "proj-1"
			p.PRNumber = "PR-001"
			p.Status = model.ProjectStatusDraft
			return &p, nil
		},
	}
	srv := newServer(t, st)

	rec := serve(t, srv, httptest.NewRequest("POST", "/api/projects/",
		strings.NewReader(`{"facility_id":"f1","notes":"big quote"}`)))
	assert.Equal(t, http.StatusCreated, rec.Code)
	assert.Contains(t, rec.Body.String(), `"pr_number":"PR-001"`)
}

func TestCreateProject_MissingFacilityID(t *testing.T) {
	srv := newServer(t, &stubStore{})
	rec := serve(t, srv, httptest.NewRequest("POST", "/api/projects/", strings.NewReader(`{}`)))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestPatchProject_InvalidStatus(t *testing.T) {
	srv := newServer(t, &stubStore{})
	rec := serve(t, srv, httptest.NewRequest("PATCH", "/api/projects/p1",
		strings.NewReader(`{"status":"maybe"}`)))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestConvertToCommissioning_Conflict(t *testing.T) {
	st := &stubStore{
		getProjectFn: func(context.Context, string) (*model.Project, error) {
			return &model.Project{ID: "p1"}, nil
		},
		createCommFn: func(_ context.Context, projectID string) (*model.Commissioning, error) {
			return nil, eris.Wrapf(store.ErrConflict, "project %s already has a commissioning", projectID)
		},
	}
	srv := newServer(t, st)

	rec := serve(t, srv, httptest.NewRequest("POST", "/api/projects/p1/convert-to-commissioning", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "already has a commissioning")
}

func TestCreateVisit_Multipart(t *testing.T) {
	var createdVisit *model.Visit
	var addedFiles []model.VisitFile
	st := &stubStore{
		getFacilityFn: func(context.Context, string) (*model.Facility, error) {
			return &model.Facility{ID: "f1"}, nil
		},
		createVisitFn: func(_ context.Context, v model.Visit) (*model.Visit, error) {
			v.ID = "v1"
			createdVisit = &v
			return &v, nil
		},
		addVisitFileFn: func(_ context.Context, f model.VisitFile) (*model.VisitFile, error) {
			f.ID = "vf1"
			addedFiles = append(addedFiles, f)
			return &f, nil
		},
	}
	srv := newServer(t, st)

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	require.NoError(t, mw.WriteField("facility_id", "f1"))
	require.NoError(t, mw.WriteField("visit_date", "2026-08-15"))
	require.NoError(t, mw.WriteField("notes", "walkthrough"))
	fw, err := mw.CreateFormFile("files", "report.pdf")
	require.NoError(t, err)
	_, err = fw.Write([]byte("pdf bytes"))
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	req := httptest.NewRequest("POST", "/api/visits/", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	rec := serve(t, srv, req)

	assert.Equal(t, http.StatusCreated, rec.Code)
	require.NotNil(t, createdVisit)
	assert.Equal(t, "2026-08-15", createdVisit.VisitDate)
	require.Len(t, addedFiles, 1)
	assert.Equal(t, "report.pdf", addedFiles[0].OriginalName)
	assert.True(t, strings.HasSuffix(addedFiles[0].Filename, ".pdf"))
}

func TestCreateVisit_RejectsBadFileType(t *testing.T) {
	st := &stubStore{
		getFacilityFn: func(context.Context, string) (*model.Facility, error) {
			return &model.Facility{ID: "f1"}, nil
		},
		createVisitFn: func(_ context.Context, v model.Visit) (*model.Visit, error) {
			v.ID = "v1"
			return &v, nil
		},
	}
	srv := newServer(t, st)

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	require.NoError(t, mw.WriteField("facility_id", "f1"))
	require.NoError(t, mw.WriteField("visit_date", "2026-08-15"))
	fw, err := mw.CreateFormFile("files", "malware.exe")
	require.NoError(t, err)
	_, err = fw.Write([]byte("nope"))
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	req := httptest.NewRequest("POST", "/api/visits/", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	rec := serve(t, srv, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "unsupported file type")
}

func TestCleanupNonManufacturing(t *testing.T) {
	var deleted []string
	st := &stubStore{
		listFacilitiesFn: func(context.Context, store.FacilityFilter) ([]model.Facility, error) {
			return []model.Facility{
				{ID: "keep", Name: "Acme Foundry", PrimaryType: "manufacturer"},
				{ID: "drop", Name: "Tom Thumb", PrimaryType: "supermarket"},
			}, nil
		},
		deleteFacilitiesFn: func(_ context.Context, ids []string) (int, error) {
			deleted = ids
			return len(ids), nil
		},
	}
	srv := newServer(t, st)

	rec := serve(t, srv, httptest.NewRequest("POST", "/api/facilities/cleanup-non-manufacturing", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []string{"drop"}, deleted)
	assert.JSONEq(t, `{"deleted":1}`, rec.Body.String())
}

func TestListFacilityContacts(t *testing.T) {
	st := &stubStore{
		listContactsFn: func(_ context.Context, facilityID string) ([]model.Contact, error) {
			assert.Equal(t, "f1", facilityID)
			return []model.Contact{{ID: "c1", Email: "pm@acme.com"}}, nil
		},
	}
	srv := newServer(t, st)

	rec := serve(t, srv, httptest.NewRequest("GET", "/api/facilities/f1/contacts", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "pm@acme.com")
}
