// Package server exposes the CRM over HTTP: facility listing and CRM
// updates for the dashboard, visit/project/commissioning tracking, contact
// discovery, and a trigger for the ingestion pipeline.
package server

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"github.com/integratec/plant-crm/internal/geo"
	"github.com/integratec/plant-crm/internal/ingest"
	"github.com/integratec/plant-crm/internal/store"
	"github.com/integratec/plant-crm/internal/uploads"
	"github.com/integratec/plant-crm/pkg/hunter"
	"github.com/integratec/plant-crm/pkg/places"
)

// Server holds the handler dependencies. Optional integrations (places,
// hunter, the pipeline runner) may be nil when their API keys are not
// configured; the affected endpoints return 503.
type Server struct {
	store   store.Store
	uploads uploads.Dir

	places places.Client
	hunter hunter.Client
	ref    *geo.RefCache
	runner *ingest.Runner

	pipelineTimeout time.Duration
}

// Option configures the server.
type Option func(*Server)

// WithPlaces enables the photo proxy.
func WithPlaces(pc places.Client) Option {
	return func(s *Server) { s.places = pc }
}

// WithHunter enables contact discovery.
func WithHunter(hc hunter.Client) Option {
	return func(s *Server) { s.hunter = hc }
}

// WithRefCache enables the distance_miles column.
func WithRefCache(rc *geo.RefCache) Option {
	return func(s *Server) { s.ref = rc }
}

// WithRunner enables the pipeline trigger endpoint.
func WithRunner(r *ingest.Runner, timeout time.Duration) Option {
	return func(s *Server) {
		s.runner = r
		s.pipelineTimeout = timeout
	}
}

// New creates a Server over the given store and upload directory.
func New(st store.Store, up uploads.Dir, opts ...Option) *Server {
	s := &Server{
		store:           st,
		uploads:         up,
		pipelineTimeout: 15 * time.Minute,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Router builds the HTTP handler.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(requestLogger)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"*"},
	}))

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Route("/api", func(api chi.Router) {
		api.Post("/pipeline/run", s.runPipeline)

		api.Route("/facilities", func(fr chi.Router) {
			fr.Get("/", s.listFacilities)
			fr.Get("/metrics", s.facilityMetrics)
			fr.Get("/bounds", s.facilityBounds)
			fr.Get("/export", s.exportFacilities)
			fr.Delete("/", s.bulkDeleteFacilities)
			fr.Post("/cleanup-non-manufacturing", s.cleanupNonManufacturing)

			fr.Route("/{id}", func(one chi.Router) {
				one.Get("/", s.getFacility)
				one.Patch("/", s.patchFacility)
				one.Delete("/", s.deleteFacility)
				one.Get("/photo", s.facilityPhoto)
				one.Get("/contacts", s.listFacilityContacts)
				one.Post("/find-contacts", s.findContacts)
			})
		})

		api.Route("/contacts", func(cr chi.Router) {
			cr.Get("/", s.listContacts)
			cr.Get("/{id}", s.getContact)
			cr.Delete("/{id}", s.deleteContact)
		})

		api.Route("/visits", func(vr chi.Router) {
			vr.Get("/", s.listVisits)
			vr.Post("/", s.createVisit)
			vr.Get("/{id}", s.getVisit)
			vr.Delete("/{id}", s.deleteVisit)
			vr.Post("/{id}/files", s.uploadVisitFile)
			vr.Get("/{id}/files/{filename}", s.downloadVisitFile)
		})

		api.Route("/projects", func(pr chi.Router) {
			pr.Get("/", s.listProjects)
			pr.Post("/", s.createProject)
			pr.Get("/{id}", s.getProject)
			pr.Patch("/{id}", s.patchProject)
			pr.Delete("/{id}", s.deleteProject)
			pr.Post("/{id}/files", s.uploadProjectFile)
			pr.Get("/{id}/files/{filename}", s.downloadProjectFile)
			pr.Post("/{id}/convert-to-commissioning", s.convertToCommissioning)
		})

		api.Get("/commissionings", s.listCommissionings)
	})

	return r
}

// requestLogger logs one line per request through the global zap logger.
func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		zap.L().Info("request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Duration("duration", time.Since(start)),
		)
	})
}
