package server

import (
	"context"
	"net/http"

	"go.uber.org/zap"

	"github.com/integratec/plant-crm/internal/ingest"
)

// runPipeline triggers a synchronous ingestion run. Runs take minutes, so
// the request context gets an extended ceiling instead of the usual server
// timeouts.
func (s *Server) runPipeline(w http.ResponseWriter, r *http.Request) {
	if s.runner == nil {
		unavailable(w, "pipeline not configured: places api key missing")
		return
	}

	var body struct {
		Location string `json:"location"`
	}
	if r.ContentLength > 0 {
		if err := decodeJSON(r, &body); err != nil {
			badRequest(w, "invalid request body")
			return
		}
	}

	ctx, cancel := context.WithTimeout(r.Context(), s.pipelineTimeout)
	defer cancel()

	zap.L().Info("pipeline run requested", zap.String("location", body.Location))
	result, err := s.runner.Run(ctx, ingest.Options{Location: body.Location})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}
