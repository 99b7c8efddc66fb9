// Package ingest discovers manufacturing facilities through provider text
// search, filters and classifies them, and upserts the survivors.
package ingest

import (
	"context"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/integratec/plant-crm/internal/model"
	"github.com/integratec/plant-crm/pkg/geocode"
	"github.com/integratec/plant-crm/pkg/places"
)

// defaultViewport covers the Dallas-Fort Worth metroplex, the default
// search area when no location is given.
var defaultViewport = places.Rectangle{
	Low:  places.LatLng{Latitude: 32.45, Longitude: -97.55},
	High: places.LatLng{Latitude: 33.35, Longitude: -96.55},
}

// Store is the persistence surface the runner needs.
type Store interface {
	// UpsertFacility inserts or refreshes a facility keyed by place ID,
	// preserving CRM-only fields on update. Reports whether a new row was
	// created.
	UpsertFacility(ctx context.Context, f model.Facility) (created bool, err error)

	// CountFacilities returns the total number of stored facilities.
	CountFacilities(ctx context.Context) (int, error)
}

// Result summarizes an ingestion run.
type Result struct {
	Added   int `json:"added"`
	Updated int `json:"updated"`
	Total   int `json:"total"`
}

// Options tune a single run.
type Options struct {
	// Location is a zip code or city name to search around. Empty means
	// the default metro viewport.
	Location string
}

// Runner executes ingestion runs. Classifier may be nil, in which case
// facilities are stored ungraded.
type Runner struct {
	places     places.Client
	geocoder   geocode.Client
	classifier *Classifier
	store      Store
	queries    []string

	detailLimiter *rate.Limiter
	pageLimiter   *rate.Limiter
}

// RunnerOption configures a Runner.
type RunnerOption func(*Runner)

// WithQueries replaces the embedded default query list.
func WithQueries(queries []string) RunnerOption {
	return func(r *Runner) {
		r.queries = queries
	}
}

// WithDetailDelay sets the minimum spacing between detail calls.
func WithDetailDelay(d time.Duration) RunnerOption {
	return func(r *Runner) {
		r.detailLimiter = rate.NewLimiter(rate.Every(d), 1)
	}
}

// WithPageDelay sets the minimum spacing between search page fetches.
func WithPageDelay(d time.Duration) RunnerOption {
	return func(r *Runner) {
		r.pageLimiter = rate.NewLimiter(rate.Every(d), 1)
	}
}

// NewRunner creates a Runner.
func NewRunner(pc places.Client, gc geocode.Client, cl *Classifier, st Store, opts ...RunnerOption) *Runner {
	r := &Runner{
		places:        pc,
		geocoder:      gc,
		classifier:    cl,
		store:         st,
		detailLimiter: rate.NewLimiter(rate.Every(150*time.Millisecond), 1),
		pageLimiter:   rate.NewLimiter(rate.Every(500*time.Millisecond), 1),
	}
	if qs, err := LoadQueries(""); err == nil {
		r.queries = qs
	}
	for _, o := range opts {
		o(r)
	}
	return r
}

// Run executes a full ingestion pass: every query, every page, filter,
// enrich, classify, upsert. Dedup is per run: the first query to return a
// place wins, later duplicates are skipped.
func (r *Runner) Run(ctx context.Context, opts Options) (*Result, error) {
	viewport := defaultViewport
	if loc := strings.TrimSpace(opts.Location); loc != "" {
		rect, err := r.geocoder.Viewport(ctx, loc)
		if err != nil {
			return nil, err
		}
		viewport = places.Rectangle{
			Low:  places.LatLng{Latitude: rect.Low.Lat, Longitude: rect.Low.Lng},
			High: places.LatLng{Latitude: rect.High.Lat, Longitude: rect.High.Lng},
		}
	}

	result := &Result{}
	seen := make(map[string]struct{})

	for _, query := range r.queries {
		if err := r.runQuery(ctx, query, viewport, seen, result); err != nil {
			return nil, err
		}
	}

	total, err := r.store.CountFacilities(ctx)
	if err != nil {
		return nil, eris.Wrap(err, "ingest: count facilities")
	}
	result.Total = total

	zap.L().Info("ingestion finished",
		zap.Int("added", result.Added),
		zap.Int("updated", result.Updated),
		zap.Int("total", result.Total))
	return result, nil
}

func (r *Runner) runQuery(ctx context.Context, query string, viewport places.Rectangle, seen map[string]struct{}, result *Result) error {
	pageToken := ""
	for {
		resp, err := r.places.SearchText(ctx, places.SearchTextRequest{
			TextQuery:           query,
			PageToken:           pageToken,
			LocationRestriction: &places.LocationRect{Rectangle: viewport},
		})
		if err != nil {
			return eris.Wrapf(err, "ingest: search %q", query)
		}

		if err := r.processPage(ctx, query, resp.Places, seen, result); err != nil {
			return err
		}

		pageToken = resp.NextPageToken
		if pageToken == "" {
			return nil
		}
		if err := r.pageLimiter.Wait(ctx); err != nil {
			return eris.Wrap(err, "ingest: page rate limit")
		}
	}
}

func (r *Runner) processPage(ctx context.Context, query string, page []places.Place, seen map[string]struct{}, result *Result) error {
	// First filter pass runs on search results alone, before spending
	// detail calls on obvious non-prospects.
	candidates := make([]model.Candidate, 0, len(page))
	for _, p := range page {
		c, ok := toCandidate(p)
		if !ok {
			continue
		}
		if Excluded(c) {
			continue
		}
		candidates = append(candidates, c)
	}

	r.enrich(ctx, candidates)

	// Second pass: enrichment may have surfaced excluding types or
	// summaries (e.g. building_materials_store).
	kept := candidates[:0]
	for _, c := range candidates {
		if Excluded(c) {
			continue
		}
		if _, dup := seen[c.PlaceID]; dup {
			continue
		}
		seen[c.PlaceID] = struct{}{}
		kept = append(kept, c)
	}

	if len(kept) == 0 {
		return nil
	}

	verdicts := r.classify(ctx, kept)

	for i, c := range kept {
		v, graded := verdicts[i]
		if graded && v.Relevance == model.RelevanceNone {
			continue
		}

		f := model.FacilityFromCandidate(c, v.Relevance, v.Reason)
		created, err := r.store.UpsertFacility(ctx, f)
		if err != nil {
			return eris.Wrapf(err, "ingest: upsert %s", c.PlaceID)
		}
		if created {
			result.Added++
		} else {
			result.Updated++
		}
	}

	zap.L().Debug("processed page",
		zap.String("query", query),
		zap.Int("returned", len(page)),
		zap.Int("kept", len(kept)))
	return nil
}

// enrich backfills summaries and types with detail calls for candidates
// that lack them. Detail failures are logged and the candidate keeps its
// search-result fields.
func (r *Runner) enrich(ctx context.Context, candidates []model.Candidate) {
	for i := range candidates {
		if !needsEnrichment(candidates[i]) {
			continue
		}
		if err := r.detailLimiter.Wait(ctx); err != nil {
			return
		}
		details, err := r.places.GetDetails(ctx, candidates[i].PlaceID)
		if err != nil {
			zap.L().Debug("detail enrichment failed",
				zap.String("place_id", candidates[i].PlaceID),
				zap.Error(err))
			continue
		}
		mergeDetails(&candidates[i], details)
	}
}

// classify grades the kept candidates. Classification is best effort: with
// no classifier configured or a failed request, candidates pass through
// ungraded rather than blocking the run.
func (r *Runner) classify(ctx context.Context, kept []model.Candidate) map[int]Verdict {
	if r.classifier == nil {
		return nil
	}
	verdicts, err := r.classifier.Classify(ctx, kept)
	if err != nil {
		zap.L().Warn("classification failed, storing ungraded", zap.Error(err))
		return nil
	}
	return verdicts
}
