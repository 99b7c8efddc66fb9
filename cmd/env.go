package main

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/integratec/plant-crm/internal/geo"
	"github.com/integratec/plant-crm/internal/ingest"
	"github.com/integratec/plant-crm/internal/store"
	"github.com/integratec/plant-crm/pkg/anthropic"
	"github.com/integratec/plant-crm/pkg/geocode"
	"github.com/integratec/plant-crm/pkg/hunter"
	"github.com/integratec/plant-crm/pkg/places"
)

// appEnv holds the initialized store and clients shared by the serve,
// ingest and cleanup commands. Optional clients are nil when their keys are
// not configured.
type appEnv struct {
	Store    store.Store
	Places   places.Client
	Geocoder geocode.Client
	Hunter   hunter.Client
	Ref      *geo.RefCache
	Runner   *ingest.Runner
}

// Close releases resources held by the environment.
func (e *appEnv) Close() {
	if e.Store != nil {
		_ = e.Store.Close()
	}
}

func initStore(ctx context.Context) (store.Store, error) {
	switch cfg.Store.Driver {
	case "postgres":
		if cfg.Store.DatabaseURL == "" {
			return nil, eris.New("store.database_url is required for the postgres driver")
		}
		return store.NewPostgres(ctx, cfg.Store.DatabaseURL)
	case "", "sqlite":
		return store.NewSQLite(cfg.Store.Path)
	}
	return nil, eris.Errorf("unknown store driver %q", cfg.Store.Driver)
}

// initEnv sets up the store and whatever API clients the configured keys
// allow. Callers should defer env.Close().
func initEnv(ctx context.Context) (*appEnv, error) {
	st, err := initStore(ctx)
	if err != nil {
		return nil, err
	}
	if err := st.Migrate(ctx); err != nil {
		_ = st.Close()
		return nil, eris.Wrap(err, "migrate store")
	}

	env := &appEnv{Store: st}

	if cfg.Google.APIKey == "" {
		zap.L().Warn("google api key not set, ingestion and photo proxy disabled")
		return env, nil
	}

	env.Places = places.NewClient(cfg.Google.APIKey)
	env.Geocoder = geocode.NewClient(cfg.Google.APIKey)
	env.Ref = geo.NewRefCache(env.Geocoder)

	var classifier *ingest.Classifier
	if cfg.Anthropic.Key != "" {
		llm := anthropic.NewClient(cfg.Anthropic.Key)
		classifier = ingest.NewClassifier(llm, cfg.Anthropic.Model, cfg.Anthropic.BatchSize,
			time.Duration(cfg.Ingest.ClassifyDelayMs)*time.Millisecond)
	} else {
		zap.L().Warn("anthropic key not set, facilities will be stored unclassified")
	}

	opts := []ingest.RunnerOption{
		ingest.WithDetailDelay(time.Duration(cfg.Ingest.DetailDelayMs) * time.Millisecond),
		ingest.WithPageDelay(time.Duration(cfg.Ingest.PageDelayMs) * time.Millisecond),
	}
	if cfg.Ingest.QueriesFile != "" {
		queries, err := ingest.LoadQueries(cfg.Ingest.QueriesFile)
		if err != nil {
			_ = st.Close()
			return nil, err
		}
		opts = append(opts, ingest.WithQueries(queries))
	}
	env.Runner = ingest.NewRunner(env.Places, env.Geocoder, classifier, st, opts...)

	if cfg.Hunter.Key != "" {
		env.Hunter = hunter.NewClient(cfg.Hunter.Key, hunter.WithBaseURL(cfg.Hunter.BaseURL))
	}

	return env, nil
}
