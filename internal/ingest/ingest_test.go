package ingest

import (
	"context"
	"testing"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/integratec/plant-crm/internal/model"
	"github.com/integratec/plant-crm/pkg/geocode"
	"github.com/integratec/plant-crm/pkg/places"
)

type fakePlaces struct {
	searches    map[string][]places.Place
	details     map[string]*places.Place
	detailErr   error
	detailCalls []string
}

func (f *fakePlaces) SearchText(_ context.Context, req places.SearchTextRequest) (*places.SearchTextResponse, error) {
	return &places.SearchTextResponse{Places: f.searches[req.TextQuery]}, nil
}

func (f *fakePlaces) GetDetails(_ context.Context, placeID string) (*places.Place, error) {
	f.detailCalls = append(f.detailCalls, placeID)
	if f.detailErr != nil {
		return nil, f.detailErr
	}
	if d, ok := f.details[placeID]; ok {
		return d, nil
	}
	return &places.Place{ID: placeID}, nil
}

func (f *fakePlaces) PhotoMedia(_ context.Context, _ string, _ int) ([]byte, string, error) {
	return nil, "", eris.New("not implemented")
}

type fakeStore struct {
	existing  map[string]struct{}
	upserts   []model.Facility
	upsertErr error
}

func (f *fakeStore) UpsertFacility(_ context.Context, fac model.Facility) (bool, error) {
	if f.upsertErr != nil {
		return false, f.upsertErr
	}
	f.upserts = append(f.upserts, fac)
	if f.existing == nil {
		f.existing = make(map[string]struct{})
	}
	_, present := f.existing[fac.PlaceID]
	f.existing[fac.PlaceID] = struct{}{}
	return !present, nil
}

func (f *fakeStore) CountFacilities(_ context.Context) (int, error) {
	return len(f.existing), nil
}

type stubGeocoder struct {
	rect *geocode.Rect
	err  error
	got  string
}

func (s *stubGeocoder) Viewport(_ context.Context, location string) (*geocode.Rect, error) {
	s.got = location
	return s.rect, s.err
}

func (s *stubGeocoder) Locate(_ context.Context, _ string) (*geocode.LatLng, error) {
	return nil, eris.New("not implemented")
}

func plantPlace(id, name string) places.Place {
	return places.Place{
		ID:          id,
		DisplayName: places.DisplayName{Text: name},
		PrimaryType: "manufacturer",
		Types:       []string{"manufacturer"},
		EditorialSummary: &places.DisplayName{
			Text: "Industrial manufacturing operation.",
		},
	}
}

func newTestRunner(pc places.Client, gc geocode.Client, cl *Classifier, st Store, queries []string) *Runner {
	return NewRunner(pc, gc, cl, st,
		WithQueries(queries),
		WithDetailDelay(0),
		WithPageDelay(0),
	)
}

func TestRun_AddsAndCounts(t *testing.T) {
	pc := &fakePlaces{searches: map[string][]places.Place{
		"brewery": {plantPlace("p1", "Oak Cliff Brewing")},
	}}
	st := &fakeStore{}

	r := newTestRunner(pc, &stubGeocoder{}, nil, st, []string{"brewery"})
	res, err := r.Run(context.Background(), Options{})

	require.NoError(t, err)
	assert.Equal(t, 1, res.Added)
	assert.Equal(t, 0, res.Updated)
	assert.Equal(t, 1, res.Total)
	require.Len(t, st.upserts, 1)
	assert.Equal(t, "google_places", st.upserts[0].DataSource)
}

func TestRun_SecondRunUpdates(t *testing.T) {
	pc := &fakePlaces{searches: map[string][]places.Place{
		"brewery": {plantPlace("p1", "Oak Cliff Brewing")},
	}}
	st := &fakeStore{existing: map[string]struct{}{"p1": {}}}

	r := newTestRunner(pc, &stubGeocoder{}, nil, st, []string{"brewery"})
	res, err := r.Run(context.Background(), Options{})

	require.NoError(t, err)
	assert.Equal(t, 0, res.Added)
	assert.Equal(t, 1, res.Updated)
}

func TestRun_DedupsAcrossQueries(t *testing.T) {
	shared := plantPlace("p1", "Metroplex Foundry")
	pc := &fakePlaces{searches: map[string][]places.Place{
		"foundry":           {shared},
		"metal fabrication": {shared, plantPlace("p2", "Lone Star Fab")},
	}}
	st := &fakeStore{}

	r := newTestRunner(pc, &stubGeocoder{}, nil, st, []string{"foundry", "metal fabrication"})
	res, err := r.Run(context.Background(), Options{})

	require.NoError(t, err)
	assert.Equal(t, 2, res.Added)
	assert.Len(t, st.upserts, 2)
}

func TestRun_FiltersExcludedPlaces(t *testing.T) {
	grocery := places.Place{
		ID:          "g1",
		DisplayName: places.DisplayName{Text: "Tom Thumb"},
		PrimaryType: "supermarket",
		Types:       []string{"supermarket"},
	}
	pc := &fakePlaces{searches: map[string][]places.Place{
		"brewery": {grocery, plantPlace("p1", "Oak Cliff Brewing")},
	}}
	st := &fakeStore{}

	r := newTestRunner(pc, &stubGeocoder{}, nil, st, []string{"brewery"})
	res, err := r.Run(context.Background(), Options{})

	require.NoError(t, err)
	assert.Equal(t, 1, res.Added)
}

func TestRun_EnrichmentTriggersReFilter(t *testing.T) {
	// Bare search result with generic types only; details reveal an
	// excluding type.
	bare := places.Place{
		ID:          "b1",
		DisplayName: places.DisplayName{Text: "Supply Co"},
		Types:       []string{"establishment", "point_of_interest"},
	}
	pc := &fakePlaces{
		searches: map[string][]places.Place{"brewery": {bare}},
		details: map[string]*places.Place{
			"b1": {
				ID:          "b1",
				PrimaryType: "building_materials_store",
				Types:       []string{"building_materials_store"},
			},
		},
	}
	st := &fakeStore{}

	r := newTestRunner(pc, &stubGeocoder{}, nil, st, []string{"brewery"})
	res, err := r.Run(context.Background(), Options{})

	require.NoError(t, err)
	assert.Equal(t, []string{"b1"}, pc.detailCalls)
	assert.Zero(t, res.Added)
	assert.Empty(t, st.upserts)
}

func TestRun_DetailFailureKeepsCandidate(t *testing.T) {
	bare := places.Place{
		ID:          "b1",
		DisplayName: places.DisplayName{Text: "Mystery Plant"},
		Types:       []string{"establishment"},
	}
	pc := &fakePlaces{
		searches:  map[string][]places.Place{"brewery": {bare}},
		detailErr: eris.New("places: unexpected status 500"),
	}
	st := &fakeStore{}

	r := newTestRunner(pc, &stubGeocoder{}, nil, st, []string{"brewery"})
	res, err := r.Run(context.Background(), Options{})

	require.NoError(t, err)
	assert.Equal(t, 1, res.Added)
}

func TestRun_ClassifierGradesAndExcludesNone(t *testing.T) {
	pc := &fakePlaces{searches: map[string][]places.Place{
		"brewery": {plantPlace("p1", "Oak Cliff Brewing"), plantPlace("p2", "Corner Shop")},
	}}
	st := &fakeStore{}
	llm := &fakeLLM{responses: []string{
		`[{"index":0,"relevance":"high","reason":"Brewery"},
		  {"index":1,"relevance":"none","reason":"Retail"}]`,
	}}
	cl := NewClassifier(llm, "test-model", 20, 0)

	r := newTestRunner(pc, &stubGeocoder{}, cl, st, []string{"brewery"})
	res, err := r.Run(context.Background(), Options{})

	require.NoError(t, err)
	assert.Equal(t, 1, res.Added)
	require.Len(t, st.upserts, 1)
	assert.Equal(t, model.RelevanceHigh, st.upserts[0].Relevance)
	assert.Equal(t, "Brewery", st.upserts[0].RelevanceReason)
}

func TestRun_ClassifierFailureStoresUngraded(t *testing.T) {
	pc := &fakePlaces{searches: map[string][]places.Place{
		"brewery": {plantPlace("p1", "Oak Cliff Brewing")},
	}}
	st := &fakeStore{}
	llm := &fakeLLM{errs: []error{eris.New("anthropic: overloaded")}}
	cl := NewClassifier(llm, "test-model", 20, 0)

	r := newTestRunner(pc, &stubGeocoder{}, cl, st, []string{"brewery"})
	res, err := r.Run(context.Background(), Options{})

	require.NoError(t, err)
	assert.Equal(t, 1, res.Added)
	assert.Empty(t, st.upserts[0].Relevance)
}

func TestRun_LocationResolvesViewport(t *testing.T) {
	pc := &fakePlaces{searches: map[string][]places.Place{}}
	gc := &stubGeocoder{rect: &geocode.Rect{
		Low:  geocode.LatLng{Lat: 32.9, Lng: -96.9},
		High: geocode.LatLng{Lat: 33.0, Lng: -96.8},
	}}

	r := newTestRunner(pc, gc, nil, &fakeStore{}, []string{"brewery"})
	_, err := r.Run(context.Background(), Options{Location: "75001"})

	require.NoError(t, err)
	assert.Equal(t, "75001", gc.got)
}

func TestRun_BadLocationFailsRun(t *testing.T) {
	gc := &stubGeocoder{err: eris.New(`geocode: could not resolve "nowhere"`)}

	r := newTestRunner(&fakePlaces{}, gc, nil, &fakeStore{}, []string{"brewery"})
	_, err := r.Run(context.Background(), Options{Location: "nowhere"})

	require.Error(t, err)
	assert.Contains(t, err.Error(), "nowhere")
}

func TestLoadQueries_EmbeddedDefaults(t *testing.T) {
	queries, err := LoadQueries("")
	require.NoError(t, err)
	assert.Contains(t, queries, "bottling plant")
	assert.Contains(t, queries, "metal fabrication")
	assert.GreaterOrEqual(t, len(queries), 30)
}

func TestLoadQueries_MissingFile(t *testing.T) {
	_, err := LoadQueries("/nonexistent/queries.yaml")
	assert.Error(t, err)
}
