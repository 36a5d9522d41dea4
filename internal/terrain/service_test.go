package terrain

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/i474232898/terrain-invest/internal/observability"
)

var errUpstream = errors.New("upstream down")

type stubElevation struct {
	heights map[Point]float64
	gridErr error
	err     error
}

func (s *stubElevation) Elevation(_ context.Context, lat, lon float64) (Signal[float64], error) {
	if s.err != nil {
		return Unavailable[float64](), s.err
	}
	h, ok := s.heights[Point{Lat: lat, Lon: lon}]
	if !ok {
		return Unavailable[float64](), nil
	}
	return Available(h), nil
}

func (s *stubElevation) ElevationGrid(_ context.Context, lat, lon float64) ([]float64, error) {
	if s.gridErr != nil {
		return nil, s.gridErr
	}
	h := s.heights[Point{Lat: lat, Lon: lon}]
	return []float64{h, h, h, h, h, h, h, h, h}, nil
}

type stubFeatures struct {
	reports map[Point]LandUseReport
	failAt  map[Point]bool
	radii   []float64
}

func (s *stubFeatures) LandUseAndRoad(_ context.Context, lat, lon, radiusM float64) (LandUseReport, error) {
	s.radii = append(s.radii, radiusM)
	p := Point{Lat: lat, Lon: lon}
	if s.failAt[p] {
		return LandUseReport{}, errUpstream
	}
	return s.reports[p], nil
}

type stubRainfall struct {
	mm  float64
	err error
}

func (s *stubRainfall) Rainfall3Day(context.Context, float64, float64) (float64, error) {
	return s.mm, s.err
}

type stubStore struct {
	sites    []Location
	sitesErr error
	saved    []AnalysisResult
	failFor  map[string]bool
	lastIDs  []string
}

func (s *stubStore) ListSites(_ context.Context, ids []string) ([]Location, error) {
	s.lastIDs = ids
	if s.sitesErr != nil {
		return nil, s.sitesErr
	}
	if len(ids) == 0 {
		return s.sites, nil
	}
	var out []Location
	for _, site := range s.sites {
		for _, id := range ids {
			if site.ID == id {
				out = append(out, site)
			}
		}
	}
	return out, nil
}

func (s *stubStore) SaveAnalysis(_ context.Context, r AnalysisResult) (AnalysisResult, error) {
	if s.failFor[r.SiteID] {
		return AnalysisResult{}, errors.New("insert failed")
	}
	s.saved = append(s.saved, r)
	return r, nil
}

func (s *stubStore) ListAnalyses(context.Context) ([]AnalysisResult, error) {
	out := make([]AnalysisResult, 0, len(s.saved))
	for i := len(s.saved) - 1; i >= 0; i-- {
		out = append(out, s.saved[i])
	}
	return out, nil
}

var (
	lowland  = Location{ID: "lowland", DisplayName: "Lowland", Lat: 1, Lon: 1}
	farm     = Location{ID: "farm", DisplayName: "Farm", Lat: 2, Lon: 2}
	woodland = Location{ID: "woodland", Lat: 3, Lon: 3}
)

type fixture struct {
	elevation *stubElevation
	features  *stubFeatures
	rainfall  *stubRainfall
	store     *stubStore
	clock     *clockwork.FakeClock
	svc       *Service
}

func newFixture(opts ...Option) *fixture {
	f := &fixture{
		elevation: &stubElevation{heights: map[Point]float64{
			{Lat: 1, Lon: 1}: 2,
			{Lat: 2, Lon: 2}: 40,
			{Lat: 3, Lon: 3}: 10,
		}},
		features: &stubFeatures{
			reports: map[Point]LandUseReport{
				{Lat: 1, Lon: 1}: {NearestRoadM: Available(900.0)},
				{Lat: 2, Lon: 2}: {
					LandUse: []LandUseFeature{
						{Type: "landuse", Value: "farmland"},
						{Type: "landuse", Value: "farmland"},
					},
					NearestRoadM: Available(50.0),
				},
				{Lat: 3, Lon: 3}: {
					LandUse:      []LandUseFeature{{Type: "landuse", Value: "forest"}},
					NearestRoadM: Available(300.0),
				},
			},
			failAt: map[Point]bool{},
		},
		rainfall: &stubRainfall{mm: 10},
		store:    &stubStore{failFor: map[string]bool{}},
		clock:    clockwork.NewFakeClockAt(time.Date(2025, 3, 1, 8, 0, 0, 0, time.UTC)),
	}
	opts = append([]Option{WithClock(f.clock)}, opts...)
	f.svc = NewService(f.elevation, f.features, f.rainfall, f.store,
		observability.NewMetricsForTesting(), zap.NewNop().Sugar(), opts...)
	return f
}

func TestAnalyze_SortsByScoreDescending(t *testing.T) {
	f := newFixture()

	results, err := f.svc.Analyze(context.Background(), BatchRequest{
		Locations: []Location{lowland, woodland, farm},
	})
	require.NoError(t, err)
	require.Len(t, results, 3)

	assert.Equal(t, "farm", results[0].SiteID)
	assert.Equal(t, "woodland", results[1].SiteID)
	assert.Equal(t, "lowland", results[2].SiteID)
	for i := 1; i < len(results); i++ {
		assert.GreaterOrEqual(t, results[i-1].SuitabilityScore, results[i].SuitabilityScore)
	}

	// Locations are persisted in request order.
	require.Len(t, f.store.saved, 3)
	assert.Equal(t, "lowland", f.store.saved[0].SiteID)
	assert.Equal(t, "farm", f.store.saved[2].SiteID)
}

func TestAnalyze_FarmResultFields(t *testing.T) {
	f := newFixture()

	results, err := f.svc.Analyze(context.Background(), BatchRequest{Locations: []Location{farm}})
	require.NoError(t, err)
	require.Len(t, results, 1)

	r := results[0]
	assert.NotEmpty(t, r.ID)
	assert.Equal(t, "Farm", r.SiteName)
	assert.Equal(t, Available(40.0), r.ElevationM)
	assert.Zero(t, r.SlopeDeg)
	assert.Equal(t, Available(50.0), r.NearestRoadM)
	assert.Equal(t, 10.0, r.Rainfall3DayMM)
	// 0.5 + 0.05 + 0.1 + 0.12 + 0.12
	assert.Equal(t, 0.89, r.SuitabilityScore)
	assert.Equal(t, []string{RecInvestment, RecSolarPilot}, r.RecommendedActions)
	require.Len(t, r.LandUse, 1)
	assert.Equal(t, "farmland", r.LandUse[0].Value)
	assert.Equal(t, f.clock.Now(), r.CreatedAt)
}

func TestAnalyze_LandUseFailureDegradesOneLocation(t *testing.T) {
	f := newFixture()
	f.features.failAt[Point{Lat: 1, Lon: 1}] = true

	results, err := f.svc.Analyze(context.Background(), BatchRequest{
		Locations: []Location{lowland, farm},
	})
	require.NoError(t, err)
	require.Len(t, results, 2)

	byID := map[string]AnalysisResult{}
	for _, r := range results {
		byID[r.SiteID] = r
	}

	failed := byID["lowland"]
	assert.False(t, failed.NearestRoadM.OK)
	assert.Empty(t, failed.LandUse)
	// 0.5 - 0.25 + 0.1
	assert.Equal(t, 0.35, failed.SuitabilityScore)

	full := byID["farm"]
	assert.True(t, full.NearestRoadM.OK)
	assert.Len(t, full.LandUse, 1)
}

func TestEvaluate_AllUpstreamsDown(t *testing.T) {
	f := newFixture()
	f.elevation.err = errUpstream
	f.elevation.gridErr = errUpstream
	f.features.failAt[Point{Lat: 2, Lon: 2}] = true
	f.rainfall.err = errUpstream

	r := f.svc.Evaluate(context.Background(), farm)

	assert.False(t, r.ElevationM.OK)
	assert.Zero(t, r.SlopeDeg)
	assert.False(t, r.NearestRoadM.OK)
	assert.Empty(t, r.LandUse)
	assert.Zero(t, r.Rainfall3DayMM)
	// Only the flat-slope bonus applies.
	assert.Equal(t, 0.6, r.SuitabilityScore)
	assert.Equal(t, []string{RecIrrigation, RecPilotPrograms}, r.RecommendedActions)
}

func TestAnalyze_SkipsLocationsThatFailToPersist(t *testing.T) {
	f := newFixture()
	f.store.failFor["woodland"] = true

	results, err := f.svc.Analyze(context.Background(), BatchRequest{
		Locations: []Location{lowland, woodland, farm},
	})
	require.NoError(t, err)
	require.Len(t, results, 2)
	for _, r := range results {
		assert.NotEqual(t, "woodland", r.SiteID)
	}
}

func TestAnalyze_ResolvesStoredSites(t *testing.T) {
	f := newFixture()
	f.store.sites = []Location{lowland, farm, woodland}

	results, err := f.svc.Analyze(context.Background(), BatchRequest{SiteIDs: []string{"farm"}})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "farm", results[0].SiteID)
	assert.Equal(t, []string{"farm"}, f.store.lastIDs)

	results, err = f.svc.Analyze(context.Background(), BatchRequest{})
	require.NoError(t, err)
	assert.Len(t, results, 3)
	assert.Empty(t, f.store.lastIDs)
}

func TestAnalyze_ExplicitLocationsWinOverSiteIDs(t *testing.T) {
	f := newFixture()
	f.store.sites = []Location{lowland}

	results, err := f.svc.Analyze(context.Background(), BatchRequest{
		Locations: []Location{farm},
		SiteIDs:   []string{"lowland"},
	})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "farm", results[0].SiteID)
	assert.Nil(t, f.store.lastIDs)
}

func TestAnalyze_SiteLookupFailureFailsRequest(t *testing.T) {
	f := newFixture()
	f.store.sitesErr = errors.New("db unavailable")

	_, err := f.svc.Analyze(context.Background(), BatchRequest{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "db unavailable")
	assert.Empty(t, f.store.saved)
}

func TestAnalyze_UsesConfiguredRadius(t *testing.T) {
	f := newFixture(WithRadius(2500))

	_, err := f.svc.Analyze(context.Background(), BatchRequest{Locations: []Location{farm}})
	require.NoError(t, err)
	assert.Equal(t, []float64{2500}, f.features.radii)

	f = newFixture()
	_, err = f.svc.Analyze(context.Background(), BatchRequest{Locations: []Location{farm}})
	require.NoError(t, err)
	assert.Equal(t, []float64{DefaultSearchRadiusM}, f.features.radii)
}

func TestHistory_ReturnsStoredResults(t *testing.T) {
	f := newFixture()

	_, err := f.svc.Analyze(context.Background(), BatchRequest{Locations: []Location{lowland}})
	require.NoError(t, err)
	f.clock.Advance(time.Minute)
	_, err = f.svc.Analyze(context.Background(), BatchRequest{Locations: []Location{farm}})
	require.NoError(t, err)

	history, err := f.svc.History(context.Background())
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, "farm", history[0].SiteID)
	assert.Equal(t, "lowland", history[1].SiteID)
}
