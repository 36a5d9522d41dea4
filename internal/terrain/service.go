package terrain

import (
	"context"
	"fmt"
	"sort"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"

	"github.com/i474232898/terrain-invest/internal/observability"
)

// DefaultSearchRadiusM is the feature query radius around each location.
const DefaultSearchRadiusM = 1000

// Service runs the terrain analysis pipeline and serves stored history.
type Service struct {
	elevation ElevationSource
	features  FeatureSource
	rainfall  RainfallSource
	store     Store

	radiusM float64
	clock   clockwork.Clock
	metrics *observability.Metrics
	logger  *zap.SugaredLogger
}

// Option customizes a Service.
type Option func(*Service)

// WithRadius overrides the feature query radius in meters.
func WithRadius(m float64) Option {
	return func(s *Service) {
		if m > 0 {
			s.radiusM = m
		}
	}
}

// WithClock sets the time source used for created_at stamps.
func WithClock(c clockwork.Clock) Option {
	return func(s *Service) { s.clock = c }
}

// NewService creates a new Service.
func NewService(
	elevation ElevationSource,
	features FeatureSource,
	rainfall RainfallSource,
	store Store,
	metrics *observability.Metrics,
	logger *zap.SugaredLogger,
	opts ...Option,
) *Service {
	s := &Service{
		elevation: elevation,
		features:  features,
		rainfall:  rainfall,
		store:     store,
		radiusM:   DefaultSearchRadiusM,
		clock:     clockwork.NewRealClock(),
		metrics:   metrics,
		logger:    logger,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Analyze resolves the batch, evaluates and persists each location in turn, and returns
// the persisted results ordered by suitability score, highest first. Locations whose
// result cannot be stored are left out.
func (s *Service) Analyze(ctx context.Context, req BatchRequest) ([]AnalysisResult, error) {
	locations, err := s.resolve(ctx, req)
	if err != nil {
		return nil, err
	}

	results := make([]AnalysisResult, 0, len(locations))
	for _, loc := range locations {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}

		start := s.clock.Now()
		result := s.Evaluate(ctx, loc)

		saved, err := s.store.SaveAnalysis(ctx, result)
		s.metrics.AnalysisDuration.Observe(s.clock.Since(start).Seconds())
		if err != nil {
			s.metrics.PersistFailures.WithLabelValues("analysis").Inc()
			s.logger.Warnw("skipping location: persist failed", "site", loc.Name(), "error", err)
			continue
		}
		s.metrics.AnalysesPersisted.Inc()
		results = append(results, saved)
	}

	sort.SliceStable(results, func(i, j int) bool {
		return results[i].SuitabilityScore > results[j].SuitabilityScore
	})
	return results, nil
}

// Evaluate fetches every signal for one location and scores it. Each upstream failure
// falls back to its documented default, so Evaluate always produces a result.
func (s *Service) Evaluate(ctx context.Context, loc Location) AnalysisResult {
	elevation, err := s.elevation.Elevation(ctx, loc.Lat, loc.Lon)
	if err != nil {
		s.logger.Warnw("elevation unavailable", "site", loc.Name(), "error", err)
		elevation = Unavailable[float64]()
	}

	var slope float64
	grid, err := s.elevation.ElevationGrid(ctx, loc.Lat, loc.Lon)
	if err != nil {
		s.logger.Warnw("elevation grid unavailable", "site", loc.Name(), "error", err)
	} else {
		slope = MeanSlopeDeg(grid)
	}

	report, err := s.features.LandUseAndRoad(ctx, loc.Lat, loc.Lon, s.radiusM)
	if err != nil {
		s.logger.Warnw("land use unavailable", "site", loc.Name(), "error", err)
		report = LandUseReport{NearestRoadM: Unavailable[float64]()}
	}

	rainfall, err := s.rainfall.Rainfall3Day(ctx, loc.Lat, loc.Lon)
	if err != nil {
		s.logger.Warnw("rainfall unavailable", "site", loc.Name(), "error", err)
		rainfall = 0
	}

	in := ScoreInput{
		Elevation:    elevation,
		SlopeDeg:     slope,
		NearestRoadM: report.NearestRoadM,
		LandUse:      report.LandUse,
		RainfallMM:   rainfall,
	}
	score := Score(in)
	recs := Recommend(score, in)

	s.logger.Debugw("location scored", "site", loc.Name(), "score", score, "recommendations", recs)

	return AnalysisResult{
		ID:                 uuid.NewString(),
		SiteID:             loc.ID,
		SiteName:           loc.Name(),
		Lat:                loc.Lat,
		Lon:                loc.Lon,
		ElevationM:         elevation,
		SlopeDeg:           slope,
		LandUse:            DedupeLandUse(report.LandUse),
		NearestRoadM:       report.NearestRoadM,
		Rainfall3DayMM:     rainfall,
		SuitabilityScore:   score,
		RecommendedActions: recs,
		CreatedAt:          s.clock.Now().UTC(),
	}
}

// History returns every stored result, newest first, without recomputing anything.
func (s *Service) History(ctx context.Context) ([]AnalysisResult, error) {
	return s.store.ListAnalyses(ctx)
}

func (s *Service) resolve(ctx context.Context, req BatchRequest) ([]Location, error) {
	if len(req.Locations) > 0 {
		return req.Locations, nil
	}
	sites, err := s.store.ListSites(ctx, req.SiteIDs)
	if err != nil {
		return nil, fmt.Errorf("list sites: %w", err)
	}
	return sites, nil
}
