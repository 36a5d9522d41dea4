package risk

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"

	"github.com/i474232898/terrain-invest/internal/observability"
)

// Service runs rainfall risk lookups against the forecast source and keeps their history.
type Service struct {
	forecast ForecastSource
	store    Store
	regions  []Region

	defaultRequester string
	clock            clockwork.Clock
	metrics          *observability.Metrics
	logger           *zap.SugaredLogger
}

// NewService creates a new Service. regions is read-only configuration.
func NewService(
	forecast ForecastSource,
	store Store,
	regions []Region,
	defaultRequester string,
	clock clockwork.Clock,
	metrics *observability.Metrics,
	logger *zap.SugaredLogger,
) *Service {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Service{
		forecast:         forecast,
		store:            store,
		regions:          regions,
		defaultRequester: defaultRequester,
		clock:            clock,
		metrics:          metrics,
		logger:           logger,
	}
}

// Predict fetches the next-day forecast, classifies it and stores one prediction.
func (s *Service) Predict(ctx context.Context, req PredictRequest) (Prediction, error) {
	day, err := s.forecast.NextDay(ctx, req.Latitude, req.Longitude)
	if err != nil {
		return Prediction{}, fmt.Errorf("fetch forecast: %w", err)
	}

	requester := req.RequestedBy
	if requester == "" {
		requester = s.defaultRequester
	}

	level := Classify(day.RainfallMM, day.MaxTempC)
	p := Prediction{
		ID:          uuid.NewString(),
		RegionID:    req.RegionID,
		ModelID:     ModelOpenMeteo,
		RequestedBy: requester,
		Output: Output{
			Rainfall: day.RainfallMM,
			MaxTemp:  day.MaxTempC,
			Risk:     level,
		},
		CreatedAt: s.clock.Now().UTC(),
	}

	saved, err := s.store.SavePrediction(ctx, p)
	if err != nil {
		s.metrics.PersistFailures.WithLabelValues("prediction").Inc()
		return Prediction{}, fmt.Errorf("save prediction: %w", err)
	}
	s.metrics.Predictions.WithLabelValues(string(level)).Inc()
	s.logger.Infow("prediction stored", "region", req.RegionID, "risk", level)
	return saved, nil
}

// Recent returns up to limit predictions, newest first.
func (s *Service) Recent(ctx context.Context, limit int) ([]Prediction, error) {
	return s.store.ListPredictions(ctx, limit)
}

// Regions returns the configured region table.
func (s *Service) Regions() []Region {
	out := make([]Region, len(s.regions))
	copy(out, s.regions)
	return out
}
