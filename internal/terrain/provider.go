package terrain

import (
	"context"
)

// ElevationSource looks up terrain heights.
type ElevationSource interface {
	Elevation(ctx context.Context, lat, lon float64) (Signal[float64], error)
	// ElevationGrid returns the 9 heights for GridPoints(lat, lon), missing values as 0.
	ElevationGrid(ctx context.Context, lat, lon float64) ([]float64, error)
}

// FeatureSource queries the geographic feature database around a point.
type FeatureSource interface {
	LandUseAndRoad(ctx context.Context, lat, lon, radiusM float64) (LandUseReport, error)
}

// RainfallSource returns the precipitation sum over the next three forecast days.
type RainfallSource interface {
	Rainfall3Day(ctx context.Context, lat, lon float64) (float64, error)
}

// Store is the persistence contract for sites and analysis results.
type Store interface {
	// ListSites returns the sites with the given ids, or every site when ids is empty.
	ListSites(ctx context.Context, ids []string) ([]Location, error)
	SaveAnalysis(ctx context.Context, result AnalysisResult) (AnalysisResult, error)
	// ListAnalyses returns all stored results, newest first.
	ListAnalyses(ctx context.Context) ([]AnalysisResult, error)
}
