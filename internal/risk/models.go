package risk

import (
	"context"
	"time"
)

// Level is the three-tier crop-loss risk label.
type Level string

const (
	LevelLow      Level = "Low"
	LevelModerate Level = "Moderate"
	LevelHigh     Level = "High"
)

// ModelOpenMeteo identifies predictions derived from the Open-Meteo daily forecast.
const ModelOpenMeteo = "open-meteo"

// Region is a predefined area users can request a prediction for.
type Region struct {
	ID   string  `json:"id" yaml:"id"`
	Name string  `json:"name" yaml:"name"`
	Lat  float64 `json:"lat" yaml:"lat"`
	Lon  float64 `json:"lon" yaml:"lon"`
}

// DailyForecast holds the values the risk model reads for a single day.
type DailyForecast struct {
	RainfallMM float64
	MaxTempC   float64
}

// Output is the model result stored with a prediction.
type Output struct {
	Rainfall float64 `json:"rainfall"`
	MaxTemp  float64 `json:"maxTemp"`
	Risk     Level   `json:"risk"`
}

// Prediction is one persisted risk lookup.
type Prediction struct {
	ID          string    `json:"id"`
	RegionID    string    `json:"region_id"`
	ModelID     string    `json:"model_id"`
	RequestedBy string    `json:"requested_by"`
	Output      Output    `json:"output"`
	CreatedAt   time.Time `json:"created_at"`
}

// PredictRequest is the input of a single risk lookup.
type PredictRequest struct {
	RegionID    string
	Latitude    float64
	Longitude   float64
	RequestedBy string
}

// ForecastSource returns the next day's forecast for a coordinate.
type ForecastSource interface {
	NextDay(ctx context.Context, lat, lon float64) (DailyForecast, error)
}

// Store persists predictions.
type Store interface {
	SavePrediction(ctx context.Context, p Prediction) (Prediction, error)
	// ListPredictions returns the newest predictions first; limit <= 0 means all.
	ListPredictions(ctx context.Context, limit int) ([]Prediction, error)
}
