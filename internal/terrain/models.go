package terrain

import (
	"bytes"
	"encoding/json"
	"time"
)

// Location is a point submitted for analysis, either from a request or the stored site list.
type Location struct {
	ID          string  `json:"id" db:"id"`
	DisplayName string  `json:"display_name" db:"display_name"`
	Lat         float64 `json:"lat" db:"lat"`
	Lon         float64 `json:"lon" db:"lon"`
}

// Name returns the display name, falling back to the id.
func (l Location) Name() string {
	if l.DisplayName != "" {
		return l.DisplayName
	}
	return l.ID
}

// Point is a bare WGS84 coordinate.
type Point struct {
	Lat float64
	Lon float64
}

// Signal is an upstream value that may be unavailable.
// It marshals to JSON null when unavailable.
type Signal[T any] struct {
	Value T
	OK    bool
}

// Available wraps a fetched value.
func Available[T any](v T) Signal[T] {
	return Signal[T]{Value: v, OK: true}
}

// Unavailable returns the empty signal.
func Unavailable[T any]() Signal[T] {
	return Signal[T]{}
}

// Or returns the value, or def when unavailable.
func (s Signal[T]) Or(def T) T {
	if !s.OK {
		return def
	}
	return s.Value
}

func (s Signal[T]) MarshalJSON() ([]byte, error) {
	if !s.OK {
		return []byte("null"), nil
	}
	return json.Marshal(s.Value)
}

func (s *Signal[T]) UnmarshalJSON(data []byte) error {
	if bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		*s = Signal[T]{}
		return nil
	}
	var v T
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	*s = Available(v)
	return nil
}

// LandUseFeature is a tagged classification returned by the feature database.
type LandUseFeature struct {
	Type  string            `json:"type"`
	Value string            `json:"value"`
	Tags  map[string]string `json:"tags,omitempty"`
}

// LandUseReport is the combined result of one feature query around a point.
type LandUseReport struct {
	LandUse      []LandUseFeature
	NearestRoadM Signal[float64]
}

// AnalysisResult is the persisted outcome of one location analysis.
type AnalysisResult struct {
	ID                 string           `json:"id"`
	SiteID             string           `json:"site_id,omitempty"`
	SiteName           string           `json:"site_name"`
	Lat                float64          `json:"lat"`
	Lon                float64          `json:"lon"`
	ElevationM         Signal[float64]  `json:"elevation_m"`
	SlopeDeg           float64          `json:"slope_deg"`
	LandUse            []LandUseFeature `json:"landuse"`
	NearestRoadM       Signal[float64]  `json:"nearest_road_m"`
	Rainfall3DayMM     float64          `json:"rainfall_3d_mm"`
	SuitabilityScore   float64          `json:"suitability_score"`
	RecommendedActions []string         `json:"recommended_actions"`
	CreatedAt          time.Time        `json:"created_at"`
}

// BatchRequest selects the locations to analyze. Explicit locations win over site ids;
// when both are empty every stored site is analyzed.
type BatchRequest struct {
	Locations []Location
	SiteIDs   []string
}
