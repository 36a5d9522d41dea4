package terrain

import (
	"math"

	"github.com/i474232898/terrain-invest/internal/common"
)

// Recommendation texts, emitted in band order.
const (
	RecFloodMitigation = "Flood mitigation & drainage works"
	RecTerracing       = "Terracing & soil conservation"
	RecAccessRoad      = "Access road construction"
	RecIrrigation      = "Targeted irrigation & drainage upgrades"
	RecPilotPrograms   = "Pilot livelihood & agri-support programs"
	RecInvestment      = "Investment candidate: irrigation, value-chain infra, agri-extension"
	RecSolarPilot      = "Consider solar farm pilot (if land available)"
)

const (
	baselineScore = 0.5

	lowBandUpper = 0.35
	midBandUpper = 0.65

	// An unknown road distance counts as very far when recommending access roads.
	farRoadM = 9999
)

// ScoreInput is everything the scorer looks at for one location.
type ScoreInput struct {
	Elevation    Signal[float64]
	SlopeDeg     float64
	NearestRoadM Signal[float64]
	LandUse      []LandUseFeature
	RainfallMM   float64
}

// Score computes the suitability heuristic: additive adjustments on a 0.5 baseline,
// clamped to [0,1] and rounded to 3 decimals.
func Score(in ScoreInput) float64 {
	score := baselineScore

	if in.Elevation.OK {
		switch e := in.Elevation.Value; {
		case e < 5:
			score -= 0.25
		case e < 20:
			score -= 0.05
		default:
			score += 0.05
		}
	}

	switch {
	case in.SlopeDeg < 3:
		score += 0.1
	case in.SlopeDeg >= 8:
		score -= 0.15
	}

	if in.NearestRoadM.OK {
		switch d := in.NearestRoadM.Value; {
		case d < 100:
			score += 0.12
		case d < 500:
			score += 0.04
		default:
			score -= 0.08
		}
	}

	values := landUseValues(in.LandUse)
	if common.HasAnyFold(values, "farmland") {
		score += 0.12
	}
	if common.HasAnyFold(values, "forest", "wood") {
		score -= 0.04
	}

	switch {
	case in.RainfallMM > 200:
		score -= 0.10
	case in.RainfallMM > 50:
		score += 0.04
	}

	score = math.Max(0, math.Min(1, score))
	return math.Round(score*1000) / 1000
}

// Recommend maps a score band and the contributing signals to action texts.
func Recommend(score float64, in ScoreInput) []string {
	var rec []string
	switch {
	case score < lowBandUpper:
		rec = append(rec, RecFloodMitigation)
		if in.SlopeDeg > 8 {
			rec = append(rec, RecTerracing)
		}
		if in.NearestRoadM.Or(farRoadM) > 500 {
			rec = append(rec, RecAccessRoad)
		}
	case score < midBandUpper:
		rec = append(rec, RecIrrigation, RecPilotPrograms)
	default:
		rec = append(rec, RecInvestment)
		if in.SlopeDeg < 5 {
			rec = append(rec, RecSolarPilot)
		}
	}
	return rec
}

// DedupeLandUse keeps the first feature for each distinct value.
func DedupeLandUse(features []LandUseFeature) []LandUseFeature {
	seen := make(map[string]struct{}, len(features))
	out := make([]LandUseFeature, 0, len(features))
	for _, f := range features {
		if _, ok := seen[f.Value]; ok {
			continue
		}
		seen[f.Value] = struct{}{}
		out = append(out, f)
	}
	return out
}

func landUseValues(features []LandUseFeature) []string {
	values := make([]string, 0, len(features))
	for _, f := range features {
		values = append(values, f.Value)
	}
	return values
}
