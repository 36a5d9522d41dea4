package risk

// Classify derives the risk label. Either threshold alone is enough to reach a tier.
func Classify(rainfallMM, maxTempC float64) Level {
	switch {
	case rainfallMM > 100 || maxTempC > 40:
		return LevelHigh
	case rainfallMM > 50 || maxTempC > 35:
		return LevelModerate
	default:
		return LevelLow
	}
}
