package providers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/sony/gobreaker"

	"github.com/i474232898/terrain-invest/internal/observability"
	"github.com/i474232898/terrain-invest/internal/risk"
)

// DefaultOpenMeteoURL is the daily forecast endpoint.
const DefaultOpenMeteoURL = "https://api.open-meteo.com/v1/forecast"

// rainfallWindowDays is how many forecast days Rainfall3Day sums.
const rainfallWindowDays = 3

var errNoForecast = errors.New("forecast has no daily values")

// OpenMeteoProvider implements terrain.RainfallSource and risk.ForecastSource.
type OpenMeteoProvider struct {
	baseURL string
	httpCfg HTTPClientConfig
	circuit *gobreaker.CircuitBreaker
	metrics *observability.Metrics
}

func NewOpenMeteoProvider(client *http.Client, baseURL string, backoff BackoffConfig, metrics *observability.Metrics) *OpenMeteoProvider {
	if baseURL == "" {
		baseURL = DefaultOpenMeteoURL
	}
	return &OpenMeteoProvider{
		baseURL: baseURL,
		httpCfg: HTTPClientConfig{Client: client, Backoff: backoff},
		circuit: newBreaker("openmeteo"),
		metrics: metrics,
	}
}

type dailyPayload struct {
	Daily struct {
		Time             []string   `json:"time"`
		PrecipitationSum []*float64 `json:"precipitation_sum"`
		Temperature2mMax []*float64 `json:"temperature_2m_max"`
	} `json:"daily"`
}

// Rainfall3Day sums the first three daily precipitation values; nulls count as 0.
func (p *OpenMeteoProvider) Rainfall3Day(ctx context.Context, lat, lon float64) (float64, error) {
	payload, err := p.daily(ctx, sourceRainfall, lat, lon, "precipitation_sum")
	if err != nil {
		return 0, err
	}

	var sum float64
	for i, v := range payload.Daily.PrecipitationSum {
		if i >= rainfallWindowDays {
			break
		}
		sum += valueOrZero(v)
	}
	return sum, nil
}

// NextDay returns the first forecast day's precipitation sum and maximum temperature.
func (p *OpenMeteoProvider) NextDay(ctx context.Context, lat, lon float64) (risk.DailyForecast, error) {
	payload, err := p.daily(ctx, sourceForecast, lat, lon, "precipitation_sum,temperature_2m_max")
	if err != nil {
		return risk.DailyForecast{}, err
	}
	if len(payload.Daily.PrecipitationSum) == 0 || len(payload.Daily.Temperature2mMax) == 0 {
		return risk.DailyForecast{}, errNoForecast
	}
	return risk.DailyForecast{
		RainfallMM: valueOrZero(payload.Daily.PrecipitationSum[0]),
		MaxTempC:   valueOrZero(payload.Daily.Temperature2mMax[0]),
	}, nil
}

func (p *OpenMeteoProvider) daily(ctx context.Context, source string, lat, lon float64, fields string) (payload dailyPayload, err error) {
	start := time.Now()
	defer func() { observe(p.metrics, source, start, err) }()

	buildRequest := func(ctx context.Context) (*http.Request, error) {
		values := url.Values{}
		values.Set("latitude", formatCoord(lat))
		values.Set("longitude", formatCoord(lon))
		values.Set("daily", fields)
		values.Set("timezone", "auto")
		return http.NewRequestWithContext(ctx, http.MethodGet, p.baseURL+"?"+values.Encode(), nil)
	}

	resp, err := doRequestWithResilience(ctx, p.httpCfg, p.circuit, buildRequest)
	if err != nil {
		return dailyPayload{}, fmt.Errorf("openmeteo %s: %w", source, err)
	}
	defer resp.Body.Close()

	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return dailyPayload{}, fmt.Errorf("decode openmeteo response: %w", err)
	}
	return payload, nil
}

func valueOrZero(v *float64) float64 {
	if v == nil {
		return 0
	}
	return *v
}
