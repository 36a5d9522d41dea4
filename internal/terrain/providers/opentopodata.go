package providers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/sony/gobreaker"

	"github.com/i474232898/terrain-invest/internal/observability"
	"github.com/i474232898/terrain-invest/internal/terrain"
)

// DefaultOpenTopoDataURL is the SRTM 90m dataset endpoint.
const DefaultOpenTopoDataURL = "https://api.opentopodata.org/v1/srtm90m"

// OpenTopoDataProvider implements terrain.ElevationSource.
type OpenTopoDataProvider struct {
	baseURL string
	httpCfg HTTPClientConfig
	circuit *gobreaker.CircuitBreaker
	metrics *observability.Metrics
}

func NewOpenTopoDataProvider(client *http.Client, baseURL string, backoff BackoffConfig, metrics *observability.Metrics) *OpenTopoDataProvider {
	if baseURL == "" {
		baseURL = DefaultOpenTopoDataURL
	}
	return &OpenTopoDataProvider{
		baseURL: baseURL,
		httpCfg: HTTPClientConfig{Client: client, Backoff: backoff},
		circuit: newBreaker("opentopodata"),
		metrics: metrics,
	}
}

// Elevation looks up a single point. A null height in the response is reported as unavailable.
func (p *OpenTopoDataProvider) Elevation(ctx context.Context, lat, lon float64) (terrain.Signal[float64], error) {
	heights, err := p.lookup(ctx, sourceElevation, []terrain.Point{{Lat: lat, Lon: lon}})
	if err != nil {
		return terrain.Unavailable[float64](), err
	}
	if len(heights) == 0 || heights[0] == nil {
		return terrain.Unavailable[float64](), nil
	}
	return terrain.Available(*heights[0]), nil
}

// ElevationGrid fetches the 3x3 grid in one batched call. Missing heights become 0.
func (p *OpenTopoDataProvider) ElevationGrid(ctx context.Context, lat, lon float64) ([]float64, error) {
	heights, err := p.lookup(ctx, sourceElevationGrid, terrain.GridPoints(lat, lon))
	if err != nil {
		return nil, err
	}
	grid := make([]float64, len(heights))
	for i, h := range heights {
		if h != nil {
			grid[i] = *h
		}
	}
	return grid, nil
}

func (p *OpenTopoDataProvider) lookup(ctx context.Context, source string, pts []terrain.Point) (heights []*float64, err error) {
	start := time.Now()
	defer func() { observe(p.metrics, source, start, err) }()

	locs := make([]string, 0, len(pts))
	for _, pt := range pts {
		locs = append(locs, formatCoord(pt.Lat)+","+formatCoord(pt.Lon))
	}

	buildRequest := func(ctx context.Context) (*http.Request, error) {
		values := url.Values{}
		values.Set("locations", strings.Join(locs, "|"))
		return http.NewRequestWithContext(ctx, http.MethodGet, p.baseURL+"?"+values.Encode(), nil)
	}

	resp, err := doRequestWithResilience(ctx, p.httpCfg, p.circuit, buildRequest)
	if err != nil {
		return nil, fmt.Errorf("opentopodata %s: %w", source, err)
	}
	defer resp.Body.Close()

	var payload struct {
		Results []struct {
			Elevation *float64 `json:"elevation"`
		} `json:"results"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("decode opentopodata response: %w", err)
	}

	heights = make([]*float64, 0, len(payload.Results))
	for _, r := range payload.Results {
		heights = append(heights, r.Elevation)
	}
	return heights, nil
}
