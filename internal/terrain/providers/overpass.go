package providers

import (
	"context"
	"fmt"
	"net/http"
	"sort"
	"time"

	"github.com/serjvanilla/go-overpass"
	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"

	"github.com/i474232898/terrain-invest/internal/observability"
	"github.com/i474232898/terrain-invest/internal/terrain"
)

// DefaultOverpassURL is the public Overpass interpreter.
const DefaultOverpassURL = "https://overpass-api.de/api/interpreter"

const (
	defaultQueryTimeout = 25 * time.Second
	// The server-side [timeout:N] stays this far below the client timeout so the
	// interpreter gives up before the connection is cut.
	queryTimeoutMargin = 5 * time.Second
)

// OverpassProvider implements terrain.FeatureSource on top of the Overpass API.
// The public instance rate-limits aggressively, so calls are spaced by a limiter.
// The overpass client takes no context; httpClient.Timeout bounds each call.
type OverpassProvider struct {
	client       *overpass.Client
	queryTimeout time.Duration
	limiter *rate.Limiter
	backoff BackoffConfig
	circuit *gobreaker.CircuitBreaker
	metrics *observability.Metrics
}

func NewOverpassProvider(
	httpClient *http.Client,
	endpoint string,
	minInterval time.Duration,
	backoff BackoffConfig,
	metrics *observability.Metrics,
) *OverpassProvider {
	if endpoint == "" {
		endpoint = DefaultOverpassURL
	}
	limit := rate.Inf
	if minInterval > 0 {
		limit = rate.Every(minInterval)
	}
	client := overpass.NewWithSettings(endpoint, 1, httpClient)
	return &OverpassProvider{
		client:       &client,
		queryTimeout: queryTimeout(httpClient.Timeout),
		limiter: rate.NewLimiter(limit, 1),
		backoff: backoff,
		circuit: newBreaker("overpass"),
		metrics: metrics,
	}
}

// LandUseAndRoad collects land-use tags and the distance to the nearest highway
// within radiusM of the point.
func (p *OverpassProvider) LandUseAndRoad(ctx context.Context, lat, lon, radiusM float64) (report terrain.LandUseReport, err error) {
	if err := p.limiter.Wait(ctx); err != nil {
		return terrain.LandUseReport{}, fmt.Errorf("overpass throttle: %w", err)
	}

	start := time.Now()
	defer func() { observe(p.metrics, sourceOverpass, start, err) }()

	query := landUseQuery(lat, lon, radiusM, p.queryTimeout)
	result, err := withRetries(ctx, p.backoff, p.circuit, func() (interface{}, error) {
		res, err := p.client.Query(query)
		if err != nil {
			return nil, err
		}
		return &res, nil
	})
	if err != nil {
		return terrain.LandUseReport{}, fmt.Errorf("overpass query failed: %w", err)
	}

	res, ok := result.(*overpass.Result)
	if !ok {
		return terrain.LandUseReport{}, fmt.Errorf("unexpected result type from circuit breaker")
	}
	return summarize(lat, lon, res), nil
}

// queryTimeout derives the server-side query timeout from the HTTP client timeout.
func queryTimeout(clientTimeout time.Duration) time.Duration {
	if clientTimeout <= 0 || clientTimeout-queryTimeoutMargin >= defaultQueryTimeout {
		return defaultQueryTimeout
	}
	if t := clientTimeout - queryTimeoutMargin; t >= time.Second {
		return t
	}
	return time.Second
}

func landUseQuery(lat, lon, radiusM float64, timeout time.Duration) string {
	around := fmt.Sprintf("around:%s,%s,%s", formatCoord(radiusM), formatCoord(lat), formatCoord(lon))
	return fmt.Sprintf(`
[out:json][timeout:%[2]d];
(
  way(%[1]s)["landuse"];
  relation(%[1]s)["landuse"];
  way(%[1]s)["natural"~"wood|water|wetland"];
  way(%[1]s)["highway"];
);
out bb;`, around, int(timeout.Seconds()))
}

// element is the subset of an Overpass element the summary needs.
type element struct {
	kind   int
	id     int64
	tags   map[string]string
	center terrain.Point
	hasPos bool
}

// summarize walks the elements in Overpass output order (nodes, ways, relations, each by id).
func summarize(lat, lon float64, res *overpass.Result) terrain.LandUseReport {
	report := terrain.LandUseReport{
		LandUse:      []terrain.LandUseFeature{},
		NearestRoadM: terrain.Unavailable[float64](),
	}

	for _, el := range flatten(res) {
		if v := el.tags["landuse"]; v != "" {
			report.LandUse = append(report.LandUse, terrain.LandUseFeature{
				Type:  "landuse",
				Value: v,
				Tags:  el.tags,
			})
		}
		if el.tags["highway"] != "" && el.hasPos {
			d := terrain.HaversineMeters(lat, lon, el.center.Lat, el.center.Lon)
			if !report.NearestRoadM.OK || d < report.NearestRoadM.Value {
				report.NearestRoadM = terrain.Available(d)
			}
		}
	}
	return report
}

func flatten(res *overpass.Result) []element {
	var out []element
	for _, n := range res.Nodes {
		if len(n.Tags) == 0 {
			continue
		}
		out = append(out, element{
			kind:   0,
			id:     n.ID,
			tags:   n.Tags,
			center: terrain.Point{Lat: n.Lat, Lon: n.Lon},
			hasPos: true,
		})
	}
	for _, w := range res.Ways {
		center, ok := wayCenter(w)
		out = append(out, element{kind: 1, id: w.ID, tags: w.Tags, center: center, hasPos: ok})
	}
	for _, r := range res.Relations {
		center, ok := boxCenter(r.Bounds)
		out = append(out, element{kind: 2, id: r.ID, tags: r.Tags, center: center, hasPos: ok})
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].kind != out[j].kind {
			return out[i].kind < out[j].kind
		}
		return out[i].id < out[j].id
	})
	return out
}

// wayCenter uses the bounding box midpoint, falling back to the mean of resolved nodes.
func wayCenter(w *overpass.Way) (terrain.Point, bool) {
	if center, ok := boxCenter(w.Bounds); ok {
		return center, true
	}

	var lat, lon float64
	var count int
	for _, n := range w.Nodes {
		if n == nil || (n.Lat == 0 && n.Lon == 0) {
			continue
		}
		lat += n.Lat
		lon += n.Lon
		count++
	}
	if count == 0 {
		return terrain.Point{}, false
	}
	return terrain.Point{Lat: lat / float64(count), Lon: lon / float64(count)}, true
}

func boxCenter(b *overpass.Box) (terrain.Point, bool) {
	if b == nil {
		return terrain.Point{}, false
	}
	return terrain.Point{
		Lat: (b.Min.Lat + b.Max.Lat) / 2,
		Lon: (b.Min.Lon + b.Max.Lon) / 2,
	}, true
}
