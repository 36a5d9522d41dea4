package config

import (
	_ "embed"
	"fmt"
	"log"
	"os"
	"strconv"
	"time"

	"github.com/goccy/go-yaml"
	"github.com/joho/godotenv"

	"github.com/i474232898/terrain-invest/internal/risk"
	"github.com/i474232898/terrain-invest/internal/terrain"
)

//go:embed regions.yaml
var defaultRegions []byte

type AppConfig struct {
	Port     string
	LogLevel string

	// HTTPTimeout bounds the elevation and forecast calls.
	HTTPTimeout time.Duration
	// OverpassTimeout bounds Overpass calls; the server-side query timeout is derived from it.
	OverpassTimeout time.Duration

	// Storage backend: memory, postgres or sqlite.
	DBDriver    string
	DatabaseURL string
	// In-memory store retention (0 = unlimited).
	StoreMaxHistory int

	ElevationURL string
	OverpassURL  string
	OpenMeteoURL string

	SearchRadiusM       float64
	UpstreamMaxRetries  int
	OverpassMinInterval time.Duration

	// RefreshInterval re-analyzes every stored site periodically; 0 disables it.
	RefreshInterval time.Duration

	Regions            []risk.Region
	Sites              []terrain.Location
	DefaultRequestedBy string
}

// Load reads configuration from environment with sensible defaults.
func Load() (*AppConfig, error) {
	if err := godotenv.Load(); err != nil {
		log.Printf("INFO: No .env file found or error loading it: %v", err)
	}
	cfg := &AppConfig{}

	cfg.Port = getenvDefault("PORT", "8080")
	cfg.LogLevel = getenvDefault("LOG_LEVEL", "info")

	var err error
	if cfg.HTTPTimeout, err = getenvDuration("HTTP_TIMEOUT", "15s"); err != nil {
		return nil, err
	}
	if cfg.OverpassTimeout, err = getenvDuration("OVERPASS_TIMEOUT", "30s"); err != nil {
		return nil, err
	}
	if cfg.OverpassMinInterval, err = getenvDuration("OVERPASS_MIN_INTERVAL", "1s"); err != nil {
		return nil, err
	}
	if cfg.RefreshInterval, err = getenvDuration("REFRESH_INTERVAL", "0s"); err != nil {
		return nil, err
	}

	cfg.DBDriver = getenvDefault("DB_DRIVER", "memory")
	cfg.DatabaseURL = os.Getenv("DATABASE_URL")
	switch cfg.DBDriver {
	case "memory":
	case "postgres", "sqlite":
		if cfg.DatabaseURL == "" {
			return nil, fmt.Errorf("DATABASE_URL is required for DB_DRIVER=%s", cfg.DBDriver)
		}
	default:
		return nil, fmt.Errorf("invalid DB_DRIVER %q: want memory, postgres or sqlite", cfg.DBDriver)
	}
	if cfg.StoreMaxHistory, err = getenvInt("STORE_MAX_HISTORY", 0); err != nil {
		return nil, err
	}

	cfg.ElevationURL = os.Getenv("ELEVATION_URL")
	cfg.OverpassURL = os.Getenv("OVERPASS_URL")
	cfg.OpenMeteoURL = os.Getenv("OPEN_METEO_URL")

	radius, err := strconv.ParseFloat(getenvDefault("SEARCH_RADIUS_M", "1000"), 64)
	if err != nil || radius <= 0 {
		return nil, fmt.Errorf("invalid SEARCH_RADIUS_M")
	}
	cfg.SearchRadiusM = radius

	if cfg.UpstreamMaxRetries, err = getenvInt("UPSTREAM_MAX_RETRIES", 0); err != nil {
		return nil, err
	}
	if cfg.UpstreamMaxRetries < 0 {
		return nil, fmt.Errorf("invalid UPSTREAM_MAX_RETRIES: must not be negative")
	}

	regionsData := defaultRegions
	if path := os.Getenv("REGIONS_FILE"); path != "" {
		if regionsData, err = os.ReadFile(path); err != nil {
			return nil, fmt.Errorf("read REGIONS_FILE: %w", err)
		}
	}
	if cfg.Regions, err = ParseRegions(regionsData); err != nil {
		return nil, err
	}

	if path := os.Getenv("SITES_FILE"); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read SITES_FILE: %w", err)
		}
		if cfg.Sites, err = ParseSites(data); err != nil {
			return nil, err
		}
	}

	cfg.DefaultRequestedBy = getenvDefault("DEFAULT_REQUESTED_BY", "farmer-123")

	return cfg, nil
}

// ParseRegions decodes a YAML region table.
func ParseRegions(data []byte) ([]risk.Region, error) {
	var doc struct {
		Regions []risk.Region `yaml:"regions"`
	}
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse regions: %w", err)
	}
	seen := make(map[string]struct{}, len(doc.Regions))
	for _, r := range doc.Regions {
		if r.ID == "" {
			return nil, fmt.Errorf("parse regions: region without id")
		}
		if _, dup := seen[r.ID]; dup {
			return nil, fmt.Errorf("parse regions: duplicate region %q", r.ID)
		}
		if err := checkCoord(r.Lat, r.Lon); err != nil {
			return nil, fmt.Errorf("parse regions: region %q: %w", r.ID, err)
		}
		seen[r.ID] = struct{}{}
	}
	return doc.Regions, nil
}

// ParseSites decodes a YAML site list used to seed the site table.
func ParseSites(data []byte) ([]terrain.Location, error) {
	var doc struct {
		Sites []struct {
			ID          string  `yaml:"id"`
			DisplayName string  `yaml:"display_name"`
			Lat         float64 `yaml:"lat"`
			Lon         float64 `yaml:"lon"`
		} `yaml:"sites"`
	}
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse sites: %w", err)
	}
	sites := make([]terrain.Location, 0, len(doc.Sites))
	for _, s := range doc.Sites {
		if s.ID == "" {
			return nil, fmt.Errorf("parse sites: site without id")
		}
		if err := checkCoord(s.Lat, s.Lon); err != nil {
			return nil, fmt.Errorf("parse sites: site %q: %w", s.ID, err)
		}
		sites = append(sites, terrain.Location{ID: s.ID, DisplayName: s.DisplayName, Lat: s.Lat, Lon: s.Lon})
	}
	return sites, nil
}

func checkCoord(lat, lon float64) error {
	if lat < -90 || lat > 90 {
		return fmt.Errorf("latitude %v out of range [-90, 90]", lat)
	}
	if lon < -180 || lon > 180 {
		return fmt.Errorf("longitude %v out of range [-180, 180]", lon)
	}
	return nil
}

func getenvDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getenvInt(key string, def int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return n, nil
}

func getenvDuration(key, def string) (time.Duration, error) {
	d, err := time.ParseDuration(getenvDefault(key, def))
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	if d < 0 {
		return 0, fmt.Errorf("invalid %s: must not be negative", key)
	}
	return d, nil
}
