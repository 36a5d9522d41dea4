package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"

	"github.com/i474232898/terrain-invest/internal/risk"
	"github.com/i474232898/terrain-invest/internal/terrain"
)

// Supported database drivers.
const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

func init() {
	sqlx.BindDriver(DriverSQLite, sqlx.QUESTION)
}

var schema = []string{
	`CREATE TABLE IF NOT EXISTS terrain_sites (
		id           TEXT PRIMARY KEY,
		display_name TEXT NOT NULL DEFAULT '',
		lat          DOUBLE PRECISION NOT NULL,
		lon          DOUBLE PRECISION NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS terrain_analysis_results (
		id                  TEXT PRIMARY KEY,
		site_id             TEXT,
		site_name           TEXT NOT NULL,
		lat                 DOUBLE PRECISION NOT NULL,
		lon                 DOUBLE PRECISION NOT NULL,
		elevation_m         DOUBLE PRECISION,
		slope_deg           DOUBLE PRECISION NOT NULL,
		landuse             TEXT NOT NULL,
		nearest_road_m      DOUBLE PRECISION,
		rainfall_3d_mm      DOUBLE PRECISION NOT NULL,
		suitability_score   DOUBLE PRECISION NOT NULL,
		recommended_actions TEXT NOT NULL,
		created_at          TIMESTAMP NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS terrain_analysis_results_created_at_idx
		ON terrain_analysis_results (created_at)`,
	`CREATE TABLE IF NOT EXISTS predictions (
		id           TEXT PRIMARY KEY,
		region_id    TEXT NOT NULL,
		model_id     TEXT NOT NULL,
		requested_by TEXT NOT NULL,
		rainfall_mm  DOUBLE PRECISION NOT NULL,
		max_temp_c   DOUBLE PRECISION NOT NULL,
		risk         TEXT NOT NULL,
		created_at   TIMESTAMP NOT NULL
	)`,
}

// Rows with equal created_at are ordered by insertion, newest first. SQLite tables
// carry an implicit rowid; Postgres gets an explicit sequence column.
var postgresSchema = []string{
	`ALTER TABLE terrain_analysis_results ADD COLUMN IF NOT EXISTS seq BIGSERIAL`,
	`ALTER TABLE predictions ADD COLUMN IF NOT EXISTS seq BIGSERIAL`,
}

func insertionOrder(driver string) string {
	if driver == DriverPostgres {
		return "seq"
	}
	return "rowid"
}

// SQLStore implements Store on Postgres or SQLite through sqlx.
type SQLStore struct {
	db     *sqlx.DB
	driver string
}

// OpenSQL connects to the database and creates the schema if needed.
func OpenSQL(ctx context.Context, driver, dsn string) (*SQLStore, error) {
	db, err := sqlx.ConnectContext(ctx, driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("connect %s: %w", driver, err)
	}
	if driver == DriverSQLite {
		// SQLite allows a single writer.
		db.SetMaxOpenConns(1)
	}

	s := &SQLStore{db: db, driver: driver}
	if err := s.migrate(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *SQLStore) migrate(ctx context.Context) error {
	stmts := schema
	if s.driver == DriverPostgres {
		stmts = append(append([]string{}, schema...), postgresSchema...)
	}
	for _, stmt := range stmts {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("apply schema: %w", err)
		}
	}
	return nil
}

// Close releases the connection pool.
func (s *SQLStore) Close() error {
	return s.db.Close()
}

// AddSite inserts a site row.
func (s *SQLStore) AddSite(ctx context.Context, site terrain.Location) error {
	var exists int
	err := s.db.GetContext(ctx, &exists, s.db.Rebind(`SELECT COUNT(*) FROM terrain_sites WHERE id = ?`), site.ID)
	if err != nil {
		return fmt.Errorf("check site: %w", err)
	}
	if exists > 0 {
		return fmt.Errorf("%w: %s", ErrDuplicateSite, site.ID)
	}

	const query = `INSERT INTO terrain_sites (id, display_name, lat, lon) VALUES (?, ?, ?, ?)`
	if _, err := s.db.ExecContext(ctx, s.db.Rebind(query), site.ID, site.DisplayName, site.Lat, site.Lon); err != nil {
		return fmt.Errorf("insert site: %w", err)
	}
	return nil
}

// ListSites returns the matching sites, or every site when ids is empty.
func (s *SQLStore) ListSites(ctx context.Context, ids []string) ([]terrain.Location, error) {
	query := `SELECT id, display_name, lat, lon FROM terrain_sites`
	var args []interface{}
	if len(ids) > 0 {
		var err error
		query, args, err = sqlx.In(query+` WHERE id IN (?)`, ids)
		if err != nil {
			return nil, fmt.Errorf("build site query: %w", err)
		}
	}
	query += ` ORDER BY id`

	var sites []terrain.Location
	if err := s.db.SelectContext(ctx, &sites, s.db.Rebind(query), args...); err != nil {
		return nil, fmt.Errorf("query sites: %w", err)
	}
	return sites, nil
}

type analysisRow struct {
	ID                 string          `db:"id"`
	SiteID             sql.NullString  `db:"site_id"`
	SiteName           string          `db:"site_name"`
	Lat                float64         `db:"lat"`
	Lon                float64         `db:"lon"`
	ElevationM         sql.NullFloat64 `db:"elevation_m"`
	SlopeDeg           float64         `db:"slope_deg"`
	LandUse            string          `db:"landuse"`
	NearestRoadM       sql.NullFloat64 `db:"nearest_road_m"`
	Rainfall3DayMM     float64         `db:"rainfall_3d_mm"`
	SuitabilityScore   float64         `db:"suitability_score"`
	RecommendedActions string          `db:"recommended_actions"`
	CreatedAt          time.Time       `db:"created_at"`
}

// SaveAnalysis inserts one result row.
func (s *SQLStore) SaveAnalysis(ctx context.Context, r terrain.AnalysisResult) (terrain.AnalysisResult, error) {
	landUse, err := json.Marshal(nonNil(r.LandUse))
	if err != nil {
		return terrain.AnalysisResult{}, fmt.Errorf("marshal landuse: %w", err)
	}
	recs, err := json.Marshal(nonNil(r.RecommendedActions))
	if err != nil {
		return terrain.AnalysisResult{}, fmt.Errorf("marshal recommendations: %w", err)
	}

	const query = `
		INSERT INTO terrain_analysis_results (
			id, site_id, site_name, lat, lon,
			elevation_m, slope_deg, landuse, nearest_road_m,
			rainfall_3d_mm, suitability_score, recommended_actions, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	_, err = s.db.ExecContext(ctx, s.db.Rebind(query),
		r.ID, nullString(r.SiteID), r.SiteName, r.Lat, r.Lon,
		nullFloat(r.ElevationM), r.SlopeDeg, string(landUse), nullFloat(r.NearestRoadM),
		r.Rainfall3DayMM, r.SuitabilityScore, string(recs), r.CreatedAt.UTC(),
	)
	if err != nil {
		return terrain.AnalysisResult{}, fmt.Errorf("insert analysis: %w", err)
	}
	return r, nil
}

// ListAnalyses returns all results, newest first.
func (s *SQLStore) ListAnalyses(ctx context.Context) ([]terrain.AnalysisResult, error) {
	query := `
		SELECT id, site_id, site_name, lat, lon, elevation_m, slope_deg, landuse,
			nearest_road_m, rainfall_3d_mm, suitability_score, recommended_actions, created_at
		FROM terrain_analysis_results
		ORDER BY created_at DESC, ` + insertionOrder(s.driver) + ` DESC`

	var rows []analysisRow
	if err := s.db.SelectContext(ctx, &rows, query); err != nil {
		return nil, fmt.Errorf("query analyses: %w", err)
	}

	out := make([]terrain.AnalysisResult, 0, len(rows))
	for _, row := range rows {
		r, err := row.toResult()
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, nil
}

func (row analysisRow) toResult() (terrain.AnalysisResult, error) {
	r := terrain.AnalysisResult{
		ID:               row.ID,
		SiteID:           row.SiteID.String,
		SiteName:         row.SiteName,
		Lat:              row.Lat,
		Lon:              row.Lon,
		SlopeDeg:         row.SlopeDeg,
		Rainfall3DayMM:   row.Rainfall3DayMM,
		SuitabilityScore: row.SuitabilityScore,
		CreatedAt:        row.CreatedAt.UTC(),
	}
	if row.ElevationM.Valid {
		r.ElevationM = terrain.Available(row.ElevationM.Float64)
	}
	if row.NearestRoadM.Valid {
		r.NearestRoadM = terrain.Available(row.NearestRoadM.Float64)
	}
	if err := json.Unmarshal([]byte(row.LandUse), &r.LandUse); err != nil {
		return terrain.AnalysisResult{}, fmt.Errorf("decode landuse of %s: %w", row.ID, err)
	}
	if err := json.Unmarshal([]byte(row.RecommendedActions), &r.RecommendedActions); err != nil {
		return terrain.AnalysisResult{}, fmt.Errorf("decode recommendations of %s: %w", row.ID, err)
	}
	return r, nil
}

type predictionRow struct {
	ID          string    `db:"id"`
	RegionID    string    `db:"region_id"`
	ModelID     string    `db:"model_id"`
	RequestedBy string    `db:"requested_by"`
	RainfallMM  float64   `db:"rainfall_mm"`
	MaxTempC    float64   `db:"max_temp_c"`
	Risk        string    `db:"risk"`
	CreatedAt   time.Time `db:"created_at"`
}

// SavePrediction inserts one prediction row.
func (s *SQLStore) SavePrediction(ctx context.Context, p risk.Prediction) (risk.Prediction, error) {
	const query = `
		INSERT INTO predictions (
			id, region_id, model_id, requested_by, rainfall_mm, max_temp_c, risk, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`

	_, err := s.db.ExecContext(ctx, s.db.Rebind(query),
		p.ID, p.RegionID, p.ModelID, p.RequestedBy,
		p.Output.Rainfall, p.Output.MaxTemp, string(p.Output.Risk), p.CreatedAt.UTC(),
	)
	if err != nil {
		return risk.Prediction{}, fmt.Errorf("insert prediction: %w", err)
	}
	return p, nil
}

// ListPredictions returns up to limit predictions, newest first; limit <= 0 returns all.
func (s *SQLStore) ListPredictions(ctx context.Context, limit int) ([]risk.Prediction, error) {
	var sb strings.Builder
	sb.WriteString(`
		SELECT id, region_id, model_id, requested_by, rainfall_mm, max_temp_c, risk, created_at
		FROM predictions
		ORDER BY created_at DESC, ` + insertionOrder(s.driver) + ` DESC`)
	var args []interface{}
	if limit > 0 {
		sb.WriteString(` LIMIT ?`)
		args = append(args, limit)
	}

	var rows []predictionRow
	if err := s.db.SelectContext(ctx, &rows, s.db.Rebind(sb.String()), args...); err != nil {
		return nil, fmt.Errorf("query predictions: %w", err)
	}

	out := make([]risk.Prediction, 0, len(rows))
	for _, row := range rows {
		out = append(out, risk.Prediction{
			ID:          row.ID,
			RegionID:    row.RegionID,
			ModelID:     row.ModelID,
			RequestedBy: row.RequestedBy,
			Output: risk.Output{
				Rainfall: row.RainfallMM,
				MaxTemp:  row.MaxTempC,
				Risk:     risk.Level(row.Risk),
			},
			CreatedAt: row.CreatedAt.UTC(),
		})
	}
	return out, nil
}

func nullFloat(s terrain.Signal[float64]) sql.NullFloat64 {
	return sql.NullFloat64{Float64: s.Value, Valid: s.OK}
}

func nullString(v string) sql.NullString {
	return sql.NullString{String: v, Valid: v != ""}
}

func nonNil[T any](v []T) []T {
	if v == nil {
		return []T{}
	}
	return v
}
