package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/i474232898/terrain-invest/internal/risk"
	"github.com/i474232898/terrain-invest/internal/terrain"
)

var validate = validator.New()

const defaultPredictionLimit = 5

// TerrainService is the terrain pipeline as seen by the HTTP layer.
type TerrainService interface {
	Analyze(ctx context.Context, req terrain.BatchRequest) ([]terrain.AnalysisResult, error)
	History(ctx context.Context) ([]terrain.AnalysisResult, error)
}

// RiskService is the rainfall risk pipeline as seen by the HTTP layer.
type RiskService interface {
	Predict(ctx context.Context, req risk.PredictRequest) (risk.Prediction, error)
	Recent(ctx context.Context, limit int) ([]risk.Prediction, error)
	Regions() []risk.Region
}

// ErrorHandler renders errors that escape a handler as {ok:false,error}.
func ErrorHandler(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	var fe *fiber.Error
	if errors.As(err, &fe) {
		code = fe.Code
	}
	return c.Status(code).JSON(fiber.Map{
		"ok":    false,
		"error": err.Error(),
	})
}

// RegisterRoutes wires the HTTP handlers into the Fiber app.
func RegisterRoutes(app *fiber.App, terrainSvc TerrainService, riskSvc RiskService, logger *zap.SugaredLogger) {
	api := app.Group("/api")

	api.Post("/terrain-analysis", func(c *fiber.Ctx) error {
		var body analysisRequest
		if err := json.Unmarshal(c.Body(), &body); err != nil {
			return analysisFailure(c, logger, err)
		}
		if err := validate.Struct(body); err != nil {
			return analysisFailure(c, logger, err)
		}

		results, err := terrainSvc.Analyze(c.UserContext(), body.toBatch())
		if err != nil {
			return analysisFailure(c, logger, err)
		}

		return c.JSON(fiber.Map{
			"ok":      true,
			"total":   len(results),
			"results": results,
		})
	})

	api.Get("/terrain-analysis", func(c *fiber.Ctx) error {
		results, err := terrainSvc.History(c.UserContext())
		if err != nil {
			return analysisFailure(c, logger, err)
		}
		return c.JSON(fiber.Map{
			"ok":      true,
			"results": results,
		})
	})

	api.Post("/predict", func(c *fiber.Ctx) error {
		var body predictRequest
		if err := json.Unmarshal(c.Body(), &body); err != nil {
			return predictFailure(c, logger, err)
		}
		if err := validate.Struct(body); err != nil {
			return predictFailure(c, logger, err)
		}

		prediction, err := riskSvc.Predict(c.UserContext(), body.toRequest())
		if err != nil {
			return predictFailure(c, logger, err)
		}
		return c.JSON(fiber.Map{"prediction": prediction})
	})

	api.Get("/predict", func(c *fiber.Ctx) error {
		limit := defaultPredictionLimit
		if v := c.Query("limit"); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil || n < 0 {
				return fiber.NewError(fiber.StatusBadRequest, "limit must be a non-negative integer")
			}
			limit = n
		}

		predictions, err := riskSvc.Recent(c.UserContext(), limit)
		if err != nil {
			return predictFailure(c, logger, err)
		}
		return c.JSON(fiber.Map{"predictions": predictions})
	})

	api.Get("/regions", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"regions": riskSvc.Regions()})
	})
}

func analysisFailure(c *fiber.Ctx, logger *zap.SugaredLogger, err error) error {
	logger.Errorw("terrain analysis error", "path", c.Path(), "error", err)
	return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
		"ok":    false,
		"error": err.Error(),
	})
}

func predictFailure(c *fiber.Ctx, logger *zap.SugaredLogger, err error) error {
	logger.Errorw("prediction error", "path", c.Path(), "error", err)
	return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
		"error": err.Error(),
	})
}

// analysisRequest is the POST /api/terrain-analysis body.
type analysisRequest struct {
	Locations []locationBody `json:"locations" validate:"dive"`
	SiteIDs   []flexID       `json:"site_ids" validate:"dive,required"`
}

type locationBody struct {
	ID          flexID   `json:"id"`
	DisplayName string   `json:"display_name"`
	Lat         *float64 `json:"lat" validate:"required,gte=-90,lte=90"`
	Lon         *float64 `json:"lon" validate:"required,gte=-180,lte=180"`
}

func (r analysisRequest) toBatch() terrain.BatchRequest {
	locs := make([]terrain.Location, 0, len(r.Locations))
	for _, l := range r.Locations {
		locs = append(locs, terrain.Location{
			ID:          string(l.ID),
			DisplayName: l.DisplayName,
			Lat:         *l.Lat,
			Lon:         *l.Lon,
		})
	}
	ids := make([]string, 0, len(r.SiteIDs))
	for _, id := range r.SiteIDs {
		ids = append(ids, string(id))
	}
	return terrain.BatchRequest{Locations: locs, SiteIDs: ids}
}

// flexID accepts identifiers sent either as JSON strings or numbers.
type flexID string

func (f *flexID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*f = ""
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*f = flexID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("id must be a string or number: %w", err)
	}
	*f = flexID(n.String())
	return nil
}

// predictRequest is the POST /api/predict body.
type predictRequest struct {
	RegionID    flexID   `json:"region_id" validate:"required"`
	Latitude    *float64 `json:"latitude" validate:"required,gte=-90,lte=90"`
	Longitude   *float64 `json:"longitude" validate:"required,gte=-180,lte=180"`
	RequestedBy string   `json:"requested_by"`
}

func (r predictRequest) toRequest() risk.PredictRequest {
	return risk.PredictRequest{
		RegionID:    string(r.RegionID),
		Latitude:    *r.Latitude,
		Longitude:   *r.Longitude,
		RequestedBy: r.RequestedBy,
	}
}
