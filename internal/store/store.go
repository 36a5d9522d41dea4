package store

import (
	"context"
	"errors"

	"github.com/i474232898/terrain-invest/internal/risk"
	"github.com/i474232898/terrain-invest/internal/terrain"
)

// ErrDuplicateSite is returned when a site id is already registered.
var ErrDuplicateSite = errors.New("site already exists")

// Store is everything the services persist.
type Store interface {
	terrain.Store
	risk.Store
	AddSite(ctx context.Context, site terrain.Location) error
	Close() error
}
