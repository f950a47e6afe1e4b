package asset

import (
	"context"
	"errors"

	"github.com/rotisserie/eris"
)

// ErrNotFound is returned when an asset id has no stored record.
var ErrNotFound = errors.New("asset not found")

// IsNotFound reports whether err wraps ErrNotFound.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound) || eris.Is(err, ErrNotFound)
}

// Store persists polygon assets.
type Store interface {
	// Save inserts or replaces the asset with the same id.
	Save(ctx context.Context, a *PolygonAsset) error
	Get(ctx context.Context, id string) (*PolygonAsset, error)
	// List returns assets ordered by creation time, oldest first.
	List(ctx context.Context, limit, offset int) ([]*PolygonAsset, error)
	Delete(ctx context.Context, id string) error
	Migrate(ctx context.Context) error
	Close() error
}

const defaultListLimit = 100

func listLimit(limit int) int {
	if limit <= 0 {
		return defaultListLimit
	}
	return limit
}

type scannable interface {
	Scan(dest ...any) error
}
