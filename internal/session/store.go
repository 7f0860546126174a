// Package session persists diagnosis sessions between turns.
package session

import (
	"context"

	"github.com/moolen/sleuth/internal/models"
)

// Store loads and saves session snapshots. Get returns a
// *models.NotFoundError for unknown ids.
type Store interface {
	Get(ctx context.Context, id string) (models.SessionState, error)
	Put(ctx context.Context, s models.SessionState) error
	Delete(ctx context.Context, id string) error
}
