package store

import (
	"context"

	"github.com/joescharf/quorum/internal/models"
)

// Store defines the persistence interface for review session history.
type Store interface {
	// Sessions
	SaveSession(ctx context.Context, session *models.Session) error
	GetSession(ctx context.Context, id string) (*models.Session, error)
	ListSessions(ctx context.Context, limit int) ([]*models.Session, error)
	DeleteSession(ctx context.Context, id string) error

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}
