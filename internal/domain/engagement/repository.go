package engagement

import (
	"context"

	"github.com/google/uuid"
)

// Store defines storage for engagements. Implementations return clones;
// canonical records are mutated only through Update.
type Store interface {
	Insert(ctx context.Context, e *Engagement) error
	Update(ctx context.Context, e *Engagement) error
	GetByID(ctx context.Context, id uuid.UUID) (*Engagement, error)
	FindActiveBySession(ctx context.Context, sessionID string) (*Engagement, error)
	ListBySession(ctx context.Context, sessionID string) ([]*Engagement, error)
	All(ctx context.Context) ([]*Engagement, error)
}
