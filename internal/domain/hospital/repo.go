package hospital

import (
	"context"

	"github.com/google/uuid"
)

type Repository interface {
	GetByID(ctx context.Context, id uuid.UUID) (*Hospital, error)
	// ResolveAPIKey returns the id of the active hospital owning the key, or
	// an error when the key is unknown or the hospital is inactive.
	ResolveAPIKey(ctx context.Context, apiKey string) (uuid.UUID, error)
}
