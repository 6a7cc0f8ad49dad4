package department

import (
	"context"

	"github.com/google/uuid"
)

type Repository interface {
	// GetMappingsForCodes returns every department association for the given
	// diagnosis codes. Codes without associations simply contribute nothing.
	GetMappingsForCodes(ctx context.Context, codes []string) ([]CodeMapping, error)
	GetByID(ctx context.Context, id uuid.UUID) (*Department, error)
	GetByName(ctx context.Context, name string) (*Department, error)
	ListActiveNames(ctx context.Context) ([]string, error)
}
