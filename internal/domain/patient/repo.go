package patient

import (
	"context"

	"github.com/google/uuid"
)

type Repository interface {
	GetByID(ctx context.Context, id uuid.UUID) (*Patient, error)
	// FindOrCreateByNationalID returns the existing patient with p's national
	// id, creating one from p when none exists.
	FindOrCreateByNationalID(ctx context.Context, p *Patient) (*Patient, error)
}
