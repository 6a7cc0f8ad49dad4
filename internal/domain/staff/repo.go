package staff

import (
	"context"

	"github.com/google/uuid"
)

type Repository interface {
	GetByID(ctx context.Context, id uuid.UUID) (*Staff, error)
	ListAvailableByDepartmentAndRole(ctx context.Context, department, role string) ([]*Staff, error)
	ListAvailableAdmins(ctx context.Context) ([]*Staff, error)
	SetAvailability(ctx context.Context, id uuid.UUID, available bool) error
}
