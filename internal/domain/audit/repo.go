package audit

import (
	"context"

	"github.com/google/uuid"
)

type Repository interface {
	Create(ctx context.Context, e *Entry) error
	ListByReferral(ctx context.Context, referralID uuid.UUID) ([]*Entry, error)
	HasAction(ctx context.Context, referralID uuid.UUID, action string) (bool, error)
}
