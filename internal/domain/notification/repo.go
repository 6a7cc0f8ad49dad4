package notification

import (
	"context"
	"errors"

	"github.com/google/uuid"
)

// ErrNotFound is returned when no notification matches the lookup.
var ErrNotFound = errors.New("notification not found")

type Repository interface {
	CreateNotification(ctx context.Context, n *Notification) error
	ListByStaff(ctx context.Context, staffID uuid.UUID) ([]*Notification, error)
	// MarkRead stamps read_at for the staff member's own notification.
	MarkRead(ctx context.Context, id, staffID uuid.UUID) error

	CreateQueued(ctx context.Context, q *QueuedNotification) error
	// ListPendingByStaff returns unprocessed queued notifications for the
	// staff member in queue order (oldest first).
	ListPendingByStaff(ctx context.Context, staffID uuid.UUID) ([]*QueuedNotification, error)
	// ListPendingDeferred returns unprocessed department-wide markers for the
	// given department, oldest first.
	ListPendingDeferred(ctx context.Context, department string) ([]*QueuedNotification, error)
	MarkQueuedProcessed(ctx context.Context, id uuid.UUID) error
}
