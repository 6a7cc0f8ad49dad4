package staff

import (
	"context"
	"fmt"

	"github.com/google/uuid"
)

// AvailabilityListener reacts to a staff member's availability flipping to
// true. The notification dispatcher implements it by replaying the member's
// queued notifications.
type AvailabilityListener interface {
	StaffBecameAvailable(ctx context.Context, s *Staff) error
}

type Service struct {
	staff    Repository
	listener AvailabilityListener
}

func NewService(staff Repository) *Service {
	return &Service{staff: staff}
}

// SetAvailabilityListener attaches the listener invoked on false→true flips.
func (s *Service) SetAvailabilityListener(l AvailabilityListener) {
	s.listener = l
}

func (s *Service) GetStaff(ctx context.Context, id uuid.UUID) (*Staff, error) {
	return s.staff.GetByID(ctx, id)
}

// SetAvailability updates the flag and, when it transitions from unavailable
// to available, triggers queued-notification replay for the staff member.
func (s *Service) SetAvailability(ctx context.Context, id uuid.UUID, available bool) (*Staff, error) {
	current, err := s.staff.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("load staff %s: %w", id, err)
	}

	becameAvailable := available && !current.IsAvailable

	if err := s.staff.SetAvailability(ctx, id, available); err != nil {
		return nil, fmt.Errorf("update availability: %w", err)
	}
	current.IsAvailable = available

	if becameAvailable && s.listener != nil {
		if err := s.listener.StaffBecameAvailable(ctx, current); err != nil {
			return nil, fmt.Errorf("process queued notifications: %w", err)
		}
	}

	return current, nil
}
