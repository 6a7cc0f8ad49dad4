package audit

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
)

// Service writes the audit trail. Every referral mutation in the system goes
// through LogChange; entries follow their mutation and are never dropped
// silently.
type Service struct {
	entries Repository
}

func NewService(entries Repository) *Service {
	return &Service{entries: entries}
}

// LogChange appends one audit entry. actorID is nil for system-initiated
// actions. Structured old/new values are JSON-serialized; plain strings pass
// through unchanged.
func (s *Service) LogChange(ctx context.Context, referralID uuid.UUID, actorID *uuid.UUID, action string, field *string, oldValue, newValue interface{}, metadata map[string]string) error {
	old, err := serializeValue(oldValue)
	if err != nil {
		return fmt.Errorf("serialize old value: %w", err)
	}
	newV, err := serializeValue(newValue)
	if err != nil {
		return fmt.Errorf("serialize new value: %w", err)
	}

	entry := &Entry{
		ReferralID: referralID,
		UserID:     actorID,
		Action:     action,
		Field:      field,
		OldValue:   old,
		NewValue:   newV,
		Metadata:   metadata,
	}
	if err := s.entries.Create(ctx, entry); err != nil {
		return fmt.Errorf("write audit entry: %w", err)
	}
	return nil
}

// HasAction reports whether any entry with the given action exists for the
// referral. The escalation sweeper uses this as its idempotency guard.
func (s *Service) HasAction(ctx context.Context, referralID uuid.UUID, action string) (bool, error) {
	return s.entries.HasAction(ctx, referralID, action)
}

// ListByReferral returns the referral's full trail in write order.
func (s *Service) ListByReferral(ctx context.Context, referralID uuid.UUID) ([]*Entry, error) {
	return s.entries.ListByReferral(ctx, referralID)
}

func serializeValue(v interface{}) (*string, error) {
	if v == nil {
		return nil, nil
	}
	switch t := v.(type) {
	case string:
		if t == "" {
			return nil, nil
		}
		return &t, nil
	case *string:
		return t, nil
	default:
		raw, err := json.Marshal(t)
		if err != nil {
			return nil, err
		}
		s := string(raw)
		return &s, nil
	}
}
