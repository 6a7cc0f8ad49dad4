package staff

import (
	"context"
	"fmt"
	"testing"

	"github.com/google/uuid"
)

type mockRepo struct {
	store map[uuid.UUID]*Staff
}

func newMockRepo() *mockRepo {
	return &mockRepo{store: make(map[uuid.UUID]*Staff)}
}

func (m *mockRepo) GetByID(_ context.Context, id uuid.UUID) (*Staff, error) {
	s, ok := m.store[id]
	if !ok {
		return nil, fmt.Errorf("not found")
	}
	cp := *s
	return &cp, nil
}

func (m *mockRepo) ListAvailableByDepartmentAndRole(_ context.Context, department, role string) ([]*Staff, error) {
	var out []*Staff
	for _, s := range m.store {
		if s.Department == department && s.Role == role && s.IsAvailable {
			out = append(out, s)
		}
	}
	return out, nil
}

func (m *mockRepo) ListAvailableAdmins(_ context.Context) ([]*Staff, error) {
	var out []*Staff
	for _, s := range m.store {
		if s.Role == RoleAdmin && s.IsAvailable {
			out = append(out, s)
		}
	}
	return out, nil
}

func (m *mockRepo) SetAvailability(_ context.Context, id uuid.UUID, available bool) error {
	s, ok := m.store[id]
	if !ok {
		return fmt.Errorf("not found")
	}
	s.IsAvailable = available
	return nil
}

type recordingListener struct {
	flips []uuid.UUID
}

func (l *recordingListener) StaffBecameAvailable(_ context.Context, s *Staff) error {
	l.flips = append(l.flips, s.ID)
	return nil
}

func TestSetAvailability_FlipTriggersListener(t *testing.T) {
	repo := newMockRepo()
	member := &Staff{ID: uuid.New(), Role: RoleDoctor, Department: "cardiology", IsAvailable: false}
	repo.store[member.ID] = member

	listener := &recordingListener{}
	svc := NewService(repo)
	svc.SetAvailabilityListener(listener)

	updated, err := svc.SetAvailability(context.Background(), member.ID, true)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !updated.IsAvailable {
		t.Error("expected staff to be available")
	}
	if len(listener.flips) != 1 || listener.flips[0] != member.ID {
		t.Errorf("expected one availability flip for %s, got %v", member.ID, listener.flips)
	}
}

func TestSetAvailability_NoFlipNoListener(t *testing.T) {
	repo := newMockRepo()
	member := &Staff{ID: uuid.New(), Role: RoleDoctor, IsAvailable: true}
	repo.store[member.ID] = member

	listener := &recordingListener{}
	svc := NewService(repo)
	svc.SetAvailabilityListener(listener)

	// Already available: setting true again must not re-trigger replay.
	if _, err := svc.SetAvailability(context.Background(), member.ID, true); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	// Going unavailable never triggers.
	if _, err := svc.SetAvailability(context.Background(), member.ID, false); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(listener.flips) != 0 {
		t.Errorf("expected no listener calls, got %d", len(listener.flips))
	}
}
