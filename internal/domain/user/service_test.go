package user

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
)

type mockRepo struct {
	users map[string]*User
}

func newMockRepo() *mockRepo {
	return &mockRepo{users: make(map[string]*User)}
}

func (m *mockRepo) Upsert(_ context.Context, u *User) error {
	if existing, ok := m.users[u.ExternalID]; ok {
		if u.Email != nil {
			existing.Email = u.Email
		}
		if u.FullName != nil {
			existing.FullName = u.FullName
		}
		return nil
	}
	stored := *u
	stored.CreatedAt = time.Now().UTC()
	m.users[u.ExternalID] = &stored
	return nil
}

func (m *mockRepo) GetByExternalID(_ context.Context, externalID string) (*User, error) {
	u, ok := m.users[externalID]
	if !ok {
		return nil, fmt.Errorf("user %s not found", externalID)
	}
	return u, nil
}

func (m *mockRepo) Update(_ context.Context, u *User) error {
	if _, ok := m.users[u.ExternalID]; !ok {
		return fmt.Errorf("user %s not found", u.ExternalID)
	}
	m.users[u.ExternalID] = u
	return nil
}

func (m *mockRepo) List(_ context.Context, limit, offset int) ([]*User, int, error) {
	var out []*User
	for _, u := range m.users {
		out = append(out, u)
	}
	return out, len(out), nil
}

func strPtr(s string) *string { return &s }

func TestEnsureUser_FirstContactAndRepeat(t *testing.T) {
	svc := NewService(newMockRepo())
	ctx := context.Background()

	u, err := svc.EnsureUser(ctx, "user_2abc", strPtr("dr@hospital.example"), strPtr("Dr Dlamini"))
	if err != nil {
		t.Fatalf("EnsureUser: %v", err)
	}
	if u.Role != RoleDoctor {
		t.Errorf("expected default role doctor, got %s", u.Role)
	}
	if u.OnboardingComplete {
		t.Error("new user should not be onboarded")
	}

	// Second call must not reset onboarding state.
	hid := uuid.New()
	if _, err := svc.CompleteOnboarding(ctx, "user_2abc", hid, RoleDoctor); err != nil {
		t.Fatalf("CompleteOnboarding: %v", err)
	}
	u, err = svc.EnsureUser(ctx, "user_2abc", nil, nil)
	if err != nil {
		t.Fatalf("EnsureUser repeat: %v", err)
	}
	if !u.OnboardingComplete {
		t.Error("repeat EnsureUser must preserve onboarding state")
	}
	if u.HospitalID == nil || *u.HospitalID != hid {
		t.Error("repeat EnsureUser must preserve hospital binding")
	}
}

func TestEnsureUser_RequiresExternalID(t *testing.T) {
	svc := NewService(newMockRepo())
	if _, err := svc.EnsureUser(context.Background(), "", nil, nil); err == nil {
		t.Fatal("expected error for empty external id")
	}
}

func TestCompleteOnboarding_Validation(t *testing.T) {
	svc := NewService(newMockRepo())
	ctx := context.Background()

	if _, err := svc.EnsureUser(ctx, "user_2abc", nil, nil); err != nil {
		t.Fatalf("EnsureUser: %v", err)
	}

	if _, err := svc.CompleteOnboarding(ctx, "user_2abc", uuid.Nil, RoleDoctor); err == nil {
		t.Error("expected error for nil hospital id")
	}
	if _, err := svc.CompleteOnboarding(ctx, "user_2abc", uuid.New(), "superuser"); err == nil {
		t.Error("expected error for invalid role")
	}
	if _, err := svc.CompleteOnboarding(ctx, "unknown", uuid.New(), RoleDoctor); err == nil {
		t.Error("expected error for unknown user")
	}

	u, err := svc.CompleteOnboarding(ctx, "user_2abc", uuid.New(), "")
	if err != nil {
		t.Fatalf("CompleteOnboarding: %v", err)
	}
	if u.Role != RoleDoctor {
		t.Errorf("expected role to default to doctor, got %s", u.Role)
	}
	if !u.OnboardingComplete {
		t.Error("expected onboarding_complete to be set")
	}
}

func TestResolveHomeHospital(t *testing.T) {
	svc := NewService(newMockRepo())
	ctx := context.Background()

	if _, err := svc.ResolveHomeHospital(ctx, "missing"); err == nil {
		t.Error("expected error for unknown user")
	}

	if _, err := svc.EnsureUser(ctx, "user_2abc", nil, nil); err != nil {
		t.Fatalf("EnsureUser: %v", err)
	}
	if _, err := svc.ResolveHomeHospital(ctx, "user_2abc"); !errors.Is(err, ErrNoHomeHospital) {
		t.Errorf("expected ErrNoHomeHospital, got %v", err)
	}

	hid := uuid.New()
	if _, err := svc.CompleteOnboarding(ctx, "user_2abc", hid, RoleDoctor); err != nil {
		t.Fatalf("CompleteOnboarding: %v", err)
	}
	got, err := svc.ResolveHomeHospital(ctx, "user_2abc")
	if err != nil {
		t.Fatalf("ResolveHomeHospital: %v", err)
	}
	if got != hid {
		t.Errorf("expected %s, got %s", hid, got)
	}
}
