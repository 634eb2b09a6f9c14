package user

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
)

// ErrNoHomeHospital is returned when a user has not completed onboarding and
// therefore has no hospital to refer from.
var ErrNoHomeHospital = errors.New("user has no home hospital")

type Service struct {
	repo Repository
}

func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

// EnsureUser records the user on first contact. Safe to call on every login.
func (s *Service) EnsureUser(ctx context.Context, externalID string, email, fullName *string) (*User, error) {
	if externalID == "" {
		return nil, fmt.Errorf("external_id is required")
	}
	u := &User{
		ExternalID: externalID,
		Email:      email,
		FullName:   fullName,
		Role:       RoleDoctor,
	}
	if err := s.repo.Upsert(ctx, u); err != nil {
		return nil, err
	}
	return s.repo.GetByExternalID(ctx, externalID)
}

func (s *Service) GetUser(ctx context.Context, externalID string) (*User, error) {
	return s.repo.GetByExternalID(ctx, externalID)
}

// CompleteOnboarding binds a user to their home hospital and role.
func (s *Service) CompleteOnboarding(ctx context.Context, externalID string, hospitalID uuid.UUID, role string) (*User, error) {
	if hospitalID == uuid.Nil {
		return nil, fmt.Errorf("hospital_id is required")
	}
	if role == "" {
		role = RoleDoctor
	}
	if !validRoles[role] {
		return nil, fmt.Errorf("invalid role: %s", role)
	}

	u, err := s.repo.GetByExternalID(ctx, externalID)
	if err != nil {
		return nil, fmt.Errorf("user not found: %w", err)
	}

	u.HospitalID = &hospitalID
	u.Role = role
	u.OnboardingComplete = true
	if err := s.repo.Update(ctx, u); err != nil {
		return nil, err
	}
	return u, nil
}

// ResolveHomeHospital returns the hospital a user refers from. It fails with
// ErrNoHomeHospital when onboarding has not assigned one.
func (s *Service) ResolveHomeHospital(ctx context.Context, externalID string) (uuid.UUID, error) {
	u, err := s.repo.GetByExternalID(ctx, externalID)
	if err != nil {
		return uuid.Nil, fmt.Errorf("user not found: %w", err)
	}
	if u.HospitalID == nil || *u.HospitalID == uuid.Nil {
		return uuid.Nil, ErrNoHomeHospital
	}
	return *u.HospitalID, nil
}

func (s *Service) ListUsers(ctx context.Context, limit, offset int) ([]*User, int, error) {
	return s.repo.List(ctx, limit, offset)
}
