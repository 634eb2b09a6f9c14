package hospital

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/refermed/refermed/pkg/geo"
)

type Service struct {
	repo Repository
}

func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

func (s *Service) CreateHospital(ctx context.Context, h *Hospital) error {
	if h.Name == "" {
		return fmt.Errorf("name is required")
	}
	if h.Type == "" {
		h.Type = TypeDistrict
	}
	if !validTypes[h.Type] {
		return fmt.Errorf("invalid hospital type: %s", h.Type)
	}
	if !geo.ValidCoordinates(h.Lat, h.Lon) {
		return fmt.Errorf("invalid coordinates: lat=%f lon=%f", h.Lat, h.Lon)
	}
	return s.repo.Create(ctx, h)
}

func (s *Service) GetHospital(ctx context.Context, id uuid.UUID) (*Hospital, error) {
	return s.repo.GetByID(ctx, id)
}

func (s *Service) UpdateHospital(ctx context.Context, h *Hospital) error {
	if h.Type != "" && !validTypes[h.Type] {
		return fmt.Errorf("invalid hospital type: %s", h.Type)
	}
	if !geo.ValidCoordinates(h.Lat, h.Lon) {
		return fmt.Errorf("invalid coordinates: lat=%f lon=%f", h.Lat, h.Lon)
	}
	return s.repo.Update(ctx, h)
}

func (s *Service) DeleteHospital(ctx context.Context, id uuid.UUID) error {
	return s.repo.Delete(ctx, id)
}

// ListHospitals lists hospitals, optionally filtered by city and excluding
// one hospital (the caller's own, for the referral destination picker).
func (s *Service) ListHospitals(ctx context.Context, f ListFilter) ([]*Hospital, int, error) {
	return s.repo.List(ctx, f)
}

// SetCapacity creates or replaces the capacity row for a department.
func (s *Service) SetCapacity(ctx context.Context, c *Capacity) error {
	if !ValidDepartment(c.Department) {
		return fmt.Errorf("unknown department: %s", c.Department)
	}
	if c.Total < 0 {
		return fmt.Errorf("capacity_total must not be negative")
	}
	if c.Available < 0 || c.Available > c.Total {
		return fmt.Errorf("capacity_available must be between 0 and capacity_total")
	}
	if _, err := s.repo.GetByID(ctx, c.HospitalID); err != nil {
		return fmt.Errorf("hospital not found: %w", err)
	}
	return s.repo.UpsertCapacity(ctx, c)
}

func (s *Service) GetCapacity(ctx context.Context, hospitalID uuid.UUID, department string) (*Capacity, error) {
	if !ValidDepartment(department) {
		return nil, fmt.Errorf("unknown department: %s", department)
	}
	return s.repo.GetCapacity(ctx, hospitalID, department)
}

func (s *Service) ListCapacities(ctx context.Context, hospitalID uuid.UUID) ([]*Capacity, error) {
	return s.repo.ListCapacities(ctx, hospitalID)
}

// RemoveCapacity drops a department from a hospital's offering.
func (s *Service) RemoveCapacity(ctx context.Context, hospitalID uuid.UUID, department string) error {
	if !ValidDepartment(department) {
		return fmt.Errorf("unknown department: %s", department)
	}
	return s.repo.DeleteCapacity(ctx, hospitalID, department)
}

// ReserveSlot decrements available capacity when a referral is approved.
func (s *Service) ReserveSlot(ctx context.Context, hospitalID uuid.UUID, department string) error {
	return s.repo.AdjustAvailable(ctx, hospitalID, department, -1)
}

// ReleaseSlot returns a slot when a referral is completed or abandoned.
func (s *Service) ReleaseSlot(ctx context.Context, hospitalID uuid.UUID, department string) error {
	return s.repo.AdjustAvailable(ctx, hospitalID, department, 1)
}

// ListCandidates returns hospitals with open capacity for a department,
// excluding the referring hospital.
func (s *Service) ListCandidates(ctx context.Context, department string, exclude uuid.UUID) ([]*Candidate, error) {
	if !ValidDepartment(department) {
		return nil, fmt.Errorf("unknown department: %s", department)
	}
	return s.repo.ListCandidates(ctx, department, exclude)
}
