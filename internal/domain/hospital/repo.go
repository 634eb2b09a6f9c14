package hospital

import (
	"context"

	"github.com/google/uuid"
)

// ListFilter narrows hospital listings. Exclude drops one hospital from the
// result, for pickers that must not offer the caller's own hospital.
type ListFilter struct {
	City    string
	Exclude uuid.UUID
	Limit   int
	Offset  int
}

type Repository interface {
	Create(ctx context.Context, h *Hospital) error
	GetByID(ctx context.Context, id uuid.UUID) (*Hospital, error)
	Update(ctx context.Context, h *Hospital) error
	Delete(ctx context.Context, id uuid.UUID) error
	List(ctx context.Context, f ListFilter) ([]*Hospital, int, error)

	// Capacity
	UpsertCapacity(ctx context.Context, c *Capacity) error
	GetCapacity(ctx context.Context, hospitalID uuid.UUID, department string) (*Capacity, error)
	ListCapacities(ctx context.Context, hospitalID uuid.UUID) ([]*Capacity, error)
	DeleteCapacity(ctx context.Context, hospitalID uuid.UUID, department string) error
	AdjustAvailable(ctx context.Context, hospitalID uuid.UUID, department string, delta int) error

	// ListCandidates returns hospitals with open capacity for a department,
	// excluding the given hospital.
	ListCandidates(ctx context.Context, department string, exclude uuid.UUID) ([]*Candidate, error)
}
