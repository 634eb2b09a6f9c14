package referral

import (
	"context"
	"errors"

	"github.com/google/uuid"
)

var (
	// ErrNotFound is returned when a referral does not exist.
	ErrNotFound = errors.New("referral not found")
	// ErrInvalidTransition is returned when a conditional status update
	// matches no row, i.e. the referral is not in the required state.
	ErrInvalidTransition = errors.New("referral is not in the required status")
)

// ListFilter narrows incoming/outgoing listings.
type ListFilter struct {
	Status       string
	ReferralType string
	Limit        int
	Offset       int
}

type Repository interface {
	Create(ctx context.Context, r *Referral) error
	GetByID(ctx context.Context, id uuid.UUID) (*Referral, error)
	ListIncoming(ctx context.Context, hospitalID uuid.UUID, f ListFilter) ([]*Referral, int, error)
	ListOutgoing(ctx context.Context, hospitalID uuid.UUID, f ListFilter) ([]*Referral, int, error)

	// Conditional transitions. Each returns ErrInvalidTransition when the
	// referral exists but is not in the required source status.
	Approve(ctx context.Context, id uuid.UUID, assigneeUserID string) (*Referral, error)
	Reject(ctx context.Context, id uuid.UUID) (*Referral, error)
	Complete(ctx context.Context, id uuid.UUID, assigneeUserID string) (*Referral, error)
	Cancel(ctx context.Context, id uuid.UUID, creatorUserID string) (*Referral, error)

	SetAISummary(ctx context.Context, id uuid.UUID, summary string) error
	ConfirmLatestByPhone(ctx context.Context, phone string) error

	// Drafts
	SaveDraft(ctx context.Context, d *Draft) error
	GetDraft(ctx context.Context, createdByUserID string) (*Draft, error)
	DeleteDraft(ctx context.Context, createdByUserID string) error
}
