package user

import "context"

type Repository interface {
	Upsert(ctx context.Context, u *User) error
	GetByExternalID(ctx context.Context, externalID string) (*User, error)
	Update(ctx context.Context, u *User) error
	List(ctx context.Context, limit, offset int) ([]*User, int, error)
}
