package user

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/refermed/refermed/internal/platform/db"
)

type repoPG struct {
	pool *pgxpool.Pool
}

func NewRepo(pool *pgxpool.Pool) Repository {
	return &repoPG{pool: pool}
}

type querier interface {
	Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
}

func (r *repoPG) conn(ctx context.Context) querier {
	if tx := db.TxFromContext(ctx); tx != nil {
		return tx
	}
	if c := db.ConnFromContext(ctx); c != nil {
		return c
	}
	return r.pool
}

const userCols = `external_id, email, full_name, hospital_id, role, onboarding_complete, created_at, updated_at`

// Upsert inserts the user on first login; on conflict it refreshes email and
// name but leaves onboarding state alone.
func (r *repoPG) Upsert(ctx context.Context, u *User) error {
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO users (external_id, email, full_name, role)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (external_id) DO UPDATE SET
			email = COALESCE(EXCLUDED.email, users.email),
			full_name = COALESCE(EXCLUDED.full_name, users.full_name),
			updated_at = NOW()`,
		u.ExternalID, u.Email, u.FullName, u.Role,
	)
	return err
}

func (r *repoPG) GetByExternalID(ctx context.Context, externalID string) (*User, error) {
	return scanUser(r.conn(ctx).QueryRow(ctx,
		`SELECT `+userCols+` FROM users WHERE external_id = $1`, externalID))
}

func (r *repoPG) Update(ctx context.Context, u *User) error {
	_, err := r.conn(ctx).Exec(ctx, `
		UPDATE users SET
			email=$2, full_name=$3, hospital_id=$4, role=$5, onboarding_complete=$6, updated_at=NOW()
		WHERE external_id = $1`,
		u.ExternalID, u.Email, u.FullName, u.HospitalID, u.Role, u.OnboardingComplete,
	)
	return err
}

func (r *repoPG) List(ctx context.Context, limit, offset int) ([]*User, int, error) {
	var total int
	if err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM users`).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := r.conn(ctx).Query(ctx,
		`SELECT `+userCols+` FROM users ORDER BY created_at DESC LIMIT $1 OFFSET $2`, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var users []*User
	for rows.Next() {
		var u User
		if err := rows.Scan(&u.ExternalID, &u.Email, &u.FullName, &u.HospitalID, &u.Role, &u.OnboardingComplete, &u.CreatedAt, &u.UpdatedAt); err != nil {
			return nil, 0, err
		}
		users = append(users, &u)
	}
	return users, total, rows.Err()
}

func scanUser(row pgx.Row) (*User, error) {
	var u User
	err := row.Scan(&u.ExternalID, &u.Email, &u.FullName, &u.HospitalID, &u.Role, &u.OnboardingComplete, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &u, nil
}
