package hospital

import (
	"context"
	"fmt"

	"github.com/google/uuid"
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

const hospitalCols = `id, name, type, whatsapp_number, address_line1, city, province,
	postal_code, country, lat, lon, created_at, updated_at`

func (r *repoPG) Create(ctx context.Context, h *Hospital) error {
	h.ID = uuid.New()
	if h.Country == "" {
		h.Country = "South Africa"
	}
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO hospitals (
			id, name, type, whatsapp_number, address_line1, city, province,
			postal_code, country, lat, lon
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)`,
		h.ID, h.Name, h.Type, h.WhatsAppNumber, h.AddressLine1, h.City, h.Province,
		h.PostalCode, h.Country, h.Lat, h.Lon,
	)
	return err
}

func (r *repoPG) GetByID(ctx context.Context, id uuid.UUID) (*Hospital, error) {
	return scanHospital(r.conn(ctx).QueryRow(ctx, `SELECT `+hospitalCols+` FROM hospitals WHERE id = $1`, id))
}

func (r *repoPG) Update(ctx context.Context, h *Hospital) error {
	_, err := r.conn(ctx).Exec(ctx, `
		UPDATE hospitals SET
			name=$2, type=$3, whatsapp_number=$4, address_line1=$5, city=$6,
			province=$7, postal_code=$8, country=$9, lat=$10, lon=$11, updated_at=NOW()
		WHERE id = $1`,
		h.ID, h.Name, h.Type, h.WhatsAppNumber, h.AddressLine1, h.City,
		h.Province, h.PostalCode, h.Country, h.Lat, h.Lon,
	)
	return err
}

func (r *repoPG) Delete(ctx context.Context, id uuid.UUID) error {
	_, err := r.conn(ctx).Exec(ctx, `DELETE FROM hospitals WHERE id = $1`, id)
	return err
}

func (r *repoPG) List(ctx context.Context, f ListFilter) ([]*Hospital, int, error) {
	where := "TRUE"
	var args []interface{}

	if f.City != "" {
		args = append(args, f.City)
		where += fmt.Sprintf(" AND city = $%d", len(args))
	}
	if f.Exclude != uuid.Nil {
		args = append(args, f.Exclude)
		where += fmt.Sprintf(" AND id <> $%d", len(args))
	}

	var total int
	if err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM hospitals WHERE `+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	args = append(args, f.Limit, f.Offset)
	rows, err := r.conn(ctx).Query(ctx, fmt.Sprintf(
		`SELECT %s FROM hospitals WHERE %s ORDER BY name LIMIT $%d OFFSET $%d`,
		hospitalCols, where, len(args)-1, len(args)), args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	return collectHospitals(rows, total)
}

const capacityCols = `id, hospital_id, department, capacity_total, capacity_available, hod, phone, email, last_updated`

func (r *repoPG) UpsertCapacity(ctx context.Context, c *Capacity) error {
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO hospital_capacity (id, hospital_id, department, capacity_total, capacity_available, hod, phone, email, last_updated)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,NOW())
		ON CONFLICT (hospital_id, department) DO UPDATE SET
			capacity_total = EXCLUDED.capacity_total,
			capacity_available = EXCLUDED.capacity_available,
			hod = EXCLUDED.hod,
			phone = EXCLUDED.phone,
			email = EXCLUDED.email,
			last_updated = NOW()`,
		c.ID, c.HospitalID, c.Department, c.Total, c.Available, c.HOD, c.Phone, c.Email,
	)
	return err
}

func (r *repoPG) DeleteCapacity(ctx context.Context, hospitalID uuid.UUID, department string) error {
	_, err := r.conn(ctx).Exec(ctx,
		`DELETE FROM hospital_capacity WHERE hospital_id = $1 AND department = $2`,
		hospitalID, department)
	return err
}

func (r *repoPG) GetCapacity(ctx context.Context, hospitalID uuid.UUID, department string) (*Capacity, error) {
	return scanCapacity(r.conn(ctx).QueryRow(ctx,
		`SELECT `+capacityCols+` FROM hospital_capacity WHERE hospital_id = $1 AND department = $2`,
		hospitalID, department))
}

func (r *repoPG) ListCapacities(ctx context.Context, hospitalID uuid.UUID) ([]*Capacity, error) {
	rows, err := r.conn(ctx).Query(ctx,
		`SELECT `+capacityCols+` FROM hospital_capacity WHERE hospital_id = $1 ORDER BY department`,
		hospitalID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var caps []*Capacity
	for rows.Next() {
		var c Capacity
		if err := rows.Scan(&c.ID, &c.HospitalID, &c.Department, &c.Total, &c.Available, &c.HOD, &c.Phone, &c.Email, &c.LastUpdated); err != nil {
			return nil, err
		}
		caps = append(caps, &c)
	}
	return caps, rows.Err()
}

// AdjustAvailable changes available capacity by delta, clamped to [0, total].
func (r *repoPG) AdjustAvailable(ctx context.Context, hospitalID uuid.UUID, department string, delta int) error {
	_, err := r.conn(ctx).Exec(ctx, `
		UPDATE hospital_capacity SET
			capacity_available = LEAST(capacity_total, GREATEST(0, capacity_available + $3)),
			last_updated = NOW()
		WHERE hospital_id = $1 AND department = $2`,
		hospitalID, department, delta,
	)
	return err
}

func (r *repoPG) ListCandidates(ctx context.Context, department string, exclude uuid.UUID) ([]*Candidate, error) {
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT h.id, h.name, h.type, h.whatsapp_number, h.address_line1, h.city, h.province,
			h.postal_code, h.country, h.lat, h.lon, h.created_at, h.updated_at,
			c.id, c.hospital_id, c.department, c.capacity_total, c.capacity_available, c.hod, c.phone, c.email, c.last_updated
		FROM hospital_capacity c
		JOIN hospitals h ON h.id = c.hospital_id
		WHERE c.department = $1 AND c.capacity_available > 0 AND c.hospital_id <> $2
		ORDER BY h.id`,
		department, exclude)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var cands []*Candidate
	for rows.Next() {
		var cand Candidate
		h := &cand.Hospital
		cp := &cand.Capacity
		if err := rows.Scan(
			&h.ID, &h.Name, &h.Type, &h.WhatsAppNumber, &h.AddressLine1, &h.City, &h.Province,
			&h.PostalCode, &h.Country, &h.Lat, &h.Lon, &h.CreatedAt, &h.UpdatedAt,
			&cp.ID, &cp.HospitalID, &cp.Department, &cp.Total, &cp.Available, &cp.HOD, &cp.Phone, &cp.Email, &cp.LastUpdated,
		); err != nil {
			return nil, err
		}
		cands = append(cands, &cand)
	}
	return cands, rows.Err()
}

func scanHospital(row pgx.Row) (*Hospital, error) {
	var h Hospital
	err := row.Scan(
		&h.ID, &h.Name, &h.Type, &h.WhatsAppNumber, &h.AddressLine1, &h.City, &h.Province,
		&h.PostalCode, &h.Country, &h.Lat, &h.Lon, &h.CreatedAt, &h.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &h, nil
}

func scanCapacity(row pgx.Row) (*Capacity, error) {
	var c Capacity
	err := row.Scan(&c.ID, &c.HospitalID, &c.Department, &c.Total, &c.Available, &c.HOD, &c.Phone, &c.Email, &c.LastUpdated)
	if err != nil {
		return nil, err
	}
	return &c, nil
}

func collectHospitals(rows pgx.Rows, total int) ([]*Hospital, int, error) {
	var hospitals []*Hospital
	for rows.Next() {
		var h Hospital
		err := rows.Scan(
			&h.ID, &h.Name, &h.Type, &h.WhatsAppNumber, &h.AddressLine1, &h.City, &h.Province,
			&h.PostalCode, &h.Country, &h.Lat, &h.Lon, &h.CreatedAt, &h.UpdatedAt,
		)
		if err != nil {
			return nil, 0, err
		}
		hospitals = append(hospitals, &h)
	}
	return hospitals, total, rows.Err()
}
