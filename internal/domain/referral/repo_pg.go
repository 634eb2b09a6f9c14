package referral

import (
	"context"
	"errors"
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

const referralCols = `id, referral_type, status, from_hospital_id, to_hospital_id,
	created_by_user_id, assigned_to_user_id,
	patient_name, patient_age, patient_gender, patient_whatsapp,
	department, urgency, condition_description, known_allergies, current_medications,
	preferred_referral_date, consent_medical_info, consent_whatsapp, additional_notes,
	document_urls, ai_summary,
	created_at, updated_at, responded_at, closed_at, patient_confirmed_at`

func (r *repoPG) Create(ctx context.Context, ref *Referral) error {
	ref.ID = uuid.New()
	if ref.DocumentURLs == nil {
		ref.DocumentURLs = []string{}
	}
	return r.conn(ctx).QueryRow(ctx, `
		INSERT INTO referrals (
			id, referral_type, status, from_hospital_id, to_hospital_id,
			created_by_user_id, assigned_to_user_id,
			patient_name, patient_age, patient_gender, patient_whatsapp,
			department, urgency, condition_description, known_allergies, current_medications,
			preferred_referral_date, consent_medical_info, consent_whatsapp, additional_notes,
			document_urls
		) VALUES (
			$1,$2,$3,$4,$5,$6,$7,$8,$9,$10,
			$11,$12,$13,$14,$15,$16,$17,$18,$19,$20,$21
		) RETURNING created_at, updated_at`,
		ref.ID, ref.ReferralType, ref.Status, ref.FromHospitalID, ref.ToHospitalID,
		ref.CreatedByUserID, ref.AssignedToUserID,
		ref.PatientName, ref.PatientAge, ref.PatientGender, ref.PatientWhatsApp,
		ref.Department, ref.Urgency, ref.ConditionDescription, ref.KnownAllergies, ref.CurrentMedications,
		ref.PreferredDate, ref.ConsentMedicalInfo, ref.ConsentWhatsApp, ref.AdditionalNotes,
		ref.DocumentURLs,
	).Scan(&ref.CreatedAt, &ref.UpdatedAt)
}

func (r *repoPG) GetByID(ctx context.Context, id uuid.UUID) (*Referral, error) {
	ref, err := scanReferral(r.conn(ctx).QueryRow(ctx,
		`SELECT `+referralCols+` FROM referrals WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	return ref, err
}

func (r *repoPG) ListIncoming(ctx context.Context, hospitalID uuid.UUID, f ListFilter) ([]*Referral, int, error) {
	return r.list(ctx, "to_hospital_id", hospitalID, f)
}

func (r *repoPG) ListOutgoing(ctx context.Context, hospitalID uuid.UUID, f ListFilter) ([]*Referral, int, error) {
	return r.list(ctx, "from_hospital_id", hospitalID, f)
}

func (r *repoPG) list(ctx context.Context, column string, hospitalID uuid.UUID, f ListFilter) ([]*Referral, int, error) {
	where := fmt.Sprintf("%s = $1", column)
	args := []interface{}{hospitalID}

	if f.Status != "" {
		args = append(args, f.Status)
		where += fmt.Sprintf(" AND status = $%d", len(args))
	}
	if f.ReferralType != "" {
		args = append(args, f.ReferralType)
		where += fmt.Sprintf(" AND referral_type = $%d", len(args))
	}

	var total int
	if err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM referrals WHERE `+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	args = append(args, f.Limit, f.Offset)
	rows, err := r.conn(ctx).Query(ctx, fmt.Sprintf(
		`SELECT %s FROM referrals WHERE %s ORDER BY created_at DESC LIMIT $%d OFFSET $%d`,
		referralCols, where, len(args)-1, len(args)), args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	return collectReferrals(rows, total)
}

// Approve moves pending -> approved and records the responder. The status
// guard in the WHERE clause makes concurrent approvals first-writer-wins.
func (r *repoPG) Approve(ctx context.Context, id uuid.UUID, assigneeUserID string) (*Referral, error) {
	return r.conditionalUpdate(ctx, `
		UPDATE referrals SET
			status = 'approved',
			assigned_to_user_id = $2,
			responded_at = NOW(),
			updated_at = NOW()
		WHERE id = $1 AND status = 'pending'
		RETURNING `+referralCols,
		id, assigneeUserID)
}

func (r *repoPG) Reject(ctx context.Context, id uuid.UUID) (*Referral, error) {
	return r.conditionalUpdate(ctx, `
		UPDATE referrals SET
			status = 'rejected',
			responded_at = NOW(),
			updated_at = NOW()
		WHERE id = $1 AND status = 'pending'
		RETURNING `+referralCols,
		id)
}

// Complete moves approved -> completed. Only the assignee may complete.
func (r *repoPG) Complete(ctx context.Context, id uuid.UUID, assigneeUserID string) (*Referral, error) {
	return r.conditionalUpdate(ctx, `
		UPDATE referrals SET
			status = 'completed',
			closed_at = NOW(),
			updated_at = NOW()
		WHERE id = $1 AND status = 'approved' AND assigned_to_user_id = $2
		RETURNING `+referralCols,
		id, assigneeUserID)
}

// Cancel moves pending -> cancelled. Only the creator may cancel.
func (r *repoPG) Cancel(ctx context.Context, id uuid.UUID, creatorUserID string) (*Referral, error) {
	return r.conditionalUpdate(ctx, `
		UPDATE referrals SET
			status = 'cancelled',
			closed_at = NOW(),
			updated_at = NOW()
		WHERE id = $1 AND status = 'pending' AND created_by_user_id = $2
		RETURNING `+referralCols,
		id, creatorUserID)
}

func (r *repoPG) conditionalUpdate(ctx context.Context, sql string, args ...interface{}) (*Referral, error) {
	ref, err := scanReferral(r.conn(ctx).QueryRow(ctx, sql, args...))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrInvalidTransition
	}
	return ref, err
}

func (r *repoPG) SetAISummary(ctx context.Context, id uuid.UUID, summary string) error {
	tag, err := r.conn(ctx).Exec(ctx,
		`UPDATE referrals SET ai_summary = $2, updated_at = NOW() WHERE id = $1`, id, summary)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// ConfirmLatestByPhone stamps patient confirmation on the most recent open
// referral for a patient WhatsApp number.
func (r *repoPG) ConfirmLatestByPhone(ctx context.Context, phone string) error {
	tag, err := r.conn(ctx).Exec(ctx, `
		UPDATE referrals SET patient_confirmed_at = NOW(), updated_at = NOW()
		WHERE id = (
			SELECT id FROM referrals
			WHERE patient_whatsapp = $1 AND status IN ('pending', 'approved')
			ORDER BY created_at DESC
			LIMIT 1
		)`, phone)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *repoPG) SaveDraft(ctx context.Context, d *Draft) error {
	if d.ID == uuid.Nil {
		d.ID = uuid.New()
	}
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO referral_drafts (id, created_by_user_id, payload)
		VALUES ($1, $2, $3)
		ON CONFLICT (created_by_user_id) DO UPDATE SET
			payload = EXCLUDED.payload,
			updated_at = NOW()`,
		d.ID, d.CreatedByUserID, d.Payload,
	)
	return err
}

func (r *repoPG) GetDraft(ctx context.Context, createdByUserID string) (*Draft, error) {
	var d Draft
	err := r.conn(ctx).QueryRow(ctx, `
		SELECT id, created_by_user_id, payload, created_at, updated_at
		FROM referral_drafts WHERE created_by_user_id = $1`, createdByUserID).
		Scan(&d.ID, &d.CreatedByUserID, &d.Payload, &d.CreatedAt, &d.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &d, nil
}

func (r *repoPG) DeleteDraft(ctx context.Context, createdByUserID string) error {
	_, err := r.conn(ctx).Exec(ctx,
		`DELETE FROM referral_drafts WHERE created_by_user_id = $1`, createdByUserID)
	return err
}

func scanReferral(row pgx.Row) (*Referral, error) {
	var ref Referral
	err := row.Scan(
		&ref.ID, &ref.ReferralType, &ref.Status, &ref.FromHospitalID, &ref.ToHospitalID,
		&ref.CreatedByUserID, &ref.AssignedToUserID,
		&ref.PatientName, &ref.PatientAge, &ref.PatientGender, &ref.PatientWhatsApp,
		&ref.Department, &ref.Urgency, &ref.ConditionDescription, &ref.KnownAllergies, &ref.CurrentMedications,
		&ref.PreferredDate, &ref.ConsentMedicalInfo, &ref.ConsentWhatsApp, &ref.AdditionalNotes,
		&ref.DocumentURLs, &ref.AISummary,
		&ref.CreatedAt, &ref.UpdatedAt, &ref.RespondedAt, &ref.ClosedAt, &ref.PatientConfirmedAt,
	)
	if err != nil {
		return nil, err
	}
	return &ref, nil
}

func collectReferrals(rows pgx.Rows, total int) ([]*Referral, int, error) {
	var refs []*Referral
	for rows.Next() {
		var ref Referral
		err := rows.Scan(
			&ref.ID, &ref.ReferralType, &ref.Status, &ref.FromHospitalID, &ref.ToHospitalID,
			&ref.CreatedByUserID, &ref.AssignedToUserID,
			&ref.PatientName, &ref.PatientAge, &ref.PatientGender, &ref.PatientWhatsApp,
			&ref.Department, &ref.Urgency, &ref.ConditionDescription, &ref.KnownAllergies, &ref.CurrentMedications,
			&ref.PreferredDate, &ref.ConsentMedicalInfo, &ref.ConsentWhatsApp, &ref.AdditionalNotes,
			&ref.DocumentURLs, &ref.AISummary,
			&ref.CreatedAt, &ref.UpdatedAt, &ref.RespondedAt, &ref.ClosedAt, &ref.PatientConfirmedAt,
		)
		if err != nil {
			return nil, 0, err
		}
		refs = append(refs, &ref)
	}
	return refs, total, rows.Err()
}
