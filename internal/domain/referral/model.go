package referral

import (
	"time"

	"github.com/google/uuid"
)

// Referral types.
const (
	TypeGeneral  = "general"
	TypeSpecific = "specific"
)

// Referral lifecycle statuses. Transitions are enforced by conditional
// updates: pending -> approved|rejected|cancelled, approved -> completed.
const (
	StatusPending   = "pending"
	StatusApproved  = "approved"
	StatusRejected  = "rejected"
	StatusCompleted = "completed"
	StatusCancelled = "cancelled"
)

// Urgency levels.
const (
	UrgencyHigh   = "high"
	UrgencyMedium = "medium"
	UrgencyLow    = "low"
)

var validUrgencies = map[string]bool{
	UrgencyHigh:   true,
	UrgencyMedium: true,
	UrgencyLow:    true,
}

// Referral maps to the referrals table.
type Referral struct {
	ID                   uuid.UUID  `db:"id" json:"id"`
	ReferralType         string     `db:"referral_type" json:"referral_type"`
	Status               string     `db:"status" json:"status"`
	FromHospitalID       uuid.UUID  `db:"from_hospital_id" json:"from_hospital_id"`
	ToHospitalID         *uuid.UUID `db:"to_hospital_id" json:"to_hospital_id,omitempty"`
	CreatedByUserID      string     `db:"created_by_user_id" json:"created_by_user_id"`
	AssignedToUserID     *string    `db:"assigned_to_user_id" json:"assigned_to_user_id,omitempty"`
	PatientName          string     `db:"patient_name" json:"patient_name"`
	PatientAge           *int       `db:"patient_age" json:"patient_age,omitempty"`
	PatientGender        *string    `db:"patient_gender" json:"patient_gender,omitempty"`
	PatientWhatsApp      *string    `db:"patient_whatsapp" json:"patient_whatsapp,omitempty"`
	Department           string     `db:"department" json:"department"`
	Urgency              string     `db:"urgency" json:"urgency"`
	ConditionDescription *string    `db:"condition_description" json:"condition_description,omitempty"`
	KnownAllergies       *string    `db:"known_allergies" json:"known_allergies,omitempty"`
	CurrentMedications   *string    `db:"current_medications" json:"current_medications,omitempty"`
	PreferredDate        *time.Time `db:"preferred_referral_date" json:"preferred_referral_date,omitempty"`
	ConsentMedicalInfo   bool       `db:"consent_medical_info" json:"consent_medical_info"`
	ConsentWhatsApp      bool       `db:"consent_whatsapp" json:"consent_whatsapp"`
	AdditionalNotes      *string    `db:"additional_notes" json:"additional_notes,omitempty"`
	DocumentURLs         []string   `db:"document_urls" json:"document_urls,omitempty"`
	AISummary            *string    `db:"ai_summary" json:"ai_summary,omitempty"`
	CreatedAt            time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt            time.Time  `db:"updated_at" json:"updated_at"`
	RespondedAt          *time.Time `db:"responded_at" json:"responded_at,omitempty"`
	ClosedAt             *time.Time `db:"closed_at" json:"closed_at,omitempty"`
	PatientConfirmedAt   *time.Time `db:"patient_confirmed_at" json:"patient_confirmed_at,omitempty"`
}

// Draft is a saved-but-unsubmitted referral form, one per user. The payload
// is the frontend's form state, stored opaquely.
type Draft struct {
	ID              uuid.UUID `db:"id" json:"id"`
	CreatedByUserID string    `db:"created_by_user_id" json:"created_by_user_id"`
	Payload         []byte    `db:"payload" json:"payload"`
	CreatedAt       time.Time `db:"created_at" json:"created_at"`
	UpdatedAt       time.Time `db:"updated_at" json:"updated_at"`
}
