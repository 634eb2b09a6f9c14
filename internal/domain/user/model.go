package user

import (
	"time"

	"github.com/google/uuid"
)

// Roles assignable to users.
const (
	RoleDoctor = "doctor"
	RoleStaff  = "staff"
	RoleAdmin  = "admin"
)

var validRoles = map[string]bool{
	RoleDoctor: true,
	RoleStaff:  true,
	RoleAdmin:  true,
}

// User maps to the users table. ExternalID is the identity provider's subject
// and is the primary key; users exist before onboarding assigns them a
// hospital.
type User struct {
	ExternalID         string     `db:"external_id" json:"external_id"`
	Email              *string    `db:"email" json:"email,omitempty"`
	FullName           *string    `db:"full_name" json:"full_name,omitempty"`
	HospitalID         *uuid.UUID `db:"hospital_id" json:"hospital_id,omitempty"`
	Role               string     `db:"role" json:"role"`
	OnboardingComplete bool       `db:"onboarding_complete" json:"onboarding_complete"`
	CreatedAt          time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt          time.Time  `db:"updated_at" json:"updated_at"`
}
