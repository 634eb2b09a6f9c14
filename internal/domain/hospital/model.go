package hospital

import (
	"time"

	"github.com/google/uuid"
)

// Hospital types recognised by the router. Specialist hospitals receive a
// scoring bonus during candidate ranking.
const (
	TypeClinic     = "clinic"
	TypeDistrict   = "district"
	TypeRegional   = "regional"
	TypeSpecialist = "specialist"
)

var validTypes = map[string]bool{
	TypeClinic:     true,
	TypeDistrict:   true,
	TypeRegional:   true,
	TypeSpecialist: true,
}

// Departments is the fixed set of referral departments.
var Departments = []string{
	"cardiology",
	"neurology",
	"oncology",
	"orthopedics",
	"pediatrics",
	"radiology",
	"general-surgery",
	"obstetrics",
	"psychiatry",
	"dermatology",
}

var validDepartments = func() map[string]bool {
	m := make(map[string]bool, len(Departments))
	for _, d := range Departments {
		m[d] = true
	}
	return m
}()

// ValidDepartment reports whether d is a known department.
func ValidDepartment(d string) bool { return validDepartments[d] }

// Hospital maps to the hospitals table.
type Hospital struct {
	ID             uuid.UUID `db:"id" json:"id"`
	Name           string    `db:"name" json:"name"`
	Type           string    `db:"type" json:"type"`
	WhatsAppNumber *string   `db:"whatsapp_number" json:"whatsapp_number,omitempty"`
	AddressLine1   *string   `db:"address_line1" json:"address_line1,omitempty"`
	City           *string   `db:"city" json:"city,omitempty"`
	Province       *string   `db:"province" json:"province,omitempty"`
	PostalCode     *string   `db:"postal_code" json:"postal_code,omitempty"`
	Country        string    `db:"country" json:"country"`
	Lat            float64   `db:"lat" json:"lat"`
	Lon            float64   `db:"lon" json:"lon"`
	CreatedAt      time.Time `db:"created_at" json:"created_at"`
	UpdatedAt      time.Time `db:"updated_at" json:"updated_at"`
}

// Capacity maps to the hospital_capacity table. One row per
// (hospital, department) pair.
type Capacity struct {
	ID          uuid.UUID `db:"id" json:"id"`
	HospitalID  uuid.UUID `db:"hospital_id" json:"hospital_id"`
	Department  string    `db:"department" json:"department"`
	Total       int       `db:"capacity_total" json:"capacity_total"`
	Available   int       `db:"capacity_available" json:"capacity_available"`
	HOD         *string   `db:"hod" json:"hod,omitempty"`
	Phone       *string   `db:"phone" json:"phone,omitempty"`
	Email       *string   `db:"email" json:"email,omitempty"`
	LastUpdated time.Time `db:"last_updated" json:"last_updated"`
}

// LoadFactor returns the fraction of capacity in use, in [0, 1]. A pair with
// unknown total reports 0.5 so it neither dominates nor vanishes in ranking.
func (c *Capacity) LoadFactor() float64 {
	if c.Total <= 0 {
		return 0.5
	}
	lf := 1 - float64(c.Available)/float64(c.Total)
	if lf < 0 {
		return 0
	}
	if lf > 1 {
		return 1
	}
	return lf
}

// Candidate is a hospital joined with its capacity row for one department,
// as consumed by the matching service.
type Candidate struct {
	Hospital Hospital `json:"hospital"`
	Capacity Capacity `json:"capacity"`
}
