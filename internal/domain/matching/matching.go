// Package matching selects the best receiving hospital for a referral. Given
// the requester's home hospital and a department, it ranks every other
// hospital with open capacity by a composite of proximity, free slots, load
// and facility type.
package matching

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"

	"github.com/google/uuid"

	"github.com/refermed/refermed/internal/domain/hospital"
	"github.com/refermed/refermed/pkg/geo"
)

// Failure kinds callers branch on. These are expected outcomes of a routing
// attempt, not transport faults.
var (
	ErrHomeHospitalNotFound = errors.New("reference hospital not found")
	ErrNoAvailableHospitals = errors.New("no available hospitals")
	ErrCapacityQuery        = errors.New("capacity query failed")
)

// HomeResolver resolves a requesting user to their home hospital.
type HomeResolver interface {
	ResolveHomeHospital(ctx context.Context, externalID string) (uuid.UUID, error)
}

// HospitalSource provides the hospital reads the matcher needs.
type HospitalSource interface {
	GetHospital(ctx context.Context, id uuid.UUID) (*hospital.Hospital, error)
	ListCandidates(ctx context.Context, department string, exclude uuid.UUID) ([]*hospital.Candidate, error)
	GetCapacity(ctx context.Context, hospitalID uuid.UUID, department string) (*hospital.Capacity, error)
}

// Match is the outcome of a successful routing attempt.
type Match struct {
	Hospital   hospital.Hospital `json:"hospital"`
	Score      float64           `json:"score"`
	DistanceKm float64           `json:"distance_km"`
	Available  int               `json:"available"`
	Message    string            `json:"message"`
}

// Validation is the outcome of checking a caller-chosen hospital.
type Validation struct {
	HasDepartment bool `json:"has_department"`
	HasCapacity   bool `json:"has_capacity"`
	IsValid       bool `json:"is_valid"`
}

// Score computes the composite ranking score for one candidate. Nearer
// hospitals score higher, hospitals with more free slots score higher,
// heavily loaded hospitals are penalized, and specialist facilities get a
// fixed 20% boost. The free-slot term grows without bound for very large
// capacity counts; the constants are tunable.
func Score(distanceKm float64, available int, loadFactor float64, hospitalType string) float64 {
	typeBonus := 1.0
	if hospitalType == hospital.TypeSpecialist {
		typeBonus = 1.2
	}
	return math.Exp(-distanceKm/10) *
		math.Exp(float64(available)/10) *
		math.Exp(-loadFactor*5) *
		typeBonus
}

type Service struct {
	homes     HomeResolver
	hospitals HospitalSource
}

func NewService(homes HomeResolver, hospitals HospitalSource) *Service {
	return &Service{homes: homes, hospitals: hospitals}
}

// FindOptimalHospital resolves the requester's home hospital and returns the
// highest-scoring alternative with open capacity for the department. It is
// read-only: no capacity is reserved. Two concurrent callers can be routed to
// the same last slot; the approval step resolves that race.
func (s *Service) FindOptimalHospital(ctx context.Context, requesterUserID, department string) (*Match, error) {
	if !hospital.ValidDepartment(department) {
		return nil, fmt.Errorf("unknown department: %s", department)
	}

	homeID, err := s.homes.ResolveHomeHospital(ctx, requesterUserID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrHomeHospitalNotFound, err)
	}

	home, err := s.hospitals.GetHospital(ctx, homeID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrHomeHospitalNotFound, err)
	}

	candidates, err := s.hospitals.ListCandidates(ctx, department, homeID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCapacityQuery, err)
	}
	if len(candidates) == 0 {
		return nil, ErrNoAvailableHospitals
	}

	type scored struct {
		cand       *hospital.Candidate
		score      float64
		distanceKm float64
	}
	ranked := make([]scored, 0, len(candidates))
	for _, cand := range candidates {
		d := geo.HaversineKm(home.Lat, home.Lon, cand.Hospital.Lat, cand.Hospital.Lon)
		ranked = append(ranked, scored{
			cand:       cand,
			score:      Score(d, cand.Capacity.Available, cand.Capacity.LoadFactor(), cand.Hospital.Type),
			distanceKm: d,
		})
	}

	// Equal scores break deterministically by hospital id so repeated calls
	// with the same data pick the same winner.
	sort.Slice(ranked, func(i, j int) bool {
		if ranked[i].score != ranked[j].score {
			return ranked[i].score > ranked[j].score
		}
		return ranked[i].cand.Hospital.ID.String() < ranked[j].cand.Hospital.ID.String()
	})

	best := ranked[0]
	return &Match{
		Hospital:   best.cand.Hospital,
		Score:      best.score,
		DistanceKm: best.distanceKm,
		Available:  best.cand.Capacity.Available,
		Message:    fmt.Sprintf("matched %s for %s", best.cand.Hospital.Name, department),
	}, nil
}

// ValidateSelection checks a caller-chosen hospital directly: whether the
// department exists there and whether it has open capacity. A missing
// capacity row reads as the department not being offered.
func (s *Service) ValidateSelection(ctx context.Context, hospitalID uuid.UUID, department string) (Validation, error) {
	if !hospital.ValidDepartment(department) {
		return Validation{}, fmt.Errorf("unknown department: %s", department)
	}

	capacity, err := s.hospitals.GetCapacity(ctx, hospitalID, department)
	if err != nil {
		return Validation{}, nil
	}

	v := Validation{
		HasDepartment: true,
		HasCapacity:   capacity.Available > 0,
	}
	v.IsValid = v.HasDepartment && v.HasCapacity
	return v, nil
}
