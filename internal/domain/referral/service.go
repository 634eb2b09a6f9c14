package referral

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/refermed/refermed/internal/domain/hospital"
	"github.com/refermed/refermed/internal/domain/matching"
	"github.com/refermed/refermed/internal/platform/notification"
	"github.com/refermed/refermed/internal/platform/summary"
	"github.com/refermed/refermed/pkg/pagination"
)

// Matcher routes general referrals and validates specific ones.
type Matcher interface {
	FindOptimalHospital(ctx context.Context, requesterUserID, department string) (*matching.Match, error)
	ValidateSelection(ctx context.Context, hospitalID uuid.UUID, department string) (matching.Validation, error)
}

// HomeResolver resolves the referring user's hospital.
type HomeResolver interface {
	ResolveHomeHospital(ctx context.Context, externalID string) (uuid.UUID, error)
}

// HospitalDirectory provides hospital lookups and capacity slot bookkeeping.
type HospitalDirectory interface {
	GetHospital(ctx context.Context, id uuid.UUID) (*hospital.Hospital, error)
	ReserveSlot(ctx context.Context, hospitalID uuid.UUID, department string) error
	ReleaseSlot(ctx context.Context, hospitalID uuid.UUID, department string) error
}

// Notifier sends templated WhatsApp messages to patients.
type Notifier interface {
	SendFromTemplate(ctx context.Context, templateID string, data map[string]string, recipient, referralID string) (*notification.Message, error)
}

type Service struct {
	repo       Repository
	matcher    Matcher
	homes      HomeResolver
	hospitals  HospitalDirectory
	notifier   Notifier
	summarizer summary.Generator
	logger     zerolog.Logger
}

func NewService(repo Repository, matcher Matcher, homes HomeResolver, hospitals HospitalDirectory,
	notifier Notifier, summarizer summary.Generator, logger zerolog.Logger) *Service {
	return &Service{
		repo:       repo,
		matcher:    matcher,
		homes:      homes,
		hospitals:  hospitals,
		notifier:   notifier,
		summarizer: summarizer,
		logger:     logger,
	}
}

// CreateInput carries the referral form.
type CreateInput struct {
	ReferralType         string     `json:"referral_type"`
	ToHospitalID         *uuid.UUID `json:"to_hospital_id,omitempty"`
	PatientName          string     `json:"patient_name"`
	PatientAge           *int       `json:"patient_age,omitempty"`
	PatientGender        *string    `json:"patient_gender,omitempty"`
	PatientWhatsApp      *string    `json:"patient_whatsapp,omitempty"`
	Department           string     `json:"department"`
	Urgency              string     `json:"urgency"`
	ConditionDescription *string    `json:"condition_description,omitempty"`
	KnownAllergies       *string    `json:"known_allergies,omitempty"`
	CurrentMedications   *string    `json:"current_medications,omitempty"`
	PreferredDate        *time.Time `json:"preferred_referral_date,omitempty"`
	ConsentMedicalInfo   bool       `json:"consent_medical_info"`
	ConsentWhatsApp      bool       `json:"consent_whatsapp"`
	AdditionalNotes      *string    `json:"additional_notes,omitempty"`
	DocumentURLs         []string   `json:"document_urls,omitempty"`
}

// CreateReferral validates the form, routes it to a destination hospital
// (automatically for general referrals, by validation for specific ones),
// persists it as pending, notifies the patient and kicks off summary
// generation in the background.
func (s *Service) CreateReferral(ctx context.Context, creatorUserID string, in CreateInput) (*Referral, error) {
	if in.PatientName == "" {
		return nil, fmt.Errorf("patient_name is required")
	}
	if !hospital.ValidDepartment(in.Department) {
		return nil, fmt.Errorf("unknown department: %s", in.Department)
	}
	if in.Urgency == "" {
		in.Urgency = UrgencyMedium
	}
	if !validUrgencies[in.Urgency] {
		return nil, fmt.Errorf("invalid urgency: %s", in.Urgency)
	}
	if !in.ConsentMedicalInfo {
		return nil, fmt.Errorf("consent to share medical information is required")
	}

	fromID, err := s.homes.ResolveHomeHospital(ctx, creatorUserID)
	if err != nil {
		return nil, fmt.Errorf("resolving home hospital: %w", err)
	}

	var toID uuid.UUID
	switch in.ReferralType {
	case TypeGeneral:
		match, err := s.matcher.FindOptimalHospital(ctx, creatorUserID, in.Department)
		if err != nil {
			return nil, err
		}
		toID = match.Hospital.ID
	case TypeSpecific:
		if in.ToHospitalID == nil || *in.ToHospitalID == uuid.Nil {
			return nil, fmt.Errorf("to_hospital_id is required for a specific referral")
		}
		if *in.ToHospitalID == fromID {
			return nil, fmt.Errorf("cannot refer a patient to their current hospital")
		}
		v, err := s.matcher.ValidateSelection(ctx, *in.ToHospitalID, in.Department)
		if err != nil {
			return nil, err
		}
		if !v.HasDepartment {
			return nil, fmt.Errorf("selected hospital does not offer %s", in.Department)
		}
		if !v.HasCapacity {
			return nil, fmt.Errorf("selected hospital has no available capacity in %s", in.Department)
		}
		toID = *in.ToHospitalID
	default:
		return nil, fmt.Errorf("invalid referral_type: %s", in.ReferralType)
	}

	ref := &Referral{
		ReferralType:         in.ReferralType,
		Status:               StatusPending,
		FromHospitalID:       fromID,
		ToHospitalID:         &toID,
		CreatedByUserID:      creatorUserID,
		PatientName:          in.PatientName,
		PatientAge:           in.PatientAge,
		PatientGender:        in.PatientGender,
		PatientWhatsApp:      in.PatientWhatsApp,
		Department:           in.Department,
		Urgency:              in.Urgency,
		ConditionDescription: in.ConditionDescription,
		KnownAllergies:       in.KnownAllergies,
		CurrentMedications:   in.CurrentMedications,
		PreferredDate:        in.PreferredDate,
		ConsentMedicalInfo:   in.ConsentMedicalInfo,
		ConsentWhatsApp:      in.ConsentWhatsApp,
		AdditionalNotes:      in.AdditionalNotes,
		DocumentURLs:         in.DocumentURLs,
	}
	if err := s.repo.Create(ctx, ref); err != nil {
		return nil, fmt.Errorf("creating referral: %w", err)
	}

	// A submitted referral supersedes any saved draft.
	if err := s.repo.DeleteDraft(ctx, creatorUserID); err != nil {
		s.logger.Warn().Err(err).Str("user_id", creatorUserID).Msg("deleting draft after submission")
	}

	s.notifyPatient(ctx, ref, notification.TemplateReferralInitial)

	if s.summarizer != nil {
		go func(id uuid.UUID) {
			ctx, cancel := context.WithTimeout(context.Background(), 90*time.Second)
			defer cancel()
			if _, err := s.Summarize(ctx, id); err != nil {
				s.logger.Error().Err(err).Str("referral_id", id.String()).Msg("background summary failed")
			}
		}(ref.ID)
	}

	return ref, nil
}

// Approve moves a pending referral to approved, reserves a capacity slot at
// the receiving hospital and notifies the patient.
func (s *Service) Approve(ctx context.Context, id uuid.UUID, approverUserID string) (*Referral, error) {
	ref, err := s.repo.Approve(ctx, id, approverUserID)
	if err != nil {
		return nil, err
	}

	if ref.ToHospitalID != nil {
		if err := s.hospitals.ReserveSlot(ctx, *ref.ToHospitalID, ref.Department); err != nil {
			s.logger.Error().Err(err).Str("referral_id", id.String()).Msg("reserving capacity slot")
		}
	}

	s.notifyPatient(ctx, ref, notification.TemplateReferralConfirmed)
	return ref, nil
}

func (s *Service) Reject(ctx context.Context, id uuid.UUID) (*Referral, error) {
	return s.repo.Reject(ctx, id)
}

// Complete closes an approved referral. Only the assignee may complete it;
// the capacity slot is returned and the patient notified.
func (s *Service) Complete(ctx context.Context, id uuid.UUID, assigneeUserID string) (*Referral, error) {
	ref, err := s.repo.Complete(ctx, id, assigneeUserID)
	if err != nil {
		return nil, err
	}

	if ref.ToHospitalID != nil {
		if err := s.hospitals.ReleaseSlot(ctx, *ref.ToHospitalID, ref.Department); err != nil {
			s.logger.Error().Err(err).Str("referral_id", id.String()).Msg("releasing capacity slot")
		}
	}

	s.notifyPatient(ctx, ref, notification.TemplateReferralCompleted)
	return ref, nil
}

func (s *Service) Cancel(ctx context.Context, id uuid.UUID, creatorUserID string) (*Referral, error) {
	return s.repo.Cancel(ctx, id, creatorUserID)
}

func (s *Service) GetReferral(ctx context.Context, id uuid.UUID) (*Referral, error) {
	return s.repo.GetByID(ctx, id)
}

// IncomingReferrals lists pending referrals addressed to the user's hospital.
// When no type filter is given, the general and specific lists are fetched
// concurrently and merged, deduplicating by id.
func (s *Service) IncomingReferrals(ctx context.Context, userExternalID string, f ListFilter) ([]*Referral, int, error) {
	hospitalID, err := s.homes.ResolveHomeHospital(ctx, userExternalID)
	if err != nil {
		return nil, 0, fmt.Errorf("resolving home hospital: %w", err)
	}
	if f.Status == "" {
		f.Status = StatusPending
	}
	if f.Limit <= 0 {
		f.Limit = pagination.DefaultLimit
	}

	if f.ReferralType != "" {
		return s.repo.ListIncoming(ctx, hospitalID, f)
	}

	type result struct {
		refs  []*Referral
		total int
		err   error
	}
	var wg sync.WaitGroup
	results := make([]result, 2)
	for i, typ := range []string{TypeGeneral, TypeSpecific} {
		wg.Add(1)
		go func(i int, typ string) {
			defer wg.Done()
			sub := f
			sub.ReferralType = typ
			// Each per-type query must cover the whole requested window;
			// the page is cut after the merge.
			sub.Limit = f.Limit + f.Offset
			sub.Offset = 0
			refs, total, err := s.repo.ListIncoming(ctx, hospitalID, sub)
			results[i] = result{refs: refs, total: total, err: err}
		}(i, typ)
	}
	wg.Wait()

	seen := make(map[uuid.UUID]bool)
	var merged []*Referral
	total := 0
	for _, res := range results {
		if res.err != nil {
			return nil, 0, res.err
		}
		total += res.total
		for _, ref := range res.refs {
			if seen[ref.ID] {
				continue
			}
			seen[ref.ID] = true
			merged = append(merged, ref)
		}
	}
	sortByCreatedDesc(merged)

	if f.Offset >= len(merged) {
		return []*Referral{}, total, nil
	}
	merged = merged[f.Offset:]
	if f.Limit > 0 && len(merged) > f.Limit {
		merged = merged[:f.Limit]
	}
	return merged, total, nil
}

func (s *Service) OutgoingReferrals(ctx context.Context, userExternalID string, f ListFilter) ([]*Referral, int, error) {
	hospitalID, err := s.homes.ResolveHomeHospital(ctx, userExternalID)
	if err != nil {
		return nil, 0, fmt.Errorf("resolving home hospital: %w", err)
	}
	return s.repo.ListOutgoing(ctx, hospitalID, f)
}

// Summarize generates the clinical handover paragraph for a referral and
// stores it on the row.
func (s *Service) Summarize(ctx context.Context, id uuid.UUID) (string, error) {
	if s.summarizer == nil {
		return "", fmt.Errorf("summary generation is not configured")
	}

	ref, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return "", err
	}

	in := summary.Input{
		Department:         ref.Department,
		Urgency:            ref.Urgency,
		Condition:          strVal(ref.ConditionDescription),
		CurrentMedications: strVal(ref.CurrentMedications),
		KnownAllergies:     strVal(ref.KnownAllergies),
		ReasonForReferral:  strVal(ref.AdditionalNotes),
	}
	if ref.PreferredDate != nil {
		in.PreferredDate = ref.PreferredDate.Format("2006-01-02")
	}

	text, err := s.summarizer.Summarize(ctx, in)
	if err != nil {
		return "", fmt.Errorf("generating summary: %w", err)
	}
	if err := s.repo.SetAISummary(ctx, id, text); err != nil {
		return "", fmt.Errorf("storing summary: %w", err)
	}
	return text, nil
}

// ConfirmByPhone records a patient's WhatsApp confirmation against their most
// recent open referral. Implements notification.InboundConfirmer.
func (s *Service) ConfirmByPhone(ctx context.Context, phone string) error {
	return s.repo.ConfirmLatestByPhone(ctx, phone)
}

// SaveDraft stores the user's in-progress referral form, replacing any
// previous draft.
func (s *Service) SaveDraft(ctx context.Context, userExternalID string, payload json.RawMessage) (*Draft, error) {
	if len(payload) == 0 {
		return nil, fmt.Errorf("draft payload is required")
	}
	d := &Draft{CreatedByUserID: userExternalID, Payload: payload}
	if err := s.repo.SaveDraft(ctx, d); err != nil {
		return nil, err
	}
	return d, nil
}

func (s *Service) GetDraft(ctx context.Context, userExternalID string) (*Draft, error) {
	return s.repo.GetDraft(ctx, userExternalID)
}

func (s *Service) DeleteDraft(ctx context.Context, userExternalID string) error {
	return s.repo.DeleteDraft(ctx, userExternalID)
}

// notifyPatient sends a templated message when the patient consented to
// WhatsApp contact. Delivery failures are logged, never surfaced.
func (s *Service) notifyPatient(ctx context.Context, ref *Referral, templateID string) {
	if s.notifier == nil || !ref.ConsentWhatsApp || ref.PatientWhatsApp == nil || *ref.PatientWhatsApp == "" {
		return
	}

	data := map[string]string{
		"patient_name": ref.PatientName,
		"date":         "to be confirmed",
	}
	if ref.PreferredDate != nil {
		data["date"] = ref.PreferredDate.Format("2006-01-02")
	}

	if templateID == notification.TemplateReferralConfirmed && ref.ToHospitalID != nil {
		if h, err := s.hospitals.GetHospital(ctx, *ref.ToHospitalID); err == nil {
			data["hospital_name"] = h.Name
			data["hospital_address"] = strVal(h.AddressLine1)
			data["hospital_city"] = strVal(h.City)
		}
	}

	if _, err := s.notifier.SendFromTemplate(ctx, templateID, data, *ref.PatientWhatsApp, ref.ID.String()); err != nil {
		s.logger.Error().Err(err).
			Str("referral_id", ref.ID.String()).
			Str("template", templateID).
			Msg("patient notification failed")
	}
}

func sortByCreatedDesc(refs []*Referral) {
	sort.Slice(refs, func(i, j int) bool {
		return refs[i].CreatedAt.After(refs[j].CreatedAt)
	})
}

func strVal(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
