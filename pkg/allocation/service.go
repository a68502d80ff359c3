package allocation

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/jordanlanch/salespilot/pkg/domain"
	"github.com/jordanlanch/salespilot/pkg/logger"
)

// Rep score weights. Specialization match dominates, conversion history
// second, current workload last.
const (
	WeightSpecialization = 0.40
	WeightConversion     = 0.35
	WeightWorkload       = 0.25
)

// Service handles sales rep allocation for leads.
type Service struct {
	contacts domain.ContactRepository
	reps     domain.SalesRepRepository
	notifier domain.AssignmentNotifier
	log      logger.Logger
}

// NewService creates a new allocation service.
func NewService(contacts domain.ContactRepository, reps domain.SalesRepRepository, notifier domain.AssignmentNotifier, log logger.Logger) *Service {
	return &Service{contacts: contacts, reps: reps, notifier: notifier, log: log}
}

// Suggest ranks eligible reps for a contact. Reps on leave are filtered
// out before scoring; an empty filtered roster fails with NO_ELIGIBLE_REP.
// The ordering is fully deterministic: score descending, ties broken by
// higher conversion rate, then lower workload, then rep ID.
func (s *Service) Suggest(ctx context.Context, tenantID, contactID int) ([]domain.AllocationSuggestion, error) {
	contact, err := s.contacts.GetContact(ctx, tenantID, contactID)
	if err != nil {
		return nil, err
	}

	roster, err := s.reps.ListReps(ctx, tenantID)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch rep roster: %w", err)
	}

	suggestions := make([]domain.AllocationSuggestion, 0, len(roster))
	for _, rep := range roster {
		if rep.IsOnLeave {
			continue
		}
		suggestions = append(suggestions, scoreRep(rep, contact))
	}

	if len(suggestions) == 0 {
		return nil, domain.NewNoEligibleRepError()
	}

	sort.Slice(suggestions, func(i, j int) bool {
		a, b := suggestions[i], suggestions[j]
		if a.Score != b.Score {
			return a.Score > b.Score
		}
		if a.Rep.ConversionRate != b.Rep.ConversionRate {
			return a.Rep.ConversionRate > b.Rep.ConversionRate
		}
		if a.Rep.AssignedLeadCount != b.Rep.AssignedLeadCount {
			return a.Rep.AssignedLeadCount < b.Rep.AssignedLeadCount
		}
		return a.Rep.ID < b.Rep.ID
	})

	return suggestions, nil
}

// AssignResult represents a completed assignment.
type AssignResult struct {
	ContactID int              `json:"contact_id"`
	Rep       *domain.SalesRep `json:"rep"`
	Changed   bool             `json:"changed"`
}

// Assign sets the contact's rep unconditionally; a manual override always
// wins over suggestions. Re-assigning the current rep is a no-op. The
// assignment notification is best effort and never rolls back the
// assignment.
func (s *Service) Assign(ctx context.Context, tenantID, contactID, repID int) (*AssignResult, error) {
	contact, err := s.contacts.GetContact(ctx, tenantID, contactID)
	if err != nil {
		return nil, err
	}

	rep, err := s.reps.GetRep(ctx, tenantID, repID)
	if err != nil {
		return nil, err
	}

	if contact.AssignedRepID != nil && *contact.AssignedRepID == repID {
		return &AssignResult{ContactID: contactID, Rep: rep, Changed: false}, nil
	}

	if err := s.contacts.UpdateAssignedRep(ctx, tenantID, contactID, repID); err != nil {
		return nil, fmt.Errorf("failed to assign rep: %w", err)
	}

	if s.notifier != nil {
		if err := s.notifier.NotifyAssignment(ctx, rep, contact); err != nil {
			s.log.Warn("assignment notification failed",
				"tenant_id", tenantID, "contact_id", contactID, "rep_id", repID, "error", err)
		}
	}

	return &AssignResult{ContactID: contactID, Rep: rep, Changed: true}, nil
}

// scoreRep computes the weighted rep score and the human-readable reasons
// behind it.
func scoreRep(rep *domain.SalesRep, contact *domain.Contact) domain.AllocationSuggestion {
	reasons := make([]string, 0, 3)

	specMatch := 0.0
	if matchesSpecialization(rep.Specialization, contact) {
		specMatch = 1.0
		reasons = append(reasons, fmt.Sprintf("specialization %q matches lead", rep.Specialization))
	}

	conversion := rep.ConversionRate / 100
	if conversion < 0 {
		conversion = 0
	}
	if conversion > 1 {
		conversion = 1
	}
	reasons = append(reasons, fmt.Sprintf("conversion rate %.0f%%", rep.ConversionRate))

	workload := 1.0 / float64(1+rep.AssignedLeadCount)
	reasons = append(reasons, fmt.Sprintf("current workload %d leads", rep.AssignedLeadCount))

	score := WeightSpecialization*specMatch + WeightConversion*conversion + WeightWorkload*workload

	return domain.AllocationSuggestion{Rep: rep, Score: score, Reasons: reasons}
}

// matchesSpecialization reports whether the rep's declared specialization
// overlaps the contact's industry or source signal, case-insensitively.
func matchesSpecialization(specialization string, contact *domain.Contact) bool {
	spec := strings.ToLower(strings.TrimSpace(specialization))
	if spec == "" {
		return false
	}
	for _, signal := range []string{contact.Industry, contact.Source} {
		sig := strings.ToLower(strings.TrimSpace(signal))
		if sig == "" {
			continue
		}
		if strings.Contains(sig, spec) || strings.Contains(spec, sig) {
			return true
		}
	}
	return false
}
