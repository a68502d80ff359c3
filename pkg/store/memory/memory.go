package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/jordanlanch/salespilot/pkg/domain"
)

// Store is an in-memory implementation of every repository contract. It
// backs the test suite and the development mode of the API binary. All
// methods are safe for concurrent use.
type Store struct {
	mu sync.Mutex

	contacts    map[int]*domain.Contact
	reps        map[int]*domain.SalesRep
	templates   map[int]*domain.NurtureTemplate
	enrollments map[int]*domain.NurtureEnrollment
	steps       map[int]*domain.ScheduledStep

	interactions map[int]int  // contactID -> count
	openDeals    map[int]bool // contactID -> has open deal

	nextID int
}

// New creates an empty in-memory store.
func New() *Store {
	return &Store{
		contacts:     make(map[int]*domain.Contact),
		reps:         make(map[int]*domain.SalesRep),
		templates:    make(map[int]*domain.NurtureTemplate),
		enrollments:  make(map[int]*domain.NurtureEnrollment),
		steps:        make(map[int]*domain.ScheduledStep),
		interactions: make(map[int]int),
		openDeals:    make(map[int]bool),
		nextID:       1,
	}
}

func (s *Store) nextSeq() int {
	id := s.nextID
	s.nextID++
	return id
}

// Seeding helpers, used by tests and the development seed path.

// PutContact stores a contact, assigning an ID when missing.
func (s *Store) PutContact(c *domain.Contact) *domain.Contact {
	s.mu.Lock()
	defer s.mu.Unlock()
	if c.ID == 0 {
		c.ID = s.nextSeq()
	}
	cp := cloneContact(c)
	s.contacts[c.ID] = cp
	return cloneContact(cp)
}

// PutRep stores a sales rep, assigning an ID when missing.
func (s *Store) PutRep(r *domain.SalesRep) *domain.SalesRep {
	s.mu.Lock()
	defer s.mu.Unlock()
	if r.ID == 0 {
		r.ID = s.nextSeq()
	}
	cp := *r
	s.reps[r.ID] = &cp
	out := cp
	return &out
}

// PutTemplate stores a template, assigning IDs to it and its steps when
// missing. Steps are kept sorted by order.
func (s *Store) PutTemplate(t *domain.NurtureTemplate) *domain.NurtureTemplate {
	s.mu.Lock()
	defer s.mu.Unlock()
	if t.ID == 0 {
		t.ID = s.nextSeq()
	}
	for i := range t.Steps {
		if t.Steps[i].ID == 0 {
			t.Steps[i].ID = s.nextSeq()
		}
		t.Steps[i].TemplateID = t.ID
	}
	sort.Slice(t.Steps, func(i, j int) bool { return t.Steps[i].Order < t.Steps[j].Order })
	cp := cloneTemplate(t)
	s.templates[t.ID] = cp
	return cloneTemplate(cp)
}

// SetInteractions records the interaction count signal for a contact.
func (s *Store) SetInteractions(contactID, count int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.interactions[contactID] = count
}

// SetOpenDeal records the open-deal signal for a contact.
func (s *Store) SetOpenDeal(contactID int, open bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.openDeals[contactID] = open
}

// ContactRepository

func (s *Store) GetContact(ctx context.Context, tenantID, contactID int) (*domain.Contact, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.contacts[contactID]
	if !ok || c.TenantID != tenantID {
		return nil, domain.NewNotFoundError("contact")
	}
	return cloneContact(c), nil
}

func (s *Store) ListLeads(ctx context.Context, tenantID int) ([]*domain.Contact, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*domain.Contact
	for _, c := range s.contacts {
		if c.TenantID == tenantID && c.Type == domain.ContactTypeLead {
			out = append(out, cloneContact(c))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *Store) UpdateScore(ctx context.Context, tenantID, contactID int, score int, components map[string]int, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.contacts[contactID]
	if !ok || c.TenantID != tenantID {
		return domain.NewNotFoundError("contact")
	}
	c.Score = &score
	c.ScoreComponents = cloneComponents(components)
	c.ScoreUpdatedAt = &at
	return nil
}

func (s *Store) UpdateAssignedRep(ctx context.Context, tenantID, contactID, repID int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.contacts[contactID]
	if !ok || c.TenantID != tenantID {
		return domain.NewNotFoundError("contact")
	}
	c.AssignedRepID = &repID
	return nil
}

func (s *Store) UpdateLastContacted(ctx context.Context, tenantID, contactID int, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.contacts[contactID]
	if !ok || c.TenantID != tenantID {
		return domain.NewNotFoundError("contact")
	}
	c.LastContactedAt = &at
	return nil
}

// SalesRepRepository

func (s *Store) GetRep(ctx context.Context, tenantID, repID int) (*domain.SalesRep, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.reps[repID]
	if !ok || r.TenantID != tenantID {
		return nil, domain.NewNotFoundError("sales rep")
	}
	cp := *r
	return &cp, nil
}

func (s *Store) ListReps(ctx context.Context, tenantID int) ([]*domain.SalesRep, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*domain.SalesRep
	for _, r := range s.reps {
		if r.TenantID == tenantID {
			cp := *r
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// TemplateRepository

func (s *Store) GetTemplate(ctx context.Context, tenantID, templateID int) (*domain.NurtureTemplate, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.templates[templateID]
	if !ok || t.TenantID != tenantID {
		return nil, domain.NewNotFoundError("nurture template")
	}
	return cloneTemplate(t), nil
}

// EnrollmentRepository

func (s *Store) GetEnrollment(ctx context.Context, tenantID, enrollmentID int) (*domain.NurtureEnrollment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.enrollments[enrollmentID]
	if !ok || e.TenantID != tenantID {
		return nil, domain.NewNotFoundError("enrollment")
	}
	cp := *e
	return &cp, nil
}

func (s *Store) FindOpenEnrollment(ctx context.Context, tenantID, contactID, templateID int) (*domain.NurtureEnrollment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, e := range s.enrollments {
		if e.TenantID == tenantID && e.ContactID == contactID && e.TemplateID == templateID &&
			(e.Status == domain.EnrollmentActive || e.Status == domain.EnrollmentPaused) {
			cp := *e
			return &cp, nil
		}
	}
	return nil, nil
}

func (s *Store) ListByContact(ctx context.Context, tenantID, contactID int) ([]*domain.NurtureEnrollment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*domain.NurtureEnrollment
	for _, e := range s.enrollments {
		if e.TenantID == tenantID && e.ContactID == contactID {
			cp := *e
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].EnrolledAt.After(out[j].EnrolledAt) })
	return out, nil
}

func (s *Store) CreateEnrollment(ctx context.Context, enrollment *domain.NurtureEnrollment, steps []*domain.ScheduledStep) (*domain.NurtureEnrollment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	// Re-check the single-open-enrollment invariant under the lock; the
	// service-level check can race a concurrent enroll.
	for _, e := range s.enrollments {
		if e.TenantID == enrollment.TenantID && e.ContactID == enrollment.ContactID &&
			e.TemplateID == enrollment.TemplateID &&
			(e.Status == domain.EnrollmentActive || e.Status == domain.EnrollmentPaused) {
			return nil, domain.NewConflictError("contact already has an open enrollment in this template")
		}
	}

	cp := *enrollment
	cp.ID = s.nextSeq()
	s.enrollments[cp.ID] = &cp

	for _, st := range steps {
		sc := *st
		sc.ID = s.nextSeq()
		sc.EnrollmentID = cp.ID
		s.steps[sc.ID] = &sc
	}

	out := cp
	return &out, nil
}

func (s *Store) UpdateStatus(ctx context.Context, tenantID, enrollmentID int, status domain.EnrollmentStatus, completedAt *time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.enrollments[enrollmentID]
	if !ok || e.TenantID != tenantID {
		return domain.NewNotFoundError("enrollment")
	}
	e.Status = status
	e.CompletedAt = completedAt
	return nil
}

func (s *Store) IncrementCompletedSteps(ctx context.Context, tenantID, enrollmentID int) (int, int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.enrollments[enrollmentID]
	if !ok || e.TenantID != tenantID {
		return 0, 0, domain.NewNotFoundError("enrollment")
	}
	e.CompletedSteps++
	return e.CompletedSteps, e.TotalSteps, nil
}

// ScheduledStepRepository

func (s *Store) GetStep(ctx context.Context, stepID int) (*domain.ScheduledStep, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.steps[stepID]
	if !ok {
		return nil, domain.NewNotFoundError("scheduled step")
	}
	cp := *st
	return &cp, nil
}

func (s *Store) ListByEnrollment(ctx context.Context, tenantID, enrollmentID int) ([]*domain.ScheduledStep, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*domain.ScheduledStep
	for _, st := range s.steps {
		if st.TenantID == tenantID && st.EnrollmentID == enrollmentID {
			cp := *st
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StepOrder < out[j].StepOrder })
	return out, nil
}

func (s *Store) ClaimDue(ctx context.Context, now time.Time, limit int) ([]*domain.ScheduledStep, error) {
	if limit <= 0 {
		limit = 1
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var due []*domain.ScheduledStep
	for _, st := range s.steps {
		if st.Status != domain.StepPending || st.ScheduledAt.After(now) {
			continue
		}
		e, ok := s.enrollments[st.EnrollmentID]
		if !ok || e.Status != domain.EnrollmentActive {
			continue
		}
		due = append(due, st)
	}
	sort.Slice(due, func(i, j int) bool {
		if due[i].ScheduledAt.Equal(due[j].ScheduledAt) {
			return due[i].ID < due[j].ID
		}
		return due[i].ScheduledAt.Before(due[j].ScheduledAt)
	})
	if len(due) > limit {
		due = due[:limit]
	}

	claimed := make([]*domain.ScheduledStep, 0, len(due))
	for _, st := range due {
		at := now
		st.Status = domain.StepProcessing
		st.ClaimedAt = &at
		cp := *st
		claimed = append(claimed, &cp)
	}
	return claimed, nil
}

func (s *Store) CancelOpen(ctx context.Context, tenantID, enrollmentID int) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cancelled := 0
	for _, st := range s.steps {
		if st.TenantID == tenantID && st.EnrollmentID == enrollmentID && !st.Status.Terminal() {
			st.Status = domain.StepCancelled
			cancelled++
		}
	}
	return cancelled, nil
}

func (s *Store) MarkSent(ctx context.Context, stepID int, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.steps[stepID]
	if !ok {
		return domain.NewNotFoundError("scheduled step")
	}
	st.Status = domain.StepSent
	st.SentAt = &at
	st.LastError = ""
	return nil
}

func (s *Store) MarkFailed(ctx context.Context, stepID int, at time.Time, reason string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.steps[stepID]
	if !ok {
		return domain.NewNotFoundError("scheduled step")
	}
	st.Status = domain.StepFailed
	st.LastError = reason
	return nil
}

func (s *Store) MarkCancelled(ctx context.Context, stepID int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.steps[stepID]
	if !ok {
		return domain.NewNotFoundError("scheduled step")
	}
	st.Status = domain.StepCancelled
	return nil
}

func (s *Store) Release(ctx context.Context, stepID int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.steps[stepID]
	if !ok {
		return domain.NewNotFoundError("scheduled step")
	}
	if st.Status == domain.StepProcessing {
		st.Status = domain.StepPending
		st.ClaimedAt = nil
	}
	return nil
}

func (s *Store) ReclaimStale(ctx context.Context, cutoff time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	reclaimed := 0
	for _, st := range s.steps {
		if st.Status == domain.StepProcessing && st.ClaimedAt != nil && st.ClaimedAt.Before(cutoff) {
			st.Status = domain.StepPending
			st.ClaimedAt = nil
			reclaimed++
		}
	}
	return reclaimed, nil
}

// SignalSource

func (s *Store) Signals(ctx context.Context, tenantID, contactID int) (*domain.Signals, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.contacts[contactID]
	if !ok || c.TenantID != tenantID {
		return nil, domain.NewNotFoundError("contact")
	}
	return &domain.Signals{
		LastEngagedAt:    c.LastContactedAt,
		InteractionCount: s.interactions[contactID],
		Source:           c.Source,
		IndustryFit:      c.IndustryFit,
		HasOpenDeal:      s.openDeals[contactID],
	}, nil
}

// TenantSource

func (s *Store) ListTenantIDs(ctx context.Context) ([]int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	seen := make(map[int]bool)
	var out []int
	for _, c := range s.contacts {
		if !seen[c.TenantID] {
			seen[c.TenantID] = true
			out = append(out, c.TenantID)
		}
	}
	sort.Ints(out)
	return out, nil
}

// clone helpers keep callers from mutating stored state through returned
// pointers.

func cloneContact(c *domain.Contact) *domain.Contact {
	cp := *c
	if c.Score != nil {
		v := *c.Score
		cp.Score = &v
	}
	if c.ScoreUpdatedAt != nil {
		v := *c.ScoreUpdatedAt
		cp.ScoreUpdatedAt = &v
	}
	if c.AssignedRepID != nil {
		v := *c.AssignedRepID
		cp.AssignedRepID = &v
	}
	if c.LastContactedAt != nil {
		v := *c.LastContactedAt
		cp.LastContactedAt = &v
	}
	cp.ScoreComponents = cloneComponents(c.ScoreComponents)
	return &cp
}

func cloneComponents(m map[string]int) map[string]int {
	if m == nil {
		return nil
	}
	out := make(map[string]int, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

func cloneTemplate(t *domain.NurtureTemplate) *domain.NurtureTemplate {
	cp := *t
	cp.Steps = append([]domain.NurtureStep(nil), t.Steps...)
	return &cp
}
