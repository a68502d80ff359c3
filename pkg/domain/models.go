package domain

import "time"

// ContactType classifies a contact record. The set is closed; operations
// that branch on it must handle every value.
type ContactType string

const (
	ContactTypeLead     ContactType = "lead"
	ContactTypeCustomer ContactType = "customer"
	ContactTypeVendor   ContactType = "vendor"
	ContactTypeEmployee ContactType = "employee"
)

// Valid reports whether t is one of the known contact types.
func (t ContactType) Valid() bool {
	switch t {
	case ContactTypeLead, ContactTypeCustomer, ContactTypeVendor, ContactTypeEmployee:
		return true
	}
	return false
}

// Nurturable reports whether contacts of this type may be enrolled in a
// nurture template. Vendors and employees are never nurtured.
func (t ContactType) Nurturable() bool {
	return t == ContactTypeLead || t == ContactTypeCustomer
}

// Contact is a person or organization record owned by a tenant.
type Contact struct {
	ID              int            `json:"id"`
	TenantID        int            `json:"tenant_id"`
	Name            string         `json:"name"`
	Email           string         `json:"email"`
	Company         string         `json:"company,omitempty"`
	Type            ContactType    `json:"type"`
	Source          string         `json:"source,omitempty"`
	Industry        string         `json:"industry,omitempty"`
	IndustryFit     float64        `json:"industry_fit"`
	Score           *int           `json:"score,omitempty"`
	ScoreComponents map[string]int `json:"score_components,omitempty"`
	ScoreUpdatedAt  *time.Time     `json:"score_updated_at,omitempty"`
	AssignedRepID   *int           `json:"assigned_rep_id,omitempty"`
	LastContactedAt *time.Time     `json:"last_contacted_at,omitempty"`
	CreatedAt       time.Time      `json:"created_at"`
}

// Signals are the observable inputs to lead scoring, gathered per contact.
type Signals struct {
	LastEngagedAt    *time.Time
	InteractionCount int
	Source           string
	IndustryFit      float64
	HasOpenDeal      bool
}

// SalesRep wraps a user as an allocation candidate.
type SalesRep struct {
	ID                int        `json:"id"`
	TenantID          int        `json:"tenant_id"`
	Name              string     `json:"name"`
	Email             string     `json:"email"`
	Specialization    string     `json:"specialization,omitempty"`
	ConversionRate    float64    `json:"conversion_rate"`
	IsOnLeave         bool       `json:"is_on_leave"`
	LeaveEndDate      *time.Time `json:"leave_end_date,omitempty"`
	AssignedLeadCount int        `json:"assigned_lead_count"`
}

// AllocationSuggestion is one ranked candidate for a lead. Suggestions are
// ephemeral and never persisted.
type AllocationSuggestion struct {
	Rep     *SalesRep `json:"rep"`
	Score   float64   `json:"score"`
	Reasons []string  `json:"reasons"`
}

// NurtureStep is one message in a template, sent DayOffset days after
// enrollment.
type NurtureStep struct {
	ID         int    `json:"id"`
	TemplateID int    `json:"template_id"`
	Order      int    `json:"order"`
	DayOffset  int    `json:"day_offset"`
	Subject    string `json:"subject"`
	Body       string `json:"body"`
}

// NurtureTemplate is a named, ordered set of steps. The core only reads
// templates; steps are expected sorted by Order, strictly increasing.
type NurtureTemplate struct {
	ID       int           `json:"id"`
	TenantID int           `json:"tenant_id"`
	Name     string        `json:"name"`
	Steps    []NurtureStep `json:"steps"`
}

// EnrollmentStatus is the state of a nurture enrollment.
type EnrollmentStatus string

const (
	EnrollmentActive    EnrollmentStatus = "active"
	EnrollmentPaused    EnrollmentStatus = "paused"
	EnrollmentCompleted EnrollmentStatus = "completed"
	EnrollmentCancelled EnrollmentStatus = "cancelled"
)

// Terminal reports whether no further transitions are allowed.
func (s EnrollmentStatus) Terminal() bool {
	return s == EnrollmentCompleted || s == EnrollmentCancelled
}

// NurtureEnrollment is the live instance of a contact going through a
// template. At most one active or paused enrollment may exist per
// (contact, template) pair.
type NurtureEnrollment struct {
	ID               int              `json:"id"`
	TenantID         int              `json:"tenant_id"`
	ContactID        int              `json:"contact_id"`
	TemplateID       int              `json:"template_id"`
	EnrolledByUserID int              `json:"enrolled_by"`
	Status           EnrollmentStatus `json:"status"`
	EnrolledAt       time.Time        `json:"enrolled_at"`
	TotalSteps       int              `json:"total_steps"`
	CompletedSteps   int              `json:"completed_steps"`
	CompletedAt      *time.Time       `json:"completed_at,omitempty"`
}

// StepStatus is the delivery state of one scheduled step.
type StepStatus string

const (
	StepPending    StepStatus = "pending"
	StepProcessing StepStatus = "processing"
	StepSent       StepStatus = "sent"
	StepFailed     StepStatus = "failed"
	StepCancelled  StepStatus = "cancelled"
)

// Terminal reports whether the step will never be dispatched again.
func (s StepStatus) Terminal() bool {
	return s == StepSent || s == StepFailed || s == StepCancelled
}

// ScheduledStep is one due-date instance of a template step, owned by one
// enrollment. Subject and body are snapshotted at enrollment time so an
// in-flight schedule is unaffected by later template edits.
type ScheduledStep struct {
	ID           int        `json:"id"`
	TenantID     int        `json:"tenant_id"`
	EnrollmentID int        `json:"enrollment_id"`
	StepOrder    int        `json:"step_order"`
	Subject      string     `json:"subject"`
	Body         string     `json:"body"`
	ScheduledAt  time.Time  `json:"scheduled_at"`
	Status       StepStatus `json:"status"`
	ClaimedAt    *time.Time `json:"claimed_at,omitempty"`
	SentAt       *time.Time `json:"sent_at,omitempty"`
	LastError    string     `json:"last_error,omitempty"`
}
