package domain

import (
	"context"
	"time"
)

// Clock is an injectable time source so the scheduler can be tested
// deterministically.
type Clock interface {
	Now() time.Time
}

// SystemClock is the wall-clock implementation of Clock.
type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now().UTC() }

// ContactRepository defines data access operations for contacts. All
// lookups are tenant-scoped; a contact belonging to another tenant behaves
// as missing.
type ContactRepository interface {
	GetContact(ctx context.Context, tenantID, contactID int) (*Contact, error)
	ListLeads(ctx context.Context, tenantID int) ([]*Contact, error)
	UpdateScore(ctx context.Context, tenantID, contactID int, score int, components map[string]int, at time.Time) error
	UpdateAssignedRep(ctx context.Context, tenantID, contactID, repID int) error
	UpdateLastContacted(ctx context.Context, tenantID, contactID int, at time.Time) error
}

// SalesRepRepository defines data access operations for sales reps.
type SalesRepRepository interface {
	GetRep(ctx context.Context, tenantID, repID int) (*SalesRep, error)
	ListReps(ctx context.Context, tenantID int) ([]*SalesRep, error)
}

// TemplateRepository defines read access to nurture templates. The core
// never mutates templates.
type TemplateRepository interface {
	GetTemplate(ctx context.Context, tenantID, templateID int) (*NurtureTemplate, error)
}

// EnrollmentRepository defines data access operations for nurture
// enrollments.
type EnrollmentRepository interface {
	GetEnrollment(ctx context.Context, tenantID, enrollmentID int) (*NurtureEnrollment, error)
	// FindOpenEnrollment returns the active or paused enrollment for the
	// (contact, template) pair, or nil when none exists.
	FindOpenEnrollment(ctx context.Context, tenantID, contactID, templateID int) (*NurtureEnrollment, error)
	ListByContact(ctx context.Context, tenantID, contactID int) ([]*NurtureEnrollment, error)
	// CreateEnrollment persists the enrollment together with its full step
	// schedule in a single atomic operation.
	CreateEnrollment(ctx context.Context, enrollment *NurtureEnrollment, steps []*ScheduledStep) (*NurtureEnrollment, error)
	UpdateStatus(ctx context.Context, tenantID, enrollmentID int, status EnrollmentStatus, completedAt *time.Time) error
	// IncrementCompletedSteps atomically bumps the counter and returns the
	// new completed/total pair.
	IncrementCompletedSteps(ctx context.Context, tenantID, enrollmentID int) (completed, total int, err error)
}

// ScheduledStepRepository defines data access operations for the step
// queue, including the atomic claim protocol used by scheduler workers.
type ScheduledStepRepository interface {
	GetStep(ctx context.Context, stepID int) (*ScheduledStep, error)
	ListByEnrollment(ctx context.Context, tenantID, enrollmentID int) ([]*ScheduledStep, error)
	// ClaimDue transitions up to limit due PENDING steps of active
	// enrollments to PROCESSING and returns them. The transition is a
	// per-row compare-and-set: a step is returned to exactly one caller.
	ClaimDue(ctx context.Context, now time.Time, limit int) ([]*ScheduledStep, error)
	// CancelOpen transitions every non-terminal step of the enrollment to
	// CANCELLED and reports how many were touched.
	CancelOpen(ctx context.Context, tenantID, enrollmentID int) (int, error)
	MarkSent(ctx context.Context, stepID int, at time.Time) error
	MarkFailed(ctx context.Context, stepID int, at time.Time, reason string) error
	MarkCancelled(ctx context.Context, stepID int) error
	// Release returns a claimed step to PENDING without consuming it, used
	// when a claim races an enrollment pause.
	Release(ctx context.Context, stepID int) error
	// ReclaimStale returns steps stuck in PROCESSING since before the
	// cutoff back to PENDING and reports how many were reclaimed.
	ReclaimStale(ctx context.Context, cutoff time.Time) (int, error)
}

// SignalSource gathers the scoring signals for a contact.
type SignalSource interface {
	Signals(ctx context.Context, tenantID, contactID int) (*Signals, error)
}

// TenantSource enumerates tenants for cross-tenant maintenance jobs.
type TenantSource interface {
	ListTenantIDs(ctx context.Context) ([]int, error)
}

// MessageTransport sends an outbound message and reports success or
// failure. Delivery itself is an external concern.
type MessageTransport interface {
	Send(ctx context.Context, recipient, subject, body string) error
}

// AssignmentNotifier notifies a rep of a new assignment. Failures must not
// roll back the assignment.
type AssignmentNotifier interface {
	NotifyAssignment(ctx context.Context, rep *SalesRep, contact *Contact) error
}
