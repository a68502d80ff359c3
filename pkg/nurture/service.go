package nurture

import (
	"context"
	"fmt"
	"time"

	"github.com/jordanlanch/salespilot/pkg/domain"
	"github.com/jordanlanch/salespilot/pkg/logger"
)

// Service orchestrates nurture enrollments: the enrollment state machine,
// the scheduled-step queue, and step dispatch.
type Service struct {
	contacts    domain.ContactRepository
	templates   domain.TemplateRepository
	enrollments domain.EnrollmentRepository
	steps       domain.ScheduledStepRepository
	transport   domain.MessageTransport
	clock       domain.Clock
	log         logger.Logger
}

// NewService creates a new nurture service.
func NewService(
	contacts domain.ContactRepository,
	templates domain.TemplateRepository,
	enrollments domain.EnrollmentRepository,
	steps domain.ScheduledStepRepository,
	transport domain.MessageTransport,
	clock domain.Clock,
	log logger.Logger,
) *Service {
	return &Service{
		contacts:    contacts,
		templates:   templates,
		enrollments: enrollments,
		steps:       steps,
		transport:   transport,
		clock:       clock,
		log:         log,
	}
}

// EnrollmentDetail combines an enrollment with its step schedule.
type EnrollmentDetail struct {
	Enrollment *domain.NurtureEnrollment `json:"enrollment"`
	Steps      []*domain.ScheduledStep   `json:"steps"`
}

// Enroll activates a template for a contact. The full step schedule is
// created up front, one PENDING ScheduledStep per template step at
// enrolledAt + dayOffset, so the future schedule is visible immediately.
// A second open enrollment for the same (contact, template) pair fails
// with CONFLICT.
func (s *Service) Enroll(ctx context.Context, tenantID, userID, contactID, templateID int) (*domain.NurtureEnrollment, error) {
	contact, err := s.contacts.GetContact(ctx, tenantID, contactID)
	if err != nil {
		return nil, err
	}
	if !contact.Type.Nurturable() {
		return nil, domain.NewValidationError(fmt.Sprintf("contact type %q does not support nurturing", contact.Type))
	}

	template, err := s.templates.GetTemplate(ctx, tenantID, templateID)
	if err != nil {
		return nil, err
	}
	if len(template.Steps) == 0 {
		return nil, domain.NewValidationError("template has no steps")
	}

	existing, err := s.enrollments.FindOpenEnrollment(ctx, tenantID, contactID, templateID)
	if err != nil {
		return nil, fmt.Errorf("failed to check existing enrollments: %w", err)
	}
	if existing != nil {
		return nil, domain.NewConflictError("contact already has an open enrollment in this template")
	}

	enrolledAt := s.clock.Now()
	enrollment := &domain.NurtureEnrollment{
		TenantID:         tenantID,
		ContactID:        contactID,
		TemplateID:       templateID,
		EnrolledByUserID: userID,
		Status:           domain.EnrollmentActive,
		EnrolledAt:       enrolledAt,
		TotalSteps:       len(template.Steps),
		CompletedSteps:   0,
	}

	steps := make([]*domain.ScheduledStep, len(template.Steps))
	for i, step := range template.Steps {
		steps[i] = &domain.ScheduledStep{
			TenantID:    tenantID,
			StepOrder:   step.Order,
			Subject:     step.Subject,
			Body:        step.Body,
			ScheduledAt: enrolledAt.Add(time.Duration(step.DayOffset) * 24 * time.Hour),
			Status:      domain.StepPending,
		}
	}

	created, err := s.enrollments.CreateEnrollment(ctx, enrollment, steps)
	if err != nil {
		return nil, err
	}

	s.log.Info("contact enrolled in nurture template",
		"tenant_id", tenantID, "contact_id", contactID,
		"template_id", templateID, "enrollment_id", created.ID, "steps", created.TotalSteps)
	return created, nil
}

// Pause transitions an ACTIVE enrollment to PAUSED. Pausing an already
// paused enrollment is a no-op.
func (s *Service) Pause(ctx context.Context, tenantID, enrollmentID int) error {
	enrollment, err := s.enrollments.GetEnrollment(ctx, tenantID, enrollmentID)
	if err != nil {
		return err
	}
	switch enrollment.Status {
	case domain.EnrollmentPaused:
		return nil
	case domain.EnrollmentActive:
		return s.enrollments.UpdateStatus(ctx, tenantID, enrollmentID, domain.EnrollmentPaused, nil)
	default:
		return domain.NewConflictError(fmt.Sprintf("cannot pause a %s enrollment", enrollment.Status))
	}
}

// Resume transitions a PAUSED enrollment back to ACTIVE. Resuming an
// already active enrollment is a no-op.
func (s *Service) Resume(ctx context.Context, tenantID, enrollmentID int) error {
	enrollment, err := s.enrollments.GetEnrollment(ctx, tenantID, enrollmentID)
	if err != nil {
		return err
	}
	switch enrollment.Status {
	case domain.EnrollmentActive:
		return nil
	case domain.EnrollmentPaused:
		return s.enrollments.UpdateStatus(ctx, tenantID, enrollmentID, domain.EnrollmentActive, nil)
	default:
		return domain.NewConflictError(fmt.Sprintf("cannot resume a %s enrollment", enrollment.Status))
	}
}

// Cancel transitions the enrollment to CANCELLED and every non-terminal
// step to CANCELLED. Already-sent steps are untouched so history is
// preserved. Cancelling an already cancelled enrollment is a no-op. A step
// claimed by a worker while Cancel runs is allowed to finish its in-flight
// dispatch; that race is accepted.
func (s *Service) Cancel(ctx context.Context, tenantID, enrollmentID int) error {
	enrollment, err := s.enrollments.GetEnrollment(ctx, tenantID, enrollmentID)
	if err != nil {
		return err
	}
	if enrollment.Status == domain.EnrollmentCancelled {
		return nil
	}
	if enrollment.Status == domain.EnrollmentCompleted {
		return domain.NewConflictError("cannot cancel a completed enrollment")
	}

	if err := s.enrollments.UpdateStatus(ctx, tenantID, enrollmentID, domain.EnrollmentCancelled, nil); err != nil {
		return fmt.Errorf("failed to cancel enrollment: %w", err)
	}

	cancelled, err := s.steps.CancelOpen(ctx, tenantID, enrollmentID)
	if err != nil {
		return fmt.Errorf("failed to cancel scheduled steps: %w", err)
	}

	s.log.Info("enrollment cancelled",
		"tenant_id", tenantID, "enrollment_id", enrollmentID, "steps_cancelled", cancelled)
	return nil
}

// ListEnrollments returns every enrollment for a contact together with its
// step delivery state.
func (s *Service) ListEnrollments(ctx context.Context, tenantID, contactID int) ([]EnrollmentDetail, error) {
	if _, err := s.contacts.GetContact(ctx, tenantID, contactID); err != nil {
		return nil, err
	}

	enrollments, err := s.enrollments.ListByContact(ctx, tenantID, contactID)
	if err != nil {
		return nil, fmt.Errorf("failed to list enrollments: %w", err)
	}

	details := make([]EnrollmentDetail, len(enrollments))
	for i, enrollment := range enrollments {
		steps, err := s.steps.ListByEnrollment(ctx, tenantID, enrollment.ID)
		if err != nil {
			return nil, fmt.Errorf("failed to list scheduled steps: %w", err)
		}
		details[i] = EnrollmentDetail{Enrollment: enrollment, Steps: steps}
	}
	return details, nil
}

// Dispatch delivers one claimed (PROCESSING) step: it renders the message
// against the contact and hands it to the outbound transport. Transport
// failures are recorded on the step, never returned; a failed step does
// not block later steps of the same enrollment.
func (s *Service) Dispatch(ctx context.Context, step *domain.ScheduledStep) error {
	enrollment, err := s.enrollments.GetEnrollment(ctx, step.TenantID, step.EnrollmentID)
	if err != nil {
		return fmt.Errorf("failed to load enrollment for step %d: %w", step.ID, err)
	}

	switch enrollment.Status {
	case domain.EnrollmentCancelled, domain.EnrollmentCompleted:
		// Cancellation raced the claim; retire the step.
		return s.steps.MarkCancelled(ctx, step.ID)
	case domain.EnrollmentPaused:
		// Pause raced the claim; put the step back for after resume.
		return s.steps.Release(ctx, step.ID)
	}

	contact, err := s.contacts.GetContact(ctx, step.TenantID, enrollment.ContactID)
	if err != nil {
		return fmt.Errorf("failed to load contact for step %d: %w", step.ID, err)
	}

	subject := Render(step.Subject, contact)
	body := Render(step.Body, contact)
	now := s.clock.Now()

	if err := s.transport.Send(ctx, contact.Email, subject, body); err != nil {
		s.log.Warn("step dispatch failed",
			"tenant_id", step.TenantID, "enrollment_id", enrollment.ID,
			"step_id", step.ID, "error", err)
		return s.steps.MarkFailed(ctx, step.ID, now, err.Error())
	}

	if err := s.steps.MarkSent(ctx, step.ID, now); err != nil {
		return fmt.Errorf("failed to mark step sent: %w", err)
	}

	if err := s.contacts.UpdateLastContacted(ctx, step.TenantID, contact.ID, now); err != nil {
		s.log.Warn("failed to update last contacted",
			"tenant_id", step.TenantID, "contact_id", contact.ID, "error", err)
	}

	completed, total, err := s.enrollments.IncrementCompletedSteps(ctx, step.TenantID, enrollment.ID)
	if err != nil {
		return fmt.Errorf("failed to increment completed steps: %w", err)
	}
	if completed >= total {
		completedAt := now
		if err := s.enrollments.UpdateStatus(ctx, step.TenantID, enrollment.ID, domain.EnrollmentCompleted, &completedAt); err != nil {
			return fmt.Errorf("failed to complete enrollment: %w", err)
		}
		s.log.Info("enrollment completed",
			"tenant_id", step.TenantID, "enrollment_id", enrollment.ID)
	}
	return nil
}
