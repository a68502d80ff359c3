package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"

	"github.com/jordanlanch/salespilot/pkg/domain"
)

// TemplateRepository

func (s *Store) GetTemplate(ctx context.Context, tenantID, templateID int) (*domain.NurtureTemplate, error) {
	var t domain.NurtureTemplate
	err := s.db.QueryRowContext(ctx,
		`SELECT id, tenant_id, name FROM nurture_templates WHERE id = $1 AND tenant_id = $2`,
		templateID, tenantID).Scan(&t.ID, &t.TenantID, &t.Name)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.NewNotFoundError("nurture template")
		}
		return nil, fmt.Errorf("failed to fetch template: %w", err)
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, template_id, step_order, day_offset, subject, body
		 FROM nurture_steps WHERE template_id = $1 ORDER BY step_order`, templateID)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch template steps: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var st domain.NurtureStep
		if err := rows.Scan(&st.ID, &st.TemplateID, &st.Order, &st.DayOffset, &st.Subject, &st.Body); err != nil {
			return nil, fmt.Errorf("failed to scan template step: %w", err)
		}
		t.Steps = append(t.Steps, st)
	}
	return &t, rows.Err()
}

// EnrollmentRepository

const enrollmentColumns = `id, tenant_id, contact_id, template_id, enrolled_by,
	status, enrolled_at, total_steps, completed_steps, completed_at`

func scanEnrollment(row interface{ Scan(...any) error }) (*domain.NurtureEnrollment, error) {
	var e domain.NurtureEnrollment
	err := row.Scan(&e.ID, &e.TenantID, &e.ContactID, &e.TemplateID, &e.EnrolledByUserID,
		&e.Status, &e.EnrolledAt, &e.TotalSteps, &e.CompletedSteps, &e.CompletedAt)
	if err != nil {
		return nil, err
	}
	return &e, nil
}

func (s *Store) GetEnrollment(ctx context.Context, tenantID, enrollmentID int) (*domain.NurtureEnrollment, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+enrollmentColumns+` FROM nurture_enrollments WHERE id = $1 AND tenant_id = $2`,
		enrollmentID, tenantID)
	e, err := scanEnrollment(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.NewNotFoundError("enrollment")
		}
		return nil, fmt.Errorf("failed to fetch enrollment: %w", err)
	}
	return e, nil
}

func (s *Store) FindOpenEnrollment(ctx context.Context, tenantID, contactID, templateID int) (*domain.NurtureEnrollment, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+enrollmentColumns+` FROM nurture_enrollments
		 WHERE tenant_id = $1 AND contact_id = $2 AND template_id = $3
		   AND status IN ('active', 'paused')`,
		tenantID, contactID, templateID)
	e, err := scanEnrollment(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to find open enrollment: %w", err)
	}
	return e, nil
}

func (s *Store) ListByContact(ctx context.Context, tenantID, contactID int) ([]*domain.NurtureEnrollment, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+enrollmentColumns+` FROM nurture_enrollments
		 WHERE tenant_id = $1 AND contact_id = $2 ORDER BY enrolled_at DESC`,
		tenantID, contactID)
	if err != nil {
		return nil, fmt.Errorf("failed to list enrollments: %w", err)
	}
	defer rows.Close()

	var out []*domain.NurtureEnrollment
	for rows.Next() {
		e, err := scanEnrollment(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan enrollment: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// CreateEnrollment inserts the enrollment and its full step schedule in one
// transaction. The partial unique index on open enrollments turns a lost
// race into a CONFLICT instead of a duplicate row.
func (s *Store) CreateEnrollment(ctx context.Context, enrollment *domain.NurtureEnrollment, steps []*domain.ScheduledStep) (*domain.NurtureEnrollment, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to start transaction: %w", err)
	}
	defer tx.Rollback()

	created := *enrollment
	err = tx.QueryRowContext(ctx,
		`INSERT INTO nurture_enrollments
			(tenant_id, contact_id, template_id, enrolled_by, status, enrolled_at, total_steps, completed_steps)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		 RETURNING id`,
		enrollment.TenantID, enrollment.ContactID, enrollment.TemplateID,
		enrollment.EnrolledByUserID, enrollment.Status, enrollment.EnrolledAt,
		enrollment.TotalSteps, enrollment.CompletedSteps).Scan(&created.ID)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == "23505" {
			return nil, domain.NewConflictError("contact already has an open enrollment in this template")
		}
		return nil, fmt.Errorf("failed to create enrollment: %w", err)
	}

	for _, st := range steps {
		_, err = tx.ExecContext(ctx,
			`INSERT INTO scheduled_steps
				(tenant_id, enrollment_id, step_order, subject, body, scheduled_at, status)
			 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
			st.TenantID, created.ID, st.StepOrder, st.Subject, st.Body, st.ScheduledAt, st.Status)
		if err != nil {
			return nil, fmt.Errorf("failed to create scheduled step: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit enrollment: %w", err)
	}
	return &created, nil
}

func (s *Store) UpdateStatus(ctx context.Context, tenantID, enrollmentID int, status domain.EnrollmentStatus, completedAt *time.Time) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE nurture_enrollments SET status = $1, completed_at = $2
		 WHERE id = $3 AND tenant_id = $4`,
		status, completedAt, enrollmentID, tenantID)
	if err != nil {
		return fmt.Errorf("failed to update enrollment status: %w", err)
	}
	return requireRow(res, "enrollment")
}

func (s *Store) IncrementCompletedSteps(ctx context.Context, tenantID, enrollmentID int) (int, int, error) {
	var completed, total int
	err := s.db.QueryRowContext(ctx,
		`UPDATE nurture_enrollments SET completed_steps = completed_steps + 1
		 WHERE id = $1 AND tenant_id = $2
		 RETURNING completed_steps, total_steps`,
		enrollmentID, tenantID).Scan(&completed, &total)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, 0, domain.NewNotFoundError("enrollment")
		}
		return 0, 0, fmt.Errorf("failed to increment completed steps: %w", err)
	}
	return completed, total, nil
}

// ScheduledStepRepository

const stepColumns = `id, tenant_id, enrollment_id, step_order, subject, body,
	scheduled_at, status, claimed_at, sent_at, last_error`

func scanStep(row interface{ Scan(...any) error }) (*domain.ScheduledStep, error) {
	var st domain.ScheduledStep
	err := row.Scan(&st.ID, &st.TenantID, &st.EnrollmentID, &st.StepOrder,
		&st.Subject, &st.Body, &st.ScheduledAt, &st.Status, &st.ClaimedAt,
		&st.SentAt, &st.LastError)
	if err != nil {
		return nil, err
	}
	return &st, nil
}

func (s *Store) GetStep(ctx context.Context, stepID int) (*domain.ScheduledStep, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+stepColumns+` FROM scheduled_steps WHERE id = $1`, stepID)
	st, err := scanStep(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.NewNotFoundError("scheduled step")
		}
		return nil, fmt.Errorf("failed to fetch scheduled step: %w", err)
	}
	return st, nil
}

func (s *Store) ListByEnrollment(ctx context.Context, tenantID, enrollmentID int) ([]*domain.ScheduledStep, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+stepColumns+` FROM scheduled_steps
		 WHERE tenant_id = $1 AND enrollment_id = $2 ORDER BY step_order`,
		tenantID, enrollmentID)
	if err != nil {
		return nil, fmt.Errorf("failed to list scheduled steps: %w", err)
	}
	defer rows.Close()

	var out []*domain.ScheduledStep
	for rows.Next() {
		st, err := scanStep(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan scheduled step: %w", err)
		}
		out = append(out, st)
	}
	return out, rows.Err()
}

// ClaimDue atomically flips due PENDING steps of active enrollments to
// PROCESSING. SKIP LOCKED keeps concurrent pollers from claiming the same
// row, so each step is handed to exactly one worker per cycle.
func (s *Store) ClaimDue(ctx context.Context, now time.Time, limit int) ([]*domain.ScheduledStep, error) {
	if limit <= 0 {
		limit = 1
	}

	rows, err := s.db.QueryContext(ctx, fmt.Sprintf(
		`UPDATE scheduled_steps SET status = 'processing', claimed_at = $1
		 WHERE id IN (
			SELECT ss.id FROM scheduled_steps ss
			JOIN nurture_enrollments e ON e.id = ss.enrollment_id
			WHERE ss.status = 'pending' AND ss.scheduled_at <= $1 AND e.status = 'active'
			ORDER BY ss.scheduled_at
			LIMIT $2
			FOR UPDATE OF ss SKIP LOCKED
		 )
		 RETURNING %s`, stepColumns),
		now, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to claim due steps: %w", err)
	}
	defer rows.Close()

	var out []*domain.ScheduledStep
	for rows.Next() {
		st, err := scanStep(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan claimed step: %w", err)
		}
		out = append(out, st)
	}
	return out, rows.Err()
}

func (s *Store) CancelOpen(ctx context.Context, tenantID, enrollmentID int) (int, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE scheduled_steps SET status = 'cancelled'
		 WHERE tenant_id = $1 AND enrollment_id = $2 AND status IN ('pending', 'processing')`,
		tenantID, enrollmentID)
	if err != nil {
		return 0, fmt.Errorf("failed to cancel scheduled steps: %w", err)
	}
	n, err := res.RowsAffected()
	return int(n), err
}

func (s *Store) MarkSent(ctx context.Context, stepID int, at time.Time) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE scheduled_steps SET status = 'sent', sent_at = $1, last_error = '' WHERE id = $2`,
		at, stepID)
	if err != nil {
		return fmt.Errorf("failed to mark step sent: %w", err)
	}
	return nil
}

func (s *Store) MarkFailed(ctx context.Context, stepID int, at time.Time, reason string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE scheduled_steps SET status = 'failed', last_error = $1 WHERE id = $2`,
		reason, stepID)
	if err != nil {
		return fmt.Errorf("failed to mark step failed: %w", err)
	}
	return nil
}

func (s *Store) MarkCancelled(ctx context.Context, stepID int) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE scheduled_steps SET status = 'cancelled' WHERE id = $1`, stepID)
	if err != nil {
		return fmt.Errorf("failed to mark step cancelled: %w", err)
	}
	return nil
}

func (s *Store) Release(ctx context.Context, stepID int) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE scheduled_steps SET status = 'pending', claimed_at = NULL
		 WHERE id = $1 AND status = 'processing'`, stepID)
	if err != nil {
		return fmt.Errorf("failed to release step: %w", err)
	}
	return nil
}

func (s *Store) ReclaimStale(ctx context.Context, cutoff time.Time) (int, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE scheduled_steps SET status = 'pending', claimed_at = NULL
		 WHERE status = 'processing' AND claimed_at < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to reclaim stale steps: %w", err)
	}
	n, err := res.RowsAffected()
	return int(n), err
}
