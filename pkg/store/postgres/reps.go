package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jordanlanch/salespilot/pkg/domain"
)

// repColumns joins in the derived workload: the count of contacts currently
// assigned to the rep.
const repQuery = `SELECT r.id, r.tenant_id, r.name, r.email, r.specialization,
	r.conversion_rate, r.is_on_leave, r.leave_end_date,
	(SELECT COUNT(*) FROM contacts c WHERE c.assigned_rep_id = r.id AND c.tenant_id = r.tenant_id)
	FROM sales_reps r`

func scanRep(row interface{ Scan(...any) error }) (*domain.SalesRep, error) {
	var r domain.SalesRep
	err := row.Scan(&r.ID, &r.TenantID, &r.Name, &r.Email, &r.Specialization,
		&r.ConversionRate, &r.IsOnLeave, &r.LeaveEndDate, &r.AssignedLeadCount)
	if err != nil {
		return nil, err
	}
	return &r, nil
}

func (s *Store) GetRep(ctx context.Context, tenantID, repID int) (*domain.SalesRep, error) {
	row := s.db.QueryRowContext(ctx,
		repQuery+` WHERE r.id = $1 AND r.tenant_id = $2`, repID, tenantID)
	r, err := scanRep(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.NewNotFoundError("sales rep")
		}
		return nil, fmt.Errorf("failed to fetch sales rep: %w", err)
	}
	return r, nil
}

func (s *Store) ListReps(ctx context.Context, tenantID int) ([]*domain.SalesRep, error) {
	rows, err := s.db.QueryContext(ctx,
		repQuery+` WHERE r.tenant_id = $1 ORDER BY r.id`, tenantID)
	if err != nil {
		return nil, fmt.Errorf("failed to list sales reps: %w", err)
	}
	defer rows.Close()

	var out []*domain.SalesRep
	for rows.Next() {
		r, err := scanRep(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan sales rep: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}
