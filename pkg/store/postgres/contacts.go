package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jordanlanch/salespilot/pkg/domain"
)

const contactColumns = `id, tenant_id, name, email, company, type, source, industry,
	industry_fit, score, score_components, score_updated_at, assigned_rep_id,
	last_contacted_at, created_at`

func scanContact(row interface{ Scan(...any) error }) (*domain.Contact, error) {
	var c domain.Contact
	var components []byte
	err := row.Scan(&c.ID, &c.TenantID, &c.Name, &c.Email, &c.Company, &c.Type,
		&c.Source, &c.Industry, &c.IndustryFit, &c.Score, &components,
		&c.ScoreUpdatedAt, &c.AssignedRepID, &c.LastContactedAt, &c.CreatedAt)
	if err != nil {
		return nil, err
	}
	if len(components) > 0 {
		if err := json.Unmarshal(components, &c.ScoreComponents); err != nil {
			return nil, fmt.Errorf("failed to decode score components: %w", err)
		}
	}
	return &c, nil
}

func (s *Store) GetContact(ctx context.Context, tenantID, contactID int) (*domain.Contact, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+contactColumns+` FROM contacts WHERE id = $1 AND tenant_id = $2`,
		contactID, tenantID)
	c, err := scanContact(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.NewNotFoundError("contact")
		}
		return nil, fmt.Errorf("failed to fetch contact: %w", err)
	}
	return c, nil
}

func (s *Store) ListLeads(ctx context.Context, tenantID int) ([]*domain.Contact, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+contactColumns+` FROM contacts WHERE tenant_id = $1 AND type = $2 ORDER BY id`,
		tenantID, domain.ContactTypeLead)
	if err != nil {
		return nil, fmt.Errorf("failed to list leads: %w", err)
	}
	defer rows.Close()

	var out []*domain.Contact
	for rows.Next() {
		c, err := scanContact(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan lead: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (s *Store) UpdateScore(ctx context.Context, tenantID, contactID int, score int, components map[string]int, at time.Time) error {
	encoded, err := json.Marshal(components)
	if err != nil {
		return fmt.Errorf("failed to encode score components: %w", err)
	}

	res, err := s.db.ExecContext(ctx,
		`UPDATE contacts SET score = $1, score_components = $2, score_updated_at = $3
		 WHERE id = $4 AND tenant_id = $5`,
		score, encoded, at, contactID, tenantID)
	if err != nil {
		return fmt.Errorf("failed to update score: %w", err)
	}
	return requireRow(res, "contact")
}

func (s *Store) UpdateAssignedRep(ctx context.Context, tenantID, contactID, repID int) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE contacts SET assigned_rep_id = $1 WHERE id = $2 AND tenant_id = $3`,
		repID, contactID, tenantID)
	if err != nil {
		return fmt.Errorf("failed to update assigned rep: %w", err)
	}
	return requireRow(res, "contact")
}

func (s *Store) UpdateLastContacted(ctx context.Context, tenantID, contactID int, at time.Time) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE contacts SET last_contacted_at = $1 WHERE id = $2 AND tenant_id = $3`,
		at, contactID, tenantID)
	if err != nil {
		return fmt.Errorf("failed to update last contacted: %w", err)
	}
	return requireRow(res, "contact")
}

// SignalSource: signals derive from the contact row plus the interaction
// and deal tables.
func (s *Store) Signals(ctx context.Context, tenantID, contactID int) (*domain.Signals, error) {
	c, err := s.GetContact(ctx, tenantID, contactID)
	if err != nil {
		return nil, err
	}

	var interactions int
	err = s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM interactions WHERE contact_id = $1 AND tenant_id = $2`,
		contactID, tenantID).Scan(&interactions)
	if err != nil {
		return nil, fmt.Errorf("failed to count interactions: %w", err)
	}

	var hasOpenDeal bool
	err = s.db.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM deals WHERE contact_id = $1 AND tenant_id = $2 AND status = 'open')`,
		contactID, tenantID).Scan(&hasOpenDeal)
	if err != nil {
		return nil, fmt.Errorf("failed to check open deals: %w", err)
	}

	return &domain.Signals{
		LastEngagedAt:    c.LastContactedAt,
		InteractionCount: interactions,
		Source:           c.Source,
		IndustryFit:      c.IndustryFit,
		HasOpenDeal:      hasOpenDeal,
	}, nil
}

// TenantSource

func (s *Store) ListTenantIDs(ctx context.Context) ([]int, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT DISTINCT tenant_id FROM contacts ORDER BY tenant_id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list tenants: %w", err)
	}
	defer rows.Close()

	var out []int
	for rows.Next() {
		var id int
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan tenant id: %w", err)
		}
		out = append(out, id)
	}
	return out, rows.Err()
}

func requireRow(res sql.Result, resource string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return domain.NewNotFoundError(resource)
	}
	return nil
}
