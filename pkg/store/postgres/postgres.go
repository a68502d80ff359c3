package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/lib/pq"
)

// Store is the Postgres-backed implementation of the repository contracts.
type Store struct {
	db *sql.DB
}

// Open connects to Postgres and verifies the connection.
func Open(databaseURL string) (*Store, error) {
	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &Store{db: db}, nil
}

// Close closes the underlying connection pool.
func (s *Store) Close() error {
	return s.db.Close()
}

// Migrate applies the schema. Statements are idempotent so the API binary
// can run it unconditionally at startup.
func (s *Store) Migrate(ctx context.Context) error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS contacts (
			id                 SERIAL PRIMARY KEY,
			tenant_id          INT NOT NULL,
			name               TEXT NOT NULL,
			email              TEXT NOT NULL DEFAULT '',
			company            TEXT NOT NULL DEFAULT '',
			type               TEXT NOT NULL DEFAULT 'lead',
			source             TEXT NOT NULL DEFAULT '',
			industry           TEXT NOT NULL DEFAULT '',
			industry_fit       DOUBLE PRECISION NOT NULL DEFAULT 0,
			score              INT,
			score_components   JSONB,
			score_updated_at   TIMESTAMPTZ,
			assigned_rep_id    INT,
			last_contacted_at  TIMESTAMPTZ,
			created_at         TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`,
		`CREATE INDEX IF NOT EXISTS idx_contacts_tenant ON contacts (tenant_id)`,
		`CREATE TABLE IF NOT EXISTS sales_reps (
			id               SERIAL PRIMARY KEY,
			tenant_id        INT NOT NULL,
			name             TEXT NOT NULL,
			email            TEXT NOT NULL DEFAULT '',
			specialization   TEXT NOT NULL DEFAULT '',
			conversion_rate  DOUBLE PRECISION NOT NULL DEFAULT 0,
			is_on_leave      BOOLEAN NOT NULL DEFAULT FALSE,
			leave_end_date   TIMESTAMPTZ
		)`,
		`CREATE TABLE IF NOT EXISTS interactions (
			id          SERIAL PRIMARY KEY,
			tenant_id   INT NOT NULL,
			contact_id  INT NOT NULL REFERENCES contacts (id),
			occurred_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`,
		`CREATE INDEX IF NOT EXISTS idx_interactions_contact ON interactions (contact_id)`,
		`CREATE TABLE IF NOT EXISTS deals (
			id          SERIAL PRIMARY KEY,
			tenant_id   INT NOT NULL,
			contact_id  INT NOT NULL REFERENCES contacts (id),
			status      TEXT NOT NULL DEFAULT 'open'
		)`,
		`CREATE TABLE IF NOT EXISTS nurture_templates (
			id         SERIAL PRIMARY KEY,
			tenant_id  INT NOT NULL,
			name       TEXT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS nurture_steps (
			id           SERIAL PRIMARY KEY,
			template_id  INT NOT NULL REFERENCES nurture_templates (id),
			step_order   INT NOT NULL,
			day_offset   INT NOT NULL DEFAULT 0,
			subject      TEXT NOT NULL,
			body         TEXT NOT NULL,
			UNIQUE (template_id, step_order)
		)`,
		`CREATE TABLE IF NOT EXISTS nurture_enrollments (
			id               SERIAL PRIMARY KEY,
			tenant_id        INT NOT NULL,
			contact_id       INT NOT NULL REFERENCES contacts (id),
			template_id      INT NOT NULL REFERENCES nurture_templates (id),
			enrolled_by      INT NOT NULL DEFAULT 0,
			status           TEXT NOT NULL DEFAULT 'active',
			enrolled_at      TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			total_steps      INT NOT NULL,
			completed_steps  INT NOT NULL DEFAULT 0,
			completed_at     TIMESTAMPTZ
		)`,
		// One open (active or paused) enrollment per (contact, template).
		`CREATE UNIQUE INDEX IF NOT EXISTS uq_open_enrollment
			ON nurture_enrollments (contact_id, template_id)
			WHERE status IN ('active', 'paused')`,
		`CREATE TABLE IF NOT EXISTS scheduled_steps (
			id             SERIAL PRIMARY KEY,
			tenant_id      INT NOT NULL,
			enrollment_id  INT NOT NULL REFERENCES nurture_enrollments (id),
			step_order     INT NOT NULL,
			subject        TEXT NOT NULL,
			body           TEXT NOT NULL,
			scheduled_at   TIMESTAMPTZ NOT NULL,
			status         TEXT NOT NULL DEFAULT 'pending',
			claimed_at     TIMESTAMPTZ,
			sent_at        TIMESTAMPTZ,
			last_error     TEXT NOT NULL DEFAULT ''
		)`,
		`CREATE INDEX IF NOT EXISTS idx_scheduled_steps_due
			ON scheduled_steps (scheduled_at) WHERE status = 'pending'`,
	}

	for _, stmt := range statements {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migration failed: %w", err)
		}
	}
	return nil
}
