package storage

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

type Store struct {
	Pool *pgxpool.Pool
}

// NewStore opens a connection pool and checks the database is reachable
func NewStore(ctx context.Context, dsn string) (*Store, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to create pool: %w", err)
	}
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to reach database: %w", err)
	}
	return &Store{Pool: pool}, nil
}

// Ping checks that the database still answers
func (s *Store) Ping(ctx context.Context) error {
	return s.Pool.Ping(ctx)
}

func (s *Store) Close() {
	if s.Pool != nil {
		s.Pool.Close()
	}
}

// Migrate creates any missing tables. It is safe to run on every start.
func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.Pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("failed to apply schema: %w", err)
	}
	log.Println("[STORAGE] Schema is up to date")
	return nil
}

const schema = `
CREATE TABLE IF NOT EXISTS organizations (
	id text PRIMARY KEY,
	name text NOT NULL DEFAULT '',
	plan text NOT NULL DEFAULT 'free'
);

CREATE TABLE IF NOT EXISTS users (
	id text PRIMARY KEY,
	organization_id text,
	email text NOT NULL DEFAULT '',
	role text NOT NULL DEFAULT '',
	active boolean NOT NULL DEFAULT true,
	created_at timestamptz NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS users_email_idx ON users (lower(email));

CREATE TABLE IF NOT EXISTS services (
	id text PRIMARY KEY,
	organization_id text NOT NULL,
	name text NOT NULL,
	slug text NOT NULL,
	description text NOT NULL DEFAULT '',
	UNIQUE (organization_id, slug)
);

CREATE TABLE IF NOT EXISTS trigger_settings (
	organization_id text PRIMARY KEY,
	enabled boolean NOT NULL,
	error_threshold int NOT NULL,
	window_seconds int NOT NULL,
	cooldown_seconds int NOT NULL,
	ai_summary_enabled boolean NOT NULL,
	summary_line_cap int NOT NULL,
	updated_at timestamptz NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS incidents (
	id text PRIMARY KEY,
	organization_id text NOT NULL,
	service_id text,
	title text NOT NULL,
	description text NOT NULL DEFAULT '',
	severity text NOT NULL,
	status text NOT NULL,
	created_by text NOT NULL DEFAULT '',
	created_at timestamptz NOT NULL,
	updated_at timestamptz NOT NULL,
	resolved_at timestamptz
);
CREATE INDEX IF NOT EXISTS incidents_org_created_idx ON incidents (organization_id, created_at);
CREATE INDEX IF NOT EXISTS incidents_updated_idx ON incidents (updated_at);

CREATE TABLE IF NOT EXISTS incident_updates (
	id text PRIMARY KEY,
	incident_id text NOT NULL REFERENCES incidents(id) ON DELETE CASCADE,
	message text NOT NULL,
	created_by text NOT NULL DEFAULT '',
	created_at timestamptz NOT NULL
);
CREATE INDEX IF NOT EXISTS incident_updates_created_idx ON incident_updates (created_at);

CREATE TABLE IF NOT EXISTS maintenance_events (
	id text PRIMARY KEY,
	organization_id text NOT NULL DEFAULT '',
	title text NOT NULL,
	description text NOT NULL DEFAULT '',
	status text NOT NULL,
	starts_at timestamptz NOT NULL,
	ends_at timestamptz NOT NULL,
	applies_to_all boolean NOT NULL DEFAULT false,
	service_id text,
	created_at timestamptz NOT NULL,
	updated_at timestamptz NOT NULL,
	CHECK (starts_at < ends_at)
);

CREATE TABLE IF NOT EXISTS status_cache (
	id int PRIMARY KEY DEFAULT 1 CHECK (id = 1),
	state text NOT NULL,
	uptime_24h double precision NOT NULL,
	payload jsonb NOT NULL,
	updated_at timestamptz NOT NULL
);
`
