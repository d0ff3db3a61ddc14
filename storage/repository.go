package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/bhoyee/IncidentPulse-sub000/models"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// Repository implements every store the engine needs on PostgreSQL
type Repository struct {
	Store           *Store
	SystemUserEmail string
}

func NewRepository(store *Store, systemUserEmail string) *Repository {
	return &Repository{Store: store, SystemUserEmail: strings.TrimSpace(systemUserEmail)}
}

func notFound(err error, what string) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("%s: %w", what, models.ErrNotFound)
	}
	return err
}

func (r *Repository) PutOrganization(ctx context.Context, org models.Organization) error {
	_, err := r.Store.Pool.Exec(ctx, `
		INSERT INTO organizations (id, name, plan) VALUES ($1,$2,$3)
		ON CONFLICT (id) DO UPDATE SET name=EXCLUDED.name, plan=EXCLUDED.plan`,
		org.ID, org.Name, org.Plan,
	)
	return err
}

func (r *Repository) PutUser(ctx context.Context, user models.User) (models.User, error) {
	if user.ID == "" {
		user.ID = uuid.NewString()
	}
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now().UTC()
	}
	_, err := r.Store.Pool.Exec(ctx, `
		INSERT INTO users (id, organization_id, email, role, active, created_at) VALUES ($1,NULLIF($2::text,''),$3,$4,$5,$6)
		ON CONFLICT (id) DO UPDATE SET organization_id=EXCLUDED.organization_id, email=EXCLUDED.email, role=EXCLUDED.role, active=EXCLUDED.active`,
		user.ID, user.OrganizationID, user.Email, user.Role, user.Active, user.CreatedAt,
	)
	return user, err
}

func (r *Repository) PutService(ctx context.Context, svc models.Service) (models.Service, error) {
	if svc.ID == "" {
		svc.ID = uuid.NewString()
	}
	_, err := r.Store.Pool.Exec(ctx, `
		INSERT INTO services (id, organization_id, name, slug, description) VALUES ($1,$2,$3,$4,$5)
		ON CONFLICT (id) DO UPDATE SET name=EXCLUDED.name, slug=EXCLUDED.slug, description=EXCLUDED.description`,
		svc.ID, svc.OrganizationID, svc.Name, svc.Slug, svc.Description,
	)
	return svc, err
}

func (r *Repository) PutTriggerSettings(ctx context.Context, orgID string, s models.TriggerSettings) error {
	_, err := r.Store.Pool.Exec(ctx, `
		INSERT INTO trigger_settings (organization_id, enabled, error_threshold, window_seconds, cooldown_seconds, ai_summary_enabled, summary_line_cap, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,now())
		ON CONFLICT (organization_id) DO UPDATE SET
			enabled=EXCLUDED.enabled, error_threshold=EXCLUDED.error_threshold, window_seconds=EXCLUDED.window_seconds,
			cooldown_seconds=EXCLUDED.cooldown_seconds, ai_summary_enabled=EXCLUDED.ai_summary_enabled,
			summary_line_cap=EXCLUDED.summary_line_cap, updated_at=now()`,
		orgID, s.Enabled, s.ErrorThreshold, s.WindowSeconds, s.CooldownSeconds, s.AISummaryEnabled, s.SummaryLineCap,
	)
	return err
}

func (r *Repository) GetTriggerSettings(ctx context.Context, orgID string) (*models.TriggerSettings, error) {
	row := r.Store.Pool.QueryRow(ctx, `
		SELECT enabled, error_threshold, window_seconds, cooldown_seconds, ai_summary_enabled, summary_line_cap
		FROM trigger_settings WHERE organization_id=$1`, orgID)
	var s models.TriggerSettings
	if err := row.Scan(&s.Enabled, &s.ErrorThreshold, &s.WindowSeconds, &s.CooldownSeconds, &s.AISummaryEnabled, &s.SummaryLineCap); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &s, nil
}

func (r *Repository) OrganizationPlan(ctx context.Context, orgID string) (string, error) {
	var plan string
	err := r.Store.Pool.QueryRow(ctx, `SELECT plan FROM organizations WHERE id=$1`, orgID).Scan(&plan)
	if err != nil {
		return "", notFound(err, "organization "+orgID)
	}
	return plan, nil
}

func (r *Repository) SystemUserID(ctx context.Context) (string, error) {
	if r.SystemUserEmail == "" {
		return "", nil
	}
	var id string
	err := r.Store.Pool.QueryRow(ctx, `
		SELECT id FROM users WHERE lower(email)=lower($1) AND active ORDER BY created_at LIMIT 1`,
		r.SystemUserEmail).Scan(&id)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", nil
	}
	return id, err
}

func (r *Repository) FirstActiveAdmin(ctx context.Context, orgID string) (string, error) {
	var id string
	err := r.Store.Pool.QueryRow(ctx, `
		SELECT id FROM users WHERE organization_id=$1 AND role=$2 AND active ORDER BY created_at LIMIT 1`,
		orgID, models.RoleAdmin).Scan(&id)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", nil
	}
	return id, err
}

const serviceColumns = `id, organization_id, name, slug, description`

func scanService(row pgx.Row) (models.Service, error) {
	var svc models.Service
	err := row.Scan(&svc.ID, &svc.OrganizationID, &svc.Name, &svc.Slug, &svc.Description)
	return svc, err
}

func (r *Repository) FindService(ctx context.Context, orgID, nameOrSlug string) (models.Service, error) {
	row := r.Store.Pool.QueryRow(ctx, `
		SELECT `+serviceColumns+` FROM services
		WHERE organization_id=$1 AND (lower(name)=lower($2) OR lower(slug)=lower($2))
		ORDER BY name LIMIT 1`, orgID, nameOrSlug)
	svc, err := scanService(row)
	if err != nil {
		return models.Service{}, notFound(err, "service "+nameOrSlug)
	}
	return svc, nil
}

func (r *Repository) ListServices(ctx context.Context) ([]models.Service, error) {
	rows, err := r.Store.Pool.Query(ctx, `SELECT `+serviceColumns+` FROM services ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	results := []models.Service{}
	for rows.Next() {
		svc, err := scanService(rows)
		if err != nil {
			return nil, err
		}
		results = append(results, svc)
	}
	return results, rows.Err()
}

const incidentColumns = `id, organization_id, COALESCE(service_id, ''), title, description, severity, status, created_by, created_at, updated_at, resolved_at`

func scanIncident(row pgx.Row) (models.Incident, error) {
	var inc models.Incident
	err := row.Scan(&inc.ID, &inc.OrganizationID, &inc.ServiceID, &inc.Title, &inc.Description, &inc.Severity, &inc.Status, &inc.CreatedBy, &inc.CreatedAt, &inc.UpdatedAt, &inc.ResolvedAt)
	return inc, err
}

func (r *Repository) CreateIncident(ctx context.Context, inc models.Incident) (models.Incident, error) {
	if inc.ID == "" {
		inc.ID = uuid.NewString()
	}
	if inc.CreatedAt.IsZero() {
		inc.CreatedAt = time.Now().UTC()
	}
	if inc.UpdatedAt.IsZero() {
		inc.UpdatedAt = inc.CreatedAt
	}
	_, err := r.Store.Pool.Exec(ctx, `
		INSERT INTO incidents (id, organization_id, service_id, title, description, severity, status, created_by, created_at, updated_at, resolved_at)
		VALUES ($1,$2,NULLIF($3::text,''),$4,$5,$6,$7,$8,$9,$10,$11)`,
		inc.ID, inc.OrganizationID, inc.ServiceID, inc.Title, inc.Description, inc.Severity, inc.Status, inc.CreatedBy, inc.CreatedAt, inc.UpdatedAt, inc.ResolvedAt,
	)
	if err != nil {
		return models.Incident{}, err
	}
	return inc, nil
}

func (r *Repository) CountIncidentsSince(ctx context.Context, orgID string, since time.Time) (int, error) {
	var count int
	err := r.Store.Pool.QueryRow(ctx, `
		SELECT count(*) FROM incidents WHERE ($1::text='' OR organization_id=$1) AND created_at >= $2`,
		orgID, since).Scan(&count)
	return count, err
}

func (r *Repository) queryIncidents(ctx context.Context, where string, args ...any) ([]models.Incident, error) {
	rows, err := r.Store.Pool.Query(ctx, `SELECT `+incidentColumns+` FROM incidents `+where+` ORDER BY created_at DESC`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	results := []models.Incident{}
	for rows.Next() {
		inc, err := scanIncident(rows)
		if err != nil {
			return nil, err
		}
		results = append(results, inc)
	}
	return results, rows.Err()
}

func (r *Repository) ListActiveIncidents(ctx context.Context) ([]models.Incident, error) {
	return r.queryIncidents(ctx, "WHERE status <> $1", models.StatusResolved)
}

func (r *Repository) latest(ctx context.Context, query string) (time.Time, error) {
	var latest *time.Time
	if err := r.Store.Pool.QueryRow(ctx, query).Scan(&latest); err != nil {
		return time.Time{}, err
	}
	if latest == nil {
		return time.Time{}, nil
	}
	return *latest, nil
}

func (r *Repository) LatestIncidentUpdatedAt(ctx context.Context) (time.Time, error) {
	return r.latest(ctx, `SELECT max(updated_at) FROM incidents`)
}

func (r *Repository) CreateIncidentUpdate(ctx context.Context, update models.IncidentUpdate) (models.IncidentUpdate, error) {
	if update.ID == "" {
		update.ID = uuid.NewString()
	}
	if update.CreatedAt.IsZero() {
		update.CreatedAt = time.Now().UTC()
	}
	tag, err := r.Store.Pool.Exec(ctx, `
		INSERT INTO incident_updates (id, incident_id, message, created_by, created_at)
		SELECT $1, id, $3, $4, $5 FROM incidents WHERE id=$2`,
		update.ID, update.IncidentID, update.Message, update.CreatedBy, update.CreatedAt,
	)
	if err != nil {
		return models.IncidentUpdate{}, err
	}
	if tag.RowsAffected() == 0 {
		return models.IncidentUpdate{}, fmt.Errorf("incident %s: %w", update.IncidentID, models.ErrNotFound)
	}
	return update, nil
}

func (r *Repository) ListIncidentUpdates(ctx context.Context, incidentID string) ([]models.IncidentUpdate, error) {
	rows, err := r.Store.Pool.Query(ctx, `
		SELECT id, incident_id, message, created_by, created_at
		FROM incident_updates WHERE incident_id=$1 ORDER BY created_at`, incidentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	results := []models.IncidentUpdate{}
	for rows.Next() {
		var u models.IncidentUpdate
		if err := rows.Scan(&u.ID, &u.IncidentID, &u.Message, &u.CreatedBy, &u.CreatedAt); err != nil {
			return nil, err
		}
		results = append(results, u)
	}
	return results, rows.Err()
}

func (r *Repository) LatestIncidentUpdateCreatedAt(ctx context.Context) (time.Time, error) {
	return r.latest(ctx, `SELECT max(created_at) FROM incident_updates`)
}

const maintenanceColumns = `id, organization_id, title, description, status, starts_at, ends_at, applies_to_all, COALESCE(service_id, ''), created_at, updated_at`

func scanMaintenance(row pgx.Row) (models.MaintenanceEvent, error) {
	var m models.MaintenanceEvent
	err := row.Scan(&m.ID, &m.OrganizationID, &m.Title, &m.Description, &m.Status, &m.StartsAt, &m.EndsAt, &m.AppliesToAll, &m.ServiceID, &m.CreatedAt, &m.UpdatedAt)
	return m, err
}

func (r *Repository) CreateMaintenance(ctx context.Context, m models.MaintenanceEvent) (models.MaintenanceEvent, error) {
	if m.ID == "" {
		m.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if m.CreatedAt.IsZero() {
		m.CreatedAt = now
	}
	if m.UpdatedAt.IsZero() {
		m.UpdatedAt = m.CreatedAt
	}
	_, err := r.Store.Pool.Exec(ctx, `
		INSERT INTO maintenance_events (id, organization_id, title, description, status, starts_at, ends_at, applies_to_all, service_id, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,NULLIF($9::text,''),$10,$11)`,
		m.ID, m.OrganizationID, m.Title, m.Description, m.Status, m.StartsAt, m.EndsAt, m.AppliesToAll, m.ServiceID, m.CreatedAt, m.UpdatedAt,
	)
	if err != nil {
		return models.MaintenanceEvent{}, err
	}
	return m, nil
}

func (r *Repository) GetMaintenance(ctx context.Context, id string) (models.MaintenanceEvent, error) {
	m, err := scanMaintenance(r.Store.Pool.QueryRow(ctx, `SELECT `+maintenanceColumns+` FROM maintenance_events WHERE id=$1`, id))
	if err != nil {
		return models.MaintenanceEvent{}, notFound(err, "maintenance "+id)
	}
	return m, nil
}

func (r *Repository) queryMaintenance(ctx context.Context, where string, args ...any) ([]models.MaintenanceEvent, error) {
	rows, err := r.Store.Pool.Query(ctx, `SELECT `+maintenanceColumns+` FROM maintenance_events `+where+` ORDER BY starts_at`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	results := []models.MaintenanceEvent{}
	for rows.Next() {
		m, err := scanMaintenance(rows)
		if err != nil {
			return nil, err
		}
		results = append(results, m)
	}
	return results, rows.Err()
}

func (r *Repository) ListMaintenance(ctx context.Context) ([]models.MaintenanceEvent, error) {
	return r.queryMaintenance(ctx, "")
}

func (r *Repository) ListNonTerminalMaintenance(ctx context.Context) ([]models.MaintenanceEvent, error) {
	return r.queryMaintenance(ctx, "WHERE status IN ($1, $2)", models.MaintenanceScheduled, models.MaintenanceInProgress)
}

// UpdateMaintenanceStatus moves an event from one status to another.
// It returns models.ErrConflict when the event is no longer in from.
func (r *Repository) UpdateMaintenanceStatus(ctx context.Context, id string, from, to models.MaintenanceStatus) error {
	tag, err := r.Store.Pool.Exec(ctx,
		`UPDATE maintenance_events SET status=$1, updated_at=now() WHERE id=$2 AND status=$3`, to, id, from)
	if err != nil {
		return err
	}
	if tag.RowsAffected() > 0 {
		return nil
	}
	if _, err := r.GetMaintenance(ctx, id); err != nil {
		return err
	}
	return fmt.Errorf("maintenance %s is no longer %s: %w", id, from, models.ErrConflict)
}

func (r *Repository) GetStatusCache(ctx context.Context) (*models.StatusCacheRecord, error) {
	var rec models.StatusCacheRecord
	var payload []byte
	err := r.Store.Pool.QueryRow(ctx, `SELECT state, uptime_24h, payload, updated_at FROM status_cache WHERE id=1`).
		Scan(&rec.State, &rec.Uptime24h, &payload, &rec.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	rec.Payload = payload
	return &rec, nil
}

func (r *Repository) UpsertStatusCache(ctx context.Context, rec models.StatusCacheRecord) error {
	_, err := r.Store.Pool.Exec(ctx, `
		INSERT INTO status_cache (id, state, uptime_24h, payload, updated_at) VALUES (1,$1,$2,$3,$4)
		ON CONFLICT (id) DO UPDATE SET state=EXCLUDED.state, uptime_24h=EXCLUDED.uptime_24h, payload=EXCLUDED.payload, updated_at=EXCLUDED.updated_at`,
		rec.State, rec.Uptime24h, []byte(rec.Payload), rec.UpdatedAt,
	)
	return err
}
