package storage

import (
	"context"
	"encoding/json"
	"os"
	"testing"
	"time"

	"github.com/bhoyee/IncidentPulse-sub000/models"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestRepository(t *testing.T) (*Repository, string) {
	t.Helper()
	dsn := os.Getenv("TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}
	ctx := context.Background()
	store, err := NewStore(ctx, dsn)
	require.NoError(t, err)
	t.Cleanup(store.Close)
	require.NoError(t, store.Migrate(ctx))

	email := "pulse-bot-" + uuid.NewString() + "@example.com"
	return NewRepository(store, email), email
}

func TestRepository_SettingsAndIdentity(t *testing.T) {
	repo, email := setupTestRepository(t)
	ctx := context.Background()
	orgID := uuid.NewString()

	settings, err := repo.GetTriggerSettings(ctx, orgID)
	require.NoError(t, err)
	assert.Nil(t, settings)

	require.NoError(t, repo.PutTriggerSettings(ctx, orgID, models.TriggerSettings{Enabled: true, ErrorThreshold: 7, WindowSeconds: 30, CooldownSeconds: 90, SummaryLineCap: 50}))
	settings, err = repo.GetTriggerSettings(ctx, orgID)
	require.NoError(t, err)
	require.NotNil(t, settings)
	assert.Equal(t, 7, settings.ErrorThreshold)

	require.NoError(t, repo.PutOrganization(ctx, models.Organization{ID: orgID, Name: "Acme", Plan: "pro"}))
	plan, err := repo.OrganizationPlan(ctx, orgID)
	require.NoError(t, err)
	assert.Equal(t, "pro", plan)
	_, err = repo.OrganizationPlan(ctx, uuid.NewString())
	assert.ErrorIs(t, err, models.ErrNotFound)

	admin, err := repo.FirstActiveAdmin(ctx, orgID)
	require.NoError(t, err)
	assert.Empty(t, admin)

	base := time.Now().UTC().Add(-time.Hour)
	_, err = repo.PutUser(ctx, models.User{ID: "late-" + orgID, OrganizationID: orgID, Role: models.RoleAdmin, Active: true, CreatedAt: base.Add(time.Minute)})
	require.NoError(t, err)
	_, err = repo.PutUser(ctx, models.User{ID: "early-" + orgID, OrganizationID: orgID, Role: models.RoleAdmin, Active: true, CreatedAt: base})
	require.NoError(t, err)
	admin, err = repo.FirstActiveAdmin(ctx, orgID)
	require.NoError(t, err)
	assert.Equal(t, "early-"+orgID, admin)

	system, err := repo.SystemUserID(ctx)
	require.NoError(t, err)
	assert.Empty(t, system)
	bot, err := repo.PutUser(ctx, models.User{Email: email, Role: "system", Active: true})
	require.NoError(t, err)
	system, err = repo.SystemUserID(ctx)
	require.NoError(t, err)
	assert.Equal(t, bot.ID, system)
}

func TestRepository_IncidentsAndUpdates(t *testing.T) {
	repo, _ := setupTestRepository(t)
	ctx := context.Background()
	orgID := uuid.NewString()

	svc, err := repo.PutService(ctx, models.Service{OrganizationID: orgID, Name: "Checkout API", Slug: "checkout-api"})
	require.NoError(t, err)
	found, err := repo.FindService(ctx, orgID, "CHECKOUT-api")
	require.NoError(t, err)
	assert.Equal(t, svc.ID, found.ID)
	_, err = repo.FindService(ctx, uuid.NewString(), "checkout-api")
	assert.ErrorIs(t, err, models.ErrNotFound)

	since := time.Now().UTC().Add(-time.Minute)
	inc, err := repo.CreateIncident(ctx, models.Incident{OrganizationID: orgID, ServiceID: svc.ID, Title: "Auto-detected errors in Checkout API", Severity: models.SeverityHigh, Status: models.StatusInvestigating})
	require.NoError(t, err)
	_, err = repo.CreateIncident(ctx, models.Incident{OrganizationID: orgID, Title: "no service", Severity: models.SeverityLow, Status: models.StatusInvestigating})
	require.NoError(t, err)

	count, err := repo.CountIncidentsSince(ctx, orgID, since)
	require.NoError(t, err)
	assert.Equal(t, 2, count)

	resolvedAt := time.Now().UTC()
	resolved, err := repo.CreateIncident(ctx, models.Incident{OrganizationID: orgID, Title: "old", Severity: models.SeverityMedium, Status: models.StatusResolved, ResolvedAt: &resolvedAt})
	require.NoError(t, err)

	_, err = repo.CreateIncidentUpdate(ctx, models.IncidentUpdate{IncidentID: uuid.NewString(), Message: "x"})
	assert.ErrorIs(t, err, models.ErrNotFound)
	_, err = repo.CreateIncidentUpdate(ctx, models.IncidentUpdate{IncidentID: inc.ID, Message: "AI summary:\nprovider timeouts"})
	require.NoError(t, err)
	updates, err := repo.ListIncidentUpdates(ctx, inc.ID)
	require.NoError(t, err)
	require.Len(t, updates, 1)

	latest, err := repo.LatestIncidentUpdateCreatedAt(ctx)
	require.NoError(t, err)
	assert.False(t, latest.IsZero())

	active, err := repo.ListActiveIncidents(ctx)
	require.NoError(t, err)
	var got *models.Incident
	for i := range active {
		assert.NotEqual(t, resolved.ID, active[i].ID)
		if active[i].ID == inc.ID {
			got = &active[i]
		}
	}
	require.NotNil(t, got)
	assert.Equal(t, svc.ID, got.ServiceID)
	assert.Equal(t, models.SeverityHigh, got.Severity)
	assert.Nil(t, got.ResolvedAt)
}

func TestRepository_MaintenanceAndStatusCache(t *testing.T) {
	repo, _ := setupTestRepository(t)
	ctx := context.Background()
	now := time.Now().UTC()

	m, err := repo.CreateMaintenance(ctx, models.MaintenanceEvent{
		OrganizationID: uuid.NewString(),
		Title:          "db upgrade",
		Status:         models.MaintenanceScheduled,
		StartsAt:       now.Add(-time.Minute),
		EndsAt:         now.Add(time.Hour),
		AppliesToAll:   true,
	})
	require.NoError(t, err)

	open, err := repo.ListNonTerminalMaintenance(ctx)
	require.NoError(t, err)
	assert.Contains(t, maintenanceIDs(open), m.ID)

	err = repo.UpdateMaintenanceStatus(ctx, m.ID, models.MaintenanceInProgress, models.MaintenanceCompleted)
	assert.ErrorIs(t, err, models.ErrConflict, "the event is not in progress")
	err = repo.UpdateMaintenanceStatus(ctx, uuid.NewString(), models.MaintenanceScheduled, models.MaintenanceCanceled)
	assert.ErrorIs(t, err, models.ErrNotFound)

	require.NoError(t, repo.UpdateMaintenanceStatus(ctx, m.ID, models.MaintenanceScheduled, models.MaintenanceCanceled))
	got, err := repo.GetMaintenance(ctx, m.ID)
	require.NoError(t, err)
	assert.Equal(t, models.MaintenanceCanceled, got.Status)

	open, err = repo.ListNonTerminalMaintenance(ctx)
	require.NoError(t, err)
	assert.NotContains(t, maintenanceIDs(open), m.ID)

	payload, err := json.Marshal(models.StatusPayload{OverallState: models.StateOperational, Services: []models.StatusService{}})
	require.NoError(t, err)
	require.NoError(t, repo.UpsertStatusCache(ctx, models.StatusCacheRecord{State: models.StateOperational, Uptime24h: 100, Payload: payload, UpdatedAt: now}))
	rec, err := repo.GetStatusCache(ctx)
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.True(t, rec.HasServices())
	assert.WithinDuration(t, now, rec.UpdatedAt, time.Millisecond)
}

func maintenanceIDs(events []models.MaintenanceEvent) []string {
	ids := make([]string, 0, len(events))
	for _, e := range events {
		ids = append(ids, e.ID)
	}
	return ids
}
