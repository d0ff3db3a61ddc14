package monitor

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/bhoyee/IncidentPulse-sub000/memory"
	"github.com/bhoyee/IncidentPulse-sub000/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type staticPlans map[string]models.PlanLimits

func (p staticPlans) LimitsFor(plan string) models.PlanLimits { return p[plan] }

type fakeSummarizer struct {
	summary string
	err     error
	lines   []string
	service string
}

func (f *fakeSummarizer) Summarize(_ context.Context, lines []string, serviceName string) (string, error) {
	f.lines = lines
	f.service = serviceName
	return f.summary, f.err
}

type recordingNotifier struct {
	opened []models.Incident
}

func (n *recordingNotifier) IncidentOpened(_ context.Context, incident models.Incident) error {
	n.opened = append(n.opened, incident)
	return errors.New("bus offline")
}

type fixture struct {
	t        *testing.T
	store    *memory.Store
	eval     *Evaluator
	gate     *MemoryCooldown
	buffer   *LogBuffer
	notifier *recordingNotifier
	svc      models.Service
	now      time.Time
}

func newFixture(t *testing.T, settings models.TriggerSettings) *fixture {
	t.Helper()

	f := &fixture{
		t:        t,
		store:    memory.NewStore(""),
		gate:     NewMemoryCooldown(),
		buffer:   NewLogBuffer(),
		notifier: &recordingNotifier{},
		now:      time.Date(2026, 4, 15, 12, 0, 0, 0, time.UTC),
	}
	f.store.Now = func() time.Time { return f.now }

	require.NoError(t, f.store.PutOrganization(models.Organization{ID: "org-1", Plan: "free"}))
	require.NoError(t, f.store.PutUser(models.User{ID: "admin-1", OrganizationID: "org-1", Role: models.RoleAdmin, Active: true}))
	svc, err := f.store.PutService(models.Service{ID: "svc-checkout", OrganizationID: "org-1", Name: "checkout"})
	require.NoError(t, err)
	f.svc = svc
	require.NoError(t, f.store.PutTriggerSettings(context.Background(), "org-1", settings))

	cache := NewSettingsCache(f.store, models.DefaultTriggerSettings(), time.Minute)
	cache.now = func() time.Time { return f.now }

	limit := 50
	f.eval = &Evaluator{
		Buffer:    f.buffer,
		Cooldown:  f.gate,
		Settings:  cache,
		Incidents: f.store,
		Updates:   f.store,
		Services:  f.store,
		Orgs:      f.store,
		Plans:     staticPlans{"free": {MaxIncidentsPerMonth: &limit}},
		Identity:  f.store,
		Notifier:  f.notifier,
		Now:       func() time.Time { return f.now },
	}
	return f
}

func scenarioSettings() models.TriggerSettings {
	return models.TriggerSettings{Enabled: true, ErrorThreshold: 20, WindowSeconds: 60, CooldownSeconds: 300}
}

// ingestErrors sends n error events spaced step apart, advancing the clock with each one
func (f *fixture) ingestErrors(n int, step time.Duration) []IngestResult {
	f.t.Helper()
	results := make([]IngestResult, 0, n)
	for i := 0; i < n; i++ {
		if i > 0 {
			f.now = f.now.Add(step)
		}
		res, err := f.eval.Ingest(context.Background(), "org-1", "checkout", models.LogEvent{
			Timestamp: f.now,
			Level:     models.LevelError,
			Message:   fmt.Sprintf("payment provider timeout #%d", i),
		})
		require.NoError(f.t, err)
		results = append(results, res)
	}
	return results
}

func (f *fixture) incidents() []models.Incident {
	f.t.Helper()
	incidents, err := f.store.ListIncidents(context.Background())
	require.NoError(f.t, err)
	return incidents
}

func TestEvaluator_ThresholdOpensOneIncident(t *testing.T) {
	f := newFixture(t, scenarioSettings())

	results := f.ingestErrors(25, 2*time.Second)

	incidents := f.incidents()
	require.Len(t, incidents, 1)
	incident := incidents[0]
	assert.Equal(t, models.SeverityHigh, incident.Severity)
	assert.Equal(t, models.StatusInvestigating, incident.Status)
	assert.Equal(t, "Auto-detected errors in checkout", incident.Title)
	assert.Equal(t, "admin-1", incident.CreatedBy)
	assert.Equal(t, "svc-checkout", incident.ServiceID)

	assert.Equal(t, MsgIngested, results[18].Message)
	assert.Equal(t, MsgIncidentCreated, results[19].Message)
	require.NotNil(t, results[19].Incident)
	assert.Equal(t, 20, results[19].ErrorCount)
	for _, res := range results[20:] {
		assert.Equal(t, MsgCooldown, res.Message)
	}

	assert.Contains(t, incident.Description, "Detected 20 error logs for checkout in the last 60 seconds.")
	assert.Equal(t, 5, strings.Count(incident.Description, "\n- "))
	assert.Contains(t, incident.Description, "payment provider timeout #19")
	assert.NotContains(t, incident.Description, "payment provider timeout #14")

	require.Len(t, f.notifier.opened, 1, "notifier failures do not undo the incident")
}

func TestEvaluator_CooldownSuppressesSecondIncident(t *testing.T) {
	f := newFixture(t, scenarioSettings())

	f.ingestErrors(25, 2*time.Second)
	require.Len(t, f.incidents(), 1)
	triggeredAt, ok := f.gate.LastTrigger(models.TriggerKey{OrganizationID: "org-1", ServiceID: "svc-checkout"})
	require.True(t, ok)

	f.now = f.now.Add(120 * time.Second)
	results := f.ingestErrors(25, time.Second)
	assert.Len(t, f.incidents(), 1)
	assert.Equal(t, MsgCooldown, results[len(results)-1].Message)

	f.now = triggeredAt.Add(300 * time.Second)
	f.ingestErrors(20, 0)
	assert.Len(t, f.incidents(), 2, "a new incident is allowed once the cooldown elapsed")
}

func TestEvaluator_ErrorsOutsideWindowDoNotCount(t *testing.T) {
	f := newFixture(t, scenarioSettings())

	f.ingestErrors(19, time.Second)
	f.now = f.now.Add(61 * time.Second)
	results := f.ingestErrors(5, time.Second)

	assert.Empty(t, f.incidents())
	assert.Equal(t, 5, results[len(results)-1].ErrorCount)
}

func TestEvaluator_NonErrorLevelsDoNotCount(t *testing.T) {
	f := newFixture(t, scenarioSettings())

	for i := 0; i < 30; i++ {
		_, err := f.eval.Ingest(context.Background(), "org-1", "checkout", models.LogEvent{Timestamp: f.now, Level: models.LevelWarn, Message: "slow"})
		require.NoError(t, err)
	}
	assert.Empty(t, f.incidents())
}

func TestEvaluator_MonthlyCapReached(t *testing.T) {
	f := newFixture(t, scenarioSettings())
	ctx := context.Background()

	for i := 0; i < 50; i++ {
		_, err := f.store.CreateIncident(ctx, models.Incident{OrganizationID: "org-1", Status: models.StatusResolved, CreatedAt: MonthStart(f.now).Add(time.Duration(i) * time.Minute)})
		require.NoError(t, err)
	}
	_, err := f.store.CreateIncident(ctx, models.Incident{OrganizationID: "org-1", Status: models.StatusResolved, CreatedAt: MonthStart(f.now).Add(-time.Hour)})
	require.NoError(t, err)

	results := f.ingestErrors(25, time.Second)

	assert.Len(t, f.incidents(), 51, "no auto-incident on top of the seeded ones")
	assert.Equal(t, MsgCapReached, results[len(results)-1].Message)
	_, consumed := f.gate.LastTrigger(models.TriggerKey{OrganizationID: "org-1", ServiceID: "svc-checkout"})
	assert.False(t, consumed, "a skipped creation does not consume the cooldown")
}

func TestEvaluator_UncappedPlan(t *testing.T) {
	f := newFixture(t, scenarioSettings())
	require.NoError(t, f.store.PutOrganization(models.Organization{ID: "org-1", Plan: "enterprise"}))

	for i := 0; i < 60; i++ {
		_, err := f.store.CreateIncident(context.Background(), models.Incident{OrganizationID: "org-1", Status: models.StatusResolved, CreatedAt: f.now})
		require.NoError(t, err)
	}

	f.ingestErrors(20, time.Second)
	assert.Len(t, f.incidents(), 61)
}

func TestEvaluator_NoCreatorSkipsWithoutConsumingCooldown(t *testing.T) {
	f := newFixture(t, scenarioSettings())
	require.NoError(t, f.store.PutUser(models.User{ID: "admin-1", OrganizationID: "org-1", Role: models.RoleAdmin, Active: false}))

	results := f.ingestErrors(20, time.Second)
	assert.Empty(t, f.incidents())
	assert.Equal(t, MsgNoCreator, results[len(results)-1].Message)

	require.NoError(t, f.store.PutUser(models.User{ID: "admin-1", OrganizationID: "org-1", Role: models.RoleAdmin, Active: true}))
	results = f.ingestErrors(1, time.Second)
	assert.Equal(t, MsgIncidentCreated, results[0].Message)
	assert.Len(t, f.incidents(), 1)
}

func TestEvaluator_SystemUserPreferredOverAdmin(t *testing.T) {
	f := newFixture(t, scenarioSettings())
	require.NoError(t, f.store.PutUser(models.User{ID: "pulse-bot", Email: "bot@pulse.dev", Role: "system", Active: true}))
	f.store.SetSystemUserEmail("bot@pulse.dev")

	f.ingestErrors(20, time.Second)

	incidents := f.incidents()
	require.Len(t, incidents, 1)
	assert.Equal(t, "pulse-bot", incidents[0].CreatedBy)
}

func TestEvaluator_DisabledStillBuffers(t *testing.T) {
	settings := scenarioSettings()
	settings.Enabled = false
	f := newFixture(t, settings)

	results := f.ingestErrors(30, time.Second)

	assert.Empty(t, f.incidents())
	assert.Equal(t, MsgDisabled, results[0].Message)
	assert.Equal(t, 30, f.buffer.size(models.TriggerKey{OrganizationID: "org-1", ServiceID: "svc-checkout"}))
}

func TestEvaluator_RetentionCoversWindow(t *testing.T) {
	settings := scenarioSettings()
	settings.WindowSeconds = 600
	f := newFixture(t, settings)
	f.eval.Retention = time.Minute

	f.ingestErrors(3, 200*time.Second)

	assert.Equal(t, 3, f.buffer.size(models.TriggerKey{OrganizationID: "org-1", ServiceID: "svc-checkout"}))
}

func TestEvaluator_AttachesAISummary(t *testing.T) {
	settings := scenarioSettings()
	settings.AISummaryEnabled = true
	settings.SummaryLineCap = 10
	f := newFixture(t, settings)
	summarizer := &fakeSummarizer{summary: "  Payment provider is timing out.  "}
	f.eval.Summarizer = summarizer

	results := f.ingestErrors(20, time.Second)
	incident := results[len(results)-1].Incident
	require.NotNil(t, incident)

	assert.Len(t, summarizer.lines, 10)
	assert.Equal(t, "checkout", summarizer.service)
	assert.Contains(t, summarizer.lines[9], "[ERROR] payment provider timeout #19")

	updates, err := f.store.ListIncidentUpdates(context.Background(), incident.ID)
	require.NoError(t, err)
	require.Len(t, updates, 1)
	assert.Equal(t, "AI summary:\nPayment provider is timing out.", updates[0].Message)
	assert.Equal(t, incident.CreatedBy, updates[0].CreatedBy)
}

func TestEvaluator_SummaryFailureKeepsIncident(t *testing.T) {
	settings := scenarioSettings()
	settings.AISummaryEnabled = true
	f := newFixture(t, settings)
	f.eval.Summarizer = &fakeSummarizer{err: errors.New("timeout")}

	results := f.ingestErrors(20, time.Second)
	incident := results[len(results)-1].Incident
	require.NotNil(t, incident)

	updates, err := f.store.ListIncidentUpdates(context.Background(), incident.ID)
	require.NoError(t, err)
	assert.Empty(t, updates)
}

func TestEvaluator_SummaryDisabledSkipsSummarizer(t *testing.T) {
	f := newFixture(t, scenarioSettings())
	summarizer := &fakeSummarizer{summary: "unused"}
	f.eval.Summarizer = summarizer

	f.ingestErrors(20, time.Second)
	assert.Nil(t, summarizer.lines)
}

func TestEvaluator_Rejections(t *testing.T) {
	f := newFixture(t, scenarioSettings())
	ctx := context.Background()

	_, err := f.eval.Ingest(ctx, "org-1", "billing", models.LogEvent{Level: models.LevelError, Message: "x"})
	assert.ErrorIs(t, err, ErrUnknownService)

	_, err = f.eval.Ingest(ctx, "org-2", "checkout", models.LogEvent{Level: models.LevelError, Message: "x"})
	assert.ErrorIs(t, err, ErrUnknownService, "services are scoped to the organization")

	_, err = f.eval.Ingest(ctx, "org-1", "checkout", models.LogEvent{Level: "fatal", Message: "x"})
	assert.ErrorIs(t, err, ErrInvalidEvent)

	_, err = f.eval.Ingest(ctx, "org-1", "checkout", models.LogEvent{Level: models.LevelError, Message: "   "})
	assert.ErrorIs(t, err, ErrInvalidEvent)

	_, err = f.eval.Ingest(ctx, "org-1", "", models.LogEvent{Level: models.LevelError, Message: "x"})
	assert.ErrorIs(t, err, ErrInvalidEvent)
}

func TestEvaluator_ResolvesServiceBySlug(t *testing.T) {
	f := newFixture(t, scenarioSettings())
	_, err := f.store.PutService(models.Service{ID: "svc-pay", OrganizationID: "org-1", Name: "Payments Gateway"})
	require.NoError(t, err)

	res, err := f.eval.Ingest(context.Background(), "org-1", "payments-gateway", models.LogEvent{Level: models.LevelInfo, Message: "ok"})
	require.NoError(t, err)
	assert.Equal(t, MsgIngested, res.Message)
}

func TestIncidentDescription(t *testing.T) {
	ts := time.Date(2026, 4, 15, 12, 0, 0, 0, time.UTC)
	desc := IncidentDescription("checkout", 25, 60, []models.LogEvent{{Timestamp: ts, Message: "db timeout"}})
	assert.Equal(t, "Detected 25 error logs for checkout in the last 60 seconds.\n\nRecent errors:\n- 2026-04-15T12:00:00Z db timeout", desc)

	assert.Equal(t, "Detected 1 error logs for api in the last 30 seconds.", IncidentDescription("api", 1, 30, nil))
}

func TestMonthStart(t *testing.T) {
	got := MonthStart(time.Date(2026, 2, 28, 23, 59, 0, 0, time.FixedZone("X", -5*3600)))
	assert.Equal(t, time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC), got)
}
