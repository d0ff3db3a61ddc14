package monitor

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/bhoyee/IncidentPulse-sub000/models"
	"github.com/google/uuid"
)

var (
	// ErrUnknownService rejects events for a service the organization does not have
	ErrUnknownService = errors.New("unknown service")
	// ErrInvalidEvent rejects structurally invalid log events
	ErrInvalidEvent = errors.New("invalid log event")
)

// Ingest acknowledgements. Soft failures are reported here, never as errors.
const (
	MsgIngested        = "ingested"
	MsgDisabled        = "ingested, auto-incidents disabled"
	MsgCooldown        = "ingested, cooldown active"
	MsgCapReached      = "ingested, cap reached"
	MsgNoCreator       = "ingested, no creator available"
	MsgIncidentCreated = "ingested, incident created"
)

const (
	DefaultBufferTTL     = 5 * time.Minute
	recentErrorsInDetail = 5
)

// IncidentStore persists incidents
type IncidentStore interface {
	CreateIncident(ctx context.Context, incident models.Incident) (models.Incident, error)
	// CountIncidentsSince counts incidents created at or after since; an empty orgID counts all organizations
	CountIncidentsSince(ctx context.Context, orgID string, since time.Time) (int, error)
}

// IncidentUpdateStore persists incident timeline notes
type IncidentUpdateStore interface {
	CreateIncidentUpdate(ctx context.Context, update models.IncidentUpdate) (models.IncidentUpdate, error)
}

// ServiceStore resolves services by name or slug; returns models.ErrNotFound when missing
type ServiceStore interface {
	FindService(ctx context.Context, orgID, nameOrSlug string) (models.Service, error)
}

// OrganizationStore returns the billing plan of an organization
type OrganizationStore interface {
	OrganizationPlan(ctx context.Context, orgID string) (string, error)
}

// PlanLimitResolver maps a plan to its quotas
type PlanLimitResolver interface {
	LimitsFor(plan string) models.PlanLimits
}

// IdentityResolver finds who an automatic incident is created by.
// Both methods return an empty id when nobody qualifies.
type IdentityResolver interface {
	SystemUserID(ctx context.Context) (string, error)
	FirstActiveAdmin(ctx context.Context, orgID string) (string, error)
}

// Summarizer condenses log lines. Implementations apply their own timeout.
type Summarizer interface {
	Summarize(ctx context.Context, lines []string, serviceName string) (string, error)
}

// Notifier is told about incidents the evaluator opens
type Notifier interface {
	IncidentOpened(ctx context.Context, incident models.Incident) error
}

// IngestResult is returned to ingestion clients
type IngestResult struct {
	Message    string           `json:"message"`
	ErrorCount int              `json:"error_count"`
	Incident   *models.Incident `json:"incident,omitempty"`
}

// Evaluator buffers log events and opens incidents when the error rate crosses the threshold
type Evaluator struct {
	Buffer     WindowedCounterStore
	Cooldown   CooldownGate
	Settings   *SettingsCache
	Incidents  IncidentStore
	Updates    IncidentUpdateStore
	Services   ServiceStore
	Orgs       OrganizationStore
	Plans      PlanLimitResolver
	Identity   IdentityResolver
	Summarizer Summarizer
	Notifier   Notifier

	// Retention is how long events stay buffered; it never drops below the window
	Retention time.Duration
	Now       func() time.Time
}

func (e *Evaluator) now() time.Time {
	if e.Now != nil {
		return e.Now()
	}
	return time.Now()
}

// Ingest validates an event for the named service and evaluates it
func (e *Evaluator) Ingest(ctx context.Context, orgID, serviceName string, event models.LogEvent) (IngestResult, error) {
	if err := validateEvent(event); err != nil {
		return IngestResult{}, err
	}
	if strings.TrimSpace(serviceName) == "" {
		return IngestResult{}, fmt.Errorf("%w: service is required", ErrInvalidEvent)
	}

	svc, err := e.Services.FindService(ctx, orgID, strings.TrimSpace(serviceName))
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return IngestResult{}, fmt.Errorf("%w: %s", ErrUnknownService, serviceName)
		}
		return IngestResult{}, fmt.Errorf("failed to resolve service: %w", err)
	}

	return e.Evaluate(ctx, svc, event), nil
}

func validateEvent(event models.LogEvent) error {
	switch event.Level {
	case models.LevelDebug, models.LevelInfo, models.LevelWarn, models.LevelError:
	default:
		return fmt.Errorf("%w: unknown level %q", ErrInvalidEvent, event.Level)
	}
	if strings.TrimSpace(event.Message) == "" {
		return fmt.Errorf("%w: message is required", ErrInvalidEvent)
	}
	return nil
}

// Evaluate buffers the event and opens an incident when warranted.
// Nothing in here fails the ingestion; problems are logged and reported in the message.
func (e *Evaluator) Evaluate(ctx context.Context, svc models.Service, event models.LogEvent) IngestResult {
	now := e.now()
	if event.Timestamp.IsZero() {
		event.Timestamp = now
	}
	key := models.TriggerKey{OrganizationID: svc.OrganizationID, ServiceID: svc.ID}
	settings := e.Settings.Get(ctx, svc.OrganizationID)
	window := time.Duration(settings.WindowSeconds) * time.Second

	if err := e.Buffer.Append(ctx, key, event); err != nil {
		log.Printf("[INTAKE] Failed to buffer event for %s: %v\n", key, err)
		return IngestResult{Message: MsgIngested}
	}
	if err := e.Buffer.Prune(ctx, key, now, e.retention(window)); err != nil {
		log.Printf("[INTAKE] Failed to prune buffer for %s: %v\n", key, err)
	}

	if !settings.Enabled {
		return IngestResult{Message: MsgDisabled}
	}

	cutoff := now.Add(-window)
	count, err := e.Buffer.CountSince(ctx, key, models.LevelError, cutoff)
	if err != nil {
		log.Printf("[TRIGGER] Failed to count errors for %s: %v\n", key, err)
		return IngestResult{Message: MsgIngested}
	}
	result := IngestResult{Message: MsgIngested, ErrorCount: count}
	if count < settings.ErrorThreshold {
		return result
	}

	cooldown := time.Duration(settings.CooldownSeconds) * time.Second
	acquired, err := e.Cooldown.TryAcquire(ctx, key, now, cooldown)
	if err != nil {
		log.Printf("[TRIGGER] Cooldown gate unavailable for %s: %v\n", key, err)
		return result
	}
	if !acquired {
		result.Message = MsgCooldown
		return result
	}

	// From here on a failed creation must hand the cooldown back.
	release := func() {
		if err := e.Cooldown.Release(ctx, key, now); err != nil {
			log.Printf("[TRIGGER] Failed to release cooldown for %s: %v\n", key, err)
		}
	}

	if e.capReached(ctx, svc.OrganizationID, now) {
		release()
		result.Message = MsgCapReached
		return result
	}

	creator := e.resolveCreator(ctx, svc.OrganizationID)
	if creator == "" {
		log.Printf("[TRIGGER] No creator available for org %s, skipping auto-incident for %s\n", svc.OrganizationID, svc.Name)
		release()
		result.Message = MsgNoCreator
		return result
	}

	entries, err := e.Buffer.Entries(ctx, key)
	if err != nil {
		log.Printf("[INTAKE] Failed to read buffer for %s: %v\n", key, err)
	}

	incident := models.Incident{
		ID:             uuid.New().String(),
		OrganizationID: svc.OrganizationID,
		ServiceID:      svc.ID,
		Title:          IncidentTitle(svc.Name),
		Description:    IncidentDescription(svc.Name, count, settings.WindowSeconds, recentErrors(entries, cutoff, recentErrorsInDetail)),
		Severity:       models.SeverityHigh,
		Status:         models.StatusInvestigating,
		CreatedBy:      creator,
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	created, err := e.Incidents.CreateIncident(ctx, incident)
	if err != nil {
		log.Printf("[TRIGGER] Failed to create auto-incident for %s: %v\n", svc.Name, err)
		release()
		return result
	}

	log.Printf("[TRIGGER] Opened incident %s for %s (%d errors in %ds)\n", created.ID, svc.Name, count, settings.WindowSeconds)

	if e.Notifier != nil {
		if err := e.Notifier.IncidentOpened(ctx, created); err != nil {
			log.Printf("[TRIGGER] Failed to announce incident %s: %v\n", created.ID, err)
		}
	}

	if settings.AISummaryEnabled && e.Summarizer != nil {
		e.attachSummary(ctx, created, svc, entries, settings.SummaryLineCap, now)
	}

	result.Message = MsgIncidentCreated
	result.Incident = &created
	return result
}

func (e *Evaluator) retention(window time.Duration) time.Duration {
	ttl := e.Retention
	if ttl <= 0 {
		ttl = DefaultBufferTTL
	}
	if ttl < window {
		ttl = window
	}
	return ttl
}

// capReached reports whether the organization already used its monthly incident quota.
// Lookup failures count as reached.
func (e *Evaluator) capReached(ctx context.Context, orgID string, now time.Time) bool {
	if e.Orgs == nil || e.Plans == nil {
		return false
	}

	plan, err := e.Orgs.OrganizationPlan(ctx, orgID)
	if err != nil {
		log.Printf("[TRIGGER] Failed to load plan for org %s: %v\n", orgID, err)
		return true
	}
	limits := e.Plans.LimitsFor(plan)
	if limits.MaxIncidentsPerMonth == nil {
		return false
	}

	used, err := e.Incidents.CountIncidentsSince(ctx, orgID, MonthStart(now))
	if err != nil {
		log.Printf("[TRIGGER] Failed to count monthly incidents for org %s: %v\n", orgID, err)
		return true
	}
	if used >= *limits.MaxIncidentsPerMonth {
		log.Printf("[TRIGGER] Org %s reached its monthly incident cap (%d/%d)\n", orgID, used, *limits.MaxIncidentsPerMonth)
		return true
	}
	return false
}

func (e *Evaluator) resolveCreator(ctx context.Context, orgID string) string {
	if e.Identity == nil {
		return ""
	}

	id, err := e.Identity.SystemUserID(ctx)
	if err != nil {
		log.Printf("[TRIGGER] Failed to resolve system user: %v\n", err)
	}
	if id != "" {
		return id
	}

	id, err = e.Identity.FirstActiveAdmin(ctx, orgID)
	if err != nil {
		log.Printf("[TRIGGER] Failed to resolve an admin for org %s: %v\n", orgID, err)
		return ""
	}
	return id
}

func (e *Evaluator) attachSummary(ctx context.Context, incident models.Incident, svc models.Service, entries []models.LogEvent, lineCap int, now time.Time) {
	if lineCap <= 0 || lineCap > models.MaxSummaryLines {
		lineCap = models.MaxSummaryLines
	}
	if len(entries) > lineCap {
		entries = entries[len(entries)-lineCap:]
	}
	lines := make([]string, 0, len(entries))
	for _, ev := range entries {
		lines = append(lines, FormatLogLine(ev))
	}

	summary, err := e.Summarizer.Summarize(ctx, lines, svc.Name)
	if err != nil {
		log.Printf("[AI] Summary failed for incident %s: %v\n", incident.ID, err)
		return
	}
	summary = strings.TrimSpace(summary)
	if summary == "" {
		return
	}

	_, err = e.Updates.CreateIncidentUpdate(ctx, models.IncidentUpdate{
		ID:         uuid.New().String(),
		IncidentID: incident.ID,
		Message:    "AI summary:\n" + summary,
		CreatedBy:  incident.CreatedBy,
		CreatedAt:  now,
	})
	if err != nil {
		log.Printf("[AI] Failed to attach summary to incident %s: %v\n", incident.ID, err)
		return
	}
	log.Printf("[AI] Attached summary to incident %s\n", incident.ID)
}

// IncidentTitle is the title of an automatically opened incident
func IncidentTitle(serviceName string) string {
	return "Auto-detected errors in " + serviceName
}

// IncidentDescription lists the matched count and the most recent error messages
func IncidentDescription(serviceName string, count, windowSeconds int, recent []models.LogEvent) string {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("Detected %d error logs for %s in the last %d seconds.\n", count, serviceName, windowSeconds))
	if len(recent) > 0 {
		sb.WriteString("\nRecent errors:\n")
		for _, ev := range recent {
			sb.WriteString(fmt.Sprintf("- %s %s\n", ev.Timestamp.UTC().Format(time.RFC3339), ev.Message))
		}
	}
	return strings.TrimRight(sb.String(), "\n")
}

// FormatLogLine renders an event the way it is shown to the summarizer
func FormatLogLine(ev models.LogEvent) string {
	return fmt.Sprintf("%s [%s] %s", ev.Timestamp.UTC().Format(time.RFC3339), strings.ToUpper(string(ev.Level)), ev.Message)
}

// recentErrors returns up to limit error events at or after cutoff, newest first
func recentErrors(entries []models.LogEvent, cutoff time.Time, limit int) []models.LogEvent {
	recent := make([]models.LogEvent, 0, limit)
	for i := len(entries) - 1; i >= 0 && len(recent) < limit; i-- {
		ev := entries[i]
		if ev.Level == models.LevelError && !ev.Timestamp.Before(cutoff) {
			recent = append(recent, ev)
		}
	}
	return recent
}

// MonthStart is the first instant of now's month in UTC
func MonthStart(now time.Time) time.Time {
	now = now.UTC()
	return time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)
}
