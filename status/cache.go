package status

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/bhoyee/IncidentPulse-sub000/models"
)

// DefaultStaleAfter is how old a cached snapshot may get before it is recomputed
const DefaultStaleAfter = 15 * time.Second

// IncidentReader is the part of the incident store the status page reads
type IncidentReader interface {
	ListActiveIncidents(ctx context.Context) ([]models.Incident, error)
	CountIncidentsSince(ctx context.Context, orgID string, since time.Time) (int, error)
	LatestIncidentUpdatedAt(ctx context.Context) (time.Time, error)
}

type UpdateReader interface {
	LatestIncidentUpdateCreatedAt(ctx context.Context) (time.Time, error)
}

type ServiceLister interface {
	ListServices(ctx context.Context) ([]models.Service, error)
}

// RecordStore persists the status snapshot singleton; Get returns nil when nothing is stored
type RecordStore interface {
	GetStatusCache(ctx context.Context) (*models.StatusCacheRecord, error)
	UpsertStatusCache(ctx context.Context, record models.StatusCacheRecord) error
}

// Cache serves the persisted status snapshot and recomputes it when it is stale
type Cache struct {
	Incidents IncidentReader
	Updates   UpdateReader
	Services  ServiceLister
	Records   RecordStore

	StaleAfter time.Duration
	Now        func() time.Time
}

// NewCache creates a status cache over the given stores
func NewCache(incidents IncidentReader, updates UpdateReader, services ServiceLister, records RecordStore, staleAfter time.Duration) *Cache {
	if staleAfter <= 0 {
		staleAfter = DefaultStaleAfter
	}
	return &Cache{
		Incidents:  incidents,
		Updates:    updates,
		Services:   services,
		Records:    records,
		StaleAfter: staleAfter,
		Now:        time.Now,
	}
}

func (c *Cache) now() time.Time {
	if c.Now != nil {
		return c.Now()
	}
	return time.Now()
}

// FetchFresh returns the cached snapshot, recomputing it first when it is missing, legacy or stale
func (c *Cache) FetchFresh(ctx context.Context) (*models.StatusCacheRecord, error) {
	record, err := c.Records.GetStatusCache(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to read status cache: %w", err)
	}

	reason, err := c.staleReason(ctx, record)
	if err != nil {
		return nil, err
	}
	if reason == "" {
		return record, nil
	}

	log.Printf("[STATUS] Recomputing snapshot: %s\n", reason)
	return c.Refresh(ctx)
}

func (c *Cache) staleReason(ctx context.Context, record *models.StatusCacheRecord) (string, error) {
	if record == nil {
		return "no cached snapshot", nil
	}
	if !record.HasServices() {
		return "cached snapshot has no services", nil
	}
	if c.staleByAge(record) {
		return "snapshot expired", nil
	}
	stale, err := c.staleByActivity(ctx, record)
	if err != nil {
		return "", err
	}
	if stale {
		return "newer incident activity", nil
	}
	return "", nil
}

func (c *Cache) staleByAge(record *models.StatusCacheRecord) bool {
	return c.now().Sub(record.UpdatedAt) > c.StaleAfter
}

// staleByActivity reports whether an incident or incident update changed after the snapshot was taken
func (c *Cache) staleByActivity(ctx context.Context, record *models.StatusCacheRecord) (bool, error) {
	incidentAt, err := c.Incidents.LatestIncidentUpdatedAt(ctx)
	if err != nil {
		return false, fmt.Errorf("failed to read incident activity: %w", err)
	}
	if incidentAt.After(record.UpdatedAt) {
		return true, nil
	}

	updateAt, err := c.Updates.LatestIncidentUpdateCreatedAt(ctx)
	if err != nil {
		return false, fmt.Errorf("failed to read incident update activity: %w", err)
	}
	return updateAt.After(record.UpdatedAt), nil
}

// Refresh recomputes and persists the snapshot unconditionally
func (c *Cache) Refresh(ctx context.Context) (*models.StatusCacheRecord, error) {
	now := c.now()

	active, err := c.Incidents.ListActiveIncidents(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list active incidents: %w", err)
	}
	services, err := c.Services.ListServices(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list services: %w", err)
	}
	recent, err := c.Incidents.CountIncidentsSince(ctx, "", now.Add(-24*time.Hour))
	if err != nil {
		return nil, fmt.Errorf("failed to count recent incidents: %w", err)
	}

	payload := Build(active, services, recent)
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to encode status payload: %w", err)
	}

	record := models.StatusCacheRecord{
		State:     payload.OverallState,
		Uptime24h: payload.Last24h.UptimePercent,
		Payload:   raw,
		UpdatedAt: now,
	}
	if err := c.Records.UpsertStatusCache(ctx, record); err != nil {
		return nil, fmt.Errorf("failed to persist status cache: %w", err)
	}

	return &record, nil
}

// Payload decodes the snapshot carried by a cache record
func Payload(record *models.StatusCacheRecord) (models.StatusPayload, error) {
	var payload models.StatusPayload
	if record == nil {
		return payload, fmt.Errorf("status cache record: %w", models.ErrNotFound)
	}
	if err := json.Unmarshal(record.Payload, &payload); err != nil {
		return payload, fmt.Errorf("failed to decode status payload: %w", err)
	}
	return payload, nil
}
