package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/bhoyee/IncidentPulse-sub000/models"
	"github.com/google/uuid"
)

// Store is an in-process implementation of every store the engine talks to.
// When filePath is set, every write is persisted to disk as JSON.
type Store struct {
	mu       sync.RWMutex
	filePath string

	organizations map[string]models.Organization
	users         map[string]models.User
	services      map[string]models.Service
	settings      map[string]models.TriggerSettings
	incidents     map[string]*models.Incident
	updates       []models.IncidentUpdate
	maintenance   map[string]*models.MaintenanceEvent
	statusCache   *models.StatusCacheRecord

	systemUserEmail string

	// Now stamps records written by the store itself
	Now func() time.Time
}

// summaryIncidents is how many incidents PrintSummary lists
const summaryIncidents = 5

// StoredData represents the data structure saved to disk
type StoredData struct {
	Organizations map[string]models.Organization      `json:"organizations"`
	Users         map[string]models.User              `json:"users"`
	Services      map[string]models.Service           `json:"services"`
	Settings      map[string]models.TriggerSettings   `json:"settings"`
	Incidents     map[string]*models.Incident         `json:"incidents"`
	Updates       []models.IncidentUpdate             `json:"updates"`
	Maintenance   map[string]*models.MaintenanceEvent `json:"maintenance"`
	StatusCache   *models.StatusCacheRecord           `json:"status_cache,omitempty"`
	LastUpdated   time.Time                           `json:"last_updated"`
}

// NewStore creates a new memory store, loading filePath when it exists
func NewStore(filePath string) *Store {
	store := &Store{
		filePath:      filePath,
		organizations: make(map[string]models.Organization),
		users:         make(map[string]models.User),
		services:      make(map[string]models.Service),
		settings:      make(map[string]models.TriggerSettings),
		incidents:     make(map[string]*models.Incident),
		maintenance:   make(map[string]*models.MaintenanceEvent),
		Now:           time.Now,
	}

	if filePath == "" {
		return store
	}

	if err := store.Load(); err != nil {
		log.Printf("[MEMORY] No existing data found, starting fresh: %v\n", err)
	} else {
		log.Printf("[MEMORY] Loaded %d incidents, %d services and %d maintenance events\n",
			len(store.incidents), len(store.services), len(store.maintenance))
	}

	return store
}

// SetSystemUserEmail configures which user owns automatic incidents
func (s *Store) SetSystemUserEmail(email string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.systemUserEmail = strings.ToLower(strings.TrimSpace(email))
}

// PutOrganization creates or replaces an organization
func (s *Store) PutOrganization(org models.Organization) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.organizations[org.ID] = org
	return s.save()
}

// PutUser creates or replaces a user
func (s *Store) PutUser(user models.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if user.ID == "" {
		user.ID = uuid.New().String()
	}
	if user.CreatedAt.IsZero() {
		user.CreatedAt = s.Now()
	}
	s.users[user.ID] = user
	return s.save()
}

// PutService creates or replaces a service
func (s *Store) PutService(svc models.Service) (models.Service, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if svc.ID == "" {
		svc.ID = uuid.New().String()
	}
	if svc.Slug == "" {
		svc.Slug = Slugify(svc.Name)
	}
	s.services[svc.ID] = svc
	return svc, s.save()
}

// PutTriggerSettings stores the trigger settings of an organization
func (s *Store) PutTriggerSettings(_ context.Context, orgID string, settings models.TriggerSettings) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.settings[orgID] = settings
	return s.save()
}

func (s *Store) GetTriggerSettings(_ context.Context, orgID string) (*models.TriggerSettings, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	settings, ok := s.settings[orgID]
	if !ok {
		return nil, nil
	}
	return &settings, nil
}

func (s *Store) OrganizationPlan(_ context.Context, orgID string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	org, ok := s.organizations[orgID]
	if !ok {
		return "", fmt.Errorf("organization %s: %w", orgID, models.ErrNotFound)
	}
	return org.Plan, nil
}

func (s *Store) SystemUserID(_ context.Context) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.systemUserEmail == "" {
		return "", nil
	}
	for _, user := range s.users {
		if user.Active && strings.EqualFold(user.Email, s.systemUserEmail) {
			return user.ID, nil
		}
	}
	return "", nil
}

func (s *Store) FirstActiveAdmin(_ context.Context, orgID string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var first *models.User
	for _, user := range s.users {
		if user.OrganizationID != orgID || !user.Active || user.Role != models.RoleAdmin {
			continue
		}
		if first == nil || user.CreatedAt.Before(first.CreatedAt) {
			u := user
			first = &u
		}
	}
	if first == nil {
		return "", nil
	}
	return first.ID, nil
}

func (s *Store) FindService(_ context.Context, orgID, nameOrSlug string) (models.Service, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, svc := range s.services {
		if svc.OrganizationID != orgID {
			continue
		}
		if strings.EqualFold(svc.Name, nameOrSlug) || strings.EqualFold(svc.Slug, nameOrSlug) {
			return svc, nil
		}
	}
	return models.Service{}, fmt.Errorf("service %s: %w", nameOrSlug, models.ErrNotFound)
}

func (s *Store) ListServices(_ context.Context) ([]models.Service, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	services := make([]models.Service, 0, len(s.services))
	for _, svc := range s.services {
		services = append(services, svc)
	}
	sort.Slice(services, func(i, j int) bool { return services[i].Name < services[j].Name })
	return services, nil
}

// CreateIncident saves a new incident
func (s *Store) CreateIncident(_ context.Context, incident models.Incident) (models.Incident, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if incident.ID == "" {
		incident.ID = uuid.New().String()
	}
	if incident.CreatedAt.IsZero() {
		incident.CreatedAt = s.Now()
	}
	if incident.UpdatedAt.IsZero() {
		incident.UpdatedAt = incident.CreatedAt
	}
	stored := incident
	s.incidents[incident.ID] = &stored

	if err := s.save(); err != nil {
		delete(s.incidents, incident.ID)
		return models.Incident{}, err
	}
	return incident, nil
}

func (s *Store) CountIncidentsSince(_ context.Context, orgID string, since time.Time) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	count := 0
	for _, incident := range s.incidents {
		if orgID != "" && incident.OrganizationID != orgID {
			continue
		}
		if !incident.CreatedAt.Before(since) {
			count++
		}
	}
	return count, nil
}

// ListIncidents returns all incidents, newest first
func (s *Store) ListIncidents(_ context.Context) ([]models.Incident, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.sortedIncidents(func(models.Incident) bool { return true }), nil
}

func (s *Store) ListActiveIncidents(_ context.Context) ([]models.Incident, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.sortedIncidents(models.Incident.IsActive), nil
}

func (s *Store) sortedIncidents(keep func(models.Incident) bool) []models.Incident {
	incidents := make([]models.Incident, 0, len(s.incidents))
	for _, incident := range s.incidents {
		if keep(*incident) {
			incidents = append(incidents, *incident)
		}
	}
	sort.Slice(incidents, func(i, j int) bool { return incidents[i].CreatedAt.After(incidents[j].CreatedAt) })
	return incidents
}

func (s *Store) LatestIncidentUpdatedAt(_ context.Context) (time.Time, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var latest time.Time
	for _, incident := range s.incidents {
		if incident.UpdatedAt.After(latest) {
			latest = incident.UpdatedAt
		}
	}
	return latest, nil
}

func (s *Store) CreateIncidentUpdate(_ context.Context, update models.IncidentUpdate) (models.IncidentUpdate, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.incidents[update.IncidentID]; !ok {
		return models.IncidentUpdate{}, fmt.Errorf("incident %s: %w", update.IncidentID, models.ErrNotFound)
	}
	if update.ID == "" {
		update.ID = uuid.New().String()
	}
	if update.CreatedAt.IsZero() {
		update.CreatedAt = s.Now()
	}
	s.updates = append(s.updates, update)
	return update, s.save()
}

// ListIncidentUpdates returns the notes of one incident in creation order
func (s *Store) ListIncidentUpdates(_ context.Context, incidentID string) ([]models.IncidentUpdate, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	updates := []models.IncidentUpdate{}
	for _, update := range s.updates {
		if update.IncidentID == incidentID {
			updates = append(updates, update)
		}
	}
	return updates, nil
}

func (s *Store) LatestIncidentUpdateCreatedAt(_ context.Context) (time.Time, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var latest time.Time
	for _, update := range s.updates {
		if update.CreatedAt.After(latest) {
			latest = update.CreatedAt
		}
	}
	return latest, nil
}

func (s *Store) CreateMaintenance(_ context.Context, event models.MaintenanceEvent) (models.MaintenanceEvent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if event.ID == "" {
		event.ID = uuid.New().String()
	}
	now := s.Now()
	if event.CreatedAt.IsZero() {
		event.CreatedAt = now
	}
	event.UpdatedAt = now
	stored := event
	s.maintenance[event.ID] = &stored
	return event, s.save()
}

func (s *Store) GetMaintenance(_ context.Context, id string) (models.MaintenanceEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	event, ok := s.maintenance[id]
	if !ok {
		return models.MaintenanceEvent{}, fmt.Errorf("maintenance %s: %w", id, models.ErrNotFound)
	}
	return *event, nil
}

// ListMaintenance returns every maintenance event ordered by start time
func (s *Store) ListMaintenance(_ context.Context) ([]models.MaintenanceEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.sortedMaintenance(func(models.MaintenanceEvent) bool { return true }), nil
}

func (s *Store) ListNonTerminalMaintenance(_ context.Context) ([]models.MaintenanceEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.sortedMaintenance(func(m models.MaintenanceEvent) bool { return !m.Status.IsTerminal() }), nil
}

func (s *Store) sortedMaintenance(keep func(models.MaintenanceEvent) bool) []models.MaintenanceEvent {
	events := make([]models.MaintenanceEvent, 0, len(s.maintenance))
	for _, event := range s.maintenance {
		if keep(*event) {
			events = append(events, *event)
		}
	}
	sort.Slice(events, func(i, j int) bool { return events[i].StartsAt.Before(events[j].StartsAt) })
	return events
}

// UpdateMaintenanceStatus moves an event from one status to another.
// It returns models.ErrConflict when the event is no longer in from.
func (s *Store) UpdateMaintenanceStatus(_ context.Context, id string, from, to models.MaintenanceStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	event, ok := s.maintenance[id]
	if !ok {
		return fmt.Errorf("maintenance %s: %w", id, models.ErrNotFound)
	}
	if event.Status != from {
		return fmt.Errorf("maintenance %s is %s, not %s: %w", id, event.Status, from, models.ErrConflict)
	}
	event.Status = to
	event.UpdatedAt = s.Now()
	return s.save()
}

func (s *Store) GetStatusCache(_ context.Context) (*models.StatusCacheRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.statusCache == nil {
		return nil, nil
	}
	record := *s.statusCache
	return &record, nil
}

func (s *Store) UpsertStatusCache(_ context.Context, record models.StatusCacheRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.statusCache = &record
	return s.save()
}

// GetStats returns statistics about stored incidents
func (s *Store) GetStats() map[string]interface{} {
	s.mu.RLock()
	defer s.mu.RUnlock()

	byStatus := make(map[string]int)
	bySeverity := make(map[string]int)
	for _, incident := range s.incidents {
		byStatus[string(incident.Status)]++
		bySeverity[string(incident.Severity)]++
	}

	maintenanceByStatus := make(map[string]int)
	for _, event := range s.maintenance {
		maintenanceByStatus[string(event.Status)]++
	}

	return map[string]interface{}{
		"total_incidents":       len(s.incidents),
		"incidents_by_status":   byStatus,
		"incidents_by_severity": bySeverity,
		"incident_updates":      len(s.updates),
		"services":              len(s.services),
		"maintenance_by_status": maintenanceByStatus,
	}
}

// save persists the store to disk. Callers hold the write lock.
func (s *Store) save() error {
	if s.filePath == "" {
		return nil
	}

	data := StoredData{
		Organizations: s.organizations,
		Users:         s.users,
		Services:      s.services,
		Settings:      s.settings,
		Incidents:     s.incidents,
		Updates:       s.updates,
		Maintenance:   s.maintenance,
		StatusCache:   s.statusCache,
		LastUpdated:   s.Now(),
	}

	file, err := os.Create(s.filePath)
	if err != nil {
		return fmt.Errorf("failed to create store file: %w", err)
	}
	defer file.Close()

	encoder := json.NewEncoder(file)
	encoder.SetIndent("", "  ")

	if err := encoder.Encode(data); err != nil {
		return fmt.Errorf("failed to encode store data: %w", err)
	}

	return nil
}

// Load reads the store from disk
func (s *Store) Load() error {
	file, err := os.Open(s.filePath)
	if err != nil {
		return err
	}
	defer file.Close()

	var data StoredData
	if err := json.NewDecoder(file).Decode(&data); err != nil {
		return fmt.Errorf("failed to decode store data: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if data.Organizations != nil {
		s.organizations = data.Organizations
	}
	if data.Users != nil {
		s.users = data.Users
	}
	if data.Services != nil {
		s.services = data.Services
	}
	if data.Settings != nil {
		s.settings = data.Settings
	}
	if data.Incidents != nil {
		s.incidents = data.Incidents
	}
	if data.Maintenance != nil {
		s.maintenance = data.Maintenance
	}
	s.updates = data.Updates
	s.statusCache = data.StatusCache

	return nil
}

// PrintSummary prints a summary of stored records and the most recent incidents
func (s *Store) PrintSummary() {
	stats := s.GetStats()
	incidents, _ := s.ListIncidents(context.Background())

	log.Println("\n" + strings.Repeat("=", 70))
	log.Println("[MEMORY] IncidentPulse - Summary")
	log.Println(strings.Repeat("=", 70))
	log.Printf("Incidents:         %v\n", stats["total_incidents"])
	log.Printf("By status:         %v\n", stats["incidents_by_status"])
	log.Printf("Incident updates:  %v\n", stats["incident_updates"])
	log.Printf("Services:          %v\n", stats["services"])
	log.Printf("Maintenance:       %v\n", stats["maintenance_by_status"])

	if len(incidents) > 0 {
		log.Println("\nRecent incidents:")
		for i, incident := range incidents {
			if i == summaryIncidents {
				break
			}
			log.Printf("  %s [%s/%s] %s\n", incident.CreatedAt.Format(time.RFC3339), incident.Severity, incident.Status, incident.Title)
		}
	}
	log.Println(strings.Repeat("=", 70) + "\n")
}

// Slugify lowercases a name and joins its words with dashes
func Slugify(name string) string {
	var sb strings.Builder
	dash := false
	for _, r := range strings.ToLower(strings.TrimSpace(name)) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			sb.WriteRune(r)
			dash = false
		case !dash && sb.Len() > 0:
			sb.WriteByte('-')
			dash = true
		}
	}
	return strings.TrimSuffix(sb.String(), "-")
}
