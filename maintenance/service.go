package maintenance

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
	// ErrInvalidTransition is returned when canceling an event that already ended
	ErrInvalidTransition = errors.New("invalid maintenance transition")
	// ErrInvalidWindow is returned for events with a malformed window or scope
	ErrInvalidWindow = errors.New("invalid maintenance window")
)

// cancelAttempts bounds how often Cancel re-reads an event that keeps changing underneath it
const cancelAttempts = 3

// StatusRefresher recomputes the public status snapshot
type StatusRefresher interface {
	Refresh(ctx context.Context) (*models.StatusCacheRecord, error)
}

// Service is the maintenance read and write path. Every read runs the transitioner first.
type Service struct {
	store        Store
	transitioner *Transitioner
	status       StatusRefresher
	notifier     Notifier
}

// NewService wires the maintenance service; status and notifier may be nil
func NewService(store Store, transitioner *Transitioner, status StatusRefresher, notifier Notifier) *Service {
	if transitioner == nil {
		transitioner = NewTransitioner(store, notifier)
	}
	return &Service{store: store, transitioner: transitioner, status: status, notifier: notifier}
}

func (s *Service) now() time.Time {
	if s.transitioner.Now != nil {
		return s.transitioner.Now()
	}
	return time.Now()
}

// List returns the maintenance events of an organization ordered by start.
// An empty orgID lists every organization.
func (s *Service) List(ctx context.Context, orgID string) ([]models.MaintenanceEvent, error) {
	changed, err := s.transitioner.Run(ctx)
	if err != nil {
		log.Printf("[MAINTENANCE] Transition scan failed: %v\n", err)
	}
	if changed > 0 {
		s.refreshStatus(ctx)
	}

	events, err := s.store.ListMaintenance(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list maintenance: %w", err)
	}
	if orgID == "" {
		return events, nil
	}

	scoped := make([]models.MaintenanceEvent, 0, len(events))
	for _, event := range events {
		if event.OrganizationID == orgID {
			scoped = append(scoped, event)
		}
	}
	return scoped, nil
}

// Schedule validates and stores a new maintenance window in the scheduled state
func (s *Service) Schedule(ctx context.Context, event models.MaintenanceEvent) (models.MaintenanceEvent, error) {
	event.Title = strings.TrimSpace(event.Title)
	if event.Title == "" {
		return models.MaintenanceEvent{}, fmt.Errorf("%w: title is required", ErrInvalidWindow)
	}
	if err := event.Validate(); err != nil {
		return models.MaintenanceEvent{}, fmt.Errorf("%w: %v", ErrInvalidWindow, err)
	}
	if event.AppliesToAll {
		event.ServiceID = ""
	}

	now := s.now()
	event.ID = uuid.New().String()
	event.Status = models.MaintenanceScheduled
	event.CreatedAt = now
	event.UpdatedAt = now

	created, err := s.store.CreateMaintenance(ctx, event)
	if err != nil {
		return models.MaintenanceEvent{}, fmt.Errorf("failed to create maintenance: %w", err)
	}
	log.Printf("[MAINTENANCE] Scheduled %q from %s to %s\n", created.Title, created.StartsAt.Format(time.RFC3339), created.EndsAt.Format(time.RFC3339))

	s.refreshStatus(ctx)
	notify(ctx, s.notifier, created, "")
	return created, nil
}

// Cancel moves a scheduled or in-progress event to canceled.
// The event is brought up to date first, so a window that already ended is completed, not canceled.
func (s *Service) Cancel(ctx context.Context, orgID, id string) (models.MaintenanceEvent, error) {
	advanced := false
	defer func() {
		if advanced {
			s.refreshStatus(ctx)
		}
	}()

	for attempt := 1; ; attempt++ {
		event, err := s.store.GetMaintenance(ctx, id)
		if err != nil {
			return models.MaintenanceEvent{}, err
		}
		if orgID != "" && event.OrganizationID != orgID {
			return models.MaintenanceEvent{}, fmt.Errorf("maintenance %s: %w", id, models.ErrNotFound)
		}

		now := s.now()
		if next := NextStatus(event, now); next != event.Status {
			moved, err := s.transitioner.advance(ctx, event, next, now)
			if err != nil {
				return models.MaintenanceEvent{}, fmt.Errorf("failed to advance maintenance: %w", err)
			}
			if !moved {
				if attempt < cancelAttempts {
					continue
				}
				return models.MaintenanceEvent{}, fmt.Errorf("failed to cancel maintenance %s: %w", id, models.ErrConflict)
			}
			advanced = true
			event.Status = next
		}
		if event.Status.IsTerminal() {
			return models.MaintenanceEvent{}, fmt.Errorf("%w: %s event cannot be canceled", ErrInvalidTransition, event.Status)
		}

		err = s.store.UpdateMaintenanceStatus(ctx, id, event.Status, models.MaintenanceCanceled)
		if errors.Is(err, models.ErrConflict) && attempt < cancelAttempts {
			continue
		}
		if err != nil {
			return models.MaintenanceEvent{}, fmt.Errorf("failed to cancel maintenance: %w", err)
		}
		log.Printf("[MAINTENANCE] Canceled %q\n", event.Title)

		from := event.Status
		event.Status = models.MaintenanceCanceled
		event.UpdatedAt = now

		advanced = false
		s.refreshStatus(ctx)
		notify(ctx, s.notifier, event, from)
		return event, nil
	}
}

func (s *Service) refreshStatus(ctx context.Context) {
	if s.status == nil {
		return
	}
	if _, err := s.status.Refresh(ctx); err != nil {
		log.Printf("[MAINTENANCE] Failed to refresh status snapshot: %v\n", err)
	}
}
