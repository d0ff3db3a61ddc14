package maintenance

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/bhoyee/IncidentPulse-sub000/models"
)

// Store is the maintenance persistence the lifecycle needs
type Store interface {
	CreateMaintenance(ctx context.Context, event models.MaintenanceEvent) (models.MaintenanceEvent, error)
	GetMaintenance(ctx context.Context, id string) (models.MaintenanceEvent, error)
	ListMaintenance(ctx context.Context) ([]models.MaintenanceEvent, error)
	ListNonTerminalMaintenance(ctx context.Context) ([]models.MaintenanceEvent, error)
	// UpdateMaintenanceStatus only writes when the event is still in from, otherwise it returns models.ErrConflict
	UpdateMaintenanceStatus(ctx context.Context, id string, from, to models.MaintenanceStatus) error
}

// Notifier is told about every status change of a maintenance event
type Notifier interface {
	MaintenanceTransitioned(ctx context.Context, event models.MaintenanceEvent, from models.MaintenanceStatus) error
}

// NextStatus is the status the event should have at now.
// Terminal events never move, and canceled is only ever set by hand.
func NextStatus(event models.MaintenanceEvent, now time.Time) models.MaintenanceStatus {
	if event.Status.IsTerminal() {
		return event.Status
	}
	if !now.Before(event.EndsAt) {
		return models.MaintenanceCompleted
	}
	if event.Status == models.MaintenanceScheduled && !now.Before(event.StartsAt) {
		return models.MaintenanceInProgress
	}
	return event.Status
}

// Transitioner advances maintenance events whose window has started or ended
type Transitioner struct {
	Store    Store
	Notifier Notifier
	Now      func() time.Time
}

// NewTransitioner creates a transitioner over store
func NewTransitioner(store Store, notifier Notifier) *Transitioner {
	return &Transitioner{Store: store, Notifier: notifier, Now: time.Now}
}

// Run scans every non-terminal event and persists the ones whose status changed.
// A failed update is logged and skipped; it is retried by the next run.
func (t *Transitioner) Run(ctx context.Context) (int, error) {
	now := time.Now()
	if t.Now != nil {
		now = t.Now()
	}

	events, err := t.Store.ListNonTerminalMaintenance(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to list open maintenance: %w", err)
	}

	changed := 0
	for _, event := range events {
		next := NextStatus(event, now)
		if next == event.Status {
			continue
		}

		moved, err := t.advance(ctx, event, next, now)
		if err != nil {
			log.Printf("[MAINTENANCE] Failed to move %s to %s: %v\n", event.ID, next, err)
			continue
		}
		if moved {
			changed++
		}
	}

	return changed, nil
}

// advance moves event to next if nobody changed it since it was read.
// A concurrent change is not an error; it reports false.
func (t *Transitioner) advance(ctx context.Context, event models.MaintenanceEvent, next models.MaintenanceStatus, now time.Time) (bool, error) {
	err := t.Store.UpdateMaintenanceStatus(ctx, event.ID, event.Status, next)
	if errors.Is(err, models.ErrConflict) {
		log.Printf("[MAINTENANCE] %q changed concurrently, skipping %s -> %s\n", event.Title, event.Status, next)
		return false, nil
	}
	if err != nil {
		return false, err
	}
	log.Printf("[MAINTENANCE] %q: %s -> %s\n", event.Title, event.Status, next)

	from := event.Status
	event.Status = next
	event.UpdatedAt = now
	notify(ctx, t.Notifier, event, from)
	return true, nil
}

func notify(ctx context.Context, notifier Notifier, event models.MaintenanceEvent, from models.MaintenanceStatus) {
	if notifier == nil {
		return
	}
	if err := notifier.MaintenanceTransitioned(ctx, event, from); err != nil {
		log.Printf("[MAINTENANCE] Failed to announce %s: %v\n", event.ID, err)
	}
}
