package models

import (
	"errors"
	"time"
)

// MaintenanceStatus is the lifecycle state of a maintenance window
type MaintenanceStatus string

const (
	MaintenanceScheduled  MaintenanceStatus = "scheduled"
	MaintenanceInProgress MaintenanceStatus = "in_progress"
	MaintenanceCompleted  MaintenanceStatus = "completed"
	MaintenanceCanceled   MaintenanceStatus = "canceled"
)

// IsTerminal reports whether no further transition is possible
func (s MaintenanceStatus) IsTerminal() bool {
	return s == MaintenanceCompleted || s == MaintenanceCanceled
}

// MaintenanceEvent is a planned maintenance window
type MaintenanceEvent struct {
	ID             string            `json:"id"`
	OrganizationID string            `json:"organization_id"`
	Title          string            `json:"title"`
	Description    string            `json:"description,omitempty"`
	Status         MaintenanceStatus `json:"status"`
	StartsAt       time.Time         `json:"starts_at"`
	EndsAt         time.Time         `json:"ends_at"`
	AppliesToAll   bool              `json:"applies_to_all"`
	ServiceID      string            `json:"service_id,omitempty"`
	CreatedAt      time.Time         `json:"created_at"`
	UpdatedAt      time.Time         `json:"updated_at"`
}

// Validate checks the window and the scope of the event
func (m MaintenanceEvent) Validate() error {
	if m.StartsAt.IsZero() || m.EndsAt.IsZero() {
		return errors.New("maintenance window requires starts_at and ends_at")
	}
	if !m.StartsAt.Before(m.EndsAt) {
		return errors.New("maintenance starts_at must be before ends_at")
	}
	if !m.AppliesToAll && m.ServiceID == "" {
		return errors.New("maintenance must apply to all services or name a service")
	}
	return nil
}
