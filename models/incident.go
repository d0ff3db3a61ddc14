package models

import (
	"errors"
	"time"
)

var (
	// ErrNotFound is returned by stores when a requested record does not exist
	ErrNotFound = errors.New("not found")
	// ErrConflict is returned by conditional writes when the record changed underneath
	ErrConflict = errors.New("conflict")
)

// Severity represents how badly an incident affects a service
type Severity string

const (
	SeverityCritical Severity = "critical"
	SeverityHigh     Severity = "high"
	SeverityMedium   Severity = "medium"
	SeverityLow      Severity = "low"
)

// IncidentStatus represents the current state of an incident
type IncidentStatus string

const (
	StatusInvestigating IncidentStatus = "investigating"
	StatusIdentified    IncidentStatus = "identified"
	StatusMonitoring    IncidentStatus = "monitoring"
	StatusResolved      IncidentStatus = "resolved"
)

// Incident represents an incident as persisted by the incident store
type Incident struct {
	ID             string         `json:"id"`
	OrganizationID string         `json:"organization_id"`
	ServiceID      string         `json:"service_id,omitempty"`
	Title          string         `json:"title"`
	Description    string         `json:"description"`
	Severity       Severity       `json:"severity"`
	Status         IncidentStatus `json:"status"`
	CreatedBy      string         `json:"created_by"`
	CreatedAt      time.Time      `json:"created_at"`
	UpdatedAt      time.Time      `json:"updated_at"`
	ResolvedAt     *time.Time     `json:"resolved_at,omitempty"`
}

// IsActive reports whether the incident still counts toward system status
func (i Incident) IsActive() bool {
	return i.Status != StatusResolved
}

// IncidentUpdate is a timeline note attached to an incident
type IncidentUpdate struct {
	ID         string    `json:"id"`
	IncidentID string    `json:"incident_id"`
	Message    string    `json:"message"`
	CreatedBy  string    `json:"created_by"`
	CreatedAt  time.Time `json:"created_at"`
}

// Service is a monitored component of an organization
type Service struct {
	ID             string `json:"id"`
	OrganizationID string `json:"organization_id"`
	Name           string `json:"name"`
	Slug           string `json:"slug"`
	Description    string `json:"description"`
}

// PlanLimits holds the quotas attached to a billing plan.
// A nil MaxIncidentsPerMonth means the plan is uncapped.
type PlanLimits struct {
	MaxIncidentsPerMonth *int `json:"max_incidents_per_month,omitempty" yaml:"max_incidents_per_month"`
}
