package models

import (
	"encoding/json"
	"time"
)

// ServiceState is the public health of a service or of the whole system
type ServiceState string

const (
	StateOperational   ServiceState = "operational"
	StatePartialOutage ServiceState = "partial_outage"
	StateMajorOutage   ServiceState = "major_outage"
)

// StatusPayload is the public status page snapshot
type StatusPayload struct {
	OverallState    ServiceState     `json:"overall_state"`
	ActiveIncidents []StatusIncident `json:"active_incidents"`
	Services        []StatusService  `json:"services"`
	Last24h         StatusWindow     `json:"last_24h"`
}

type StatusIncident struct {
	ID        string         `json:"id"`
	Title     string         `json:"title"`
	Severity  Severity       `json:"severity"`
	Status    IncidentStatus `json:"status"`
	StartedAt time.Time      `json:"startedAt"`
	Service   *StatusRef     `json:"service"`
}

type StatusRef struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Slug string `json:"slug"`
}

type StatusService struct {
	ID                  string       `json:"id"`
	Name                string       `json:"name"`
	Slug                string       `json:"slug"`
	Description         string       `json:"description"`
	State               ServiceState `json:"state"`
	ActiveIncidentCount int          `json:"activeIncidentCount"`
}

type StatusWindow struct {
	UptimePercent float64 `json:"uptime_percent"`
	IncidentCount int     `json:"incident_count"`
}

// StatusCacheRecord is the persisted status snapshot
type StatusCacheRecord struct {
	State     ServiceState    `json:"state"`
	Uptime24h float64         `json:"uptime_24h"`
	Payload   json.RawMessage `json:"payload"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// HasServices reports whether the payload carries a services collection.
// Records written before services were part of the snapshot lack it.
func (r StatusCacheRecord) HasServices() bool {
	if len(r.Payload) == 0 {
		return false
	}
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(r.Payload, &fields); err != nil {
		return false
	}
	services, ok := fields["services"]
	return ok && string(services) != "null"
}
