package bus

import (
	"fmt"
	"log"
	"time"

	"github.com/bhoyee/IncidentPulse-sub000/models"
	"github.com/nats-io/nats.go"
)

// Subjects
const (
	SubjectIncidentAutoCreated     = "incident.auto_created"
	SubjectMaintenanceTransitioned = "maintenance.transitioned"
	SubjectSettingsUpdated         = "settings.updated"
)

// IncidentEvent is published when an incident is opened automatically
type IncidentEvent struct {
	Incident  models.Incident `json:"incident"`
	Timestamp int64           `json:"timestamp"`
}

// MaintenanceEvent is published on every maintenance status change.
// From is empty when the event was just scheduled.
type MaintenanceEvent struct {
	Maintenance models.MaintenanceEvent  `json:"maintenance"`
	From        models.MaintenanceStatus `json:"from,omitempty"`
	To          models.MaintenanceStatus `json:"to"`
	Timestamp   int64                    `json:"timestamp"`
}

// SettingsEvent tells every instance to drop its cached trigger settings.
// An empty OrganizationID drops all of them.
type SettingsEvent struct {
	OrganizationID string `json:"organization_id"`
}

// Connect opens a NATS connection that keeps retrying in the background
func Connect(url string) (*nats.Conn, error) {
	conn, err := nats.Connect(url,
		nats.Name("incident-pulse"),
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(10),
		nats.ReconnectWait(2*time.Second),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to nats: %w", err)
	}

	log.Printf("[BUS] Connected to NATS at %s\n", url)
	return conn, nil
}
