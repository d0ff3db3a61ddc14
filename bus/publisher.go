package bus

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/bhoyee/IncidentPulse-sub000/models"
	"github.com/nats-io/nats.go"
)

// Publisher announces engine events on NATS
type Publisher struct {
	conn *nats.Conn
}

func NewPublisher(conn *nats.Conn) *Publisher {
	return &Publisher{conn: conn}
}

func (p *Publisher) publish(subject string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to encode %s: %w", subject, err)
	}
	if err := p.conn.Publish(subject, data); err != nil {
		return fmt.Errorf("failed to publish %s: %w", subject, err)
	}
	return nil
}

func (p *Publisher) IncidentOpened(_ context.Context, incident models.Incident) error {
	if err := p.publish(SubjectIncidentAutoCreated, IncidentEvent{Incident: incident, Timestamp: time.Now().Unix()}); err != nil {
		return err
	}
	log.Printf("[BUS] Published %s [%s]\n", SubjectIncidentAutoCreated, incident.ID)
	return nil
}

func (p *Publisher) MaintenanceTransitioned(_ context.Context, event models.MaintenanceEvent, from models.MaintenanceStatus) error {
	return p.publish(SubjectMaintenanceTransitioned, MaintenanceEvent{
		Maintenance: event,
		From:        from,
		To:          event.Status,
		Timestamp:   time.Now().Unix(),
	})
}

func (p *Publisher) SettingsUpdated(_ context.Context, orgID string) error {
	return p.publish(SubjectSettingsUpdated, SettingsEvent{OrganizationID: orgID})
}

func (p *Publisher) Close() {
	if p.conn != nil {
		_ = p.conn.Drain()
	}
}
