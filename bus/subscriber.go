package bus

import (
	"encoding/json"
	"log"

	"github.com/nats-io/nats.go"
)

// SettingsInvalidator drops cached trigger settings
type SettingsInvalidator interface {
	Invalidate(orgID string)
	InvalidateAll()
}

// Subscriber keeps the local settings cache in step with writes made on other instances
type Subscriber struct {
	conn     *nats.Conn
	sub      *nats.Subscription
	settings SettingsInvalidator
}

func NewSubscriber(conn *nats.Conn, settings SettingsInvalidator) *Subscriber {
	return &Subscriber{conn: conn, settings: settings}
}

func (s *Subscriber) Start() error {
	var err error
	s.sub, err = s.conn.Subscribe(SubjectSettingsUpdated, s.handleSettingsMessage)
	if err != nil {
		return err
	}
	log.Printf("[BUS] Subscribed to '%s'\n", SubjectSettingsUpdated)
	return nil
}

func (s *Subscriber) handleSettingsMessage(msg *nats.Msg) {
	var evt SettingsEvent
	if err := json.Unmarshal(msg.Data, &evt); err != nil {
		log.Printf("[BUS] Failed to unmarshal settings event: %v\n", err)
		return
	}

	if evt.OrganizationID == "" {
		s.settings.InvalidateAll()
		log.Println("[BUS] Dropped all cached trigger settings")
		return
	}
	s.settings.Invalidate(evt.OrganizationID)
	log.Printf("[BUS] Dropped cached trigger settings for org %s\n", evt.OrganizationID)
}

func (s *Subscriber) Stop() {
	if s.sub != nil {
		_ = s.sub.Unsubscribe()
	}
}
