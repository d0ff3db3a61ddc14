package status

import (
	"math/rand"
	"testing"
	"time"

	"github.com/bhoyee/IncidentPulse-sub000/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func incident(id, serviceID string, severity models.Severity, createdAt time.Time) models.Incident {
	return models.Incident{
		ID:        id,
		ServiceID: serviceID,
		Title:     "incident " + id,
		Severity:  severity,
		Status:    models.StatusInvestigating,
		CreatedAt: createdAt,
	}
}

func TestStateFor(t *testing.T) {
	now := time.Now()
	tests := []struct {
		name       string
		severities []models.Severity
		want       models.ServiceState
	}{
		{"no incidents", nil, models.StateOperational},
		{"low and medium only", []models.Severity{models.SeverityLow, models.SeverityMedium}, models.StateOperational},
		{"one high", []models.Severity{models.SeverityLow, models.SeverityHigh}, models.StatePartialOutage},
		{"critical wins", []models.Severity{models.SeverityHigh, models.SeverityCritical, models.SeverityLow}, models.StateMajorOutage},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var incidents []models.Incident
			for i, sev := range tt.severities {
				incidents = append(incidents, incident(string(rune('a'+i)), "", sev, now))
			}
			assert.Equal(t, tt.want, StateFor(incidents))
		})
	}
}

func TestUptime24h(t *testing.T) {
	now := time.Now()
	assert.Equal(t, 100.0, Uptime24h(nil))
	assert.Equal(t, 90.0, Uptime24h([]models.Incident{incident("a", "", models.SeverityHigh, now)}))
	assert.Equal(t, 74.0, Uptime24h([]models.Incident{
		incident("a", "", models.SeverityCritical, now),
		incident("b", "", models.SeverityMedium, now),
		incident("c", "", models.SeverityLow, now),
	}))

	many := make([]models.Incident, 10)
	for i := range many {
		many[i] = incident("x", "", models.SeverityCritical, now)
	}
	assert.Equal(t, 5.0, Uptime24h(many), "penalty is capped at 95")
}

func TestBuild_RandomIncidentSetsKeepInvariants(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	severities := []models.Severity{models.SeverityCritical, models.SeverityHigh, models.SeverityMedium, models.SeverityLow, "unknown"}
	now := time.Now()

	for round := 0; round < 200; round++ {
		n := rng.Intn(15)
		incidents := make([]models.Incident, n)
		hasCritical, hasHigh := false, false
		for i := range incidents {
			sev := severities[rng.Intn(len(severities))]
			hasCritical = hasCritical || sev == models.SeverityCritical
			hasHigh = hasHigh || sev == models.SeverityHigh
			incidents[i] = incident(string(rune('a'+i)), "", sev, now)
		}

		payload := Build(incidents, nil, 0)
		uptime := payload.Last24h.UptimePercent
		assert.GreaterOrEqual(t, uptime, 0.0)
		assert.LessOrEqual(t, uptime, 100.0)
		assert.Equal(t, n == 0, uptime == 100.0)

		switch {
		case hasCritical:
			assert.Equal(t, models.StateMajorOutage, payload.OverallState)
		case hasHigh:
			assert.Equal(t, models.StatePartialOutage, payload.OverallState)
		default:
			assert.Equal(t, models.StateOperational, payload.OverallState)
		}
	}
}

func TestBuild_Payload(t *testing.T) {
	now := time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)
	services := []models.Service{
		{ID: "svc-web", Name: "web", Slug: "web"},
		{ID: "svc-api", Name: "api", Slug: "api", Description: "Public API"},
	}
	resolved := incident("old", "svc-web", models.SeverityCritical, now.Add(-time.Hour))
	resolved.Status = models.StatusResolved

	payload := Build([]models.Incident{
		incident("first", "svc-api", models.SeverityHigh, now.Add(-30*time.Minute)),
		incident("second", "svc-gone", models.SeverityCritical, now.Add(-10*time.Minute)),
		incident("third", "svc-api", models.SeverityLow, now.Add(-20*time.Minute)),
		resolved,
	}, services, 7)

	assert.Equal(t, models.StateMajorOutage, payload.OverallState, "incidents of unknown services still count")
	assert.Equal(t, 69.0, payload.Last24h.UptimePercent)
	assert.Equal(t, 7, payload.Last24h.IncidentCount)

	require.Len(t, payload.ActiveIncidents, 3)
	assert.Equal(t, "second", payload.ActiveIncidents[0].ID)
	assert.Nil(t, payload.ActiveIncidents[0].Service)
	assert.Equal(t, "third", payload.ActiveIncidents[1].ID)
	assert.Equal(t, "first", payload.ActiveIncidents[2].ID)
	require.NotNil(t, payload.ActiveIncidents[2].Service)
	assert.Equal(t, "api", payload.ActiveIncidents[2].Service.Slug)
	assert.True(t, payload.ActiveIncidents[2].StartedAt.Equal(now.Add(-30*time.Minute)))

	require.Len(t, payload.Services, 2)
	assert.Equal(t, "api", payload.Services[0].Name)
	assert.Equal(t, models.StatePartialOutage, payload.Services[0].State)
	assert.Equal(t, 2, payload.Services[0].ActiveIncidentCount)
	assert.Equal(t, "Public API", payload.Services[0].Description)
	assert.Equal(t, "web", payload.Services[1].Name)
	assert.Equal(t, models.StateOperational, payload.Services[1].State)
	assert.Equal(t, 0, payload.Services[1].ActiveIncidentCount)
}

func TestBuild_EmptyCollectionsAreNotNil(t *testing.T) {
	payload := Build(nil, nil, 0)
	assert.NotNil(t, payload.ActiveIncidents)
	assert.NotNil(t, payload.Services)
	assert.Equal(t, models.StateOperational, payload.OverallState)
}
