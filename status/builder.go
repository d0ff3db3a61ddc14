package status

import (
	"sort"

	"github.com/bhoyee/IncidentPulse-sub000/models"
)

const maxUptimePenalty = 95

var severityWeights = map[models.Severity]int{
	models.SeverityCritical: 20,
	models.SeverityHigh:     10,
	models.SeverityMedium:   5,
}

// SeverityWeight is the uptime penalty of one active incident
func SeverityWeight(severity models.Severity) int {
	if w, ok := severityWeights[severity]; ok {
		return w
	}
	return 1
}

// StateFor derives a status from a set of active incidents.
// Any critical incident is a major outage, any high one a partial outage.
func StateFor(incidents []models.Incident) models.ServiceState {
	state := models.StateOperational
	for _, incident := range incidents {
		switch incident.Severity {
		case models.SeverityCritical:
			return models.StateMajorOutage
		case models.SeverityHigh:
			state = models.StatePartialOutage
		}
	}
	return state
}

// Uptime24h is 100 with no active incidents, otherwise 100 minus the capped severity penalty
func Uptime24h(incidents []models.Incident) float64 {
	if len(incidents) == 0 {
		return 100
	}
	penalty := 0
	for _, incident := range incidents {
		penalty += SeverityWeight(incident.Severity)
	}
	if penalty > maxUptimePenalty {
		penalty = maxUptimePenalty
	}
	uptime := float64(100 - penalty)
	if uptime < 0 {
		return 0
	}
	return uptime
}

// Build computes the public status payload. It is a pure function of its inputs;
// resolved incidents passed in are ignored.
func Build(incidents []models.Incident, services []models.Service, createdLast24h int) models.StatusPayload {
	active := make([]models.Incident, 0, len(incidents))
	for _, incident := range incidents {
		if incident.IsActive() {
			active = append(active, incident)
		}
	}
	sort.SliceStable(active, func(i, j int) bool { return active[i].CreatedAt.After(active[j].CreatedAt) })

	byService := make(map[string][]models.Incident)
	for _, incident := range active {
		if incident.ServiceID != "" {
			byService[incident.ServiceID] = append(byService[incident.ServiceID], incident)
		}
	}

	refs := make(map[string]*models.StatusRef, len(services))
	sortedServices := append([]models.Service(nil), services...)
	sort.SliceStable(sortedServices, func(i, j int) bool { return sortedServices[i].Name < sortedServices[j].Name })

	serviceStates := make([]models.StatusService, 0, len(sortedServices))
	for _, svc := range sortedServices {
		refs[svc.ID] = &models.StatusRef{ID: svc.ID, Name: svc.Name, Slug: svc.Slug}
		serviceStates = append(serviceStates, models.StatusService{
			ID:                  svc.ID,
			Name:                svc.Name,
			Slug:                svc.Slug,
			Description:         svc.Description,
			State:               StateFor(byService[svc.ID]),
			ActiveIncidentCount: len(byService[svc.ID]),
		})
	}

	activeIncidents := make([]models.StatusIncident, 0, len(active))
	for _, incident := range active {
		activeIncidents = append(activeIncidents, models.StatusIncident{
			ID:        incident.ID,
			Title:     incident.Title,
			Severity:  incident.Severity,
			Status:    incident.Status,
			StartedAt: incident.CreatedAt,
			Service:   refs[incident.ServiceID],
		})
	}

	return models.StatusPayload{
		OverallState:    StateFor(active),
		ActiveIncidents: activeIncidents,
		Services:        serviceStates,
		Last24h: models.StatusWindow{
			UptimePercent: Uptime24h(active),
			IncidentCount: createdLast24h,
		},
	}
}
