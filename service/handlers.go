package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/bhoyee/IncidentPulse-sub000/maintenance"
	"github.com/bhoyee/IncidentPulse-sub000/models"
	"github.com/bhoyee/IncidentPulse-sub000/monitor"
	"github.com/go-chi/chi/v5"
)

type errorResponse struct {
	Ok      bool   `json:"ok"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

type logRequest struct {
	Service   string          `json:"service"`
	Level     string          `json:"level"`
	Message   string          `json:"message"`
	Timestamp json.RawMessage `json:"timestamp"`
	Context   map[string]any  `json:"context"`
}

type maintenanceRequest struct {
	Title        string    `json:"title"`
	Description  string    `json:"description"`
	StartsAt     time.Time `json:"starts_at"`
	EndsAt       time.Time `json:"ends_at"`
	AppliesToAll bool      `json:"applies_to_all"`
	ServiceID    string    `json:"service_id"`
}

// RegisterRoutes mounts the API under /api
func (s *Server) RegisterRoutes(r chi.Router) {
	r.Route("/api", func(r chi.Router) {
		r.Post("/logs", s.handleIngestLog)

		r.Get("/status", s.handleStatus)
		r.Post("/status/refresh", s.handleStatusRefresh)

		r.Route("/maintenance", func(r chi.Router) {
			r.Get("/", s.handleListMaintenance)
			r.Post("/", s.handleScheduleMaintenance)
			r.Post("/{id}/cancel", s.handleCancelMaintenance)
		})

		r.Get("/settings", s.handleGetSettings)
		r.Put("/settings", s.handlePutSettings)
	})
}

const healthCheckTimeout = 2 * time.Second

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), healthCheckTimeout)
	defer cancel()

	code, state := http.StatusOK, "healthy"
	checks := make(map[string]string, len(s.checks))
	for name, pinger := range s.checks {
		if err := pinger.Ping(ctx); err != nil {
			log.Printf("[SERVER] Health check %s failed: %v\n", name, err)
			checks[name] = err.Error()
			code, state = http.StatusServiceUnavailable, "unhealthy"
			continue
		}
		checks[name] = "ok"
	}

	writeJSON(w, code, map[string]any{
		"status":    state,
		"checks":    checks,
		"timestamp": time.Now().Format(time.RFC3339),
	})
}

func (s *Server) handleIngestLog(w http.ResponseWriter, r *http.Request) {
	orgID, ok := requireOrg(w, r)
	if !ok {
		return
	}

	var req logRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", err.Error())
		return
	}
	level, err := models.ParseLogLevel(req.Level)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_event", err.Error())
		return
	}

	event := models.LogEvent{
		Timestamp: models.ParseTimestamp(req.Timestamp, time.Now().UTC()),
		Level:     level,
		Message:   req.Message,
		Context:   req.Context,
	}
	result, err := s.evaluator.Ingest(r.Context(), orgID, req.Service, event)
	switch {
	case errors.Is(err, monitor.ErrInvalidEvent):
		writeError(w, http.StatusBadRequest, "invalid_event", err.Error())
		return
	case errors.Is(err, monitor.ErrUnknownService):
		writeError(w, http.StatusNotFound, "unknown_service", err.Error())
		return
	case err != nil:
		log.Printf("[SERVER] Ingest failed for org %s: %v\n", orgID, err)
		writeError(w, http.StatusInternalServerError, "internal", "failed to ingest log")
		return
	}

	code := http.StatusAccepted
	if result.Incident != nil {
		code = http.StatusCreated
	}
	writeJSON(w, code, result)
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	record, err := s.status.FetchFresh(r.Context())
	if err != nil {
		log.Printf("[SERVER] Status snapshot unavailable: %v\n", err)
		writeError(w, http.StatusInternalServerError, "internal", "status unavailable")
		return
	}
	writeRecord(w, record)
}

func (s *Server) handleStatusRefresh(w http.ResponseWriter, r *http.Request) {
	record, err := s.status.Refresh(r.Context())
	if err != nil {
		log.Printf("[SERVER] Status refresh failed: %v\n", err)
		writeError(w, http.StatusInternalServerError, "internal", "status refresh failed")
		return
	}
	writeRecord(w, record)
}

// writeRecord sends the stored payload as is, with the snapshot time in a header
func writeRecord(w http.ResponseWriter, record *models.StatusCacheRecord) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("X-Status-Updated-At", record.UpdatedAt.UTC().Format(time.RFC3339))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(record.Payload)
}

func (s *Server) handleListMaintenance(w http.ResponseWriter, r *http.Request) {
	orgID, ok := requireOrg(w, r)
	if !ok {
		return
	}
	events, err := s.maintenance.List(r.Context(), orgID)
	if err != nil {
		log.Printf("[SERVER] Listing maintenance failed: %v\n", err)
		writeError(w, http.StatusInternalServerError, "internal", "failed to list maintenance")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "maintenance": events})
}

func (s *Server) handleScheduleMaintenance(w http.ResponseWriter, r *http.Request) {
	orgID, ok := requireOrg(w, r)
	if !ok {
		return
	}
	var req maintenanceRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", err.Error())
		return
	}

	created, err := s.maintenance.Schedule(r.Context(), models.MaintenanceEvent{
		OrganizationID: orgID,
		Title:          req.Title,
		Description:    req.Description,
		StartsAt:       req.StartsAt,
		EndsAt:         req.EndsAt,
		AppliesToAll:   req.AppliesToAll,
		ServiceID:      req.ServiceID,
	})
	if err != nil {
		if errors.Is(err, maintenance.ErrInvalidWindow) {
			writeError(w, http.StatusBadRequest, "invalid_window", err.Error())
			return
		}
		log.Printf("[SERVER] Scheduling maintenance failed: %v\n", err)
		writeError(w, http.StatusInternalServerError, "internal", "failed to schedule maintenance")
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"ok": true, "maintenance": created})
}

func (s *Server) handleCancelMaintenance(w http.ResponseWriter, r *http.Request) {
	orgID, ok := requireOrg(w, r)
	if !ok {
		return
	}
	canceled, err := s.maintenance.Cancel(r.Context(), orgID, chi.URLParam(r, "id"))
	switch {
	case errors.Is(err, models.ErrNotFound):
		writeError(w, http.StatusNotFound, "not_found", "maintenance event not found")
		return
	case errors.Is(err, maintenance.ErrInvalidTransition), errors.Is(err, models.ErrConflict):
		writeError(w, http.StatusConflict, "invalid_transition", err.Error())
		return
	case err != nil:
		log.Printf("[SERVER] Canceling maintenance failed: %v\n", err)
		writeError(w, http.StatusInternalServerError, "internal", "failed to cancel maintenance")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "maintenance": canceled})
}

func (s *Server) handleGetSettings(w http.ResponseWriter, r *http.Request) {
	orgID, ok := requireOrg(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, s.settings.Get(r.Context(), orgID))
}

func (s *Server) handlePutSettings(w http.ResponseWriter, r *http.Request) {
	orgID, ok := requireOrg(w, r)
	if !ok {
		return
	}
	var settings models.TriggerSettings
	if err := decodeJSON(r, &settings); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", err.Error())
		return
	}
	if err := validateSettings(settings); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_settings", err.Error())
		return
	}

	if err := s.writer.PutTriggerSettings(r.Context(), orgID, settings); err != nil {
		log.Printf("[SERVER] Saving settings for org %s failed: %v\n", orgID, err)
		writeError(w, http.StatusInternalServerError, "internal", "failed to save settings")
		return
	}
	s.settings.Invalidate(orgID)
	if s.publisher != nil {
		if err := s.publisher.SettingsUpdated(r.Context(), orgID); err != nil {
			log.Printf("[SERVER] Failed to announce settings change for org %s: %v\n", orgID, err)
		}
	}

	writeJSON(w, http.StatusOK, s.settings.Get(r.Context(), orgID))
}

func validateSettings(s models.TriggerSettings) error {
	switch {
	case s.ErrorThreshold <= 0:
		return fmt.Errorf("auto_incident_error_threshold must be positive")
	case s.WindowSeconds <= 0:
		return fmt.Errorf("auto_incident_window_seconds must be positive")
	case s.CooldownSeconds < 0:
		return fmt.Errorf("auto_incident_cooldown_seconds must not be negative")
	case s.SummaryLineCap < 0 || s.SummaryLineCap > models.MaxSummaryLines:
		return fmt.Errorf("auto_incident_summary_lines must be between 0 and %d", models.MaxSummaryLines)
	}
	return nil
}

func requireOrg(w http.ResponseWriter, r *http.Request) (string, bool) {
	orgID := strings.TrimSpace(r.Header.Get(OrgHeader))
	if orgID == "" {
		writeError(w, http.StatusUnauthorized, "unauthenticated", OrgHeader+" header is required")
		return "", false
	}
	return orgID, true
}

func decodeJSON(r *http.Request, v any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, errorResponse{Ok: false, Code: code, Message: message})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
