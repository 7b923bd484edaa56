// Package api provides HTTP API handlers.
package api

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/civicwatch/vigil/internal/alert"
	"github.com/civicwatch/vigil/internal/config"
	"github.com/civicwatch/vigil/internal/database"
	"github.com/civicwatch/vigil/internal/models"
	"github.com/civicwatch/vigil/internal/report"
	"github.com/civicwatch/vigil/internal/stats"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// Handler contains all HTTP handlers.
type Handler struct {
	reports *report.Service
	store   database.Store
	alerts  config.AlertConfig
}

// NewHandler creates a new handler.
func NewHandler(reports *report.Service, store database.Store, alerts config.AlertConfig) *Handler {
	return &Handler{
		reports: reports,
		store:   store,
		alerts:  alerts,
	}
}

// HealthCheck returns the service health status.
func (h *Handler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	response := map[string]interface{}{
		"status":    "healthy",
		"version":   "1.0.0",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	}
	writeJSON(w, http.StatusOK, response)
}

// CreateReport handles report creation requests.
func (h *Handler) CreateReport(w http.ResponseWriter, r *http.Request) {
	user := getUser(r.Context())
	if user == nil {
		writeError(w, http.StatusUnauthorized, "Authentication required")
		return
	}

	var input models.CreateReportInput
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	created, err := h.reports.Create(r.Context(), input, user.ID)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, created)
}

// GetReport returns a report by ID.
func (h *Handler) GetReport(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if id == "" {
		writeError(w, http.StatusBadRequest, "ID is required")
		return
	}

	found, err := h.reports.Get(r.Context(), id)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, found)
}

// ListReports returns reports matching the query filters.
func (h *Handler) ListReports(w http.ResponseWriter, r *http.Request) {
	filter, ok := h.parseFilter(w, r)
	if !ok {
		return
	}

	reports, err := h.reports.List(r.Context(), filter)
	if err != nil {
		log.Error().Err(err).Msg("Failed to list reports")
		writeError(w, http.StatusInternalServerError, "Failed to list reports")
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"reports": reports,
		"total":   len(reports),
	})
}

// UpdateReport patches a report's content fields.
func (h *Handler) UpdateReport(w http.ResponseWriter, r *http.Request) {
	user := getUser(r.Context())
	if user == nil {
		writeError(w, http.StatusUnauthorized, "Authentication required")
		return
	}

	id := chi.URLParam(r, "id")
	var patch models.ReportPatch
	if err := json.NewDecoder(r.Body).Decode(&patch); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	updated, err := h.reports.Update(r.Context(), id, patch, user.ID)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, updated)
}

// ConfirmReport applies a corroborating vote from the acting user.
func (h *Handler) ConfirmReport(w http.ResponseWriter, r *http.Request) {
	h.vote(w, r, h.reports.Confirm)
}

// DisputeReport applies a contesting vote from the acting user.
func (h *Handler) DisputeReport(w http.ResponseWriter, r *http.Request) {
	h.vote(w, r, h.reports.Dispute)
}

func (h *Handler) vote(w http.ResponseWriter, r *http.Request, apply func(ctx context.Context, id, voterID string) (*models.Report, bool, error)) {
	user := getUser(r.Context())
	if user == nil {
		writeError(w, http.StatusUnauthorized, "Authentication required")
		return
	}

	id := chi.URLParam(r, "id")
	updated, applied, err := apply(r.Context(), id, user.ID)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"report":        updated,
		"already_voted": !applied,
	})
}

// CloseReport moves a report to its terminal state.
func (h *Handler) CloseReport(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	closed, err := h.reports.Close(r.Context(), id)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, closed)
}

// NearbyAlerts evaluates the proximity danger alert for a location.
func (h *Handler) NearbyAlerts(w http.ResponseWriter, r *http.Request) {
	lat, err := strconv.ParseFloat(r.URL.Query().Get("lat"), 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "lat is required and must be a number")
		return
	}
	lng, err := strconv.ParseFloat(r.URL.Query().Get("lng"), 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "lng is required and must be a number")
		return
	}

	radius := h.alerts.DefaultRadiusMeters
	if raw := r.URL.Query().Get("radius"); raw != "" {
		radius, err = strconv.ParseFloat(raw, 64)
		if err != nil || radius <= 0 {
			writeError(w, http.StatusBadRequest, "radius must be a positive number of meters")
			return
		}
		if radius > h.alerts.MaxRadiusMeters {
			radius = h.alerts.MaxRadiusMeters
		}
	}

	active := models.StatusActive
	reports, err := h.store.ListReports(r.Context(), database.ReportFilter{Status: &active})
	if err != nil {
		log.Error().Err(err).Msg("Failed to list active reports")
		writeError(w, http.StatusInternalServerError, "Failed to evaluate nearby alerts")
		return
	}

	writeJSON(w, http.StatusOK, alert.Evaluate(lat, lng, reports, radius))
}

// Statistics returns aggregate counts over reports matching the filters.
func (h *Handler) Statistics(w http.ResponseWriter, r *http.Request) {
	filter, ok := h.parseFilter(w, r)
	if !ok {
		return
	}

	reports, err := h.store.ListReports(r.Context(), filter)
	if err != nil {
		log.Error().Err(err).Msg("Failed to list reports for statistics")
		writeError(w, http.StatusInternalServerError, "Failed to compute statistics")
		return
	}

	writeJSON(w, http.StatusOK, stats.Summarize(reports))
}

// Heatmap returns aggregated incident cells for map rendering.
func (h *Handler) Heatmap(w http.ResponseWriter, r *http.Request) {
	filter, ok := h.parseFilter(w, r)
	if !ok {
		return
	}

	reports, err := h.store.ListReports(r.Context(), filter)
	if err != nil {
		log.Error().Err(err).Msg("Failed to list reports for heatmap")
		writeError(w, http.StatusInternalServerError, "Failed to compute heatmap")
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"points": stats.Heatmap(reports),
	})
}

func (h *Handler) parseFilter(w http.ResponseWriter, r *http.Request) (database.ReportFilter, bool) {
	q := r.URL.Query()
	filter := database.ReportFilter{
		District: q.Get("district"),
		Province: q.Get("province"),
	}

	if raw := q.Get("type"); raw != "" {
		t := models.IncidentType(raw)
		if !t.Valid() {
			writeError(w, http.StatusBadRequest, "unknown incident type: "+raw)
			return filter, false
		}
		filter.Type = t
	}

	if q.Get("mine") == "true" {
		if user := getUser(r.Context()); user != nil {
			filter.ReporterID = user.ID
		}
	}

	if raw := q.Get("status"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < int(models.StatusActive) || n > int(models.StatusClosed) {
			writeError(w, http.StatusBadRequest, "status must be 0, 1 or 2")
			return filter, false
		}
		status := models.ReportStatus(n)
		filter.Status = &status
	}

	limit, _ := strconv.Atoi(q.Get("limit"))
	if limit < 0 || limit > 500 {
		limit = 0
	}
	filter.Limit = limit

	offset, _ := strconv.Atoi(q.Get("offset"))
	if offset > 0 {
		filter.Offset = offset
	}

	return filter, true
}

// GetAuditLogs returns paginated audit logs.
func (h *Handler) GetAuditLogs(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	if limit <= 0 || limit > 100 {
		limit = 50
	}

	offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))
	if offset < 0 {
		offset = 0
	}

	logs, err := h.store.GetAuditLogs(r.Context(), limit, offset)
	if err != nil {
		log.Error().Err(err).Msg("Failed to get audit logs")
		writeError(w, http.StatusInternalServerError, "Failed to get audit logs")
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"logs":   logs,
		"limit":  limit,
		"offset": offset,
	})
}

// CreateUser issues a new user credential.
func (h *Handler) CreateUser(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name string `json:"name"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	if req.Name == "" {
		writeError(w, http.StatusBadRequest, "Name is required")
		return
	}

	// Generate random credential
	keyBytes := make([]byte, 32)
	if _, err := rand.Read(keyBytes); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to generate credential")
		return
	}
	rawKey := "vgl_" + base64.URLEncoding.EncodeToString(keyBytes)

	// Hash for storage
	hash := sha256.Sum256([]byte(rawKey))
	keyHash := hex.EncodeToString(hash[:])

	user := &models.User{
		ID:        uuid.New().String(),
		KeyHash:   keyHash,
		Name:      req.Name,
		CreatedAt: time.Now(),
	}

	if err := h.store.CreateUser(r.Context(), user); err != nil {
		log.Error().Err(err).Msg("Failed to create user")
		writeError(w, http.StatusInternalServerError, "Failed to create user")
		return
	}

	// Return the raw credential only once
	writeJSON(w, http.StatusCreated, map[string]interface{}{
		"id":         user.ID,
		"key":        rawKey, // Only returned on creation
		"name":       user.Name,
		"created_at": user.CreatedAt,
	})
}

// ListUsers lists all users (without credentials).
func (h *Handler) ListUsers(w http.ResponseWriter, r *http.Request) {
	users, err := h.store.ListUsers(r.Context())
	if err != nil {
		log.Error().Err(err).Msg("Failed to list users")
		writeError(w, http.StatusInternalServerError, "Failed to list users")
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"users": users,
	})
}

// DeleteUser removes a user credential.
func (h *Handler) DeleteUser(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if id == "" {
		writeError(w, http.StatusBadRequest, "ID is required")
		return
	}

	if err := h.store.DeleteUser(r.Context(), id); err != nil {
		log.Error().Err(err).Msg("Failed to delete user")
		writeError(w, http.StatusInternalServerError, "Failed to delete user")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// Helper functions
func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": message})
}

// writeServiceError maps lifecycle errors onto HTTP responses. The code field
// keeps InvalidState and Conflict distinguishable for clients.
func writeServiceError(w http.ResponseWriter, err error) {
	var verr *report.ValidationError
	switch {
	case errors.As(err, &verr):
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		json.NewEncoder(w).Encode(map[string]interface{}{
			"error":  "validation failed",
			"code":   "validation_error",
			"fields": verr.Fields,
		})
	case errors.Is(err, report.ErrNotFound):
		writeCodedError(w, http.StatusNotFound, "not_found", err.Error())
	case errors.Is(err, report.ErrForbidden):
		writeCodedError(w, http.StatusForbidden, "forbidden", err.Error())
	case errors.Is(err, report.ErrInvalidState):
		writeCodedError(w, http.StatusConflict, "invalid_state", err.Error())
	case errors.Is(err, report.ErrConflict):
		writeCodedError(w, http.StatusConflict, "conflict", err.Error())
	default:
		log.Error().Err(err).Msg("Request failed")
		writeError(w, http.StatusInternalServerError, "Internal server error")
	}
}

func writeCodedError(w http.ResponseWriter, status int, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": message, "code": code})
}
