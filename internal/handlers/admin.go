package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"pulseboard/internal/engine"
	"pulseboard/internal/expr"
	"pulseboard/internal/graph"
	"pulseboard/internal/history"
	"pulseboard/internal/models"
	"pulseboard/internal/store"
)

// AdminHandler exposes the management API: monitor and rule CRUD, source
// listing, forced recompute, and alert history.
type AdminHandler struct {
	engine *engine.Engine
	store  *store.Store
	repo   *history.Repository
}

// NewAdminHandler creates the admin handler. repo may be nil, in which case
// the history endpoint reports 404.
func NewAdminHandler(eng *engine.Engine, st *store.Store, repo *history.Repository) *AdminHandler {
	return &AdminHandler{engine: eng, store: st, repo: repo}
}

// Register wires the admin routes onto mux.
func (h *AdminHandler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/monitors", h.listMonitors)
	mux.HandleFunc("POST /api/monitors", h.createMonitor)
	mux.HandleFunc("PUT /api/monitors/{id}", h.updateMonitor)
	mux.HandleFunc("DELETE /api/monitors/{id}", h.deleteMonitor)
	mux.HandleFunc("POST /api/monitors/{id}/enabled", h.setMonitorEnabled)

	mux.HandleFunc("GET /api/rules", h.listRules)
	mux.HandleFunc("POST /api/rules", h.createRule)
	mux.HandleFunc("DELETE /api/rules/{id}", h.deleteRule)

	mux.HandleFunc("GET /api/sources", h.listSources)
	mux.HandleFunc("POST /api/recompute", h.recompute)
	mux.HandleFunc("GET /api/alerts/history", h.alertHistory)
}

func (h *AdminHandler) listMonitors(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.engine.Monitors())
}

func (h *AdminHandler) createMonitor(w http.ResponseWriter, r *http.Request) {
	var m models.Monitor
	if err := json.NewDecoder(r.Body).Decode(&m); err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if err := h.engine.RegisterMonitor(m); err != nil {
		writeJSONError(w, registrationStatus(err), err.Error())
		return
	}
	writeJSON(w, http.StatusCreated, m)
}

func (h *AdminHandler) updateMonitor(w http.ResponseWriter, r *http.Request) {
	var m models.Monitor
	if err := json.NewDecoder(r.Body).Decode(&m); err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	m.ID = r.PathValue("id")
	if err := h.engine.UpdateMonitor(m); err != nil {
		writeJSONError(w, registrationStatus(err), err.Error())
		return
	}
	writeJSON(w, http.StatusOK, m)
}

func (h *AdminHandler) deleteMonitor(w http.ResponseWriter, r *http.Request) {
	if err := h.engine.RemoveMonitor(r.PathValue("id")); err != nil {
		writeJSONError(w, registrationStatus(err), err.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *AdminHandler) setMonitorEnabled(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Enabled bool `json:"enabled"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if err := h.engine.SetMonitorEnabled(r.PathValue("id"), body.Enabled); err != nil {
		writeJSONError(w, registrationStatus(err), err.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *AdminHandler) listRules(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.engine.RuleStatuses())
}

func (h *AdminHandler) createRule(w http.ResponseWriter, r *http.Request) {
	var rule models.AlertRule
	if err := json.NewDecoder(r.Body).Decode(&rule); err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if err := h.engine.RegisterRule(rule); err != nil {
		writeJSONError(w, registrationStatus(err), err.Error())
		return
	}
	writeJSON(w, http.StatusCreated, rule)
}

func (h *AdminHandler) deleteRule(w http.ResponseWriter, r *http.Request) {
	if err := h.engine.RemoveRule(r.PathValue("id")); err != nil {
		writeJSONError(w, registrationStatus(err), err.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *AdminHandler) listSources(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.store.List())
}

func (h *AdminHandler) recompute(w http.ResponseWriter, r *http.Request) {
	fired := h.engine.RecomputeAll()
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"fired":   fired,
	})
}

func (h *AdminHandler) alertHistory(w http.ResponseWriter, r *http.Request) {
	if h.repo == nil {
		writeJSONError(w, http.StatusNotFound, "alert history is not enabled")
		return
	}

	limit := 50
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 || n > 1000 {
			writeJSONError(w, http.StatusBadRequest, "limit must be between 1 and 1000")
			return
		}
		limit = n
	}

	events, err := h.repo.RecentEvents(r.Context(), r.URL.Query().Get("rule_id"), limit)
	if err != nil {
		writeJSONError(w, http.StatusInternalServerError, "history query failed")
		return
	}
	writeJSON(w, http.StatusOK, events)
}

// registrationStatus maps engine errors onto HTTP status codes. Validation,
// parse, and cycle errors are the caller's fault; anything else is a 500.
func registrationStatus(err error) int {
	var perr *expr.ParseError
	var cerr *graph.CycleError
	switch {
	case errors.Is(err, engine.ErrMonitorNotFound), errors.Is(err, engine.ErrRuleNotFound):
		return http.StatusNotFound
	case errors.As(err, &perr), errors.As(err, &cerr):
		return http.StatusUnprocessableEntity
	case errors.Is(err, models.ErrEmptyMonitorID),
		errors.Is(err, models.ErrEmptyFormula),
		errors.Is(err, models.ErrEmptyRuleID),
		errors.Is(err, models.ErrEmptyCondition),
		errors.Is(err, models.ErrInvalidLevel),
		errors.Is(err, models.ErrNegativeCooldown):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeJSONError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]interface{}{
		"success": false,
		"error":   message,
	})
}
