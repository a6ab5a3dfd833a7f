package httpserver

import (
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/infra-mapper/infra-mapper/internal/model"
)

func (s *Server) handleListAlertRules(w http.ResponseWriter, r *http.Request) {
	rules, err := s.deps.Store.ListAlertRules()
	if err != nil {
		writeErr(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, rules)
}

func (s *Server) handleCreateAlertRule(w http.ResponseWriter, r *http.Request) {
	var rule model.AlertRule
	if err := decodeJSON(r, &rule); err != nil {
		writeErr(w, http.StatusBadRequest, err.Error())
		return
	}
	if rule.ID == "" {
		rule.ID = uuid.NewString()
	}
	if err := s.deps.Store.SaveAlertRule(rule); err != nil {
		writeErr(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusCreated, rule)
}

func (s *Server) handleGetAlertRule(w http.ResponseWriter, r *http.Request) {
	rule, ok, err := s.deps.Store.GetAlertRule(r.PathValue("id"))
	if err != nil {
		writeErr(w, http.StatusInternalServerError, err.Error())
		return
	}
	if !ok {
		writeErr(w, http.StatusNotFound, "alert rule not found")
		return
	}
	writeJSON(w, http.StatusOK, rule)
}

func (s *Server) handleUpdateAlertRule(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if _, ok, err := s.deps.Store.GetAlertRule(id); err != nil {
		writeErr(w, http.StatusInternalServerError, err.Error())
		return
	} else if !ok {
		writeErr(w, http.StatusNotFound, "alert rule not found")
		return
	}
	var rule model.AlertRule
	if err := decodeJSON(r, &rule); err != nil {
		writeErr(w, http.StatusBadRequest, err.Error())
		return
	}
	rule.ID = id
	if err := s.deps.Store.SaveAlertRule(rule); err != nil {
		writeErr(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, rule)
}

func (s *Server) handleDeleteAlertRule(w http.ResponseWriter, r *http.Request) {
	if err := s.deps.Store.DeleteAlertRule(r.PathValue("id")); err != nil {
		writeErr(w, http.StatusInternalServerError, err.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleEvaluateAlerts(w http.ResponseWriter, r *http.Request) {
	var req struct {
		HostID     string             `json:"host_id"`
		Containers []model.Container `json:"containers"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeErr(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.Containers == nil {
		containers, err := s.deps.Store.ListAllContainers()
		if err != nil {
			writeErr(w, http.StatusInternalServerError, err.Error())
			return
		}
		req.Containers = containers
	}
	s.deps.Alerts.EvaluateReport(r.Context(), req.HostID, req.Containers)
	s.deps.Alerts.RefreshActiveAlertsGauge()
	writeJSON(w, http.StatusOK, map[string]string{"status": "evaluated"})
}

func (s *Server) handleListAlerts(w http.ResponseWriter, r *http.Request) {
	alerts, err := s.deps.Store.ListAlerts()
	if err != nil {
		writeErr(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, alerts)
}

func (s *Server) handleGetAlert(w http.ResponseWriter, r *http.Request) {
	a, ok, err := s.deps.Store.GetAlert(r.PathValue("id"))
	if err != nil {
		writeErr(w, http.StatusInternalServerError, err.Error())
		return
	}
	if !ok {
		writeErr(w, http.StatusNotFound, "alert not found")
		return
	}
	writeJSON(w, http.StatusOK, a)
}

func (s *Server) handleAcknowledgeAlert(w http.ResponseWriter, r *http.Request) {
	a, ok, err := s.deps.Store.GetAlert(r.PathValue("id"))
	if err != nil {
		writeErr(w, http.StatusInternalServerError, err.Error())
		return
	}
	if !ok {
		writeErr(w, http.StatusNotFound, "alert not found")
		return
	}
	a.Status = model.AlertAcknowledged
	a.AcknowledgedAt = time.Now().UTC()
	if err := s.deps.Store.SaveAlert(a); err != nil {
		writeErr(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, a)
}

func (s *Server) handleResolveAlert(w http.ResponseWriter, r *http.Request) {
	a, ok, err := s.deps.Store.GetAlert(r.PathValue("id"))
	if err != nil {
		writeErr(w, http.StatusInternalServerError, err.Error())
		return
	}
	if !ok {
		writeErr(w, http.StatusNotFound, "alert not found")
		return
	}
	a.Status = model.AlertResolved
	a.ResolvedAt = time.Now().UTC()
	if err := s.deps.Store.SaveAlert(a); err != nil {
		writeErr(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.deps.Alerts.RefreshActiveAlertsGauge()
	writeJSON(w, http.StatusOK, a)
}
