package httpserver

import (
	"net/http"

	"github.com/google/uuid"

	"github.com/infra-mapper/infra-mapper/internal/model"
)

func (s *Server) handleListAlertChannels(w http.ResponseWriter, r *http.Request) {
	channels, err := s.deps.Store.ListAlertChannels()
	if err != nil {
		writeErr(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, channels)
}

func (s *Server) handleCreateAlertChannel(w http.ResponseWriter, r *http.Request) {
	var ch model.AlertChannel
	if err := decodeJSON(r, &ch); err != nil {
		writeErr(w, http.StatusBadRequest, err.Error())
		return
	}
	if ch.ID == "" {
		ch.ID = uuid.NewString()
	}
	if err := s.deps.Store.SaveAlertChannel(ch); err != nil {
		writeErr(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusCreated, ch)
}

func (s *Server) handleGetAlertChannel(w http.ResponseWriter, r *http.Request) {
	ch, ok, err := s.deps.Store.GetAlertChannel(r.PathValue("id"))
	if err != nil {
		writeErr(w, http.StatusInternalServerError, err.Error())
		return
	}
	if !ok {
		writeErr(w, http.StatusNotFound, "alert channel not found")
		return
	}
	writeJSON(w, http.StatusOK, ch)
}

func (s *Server) handleUpdateAlertChannel(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if _, ok, err := s.deps.Store.GetAlertChannel(id); err != nil {
		writeErr(w, http.StatusInternalServerError, err.Error())
		return
	} else if !ok {
		writeErr(w, http.StatusNotFound, "alert channel not found")
		return
	}
	var ch model.AlertChannel
	if err := decodeJSON(r, &ch); err != nil {
		writeErr(w, http.StatusBadRequest, err.Error())
		return
	}
	ch.ID = id
	if err := s.deps.Store.SaveAlertChannel(ch); err != nil {
		writeErr(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, ch)
}

func (s *Server) handleDeleteAlertChannel(w http.ResponseWriter, r *http.Request) {
	if err := s.deps.Store.DeleteAlertChannel(r.PathValue("id")); err != nil {
		writeErr(w, http.StatusInternalServerError, err.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleTestAlertChannel(w http.ResponseWriter, r *http.Request) {
	ch, ok, err := s.deps.Store.GetAlertChannel(r.PathValue("id"))
	if err != nil {
		writeErr(w, http.StatusInternalServerError, err.Error())
		return
	}
	if !ok {
		writeErr(w, http.StatusNotFound, "alert channel not found")
		return
	}
	if err := s.deps.Notify.TestChannel(r.Context(), ch); err != nil {
		writeErr(w, http.StatusBadGateway, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "sent"})
}
