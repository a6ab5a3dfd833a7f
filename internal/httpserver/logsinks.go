package httpserver

import (
	"net/http"

	"github.com/google/uuid"

	"github.com/infra-mapper/infra-mapper/internal/model"
)

func (s *Server) handleListLogSinks(w http.ResponseWriter, r *http.Request) {
	sinks, err := s.deps.Store.ListLogSinks()
	if err != nil {
		writeErr(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, sinks)
}

func (s *Server) handleCreateLogSink(w http.ResponseWriter, r *http.Request) {
	var sink model.LogSink
	if err := decodeJSON(r, &sink); err != nil {
		writeErr(w, http.StatusBadRequest, err.Error())
		return
	}
	if sink.ID == "" {
		sink.ID = uuid.NewString()
	}
	if err := s.deps.Store.SaveLogSink(sink); err != nil {
		writeErr(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusCreated, sink)
}

func (s *Server) handleGetLogSink(w http.ResponseWriter, r *http.Request) {
	sink, ok, err := s.deps.Store.GetLogSink(r.PathValue("id"))
	if err != nil {
		writeErr(w, http.StatusInternalServerError, err.Error())
		return
	}
	if !ok {
		writeErr(w, http.StatusNotFound, "log sink not found")
		return
	}
	writeJSON(w, http.StatusOK, sink)
}

func (s *Server) handleUpdateLogSink(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if _, ok, err := s.deps.Store.GetLogSink(id); err != nil {
		writeErr(w, http.StatusInternalServerError, err.Error())
		return
	} else if !ok {
		writeErr(w, http.StatusNotFound, "log sink not found")
		return
	}
	var sink model.LogSink
	if err := decodeJSON(r, &sink); err != nil {
		writeErr(w, http.StatusBadRequest, err.Error())
		return
	}
	sink.ID = id
	if err := s.deps.Store.SaveLogSink(sink); err != nil {
		writeErr(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, sink)
}

func (s *Server) handleDeleteLogSink(w http.ResponseWriter, r *http.Request) {
	if err := s.deps.Store.DeleteLogSink(r.PathValue("id")); err != nil {
		writeErr(w, http.StatusInternalServerError, err.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
