package httpserver

import (
	"net/http"

	"github.com/infra-mapper/infra-mapper/internal/apikey"
	"github.com/infra-mapper/infra-mapper/internal/ingest"
	"github.com/infra-mapper/infra-mapper/internal/model"
)

// reportAuthed wraps next with bearer-token auth for the agent report
// endpoint: the token's SHA-256 hash must already be registered (an
// agent registers its key on first successful bootstrap).
func (s *Server) reportAuthed(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		token := apikey.ExtractBearer(r.Header.Get("Authorization"))
		if token == "" {
			writeErr(w, http.StatusUnauthorized, "missing bearer token")
			return
		}
		hash := apikey.Hash(token)
		ok, err := s.acceptAPIKeyHash(hash)
		if err != nil {
			writeErr(w, http.StatusInternalServerError, err.Error())
			return
		}
		if !ok {
			writeErr(w, http.StatusUnauthorized, "unknown api key")
			return
		}
		next(w, r)
	}
}

func (s *Server) acceptAPIKeyHash(hash string) (bool, error) {
	if s.deps.AcceptAPIKeyHash != nil {
		return s.deps.AcceptAPIKeyHash(hash)
	}
	return s.deps.Store.IsAPIKeyHashRegistered(hash)
}

func (s *Server) handleReport(w http.ResponseWriter, r *http.Request) {
	var report model.AgentReport
	if err := decodeJSON(r, &report); err != nil {
		writeErr(w, http.StatusBadRequest, "malformed report: "+err.Error())
		return
	}
	remoteAddr := ingest.RemoteAddrFromRequest(r)
	if err := s.deps.Ingest.Ingest(r.Context(), remoteAddr, report); err != nil {
		writeErr(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "accepted"})
}
