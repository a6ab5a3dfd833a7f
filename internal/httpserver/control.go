package httpserver

import (
	"io"
	"net/http"

	"github.com/infra-mapper/infra-mapper/internal/apikey"
	"github.com/infra-mapper/infra-mapper/internal/relay"
)

// handleContainerControl forwards POST /api/v1/containers/{surrogate_id}/{action}
// to the owning host's agent command server (C12, §4.12).
func (s *Server) handleContainerControl(w http.ResponseWriter, r *http.Request) {
	surrogateID := r.PathValue("surrogate_id")
	action := relay.Action(r.PathValue("action"))
	token := apikey.ExtractBearer(r.Header.Get("Authorization"))

	var body []byte
	if r.Body != nil {
		b, err := io.ReadAll(r.Body)
		if err != nil {
			writeErr(w, http.StatusBadRequest, "cannot read request body")
			return
		}
		body = b
	}

	resp, err := s.deps.Relay.Invoke(r.Context(), "", surrogateID, action, body, token)
	if err != nil {
		if rerr, ok := err.(*relay.Error); ok {
			writeErr(w, rerr.Status, rerr.Msg)
			return
		}
		writeErr(w, http.StatusBadGateway, err.Error())
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write(resp)
}
