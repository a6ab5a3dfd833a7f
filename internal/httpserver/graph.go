package httpserver

import (
	"net/http"
	"strconv"

	"github.com/infra-mapper/infra-mapper/internal/model"
)

func (s *Server) handleGraph(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	includeOffline, _ := strconv.ParseBool(q.Get("include_offline"))
	filter := model.GraphFilter{
		IncludeOffline: includeOffline,
		HostPattern:    q.Get("host_filter"),
		ProjectPattern: q.Get("project_filter"),
		OrganizationID: q.Get("organization_id"),
		TeamID:         q.Get("team_id"),
	}
	data, err := s.deps.Graph.Materialize(filter)
	if err != nil {
		writeErr(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, data)
}
