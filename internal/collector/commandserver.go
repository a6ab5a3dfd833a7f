package collector

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/infra-mapper/infra-mapper/internal/apikey"
	"github.com/infra-mapper/infra-mapper/internal/docker"
	"github.com/infra-mapper/infra-mapper/internal/logging"
	"github.com/infra-mapper/infra-mapper/internal/resources"
)

// commandTimeout bounds start/stop/restart/logs/stats requests; exec
// uses its own timeout (timeout_seconds, at most 30, plus 5s slack).
const commandTimeout = 30 * time.Second

// CommandServer accepts bearer-authed remote commands from the
// ingester's relay (C12, §4.12) and runs them against the local
// Docker daemon. Its ServeMux method-pattern routing follows the
// teacher's http.ServeMux idiom from internal/web, narrowed to a
// single shared bearer secret rather than session cookies.
type CommandServer struct {
	docker    docker.API
	resources *resources.Sampler
	apiKey    string
	log       *logging.Logger
	mux       *http.ServeMux
}

// NewCommandServer creates a CommandServer for the given Docker API.
func NewCommandServer(d docker.API, apiKeyHash string, log *logging.Logger) *CommandServer {
	cs := &CommandServer{docker: d, resources: resources.New(d), apiKey: apiKeyHash, log: log, mux: http.NewServeMux()}
	cs.registerRoutes()
	return cs
}

func (cs *CommandServer) registerRoutes() {
	cs.mux.HandleFunc("POST /containers/{id}/start", cs.authed(cs.handleStart))
	cs.mux.HandleFunc("POST /containers/{id}/stop", cs.authed(cs.handleStop))
	cs.mux.HandleFunc("POST /containers/{id}/restart", cs.authed(cs.handleRestart))
	cs.mux.HandleFunc("POST /containers/{id}/exec", cs.authed(cs.handleExec))
	cs.mux.HandleFunc("GET /containers/{id}/logs", cs.authed(cs.handleLogs))
	cs.mux.HandleFunc("GET /containers/{id}/stats", cs.authed(cs.handleStats))
}

// ServeHTTP implements http.Handler.
func (cs *CommandServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	cs.mux.ServeHTTP(w, r)
}

func (cs *CommandServer) authed(h http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		token := apikey.ExtractBearer(r.Header.Get("Authorization"))
		if token == "" || !apikey.Equal(apikey.Hash(token), cs.apiKey) {
			writeErr(w, http.StatusUnauthorized, "invalid or missing bearer token")
			return
		}
		h(w, r)
	}
}

func writeErr(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": msg})
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

func (cs *CommandServer) handleStart(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), commandTimeout)
	defer cancel()
	id := r.PathValue("id")
	if err := cs.docker.StartContainer(ctx, id); err != nil {
		writeErr(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, map[string]string{"status": "started"})
}

func (cs *CommandServer) handleStop(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), commandTimeout)
	defer cancel()
	id := r.PathValue("id")
	if err := cs.docker.StopContainer(ctx, id, 10); err != nil {
		writeErr(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, map[string]string{"status": "stopped"})
}

func (cs *CommandServer) handleRestart(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), commandTimeout)
	defer cancel()
	id := r.PathValue("id")
	if err := cs.docker.RestartContainer(ctx, id); err != nil {
		writeErr(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, map[string]string{"status": "restarted"})
}

func (cs *CommandServer) handleExec(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Cmd     []string `json:"cmd"`
		Timeout int      `json:"timeout_seconds"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || len(body.Cmd) == 0 {
		writeErr(w, http.StatusBadRequest, "cmd is required")
		return
	}
	timeout := body.Timeout
	if timeout <= 0 || timeout > 30 {
		timeout = 30
	}
	ctx, cancel := context.WithTimeout(r.Context(), time.Duration(timeout+5)*time.Second)
	defer cancel()

	id := r.PathValue("id")
	exitCode, output, err := cs.docker.ExecContainer(ctx, id, body.Cmd, timeout)
	if err != nil {
		writeErr(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, map[string]any{"exit_code": exitCode, "output": output})
}

func (cs *CommandServer) handleLogs(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), commandTimeout)
	defer cancel()
	id := r.PathValue("id")
	lines := 200
	if v := r.URL.Query().Get("lines"); v != "" {
		fmt.Sscanf(v, "%d", &lines)
	}
	out, err := cs.docker.ContainerLogs(ctx, id, lines)
	if err != nil {
		writeErr(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, map[string]string{"logs": out})
}

func (cs *CommandServer) handleStats(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), commandTimeout)
	defer cancel()
	id := r.PathValue("id")
	p, err := cs.resources.SampleContainer(ctx, "", id, id)
	if err != nil {
		writeErr(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, p)
}
