// Package relay forwards container-control requests from the HTTP API
// to the owning host's agent command server (C12, §4.12). It resolves
// the target host's reachable IP, translates the graph's composite
// container id to the agent's bare short id, and forwards the request
// with the same bearer token used to authenticate the inbound call.
package relay

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/infra-mapper/infra-mapper/internal/model"
)

// defaultTimeout bounds the round trip to the agent (§4.12: "60s default").
const defaultTimeout = 60 * time.Second

// Store is the subset of internal/store the relay needs to resolve a
// container reference to its owning host.
type Store interface {
	GetHost(id string) (model.Host, bool, error)
	GetContainer(hostID, shortID string) (model.Container, bool, error)
}

// Action identifies a supported container-control action.
type Action string

const (
	ActionStart   Action = "start"
	ActionStop    Action = "stop"
	ActionRestart Action = "restart"
	ActionExec    Action = "exec"
	ActionStats   Action = "stats"
	ActionLogs    Action = "logs"
)

// Relay forwards one container-control request to an agent.
type Relay struct {
	store  Store
	client *http.Client
}

// New creates a Relay.
func New(store Store) *Relay {
	return &Relay{
		store:  store,
		client: &http.Client{Timeout: defaultTimeout},
	}
}

// Error is returned when the relay itself cannot reach the agent, so
// the HTTP layer can translate it into the matching status code
// (§4.12: 504 on timeout, 503 if no command_port/reachable IP).
type Error struct {
	Status int
	Msg    string
}

func (e *Error) Error() string { return e.Msg }

// splitSurrogateID splits the graph's composite container id
// ("<host_id>:<short_id>") into its parts. If no ":" separator is
// present, hostID is returned empty and the whole string is treated
// as the short id (caller-supplied hostID then wins).
func splitSurrogateID(surrogateID string) (hostID, shortID string) {
	idx := strings.LastIndex(surrogateID, ":")
	if idx < 0 {
		return "", surrogateID
	}
	return surrogateID[:idx], surrogateID[idx+1:]
}

// Invoke resolves surrogateID ("<host_id>:<short_id>" or a bare short
// id scoped by hostHint) to a host and container, then forwards the
// action to that host's command server. body is forwarded verbatim
// for actions that take one (exec); it may be nil. bearerToken is the
// same token the inbound API request carried.
func (r *Relay) Invoke(ctx context.Context, hostHint, surrogateID string, action Action, body []byte, bearerToken string) ([]byte, error) {
	hostID, shortID := splitSurrogateID(surrogateID)
	if hostID == "" {
		hostID = hostHint
	}
	if hostID == "" {
		return nil, &Error{Status: http.StatusBadRequest, Msg: "no host could be resolved for container reference"}
	}

	host, ok, err := r.store.GetHost(hostID)
	if err != nil {
		return nil, &Error{Status: http.StatusInternalServerError, Msg: err.Error()}
	}
	if !ok {
		return nil, &Error{Status: http.StatusNotFound, Msg: fmt.Sprintf("host %q not found", hostID)}
	}

	container, ok, err := r.store.GetContainer(hostID, shortID)
	if err != nil {
		return nil, &Error{Status: http.StatusInternalServerError, Msg: err.Error()}
	}
	if !ok {
		return nil, &Error{Status: http.StatusNotFound, Msg: fmt.Sprintf("container %q not found on host %q", shortID, hostID)}
	}

	ip := reachableIP(host)
	if host.CommandPort == 0 || ip == "" {
		return nil, &Error{Status: http.StatusServiceUnavailable, Msg: fmt.Sprintf("host %q has no command_port or reachable ip", hostID)}
	}

	method := http.MethodPost
	if action == ActionLogs || action == ActionStats {
		method = http.MethodGet
	}
	url := fmt.Sprintf("http://%s:%d/containers/%s/%s", ip, host.CommandPort, model.NormalizeShortID(container.ShortID), action)

	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	var reqBody io.Reader
	if body != nil {
		reqBody = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, url, reqBody)
	if err != nil {
		return nil, &Error{Status: http.StatusInternalServerError, Msg: err.Error()}
	}
	req.Header.Set("Authorization", "Bearer "+bearerToken)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := r.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, &Error{Status: http.StatusGatewayTimeout, Msg: "agent command timed out"}
		}
		return nil, &Error{Status: http.StatusBadGateway, Msg: err.Error()}
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &Error{Status: http.StatusBadGateway, Msg: err.Error()}
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &Error{Status: resp.StatusCode, Msg: agentErrorMessage(respBody)}
	}
	return respBody, nil
}

func agentErrorMessage(body []byte) string {
	var v struct {
		Error string `json:"error"`
	}
	if json.Unmarshal(body, &v) == nil && v.Error != "" {
		return v.Error
	}
	return string(body)
}

// reachableIP picks overlay_ip if present, else the first LAN IP (§4.12).
func reachableIP(h model.Host) string {
	if h.OverlayIP != "" {
		return h.OverlayIP
	}
	if len(h.IPs) > 0 {
		return h.IPs[0]
	}
	return ""
}
