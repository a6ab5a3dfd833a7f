// Package httpserver exposes the ingester's REST/WebSocket surface
// (§6): report ingestion, the graph endpoint, host/stats summaries,
// CRUD on alert rules/channels/alerts/log sinks, container-control
// relay, the realtime WebSocket, and /metrics. Routing follows the
// teacher's internal/web/server.go idiom: http.ServeMux method
// patterns plus a Dependencies struct of narrow interfaces.
package httpserver

import (
	"context"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/infra-mapper/infra-mapper/internal/graph"
	"github.com/infra-mapper/infra-mapper/internal/ingest"
	"github.com/infra-mapper/infra-mapper/internal/logging"
	"github.com/infra-mapper/infra-mapper/internal/model"
	"github.com/infra-mapper/infra-mapper/internal/realtime"
	"github.com/infra-mapper/infra-mapper/internal/relay"
)

// Store is the subset of internal/store the REST layer reads/writes
// directly (ingest, health, alerts, and the graph materializer use
// their own narrower Store interfaces for their internal work).
type Store interface {
	ListHosts() ([]model.Host, error)
	ListAllContainers() ([]model.Container, error)
	ListAllConnections() ([]model.Connection, error)

	ListAlertRules() ([]model.AlertRule, error)
	GetAlertRule(id string) (model.AlertRule, bool, error)
	SaveAlertRule(r model.AlertRule) error
	DeleteAlertRule(id string) error

	ListAlerts() ([]model.Alert, error)
	GetAlert(id string) (model.Alert, bool, error)
	SaveAlert(a model.Alert) error

	ListAlertChannels() ([]model.AlertChannel, error)
	GetAlertChannel(id string) (model.AlertChannel, bool, error)
	SaveAlertChannel(c model.AlertChannel) error
	DeleteAlertChannel(id string) error

	ListLogSinks() ([]model.LogSink, error)
	GetLogSink(id string) (model.LogSink, bool, error)
	SaveLogSink(sink model.LogSink) error
	DeleteLogSink(id string) error

	RegisterAPIKeyHash(hash string) error
	IsAPIKeyHashRegistered(hash string) (bool, error)
}

// AlertEvaluator triggers on-demand rule evaluation for
// POST /api/v1/alerts/evaluate.
type AlertEvaluator interface {
	EvaluateReport(ctx context.Context, hostID string, containers []model.Container)
	RefreshActiveAlertsGauge()
}

// ChannelTester sends a synthetic test alert to one channel.
type ChannelTester interface {
	TestChannel(ctx context.Context, ch model.AlertChannel) error
}

// Dependencies wires everything the server needs.
type Dependencies struct {
	Store          Store
	Graph          *graph.Materializer
	Ingest         *ingest.Pipeline
	Alerts         AlertEvaluator
	Notify         ChannelTester
	Relay          *relay.Relay
	Realtime       *realtime.Hub
	Log            *logging.Logger
	StartTime      time.Time
	Version        string
	MetricsEnabled bool
	// AcceptAPIKeyHash validates a report's bearer token hash against
	// registered agent keys (bootstrap keys auto-register on first use).
	AcceptAPIKeyHash func(hash string) (bool, error)
}

// Server is the ingester's HTTP surface.
type Server struct {
	deps Dependencies
	mux  *http.ServeMux
	http *http.Server
}

// New builds a Server with all routes registered.
func New(deps Dependencies) *Server {
	if deps.StartTime.IsZero() {
		deps.StartTime = time.Now()
	}
	s := &Server{deps: deps, mux: http.NewServeMux()}
	s.registerRoutes()
	return s
}

func (s *Server) registerRoutes() {
	s.mux.HandleFunc("GET /health", s.handleHealth)
	if s.deps.MetricsEnabled {
		s.mux.HandleFunc("GET /metrics", func(w http.ResponseWriter, r *http.Request) {
			promhttp.Handler().ServeHTTP(w, r)
		})
	}

	s.mux.HandleFunc("POST /api/v1/report", s.reportAuthed(s.handleReport))

	s.mux.HandleFunc("GET /api/v1/graph", s.handleGraph)
	s.mux.HandleFunc("GET /api/v1/hosts", s.handleHosts)
	s.mux.HandleFunc("GET /api/v1/stats", s.handleStats)

	s.mux.HandleFunc("GET /api/v1/alerts/rules", s.handleListAlertRules)
	s.mux.HandleFunc("POST /api/v1/alerts/rules", s.handleCreateAlertRule)
	s.mux.HandleFunc("GET /api/v1/alerts/rules/{id}", s.handleGetAlertRule)
	s.mux.HandleFunc("PUT /api/v1/alerts/rules/{id}", s.handleUpdateAlertRule)
	s.mux.HandleFunc("DELETE /api/v1/alerts/rules/{id}", s.handleDeleteAlertRule)
	s.mux.HandleFunc("POST /api/v1/alerts/evaluate", s.handleEvaluateAlerts)

	s.mux.HandleFunc("GET /api/v1/alerts", s.handleListAlerts)
	s.mux.HandleFunc("GET /api/v1/alerts/{id}", s.handleGetAlert)
	s.mux.HandleFunc("POST /api/v1/alerts/{id}/acknowledge", s.handleAcknowledgeAlert)
	s.mux.HandleFunc("POST /api/v1/alerts/{id}/resolve", s.handleResolveAlert)

	s.mux.HandleFunc("GET /api/v1/alerts/channels", s.handleListAlertChannels)
	s.mux.HandleFunc("POST /api/v1/alerts/channels", s.handleCreateAlertChannel)
	s.mux.HandleFunc("GET /api/v1/alerts/channels/{id}", s.handleGetAlertChannel)
	s.mux.HandleFunc("PUT /api/v1/alerts/channels/{id}", s.handleUpdateAlertChannel)
	s.mux.HandleFunc("DELETE /api/v1/alerts/channels/{id}", s.handleDeleteAlertChannel)
	s.mux.HandleFunc("POST /api/v1/alerts/channels/{id}/test", s.handleTestAlertChannel)

	s.mux.HandleFunc("GET /api/v1/logsinks", s.handleListLogSinks)
	s.mux.HandleFunc("POST /api/v1/logsinks", s.handleCreateLogSink)
	s.mux.HandleFunc("GET /api/v1/logsinks/{id}", s.handleGetLogSink)
	s.mux.HandleFunc("PUT /api/v1/logsinks/{id}", s.handleUpdateLogSink)
	s.mux.HandleFunc("DELETE /api/v1/logsinks/{id}", s.handleDeleteLogSink)

	s.mux.HandleFunc("POST /api/v1/containers/{surrogate_id}/{action}", s.handleContainerControl)

	if s.deps.Realtime != nil {
		s.mux.HandleFunc("GET /ws", s.deps.Realtime.ServeWS)
	}
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) { s.mux.ServeHTTP(w, r) }

// ListenAndServe starts the HTTP server on addr.
func (s *Server) ListenAndServe(addr string) error {
	s.http = &http.Server{
		Addr:         addr,
		Handler:      s.mux,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 0, // WebSocket connections are long-lived.
		IdleTimeout:  120 * time.Second,
	}
	s.deps.Log.Info("ingester listening", "addr", addr)
	return s.http.ListenAndServe()
}

// Shutdown gracefully stops the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.http == nil {
		return nil
	}
	return s.http.Shutdown(ctx)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":          "ok",
		"uptime_seconds":  int64(time.Since(s.deps.StartTime).Seconds()),
		"version":         s.deps.Version,
	})
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	hosts, err := s.deps.Store.ListHosts()
	if err != nil {
		writeErr(w, http.StatusInternalServerError, err.Error())
		return
	}
	containers, err := s.deps.Store.ListAllContainers()
	if err != nil {
		writeErr(w, http.StatusInternalServerError, err.Error())
		return
	}
	connections, err := s.deps.Store.ListAllConnections()
	if err != nil {
		writeErr(w, http.StatusInternalServerError, err.Error())
		return
	}
	online := 0
	for _, h := range hosts {
		if h.IsOnline {
			online++
		}
	}
	subscribers := 0
	if s.deps.Realtime != nil {
		subscribers = s.deps.Realtime.SubscriberCount()
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"hosts_total":        len(hosts),
		"hosts_online":       online,
		"containers_total":   len(containers),
		"connections_total":  len(connections),
		"ws_subscribers":     subscribers,
	})
}

func (s *Server) handleHosts(w http.ResponseWriter, r *http.Request) {
	hosts, err := s.deps.Store.ListHosts()
	if err != nil {
		writeErr(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, hosts)
}
