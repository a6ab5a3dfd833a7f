package httpserver

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/infra-mapper/infra-mapper/internal/apikey"
	"github.com/infra-mapper/infra-mapper/internal/graph"
	"github.com/infra-mapper/infra-mapper/internal/ingest"
	"github.com/infra-mapper/infra-mapper/internal/logging"
	"github.com/infra-mapper/infra-mapper/internal/model"
	"github.com/infra-mapper/infra-mapper/internal/relay"
)

// mockStore implements the Store interface in memory.
type mockStore struct {
	hosts       map[string]model.Host
	containers  map[string][]model.Container
	connections map[string][]model.Connection
	rules       map[string]model.AlertRule
	alerts      map[string]model.Alert
	channels    map[string]model.AlertChannel
	sinks       map[string]model.LogSink
	apiKeys     map[string]bool
}

func newMockStore() *mockStore {
	return &mockStore{
		hosts:       map[string]model.Host{},
		containers:  map[string][]model.Container{},
		connections: map[string][]model.Connection{},
		rules:       map[string]model.AlertRule{},
		alerts:      map[string]model.Alert{},
		channels:    map[string]model.AlertChannel{},
		sinks:       map[string]model.LogSink{},
		apiKeys:     map[string]bool{},
	}
}

func (m *mockStore) ListHosts() ([]model.Host, error) {
	var out []model.Host
	for _, h := range m.hosts {
		out = append(out, h)
	}
	return out, nil
}
func (m *mockStore) ListAllContainers() ([]model.Container, error) {
	var out []model.Container
	for _, cs := range m.containers {
		out = append(out, cs...)
	}
	return out, nil
}
func (m *mockStore) ListAllConnections() ([]model.Connection, error) {
	var out []model.Connection
	for _, cs := range m.connections {
		out = append(out, cs...)
	}
	return out, nil
}
func (m *mockStore) ListHostContainers(hostID string) ([]model.Container, error) {
	return m.containers[hostID], nil
}
func (m *mockStore) ListHostConnections(hostID string) ([]model.Connection, error) {
	return m.connections[hostID], nil
}
func (m *mockStore) GetHost(id string) (model.Host, bool, error) {
	h, ok := m.hosts[id]
	return h, ok, nil
}
func (m *mockStore) GetContainer(hostID, shortID string) (model.Container, bool, error) {
	for _, c := range m.containers[hostID] {
		if c.ShortID == shortID {
			return c, true, nil
		}
	}
	return model.Container{}, false, nil
}
func (m *mockStore) ListAlertRules() ([]model.AlertRule, error) {
	var out []model.AlertRule
	for _, r := range m.rules {
		out = append(out, r)
	}
	return out, nil
}
func (m *mockStore) GetAlertRule(id string) (model.AlertRule, bool, error) {
	r, ok := m.rules[id]
	return r, ok, nil
}
func (m *mockStore) SaveAlertRule(r model.AlertRule) error { m.rules[r.ID] = r; return nil }
func (m *mockStore) DeleteAlertRule(id string) error       { delete(m.rules, id); return nil }

func (m *mockStore) ListAlerts() ([]model.Alert, error) {
	var out []model.Alert
	for _, a := range m.alerts {
		out = append(out, a)
	}
	return out, nil
}
func (m *mockStore) GetAlert(id string) (model.Alert, bool, error) {
	a, ok := m.alerts[id]
	return a, ok, nil
}
func (m *mockStore) SaveAlert(a model.Alert) error { m.alerts[a.ID] = a; return nil }

func (m *mockStore) ListAlertChannels() ([]model.AlertChannel, error) {
	var out []model.AlertChannel
	for _, c := range m.channels {
		out = append(out, c)
	}
	return out, nil
}
func (m *mockStore) GetAlertChannel(id string) (model.AlertChannel, bool, error) {
	c, ok := m.channels[id]
	return c, ok, nil
}
func (m *mockStore) SaveAlertChannel(c model.AlertChannel) error {
	m.channels[c.ID] = c
	return nil
}
func (m *mockStore) DeleteAlertChannel(id string) error { delete(m.channels, id); return nil }

func (m *mockStore) ListLogSinks() ([]model.LogSink, error) {
	var out []model.LogSink
	for _, s := range m.sinks {
		out = append(out, s)
	}
	return out, nil
}
func (m *mockStore) GetLogSink(id string) (model.LogSink, bool, error) {
	s, ok := m.sinks[id]
	return s, ok, nil
}
func (m *mockStore) SaveLogSink(s model.LogSink) error { m.sinks[s.ID] = s; return nil }
func (m *mockStore) DeleteLogSink(id string) error     { delete(m.sinks, id); return nil }

func (m *mockStore) RegisterAPIKeyHash(hash string) error {
	m.apiKeys[hash] = true
	return nil
}
func (m *mockStore) IsAPIKeyHashRegistered(hash string) (bool, error) {
	return m.apiKeys[hash], nil
}

// mockIngestStore satisfies ingest.Store for report tests.
type mockIngestStore struct{ *mockStore }

func (m *mockIngestStore) UpsertHost(h model.Host) error {
	m.hosts[h.ID] = h
	return nil
}
func (m *mockIngestStore) ReplaceHostContainers(hostID string, containers []model.Container) error {
	m.containers[hostID] = containers
	return nil
}
func (m *mockIngestStore) ReplaceHostNetworks(hostID string, networks []model.Network) error {
	return nil
}
func (m *mockIngestStore) ReplaceHostConnections(hostID string, conns []model.Connection) error {
	m.connections[hostID] = conns
	return nil
}
func (m *mockIngestStore) AppendLogs(entries []model.ContainerLogEntry) error { return nil }
func (m *mockIngestStore) AppendHostMetrics(p model.HostMetricsPoint) error   { return nil }
func (m *mockIngestStore) AppendContainerMetrics(points []model.ContainerMetricsPoint) error {
	return nil
}

type noopHealth struct{}

func (noopHealth) RecordReport(host *model.Host, agent model.AgentMetadata, d time.Duration) {}

type noopAlerts struct{}

func (noopAlerts) EvaluateReport(ctx context.Context, hostID string, containers []model.Container) {
}
func (noopAlerts) RefreshActiveAlertsGauge() {}

type noopLogs struct{}

func (noopLogs) Forward(entries []model.ContainerLogEntry) {}

type noopBroadcast struct{}

func (noopBroadcast) Broadcast(eventType string, data any) {}

type noopNotify struct{}

func (noopNotify) TestChannel(ctx context.Context, ch model.AlertChannel) error { return nil }

func testLogger() *logging.Logger { return logging.New(false, "error") }

func newTestServer(t *testing.T) (*Server, *mockStore) {
	t.Helper()
	ms := newMockStore()
	pipeline := ingest.New(&mockIngestStore{ms}, noopHealth{}, noopAlerts{}, noopLogs{}, noopBroadcast{}, testLogger())
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	materializer := graph.New(ms, func() time.Time { return now })
	rl := relay.New(ms)

	s := New(Dependencies{
		Store:     ms,
		Graph:     materializer,
		Ingest:    pipeline,
		Alerts:    noopAlerts{},
		Notify:    noopNotify{},
		Relay:     rl,
		Log:       testLogger(),
		StartTime: now,
		Version:   "test",
	})
	return s, ms
}

func TestHandleReportRejectsMissingBearer(t *testing.T) {
	s, _ := newTestServer(t)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/report", bytes.NewReader([]byte(`{}`)))
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
}

func TestHandleReportAcceptsRegisteredKey(t *testing.T) {
	s, ms := newTestServer(t)
	token := "imk_testtoken"
	hash := apikey.Hash(token)
	ms.apiKeys[hash] = true

	report := model.AgentReport{
		Host:      model.Host{ID: "h1"},
		Timestamp: time.Now(),
	}
	body, _ := json.Marshal(report)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/report", bytes.NewReader(body))
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)
	if rec.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d: %s", rec.Code, rec.Body.String())
	}
	if _, ok := ms.hosts["h1"]; !ok {
		t.Error("expected host to be ingested")
	}
}

func TestHandleGraphReturnsMaterializedData(t *testing.T) {
	s, ms := newTestServer(t)
	ms.hosts["h1"] = model.Host{ID: "h1", LastSeen: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}

	req := httptest.NewRequest(http.MethodGet, "/api/v1/graph", nil)
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var data model.GraphData
	if err := json.Unmarshal(rec.Body.Bytes(), &data); err != nil {
		t.Fatalf("bad json: %v", err)
	}
}

func TestHandleAlertRuleCRUD(t *testing.T) {
	s, _ := newTestServer(t)

	createBody := `{"rule_type":"host_offline","severity":"critical","enabled":true,"cooldown_minutes":15}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/alerts/rules", bytes.NewReader([]byte(createBody)))
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
	var created model.AlertRule
	_ = json.Unmarshal(rec.Body.Bytes(), &created)
	if created.ID == "" {
		t.Fatal("expected generated rule id")
	}

	req = httptest.NewRequest(http.MethodGet, "/api/v1/alerts/rules/"+created.ID, nil)
	rec = httptest.NewRecorder()
	s.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 on get, got %d", rec.Code)
	}

	req = httptest.NewRequest(http.MethodDelete, "/api/v1/alerts/rules/"+created.ID, nil)
	rec = httptest.NewRecorder()
	s.ServeHTTP(rec, req)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("expected 204 on delete, got %d", rec.Code)
	}

	req = httptest.NewRequest(http.MethodGet, "/api/v1/alerts/rules/"+created.ID, nil)
	rec = httptest.NewRecorder()
	s.ServeHTTP(rec, req)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 after delete, got %d", rec.Code)
	}
}

func TestHandleContainerControlTranslatesRelayError(t *testing.T) {
	s, _ := newTestServer(t)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/containers/unknown-host:abc/start", nil)
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for unknown host, got %d", rec.Code)
	}
}

func TestHandleHealthAndStats(t *testing.T) {
	s, ms := newTestServer(t)
	ms.hosts["h1"] = model.Host{ID: "h1", IsOnline: true}

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	req = httptest.NewRequest(http.MethodGet, "/api/v1/stats", nil)
	rec = httptest.NewRecorder()
	s.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var stats map[string]any
	_ = json.Unmarshal(rec.Body.Bytes(), &stats)
	if int(stats["hosts_total"].(float64)) != 1 {
		t.Errorf("expected hosts_total=1, got %v", stats["hosts_total"])
	}
}
