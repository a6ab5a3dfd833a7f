package logsink

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/infra-mapper/infra-mapper/internal/clock"
	"github.com/infra-mapper/infra-mapper/internal/logging"
	"github.com/infra-mapper/infra-mapper/internal/model"
)

type fakeStore struct {
	sinks []model.LogSink
	saved []model.LogSink
}

func (f *fakeStore) ListLogSinks() ([]model.LogSink, error) { return f.sinks, nil }
func (f *fakeStore) SaveLogSink(s model.LogSink) error {
	f.saved = append(f.saved, s)
	return nil
}

func testLogger() *logging.Logger { return logging.New(false, "error") }

func testEntries() []model.ContainerLogEntry {
	ts := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	return []model.ContainerLogEntry{
		{HostID: "prod-01", ContainerID: "abc123", Timestamp: ts, Stream: "stdout", Message: "started"},
		{HostID: "prod-01", ContainerID: "def456", Timestamp: ts, Stream: "stderr", Message: "boom"},
	}
}

func TestFilterEntries_HostFilterDropsWholeBatch(t *testing.T) {
	sink := model.LogSink{FilterHosts: []string{"other-host"}}
	out := filterEntries(sink, testEntries())
	if out != nil {
		t.Fatalf("expected nil, got %v", out)
	}
}

func TestFilterEntries_ContainerAndStreamFilters(t *testing.T) {
	sink := model.LogSink{FilterContainers: []string{"abc123"}}
	out := filterEntries(sink, testEntries())
	if len(out) != 1 || out[0].ContainerID != "abc123" {
		t.Fatalf("expected only abc123, got %v", out)
	}

	sink = model.LogSink{FilterStreams: []string{"stderr"}}
	out = filterEntries(sink, testEntries())
	if len(out) != 1 || out[0].Stream != "stderr" {
		t.Fatalf("expected only stderr, got %v", out)
	}
}

func TestFilterEntries_NoFiltersPassesAll(t *testing.T) {
	out := filterEntries(model.LogSink{}, testEntries())
	if len(out) != 2 {
		t.Fatalf("expected all entries through, got %d", len(out))
	}
}

func TestForwardSkipsDisabledSinks(t *testing.T) {
	store := &fakeStore{sinks: []model.LogSink{{ID: "s1", SinkType: "noop", Enabled: false}}}
	f := New(store, testLogger(), clock.Real{})
	f.Forward(testEntries())
	if len(store.saved) != 0 {
		t.Fatalf("expected no saves for disabled sink, got %d", len(store.saved))
	}
}

func TestForwardGELFShapesAndCountsSuccess(t *testing.T) {
	var received []gelfMessage
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var m gelfMessage
		_ = json.NewDecoder(r.Body).Decode(&m)
		received = append(received, m)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	store := &fakeStore{sinks: []model.LogSink{{
		ID: "s1", Name: "graylog", SinkType: "gelf", Enabled: true, URL: srv.URL,
		Config: map[string]any{"facility": "docker"},
	}}}
	f := New(store, testLogger(), clock.Real{})
	f.Forward(testEntries())

	if len(received) != 2 {
		t.Fatalf("expected 2 GELF messages, got %d", len(received))
	}
	if received[0].Level != 6 {
		t.Errorf("expected stdout level 6, got %d", received[0].Level)
	}
	if received[1].Level != 3 {
		t.Errorf("expected stderr level 3, got %d", received[1].Level)
	}
	if len(store.saved) != 1 || store.saved[0].LogsSent != 2 {
		t.Fatalf("expected counters saved with logs_sent=2, got %+v", store.saved)
	}
}

func TestForwardWebhookFailureBumpsErrorCounter(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	store := &fakeStore{sinks: []model.LogSink{{
		ID: "s1", SinkType: "webhook", Enabled: true, URL: srv.URL,
	}}}
	f := New(store, testLogger(), clock.Real{})
	f.Forward(testEntries())

	if len(store.saved) != 1 {
		t.Fatalf("expected one save, got %d", len(store.saved))
	}
	if store.saved[0].ErrorsCount != 1 {
		t.Errorf("expected errors_count=1, got %d", store.saved[0].ErrorsCount)
	}
	if store.saved[0].LastErrorMessage == "" {
		t.Error("expected last_error_message set")
	}
}

func TestForwardContinuesAfterOneSinkFails(t *testing.T) {
	bad := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer bad.Close()
	good := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer good.Close()

	store := &fakeStore{sinks: []model.LogSink{
		{ID: "bad", SinkType: "webhook", Enabled: true, URL: bad.URL},
		{ID: "good", SinkType: "webhook", Enabled: true, URL: good.URL},
	}}
	f := New(store, testLogger(), clock.Real{})
	f.Forward(testEntries())

	if len(store.saved) != 2 {
		t.Fatalf("expected both sinks attempted, got %d saves", len(store.saved))
	}
}

func TestForwardNoopSinkSucceedsWithoutNetwork(t *testing.T) {
	store := &fakeStore{sinks: []model.LogSink{{ID: "s1", Name: "local", SinkType: "noop", Enabled: true}}}
	f := New(store, testLogger(), clock.Real{})
	f.Forward(testEntries())

	if len(store.saved) != 1 || store.saved[0].ErrorsCount != 0 || store.saved[0].LogsSent != 2 {
		t.Fatalf("expected noop sink to succeed, got %+v", store.saved)
	}
}
