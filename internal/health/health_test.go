package health

import (
	"context"
	"testing"
	"time"

	"github.com/infra-mapper/infra-mapper/internal/clock"
	"github.com/infra-mapper/infra-mapper/internal/logging"
	"github.com/infra-mapper/infra-mapper/internal/model"
)

type fakeStore struct {
	hosts map[string]model.Host
}

func newFakeStore(hosts ...model.Host) *fakeStore {
	s := &fakeStore{hosts: map[string]model.Host{}}
	for _, h := range hosts {
		s.hosts[h.ID] = h
	}
	return s
}

func (s *fakeStore) ListHosts() ([]model.Host, error) {
	var out []model.Host
	for _, h := range s.hosts {
		out = append(out, h)
	}
	return out, nil
}

func (s *fakeStore) UpsertHost(h model.Host) error {
	s.hosts[h.ID] = h
	return nil
}

func TestRecordReport_FreshAgentIsUnknown(t *testing.T) {
	clk := clock.NewFake(time.Now())
	tr := New(newFakeStore(), logging.New(false, "error"), clk)

	host := &model.Host{ID: "host-1"}
	tr.RecordReport(host, model.AgentMetadata{}, 10*time.Millisecond)
	if host.AgentHealth != "unknown" {
		t.Fatalf("expected unknown before 3 reports, got %q", host.AgentHealth)
	}
	tr.RecordReport(host, model.AgentMetadata{}, 10*time.Millisecond)
	if host.AgentHealth != "unknown" {
		t.Fatalf("expected unknown after 2 reports, got %q", host.AgentHealth)
	}
}

func TestRecordReport_HealthyOnceHistoryEstablished(t *testing.T) {
	clk := clock.NewFake(time.Now())
	tr := New(newFakeStore(), logging.New(false, "error"), clk)

	host := &model.Host{ID: "host-1"}
	for i := 0; i < 3; i++ {
		tr.RecordReport(host, model.AgentMetadata{}, 10*time.Millisecond)
	}
	if host.AgentHealth != "healthy" {
		t.Fatalf("expected healthy after 3 clean reports, got %q", host.AgentHealth)
	}
}

func TestRecordReport_ConsecutiveFailuresDegrade(t *testing.T) {
	clk := clock.NewFake(time.Now())
	tr := New(newFakeStore(), logging.New(false, "error"), clk)

	host := &model.Host{ID: "host-1"}
	for i := 0; i < 3; i++ {
		tr.RecordReport(host, model.AgentMetadata{}, 10*time.Millisecond)
	}

	tr.RecordReport(host, model.AgentMetadata{Error: "docker unreachable"}, 10*time.Millisecond)
	if host.AgentHealth != "healthy" {
		t.Fatalf("expected healthy after 1 failure, got %q", host.AgentHealth)
	}

	tr.RecordReport(host, model.AgentMetadata{Error: "docker unreachable"}, 10*time.Millisecond)
	tr.RecordReport(host, model.AgentMetadata{Error: "docker unreachable"}, 10*time.Millisecond)
	if host.AgentHealth != "degraded" {
		t.Fatalf("expected degraded after 3 consecutive failures, got %q", host.AgentHealth)
	}
}

func TestRecordReport_SlowReportDegrades(t *testing.T) {
	clk := clock.NewFake(time.Now())
	tr := New(newFakeStore(), logging.New(false, "error"), clk)

	host := &model.Host{ID: "host-1", ReportInterval: 10}
	for i := 0; i < 3; i++ {
		tr.RecordReport(host, model.AgentMetadata{ReportInterval: 10}, 10*time.Millisecond)
	}
	if host.AgentHealth != "healthy" {
		t.Fatalf("expected healthy before any slow report, got %q", host.AgentHealth)
	}

	// report_duration_ms (9_500ms) > 0.9 * report_interval(10s) * 1000 (9_000ms)
	tr.RecordReport(host, model.AgentMetadata{ReportInterval: 10}, 9500*time.Millisecond)
	if host.AgentHealth != "degraded" {
		t.Fatalf("expected degraded after a slow report, got %q", host.AgentHealth)
	}
}

type recordingNotifier struct {
	changes []string
}

func (n *recordingNotifier) HostHealthChanged(host model.Host, previous string) {
	n.changes = append(n.changes, previous+"->"+host.AgentHealth)
}

func TestSweep_MarksOfflineAfterFiveIntervals(t *testing.T) {
	start := time.Now()
	clk := clock.NewFake(start)
	store := newFakeStore(model.Host{
		ID:             "host-1",
		ReportInterval: 30,
		LastSeen:       start,
		IsOnline:       true,
		AgentHealth:    "healthy",
	})
	tr := New(store, logging.New(false, "error"), clk)
	notifier := &recordingNotifier{}
	tr.SetNotifier(notifier)

	clk.Set(start.Add(6 * 30 * time.Second))
	tr.Sweep(context.Background())

	host := store.hosts["host-1"]
	if host.IsOnline {
		t.Error("expected host to be marked offline")
	}
	if host.AgentHealth != "unhealthy" {
		t.Errorf("expected unhealthy, got %q", host.AgentHealth)
	}
	if len(notifier.changes) != 1 {
		t.Fatalf("expected one state-change notification, got %d", len(notifier.changes))
	}
}
