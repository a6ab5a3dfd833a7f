package store

import (
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/infra-mapper/infra-mapper/internal/model"
)

func testStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open(%q): %v", path, err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestHostRoundTrip(t *testing.T) {
	s := testStore(t)

	h := model.Host{ID: "host-1", Hostnames: []string{"web-1"}, IsOnline: true}
	if err := s.UpsertHost(h); err != nil {
		t.Fatalf("UpsertHost: %v", err)
	}

	got, ok, err := s.GetHost("host-1")
	if err != nil {
		t.Fatalf("GetHost: %v", err)
	}
	if !ok {
		t.Fatal("expected host to be found")
	}
	if got.Hostnames[0] != "web-1" {
		t.Errorf("got hostnames %v, want [web-1]", got.Hostnames)
	}
}

func TestHostMissing(t *testing.T) {
	s := testStore(t)

	_, ok, err := s.GetHost("nonexistent")
	if err != nil {
		t.Fatalf("GetHost: %v", err)
	}
	if ok {
		t.Error("expected host not to be found")
	}
}

func TestHostDelete(t *testing.T) {
	s := testStore(t)

	if err := s.UpsertHost(model.Host{ID: "host-1"}); err != nil {
		t.Fatal(err)
	}
	if err := s.DeleteHost("host-1"); err != nil {
		t.Fatalf("DeleteHost: %v", err)
	}
	_, ok, err := s.GetHost("host-1")
	if err != nil {
		t.Fatal(err)
	}
	if ok {
		t.Error("expected host to be gone after delete")
	}
}

func TestListHosts(t *testing.T) {
	s := testStore(t)

	if err := s.UpsertHost(model.Host{ID: "a"}); err != nil {
		t.Fatal(err)
	}
	if err := s.UpsertHost(model.Host{ID: "b"}); err != nil {
		t.Fatal(err)
	}
	hosts, err := s.ListHosts()
	if err != nil {
		t.Fatalf("ListHosts: %v", err)
	}
	if len(hosts) != 2 {
		t.Fatalf("got %d hosts, want 2", len(hosts))
	}
}

func TestReplaceHostContainersOverwrites(t *testing.T) {
	s := testStore(t)

	first := []model.Container{{HostID: "host-1", ShortID: "abc123"}}
	if err := s.ReplaceHostContainers("host-1", first); err != nil {
		t.Fatalf("ReplaceHostContainers: %v", err)
	}
	second := []model.Container{{HostID: "host-1", ShortID: "def456"}}
	if err := s.ReplaceHostContainers("host-1", second); err != nil {
		t.Fatalf("ReplaceHostContainers: %v", err)
	}

	got, err := s.ListHostContainers("host-1")
	if err != nil {
		t.Fatalf("ListHostContainers: %v", err)
	}
	if len(got) != 1 || got[0].ShortID != "def456" {
		t.Errorf("got %v, want a single container def456", got)
	}
}

func TestListAllContainersSpansHosts(t *testing.T) {
	s := testStore(t)

	if err := s.ReplaceHostContainers("host-1", []model.Container{{HostID: "host-1", ShortID: "abc"}}); err != nil {
		t.Fatal(err)
	}
	if err := s.ReplaceHostContainers("host-2", []model.Container{{HostID: "host-2", ShortID: "def"}}); err != nil {
		t.Fatal(err)
	}

	all, err := s.ListAllContainers()
	if err != nil {
		t.Fatalf("ListAllContainers: %v", err)
	}
	if len(all) != 2 {
		t.Fatalf("got %d containers, want 2", len(all))
	}
}

func TestGetContainer(t *testing.T) {
	s := testStore(t)

	if err := s.ReplaceHostContainers("host-1", []model.Container{{HostID: "host-1", ShortID: "abc123", Name: "web"}}); err != nil {
		t.Fatal(err)
	}

	got, ok, err := s.GetContainer("host-1", "abc123")
	if err != nil {
		t.Fatalf("GetContainer: %v", err)
	}
	if !ok {
		t.Fatal("expected container to be found")
	}
	if got.Name != "web" {
		t.Errorf("got name %q, want web", got.Name)
	}

	_, ok, err = s.GetContainer("host-1", "nonexistent")
	if err != nil {
		t.Fatal(err)
	}
	if ok {
		t.Error("expected missing container not to be found")
	}
}

func TestHostMetricsOrderedBySince(t *testing.T) {
	s := testStore(t)

	base := time.Now().UTC().Truncate(time.Second)
	older := model.HostMetricsPoint{HostID: "host-1", Timestamp: base.Add(-time.Hour), CPUPercent: 10}
	newer := model.HostMetricsPoint{HostID: "host-1", Timestamp: base, CPUPercent: 20}
	if err := s.AppendHostMetrics(older); err != nil {
		t.Fatal(err)
	}
	if err := s.AppendHostMetrics(newer); err != nil {
		t.Fatal(err)
	}

	all, err := s.ListHostMetrics("host-1", base.Add(-2*time.Hour))
	if err != nil {
		t.Fatalf("ListHostMetrics: %v", err)
	}
	if len(all) != 2 {
		t.Fatalf("got %d points, want 2", len(all))
	}

	recentOnly, err := s.ListHostMetrics("host-1", base.Add(-time.Minute))
	if err != nil {
		t.Fatalf("ListHostMetrics: %v", err)
	}
	if len(recentOnly) != 1 || recentOnly[0].CPUPercent != 20 {
		t.Errorf("got %v, want just the newer point", recentOnly)
	}
}

func TestAppendLogsAndTruncate(t *testing.T) {
	s := testStore(t)

	now := time.Now().UTC()
	entries := []model.ContainerLogEntry{
		{HostID: "host-1", ContainerID: "abc123", Timestamp: now, Stream: "stdout", Message: "hello"},
		{HostID: "host-1", ContainerID: "abc123", Timestamp: now.Add(time.Second), Stream: "stdout", Message: strings.Repeat("x", model.MaxLogMessageBytes+10)},
	}
	if err := s.AppendLogs(entries); err != nil {
		t.Fatalf("AppendLogs: %v", err)
	}

	got, err := s.ListLogs("host-1", "abc123", time.Time{}, 10)
	if err != nil {
		t.Fatalf("ListLogs: %v", err)
	}
	if len(got) != 2 || got[0].Message != "hello" {
		t.Fatalf("got %d entries, want 2 with the first message hello", len(got))
	}
	if len(got[1].Message) != model.MaxLogMessageBytes {
		t.Errorf("long message length = %d, want %d", len(got[1].Message), model.MaxLogMessageBytes)
	}
}

func TestAlertRuleRoundTrip(t *testing.T) {
	s := testStore(t)

	rule := model.AlertRule{ID: "rule-1", RuleType: model.RuleContainerStopped, Enabled: true}
	if err := s.SaveAlertRule(rule); err != nil {
		t.Fatalf("SaveAlertRule: %v", err)
	}

	got, ok, err := s.GetAlertRule("rule-1")
	if err != nil {
		t.Fatalf("GetAlertRule: %v", err)
	}
	if !ok || got.RuleType != model.RuleContainerStopped {
		t.Errorf("got %v, ok=%v", got, ok)
	}

	if err := s.DeleteAlertRule("rule-1"); err != nil {
		t.Fatalf("DeleteAlertRule: %v", err)
	}
	_, ok, err = s.GetAlertRule("rule-1")
	if err != nil {
		t.Fatal(err)
	}
	if ok {
		t.Error("expected rule to be gone after delete")
	}
}

func TestAlertByFingerprintLookup(t *testing.T) {
	s := testStore(t)

	a := model.Alert{ID: "alert-1", Fingerprint: "fp-1", Status: model.AlertActive}
	if err := s.SaveAlert(a); err != nil {
		t.Fatalf("SaveAlert: %v", err)
	}

	got, ok, err := s.GetAlertByFingerprint("fp-1")
	if err != nil {
		t.Fatalf("GetAlertByFingerprint: %v", err)
	}
	if !ok || got.ID != "alert-1" {
		t.Errorf("got %v, ok=%v", got, ok)
	}

	active, err := s.ListActiveAlerts()
	if err != nil {
		t.Fatalf("ListActiveAlerts: %v", err)
	}
	if len(active) != 1 {
		t.Fatalf("got %d active alerts, want 1", len(active))
	}

	resolved := a
	resolved.Status = model.AlertResolved
	if err := s.SaveAlert(resolved); err != nil {
		t.Fatal(err)
	}
	active, err = s.ListActiveAlerts()
	if err != nil {
		t.Fatal(err)
	}
	if len(active) != 0 {
		t.Errorf("got %d active alerts after resolve, want 0", len(active))
	}
}

func TestAPIKeyHashRegistration(t *testing.T) {
	s := testStore(t)

	ok, err := s.IsAPIKeyHashRegistered("deadbeef")
	if err != nil {
		t.Fatalf("IsAPIKeyHashRegistered: %v", err)
	}
	if ok {
		t.Error("unregistered hash should not be registered")
	}

	if err := s.RegisterAPIKeyHash("deadbeef"); err != nil {
		t.Fatalf("RegisterAPIKeyHash: %v", err)
	}
	ok, err = s.IsAPIKeyHashRegistered("deadbeef")
	if err != nil {
		t.Fatal(err)
	}
	if !ok {
		t.Error("expected hash to be registered")
	}
}

func TestSettingRoundTrip(t *testing.T) {
	s := testStore(t)

	if err := s.SaveSetting("offline_after", "120"); err != nil {
		t.Fatalf("SaveSetting: %v", err)
	}
	got, err := s.LoadSetting("offline_after")
	if err != nil {
		t.Fatalf("LoadSetting: %v", err)
	}
	if got != "120" {
		t.Errorf("got %q, want 120", got)
	}
}
