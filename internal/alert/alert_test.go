package alert

import (
	"context"
	"testing"
	"time"

	"github.com/infra-mapper/infra-mapper/internal/clock"
	"github.com/infra-mapper/infra-mapper/internal/logging"
	"github.com/infra-mapper/infra-mapper/internal/model"
)

type fakeStore struct {
	rules      []model.AlertRule
	hosts      map[string]model.Host
	containers map[string][]model.Container
	alerts     map[string]model.Alert // by fingerprint, latest only
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		hosts:      map[string]model.Host{},
		containers: map[string][]model.Container{},
		alerts:     map[string]model.Alert{},
	}
}

func (s *fakeStore) ListAlertRules() ([]model.AlertRule, error) { return s.rules, nil }

func (s *fakeStore) ListActiveAlerts() ([]model.Alert, error) {
	var out []model.Alert
	for _, a := range s.alerts {
		if a.Status == model.AlertActive {
			out = append(out, a)
		}
	}
	return out, nil
}

func (s *fakeStore) GetAlertByFingerprint(fp string) (model.Alert, bool, error) {
	a, ok := s.alerts[fp]
	return a, ok, nil
}

func (s *fakeStore) SaveAlert(a model.Alert) error {
	s.alerts[a.Fingerprint] = a
	return nil
}

func (s *fakeStore) GetHost(id string) (model.Host, bool, error) {
	h, ok := s.hosts[id]
	return h, ok, nil
}

func (s *fakeStore) ListHosts() ([]model.Host, error) {
	var out []model.Host
	for _, h := range s.hosts {
		out = append(out, h)
	}
	return out, nil
}

func (s *fakeStore) ListHostContainers(hostID string) ([]model.Container, error) {
	return s.containers[hostID], nil
}

// TestHostOfflineLifecycle exercises spec.md §8 scenario 5: fire once,
// suppress a re-fire within cooldown, then auto-resolve once the host
// reports again.
func TestHostOfflineLifecycle(t *testing.T) {
	t0 := time.Now().UTC()
	clk := clock.NewFake(t0)
	store := newFakeStore()
	store.rules = []model.AlertRule{{
		ID:              "r1",
		RuleType:        model.RuleHostOffline,
		Enabled:         true,
		Config:          map[string]any{"timeout_minutes": float64(5)},
		CooldownMinutes: 15,
	}}
	store.hosts["h1"] = model.Host{ID: "h1", LastSeen: t0.Add(-6 * time.Minute)}

	e := New(store, nil, logging.New(false, "error"), clk)

	e.EvaluateReport(context.Background(), "h1", nil)
	active, _ := store.ListActiveAlerts()
	if len(active) != 1 {
		t.Fatalf("expected 1 active alert after first fire, got %d", len(active))
	}
	firstID := active[0].ID

	// t0+2min: condition still holds, within cooldown -> no new alert.
	clk.Set(t0.Add(2 * time.Minute))
	e.EvaluateReport(context.Background(), "h1", nil)
	active, _ = store.ListActiveAlerts()
	if len(active) != 1 || active[0].ID != firstID {
		t.Fatalf("expected cooldown to suppress re-fire, got %d alerts", len(active))
	}

	// t0+20min: host reports again, last_seen advances past the
	// timeout threshold -> the alert auto-resolves.
	store.hosts["h1"] = model.Host{ID: "h1", LastSeen: t0.Add(20 * time.Minute)}
	clk.Set(t0.Add(20 * time.Minute))
	e.EvaluateReport(context.Background(), "h1", nil)
	active, _ = store.ListActiveAlerts()
	if len(active) != 0 {
		t.Fatalf("expected alert to auto-resolve once host is back, got %d active", len(active))
	}
	if store.alerts[Fingerprint("r1", "h1")].Status != model.AlertResolved {
		t.Fatalf("expected alert status resolved")
	}
}

// TestCooldownSurvivesResolve covers §8's cooldown invariant for a
// flapping condition: a rule that fires, auto-resolves, and then
// matches again inside the same cooldown window must not create a
// second alert row.
func TestCooldownSurvivesResolve(t *testing.T) {
	t0 := time.Now().UTC()
	clk := clock.NewFake(t0)
	store := newFakeStore()
	store.rules = []model.AlertRule{{
		ID:              "r1",
		RuleType:        model.RuleHostOffline,
		Enabled:         true,
		Config:          map[string]any{"timeout_minutes": float64(5)},
		CooldownMinutes: 15,
	}}
	store.hosts["h1"] = model.Host{ID: "h1", LastSeen: t0.Add(-6 * time.Minute)}
	e := New(store, nil, logging.New(false, "error"), clk)

	e.EvaluateReport(context.Background(), "h1", nil)
	active, _ := store.ListActiveAlerts()
	if len(active) != 1 {
		t.Fatalf("expected alert to fire, got %d active", len(active))
	}
	firstID := active[0].ID

	// t0+1min: host reports back online, alert auto-resolves.
	store.hosts["h1"] = model.Host{ID: "h1", LastSeen: t0.Add(1 * time.Minute)}
	clk.Set(t0.Add(1 * time.Minute))
	e.EvaluateReport(context.Background(), "h1", nil)
	if got := store.alerts[Fingerprint("r1", "h1")].Status; got != model.AlertResolved {
		t.Fatalf("expected resolved after host returns, got %q", got)
	}

	// t0+3min: host drops offline again, still inside the 15min
	// cooldown measured from the first fire -> must not fire again.
	store.hosts["h1"] = model.Host{ID: "h1", LastSeen: t0.Add(3*time.Minute - 6*time.Minute)}
	clk.Set(t0.Add(3 * time.Minute))
	e.EvaluateReport(context.Background(), "h1", nil)
	if got := store.alerts[Fingerprint("r1", "h1")]; got.ID != firstID || got.Status != model.AlertResolved {
		t.Fatalf("expected cooldown to suppress re-fire after resolve, got id=%q status=%q", got.ID, got.Status)
	}
}

func TestContainerStoppedRule_FilterAndAutoResolve(t *testing.T) {
	clk := clock.NewFake(time.Now())
	store := newFakeStore()
	store.rules = []model.AlertRule{{
		ID:       "r2",
		RuleType: model.RuleContainerStopped,
		Enabled:  true,
	}}
	e := New(store, nil, logging.New(false, "error"), clk)

	stopped := []model.Container{{ShortID: "abc123", Name: "web", Status: model.StatusStopped}}
	e.EvaluateReport(context.Background(), "h1", stopped)
	active, _ := store.ListActiveAlerts()
	if len(active) != 1 {
		t.Fatalf("expected 1 alert for stopped container, got %d", len(active))
	}

	running := []model.Container{{ShortID: "abc123", Name: "web", Status: model.StatusRunning}}
	e.EvaluateReport(context.Background(), "h1", running)
	active, _ = store.ListActiveAlerts()
	if len(active) != 0 {
		t.Fatalf("expected alert to auto-resolve once container is running again, got %d", len(active))
	}
}

func TestFingerprintStableForSameInputs(t *testing.T) {
	a := Fingerprint("rule-1", "host-1")
	b := Fingerprint("rule-1", "host-1")
	c := Fingerprint("rule-1", "host-2")
	if a != b {
		t.Fatalf("expected same fingerprint for identical inputs")
	}
	if a == c {
		t.Fatalf("expected different fingerprint for different resource key")
	}
}
