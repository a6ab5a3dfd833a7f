// Package alert evaluates alert rules against reported state, fires
// alerts with cooldown/active-alert suppression, auto-resolves alerts
// that no longer match, and dispatches fired alerts to notification
// channels (C8, §4.8).
package alert

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/infra-mapper/infra-mapper/internal/clock"
	"github.com/infra-mapper/infra-mapper/internal/logging"
	"github.com/infra-mapper/infra-mapper/internal/metrics"
	"github.com/infra-mapper/infra-mapper/internal/model"
)

// Store is the subset of internal/store the alert engine needs.
type Store interface {
	ListAlertRules() ([]model.AlertRule, error)
	ListActiveAlerts() ([]model.Alert, error)
	GetAlertByFingerprint(fingerprint string) (model.Alert, bool, error)
	SaveAlert(a model.Alert) error
	GetHost(id string) (model.Host, bool, error)
	ListHosts() ([]model.Host, error)
	ListHostContainers(hostID string) ([]model.Container, error)
}

// Notifier dispatches a fired alert to notification channels (C9).
type Notifier interface {
	Notify(ctx context.Context, alert model.Alert) []model.NotifyResult
}

// Broadcaster pushes realtime alert events (C11).
type Broadcaster interface {
	Broadcast(eventType string, data any)
}

// Engine evaluates and dispatches alerts.
type Engine struct {
	store    Store
	notifier Notifier
	realtime Broadcaster
	log      *logging.Logger
	clock    clock.Clock
}

// New creates an Engine.
func New(store Store, notifier Notifier, log *logging.Logger, clk clock.Clock) *Engine {
	return &Engine{store: store, notifier: notifier, log: log, clock: clk}
}

// SetBroadcaster attaches the realtime broadcaster.
func (e *Engine) SetBroadcaster(b Broadcaster) { e.realtime = b }

// EvaluateReport evaluates container-scoped rules (container_stopped,
// container_unhealthy) against one host's freshly reconciled
// containers. Called from the ingest pipeline after every report.
func (e *Engine) EvaluateReport(ctx context.Context, hostID string, containers []model.Container) {
	rules, err := e.store.ListAlertRules()
	if err != nil {
		e.log.Warn("alert evaluation: list rules failed", "error", err)
		return
	}

	for _, rule := range rules {
		if !rule.Enabled {
			continue
		}
		switch rule.RuleType {
		case model.RuleContainerStopped:
			e.evaluateContainerRule(ctx, rule, hostID, containers, func(c model.Container) bool {
				return c.Status == model.StatusStopped || c.Status == model.StatusExited || c.Status == model.StatusDead
			}, "container stopped")
		case model.RuleContainerUnhealthy:
			e.evaluateContainerRule(ctx, rule, hostID, containers, func(c model.Container) bool {
				return c.Health == model.HealthUnhealthy
			}, "container unhealthy")
		}
	}

	e.evaluateHostOfflineRules(ctx, rules)
}

// evaluateHostOfflineRules scans every host against each host_offline
// rule's own config.timeout_minutes (§4.8: "offline hosts are those
// with last_seen < now - timeout_minutes"), independent of C7's
// report-interval-scaled staleness thresholds — the two use
// different clocks on purpose.
func (e *Engine) evaluateHostOfflineRules(ctx context.Context, rules []model.AlertRule) {
	var offlineRules []model.AlertRule
	for _, rule := range rules {
		if rule.Enabled && rule.RuleType == model.RuleHostOffline {
			offlineRules = append(offlineRules, rule)
		}
	}
	if len(offlineRules) == 0 {
		return
	}

	hosts, err := e.store.ListHosts()
	if err != nil {
		e.log.Warn("alert evaluation: list hosts failed", "error", err)
		return
	}
	now := e.clock.Now().UTC()

	for _, rule := range offlineRules {
		timeout := time.Duration(configMinutes(rule.Config, "timeout_minutes", 5)) * time.Minute
		var offline []string
		for _, h := range hosts {
			if !MatchesFilter(h.ID, rule.HostFilter) {
				continue
			}
			if now.Sub(h.LastSeen) < timeout {
				continue
			}
			fp := Fingerprint(rule.ID, h.ID)
			offline = append(offline, fp)
			e.fireOrRefresh(ctx, rule, fp, fmt.Sprintf("host offline: %s", h.ID),
				fmt.Sprintf("Host %s has not reported in over %s.", h.ID, timeout), []string{h.ID}, nil)
		}
		e.autoResolve(rule.ID, offline)
	}
}

// configMinutes reads a numeric config key, tolerating the float64
// JSON decodes to and the int an in-process caller might set directly.
func configMinutes(cfg map[string]any, key string, fallback float64) float64 {
	switch v := cfg[key].(type) {
	case float64:
		return v
	case int:
		return float64(v)
	default:
		return fallback
	}
}

func (e *Engine) evaluateContainerRule(ctx context.Context, rule model.AlertRule, hostID string, containers []model.Container, matches func(model.Container) bool, titleVerb string) {
	var matchedFingerprints []string
	for _, c := range containers {
		if !MatchesFilter(c.Name, rule.ContainerFilter) {
			continue
		}
		if !MatchesFilter(c.ComposeProject, rule.ProjectFilter) {
			continue
		}
		if !matches(c) {
			continue
		}
		fp := Fingerprint(rule.ID, hostID+":"+c.ShortID)
		matchedFingerprints = append(matchedFingerprints, fp)
		e.fireOrRefresh(ctx, rule, fp, fmt.Sprintf("%s: %s", titleVerb, c.Name),
			fmt.Sprintf("Container %q on host %s is %s.", c.Name, hostID, titleVerb),
			[]string{hostID}, []string{c.ShortID})
	}
	// Only this host's containers were evaluated: keep the rule's active
	// alerts for other hosts out of the resolve pass.
	if active, err := e.store.ListActiveAlerts(); err == nil {
		for _, a := range active {
			if a.RuleID != rule.ID {
				continue
			}
			onThisHost := false
			for _, h := range a.HostRefs {
				onThisHost = onThisHost || h == hostID
			}
			if !onThisHost {
				matchedFingerprints = append(matchedFingerprints, a.Fingerprint)
			}
		}
	}
	e.autoResolve(rule.ID, matchedFingerprints)
}

// HostHealthChanged implements health.StateChangeNotifier. C7's sweep
// runs on its own period independent of any agent's report cadence, so
// a host_health transition is used as a trigger to re-run the
// host_offline evaluation promptly rather than waiting for the next
// report from some other host.
func (e *Engine) HostHealthChanged(host model.Host, previous string) {
	rules, err := e.store.ListAlertRules()
	if err != nil {
		return
	}
	e.evaluateHostOfflineRules(context.Background(), rules)
}

// Fingerprint derives a stable cooldown/active-alert key from a rule
// and the resource it matched.
func Fingerprint(ruleID, resourceKey string) string {
	sum := sha256.Sum256([]byte(ruleID + "|" + resourceKey))
	return hex.EncodeToString(sum[:])[:32]
}

func (e *Engine) fireOrRefresh(ctx context.Context, rule model.AlertRule, fingerprint, title, message string, hostRefs, containerRefs []string) {
	existing, found, err := e.store.GetAlertByFingerprint(fingerprint)
	if err != nil {
		e.log.Warn("alert lookup failed", "error", err)
		return
	}

	now := e.clock.Now().UTC()
	if found {
		cooldown := time.Duration(rule.CooldownMinutes) * time.Minute
		if cooldown > 0 && now.Sub(existing.TriggeredAt) < cooldown {
			return // within cooldown since the last fire, resolved or not: suppress re-fire (§4.8)
		}
		if existing.Status != model.AlertResolved {
			return // already active/acknowledged: don't duplicate
		}
	}

	a := model.Alert{
		ID:            fingerprint + "-" + now.Format("20060102150405"),
		RuleID:        rule.ID,
		RuleType:      rule.RuleType,
		Fingerprint:   fingerprint,
		Severity:      rule.Severity,
		Status:        model.AlertActive,
		Title:         title,
		Message:       message,
		HostRefs:      hostRefs,
		ContainerRefs: containerRefs,
		TriggeredAt:   now,
	}

	if e.notifier != nil {
		a.NotificationsSent = e.notifier.Notify(ctx, a)
	}
	if err := e.store.SaveAlert(a); err != nil {
		e.log.Warn("save alert failed", "error", err)
		return
	}

	metrics.AlertsFiredTotal.WithLabelValues(string(rule.RuleType)).Inc()
	if e.realtime != nil {
		e.realtime.Broadcast("alert_fired", a)
	}
}

// autoResolve resolves any active alert for this rule whose
// fingerprint is no longer in the current matched set (§4.8: "alerts
// whose condition no longer matches auto-resolve").
func (e *Engine) autoResolve(ruleID string, stillMatching []string) {
	active, err := e.store.ListActiveAlerts()
	if err != nil {
		return
	}
	stillSet := map[string]bool{}
	for _, fp := range stillMatching {
		stillSet[fp] = true
	}
	now := e.clock.Now().UTC()
	for _, a := range active {
		if a.RuleID != ruleID || stillSet[a.Fingerprint] {
			continue
		}
		a.Status = model.AlertResolved
		a.ResolvedAt = now
		if err := e.store.SaveAlert(a); err != nil {
			e.log.Warn("auto-resolve save failed", "error", err)
			continue
		}
		if e.realtime != nil {
			e.realtime.Broadcast("alert_resolved", a)
		}
	}
}

// RefreshActiveAlertsGauge recomputes the active-alerts metric.
func (e *Engine) RefreshActiveAlertsGauge() {
	active, err := e.store.ListActiveAlerts()
	if err != nil {
		return
	}
	metrics.AlertsActive.Set(float64(len(active)))
}
