// Package health maintains per-host rolling health counters on every
// report (C7, §4.7) and periodically sweeps for hosts that have
// stopped reporting, emitting state-change events through the
// provided Notifier.
package health

import (
	"context"
	"time"

	"github.com/infra-mapper/infra-mapper/internal/clock"
	"github.com/infra-mapper/infra-mapper/internal/logging"
	"github.com/infra-mapper/infra-mapper/internal/metrics"
	"github.com/infra-mapper/infra-mapper/internal/model"
)

// avgDurationAlpha is the EWMA smoothing factor: new values carry 20%
// weight against the existing 80% average (§4.7).
const avgDurationAlpha = 0.2

// Store is the subset of internal/store used by the health sweep.
type Store interface {
	ListHosts() ([]model.Host, error)
	UpsertHost(h model.Host) error
}

// StateChangeNotifier is notified when a host's agent_health changes,
// so internal/alert can fire host_offline rules.
type StateChangeNotifier interface {
	HostHealthChanged(host model.Host, previous string)
}

// Tracker maintains host health state.
type Tracker struct {
	store    Store
	log      *logging.Logger
	clock    clock.Clock
	notifier StateChangeNotifier
}

// New creates a Tracker.
func New(store Store, log *logging.Logger, clk clock.Clock) *Tracker {
	return &Tracker{store: store, log: log, clock: clk}
}

// SetNotifier attaches the state-change notifier.
func (t *Tracker) SetNotifier(n StateChangeNotifier) { t.notifier = n }

// RecordReport updates a host's rolling health counters for one
// successful report (§4.7). Call before persisting the host.
func (t *Tracker) RecordReport(host *model.Host, agent model.AgentMetadata, reportDuration time.Duration) {
	previous := host.AgentHealth

	host.ReportsCount++
	if agent.Error != "" {
		host.ErrorsCount++
		host.ConsecutiveFailures++
		host.LastError = agent.Error
		host.LastErrorAt = t.clock.Now().UTC()
	} else {
		host.ConsecutiveFailures = 0
	}

	durationMs := reportDuration.Milliseconds()
	if host.AvgReportDuration == 0 {
		host.AvgReportDuration = durationMs
	} else {
		host.AvgReportDuration = int64((1-avgDurationAlpha)*float64(host.AvgReportDuration) + avgDurationAlpha*float64(durationMs))
	}

	host.AgentHealth = healthFromCounters(host.ConsecutiveFailures, durationMs, host.ReportInterval, host.ReportsCount)

	if t.notifier != nil && host.AgentHealth != previous {
		t.notifier.HostHealthChanged(*host, previous)
	}
}

// healthFromCounters decides agent_health per the §4.7 decision table,
// evaluated in order: persistent failures and slow reports both
// degrade a host, a too-young history is unknown, otherwise healthy.
func healthFromCounters(consecutiveFailures int, durationMs int64, reportInterval int, reportsCount int64) string {
	switch {
	case consecutiveFailures >= 3:
		return "degraded"
	case reportInterval > 0 && durationMs > int64(0.9*float64(reportInterval)*1000):
		return "degraded"
	case reportsCount < 3:
		return "unknown"
	default:
		return "healthy"
	}
}

// Sweep checks every host's staleness against the report-interval-
// scaled offline thresholds and marks hosts offline/degraded,
// notifying on any state change (§4.7).
func (t *Tracker) Sweep(ctx context.Context) {
	hosts, err := t.store.ListHosts()
	if err != nil {
		t.log.Warn("health sweep: list hosts failed", "error", err)
		return
	}

	now := t.clock.Now()
	online := 0
	for _, host := range hosts {
		previous := host.AgentHealth
		wasOnline := host.IsOnline

		interval := time.Duration(host.ReportInterval) * time.Second
		if interval <= 0 {
			interval = 30 * time.Second
		}
		staleness := now.Sub(host.LastSeen)

		switch {
		case staleness > 5*interval:
			host.IsOnline = false
			host.AgentHealth = "unhealthy"
		case staleness > 2*interval:
			host.AgentHealth = "degraded"
		}

		if host.IsOnline {
			online++
		}

		if host.AgentHealth != previous || host.IsOnline != wasOnline {
			if err := t.store.UpsertHost(host); err != nil {
				t.log.Warn("health sweep: upsert host failed", "host_id", host.ID, "error", err)
				continue
			}
			if t.notifier != nil {
				t.notifier.HostHealthChanged(host, previous)
			}
		}
	}

	metrics.HostsTotal.Set(float64(len(hosts)))
	metrics.HostsOnline.Set(float64(online))
}

// Run starts the periodic sweep loop until ctx is cancelled.
func (t *Tracker) Run(ctx context.Context, interval time.Duration) {
	for {
		select {
		case <-t.clock.After(interval):
			t.Sweep(ctx)
		case <-ctx.Done():
			return
		}
	}
}
