// Package ingest reconciles one AgentReport into the store (C5, §4.5):
// host upsert, container diff, network/connection replace, log and
// metrics storage, then hands off to health (C7), alert (C8), and
// realtime (C11).
package ingest

import (
	"context"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/infra-mapper/infra-mapper/internal/logging"
	"github.com/infra-mapper/infra-mapper/internal/metrics"
	"github.com/infra-mapper/infra-mapper/internal/model"
)

// Store is the subset of internal/store used by the ingest pipeline.
type Store interface {
	GetHost(id string) (model.Host, bool, error)
	UpsertHost(h model.Host) error
	ReplaceHostContainers(hostID string, containers []model.Container) error
	ReplaceHostNetworks(hostID string, networks []model.Network) error
	ReplaceHostConnections(hostID string, conns []model.Connection) error
	ListHostContainers(hostID string) ([]model.Container, error)
	AppendLogs(entries []model.ContainerLogEntry) error
	AppendHostMetrics(p model.HostMetricsPoint) error
	AppendContainerMetrics(points []model.ContainerMetricsPoint) error
}

// HealthUpdater is implemented by internal/health.
type HealthUpdater interface {
	RecordReport(host *model.Host, agent model.AgentMetadata, reportDuration time.Duration)
}

// AlertEvaluator is implemented by internal/alert.
type AlertEvaluator interface {
	EvaluateReport(ctx context.Context, hostID string, containers []model.Container)
}

// LogForwarder is implemented by internal/logsink.
type LogForwarder interface {
	Forward(entries []model.ContainerLogEntry)
}

// Broadcaster is implemented by internal/realtime.
type Broadcaster interface {
	Broadcast(eventType string, data any)
}

// Pipeline wires the ingest dependencies together.
type Pipeline struct {
	store   Store
	health  HealthUpdater
	alerts  AlertEvaluator
	logs    LogForwarder
	realtime Broadcaster
	log     *logging.Logger
}

// New creates a Pipeline.
func New(store Store, health HealthUpdater, alerts AlertEvaluator, logs LogForwarder, realtime Broadcaster, log *logging.Logger) *Pipeline {
	return &Pipeline{store: store, health: health, alerts: alerts, logs: logs, realtime: realtime, log: log}
}

// Ingest reconciles one report. Host, container, network and connection
// persistence fail the ingest call on error; each commits in its own
// store transaction, so a failure leaves the earlier writes in place.
// Metrics and log storage errors are ignored, and the tail (health,
// alerts, log forwarding, realtime) is best-effort and never fails the
// ingest call (§4.5).
func (p *Pipeline) Ingest(ctx context.Context, remoteAddr string, report model.AgentReport) error {
	start := time.Now()

	host, err := p.reconcileHost(report, remoteAddr)
	if err != nil {
		metrics.ReportsTotal.WithLabelValues("error").Inc()
		return err
	}
	if err := p.store.UpsertHost(host); err != nil {
		metrics.ReportsTotal.WithLabelValues("error").Inc()
		return err
	}

	if err := p.store.ReplaceHostContainers(host.ID, report.Containers); err != nil {
		metrics.ReportsTotal.WithLabelValues("error").Inc()
		return err
	}
	if err := p.store.ReplaceHostNetworks(host.ID, report.Networks); err != nil {
		metrics.ReportsTotal.WithLabelValues("error").Inc()
		return err
	}

	connections := attributeConnections(host.ID, report.Connections, report.Containers)
	if err := p.store.ReplaceHostConnections(host.ID, connections); err != nil {
		metrics.ReportsTotal.WithLabelValues("error").Inc()
		return err
	}

	if report.HostMetrics != nil {
		hm := *report.HostMetrics
		hm.HostID = host.ID
		_ = p.store.AppendHostMetrics(hm)
	}
	if len(report.ContainerMetrics) > 0 {
		_ = p.store.AppendContainerMetrics(report.ContainerMetrics)
	}
	if len(report.ContainerLogs) > 0 {
		_ = p.store.AppendLogs(report.ContainerLogs)
	}

	metrics.ReportsTotal.WithLabelValues("ok").Inc()
	metrics.ReportDuration.Observe(time.Since(start).Seconds())

	// Best-effort tail: health, alerts, log forwarding, realtime.
	if p.health != nil {
		p.health.RecordReport(&host, report.Agent, time.Duration(report.Agent.ReportDurationMs)*time.Millisecond)
		_ = p.store.UpsertHost(host)
	}
	if p.alerts != nil {
		p.alerts.EvaluateReport(ctx, host.ID, report.Containers)
	}
	if p.logs != nil && len(report.ContainerLogs) > 0 {
		p.logs.Forward(report.ContainerLogs)
	}
	if p.realtime != nil {
		p.realtime.Broadcast("host_update", host)
		p.realtime.Broadcast("container_changed", map[string]any{"host_id": host.ID, "count": len(report.Containers)})
	}

	return nil
}

// reconcileHost builds the reporting host's row for Ingest to upsert,
// carrying over stored counters and filling in IPs from the
// report's source address when the agent itself can't see them
// reliably (behind NAT/port-forwarding) — see internal/collector's
// buildHost comment.
func (p *Pipeline) reconcileHost(report model.AgentReport, remoteAddr string) (model.Host, error) {
	host := report.Host
	existing, found, err := p.store.GetHost(host.ID)
	if err != nil {
		return model.Host{}, err
	}

	now := time.Now().UTC()
	if found {
		host.FirstSeen = existing.FirstSeen
		host.ReportsCount = existing.ReportsCount
		host.ErrorsCount = existing.ErrorsCount
		host.ConsecutiveFailures = existing.ConsecutiveFailures
		host.LastError = existing.LastError
		host.LastErrorAt = existing.LastErrorAt
		host.AvgReportDuration = existing.AvgReportDuration
		host.AgentHealth = existing.AgentHealth
	} else {
		host.FirstSeen = now
	}
	host.LastSeen = now
	host.IsOnline = true
	host.LastReportDuration = report.Agent.ReportDurationMs
	host.ReportInterval = report.Agent.ReportInterval
	host.AgentVersion = report.Agent.Version
	host.CommandPort = report.Agent.CommandPort

	if ip := sourceIP(remoteAddr); ip != "" && !containsStr(host.IPs, ip) {
		host.IPs = append(host.IPs, ip)
	}

	return host, nil
}

func sourceIP(remoteAddr string) string {
	host, _, err := net.SplitHostPort(remoteAddr)
	if err != nil {
		return remoteAddr
	}
	return host
}

func containsStr(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}

// RemoteAddrFromRequest extracts the caller's IP from an *http.Request,
// preferring X-Forwarded-For when present behind a reverse proxy.
func RemoteAddrFromRequest(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		parts := strings.Split(fwd, ",")
		return strings.TrimSpace(parts[0])
	}
	return r.RemoteAddr
}

// attributeConnections filters LISTEN-only/unspecified-address rows
// and attributes each surviving connection without an agent-supplied
// SourceContainerID to its owning container by matching local IP
// against the containers' known network IPs, then classifies reach
// with classify's RFC1918/CGNAT checks (§4.5).
func attributeConnections(hostID string, conns []model.Connection, containers []model.Container) []model.Connection {
	ipToContainer := map[string]string{}
	for _, c := range containers {
		for _, ip := range c.NetworkIPs {
			ipToContainer[ip] = c.ShortID
		}
	}

	out := make([]model.Connection, 0, len(conns))
	for _, c := range conns {
		if shouldDropConnection(c) {
			continue
		}
		if c.SourceContainerID == "" {
			if owner, ok := ipToContainer[c.LocalIP]; ok {
				c.SourceContainerID = owner
			}
		}
		c.SourceHostID = hostID
		c.Class = classify(c.RemoteIP, ipToContainer)
		out = append(out, c)
	}
	return out
}

func shouldDropConnection(c model.Connection) bool {
	if c.State == "listen" {
		return true
	}
	if c.RemoteIP == "0.0.0.0" || c.RemoteIP == "::" || c.RemoteIP == "" {
		return true
	}
	return false
}

// classify buckets a remote address into internal (one of this host's
// own container IPs), cross-host (private/CGNAT but not one of ours —
// another fleet member, per §6 Glossary's overlay-network definition),
// or external (§4.5: "internal if the remote IP is one of our
// container IPs; cross-host if the remote IP is in RFC1918 or
// 100.64/10; otherwise external").
func classify(remoteIP string, ipToContainer map[string]string) model.ConnectionClass {
	if _, ours := ipToContainer[remoteIP]; ours {
		return model.ClassInternal
	}
	ip := net.ParseIP(remoteIP)
	if ip == nil {
		return model.ClassExternal
	}
	if isPrivate(ip) {
		return model.ClassCrossHost
	}
	return model.ClassExternal
}

func isPrivate(ip net.IP) bool {
	if ip.IsLoopback() || ip.IsLinkLocalUnicast() {
		return true
	}
	for _, cidr := range []string{"10.0.0.0/8", "172.16.0.0/12", "192.168.0.0/16", "100.64.0.0/10"} {
		_, block, err := net.ParseCIDR(cidr)
		if err == nil && block.Contains(ip) {
			return true
		}
	}
	return false
}
