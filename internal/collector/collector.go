// Package collector implements the per-host agent loop (C4, §4.4):
// gather inventory and connection evidence, assemble one AgentReport,
// and hand it to the report client. It is the composition root for
// every C1 evidence package plus C2/C3.
package collector

import (
	"context"
	"fmt"
	"time"

	"github.com/infra-mapper/infra-mapper/internal/capture"
	"github.com/infra-mapper/infra-mapper/internal/config"
	"github.com/infra-mapper/infra-mapper/internal/deps"
	"github.com/infra-mapper/infra-mapper/internal/docker"
	"github.com/infra-mapper/infra-mapper/internal/inventory"
	"github.com/infra-mapper/infra-mapper/internal/logging"
	"github.com/infra-mapper/infra-mapper/internal/logtail"
	"github.com/infra-mapper/infra-mapper/internal/merge"
	"github.com/infra-mapper/infra-mapper/internal/model"
	"github.com/infra-mapper/infra-mapper/internal/overlay"
	"github.com/infra-mapper/infra-mapper/internal/procnet"
	"github.com/infra-mapper/infra-mapper/internal/resources"
)

// Version is the agent build version, set at link time in
// cmd/collector, and carried on every report's AgentMetadata.
var Version = "dev"

// Collector assembles one AgentReport per tick.
type Collector struct {
	cfg     *config.CollectorConfig
	docker  docker.API
	log     *logging.Logger
	hostID  string
	started time.Time

	inventory *inventory.Collector
	procnet   *procnet.Reader
	capture   *capture.Capturer
	resources *resources.Sampler
	logtail   *logtail.Tailer
	overlay   *overlay.Detector

	lastErr string
}

// New creates a Collector wired to a live Docker API.
func New(cfg *config.CollectorConfig, d docker.API, log *logging.Logger, hostID string) *Collector {
	return &Collector{
		cfg:       cfg,
		docker:    d,
		log:       log,
		hostID:    hostID,
		started:   time.Now(),
		inventory: inventory.New(d, log),
		procnet:   procnet.New(log),
		capture:   capture.New(log),
		resources: resources.New(d),
		logtail:   logtail.New(d),
		overlay:   overlay.New(log),
	}
}

// BuildReport gathers one full snapshot. A failure in one evidence
// stream is recorded on AgentMetadata.Error and does not abort the
// whole report — only container inventory itself is load-bearing
// (§4.4 edge case: partial reports are preferable to no report).
func (c *Collector) BuildReport(ctx context.Context) (model.AgentReport, error) {
	start := time.Now()
	var softErr string

	containers, err := c.inventory.CollectContainers(ctx, c.hostID)
	if err != nil {
		return model.AgentReport{}, fmt.Errorf("collect containers: %w", err)
	}

	networks, err := c.inventory.CollectNetworks(ctx, c.hostID)
	if err != nil {
		softErr = appendErr(softErr, fmt.Sprintf("networks: %v", err))
		networks = nil
	}

	connections := c.collectConnections(ctx, containers)

	containerLogs := c.collectLogs(ctx, containers)

	hostMetrics := c.resources.SampleHost(c.hostID)
	containerMetrics := c.collectContainerMetrics(ctx, containers)

	host := c.buildHost(ctx, hostMetrics)

	siblingIdx := deps.BuildSiblingIndex(containers)
	for i := range containers {
		containers[i].DeclaredDependencies = deps.ResolveDeclaredDependencies(containers[i], siblingIdx)
	}

	report := model.AgentReport{
		Host:             host,
		Containers:       containers,
		Networks:         networks,
		Connections:      connections,
		ContainerLogs:    containerLogs,
		HostMetrics:      &hostMetrics,
		ContainerMetrics: containerMetrics,
		Agent: model.AgentMetadata{
			Version:          Version,
			ReportInterval:   int(c.cfg.ScanInterval().Seconds()),
			ReportDurationMs: time.Since(start).Milliseconds(),
			UptimeSeconds:    int64(time.Since(c.started).Seconds()),
			Error:            softErr,
			CommandPort:      c.commandPort(),
		},
		Timestamp: time.Now().UTC(),
	}

	c.lastErr = softErr
	return report, nil
}

func appendErr(existing, next string) string {
	if existing == "" {
		return next
	}
	return existing + "; " + next
}

func (c *Collector) commandPort() int {
	if !c.cfg.CommandServerEnabled {
		return 0
	}
	return c.cfg.CommandPort
}

func (c *Collector) collectConnections(ctx context.Context, containers []model.Container) []model.Connection {
	procNetConns := c.procnet.Scan(c.hostID)

	if !c.cfg.CaptureEnabled {
		return procNetConns
	}

	targets := make([]capture.Target, 0, len(containers))
	for _, ctr := range containers {
		if ctr.Status != model.StatusRunning {
			continue
		}
		insp, err := c.docker.InspectContainer(ctx, ctr.ShortID)
		if err != nil || insp.State == nil || insp.State.Pid <= 0 {
			continue // no resolvable init PID to nsenter into
		}
		targets = append(targets, capture.Target{ShortID: ctr.ShortID, PID: insp.State.Pid})
	}
	if len(targets) == 0 {
		return procNetConns
	}

	tcpdumpConns := c.capture.CaptureAll(ctx, c.hostID, targets, c.cfg.CaptureDuration, c.cfg.MaxPacketsPerContainer)
	return merge.Connections(procNetConns, tcpdumpConns)
}

func (c *Collector) collectLogs(ctx context.Context, containers []model.Container) []model.ContainerLogEntry {
	if !c.cfg.LogsEnabled {
		return nil
	}
	var out []model.ContainerLogEntry
	for _, ctr := range containers {
		if ctr.Status != model.StatusRunning {
			continue
		}
		entries, err := c.logtail.Tail(ctx, c.docker, c.hostID, ctr.ShortID, ctr.ShortID, c.cfg.LogLines, c.cfg.LogSinceSeconds)
		if err != nil {
			c.log.Warn("log tail failed", "container_id", ctr.ShortID, "error", err)
			continue
		}
		out = append(out, entries...)
	}
	return out
}

func (c *Collector) collectContainerMetrics(ctx context.Context, containers []model.Container) []model.ContainerMetricsPoint {
	var out []model.ContainerMetricsPoint
	for _, ctr := range containers {
		if ctr.Status != model.StatusRunning {
			continue
		}
		p, err := c.resources.SampleContainer(ctx, c.hostID, ctr.ShortID, ctr.ShortID)
		if err != nil {
			c.log.Warn("container stats failed", "container_id", ctr.ShortID, "error", err)
			continue
		}
		out = append(out, p)
	}
	return out
}

// buildHost fills in the identity fields the agent knows about
// directly. The container-facing IPs the ingester attributes
// connections against still come from the report's source address
// (§4.5) — NAT/port-forwarded deployments make the agent's own
// interface list unreliable for that purpose — but IPs is still
// populated here for display and for the overlay/cross-host
// classification §6 describes.
func (c *Collector) buildHost(ctx context.Context, hm model.HostMetricsPoint) model.Host {
	host := model.Host{
		ID:          c.hostID,
		Hostnames:   []string{inventory.Hostname()},
		IPs:         inventory.LocalIPs(c.log),
		OS:          "linux",
		CommandPort: c.commandPort(),
		LastSeen:    time.Now().UTC(),
		IsOnline:    true,
	}

	if c.cfg.OverlayDetect {
		if info, ok := c.overlay.Detect(ctx); ok {
			host.OverlayIP = info.IP
			host.OverlayHost = info.Hostname
		}
	}

	return host
}
