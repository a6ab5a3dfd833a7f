// Package inventory collects the container, network, and host identity
// evidence that makes up one agent report (§4.1.1, §4.1.4). It is
// grounded on the teacher's internal/docker client: the same
// ContainerList/Inspect/NetworkList calls, widened from update-checking
// to full inventory snapshotting.
package inventory

import (
	"context"
	"fmt"
	"net"
	"os"
	"regexp"
	"strconv"
	"strings"

	"github.com/moby/moby/api/types/container"
	"github.com/moby/moby/api/types/network"

	"github.com/infra-mapper/infra-mapper/internal/docker"
	"github.com/infra-mapper/infra-mapper/internal/logging"
	"github.com/infra-mapper/infra-mapper/internal/model"
)

// secretPattern matches environment variable names that should be
// redacted before the value ever leaves the host (§4.1.1).
var secretPattern = regexp.MustCompile(`(?i)(PASSWORD|SECRET|KEY|TOKEN)`)

// RedactedValue replaces a secret-shaped environment value.
const RedactedValue = "***REDACTED***"

// Collector gathers container and network inventory from a single
// Docker daemon.
type Collector struct {
	docker docker.API
	log    *logging.Logger
}

// New creates an inventory Collector.
func New(d docker.API, log *logging.Logger) *Collector {
	return &Collector{docker: d, log: log}
}

// CollectContainers lists every container (running and stopped) and
// inspects each one into a model.Container. A single container's
// inspect failure is logged and the container is skipped — it must
// never abort the whole report (§4.1.1 edge case).
func (c *Collector) CollectContainers(ctx context.Context, hostID string) ([]model.Container, error) {
	summaries, err := c.docker.ListAllContainers(ctx)
	if err != nil {
		return nil, fmt.Errorf("list containers: %w", err)
	}

	out := make([]model.Container, 0, len(summaries))
	for _, summary := range summaries {
		if len(summary.ID) == 0 {
			continue
		}
		insp, err := c.docker.InspectContainer(ctx, summary.ID)
		if err != nil {
			c.log.Warn("inspect container failed, skipping", "container_id", summary.ID, "error", err)
			continue
		}
		out = append(out, toContainer(hostID, insp))
	}
	return out, nil
}

func toContainer(hostID string, insp container.InspectResponse) model.Container {
	shortID := model.NormalizeShortID(strings.TrimPrefix(insp.ID, ""))

	ctr := model.Container{
		HostID:      hostID,
		ShortID:     shortID,
		Name:        strings.TrimPrefix(insp.Name, "/"),
		Status:      statusOf(insp),
		Health:      healthOf(insp),
		NetworkIPs:  map[string]string{},
		Environment: map[string]string{},
	}

	if insp.Config != nil {
		ctr.Image = insp.Config.Image
		ctr.Labels = insp.Config.Labels
		ctr.Environment = redactedEnv(insp.Config.Env)
		ctr.ComposeProject = insp.Config.Labels["com.docker.compose.project"]
		ctr.ComposeService = insp.Config.Labels["com.docker.compose.service"]
	}
	if insp.State != nil {
		ctr.ExitCode = insp.State.ExitCode
	}
	ctr.RestartCount = insp.RestartCount
	if node, ok := ctr.Labels["com.docker.swarm.node.id"]; ok {
		ctr.Node = node
	}

	if insp.NetworkSettings != nil {
		for name, ep := range insp.NetworkSettings.Networks {
			if ep == nil || ep.IPAddress == "" {
				continue
			}
			ctr.NetworkIPs[name] = ep.IPAddress
		}
	}
	if insp.HostConfig != nil {
		ctr.Ports = portMappingsOf(insp)
		for _, m := range insp.Mounts {
			ctr.Mounts = append(ctr.Mounts, model.Mount{
				Source:      m.Source,
				Destination: m.Destination,
				ReadOnly:    !m.RW,
			})
		}
	}

	return ctr
}

func statusOf(insp container.InspectResponse) model.ContainerStatus {
	if insp.State == nil {
		return model.StatusUnknown
	}
	switch {
	case insp.State.Running && insp.State.Paused:
		return model.StatusPaused
	case insp.State.Running && insp.State.Restarting:
		return model.StatusRestarting
	case insp.State.Running:
		return model.StatusRunning
	case insp.State.Dead:
		return model.StatusDead
	case insp.State.Status == "exited":
		return model.StatusExited
	case insp.State.Status == "created":
		return model.StatusCreated
	default:
		return model.StatusStopped
	}
}

func healthOf(insp container.InspectResponse) model.ContainerHealth {
	if insp.State == nil || insp.State.Health == nil {
		return model.HealthNone
	}
	switch insp.State.Health.Status {
	case "healthy":
		return model.HealthHealthy
	case "unhealthy":
		return model.HealthUnhealthy
	case "starting":
		return model.HealthStarting
	default:
		return model.HealthNone
	}
}

func portMappingsOf(insp container.InspectResponse) []model.PortMapping {
	var out []model.PortMapping
	for portProto, bindings := range insp.NetworkSettings.Ports {
		parts := strings.SplitN(string(portProto), "/", 2)
		containerPort, err := strconv.Atoi(parts[0])
		if err != nil {
			continue
		}
		proto := "tcp"
		if len(parts) == 2 {
			proto = parts[1]
		}
		if len(bindings) == 0 {
			out = append(out, model.PortMapping{ContainerPort: containerPort, Protocol: proto})
			continue
		}
		for _, b := range bindings {
			hostPort, _ := strconv.Atoi(b.HostPort)
			out = append(out, model.PortMapping{ContainerPort: containerPort, HostPort: hostPort, Protocol: proto})
		}
	}
	return out
}

// redactedEnv parses "KEY=VALUE" entries and replaces any value whose
// key looks secret-shaped (PASSWORD|SECRET|KEY|TOKEN, case-insensitive).
func redactedEnv(env []string) map[string]string {
	out := make(map[string]string, len(env))
	for _, kv := range env {
		idx := strings.IndexByte(kv, '=')
		if idx < 0 {
			continue
		}
		key, val := kv[:idx], kv[idx+1:]
		if secretPattern.MatchString(key) {
			val = RedactedValue
		}
		out[key] = val
	}
	return out
}

// CollectNetworks lists host networks and their member containers.
func (c *Collector) CollectNetworks(ctx context.Context, hostID string) ([]model.Network, error) {
	summaries, err := c.docker.ListNetworks(ctx)
	if err != nil {
		return nil, fmt.Errorf("list networks: %w", err)
	}

	out := make([]model.Network, 0, len(summaries))
	for _, sum := range summaries {
		n := model.Network{
			HostID: hostID,
			Name:   sum.Name,
			Driver: sum.Driver,
			Scope:  sum.Scope,
		}
		if len(sum.IPAM.Config) > 0 {
			n.Subnet = sum.IPAM.Config[0].Subnet
			n.Gateway = sum.IPAM.Config[0].Gateway
		}

		insp, err := c.docker.InspectNetwork(ctx, sum.ID)
		if err == nil {
			n.MemberIDs = memberIDsOf(insp)
		}
		out = append(out, n)
	}
	return out, nil
}

func memberIDsOf(insp network.Inspect) []string {
	ids := make([]string, 0, len(insp.Containers))
	for id := range insp.Containers {
		ids = append(ids, model.NormalizeShortID(id))
	}
	return ids
}

// Hostname returns the machine's hostname, falling back to "unknown".
func Hostname() string {
	h, err := os.Hostname()
	if err != nil || h == "" {
		return "unknown"
	}
	return h
}

// LocalIPs enumerates the host's own IPv4 addresses across all network
// interfaces, skipping loopback — grounded in original_source's
// network_collector.get_local_ips(), which walks interface addresses
// the same way via netifaces. A single interface's address lookup
// failing is logged and skipped, never fatal to the whole report.
func LocalIPs(log *logging.Logger) []string {
	addrs, err := net.InterfaceAddrs()
	if err != nil {
		if log != nil {
			log.Warn("enumerate local IPs failed", "error", err)
		}
		return nil
	}

	var out []string
	for _, addr := range addrs {
		ipNet, ok := addr.(*net.IPNet)
		if !ok {
			continue
		}
		ip4 := ipNet.IP.To4()
		if ip4 == nil || ip4.IsLoopback() {
			continue
		}
		out = append(out, ip4.String())
	}
	return out
}
