// Package graph materializes the fleet's container/connection graph
// for GET /api/v1/graph (C6, §4.6): resolves which hosts are visible
// under a filter, builds container and host IP indexes, emits
// dependency/project/connection edges, and caps external nodes.
package graph

import (
	"fmt"
	"sort"
	"time"

	"github.com/infra-mapper/infra-mapper/internal/alert"
	"github.com/infra-mapper/infra-mapper/internal/model"
)

// offlineThreshold marks a host invisible when include_offline is
// false (§4.6 step 1: "last_seen < now - 5 min").
const offlineThreshold = 5 * time.Minute

// maxExternalNodes caps external:<ip> aggregate nodes per
// materialization (§4.6 step 5: "capped at 20").
const maxExternalNodes = 20

// Store is the subset of internal/store the graph materializer needs.
type Store interface {
	ListHosts() ([]model.Host, error)
	ListHostContainers(hostID string) ([]model.Container, error)
	ListHostConnections(hostID string) ([]model.Connection, error)
}

// Materializer builds model.GraphData from the current store state.
type Materializer struct {
	store Store
	clock func() time.Time
}

// New creates a Materializer. now is injectable for deterministic tests.
func New(store Store, now func() time.Time) *Materializer {
	if now == nil {
		now = time.Now
	}
	return &Materializer{store: store, clock: now}
}

// Materialize builds the graph visible under filter.
func (m *Materializer) Materialize(filter model.GraphFilter) (model.GraphData, error) {
	hosts, err := m.visibleHosts(filter)
	if err != nil {
		return model.GraphData{}, err
	}

	// containersByHost preserves the per-host container list for the
	// project/dependency passes; allContainers flattens it for the
	// connection-resolution indexes.
	containersByHost := make(map[string][]model.Container, len(hosts))
	var allContainers []model.Container
	for _, h := range hosts {
		cs, err := m.store.ListHostContainers(h.ID)
		if err != nil {
			return model.GraphData{}, fmt.Errorf("list containers for host %q: %w", h.ID, err)
		}
		if filter.ProjectPattern != "" {
			cs = filterByProject(cs, filter.ProjectPattern)
		}
		containersByHost[h.ID] = cs
		allContainers = append(allContainers, cs...)
	}

	ipIndex := buildContainerIPIndex(allContainers)
	hostIPIndex := buildHostIPIndex(hosts)

	var nodes []model.GraphNode
	for _, c := range allContainers {
		nodes = append(nodes, model.GraphNode{
			ID:     c.Key(),
			Kind:   "container",
			HostID: c.HostID,
			Labels: c.Labels,
			Data:   c,
		})
	}

	var edges []rawEdge
	edges = append(edges, dependencyEdges(allContainers)...)
	for _, h := range hosts {
		edges = append(edges, projectEdges(containersByHost[h.ID])...)
	}

	connEdges, externalNodes, err := m.connectionEdges(hosts, ipIndex, hostIPIndex)
	if err != nil {
		return model.GraphData{}, err
	}
	edges = append(edges, connEdges...)
	nodes = append(nodes, externalNodes...)

	return model.GraphData{
		Nodes:       nodes,
		Edges:       collapseParallelEdges(edges),
		LastUpdated: m.clock().UTC(),
	}, nil
}

// visibleHosts implements §4.6 step 1. organization_id/team_id are
// accepted on the filter but there is no multi-tenant host-membership
// model in this single-writer ingester (see DESIGN.md); every host
// passes those two checks.
func (m *Materializer) visibleHosts(filter model.GraphFilter) ([]model.Host, error) {
	hosts, err := m.store.ListHosts()
	if err != nil {
		return nil, err
	}
	now := m.clock().UTC()

	var out []model.Host
	for _, h := range hosts {
		if !filter.IncludeOffline && now.Sub(h.LastSeen) > offlineThreshold {
			continue
		}
		if filter.HostPattern != "" && !alert.MatchesFilter(h.ID, filter.HostPattern) {
			continue
		}
		out = append(out, h)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func filterByProject(cs []model.Container, pattern string) []model.Container {
	out := make([]model.Container, 0, len(cs))
	for _, c := range cs {
		if alert.MatchesFilter(c.ComposeProject, pattern) {
			out = append(out, c)
		}
	}
	return out
}

// rawEdge is a pre-collapse edge; multiple rawEdges between the same
// (source, target) collapse into one model.GraphEdge (§4.6 step 6).
type rawEdge struct {
	source       string
	target       string
	kind         string
	sourceMethod model.SourceMethod
}

// dependencyEdges emits one edge per declared_dependencies entry that
// resolves to a sibling (project, service) container (§4.6 step 4).
func dependencyEdges(containers []model.Container) []rawEdge {
	bySvc := make(map[string]model.Container, len(containers))
	for _, c := range containers {
		if c.ComposeProject != "" && c.ComposeService != "" {
			bySvc[c.HostID+"|"+c.ComposeProject+"|"+c.ComposeService] = c
		}
	}

	var edges []rawEdge
	for _, c := range containers {
		for _, dep := range c.DeclaredDependencies {
			target, ok := bySvc[c.HostID+"|"+c.ComposeProject+"|"+dep]
			if !ok || target.Key() == c.Key() {
				continue
			}
			edges = append(edges, rawEdge{source: c.Key(), target: target.Key(), kind: "dependency"})
		}
	}
	return edges
}

// projectEdges builds the star topology for one host's containers,
// grouped by compose project: the first container (by key, for
// determinism) is the hub, the rest connect to it (§4.6 step 4).
func projectEdges(containers []model.Container) []rawEdge {
	byProject := make(map[string][]model.Container)
	for _, c := range containers {
		if c.ComposeProject == "" {
			continue
		}
		byProject[c.ComposeProject] = append(byProject[c.ComposeProject], c)
	}

	var edges []rawEdge
	for _, members := range byProject {
		if len(members) < 2 {
			continue
		}
		sort.Slice(members, func(i, j int) bool { return members[i].Key() < members[j].Key() })
		hub := members[0]
		for _, m := range members[1:] {
			edges = append(edges, rawEdge{source: hub.Key(), target: m.Key(), kind: "project"})
		}
	}
	return edges
}

// buildContainerIPIndex builds the (host_id, container_ip) -> container
// index (§4.6 step 3a), keyed by host to avoid collisions from Docker's
// reused private IP ranges across hosts.
func buildContainerIPIndex(containers []model.Container) map[string]model.Container {
	idx := make(map[string]model.Container)
	for _, c := range containers {
		for _, ip := range c.NetworkIPs {
			idx[c.HostID+"|"+ip] = c
		}
	}
	return idx
}

// buildHostIPIndex builds the host_ip -> host index over LAN IPs and
// overlay IP (§4.6 step 3b).
func buildHostIPIndex(hosts []model.Host) map[string]model.Host {
	idx := make(map[string]model.Host)
	for _, h := range hosts {
		for _, ip := range h.IPs {
			idx[ip] = h
		}
		if h.OverlayIP != "" {
			idx[h.OverlayIP] = h
		}
	}
	return idx
}

// connectionEdges implements §4.6 step 5: resolve each connection with
// a known source container to a target node, creating capped
// external:<ip> aggregates for traffic that resolves to neither a
// container nor a matching published port.
func (m *Materializer) connectionEdges(hosts []model.Host, ipIndex map[string]model.Container, hostIPIndex map[string]model.Host) ([]rawEdge, []model.GraphNode, error) {
	var edges []rawEdge
	externalSeen := make(map[string]bool)
	var externalNodes []model.GraphNode

	for _, h := range hosts {
		conns, err := m.store.ListHostConnections(h.ID)
		if err != nil {
			return nil, nil, fmt.Errorf("list connections for host %q: %w", h.ID, err)
		}
		for _, conn := range conns {
			if conn.SourceContainerID == "" {
				continue
			}
			sourceKey := model.ContainerKey(conn.SourceHostID, conn.SourceContainerID)

			if target, ok := ipIndex[conn.SourceHostID+"|"+conn.RemoteIP]; ok {
				edges = append(edges, rawEdge{source: sourceKey, target: target.Key(), kind: "connection", sourceMethod: conn.SourceMethod})
				continue
			}

			if targetHost, ok := hostIPIndex[conn.RemoteIP]; ok {
				if target, ok := findByPublishedPort(m, targetHost.ID, conn.RemotePort); ok {
					edges = append(edges, rawEdge{source: sourceKey, target: target.Key(), kind: "connection", sourceMethod: conn.SourceMethod})
				}
				// Known host, no matching published port: drop the edge (§4.6 step 5).
				continue
			}

			if len(externalNodes) >= maxExternalNodes && !externalSeen[conn.RemoteIP] {
				continue // cap reached: drop further new external nodes
			}
			externalID := "external:" + conn.RemoteIP
			if !externalSeen[conn.RemoteIP] {
				externalSeen[conn.RemoteIP] = true
				externalNodes = append(externalNodes, model.GraphNode{ID: externalID, Kind: "external"})
			}
			edges = append(edges, rawEdge{source: sourceKey, target: externalID, kind: "connection", sourceMethod: conn.SourceMethod})
		}
	}
	return edges, externalNodes, nil
}

func findByPublishedPort(m *Materializer, hostID string, port int) (model.Container, bool) {
	containers, err := m.store.ListHostContainers(hostID)
	if err != nil {
		return model.Container{}, false
	}
	for _, c := range containers {
		for _, p := range c.Ports {
			if p.HostPort == port {
				return c, true
			}
		}
	}
	return model.Container{}, false
}

// collapseParallelEdges merges rawEdges sharing the same (source,
// target) into one model.GraphEdge, aggregating source_method to
// "both" when both proc_net and tcpdump contributed (§4.6 step 6).
func collapseParallelEdges(edges []rawEdge) []model.GraphEdge {
	type key struct{ source, target, kind string }
	merged := make(map[key]model.SourceMethod)
	order := make([]key, 0, len(edges))

	for _, e := range edges {
		k := key{e.source, e.target, e.kind}
		existing, seen := merged[k]
		if !seen {
			merged[k] = e.sourceMethod
			order = append(order, k)
			continue
		}
		if existing != "" && e.sourceMethod != "" && existing != e.sourceMethod {
			merged[k] = model.MethodBoth
		} else if existing == "" {
			merged[k] = e.sourceMethod
		}
	}

	out := make([]model.GraphEdge, 0, len(order))
	for _, k := range order {
		out = append(out, model.GraphEdge{
			ID:           fmt.Sprintf("%s->%s:%s", k.source, k.target, k.kind),
			Source:       k.source,
			Target:       k.target,
			Kind:         k.kind,
			SourceMethod: merged[k],
		})
	}
	return out
}
