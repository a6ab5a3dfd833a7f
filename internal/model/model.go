// Package model defines the core entities of the infrastructure map:
// hosts, containers, networks, connections, metrics, logs, and alerts.
// These are plain structs — persistence lives in internal/store, and
// wire encoding is plain JSON tags.
package model

import "time"

// ShortIDLen is the canonical length of a container short ID.
const ShortIDLen = 12

// NormalizeShortID truncates a longer container ID to the canonical
// short length. IDs already at or under the length pass through
// unchanged, which keeps old callers and legacy stored rows working
// without a migration.
func NormalizeShortID(id string) string {
	if len(id) <= ShortIDLen {
		return id
	}
	return id[:ShortIDLen]
}

// ContainerKey builds the composite identity "<host_id>:<short_id>".
// Short IDs are not globally unique; the host prefix is required.
func ContainerKey(hostID, shortID string) string {
	return hostID + ":" + NormalizeShortID(shortID)
}

// Host is an agent-bearing machine.
type Host struct {
	ID           string    `json:"id"` // agent_id: hostname + machine-id prefix (or hash fallback)
	Hostnames    []string  `json:"hostnames"`
	IPs          []string  `json:"ips"`
	OverlayIP    string    `json:"overlay_ip,omitempty"`
	OverlayHost  string    `json:"overlay_hostname,omitempty"`
	DockerVer    string    `json:"docker_version"`
	OS           string    `json:"os"`
	CommandPort  int       `json:"command_port,omitempty"`
	AgentVersion string    `json:"agent_version,omitempty"`

	FirstSeen time.Time `json:"first_seen"`
	LastSeen  time.Time `json:"last_seen"`
	IsOnline  bool      `json:"is_online"`

	// Rolling health fields, maintained by internal/health.
	ReportsCount        int64     `json:"reports_count"`
	ErrorsCount         int64     `json:"errors_count"`
	ConsecutiveFailures int       `json:"consecutive_failures"`
	LastError           string    `json:"last_error,omitempty"`
	LastErrorAt         time.Time `json:"last_error_at,omitempty"`
	LastReportDuration  int64     `json:"last_report_duration_ms"`
	AvgReportDuration   int64     `json:"avg_report_duration_ms"`
	ReportInterval      int       `json:"report_interval_seconds"`
	AgentHealth         string    `json:"agent_health"` // healthy|degraded|unhealthy|unknown
}

// ContainerStatus enumerates lifecycle states.
type ContainerStatus string

const (
	StatusRunning    ContainerStatus = "running"
	StatusStopped    ContainerStatus = "stopped"
	StatusPaused     ContainerStatus = "paused"
	StatusRestarting ContainerStatus = "restarting"
	StatusExited     ContainerStatus = "exited"
	StatusDead       ContainerStatus = "dead"
	StatusCreated    ContainerStatus = "created"
	StatusUnknown    ContainerStatus = "unknown"
)

// ContainerHealth enumerates Docker healthcheck states.
type ContainerHealth string

const (
	HealthHealthy   ContainerHealth = "healthy"
	HealthUnhealthy ContainerHealth = "unhealthy"
	HealthStarting  ContainerHealth = "starting"
	HealthNone      ContainerHealth = "none"
)

// PortMapping is one published port.
type PortMapping struct {
	ContainerPort int    `json:"container_port"`
	HostPort      int    `json:"host_port,omitempty"`
	Protocol      string `json:"protocol"` // tcp|udp
}

// Mount describes a bind/volume mount.
type Mount struct {
	Source      string `json:"source"`
	Destination string `json:"destination"`
	ReadOnly    bool   `json:"read_only"`
}

// Container is a running or stopped container on a host.
type Container struct {
	HostID    string          `json:"host_id"`
	ShortID   string          `json:"short_id"` // first 12 hex chars
	Name      string          `json:"name"`
	Image     string          `json:"image"`
	Status    ContainerStatus `json:"status"`
	Health    ContainerHealth `json:"health"`
	ExitCode  int             `json:"exit_code,omitempty"`
	RestartCount int          `json:"restart_count,omitempty"`
	Node      string          `json:"node,omitempty"` // swarm node, if any

	// network.name -> IP
	NetworkIPs map[string]string `json:"network_ips"`
	Ports      []PortMapping     `json:"ports,omitempty"`
	Mounts     []Mount           `json:"mounts,omitempty"`
	Labels     map[string]string `json:"labels,omitempty"`
	// Environment has had secret-shaped values redacted; see internal/inventory.
	Environment map[string]string `json:"environment,omitempty"`

	ComposeProject string   `json:"compose_project,omitempty"`
	ComposeService  string   `json:"compose_service,omitempty"`
	DeclaredDependencies []string `json:"declared_dependencies,omitempty"`
}

// Key returns the composite "<host_id>:<short_id>" identity.
func (c Container) Key() string { return ContainerKey(c.HostID, c.ShortID) }

// Network is a Docker-level network on a host; purely descriptive.
type Network struct {
	HostID     string   `json:"host_id"`
	Name       string   `json:"name"`
	Driver     string   `json:"driver"`
	Scope      string   `json:"scope"`
	Subnet     string   `json:"subnet,omitempty"`
	Gateway    string   `json:"gateway,omitempty"`
	MemberIDs  []string `json:"member_container_ids,omitempty"`
}

// ConnectionClass classifies a connection's reach.
type ConnectionClass string

const (
	ClassInternal  ConnectionClass = "internal"
	ClassCrossHost ConnectionClass = "cross-host"
	ClassExternal  ConnectionClass = "external"
)

// SourceMethod identifies which evidence stream produced a connection.
type SourceMethod string

const (
	MethodProcNet SourceMethod = "proc_net"
	MethodTcpdump SourceMethod = "tcpdump"
	MethodBoth    SourceMethod = "both"
)

// Connection is a directed network edge observed at a point in time.
type Connection struct {
	SourceHostID      string          `json:"source_host_id"`
	SourceContainerID string          `json:"source_container_id,omitempty"` // short id, attributed
	LocalIP           string          `json:"local_ip"`
	LocalPort         int             `json:"local_port"`
	RemoteIP          string          `json:"remote_ip"`
	RemotePort        int             `json:"remote_port"`
	Protocol          string          `json:"protocol"` // tcp|udp
	State             string          `json:"state,omitempty"`
	Class             ConnectionClass `json:"connection_type,omitempty"`
	SourceMethod      SourceMethod    `json:"source_method"`
	ObservedAt        time.Time       `json:"observed_at"`
}

// Key is the merge/dedup key: (local_ip, local_port, remote_ip, remote_port, protocol).
func (c Connection) Key() string {
	return c.LocalIP + "|" + itoa(c.LocalPort) + "|" + c.RemoteIP + "|" + itoa(c.RemotePort) + "|" + c.Protocol
}

func itoa(n int) string {
	if n == 0 {
		return "0"
	}
	neg := n < 0
	if neg {
		n = -n
	}
	var buf [20]byte
	i := len(buf)
	for n > 0 {
		i--
		buf[i] = byte('0' + n%10)
		n /= 10
	}
	if neg {
		i--
		buf[i] = '-'
	}
	return string(buf[i:])
}

// HostMetricsPoint is a host-level time-series sample.
type HostMetricsPoint struct {
	HostID       string    `json:"host_id"`
	Timestamp    time.Time `json:"timestamp"`
	CPUPercent   int       `json:"cpu_percent"` // integer percent
	CPUCount     int       `json:"cpu_count"`
	Load1        int       `json:"load1_hundredths,omitempty"`
	Load5        int       `json:"load5_hundredths,omitempty"`
	Load15       int       `json:"load15_hundredths,omitempty"`
	MemTotalMB   int       `json:"mem_total_mb"`
	MemUsedMB    int       `json:"mem_used_mb"`
	MemPercent   int       `json:"mem_percent"`
	DiskTotalMB  int       `json:"disk_total_mb"`
	DiskUsedMB   int       `json:"disk_used_mb"`
	DiskPercent  int       `json:"disk_percent"`
	NetRxBytes   int64     `json:"net_rx_bytes"`
	NetTxBytes   int64     `json:"net_tx_bytes"`
}

// ContainerMetricsPoint is a container-level time-series sample.
type ContainerMetricsPoint struct {
	HostID      string    `json:"host_id"`
	ShortID     string    `json:"short_id"`
	Timestamp   time.Time `json:"timestamp"`
	CPUPercentHundredths int `json:"cpu_percent_hundredths"`
	MemUsedMB   int       `json:"mem_used_mb"`
	MemLimitMB  int       `json:"mem_limit_mb"`
	MemPercentHundredths int `json:"mem_percent_hundredths"`
	NetRxBytes  int64     `json:"net_rx_bytes"`
	NetTxBytes  int64     `json:"net_tx_bytes"`
	BlockRead   int64     `json:"block_read_bytes"`
	BlockWrite  int64     `json:"block_write_bytes"`
	PIDs        int       `json:"pids"`
}

// ContainerLogEntry is one captured log line.
type ContainerLogEntry struct {
	HostID      string    `json:"host_id"`
	ContainerID string    `json:"container_id"` // short id
	Timestamp   time.Time `json:"timestamp"`
	Stream      string    `json:"stream"` // stdout|stderr
	Message     string    `json:"message"`
}

// MaxLogMessageBytes is the ingest-side truncation limit (§3).
const MaxLogMessageBytes = 10000

// AlertSeverity enumerates alert/channel severities.
type AlertSeverity string

const (
	SeverityInfo     AlertSeverity = "info"
	SeverityWarning  AlertSeverity = "warning"
	SeverityCritical AlertSeverity = "critical"
)

// AlertStatus enumerates the alert state machine (§4.8).
type AlertStatus string

const (
	AlertActive       AlertStatus = "active"
	AlertAcknowledged AlertStatus = "acknowledged"
	AlertResolved     AlertStatus = "resolved"
)

// AlertRuleType enumerates supported rule types.
type AlertRuleType string

const (
	RuleHostOffline        AlertRuleType = "host_offline"
	RuleContainerStopped   AlertRuleType = "container_stopped"
	RuleContainerUnhealthy AlertRuleType = "container_unhealthy"
)

// AlertRule is an admin-managed evaluation rule.
type AlertRule struct {
	ID              string        `json:"id"`
	RuleType        AlertRuleType `json:"rule_type"`
	Severity        AlertSeverity `json:"severity"`
	Enabled         bool          `json:"enabled"`
	Config          map[string]any `json:"config"`
	HostFilter      string        `json:"host_filter,omitempty"`
	ContainerFilter string        `json:"container_filter,omitempty"`
	ProjectFilter   string        `json:"project_filter,omitempty"`
	CooldownMinutes int           `json:"cooldown_minutes"`
}

// Alert is a fired instance of a rule.
type Alert struct {
	ID                string         `json:"id"`
	RuleID            string         `json:"rule_id"`
	RuleType          AlertRuleType  `json:"rule_type"`
	Fingerprint       string         `json:"fingerprint"` // rule_id + resource key, for cooldown/active lookups
	Severity          AlertSeverity  `json:"severity"`
	Status            AlertStatus    `json:"status"`
	Title             string         `json:"title"`
	Message           string         `json:"message"`
	HostRefs          []string       `json:"host_refs,omitempty"`
	ContainerRefs     []string       `json:"container_refs,omitempty"`
	Context           map[string]any `json:"context,omitempty"`
	TriggeredAt       time.Time      `json:"triggered_at"`
	ResolvedAt        time.Time      `json:"resolved_at,omitempty"`
	AcknowledgedAt    time.Time      `json:"acknowledged_at,omitempty"`
	NotificationsSent []NotifyResult `json:"notifications_sent,omitempty"`
}

// NotifyResult records the outcome of one channel's send attempt.
type NotifyResult struct {
	ChannelID string `json:"channel_id"`
	Success   bool   `json:"success"`
	Error     string `json:"error,omitempty"`
	SentAt    time.Time `json:"sent_at"`
}

// AlertChannel is a notification destination.
type AlertChannel struct {
	ID              string         `json:"id"`
	ChannelType     string         `json:"channel_type"`
	Name            string         `json:"name"`
	Enabled         bool           `json:"enabled"`
	Config          map[string]any `json:"config"`
	SeverityFilter  []string       `json:"severity_filter,omitempty"`
	RuleTypeFilter  []string       `json:"rule_type_filter,omitempty"`
}

// LogSink is an external log destination.
type LogSink struct {
	ID               string         `json:"id"`
	SinkType         string         `json:"sink_type"`
	Name             string         `json:"name"`
	Enabled          bool           `json:"enabled"`
	URL              string         `json:"url"`
	Auth             map[string]any `json:"auth,omitempty"`
	Config           map[string]any `json:"config,omitempty"`
	FilterHosts      []string       `json:"filter_hosts,omitempty"`
	FilterContainers []string       `json:"filter_containers,omitempty"`
	FilterStreams    []string       `json:"filter_streams,omitempty"`
	BatchSize        int            `json:"batch_size,omitempty"`
	InsecureSkipTLS  bool           `json:"insecure_skip_tls,omitempty"`

	// Counters, updated after each send attempt.
	LogsSent         int64     `json:"logs_sent"`
	ErrorsCount      int64     `json:"errors_count"`
	LastSuccess      time.Time `json:"last_success,omitempty"`
	LastError        time.Time `json:"last_error,omitempty"`
	LastErrorMessage string    `json:"last_error_message,omitempty"`
}

// AgentMetadata is reported by the agent with every report (§4.4).
type AgentMetadata struct {
	Version          string `json:"version"`
	ReportInterval   int    `json:"report_interval_seconds"`
	ReportDurationMs int64  `json:"report_duration_ms"`
	UptimeSeconds    int64  `json:"uptime_seconds"`
	Error            string `json:"error,omitempty"`
	CommandPort      int    `json:"command_port,omitempty"`
}

// AgentReport is the full body of POST /api/v1/report.
type AgentReport struct {
	Host             Host                    `json:"host"`
	Containers       []Container             `json:"containers"`
	Networks         []Network               `json:"networks"`
	Connections      []Connection            `json:"connections"`
	ContainerLogs    []ContainerLogEntry     `json:"container_logs"`
	HostMetrics      *HostMetricsPoint       `json:"host_metrics,omitempty"`
	ContainerMetrics []ContainerMetricsPoint `json:"container_metrics"`
	Agent            AgentMetadata           `json:"agent"`
	Timestamp        time.Time               `json:"timestamp"`
}

// GraphNode is one node in the materialized graph (a container or an
// external host aggregate).
type GraphNode struct {
	ID      string            `json:"id"`
	Kind    string            `json:"kind"` // "container" | "external"
	HostID  string            `json:"host_id,omitempty"`
	Labels  map[string]string `json:"labels,omitempty"`
	Data    any               `json:"data,omitempty"`
}

// GraphEdge is one edge in the materialized graph.
type GraphEdge struct {
	ID           string       `json:"id"`
	Source       string       `json:"source"`
	Target       string       `json:"target"`
	Kind         string       `json:"kind"` // "dependency" | "project" | "connection"
	SourceMethod SourceMethod `json:"source_method,omitempty"`
}

// GraphData is the response to GET /api/v1/graph.
type GraphData struct {
	Nodes       []GraphNode `json:"nodes"`
	Edges       []GraphEdge `json:"edges"`
	LastUpdated time.Time   `json:"last_updated"`
}

// GraphFilter narrows a graph materialization (§4.6).
type GraphFilter struct {
	IncludeOffline bool
	HostPattern    string
	ProjectPattern string
	OrganizationID string
	TeamID         string
}
