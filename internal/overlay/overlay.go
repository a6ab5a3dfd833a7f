// Package overlay detects the host's membership in a Tailscale overlay
// network. It shells out to the tailscale CLI the way internal/capture
// shells out to tcpdump/nsenter: a well-understood external binary run
// under a hard context deadline, rather than linking a Tailscale client
// library the agent has no other use for. Grounded in
// original_source/agent/collectors/tailscale_collector.py, which runs
// `tailscale status --json` and reads Self.TailscaleIPs/HostName the
// same way.
package overlay

import (
	"bytes"
	"context"
	"encoding/json"
	"os/exec"
	"time"

	"github.com/infra-mapper/infra-mapper/internal/logging"
)

// Info is this host's Tailscale overlay identity, if any.
type Info struct {
	IP       string
	Hostname string
}

// status mirrors the subset of `tailscale status --json` this agent
// reads (the self peer's addresses and MagicDNS hostname).
type status struct {
	Self struct {
		TailscaleIPs []string `json:"TailscaleIPs"`
		HostName     string   `json:"HostName"`
	} `json:"Self"`
}

// Detector runs `tailscale status --json` to learn the host's overlay
// address.
type Detector struct {
	log *logging.Logger
}

// New creates a Detector.
func New(log *logging.Logger) *Detector {
	return &Detector{log: log}
}

// Detect returns this host's Tailscale IP/hostname, or ok=false if
// Tailscale isn't installed, isn't running, or reports no address.
// Absence is never an error (§6: a host simply has no overlay
// membership) — only unexpected failures are logged.
func (d *Detector) Detect(ctx context.Context) (Info, bool) {
	if _, err := exec.LookPath("tailscale"); err != nil {
		return Info{}, false
	}

	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	cmd := exec.CommandContext(ctx, "tailscale", "status", "--json")
	var stdout bytes.Buffer
	cmd.Stdout = &stdout
	if err := cmd.Run(); err != nil {
		d.log.Debug("tailscale status failed", "error", err)
		return Info{}, false
	}

	info, ok := parseStatus(stdout.Bytes())
	if !ok {
		d.log.Warn("parse tailscale status failed")
	}
	return info, ok
}

// parseStatus extracts this host's overlay address from `tailscale
// status --json` output.
func parseStatus(raw []byte) (Info, bool) {
	var st status
	if err := json.Unmarshal(raw, &st); err != nil {
		return Info{}, false
	}
	if len(st.Self.TailscaleIPs) == 0 {
		return Info{}, false
	}
	return Info{IP: st.Self.TailscaleIPs[0], Hostname: st.Self.HostName}, true
}
