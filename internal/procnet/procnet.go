// Package procnet extracts TCP/UDP connection evidence directly from
// /proc, the way a host-namespace agent does without packet capture.
// It maps PIDs to container short IDs via /proc/<pid>/cgroup and
// decodes /proc/<pid>/net/{tcp,udp} kernel tables, the same format
// the host's own /proc/net/tcp exposes for pid 1.
package procnet

import (
	"bufio"
	"encoding/hex"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/infra-mapper/infra-mapper/internal/logging"
	"github.com/infra-mapper/infra-mapper/internal/model"
)

// Reader decodes /proc-resident network evidence. ProcRoot defaults to
// "/proc" and is overridable for tests.
type Reader struct {
	ProcRoot string
	log      *logging.Logger
}

// New creates a Reader rooted at /proc.
func New(log *logging.Logger) *Reader {
	return &Reader{ProcRoot: "/proc", log: log}
}

// containerIDPattern extracts a 64-char docker container ID from a
// cgroup path component such as
// "/docker/abcd...64hexchars" or "/system.slice/docker-abcd....scope".
var containerIDPattern = regexp.MustCompile(`[0-9a-f]{64}`)

// pidContainer maps a running process ID to the short container ID
// that owns its cgroup, or "" if the PID belongs to the host itself.
func (r *Reader) pidContainer(pid string) string {
	data, err := os.ReadFile(filepath.Join(r.ProcRoot, pid, "cgroup"))
	if err != nil {
		return ""
	}
	m := containerIDPattern.FindString(string(data))
	if m == "" {
		return ""
	}
	return model.NormalizeShortID(m)
}

// listPIDs enumerates numeric entries under ProcRoot.
func (r *Reader) listPIDs() []string {
	entries, err := os.ReadDir(r.ProcRoot)
	if err != nil {
		return nil
	}
	var pids []string
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		if _, err := strconv.Atoi(e.Name()); err == nil {
			pids = append(pids, e.Name())
		}
	}
	return pids
}

// Scan walks every process on the host, maps it to its owning
// container (or the host itself for pid 1), and decodes that
// process's /proc/<pid>/net/{tcp,udp} tables into connections tagged
// source_method=proc_net.
func (r *Reader) Scan(hostID string) []model.Connection {
	now := time.Now().UTC()
	var out []model.Connection

	seenContainer := map[string]bool{}
	for _, pid := range r.listPIDs() {
		shortID := r.pidContainer(pid)
		if shortID != "" {
			if seenContainer[shortID] {
				continue // one representative PID per container is enough
			}
			seenContainer[shortID] = true
		} else if pid != "1" {
			continue // only pid 1 represents the bare host namespace
		}
		out = append(out, r.scanPID(hostID, shortID, pid, now)...)
	}
	return out
}

func (r *Reader) scanPID(hostID, shortID, pid string, now time.Time) []model.Connection {
	var out []model.Connection
	for _, proto := range []string{"tcp", "udp"} {
		path := filepath.Join(r.ProcRoot, pid, "net", proto)
		conns, err := parseProcNetFile(path, proto)
		if err != nil {
			continue
		}
		for _, c := range conns {
			if isLoopback(c.LocalIP) && isLoopback(c.RemoteIP) {
				continue // both ends loopback: not a useful edge (§4.1.2)
			}
			c.SourceHostID = hostID
			c.SourceContainerID = shortID
			c.SourceMethod = model.MethodProcNet
			c.ObservedAt = now
			out = append(out, c)
		}
	}
	return out
}

// tcpEstablished is the /proc/net/tcp "st" field value for ESTABLISHED.
const tcpEstablished = "01"
const tcpListen = "0A"

func parseProcNetFile(path, proto string) ([]model.Connection, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var out []model.Connection
	scanner := bufio.NewScanner(f)
	scanner.Scan() // header line
	for scanner.Scan() {
		fields := strings.Fields(scanner.Text())
		if len(fields) < 4 {
			continue
		}
		localIP, localPort, err := decodeHexAddr(fields[1])
		if err != nil {
			continue
		}
		remoteIP, remotePort, err := decodeHexAddr(fields[2])
		if err != nil {
			continue
		}
		state := strings.ToUpper(fields[3])

		// UDP has no listen state concept in practice for our purposes;
		// for TCP, skip pure LISTEN sockets with no remote peer (§4.1.2,
		// filtered again at ingest but dropped here too to save bandwidth).
		if proto == "tcp" && state == tcpListen && remotePort == 0 {
			continue
		}

		out = append(out, model.Connection{
			LocalIP:    localIP,
			LocalPort:  localPort,
			RemoteIP:   remoteIP,
			RemotePort: remotePort,
			Protocol:   proto,
			State:      stateName(state),
		})
	}
	return out, scanner.Err()
}

func stateName(hexState string) string {
	switch hexState {
	case tcpEstablished:
		return "established"
	case tcpListen:
		return "listen"
	case "06":
		return "time_wait"
	case "08":
		return "close_wait"
	default:
		return "unknown"
	}
}

// decodeHexAddr decodes a "<hexip>:<hexport>" field from /proc/net/{tcp,udp}.
// IPv4 addresses are stored little-endian, 8 hex chars; IPv6 uses 32.
func decodeHexAddr(field string) (string, int, error) {
	parts := strings.SplitN(field, ":", 2)
	if len(parts) != 2 {
		return "", 0, fmt.Errorf("malformed proc net field %q", field)
	}
	ipHex, portHex := parts[0], parts[1]

	port, err := strconv.ParseInt(portHex, 16, 32)
	if err != nil {
		return "", 0, err
	}

	raw, err := hex.DecodeString(ipHex)
	if err != nil {
		return "", 0, err
	}

	ip, err := decodeHexIP(raw)
	if err != nil {
		return "", 0, err
	}
	return ip, int(port), nil
}

func decodeHexIP(raw []byte) (string, error) {
	switch len(raw) {
	case 4:
		return net.IPv4(raw[3], raw[2], raw[1], raw[0]).String(), nil
	case 16:
		// IPv6 is stored as four little-endian 32-bit words.
		ip := make(net.IP, 16)
		for word := 0; word < 4; word++ {
			for b := 0; b < 4; b++ {
				ip[word*4+b] = raw[word*4+(3-b)]
			}
		}
		return ip.String(), nil
	default:
		return "", fmt.Errorf("unexpected address length %d", len(raw))
	}
}

func isLoopback(ipStr string) bool {
	ip := net.ParseIP(ipStr)
	return ip != nil && ip.IsLoopback()
}
