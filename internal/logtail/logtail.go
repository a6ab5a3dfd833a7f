// Package logtail captures per-container stdout/stderr log lines for
// forwarding in an agent report (§4.1.5). It is grounded on the
// teacher's docker.Client.ContainerLogs, extended to request per-line
// timestamps so stream attribution and wall-clock fallback can work.
package logtail

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/moby/moby/api/pkg/stdcopy"
	"github.com/moby/moby/client"

	"github.com/infra-mapper/infra-mapper/internal/docker"
	"github.com/infra-mapper/infra-mapper/internal/model"
)

// MaxLineBytes truncates an over-long collected line at the agent
// before it is ever put on the wire (§4.1.5); the ingest side applies
// its own, larger limit (model.MaxLogMessageBytes) independently.
const MaxLineBytes = 5000

// rawClient is implemented by docker.Client; used directly here
// because the raw stream/demux access needed for per-line timestamps
// isn't part of the narrow docker.API interface.
type rawClient interface {
	RawContainerLogs(ctx context.Context, id string, opts client.ContainerLogsOptions) (io.ReadCloser, error)
}

// Tailer reads container logs since a point in time.
type Tailer struct {
	raw rawClient
}

// New creates a Tailer. If d does not implement the raw log-streaming
// extension, Tail falls back to docker.API.ContainerLogs without
// per-line timestamps.
func New(d docker.API) *Tailer {
	r, _ := d.(rawClient)
	return &Tailer{raw: r}
}

// Tail returns up to `lines` most recent log lines from a container,
// no older than sinceSeconds, tagged by stream and timestamp.
func (t *Tailer) Tail(ctx context.Context, d docker.API, hostID, shortID, dockerID string, lines, sinceSeconds int) ([]model.ContainerLogEntry, error) {
	if t.raw == nil {
		return t.fallback(ctx, d, hostID, shortID, dockerID, lines)
	}

	since := ""
	if sinceSeconds > 0 {
		since = time.Now().Add(-time.Duration(sinceSeconds) * time.Second).UTC().Format(time.RFC3339)
	}
	reader, err := t.raw.RawContainerLogs(ctx, dockerID, client.ContainerLogsOptions{
		ShowStdout: true,
		ShowStderr: true,
		Timestamps: true,
		Tail:       fmt.Sprintf("%d", lines),
		Since:      since,
	})
	if err != nil {
		return nil, fmt.Errorf("container logs: %w", err)
	}
	defer reader.Close()

	var stdout, stderr bytes.Buffer
	if _, err := stdcopy.StdCopy(&stdout, &stderr, reader); err != nil {
		return t.fallback(ctx, d, hostID, shortID, dockerID, lines)
	}

	out := parseStream(hostID, shortID, "stdout", stdout.String())
	out = append(out, parseStream(hostID, shortID, "stderr", stderr.String())...)
	return out, nil
}

// fallback uses the narrow docker.API.ContainerLogs (no timestamps) and
// falls back to wall-clock for every line's timestamp.
func (t *Tailer) fallback(ctx context.Context, d docker.API, hostID, shortID, dockerID string, lines int) ([]model.ContainerLogEntry, error) {
	raw, err := d.ContainerLogs(ctx, dockerID, lines)
	if err != nil {
		return nil, err
	}
	now := time.Now().UTC()
	var out []model.ContainerLogEntry
	scanner := bufio.NewScanner(strings.NewReader(raw))
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	for scanner.Scan() {
		out = append(out, model.ContainerLogEntry{
			HostID:      hostID,
			ContainerID: shortID,
			Timestamp:   now,
			Stream:      "stdout",
			Message:     truncate(scanner.Text()),
		})
	}
	return out, nil
}

// parseStream splits a demuxed stream into entries, parsing the
// leading RFC3339Nano timestamp Docker prepends with Timestamps:true.
// A line with no parseable timestamp falls back to wall-clock time
// (§4.1.5 edge case).
func parseStream(hostID, shortID, stream, text string) []model.ContainerLogEntry {
	var out []model.ContainerLogEntry
	scanner := bufio.NewScanner(strings.NewReader(text))
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		ts, msg := splitTimestamp(line)
		out = append(out, model.ContainerLogEntry{
			HostID:      hostID,
			ContainerID: shortID,
			Timestamp:   ts,
			Stream:      stream,
			Message:     truncate(msg),
		})
	}
	return out
}

func splitTimestamp(line string) (time.Time, string) {
	idx := strings.IndexByte(line, ' ')
	if idx < 0 {
		return time.Now().UTC(), line
	}
	ts, err := time.Parse(time.RFC3339Nano, line[:idx])
	if err != nil {
		return time.Now().UTC(), line
	}
	return ts.UTC(), line[idx+1:]
}

func truncate(s string) string {
	if len(s) <= MaxLineBytes {
		return s
	}
	return s[:MaxLineBytes] + "..."
}
