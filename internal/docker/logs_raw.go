package docker

import (
	"context"
	"io"

	"github.com/moby/moby/client"
)

// RawContainerLogs returns the raw demuxed log stream for a container,
// honoring the full option set (timestamps, since, tail). Separate
// from the narrow ContainerLogs helper above so callers that need
// per-line timestamps (internal/logtail) aren't forced through the
// combined-string API.
func (c *Client) RawContainerLogs(ctx context.Context, id string, opts client.ContainerLogsOptions) (io.ReadCloser, error) {
	return c.api.ContainerLogs(ctx, id, opts)
}
