package docker

import (
	"context"
	"encoding/json"

	"github.com/moby/moby/api/types/container"
	"github.com/moby/moby/client"
)

// ContainerStatsOnce returns a single non-streaming resource usage
// sample for a container, the way `docker stats --no-stream` works.
func (c *Client) ContainerStatsOnce(ctx context.Context, id string) (container.StatsResponse, error) {
	reader, err := c.api.ContainerStats(ctx, id, client.ContainerStatsOptions{Stream: false})
	if err != nil {
		return container.StatsResponse{}, err
	}
	defer reader.Close()

	var stats container.StatsResponse
	if err := json.NewDecoder(reader).Decode(&stats); err != nil {
		return container.StatsResponse{}, err
	}
	return stats, nil
}
