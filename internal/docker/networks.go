package docker

import (
	"context"

	"github.com/moby/moby/api/types/network"
	"github.com/moby/moby/client"
)

// ListNetworks returns all Docker networks visible to the daemon.
func (c *Client) ListNetworks(ctx context.Context) ([]network.Summary, error) {
	result, err := c.api.NetworkList(ctx, client.NetworkListOptions{})
	if err != nil {
		return nil, err
	}
	return result.Items, nil
}

// InspectNetwork returns full network details, including connected
// container endpoints.
func (c *Client) InspectNetwork(ctx context.Context, id string) (network.Inspect, error) {
	result, err := c.api.NetworkInspect(ctx, id, client.NetworkInspectOptions{Verbose: true})
	if err != nil {
		return network.Inspect{}, err
	}
	return result.Network, nil
}
