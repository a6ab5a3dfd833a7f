// Package merge reconciles the two connection evidence streams —
// internal/procnet and internal/capture — into one set per §4.3: keyed
// on (local_ip, local_port, remote_ip, remote_port, protocol), with
// proc_net evidence always winning on collision and tcpdump only
// filling gaps proc_net never saw.
package merge

import "github.com/infra-mapper/infra-mapper/internal/model"

// Connections merges proc_net and tcpdump observations for one host's
// report. On a key collision the proc_net row wins outright; its
// source_method is upgraded to "both" so downstream consumers know
// both methods corroborated the edge.
func Connections(procNet, tcpdump []model.Connection) []model.Connection {
	byKey := make(map[string]model.Connection, len(procNet)+len(tcpdump))
	order := make([]string, 0, len(procNet)+len(tcpdump))

	for _, c := range procNet {
		k := c.Key()
		if _, exists := byKey[k]; !exists {
			order = append(order, k)
		}
		byKey[k] = c
	}

	for _, c := range tcpdump {
		k := c.Key()
		if existing, ok := byKey[k]; ok {
			existing.SourceMethod = model.MethodBoth
			byKey[k] = existing
			continue
		}
		order = append(order, k)
		byKey[k] = c
	}

	out := make([]model.Connection, 0, len(order))
	for _, k := range order {
		out = append(out, byKey[k])
	}
	return out
}
