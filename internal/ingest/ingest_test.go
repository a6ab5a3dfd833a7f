package ingest

import (
	"testing"

	"github.com/infra-mapper/infra-mapper/internal/model"
)

// TestClassify_ThreeWaySplit covers §4.5/§6's three-way connection
// classification: a remote address that is one of this host's own
// container IPs is internal, a private/CGNAT address that belongs to
// someone else is cross-host, anything else is external.
func TestClassify_ThreeWaySplit(t *testing.T) {
	ipToContainer := map[string]string{"10.0.0.5": "abc123"}

	cases := []struct {
		name     string
		remoteIP string
		want     model.ConnectionClass
	}{
		{"own container IP is internal", "10.0.0.5", model.ClassInternal},
		{"private IP not ours is cross-host", "10.0.0.9", model.ClassCrossHost},
		{"CGNAT IP not ours is cross-host", "100.64.3.3", model.ClassCrossHost},
		{"public IP is external", "8.8.8.8", model.ClassExternal},
		{"unparseable address is external", "not-an-ip", model.ClassExternal},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := classify(tc.remoteIP, ipToContainer)
			if got != tc.want {
				t.Errorf("classify(%q) = %q, want %q", tc.remoteIP, got, tc.want)
			}
		})
	}
}

func TestAttributeConnections_DropsListenAndUnspecified(t *testing.T) {
	conns := []model.Connection{
		{LocalIP: "10.0.0.5", RemoteIP: "0.0.0.0", State: "listen"},
		{LocalIP: "10.0.0.5", RemoteIP: "8.8.8.8", State: "established"},
	}
	containers := []model.Container{{ShortID: "abc123", NetworkIPs: map[string]string{"net1": "10.0.0.5"}}}

	out := attributeConnections("h1", conns, containers)
	if len(out) != 1 {
		t.Fatalf("expected 1 surviving connection, got %d", len(out))
	}
	if out[0].SourceContainerID != "abc123" {
		t.Errorf("expected connection attributed to abc123, got %q", out[0].SourceContainerID)
	}
	if out[0].Class != model.ClassExternal {
		t.Errorf("expected external class for public remote IP, got %q", out[0].Class)
	}
}
