package overlay

import "testing"

func TestParseStatus_SelfWithIPs(t *testing.T) {
	raw := []byte(`{"Self":{"TailscaleIPs":["100.64.1.2","fd7a:115c::1"],"HostName":"web-1"},"MagicDNSSuffix":"tailnet.ts.net"}`)
	info, ok := parseStatus(raw)
	if !ok {
		t.Fatal("expected ok=true for status with Self.TailscaleIPs")
	}
	if info.IP != "100.64.1.2" {
		t.Errorf("expected first TailscaleIPs entry, got %q", info.IP)
	}
	if info.Hostname != "web-1" {
		t.Errorf("expected hostname web-1, got %q", info.Hostname)
	}
}

func TestParseStatus_NoSelfIPs(t *testing.T) {
	raw := []byte(`{"Self":{"TailscaleIPs":[],"HostName":"web-1"}}`)
	if _, ok := parseStatus(raw); ok {
		t.Fatal("expected ok=false when Self has no TailscaleIPs")
	}
}

func TestParseStatus_Malformed(t *testing.T) {
	if _, ok := parseStatus([]byte("not json")); ok {
		t.Fatal("expected ok=false for malformed JSON")
	}
}
