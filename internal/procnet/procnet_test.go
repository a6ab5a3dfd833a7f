package procnet

import (
	"os"
	"testing"
)

func TestDecodeHexAddr_IPv4(t *testing.T) {
	// 127.0.0.1:80 encoded little-endian: 0100007F:0050
	ip, port, err := decodeHexAddr("0100007F:0050")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ip != "127.0.0.1" {
		t.Errorf("expected 127.0.0.1, got %s", ip)
	}
	if port != 80 {
		t.Errorf("expected port 80, got %d", port)
	}
}

func TestDecodeHexAddr_Malformed(t *testing.T) {
	if _, _, err := decodeHexAddr("nothexnocolon"); err == nil {
		t.Error("expected error for malformed field")
	}
}

func TestParseProcNetFile_SkipsListenWithNoPeer(t *testing.T) {
	// Simulated /proc/net/tcp content: header + one LISTEN row + one
	// ESTABLISHED row.
	content := "  sl  local_address rem_address   st\n" +
		"   0: 0100007F:1F90 00000000:0000 0A\n" +
		"   1: 0100007F:1F90 0200007F:C350 01\n"

	tmp := t.TempDir() + "/tcp"
	if err := os.WriteFile(tmp, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	conns, err := parseProcNetFile(tmp, "tcp")
	if err != nil {
		t.Fatal(err)
	}
	if len(conns) != 1 {
		t.Fatalf("expected 1 connection (listen-with-no-peer dropped), got %d", len(conns))
	}
	if conns[0].State != "established" {
		t.Errorf("expected established state, got %q", conns[0].State)
	}
}
