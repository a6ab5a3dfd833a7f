package config

import (
	"os"
	"testing"
	"time"
)

func unsetCollectorEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{
		"INFRAMAPPER_BACKEND_URL", "INFRAMAPPER_API_KEY", "INFRAMAPPER_DOCKER_SOCK",
		"INFRAMAPPER_CAPTURE_MODE", "INFRAMAPPER_SCAN_INTERVAL", "INFRAMAPPER_LOG_JSON",
	} {
		os.Unsetenv(k)
	}
}

func TestLoadCollectorDefaults(t *testing.T) {
	unsetCollectorEnv(t)

	cfg := LoadCollector()
	if cfg.BackendURL != "http://localhost:8090" {
		t.Errorf("BackendURL = %q, want http://localhost:8090", cfg.BackendURL)
	}
	if cfg.DockerSock != "/var/run/docker.sock" {
		t.Errorf("DockerSock = %q, want /var/run/docker.sock", cfg.DockerSock)
	}
	if cfg.ScanInterval() != 30*time.Second {
		t.Errorf("ScanInterval = %s, want 30s", cfg.ScanInterval())
	}
	if cfg.CaptureMode != "intermittent" {
		t.Errorf("CaptureMode = %q, want intermittent", cfg.CaptureMode)
	}
	if !cfg.LogJSON {
		t.Error("LogJSON = false, want true")
	}
}

func TestLoadCollectorFromEnv(t *testing.T) {
	t.Setenv("INFRAMAPPER_SCAN_INTERVAL", "1h")
	t.Setenv("INFRAMAPPER_CAPTURE_MODE", "active")
	t.Setenv("INFRAMAPPER_LOG_JSON", "false")

	cfg := LoadCollector()
	if cfg.ScanInterval() != time.Hour {
		t.Errorf("ScanInterval = %s, want 1h", cfg.ScanInterval())
	}
	if cfg.CaptureMode != "active" {
		t.Errorf("CaptureMode = %q, want active", cfg.CaptureMode)
	}
	if cfg.LogJSON {
		t.Error("LogJSON = true, want false")
	}
}

func TestCollectorSetScanInterval(t *testing.T) {
	cfg := LoadCollector()
	cfg.SetScanInterval(5 * time.Minute)
	if cfg.ScanInterval() != 5*time.Minute {
		t.Errorf("ScanInterval = %s, want 5m after SetScanInterval", cfg.ScanInterval())
	}
}

func TestCollectorValidate(t *testing.T) {
	tests := []struct {
		name    string
		modify  func(*CollectorConfig)
		wantErr bool
	}{
		{"valid defaults", func(_ *CollectorConfig) {}, false},
		{"empty backend url", func(c *CollectorConfig) { c.BackendURL = "" }, true},
		{"zero scan interval", func(c *CollectorConfig) { c.SetScanInterval(0) }, true},
		{"invalid capture mode", func(c *CollectorConfig) { c.CaptureMode = "yolo" }, true},
		{"active capture mode valid", func(c *CollectorConfig) { c.CaptureMode = "active" }, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := LoadCollector()
			tt.modify(cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr = %v", err, tt.wantErr)
			}
		})
	}
}

func TestLoadIngesterDefaults(t *testing.T) {
	for _, k := range []string{"INFRAMAPPER_DB_PATH", "INFRAMAPPER_WEB_PORT", "INFRAMAPPER_OFFLINE_AFTER"} {
		os.Unsetenv(k)
	}

	cfg := LoadIngester()
	if cfg.DBPath != "/data/infra-mapper.db" {
		t.Errorf("DBPath = %q, want /data/infra-mapper.db", cfg.DBPath)
	}
	if cfg.WebPort != "8090" {
		t.Errorf("WebPort = %q, want 8090", cfg.WebPort)
	}
	if cfg.OfflineAfter() != 5*time.Minute {
		t.Errorf("OfflineAfter = %s, want 5m", cfg.OfflineAfter())
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate() = %v, want nil", err)
	}
}

func TestIngesterSetOfflineAfter(t *testing.T) {
	cfg := LoadIngester()
	cfg.SetOfflineAfter(10 * time.Minute)
	if cfg.OfflineAfter() != 10*time.Minute {
		t.Errorf("OfflineAfter = %s, want 10m after SetOfflineAfter", cfg.OfflineAfter())
	}
}

func TestIngesterValidateRequiresDBPathAndPort(t *testing.T) {
	cfg := LoadIngester()
	cfg.DBPath = ""
	if err := cfg.Validate(); err == nil {
		t.Error("expected error for empty DBPath")
	}

	cfg = LoadIngester()
	cfg.WebPort = ""
	if err := cfg.Validate(); err == nil {
		t.Error("expected error for empty WebPort")
	}
}

func TestEnvStr(t *testing.T) {
	const key = "IM_TEST_ENV_STR"
	t.Setenv(key, "custom")

	if got := envStr(key, "default"); got != "custom" {
		t.Errorf("got %q, want %q", got, "custom")
	}
	if got := envStr("IM_TEST_MISSING", "fallback"); got != "fallback" {
		t.Errorf("got %q, want %q", got, "fallback")
	}
}

func TestEnvInt(t *testing.T) {
	const key = "IM_TEST_ENV_INT"

	t.Setenv(key, "42")
	if got := envInt(key, 0); got != 42 {
		t.Errorf("got %d, want 42", got)
	}

	t.Setenv(key, "notanumber")
	if got := envInt(key, 99); got != 99 {
		t.Errorf("got %d, want 99 (default on parse failure)", got)
	}
}

func TestEnvBool(t *testing.T) {
	const key = "IM_TEST_ENV_BOOL"

	t.Setenv(key, "true")
	if got := envBool(key, false); !got {
		t.Errorf("got false, want true")
	}

	t.Setenv(key, "invalid")
	if got := envBool(key, true); !got {
		t.Errorf("got false, want true (default on parse failure)")
	}
}

func TestEnvDuration(t *testing.T) {
	const key = "IM_TEST_ENV_DUR"

	t.Setenv(key, "5m")
	if got := envDuration(key, time.Hour); got != 5*time.Minute {
		t.Errorf("got %s, want 5m", got)
	}

	t.Setenv(key, "notaduration")
	if got := envDuration(key, time.Hour); got != time.Hour {
		t.Errorf("got %s, want 1h (default on parse failure)", got)
	}
}

func TestEnvList(t *testing.T) {
	const key = "IM_TEST_ENV_LIST"

	t.Setenv(key, "a, b ,c")
	got := envList(key, []string{"default"})
	want := []string{"a", "b", "c"}
	if len(got) != len(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("got %v, want %v", got, want)
		}
	}

	os.Unsetenv(key)
	if got := envList(key, []string{"default"}); len(got) != 1 || got[0] != "default" {
		t.Errorf("got %v, want [default]", got)
	}
}
