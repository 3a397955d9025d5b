package server

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadConfig_Defaults(t *testing.T) {
	config, err := LoadConfig("")
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}

	if got := config.GetString("server.host"); got != "0.0.0.0" {
		t.Errorf("server.host = %q, want 0.0.0.0", got)
	}
	if got := config.GetInt("server.port"); got != 8080 {
		t.Errorf("server.port = %d, want 8080", got)
	}
	if got := config.GetString("storage.path"); got != "snutz.db" {
		t.Errorf("storage.path = %q, want snutz.db", got)
	}
	if got := config.GetDuration("modules.fleet.offline_after"); got != 0 {
		t.Errorf("modules.fleet.offline_after = %v, want 0 (disabled)", got)
	}
}

func TestLoadConfig_FileOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "server.yaml")
	content := []byte(`
server:
  port: 9090
modules:
  fleet:
    offline_after: 90s
    auto_ping_schedule: true
`)
	if err := os.WriteFile(path, content, 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	config, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}

	if got := config.GetInt("server.port"); got != 9090 {
		t.Errorf("server.port = %d, want 9090", got)
	}
	if got := config.GetDuration("modules.fleet.offline_after"); got != 90*time.Second {
		t.Errorf("offline_after = %v, want 90s", got)
	}
	if !config.GetBool("modules.fleet.auto_ping_schedule") {
		t.Error("auto_ping_schedule = false, want true")
	}
	// Untouched defaults survive.
	if got := config.GetString("server.host"); got != "0.0.0.0" {
		t.Errorf("server.host = %q, want default", got)
	}
}

func TestLoadConfig_ModuleSection(t *testing.T) {
	config, err := LoadConfig("")
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}

	sub := config.Sub("modules.fleet")
	if sub == nil {
		t.Fatal("Sub(modules.fleet) = nil, want defaults section")
	}
	if got := sub.GetString("auto_ping_target"); got != "8.8.8.8" {
		t.Errorf("auto_ping_target = %q, want 8.8.8.8", got)
	}
	if got := sub.GetInt("auto_ping_interval_seconds"); got != 300 {
		t.Errorf("auto_ping_interval_seconds = %d, want 300", got)
	}
}

func TestLoadConfig_MissingFile(t *testing.T) {
	if _, err := LoadConfig(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Fatal("LoadConfig succeeded with missing file, want error")
	}
}
