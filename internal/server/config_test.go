package server

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadConfigMissingFileUsesDefaults(t *testing.T) {
	cfg := LoadConfig(filepath.Join(t.TempDir(), "nope.yaml"))
	if cfg.Device.Type != "demo" {
		t.Errorf("device type = %q, want demo", cfg.Device.Type)
	}
	if cfg.Device.BaudRate != 115200 {
		t.Errorf("baud = %d, want 115200", cfg.Device.BaudRate)
	}
	if cfg.Server.ListenAddr != ":8080" {
		t.Errorf("listen = %q", cfg.Server.ListenAddr)
	}
	if cfg.Wave.MaxTime != 4000 {
		t.Errorf("wave max time = %v, want 4000", cfg.Wave.MaxTime)
	}
}

func TestLoadConfigFromYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	yaml := `
device:
  type: serial
  port_path: /dev/ttyUSB3
  baud_rate: 921600
server:
  listen_addr: ":9000"
`
	if err := os.WriteFile(path, []byte(yaml), 0644); err != nil {
		t.Fatal(err)
	}

	cfg := LoadConfig(path)
	if cfg.Device.Type != "serial" || cfg.Device.PortPath != "/dev/ttyUSB3" {
		t.Errorf("device = %+v", cfg.Device)
	}
	if cfg.Device.BaudRate != 921600 {
		t.Errorf("baud = %d", cfg.Device.BaudRate)
	}
	if cfg.Server.ListenAddr != ":9000" {
		t.Errorf("listen = %q", cfg.Server.ListenAddr)
	}
	// Unspecified sections keep their defaults.
	if cfg.Device.HeartbeatMs != 2000 {
		t.Errorf("heartbeat = %d, want default 2000", cfg.Device.HeartbeatMs)
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("MDP_TYPE", "serial")
	t.Setenv("MDP_PORT", "/dev/ttyACM7")
	t.Setenv("MDP_BAUD", "57600")
	t.Setenv("LISTEN_ADDR", ":7777")
	t.Setenv("LOG_ENABLED", "true")

	cfg := DefaultConfig()
	cfg.applyEnvOverrides()

	if cfg.Device.Type != "serial" || cfg.Device.PortPath != "/dev/ttyACM7" {
		t.Errorf("device = %+v", cfg.Device)
	}
	if cfg.Device.BaudRate != 57600 {
		t.Errorf("baud = %d", cfg.Device.BaudRate)
	}
	if cfg.Server.ListenAddr != ":7777" {
		t.Errorf("listen = %q", cfg.Server.ListenAddr)
	}
	if !cfg.Logging.Enabled {
		t.Error("logging should be enabled")
	}
}

func TestUpdateFromJSONPreservesUnpatchedFields(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Device.PortPath = "/dev/ttyACM5"

	patch := []byte(`{"server":{"listenAddr":":1234"},"device":{"type":"serial"}}`)
	if err := cfg.UpdateFromJSON(patch); err != nil {
		t.Fatal(err)
	}

	if cfg.Server.ListenAddr != ":1234" {
		t.Errorf("listen = %q", cfg.Server.ListenAddr)
	}
	if cfg.Device.Type != "serial" {
		t.Errorf("device type = %q", cfg.Device.Type)
	}
	if cfg.Device.PortPath != "/dev/ttyACM5" {
		t.Errorf("port path lost: %q", cfg.Device.PortPath)
	}
	if cfg.Device.BaudRate != 115200 {
		t.Errorf("baud lost: %d", cfg.Device.BaudRate)
	}
}

func TestSaveRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	cfg := DefaultConfig()
	cfg.path = path
	cfg.Device.PortPath = "/dev/ttyTEST"
	if err := cfg.Save(); err != nil {
		t.Fatal(err)
	}

	loaded := LoadConfig(path)
	if loaded.Device.PortPath != "/dev/ttyTEST" {
		t.Errorf("port path = %q after reload", loaded.Device.PortPath)
	}
}
