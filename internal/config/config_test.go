package config

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"testing"
	"time"
)

func writeFile(t *testing.T, name, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestDefaultIsValid(t *testing.T) {
	if err := Default().Validate(); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}
}

func TestLoadTOMLDefaultsAndOverrides(t *testing.T) {
	path := writeFile(t, "kettle.toml", `
name = "table-1"
transport = "KCP"
listen_addr = "0.0.0.0:4000"
cors_origins = [" http://localhost:5173 ", ""]
read_timeout = "30s"
max_sessions = 0
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if cfg.Name != "table-1" {
		t.Fatalf("unexpected name: %q", cfg.Name)
	}
	if cfg.Transport != TransportKCP {
		t.Fatalf("unexpected transport: %q", cfg.Transport)
	}
	if cfg.ListenAddr != "0.0.0.0:4000" {
		t.Fatalf("unexpected listen addr: %q", cfg.ListenAddr)
	}
	if !reflect.DeepEqual(cfg.CorsOrigins, []string{"http://localhost:5173"}) {
		t.Fatalf("unexpected origins: %v", cfg.CorsOrigins)
	}
	if cfg.ReadTimeout != 30*time.Second {
		t.Fatalf("unexpected read timeout: %v", cfg.ReadTimeout)
	}
	if cfg.MaxSessions != 0 {
		t.Fatalf("explicit zero max_sessions should override default, got %d", cfg.MaxSessions)
	}
	def := Default()
	if cfg.AdminAddr != def.AdminAddr || cfg.MaxFrameBytes != def.MaxFrameBytes || cfg.LogLevel != def.LogLevel {
		t.Fatalf("unset keys should keep defaults: %+v", cfg)
	}
}

func TestLoadYAML(t *testing.T) {
	path := writeFile(t, "kettle.yaml", `
name: table-2
listen_addr: 127.0.0.1:4100
admin_addr: ""
max_frame_bytes: 4096
log_level: debug
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if cfg.Name != "table-2" || cfg.ListenAddr != "127.0.0.1:4100" {
		t.Fatalf("unexpected config: %+v", cfg)
	}
	if cfg.AdminAddr != "" {
		t.Fatalf("empty admin_addr should disable admin, got %q", cfg.AdminAddr)
	}
	if cfg.MaxFrameBytes != 4096 || cfg.LogLevel != "debug" {
		t.Fatalf("unexpected overrides: %+v", cfg)
	}
	if cfg.Transport != TransportTCP {
		t.Fatalf("unexpected default transport: %q", cfg.Transport)
	}
}

func TestLoadRejectsInvalid(t *testing.T) {
	cases := map[string]string{
		"bad.toml":     `transport = "udp"`,
		"unknown.toml": `listen_port = 4000`,
		"frame.toml":   `max_frame_bytes = 0`,
		"addr.yml":     "listen_addr: nowhere\n",
		"extra.yaml":   "listen_port: 4000\n",
		"level.toml":   `log_level = "verbos"`,
		"level.yaml":   "log_level: loud\n",
	}
	for name, body := range cases {
		path := writeFile(t, name, body)
		if _, err := Load(path); err == nil {
			t.Fatalf("%s: expected error", name)
		}
	}

	path := writeFile(t, "timeout.toml", `read_timeout = "soon"`)
	if _, err := Load(path); err == nil {
		t.Fatalf("expected read_timeout parse error")
	}
}

func TestValidateSentinel(t *testing.T) {
	cfg := Default()
	cfg.MaxSessions = -1
	if err := cfg.Validate(); !errors.Is(err, ErrInvalidConfig) {
		t.Fatalf("expected ErrInvalidConfig, got %v", err)
	}
}

func TestValidateLogLevel(t *testing.T) {
	cfg := Default()
	for _, level := range []string{"", "trace", "WARN", " off "} {
		cfg.LogLevel = level
		if err := cfg.Validate(); err != nil {
			t.Fatalf("level %q: unexpected error: %v", level, err)
		}
	}
	cfg.LogLevel = "verbos"
	if err := cfg.Validate(); !errors.Is(err, ErrInvalidConfig) {
		t.Fatalf("expected ErrInvalidConfig, got %v", err)
	}
}

func TestWriteTOMLRoundTrip(t *testing.T) {
	cfg := Default()
	cfg.Name = "rendered"
	cfg.ReadTimeout = 90 * time.Second

	var buf bytes.Buffer
	if err := WriteTOML(&buf, cfg); err != nil {
		t.Fatalf("write toml: %v", err)
	}
	path := writeFile(t, "rendered.toml", buf.String())
	got, err := Load(path)
	if err != nil {
		t.Fatalf("load rendered config: %v\n%s", err, buf.String())
	}
	if !reflect.DeepEqual(got, cfg) {
		t.Fatalf("round trip mismatch:\n got %+v\nwant %+v", got, cfg)
	}
}
