package config

import (
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/danmuck/kettle/internal/logging"
	"gopkg.in/yaml.v3"
)

const (
	TransportTCP = "tcp"
	TransportKCP = "kcp"
)

var ErrInvalidConfig = errors.New("config: invalid")

// Config is the kettlectl process configuration.
type Config struct {
	Name       string
	Transport  string
	ListenAddr string
	// AdminAddr is the HTTP admin listener; empty disables it.
	AdminAddr     string
	CorsOrigins   []string
	MaxFrameBytes int64
	// ReadTimeout is the per-connection read deadline; zero means none.
	ReadTimeout time.Duration
	// MaxSessions caps concurrent connections; zero means unlimited.
	MaxSessions int
	// Engine names the registered engine bound to each session.
	Engine   string
	LogLevel string
}

func Default() Config {
	return Config{
		Name:          "kettle",
		Transport:     TransportTCP,
		ListenAddr:    "127.0.0.1:1234",
		AdminAddr:     "127.0.0.1:7020",
		CorsOrigins:   []string{"http://localhost:3000"},
		MaxFrameBytes: 16 * 1024 * 1024,
		MaxSessions:   64,
		Engine:        "log",
		LogLevel:      "info",
	}
}

func (c Config) Validate() error {
	if strings.TrimSpace(c.Name) == "" {
		return fmt.Errorf("%w: missing name", ErrInvalidConfig)
	}
	switch c.Transport {
	case TransportTCP, TransportKCP:
	default:
		return fmt.Errorf("%w: unknown transport %q", ErrInvalidConfig, c.Transport)
	}
	if _, _, err := net.SplitHostPort(c.ListenAddr); err != nil {
		return fmt.Errorf("%w: listen_addr: %w", ErrInvalidConfig, err)
	}
	if c.AdminAddr != "" {
		if _, _, err := net.SplitHostPort(c.AdminAddr); err != nil {
			return fmt.Errorf("%w: admin_addr: %w", ErrInvalidConfig, err)
		}
	}
	if c.MaxFrameBytes <= 0 {
		return fmt.Errorf("%w: max_frame_bytes must be positive", ErrInvalidConfig)
	}
	if c.ReadTimeout < 0 {
		return fmt.Errorf("%w: read_timeout must not be negative", ErrInvalidConfig)
	}
	if c.MaxSessions < 0 {
		return fmt.Errorf("%w: max_sessions must not be negative", ErrInvalidConfig)
	}
	if strings.TrimSpace(c.Engine) == "" {
		return fmt.Errorf("%w: missing engine", ErrInvalidConfig)
	}
	// An empty level keeps the logging default.
	if _, ok := logging.ParseLevel(c.LogLevel); !ok && strings.TrimSpace(c.LogLevel) != "" {
		return fmt.Errorf("%w: unknown log_level %q", ErrInvalidConfig, c.LogLevel)
	}
	return nil
}

// Load reads path over Default. The format follows the extension: .yaml and
// .yml are YAML, anything else is TOML.
func Load(path string) (Config, error) {
	var (
		cfg Config
		err error
	)
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		cfg, err = loadYAML(path)
	default:
		cfg, err = loadTOML(path)
	}
	if err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("config %s: %w", path, err)
	}
	return cfg, nil
}

type fileConfig struct {
	Name          string   `toml:"name"`
	Transport     string   `toml:"transport"`
	ListenAddr    string   `toml:"listen_addr"`
	AdminAddr     string   `toml:"admin_addr"`
	CorsOrigins   []string `toml:"cors_origins"`
	MaxFrameBytes int64    `toml:"max_frame_bytes"`
	ReadTimeout   string   `toml:"read_timeout"`
	MaxSessions   int      `toml:"max_sessions"`
	Engine        string   `toml:"engine"`
	LogLevel      string   `toml:"log_level"`
}

func loadTOML(path string) (Config, error) {
	cfg := Default()

	var raw fileConfig
	meta, err := toml.DecodeFile(path, &raw)
	if err != nil {
		return Config{}, fmt.Errorf("load config: %w", err)
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		return Config{}, fmt.Errorf("%w: unknown key %q", ErrInvalidConfig, undecoded[0].String())
	}

	if meta.IsDefined("name") {
		cfg.Name = strings.TrimSpace(raw.Name)
	}
	if meta.IsDefined("transport") {
		cfg.Transport = normalizeTransport(raw.Transport)
	}
	if meta.IsDefined("listen_addr") {
		cfg.ListenAddr = strings.TrimSpace(raw.ListenAddr)
	}
	if meta.IsDefined("admin_addr") {
		cfg.AdminAddr = strings.TrimSpace(raw.AdminAddr)
	}
	if meta.IsDefined("cors_origins") {
		cfg.CorsOrigins = normalizeOrigins(raw.CorsOrigins)
	}
	if meta.IsDefined("max_frame_bytes") {
		cfg.MaxFrameBytes = raw.MaxFrameBytes
	}
	if meta.IsDefined("read_timeout") {
		d, err := time.ParseDuration(strings.TrimSpace(raw.ReadTimeout))
		if err != nil {
			return Config{}, fmt.Errorf("parse read_timeout: %w", err)
		}
		cfg.ReadTimeout = d
	}
	if meta.IsDefined("max_sessions") {
		cfg.MaxSessions = raw.MaxSessions
	}
	if meta.IsDefined("engine") {
		cfg.Engine = strings.TrimSpace(raw.Engine)
	}
	if meta.IsDefined("log_level") {
		cfg.LogLevel = strings.TrimSpace(raw.LogLevel)
	}
	return cfg, nil
}

// yamlConfig uses pointers so absent keys keep their defaults.
type yamlConfig struct {
	Name          *string   `yaml:"name"`
	Transport     *string   `yaml:"transport"`
	ListenAddr    *string   `yaml:"listen_addr"`
	AdminAddr     *string   `yaml:"admin_addr"`
	CorsOrigins   *[]string `yaml:"cors_origins"`
	MaxFrameBytes *int64    `yaml:"max_frame_bytes"`
	ReadTimeout   *string   `yaml:"read_timeout"`
	MaxSessions   *int      `yaml:"max_sessions"`
	Engine        *string   `yaml:"engine"`
	LogLevel      *string   `yaml:"log_level"`
}

func loadYAML(path string) (Config, error) {
	cfg := Default()

	f, err := os.Open(path)
	if err != nil {
		return Config{}, fmt.Errorf("load config: %w", err)
	}
	defer f.Close()

	var raw yamlConfig
	dec := yaml.NewDecoder(f)
	dec.KnownFields(true)
	if err := dec.Decode(&raw); err != nil && !errors.Is(err, io.EOF) {
		return Config{}, fmt.Errorf("load config: %w", err)
	}

	if raw.Name != nil {
		cfg.Name = strings.TrimSpace(*raw.Name)
	}
	if raw.Transport != nil {
		cfg.Transport = normalizeTransport(*raw.Transport)
	}
	if raw.ListenAddr != nil {
		cfg.ListenAddr = strings.TrimSpace(*raw.ListenAddr)
	}
	if raw.AdminAddr != nil {
		cfg.AdminAddr = strings.TrimSpace(*raw.AdminAddr)
	}
	if raw.CorsOrigins != nil {
		cfg.CorsOrigins = normalizeOrigins(*raw.CorsOrigins)
	}
	if raw.MaxFrameBytes != nil {
		cfg.MaxFrameBytes = *raw.MaxFrameBytes
	}
	if raw.ReadTimeout != nil {
		d, err := time.ParseDuration(strings.TrimSpace(*raw.ReadTimeout))
		if err != nil {
			return Config{}, fmt.Errorf("parse read_timeout: %w", err)
		}
		cfg.ReadTimeout = d
	}
	if raw.MaxSessions != nil {
		cfg.MaxSessions = *raw.MaxSessions
	}
	if raw.Engine != nil {
		cfg.Engine = strings.TrimSpace(*raw.Engine)
	}
	if raw.LogLevel != nil {
		cfg.LogLevel = strings.TrimSpace(*raw.LogLevel)
	}
	return cfg, nil
}

func normalizeTransport(raw string) string {
	return strings.ToLower(strings.TrimSpace(raw))
}

func normalizeOrigins(in []string) []string {
	out := make([]string, 0, len(in))
	for _, origin := range in {
		v := strings.TrimSpace(origin)
		if v == "" {
			continue
		}
		out = append(out, v)
	}
	return out
}
