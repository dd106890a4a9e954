package config

import (
	"fmt"
	"io"

	"github.com/pelletier/go-toml/v2"
)

type renderConfig struct {
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

// WriteTOML renders cfg in the same shape Load accepts.
func WriteTOML(w io.Writer, cfg Config) error {
	out := renderConfig{
		Name:          cfg.Name,
		Transport:     cfg.Transport,
		ListenAddr:    cfg.ListenAddr,
		AdminAddr:     cfg.AdminAddr,
		CorsOrigins:   cfg.CorsOrigins,
		MaxFrameBytes: cfg.MaxFrameBytes,
		ReadTimeout:   cfg.ReadTimeout.String(),
		MaxSessions:   cfg.MaxSessions,
		Engine:        cfg.Engine,
		LogLevel:      cfg.LogLevel,
	}
	if out.CorsOrigins == nil {
		out.CorsOrigins = []string{}
	}
	enc := toml.NewEncoder(w)
	if err := enc.Encode(out); err != nil {
		return fmt.Errorf("render config: %w", err)
	}
	return nil
}
