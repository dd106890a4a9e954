package observability

import (
	"github.com/danmuck/kettle/internal/logging"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// InitLogger configures the runtime logger and tags every line with app.
func InitLogger(app string) {
	logging.ConfigureRuntime()
	log.Logger = log.Logger.With().Str("app", app).Logger()
}

// SessionLogger derives a per-connection logger from the global logger.
func SessionLogger(id uint64, transport, remote string) zerolog.Logger {
	return log.Logger.With().
		Uint64("session", id).
		Str("transport", transport).
		Str("remote", remote).
		Logger()
}

// ComponentLogger tags log lines with the owning component name.
func ComponentLogger(component string) zerolog.Logger {
	return log.Logger.With().Str("component", component).Logger()
}
