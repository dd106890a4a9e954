package server

import (
	"time"

	"github.com/danmuck/kettle/internal/kettle"
	"github.com/rs/zerolog"
)

// SessionInfo describes one accepted connection.
type SessionInfo struct {
	ID          uint64    `json:"id"`
	Transport   string    `json:"transport"`
	RemoteAddr  string    `json:"remote_addr"`
	ConnectedAt time.Time `json:"connected_at"`
	Packets     uint64    `json:"packets"`
	Errors      uint64    `json:"errors"`
}

// EngineFactory binds a game engine to a new session. out is the session's
// outbound side and stays valid until the session ends.
type EngineFactory func(info SessionInfo, out *kettle.Sender, logger zerolog.Logger) (kettle.Handlers, error)

// LogEngine records inbound messages without driving a game. It lets a client
// be exercised against kettlectl before an engine is linked in.
func LogEngine(info SessionInfo, out *kettle.Sender, logger zerolog.Logger) (kettle.Handlers, error) {
	return kettle.Handlers{
		OnCreateGame: func(msg kettle.CreateGame) error {
			names := make([]string, 0, len(msg.Players))
			for _, p := range msg.Players {
				names = append(names, p.Name)
			}
			logger.Info().
				Int("game_id", msg.GameID).
				Strs("players", names).
				Msg("server.LogEngine create_game")
			return nil
		},
		OnConcede: func(playerID int) error {
			logger.Info().Int("player_id", playerID).Msg("server.LogEngine concede")
			return nil
		},
		OnSendOption: func(msg kettle.SendOption) error {
			logger.Info().
				Int("index", msg.Index).
				Int("target", msg.Target).
				Int("sub_option", msg.SubOption).
				Int("position", msg.Position).
				Msg("server.LogEngine send_option")
			return nil
		},
		OnChooseEntities: func(entities []int) error {
			logger.Info().Ints("entities", entities).Msg("server.LogEngine choose_entities")
			return nil
		},
	}, nil
}
