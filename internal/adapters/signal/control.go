package signal

import (
	"github.com/dkeye/coderoom/internal/core"
	"github.com/rs/zerolog/log"
)

// sendError answers the connection directly, before any orchestrator state
// is involved.
func sendError(c core.SignalConnection, msg string) {
	frame, err := core.Encode(core.ErrorEvent{Error: msg})
	if err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("encode error event")
		return
	}
	_ = c.TrySend(frame)
}
