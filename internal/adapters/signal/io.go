package signal

import (
	"context"
	"time"

	"github.com/dkeye/coderoom/internal/core"
	"github.com/dkeye/coderoom/internal/metrics"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

func (ctl *SignalWSController) writePump(ctx context.Context, c *wsSignalConn) {
	ticker := time.NewTicker(ctl.limits.PingPeriod)
	defer func() {
		ticker.Stop()
		c.Close()
	}()

	for {
		select {
		case <-ctx.Done():
			log.Debug().Str("module", "signal").Msg("writePump ctx done")
			return
		case data, ok := <-c.send:
			if !ok {
				log.Debug().Str("module", "signal").Msg("writePump channel closed")
				return
			}
			if err := c.conn.SetWriteDeadline(time.Now().Add(ctl.limits.WriteWait)); err != nil {
				log.Error().Err(err).Str("module", "signal").Msg("writePump set deadline")
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				log.Warn().Err(err).Str("module", "signal").Msg("writePump write error")
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(ctl.limits.WriteWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				log.Warn().Err(err).Str("module", "signal").Msg("writePump ping")
				return
			}
		}
	}
}

func (ctl *SignalWSController) readPump(ctx context.Context, cancel context.CancelFunc, sid core.SessionID, c *wsSignalConn, remembered ParticipantLookup) {
	defer func() {
		log.Info().Str("module", "signal").Str("sid", string(sid)).Msg("readPump closing")
		cancel()
		c.Close()
		ctl.limiter.Forget(sid)
		ctl.Orch.OnDisconnect(sid)
	}()

	c.conn.SetReadLimit(ctl.limits.ReadLimit)
	_ = c.conn.SetReadDeadline(time.Now().Add(ctl.limits.PongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(ctl.limits.PongWait))
	})

	for {
		if ctx.Err() != nil {
			return
		}
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Warn().Err(err).Str("module", "signal").Str("sid", string(sid)).Msg("readPump read error")
			}
			return
		}
		ctl.handleFrame(ctx, sid, c, data, remembered)
	}
}

func (ctl *SignalWSController) handleFrame(ctx context.Context, sid core.SessionID, c *wsSignalConn, data []byte, remembered ParticipantLookup) {
	if !ctl.limiter.Allow(sid) {
		metrics.InboundEvents.WithLabelValues("any", "rate_limited").Inc()
		sendError(c, "rate limit exceeded")
		return
	}

	ev, err := core.Decode(data)
	if err != nil {
		metrics.InboundEvents.WithLabelValues("any", "malformed").Inc()
		log.Warn().Err(err).Str("module", "signal").Str("sid", string(sid)).Msg("bad event")
		sendError(c, err.Error())
		return
	}

	if join, ok := ev.(core.JoinRoom); ok {
		ev = resolveJoin(join, remembered)
	}
	ctl.Orch.HandleEvent(ctx, sid, ev)
}
