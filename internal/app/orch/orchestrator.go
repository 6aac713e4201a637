package orch

import (
	"context"
	"errors"

	"github.com/dkeye/coderoom/internal/app"
	"github.com/dkeye/coderoom/internal/core"
	"github.com/dkeye/coderoom/internal/domain"
	"github.com/dkeye/coderoom/internal/metrics"
	"github.com/rs/zerolog/log"
)

type Orchestrator struct {
	Sessions *app.Sessions
	Rooms    *app.RoomRegistry
	Policy   app.Policy
	Relay    *Relay
}

func New(sessions *app.Sessions, rooms *app.RoomRegistry, policy app.Policy) *Orchestrator {
	return &Orchestrator{
		Sessions: sessions,
		Rooms:    rooms,
		Policy:   policy,
		Relay:    NewRelay(rooms),
	}
}

// Connect registers a freshly upgraded connection. It is not attached to any
// room until it sends join-room.
func (o *Orchestrator) Connect(sess core.Session, cancel context.CancelFunc) {
	o.Sessions.Register(sess, cancel)
}

// HandleEvent routes one decoded client event.
func (o *Orchestrator) HandleEvent(ctx context.Context, sid core.SessionID, ev core.Event) {
	var err error
	switch e := ev.(type) {
	case core.JoinRoom:
		err = o.Join(ctx, sid, e)
	case core.CodeUpdate:
		err = o.OnCodeUpdate(ctx, sid, e)
	case core.LanguageUpdate:
		err = o.OnLanguageUpdate(ctx, sid, e)
	case core.CursorUpdate:
		err = o.OnCursorUpdate(ctx, sid, e)
	case core.ExecutionResult:
		_, err = o.RelayExecution(ctx, e.RoomID, e.Result, sid)
	case core.Ping:
		o.reply(sid, core.Pong{})
	default:
		log.Warn().Str("module", "orch").Str("sid", string(sid)).Str("type", string(ev.Type())).Msg("unhandled event")
		return
	}
	o.report(sid, ev, err)
}

// report turns a failed event into an error event for its sender only.
func (o *Orchestrator) report(sid core.SessionID, ev core.Event, err error) {
	switch {
	case err == nil:
		metrics.InboundEvents.WithLabelValues(string(ev.Type()), "ok").Inc()
		return
	case errors.Is(err, domain.ErrNotFound):
		metrics.InboundEvents.WithLabelValues(string(ev.Type()), "not_found").Inc()
		log.Warn().Err(err).Str("module", "orch").Str("sid", string(sid)).Str("type", string(ev.Type())).Msg("event for unknown target dropped")
	case errors.Is(err, domain.ErrValidation), errors.Is(err, app.ErrAlreadyBound):
		metrics.InboundEvents.WithLabelValues(string(ev.Type()), "rejected").Inc()
		log.Warn().Err(err).Str("module", "orch").Str("sid", string(sid)).Str("type", string(ev.Type())).Msg("event rejected")
	default:
		metrics.InboundEvents.WithLabelValues(string(ev.Type()), "error").Inc()
		log.Error().Err(err).Str("module", "orch").Str("sid", string(sid)).Str("type", string(ev.Type())).Msg("event failed")
	}
	o.reply(sid, core.ErrorEvent{Error: err.Error()})
}

func (o *Orchestrator) reply(sid core.SessionID, e core.Event) {
	sess, ok := o.Sessions.Get(sid)
	if !ok {
		return
	}
	frame, err := core.Encode(e)
	if err != nil {
		log.Error().Err(err).Str("module", "orch").Msg("encode reply")
		return
	}
	if err := sess.Signal().TrySend(frame); err != nil {
		log.Warn().Err(err).Str("module", "orch").Str("sid", string(sid)).Msg("reply dropped")
	}
}

// afterPublish applies the backpressure policy to sessions that missed a
// delivery. The fan-out has already completed for everyone else.
func (o *Orchestrator) afterPublish(hub *core.Hub, res core.PublishResult) {
	if o.Policy == nil {
		return
	}
	for _, slow := range res.Dropped {
		switch o.Policy.OnBackPressure(hub, slow) {
		case app.KickMember:
			log.Warn().Str("module", "orch").Str("room", string(hub.ID())).Str("sid", string(slow.ID())).Msg("kicking slow session")
			o.KickBySID(slow.ID())
		case app.DropFrame, app.NoAction:
		}
	}
}
