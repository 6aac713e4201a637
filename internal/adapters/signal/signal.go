package signal

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/dkeye/coderoom/internal/app/orch"
	"github.com/dkeye/coderoom/internal/core"
	"github.com/gin-contrib/sessions"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

// Limits tune a single WebSocket session.
type Limits struct {
	ReadLimit  int64
	WriteWait  time.Duration
	PongWait   time.Duration
	PingPeriod time.Duration
	SendBuffer int
	RateLimit  int
	RateWindow time.Duration
}

func DefaultLimits() Limits {
	return Limits{
		ReadLimit:  1 << 20,
		WriteWait:  10 * time.Second,
		PongWait:   60 * time.Second,
		PingPeriod: 54 * time.Second,
		SendBuffer: 256,
		RateLimit:  120,
		RateWindow: time.Second,
	}
}

type SignalWSController struct {
	Orch    *orch.Orchestrator
	limits  Limits
	limiter *SessionRateLimiter
}

func NewSignalWSController(o *orch.Orchestrator, limits Limits) *SignalWSController {
	return &SignalWSController{
		Orch:    o,
		limits:  limits,
		limiter: NewSessionRateLimiter(limits.RateLimit, limits.RateWindow),
	}
}

// WSConn is the part of *websocket.Conn the pumps use.
type WSConn interface {
	ReadMessage() (int, []byte, error)
	WriteMessage(mt int, data []byte) error
	SetWriteDeadline(t time.Time) error
	SetReadDeadline(t time.Time) error
	SetReadLimit(limit int64)
	SetPongHandler(h func(appData string) error)
	Close() error
}

// wsSignalConn implements core.SignalConnection over a bounded send queue
// drained by writePump.
type wsSignalConn struct {
	conn WSConn
	send chan core.Frame

	mu     sync.RWMutex
	closed bool
}

func newWSSignalConn(conn WSConn, buffer int) *wsSignalConn {
	if buffer <= 0 {
		buffer = 1
	}
	return &wsSignalConn{conn: conn, send: make(chan core.Frame, buffer)}
}

func (c *wsSignalConn) TrySend(f core.Frame) error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return core.ErrConnectionClosed
	}
	select {
	case c.send <- f:
		return nil
	default:
		return core.ErrBackpressure
	}
}

func (c *wsSignalConn) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	close(c.send)
	_ = c.conn.Close()
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// HandleSignal upgrades the request and runs the session until either side
// goes away. ctx is the server lifetime, not the request's.
func (ctl *SignalWSController) HandleSignal(ctx context.Context, c *gin.Context) {
	cookie := sessions.Default(c)
	// Load the cookie session while the request is still owned by the handler.
	_ = cookie.Get(ParticipantKey(""))
	remembered := rememberedParticipants(cookie)

	ws, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("ws upgrade")
		return
	}
	ctl.Serve(ctx, ws, remembered)
}

// Serve runs an already upgraded connection.
func (ctl *SignalWSController) Serve(ctx context.Context, ws WSConn, remembered ParticipantLookup) {
	sid := core.SessionID(uuid.NewString())
	log.Info().Str("module", "signal").Str("sid", string(sid)).Msg("new WS connection")

	conn := newWSSignalConn(ws, ctl.limits.SendBuffer)
	ctx, cancel := context.WithCancel(ctx)
	ctl.Orch.Connect(core.NewSession(sid, conn), cancel)

	go ctl.writePump(ctx, conn)
	go ctl.readPump(ctx, cancel, sid, conn, remembered)
}
