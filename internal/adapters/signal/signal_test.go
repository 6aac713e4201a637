package signal

import (
	"context"
	"encoding/json"
	"io"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/dkeye/coderoom/internal/adapters/store"
	"github.com/dkeye/coderoom/internal/app"
	"github.com/dkeye/coderoom/internal/app/orch"
	"github.com/dkeye/coderoom/internal/core"
	"github.com/dkeye/coderoom/internal/domain"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"
)

type fakeWS struct {
	in        chan []byte
	closed    chan struct{}
	closeOnce sync.Once

	mu  sync.Mutex
	out []core.Envelope
}

func newFakeWS() *fakeWS {
	return &fakeWS{in: make(chan []byte, 16), closed: make(chan struct{})}
}

func (f *fakeWS) ReadMessage() (int, []byte, error) {
	select {
	case data, ok := <-f.in:
		if !ok {
			return 0, nil, io.EOF
		}
		return websocket.TextMessage, data, nil
	case <-f.closed:
		return 0, nil, net.ErrClosed
	}
}

func (f *fakeWS) WriteMessage(mt int, data []byte) error {
	if mt != websocket.TextMessage {
		return nil
	}
	var env core.Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.out = append(f.out, env)
	return nil
}

func (f *fakeWS) SetWriteDeadline(time.Time) error          { return nil }
func (f *fakeWS) SetReadDeadline(time.Time) error           { return nil }
func (f *fakeWS) SetReadLimit(int64)                        {}
func (f *fakeWS) SetPongHandler(func(appData string) error) {}

func (f *fakeWS) Close() error {
	f.closeOnce.Do(func() { close(f.closed) })
	return nil
}

func (f *fakeWS) written() []core.Envelope {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]core.Envelope(nil), f.out...)
}

type nopSink struct{}

func (nopSink) EnqueueRoom(domain.Room)                              {}
func (nopSink) EnqueueParticipant(domain.RoomID, domain.Participant) {}

func newController(t *testing.T, limits Limits) (*SignalWSController, domain.Room, domain.Participant) {
	t.Helper()
	rooms := app.NewRoomRegistry(store.NewMemory(), nopSink{})
	room, host, err := rooms.CreateRoom(context.Background(), "Ada", "javascript")
	require.NoError(t, err)
	o := orch.New(app.NewSessions(), rooms, app.SimplePolicy{})
	return NewSignalWSController(o, limits), room, host
}

func frame(t *testing.T, typ core.EventType, payload any) []byte {
	t.Helper()
	raw, err := json.Marshal(payload)
	require.NoError(t, err)
	b, err := json.Marshal(core.Envelope{Type: typ, Payload: raw})
	require.NoError(t, err)
	return b
}

func TestServe_JoinUsesRememberedParticipant(t *testing.T) {
	ctl, room, host := newController(t, DefaultLimits())
	ws := newFakeWS()
	remembered := func(id domain.RoomID) domain.ParticipantID {
		if id == room.ID {
			return host.ID
		}
		return ""
	}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ctl.Serve(ctx, ws, remembered)
	ws.in <- frame(t, core.EventJoinRoom, map[string]string{"roomId": string(room.ID)})

	require.Eventually(t, func() bool { return len(ws.written()) == 1 }, time.Second, 5*time.Millisecond)
	env := ws.written()[0]
	require.Equal(t, core.EventJoined, env.Type)
	var joined core.Joined
	require.NoError(t, json.Unmarshal(env.Payload, &joined))
	require.Equal(t, host.ID, joined.ParticipantID)
	require.Equal(t, room.ID, joined.Room.ID)
}

func TestServe_MalformedFrameGetsError(t *testing.T) {
	ctl, _, _ := newController(t, DefaultLimits())
	ws := newFakeWS()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ctl.Serve(ctx, ws, nil)
	ws.in <- []byte(`{"type":"teleport","payload":{}}`)
	ws.in <- []byte(`not json`)

	require.Eventually(t, func() bool { return len(ws.written()) == 2 }, time.Second, 5*time.Millisecond)
	for _, env := range ws.written() {
		require.Equal(t, core.EventError, env.Type)
	}
}

func TestServe_RateLimited(t *testing.T) {
	limits := DefaultLimits()
	limits.RateLimit = 1
	limits.RateWindow = time.Hour
	ctl, _, _ := newController(t, limits)
	ws := newFakeWS()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ctl.Serve(ctx, ws, nil)
	ws.in <- frame(t, core.EventPing, struct{}{})
	ws.in <- frame(t, core.EventPing, struct{}{})

	require.Eventually(t, func() bool { return len(ws.written()) == 2 }, time.Second, 5*time.Millisecond)
	out := ws.written()
	require.Equal(t, core.EventPong, out[0].Type)
	require.Equal(t, core.EventError, out[1].Type)
}

func TestServe_DisconnectDetaches(t *testing.T) {
	ctl, room, _ := newController(t, DefaultLimits())
	ws := newFakeWS()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ctl.Serve(ctx, ws, nil)
	ws.in <- frame(t, core.EventJoinRoom, map[string]string{"roomId": string(room.ID)})
	require.Eventually(t, func() bool { return len(ws.written()) == 1 }, time.Second, 5*time.Millisecond)

	hub, ok := ctl.Orch.Rooms.Lookup(room.ID)
	require.True(t, ok)
	require.Equal(t, 1, hub.SessionCount())

	close(ws.in)
	require.Eventually(t, func() bool {
		return hub.SessionCount() == 0 && ctl.Orch.Sessions.Count() == 0
	}, time.Second, 5*time.Millisecond)
}

func TestWSSignalConn_BackpressureAndClose(t *testing.T) {
	c := newWSSignalConn(newFakeWS(), 1)
	require.NoError(t, c.TrySend(core.Frame("a")))
	require.ErrorIs(t, c.TrySend(core.Frame("b")), core.ErrBackpressure)
	c.Close()
	c.Close()
	require.ErrorIs(t, c.TrySend(core.Frame("c")), core.ErrConnectionClosed)
}
