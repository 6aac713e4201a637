package http

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/dkeye/coderoom/internal/adapters/exec"
	"github.com/dkeye/coderoom/internal/adapters/store"
	"github.com/dkeye/coderoom/internal/app"
	"github.com/dkeye/coderoom/internal/app/orch"
	"github.com/dkeye/coderoom/internal/config"
	"github.com/dkeye/coderoom/internal/core"
	"github.com/dkeye/coderoom/internal/domain"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"
)

type echoRunner struct{}

func (echoRunner) Run(_ context.Context, _ domain.Language, code string) (exec.Result, error) {
	return exec.Result{Output: code}, nil
}

func testConfig() *config.Config {
	return &config.Config{
		Mode:   "test",
		Port:   8080,
		Secret: "secret",
		WS: config.WSConfig{
			ReadLimit:  1 << 16,
			WriteWait:  time.Second,
			PongWait:   time.Minute,
			PingPeriod: 50 * time.Second,
			SendBuffer: 16,
			RateLimit:  100,
			RateWindow: time.Second,
		},
	}
}

func newServer(t *testing.T) *httptest.Server {
	t.Helper()
	gin.SetMode(gin.TestMode)
	mem := store.NewMemory()
	rooms := app.NewRoomRegistry(mem, app.NewPersister(mem, time.Second))
	o := orch.New(app.NewSessions(), rooms, app.SimplePolicy{})
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	srv := httptest.NewServer(SetupRouter(ctx, testConfig(), o, echoRunner{}))
	t.Cleanup(srv.Close)
	return srv
}

func readEvent(t *testing.T, conn *websocket.Conn) core.Envelope {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var env core.Envelope
	require.NoError(t, conn.ReadJSON(&env))
	return env
}

func TestHealthAndMetrics(t *testing.T) {
	srv := newServer(t)

	resp, err := http.Get(srv.URL + "/health")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	m, err := http.Get(srv.URL + "/metrics")
	require.NoError(t, err)
	defer m.Body.Close()
	require.Equal(t, http.StatusOK, m.StatusCode)
}

func TestRoomSession_EndToEnd(t *testing.T) {
	srv := newServer(t)
	jar, err := cookiejar.New(nil)
	require.NoError(t, err)
	client := &http.Client{Jar: jar}

	body, _ := json.Marshal(map[string]string{"hostName": "Ada", "language": "javascript"})
	resp, err := client.Post(srv.URL+"/api/rooms", "application/json", bytes.NewReader(body))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	var created struct {
		Room domain.Room        `json:"room"`
		User domain.Participant `json:"user"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&created))

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/ws"
	host, _, err := (&websocket.Dialer{Jar: jar}).Dial(wsURL, nil)
	require.NoError(t, err)
	defer host.Close()
	guest, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer guest.Close()

	join := func(c *websocket.Conn) core.Joined {
		payload, _ := json.Marshal(core.JoinRoom{RoomID: created.Room.ID})
		require.NoError(t, c.WriteJSON(core.Envelope{Type: core.EventJoinRoom, Payload: payload}))
		env := readEvent(t, c)
		require.Equal(t, core.EventJoined, env.Type)
		var j core.Joined
		require.NoError(t, json.Unmarshal(env.Payload, &j))
		return j
	}
	require.Equal(t, created.User.ID, join(host).ParticipantID, "host resolved from cookie")
	require.Empty(t, join(guest).ParticipantID)

	payload, _ := json.Marshal(core.CodeUpdate{RoomID: created.Room.ID, Code: "let x = 1"})
	require.NoError(t, host.WriteJSON(core.Envelope{Type: core.EventCodeUpdate, Payload: payload}))
	env := readEvent(t, guest)
	require.Equal(t, core.EventCodeUpdate, env.Type)
	var update core.CodeUpdate
	require.NoError(t, json.Unmarshal(env.Payload, &update))
	require.Equal(t, "let x = 1", update.Code)

	execBody, _ := json.Marshal(map[string]string{})
	resp2, err := client.Post(srv.URL+"/api/rooms/"+string(created.Room.ID)+"/execute", "application/json", bytes.NewReader(execBody))
	require.NoError(t, err)
	defer resp2.Body.Close()
	require.Equal(t, http.StatusOK, resp2.StatusCode)
	for _, c := range []*websocket.Conn{host, guest} {
		env := readEvent(t, c)
		require.Equal(t, core.EventExecutionResult, env.Type)
		var res core.ExecutionResult
		require.NoError(t, json.Unmarshal(env.Payload, &res))
		require.JSONEq(t, `{"output":"let x = 1","executionTime":0}`, string(res.Result))
	}
}
