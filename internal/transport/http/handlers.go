package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/dkeye/coderoom/internal/adapters/exec"
	"github.com/dkeye/coderoom/internal/adapters/signal"
	"github.com/dkeye/coderoom/internal/app"
	"github.com/dkeye/coderoom/internal/app/orch"
	"github.com/dkeye/coderoom/internal/domain"
	"github.com/gin-contrib/sessions"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
)

type CodeRunner interface {
	Run(ctx context.Context, lang domain.Language, code string) (exec.Result, error)
}

// Handlers serves the room REST API. Runner is optional; without it the
// execute route is not registered.
type Handlers struct {
	Rooms  *app.RoomRegistry
	Orch   *orch.Orchestrator
	Runner CodeRunner
}

type CreateRoomRequest struct {
	HostName string `json:"hostName"`
	Language string `json:"language"`
}

type JoinRoomRequest struct {
	UserName string `json:"userName"`
}

type ExecuteRequest struct {
	Code     *string `json:"code"`
	Language string  `json:"language"`
}

type RoomResponse struct {
	Room domain.Room        `json:"room"`
	User domain.Participant `json:"user"`
}

func (h *Handlers) Register(api *gin.RouterGroup) {
	api.GET("/rooms", h.ListRooms)
	api.POST("/rooms", h.CreateRoom)
	api.GET("/rooms/:id", h.GetRoom)
	api.POST("/rooms/:id/join", h.JoinRoom)
	api.DELETE("/rooms/:id/participants/:pid", h.RemoveParticipant)
	if h.Runner != nil {
		api.POST("/rooms/:id/execute", h.Execute)
	}
}

func (h *Handlers) ListRooms(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"rooms": h.Rooms.List()})
}

func (h *Handlers) CreateRoom(c *gin.Context) {
	var req CreateRoomRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	room, host, err := h.Rooms.CreateRoom(c.Request.Context(), req.HostName, req.Language)
	if err != nil {
		writeError(c, err, "Room not found")
		return
	}
	remember(c, room.ID, host.ID)
	c.JSON(http.StatusCreated, RoomResponse{Room: room, User: host})
}

func (h *Handlers) JoinRoom(c *gin.Context) {
	var req JoinRoomRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	room, guest, err := h.Rooms.JoinRoom(c.Request.Context(), domain.RoomID(c.Param("id")), req.UserName)
	if err != nil {
		writeError(c, err, "Room not found")
		return
	}
	remember(c, room.ID, guest.ID)
	c.JSON(http.StatusOK, RoomResponse{Room: room, User: guest})
}

func (h *Handlers) GetRoom(c *gin.Context) {
	room, err := h.Rooms.GetRoom(c.Request.Context(), domain.RoomID(c.Param("id")))
	if err != nil {
		writeError(c, err, "Room not found")
		return
	}
	c.JSON(http.StatusOK, room)
}

func (h *Handlers) RemoveParticipant(c *gin.Context) {
	err := h.Rooms.LeaveRoom(c.Request.Context(), domain.RoomID(c.Param("id")), domain.ParticipantID(c.Param("pid")))
	if err != nil {
		writeError(c, err, "Participant not found")
		return
	}
	c.Status(http.StatusNoContent)
}

// Execute runs code for a room and relays the result to every connected
// session. Code and language default to the room's current state.
func (h *Handlers) Execute(c *gin.Context) {
	var req ExecuteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	ctx := c.Request.Context()
	roomID := domain.RoomID(c.Param("id"))
	room, err := h.Rooms.GetRoom(ctx, roomID)
	if err != nil {
		writeError(c, err, "Room not found")
		return
	}

	code := room.Code
	if req.Code != nil {
		code = *req.Code
	}
	lang := room.Language
	if req.Language != "" {
		if lang, err = domain.ParseLanguage(req.Language); err != nil {
			writeError(c, err, "")
			return
		}
	}

	res, err := h.Runner.Run(ctx, lang, code)
	if err != nil {
		writeError(c, err, "")
		return
	}
	raw, err := json.Marshal(res)
	if err != nil {
		writeError(c, err, "")
		return
	}
	if _, err := h.Orch.RelayExecution(ctx, roomID, raw, ""); err != nil {
		log.Warn().Err(err).Str("module", "transport.http").Str("room", string(roomID)).Msg("relay execution result")
	}
	c.JSON(http.StatusOK, res)
}

func remember(c *gin.Context, roomID domain.RoomID, pid domain.ParticipantID) {
	s := sessions.Default(c)
	signal.Remember(s, roomID, pid)
	if err := s.Save(); err != nil {
		log.Warn().Err(err).Str("module", "transport.http").Msg("save cookie session")
	}
}

func writeError(c *gin.Context, err error, notFound string) {
	switch {
	case errors.Is(err, domain.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": notFound})
	case errors.Is(err, domain.ErrValidation):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	default:
		log.Error().Err(err).Str("module", "transport.http").Str("path", c.FullPath()).Msg("request failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}
