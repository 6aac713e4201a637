package http

import (
	"context"
	"net/http"

	"github.com/dkeye/coderoom/internal/adapters/signal"
	"github.com/dkeye/coderoom/internal/app/orch"
	"github.com/dkeye/coderoom/internal/config"
	"github.com/dkeye/coderoom/internal/metrics"
	rest "github.com/dkeye/coderoom/internal/transport/http"
	"github.com/gin-contrib/sessions"
	"github.com/gin-contrib/sessions/cookie"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
)

func SetupRouter(ctx context.Context, cfg *config.Config, o *orch.Orchestrator, runner rest.CodeRunner) *gin.Engine {
	if cfg.Mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	if cfg.Mode == "debug" {
		r.Use(gin.Logger())
	}
	r.Use(gin.Recovery())

	store := cookie.NewStore([]byte(cfg.Secret))
	store.Options(sessions.Options{Path: "/", MaxAge: 3600 * 24 * 7, HttpOnly: true, SameSite: http.SameSiteLaxMode})
	r.Use(sessions.Sessions("coderoom", store))

	if cfg.StaticPath != "" {
		r.Static("/static", cfg.StaticPath)
		r.GET("/", func(c *gin.Context) {
			c.File(cfg.StaticPath + "/index.html")
		})
	}

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(metrics.Handler()))

	api := r.Group("/api")
	handlers := &rest.Handlers{Rooms: o.Rooms, Orch: o, Runner: runner}
	handlers.Register(api)

	ws := signal.NewSignalWSController(o, signal.Limits{
		ReadLimit:  cfg.WS.ReadLimit,
		WriteWait:  cfg.WS.WriteWait,
		PongWait:   cfg.WS.PongWait,
		PingPeriod: cfg.WS.PingPeriod,
		SendBuffer: cfg.WS.SendBuffer,
		RateLimit:  cfg.WS.RateLimit,
		RateWindow: cfg.WS.RateWindow,
	})
	api.GET("/ws", func(c *gin.Context) {
		ws.HandleSignal(ctx, c)
	})

	log.Info().Str("module", "adapters.http").Str("static", cfg.StaticPath).Msg("router setup")
	return r
}
