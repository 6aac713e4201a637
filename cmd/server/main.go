package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/dkeye/coderoom/internal/adapters/exec"
	router "github.com/dkeye/coderoom/internal/adapters/http"
	"github.com/dkeye/coderoom/internal/adapters/store"
	"github.com/dkeye/coderoom/internal/app"
	"github.com/dkeye/coderoom/internal/app/orch"
	"github.com/dkeye/coderoom/internal/config"
	"github.com/dkeye/coderoom/internal/core"
	"github.com/dkeye/coderoom/internal/domain"
	rest "github.com/dkeye/coderoom/internal/transport/http"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	zerolog.SetGlobalLevel(zerolog.InfoLevel)

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}
	if lvl, err := zerolog.ParseLevel(cfg.LogLevel); err == nil {
		zerolog.SetGlobalLevel(lvl)
	}

	if err := run(ctx, cfg); err != nil {
		log.Fatal().Err(err).Msg("server failed")
	}
	log.Info().Msg("Server exited gracefully")
}

func run(ctx context.Context, cfg *config.Config) error {
	roomStore, err := openStore(ctx, cfg.Store)
	if err != nil {
		return err
	}
	defer func() {
		if err := roomStore.Close(); err != nil {
			log.Error().Err(err).Msg("close store")
		}
	}()

	persister := app.NewPersister(roomStore, cfg.Persist.Timeout)
	rooms := app.NewRoomRegistry(roomStore, persister)
	o := orch.New(app.NewSessions(), rooms, app.ParsePolicy(cfg.Backpressure))
	var runner rest.CodeRunner
	if cfg.Exec.Enabled {
		runner = exec.NewRunner(cfg.Exec.Timeout, cfg.Exec.MaxOutput, map[domain.Language][]string{
			domain.LanguageJavaScript: {cfg.Exec.NodeBin, "-e"},
			domain.LanguagePython:     {cfg.Exec.PythonBin, "-c"},
		})
		log.Warn().Str("module", "exec").Msg("server-side execution enabled; submitted code runs with this process's privileges")
	}

	addr := fmt.Sprintf(":%d", cfg.Port)
	srv := &http.Server{
		Addr:              addr,
		Handler:           router.SetupRouter(ctx, cfg, o, runner),
		ReadHeaderTimeout: 10 * time.Second,
	}

	// The persister outlives the server so writes made during shutdown land.
	persistCtx, stopPersister := context.WithCancel(context.Background())
	defer stopPersister()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return persister.Run(persistCtx)
	})
	g.Go(func() error {
		log.Info().Str("addr", addr).Str("store", cfg.Store.Driver).Msg("coderoom server started")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("listen: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info().Msg("Shutting down")
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("Server forced to shutdown")
		}
		stopPersister()
		return nil
	})

	err = g.Wait()
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func openStore(ctx context.Context, cfg config.StoreConfig) (core.RoomStore, error) {
	switch cfg.Driver {
	case "memory":
		return store.NewMemory(), nil
	case "badger":
		return store.OpenBadger(cfg.Path)
	case "sqlite":
		return store.OpenSQLite(cfg.Path)
	case "redis":
		return store.NewRedis(ctx, cfg.RedisAddr, cfg.RedisDB, cfg.RedisPrefix)
	default:
		return nil, fmt.Errorf("unknown store driver %q", cfg.Driver)
	}
}
