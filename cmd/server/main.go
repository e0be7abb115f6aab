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

	"playmatch/rooms/internal/config"
	"playmatch/rooms/internal/database"
	"playmatch/rooms/internal/handler"
	"playmatch/rooms/internal/hub"
	"playmatch/rooms/internal/router"
	"playmatch/rooms/internal/service"
	"playmatch/rooms/pkg/jwt"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// @title           Playmatch Rooms API
// @version         1.0
// @description     Matchmaking rooms with live room chat.
// @host            localhost:8080
// @BasePath        /api/v1
// @securityDefinitions.apiKey BearerAuth
// @in header
// @name Authorization
func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	cfg, err := config.Load(".")
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}
	setupLogger(cfg)

	db, err := database.Connect(cfg.DatabaseURL, log.Logger)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer func() {
		if err := database.Close(db); err != nil {
			log.Error().Err(err).Msg("failed to close database")
		}
	}()

	chatHub := hub.New(log.Logger)
	tokens := jwt.NewIssuer(cfg.JWTSecret, cfg.TokenTTL)

	rooms := service.NewRoomService(db, chatHub, log.Logger)
	handlers := router.Handlers{
		Users:    handler.NewUserHandler(service.NewUserService(db), tokens),
		Games:    handler.NewGameHandler(service.NewGameService(db, chatHub, log.Logger)),
		Profiles: handler.NewProfileHandler(service.NewProfileService(db, rooms)),
		Rooms:    handler.NewRoomHandler(rooms),
		Chat: handler.NewChatHandler(rooms, chatHub, handler.ChatConfig{
			ReadLimit:      cfg.ChatReadLimit,
			SendBuffer:     cfg.ChatSendBuffer,
			WriteTimeout:   cfg.ChatWriteTimeout,
			AllowedOrigins: cfg.Origins(),
		}, log.Logger),
	}

	r := router.SetupRouter(cfg, db, tokens, handlers)
	addr := fmt.Sprintf(":%d", cfg.Port)
	srv := &http.Server{
		Addr:    addr,
		Handler: r,
	}

	go func() {
		log.Info().Str("addr", addr).Msg("server started")
		log.Info().Msgf("Swagger UI is available at http://localhost%s/swagger/index.html", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Msg("server error")
			cancel()
		}
	}()

	<-ctx.Done()
	log.Info().Msg("shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	// Hijacked websocket connections are not tracked by the server.
	chatHub.Shutdown()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("server forced to shutdown")
	}
	log.Info().Msg("server exited gracefully")
}

func setupLogger(cfg *config.Config) {
	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)
	if cfg.GinMode == "release" {
		log.Logger = zerolog.New(os.Stderr).With().Timestamp().Logger()
	}
}
