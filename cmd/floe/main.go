package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/gosuda/floe/internal/auth"
	"github.com/gosuda/floe/internal/commands"
	"github.com/gosuda/floe/internal/config"
	"github.com/gosuda/floe/internal/discord"
	"github.com/gosuda/floe/internal/dispatch"
	"github.com/gosuda/floe/internal/server"
)

func main() {
	if err := run(); err != nil {
		log.Fatal().Err(err).Msg("startup failed")
	}
}

func run() error {
	// Initialize structured logging from environment.
	level, parseErr := zerolog.ParseLevel(os.Getenv("FLOE_LOG_LEVEL"))
	if parseErr != nil {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	if os.Getenv("FLOE_LOG_FORMAT") == "console" {
		log.Logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout}).With().Timestamp().Logger()
	} else {
		log.Logger = zerolog.New(os.Stdout).With().Timestamp().Logger()
	}

	ctx := context.Background()

	// Load configuration from environment.
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	verifier, err := auth.NewVerifier(cfg.Discord.PublicKey)
	if err != nil {
		return err
	}

	client := discord.NewClient(cfg.Discord.ApplicationID, cfg.Discord.BotToken,
		discord.WithBaseURL(cfg.Discord.APIBase),
	)

	// Wire the built-in command set. Registration is sealed on first dispatch.
	router := dispatch.NewRouter()
	if err := commands.Register(router); err != nil {
		return err
	}

	dispatcher := dispatch.New(router, client,
		dispatch.WithDefaultAutoDefer(dispatch.AutoDefer{
			Enabled:   cfg.Dispatch.AutoDeferEnabled,
			Timeout:   cfg.Dispatch.AutoDeferTimeout,
			Ephemeral: cfg.Dispatch.AutoDeferEphemeral,
		}),
		dispatch.WithAckDeadline(cfg.Dispatch.AckDeadline),
	)

	// Bulk-overwrite the global command set when asked to.
	if cfg.Discord.SyncCommands {
		syncCtx, syncCancel := context.WithTimeout(ctx, 30*time.Second)
		defer syncCancel()
		if err := client.SyncCommands(syncCtx, commands.Specs()); err != nil {
			return err
		}
		log.Info().Int("commands", len(commands.Specs())).Msg("synced global commands")
	}

	// Graceful shutdown on SIGINT / SIGTERM.
	ctx, cancel := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer cancel()

	srv := server.New(ctx, cfg, verifier, dispatcher)

	// Start server in background goroutine.
	go func() {
		log.Info().Str("addr", cfg.Server.Addr).Msg("starting server")
		if startErr := srv.Start(ctx); startErr != nil {
			log.Error().Err(startErr).Msg("server error")
		}
	}()

	// Block until shutdown signal.
	<-ctx.Done()
	log.Info().Msg("shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if shutdownErr := srv.Shutdown(shutdownCtx); shutdownErr != nil {
		return shutdownErr
	}

	// Let in-flight deferred follow-ups finish before exiting.
	dispatcher.Wait()

	log.Info().Msg("stopped")
	return nil
}
