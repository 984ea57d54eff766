package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"

	"anonchat/internal/bootstrap"
	httptransport "anonchat/internal/transport/http"
)

func main() {
	ctx := context.Background()

	app, err := bootstrap.New(ctx)
	if err != nil {
		log.Fatal().Err(err).Msg("bootstrap failed")
	}
	logger := app.Logger
	defer func() {
		if err := app.Close(); err != nil {
			logger.Error().Err(err).Msg("close resources failed")
		}
	}()

	router := httptransport.NewRouter(app)
	server := &http.Server{
		Addr:              app.Config.HTTPAddr(),
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Info().Str("addr", server.Addr).Str("store", app.Config.Store.Driver).Msg("server starting")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal().Err(err).Msg("server failed")
		}
	}()

	waitForShutdown(server, app)
}

func waitForShutdown(server *http.Server, app *bootstrap.App) {
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	app.Logger.Info().Msg("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	// Shutdown does not track hijacked websocket connections. Closing the
	// chat service ends every session, and each websocket closes with it.
	app.Chat.Close()
	if err := server.Shutdown(shutdownCtx); err != nil {
		app.Logger.Error().Err(err).Msg("server shutdown failed")
	}
}
