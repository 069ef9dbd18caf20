package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/callglue/callglue/internal/adapter/driven/auth/jwtoken"
	"github.com/callglue/callglue/internal/adapter/driven/gateway/ws"
	"github.com/callglue/callglue/internal/adapter/driven/media/pion"
	handler "github.com/callglue/callglue/internal/adapter/driving/http"
	"github.com/callglue/callglue/internal/config"
	"github.com/callglue/callglue/internal/core/service"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

func main() {
	w := zerolog.ConsoleWriter{Out: os.Stdout}
	l := zerolog.New(w).With().Timestamp().Caller().Logger()
	log.Logger = l

	cfg, err := config.LoadServer()
	if err != nil {
		l.Fatal().Err(err).Msg("loading configuration")
	}

	hub := ws.NewHub()

	engine, err := pion.NewEngine()
	if err != nil {
		l.Fatal().Err(err).Msg("building media engine")
	}
	gateway := handler.NewMediaGateway()
	relay := service.NewMediaRelay(engine, gateway)

	tokens := jwtoken.New(cfg.TokenSecret, cfg.AppID, cfg.TokenTTL)
	h := handler.NewHandler(hub, relay, gateway, tokens, cfg.CSRFToken)

	go hub.Run()

	srv := &http.Server{
		Addr:    cfg.Addr,
		Handler: h.NewRouter(),
	}

	go func() {
		l.Info().Str("addr", cfg.Addr).Str("app_id", cfg.AppID).Msg("starting server")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			l.Fatal().Err(err).Msg("failed to start server")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)

	<-quit
	l.Info().Msg("shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		l.Error().Err(err).Msg("server forced to shutdown")
	}

	hub.Stop()
	l.Info().Msg("server exited")
}
