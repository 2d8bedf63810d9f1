package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog/log"
	"go.uber.org/fx"

	"quiz-engine/internal/app"
	"quiz-engine/internal/config"
	"quiz-engine/internal/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
	logger.Init(cfg.Log.Level, cfg.Log.Pretty)

	fxLogger := fx.NopLogger
	if cfg.Log.Level == "debug" {
		fxLogger = fx.Options()
	}

	service := fx.New(
		fxLogger,
		fx.Supply(cfg),
		app.Server,
	)

	startCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := service.Start(startCtx); err != nil {
		log.Fatal().Err(err).Msg("failed to start quiz-service")
	}

	sig := <-service.Wait()
	log.Info().Str("signal", sig.String()).Msg("quiz-service shutting down")

	stopCtx, stopCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer stopCancel()
	if err := service.Stop(stopCtx); err != nil {
		log.Error().Err(err).Msg("shutdown failed")
		os.Exit(1)
	}
}
