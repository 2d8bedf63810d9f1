package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"go.uber.org/fx"

	"quiz-engine/internal/app"
	"quiz-engine/internal/cli"
	"quiz-engine/internal/config"
	"quiz-engine/internal/logger"
)

func main() {
	os.Exit(run())
}

func run() int {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		return 1
	}
	logger.Init(cfg.Log.Level, cfg.Log.Pretty)

	var deps cli.Deps
	admin := fx.New(
		fx.NopLogger,
		fx.Supply(cfg),
		app.Core,
		fx.Populate(&deps.Catalog, &deps.Attempts, &deps.Engine, &deps.Sweeper),
	)

	ctx := context.Background()
	if err := admin.Start(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		return 1
	}
	defer func() {
		if err := admin.Stop(ctx); err != nil {
			fmt.Fprintln(os.Stderr, "error:", err)
		}
	}()

	if err := cli.Run(ctx, os.Args[1:], os.Stdout, deps); err != nil {
		if errors.Is(err, cli.ErrUsage) {
			return 2
		}
		fmt.Fprintln(os.Stderr, "error:", err)
		return 1
	}
	return 0
}
