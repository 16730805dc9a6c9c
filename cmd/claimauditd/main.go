package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"

	"claimaudit/internal/app"
	"claimaudit/internal/config"
	"claimaudit/internal/observability"
)

func main() {
	if len(os.Args) < 2 {
		usage()
		return
	}
	cmd := os.Args[1]
	boot := observability.NewLogger("info", "json")
	cfg, err := config.Load(os.Getenv("CA_CONFIG"))
	if err != nil {
		boot.Fatal().Err(err).Msg("config error")
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	switch cmd {
	case "serve":
		runServe(ctx, cfg, boot)
	case "worker":
		runWorker(ctx, cfg, boot)
	default:
		usage()
	}
}

func runServe(ctx context.Context, cfg config.Config, boot zerolog.Logger) {
	appInstance, err := app.New(ctx, cfg)
	if err != nil {
		boot.Fatal().Err(err).Msg("app init error")
	}
	defer appInstance.Close()

	appInstance.Logger.Info().Str("addr", cfg.HTTP.Addr).Msg("claimauditd serving")
	if err := appInstance.Serve(ctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		appInstance.Logger.Fatal().Err(err).Msg("server error")
	}
}

func runWorker(ctx context.Context, cfg config.Config, boot zerolog.Logger) {
	appInstance, err := app.New(ctx, cfg)
	if err != nil {
		boot.Fatal().Err(err).Msg("app init error")
	}
	defer appInstance.Close()

	if err := appInstance.RunWorker(ctx); err != nil {
		appInstance.Logger.Fatal().Err(err).Msg("worker error")
	}
}

func usage() {
	fmt.Println("Usage: claimauditd <serve|worker>")
}
