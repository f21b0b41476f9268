package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/danmuck/mupipe/client"
	"github.com/danmuck/mupipe/internal/config"
	"github.com/danmuck/mupipe/internal/gateway"
	"github.com/danmuck/mupipe/internal/logging"
	"github.com/danmuck/mupipe/internal/observability"
	"github.com/gin-gonic/gin"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "mugate: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	path := flag.String("config", "cmd/mugate/config.toml", "gateway config path")
	flag.Parse()

	logging.ConfigureRuntime()
	logger := observability.InitLogger("mugate")
	gin.SetMode(gin.ReleaseMode)

	cfg, err := config.LoadGatewayConfig(*path)
	if err != nil {
		return err
	}
	clientCfg, err := cfg.ClientConfig()
	if err != nil {
		return err
	}
	clientCfg.Logger = &logger
	clientCfg.Progress = func(command string, frame map[string]any) {
		logger.Info().Str("command", command).Interface("frame", frame).Msg("progress")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	engine, err := client.New(ctx, clientCfg)
	if err != nil {
		return err
	}
	defer func() {
		if err := engine.Finish(context.Background()); err != nil {
			logger.Warn().Err(err).Msg("worker shutdown")
		}
	}()

	gw := gateway.New(cfg.Name, cfg.Addr, engine, cfg.CorsOrigins, logger)
	return gw.Serve(ctx)
}
