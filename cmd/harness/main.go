package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/DoyleJ11/arena-harness/internal/config"
	"github.com/DoyleJ11/arena-harness/internal/logging"
	"github.com/DoyleJ11/arena-harness/internal/orchestrator"
)

const banner = `
==================================
  Arena multiplayer test harness
==================================`

func main() {
	cfg, err := config.LoadHarness()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	logger, err := logging.New(cfg.Debug)
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	fmt.Println(banner)
	o := orchestrator.New(cfg, logger)

	n, err := o.Initialize(ctx)
	if err != nil {
		logger.Error("initialize", err)
		if err := o.Shutdown(); err != nil {
			logger.Error("shutdown", err)
		}
		return
	}
	if n == 0 {
		logger.Log("no test player is live; use config or scan to try again", false)
	} else {
		o.StartSimulation()
	}

	console := orchestrator.NewConsole(o, os.Stdin, os.Stdout)
	console.ShowCommands()
	if err := console.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("console", err)
	}

	if err := o.Shutdown(); err != nil {
		logger.Error("shutdown", err)
	}
}
