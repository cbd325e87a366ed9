package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/DoyleJ11/arena-harness/internal/arena"
	"github.com/DoyleJ11/arena-harness/internal/config"
	"github.com/DoyleJ11/arena-harness/internal/httpapi"
	"github.com/DoyleJ11/arena-harness/internal/logging"
)

func main() {
	cfg, err := config.LoadStub()
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

	a := arena.New(ctx, logger.Named("arena"))

	// Build the router *with* the arena injected
	handler := httpapi.SetupRoutes(a, logger.Named("http"), httpapi.Options{
		APIPrefix: cfg.APIPrefix,
		WSPath:    cfg.WSPath,
	})
	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Log("listening on "+cfg.Addr, false)
		if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		logger.Error("stub server", err)
		logger.Sync()
		os.Exit(1)
	}
	<-a.Done()
	logger.Log("stopped", false)
}
