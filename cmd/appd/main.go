// Command appd runs the sandboxed app runtime and its management API.
package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rfdeck/appos/internal/config"
	"github.com/rfdeck/appos/internal/logging"
	"github.com/rfdeck/appos/internal/sandbox"
	"github.com/rfdeck/appos/internal/server"
)

func main() {
	cfg := config.LoadOrDefault()

	logger, err := logging.New(logging.Config{
		Level:       cfg.Logging.Level,
		Development: cfg.Logging.Development,
		OutputPaths: []string{"stdout"},
	})
	if err != nil {
		log.Fatalf("failed to create logger: %v", err)
	}
	defer logger.Sync()

	// Hardware backends are wired by the embedding platform; the bare
	// daemon exposes no radio/gpio/display and scripts see those bindings
	// as unavailable.
	srv, err := server.New(cfg, sandbox.Host{}, logger)
	if err != nil {
		log.Fatalf("failed to create server: %v", err)
	}

	errChan := make(chan error, 1)
	go func() {
		errChan <- srv.Run()
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	select {
	case <-sigChan:
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(ctx); err != nil {
			log.Printf("error during shutdown: %v", err)
		}
	case err := <-errChan:
		if err != nil {
			log.Fatalf("server error: %v", err)
		}
	}
}
