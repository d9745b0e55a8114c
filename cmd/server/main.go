// cmd/server/main.go
package main

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"time"

	_ "github.com/joho/godotenv/autoload"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/jason-s-yu/ygame/internal/handlers"
	"github.com/jason-s-yu/ygame/internal/lobby"
)

func main() {
	cfg := &Config{}
	cmd := newCmd(cfg, func(cmd *cobra.Command, cfg *Config) error {
		return serve(cmd.Context(), cfg)
	})
	if err := cmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func serve(ctx context.Context, cfg *Config) error {
	logger := logrus.New()
	logger.SetLevel(cfg.logLevel())

	lob := lobby.New(logger).Start()
	defer lob.Stop()

	server := &http.Server{
		Handler:           handlers.NewServer(logger, lob),
		ReadHeaderTimeout: 10 * time.Second,
	}

	l, err := net.Listen("tcp", cfg.addr())
	if err != nil {
		return fmt.Errorf("failed to listen: %w", err)
	}

	logger.Infof("listening on %s", l.Addr())

	errc := make(chan error, 1)
	go func() {
		errc <- server.Serve(l)
	}()

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, os.Interrupt)
	select {
	case err := <-errc:
		return fmt.Errorf("failed to serve: %w", err)
	case sig := <-sigs:
		logger.Infof("terminating: %v", sig)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}
