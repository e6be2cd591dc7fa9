package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/causekit/causekit/pkg/server"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the causekit HTTP service",
	Long: `Starts the analysis API: submit runs, poll their outcomes, list
templates and providers. Metrics are exposed on /metrics and the
retention janitor archives aged-out runs in the background.`,
	RunE: runServe,
}

func runServe(_ *cobra.Command, _ []string) error {
	log.Info().Str("version", version).Msg("🔬 causekit starting...")

	srv, err := server.New(configPath)
	if err != nil {
		return err
	}

	httpServer := &http.Server{
		Addr:         fmt.Sprintf(":%d", srv.Port),
		Handler:      srv.Handler,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		<-sigChan

		log.Info().Msg("🛑 Shutting down gracefully...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		httpServer.Shutdown(shutdownCtx)
	}()

	log.Info().Int("port", srv.Port).Msg("🔥 causekit is ready")

	if err := httpServer.ListenAndServe(); err != http.ErrServerClosed {
		return err
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	return srv.ShutdownFunc(shutdownCtx)
}
