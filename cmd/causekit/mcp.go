package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/causekit/causekit/pkg/server"
)

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Serve the analysis tools over MCP stdio",
	Long: `Starts an MCP server on stdin/stdout. Editor agents connect to it and
call run_analysis, get_run, list_templates, and list_providers directly.
Runs are recorded in the configured store, same as HTTP submissions.`,
	RunE: runMCP,
}

func runMCP(_ *cobra.Command, _ []string) error {
	srv, err := server.New(configPath)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log.Info().Str("version", version).Msg("📡 causekit MCP server on stdio")
	err = srv.MCP.Run(ctx)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if sErr := srv.ShutdownFunc(shutdownCtx); sErr != nil && err == nil {
		err = sErr
	}
	return err
}
