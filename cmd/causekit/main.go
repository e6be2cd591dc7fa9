// causekit runs LLM-backed root cause analysis over logs, web pages,
// and tracker tickets.
//
// Usage:
//
//	causekit serve                 # HTTP API on the configured port
//	causekit mcp                   # MCP tools over stdio
//	causekit analyze -d "..." -f app.log
package main

import (
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

// version is set at build time via -ldflags.
var version = "dev"

var configPath string

var rootCmd = &cobra.Command{
	Use:   "causekit",
	Short: "Root cause analysis powered by LLM providers",
	Long: "Causekit collects evidence from files, URLs, and tracker tickets,\n" +
		"runs it through a chain of LLM providers with ordered fallback, and\n" +
		"reconstructs the reply into a structured analysis report.",
	SilenceUsage:  true,
	SilenceErrors: true,
	CompletionOptions: cobra.CompletionOptions{
		HiddenDefaultCmd: true,
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the causekit version",
	Run: func(_ *cobra.Command, _ []string) {
		fmt.Printf("causekit %s\n", version)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Path to a causekit YAML config file")
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(analyzeCmd)
	rootCmd.AddCommand(mcpCmd)
	rootCmd.AddCommand(versionCmd)
	rootCmd.Version = version
}

func main() {
	// Logs go to stderr; stdout is reserved for command output and the
	// MCP protocol.
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
