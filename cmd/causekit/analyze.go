package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/causekit/causekit/internal/config"
	"github.com/causekit/causekit/pkg/models"
	"github.com/causekit/causekit/pkg/server"
)

var analyzeFlags struct {
	template    string
	description string
	files       []string
	urls        []string
	tickets     []string
	providers   []string
	outputPath  string
	report      bool
}

var analyzeCmd = &cobra.Command{
	Use:   "analyze",
	Short: "Run one analysis and print the result",
	Long: `Runs a single analysis in the foreground, without the HTTP service.

Usage:
  causekit analyze -d "payments API timing out" -f api.log -f deploy.log
  causekit analyze -f crash.log --ticket CPE-1234 --report
  causekit analyze -d "checkout errors" -p anthropic -o result.json

Provider API keys are read from the environment (OPENAI_API_KEY,
ANTHROPIC_API_KEY, ...) or from the config file.`,
	RunE: runAnalyzeCmd,
}

func init() {
	f := analyzeCmd.Flags()
	f.StringVarP(&analyzeFlags.template, "template", "t", "", "Analysis template ID (default from config)")
	f.StringVarP(&analyzeFlags.description, "describe", "d", "", "Issue description")
	f.StringArrayVarP(&analyzeFlags.files, "file", "f", nil, "Evidence file path (repeatable)")
	f.StringArrayVar(&analyzeFlags.urls, "url", nil, "Evidence URL (repeatable)")
	f.StringArrayVar(&analyzeFlags.tickets, "ticket", nil, "Evidence ticket key (repeatable)")
	f.StringArrayVarP(&analyzeFlags.providers, "provider", "p", nil, "Provider to try, in order (repeatable)")
	f.StringVarP(&analyzeFlags.outputPath, "output", "o", "", "Write the full outcome JSON to this file")
	f.BoolVar(&analyzeFlags.report, "report", false, "Print the full reconstructed report")
}

func runAnalyzeCmd(_ *cobra.Command, _ []string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	analyzer, err := server.NewAnalyzer(cfg)
	if err != nil {
		return err
	}

	req := &models.AnalysisRequest{
		IssueDescription: analyzeFlags.description,
		TemplateID:       analyzeFlags.template,
		Providers:        analyzeFlags.providers,
	}
	for _, f := range analyzeFlags.files {
		req.Evidence = append(req.Evidence, models.EvidenceItem{SourceKind: models.SourceFile, Identifier: f})
	}
	for _, u := range analyzeFlags.urls {
		req.Evidence = append(req.Evidence, models.EvidenceItem{SourceKind: models.SourceURL, Identifier: u})
	}
	for _, k := range analyzeFlags.tickets {
		req.Evidence = append(req.Evidence, models.EvidenceItem{SourceKind: models.SourceTicket, Identifier: k})
	}

	// Ctrl-C cancels the run at the next stage boundary.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	outcome := analyzer.Run(ctx, req)

	if analyzeFlags.outputPath != "" {
		data, err := json.MarshalIndent(outcome, "", "  ")
		if err != nil {
			return fmt.Errorf("encode outcome: %w", err)
		}
		if err := os.WriteFile(analyzeFlags.outputPath, data, 0644); err != nil {
			return fmt.Errorf("write outcome: %w", err)
		}
	}

	if outcome.Status == models.OutcomeFailure {
		return fmt.Errorf("analysis failed (%s): %s", outcome.ErrorKind, outcome.Error)
	}

	printOutcome(outcome)
	if analyzeFlags.outputPath != "" {
		fmt.Printf("\nOutcome JSON: %s\n", analyzeFlags.outputPath)
	}
	return nil
}

func printOutcomeField(result *models.AnalysisResult, label, key string) {
	if v := result.Field(key); v != "" {
		fmt.Printf("%s %s\n", label, v)
	}
}

func printOutcome(outcome *models.Outcome) {
	result := outcome.Result

	fmt.Printf("Outcome:  %s\n", outcome.Status)
	if result.Model != "" {
		fmt.Printf("Provider: %s (%s)\n", result.ProviderUsed, result.Model)
	} else {
		fmt.Printf("Provider: %s\n", result.ProviderUsed)
	}
	printOutcomeField(result, "Severity:", "severity")
	printOutcomeField(result, "Priority:", "priority")

	if v := result.Field("executive_summary"); v != "" {
		fmt.Printf("\n%s\n", v)
	}
	if v := result.Field("root_cause"); v != "" {
		fmt.Printf("\nRoot cause:\n  %s\n", v)
	}

	warnings := append(append([]string{}, outcome.Warnings...), result.Warnings...)
	if len(warnings) > 0 {
		fmt.Printf("\nWarnings:\n")
		for _, w := range warnings {
			fmt.Printf("  - %s\n", w)
		}
	}

	if len(outcome.Tickets) > 0 {
		fmt.Printf("\nTickets:\n")
		for _, tk := range outcome.Tickets {
			if tk.Success {
				fmt.Printf("  - %s (%s)\n", tk.Key, tk.Kind)
			} else {
				fmt.Printf("  - %s failed: %s\n", tk.Kind, tk.Error)
			}
		}
	}

	if analyzeFlags.report && result.RawText != "" {
		fmt.Printf("\n%s\n", result.RawText)
	}
}
