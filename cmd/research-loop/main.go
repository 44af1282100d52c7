package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/mikeboe/research-loop/pkg/app"
	"github.com/mikeboe/research-loop/pkg/config"
	"github.com/mikeboe/research-loop/pkg/report"
	"github.com/mikeboe/research-loop/pkg/research"
)

const reportFile = "report.md"

var (
	query        string
	iterations   int
	questions    int
	accumulation string
	searchTool   string
	outputDir    string
	detailed     bool
)

func main() {
	handler := slog.NewTextHandler(os.Stderr, nil)
	slog.SetDefault(slog.New(handler))

	cfg := config.Load()

	rootCmd := &cobra.Command{
		Use:   "research-loop",
		Short: "An iterative web research assistant",
		Long: `research-loop answers a query by repeatedly generating search questions,
searching the web, synthesizing cited findings and folding them into a running
knowledge summary. Without --query it runs interactively.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			applyFlags(cfg)

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
			defer stop()

			rc, err := app.ResearchConfig(cfg)
			if err != nil {
				return err
			}
			stack, err := app.NewStack(ctx, cfg, slog.Default())
			if err != nil {
				return err
			}

			if cmd.Flags().Changed("query") {
				if strings.TrimSpace(query) == "" {
					return fmt.Errorf("--query flag provided but empty")
				}
				return runQuery(ctx, cmd.OutOrStdout(), stack, rc, cfg, query, detailed)
			}
			return interactive(ctx, cmd.InOrStdin(), cmd.OutOrStdout(), stack, rc, cfg)
		},
	}

	rootCmd.Flags().StringVarP(&query, "query", "q", "", "The research query")
	rootCmd.Flags().IntVarP(&iterations, "iterations", "i", cfg.SearchIterations, "Number of research iterations")
	rootCmd.Flags().IntVar(&questions, "questions", cfg.QuestionsPerIteration, "Search questions per iteration")
	rootCmd.Flags().StringVar(&accumulation, "accumulation", cfg.KnowledgeAccumulation, "Knowledge accumulation: NONE, QUESTION or ITERATION")
	rootCmd.Flags().StringVar(&searchTool, "search-tool", cfg.SearchTool, "Search provider: auto, duckduckgo, wikipedia or arxiv")
	rootCmd.Flags().StringVarP(&outputDir, "output-dir", "o", cfg.OutputDir, "Directory for the formatted findings")
	rootCmd.Flags().BoolVarP(&detailed, "report", "r", false, "Generate a detailed report instead of a quick summary")

	if err := rootCmd.Execute(); err != nil {
		slog.Error("Command execution failed", "error", err)
		os.Exit(1)
	}
}

func applyFlags(cfg *config.Config) {
	cfg.SearchIterations = iterations
	cfg.QuestionsPerIteration = questions
	cfg.KnowledgeAccumulation = accumulation
	cfg.SearchTool = strings.ToLower(searchTool)
	cfg.OutputDir = outputDir
}

func interactive(ctx context.Context, in io.Reader, out io.Writer, stack *app.Stack, rc research.Config, cfg *config.Config) error {
	reader := bufio.NewReader(in)
	readLine := func(prompt string) (string, bool) {
		fmt.Fprint(out, prompt)
		line, err := reader.ReadString('\n')
		if err != nil && line == "" {
			return "", false
		}
		return strings.TrimSpace(line), true
	}

	fmt.Fprintln(out, "Welcome to the research loop")
	fmt.Fprintln(out, "Type 'quit' to exit")

	for {
		fmt.Fprintln(out, "\nSelect output type:")
		fmt.Fprintln(out, "1) Quick Summary (Generated in a few minutes)")
		fmt.Fprintln(out, "2) Detailed Research Report (Recommended for deeper analysis - may take several hours)")

		choice, ok := readLine("Enter number (1 or 2): ")
		for ok && choice != "1" && choice != "2" && !isQuit(choice) {
			fmt.Fprintln(out, "\nInvalid input. Please enter 1 or 2")
			choice, ok = readLine("Enter number (1 or 2): ")
		}
		if !ok || isQuit(choice) {
			return nil
		}

		q, ok := readLine("\nEnter your research query: ")
		if !ok || isQuit(q) {
			return nil
		}
		if q == "" {
			fmt.Fprintln(out, "Query cannot be empty")
			continue
		}

		if err := runQuery(ctx, out, stack, rc, cfg, q, choice == "2"); err != nil {
			if ctx.Err() != nil {
				return err
			}
			slog.Error("Research failed", "error", err)
			fmt.Fprintln(out, "Research failed. Please try again.")
		}
	}
}

func isQuit(s string) bool {
	return strings.EqualFold(s, "quit")
}

// runQuery runs one query and prints a quick summary or writes the report.
func runQuery(ctx context.Context, out io.Writer, stack *app.Stack, rc research.Config, cfg *config.Config, q string, withReport bool) error {
	if withReport {
		fmt.Fprintln(out, "\nGenerating detailed report... This may take a long time.")
	} else {
		fmt.Fprintln(out, "\nResearching... This may take a few minutes.")
	}

	engine := stack.Engine(rc, nil)
	engine.Progress = research.SlogProgress(slog.Default())

	result, err := engine.Run(ctx, q)
	if err != nil {
		return err
	}

	if !withReport {
		fmt.Fprintln(out, "\n=== QUICK SUMMARY ===")
		for _, f := range result.Findings {
			fmt.Fprintf(out, "\n[%s] %s\n%s\n", f.Phase, f.Question, f.Content)
		}
		fmt.Fprintf(out, "\nFindings saved to %s\n", result.OutputPath)
		return nil
	}

	rep := stack.Reports(rc, cfg.SearchesPerSection, nil).Generate(ctx, result.Findings, q)
	fmt.Fprintln(out, "\n=== RESEARCH REPORT ===")
	if err := writeReport(out, rep); err != nil {
		return err
	}
	fmt.Fprintln(out, "\n=== RESEARCH METRICS ===")
	fmt.Fprintf(out, "Search Iterations: %d\n", result.Iterations)
	return nil
}

func writeReport(out io.Writer, rep *report.Report) error {
	fmt.Fprintln(out, rep.Content)
	if rep.Failed() {
		return nil
	}

	fmt.Fprintln(out, "\n=== METADATA ===")
	fmt.Fprintf(out, "Generated at: %s\n", rep.Metadata.GeneratedAt.Format(time.RFC3339))
	fmt.Fprintf(out, "Initial sources: %d\n", rep.Metadata.InitialSources)
	fmt.Fprintf(out, "Sections researched: %d\n", rep.Metadata.SectionsResearched)
	fmt.Fprintf(out, "Searches per section: %d\n", rep.Metadata.SearchesPerSection)
	fmt.Fprintf(out, "Query: %s\n", rep.Metadata.Query)

	if err := os.WriteFile(reportFile, []byte(rep.Markdown()), 0o644); err != nil {
		return fmt.Errorf("failed to save report: %w", err)
	}
	fmt.Fprintf(out, "\nReport has been saved to %s\n", reportFile)
	return nil
}
