package main

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/joho/godotenv"
	"github.com/lmittmann/tint"
	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/spiceroute/reportpipe/pkg/pipeline"
	"github.com/spiceroute/reportpipe/pkg/reason"
	"github.com/spiceroute/reportpipe/pkg/report"
	"github.com/spiceroute/reportpipe/pkg/table"
)

const (
	defaultModel     = string(anthropic.ModelClaudeHaiku4_5_20251001)
	defaultMaxTokens = 4096
	defaultTimeout   = 60 * time.Second
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	var (
		verbose     bool
		outDir      string
		label       string
		bizContext  string
		model       string
		maxTokens   int64
		callTimeout time.Duration
	)

	rootCmd := &cobra.Command{
		Use:   "reportpipe [flags] <table.csv>...",
		Short: "Generate an aggregate business report from CSV tables.",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			// Best effort; the ANTHROPIC_API_KEY may come from the
			// environment directly.
			_ = godotenv.Load()

			log := newLogger(verbose)

			ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer cancel()

			tables, err := loadTables(args)
			if err != nil {
				return err
			}

			client := reason.NewAnthropicClient(
				anthropic.Model(model),
				maxTokens,
				reason.WithTimeout(callTimeout),
				reason.WithLogger(log),
			)

			p, err := pipeline.New(&pipeline.Config{
				Logger: log,
				Client: client,
			})
			if err != nil {
				return err
			}

			bundle, err := p.Run(ctx, pipeline.Request{
				Tables:  tables,
				Context: bizContext,
				Label:   label,
			})
			if err != nil {
				return fmt.Errorf("run failed (%s): %w", pipeline.FailureKind(err), err)
			}

			if err := writeBundle(outDir, bundle); err != nil {
				return err
			}
			printAggregates(bundle)
			log.Info("report written", "dir", outDir, "run", bundle.Metadata.RunID, "degraded", bundle.Degraded())
			return nil
		},
	}

	rootCmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "set debug logging level")
	rootCmd.Flags().StringVarP(&outDir, "out", "o", "report", "output directory for the report bundle")
	rootCmd.Flags().StringVarP(&label, "label", "l", "", "report label used as the document title")
	rootCmd.Flags().StringVarP(&bizContext, "context", "c", "", "business context to steer the analysis")
	rootCmd.Flags().StringVar(&model, "model", defaultModel, "reasoning model to use")
	rootCmd.Flags().Int64Var(&maxTokens, "max-tokens", defaultMaxTokens, "max tokens per reasoning call")
	rootCmd.Flags().DurationVar(&callTimeout, "call-timeout", defaultTimeout, "per-call reasoning timeout")

	return rootCmd.Execute()
}

func newLogger(verbose bool) *slog.Logger {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	return slog.New(tint.NewHandler(os.Stderr, &tint.Options{
		Level:      level,
		TimeFormat: time.Kitchen,
	}))
}

func loadTables(paths []string) ([]*table.Table, error) {
	tables := make([]*table.Table, 0, len(paths))
	seen := make(map[string]string, len(paths))
	for _, path := range paths {
		name := table.NormalizeName(filepath.Base(path))
		if prev, ok := seen[name]; ok {
			return nil, fmt.Errorf("table name %q from %s collides with %s", name, path, prev)
		}
		seen[name] = path

		f, err := os.Open(path)
		if err != nil {
			return nil, fmt.Errorf("failed to open %s: %w", path, err)
		}
		t, err := table.ReadCSV(name, f)
		f.Close()
		if err != nil {
			return nil, fmt.Errorf("failed to read %s: %w", path, err)
		}
		tables = append(tables, t)
	}
	return tables, nil
}

func writeBundle(dir string, bundle *report.Bundle) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "report.md"), []byte(bundle.RenderMarkdown()), 0o644); err != nil {
		return fmt.Errorf("failed to write report: %w", err)
	}
	for name, csv := range bundle.AggregateCSVs() {
		path := filepath.Join(dir, name+".csv")
		if err := os.WriteFile(path, []byte(csv), 0o644); err != nil {
			return fmt.Errorf("failed to write %s: %w", path, err)
		}
	}
	if len(bundle.Charts) > 0 {
		data, err := json.MarshalIndent(bundle.Charts, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to encode charts: %w", err)
		}
		if err := os.WriteFile(filepath.Join(dir, "charts.json"), data, 0o644); err != nil {
			return fmt.Errorf("failed to write charts: %w", err)
		}
	}
	data, err := json.MarshalIndent(bundle.Metadata, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode metadata: %w", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "metadata.json"), data, 0o644); err != nil {
		return fmt.Errorf("failed to write metadata: %w", err)
	}
	return nil
}

func printAggregates(bundle *report.Bundle) {
	for _, t := range bundle.Aggregates {
		fmt.Println()
		fmt.Println(strings.ToUpper(t.Name))
		w := tablewriter.NewWriter(os.Stdout)
		w.SetAutoWrapText(false)
		w.SetAutoFormatHeaders(false)
		w.SetBorder(true)
		w.SetHeader(t.Columns)
		for i := range t.Rows {
			row := make([]string, len(t.Columns))
			for j, c := range t.Columns {
				row[j] = t.Get(i, c).String()
			}
			w.Append(row)
		}
		w.Render()
	}
}
