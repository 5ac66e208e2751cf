package cli

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/LuckySoftware/Aletheia/internal/model"
	"github.com/LuckySoftware/Aletheia/internal/pipeline"
	"github.com/LuckySoftware/Aletheia/internal/store"
)

var (
	csvDir     string
	rulesPath  string
	runTimeout time.Duration
	noDatabase bool
)

// runCmd represents the run command
var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Validate one batch of exported readings",
	Long: `Run ingests every CSV export in the configured directory and drives
each record through duplicate quarantine, exclusion windows, and the
declarative rule set. The resulting partition is persisted to
PostgreSQL and rendered as Excel reports for operator review.

Example:
  aletheia run
  aletheia run --csv-dir /data/exports --rules rules.json
  aletheia run --no-db --timeout 10m`,
	RunE: runBatch,
}

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().StringVar(&csvDir, "csv-dir", "", "directory of CSV exports (overrides config)")
	runCmd.Flags().StringVar(&rulesPath, "rules", "", "rule definitions file (overrides config)")
	runCmd.Flags().DurationVar(&runTimeout, "timeout", 30*time.Minute, "overall run timeout")
	runCmd.Flags().BoolVar(&noDatabase, "no-db", false, "skip database persistence (reports only)")
}

func runBatch(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if csvDir != "" {
		cfg.CSV.Dir = csvDir
	}
	if rulesPath != "" {
		cfg.Rules.Path = rulesPath
	}

	ctx, cancel := context.WithTimeout(context.Background(), runTimeout)
	defer cancel()

	var sink pipeline.Sink
	if !noDatabase {
		st, err := store.Open(cfg.Database)
		if err != nil {
			return fmt.Errorf("connect database: %w", err)
		}
		defer func() { _ = st.Close() }()
		sink = st
	}

	report, err := executeRun(ctx, cfg, sink)
	if err != nil {
		return err
	}

	if verbose {
		fmt.Fprintf(os.Stderr, "✓ Run %s finished in %s\n",
			report.RunID, report.FinishedAt.Sub(report.StartedAt).Round(time.Millisecond))
	}
	return nil
}

// executeRun drives one batch and prints its summary.
func executeRun(ctx context.Context, cfg *model.Config, sink pipeline.Sink) (model.RunReport, error) {
	report, err := pipeline.NewRunner(cfg, sink).Run(ctx)
	if err != nil {
		return report, fmt.Errorf("run failed: %w", err)
	}

	fmt.Printf("Run %s (%s)\n", report.RunID, report.Plant)
	fmt.Printf("  Files read:    %d\n", report.FilesRead)
	fmt.Printf("  Rows ingested: %d (%d skipped)\n", report.RowsIngested, report.RowsSkipped)
	fmt.Printf("  Duplicates:    %d\n", report.Duplicates)
	fmt.Printf("  Excluded:      %d\n", report.Excluded)
	fmt.Printf("  Validated:     %d\n", report.Validated)
	fmt.Printf("  Errors:        %d\n", report.Errors)

	return report, nil
}
