package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/go-co-op/gocron"
	"github.com/spf13/cobra"

	"github.com/LuckySoftware/Aletheia/internal/logger"
	"github.com/LuckySoftware/Aletheia/internal/pipeline"
	"github.com/LuckySoftware/Aletheia/internal/store"
)

var (
	scheduleAt       string
	scheduleCron     string
	scheduleTimeout  time.Duration
	scheduleNoDB     bool
	scheduleRunFirst bool
)

// scheduleCmd represents the schedule command
var scheduleCmd = &cobra.Command{
	Use:   "schedule",
	Short: "Run the daily validation batch on a schedule",
	Long: `Schedule starts a long-lived process that executes one validation run
every day at the configured wall-clock time. Runs never overlap: a
batch still in flight when the next trigger fires causes that trigger
to be skipped.

Example:
  aletheia schedule --at 06:00
  aletheia schedule --at 06:00 --run-first`,
	RunE: runSchedule,
}

func init() {
	rootCmd.AddCommand(scheduleCmd)

	scheduleCmd.Flags().StringVar(&scheduleAt, "at", "06:00", "daily trigger time (HH:MM, local)")
	scheduleCmd.Flags().StringVar(&scheduleCron, "cron", "", "cron expression (overrides --at)")
	scheduleCmd.Flags().DurationVar(&scheduleTimeout, "timeout", 30*time.Minute, "per-run timeout")
	scheduleCmd.Flags().BoolVar(&scheduleNoDB, "no-db", false, "skip database persistence (reports only)")
	scheduleCmd.Flags().BoolVar(&scheduleRunFirst, "run-first", false, "execute one run immediately at startup")
}

func runSchedule(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	var sink pipeline.Sink
	if !scheduleNoDB {
		st, err := store.Open(cfg.Database)
		if err != nil {
			return fmt.Errorf("connect database: %w", err)
		}
		defer func() { _ = st.Close() }()
		sink = st
	}

	job := func() {
		ctx, cancel := context.WithTimeout(context.Background(), scheduleTimeout)
		defer cancel()

		if _, err := executeRun(ctx, cfg, sink); err != nil {
			logger.Error("scheduled run failed", "error", err)
		}
	}

	if scheduleRunFirst {
		job()
	}

	s := gocron.NewScheduler(time.Local)
	s.SingletonModeAll()
	if scheduleCron != "" {
		if _, err := s.Cron(scheduleCron).Do(job); err != nil {
			return fmt.Errorf("schedule job: %w", err)
		}
		logger.Info("scheduler started", "cron", scheduleCron, "plant", cfg.Plant.Name)
	} else {
		if _, err := s.Every(1).Day().At(scheduleAt).Do(job); err != nil {
			return fmt.Errorf("schedule job: %w", err)
		}
		logger.Info("scheduler started", "at", scheduleAt, "plant", cfg.Plant.Name)
	}
	s.StartBlocking()
	return nil
}
