package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/LuckySoftware/Aletheia/internal/engine"
	"github.com/LuckySoftware/Aletheia/internal/exclusion"
	"github.com/LuckySoftware/Aletheia/internal/export"
	"github.com/LuckySoftware/Aletheia/internal/ingest"
	"github.com/LuckySoftware/Aletheia/internal/lifecycle"
	"github.com/LuckySoftware/Aletheia/internal/logger"
	"github.com/LuckySoftware/Aletheia/internal/model"
	"github.com/LuckySoftware/Aletheia/internal/notify"
	"github.com/LuckySoftware/Aletheia/internal/rules"
)

// Sink receives the run's persistent outputs. It is satisfied by the
// PostgreSQL store; a nil Sink turns persistence off for dry runs.
type Sink interface {
	SaveRaw(ctx context.Context, runID string, records []model.RawRecord) error
	SavePartition(ctx context.Context, runID string, p model.Partition) error
}

// RowSource yields the exclusion sheet rows. It is satisfied by the HTTP
// fetcher; tests substitute a fixed slice.
type RowSource interface {
	Fetch(ctx context.Context) ([]exclusion.Row, error)
}

// Runner wires one complete validation run: rules, exclusions, ingest,
// partition, persistence, reports, notification.
type Runner struct {
	cfg      *model.Config
	sink     Sink
	source   RowSource
	exporter *export.Writer
	notifier *notify.Notifier
}

// NewRunner builds a Runner from the configuration. The sink may be nil.
func NewRunner(cfg *model.Config, sink Sink) *Runner {
	return &Runner{
		cfg:      cfg,
		sink:     sink,
		source:   exclusion.NewFetcher(cfg.Exclusions),
		exporter: export.NewWriter(cfg.Export, cfg.Plant),
		notifier: notify.New(cfg.SMTP),
	}
}

// Run executes one batch and returns its summary. A rule definition error
// aborts before anything is read or written. Operators are notified of the
// outcome either way; mail delivery never changes the run's result.
func (r *Runner) Run(ctx context.Context) (model.RunReport, error) {
	report, err := r.run(ctx)
	if err != nil {
		if mailErr := r.notifier.SendFailure(report, err); mailErr != nil {
			logger.Error("failure mail failed", "run_id", report.RunID, "error", mailErr)
		}
		return report, err
	}
	if mailErr := r.notifier.SendReport(report); mailErr != nil {
		logger.Error("report mail failed", "run_id", report.RunID, "error", mailErr)
	}
	return report, nil
}

func (r *Runner) run(ctx context.Context) (model.RunReport, error) {
	report := model.RunReport{
		RunID:     uuid.NewString(),
		Plant:     r.cfg.Plant.Name,
		StartedAt: time.Now().UTC(),
	}
	log := logger.Logger.With("run_id", report.RunID, "plant", report.Plant)

	// Rule definitions gate the whole run. A batch must never be judged
	// against a rule set that failed to load.
	ruleSet, err := rules.LoadFile(r.cfg.Rules.Path, rules.LoadOptions{
		Columns:        r.cfg.Plant.Columns,
		NominalPowerKW: r.cfg.Plant.NominalPowerKW,
	})
	if err != nil {
		return report, fmt.Errorf("load rules: %w", err)
	}
	log.Info("rules loaded", "total", ruleSet.Len(), "enabled", ruleSet.EnabledCount())

	rows, err := r.source.Fetch(ctx)
	if err != nil {
		return report, fmt.Errorf("fetch exclusions: %w", err)
	}
	index, parseErrs := exclusion.Build(rows)
	for _, pe := range parseErrs {
		report.ParseWarnings = append(report.ParseWarnings, pe.Error())
		log.Warn("exclusion row rejected", "detail", pe.Error())
	}
	report.ExclusionChannels = index.ChannelCount()
	report.ExclusionWindows = index.WindowCount()
	log.Info("exclusion index built",
		"channels", report.ExclusionChannels, "windows", report.ExclusionWindows)

	reader := ingest.New(r.cfg.CSV, r.cfg.Plant)
	ingested, err := reader.ReadDir(r.cfg.CSV.Dir)
	if err != nil {
		return report, fmt.Errorf("ingest: %w", err)
	}
	for _, fe := range ingested.FileErrors {
		report.ParseWarnings = append(report.ParseWarnings, fe)
		log.Warn("export file rejected", "detail", fe)
	}
	report.FilesRead = ingested.FilesRead
	report.RowsIngested = len(ingested.Records)
	report.RowsSkipped = ingested.RowsSkipped
	log.Info("ingest complete", "files", report.FilesRead,
		"rows", report.RowsIngested, "skipped", report.RowsSkipped)

	if r.sink != nil {
		if err := r.sink.SaveRaw(ctx, report.RunID, ingested.Records); err != nil {
			return report, fmt.Errorf("persist raw data: %w", err)
		}
	}

	coord := lifecycle.New(engine.New(ruleSet, index, r.cfg.Concurrency.Workers))
	partition, err := coord.Run(ctx, ingested.Records)
	if err != nil {
		return report, fmt.Errorf("partition batch: %w", err)
	}
	report.CountPartition(partition)
	log.Info("batch partitioned",
		"duplicates", report.Duplicates, "excluded", report.Excluded,
		"validated", report.Validated, "errors", report.Errors)

	if r.sink != nil {
		if err := r.sink.SavePartition(ctx, report.RunID, partition); err != nil {
			return report, fmt.Errorf("persist partition: %w", err)
		}
	}

	if r.cfg.Export.Dir != "" {
		validatedPath, err := r.exporter.WriteValidated(partition.Validated, report.StartedAt)
		if err != nil {
			return report, fmt.Errorf("export validated report: %w", err)
		}
		errorsPath, err := r.exporter.WriteErrors(partition.Errors, report.StartedAt)
		if err != nil {
			return report, fmt.Errorf("export error report: %w", err)
		}
		log.Info("reports written", "validated", validatedPath, "errors", errorsPath)
	}

	report.FinishedAt = time.Now().UTC()
	return report, nil
}
