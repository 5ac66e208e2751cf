package pipeline

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/LuckySoftware/Aletheia/internal/exclusion"
	"github.com/LuckySoftware/Aletheia/internal/model"
)

type memorySink struct {
	raw       []model.RawRecord
	partition model.Partition
	runIDs    []string
}

func (m *memorySink) SaveRaw(_ context.Context, runID string, records []model.RawRecord) error {
	m.runIDs = append(m.runIDs, runID)
	m.raw = records
	return nil
}

func (m *memorySink) SavePartition(_ context.Context, runID string, p model.Partition) error {
	m.runIDs = append(m.runIDs, runID)
	m.partition = p
	return nil
}

type staticRows struct {
	rows []exclusion.Row
}

func (s *staticRows) Fetch(context.Context) ([]exclusion.Row, error) {
	return s.rows, nil
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

func testConfig(t *testing.T) *model.Config {
	t.Helper()
	dir := t.TempDir()

	csvDir := filepath.Join(dir, "csv")
	if err := os.Mkdir(csvDir, 0o755); err != nil {
		t.Fatal(err)
	}
	writeFile(t, filepath.Join(csvDir, "export.csv"),
		"TIMESTAMP;a;b\n"+
			"2024-05-01 10:00:00;50;60\n"+ // valid
			"2024-05-01 10:00:00;50;60\n"+ // duplicate
			"2024-05-01 11:00:00;999;60\n"+ // invalid on col_1
			"2024-06-01 09:00:00;1;2\n") // fully excluded

	rulesPath := filepath.Join(dir, "rules.json")
	writeFile(t, rulesPath, `[
		{"column": "col_1", "type": "range", "params": {"min": 0, "max": 100}},
		{"column": "col_2", "type": "range", "params": {"min": 0, "max": 100}}
	]`)

	cfg := model.DefaultConfig()
	cfg.Plant = model.PlantConfig{
		Name: "canahuate-i", Unit: "main",
		Columns: []string{"col_1", "col_2"},
	}
	cfg.CSV.Dir = csvDir
	cfg.CSV.Encoding = "utf-8"
	cfg.Rules.Path = rulesPath
	cfg.Export.Dir = filepath.Join(dir, "reports")
	cfg.Concurrency.Workers = 2
	return cfg
}

func testRunner(cfg *model.Config, sink Sink, rows []exclusion.Row) *Runner {
	r := NewRunner(cfg, sink)
	r.source = &staticRows{rows: rows}
	return r
}

func TestRun_EndToEnd(t *testing.T) {
	cfg := testConfig(t)
	sink := &memorySink{}
	r := testRunner(cfg, sink, []exclusion.Row{
		{Channel: "col_1", Start: "2024-06-01 00:00:00", End: "2024-06-02 00:00:00"},
		{Channel: "col_2", Start: "2024-06-01 00:00:00", End: "2024-06-02 00:00:00"},
	})

	report, err := r.Run(context.Background())
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	if report.RunID == "" {
		t.Error("report must carry a run id")
	}
	if report.FilesRead != 1 || report.RowsIngested != 4 {
		t.Errorf("unexpected ingest counters: %+v", report)
	}
	if report.Duplicates != 1 || report.Excluded != 1 || report.Validated != 1 || report.Errors != 1 {
		t.Errorf("unexpected disposition counts: %+v", report)
	}
	if report.FailuresByRule["col_1/range"] != 1 {
		t.Errorf("failure tally wrong: %v", report.FailuresByRule)
	}

	if len(sink.raw) != 4 {
		t.Errorf("raw batch must be persisted before partitioning, got %d rows", len(sink.raw))
	}
	if sink.partition.Total() != 4 {
		t.Errorf("persisted partition must cover every row, got %d", sink.partition.Total())
	}
	for _, id := range sink.runIDs {
		if id != report.RunID {
			t.Errorf("sink calls must share the run id: %v", sink.runIDs)
		}
	}

	for _, kind := range []string{"validated", "errors"} {
		name := "canahuate-i_" + kind + "_" + report.StartedAt.Format("2006-01-02") + ".xlsx"
		if _, err := os.Stat(filepath.Join(cfg.Export.Dir, name)); err != nil {
			t.Errorf("expected %s report: %v", kind, err)
		}
	}
}

func TestRun_BadRulesAbortBeforeAnythingIsWritten(t *testing.T) {
	cfg := testConfig(t)
	writeFile(t, cfg.Rules.Path, `[{"column": "col_1", "type": "range", "params": {"min": 100, "max": 0}}]`)

	sink := &memorySink{}
	if _, err := testRunner(cfg, sink, nil).Run(context.Background()); err == nil {
		t.Fatal("invalid rule set must abort the run")
	}
	if sink.raw != nil || sink.partition.Total() != 0 {
		t.Error("nothing may be persisted when the rules fail to load")
	}
}

func TestRun_ExclusionParseWarningsSurface(t *testing.T) {
	cfg := testConfig(t)
	sink := &memorySink{}
	r := testRunner(cfg, sink, []exclusion.Row{
		{Channel: "col_1", Start: "garbage", End: "2024-06-02 00:00:00"},
	})

	report, err := r.Run(context.Background())
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if len(report.ParseWarnings) != 1 {
		t.Errorf("rejected exclusion rows must be reported: %v", report.ParseWarnings)
	}
	if report.ExclusionChannels != 0 {
		t.Errorf("poisoned channel must not enter the index: %d", report.ExclusionChannels)
	}
}

func TestRun_NilSinkSkipsPersistence(t *testing.T) {
	cfg := testConfig(t)
	cfg.Export.Dir = ""

	report, err := testRunner(cfg, nil, nil).Run(context.Background())
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if report.RowsIngested != 4 {
		t.Errorf("dry run must still process the batch: %+v", report)
	}
}

func TestRun_Cancelled(t *testing.T) {
	cfg := testConfig(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := testRunner(cfg, nil, nil).Run(ctx); err == nil {
		t.Fatal("cancelled run must return an error")
	}
}
