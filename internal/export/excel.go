package export

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/LuckySoftware/Aletheia/internal/model"
)

const timestampHeader = "TIMESTAMP"

// Writer renders run output as Excel workbooks for operator review.
type Writer struct {
	cfg   model.ExportConfig
	plant model.PlantConfig
}

// NewWriter creates a Writer for the configured plant.
func NewWriter(cfg model.ExportConfig, plant model.PlantConfig) *Writer {
	if cfg.WindowStart == "" {
		cfg.WindowStart = "07:00"
	}
	if cfg.WindowEnd == "" {
		cfg.WindowEnd = "19:00"
	}
	return &Writer{cfg: cfg, plant: plant}
}

// header returns the display name for a column, falling back to the
// column identifier itself.
func (w *Writer) header(column string) string {
	if h, ok := w.cfg.Headers[column]; ok && h != "" {
		return h
	}
	return column
}

// WriteValidated writes the clean partition, one row per record in
// timestamp order, and returns the file path.
func (w *Writer) WriteValidated(records []model.ValidatedRecord, runDate time.Time) (string, error) {
	f := excelize.NewFile()
	defer func() { _ = f.Close() }()

	const sheet = "Validated"
	f.SetSheetName("Sheet1", sheet)

	headers := []interface{}{timestampHeader}
	for _, col := range w.plant.Columns {
		headers = append(headers, w.header(col))
	}
	if err := f.SetSheetRow(sheet, "A1", &headers); err != nil {
		return "", fmt.Errorf("write header: %w", err)
	}

	sorted := make([]model.ValidatedRecord, len(records))
	copy(sorted, records)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].Record.Timestamp.Before(sorted[j].Record.Timestamp)
	})

	for i, vr := range sorted {
		row := []interface{}{vr.Record.Timestamp.Format("2006-01-02 15:04:05")}
		for _, col := range w.plant.Columns {
			row = append(row, string(vr.Record.Cell(col)))
		}
		cell, _ := excelize.CoordinatesToCellName(1, i+2)
		if err := f.SetSheetRow(sheet, cell, &row); err != nil {
			return "", fmt.Errorf("write row %d: %w", i+2, err)
		}
	}

	return w.save(f, "validated", runDate)
}

// WriteErrors writes one row per failing cell, limited to the daylight
// review window, and returns the file path. Failures outside the window
// stay in the database; the workbook is the operator's review queue, not
// the audit record.
func (w *Writer) WriteErrors(records []model.ErrorRecord, runDate time.Time) (string, error) {
	start, err := parseClock(w.cfg.WindowStart)
	if err != nil {
		return "", fmt.Errorf("window_start: %w", err)
	}
	end, err := parseClock(w.cfg.WindowEnd)
	if err != nil {
		return "", fmt.Errorf("window_end: %w", err)
	}

	f := excelize.NewFile()
	defer func() { _ = f.Close() }()

	const sheet = "Errors"
	f.SetSheetName("Sheet1", sheet)

	headers := []interface{}{timestampHeader, "Column", "Rule", "Observed", "Message"}
	if err := f.SetSheetRow(sheet, "A1", &headers); err != nil {
		return "", fmt.Errorf("write header: %w", err)
	}

	sorted := make([]model.ErrorRecord, len(records))
	copy(sorted, records)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].Record.Timestamp.Before(sorted[j].Record.Timestamp)
	})

	rowNum := 2
	for _, er := range sorted {
		if !inWindow(er.Record.Timestamp, start, end) {
			continue
		}
		for _, fail := range er.Failures {
			row := []interface{}{
				er.Record.Timestamp.Format("2006-01-02 15:04:05"),
				w.header(fail.Column),
				string(fail.RuleType),
				string(fail.Observed),
				fail.Message,
			}
			cell, _ := excelize.CoordinatesToCellName(1, rowNum)
			if err := f.SetSheetRow(sheet, cell, &row); err != nil {
				return "", fmt.Errorf("write row %d: %w", rowNum, err)
			}
			rowNum++
		}
	}

	return w.save(f, "errors", runDate)
}

func (w *Writer) save(f *excelize.File, kind string, runDate time.Time) (string, error) {
	if err := os.MkdirAll(w.cfg.Dir, 0o755); err != nil {
		return "", fmt.Errorf("create export directory: %w", err)
	}
	name := fmt.Sprintf("%s_%s_%s.xlsx", w.plant.Name, kind, runDate.Format("2006-01-02"))
	path := filepath.Join(w.cfg.Dir, name)
	if err := f.SaveAs(path); err != nil {
		return "", fmt.Errorf("save workbook: %w", err)
	}
	return path, nil
}

// parseClock parses an "HH:MM" wall-clock boundary into minutes since
// midnight.
func parseClock(s string) (int, error) {
	t, err := time.Parse("15:04", s)
	if err != nil {
		return 0, fmt.Errorf("invalid clock time %q", s)
	}
	return t.Hour()*60 + t.Minute(), nil
}

// inWindow reports whether the timestamp's wall-clock time falls in
// [start, end) minutes since midnight.
func inWindow(ts time.Time, start, end int) bool {
	m := ts.Hour()*60 + ts.Minute()
	return m >= start && m < end
}
