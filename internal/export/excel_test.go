package export

import (
	"testing"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/LuckySoftware/Aletheia/internal/model"
)

var testPlant = model.PlantConfig{
	Name:    "canahuate-i",
	Unit:    "main",
	Columns: []string{"col_1", "col_2"},
}

func testWriter(t *testing.T) *Writer {
	t.Helper()
	return NewWriter(model.ExportConfig{
		Dir: t.TempDir(),
		Headers: map[string]string{
			"col_1": "Irradiance [W/m2]",
		},
		WindowStart: "07:00",
		WindowEnd:   "19:00",
	}, testPlant)
}

func ts(t *testing.T, s string) time.Time {
	t.Helper()
	parsed, err := time.Parse("2006-01-02 15:04:05", s)
	if err != nil {
		t.Fatal(err)
	}
	return parsed
}

func validated(t *testing.T, s string, cells map[string]model.Cell) model.ValidatedRecord {
	t.Helper()
	return model.ValidatedRecord{Record: model.RawRecord{
		Plant: testPlant.Name, Unit: testPlant.Unit,
		Timestamp: ts(t, s), Columns: testPlant.Columns, Cells: cells,
	}}
}

func TestWriteValidated(t *testing.T) {
	w := testWriter(t)

	// Out of timestamp order on purpose.
	path, err := w.WriteValidated([]model.ValidatedRecord{
		validated(t, "2024-05-01 11:00:00", map[string]model.Cell{"col_1": "900", "col_2": "31"}),
		validated(t, "2024-05-01 10:00:00", map[string]model.Cell{"col_1": "850,5", "col_2": "30"}),
	}, ts(t, "2024-05-01 12:00:00"))
	if err != nil {
		t.Fatalf("WriteValidated failed: %v", err)
	}

	f, err := excelize.OpenFile(path)
	if err != nil {
		t.Fatalf("reopen workbook: %v", err)
	}
	defer func() { _ = f.Close() }()

	rows, err := f.GetRows("Validated")
	if err != nil {
		t.Fatalf("GetRows failed: %v", err)
	}
	if len(rows) != 3 {
		t.Fatalf("expected header + 2 rows, got %d", len(rows))
	}
	if rows[0][1] != "Irradiance [W/m2]" {
		t.Errorf("configured display header not applied: %v", rows[0])
	}
	if rows[0][2] != "col_2" {
		t.Errorf("unmapped column must fall back to its own name: %v", rows[0])
	}
	if rows[1][0] != "2024-05-01 10:00:00" {
		t.Errorf("rows must be sorted by timestamp: %v", rows[1])
	}
	if rows[1][1] != "850,5" {
		t.Errorf("cell value must be written verbatim: %v", rows[1])
	}
}

func TestWriteErrors_DaylightWindow(t *testing.T) {
	w := testWriter(t)

	mk := func(s string) model.ErrorRecord {
		rec := model.RawRecord{
			Plant: testPlant.Name, Unit: testPlant.Unit,
			Timestamp: ts(t, s), Columns: testPlant.Columns,
		}
		return model.ErrorRecord{
			Record: rec,
			Failures: []model.ValidationResult{{
				RecordKey: rec.Key(), Column: "col_1",
				RuleType: model.RuleRange, Observed: "999",
				Message: "out of range",
			}},
		}
	}

	path, err := w.WriteErrors([]model.ErrorRecord{
		mk("2024-05-01 03:00:00"), // before window, dropped
		mk("2024-05-01 07:00:00"), // window start is inclusive
		mk("2024-05-01 18:59:00"), // still inside
		mk("2024-05-01 19:00:00"), // window end is exclusive
	}, ts(t, "2024-05-01 20:00:00"))
	if err != nil {
		t.Fatalf("WriteErrors failed: %v", err)
	}

	f, err := excelize.OpenFile(path)
	if err != nil {
		t.Fatalf("reopen workbook: %v", err)
	}
	defer func() { _ = f.Close() }()

	rows, err := f.GetRows("Errors")
	if err != nil {
		t.Fatalf("GetRows failed: %v", err)
	}
	if len(rows) != 3 {
		t.Fatalf("expected header + 2 in-window rows, got %d", len(rows))
	}
	if rows[1][0] != "2024-05-01 07:00:00" || rows[2][0] != "2024-05-01 18:59:00" {
		t.Errorf("wrong rows survived the window filter: %v", rows[1:])
	}
	if rows[1][1] != "Irradiance [W/m2]" {
		t.Errorf("error rows must use display headers too: %v", rows[1])
	}
}

func TestWriteErrors_OneRowPerFailure(t *testing.T) {
	w := testWriter(t)

	rec := model.RawRecord{
		Plant: testPlant.Name, Unit: testPlant.Unit,
		Timestamp: ts(t, "2024-05-01 10:00:00"), Columns: testPlant.Columns,
	}
	er := model.ErrorRecord{
		Record: rec,
		Failures: []model.ValidationResult{
			{RecordKey: rec.Key(), Column: "col_1", RuleType: model.RuleRange, Observed: "999", Message: "out of range"},
			{RecordKey: rec.Key(), Column: "col_2", RuleType: model.RuleNotNull, Observed: "", Message: "missing"},
		},
	}

	path, err := w.WriteErrors([]model.ErrorRecord{er}, ts(t, "2024-05-01 20:00:00"))
	if err != nil {
		t.Fatalf("WriteErrors failed: %v", err)
	}

	f, err := excelize.OpenFile(path)
	if err != nil {
		t.Fatalf("reopen workbook: %v", err)
	}
	defer func() { _ = f.Close() }()

	rows, err := f.GetRows("Errors")
	if err != nil {
		t.Fatalf("GetRows failed: %v", err)
	}
	if len(rows) != 3 {
		t.Fatalf("each failing cell gets its own row: got %d rows", len(rows))
	}
}
