package ingest

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"golang.org/x/text/encoding/charmap"

	"github.com/LuckySoftware/Aletheia/internal/model"
)

// timestampLayouts are the formats SCADA exports have been seen to use.
var timestampLayouts = []string{
	"2006-01-02 15:04:05",
	"02/01/2006 15:04:05",
	"2006-01-02T15:04:05",
	time.RFC3339,
	"2006-01-02 15:04",
}

// Result is the outcome of ingesting one directory of export files.
type Result struct {
	Records     []model.RawRecord
	FilesRead   int
	RowsSkipped int      // rows dropped for unparseable timestamps
	FileErrors  []string // files rejected wholesale (wrong shape, unreadable)
}

// Reader ingests SCADA CSV export files into raw records.
type Reader struct {
	csvCfg model.CSVConfig
	plant  model.PlantConfig
}

// New creates a Reader for the configured plant and file format.
func New(csvCfg model.CSVConfig, plant model.PlantConfig) *Reader {
	if csvCfg.Separator == "" {
		csvCfg.Separator = ";"
	}
	return &Reader{csvCfg: csvCfg, plant: plant}
}

// ReadDir ingests every .csv file in the directory in lexical order, so the
// derived input order is reproducible across runs. A malformed file is
// reported and skipped; the remaining files still load.
func (r *Reader) ReadDir(dir string) (*Result, error) {
	matches, err := filepath.Glob(filepath.Join(dir, "*.csv"))
	if err != nil {
		return nil, fmt.Errorf("scan csv directory: %w", err)
	}
	sort.Strings(matches)

	result := &Result{}
	for _, path := range matches {
		f, err := os.Open(path)
		if err != nil {
			result.FileErrors = append(result.FileErrors, fmt.Sprintf("%s: %v", path, err))
			continue
		}

		records, skipped, err := r.Read(f, filepath.Base(path))
		_ = f.Close()
		if err != nil {
			result.FileErrors = append(result.FileErrors, fmt.Sprintf("%s: %v", path, err))
			continue
		}

		result.Records = append(result.Records, records...)
		result.RowsSkipped += skipped
		result.FilesRead++
	}
	return result, nil
}

// Read ingests one export file: a single header line, then rows of
// timestamp followed by the plant's configured data columns. Rows whose
// timestamp does not parse are skipped and counted; a column-count mismatch
// rejects the whole file.
func (r *Reader) Read(reader io.Reader, source string) ([]model.RawRecord, int, error) {
	decoded, err := r.decode(reader)
	if err != nil {
		return nil, 0, err
	}

	cr := csv.NewReader(decoded)
	cr.Comma = rune(r.csvCfg.Separator[0])
	cr.FieldsPerRecord = 1 + len(r.plant.Columns)
	cr.TrimLeadingSpace = true

	// The export's header line carries display names, not the configured
	// column identifiers; it is skipped like the original loader did.
	if _, err := cr.Read(); err != nil {
		if err == io.EOF {
			return nil, 0, nil
		}
		// A header with the wrong field count surfaces here.
		return nil, 0, fmt.Errorf("read header: %w", err)
	}

	var records []model.RawRecord
	skipped := 0
	for {
		row, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, 0, fmt.Errorf("read row: %w", err)
		}

		ts, err := parseTimestamp(row[0])
		if err != nil {
			skipped++
			continue
		}

		cells := make(map[string]model.Cell, len(r.plant.Columns))
		for i, column := range r.plant.Columns {
			cells[column] = r.normalizeCell(row[i+1])
		}

		records = append(records, model.RawRecord{
			Plant:     r.plant.Name,
			Unit:      r.plant.Unit,
			Timestamp: ts,
			Columns:   r.plant.Columns,
			Cells:     cells,
			Source:    source,
		})
	}
	return records, skipped, nil
}

// decode wraps the reader with the configured character decoding.
func (r *Reader) decode(reader io.Reader) (io.Reader, error) {
	switch strings.ToLower(r.csvCfg.Encoding) {
	case "", "utf-8", "utf8":
		return reader, nil
	case "windows-1252", "cp1252":
		return charmap.Windows1252.NewDecoder().Reader(reader), nil
	default:
		return nil, fmt.Errorf("unsupported csv encoding %q", r.csvCfg.Encoding)
	}
}

// normalizeCell trims the raw field and optionally applies the legacy
// zero-to-blank rewrite kept for byte-compatible re-runs of old batches.
func (r *Reader) normalizeCell(raw string) model.Cell {
	cell := model.Cell(strings.TrimSpace(raw))
	if r.csvCfg.LegacyZeroAsBlank && !cell.IsBlank() {
		if v, err := cell.Float(); err == nil && v == 0 {
			return ""
		}
	}
	return cell
}

func parseTimestamp(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unparseable timestamp %q", s)
}
