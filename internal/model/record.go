package model

import (
	"strconv"
	"strings"
	"time"
)

// Cell is the raw string content of one column of a reading.
// SCADA exports use decimal commas, so "12,5" is a valid numeric cell.
type Cell string

// IsBlank reports whether the cell carries no value.
func (c Cell) IsBlank() bool {
	return strings.TrimSpace(string(c)) == ""
}

// Float parses the cell as a number, accepting a decimal comma.
func (c Cell) Float() (float64, error) {
	s := strings.TrimSpace(string(c))
	s = strings.Replace(s, ",", ".", 1)
	return strconv.ParseFloat(s, 64)
}

// RawRecord is one timestamped row of sensor readings for a plant unit.
type RawRecord struct {
	Plant     string          `json:"plant"`
	Unit      string          `json:"unit"`
	Timestamp time.Time       `json:"timestamp"`
	Columns   []string        `json:"columns"` // run-wide column order
	Cells     map[string]Cell `json:"cells"`   // keyed by column name
	Source    string          `json:"source,omitempty"` // originating file, metadata only
}

// Key derives the deterministic duplicate-detection identifier for the record.
// Two rows with the same plant, unit and timestamp are the same reading.
func (r RawRecord) Key() string {
	return r.Plant + "|" + r.Unit + "|" + r.Timestamp.UTC().Format(time.RFC3339)
}

// Cell returns the value of the named column; absent columns are blank.
func (r RawRecord) Cell(column string) Cell {
	return r.Cells[column]
}

// DuplicateRecord is a RawRecord whose key collides with an earlier record.
// It is terminal: duplicates never enter rule evaluation.
type DuplicateRecord struct {
	Record  RawRecord `json:"record"`
	KeptKey string    `json:"kept_key"` // key of the first-seen record that was retained
}

// ValidationResult is the outcome of evaluating one rule against one cell.
type ValidationResult struct {
	RecordKey string   `json:"record_key"`
	Column    string   `json:"column"`
	RuleType  RuleType `json:"rule_type"`
	Passed    bool     `json:"passed"`
	Observed  Cell     `json:"observed"`
	Message   string   `json:"message,omitempty"`
}

// RuleType identifies one of the closed set of rule kinds.
type RuleType string

const (
	RuleNotNull            RuleType = "not_null"
	RuleRange              RuleType = "range"
	RuleNotPositiveInRange RuleType = "not_positive_in_range"
)

// ValidatedRecord is a RawRecord for which every applicable, non-excluded
// rule passed, together with the results that attest to it.
type ValidatedRecord struct {
	Record RawRecord          `json:"record"`
	Passed []ValidationResult `json:"passed,omitempty"`
}

// ErrorRecord pairs a RawRecord with its failing results. Cells of the same
// row that passed are reported in Passed; disposition is per cell, not
// all-or-nothing per row.
type ErrorRecord struct {
	Record   RawRecord          `json:"record"`
	Failures []ValidationResult `json:"failures"`
	Passed   []ValidationResult `json:"passed,omitempty"`
}

// Disposition is the terminal classification of a record within one run.
type Disposition string

const (
	DispositionDuplicate Disposition = "duplicate"
	DispositionExcluded  Disposition = "excluded"
	DispositionValid     Disposition = "valid"
	DispositionInvalid   Disposition = "invalid"
)

// Partition is the complete, disjoint split of a batch. Every input record
// appears in exactly one of the four sets.
type Partition struct {
	Duplicates []DuplicateRecord `json:"duplicates"`
	Excluded   []RawRecord       `json:"excluded"` // fully excluded rows, kept for the audit count
	Validated  []ValidatedRecord `json:"validated"`
	Errors     []ErrorRecord     `json:"errors"`
}

// Total returns the number of input records accounted for by the partition.
func (p Partition) Total() int {
	return len(p.Duplicates) + len(p.Excluded) + len(p.Validated) + len(p.Errors)
}
