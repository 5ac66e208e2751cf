package model

import "time"

// RunReport summarizes one completed batch run. It is run metadata only:
// nothing in it ever leaks into the content of a record's own fields, so
// re-running an unchanged batch reproduces identical partitions.
type RunReport struct {
	RunID      string    `json:"run_id"`
	Plant      string    `json:"plant"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`

	FilesRead    int `json:"files_read"`
	RowsIngested int `json:"rows_ingested"`
	RowsSkipped  int `json:"rows_skipped"` // unparseable rows dropped at ingest

	Duplicates int `json:"duplicates"`
	Excluded   int `json:"excluded"` // fully excluded rows, audit total
	Validated  int `json:"validated"`
	Errors     int `json:"errors"`

	FailuresByRule map[string]int `json:"failures_by_rule,omitempty"` // "column/rule_type" -> count

	ExclusionChannels int      `json:"exclusion_channels"`
	ExclusionWindows  int      `json:"exclusion_windows"`
	ParseWarnings     []string `json:"parse_warnings,omitempty"` // rejected exclusion channels
}

// CountPartition fills the disposition counters from a finished partition.
func (r *RunReport) CountPartition(p Partition) {
	r.Duplicates = len(p.Duplicates)
	r.Excluded = len(p.Excluded)
	r.Validated = len(p.Validated)
	r.Errors = len(p.Errors)

	r.FailuresByRule = make(map[string]int)
	for _, er := range p.Errors {
		for _, f := range er.Failures {
			r.FailuresByRule[f.Column+"/"+string(f.RuleType)]++
		}
	}
}
