package engine

import (
	"context"
	"fmt"

	"github.com/LuckySoftware/Aletheia/internal/exclusion"
	"github.com/LuckySoftware/Aletheia/internal/model"
	"github.com/LuckySoftware/Aletheia/internal/rules"
	"github.com/LuckySoftware/Aletheia/internal/worker"
)

// Engine evaluates records against an immutable rule set and exclusion
// index. Both snapshots are loaded before the run and never mutated during
// it, so evaluation is side-effect-free and safe to parallelize across rows.
type Engine struct {
	rules      *rules.Set
	exclusions *exclusion.Index
	workers    int
}

// New creates an engine over the given snapshots.
func New(ruleSet *rules.Set, exclusions *exclusion.Index, workers int) *Engine {
	if workers <= 0 {
		workers = 1
	}
	return &Engine{
		rules:      ruleSet,
		exclusions: exclusions,
		workers:    workers,
	}
}

// Evaluate classifies every cell of one record. Excluded cells emit no
// result at all: they are invisible to the valid/error partition. For the
// rest, every enabled rule of the cell's column is applied in declaration
// order and a result is emitted per rule, passing or failing.
func (e *Engine) Evaluate(record model.RawRecord) []model.ValidationResult {
	var results []model.ValidationResult
	for _, column := range record.Columns {
		if e.exclusions.IsExcluded(column, record.Timestamp) {
			continue
		}
		for _, rule := range e.rules.RulesFor(column) {
			results = append(results, applyRule(rule, record.Key(), column, record.Cell(column)))
		}
	}
	return results
}

// FullyExcluded reports whether every column of the record is inside an
// exclusion window at the record's timestamp. Such rows bypass rule
// evaluation entirely and are only counted for the audit total.
func (e *Engine) FullyExcluded(record model.RawRecord) bool {
	if len(record.Columns) == 0 {
		return false
	}
	for _, column := range record.Columns {
		if !e.exclusions.IsExcluded(column, record.Timestamp) {
			return false
		}
	}
	return true
}

// applyRule evaluates one rule against one cell. Rules are independent:
// range rules never flag blanks (that is not_null's job), and a non-numeric
// cell under a numeric rule fails with a "not numeric" result instead of
// aborting the run.
func applyRule(rule rules.Rule, key, column string, cell model.Cell) model.ValidationResult {
	result := model.ValidationResult{
		RecordKey: key,
		Column:    column,
		RuleType:  rule.Kind,
		Passed:    true,
		Observed:  cell,
	}

	switch rule.Kind {
	case model.RuleNotNull:
		if cell.IsBlank() {
			result.Passed = false
			result.Message = failMessage(rule, "value is missing")
		}

	case model.RuleRange:
		if cell.IsBlank() {
			return result
		}
		v, err := cell.Float()
		if err != nil {
			return notNumeric(result, cell)
		}
		if v < rule.Range.Min || v > rule.Range.Max {
			result.Passed = false
			result.Message = failMessage(rule,
				fmt.Sprintf("value %v outside range [%v, %v]", v, rule.Range.Min, rule.Range.Max))
		}

	case model.RuleNotPositiveInRange:
		if cell.IsBlank() {
			return result
		}
		v, err := cell.Float()
		if err != nil {
			return notNumeric(result, cell)
		}
		if v >= rule.Range.Min && v <= rule.Range.Max && v <= 0 {
			result.Passed = false
			result.Message = failMessage(rule,
				fmt.Sprintf("non-positive value %v inside operating band [%v, %v]",
					v, rule.Range.Min, rule.Range.Max))
		}
	}

	return result
}

func notNumeric(result model.ValidationResult, cell model.Cell) model.ValidationResult {
	result.Passed = false
	result.Message = fmt.Sprintf("not numeric: %q", string(cell))
	return result
}

func failMessage(rule rules.Rule, fallback string) string {
	if rule.Message != "" {
		return rule.Message
	}
	return fallback
}

// evalJob evaluates one record; the index restores input order afterwards.
type evalJob struct {
	idx    int
	record model.RawRecord
	engine *Engine
}

type evalResult struct {
	idx     int
	results []model.ValidationResult
}

func (r *evalResult) GetError() error { return nil }

func (j *evalJob) Execute(ctx context.Context) worker.Result {
	return &evalResult{idx: j.idx, results: j.engine.Evaluate(j.record)}
}

// EvaluateBatch evaluates records in parallel across the engine's workers.
// The returned slice is indexed like the input: out[i] holds record i's
// results, so downstream ordering stays reproducible. Cancellation is an
// error, never a silently empty result set: a caller must not mistake an
// aborted batch for one in which every cell passed.
func (e *Engine) EvaluateBatch(ctx context.Context, records []model.RawRecord) ([][]model.ValidationResult, error) {
	out := make([][]model.ValidationResult, len(records))
	if len(records) == 0 {
		return out, nil
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	pool := worker.NewPool(e.workers)
	pool.Start()

	for i, rec := range records {
		pool.Submit(&evalJob{idx: i, record: rec, engine: e})
	}

	for _, r := range pool.Wait() {
		er := r.(*evalResult)
		out[er.idx] = er.results
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return out, nil
}
