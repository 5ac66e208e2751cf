package lifecycle

import (
	"context"
	"fmt"

	"github.com/LuckySoftware/Aletheia/internal/dedupe"
	"github.com/LuckySoftware/Aletheia/internal/engine"
	"github.com/LuckySoftware/Aletheia/internal/model"
)

// Coordinator drives each raw record through the fixed state machine
//
//	RAW --duplicate-check--> UNIQUE --exclusion-check--> residual --rule-check--> VALID | INVALID
//
// Duplicate and exclusion status are resolved before any rule cost is paid.
// Every state is terminal within a run and every input record lands in
// exactly one disposition set.
type Coordinator struct {
	engine *engine.Engine
}

// New creates a coordinator over a prepared engine.
func New(eng *engine.Engine) *Coordinator {
	return &Coordinator{engine: eng}
}

// Run partitions the batch. Cancellation is honored between stages, never
// mid-row: an aborted run returns the context error and an empty partition,
// so no partial disposition can leak downstream.
func (c *Coordinator) Run(ctx context.Context, records []model.RawRecord) (model.Partition, error) {
	var p model.Partition

	if err := ctx.Err(); err != nil {
		return model.Partition{}, err
	}

	// Stage 1: duplicate check. Duplicates never reach the engine.
	unique, duplicates := dedupe.Partition(records)
	p.Duplicates = duplicates

	if err := ctx.Err(); err != nil {
		return model.Partition{}, err
	}

	// Stage 2: exclusion check. Rows with every column excluded are dropped
	// from rule evaluation but kept for the audit total.
	residual := make([]model.RawRecord, 0, len(unique))
	for _, rec := range unique {
		if c.engine.FullyExcluded(rec) {
			p.Excluded = append(p.Excluded, rec)
			continue
		}
		residual = append(residual, rec)
	}

	if err := ctx.Err(); err != nil {
		return model.Partition{}, err
	}

	// Stage 3: rule check. Disposition is per cell; the row is INVALID iff
	// any non-excluded column fails.
	resultSets, err := c.engine.EvaluateBatch(ctx, residual)
	if err != nil {
		return model.Partition{}, err
	}
	for i, rec := range residual {
		var passed, failed []model.ValidationResult
		for _, r := range resultSets[i] {
			if r.Passed {
				passed = append(passed, r)
			} else {
				failed = append(failed, r)
			}
		}

		if len(failed) == 0 {
			p.Validated = append(p.Validated, model.ValidatedRecord{Record: rec, Passed: passed})
		} else {
			p.Errors = append(p.Errors, model.ErrorRecord{Record: rec, Failures: failed, Passed: passed})
		}
	}

	if total := p.Total(); total != len(records) {
		// Partition disjointness is the engine's central invariant; a
		// mismatch here is a programming error, not a data condition.
		return model.Partition{}, fmt.Errorf("partition accounts for %d of %d records", total, len(records))
	}

	return p, nil
}
