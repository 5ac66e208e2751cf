package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	_ "github.com/lib/pq"

	"github.com/LuckySoftware/Aletheia/internal/model"
)

// Stage names used for run completion markers. A crash mid-run leaves at
// most one sink without its marker, which is how a re-run detects and
// repairs an incomplete write.
const (
	StageRaw        = "raw"
	StageDuplicates = "duplicates"
	StageExcluded   = "excluded"
	StageValidated  = "validated"
	StageErrors     = "errors"
)

// Store persists run outputs to PostgreSQL. Each disposition sink is
// written in its own transaction together with its completion marker, so
// classification correctness never depends on persistence timing.
type Store struct {
	db *sql.DB
}

// Open connects to the configured database.
func Open(cfg model.DatabaseConfig) (*Store, error) {
	db, err := sql.Open("postgres", cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return &Store{db: db}, nil
}

// Close releases the connection pool.
func (s *Store) Close() error {
	return s.db.Close()
}

// withTx runs fn inside one transaction.
func (s *Store) withTx(ctx context.Context, fn func(*sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

func markStage(ctx context.Context, tx *sql.Tx, runID, stage string) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO run_stages (run_id, stage, completed_at)
		VALUES ($1, $2, NOW())
		ON CONFLICT (run_id, stage) DO NOTHING
	`, runID, stage)
	if err != nil {
		return fmt.Errorf("mark stage %s: %w", stage, err)
	}
	return nil
}

// StageComplete reports whether the given stage finished for the run.
func (s *Store) StageComplete(ctx context.Context, runID, stage string) (bool, error) {
	var exists bool
	err := s.db.QueryRowContext(ctx, `
		SELECT EXISTS(SELECT 1 FROM run_stages WHERE run_id = $1 AND stage = $2)
	`, runID, stage).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check stage %s: %w", stage, err)
	}
	return exists, nil
}

func cellsJSON(cells map[string]model.Cell) ([]byte, error) {
	data, err := json.Marshal(cells)
	if err != nil {
		return nil, fmt.Errorf("marshal cells: %w", err)
	}
	return data, nil
}

// SaveRaw persists the ingested batch. Record keys are primary keys and
// re-inserts are no-ops, so re-running an unchanged file set is idempotent.
func (s *Store) SaveRaw(ctx context.Context, runID string, records []model.RawRecord) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx, `
			INSERT INTO raw_data (record_key, plant, unit, ts, source, cells)
			VALUES ($1, $2, $3, $4, $5, $6)
			ON CONFLICT (record_key) DO NOTHING
		`)
		if err != nil {
			return fmt.Errorf("prepare raw insert: %w", err)
		}
		defer func() { _ = stmt.Close() }()

		for _, rec := range records {
			cells, err := cellsJSON(rec.Cells)
			if err != nil {
				return err
			}
			if _, err := stmt.ExecContext(ctx, rec.Key(), rec.Plant, rec.Unit,
				rec.Timestamp, rec.Source, cells); err != nil {
				return fmt.Errorf("insert raw %s: %w", rec.Key(), err)
			}
		}
		return markStage(ctx, tx, runID, StageRaw)
	})
}

// SaveDuplicates persists the quarantined duplicates.
func (s *Store) SaveDuplicates(ctx context.Context, runID string, duplicates []model.DuplicateRecord) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx, `
			INSERT INTO duplicated_data (record_key, kept_key, ts, source, cells)
			VALUES ($1, $2, $3, $4, $5)
		`)
		if err != nil {
			return fmt.Errorf("prepare duplicate insert: %w", err)
		}
		defer func() { _ = stmt.Close() }()

		for _, dup := range duplicates {
			cells, err := cellsJSON(dup.Record.Cells)
			if err != nil {
				return err
			}
			if _, err := stmt.ExecContext(ctx, dup.Record.Key(), dup.KeptKey,
				dup.Record.Timestamp, dup.Record.Source, cells); err != nil {
				return fmt.Errorf("insert duplicate %s: %w", dup.Record.Key(), err)
			}
		}
		return markStage(ctx, tx, runID, StageDuplicates)
	})
}

// SaveExcluded records the audit trail of fully excluded rows.
func (s *Store) SaveExcluded(ctx context.Context, runID string, records []model.RawRecord) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx, `
			INSERT INTO excluded_audit (record_key, ts, source)
			VALUES ($1, $2, $3)
			ON CONFLICT (record_key) DO NOTHING
		`)
		if err != nil {
			return fmt.Errorf("prepare excluded insert: %w", err)
		}
		defer func() { _ = stmt.Close() }()

		for _, rec := range records {
			if _, err := stmt.ExecContext(ctx, rec.Key(), rec.Timestamp, rec.Source); err != nil {
				return fmt.Errorf("insert excluded %s: %w", rec.Key(), err)
			}
		}
		return markStage(ctx, tx, runID, StageExcluded)
	})
}

// SaveValidated persists the clean partition.
func (s *Store) SaveValidated(ctx context.Context, runID string, records []model.ValidatedRecord) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx, `
			INSERT INTO validated_data (record_key, plant, unit, ts, cells)
			VALUES ($1, $2, $3, $4, $5)
			ON CONFLICT (record_key) DO NOTHING
		`)
		if err != nil {
			return fmt.Errorf("prepare validated insert: %w", err)
		}
		defer func() { _ = stmt.Close() }()

		for _, vr := range records {
			cells, err := cellsJSON(vr.Record.Cells)
			if err != nil {
				return err
			}
			if _, err := stmt.ExecContext(ctx, vr.Record.Key(), vr.Record.Plant,
				vr.Record.Unit, vr.Record.Timestamp, cells); err != nil {
				return fmt.Errorf("insert validated %s: %w", vr.Record.Key(), err)
			}
		}
		return markStage(ctx, tx, runID, StageValidated)
	})
}

// SaveErrors persists per-cell failures, one row per failing result.
func (s *Store) SaveErrors(ctx context.Context, runID string, records []model.ErrorRecord) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx, `
			INSERT INTO validation_error_by_rule (record_key, ts, column_name, rule_type, observed, message)
			VALUES ($1, $2, $3, $4, $5, $6)
			ON CONFLICT (record_key, column_name, rule_type) DO NOTHING
		`)
		if err != nil {
			return fmt.Errorf("prepare error insert: %w", err)
		}
		defer func() { _ = stmt.Close() }()

		for _, er := range records {
			for _, f := range er.Failures {
				if _, err := stmt.ExecContext(ctx, f.RecordKey, er.Record.Timestamp,
					f.Column, string(f.RuleType), string(f.Observed), f.Message); err != nil {
					return fmt.Errorf("insert error %s/%s: %w", f.RecordKey, f.Column, err)
				}
			}
		}
		return markStage(ctx, tx, runID, StageErrors)
	})
}

// SavePartition writes all four disposition sinks, each in its own
// transaction, in the fixed stage order.
func (s *Store) SavePartition(ctx context.Context, runID string, p model.Partition) error {
	if err := s.SaveDuplicates(ctx, runID, p.Duplicates); err != nil {
		return err
	}
	if err := s.SaveExcluded(ctx, runID, p.Excluded); err != nil {
		return err
	}
	if err := s.SaveValidated(ctx, runID, p.Validated); err != nil {
		return err
	}
	return s.SaveErrors(ctx, runID, p.Errors)
}
