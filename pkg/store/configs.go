package store

import (
	"context"
	"database/sql"
	"fmt"
)

// ConfigRow is the persisted state of one CRDT config variant: its
// last dump and whether that dump has been confirmed pushed to the
// swarm yet (spec.md §4.6's needs_push/confirm_pushed cycle).
type ConfigRow struct {
	Variant string
	Dump    []byte
	Pushed  bool
}

// SaveConfigDump upserts a config variant's latest dump, marking it
// not-yet-pushed — callers call MarkConfigPushed once the swarm
// confirms the write.
func (s *Store) SaveConfigDump(ctx context.Context, variant string, dump []byte) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO configs(variant, dump, pushed) VALUES (?, ?, 0)
		 ON CONFLICT(variant) DO UPDATE SET dump = excluded.dump, pushed = 0`,
		variant, dump)
	if err != nil {
		return fmt.Errorf("store: save config dump %s: %w", variant, err)
	}
	s.notify("configs")
	return nil
}

// SaveConfigDumpsBatch upserts several config variants' dumps in a
// single transaction, all marked not-yet-pushed. A group subtree uses
// this to persist its Info, Members and Keys documents together after
// a merge, per spec.md §4.7 ("persists all three in a single
// transaction per change").
func (s *Store) SaveConfigDumpsBatch(ctx context.Context, dumps map[string][]byte) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("store: begin config batch: %w", err)
	}
	defer tx.Rollback()

	for variant, dump := range dumps {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO configs(variant, dump, pushed) VALUES (?, ?, 0)
			 ON CONFLICT(variant) DO UPDATE SET dump = excluded.dump, pushed = 0`,
			variant, dump); err != nil {
			return fmt.Errorf("store: save config dump %s: %w", variant, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("store: commit config batch: %w", err)
	}
	s.notify("configs")
	return nil
}

// MarkConfigPushed records that variant's current dump has been
// confirmed stored by the swarm.
func (s *Store) MarkConfigPushed(ctx context.Context, variant string) error {
	_, err := s.db.ExecContext(ctx, `UPDATE configs SET pushed = 1 WHERE variant = ?`, variant)
	if err != nil {
		return fmt.Errorf("store: mark config pushed %s: %w", variant, err)
	}
	s.notify("configs")
	return nil
}

// LoadConfig returns the persisted row for variant, or ok=false if
// nothing has been saved yet.
func (s *Store) LoadConfig(ctx context.Context, variant string) (row ConfigRow, ok bool, err error) {
	r := s.db.QueryRowContext(ctx, `SELECT variant, dump, pushed FROM configs WHERE variant = ?`, variant)
	var pushed int
	if err := r.Scan(&row.Variant, &row.Dump, &pushed); err != nil {
		if err == sql.ErrNoRows {
			return ConfigRow{}, false, nil
		}
		return ConfigRow{}, false, fmt.Errorf("store: load config %s: %w", variant, err)
	}
	row.Pushed = pushed != 0
	return row, true, nil
}

// NeedsPushVariants returns every variant whose last dump has not been
// confirmed pushed.
func (s *Store) NeedsPushVariants(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT variant FROM configs WHERE pushed = 0`)
	if err != nil {
		return nil, fmt.Errorf("store: needs-push query: %w", err)
	}
	defer rows.Close()

	var variants []string
	for rows.Next() {
		var v string
		if err := rows.Scan(&v); err != nil {
			return nil, err
		}
		variants = append(variants, v)
	}
	return variants, rows.Err()
}
