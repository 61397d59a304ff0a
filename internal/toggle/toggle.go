// Package toggle persists the per-table capture switches.
//
// Every read goes through the Queryer it is handed, normally the caller's
// transaction, so a toggle written earlier in the same transaction is
// observed. Nothing is cached between calls.
package toggle

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/roach88/rowlog/internal/ir"
	"github.com/roach88/rowlog/internal/store"
)

// Store reads and writes the capture_toggles table.
type Store struct {
	logger *slog.Logger
}

// New creates a toggle store. A nil logger uses slog.Default().
func New(logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{logger: logger}
}

// IsEnabled reports whether capture is on for a table.
// A table with no toggle row is enabled. A stored value other than 0 or 1
// yields a TOGGLE_READ_INCONSISTENCY error.
func (s *Store) IsEnabled(ctx context.Context, q store.Queryer, key ir.TableKey) (bool, error) {
	var raw int64
	err := q.QueryRowContext(ctx,
		`SELECT enabled FROM capture_toggles WHERE tablename = ?`, key.String(),
	).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return true, nil
	}
	if err != nil {
		return false, fmt.Errorf("read toggle %s: %w", key, err)
	}

	switch raw {
	case 0:
		return false, nil
	case 1:
		return true, nil
	default:
		return false, ir.NewToggleReadError(key, raw)
	}
}

// SetEnabled stores the toggle for a table, replacing any previous value.
// Repeating the same call is a no-op.
func (s *Store) SetEnabled(ctx context.Context, q store.Queryer, key ir.TableKey, enabled bool) error {
	_, err := q.ExecContext(ctx, `
		INSERT INTO capture_toggles (tablename, enabled)
		VALUES (?, ?)
		ON CONFLICT(tablename) DO UPDATE SET enabled = excluded.enabled
	`, key.String(), boolToInt(enabled))
	if err != nil {
		return fmt.Errorf("set toggle %s: %w", key, err)
	}
	s.logger.Info("capture toggle set", "table", key.String(), "enabled", enabled)
	return nil
}

// Register seeds the toggle for a newly captured table.
// An existing toggle is left untouched. Returns whether a row was inserted.
func (s *Store) Register(ctx context.Context, q store.Queryer, key ir.TableKey, enabled bool) (bool, error) {
	result, err := q.ExecContext(ctx, `
		INSERT INTO capture_toggles (tablename, enabled)
		VALUES (?, ?)
		ON CONFLICT(tablename) DO NOTHING
	`, key.String(), boolToInt(enabled))
	if err != nil {
		return false, fmt.Errorf("register toggle %s: %w", key, err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("register toggle %s: rows affected: %w", key, err)
	}
	if n > 0 {
		s.logger.Info("capture toggle registered", "table", key.String(), "enabled", enabled)
	}
	return n > 0, nil
}

// List returns every stored toggle ordered by table key.
func (s *Store) List(ctx context.Context, q store.Queryer) ([]ir.ToggleEntry, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT tablename, enabled FROM capture_toggles
		ORDER BY tablename COLLATE BINARY ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("list toggles: %w", err)
	}
	defer rows.Close()

	entries := []ir.ToggleEntry{}
	for rows.Next() {
		var name string
		var raw int64
		if err := rows.Scan(&name, &raw); err != nil {
			return nil, fmt.Errorf("list toggles: %w", err)
		}
		key, err := ir.ParseTableKey(name)
		if err != nil {
			return nil, fmt.Errorf("list toggles: %w", err)
		}
		if raw != 0 && raw != 1 {
			return nil, ir.NewToggleReadError(key, raw)
		}
		entries = append(entries, ir.ToggleEntry{Table: key, Enabled: raw == 1})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list toggles: %w", err)
	}
	return entries, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
