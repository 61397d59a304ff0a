package capture

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/roach88/rowlog/internal/ir"
)

// ErrTxDone is returned by calls on a Tx that was committed or rolled back
// by its owner.
var ErrTxDone = errors.New("capture: transaction already finished")

// Tx is one capture transaction. Not safe for concurrent use.
type Tx struct {
	c  *Capturer
	tx *sql.Tx
	id string

	err      error // first failure; the transaction is already rolled back
	done     bool
	captured int
	last     int64 // sequence of the most recent entry
}

// ID returns the transaction id stamped on every entry it writes.
func (t *Tx) ID() string {
	return t.id
}

// Captured returns how many log entries the transaction has appended.
func (t *Tx) Captured() int {
	return t.captured
}

// LastSequence returns the sequence of the most recent entry the
// transaction appended, or 0 if it has appended none.
func (t *Tx) LastSequence() int64 {
	return t.last
}

// Err returns the failure that aborted the transaction, if any.
func (t *Tx) Err() error {
	return t.err
}

func (t *Tx) usable() error {
	if t.err != nil {
		return t.err
	}
	if t.done {
		return ErrTxDone
	}
	return nil
}

// fail rolls the transaction back and keeps err as its terminal state.
func (t *Tx) fail(err error) error {
	if rbErr := t.tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
		err = errors.Join(err, fmt.Errorf("rollback: %w", rbErr))
	}
	t.err = err
	t.done = true
	t.c.logger.Warn("capture transaction aborted", "tx_id", t.id, "error", err)
	return err
}

// Insert writes one row and returns the sequence of its log entry, or 0
// when capture is disabled for the table. Columns left out of values take
// the defaults of the physical table, and the logged new row includes them.
// Register checks that those match the catalog's declared defaults.
func (t *Tx) Insert(ctx context.Context, key ir.TableKey, values ir.Row) (int64, error) {
	if err := t.usable(); err != nil {
		return 0, err
	}
	h, err := t.c.Hook(key)
	if err != nil {
		return 0, t.fail(err)
	}

	newRow, err := h.insert(ctx, t.tx, values)
	if err != nil {
		return 0, t.fail(err)
	}
	pk, err := newRow.Project(h.schema.PrimaryKey)
	if err != nil {
		return 0, t.fail(ir.NewCaptureWriteError(key, "project primary key", err))
	}

	return t.capture(ctx, h, ir.LogEntry{
		OpType:     ir.OpInsert,
		PrimaryKey: pk,
		NewRow:     &newRow,
	})
}

// Update applies set to the row identified by pk. It reports false, and
// logs nothing, when no row has that key.
//
// set may name primary-key columns only to restate their current values;
// any change is rejected with PRIMARY_KEY_IMMUTABLE before the row is
// touched, whether or not capture is enabled.
func (t *Tx) Update(ctx context.Context, key ir.TableKey, pk ir.Row, set ir.Row) (bool, error) {
	if err := t.usable(); err != nil {
		return false, err
	}
	h, err := t.c.Hook(key)
	if err != nil {
		return false, t.fail(err)
	}

	keyArgs, err := h.keyArgs(pk)
	if err != nil {
		return false, t.fail(err)
	}
	if len(set) == 0 {
		return false, t.fail(ir.NewInvalidRowError(key, "update sets no columns"))
	}
	changes, err := h.normalize(set)
	if err != nil {
		return false, t.fail(err)
	}

	oldRow, found, err := h.load(ctx, t.tx, keyArgs)
	if err != nil {
		return false, t.fail(err)
	}
	if !found {
		return false, nil
	}
	if err := Guard(h.schema, oldRow, applySet(oldRow, changes.Map())); err != nil {
		return false, t.fail(err)
	}

	newRow, err := h.update(ctx, t.tx, keyArgs, changes)
	if err != nil {
		return false, t.fail(err)
	}
	pkImage, err := newRow.Project(h.schema.PrimaryKey)
	if err != nil {
		return false, t.fail(ir.NewCaptureWriteError(key, "project primary key", err))
	}

	if _, err := t.capture(ctx, h, ir.LogEntry{
		OpType:     ir.OpUpdate,
		PrimaryKey: pkImage,
		NewRow:     &newRow,
		OldRow:     &oldRow,
	}); err != nil {
		return false, err
	}
	return true, nil
}

// Delete removes the row identified by pk. It reports false, and logs
// nothing, when no row has that key.
func (t *Tx) Delete(ctx context.Context, key ir.TableKey, pk ir.Row) (bool, error) {
	if err := t.usable(); err != nil {
		return false, err
	}
	h, err := t.c.Hook(key)
	if err != nil {
		return false, t.fail(err)
	}

	keyArgs, err := h.keyArgs(pk)
	if err != nil {
		return false, t.fail(err)
	}
	oldRow, found, err := h.delete(ctx, t.tx, keyArgs)
	if err != nil {
		return false, t.fail(err)
	}
	if !found {
		return false, nil
	}
	pkImage, err := oldRow.Project(h.schema.PrimaryKey)
	if err != nil {
		return false, t.fail(ir.NewCaptureWriteError(key, "project primary key", err))
	}

	if _, err := t.capture(ctx, h, ir.LogEntry{
		OpType:     ir.OpDelete,
		PrimaryKey: pkImage,
		OldRow:     &oldRow,
	}); err != nil {
		return false, err
	}
	return true, nil
}

// Get reads a row through the transaction, observing its own writes.
func (t *Tx) Get(ctx context.Context, key ir.TableKey, pk ir.Row) (ir.RowImage, bool, error) {
	if err := t.usable(); err != nil {
		return nil, false, err
	}
	h, err := t.c.Hook(key)
	if err != nil {
		return nil, false, err
	}
	keyArgs, err := h.keyArgs(pk)
	if err != nil {
		return nil, false, err
	}
	return h.load(ctx, t.tx, keyArgs)
}

// SetCaptureEnabled changes the table's toggle inside this transaction.
// Later writes in the same transaction observe the new value; other
// transactions observe it once this one commits.
func (t *Tx) SetCaptureEnabled(ctx context.Context, key ir.TableKey, enabled bool) error {
	if err := t.usable(); err != nil {
		return err
	}
	if _, err := t.c.Hook(key); err != nil {
		return t.fail(err)
	}
	if err := t.c.toggles.SetEnabled(ctx, t.tx, key, enabled); err != nil {
		return t.fail(err)
	}
	return nil
}

// capture finishes a write: it reads the toggle through the transaction
// and, when enabled, appends the entry and runs the table's observers.
// Returns the assigned sequence, or 0 when capture is disabled.
func (t *Tx) capture(ctx context.Context, h *TableHook, entry ir.LogEntry) (int64, error) {
	key := h.schema.Key()

	enabled, err := t.c.toggles.IsEnabled(ctx, t.tx, key)
	if err != nil {
		return 0, t.fail(err)
	}
	if !enabled {
		t.c.logger.Debug("capture disabled, write not logged",
			"table", key.String(), "optype", entry.OpType, "tx_id", t.id)
		return 0, nil
	}

	entry.Namespace = key.Namespace
	entry.Table = key.Name
	entry.TxID = t.id
	entry.Timestamp = t.c.timestamp()

	seq, err := t.c.log.Append(ctx, t.tx, entry, h.schema.PrimaryKey)
	if err != nil {
		return 0, t.fail(err)
	}
	entry.Sequence = seq
	t.captured++
	t.last = seq

	if err := h.notify(ctx, entry); err != nil {
		return 0, t.fail(err)
	}

	t.c.logger.Debug("write captured",
		"table", key.String(), "optype", entry.OpType, "sequence", seq, "tx_id", t.id)
	return seq, nil
}

// Commit commits the base-table writes and their log entries together.
// If the transaction was aborted, Commit returns the original failure.
func (t *Tx) Commit() error {
	if err := t.usable(); err != nil {
		return err
	}
	t.done = true
	if err := t.tx.Commit(); err != nil {
		t.err = fmt.Errorf("commit capture tx: %w", err)
		t.c.logger.Warn("capture transaction commit failed", "tx_id", t.id, "error", err)
		return t.err
	}
	t.c.logger.Debug("capture transaction committed", "tx_id", t.id, "entries", t.captured)
	return nil
}

// Rollback discards every write and log entry of the transaction.
// Calling it after Commit, after an abort, or twice is a no-op.
func (t *Tx) Rollback() error {
	if t.done {
		return nil
	}
	t.done = true
	if err := t.tx.Rollback(); err != nil && !errors.Is(err, sql.ErrTxDone) {
		return fmt.Errorf("rollback capture tx: %w", err)
	}
	t.c.logger.Debug("capture transaction rolled back", "tx_id", t.id)
	return nil
}
