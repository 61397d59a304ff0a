// Package oplog is the append-only operation log.
//
// Entries are appended only from inside a caller's transaction: Append takes
// a *sql.Tx, so there is no way to write a log entry that is not part of the
// same atomic unit as the base-table write it documents.
//
// Sequences come from SQLite's AUTOINCREMENT rowid. Because every
// transaction starts with BEGIN IMMEDIATE (see package store), a transaction
// holds the write lock from its first statement until commit, and sequences
// are allocated in commit order.
//
// Readers page through the log with ScanFrom and record their progress with
// Acknowledge. The log itself is never trimmed here.
package oplog

import (
	"context"
	"database/sql"
	"fmt"
	"iter"
	"log/slog"

	"github.com/roach88/rowlog/internal/ir"
	"github.com/roach88/rowlog/internal/store"
)

// DefaultPageSize is the number of entries ScanFrom loads per query.
const DefaultPageSize = 256

// Log reads and writes the oplog table.
type Log struct {
	pageSize int
	logger   *slog.Logger
}

// Option configures a Log.
type Option func(*Log)

// WithPageSize sets how many entries ScanFrom loads per query.
func WithPageSize(n int) Option {
	return func(l *Log) {
		if n > 0 {
			l.pageSize = n
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(l *Log) {
		if logger != nil {
			l.logger = logger
		}
	}
}

// New creates a Log.
func New(opts ...Option) *Log {
	l := &Log{
		pageSize: DefaultPageSize,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Append writes entry inside tx and returns its sequence. pkColumns are the
// acting table's primary-key columns in declaration order; the entry's
// primary key must name exactly those.
// entry.Sequence is ignored. Any failure, including an entry whose shape
// violates the log invariants, is reported as CAPTURE_WRITE_FAILURE; the
// caller is expected to roll tx back.
func (l *Log) Append(ctx context.Context, tx *sql.Tx, entry ir.LogEntry, pkColumns []string) (int64, error) {
	key := entry.Key()
	if tx == nil {
		return 0, ir.NewCaptureWriteError(key, "append requires a transaction", nil)
	}
	if len(entry.PrimaryKey) == 0 {
		return 0, ir.NewCaptureWriteError(key, "entry has no primary key", nil)
	}
	if entry.TxID == "" {
		return 0, ir.NewCaptureWriteError(key, "entry has no transaction id", nil)
	}
	if err := entry.Validate(pkColumns); err != nil {
		return 0, ir.NewCaptureWriteError(key, "invalid entry", err)
	}

	pkJSON, err := entry.PrimaryKey.MarshalJSON()
	if err != nil {
		return 0, ir.NewCaptureWriteError(key, "encode primary key", err)
	}
	newJSON, err := marshalImage(entry.NewRow)
	if err != nil {
		return 0, ir.NewCaptureWriteError(key, "encode new row", err)
	}
	oldJSON, err := marshalImage(entry.OldRow)
	if err != nil {
		return 0, ir.NewCaptureWriteError(key, "encode old row", err)
	}

	var ts sql.NullInt64
	if entry.Timestamp != nil {
		ts = sql.NullInt64{Int64: *entry.Timestamp, Valid: true}
	}

	result, err := tx.ExecContext(ctx, `
		INSERT INTO oplog
		(namespace, tablename, optype, primary_key, new_row, old_row, timestamp, tx_id)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`,
		entry.Namespace,
		entry.Table,
		string(entry.OpType),
		string(pkJSON),
		newJSON,
		oldJSON,
		ts,
		entry.TxID,
	)
	if err != nil {
		return 0, ir.NewCaptureWriteError(key, "insert log entry", err)
	}

	seq, err := result.LastInsertId()
	if err != nil {
		return 0, ir.NewCaptureWriteError(key, "read assigned sequence", err)
	}

	l.logger.Debug("log entry appended",
		"sequence", seq,
		"table", key.String(),
		"optype", entry.OpType,
		"tx_id", entry.TxID,
	)
	return seq, nil
}

// marshalImage encodes an optional image; nil becomes SQL NULL.
func marshalImage(img *ir.RowImage) (sql.NullString, error) {
	if img == nil {
		return sql.NullString{}, nil
	}
	data, err := img.MarshalJSON()
	if err != nil {
		return sql.NullString{}, err
	}
	return sql.NullString{String: string(data), Valid: true}, nil
}

// Read returns up to limit entries with sequence > from, ascending.
// Returns an empty slice (not nil) when nothing follows from.
func (l *Log) Read(ctx context.Context, q store.Queryer, from int64, limit int) ([]ir.LogEntry, error) {
	if limit <= 0 {
		limit = l.pageSize
	}
	rows, err := q.QueryContext(ctx, `
		SELECT sequence, namespace, tablename, optype, primary_key, new_row, old_row, timestamp, tx_id
		FROM oplog
		WHERE sequence > ?
		ORDER BY sequence ASC
		LIMIT ?
	`, from, limit)
	if err != nil {
		return nil, fmt.Errorf("read oplog: %w", err)
	}
	return collectEntries(rows)
}

// ReadTx returns the entries written by one transaction, ascending.
func (l *Log) ReadTx(ctx context.Context, q store.Queryer, txID string) ([]ir.LogEntry, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT sequence, namespace, tablename, optype, primary_key, new_row, old_row, timestamp, tx_id
		FROM oplog
		WHERE tx_id = ?
		ORDER BY sequence ASC
	`, txID)
	if err != nil {
		return nil, fmt.Errorf("read oplog tx %s: %w", txID, err)
	}
	return collectEntries(rows)
}

// ScanFrom yields every entry with sequence > from in ascending order.
//
// Entries are loaded a page at a time and each page's rows are closed before
// any entry is yielded, so the consumer may use the same single-connection
// database inside the loop. The sequence is finite: entries committed after
// the last page was read are picked up by the next ScanFrom. Iteration stops
// at the first error, which is yielded once.
func (l *Log) ScanFrom(ctx context.Context, q store.Queryer, from int64) iter.Seq2[ir.LogEntry, error] {
	return func(yield func(ir.LogEntry, error) bool) {
		cursor := from
		for {
			if err := ctx.Err(); err != nil {
				yield(ir.LogEntry{}, err)
				return
			}

			page, err := l.Read(ctx, q, cursor, l.pageSize)
			if err != nil {
				yield(ir.LogEntry{}, err)
				return
			}
			for _, entry := range page {
				if !yield(entry, nil) {
					return
				}
				cursor = entry.Sequence
			}
			if len(page) < l.pageSize {
				return
			}
		}
	}
}

// Last returns the highest sequence in the log, or 0 when it is empty.
func (l *Log) Last(ctx context.Context, q store.Queryer) (int64, error) {
	var seq sql.NullInt64
	if err := q.QueryRowContext(ctx, `SELECT MAX(sequence) FROM oplog`).Scan(&seq); err != nil {
		return 0, fmt.Errorf("last sequence: %w", err)
	}
	if !seq.Valid {
		return 0, nil
	}
	return seq.Int64, nil
}

// collectEntries drains and closes rows.
func collectEntries(rows *sql.Rows) ([]ir.LogEntry, error) {
	defer rows.Close()

	entries := []ir.LogEntry{}
	for rows.Next() {
		entry, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate oplog: %w", err)
	}
	return entries, nil
}

func scanEntry(rows *sql.Rows) (ir.LogEntry, error) {
	var (
		entry  ir.LogEntry
		optype string
		pkJSON string
		newRow sql.NullString
		oldRow sql.NullString
		ts     sql.NullInt64
	)
	if err := rows.Scan(
		&entry.Sequence,
		&entry.Namespace,
		&entry.Table,
		&optype,
		&pkJSON,
		&newRow,
		&oldRow,
		&ts,
		&entry.TxID,
	); err != nil {
		return ir.LogEntry{}, fmt.Errorf("scan oplog entry: %w", err)
	}

	op, err := ir.ParseOpType(optype)
	if err != nil {
		return ir.LogEntry{}, fmt.Errorf("oplog entry %d: %w", entry.Sequence, err)
	}
	entry.OpType = op

	if err := entry.PrimaryKey.UnmarshalJSON([]byte(pkJSON)); err != nil {
		return ir.LogEntry{}, fmt.Errorf("oplog entry %d: primary key: %w", entry.Sequence, err)
	}
	if entry.NewRow, err = unmarshalImage(newRow); err != nil {
		return ir.LogEntry{}, fmt.Errorf("oplog entry %d: new row: %w", entry.Sequence, err)
	}
	if entry.OldRow, err = unmarshalImage(oldRow); err != nil {
		return ir.LogEntry{}, fmt.Errorf("oplog entry %d: old row: %w", entry.Sequence, err)
	}
	if ts.Valid {
		v := ts.Int64
		entry.Timestamp = &v
	}
	return entry, nil
}

func unmarshalImage(s sql.NullString) (*ir.RowImage, error) {
	if !s.Valid {
		return nil, nil
	}
	var img ir.RowImage
	if err := img.UnmarshalJSON([]byte(s.String)); err != nil {
		return nil, err
	}
	return &img, nil
}
