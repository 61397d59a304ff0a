package oplog

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/roach88/rowlog/internal/store"
)

// Acknowledge records that consumer has processed every entry up to and
// including seq. The watermark only moves forward: acknowledging a lower
// sequence than the stored one is a no-op. Acknowledging past the end of
// the log is rejected.
func (l *Log) Acknowledge(ctx context.Context, q store.Queryer, consumer string, seq int64) error {
	consumer = strings.TrimSpace(consumer)
	if consumer == "" {
		return fmt.Errorf("acknowledge: consumer name is required")
	}
	if seq < 0 {
		return fmt.Errorf("acknowledge %s: negative sequence %d", consumer, seq)
	}

	last, err := l.Last(ctx, q)
	if err != nil {
		return fmt.Errorf("acknowledge %s: %w", consumer, err)
	}
	if seq > last {
		return fmt.Errorf("acknowledge %s: sequence %d is beyond the end of the log (%d)", consumer, seq, last)
	}

	_, err = q.ExecContext(ctx, `
		INSERT INTO oplog_cursors (consumer, sequence)
		VALUES (?, ?)
		ON CONFLICT(consumer) DO UPDATE SET sequence = MAX(sequence, excluded.sequence)
	`, consumer, seq)
	if err != nil {
		return fmt.Errorf("acknowledge %s: %w", consumer, err)
	}

	l.logger.Debug("consumer acknowledged", "consumer", consumer, "sequence", seq)
	return nil
}

// Cursor returns the consumer's acknowledged sequence, or 0 if it has never
// acknowledged anything.
func (l *Log) Cursor(ctx context.Context, q store.Queryer, consumer string) (int64, error) {
	var seq int64
	err := q.QueryRowContext(ctx,
		`SELECT sequence FROM oplog_cursors WHERE consumer = ?`, strings.TrimSpace(consumer),
	).Scan(&seq)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("cursor %s: %w", consumer, err)
	}
	return seq, nil
}
