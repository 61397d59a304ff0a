package oplog

import (
	"context"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func posInf() float64 { return math.Inf(1) }

func TestAcknowledge_Monotonic(t *testing.T) {
	l, s := newTestLog(t)
	ctx := context.Background()
	appendCommitted(t, l, s, insertEntry("1"), insertEntry("2"), insertEntry("3"))

	cursor, err := l.Cursor(ctx, s.DB(), "replicator")
	require.NoError(t, err)
	assert.Equal(t, int64(0), cursor, "unknown consumer starts at 0")

	require.NoError(t, l.Acknowledge(ctx, s.DB(), "replicator", 2))
	require.NoError(t, l.Acknowledge(ctx, s.DB(), "replicator", 1))

	cursor, err = l.Cursor(ctx, s.DB(), "replicator")
	require.NoError(t, err)
	assert.Equal(t, int64(2), cursor, "acknowledging a lower sequence is a no-op")

	require.NoError(t, l.Acknowledge(ctx, s.DB(), "replicator", 3))
	cursor, err = l.Cursor(ctx, s.DB(), "replicator")
	require.NoError(t, err)
	assert.Equal(t, int64(3), cursor)
}

func TestAcknowledge_ConsumersAreIndependent(t *testing.T) {
	l, s := newTestLog(t)
	ctx := context.Background()
	appendCommitted(t, l, s, insertEntry("1"), insertEntry("2"))

	require.NoError(t, l.Acknowledge(ctx, s.DB(), "a", 2))
	require.NoError(t, l.Acknowledge(ctx, s.DB(), "b", 1))

	a, err := l.Cursor(ctx, s.DB(), "a")
	require.NoError(t, err)
	b, err := l.Cursor(ctx, s.DB(), "b")
	require.NoError(t, err)
	assert.Equal(t, int64(2), a)
	assert.Equal(t, int64(1), b)
}

func TestAcknowledge_Rejects(t *testing.T) {
	l, s := newTestLog(t)
	ctx := context.Background()
	appendCommitted(t, l, s, insertEntry("1"))

	tests := []struct {
		name     string
		consumer string
		seq      int64
		errMsg   string
	}{
		{"empty consumer", "  ", 1, "consumer name is required"},
		{"negative", "c", -1, "negative sequence"},
		{"beyond end", "c", 2, "beyond the end of the log"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := l.Acknowledge(ctx, s.DB(), tt.consumer, tt.seq)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.errMsg)
		})
	}
}

func TestAcknowledge_DoesNotTrim(t *testing.T) {
	l, s := newTestLog(t)
	ctx := context.Background()
	appendCommitted(t, l, s, insertEntry("1"), insertEntry("2"))

	require.NoError(t, l.Acknowledge(ctx, s.DB(), "c", 2))

	entries, err := l.Read(ctx, s.DB(), 0, 0)
	require.NoError(t, err)
	assert.Len(t, entries, 2)
}
