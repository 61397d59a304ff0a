package oplog

import (
	"context"
	"database/sql"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/rowlog/internal/ir"
	"github.com/roach88/rowlog/internal/store"
	"github.com/roach88/rowlog/internal/testutil"
)

func newTestLog(t *testing.T, opts ...Option) (*Log, *store.Store) {
	t.Helper()
	opts = append([]Option{WithLogger(testutil.DiscardLogger())}, opts...)
	return New(opts...), testutil.OpenStore(t)
}

var itemsPK = []string{"id"}

func insertEntry(id string) ir.LogEntry {
	img := ir.RowImage{
		ir.F("id", ir.IRString(id)),
		ir.F("content", ir.IRString("hello")),
		ir.F("intvalue_null", ir.Null),
		ir.F("intvalue_null_default", ir.IRInt(10)),
	}
	return ir.LogEntry{
		Namespace:  "main",
		Table:      "items",
		OpType:     ir.OpInsert,
		PrimaryKey: ir.RowImage{ir.F("id", ir.IRString(id))},
		NewRow:     &img,
		TxID:       "tx-" + id,
	}
}

// appendCommitted appends entries in one committed transaction.
func appendCommitted(t *testing.T, l *Log, s *store.Store, entries ...ir.LogEntry) []int64 {
	t.Helper()
	var seqs []int64
	err := s.WithTx(context.Background(), func(tx *sql.Tx) error {
		for _, e := range entries {
			seq, err := l.Append(context.Background(), tx, e, itemsPK)
			if err != nil {
				return err
			}
			seqs = append(seqs, seq)
		}
		return nil
	})
	require.NoError(t, err)
	return seqs
}

func TestAppend_AssignsIncreasingSequences(t *testing.T) {
	l, s := newTestLog(t)

	seqs := appendCommitted(t, l, s, insertEntry("1"), insertEntry("2"))
	seqs = append(seqs, appendCommitted(t, l, s, insertEntry("3"))...)

	assert.Equal(t, []int64{1, 2, 3}, seqs)

	last, err := l.Last(context.Background(), s.DB())
	require.NoError(t, err)
	assert.Equal(t, int64(3), last)
}

func TestAppend_RolledBackEntryIsInvisible(t *testing.T) {
	l, s := newTestLog(t)
	ctx := context.Background()

	tx, err := s.DB().BeginTx(ctx, nil)
	require.NoError(t, err)
	_, err = l.Append(ctx, tx, insertEntry("1"), itemsPK)
	require.NoError(t, err)
	require.NoError(t, tx.Rollback())

	entries, err := l.Read(ctx, s.DB(), 0, 10)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestAppend_RejectsInvalidEntries(t *testing.T) {
	l, s := newTestLog(t)
	ctx := context.Background()

	noTx := insertEntry("1")
	noTx.TxID = ""
	withOld := insertEntry("1")
	withOld.OldRow = withOld.NewRow
	noPK := insertEntry("1")
	noPK.PrimaryKey = nil
	nan := insertEntry("1")
	bad := ir.RowImage{ir.F("id", ir.IRString("1")), ir.F("score", ir.IRReal(posInf()))}
	nan.NewRow = &bad
	wrongKey := insertEntry("1")
	wrongKey.PrimaryKey = ir.RowImage{ir.F("content", ir.IRString("hello"))}
	extraKey := insertEntry("1")
	extraKey.PrimaryKey = ir.RowImage{ir.F("id", ir.IRString("1")), ir.F("content", ir.IRString("hello"))}

	tests := []struct {
		name  string
		entry ir.LogEntry
	}{
		{"missing tx id", noTx},
		{"insert with old row", withOld},
		{"missing primary key", noPK},
		{"unencodable value", nan},
		{"primary key on non-key column", wrongKey},
		{"primary key with extra column", extraKey},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tx, err := s.DB().BeginTx(ctx, nil)
			require.NoError(t, err)
			defer tx.Rollback()

			_, err = l.Append(ctx, tx, tt.entry, itemsPK)
			require.Error(t, err)
			assert.True(t, ir.IsCaptureWriteFailure(err), "got %v", err)
		})
	}

	_, err := l.Append(ctx, nil, insertEntry("1"), itemsPK)
	assert.True(t, ir.IsCaptureWriteFailure(err))
}

func TestRead_RoundTripsEntries(t *testing.T) {
	l, s := newTestLog(t)
	ctx := context.Background()

	old := ir.RowImage{
		ir.F("id", ir.IRString("1")),
		ir.F("content", ir.IRString("before")),
		ir.F("blob", ir.IRBlob{0x00, 0xff}),
		ir.F("score", ir.IRReal(2)),
	}
	updated := ir.RowImage{
		ir.F("id", ir.IRString("1")),
		ir.F("content", ir.IRString("after <b>")),
		ir.F("blob", ir.Null),
		ir.F("score", ir.IRReal(2.5)),
	}
	ts := int64(1700000000000)
	update := ir.LogEntry{
		Namespace:  "main",
		Table:      "items",
		OpType:     ir.OpUpdate,
		PrimaryKey: ir.RowImage{ir.F("id", ir.IRString("1"))},
		NewRow:     &updated,
		OldRow:     &old,
		Timestamp:  &ts,
		TxID:       "tx-update",
	}
	del := ir.LogEntry{
		Namespace:  "main",
		Table:      "items",
		OpType:     ir.OpDelete,
		PrimaryKey: ir.RowImage{ir.F("id", ir.IRString("1"))},
		OldRow:     &updated,
		TxID:       "tx-update",
	}
	appendCommitted(t, l, s, update, del)

	entries, err := l.Read(ctx, s.DB(), 0, 0)
	require.NoError(t, err)
	require.Len(t, entries, 2)

	got := entries[0]
	assert.Equal(t, int64(1), got.Sequence)
	assert.Equal(t, ir.OpUpdate, got.OpType)
	require.NotNil(t, got.NewRow)
	require.NotNil(t, got.OldRow)
	assert.True(t, updated.Equal(*got.NewRow), "new row: %v", *got.NewRow)
	assert.True(t, old.Equal(*got.OldRow), "old row: %v", *got.OldRow)
	require.NotNil(t, got.Timestamp)
	assert.Equal(t, ts, *got.Timestamp)

	got = entries[1]
	assert.Equal(t, ir.OpDelete, got.OpType)
	assert.Nil(t, got.NewRow)
	assert.Nil(t, got.Timestamp)

	byTx, err := l.ReadTx(ctx, s.DB(), "tx-update")
	require.NoError(t, err)
	assert.Len(t, byTx, 2)
}

func TestRead_StoredImagesKeepColumnOrder(t *testing.T) {
	l, s := newTestLog(t)
	appendCommitted(t, l, s, insertEntry("1"))

	var raw string
	err := s.DB().QueryRow(`SELECT new_row FROM oplog WHERE sequence = 1`).Scan(&raw)
	require.NoError(t, err)
	assert.Equal(t, `{"id":"1","content":"hello","intvalue_null":null,"intvalue_null_default":10}`, raw)
}

func TestScanFrom_PagesInOrder(t *testing.T) {
	l, s := newTestLog(t, WithPageSize(3))
	ctx := context.Background()

	var entries []ir.LogEntry
	for i := 1; i <= 10; i++ {
		entries = append(entries, insertEntry(fmt.Sprint(i)))
	}
	appendCommitted(t, l, s, entries...)

	var seqs []int64
	for entry, err := range l.ScanFrom(ctx, s.DB(), 4) {
		require.NoError(t, err)
		seqs = append(seqs, entry.Sequence)
	}
	assert.Equal(t, []int64{5, 6, 7, 8, 9, 10}, seqs)
}

func TestScanFrom_RestartableAndFinite(t *testing.T) {
	l, s := newTestLog(t, WithPageSize(2))
	ctx := context.Background()
	appendCommitted(t, l, s, insertEntry("1"), insertEntry("2"), insertEntry("3"))

	count := func(from int64) int {
		n := 0
		for _, err := range l.ScanFrom(ctx, s.DB(), from) {
			require.NoError(t, err)
			n++
		}
		return n
	}
	assert.Equal(t, 3, count(0))
	assert.Equal(t, 3, count(0), "scanning again yields the same entries")
	assert.Equal(t, 0, count(3))
	assert.Equal(t, 0, count(100))
}

func TestScanFrom_ConsumerMayQueryInsideLoop(t *testing.T) {
	l, s := newTestLog(t, WithPageSize(2))
	ctx := context.Background()
	appendCommitted(t, l, s, insertEntry("1"), insertEntry("2"), insertEntry("3"))

	for entry, err := range l.ScanFrom(ctx, s.DB(), 0) {
		require.NoError(t, err)
		require.NoError(t, l.Acknowledge(ctx, s.DB(), "worker", entry.Sequence))
	}
	cursor, err := l.Cursor(ctx, s.DB(), "worker")
	require.NoError(t, err)
	assert.Equal(t, int64(3), cursor)
}

func TestScanFrom_EarlyBreak(t *testing.T) {
	l, s := newTestLog(t, WithPageSize(2))
	ctx := context.Background()
	appendCommitted(t, l, s, insertEntry("1"), insertEntry("2"), insertEntry("3"))

	var seqs []int64
	for entry, err := range l.ScanFrom(ctx, s.DB(), 0) {
		require.NoError(t, err)
		seqs = append(seqs, entry.Sequence)
		if len(seqs) == 2 {
			break
		}
	}
	assert.Equal(t, []int64{1, 2}, seqs)
}

func TestScanFrom_CanceledContext(t *testing.T) {
	l, s := newTestLog(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	var errs []error
	for _, err := range l.ScanFrom(ctx, s.DB(), 0) {
		errs = append(errs, err)
	}
	require.Len(t, errs, 1)
	assert.ErrorIs(t, errs[0], context.Canceled)
}

func TestLast_EmptyLog(t *testing.T) {
	l, s := newTestLog(t)

	last, err := l.Last(context.Background(), s.DB())
	require.NoError(t, err)
	assert.Equal(t, int64(0), last)
}
