package harness

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/rowlog/internal/catalog"
	"github.com/roach88/rowlog/internal/ir"
	"github.com/roach88/rowlog/internal/store"
	"github.com/roach88/rowlog/internal/testutil"
)

func sampleLog() []ir.LogEntry {
	oldRow := ir.RowImage{ir.F("id", ir.IRString("1")), ir.F("content", ir.IRString("a"))}
	newRow := ir.RowImage{ir.F("id", ir.IRString("1")), ir.F("content", ir.IRString("b"))}
	pairRow := ir.RowImage{ir.F("a", ir.IRString("x")), ir.F("b", ir.IRInt(2)), ir.F("active", ir.IRBool(true))}
	return []ir.LogEntry{
		{Sequence: 1, Namespace: "main", Table: "items", OpType: ir.OpInsert,
			PrimaryKey: ir.RowImage{ir.F("id", ir.IRString("1"))}, NewRow: &oldRow},
		{Sequence: 2, Namespace: "main", Table: "items", OpType: ir.OpUpdate,
			PrimaryKey: ir.RowImage{ir.F("id", ir.IRString("1"))}, NewRow: &newRow, OldRow: &oldRow},
		{Sequence: 3, Namespace: "audit", Table: "pairs", OpType: ir.OpDelete,
			PrimaryKey: ir.RowImage{ir.F("a", ir.IRString("x")), ir.F("b", ir.IRInt(2))}, OldRow: &pairRow},
	}
}

func loadTestCatalog(t *testing.T) *catalog.Catalog {
	t.Helper()
	cat, err := catalog.LoadFile(testCatalog)
	require.NoError(t, err)
	return cat
}

func TestAssertLogCount(t *testing.T) {
	log := sampleLog()
	assert.NoError(t, assertLogCount(log, Assertion{Type: AssertLogCount, Count: 3}))

	err := assertLogCount(log, Assertion{Type: AssertLogCount, Count: 2})
	var ae *AssertionError
	require.ErrorAs(t, err, &ae)
	assert.Equal(t, "2 entries", ae.Expected)
	assert.Equal(t, "3 entries", ae.Actual)
	assert.Contains(t, err.Error(), "Full log:")
	assert.Contains(t, err.Error(), `[3] DELETE audit.pairs pk={"a":"x","b":2}`)
}

func TestAssertLogOrder(t *testing.T) {
	log := sampleLog()

	tests := []struct {
		name    string
		entries []string
		wantErr bool
	}{
		{"exact", []string{"INSERT main.items", "UPDATE main.items", "DELETE audit.pairs"}, false},
		{"extra spaces", []string{" INSERT main.items", "UPDATE main.items ", "DELETE audit.pairs"}, false},
		{"wrong order", []string{"UPDATE main.items", "INSERT main.items", "DELETE audit.pairs"}, true},
		{"missing entry", []string{"INSERT main.items", "UPDATE main.items"}, true},
		{"wrong table", []string{"INSERT main.items", "UPDATE main.items", "DELETE main.pairs"}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := assertLogOrder(log, Assertion{Type: AssertLogOrder, Entries: tt.entries})
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestAssertLogContains(t *testing.T) {
	log := sampleLog()
	cat := loadTestCatalog(t)

	tests := []struct {
		name      string
		assertion Assertion
		wantErr   bool
	}{
		{
			name:      "by key only",
			assertion: Assertion{Table: "main.items", OpType: "INSERT", Key: map[string]any{"id": "1"}},
		},
		{
			name:      "key coerced to column type",
			assertion: Assertion{Table: "main.items", OpType: "INSERT", Key: map[string]any{"id": 1}},
		},
		{
			name: "both images",
			assertion: Assertion{Table: "main.items", OpType: "UPDATE",
				OldRow: map[string]any{"content": "a"}, NewRow: map[string]any{"content": "b"}},
		},
		{
			name: "composite key",
			assertion: Assertion{Table: "audit.pairs", OpType: "DELETE",
				Key: map[string]any{"a": "x", "b": "2"}, OldRow: map[string]any{"active": true}},
		},
		{
			name:      "partial key does not match",
			assertion: Assertion{Table: "audit.pairs", OpType: "DELETE", Key: map[string]any{"a": "x"}},
			wantErr:   true,
		},
		{
			name:      "wrong image value",
			assertion: Assertion{Table: "main.items", OpType: "UPDATE", NewRow: map[string]any{"content": "a"}},
			wantErr:   true,
		},
		{
			name:      "image absent",
			assertion: Assertion{Table: "main.items", OpType: "INSERT", OldRow: map[string]any{"content": "a"}},
			wantErr:   true,
		},
		{
			name:      "unknown column",
			assertion: Assertion{Table: "main.items", OpType: "INSERT", NewRow: map[string]any{"nope": 1}},
			wantErr:   true,
		},
		{
			name:      "unknown table",
			assertion: Assertion{Table: "main.ghost", OpType: "INSERT"},
			wantErr:   true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.assertion.Type = AssertLogContains
			err := assertLogContains(log, tt.assertion, cat)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestAssertFinalState(t *testing.T) {
	ctx := context.Background()
	cat := loadTestCatalog(t)
	s := testutil.OpenStore(t)
	for _, schema := range cat.Tables() {
		require.NoError(t, store.CreateTable(ctx, s.DB(), schema))
	}
	_, err := s.DB().Exec(`INSERT INTO "main"."items" (id, content) VALUES ('1', 'hello')`)
	require.NoError(t, err)
	_, err = s.DB().Exec(`INSERT INTO "main"."audit__pairs" (a, b, active) VALUES ('x', 2, 1)`)
	require.NoError(t, err)

	tests := []struct {
		name      string
		assertion Assertion
		wantErr   string
	}{
		{
			name: "matching row",
			assertion: Assertion{Table: "main.items", Where: map[string]any{"id": "1"},
				Expect: map[string]any{"content": "hello", "intvalue_null": nil, "intvalue_null_default": 10}},
		},
		{
			name:      "namespaced composite key",
			assertion: Assertion{Table: "audit.pairs", Where: map[string]any{"a": "x", "b": 2}, Expect: map[string]any{"active": true}},
		},
		{
			name:      "absent row",
			assertion: Assertion{Table: "main.items", Where: map[string]any{"id": "2"}, Absent: true},
		},
		{
			name:      "row not found",
			assertion: Assertion{Table: "main.items", Where: map[string]any{"id": "2"}, Expect: map[string]any{"content": "x"}},
			wantErr:   "row not found",
		},
		{
			name:      "unexpected row",
			assertion: Assertion{Table: "main.items", Where: map[string]any{"id": "1"}, Absent: true},
			wantErr:   "no row in main.items",
		},
		{
			name:      "value mismatch",
			assertion: Assertion{Table: "main.items", Where: map[string]any{"id": "1"}, Expect: map[string]any{"content": "bye"}},
			wantErr:   `"content":"hello"`,
		},
		{
			name:      "unknown where column",
			assertion: Assertion{Table: "main.items", Where: map[string]any{"id; DROP TABLE oplog": "1"}, Absent: true},
			wantErr:   "unknown column",
		},
		{
			name:      "unknown table",
			assertion: Assertion{Table: "main.ghost", Where: map[string]any{"id": "1"}, Absent: true},
			wantErr:   "UNKNOWN_TABLE",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.assertion.Type = AssertFinalState
			err := assertFinalState(ctx, s.DB(), cat, tt.assertion)
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestEvaluateAssertions(t *testing.T) {
	result := NewResult()
	result.Log = sampleLog()

	errs := EvaluateAssertions(result, []Assertion{
		{Type: AssertLogCount, Count: 3},
		{Type: AssertLogCount, Count: 1},
		{Type: AssertFinalState, Table: "main.items"},
		{Type: "bogus"},
	}, nil)

	require.Len(t, errs, 3)
	assert.Contains(t, errs[0], "Assertion failed: log_count")
	assert.Contains(t, errs[1], "final_state requires database context")
	assert.Contains(t, errs[2], `unknown assertion type "bogus"`)
}

func TestResult_AddError(t *testing.T) {
	r := NewResult()
	assert.True(t, r.Pass)
	r.AddError("boom")
	assert.False(t, r.Pass)
	assert.Equal(t, []string{"boom"}, r.Errors)
}
