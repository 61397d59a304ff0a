package capture

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/rowlog/internal/ir"
	"github.com/roach88/rowlog/internal/testutil"
)

func TestGuard(t *testing.T) {
	items := testutil.ItemsSchema()
	parent := testutil.ParentSchema()
	pairs := testutil.PairsSchema()

	stored := ir.RowImage{ir.F("id", ir.IRString("1")), ir.F("content", ir.IRString("a"))}

	tests := []struct {
		name       string
		run        func() error
		wantColumn string // empty means the update is allowed
	}{
		{
			name: "non-key change",
			run: func() error {
				return Guard(items, stored, applySet(stored, ir.Row{"content": ir.IRString("b")}))
			},
		},
		{
			name: "key restated",
			run: func() error {
				return Guard(items, stored, applySet(stored, ir.Row{"id": ir.IRString("1")}))
			},
		},
		{
			name: "key changed",
			run: func() error {
				return Guard(items, stored, applySet(stored, ir.Row{"id": ir.IRString("2")}))
			},
			wantColumn: "id",
		},
		{
			name: "key restated with another storage class",
			run: func() error {
				old := ir.RowImage{ir.F("id", ir.IRInt(5)), ir.F("value", ir.Null)}
				return Guard(parent, old, applySet(old, ir.Row{"id": ir.IRString("5")}))
			},
		},
		{
			name: "key set to null",
			run: func() error {
				old := ir.RowImage{ir.F("id", ir.IRInt(5)), ir.F("value", ir.Null)}
				return Guard(parent, old, applySet(old, ir.Row{"id": ir.Null}))
			},
			wantColumn: "id",
		},
		{
			name: "second composite column changed",
			run: func() error {
				old := ir.RowImage{ir.F("a", ir.IRString("x")), ir.F("b", ir.IRInt(1)), ir.F("active", ir.IRBool(true))}
				return Guard(pairs, old, applySet(old, ir.Row{"a": ir.IRString("x"), "b": ir.IRInt(2)}))
			},
			wantColumn: "b",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.run()
			if tt.wantColumn == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.True(t, ir.IsPrimaryKeyImmutable(err))
			var ce *ir.CaptureError
			require.ErrorAs(t, err, &ce)
			assert.Equal(t, tt.wantColumn, ce.Details["column"])
		})
	}
}

func TestGuard_MissingKeyColumn(t *testing.T) {
	items := testutil.ItemsSchema()
	err := Guard(items, ir.RowImage{ir.F("content", ir.IRString("a"))}, ir.RowImage{ir.F("id", ir.IRString("1"))})
	assert.True(t, ir.IsInvalidRow(err))
}

func TestApplySet_KeepsOrder(t *testing.T) {
	old := ir.RowImage{ir.F("a", ir.IRInt(1)), ir.F("b", ir.IRInt(2)), ir.F("c", ir.IRInt(3))}
	got := applySet(old, ir.Row{"c": ir.IRInt(30), "a": ir.IRInt(10)})

	assert.Equal(t, []string{"a", "b", "c"}, got.Columns())
	assert.True(t, got.Equal(ir.RowImage{ir.F("a", ir.IRInt(10)), ir.F("b", ir.IRInt(2)), ir.F("c", ir.IRInt(30))}))
	assert.True(t, old.Equal(ir.RowImage{ir.F("a", ir.IRInt(1)), ir.F("b", ir.IRInt(2)), ir.F("c", ir.IRInt(3))}), "input untouched")
}
