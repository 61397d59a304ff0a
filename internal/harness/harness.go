package harness

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"

	"github.com/roach88/rowlog/internal/capture"
	"github.com/roach88/rowlog/internal/catalog"
	"github.com/roach88/rowlog/internal/ir"
	"github.com/roach88/rowlog/internal/oplog"
	"github.com/roach88/rowlog/internal/store"
	"github.com/roach88/rowlog/internal/testutil"
	"github.com/roach88/rowlog/internal/toggle"
)

// Harness executes one scenario against its own store.
type Harness struct {
	store   *store.Store
	catalog *catalog.Catalog
	cap     *capture.Capturer
	log     *oplog.Log
	logger  *slog.Logger
}

// Run executes a scenario and returns the result.
//
// Each scenario runs in a fresh in-memory database for isolation.
// Execution flow:
//  1. Load the catalog and create its tables
//  2. Seed the registered toggles
//  3. Run every transaction, checking expect_error
//  4. Read the committed log and evaluate assertions
//
// A non-nil error means the scenario could not be run at all; failed
// expectations are reported in Result.Errors.
func Run(scenario *Scenario) (*Result, error) {
	cat, err := catalog.LoadFile(scenario.Catalog)
	if err != nil {
		return nil, fmt.Errorf("failed to load catalog: %w", err)
	}

	st, err := store.Open(":memory:")
	if err != nil {
		return nil, fmt.Errorf("failed to create in-memory store: %w", err)
	}
	defer st.Close()

	ctx := context.Background()
	for _, schema := range cat.Tables() {
		if err := store.CreateTable(ctx, st.DB(), schema); err != nil {
			return nil, fmt.Errorf("failed to create %s: %w", schema.Key(), err)
		}
	}

	logger := testutil.DiscardLogger() // Suppress logs in scenario runs
	opts := []capture.Option{
		capture.WithLogger(logger),
		capture.WithTxIDGenerator(testutil.NewFixedTxIDGenerator(scenario.TxID)),
	}
	if scenario.ClockStart != 0 {
		opts = append(opts, capture.WithClock(testutil.NewStepClock(scenario.ClockStart, 1)))
	}
	log := oplog.New(oplog.WithLogger(logger))
	c, err := capture.New(cat, toggle.New(logger), log, opts...)
	if err != nil {
		return nil, err
	}

	h := &Harness{store: st, catalog: cat, cap: c, log: log, logger: logger}

	if err := h.register(ctx, scenario.Register); err != nil {
		return nil, fmt.Errorf("failed to register toggles: %w", err)
	}

	result := NewResult()
	for i, txn := range scenario.Transactions {
		outcome, err := h.executeTransaction(ctx, i, txn)
		if err != nil {
			return nil, fmt.Errorf("transaction %d: %w", i, err)
		}
		result.Transactions = append(result.Transactions, outcome)
		checkOutcome(result, i, txn, outcome)
	}

	for entry, err := range log.ScanFrom(ctx, st.DB(), 0) {
		if err != nil {
			return nil, fmt.Errorf("failed to read log: %w", err)
		}
		result.Log = append(result.Log, entry)
	}

	actx := &AssertionContext{DB: st.DB(), Catalog: cat, Ctx: ctx}
	for _, msg := range EvaluateAssertions(result, scenario.Assertions, actx) {
		result.AddError(msg)
	}

	return result, nil
}

func (h *Harness) register(ctx context.Context, regs []Registration) error {
	for _, r := range regs {
		key, err := ir.ParseTableKey(r.Table)
		if err != nil {
			return err
		}
		schema, err := h.catalog.LookupKey(key)
		if err != nil {
			return err
		}
		if err := h.cap.Register(ctx, h.store.DB(), schema, r.Enabled); err != nil {
			return err
		}
	}
	return nil
}

// executeTransaction runs the steps of one transaction and ends it.
// A step failure is part of the outcome, not an error: the capture layer
// has already rolled the transaction back.
func (h *Harness) executeTransaction(ctx context.Context, index int, txn Transaction) (TxOutcome, error) {
	outcome := TxOutcome{Index: index}

	tx, err := h.cap.Begin(ctx, h.store.DB())
	if err != nil {
		return outcome, err
	}

	for j, step := range txn.Steps {
		if err := h.executeStep(ctx, tx, step); err != nil {
			outcome.ErrorCode = errorCode(err)
			outcome.Entries = tx.Captured()
			h.logger.Info("scenario transaction aborted", "transaction", index, "step", j, "error", err)
			// Conversion errors leave the transaction open
			_ = tx.Rollback()
			return outcome, nil
		}
	}

	outcome.Entries = tx.Captured()
	if txn.Rollback {
		return outcome, tx.Rollback()
	}
	if err := tx.Commit(); err != nil {
		outcome.ErrorCode = errorCode(err)
		return outcome, nil
	}
	outcome.Committed = true
	return outcome, nil
}

func (h *Harness) executeStep(ctx context.Context, tx *capture.Tx, step Step) error {
	key, err := ir.ParseTableKey(step.Table)
	if err != nil {
		return err
	}

	switch step.Op {
	case OpInsert:
		values, err := convertRow(step.Values)
		if err != nil {
			return err
		}
		_, err = tx.Insert(ctx, key, values)
		return err
	case OpUpdate:
		pk, err := convertRow(step.Key)
		if err != nil {
			return err
		}
		set, err := convertRow(step.Set)
		if err != nil {
			return err
		}
		_, err = tx.Update(ctx, key, pk, set)
		return err
	case OpDelete:
		pk, err := convertRow(step.Key)
		if err != nil {
			return err
		}
		_, err = tx.Delete(ctx, key, pk)
		return err
	case OpToggle:
		return tx.SetCaptureEnabled(ctx, key, *step.Enabled)
	default:
		return fmt.Errorf("unknown op %q", step.Op)
	}
}

// checkOutcome compares a transaction outcome with its expect_error.
func checkOutcome(result *Result, index int, txn Transaction, outcome TxOutcome) {
	switch {
	case txn.ExpectError == "" && outcome.ErrorCode != "":
		result.AddError(fmt.Sprintf("transactions[%d]: unexpected failure %s", index, outcome.ErrorCode))
	case txn.ExpectError != "" && outcome.ErrorCode == "":
		result.AddError(fmt.Sprintf("transactions[%d]: expected %s, transaction succeeded", index, txn.ExpectError))
	case txn.ExpectError != outcome.ErrorCode:
		result.AddError(fmt.Sprintf("transactions[%d]: expected %s, got %s", index, txn.ExpectError, outcome.ErrorCode))
	}
}

// errorCode returns the CaptureError code of err, or "ERROR" for any other
// failure (constraint violations, conversion errors).
func errorCode(err error) string {
	var ce *ir.CaptureError
	if errors.As(err, &ce) {
		return string(ce.Code)
	}
	return "ERROR"
}

// convertRow converts YAML-decoded column values to a Row.
func convertRow(values map[string]any) (ir.Row, error) {
	row := make(ir.Row, len(values))
	for col, v := range values {
		iv, err := catalog.Literal(v)
		if err != nil {
			return nil, fmt.Errorf("column %q: %w", col, err)
		}
		row[col] = iv
	}
	return row, nil
}

// sortedKeys returns the keys of m in order, for stable messages.
func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
