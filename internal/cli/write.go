package cli

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/rowlog/internal/capture"
	"github.com/roach88/rowlog/internal/ir"
)

// WriteOptions holds flags for the write command.
type WriteOptions struct {
	*RootOptions
	Database string
	Catalog  string
	Table    string
	Op       string // insert | update | delete
	Row      string // JSON object: insert values or update set
	Key      string // JSON object: primary key for update/delete
}

// WriteResult reports one captured write.
type WriteResult struct {
	Table    string `json:"table"`
	Op       string `json:"op"`
	Applied  bool   `json:"applied"`  // false when no row had the key
	Sequence int64  `json:"sequence"` // 0 when capture is disabled
	TxID     string `json:"tx_id"`
}

func (r WriteResult) String() string {
	switch {
	case !r.Applied:
		return fmt.Sprintf("%s %s: no matching row", r.Op, r.Table)
	case r.Sequence == 0:
		return fmt.Sprintf("%s %s: applied, capture disabled", r.Op, r.Table)
	default:
		return fmt.Sprintf("%s %s: logged as #%d (tx %s)", r.Op, r.Table, r.Sequence, r.TxID)
	}
}

// NewWriteCommand creates the write command.
func NewWriteCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &WriteOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "write",
		Short: "Apply one captured write",
		Long: `Apply a single INSERT, UPDATE or DELETE through the capture layer, in
its own transaction. The change and its log entry commit together.

Exit codes:
  0 - Write committed (or matched no row)
  1 - Write rejected (unknown table, primary key change, invalid row, etc.)
  2 - Command error (missing flags, malformed JSON, database not found, etc.)

Examples:
  rowlog write --db ./app.db --catalog ./catalog.yaml --table main.items --op insert --row '{"id":"1","content":"hi"}'
  rowlog write --db ./app.db --catalog ./catalog.yaml --table main.items --op update --key '{"id":"1"}' --row '{"content":"bye"}'
  rowlog write --db ./app.db --catalog ./catalog.yaml --table main.items --op delete --key '{"id":"1"}'`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWrite(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite database (required)")
	cmd.Flags().StringVar(&opts.Catalog, "catalog", "", "path to catalog file (required)")
	cmd.Flags().StringVar(&opts.Table, "table", "", "table key <namespace>.<table> (required)")
	cmd.Flags().StringVar(&opts.Op, "op", "", "insert, update or delete (required)")
	cmd.Flags().StringVar(&opts.Row, "row", "", "JSON object of column values (insert, update)")
	cmd.Flags().StringVar(&opts.Key, "key", "", "JSON object of primary-key values (update, delete)")
	_ = cmd.MarkFlagRequired("db")
	_ = cmd.MarkFlagRequired("catalog")
	_ = cmd.MarkFlagRequired("table")
	_ = cmd.MarkFlagRequired("op")

	return cmd
}

func runWrite(opts *WriteOptions, cmd *cobra.Command) error {
	ctx := context.Background()
	formatter := &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   opts.Verbose,
	}

	key, err := ir.ParseTableKey(opts.Table)
	if err != nil {
		return WrapExitError(ExitCommandError, "invalid --table", err)
	}
	op, err := ir.ParseOpType(strings.ToUpper(opts.Op))
	if err != nil {
		return WrapExitError(ExitCommandError, "invalid --op", err)
	}

	var values, pk ir.Row
	switch op {
	case ir.OpInsert:
		if values, err = parseRowFlag("row", opts.Row); err != nil {
			return err
		}
	case ir.OpUpdate:
		if values, err = parseRowFlag("row", opts.Row); err != nil {
			return err
		}
		if pk, err = parseRowFlag("key", opts.Key); err != nil {
			return err
		}
	case ir.OpDelete:
		if pk, err = parseRowFlag("key", opts.Key); err != nil {
			return err
		}
	}

	e, err := openEnv(opts.Database, opts.Catalog, false, newLogger(cmd.ErrOrStderr(), opts.Verbose))
	if err != nil {
		return err
	}
	defer e.Close()

	result := WriteResult{Table: key.String(), Op: string(op), Applied: true}
	err = e.capturer.Do(ctx, e.store.DB(), func(tx *capture.Tx) error {
		result.TxID = tx.ID()
		var err error
		switch op {
		case ir.OpInsert:
			_, err = tx.Insert(ctx, key, values)
		case ir.OpUpdate:
			result.Applied, err = tx.Update(ctx, key, pk, values)
		default:
			result.Applied, err = tx.Delete(ctx, key, pk)
		}
		if err != nil {
			return err
		}
		result.Sequence = tx.LastSequence()
		return nil
	})
	if err != nil {
		return formatter.Fail(ExitFailure, "write rejected", err)
	}

	formatter.VerboseLog("tx %s committed", result.TxID)
	return formatter.Success(result)
}

// parseRowFlag decodes a JSON object flag into a Row.
func parseRowFlag(name, raw string) (ir.Row, error) {
	if strings.TrimSpace(raw) == "" {
		return nil, NewExitError(ExitCommandError, fmt.Sprintf("--%s is required for this operation", name))
	}
	var row ir.Row
	if err := row.UnmarshalJSON([]byte(raw)); err != nil {
		return nil, WrapExitError(ExitCommandError, fmt.Sprintf("invalid --%s JSON", name), err)
	}
	return row, nil
}
