package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/rowlog/internal/ir"
)

// ScanOptions holds flags for the scan command.
type ScanOptions struct {
	*RootOptions
	Database string
	From     int64
	Limit    int
	Consumer string // read from, and optionally advance, this consumer's cursor
	Ack      bool
}

// ScanResult holds the entries read from the log.
type ScanResult struct {
	Entries []ir.LogEntry `json:"entries"`
	From    int64         `json:"from"`
	Last    int64         `json:"last"` // highest sequence returned, or From
}

func (r ScanResult) String() string {
	if len(r.Entries) == 0 {
		return fmt.Sprintf("No entries after #%d.", r.From)
	}
	var b strings.Builder
	for i, e := range r.Entries {
		if i > 0 {
			b.WriteString("\n")
		}
		b.WriteString(formatEntry(e))
	}
	return b.String()
}

// formatEntry renders one entry as a single text line.
func formatEntry(e ir.LogEntry) string {
	pk, _ := json.Marshal(e.PrimaryKey)
	line := fmt.Sprintf("[%d] %-6s %s pk=%s tx=%s", e.Sequence, e.OpType, e.Key(), pk, e.TxID)
	if e.OldRow != nil {
		old, _ := json.Marshal(e.OldRow)
		line += " old=" + string(old)
	}
	if e.NewRow != nil {
		nw, _ := json.Marshal(e.NewRow)
		line += " new=" + string(nw)
	}
	return line
}

// NewScanCommand creates the scan command.
func NewScanCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ScanOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "scan",
		Short: "Read committed log entries in sequence order",
		Long: `Read the operation log from a sequence onwards. Only committed entries
are visible.

With --consumer, reading starts after that consumer's acknowledged sequence
unless --from is given. Adding --ack advances the consumer's cursor to the
last entry printed.

Exit codes:
  0 - Entries read
  2 - Command error (database not found, etc.)

Examples:
  rowlog scan --db ./app.db
  rowlog scan --db ./app.db --from 42 --limit 10
  rowlog scan --db ./app.db --consumer indexer --ack --format json`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runScan(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite database (required)")
	_ = cmd.MarkFlagRequired("db")
	cmd.Flags().Int64Var(&opts.From, "from", 0, "read entries with sequence greater than this")
	cmd.Flags().IntVar(&opts.Limit, "limit", 0, "maximum entries to read (0 = all)")
	cmd.Flags().StringVar(&opts.Consumer, "consumer", "", "consumer name whose cursor sets the start")
	cmd.Flags().BoolVar(&opts.Ack, "ack", false, "acknowledge the entries read for --consumer")

	return cmd
}

func runScan(opts *ScanOptions, cmd *cobra.Command) error {
	ctx := context.Background()
	formatter := &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   opts.Verbose,
	}

	if opts.Ack && opts.Consumer == "" {
		return NewExitError(ExitCommandError, "--ack requires --consumer")
	}
	if opts.From < 0 || opts.Limit < 0 {
		return NewExitError(ExitCommandError, "--from and --limit must not be negative")
	}

	e, err := openEnv(opts.Database, "", false, newLogger(cmd.ErrOrStderr(), opts.Verbose))
	if err != nil {
		return err
	}
	defer e.Close()

	db := e.store.DB()
	from := opts.From
	if opts.Consumer != "" && !cmd.Flags().Changed("from") {
		if from, err = e.log.Cursor(ctx, db, opts.Consumer); err != nil {
			return formatter.Fail(ExitCommandError, "failed to read cursor", err)
		}
		formatter.VerboseLog("consumer %s resumes after #%d", opts.Consumer, from)
	}

	result := ScanResult{Entries: []ir.LogEntry{}, From: from, Last: from}
	for entry, err := range e.log.ScanFrom(ctx, db, from) {
		if err != nil {
			return formatter.Fail(ExitCommandError, "failed to scan log", err)
		}
		result.Entries = append(result.Entries, entry)
		result.Last = entry.Sequence
		if opts.Limit > 0 && len(result.Entries) >= opts.Limit {
			break
		}
	}

	if opts.Ack && result.Last > from {
		if err := e.log.Acknowledge(ctx, db, opts.Consumer, result.Last); err != nil {
			return formatter.Fail(ExitCommandError, "failed to acknowledge", err)
		}
		formatter.VerboseLog("consumer %s acknowledged #%d", opts.Consumer, result.Last)
	}

	return formatter.Success(result)
}
