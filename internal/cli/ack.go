package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

// AckOptions holds flags for the ack command.
type AckOptions struct {
	*RootOptions
	Database string
	Consumer string
	Sequence int64
}

// AckResult reports a consumer's cursor after acknowledging.
type AckResult struct {
	Consumer string `json:"consumer"`
	Cursor   int64  `json:"cursor"`
}

func (r AckResult) String() string {
	return fmt.Sprintf("%s acknowledged through #%d", r.Consumer, r.Cursor)
}

// NewAckCommand creates the ack command.
func NewAckCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &AckOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "ack",
		Short: "Acknowledge log entries for a consumer",
		Long: `Record that a consumer has processed every entry up to and including
--seq. Cursors never move backwards.

Examples:
  rowlog ack --db ./app.db --consumer indexer --seq 42`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAck(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite database (required)")
	cmd.Flags().StringVar(&opts.Consumer, "consumer", "", "consumer name (required)")
	cmd.Flags().Int64Var(&opts.Sequence, "seq", 0, "last processed sequence (required)")
	_ = cmd.MarkFlagRequired("db")
	_ = cmd.MarkFlagRequired("consumer")
	_ = cmd.MarkFlagRequired("seq")

	return cmd
}

func runAck(opts *AckOptions, cmd *cobra.Command) error {
	ctx := context.Background()
	formatter := &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   opts.Verbose,
	}

	e, err := openEnv(opts.Database, "", false, newLogger(cmd.ErrOrStderr(), opts.Verbose))
	if err != nil {
		return err
	}
	defer e.Close()

	db := e.store.DB()
	if err := e.log.Acknowledge(ctx, db, opts.Consumer, opts.Sequence); err != nil {
		return formatter.Fail(ExitFailure, "failed to acknowledge", err)
	}
	cursor, err := e.log.Cursor(ctx, db, opts.Consumer)
	if err != nil {
		return formatter.Fail(ExitCommandError, "failed to read cursor", err)
	}

	return formatter.Success(AckResult{Consumer: opts.Consumer, Cursor: cursor})
}
