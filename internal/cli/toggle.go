package cli

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/rowlog/internal/capture"
	"github.com/roach88/rowlog/internal/ir"
)

// ToggleOptions holds flags for the toggle command.
type ToggleOptions struct {
	*RootOptions
	Database string
	Catalog  string
	Table    string
	Enable   bool
	Disable  bool
}

// ToggleResult reports a table's capture switch.
type ToggleResult struct {
	Table   string `json:"table"`
	Enabled bool   `json:"enabled"`
}

func (r ToggleResult) String() string {
	if r.Enabled {
		return fmt.Sprintf("capture enabled for %s", r.Table)
	}
	return fmt.Sprintf("capture disabled for %s", r.Table)
}

// TogglesResult lists every stored toggle.
type TogglesResult struct {
	Toggles []ToggleResult `json:"toggles"`
}

func (r TogglesResult) String() string {
	if len(r.Toggles) == 0 {
		return "No toggles registered."
	}
	var b strings.Builder
	for i, t := range r.Toggles {
		if i > 0 {
			b.WriteString("\n")
		}
		state := "on "
		if !t.Enabled {
			state = "off"
		}
		fmt.Fprintf(&b, "%s  %s", state, t.Table)
	}
	return b.String()
}

// NewToggleCommand creates the toggle command.
func NewToggleCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ToggleOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "toggle",
		Short: "Enable or disable capture for a table",
		Long: `Set the capture switch of one catalog table. The change is written in
its own transaction; writes committed afterwards observe it.

Exit codes:
  0 - Toggle written
  1 - Table not in the catalog
  2 - Command error (missing flags, database not found, etc.)

Examples:
  rowlog toggle --db ./app.db --catalog ./catalog.yaml --table main.items --disable
  rowlog toggle --db ./app.db --catalog ./catalog.yaml --table audit.pairs --enable`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runToggle(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite database (required)")
	cmd.Flags().StringVar(&opts.Catalog, "catalog", "", "path to catalog file (required)")
	cmd.Flags().StringVar(&opts.Table, "table", "", "table key <namespace>.<table> (required)")
	cmd.Flags().BoolVar(&opts.Enable, "enable", false, "enable capture")
	cmd.Flags().BoolVar(&opts.Disable, "disable", false, "disable capture")
	_ = cmd.MarkFlagRequired("db")
	_ = cmd.MarkFlagRequired("catalog")
	_ = cmd.MarkFlagRequired("table")
	cmd.MarkFlagsMutuallyExclusive("enable", "disable")
	cmd.MarkFlagsOneRequired("enable", "disable")

	return cmd
}

func runToggle(opts *ToggleOptions, cmd *cobra.Command) error {
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

	e, err := openEnv(opts.Database, opts.Catalog, false, newLogger(cmd.ErrOrStderr(), opts.Verbose))
	if err != nil {
		return err
	}
	defer e.Close()

	err = e.capturer.Do(ctx, e.store.DB(), func(tx *capture.Tx) error {
		return tx.SetCaptureEnabled(ctx, key, opts.Enable)
	})
	if err != nil {
		return formatter.Fail(ExitFailure, "failed to set toggle", err)
	}

	return formatter.Success(ToggleResult{Table: key.String(), Enabled: opts.Enable})
}

// TogglesOptions holds flags for the toggles command.
type TogglesOptions struct {
	*RootOptions
	Database string
}

// NewTogglesCommand creates the toggles command.
func NewTogglesCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &TogglesOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "toggles",
		Short: "List capture toggles",
		Long: `List every registered capture toggle in table-key order. Tables without
a toggle are captured.

Examples:
  rowlog toggles --db ./app.db
  rowlog toggles --db ./app.db --format json`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runToggles(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite database (required)")
	_ = cmd.MarkFlagRequired("db")

	return cmd
}

func runToggles(opts *TogglesOptions, cmd *cobra.Command) error {
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

	entries, err := e.toggles.List(ctx, e.store.DB())
	if err != nil {
		return formatter.Fail(ExitFailure, "failed to list toggles", err)
	}

	result := TogglesResult{Toggles: make([]ToggleResult, 0, len(entries))}
	for _, entry := range entries {
		result.Toggles = append(result.Toggles, ToggleResult{Table: entry.Table.String(), Enabled: entry.Enabled})
	}
	return formatter.Success(result)
}
