package cli

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/rowlog/internal/store"
)

// InitOptions holds flags for the init command.
type InitOptions struct {
	*RootOptions
	Database string
	Catalog  string
	Disabled bool // register new toggles as disabled
}

// InitResult reports the tables created and registered.
type InitResult struct {
	Tables  []string `json:"tables"`
	Enabled bool     `json:"enabled"`
}

func (r InitResult) String() string {
	state := "enabled"
	if !r.Enabled {
		state = "disabled"
	}
	return fmt.Sprintf("Initialized %d table(s), capture %s by default: %s",
		len(r.Tables), state, strings.Join(r.Tables, ", "))
}

// NewInitCommand creates the init command.
func NewInitCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &InitOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Create catalog tables and register capture toggles",
		Long: `Create the database if needed, create every catalog table and register
a capture toggle for each one. Existing toggles keep their value.

Exit codes:
  0 - Database initialized
  2 - Command error (catalog invalid, database not writable, etc.)

Examples:
  rowlog init --db ./app.db --catalog ./catalog.yaml
  rowlog init --db ./app.db --catalog ./catalog.cue --disabled`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runInit(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite database (required)")
	cmd.Flags().StringVar(&opts.Catalog, "catalog", "", "path to catalog file, YAML or CUE (required)")
	cmd.Flags().BoolVar(&opts.Disabled, "disabled", false, "register new tables with capture disabled")
	_ = cmd.MarkFlagRequired("db")
	_ = cmd.MarkFlagRequired("catalog")

	return cmd
}

func runInit(opts *InitOptions, cmd *cobra.Command) error {
	ctx := context.Background()
	formatter := &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   opts.Verbose,
	}

	e, err := openEnv(opts.Database, opts.Catalog, true, newLogger(cmd.ErrOrStderr(), opts.Verbose))
	if err != nil {
		return err
	}
	defer e.Close()

	result := InitResult{Tables: []string{}, Enabled: !opts.Disabled}
	err = e.store.WithTx(ctx, func(tx *sql.Tx) error {
		for _, schema := range e.catalog.Tables() {
			if err := store.CreateTable(ctx, tx, schema); err != nil {
				return err
			}
			formatter.VerboseLog("created %s", store.TableIdent(schema.Key()))
			result.Tables = append(result.Tables, schema.Key().String())
		}
		return e.capturer.RegisterAll(ctx, tx, result.Enabled)
	})
	if err != nil {
		return formatter.Fail(ExitCommandError, "failed to initialize database", err)
	}

	return formatter.Success(result)
}
