package cli

import (
	"io"
	"log/slog"
	"os"

	"github.com/roach88/rowlog/internal/capture"
	"github.com/roach88/rowlog/internal/catalog"
	"github.com/roach88/rowlog/internal/oplog"
	"github.com/roach88/rowlog/internal/store"
	"github.com/roach88/rowlog/internal/toggle"
)

// env bundles what a command needs to talk to one database.
type env struct {
	store    *store.Store
	catalog  *catalog.Catalog
	log      *oplog.Log
	toggles  *toggle.Store
	capturer *capture.Capturer
	logger   *slog.Logger
}

// newLogger writes structured logs to w: debug and up when verbose,
// warnings only otherwise.
func newLogger(w io.Writer, verbose bool) *slog.Logger {
	level := slog.LevelWarn
	if verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
}

// openEnv opens the database and, when catalogPath is set, loads the
// catalog and builds a capturer over it. The database must already exist
// unless create is true.
func openEnv(dbPath, catalogPath string, create bool, logger *slog.Logger) (*env, error) {
	if !create {
		if _, err := os.Stat(dbPath); os.IsNotExist(err) {
			return nil, NewExitError(ExitCommandError, "database not found: "+dbPath)
		}
	}

	e := &env{logger: logger}

	if catalogPath != "" {
		cat, err := catalog.LoadFile(catalogPath)
		if err != nil {
			return nil, WrapExitError(ExitCommandError, "failed to load catalog", err)
		}
		e.catalog = cat
	}

	st, err := store.Open(dbPath)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to open database", err)
	}
	e.store = st
	e.log = oplog.New(oplog.WithLogger(logger))
	e.toggles = toggle.New(logger)

	if e.catalog != nil {
		c, err := capture.New(e.catalog, e.toggles, e.log,
			capture.WithLogger(logger),
			capture.WithClock(capture.WallClock{}),
		)
		if err != nil {
			_ = st.Close()
			return nil, WrapExitError(ExitCommandError, "failed to build capturer", err)
		}
		e.capturer = c
	}
	return e, nil
}

func (e *env) Close() error {
	return e.store.Close()
}
