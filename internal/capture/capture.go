// Package capture is the write path for captured tables.
//
// Every INSERT, UPDATE and DELETE goes through a Tx obtained from
// Capturer.Begin. Inside that one SQLite transaction the Tx:
//
//  1. runs the primary-key guard (UPDATE only)
//  2. mutates the base table, reading back the full row image
//  3. reads the table's capture toggle through the same transaction
//  4. appends a LogEntry to the operation log when capture is enabled
//
// Any failure in those steps rolls the whole transaction back and poisons
// the Tx: later calls return the original error. A base-table change is
// therefore never committed without its log entry, and a log entry never
// exists without its change.
package capture

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	"github.com/roach88/rowlog/internal/catalog"
	"github.com/roach88/rowlog/internal/ir"
	"github.com/roach88/rowlog/internal/oplog"
	"github.com/roach88/rowlog/internal/store"
	"github.com/roach88/rowlog/internal/toggle"
)

// Capturer holds the per-table hooks and the collaborators they need.
// It is safe for concurrent use; each Tx is not.
type Capturer struct {
	catalog *catalog.Catalog
	toggles *toggle.Store
	log     *oplog.Log
	hooks   map[ir.TableKey]*TableHook

	logger *slog.Logger
	txIDs  TxIDGenerator
	clock  Clock // nil leaves timestamps NULL

	pending []pendingHook
}

type pendingHook struct {
	key ir.TableKey
	fn  HookFunc
}

// Option configures a Capturer.
type Option func(*Capturer)

// WithLogger sets the logger. Default: slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(c *Capturer) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithTxIDGenerator sets the transaction id source. Default: UUIDv7Generator.
func WithTxIDGenerator(gen TxIDGenerator) Option {
	return func(c *Capturer) {
		if gen != nil {
			c.txIDs = gen
		}
	}
}

// WithClock stamps every entry with clock.Now().
func WithClock(clock Clock) Option {
	return func(c *Capturer) {
		c.clock = clock
	}
}

// WithHook attaches fn to the table's write path. fn runs after each entry
// for the table is appended, in the order hooks were given.
func WithHook(key ir.TableKey, fn HookFunc) Option {
	return func(c *Capturer) {
		c.pending = append(c.pending, pendingHook{key: key, fn: fn})
	}
}

// New builds a hook for every table in the catalog.
// Fails with UNKNOWN_TABLE if WithHook names a table outside the catalog.
func New(cat *catalog.Catalog, toggles *toggle.Store, log *oplog.Log, opts ...Option) (*Capturer, error) {
	c := &Capturer{
		catalog: cat,
		toggles: toggles,
		log:     log,
		hooks:   make(map[ir.TableKey]*TableHook, cat.Len()),
		logger:  slog.Default(),
		txIDs:   UUIDv7Generator{},
	}
	for _, schema := range cat.Tables() {
		c.hooks[schema.Key()] = newTableHook(schema)
	}

	for _, opt := range opts {
		opt(c)
	}
	for _, p := range c.pending {
		h, err := c.Hook(p.key)
		if err != nil {
			return nil, err
		}
		if p.fn != nil {
			h.observers = append(h.observers, p.fn)
		}
	}
	c.pending = nil

	return c, nil
}

// Catalog returns the catalog the capturer was built from.
func (c *Capturer) Catalog() *catalog.Catalog {
	return c.catalog
}

// Hook returns the write path of a table, or UNKNOWN_TABLE.
func (c *Capturer) Hook(key ir.TableKey) (*TableHook, error) {
	h, ok := c.hooks[key]
	if !ok {
		return nil, ir.NewUnknownTableError(key)
	}
	return h, nil
}

// Register seeds the capture toggle of a catalog table. It is meant to be
// called once by schema tooling when the table is created; later calls
// never change an existing toggle. Returns UNKNOWN_TABLE for tables outside
// the catalog.
//
// The physical table must already exist, and its DEFAULT clauses must
// match the catalog's declared defaults, since logged insert images carry
// the defaults the table applies.
func (c *Capturer) Register(ctx context.Context, q store.Queryer, schema catalog.TableSchema, enabled bool) error {
	h, err := c.Hook(schema.Key())
	if err != nil {
		return err
	}
	if err := store.CheckDefaults(ctx, q, h.schema); err != nil {
		return fmt.Errorf("register %s: %w", schema.Key(), err)
	}
	if _, err := c.toggles.Register(ctx, q, schema.Key(), enabled); err != nil {
		return fmt.Errorf("register %s: %w", schema.Key(), err)
	}
	return nil
}

// RegisterAll registers every catalog table with the same initial toggle.
func (c *Capturer) RegisterAll(ctx context.Context, q store.Queryer, enabled bool) error {
	for _, schema := range c.catalog.Tables() {
		if err := c.Register(ctx, q, schema, enabled); err != nil {
			return err
		}
	}
	return nil
}

// Begin starts a capture transaction. The store opens every transaction
// with BEGIN IMMEDIATE, so the write lock is held until Commit or Rollback.
func (c *Capturer) Begin(ctx context.Context, db *sql.DB) (*Tx, error) {
	sqlTx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin capture tx: %w", err)
	}
	t := &Tx{c: c, tx: sqlTx, id: c.txIDs.Generate()}
	c.logger.Debug("capture transaction started", "tx_id", t.id)
	return t, nil
}

// Do runs fn in a capture transaction and commits it if fn returns nil.
// The transaction is rolled back if fn fails or panics.
func (c *Capturer) Do(ctx context.Context, db *sql.DB, fn func(tx *Tx) error) error {
	t, err := c.Begin(ctx, db)
	if err != nil {
		return err
	}
	defer t.Rollback() // No-op if committed

	if err := fn(t); err != nil {
		return err
	}
	return t.Commit()
}

func (c *Capturer) timestamp() *int64 {
	if c.clock == nil {
		return nil
	}
	ts := c.clock.Now()
	return &ts
}
