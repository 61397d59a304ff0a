// Package store opens the SQLite database that holds application tables
// and the rowlog bookkeeping tables.
//
// The bookkeeping schema is:
//   - oplog: the append-only operation log
//   - capture_toggles: per-table capture switches
//   - oplog_cursors: per-consumer acknowledged sequence
//
// # Transactions
//
// Every connection begins transactions with BEGIN IMMEDIATE, so the write
// lock is taken by the first statement of a transaction and held until
// commit. The oplog sequence is therefore allocated in commit order.
//
// # Database Configuration
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout=5000: Wait for locks up to 5 seconds
//   - foreign_keys=ON: Enforce referential integrity
//
// Application tables live in the main schema. Tables outside the "main"
// namespace get a "<namespace>__" prefix (see TableIdent) rather than an
// attached database, because commits spanning attached WAL databases are
// not atomic.
package store
