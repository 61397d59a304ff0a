// Package ir provides the shared types of rowlog: column values, row images,
// table keys, operation-log entries and the capture error taxonomy.
//
// This package contains type definitions only. All other internal packages
// import ir; ir imports nothing internal.
//
// Key design constraints:
//   - IRValue is sealed: IRNull, IRString, IRInt, IRReal, IRBool, IRBlob
//   - RowImage keeps column declaration order; it is never a Go map
//   - JSON is produced only at the log-append boundary (MarshalJSON)
//   - Sequence numbers order the log, never timestamps
package ir
