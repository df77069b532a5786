// Package store provides the deployment loaders: journal storage plus the
// artifacts recorded for each future.
//
// Two loaders exist:
//   - Ephemeral keeps everything in memory; used when no deployment
//     directory is given. Nothing survives the process.
//   - Durable keeps the journal in <dir>/journal.db (SQLite) and artifacts
//     in <dir>/artifacts/<future-id>.json.
//
// # Durable journal
//
//   - WAL mode with synchronous=FULL: an append is on disk when it returns
//   - entries are hash chained (prev_hash, hash) and the chain head is
//     stored alongside, so a modified, removed or truncated entry is
//     detected on replay and reported as ErrCorruptJournal
//   - sequence numbers are contiguous from 1; replay is ORDER BY seq ASC
//   - schema version tracked with PRAGMA user_version
package store
