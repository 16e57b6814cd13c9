// Package storage is the key-value persistence used for credentials and the
// session record.
//
// Backends:
//   - MemoryKV: process-local, used by tests and ephemeral agents.
//   - FileKV: one file per key, optionally sealed under a passphrase.
//   - RedisKV: shared store for agents running on several hosts.
//   - PostgresKV: single table upsert store.
//
// All backends report a missing key with ErrNotFound.
package storage
