// Package stores persists checkup run history. It includes a SQLite store
// with WAL mode and embedded migrations that records each run with its task
// results, task errors and actions, so metrics can be compared across runs.
package stores
