// Package postgres provides the PostgreSQL implementations of the store
// interfaces, the embedded goose migrations that create their schema, and the
// mapping from driver errors to store errors.
//
// The tasks table enforces the lifecycle invariants with CHECK constraints: a
// process handle is stored only while a task is running, and an output only
// once it has succeeded.
package postgres
