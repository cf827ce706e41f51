// Package store defines the persistence contracts for tasks and users, the
// error values every implementation reports, and a transaction helper. The
// Task Store is the single source of truth for task existence and state.
package store
