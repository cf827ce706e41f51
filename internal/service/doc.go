// Package service contains the account use cases: registering users and
// checking their credentials. It depends on the store interfaces, never on a
// concrete database, and applies the transaction boundary for writes.
//
// Task use cases live in internal/task, whose Manager owns the lifecycle state
// machine.
package service
