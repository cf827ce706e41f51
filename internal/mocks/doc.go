// Package mocks provides shared test doubles for the task lifecycle and
// account packages.
//
// The in-memory stores honour the same contracts as the postgres stores, so
// tests exercise real ownership, duplicate and state rules. FakeRunner lets a
// test drive a run to completion or failure by hand, and the JWT and password
// mocks replace the auth service in handler tests.
//
//	runner := mocks.NewFakeRunner()
//	run := runner.RunFor(taskID)
//	run.Log("building")
//	run.Complete("out/1.tar")
package mocks
