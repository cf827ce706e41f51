// Package task owns the lifecycle of container tasks: creating them against
// a resolved image, launching and supervising one process per run, exposing
// live logs, and settling each run into a terminal state.
//
// The Manager is the only component that changes a task's state. Process
// execution, image search and artifact storage are reached through the
// ProcessRunner, ImageSearcher and ArtifactStore ports so that the manager
// can be exercised without Docker or a database.
package task
