// Package events carries task lifecycle notifications from the task manager
// to observers such as metrics recorders and audit loggers.
//
// The manager emits a TaskEvent after each state change has been persisted.
// Observers implement EventHandler and are registered on an emitter; the
// manager only depends on the EventEmitter interface.
package events
