// Package api serves the HTTP interface: the authenticated /tasks routes,
// registration, login and health. Handlers decode and validate requests,
// call the task manager or user service, and map domain errors to stable
// status codes and messages through MapError.
package api
