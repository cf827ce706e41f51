// Package telemetry wires the OpenTelemetry SDK: traces, metrics and logs
// exported to a stream, plus the task lifecycle counters.
package telemetry
