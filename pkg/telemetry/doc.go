// Package telemetry groups keel's observability packages.
//
//   - logging: slog loggers with context identifiers and secret redaction
//   - metrics: Prometheus collectors for gate, ledger, memory, tools and provider
//   - tracing: OpenTelemetry spans exported over OTLP gRPC
package telemetry
