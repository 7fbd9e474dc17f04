// Package sinks implements concrete progress consumers: Prometheus metrics,
// repository-backed run and site aggregates, and structured logging. Each
// sink satisfies progress.Sink.
package sinks
