// Package perf holds latency budgets and benchmarks for the in-memory
// membership computations and background job instrumentation.
package perf
