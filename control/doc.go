// Package control
// Author: momentics <momentics@gmail.com>
//
// Configuration, logging, metrics, and debug introspection for shmstack.
//
// Provides concurrent-safe state handling primitives including:
//   - Config loading from file and environment, with hot-reload listeners
//   - zap logger construction by level name
//   - Prometheus collectors over pool and frame counters
//   - Snapshot metrics registry and named debug probes
package control
