/*
Package observability provides tools for monitoring the ragloop engine.

It plugs into the engine through domain.LifecycleHooks: Metrics exports Prometheus
counters and histograms for runs, nodes, routing decisions and loop traversals, and
LoggingHooks audits the same transitions through slog.
*/
package observability
