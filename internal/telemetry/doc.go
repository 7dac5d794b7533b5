// Package telemetry sets up the logger, metrics registry and tracer used by
// hvctl. Everything here is optional: a nil *Metrics records nothing and
// the global tracer provider stays a no-op until SetupTracing installs one.
package telemetry
