// Package runner executes one lifecycle operation against one libvirt
// object in isolation.
//
// A unit opens its own session, resolves the target fresh, applies the
// operation and closes the session again. Nothing is shared between units,
// so they can run concurrently. Failures never escape as errors or panics;
// each stage of the pipeline is recorded in the returned Result and the
// first failing stage is reported by Result.FailedStage.
package runner
