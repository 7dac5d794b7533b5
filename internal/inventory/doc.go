// Package inventory enumerates domains, storage pools and volumes and
// turns them into rows for listing or into runner targets.
//
// Selection is how the CLI expands "--all", "--match" and the state and
// persistence filters into the list of targets handed to a batch.
// Explicit names are passed through even when they do not exist, so the
// batch can report them as not found.
package inventory
