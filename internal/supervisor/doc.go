// Package supervisor keeps exactly one correctly configured gateway child
// running behind the wrapper.
//
// # Lifecycle
//
// A Supervisor moves through five states:
//
//   - NotConfigured: <state>/openclaw.json does not exist. EnsureRunning
//     returns ErrNotConfigured and never touches the runner.
//   - Idle: configured, no child held and no start in flight.
//   - Starting: one start sequence is running. Concurrent EnsureRunning
//     callers wait on the same sequence and see the same result.
//   - Running: a child passed its readiness probe and is held until its exit
//     callback fires.
//   - Restarting: Restart, Stop or Reset is tearing the child down. EnsureRunning
//     waits for the gate to open instead of racing a second start.
//
// # Start sequence
//
// Each start writes the resolved token into the child's persisted config with
// the gateway CLI, reads it back through a narrow JSON view and aborts with a
// *TokenSyncError if the values differ. Only then is the child spawned,
// bound to loopback, and polled until any of the ready paths answers with any
// HTTP status. A child that misses the readiness deadline is terminated so
// failed starts never leave orphans behind.
//
// Exit callbacks carry the generation of the child they belong to. An exit
// from an older generation never clears a newer handle.
package supervisor
