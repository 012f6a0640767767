// Package runner executes external commands for the wrapper.
//
// Two shapes are supported. Run executes a one-shot command (for example
// "openclaw config set ...") to completion and returns its exit code and
// combined output; it never returns an error, launch failures are reported
// through ExitLaunchFailed. Start launches a long-lived supervised child whose
// output passes straight through to the wrapper's own stdout/stderr and
// reports its termination through a callback.
//
// Both shapes apply an environment overlay on top of the current process
// environment.
package runner
