// Package token resolves the bearer token shared between the wrapper and the
// gateway child process.
//
// Exactly one token exists per wrapper process. It comes from, in order:
//
//  1. an externally supplied value (OPENCLAW_GATEWAY_TOKEN), used verbatim
//     and never written to disk;
//  2. the contents of <state>/gateway.token from a previous run;
//  3. 32 fresh random bytes, hex encoded, persisted to <state>/gateway.token
//     with owner-only permissions.
//
// A failed write in step 3 is logged and the generated token is still used
// for the current process.
package token
