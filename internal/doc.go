// Package internal holds small private helpers, currently secure
// one-time-code generation.
//
// # Sub-packages
//
//   - limiters — Redis-backed counters for lockout and OTP send
//     throttling
package internal
