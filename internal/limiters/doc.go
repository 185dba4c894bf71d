// Package limiters provides Redis-backed counters for abuse control.
//
// # Limiters
//
//   - [LockoutLimiter] — failed-login counter driving automatic account
//     lockout.
//   - [OTPLimiter] — per-identifier + per-IP throttle for code sends.
//
// # Architecture boundaries
//
// Each limiter owns its own Redis key namespace and error values. Policy
// thresholds come from Config structs supplied at construction time; the
// limiters count, the engine decides consequences.
package limiters
