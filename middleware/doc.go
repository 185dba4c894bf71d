// Package middleware exposes HTTP adapters over authcore.Engine
// validation.
//
// [Guard] reads the Authorization header, calls Engine.ValidateAccess,
// and injects the validated identity into the request context.
// [WithRequestContext] attaches the caller's IP and user agent for
// audit stamping and is also usable standalone on unauthenticated
// routes such as login.
//
// This package translates HTTP semantics into Engine calls. It does
// not parse tokens or touch Redis itself; all decisions are delegated
// to the engine.
package middleware
