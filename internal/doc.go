// Package internal contains helper utilities that are intentionally private
// to phishgate: secure random generation for session identifiers, numeric
// two-factor codes, and initial account passwords, plus the binding hash used
// to pin sessions and challenges to a client IP.
//
// # Sub-packages
//
//   - rate: Redis-backed fixed-window rate limit primitives
//   - stores: Redis-backed session and challenge record stores
//
// # What this package must NOT do
//
//   - Export types that appear in the public phishgate API.
//   - Be imported by any package outside the phishgate module.
package internal
