// Package stores provides the Redis-backed record stores for the
// authentication state machine: sessions and two-factor challenges.
//
// # Design
//
// Each store persists a versioned, binary-encoded record with a TTL.
// The session store additionally maintains a per-user slot key so that a
// login atomically evicts the user's previous session (Lua, last-writer-wins).
// Challenge keys embed tenant, user, and the client binding digest, so a
// fresh challenge for the same (user, IP) pair replaces the old one on SET.
// Challenge attempt accounting uses WATCH/MULTI optimistic transactions with
// retry on contention.
//
// # What this package must NOT do
//
//   - Generate codes or session identifiers, or make authentication
//     decisions (the Engine owns those).
//   - Log or expose code hashes.
package stores
