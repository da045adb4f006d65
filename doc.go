// Package phishgate implements the authentication gateway for a multi-tenant
// phishing-awareness training platform: credential verification, encrypted
// opaque session tokens bound to the client IP, a challenge/response second
// factor delivered out of band, and layered authorization tiers.
//
// The package is designed for concurrent server workloads: Engine methods
// are safe to call from multiple goroutines after initialization through
// [Builder.Build].
//
// # Architecture boundaries
//
// phishgate is the public surface. It exposes [Engine], [Builder], [Config],
// and value types (LoginResult, AuthResult, UserRecord). Session and
// challenge persistence, rate limiting, and random generation live under
// internal/ and are never exported. The host application supplies the user
// database through [CredentialStore] and outbound mail through [Notifier].
//
// # Session model
//
// There is exactly one artifact on the client: an AES-256-GCM encrypted
// session identifier. Every request decrypts it and consults the session
// store, so invalidation is immediate. Sessions have an absolute lifetime,
// are pinned to the IP they were created from, and a new login replaces the
// user's previous session. There are no refresh tokens and no sliding
// renewal.
//
// # What this package must NOT do
//
//   - Expose Redis clients, internal stores, or record encodings in its
//     public API.
//   - Store or log plaintext passwords or two-factor codes.
//   - Trust any client-supplied state beyond the encrypted token.
package phishgate
