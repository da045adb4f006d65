// Package cryptor implements the symmetric token cipher used to seal session
// identifiers before they are handed to clients.
//
// # Token format
//
// Every token is the hex-encoded AES-256-GCM nonce followed by the base64url
// encoding of the ciphertext. The nonce is freshly random per call, so
// encrypting the same session identifier twice never yields the same token.
//
// # Key handling
//
// A key of exactly 32 bytes is used as-is. Anything else is digested with
// SHA-256 so deployments may configure a printable passphrase instead of raw
// key material.
//
// # What this package must NOT do
//
//   - Interpret or validate the plaintext it seals (session semantics belong
//     to the Engine).
//   - Log key material, plaintext, or tokens.
package cryptor
