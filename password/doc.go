// Package password implements Argon2id hashing for login passwords and
// two-factor codes.
//
// # Output format
//
// Hashes are encoded in PHC string format:
//
//	$argon2id$v=19$m=<memory>,t=<time>,p=<threads>$<salt>$<hash>
//
// Verification is constant-time over the derived key. [Hasher.NeedsRehash]
// reports whether a stored hash was produced with weaker parameters than the
// current configuration, so callers can transparently re-hash on the next
// successful verification.
//
// # Architecture boundaries
//
// This package owns hashing and verification only. Password policy (length,
// generation, rotation) is enforced by the Engine.
package password
