package internal

import "crypto/sha256"

// BindingHash is the digest a session or challenge is pinned to.
type BindingHash [32]byte

// HashBinding digests a client binding value (the observed IP address).
// Records store the digest, never the raw address.
func HashBinding(value string) BindingHash {
	return sha256.Sum256([]byte(value))
}
