package password

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"golang.org/x/crypto/argon2"
)

const (
	algorithmID = "argon2id"

	minMemoryKB    uint32 = 8 * 1024
	minTimeCost    uint32 = 1
	minParallelism uint8  = 1
	minSaltLength  uint32 = 16
	minKeyLength   uint32 = 16
)

// ErrHashFormat is returned when a stored hash is not a valid argon2id PHC
// string produced by this package.
var ErrHashFormat = errors.New("invalid password hash format")

// Params holds the Argon2id cost parameters.
type Params struct {
	Memory      uint32 // in KB
	Time        uint32
	Parallelism uint8
	SaltLength  uint32
	KeyLength   uint32
}

// Hasher hashes and verifies secrets with fixed [Params].
// Safe for concurrent use.
type Hasher struct {
	params Params
}

// NewHasher validates params and returns a [Hasher].
func NewHasher(p Params) (*Hasher, error) {
	switch {
	case p.Memory < minMemoryKB:
		return nil, errors.New("argon2 memory must be >= 8192 KB")
	case p.Time < minTimeCost:
		return nil, errors.New("argon2 time must be >= 1")
	case p.Parallelism < minParallelism:
		return nil, errors.New("argon2 parallelism must be >= 1")
	case p.SaltLength < minSaltLength:
		return nil, errors.New("argon2 salt length must be >= 16")
	case p.KeyLength < minKeyLength:
		return nil, errors.New("argon2 key length must be >= 16")
	}

	return &Hasher{params: p}, nil
}

// Hash derives a PHC-encoded hash of secret with a fresh random salt.
// Secret bytes are used exactly as provided, with no normalization.
func (h *Hasher) Hash(secret string) (string, error) {
	salt := make([]byte, h.params.SaltLength)
	if _, err := io.ReadFull(rand.Reader, salt); err != nil {
		return "", err
	}

	key := argon2.IDKey(
		[]byte(secret),
		salt,
		h.params.Time,
		h.params.Memory,
		h.params.Parallelism,
		h.params.KeyLength,
	)

	return fmt.Sprintf(
		"$%s$v=%d$m=%d,t=%d,p=%d$%s$%s",
		algorithmID,
		argon2.Version,
		h.params.Memory,
		h.params.Time,
		h.params.Parallelism,
		base64.StdEncoding.EncodeToString(salt),
		base64.StdEncoding.EncodeToString(key),
	), nil
}

// Verify reports whether secret matches the stored PHC hash.
// The comparison over the derived key is constant-time.
func (h *Hasher) Verify(secret, encoded string) (bool, error) {
	stored, err := decodePHC(encoded)
	if err != nil {
		return false, err
	}

	computed := argon2.IDKey(
		[]byte(secret),
		stored.salt,
		stored.time,
		stored.memory,
		stored.parallelism,
		uint32(len(stored.key)),
	)

	return subtle.ConstantTimeCompare(computed, stored.key) == 1, nil
}

// NeedsRehash reports whether the stored hash was produced with parameters
// weaker than the current configuration.
func (h *Hasher) NeedsRehash(encoded string) (bool, error) {
	stored, err := decodePHC(encoded)
	if err != nil {
		return false, err
	}

	if h.params.Memory > stored.memory ||
		h.params.Time > stored.time ||
		h.params.Parallelism > stored.parallelism {
		return true, nil
	}
	if uint32(len(stored.key)) != h.params.KeyLength {
		return true, nil
	}

	return false, nil
}

type phcHash struct {
	memory      uint32
	time        uint32
	parallelism uint8
	salt        []byte
	key         []byte
}

func decodePHC(encoded string) (*phcHash, error) {
	parts := strings.Split(encoded, "$")
	if len(parts) != 6 || parts[0] != "" {
		return nil, ErrHashFormat
	}
	if parts[1] != algorithmID {
		return nil, fmt.Errorf("%w: unsupported algorithm", ErrHashFormat)
	}

	version, ok := strings.CutPrefix(parts[2], "v=")
	if !ok {
		return nil, fmt.Errorf("%w: missing version", ErrHashFormat)
	}
	v, err := strconv.Atoi(version)
	if err != nil || v != argon2.Version {
		return nil, fmt.Errorf("%w: unsupported version", ErrHashFormat)
	}

	stored := &phcHash{}
	if err := decodeCosts(parts[3], stored); err != nil {
		return nil, err
	}

	stored.salt, err = base64.StdEncoding.DecodeString(parts[4])
	if err != nil || uint32(len(stored.salt)) < minSaltLength {
		return nil, fmt.Errorf("%w: bad salt", ErrHashFormat)
	}

	stored.key, err = base64.StdEncoding.DecodeString(parts[5])
	if err != nil || len(stored.key) == 0 {
		return nil, fmt.Errorf("%w: bad key", ErrHashFormat)
	}

	return stored, nil
}

func decodeCosts(part string, out *phcHash) error {
	var haveMemory, haveTime, haveParallelism bool

	for _, pair := range strings.Split(part, ",") {
		name, value, ok := strings.Cut(pair, "=")
		if !ok {
			return fmt.Errorf("%w: bad cost entry", ErrHashFormat)
		}

		switch name {
		case "m":
			v, err := strconv.ParseUint(value, 10, 32)
			if err != nil || v == 0 {
				return fmt.Errorf("%w: bad memory cost", ErrHashFormat)
			}
			out.memory = uint32(v)
			haveMemory = true
		case "t":
			v, err := strconv.ParseUint(value, 10, 32)
			if err != nil || v == 0 {
				return fmt.Errorf("%w: bad time cost", ErrHashFormat)
			}
			out.time = uint32(v)
			haveTime = true
		case "p":
			v, err := strconv.ParseUint(value, 10, 8)
			if err != nil || v == 0 {
				return fmt.Errorf("%w: bad parallelism cost", ErrHashFormat)
			}
			out.parallelism = uint8(v)
			haveParallelism = true
		default:
			return fmt.Errorf("%w: unknown cost %q", ErrHashFormat, name)
		}
	}

	if !haveMemory || !haveTime || !haveParallelism {
		return fmt.Errorf("%w: missing cost", ErrHashFormat)
	}
	return nil
}
