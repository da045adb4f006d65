package stores

import (
	"bytes"
	"context"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/redis/go-redis/v9"
)

const challengeRecordVersion1 = 1

var (
	ErrChallengeNotFound = errors.New("two-factor challenge not found")
	ErrChallengeExpired  = errors.New("two-factor challenge expired")
	ErrChallengeBackend  = errors.New("two-factor challenge backend unavailable")
)

// ChallengeRecord is a pending two-factor challenge for one (user, IP) pair.
// CodeHash is the argon2id hash of the numeric code, never the code itself.
type ChallengeRecord struct {
	UserID    string
	TenantID  string
	CodeHash  string
	CreatedAt int64
	ExpiresAt int64
	Attempts  uint16
}

// ChallengeStore persists challenge records in Redis. The key embeds tenant,
// user, and the client binding digest, so a save for the same pair replaces
// the previous challenge.
type ChallengeStore struct {
	redis  redis.UniversalClient
	prefix string
}

// NewChallengeStore creates a [ChallengeStore] with the given key prefix.
func NewChallengeStore(redisClient redis.UniversalClient, prefix string) *ChallengeStore {
	if prefix == "" {
		prefix = "pg:2fa"
	}
	return &ChallengeStore{
		redis:  redisClient,
		prefix: prefix,
	}
}

func (s *ChallengeStore) key(tenantID, userID string, binding [32]byte) string {
	return s.prefix + ":" + tenantID + ":" + userID + ":" + hex.EncodeToString(binding[:])
}

// Save writes the challenge, replacing any live challenge for the same
// (tenant, user, binding) triple.
func (s *ChallengeStore) Save(ctx context.Context, binding [32]byte, record *ChallengeRecord, ttl time.Duration) error {
	encoded, err := encodeChallengeRecord(record)
	if err != nil {
		return err
	}
	if err := s.redis.Set(ctx, s.key(record.TenantID, record.UserID, binding), encoded, ttl).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrChallengeBackend, err)
	}
	return nil
}

// Get loads the challenge for the (tenant, user, binding) triple. Records
// past their expiry are deleted on observation.
func (s *ChallengeStore) Get(ctx context.Context, tenantID, userID string, binding [32]byte) (*ChallengeRecord, error) {
	key := s.key(tenantID, userID, binding)

	data, err := s.redis.Get(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrChallengeNotFound
		}
		return nil, fmt.Errorf("%w: %v", ErrChallengeBackend, err)
	}

	record, err := decodeChallengeRecord(data)
	if err != nil {
		return nil, err
	}
	if time.Now().Unix() > record.ExpiresAt {
		_, _ = s.redis.Del(ctx, key).Result()
		return nil, ErrChallengeExpired
	}
	return record, nil
}

// Delete removes the challenge. Returns true when a record was removed, so
// that exactly one concurrent verifier can win consumption.
func (s *ChallengeStore) Delete(ctx context.Context, tenantID, userID string, binding [32]byte) (bool, error) {
	n, err := s.redis.Del(ctx, s.key(tenantID, userID, binding)).Result()
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrChallengeBackend, err)
	}
	return n > 0, nil
}

// RecordFailure increments the attempt counter in an optimistic transaction.
// When the counter reaches maxAttempts the record is deleted and exceeded is
// true; the caller is expected to tear down the owning session.
func (s *ChallengeStore) RecordFailure(
	ctx context.Context,
	tenantID, userID string,
	binding [32]byte,
	maxAttempts int,
) (exceeded bool, err error) {
	const maxRetries = 4
	key := s.key(tenantID, userID, binding)

	for i := 0; i < maxRetries; i++ {
		var hitCap bool
		err := s.redis.Watch(ctx, func(tx *redis.Tx) error {
			data, err := tx.Get(ctx, key).Bytes()
			if err != nil {
				return err
			}

			record, err := decodeChallengeRecord(data)
			if err != nil {
				return err
			}

			ttl := time.Until(time.Unix(record.ExpiresAt, 0))
			if ttl <= 0 {
				_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
					pipe.Del(ctx, key)
					return nil
				})
				if err != nil {
					return err
				}
				return ErrChallengeExpired
			}

			record.Attempts++
			if int(record.Attempts) >= maxAttempts {
				hitCap = true
				_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
					pipe.Del(ctx, key)
					return nil
				})
				return err
			}

			updated, err := encodeChallengeRecord(record)
			if err != nil {
				return err
			}
			_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
				pipe.Set(ctx, key, updated, ttl)
				return nil
			})
			return err
		}, key)

		if err == redis.TxFailedErr {
			continue
		}
		if err != nil {
			if errors.Is(err, redis.Nil) {
				return false, ErrChallengeNotFound
			}
			if errors.Is(err, ErrChallengeExpired) {
				return false, err
			}
			return false, fmt.Errorf("%w: %v", ErrChallengeBackend, err)
		}
		return hitCap, nil
	}

	return false, ErrChallengeNotFound
}

func encodeChallengeRecord(record *ChallengeRecord) ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte(challengeRecordVersion1)

	if err := binary.Write(&buf, binary.BigEndian, record.Attempts); err != nil {
		return nil, err
	}
	if err := binary.Write(&buf, binary.BigEndian, record.CreatedAt); err != nil {
		return nil, err
	}
	if err := binary.Write(&buf, binary.BigEndian, record.ExpiresAt); err != nil {
		return nil, err
	}

	for _, field := range []string{record.UserID, record.TenantID, record.CodeHash} {
		if len(field) > 65535 {
			return nil, errors.New("challenge record field length exceeded")
		}
		if err := binary.Write(&buf, binary.BigEndian, uint16(len(field))); err != nil {
			return nil, err
		}
		buf.WriteString(field)
	}

	return buf.Bytes(), nil
}

func decodeChallengeRecord(data []byte) (*ChallengeRecord, error) {
	reader := bytes.NewReader(data)

	version, err := reader.ReadByte()
	if err != nil {
		return nil, err
	}
	if version != challengeRecordVersion1 {
		return nil, errors.New("invalid challenge record version")
	}

	record := &ChallengeRecord{}
	if err := binary.Read(reader, binary.BigEndian, &record.Attempts); err != nil {
		return nil, err
	}
	if err := binary.Read(reader, binary.BigEndian, &record.CreatedAt); err != nil {
		return nil, err
	}
	if err := binary.Read(reader, binary.BigEndian, &record.ExpiresAt); err != nil {
		return nil, err
	}

	for _, field := range []*string{&record.UserID, &record.TenantID, &record.CodeHash} {
		var length uint16
		if err := binary.Read(reader, binary.BigEndian, &length); err != nil {
			return nil, err
		}
		raw := make([]byte, length)
		if _, err := io.ReadFull(reader, raw); err != nil {
			return nil, err
		}
		*field = string(raw)
	}

	return record, nil
}
