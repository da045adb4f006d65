package stores

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/redis/go-redis/v9"
)

const sessionRecordVersion1 = 1

const sessionAuthenticatedFlag = 0x01

var (
	ErrSessionNotFound = errors.New("session record not found")
	ErrSessionExpired  = errors.New("session record expired")
	ErrSessionBackend  = errors.New("session backend unavailable")
)

// SessionRecord is the server-side state for one issued token.
type SessionRecord struct {
	UserID        string
	TenantID      string
	BindingHash   [32]byte
	Authenticated bool
	ChallengeRef  string
	CreatedAt     int64
	ExpiresAt     int64
}

// SessionStore persists session records in Redis. Alongside each record it
// keeps a per-user slot key holding the user's current session id; saving a
// new session through the slot deletes the one it replaces.
type SessionStore struct {
	redis  redis.UniversalClient
	prefix string
}

// NewSessionStore creates a [SessionStore] with the given key prefix.
func NewSessionStore(redisClient redis.UniversalClient, prefix string) *SessionStore {
	if prefix == "" {
		prefix = "pg:sess"
	}
	return &SessionStore{
		redis:  redisClient,
		prefix: prefix,
	}
}

func (s *SessionStore) recordKeyPrefix() string {
	return s.prefix + ":r:"
}

func (s *SessionStore) recordKey(sessionID string) string {
	return s.recordKeyPrefix() + sessionID
}

func (s *SessionStore) slotKey(userID string) string {
	return s.prefix + ":u:" + userID
}

const saveSessionScript = `
local evicted = 0
local prev = redis.call("GET", KEYS[2])
if prev and prev ~= ARGV[1] then
  redis.call("DEL", ARGV[4] .. prev)
  evicted = 1
end
redis.call("SET", KEYS[1], ARGV[2], "PX", ARGV[3])
redis.call("SET", KEYS[2], ARGV[1], "PX", ARGV[3])
return evicted
`

var saveSessionLua = redis.NewScript(saveSessionScript)

const deleteSessionScript = `
local existed = redis.call("DEL", KEYS[1])
if redis.call("GET", KEYS[2]) == ARGV[1] then
  redis.call("DEL", KEYS[2])
end
return existed
`

var deleteSessionLua = redis.NewScript(deleteSessionScript)

const deleteUserSessionScript = `
local sid = redis.call("GET", KEYS[1])
if not sid then
  return 0
end
redis.call("DEL", ARGV[1] .. sid)
redis.call("DEL", KEYS[1])
return 1
`

var deleteUserSessionLua = redis.NewScript(deleteUserSessionScript)

// Save writes the record under sessionID and points the user's slot at it.
// Returns true when a previous session for the same user was evicted.
func (s *SessionStore) Save(ctx context.Context, sessionID string, record *SessionRecord, ttl time.Duration) (bool, error) {
	encoded, err := encodeSessionRecord(record)
	if err != nil {
		return false, err
	}
	if ttl <= 0 {
		return false, errors.New("non-positive session ttl")
	}

	evicted, err := saveSessionLua.Run(
		ctx,
		s.redis,
		[]string{s.recordKey(sessionID), s.slotKey(record.UserID)},
		sessionID,
		encoded,
		ttl.Milliseconds(),
		s.recordKeyPrefix(),
	).Int64()
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrSessionBackend, err)
	}

	return evicted == 1, nil
}

// Get loads the record for sessionID. A record past its absolute expiry is
// deleted on observation and reported as [ErrSessionExpired].
func (s *SessionStore) Get(ctx context.Context, sessionID string) (*SessionRecord, error) {
	data, err := s.redis.Get(ctx, s.recordKey(sessionID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrSessionNotFound
		}
		return nil, fmt.Errorf("%w: %v", ErrSessionBackend, err)
	}

	record, err := decodeSessionRecord(data)
	if err != nil {
		return nil, err
	}
	if time.Now().Unix() > record.ExpiresAt {
		_, _ = s.Delete(ctx, sessionID, record.UserID)
		return nil, ErrSessionExpired
	}
	return record, nil
}

// Update rewrites an existing record in place, preserving its TTL.
func (s *SessionStore) Update(ctx context.Context, sessionID string, record *SessionRecord) error {
	encoded, err := encodeSessionRecord(record)
	if err != nil {
		return err
	}

	set, err := s.redis.SetXX(ctx, s.recordKey(sessionID), encoded, redis.KeepTTL).Result()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrSessionBackend, err)
	}
	if !set {
		return ErrSessionNotFound
	}
	return nil
}

// Delete removes the record and, when it is the user's current session,
// clears the slot. Returns true when a record existed.
func (s *SessionStore) Delete(ctx context.Context, sessionID, userID string) (bool, error) {
	existed, err := deleteSessionLua.Run(
		ctx,
		s.redis,
		[]string{s.recordKey(sessionID), s.slotKey(userID)},
		sessionID,
	).Int64()
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrSessionBackend, err)
	}
	return existed > 0, nil
}

// DeleteForUser removes the user's current session, if any.
// Returns true when a session was removed.
func (s *SessionStore) DeleteForUser(ctx context.Context, userID string) (bool, error) {
	removed, err := deleteUserSessionLua.Run(
		ctx,
		s.redis,
		[]string{s.slotKey(userID)},
		s.recordKeyPrefix(),
	).Int64()
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrSessionBackend, err)
	}
	return removed == 1, nil
}

func encodeSessionRecord(record *SessionRecord) ([]byte, error) {
	// Pending records carry a challenge reference; authenticated ones must not.
	if record.Authenticated == (record.ChallengeRef != "") {
		return nil, errors.New("session record challenge state inconsistent")
	}

	var buf bytes.Buffer
	buf.WriteByte(sessionRecordVersion1)

	var flags byte
	if record.Authenticated {
		flags |= sessionAuthenticatedFlag
	}
	buf.WriteByte(flags)

	if err := binary.Write(&buf, binary.BigEndian, record.CreatedAt); err != nil {
		return nil, err
	}
	if err := binary.Write(&buf, binary.BigEndian, record.ExpiresAt); err != nil {
		return nil, err
	}
	buf.Write(record.BindingHash[:])

	for _, field := range []string{record.UserID, record.TenantID, record.ChallengeRef} {
		if len(field) > 65535 {
			return nil, errors.New("session record field length exceeded")
		}
		if err := binary.Write(&buf, binary.BigEndian, uint16(len(field))); err != nil {
			return nil, err
		}
		buf.WriteString(field)
	}

	return buf.Bytes(), nil
}

func decodeSessionRecord(data []byte) (*SessionRecord, error) {
	reader := bytes.NewReader(data)

	version, err := reader.ReadByte()
	if err != nil {
		return nil, err
	}
	if version != sessionRecordVersion1 {
		return nil, errors.New("invalid session record version")
	}

	flags, err := reader.ReadByte()
	if err != nil {
		return nil, err
	}

	record := &SessionRecord{
		Authenticated: flags&sessionAuthenticatedFlag != 0,
	}
	if err := binary.Read(reader, binary.BigEndian, &record.CreatedAt); err != nil {
		return nil, err
	}
	if err := binary.Read(reader, binary.BigEndian, &record.ExpiresAt); err != nil {
		return nil, err
	}
	if _, err := io.ReadFull(reader, record.BindingHash[:]); err != nil {
		return nil, err
	}

	for _, field := range []*string{&record.UserID, &record.TenantID, &record.ChallengeRef} {
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
