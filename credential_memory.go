package phishgate

import (
	"context"
	"sync"
)

// MemoryCredentialStore is an in-process [CredentialStore] for tests and
// examples. Emails are unique across all tenants, matching the global unique
// index a production store puts on the email column; login resolves by email
// alone, so a per-tenant index would make the lookup ambiguous.
type MemoryCredentialStore struct {
	mu      sync.RWMutex
	byID    map[string]*UserRecord
	byEmail map[string]string // normalized email -> user id
}

// NewMemoryCredentialStore returns an empty store.
func NewMemoryCredentialStore() *MemoryCredentialStore {
	return &MemoryCredentialStore{
		byID:    make(map[string]*UserRecord),
		byEmail: make(map[string]string),
	}
}

func (s *MemoryCredentialStore) GetUserByEmail(_ context.Context, email string) (*UserRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	userID, ok := s.byEmail[normalizeEmail(email)]
	if !ok {
		return nil, ErrUserNotFound
	}
	clone := *s.byID[userID]
	return &clone, nil
}

func (s *MemoryCredentialStore) GetUserByID(_ context.Context, userID string) (*UserRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	user, ok := s.byID[userID]
	if !ok {
		return nil, ErrUserNotFound
	}
	clone := *user
	return &clone, nil
}

func (s *MemoryCredentialStore) CreateUser(_ context.Context, user *UserRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	email := normalizeEmail(user.Email)
	if _, exists := s.byEmail[email]; exists {
		return ErrAccountExists
	}
	if _, exists := s.byID[user.UserID]; exists {
		return ErrAccountExists
	}

	clone := *user
	clone.Email = email
	s.byID[clone.UserID] = &clone
	s.byEmail[email] = clone.UserID
	return nil
}

func (s *MemoryCredentialStore) UpdateUser(_ context.Context, user *UserRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, ok := s.byID[user.UserID]
	if !ok {
		return ErrUserNotFound
	}

	email := normalizeEmail(user.Email)
	if email != current.Email {
		if owner, exists := s.byEmail[email]; exists && owner != user.UserID {
			return ErrAccountExists
		}
		delete(s.byEmail, current.Email)
		s.byEmail[email] = user.UserID
	}

	clone := *user
	clone.Email = email
	s.byID[clone.UserID] = &clone
	return nil
}

func (s *MemoryCredentialStore) UpdatePasswordHash(_ context.Context, userID, passwordHash string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	user, ok := s.byID[userID]
	if !ok {
		return ErrUserNotFound
	}
	user.PasswordHash = passwordHash
	return nil
}
