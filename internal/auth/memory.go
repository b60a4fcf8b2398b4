package auth

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

// MemoryStore keeps users in memory. Development and tests only.
type MemoryStore struct {
	mu    sync.RWMutex
	users map[string]*User
}

// NewMemory creates an empty in-memory user store.
func NewMemory() *MemoryStore {
	return &MemoryStore{users: make(map[string]*User)}
}

func (s *MemoryStore) Create(_ context.Context, username, password string) (*User, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.users[username]; exists {
		return nil, ErrUserExists
	}
	u := &User{
		ID:           uuid.NewString(),
		Username:     username,
		CreatedAt:    time.Now().UTC(),
		passwordHash: hash,
	}
	s.users[username] = u
	return u, nil
}

func (s *MemoryStore) Authenticate(_ context.Context, username, password string) (*User, error) {
	s.mu.RLock()
	u, ok := s.users[username]
	s.mu.RUnlock()
	if !ok {
		// Burn comparable time so probing usernames reveals nothing.
		bcrypt.CompareHashAndPassword(dummyHash, []byte(password))
		return nil, ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword(u.passwordHash, []byte(password)); err != nil {
		return nil, ErrInvalidCredentials
	}
	return u, nil
}

func (s *MemoryStore) Close() error { return nil }

var dummyHash, _ = bcrypt.GenerateFromPassword([]byte("kiln-dummy"), bcrypt.DefaultCost)
