package mocks

import (
	"context"
	"database/sql"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/mumahendras3/packer-server/internal/domain"
	"github.com/mumahendras3/packer-server/internal/store"
	"golang.org/x/crypto/bcrypt"
)

// MemoryUserStore is an in-memory store.UserStore. Like the postgres store it
// hashes the plaintext password on Create and matches emails case-insensitively.
type MemoryUserStore struct {
	mu    sync.Mutex
	users map[string]*domain.User

	// Err fields, when set, are returned instead of touching the store.
	CreateErr     error
	GetByEmailErr error
}

// NewMemoryUserStore creates an empty store.
func NewMemoryUserStore() *MemoryUserStore {
	return &MemoryUserStore{users: make(map[string]*domain.User)}
}

// Create implements store.UserStore.
func (m *MemoryUserStore) Create(_ context.Context, user *domain.User) error {
	if m.CreateErr != nil {
		return m.CreateErr
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	key := strings.ToLower(user.Email)
	if _, exists := m.users[key]; exists {
		return store.ErrEmailExists
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(user.Password), bcrypt.MinCost)
	if err != nil {
		return err
	}
	user.HashedPassword = string(hash)
	user.Password = ""

	stored := *user
	m.users[key] = &stored
	return nil
}

// GetByEmail implements store.UserStore.
func (m *MemoryUserStore) GetByEmail(_ context.Context, email string) (*domain.User, error) {
	if m.GetByEmailErr != nil {
		return nil, m.GetByEmailErr
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	user, ok := m.users[strings.ToLower(strings.TrimSpace(email))]
	if !ok {
		return nil, store.ErrUserNotFound
	}
	c := *user
	return &c, nil
}

// GetByID implements store.UserStore.
func (m *MemoryUserStore) GetByID(_ context.Context, id uuid.UUID) (*domain.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, user := range m.users {
		if user.ID == id {
			c := *user
			return &c, nil
		}
	}
	return nil, store.ErrUserNotFound
}

// WithTx returns the same store; the memory store has no transactions.
func (m *MemoryUserStore) WithTx(*sql.Tx) store.UserStore {
	return m
}

// Len reports the number of stored users.
func (m *MemoryUserStore) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.users)
}
