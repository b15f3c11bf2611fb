// Package memory holds in-process repositories used for local development and
// tests. They enforce the same uniqueness rules as the Mongo store.
package memory

import (
	"context"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/unza/counseling-identity/internal/core/domain"
)

type UserRepository struct {
	mu         sync.RWMutex
	byID       map[string]*domain.User
	byEmail    map[string]string
	byUsername map[string]string
}

func NewUserRepository() *UserRepository {
	return &UserRepository{
		byID:       make(map[string]*domain.User),
		byEmail:    make(map[string]string),
		byUsername: make(map[string]string),
	}
}

func key(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

func (r *UserRepository) FindByEmail(_ context.Context, email string) (*domain.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	id, ok := r.byEmail[key(email)]
	if !ok {
		return nil, domain.ErrUserNotFound
	}
	return r.byID[id].Clone(), nil
}

func (r *UserRepository) FindByUsername(_ context.Context, username string) (*domain.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	id, ok := r.byUsername[key(username)]
	if !ok {
		return nil, domain.ErrUserNotFound
	}
	return r.byID[id].Clone(), nil
}

func (r *UserRepository) ExistsByEmail(_ context.Context, email string) (bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.byEmail[key(email)]
	return ok, nil
}

func (r *UserRepository) Create(_ context.Context, user *domain.User) (*domain.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	email, username := key(user.Email), key(user.Username)
	if _, ok := r.byEmail[email]; ok {
		return nil, domain.ErrUserExists
	}
	if _, ok := r.byUsername[username]; ok && username != "" {
		return nil, domain.ErrUserExists
	}

	stored := user.Clone()
	stored.Email, stored.Username = email, username
	if stored.ID == "" {
		stored.ID = uuid.NewString()
	}
	r.byID[stored.ID] = stored
	r.byEmail[email] = stored.ID
	if username != "" {
		r.byUsername[username] = stored.ID
	}
	return stored.Clone(), nil
}

func (r *UserRepository) Update(_ context.Context, user *domain.User) (*domain.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	current, ok := r.byID[user.ID]
	if !ok {
		return nil, domain.ErrUserNotFound
	}

	email, username := key(user.Email), key(user.Username)
	if id, ok := r.byEmail[email]; ok && id != user.ID {
		return nil, domain.ErrUserExists
	}
	if id, ok := r.byUsername[username]; ok && id != user.ID {
		return nil, domain.ErrUserExists
	}

	delete(r.byEmail, key(current.Email))
	delete(r.byUsername, key(current.Username))

	stored := user.Clone()
	stored.Email, stored.Username = email, username
	stored.CreatedAt = current.CreatedAt
	r.byID[stored.ID] = stored
	r.byEmail[email] = stored.ID
	if username != "" {
		r.byUsername[username] = stored.ID
	}
	return stored.Clone(), nil
}

// Len reports how many users are stored.
func (r *UserRepository) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byID)
}
