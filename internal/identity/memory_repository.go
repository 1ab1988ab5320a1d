package identity

import (
	"context"
	"sort"
	"sync"
	"time"
)

type memoryState struct {
	mu    sync.RWMutex
	users map[string]User
}

// MemoryRepository is an in-memory Repository for tests and dev mode.
type MemoryRepository struct {
	state *memoryState
}

// NewMemoryRepository builds an in-memory identity store.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{state: &memoryState{users: make(map[string]User)}}
}

func cloneUser(u User) User {
	if u.Password != nil {
		p := *u.Password
		u.Password = &p
	}
	if u.Wallet != nil {
		w := *u.Wallet
		u.Wallet = &w
	}
	return u
}

func (r *MemoryRepository) Create(_ context.Context, user User) error {
	r.state.mu.Lock()
	defer r.state.mu.Unlock()
	if user.Wallet != nil {
		for _, existing := range r.state.users {
			if existing.Wallet != nil && existing.Wallet.Address == user.Wallet.Address {
				return ErrDuplicate
			}
		}
	}
	r.state.users[user.ID] = cloneUser(user)
	return nil
}

func (r *MemoryRepository) FindByID(_ context.Context, id string) (User, error) {
	r.state.mu.RLock()
	defer r.state.mu.RUnlock()
	user, ok := r.state.users[id]
	if !ok {
		return User{}, ErrNoRows
	}
	return cloneUser(user), nil
}

func (r *MemoryRepository) FindAllByUsername(_ context.Context, username string) ([]User, error) {
	r.state.mu.RLock()
	defer r.state.mu.RUnlock()
	var users []User
	for _, user := range r.state.users {
		if user.Password != nil && user.Password.Username == username {
			users = append(users, cloneUser(user))
		}
	}
	sort.Slice(users, func(i, j int) bool { return users[i].CreatedAt.Before(users[j].CreatedAt) })
	return users, nil
}

func (r *MemoryRepository) FindByWallet(_ context.Context, address string) (User, error) {
	r.state.mu.RLock()
	defer r.state.mu.RUnlock()
	for _, user := range r.state.users {
		if user.Wallet != nil && user.Wallet.Address == address {
			return cloneUser(user), nil
		}
	}
	return User{}, ErrNoRows
}

func (r *MemoryRepository) SaltsByUsername(ctx context.Context, username string) ([]string, error) {
	users, err := r.FindAllByUsername(ctx, username)
	if err != nil {
		return nil, err
	}
	salts := []string{}
	for _, user := range users {
		salts = append(salts, user.Password.Salt)
	}
	return salts, nil
}

func (r *MemoryRepository) UpdateCredentials(_ context.Context, id, authHash, salt string) error {
	r.state.mu.Lock()
	defer r.state.mu.Unlock()
	user, ok := r.state.users[id]
	if !ok || user.Password == nil {
		return ErrNoRows
	}
	user = cloneUser(user)
	user.Password.AuthHash = authHash
	user.Password.Salt = salt
	user.TokenVersion++
	user.UpdatedAt = time.Now().UTC()
	r.state.users[id] = user
	return nil
}

func (r *MemoryRepository) Delete(_ context.Context, id string) error {
	r.state.mu.Lock()
	defer r.state.mu.Unlock()
	if _, ok := r.state.users[id]; !ok {
		return ErrNoRows
	}
	delete(r.state.users, id)
	return nil
}

// Snapshot returns a deep copy of the stored users, and Restore replaces the
// contents wholesale. The in-memory store facade uses the pair to emulate
// transaction rollback.
func (r *MemoryRepository) Snapshot() map[string]User {
	r.state.mu.RLock()
	defer r.state.mu.RUnlock()
	snap := make(map[string]User, len(r.state.users))
	for id, user := range r.state.users {
		snap[id] = cloneUser(user)
	}
	return snap
}

func (r *MemoryRepository) Restore(snap map[string]User) {
	r.state.mu.Lock()
	defer r.state.mu.Unlock()
	r.state.users = make(map[string]User, len(snap))
	for id, user := range snap {
		r.state.users[id] = cloneUser(user)
	}
}
