package vault

import (
	"context"
	"sync"
	"time"
)

// MemoryRepository is an in-memory Repository for tests and dev mode.
type MemoryRepository struct {
	mu     sync.RWMutex
	vaults map[string]Vault
}

// NewMemoryRepository builds an in-memory vault store.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{vaults: make(map[string]Vault)}
}

func (r *MemoryRepository) Create(_ context.Context, v Vault) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.vaults[v.VaultID]; exists {
		return ErrDuplicate
	}
	for _, existing := range r.vaults {
		if existing.OwnerID == v.OwnerID {
			return ErrDuplicate
		}
	}
	r.vaults[v.VaultID] = v
	return nil
}

func (r *MemoryRepository) GetByVaultID(_ context.Context, vaultID string) (Vault, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	v, ok := r.vaults[vaultID]
	if !ok {
		return Vault{}, ErrNoRows
	}
	return v, nil
}

func (r *MemoryRepository) GetByOwner(_ context.Context, ownerID string) (Vault, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, v := range r.vaults {
		if v.OwnerID == ownerID {
			return v, nil
		}
	}
	return Vault{}, ErrNoRows
}

func (r *MemoryRepository) Update(_ context.Context, vaultID string, update Update) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	v, ok := r.vaults[vaultID]
	if !ok {
		return ErrNoRows
	}
	v.Ciphertext = update.Ciphertext
	v.IV = update.IV
	v.Version = update.Version
	if update.Salt != nil {
		v.Salt = *update.Salt
	}
	v.UpdatedAt = time.Now().UTC()
	r.vaults[vaultID] = v
	return nil
}

func (r *MemoryRepository) Delete(_ context.Context, vaultID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.vaults[vaultID]; !ok {
		return ErrNoRows
	}
	delete(r.vaults, vaultID)
	return nil
}

func (r *MemoryRepository) DeleteByOwner(_ context.Context, ownerID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for id, v := range r.vaults {
		if v.OwnerID == ownerID {
			delete(r.vaults, id)
		}
	}
	return nil
}

// Snapshot and Restore support transaction emulation in the in-memory store.
func (r *MemoryRepository) Snapshot() map[string]Vault {
	r.mu.RLock()
	defer r.mu.RUnlock()
	snap := make(map[string]Vault, len(r.vaults))
	for id, v := range r.vaults {
		snap[id] = v
	}
	return snap
}

func (r *MemoryRepository) Restore(snap map[string]Vault) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.vaults = make(map[string]Vault, len(snap))
	for id, v := range snap {
		r.vaults[id] = v
	}
}
