package store

import (
	"context"
	"errors"
	"sync"

	"github.com/zkvault/zkvault/internal/identity"
	"github.com/zkvault/zkvault/internal/vault"
)

// MemoryStore backs the facade with in-memory repositories for tests and
// dev mode. WithinTx emulates rollback by snapshotting both repositories
// before fn runs and restoring on failure; a store-wide lock serializes
// transactions.
type MemoryStore struct {
	txMu       sync.Mutex
	identities *identity.MemoryRepository
	vaults     *vault.MemoryRepository
}

// NewMemoryStore builds an in-memory store facade.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		identities: identity.NewMemoryRepository(),
		vaults:     vault.NewMemoryRepository(),
	}
}

func (s *MemoryStore) Identities() identity.Repository { return s.identities }
func (s *MemoryStore) Vaults() vault.Repository        { return s.vaults }

// WithinTx applies fn and restores the pre-transaction snapshots when it fails.
func (s *MemoryStore) WithinTx(_ context.Context, fn func(tx Store) error) error {
	s.txMu.Lock()
	defer s.txMu.Unlock()

	identitySnap := s.identities.Snapshot()
	vaultSnap := s.vaults.Snapshot()

	if err := fn(&memoryTxStore{parent: s}); err != nil {
		s.identities.Restore(identitySnap)
		s.vaults.Restore(vaultSnap)
		return err
	}
	return nil
}

type memoryTxStore struct {
	parent *MemoryStore
}

func (s *memoryTxStore) Identities() identity.Repository { return s.parent.identities }
func (s *memoryTxStore) Vaults() vault.Repository        { return s.parent.vaults }

func (s *memoryTxStore) WithinTx(context.Context, func(tx Store) error) error {
	return errors.New("nested transactions are not supported")
}
