// Package store bundles the identity and vault repositories behind one
// facade with a transaction scope. The multi-entity mutations (password
// change with vault re-encryption, account deletion with cascade) run
// through WithinTx so both entities commit or neither does.
package store

import (
	"context"

	"github.com/zkvault/zkvault/internal/identity"
	"github.com/zkvault/zkvault/internal/vault"
)

// Store exposes the repositories plus an all-or-nothing transaction scope.
type Store interface {
	Identities() identity.Repository
	Vaults() vault.Repository

	// WithinTx runs fn against a Store whose repositories share one
	// transaction. fn returning an error rolls everything back.
	WithinTx(ctx context.Context, fn func(tx Store) error) error
}
