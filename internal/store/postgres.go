package store

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/zkvault/zkvault/internal/dbx"
	"github.com/zkvault/zkvault/internal/identity"
	"github.com/zkvault/zkvault/internal/vault"
)

// PostgresStore backs the facade with a pgx pool. Transactional stores are
// the same repositories rebound to a pgx.Tx.
type PostgresStore struct {
	pool       *pgxpool.Pool
	identities identity.Repository
	vaults     vault.Repository
}

// NewPostgresStore builds the facade over a connection pool.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{
		pool:       pool,
		identities: identity.NewPostgresRepository(pool),
		vaults:     vault.NewPostgresRepository(pool),
	}
}

func (s *PostgresStore) Identities() identity.Repository { return s.identities }
func (s *PostgresStore) Vaults() vault.Repository        { return s.vaults }

// WithinTx runs fn with repositories bound to a single transaction.
func (s *PostgresStore) WithinTx(ctx context.Context, fn func(tx Store) error) error {
	return dbx.WithTx(ctx, s.pool, func(ctx context.Context, tx pgx.Tx) error {
		return fn(&txStore{
			identities: identity.NewPostgresRepository(tx),
			vaults:     vault.NewPostgresRepository(tx),
		})
	})
}

type txStore struct {
	identities identity.Repository
	vaults     vault.Repository
}

func (s *txStore) Identities() identity.Repository { return s.identities }
func (s *txStore) Vaults() vault.Repository        { return s.vaults }

func (s *txStore) WithinTx(context.Context, func(tx Store) error) error {
	return errors.New("nested transactions are not supported")
}
