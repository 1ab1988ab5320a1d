package vault

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/zkvault/zkvault/internal/dbx"
)

// ErrNoRows is returned when a lookup matches no vault.
var ErrNoRows = errors.New("vault not found")

// ErrDuplicate is returned when the vault_id (or owner) uniqueness
// constraint rejects an insert. The constraint is the enforcement point;
// the service-level existence check is only a friendlier fast path.
var ErrDuplicate = errors.New("vault already exists")

// Repository persists vault blobs.
type Repository interface {
	Create(ctx context.Context, v Vault) error
	GetByVaultID(ctx context.Context, vaultID string) (Vault, error)
	GetByOwner(ctx context.Context, ownerID string) (Vault, error)
	Update(ctx context.Context, vaultID string, update Update) error
	Delete(ctx context.Context, vaultID string) error
	DeleteByOwner(ctx context.Context, ownerID string) error
}

// PostgresRepository stores vaults in PostgreSQL. The querier may be a pool
// or a transaction handle.
type PostgresRepository struct {
	db dbx.Querier
}

// NewPostgresRepository builds a Postgres-backed vault repository.
func NewPostgresRepository(db dbx.Querier) *PostgresRepository {
	return &PostgresRepository{db: db}
}

const vaultColumns = `vault_id, owner_id, ciphertext, iv, salt, version, created_at, updated_at`

// Create inserts a vault record.
func (r *PostgresRepository) Create(ctx context.Context, v Vault) error {
	vaultID, err := uuid.Parse(v.VaultID)
	if err != nil {
		return err
	}
	ownerID, err := uuid.Parse(v.OwnerID)
	if err != nil {
		return err
	}
	_, err = r.db.Exec(ctx, `INSERT INTO vaults (vault_id, owner_id, ciphertext, iv, salt, version, created_at, updated_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		vaultID, ownerID, v.Ciphertext, v.IV, v.Salt, v.Version, v.CreatedAt.UTC(), v.UpdatedAt.UTC())
	if isUniqueViolation(err) {
		return ErrDuplicate
	}
	return err
}

// GetByVaultID fetches a vault by its external handle.
func (r *PostgresRepository) GetByVaultID(ctx context.Context, vaultID string) (Vault, error) {
	id, err := uuid.Parse(vaultID)
	if err != nil {
		return Vault{}, ErrNoRows
	}
	row := r.db.QueryRow(ctx, `SELECT `+vaultColumns+` FROM vaults WHERE vault_id = $1`, id)
	return scanVault(row)
}

// GetByOwner fetches the single vault owned by the identity.
func (r *PostgresRepository) GetByOwner(ctx context.Context, ownerID string) (Vault, error) {
	id, err := uuid.Parse(ownerID)
	if err != nil {
		return Vault{}, ErrNoRows
	}
	row := r.db.QueryRow(ctx, `SELECT `+vaultColumns+` FROM vaults WHERE owner_id = $1`, id)
	return scanVault(row)
}

// Update replaces the blob fields and bumps updated_at. A nil salt keeps the
// stored value.
func (r *PostgresRepository) Update(ctx context.Context, vaultID string, update Update) error {
	id, err := uuid.Parse(vaultID)
	if err != nil {
		return ErrNoRows
	}
	cmd, err := r.db.Exec(ctx, `UPDATE vaults
        SET ciphertext = $1, iv = $2, version = $3, salt = COALESCE($4, salt), updated_at = $5
        WHERE vault_id = $6`,
		update.Ciphertext, update.IV, update.Version, update.Salt, time.Now().UTC(), id)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ErrNoRows
	}
	return nil
}

// Delete removes a vault by its handle.
func (r *PostgresRepository) Delete(ctx context.Context, vaultID string) error {
	id, err := uuid.Parse(vaultID)
	if err != nil {
		return ErrNoRows
	}
	cmd, err := r.db.Exec(ctx, `DELETE FROM vaults WHERE vault_id = $1`, id)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ErrNoRows
	}
	return nil
}

// DeleteByOwner removes every vault owned by the identity. Used by the
// account-deletion cascade; deleting zero rows is not an error.
func (r *PostgresRepository) DeleteByOwner(ctx context.Context, ownerID string) error {
	id, err := uuid.Parse(ownerID)
	if err != nil {
		return nil
	}
	_, err = r.db.Exec(ctx, `DELETE FROM vaults WHERE owner_id = $1`, id)
	return err
}

func scanVault(row pgx.Row) (Vault, error) {
	var (
		vaultID uuid.UUID
		ownerID uuid.UUID
		v       Vault
	)
	err := row.Scan(&vaultID, &ownerID, &v.Ciphertext, &v.IV, &v.Salt, &v.Version, &v.CreatedAt, &v.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Vault{}, ErrNoRows
		}
		return Vault{}, err
	}
	v.VaultID = vaultID.String()
	v.OwnerID = ownerID.String()
	v.CreatedAt = v.CreatedAt.UTC()
	v.UpdatedAt = v.UpdatedAt.UTC()
	return v, nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
