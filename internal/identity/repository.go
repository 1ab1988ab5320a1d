package identity

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/zkvault/zkvault/internal/dbx"
)

// ErrNoRows is returned by repositories when a lookup matches nothing.
// Services translate it into the typed taxonomy.
var ErrNoRows = errors.New("identity not found")

// ErrDuplicate is returned when a storage uniqueness constraint rejects an
// insert (wallet address collision).
var ErrDuplicate = errors.New("identity already exists")

// Repository persists identities.
type Repository interface {
	Create(ctx context.Context, user User) error
	FindByID(ctx context.Context, id string) (User, error)
	FindAllByUsername(ctx context.Context, username string) ([]User, error)
	FindByWallet(ctx context.Context, address string) (User, error)
	SaltsByUsername(ctx context.Context, username string) ([]string, error)
	UpdateCredentials(ctx context.Context, id, authHash, salt string) error
	Delete(ctx context.Context, id string) error
}

// PostgresRepository implements Repository over pgx. The querier may be a
// pool or a transaction handle.
type PostgresRepository struct {
	db dbx.Querier
}

// NewPostgresRepository builds a Postgres-backed identity repository.
func NewPostgresRepository(db dbx.Querier) *PostgresRepository {
	return &PostgresRepository{db: db}
}

const identityColumns = `id, auth_type, username, auth_hash, salt, wallet_address, message_version, token_version, created_at, updated_at`

// Create inserts a new identity of either variant.
func (r *PostgresRepository) Create(ctx context.Context, user User) error {
	id, err := uuid.Parse(user.ID)
	if err != nil {
		return err
	}

	var username, authHash, salt, walletAddress *string
	var messageVersion *int
	if user.Password != nil {
		username = &user.Password.Username
		authHash = &user.Password.AuthHash
		salt = &user.Password.Salt
	}
	if user.Wallet != nil {
		walletAddress = &user.Wallet.Address
		messageVersion = &user.Wallet.MessageVersion
	}

	_, err = r.db.Exec(ctx, `INSERT INTO identities (id, auth_type, username, auth_hash, salt, wallet_address, message_version, token_version, created_at, updated_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		id, string(user.AuthType), username, authHash, salt, walletAddress, messageVersion,
		user.TokenVersion, user.CreatedAt.UTC(), user.UpdatedAt.UTC())
	if isUniqueViolation(err) {
		return ErrDuplicate
	}
	return err
}

// FindByID fetches an identity by its id.
func (r *PostgresRepository) FindByID(ctx context.Context, id string) (User, error) {
	userID, err := uuid.Parse(id)
	if err != nil {
		return User{}, ErrNoRows
	}
	row := r.db.QueryRow(ctx, `SELECT `+identityColumns+` FROM identities WHERE id = $1`, userID)
	return scanUser(row)
}

// FindAllByUsername returns every password identity sharing the username.
// Usernames are not unique; callers disambiguate by hash verification.
func (r *PostgresRepository) FindAllByUsername(ctx context.Context, username string) ([]User, error) {
	rows, err := r.db.Query(ctx, `SELECT `+identityColumns+` FROM identities
        WHERE auth_type = 'password' AND username = $1 ORDER BY created_at`, username)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var users []User
	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		users = append(users, user)
	}
	return users, rows.Err()
}

// FindByWallet fetches a wallet identity by lowercased address.
func (r *PostgresRepository) FindByWallet(ctx context.Context, address string) (User, error) {
	row := r.db.QueryRow(ctx, `SELECT `+identityColumns+` FROM identities
        WHERE auth_type = 'wallet' AND wallet_address = $1`, address)
	return scanUser(row)
}

// SaltsByUsername returns the salts of every identity sharing the username.
func (r *PostgresRepository) SaltsByUsername(ctx context.Context, username string) ([]string, error) {
	rows, err := r.db.Query(ctx, `SELECT salt FROM identities
        WHERE auth_type = 'password' AND username = $1 ORDER BY created_at`, username)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	salts := []string{}
	for rows.Next() {
		var salt string
		if err := rows.Scan(&salt); err != nil {
			return nil, err
		}
		salts = append(salts, salt)
	}
	return salts, rows.Err()
}

// UpdateCredentials replaces the stored hash and salt, bumps the token
// version so outstanding bearer tokens are revoked, and touches updated_at.
func (r *PostgresRepository) UpdateCredentials(ctx context.Context, id, authHash, salt string) error {
	userID, err := uuid.Parse(id)
	if err != nil {
		return ErrNoRows
	}
	cmd, err := r.db.Exec(ctx, `UPDATE identities
        SET auth_hash = $1, salt = $2, token_version = token_version + 1, updated_at = $3
        WHERE id = $4`, authHash, salt, time.Now().UTC(), userID)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ErrNoRows
	}
	return nil
}

// Delete removes the identity. Vault cleanup happens in the same transaction
// at the service layer.
func (r *PostgresRepository) Delete(ctx context.Context, id string) error {
	userID, err := uuid.Parse(id)
	if err != nil {
		return ErrNoRows
	}
	cmd, err := r.db.Exec(ctx, `DELETE FROM identities WHERE id = $1`, userID)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ErrNoRows
	}
	return nil
}

func scanUser(row pgx.Row) (User, error) {
	var (
		id             uuid.UUID
		authType       string
		username       *string
		authHash       *string
		salt           *string
		walletAddress  *string
		messageVersion *int
		user           User
	)
	err := row.Scan(&id, &authType, &username, &authHash, &salt, &walletAddress, &messageVersion,
		&user.TokenVersion, &user.CreatedAt, &user.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return User{}, ErrNoRows
		}
		return User{}, err
	}
	user.ID = id.String()
	user.AuthType = AuthType(authType)
	user.CreatedAt = user.CreatedAt.UTC()
	user.UpdatedAt = user.UpdatedAt.UTC()
	if user.AuthType == AuthTypePassword && username != nil && authHash != nil && salt != nil {
		user.Password = &PasswordCredentials{Username: *username, AuthHash: *authHash, Salt: *salt}
	}
	if user.AuthType == AuthTypeWallet && walletAddress != nil {
		var mv int
		if messageVersion != nil {
			mv = *messageVersion
		}
		user.Wallet = &WalletCredentials{Address: *walletAddress, MessageVersion: mv}
	}
	return user, nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
