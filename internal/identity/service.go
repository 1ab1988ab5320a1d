package identity

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/zkvault/zkvault/internal/apperr"
	"github.com/zkvault/zkvault/internal/sechash"
)

// Service implements identity lifecycle rules on top of a Repository.
// It owns the variant invariants: password identities are keyed by
// (username, salt) plus hash verification, wallet identities by unique
// lowercased address.
type Service struct {
	repo   Repository
	hasher *sechash.Hasher
}

// NewService creates an identity service.
func NewService(repo Repository, hasher *sechash.Hasher) *Service {
	return &Service{repo: repo, hasher: hasher}
}

// WithRepo returns a copy of the service bound to a different repository,
// typically one scoped to an open transaction.
func (s *Service) WithRepo(repo Repository) *Service {
	return &Service{repo: repo, hasher: s.hasher}
}

// CreatePasswordIdentity registers a password identity. The supplied
// authHash is already a client-side KDF output; it is hashed again with
// Argon2id before storage. Re-registration of the exact same credentials
// (same username, same salt, auth hash that verifies against the stored
// hash) fails with AlreadyExists; the same username with a different salt
// creates a distinct identity.
func (s *Service) CreatePasswordIdentity(ctx context.Context, username, authHash, salt string) (User, error) {
	candidates, err := s.repo.FindAllByUsername(ctx, username)
	if err != nil {
		return User{}, fmt.Errorf("lookup identities: %w", err)
	}
	for _, existing := range candidates {
		if existing.Password != nil && existing.Password.Salt == salt && s.hasher.Verify(authHash, existing.Password.AuthHash) {
			return User{}, apperr.AlreadyExists("user already exists")
		}
	}

	stored, err := s.hasher.Hash(authHash)
	if err != nil {
		return User{}, fmt.Errorf("hash credentials: %w", err)
	}

	now := time.Now().UTC()
	user := User{
		ID:       uuid.NewString(),
		AuthType: AuthTypePassword,
		Password: &PasswordCredentials{
			Username: username,
			AuthHash: stored,
			Salt:     salt,
		},
		CreatedAt: now,
		UpdatedAt: now,
	}

	if err := s.repo.Create(ctx, user); err != nil {
		return User{}, fmt.Errorf("create identity: %w", err)
	}
	return user, nil
}

// FindPasswordIdentity authenticates by auth hash. Usernames are not unique,
// so every candidate sharing the username is tried in turn; the salt
// disambiguates, not the username. Zero candidates is NotFound; candidates
// that all fail verification is AuthFailed. Callers that must not leak
// existence collapse the two.
func (s *Service) FindPasswordIdentity(ctx context.Context, username, authHash string) (User, error) {
	candidates, err := s.repo.FindAllByUsername(ctx, username)
	if err != nil {
		return User{}, fmt.Errorf("lookup identities: %w", err)
	}
	if len(candidates) == 0 {
		return User{}, apperr.NotFound("user not found")
	}

	for _, candidate := range candidates {
		if candidate.Password != nil && s.hasher.Verify(authHash, candidate.Password.AuthHash) {
			return candidate, nil
		}
	}
	return User{}, apperr.AuthFailed("invalid authentication credentials")
}

// CreateWalletIdentity registers a wallet identity. The caller has already
// verified the signature; this only enforces address uniqueness.
func (s *Service) CreateWalletIdentity(ctx context.Context, address string, messageVersion int) (User, error) {
	if _, err := s.repo.FindByWallet(ctx, address); err == nil {
		return User{}, apperr.AlreadyExists("wallet already registered")
	} else if !errors.Is(err, ErrNoRows) {
		return User{}, fmt.Errorf("lookup wallet: %w", err)
	}

	now := time.Now().UTC()
	user := User{
		ID:       uuid.NewString(),
		AuthType: AuthTypeWallet,
		Wallet: &WalletCredentials{
			Address:        address,
			MessageVersion: messageVersion,
		},
		CreatedAt: now,
		UpdatedAt: now,
	}

	if err := s.repo.Create(ctx, user); err != nil {
		if errors.Is(err, ErrDuplicate) {
			return User{}, apperr.AlreadyExists("wallet already registered")
		}
		return User{}, fmt.Errorf("create wallet identity: %w", err)
	}
	return user, nil
}

// FindWalletIdentity fetches a wallet identity by lowercased address.
func (s *Service) FindWalletIdentity(ctx context.Context, address string) (User, error) {
	user, err := s.repo.FindByWallet(ctx, address)
	if err != nil {
		if errors.Is(err, ErrNoRows) {
			return User{}, apperr.NotFound("wallet not registered")
		}
		return User{}, fmt.Errorf("lookup wallet: %w", err)
	}
	return user, nil
}

// FindByID fetches an identity by its id.
func (s *Service) FindByID(ctx context.Context, id string) (User, error) {
	user, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, ErrNoRows) {
			return User{}, apperr.NotFound("user not found")
		}
		return User{}, fmt.Errorf("lookup identity: %w", err)
	}
	return user, nil
}

// VerifyPassword checks a candidate auth hash against the identity's stored
// hash. Wallet identities never verify.
func (s *Service) VerifyPassword(user User, authHash string) bool {
	return user.Password != nil && s.hasher.Verify(authHash, user.Password.AuthHash)
}

// UpdateCredentials rehashes and persists new credentials. The repository
// bumps the token version, revoking outstanding bearer tokens.
func (s *Service) UpdateCredentials(ctx context.Context, user User, newAuthHash, newSalt string) error {
	stored, err := s.hasher.Hash(newAuthHash)
	if err != nil {
		return fmt.Errorf("hash credentials: %w", err)
	}
	if err := s.repo.UpdateCredentials(ctx, user.ID, stored, newSalt); err != nil {
		if errors.Is(err, ErrNoRows) {
			return apperr.NotFound("user not found")
		}
		return fmt.Errorf("update credentials: %w", err)
	}
	return nil
}

// Delete removes the identity record.
func (s *Service) Delete(ctx context.Context, user User) error {
	if err := s.repo.Delete(ctx, user.ID); err != nil {
		if errors.Is(err, ErrNoRows) {
			return apperr.NotFound("user not found")
		}
		return fmt.Errorf("delete identity: %w", err)
	}
	return nil
}

// SaltsByUsername returns every salt stored for the username, in creation
// order. Deliberately unauthenticated; the transport layer rate-limits it.
func (s *Service) SaltsByUsername(ctx context.Context, username string) ([]string, error) {
	salts, err := s.repo.SaltsByUsername(ctx, username)
	if err != nil {
		return nil, fmt.Errorf("lookup salts: %w", err)
	}
	return salts, nil
}
