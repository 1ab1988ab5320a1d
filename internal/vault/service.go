package vault

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/zkvault/zkvault/internal/apperr"
	"github.com/zkvault/zkvault/internal/identity"
)

// Service enforces ownership on vault access. Every operation takes the
// resolved caller identity; the existence check always precedes the
// ownership check so NotFound and AccessDenied stay distinguishable.
type Service struct {
	repo Repository
}

// NewService creates a vault service.
func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

// WithRepo returns a copy bound to a different repository, typically one
// scoped to an open transaction.
func (s *Service) WithRepo(repo Repository) *Service {
	return &Service{repo: repo}
}

// CreateInput carries the client-supplied blob fields for a new vault.
type CreateInput struct {
	VaultID    string
	Ciphertext string
	IV         string
	Salt       string
	Version    int
}

// Create stores a new vault for the owner. The vault_id namespace is
// global. The pre-check produces the friendly duplicate error; the storage
// unique constraints on vault_id and owner_id remain the actual
// enforcement point, so a create racing past the check still fails cleanly.
func (s *Service) Create(ctx context.Context, owner identity.User, input CreateInput) (Vault, error) {
	if _, err := s.repo.GetByVaultID(ctx, input.VaultID); err == nil {
		return Vault{}, apperr.VaultExists("vault with this vault_id already exists")
	} else if !errors.Is(err, ErrNoRows) {
		return Vault{}, fmt.Errorf("lookup vault: %w", err)
	}

	if _, err := s.repo.GetByOwner(ctx, owner.ID); err == nil {
		return Vault{}, apperr.VaultExists("identity already owns a vault")
	} else if !errors.Is(err, ErrNoRows) {
		return Vault{}, fmt.Errorf("lookup owner vault: %w", err)
	}

	now := time.Now().UTC()
	v := Vault{
		VaultID:    input.VaultID,
		OwnerID:    owner.ID,
		Ciphertext: input.Ciphertext,
		IV:         input.IV,
		Salt:       input.Salt,
		Version:    input.Version,
		CreatedAt:  now,
		UpdatedAt:  now,
	}

	if err := s.repo.Create(ctx, v); err != nil {
		if errors.Is(err, ErrDuplicate) {
			return Vault{}, apperr.VaultExists("vault already exists")
		}
		return Vault{}, fmt.Errorf("create vault: %w", err)
	}
	return v, nil
}

// GetForOwner fetches a vault after verifying ownership.
func (s *Service) GetForOwner(ctx context.Context, vaultID string, owner identity.User) (Vault, error) {
	return s.lookupOwned(ctx, vaultID, owner)
}

// UpdateForOwner replaces blob fields after verifying ownership.
func (s *Service) UpdateForOwner(ctx context.Context, vaultID string, owner identity.User, update Update) (Vault, error) {
	if _, err := s.lookupOwned(ctx, vaultID, owner); err != nil {
		return Vault{}, err
	}
	if err := s.repo.Update(ctx, vaultID, update); err != nil {
		return Vault{}, fmt.Errorf("update vault: %w", err)
	}
	v, err := s.repo.GetByVaultID(ctx, vaultID)
	if err != nil {
		return Vault{}, fmt.Errorf("reload vault: %w", err)
	}
	return v, nil
}

// DeleteForOwner removes a vault after verifying ownership.
func (s *Service) DeleteForOwner(ctx context.Context, vaultID string, owner identity.User) error {
	if _, err := s.lookupOwned(ctx, vaultID, owner); err != nil {
		return err
	}
	if err := s.repo.Delete(ctx, vaultID); err != nil {
		return fmt.Errorf("delete vault: %w", err)
	}
	return nil
}

// GetByOwner returns the identity's vault, or ErrNoRows wrapped as NotFound.
// Auth responses use it to report vault_id without a second fetch.
func (s *Service) GetByOwner(ctx context.Context, owner identity.User) (Vault, bool, error) {
	v, err := s.repo.GetByOwner(ctx, owner.ID)
	if err != nil {
		if errors.Is(err, ErrNoRows) {
			return Vault{}, false, nil
		}
		return Vault{}, false, fmt.Errorf("lookup owner vault: %w", err)
	}
	return v, true, nil
}

func (s *Service) lookupOwned(ctx context.Context, vaultID string, owner identity.User) (Vault, error) {
	v, err := s.repo.GetByVaultID(ctx, vaultID)
	if err != nil {
		if errors.Is(err, ErrNoRows) {
			return Vault{}, apperr.NotFound("vault not found")
		}
		return Vault{}, fmt.Errorf("lookup vault: %w", err)
	}
	if v.OwnerID != owner.ID {
		return Vault{}, apperr.AccessDenied("access denied to this vault")
	}
	return v, nil
}
