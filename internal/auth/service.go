package auth

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/zkvault/zkvault/internal/apperr"
	"github.com/zkvault/zkvault/internal/identity"
	"github.com/zkvault/zkvault/internal/notification"
	"github.com/zkvault/zkvault/internal/sechash"
	"github.com/zkvault/zkvault/internal/store"
	"github.com/zkvault/zkvault/internal/vault"
	"github.com/zkvault/zkvault/internal/walletsig"
)

// Service orchestrates registration, login, credential rotation and account
// deletion over the identity and vault stores. It holds no session state;
// every authenticated request re-resolves the caller from its bearer token.
type Service struct {
	store    store.Store
	hasher   *sechash.Hasher
	tokens   *TokenIssuer
	notifier notification.Notifier
	logger   *slog.Logger
}

// NewService creates the authentication service.
func NewService(st store.Store, hasher *sechash.Hasher, tokens *TokenIssuer, notifier notification.Notifier, logger *slog.Logger) *Service {
	return &Service{store: st, hasher: hasher, tokens: tokens, notifier: notifier, logger: logger}
}

// Session is the result of a successful authentication. VaultID is nil when
// the identity owns no vault yet; Salt is empty for wallet identities.
type Session struct {
	Token     string
	TokenType string
	VaultID   *string
	Salt      string
}

// ChangePasswordInput carries the credential rotation payload. The vault
// blob travels with it because the client re-encrypts under the new key and
// both must land together.
type ChangePasswordInput struct {
	OldAuthHash     string
	NewAuthHash     string
	NewSalt         string
	VaultCiphertext string
	VaultIV         string
	VaultVersion    int
}

func (s *Service) identities() *identity.Service {
	return identity.NewService(s.store.Identities(), s.hasher)
}

func (s *Service) vaults() *vault.Service {
	return vault.NewService(s.store.Vaults())
}

// sessionFor issues a token and reports the identity's vault id, if any.
func (s *Service) sessionFor(ctx context.Context, user identity.User) (Session, error) {
	token, err := s.tokens.Issue(user)
	if err != nil {
		return Session{}, fmt.Errorf("issue token: %w", err)
	}

	session := Session{Token: token, TokenType: "bearer", Salt: user.SaltValue()}
	v, ok, err := s.vaults().GetByOwner(ctx, user)
	if err != nil {
		return Session{}, err
	}
	if ok {
		id := v.VaultID
		session.VaultID = &id
	}
	return session, nil
}

// Register creates a password identity and opens a session. The stored salt
// is echoed back so a client that lost local state can recover it.
func (s *Service) Register(ctx context.Context, username, authHash, salt string) (Session, error) {
	user, err := s.identities().CreatePasswordIdentity(ctx, username, authHash, salt)
	if err != nil {
		return Session{}, err
	}
	s.logger.Info("identity registered", "identity_id", user.ID)
	return s.sessionFor(ctx, user)
}

// Login authenticates a password identity. An unknown username and a wrong
// auth hash produce the same error so the endpoint does not confirm which
// usernames exist.
func (s *Service) Login(ctx context.Context, username, authHash string) (Session, error) {
	user, err := s.identities().FindPasswordIdentity(ctx, username, authHash)
	if err != nil {
		if apperr.IsCode(err, apperr.CodeNotFound) || apperr.IsCode(err, apperr.CodeAuthFailed) {
			s.notify(ctx, notification.Message{Kind: notification.KindLoginFailed, Detail: "password login rejected"})
			return Session{}, apperr.AuthFailed("invalid username or password")
		}
		return Session{}, err
	}
	return s.sessionFor(ctx, user)
}

// ChangePasswordAndVault rotates credentials and replaces the vault blob in
// one transaction. The old credential is verified before anything mutates,
// and the caller must already own a vault; partial application of the two
// writes is never observable.
func (s *Service) ChangePasswordAndVault(ctx context.Context, user identity.User, in ChangePasswordInput) error {
	if !s.identities().VerifyPassword(user, in.OldAuthHash) {
		s.notify(ctx, notification.Message{Kind: notification.KindLoginFailed, IdentityID: user.ID, Detail: "password change rejected"})
		return apperr.AuthFailed("invalid credentials")
	}

	v, ok, err := s.vaults().GetByOwner(ctx, user)
	if err != nil {
		return err
	}
	if !ok {
		return apperr.NotFound("user has no vault to update")
	}

	err = s.store.WithinTx(ctx, func(tx store.Store) error {
		if err := s.identities().WithRepo(tx.Identities()).UpdateCredentials(ctx, user, in.NewAuthHash, in.NewSalt); err != nil {
			return err
		}
		newSalt := in.NewSalt
		update := vault.Update{
			Ciphertext: in.VaultCiphertext,
			IV:         in.VaultIV,
			Version:    in.VaultVersion,
			Salt:       &newSalt,
		}
		if _, err := s.vaults().WithRepo(tx.Vaults()).UpdateForOwner(ctx, v.VaultID, user, update); err != nil {
			return err
		}
		return nil
	})
	if err != nil {
		return err
	}

	s.logger.Info("credentials rotated", "identity_id", user.ID)
	s.notify(ctx, notification.Message{Kind: notification.KindCredentialsRotated, IdentityID: user.ID})
	return nil
}

// DeleteAccount verifies the password and removes the identity together with
// any vault it owns in one transaction.
func (s *Service) DeleteAccount(ctx context.Context, user identity.User, passwordAuthHash string) error {
	if !s.identities().VerifyPassword(user, passwordAuthHash) {
		s.notify(ctx, notification.Message{Kind: notification.KindLoginFailed, IdentityID: user.ID, Detail: "account deletion rejected"})
		return apperr.AuthFailed("invalid credentials")
	}

	err := s.store.WithinTx(ctx, func(tx store.Store) error {
		if err := tx.Vaults().DeleteByOwner(ctx, user.ID); err != nil {
			return fmt.Errorf("delete vaults: %w", err)
		}
		return s.identities().WithRepo(tx.Identities()).Delete(ctx, user)
	})
	if err != nil {
		return err
	}

	s.logger.Info("account deleted", "identity_id", user.ID)
	s.notify(ctx, notification.Message{Kind: notification.KindAccountDeleted, IdentityID: user.ID})
	return nil
}

// RegisterWallet creates a wallet identity after verifying the signature.
// Verification runs before the uniqueness lookup so failures for registered
// and unregistered addresses take the same path.
func (s *Service) RegisterWallet(ctx context.Context, address, signature, message string, messageVersion int) (Session, error) {
	if !walletsig.ValidAddress(address) {
		return Session{}, apperr.Validation("invalid wallet address format")
	}
	if !walletsig.Verify(message, signature, address) {
		return Session{}, apperr.WalletAuth("signature verification failed")
	}

	user, err := s.identities().CreateWalletIdentity(ctx, walletsig.Normalize(address), messageVersion)
	if err != nil {
		return Session{}, err
	}
	s.logger.Info("wallet identity registered", "identity_id", user.ID)
	return s.sessionFor(ctx, user)
}

// LoginWallet authenticates a wallet identity by signature recovery.
func (s *Service) LoginWallet(ctx context.Context, address, signature, message string) (Session, error) {
	if !walletsig.ValidAddress(address) {
		return Session{}, apperr.Validation("invalid wallet address format")
	}

	user, err := s.identities().FindWalletIdentity(ctx, walletsig.Normalize(address))
	if err != nil {
		if apperr.IsCode(err, apperr.CodeNotFound) {
			return Session{}, apperr.WalletAuth("wallet not registered")
		}
		return Session{}, err
	}
	if !walletsig.Verify(message, signature, address) {
		s.notify(ctx, notification.Message{Kind: notification.KindLoginFailed, IdentityID: user.ID, Detail: "wallet login rejected"})
		return Session{}, apperr.WalletAuth("signature verification failed")
	}
	return s.sessionFor(ctx, user)
}

// SaltsForUsername returns every stored salt for the username. The lookup is
// unauthenticated; the transport layer rate-limits it.
func (s *Service) SaltsForUsername(ctx context.Context, username string) ([]string, error) {
	return s.identities().SaltsByUsername(ctx, username)
}

// ResolveToken verifies a bearer token and loads the identity it names. A
// token minted before the identity's last credential rotation no longer
// matches the stored token version and is rejected.
func (s *Service) ResolveToken(ctx context.Context, tokenString string) (identity.User, error) {
	subject, version, err := s.tokens.Verify(tokenString)
	if err != nil {
		return identity.User{}, err
	}

	user, err := s.identities().FindByID(ctx, subject)
	if err != nil {
		if apperr.IsCode(err, apperr.CodeNotFound) {
			return identity.User{}, apperr.AuthFailed("invalid or expired token")
		}
		return identity.User{}, err
	}
	if user.TokenVersion != version {
		return identity.User{}, apperr.AuthFailed("invalid or expired token")
	}
	return user, nil
}

func (s *Service) notify(ctx context.Context, message notification.Message) {
	if s.notifier == nil {
		return
	}
	if err := s.notifier.Send(ctx, message); err != nil {
		s.logger.Warn("security notification failed", "kind", message.Kind, "error", err)
	}
}
