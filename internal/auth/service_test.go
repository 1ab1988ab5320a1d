package auth

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/zkvault/zkvault/internal/apperr"
	"github.com/zkvault/zkvault/internal/config"
	"github.com/zkvault/zkvault/internal/identity"
	"github.com/zkvault/zkvault/internal/logging"
	"github.com/zkvault/zkvault/internal/sechash"
	"github.com/zkvault/zkvault/internal/store"
	"github.com/zkvault/zkvault/internal/vault"
	"github.com/zkvault/zkvault/internal/walletsig"
)

func testAuthService() (*Service, *store.MemoryStore) {
	st := store.NewMemoryStore()
	hasher := sechash.New(config.Argon2Params{MemoryKiB: 1024, TimeCost: 1, Parallelism: 1})
	tokens := NewTokenIssuer([]byte("test-secret"), time.Minute)
	return NewService(st, hasher, tokens, nil, logging.Discard()), st
}

func signPersonal(t *testing.T, key *ecdsa.PrivateKey, message string) string {
	t.Helper()
	framed := fmt.Sprintf("\x19Ethereum Signed Message:\n%d%s", len(message), message)
	sig, err := crypto.Sign(crypto.Keccak256([]byte(framed)), key)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	sig[crypto.RecoveryIDOffset] += 27
	return hexutil.Encode(sig)
}

func walletKey(t *testing.T) (*ecdsa.PrivateKey, string) {
	t.Helper()
	key, err := crypto.GenerateKey()
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	addr := crypto.PubkeyToAddress(key.PublicKey).Hex()
	return key, addr
}

func TestRegisterIssuesSessionWithoutVault(t *testing.T) {
	svc, _ := testAuthService()
	ctx := context.Background()

	session, err := svc.Register(ctx, "alice", "hash-1", "salt-1")
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	if session.Token == "" || session.TokenType != "bearer" {
		t.Fatalf("unexpected session %+v", session)
	}
	if session.VaultID != nil {
		t.Fatalf("new identity should own no vault, got %v", *session.VaultID)
	}
	if session.Salt != "salt-1" {
		t.Fatalf("expected salt echoed back, got %q", session.Salt)
	}
}

func TestLoginCollapsesNotFoundAndMismatch(t *testing.T) {
	svc, _ := testAuthService()
	ctx := context.Background()

	if _, err := svc.Register(ctx, "alice", "hash-1", "salt-1"); err != nil {
		t.Fatalf("register: %v", err)
	}

	_, unknownErr := svc.Login(ctx, "nobody", "hash-1")
	_, mismatchErr := svc.Login(ctx, "alice", "wrong-hash")

	for name, err := range map[string]error{"unknown user": unknownErr, "wrong hash": mismatchErr} {
		if !apperr.IsCode(err, apperr.CodeAuthFailed) {
			t.Fatalf("%s: expected AUTHENTICATION_FAILED, got %v", name, err)
		}
	}
	if unknownErr.Error() != mismatchErr.Error() {
		t.Fatalf("login failures must be indistinguishable: %q vs %q", unknownErr, mismatchErr)
	}
}

func TestLoginReportsVaultID(t *testing.T) {
	svc, st := testAuthService()
	ctx := context.Background()

	session, err := svc.Register(ctx, "alice", "hash-1", "salt-1")
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	user, err := svc.ResolveToken(ctx, session.Token)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}

	vaultSvc := vault.NewService(st.Vaults())
	if _, err := vaultSvc.Create(ctx, user, vault.CreateInput{
		VaultID: "c1f6a2e4-9a1b-4f6e-8c3d-2b7a9e5d0f11", Ciphertext: "ct", IV: "iv", Salt: "salt-1", Version: 1,
	}); err != nil {
		t.Fatalf("create vault: %v", err)
	}

	again, err := svc.Login(ctx, "alice", "hash-1")
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	if again.VaultID == nil || *again.VaultID != "c1f6a2e4-9a1b-4f6e-8c3d-2b7a9e5d0f11" {
		t.Fatalf("expected vault id in session, got %+v", again.VaultID)
	}
}

func TestChangePasswordRequiresVault(t *testing.T) {
	svc, _ := testAuthService()
	ctx := context.Background()

	session, err := svc.Register(ctx, "alice", "hash-1", "salt-1")
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	user, err := svc.ResolveToken(ctx, session.Token)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}

	err = svc.ChangePasswordAndVault(ctx, user, ChangePasswordInput{
		OldAuthHash: "hash-1", NewAuthHash: "hash-2", NewSalt: "salt-2",
		VaultCiphertext: "ct2", VaultIV: "iv2", VaultVersion: 2,
	})
	if !apperr.IsCode(err, apperr.CodeNotFound) {
		t.Fatalf("expected NOT_FOUND without a vault, got %v", err)
	}
}

func TestChangePasswordRejectsWrongOldCredentialWithoutMutation(t *testing.T) {
	svc, st := testAuthService()
	ctx := context.Background()

	session, err := svc.Register(ctx, "alice", "hash-1", "salt-1")
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	user, err := svc.ResolveToken(ctx, session.Token)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	vaultSvc := vault.NewService(st.Vaults())
	if _, err := vaultSvc.Create(ctx, user, vault.CreateInput{
		VaultID: "7d3f1b2a-44cc-4e6d-9f10-aa5b6c7d8e90", Ciphertext: "ct", IV: "iv", Salt: "salt-1", Version: 1,
	}); err != nil {
		t.Fatalf("create vault: %v", err)
	}

	err = svc.ChangePasswordAndVault(ctx, user, ChangePasswordInput{
		OldAuthHash: "wrong", NewAuthHash: "hash-2", NewSalt: "salt-2",
		VaultCiphertext: "ct2", VaultIV: "iv2", VaultVersion: 2,
	})
	if !apperr.IsCode(err, apperr.CodeAuthFailed) {
		t.Fatalf("expected AUTHENTICATION_FAILED, got %v", err)
	}

	// Nothing changed: the original credentials still log in and the vault
	// still carries the original blob.
	if _, err := svc.Login(ctx, "alice", "hash-1"); err != nil {
		t.Fatalf("original credentials should survive: %v", err)
	}
	v, err := vaultSvc.GetForOwner(ctx, "7d3f1b2a-44cc-4e6d-9f10-aa5b6c7d8e90", user)
	if err != nil {
		t.Fatalf("get vault: %v", err)
	}
	if v.Ciphertext != "ct" || v.Salt != "salt-1" || v.Version != 1 {
		t.Fatalf("vault mutated by failed password change: %+v", v)
	}
}

func TestChangePasswordRotatesVaultAndRevokesTokens(t *testing.T) {
	svc, st := testAuthService()
	ctx := context.Background()

	session, err := svc.Register(ctx, "alice", "hash-1", "salt-1")
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	user, err := svc.ResolveToken(ctx, session.Token)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	vaultSvc := vault.NewService(st.Vaults())
	if _, err := vaultSvc.Create(ctx, user, vault.CreateInput{
		VaultID: "7d3f1b2a-44cc-4e6d-9f10-aa5b6c7d8e90", Ciphertext: "ct", IV: "iv", Salt: "salt-1", Version: 1,
	}); err != nil {
		t.Fatalf("create vault: %v", err)
	}

	err = svc.ChangePasswordAndVault(ctx, user, ChangePasswordInput{
		OldAuthHash: "hash-1", NewAuthHash: "hash-2", NewSalt: "salt-2",
		VaultCiphertext: "ct2", VaultIV: "iv2", VaultVersion: 2,
	})
	if err != nil {
		t.Fatalf("change password: %v", err)
	}

	if _, err := svc.Login(ctx, "alice", "hash-1"); !apperr.IsCode(err, apperr.CodeAuthFailed) {
		t.Fatalf("old credentials should be rejected, got %v", err)
	}
	rotated, err := svc.Login(ctx, "alice", "hash-2")
	if err != nil {
		t.Fatalf("new credentials: %v", err)
	}
	if rotated.Salt != "salt-2" {
		t.Fatalf("expected rotated salt, got %q", rotated.Salt)
	}

	freshUser, err := svc.ResolveToken(ctx, rotated.Token)
	if err != nil {
		t.Fatalf("resolve rotated token: %v", err)
	}
	v, err := vaultSvc.GetForOwner(ctx, "7d3f1b2a-44cc-4e6d-9f10-aa5b6c7d8e90", freshUser)
	if err != nil {
		t.Fatalf("get vault: %v", err)
	}
	if v.Ciphertext != "ct2" || v.IV != "iv2" || v.Salt != "salt-2" || v.Version != 2 {
		t.Fatalf("vault not rotated with credentials: %+v", v)
	}

	// The pre-rotation token carries a stale token version.
	if _, err := svc.ResolveToken(ctx, session.Token); !apperr.IsCode(err, apperr.CodeAuthFailed) {
		t.Fatalf("expected stale token rejection, got %v", err)
	}
}

func TestDeleteAccountCascadesVault(t *testing.T) {
	svc, st := testAuthService()
	ctx := context.Background()

	session, err := svc.Register(ctx, "alice", "hash-1", "salt-1")
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	user, err := svc.ResolveToken(ctx, session.Token)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	vaultSvc := vault.NewService(st.Vaults())
	if _, err := vaultSvc.Create(ctx, user, vault.CreateInput{
		VaultID: "0a1b2c3d-4e5f-4a6b-8c9d-0e1f2a3b4c5d", Ciphertext: "ct", IV: "iv", Salt: "salt-1", Version: 1,
	}); err != nil {
		t.Fatalf("create vault: %v", err)
	}

	if err := svc.DeleteAccount(ctx, user, "wrong"); !apperr.IsCode(err, apperr.CodeAuthFailed) {
		t.Fatalf("expected AUTHENTICATION_FAILED on wrong credential, got %v", err)
	}
	if err := svc.DeleteAccount(ctx, user, "hash-1"); err != nil {
		t.Fatalf("delete account: %v", err)
	}

	if _, err := svc.Login(ctx, "alice", "hash-1"); !apperr.IsCode(err, apperr.CodeAuthFailed) {
		t.Fatalf("deleted identity should not log in, got %v", err)
	}
	if _, ok, err := vaultSvc.GetByOwner(ctx, user); err != nil {
		t.Fatalf("get by owner: %v", err)
	} else if ok {
		t.Fatalf("vault should be gone after account deletion")
	}
}

func TestWalletRegisterAndLogin(t *testing.T) {
	svc, _ := testAuthService()
	ctx := context.Background()
	key, addr := walletKey(t)
	message := "vault auth v1: nonce 42"

	session, err := svc.RegisterWallet(ctx, addr, signPersonal(t, key, message), message, 1)
	if err != nil {
		t.Fatalf("register wallet: %v", err)
	}
	if session.Salt != "" {
		t.Fatalf("wallet session must carry empty salt, got %q", session.Salt)
	}

	if _, err := svc.RegisterWallet(ctx, addr, signPersonal(t, key, message), message, 1); !apperr.IsCode(err, apperr.CodeAlreadyExists) {
		t.Fatalf("expected ALREADY_EXISTS on re-registration, got %v", err)
	}

	login := "vault auth v1: nonce 43"
	if _, err := svc.LoginWallet(ctx, addr, signPersonal(t, key, login), login); err != nil {
		t.Fatalf("login wallet: %v", err)
	}
}

func TestWalletRegisterVerifiesSignatureBeforeUniqueness(t *testing.T) {
	svc, st := testAuthService()
	ctx := context.Background()
	_, addr := walletKey(t)
	otherKey, _ := walletKey(t)
	message := "vault auth v1"

	// Signature by the wrong key fails before any store lookup or write.
	_, err := svc.RegisterWallet(ctx, addr, signPersonal(t, otherKey, message), message, 1)
	if !apperr.IsCode(err, apperr.CodeWalletAuth) {
		t.Fatalf("expected WALLET_AUTH_FAILED, got %v", err)
	}
	if _, err := st.Identities().FindByWallet(ctx, walletsig.Normalize(addr)); !errors.Is(err, identity.ErrNoRows) {
		t.Fatalf("no identity should exist after rejected registration, got %v", err)
	}
}

func TestWalletLoginUnregistered(t *testing.T) {
	svc, _ := testAuthService()
	ctx := context.Background()
	key, addr := walletKey(t)
	message := "vault auth v1"

	_, err := svc.LoginWallet(ctx, addr, signPersonal(t, key, message), message)
	if !apperr.IsCode(err, apperr.CodeWalletAuth) {
		t.Fatalf("expected WALLET_AUTH_FAILED for unregistered wallet, got %v", err)
	}
}

func TestWalletInvalidAddressFormat(t *testing.T) {
	svc, _ := testAuthService()
	ctx := context.Background()

	if _, err := svc.RegisterWallet(ctx, "0x123", "0xabcd", "m", 1); !apperr.IsCode(err, apperr.CodeValidation) {
		t.Fatalf("expected VALIDATION_FAILED, got %v", err)
	}
	if _, err := svc.LoginWallet(ctx, "not-an-address", "0xabcd", "m"); !apperr.IsCode(err, apperr.CodeValidation) {
		t.Fatalf("expected VALIDATION_FAILED, got %v", err)
	}
}

func TestSaltsForUsername(t *testing.T) {
	svc, _ := testAuthService()
	ctx := context.Background()

	if _, err := svc.Register(ctx, "alice", "hash-1", "salt-1"); err != nil {
		t.Fatalf("register: %v", err)
	}
	if _, err := svc.Register(ctx, "alice", "hash-2", "salt-2"); err != nil {
		t.Fatalf("register second: %v", err)
	}

	salts, err := svc.SaltsForUsername(ctx, "alice")
	if err != nil {
		t.Fatalf("salts: %v", err)
	}
	if len(salts) != 2 {
		t.Fatalf("expected 2 salts, got %v", salts)
	}
}
