package auth

import (
	"github.com/gofiber/fiber/v2"

	"github.com/zkvault/zkvault/internal/apperr"
	"github.com/zkvault/zkvault/internal/identity"
)

const identityLocal = "identity"

// Handler exposes the authentication endpoints.
type Handler struct {
	svc *Service
}

// NewHandler creates the auth handler.
func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

type sessionResponse struct {
	AccessToken string  `json:"access_token"`
	TokenType   string  `json:"token_type"`
	VaultID     *string `json:"vault_id"`
	Salt        string  `json:"salt"`
}

func toSessionResponse(s Session) sessionResponse {
	return sessionResponse{AccessToken: s.Token, TokenType: s.TokenType, VaultID: s.VaultID, Salt: s.Salt}
}

type registerRequest struct {
	Username string `json:"username"`
	AuthHash string `json:"auth_hash"`
	Salt     string `json:"salt"`
}

// Register creates a password identity and returns a fresh session.
func (h *Handler) Register(c *fiber.Ctx) error {
	var req registerRequest
	if err := c.BodyParser(&req); err != nil {
		return apperr.Validation("invalid request body")
	}
	if req.Username == "" || req.AuthHash == "" || req.Salt == "" {
		return apperr.Validation("username, auth_hash and salt are required")
	}

	session, err := h.svc.Register(c.UserContext(), req.Username, req.AuthHash, req.Salt)
	if err != nil {
		return err
	}
	return c.Status(fiber.StatusCreated).JSON(toSessionResponse(session))
}

type loginRequest struct {
	Username string `json:"username"`
	AuthHash string `json:"auth_hash"`
}

// Login authenticates a password identity.
func (h *Handler) Login(c *fiber.Ctx) error {
	var req loginRequest
	if err := c.BodyParser(&req); err != nil {
		return apperr.Validation("invalid request body")
	}
	if req.Username == "" || req.AuthHash == "" {
		return apperr.Validation("username and auth_hash are required")
	}

	session, err := h.svc.Login(c.UserContext(), req.Username, req.AuthHash)
	if err != nil {
		return err
	}
	return c.Status(fiber.StatusOK).JSON(toSessionResponse(session))
}

type walletRequest struct {
	WalletAddress  string `json:"wallet_address"`
	Signature      string `json:"signature"`
	Message        string `json:"message"`
	MessageVersion int    `json:"message_version"`
}

// RegisterWallet creates a wallet identity from a signed message.
func (h *Handler) RegisterWallet(c *fiber.Ctx) error {
	var req walletRequest
	if err := c.BodyParser(&req); err != nil {
		return apperr.Validation("invalid request body")
	}
	if req.WalletAddress == "" || req.Signature == "" || req.Message == "" {
		return apperr.Validation("wallet_address, signature and message are required")
	}

	session, err := h.svc.RegisterWallet(c.UserContext(), req.WalletAddress, req.Signature, req.Message, req.MessageVersion)
	if err != nil {
		return err
	}
	return c.Status(fiber.StatusCreated).JSON(toSessionResponse(session))
}

// LoginWallet authenticates a wallet identity from a signed message.
func (h *Handler) LoginWallet(c *fiber.Ctx) error {
	var req walletRequest
	if err := c.BodyParser(&req); err != nil {
		return apperr.Validation("invalid request body")
	}
	if req.WalletAddress == "" || req.Signature == "" || req.Message == "" {
		return apperr.Validation("wallet_address, signature and message are required")
	}

	session, err := h.svc.LoginWallet(c.UserContext(), req.WalletAddress, req.Signature, req.Message)
	if err != nil {
		return err
	}
	return c.Status(fiber.StatusOK).JSON(toSessionResponse(session))
}

type changePasswordRequest struct {
	OldAuthHash     string `json:"old_auth_hash"`
	NewAuthHash     string `json:"new_auth_hash"`
	NewSalt         string `json:"new_salt"`
	VaultCiphertext string `json:"vault_ciphertext"`
	VaultIV         string `json:"vault_iv"`
	VaultVersion    int    `json:"vault_version"`
}

// ChangePassword rotates credentials together with the re-encrypted vault.
func (h *Handler) ChangePassword(c *fiber.Ctx) error {
	user, ok := c.Locals(identityLocal).(identity.User)
	if !ok {
		return apperr.AuthFailed("missing bearer token")
	}

	var req changePasswordRequest
	if err := c.BodyParser(&req); err != nil {
		return apperr.Validation("invalid request body")
	}
	if req.OldAuthHash == "" || req.NewAuthHash == "" || req.NewSalt == "" ||
		req.VaultCiphertext == "" || req.VaultIV == "" {
		return apperr.Validation("old_auth_hash, new_auth_hash, new_salt, vault_ciphertext and vault_iv are required")
	}

	err := h.svc.ChangePasswordAndVault(c.UserContext(), user, ChangePasswordInput{
		OldAuthHash:     req.OldAuthHash,
		NewAuthHash:     req.NewAuthHash,
		NewSalt:         req.NewSalt,
		VaultCiphertext: req.VaultCiphertext,
		VaultIV:         req.VaultIV,
		VaultVersion:    req.VaultVersion,
	})
	if err != nil {
		return err
	}
	return c.Status(fiber.StatusOK).JSON(fiber.Map{"message": "password changed successfully"})
}

type deleteAccountRequest struct {
	PasswordAuthHash string `json:"password_auth_hash"`
}

// DeleteAccount removes the identity and its vault after a password check.
func (h *Handler) DeleteAccount(c *fiber.Ctx) error {
	user, ok := c.Locals(identityLocal).(identity.User)
	if !ok {
		return apperr.AuthFailed("missing bearer token")
	}

	var req deleteAccountRequest
	if err := c.BodyParser(&req); err != nil {
		return apperr.Validation("invalid request body")
	}
	if req.PasswordAuthHash == "" {
		return apperr.Validation("password_auth_hash is required")
	}

	if err := h.svc.DeleteAccount(c.UserContext(), user, req.PasswordAuthHash); err != nil {
		return err
	}
	return c.Status(fiber.StatusOK).JSON(fiber.Map{"message": "account deleted successfully"})
}

// Salts returns every stored salt for a username so clients can recover
// lost local state.
func (h *Handler) Salts(c *fiber.Ctx) error {
	username := c.Query("username")
	if username == "" {
		return apperr.Validation("username query parameter is required")
	}

	salts, err := h.svc.SaltsForUsername(c.UserContext(), username)
	if err != nil {
		return err
	}
	if salts == nil {
		salts = []string{}
	}
	return c.Status(fiber.StatusOK).JSON(fiber.Map{"salts": salts})
}
