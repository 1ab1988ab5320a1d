package vault

import (
	"regexp"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/zkvault/zkvault/internal/apperr"
	"github.com/zkvault/zkvault/internal/identity"
)

const identityLocal = "identity"

// Client-supplied vault ids must be UUIDv4.
var uuidV4Pattern = regexp.MustCompile(`^(?i)[0-9a-f]{8}-[0-9a-f]{4}-4[0-9a-f]{3}-[89ab][0-9a-f]{3}-[0-9a-f]{12}$`)

// Handler exposes the vault CRUD endpoints. All of them require a resolved
// caller identity in the request context.
type Handler struct {
	svc *Service
}

// NewHandler creates the vault handler.
func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func callerIdentity(c *fiber.Ctx) (identity.User, error) {
	user, ok := c.Locals(identityLocal).(identity.User)
	if !ok {
		return identity.User{}, apperr.AuthFailed("missing bearer token")
	}
	return user, nil
}

type metadataResponse struct {
	VaultID   string `json:"vault_id"`
	CreatedAt string `json:"created_at"`
	UpdatedAt string `json:"updated_at"`
	Version   int    `json:"version"`
}

func toMetadataResponse(v Vault) metadataResponse {
	return metadataResponse{
		VaultID:   v.VaultID,
		CreatedAt: v.CreatedAt.Format(time.RFC3339Nano),
		UpdatedAt: v.UpdatedAt.Format(time.RFC3339Nano),
		Version:   v.Version,
	}
}

type blobResponse struct {
	VaultID    string `json:"vault_id"`
	Ciphertext string `json:"ciphertext"`
	IV         string `json:"iv"`
	Salt       string `json:"salt"`
	Version    int    `json:"version"`
}

type createRequest struct {
	VaultID    string `json:"vault_id"`
	Ciphertext string `json:"ciphertext"`
	IV         string `json:"iv"`
	Salt       string `json:"salt"`
	Version    int    `json:"version"`
}

// Create stores a new encrypted blob under a client-chosen UUIDv4 id.
func (h *Handler) Create(c *fiber.Ctx) error {
	user, err := callerIdentity(c)
	if err != nil {
		return err
	}

	var req createRequest
	if err := c.BodyParser(&req); err != nil {
		return apperr.Validation("invalid request body")
	}
	if !uuidV4Pattern.MatchString(req.VaultID) {
		return apperr.Validation("vault_id must be a valid UUIDv4")
	}
	if req.Ciphertext == "" || req.IV == "" || req.Salt == "" {
		return apperr.Validation("ciphertext, iv and salt are required")
	}

	v, err := h.svc.Create(c.UserContext(), user, CreateInput{
		VaultID:    req.VaultID,
		Ciphertext: req.Ciphertext,
		IV:         req.IV,
		Salt:       req.Salt,
		Version:    req.Version,
	})
	if err != nil {
		return err
	}
	return c.Status(fiber.StatusCreated).JSON(toMetadataResponse(v))
}

// Get returns the full blob for its owner.
func (h *Handler) Get(c *fiber.Ctx) error {
	user, err := callerIdentity(c)
	if err != nil {
		return err
	}

	v, err := h.svc.GetForOwner(c.UserContext(), c.Params("vault_id"), user)
	if err != nil {
		return err
	}
	return c.Status(fiber.StatusOK).JSON(blobResponse{
		VaultID:    v.VaultID,
		Ciphertext: v.Ciphertext,
		IV:         v.IV,
		Salt:       v.Salt,
		Version:    v.Version,
	})
}

type updateRequest struct {
	Ciphertext string  `json:"ciphertext"`
	IV         string  `json:"iv"`
	Version    int     `json:"version"`
	Salt       *string `json:"salt"`
}

// Update replaces the blob contents; salt is optional and preserved when absent.
func (h *Handler) Update(c *fiber.Ctx) error {
	user, err := callerIdentity(c)
	if err != nil {
		return err
	}

	var req updateRequest
	if err := c.BodyParser(&req); err != nil {
		return apperr.Validation("invalid request body")
	}
	if req.Ciphertext == "" || req.IV == "" {
		return apperr.Validation("ciphertext and iv are required")
	}

	v, err := h.svc.UpdateForOwner(c.UserContext(), c.Params("vault_id"), user, Update{
		Ciphertext: req.Ciphertext,
		IV:         req.IV,
		Version:    req.Version,
		Salt:       req.Salt,
	})
	if err != nil {
		return err
	}
	return c.Status(fiber.StatusOK).JSON(toMetadataResponse(v))
}

// Delete removes the vault.
func (h *Handler) Delete(c *fiber.Ctx) error {
	user, err := callerIdentity(c)
	if err != nil {
		return err
	}

	if err := h.svc.DeleteForOwner(c.UserContext(), c.Params("vault_id"), user); err != nil {
		return err
	}
	return c.SendStatus(fiber.StatusNoContent)
}
