package vault

import "time"

// Vault is one opaque encrypted blob owned by exactly one identity. The
// server never interprets Ciphertext or IV; Version is client-controlled
// and only persisted. Salt mirrors the owner's current salt and is rotated
// together with credentials on password change.
type Vault struct {
	VaultID    string
	OwnerID    string
	Ciphertext string
	IV         string
	Salt       string
	Version    int
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// Update carries the mutable blob fields for an update. A nil Salt leaves
// the stored salt untouched.
type Update struct {
	Ciphertext string
	IV         string
	Version    int
	Salt       *string
}
