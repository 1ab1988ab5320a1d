package identity

import "time"

// AuthType discriminates the two identity variants. It is immutable after
// creation and decides which credential group is populated.
type AuthType string

const (
	AuthTypePassword AuthType = "password"
	AuthTypeWallet   AuthType = "wallet"
)

// PasswordCredentials is the password-variant field group. AuthHash is the
// Argon2id hash of the client-derived auth string, never of a raw password.
// Username is not unique; the pair (username, salt) plus hash verification
// disambiguates identities.
type PasswordCredentials struct {
	Username string
	AuthHash string
	Salt     string
}

// WalletCredentials is the wallet-variant field group. Address is stored
// lowercased and is globally unique.
type WalletCredentials struct {
	Address        string
	MessageVersion int
}

// User is a registered identity. Exactly one of Password or Wallet is
// non-nil, matching AuthType; the discriminator lives here and nowhere else.
type User struct {
	ID           string
	AuthType     AuthType
	Password     *PasswordCredentials
	Wallet       *WalletCredentials
	TokenVersion int
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// IsPassword reports whether the identity authenticates by auth-string hash.
func (u User) IsPassword() bool { return u.AuthType == AuthTypePassword }

// IsWallet reports whether the identity authenticates by wallet signature.
func (u User) IsWallet() bool { return u.AuthType == AuthTypeWallet }

// SaltValue returns the stored salt for password identities and the empty
// string for wallet identities, matching what auth responses echo back.
func (u User) SaltValue() string {
	if u.Password != nil {
		return u.Password.Salt
	}
	return ""
}
