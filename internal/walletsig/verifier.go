// Package walletsig verifies EIP-191 personal_sign signatures by recovering
// the signer address locally. No network access is involved.
package walletsig

import (
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
)

const addressLen = 42 // "0x" + 40 hex chars

// ValidAddress reports whether addr looks like a hex Ethereum address.
func ValidAddress(addr string) bool {
	if len(addr) != addressLen || !strings.HasPrefix(addr, "0x") {
		return false
	}
	for _, r := range addr[2:] {
		switch {
		case r >= '0' && r <= '9':
		case r >= 'a' && r <= 'f':
		case r >= 'A' && r <= 'F':
		default:
			return false
		}
	}
	return true
}

// Normalize lowercases an address for storage and comparison.
func Normalize(addr string) string {
	return strings.ToLower(addr)
}

// Verify reports whether signature over message was produced by
// claimedAddress. The message is framed with the personal-message prefix
// before hashing. Any malformed input or recovery failure yields false;
// the verifier never panics or returns an error to the caller.
func Verify(message, signature, claimedAddress string) bool {
	if !ValidAddress(claimedAddress) {
		return false
	}

	sig, err := hexutil.Decode(signature)
	if err != nil || len(sig) != crypto.SignatureLength {
		return false
	}

	// personal_sign produces V in {27, 28}; go-ethereum expects {0, 1}.
	recovery := sig[crypto.RecoveryIDOffset]
	if recovery >= 27 {
		recovery -= 27
	}
	if recovery > 1 {
		return false
	}
	normalized := make([]byte, crypto.SignatureLength)
	copy(normalized, sig)
	normalized[crypto.RecoveryIDOffset] = recovery

	pub, err := crypto.SigToPub(personalHash(message), normalized)
	if err != nil {
		return false
	}

	recovered := crypto.PubkeyToAddress(*pub).Hex()
	return strings.EqualFold(recovered, claimedAddress)
}

// personalHash applies the EIP-191 prefix and length framing, then Keccak-256.
func personalHash(message string) []byte {
	framed := fmt.Sprintf("\x19Ethereum Signed Message:\n%d%s", len(message), message)
	return crypto.Keccak256([]byte(framed))
}
