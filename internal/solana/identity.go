package solana

import (
	"fmt"

	"filippo.io/edwards25519"
	"github.com/mr-tron/base58"
)

// ValidatePublicKey checks that s is a base58 ed25519 public key on the curve.
// Program-derived addresses are rejected since they cannot sign.
func ValidatePublicKey(s string) error {
	if s == "" {
		return fmt.Errorf("empty public key")
	}
	decoded, err := base58.Decode(s)
	if err != nil {
		return fmt.Errorf("invalid base58: %w", err)
	}
	if len(decoded) != 32 {
		return fmt.Errorf("public key must be 32 bytes, got %d", len(decoded))
	}
	if !IsOnCurve(decoded) {
		return fmt.Errorf("public key is not on the ed25519 curve")
	}
	return nil
}

// IsOnCurve reports whether point is a valid compressed ed25519 point.
func IsOnCurve(point []byte) bool {
	if len(point) != 32 {
		return false
	}
	_, err := new(edwards25519.Point).SetBytes(point)
	return err == nil
}
