// Package wallet provides a local keypair signer for launch transactions.
package wallet

import (
	"bytes"
	"context"
	"crypto/ed25519"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"

	bin "github.com/gagliardetto/binary"
	solanago "github.com/gagliardetto/solana-go"
)

// ErrNotSigner is returned when the wallet key is not a required signer.
var ErrNotSigner = errors.New("wallet is not a required signer of the transaction")

// Keypair signs transactions with a local ed25519 key.
type Keypair struct {
	key solanago.PrivateKey
	pub solanago.PublicKey
}

// NewKeypair wraps a 64-byte Solana private key.
func NewKeypair(key solanago.PrivateKey) (*Keypair, error) {
	if len(key) != ed25519.PrivateKeySize {
		return nil, fmt.Errorf("private key must be %d bytes, got %d", ed25519.PrivateKeySize, len(key))
	}
	// The trailing 32 bytes must be the public key derived from the seed
	derived := ed25519.NewKeyFromSeed(key[:ed25519.SeedSize])
	if !bytes.Equal(derived, key) {
		return nil, fmt.Errorf("private key does not match its embedded public key")
	}
	return &Keypair{key: key, pub: key.PublicKey()}, nil
}

// Generate creates a fresh random keypair.
func Generate() (*Keypair, error) {
	key, err := solanago.NewRandomPrivateKey()
	if err != nil {
		return nil, fmt.Errorf("generate key: %w", err)
	}
	return NewKeypair(key)
}

// ParseKeypair accepts a solana-keygen JSON byte array or a base58 string.
func ParseKeypair(data []byte) (*Keypair, error) {
	s := strings.TrimSpace(string(data))
	if s == "" {
		return nil, fmt.Errorf("empty keypair")
	}

	if strings.HasPrefix(s, "[") {
		var raw []byte
		if err := json.Unmarshal([]byte(s), &raw); err != nil {
			// json decodes []byte from base64; keygen files are number arrays
			var nums []int
			if err2 := json.Unmarshal([]byte(s), &nums); err2 != nil {
				return nil, fmt.Errorf("parse keypair array: %w", err2)
			}
			raw = make([]byte, len(nums))
			for i, n := range nums {
				if n < 0 || n > 255 {
					return nil, fmt.Errorf("keypair byte %d out of range: %d", i, n)
				}
				raw[i] = byte(n)
			}
		}
		return NewKeypair(solanago.PrivateKey(raw))
	}

	key, err := solanago.PrivateKeyFromBase58(s)
	if err != nil {
		return nil, fmt.Errorf("parse base58 keypair: %w", err)
	}
	return NewKeypair(key)
}

// LoadKeypairFile reads a keypair from path.
func LoadKeypairFile(path string) (*Keypair, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read keypair file: %w", err)
	}
	return ParseKeypair(data)
}

// PublicKey returns the wallet address.
func (k *Keypair) PublicKey() solanago.PublicKey {
	return k.pub
}

// SignTransaction adds this wallet's signature and returns a signed copy.
// Existing signatures (for example a mint co-signature) are preserved.
func (k *Keypair) SignTransaction(ctx context.Context, tx *solanago.Transaction) (*solanago.Transaction, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	out, err := cloneTransaction(tx)
	if err != nil {
		return nil, err
	}

	required := int(out.Message.Header.NumRequiredSignatures)
	if required > len(out.Message.AccountKeys) {
		return nil, fmt.Errorf("header requires %d signatures but has %d keys", required, len(out.Message.AccountKeys))
	}

	index := -1
	for i, key := range out.Message.AccountKeys[:required] {
		if key.Equals(k.pub) {
			index = i
			break
		}
	}
	if index < 0 {
		return nil, fmt.Errorf("%w: %s", ErrNotSigner, k.pub)
	}

	message, err := out.Message.MarshalBinary()
	if err != nil {
		return nil, fmt.Errorf("marshal message: %w", err)
	}
	sig, err := k.key.Sign(message)
	if err != nil {
		return nil, fmt.Errorf("sign message: %w", err)
	}

	for len(out.Signatures) < required {
		out.Signatures = append(out.Signatures, solanago.Signature{})
	}
	out.Signatures[index] = sig
	return out, nil
}

// cloneTransaction deep-copies tx. The message goes through its wire
// encoding since a partially signed transaction cannot be marshalled whole.
func cloneTransaction(tx *solanago.Transaction) (*solanago.Transaction, error) {
	raw, err := tx.Message.MarshalBinary()
	if err != nil {
		return nil, fmt.Errorf("marshal message: %w", err)
	}
	var msg solanago.Message
	if err := msg.UnmarshalWithDecoder(bin.NewBinDecoder(raw)); err != nil {
		return nil, fmt.Errorf("copy message: %w", err)
	}
	sigs := make([]solanago.Signature, len(tx.Signatures))
	copy(sigs, tx.Signatures)
	return &solanago.Transaction{Signatures: sigs, Message: msg}, nil
}
