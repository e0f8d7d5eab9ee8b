package solana

import (
	"encoding/base64"
	"fmt"

	bin "github.com/gagliardetto/binary"
	solanago "github.com/gagliardetto/solana-go"
	"github.com/mr-tron/base58"
)

// Encoding names a text encoding of wire-format transactions.
type Encoding string

const (
	EncodingBase58 Encoding = "base58"
	EncodingBase64 Encoding = "base64"
)

// DecodeTransaction parses an encoded wire-format transaction.
func DecodeTransaction(encoded string, enc Encoding) (*solanago.Transaction, error) {
	if encoded == "" {
		return nil, fmt.Errorf("empty transaction")
	}

	var raw []byte
	var err error
	switch enc {
	case EncodingBase64:
		raw, err = base64.StdEncoding.DecodeString(encoded)
	case EncodingBase58, "":
		raw, err = base58.Decode(encoded)
	default:
		return nil, fmt.Errorf("unknown encoding %q", enc)
	}
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", enc, err)
	}

	tx, err := solanago.TransactionFromDecoder(bin.NewBinDecoder(raw))
	if err != nil {
		return nil, fmt.Errorf("parse transaction: %w", err)
	}
	if len(tx.Message.AccountKeys) == 0 {
		return nil, fmt.Errorf("transaction has no account keys")
	}
	return tx, nil
}

// EncodeTransaction serializes tx in the given encoding.
func EncodeTransaction(tx *solanago.Transaction, enc Encoding) (string, error) {
	raw, err := tx.MarshalBinary()
	if err != nil {
		return "", fmt.Errorf("marshal transaction: %w", err)
	}
	switch enc {
	case EncodingBase64:
		return base64.StdEncoding.EncodeToString(raw), nil
	case EncodingBase58, "":
		return base58.Encode(raw), nil
	default:
		return "", fmt.Errorf("unknown encoding %q", enc)
	}
}

// RequiredSigners returns the accounts that must sign tx, in signature order.
func RequiredSigners(tx *solanago.Transaction) []solanago.PublicKey {
	n := int(tx.Message.Header.NumRequiredSignatures)
	if n > len(tx.Message.AccountKeys) {
		n = len(tx.Message.AccountKeys)
	}
	return tx.Message.AccountKeys[:n]
}

// IsFullySigned reports whether every required signature slot is filled.
func IsFullySigned(tx *solanago.Transaction) bool {
	signers := RequiredSigners(tx)
	if len(tx.Signatures) < len(signers) {
		return false
	}
	for i := range signers {
		if tx.Signatures[i] == (solanago.Signature{}) {
			return false
		}
	}
	return true
}
