package solana

import "context"

// RPCClient defines the Solana RPC HTTP methods used to land transactions.
type RPCClient interface {
	// SendTransaction submits a signed wire-format transaction and returns its signature.
	SendTransaction(ctx context.Context, raw []byte, opts *SendOptions) (string, error)

	// GetSignatureStatuses returns one status per signature; nil entries are unknown.
	GetSignatureStatuses(ctx context.Context, signatures ...string) ([]*SignatureStatus, error)

	// GetSlot retrieves the current slot.
	GetSlot(ctx context.Context) (int64, error)
}

// Commitment is a Solana commitment level.
type Commitment string

const (
	CommitmentProcessed Commitment = "processed"
	CommitmentConfirmed Commitment = "confirmed"
	CommitmentFinalized Commitment = "finalized"
)

// Reached reports whether status s satisfies commitment c.
func (c Commitment) Reached(s string) bool {
	switch c {
	case CommitmentProcessed:
		return s == "processed" || s == "confirmed" || s == "finalized"
	case CommitmentFinalized:
		return s == "finalized"
	default:
		return s == "confirmed" || s == "finalized"
	}
}
