package solana

// SendOptions configures sendTransaction.
type SendOptions struct {
	SkipPreflight       bool
	PreflightCommitment Commitment
	MaxRetries          *uint
}

// SignatureStatus from getSignatureStatuses.
type SignatureStatus struct {
	Slot               int64
	Confirmations      *int64 // nil once rooted
	Err                interface{}
	ConfirmationStatus string
}
