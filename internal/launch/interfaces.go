package launch

import (
	"context"
	"errors"

	solanago "github.com/gagliardetto/solana-go"

	"larpx402/internal/aggregator"
)

var (
	// ErrUserRejected is returned by a Wallet when the user declines to sign.
	ErrUserRejected = errors.New("user rejected signing")
	// ErrWalletUnavailable is returned by a Wallet that cannot sign right now.
	ErrWalletUnavailable = errors.New("wallet unavailable")
)

// Wallet signs transactions on behalf of the creator.
// SignTransaction adds the wallet's signature and keeps existing ones.
type Wallet interface {
	PublicKey() solanago.PublicKey
	SignTransaction(ctx context.Context, tx *solanago.Transaction) (*solanago.Transaction, error)
}

// Ledger submits signed transactions and waits for confirmation.
type Ledger interface {
	Submit(ctx context.Context, tx *solanago.Transaction) (string, error)
	Confirm(ctx context.Context, signature string) error
}

// API is the subset of the aggregator used by the pipeline.
type API interface {
	CreateTokenInfo(ctx context.Context, req *aggregator.TokenInfoRequest) (*aggregator.TokenInfo, error)
	CreateFeeShareConfig(ctx context.Context, req *aggregator.FeeShareRequest) (*aggregator.FeeShareConfig, error)
	CreateLaunchTransaction(ctx context.Context, req *aggregator.LaunchTxRequest) (string, error)
}

// Compile-time interface check.
var _ API = (*aggregator.Client)(nil)
