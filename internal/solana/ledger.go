package solana

import (
	"context"
	"errors"
	"fmt"
	"time"

	solanago "github.com/gagliardetto/solana-go"
	"go.uber.org/zap"
)

// ErrConfirmationTimeout is returned when a signature does not reach the
// target commitment in time. The transaction may still land later.
var ErrConfirmationTimeout = errors.New("confirmation timeout")

// TxFailedError reports a transaction that landed but failed on chain.
type TxFailedError struct {
	Signature string
	Err       interface{}
}

func (e *TxFailedError) Error() string {
	return fmt.Sprintf("transaction %s failed: %v", e.Signature, e.Err)
}

// LedgerOptions configures a Ledger.
type LedgerOptions struct {
	RPC          RPCClient
	WS           WSClient // optional; polling alone is used when nil
	Commitment   Commitment
	PollInterval time.Duration
	Timeout      time.Duration
	Logger       *zap.Logger
}

// Ledger submits signed transactions and waits for their confirmation.
type Ledger struct {
	rpc          RPCClient
	ws           WSClient
	commitment   Commitment
	pollInterval time.Duration
	timeout      time.Duration
	logger       *zap.Logger
}

// NewLedger creates a Ledger.
func NewLedger(opts LedgerOptions) *Ledger {
	l := &Ledger{
		rpc:          opts.RPC,
		ws:           opts.WS,
		commitment:   opts.Commitment,
		pollInterval: opts.PollInterval,
		timeout:      opts.Timeout,
		logger:       opts.Logger,
	}
	if l.commitment == "" {
		l.commitment = CommitmentConfirmed
	}
	if l.pollInterval <= 0 {
		l.pollInterval = 2 * time.Second
	}
	if l.timeout <= 0 {
		l.timeout = 90 * time.Second
	}
	if l.logger == nil {
		l.logger = zap.NewNop()
	}
	return l
}

// Submit sends a fully signed transaction and returns its signature.
func (l *Ledger) Submit(ctx context.Context, tx *solanago.Transaction) (string, error) {
	if !IsFullySigned(tx) {
		return "", fmt.Errorf("transaction is missing required signatures")
	}
	raw, err := tx.MarshalBinary()
	if err != nil {
		return "", fmt.Errorf("marshal transaction: %w", err)
	}

	sig, err := l.rpc.SendTransaction(ctx, raw, &SendOptions{
		PreflightCommitment: l.commitment,
	})
	if err != nil {
		return "", fmt.Errorf("send transaction: %w", err)
	}
	l.logger.Debug("transaction submitted", zap.String("signature", sig))
	return sig, nil
}

// Confirm blocks until signature reaches the ledger's commitment.
// It listens on the WebSocket when available and polls statuses meanwhile,
// so a dropped notification cannot stall the wait.
func (l *Ledger) Confirm(ctx context.Context, signature string) error {
	ctx, cancel := context.WithTimeout(ctx, l.timeout)
	defer cancel()

	var notifications <-chan SignatureNotification
	if l.ws != nil {
		sub, err := l.ws.SubscribeSignature(ctx, signature, l.commitment)
		if err != nil {
			l.logger.Debug("signature subscribe failed, polling only",
				zap.String("signature", signature), zap.Error(err))
		} else {
			defer sub.Unsubscribe()
			notifications = sub.C
		}
	}

	ticker := time.NewTicker(l.pollInterval)
	defer ticker.Stop()

	// Poll once up front; the transaction may already be confirmed.
	if done, err := l.poll(ctx, signature); done {
		return err
	}

	for {
		select {
		case n, ok := <-notifications:
			if !ok {
				notifications = nil
				continue
			}
			if n.Err != nil {
				return &TxFailedError{Signature: signature, Err: n.Err}
			}
			return nil
		case <-ticker.C:
			if done, err := l.poll(ctx, signature); done {
				return err
			}
		case <-ctx.Done():
			if errors.Is(ctx.Err(), context.DeadlineExceeded) {
				return fmt.Errorf("%w: %s after %v", ErrConfirmationTimeout, signature, l.timeout)
			}
			return ctx.Err()
		}
	}
}

// poll checks the signature status once. done is true when the wait is over.
func (l *Ledger) poll(ctx context.Context, signature string) (done bool, err error) {
	statuses, err := l.rpc.GetSignatureStatuses(ctx, signature)
	if err != nil {
		if ctx.Err() == nil {
			l.logger.Debug("status poll failed", zap.String("signature", signature), zap.Error(err))
		}
		return false, nil
	}
	if len(statuses) == 0 || statuses[0] == nil {
		return false, nil
	}
	st := statuses[0]
	if st.Err != nil {
		return true, &TxFailedError{Signature: signature, Err: st.Err}
	}
	if l.commitment.Reached(st.ConfirmationStatus) {
		return true, nil
	}
	return false, nil
}
