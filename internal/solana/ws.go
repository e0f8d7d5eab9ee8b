package solana

import "context"

// WSClient defines Solana WebSocket subscription interface.
type WSClient interface {
	// SubscribeSignature waits for a transaction to reach commitment.
	// The subscription fires once; its channel is closed afterwards.
	SubscribeSignature(ctx context.Context, signature string, commitment Commitment) (*SignatureSubscription, error)

	// Close closes the WebSocket connection.
	Close() error
}

// SignatureNotification reports that a signature reached the requested commitment.
type SignatureNotification struct {
	Signature string
	Slot      int64
	Err       interface{} // non-nil when the transaction failed on chain
}

// SignatureSubscription is an active signatureSubscribe.
type SignatureSubscription struct {
	C <-chan SignatureNotification

	unsubscribe func()
}

// Unsubscribe stops the subscription if it has not fired yet. Safe to call twice.
func (s *SignatureSubscription) Unsubscribe() {
	if s != nil && s.unsubscribe != nil {
		s.unsubscribe()
	}
}
