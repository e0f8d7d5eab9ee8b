package solana

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
)

// Network selects the Solana cluster.
type Network string

const (
	Mainnet Network = "mainnet-beta"
	Devnet  Network = "devnet"
)

// ParseNetwork accepts "mainnet", "mainnet-beta" or "devnet".
func ParseNetwork(s string) (Network, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "mainnet", "mainnet-beta":
		return Mainnet, nil
	case "devnet":
		return Devnet, nil
	default:
		return "", fmt.Errorf("unknown network %q", s)
	}
}

// Endpoints holds the RPC and WebSocket URLs of a cluster.
type Endpoints struct {
	RPC string
	WS  string
}

// DefaultEndpoints returns the public endpoints for n.
func DefaultEndpoints(n Network) Endpoints {
	if n == Devnet {
		return Endpoints{
			RPC: "https://api.devnet.solana.com",
			WS:  "wss://api.devnet.solana.com",
		}
	}
	return Endpoints{
		RPC: "https://api.mainnet-beta.solana.com",
		WS:  "wss://api.mainnet-beta.solana.com",
	}
}

// ConfirmTimeout is the default wait for a transaction to reach confirmed.
// Mainnet congestion warrants a longer window than devnet.
func (n Network) ConfirmTimeout() time.Duration {
	if n == Devnet {
		return 60 * time.Second
	}
	return 90 * time.Second
}

// Clients bundles the connections to one cluster.
type Clients struct {
	Network Network
	RPC     *HTTPClient
	WS      *WSClientImpl // nil when the WebSocket endpoint is unreachable
}

// NewClients connects to n. Empty override fields fall back to DefaultEndpoints.
// A WebSocket dial failure is not fatal; confirmation then polls over RPC.
func NewClients(ctx context.Context, n Network, override Endpoints, wsConfig *WSClientConfig, opts ...ClientOption) (*Clients, error) {
	endpoints := DefaultEndpoints(n)
	if override.RPC != "" {
		endpoints.RPC = override.RPC
	}
	if override.WS != "" {
		endpoints.WS = override.WS
	}

	c := &Clients{
		Network: n,
		RPC:     NewHTTPClient(endpoints.RPC, opts...),
	}

	ws, err := NewWSClient(ctx, endpoints.WS, wsConfig)
	if err != nil {
		if wsConfig != nil && wsConfig.Logger != nil {
			wsConfig.Logger.Warn("websocket unavailable, confirmations will poll")
		}
		return c, nil
	}
	c.WS = ws
	return c, nil
}

// Ledger builds a Ledger over these clients, subscribing over WebSocket
// when connected and polling otherwise.
func (c *Clients) Ledger(timeout time.Duration, logger *zap.Logger) *Ledger {
	opts := LedgerOptions{
		RPC:     c.RPC,
		Timeout: timeout,
		Logger:  logger,
	}
	if c.WS != nil {
		opts.WS = c.WS
	}
	return NewLedger(opts)
}

// Close releases the WebSocket connection.
func (c *Clients) Close() error {
	if c.WS != nil {
		return c.WS.Close()
	}
	return nil
}
