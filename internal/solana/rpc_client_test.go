package solana

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"
)

// rpcServer answers every JSON-RPC request with handle's result or error.
func rpcServer(t *testing.T, handle func(req rpcRequest) map[string]interface{}) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req rpcRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode request: %v", err)
			w.WriteHeader(http.StatusBadRequest)
			return
		}

		resp := map[string]interface{}{
			"jsonrpc": "2.0",
			"id":      req.ID,
		}
		for k, v := range handle(req) {
			resp[k] = v
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(resp)
	}))
}

func TestHTTPClient_SendTransaction(t *testing.T) {
	raw := []byte{1, 2, 3, 4, 5}
	var gotParams []interface{}

	server := rpcServer(t, func(req rpcRequest) map[string]interface{} {
		if req.Method != "sendTransaction" {
			t.Errorf("expected method sendTransaction, got %s", req.Method)
		}
		gotParams = req.Params
		return map[string]interface{}{"result": "5sig"}
	})
	defer server.Close()

	client := NewHTTPClient(server.URL)
	maxRetries := uint(2)

	sig, err := client.SendTransaction(context.Background(), raw, &SendOptions{
		PreflightCommitment: CommitmentConfirmed,
		MaxRetries:          &maxRetries,
	})
	if err != nil {
		t.Fatalf("SendTransaction: %v", err)
	}
	if sig != "5sig" {
		t.Errorf("expected signature 5sig, got %s", sig)
	}

	if len(gotParams) != 2 {
		t.Fatalf("expected 2 params, got %d", len(gotParams))
	}
	if gotParams[0] != base64.StdEncoding.EncodeToString(raw) {
		t.Errorf("expected base64 payload, got %v", gotParams[0])
	}
	cfg, ok := gotParams[1].(map[string]interface{})
	if !ok {
		t.Fatalf("expected config object, got %T", gotParams[1])
	}
	if cfg["encoding"] != "base64" {
		t.Errorf("expected base64 encoding, got %v", cfg["encoding"])
	}
	if cfg["preflightCommitment"] != "confirmed" {
		t.Errorf("expected preflightCommitment confirmed, got %v", cfg["preflightCommitment"])
	}
	if cfg["maxRetries"] != float64(2) {
		t.Errorf("expected maxRetries 2, got %v", cfg["maxRetries"])
	}
}

func TestHTTPClient_SendTransaction_EmptySignature(t *testing.T) {
	server := rpcServer(t, func(req rpcRequest) map[string]interface{} {
		return map[string]interface{}{"result": ""}
	})
	defer server.Close()

	client := NewHTTPClient(server.URL)
	if _, err := client.SendTransaction(context.Background(), []byte{1}, nil); err == nil {
		t.Fatal("expected error for empty signature")
	}
}

func TestHTTPClient_SendTransaction_PreflightFailure(t *testing.T) {
	var calls atomic.Int32
	server := rpcServer(t, func(req rpcRequest) map[string]interface{} {
		calls.Add(1)
		return map[string]interface{}{
			"error": map[string]interface{}{
				"code":    -32002,
				"message": "Transaction simulation failed: Blockhash not found",
			},
		}
	})
	defer server.Close()

	client := NewHTTPClient(server.URL, WithMaxRetries(3), WithRetryDelay(time.Millisecond))

	_, err := client.SendTransaction(context.Background(), []byte{1}, nil)
	if err == nil {
		t.Fatal("expected error, got nil")
	}

	var rpcErr *RPCError
	if !errors.As(err, &rpcErr) {
		t.Fatalf("expected *RPCError, got %T", err)
	}
	if rpcErr.Code != -32002 {
		t.Errorf("expected code -32002, got %d", rpcErr.Code)
	}
	if calls.Load() != 1 {
		t.Errorf("RPC errors must not be retried, got %d calls", calls.Load())
	}
}

func TestHTTPClient_GetSignatureStatuses(t *testing.T) {
	server := rpcServer(t, func(req rpcRequest) map[string]interface{} {
		if req.Method != "getSignatureStatuses" {
			t.Errorf("expected method getSignatureStatuses, got %s", req.Method)
		}
		opts, _ := req.Params[1].(map[string]interface{})
		if opts["searchTransactionHistory"] != true {
			t.Errorf("expected searchTransactionHistory, got %v", opts)
		}
		return map[string]interface{}{
			"result": map[string]interface{}{
				"context": map[string]interface{}{"slot": 500},
				"value": []interface{}{
					map[string]interface{}{
						"slot":               int64(480),
						"confirmations":      nil,
						"err":                nil,
						"confirmationStatus": "finalized",
					},
					nil,
					map[string]interface{}{
						"slot":               int64(490),
						"confirmations":      int64(3),
						"err":                map[string]interface{}{"InstructionError": []interface{}{0, "Custom"}},
						"confirmationStatus": "confirmed",
					},
				},
			},
		}
	})
	defer server.Close()

	client := NewHTTPClient(server.URL)

	statuses, err := client.GetSignatureStatuses(context.Background(), "a", "b", "c")
	if err != nil {
		t.Fatalf("GetSignatureStatuses: %v", err)
	}
	if len(statuses) != 3 {
		t.Fatalf("expected 3 statuses, got %d", len(statuses))
	}

	if statuses[0] == nil || statuses[0].ConfirmationStatus != "finalized" || statuses[0].Confirmations != nil {
		t.Errorf("unexpected first status: %+v", statuses[0])
	}
	if statuses[1] != nil {
		t.Errorf("expected unknown signature to be nil, got %+v", statuses[1])
	}
	if statuses[2] == nil || statuses[2].Err == nil || *statuses[2].Confirmations != 3 {
		t.Errorf("unexpected third status: %+v", statuses[2])
	}
}

func TestHTTPClient_Retry(t *testing.T) {
	var attempts atomic.Int32

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		count := attempts.Add(1)
		if count < 3 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}

		var req rpcRequest
		json.NewDecoder(r.Body).Decode(&req)

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]interface{}{
			"jsonrpc": "2.0",
			"id":      req.ID,
			"result":  int64(999),
		})
	}))
	defer server.Close()

	client := NewHTTPClient(server.URL,
		WithMaxRetries(3),
		WithRetryDelay(10*time.Millisecond),
	)

	slot, err := client.GetSlot(context.Background())
	if err != nil {
		t.Fatalf("GetSlot: %v", err)
	}
	if slot != 999 {
		t.Errorf("expected slot 999, got %d", slot)
	}
	if attempts.Load() != 3 {
		t.Errorf("expected 3 attempts, got %d", attempts.Load())
	}
}

func TestHTTPClient_NoRetryOnClientError(t *testing.T) {
	var attempts atomic.Int32

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts.Add(1)
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer server.Close()

	client := NewHTTPClient(server.URL, WithMaxRetries(3), WithRetryDelay(time.Millisecond))

	if _, err := client.GetSlot(context.Background()); err == nil {
		t.Fatal("expected error, got nil")
	}
	if attempts.Load() != 1 {
		t.Errorf("expected 1 attempt, got %d", attempts.Load())
	}
}

func TestHTTPClient_MaxRetriesExceeded(t *testing.T) {
	var attempts atomic.Int32

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts.Add(1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	client := NewHTTPClient(server.URL, WithMaxRetries(2), WithRetryDelay(time.Millisecond))

	if _, err := client.GetSlot(context.Background()); err == nil {
		t.Fatal("expected error, got nil")
	}
	if attempts.Load() != 3 {
		t.Errorf("expected 3 attempts, got %d", attempts.Load())
	}
}

func TestHTTPClient_ContextCancellation(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(100 * time.Millisecond)
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	client := NewHTTPClient(server.URL)
	ctx, cancel := context.WithCancel(context.Background())
	cancel() // Cancel immediately

	if _, err := client.GetSlot(ctx); err == nil {
		t.Fatal("expected error from cancelled context")
	}
}
