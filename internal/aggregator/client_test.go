package aggregator

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeEnvelope(w http.ResponseWriter, response interface{}) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"success":  true,
		"response": response,
	})
}

func TestCreateTokenInfo(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, pathCreateTokenInfo, r.URL.Path)
		assert.Equal(t, "secret", r.Header.Get("x-api-key"))

		mr, err := r.MultipartReader()
		require.NoError(t, err)

		var names []string
		for {
			part, err := mr.NextPart()
			if err == io.EOF {
				break
			}
			require.NoError(t, err)
			names = append(names, part.FormName())
			if part.FormName() == "image" {
				assert.Equal(t, "logo.png", part.FileName())
				assert.Equal(t, "image/png", part.Header.Get("Content-Type"))
				data, _ := io.ReadAll(part)
				assert.Equal(t, []byte{0x89, 'P', 'N', 'G'}, data)
			}
		}
		assert.Equal(t, []string{"name", "symbol", "description", "image"}, names)

		writeEnvelope(w, map[string]interface{}{
			"tokenMint":     "T1",
			"tokenMetadata": "ipfs://meta",
			"tokenLaunch":   map[string]interface{}{"image": "https://img/1.png"},
		})
	}))
	defer server.Close()

	c := NewClient(server.URL+"/", "secret")
	info, err := c.CreateTokenInfo(context.Background(), &TokenInfoRequest{
		Fields: []Field{
			{Name: "name", Value: "Trojan"},
			{Name: "symbol", Value: "TROJ"},
			{Name: "description", Value: "bad"},
		},
		File: FilePart{Filename: "logo.png", MimeType: "image/png", Data: []byte{0x89, 'P', 'N', 'G'}},
	})
	require.NoError(t, err)
	assert.Equal(t, "T1", info.TokenMint)
	assert.Equal(t, "ipfs://meta", info.TokenMetadata)
	assert.Equal(t, "https://img/1.png", info.ImageURL())
}

func TestCreateTokenInfo_Malformed(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeEnvelope(w, map[string]interface{}{"tokenMint": "T1"})
	}))
	defer server.Close()

	_, err := NewClient(server.URL, "").CreateTokenInfo(context.Background(), &TokenInfoRequest{
		File: FilePart{Filename: "a.png", MimeType: "image/png", Data: []byte{1}},
	})
	assert.ErrorIs(t, err, ErrMalformedResponse)
}

func TestAPIErrorMessage(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		body    string
		message string
	}{
		{"error field", 400, `{"success":false,"error":"name taken"}`, "name taken"},
		{"message field", 401, `{"message":"bad api key"}`, "bad api key"},
		{"response field", 422, `{"success":false,"response":"invalid symbol"}`, "invalid symbol"},
		{"non json", 502, `<html>bad gateway</html>`, "aggregator request failed with status 502"},
		{"no string fields", 500, `{"error":{"code":1}}`, "aggregator request failed with status 500"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				w.Write([]byte(tt.body))
			}))
			defer server.Close()

			_, err := NewClient(server.URL, "k").CreateLaunchTransaction(context.Background(), &LaunchTxRequest{})
			var apiErr *APIError
			require.ErrorAs(t, err, &apiErr)
			assert.Equal(t, tt.status, apiErr.Status)
			assert.Equal(t, tt.message, apiErr.Message)
		})
	}
}

func TestSuccessFalseIsRejection(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"success":false,"error":"quota exceeded"}`))
	}))
	defer server.Close()

	_, err := NewClient(server.URL, "k").CreateLaunchTransaction(context.Background(), &LaunchTxRequest{})
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusOK, apiErr.Status)
	assert.Equal(t, "quota exceeded", apiErr.Message)
}

func TestCreateFeeShareConfig(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, pathFeeShareConfig, r.URL.Path)
		var req FeeShareRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "T1", req.BaseMint)
		assert.Equal(t, []string{"creator", "friend"}, req.Claimers)
		assert.Equal(t, []int{7000, 3000}, req.BasisPoints)

		writeEnvelope(w, map[string]interface{}{
			"needsCreation":    true,
			"meteoraConfigKey": "CFG",
			"transactions":     []string{"tx1", "tx2"},
		})
	}))
	defer server.Close()

	cfg, err := NewClient(server.URL, "k").CreateFeeShareConfig(context.Background(), &FeeShareRequest{
		Payer:       "creator",
		BaseMint:    "T1",
		Claimers:    []string{"creator", "friend"},
		BasisPoints: []int{7000, 3000},
	})
	require.NoError(t, err)
	assert.True(t, cfg.NeedsCreation)
	assert.Equal(t, "CFG", cfg.ConfigKey)
	assert.Equal(t, []string{"tx1", "tx2"}, cfg.Transactions)
}

func TestCreateFeeShareConfig_SetupWithoutTransactions(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeEnvelope(w, map[string]interface{}{"needsCreation": true, "meteoraConfigKey": "CFG"})
	}))
	defer server.Close()

	_, err := NewClient(server.URL, "k").CreateFeeShareConfig(context.Background(), &FeeShareRequest{})
	assert.ErrorIs(t, err, ErrMalformedResponse)
}

func TestCreateLaunchTransaction(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req map[string]interface{}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "ipfs://meta", req["ipfs"])
		assert.Equal(t, float64(1500000000), req["initialBuyLamports"])
		writeEnvelope(w, "4vJ9JU1bJJE96FWSJKvHsmmFADCg4gpZQff4P3bkLKi")
	}))
	defer server.Close()

	encoded, err := NewClient(server.URL, "k").CreateLaunchTransaction(context.Background(), &LaunchTxRequest{
		MetadataURI:        "ipfs://meta",
		TokenMint:          "T1",
		Wallet:             "W",
		InitialBuyLamports: 1_500_000_000,
		ConfigKey:          "CFG",
	})
	require.NoError(t, err)
	assert.Equal(t, "4vJ9JU1bJJE96FWSJKvHsmmFADCg4gpZQff4P3bkLKi", encoded)
}

func TestUnavailable(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := server.URL
	server.Close()

	_, err := NewClient(url, "k").CreateLaunchTransaction(context.Background(), &LaunchTxRequest{})
	assert.ErrorIs(t, err, ErrUnavailable)

	var apiErr *APIError
	assert.False(t, errors.As(err, &apiErr))
}
