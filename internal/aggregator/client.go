// Package aggregator is a client for the token-launch aggregator HTTP API.
package aggregator

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"strings"
	"time"

	"go.uber.org/zap"

	"larpx402/internal/observability"
)

const (
	pathCreateTokenInfo   = "/token-launch/create-token-info"
	pathFeeShareConfig    = "/token-launch/fee-share/config"
	pathCreateLaunchTx    = "/token-launch/create-launch-transaction"
	maxResponseBodyBytes  = 4 << 20
	defaultRequestTimeout = 60 * time.Second
)

var (
	// ErrUnavailable wraps transport failures: the request never got an HTTP answer.
	ErrUnavailable = errors.New("aggregator unavailable")
	// ErrMalformedResponse is returned for a 2xx answer missing required fields.
	ErrMalformedResponse = errors.New("malformed aggregator response")
)

// APIError is a non-2xx (or success=false) answer from the aggregator.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("aggregator error %d: %s", e.Status, e.Message)
}

// Client talks to the aggregator with a static API key.
type Client struct {
	baseURL string
	apiKey  string
	client  *http.Client
	logger  *zap.Logger
}

// Option configures the Client.
type Option func(*Client)

// WithTimeout sets the HTTP client timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		c.client.Timeout = d
	}
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		c.client = client
	}
}

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) Option {
	return func(c *Client) {
		c.logger = logger
	}
}

// NewClient creates an aggregator client.
func NewClient(baseURL, apiKey string, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		client:  &http.Client{Timeout: defaultRequestTimeout},
		logger:  zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// envelope is the aggregator's response wrapper.
type envelope struct {
	Success  bool            `json:"success"`
	Response json.RawMessage `json:"response"`
	Error    string          `json:"error"`
}

// Field is one ordered text part of the multipart form.
type Field struct {
	Name  string
	Value string
}

// FilePart is the binary image part.
type FilePart struct {
	FieldName string
	Filename  string
	MimeType  string
	Data      []byte
}

// TokenInfoRequest is the multipart payload for create-token-info.
type TokenInfoRequest struct {
	Fields []Field
	File   FilePart
}

// TokenInfo is the created token identity and metadata reference.
type TokenInfo struct {
	TokenMint     string `json:"tokenMint"`
	TokenMetadata string `json:"tokenMetadata"`
	TokenLaunch   *struct {
		Image string `json:"image"`
	} `json:"tokenLaunch,omitempty"`
}

// ImageURL returns the hosted image URL when the aggregator reported one.
func (t *TokenInfo) ImageURL() string {
	if t.TokenLaunch == nil {
		return ""
	}
	return t.TokenLaunch.Image
}

// CreateTokenInfo uploads the image and metadata and reserves a mint.
func (c *Client) CreateTokenInfo(ctx context.Context, req *TokenInfoRequest) (*TokenInfo, error) {
	body, contentType, err := encodeMultipart(req)
	if err != nil {
		return nil, fmt.Errorf("encode multipart: %w", err)
	}

	var info TokenInfo
	if err := c.do(ctx, pathCreateTokenInfo, contentType, body, &info); err != nil {
		return nil, err
	}
	if info.TokenMint == "" || info.TokenMetadata == "" {
		return nil, fmt.Errorf("%w: missing tokenMint or tokenMetadata", ErrMalformedResponse)
	}
	return &info, nil
}

// encodeMultipart writes fields in order followed by the file part.
func encodeMultipart(req *TokenInfoRequest) (*bytes.Buffer, string, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)

	for _, f := range req.Fields {
		if err := w.WriteField(f.Name, f.Value); err != nil {
			return nil, "", err
		}
	}

	fieldName := req.File.FieldName
	if fieldName == "" {
		fieldName = "image"
	}
	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="%s"; filename="%s"`,
		escapeQuotes(fieldName), escapeQuotes(req.File.Filename)))
	h.Set("Content-Type", req.File.MimeType)
	part, err := w.CreatePart(h)
	if err != nil {
		return nil, "", err
	}
	if _, err := part.Write(req.File.Data); err != nil {
		return nil, "", err
	}

	if err := w.Close(); err != nil {
		return nil, "", err
	}
	return &buf, w.FormDataContentType(), nil
}

var quoteEscaper = strings.NewReplacer("\\", "\\\\", `"`, "\\\"")

func escapeQuotes(s string) string {
	return quoteEscaper.Replace(s)
}

// FeeShareRequest declares who receives trading fees.
// BasisPoints[i] belongs to Claimers[i]; the creator is listed first.
type FeeShareRequest struct {
	Payer       string   `json:"payer"`
	BaseMint    string   `json:"baseMint"`
	Claimers    []string `json:"claimersArray"`
	BasisPoints []int    `json:"basisPointsArray"`
}

// FeeShareConfig is the aggregator's answer to a fee split.
type FeeShareConfig struct {
	NeedsCreation bool     `json:"needsCreation"`
	ConfigKey     string   `json:"meteoraConfigKey"`
	Transactions  []string `json:"transactions"` // base58, in required order
}

// CreateFeeShareConfig registers the fee split for a mint.
func (c *Client) CreateFeeShareConfig(ctx context.Context, req *FeeShareRequest) (*FeeShareConfig, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	var cfg FeeShareConfig
	if err := c.do(ctx, pathFeeShareConfig, "application/json", bytes.NewReader(body), &cfg); err != nil {
		return nil, err
	}
	if cfg.ConfigKey == "" {
		return nil, fmt.Errorf("%w: missing config key", ErrMalformedResponse)
	}
	if cfg.NeedsCreation && len(cfg.Transactions) == 0 {
		return nil, fmt.Errorf("%w: setup required without transactions", ErrMalformedResponse)
	}
	for i, tx := range cfg.Transactions {
		if tx == "" {
			return nil, fmt.Errorf("%w: empty config transaction %d", ErrMalformedResponse, i)
		}
	}
	return &cfg, nil
}

// LaunchTxRequest asks for the signable launch transaction.
type LaunchTxRequest struct {
	MetadataURI        string `json:"ipfs"`
	TokenMint          string `json:"tokenMint"`
	Wallet             string `json:"wallet"`
	InitialBuyLamports uint64 `json:"initialBuyLamports"`
	ConfigKey          string `json:"configKey"`
}

// CreateLaunchTransaction returns the base58 encoded launch transaction.
func (c *Client) CreateLaunchTransaction(ctx context.Context, req *LaunchTxRequest) (string, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return "", fmt.Errorf("marshal request: %w", err)
	}

	var encoded string
	if err := c.do(ctx, pathCreateLaunchTx, "application/json", bytes.NewReader(body), &encoded); err != nil {
		return "", err
	}
	if encoded == "" {
		return "", fmt.Errorf("%w: empty transaction", ErrMalformedResponse)
	}
	return encoded, nil
}

// do sends one POST and decodes the envelope's response into result.
// There is no retry: a repeated create call could reserve a second mint.
func (c *Client) do(ctx context.Context, path, contentType string, body io.Reader, result interface{}) (err error) {
	start := time.Now()
	defer func() {
		observability.RecordAggregatorCall(path, time.Since(start).Seconds(), err)
	}()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("Accept", "application/json")
	if c.apiKey != "" {
		req.Header.Set("x-api-key", c.apiKey)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBodyBytes))
	if err != nil {
		return fmt.Errorf("%w: read response: %v", ErrUnavailable, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		apiErr := &APIError{Status: resp.StatusCode, Message: extractMessage(respBody, resp.StatusCode)}
		c.logger.Warn("aggregator rejected request",
			zap.String("path", path),
			zap.Int("status", apiErr.Status),
			zap.String("message", apiErr.Message))
		return apiErr
	}

	var env envelope
	if err := json.Unmarshal(respBody, &env); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}
	if !env.Success {
		return &APIError{Status: resp.StatusCode, Message: extractMessage(respBody, resp.StatusCode)}
	}
	if len(env.Response) == 0 || string(env.Response) == "null" {
		return fmt.Errorf("%w: empty response", ErrMalformedResponse)
	}
	if err := json.Unmarshal(env.Response, result); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}
	return nil
}

// extractMessage pulls a human-readable reason out of an error body.
func extractMessage(body []byte, status int) string {
	var fields map[string]interface{}
	if err := json.Unmarshal(body, &fields); err == nil {
		for _, key := range []string{"error", "message", "response"} {
			if s, ok := fields[key].(string); ok && strings.TrimSpace(s) != "" {
				return s
			}
		}
	}
	return fmt.Sprintf("aggregator request failed with status %d", status)
}
