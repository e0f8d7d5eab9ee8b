// Package imagegen generates threat artwork and downloads images for launches.
package imagegen

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path"
	"strings"
	"time"

	"go.uber.org/zap"

	"larpx402/internal/domain"
	"larpx402/internal/observability"
	"larpx402/internal/threat"
)

// MaxImageBytes caps downloaded images at the launch upload limit.
const MaxImageBytes = 5 << 20

// ErrImageTooLarge is returned when a download exceeds MaxImageBytes.
var ErrImageTooLarge = errors.New("image exceeds 5 MiB")

// Client calls the image-generation gateway.
type Client struct {
	baseURL string
	apiKey  string
	client  *http.Client
	logger  *zap.Logger
}

// Option configures the Client.
type Option func(*Client)

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

// NewClient creates a gateway client.
func NewClient(baseURL, apiKey string, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		client:  &http.Client{Timeout: 90 * time.Second},
		logger:  zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type generateRequest struct {
	Prompt   string `json:"prompt"`
	Name     string `json:"threatName"`
	Type     string `json:"threatType"`
	Severity string `json:"severity"`
}

type generateResponse struct {
	ImageURL string `json:"imageUrl"`
	URL      string `json:"url"`
	Error    string `json:"error"`
}

// Prompt describes the artwork for t.
func Prompt(t threat.Threat) string {
	return fmt.Sprintf("Retro antivirus warning icon for a %s severity %s named %q, pixel art, glitch, neon on black",
		t.Severity, t.Type, t.Name)
}

// Generate asks the gateway for artwork of t and returns the image URL.
func (c *Client) Generate(ctx context.Context, t threat.Threat) (string, error) {
	start := time.Now()
	defer func() {
		observability.RecordImageGen(time.Since(start).Seconds())
	}()

	body, err := json.Marshal(generateRequest{
		Prompt:   Prompt(t),
		Name:     t.Name,
		Type:     t.Type,
		Severity: string(t.Severity),
	})
	if err != nil {
		return "", fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/generate", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("image gateway: %w", err)
	}
	defer resp.Body.Close()

	var out generateResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(&out); err != nil {
		return "", fmt.Errorf("decode response (status %d): %w", resp.StatusCode, err)
	}
	if resp.StatusCode != http.StatusOK {
		msg := out.Error
		if msg == "" {
			msg = http.StatusText(resp.StatusCode)
		}
		return "", fmt.Errorf("image gateway status %d: %s", resp.StatusCode, msg)
	}

	imageURL := out.ImageURL
	if imageURL == "" {
		imageURL = out.URL
	}
	if imageURL == "" {
		return "", fmt.Errorf("image gateway returned no url")
	}
	c.logger.Debug("image generated", zap.String("threat", t.Name), zap.String("url", imageURL))
	return imageURL, nil
}

// FetchImage downloads rawURL into an ImageAsset, refusing bodies over MaxImageBytes.
func (c *Client) FetchImage(ctx context.Context, rawURL string) (*domain.ImageAsset, error) {
	u, err := url.Parse(rawURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") {
		return nil, fmt.Errorf("invalid image url %q", rawURL)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch image: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch image: status %d", resp.StatusCode)
	}
	if resp.ContentLength > MaxImageBytes {
		return nil, ErrImageTooLarge
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, MaxImageBytes+1))
	if err != nil {
		return nil, fmt.Errorf("read image: %w", err)
	}
	if len(data) > MaxImageBytes {
		return nil, ErrImageTooLarge
	}

	mimeType := resp.Header.Get("Content-Type")
	if mimeType == "" || strings.HasPrefix(mimeType, "application/octet-stream") {
		mimeType = http.DetectContentType(data)
	}

	filename := path.Base(u.Path)
	if filename == "/" || filename == "." {
		filename = ""
	}
	return &domain.ImageAsset{Data: data, MimeType: mimeType, Filename: filename}, nil
}
