package mux

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/kravtofly/svr-backend/pkg/config"
	pkgerrors "github.com/kravtofly/svr-backend/pkg/errors"
)

const (
	defaultBaseURL = "https://api.mux.com"
	defaultTimeout = 10 * time.Second

	// PolicySigned marks playback handles that require a signed token.
	PolicySigned = "signed"
	// PolicyPublic marks handles playable without a token.
	PolicyPublic = "public"

	responseBodyReadLimit int64 = 1 << 20
)

var (
	errTokenRequired = errors.New("mux token id and secret are required")
)

// Client wraps the three provider operations the lifecycle subsystem needs:
// resolve an upload to its asset, fetch an asset, and create a playback
// handle. Everything else the vendor API offers is deliberately not exposed.
type Client struct {
	httpClient    *http.Client
	baseURL       string
	tokenID       string
	tokenSecret   string
	webhookSecret string
}

// Option configures optional client behavior.
type Option func(*Client)

// WithHTTPClient overrides the default HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		if client != nil {
			c.httpClient = client
		}
	}
}

// WithBaseURL overrides the configured API base URL.
func WithBaseURL(baseURL string) Option {
	return func(c *Client) {
		trimmed := strings.TrimSpace(baseURL)
		if trimmed != "" {
			c.baseURL = trimmed
		}
	}
}

// NewClient builds the provider client from configuration.
func NewClient(cfg config.MuxConfig, opts ...Option) (*Client, error) {
	tokenID := strings.TrimSpace(cfg.TokenID)
	tokenSecret := strings.TrimSpace(cfg.TokenSecret)
	if tokenID == "" || tokenSecret == "" {
		return nil, errTokenRequired
	}

	timeout := cfg.CallTimeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}

	client := &Client{
		httpClient:    &http.Client{Timeout: timeout},
		baseURL:       defaultBaseURL,
		tokenID:       tokenID,
		tokenSecret:   tokenSecret,
		webhookSecret: strings.TrimSpace(cfg.WebhookSecret),
	}
	if cfg.BaseURL != "" {
		client.baseURL = strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	}

	for _, opt := range opts {
		if opt != nil {
			opt(client)
		}
	}

	return client, nil
}

// SigningSecret returns the shared webhook secret.
func (c *Client) SigningSecret() string {
	if c == nil {
		return ""
	}
	return c.webhookSecret
}

// Upload is the provider's direct-upload slot.
type Upload struct {
	ID      string `json:"id"`
	Status  string `json:"status"`
	AssetID string `json:"asset_id"`
}

// PlaybackID is one access policy attached to an asset.
type PlaybackID struct {
	ID     string `json:"id"`
	Policy string `json:"policy"`
}

// Asset is the provider's processed media object.
type Asset struct {
	ID          string       `json:"id"`
	Status      string       `json:"status"`
	Duration    *float64     `json:"duration"`
	Passthrough string       `json:"passthrough"`
	PlaybackIDs []PlaybackID `json:"playback_ids"`
}

// SignedPlaybackID returns the first signed-policy handle, if any.
func (a *Asset) SignedPlaybackID() string {
	if a == nil {
		return ""
	}
	for _, pb := range a.PlaybackIDs {
		if pb.Policy == PolicySigned {
			return pb.ID
		}
	}
	return ""
}

// GetUpload retrieves a direct-upload slot; the asset id is empty until the
// provider has created the asset.
func (c *Client) GetUpload(ctx context.Context, uploadID string) (*Upload, error) {
	if strings.TrimSpace(uploadID) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "upload id is required")
	}
	var out Upload
	path := fmt.Sprintf("/video/v1/uploads/%s", url.PathEscape(uploadID))
	if err := c.do(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// GetAsset retrieves the asset state and its playback handles.
func (c *Client) GetAsset(ctx context.Context, assetID string) (*Asset, error) {
	if strings.TrimSpace(assetID) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "asset id is required")
	}
	var out Asset
	path := fmt.Sprintf("/video/v1/assets/%s", url.PathEscape(assetID))
	if err := c.do(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// CreatePlaybackID attaches a playback handle with the given policy. The
// provider allows multiple handles per asset, so callers list existing ones
// first and only create when none match.
func (c *Client) CreatePlaybackID(ctx context.Context, assetID, policy string) (*PlaybackID, error) {
	if strings.TrimSpace(assetID) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "asset id is required")
	}
	if policy == "" {
		policy = PolicySigned
	}
	var out PlaybackID
	path := fmt.Sprintf("/video/v1/assets/%s/playback-ids", url.PathEscape(assetID))
	if err := c.do(ctx, http.MethodPost, path, map[string]string{"policy": policy}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

type envelope struct {
	Data json.RawMessage `json:"data"`
}

func (c *Client) do(ctx context.Context, method, path string, body any, dest any) error {
	var reader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "encode provider request")
		}
		reader = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "build provider request")
	}
	req.SetBasicAuth(c.tokenID, c.tokenSecret)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "call video provider")
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(io.LimitReader(resp.Body, responseBodyReadLimit))
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "read provider response")
	}

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return pkgerrors.New(pkgerrors.CodeNotFound, "provider resource not found")
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		return pkgerrors.New(pkgerrors.CodeDependency, "provider request failed").
			WithDetails(map[string]any{"status": resp.StatusCode, "path": path})
	}

	if dest == nil {
		return nil
	}

	var env envelope
	if err := json.Unmarshal(payload, &env); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "decode provider response")
	}
	if len(env.Data) == 0 {
		return pkgerrors.New(pkgerrors.CodeDependency, "provider response missing data")
	}
	if err := json.Unmarshal(env.Data, dest); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "decode provider payload")
	}
	return nil
}
