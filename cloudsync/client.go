package cloudsync

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// TokenSource supplies the bearer token for authenticated requests. Auth is
// an external concern; the sync layer only attaches what it is given.
type TokenSource interface {
	Token() (string, error)
}

// StaticToken is a TokenSource for a fixed token.
type StaticToken string

func (t StaticToken) Token() (string, error) { return string(t), nil }

// API is the remote surface the sync service consumes. *Client implements
// it; tests substitute fakes.
type API interface {
	Me(ctx context.Context) (*Account, error)
	CreateEntry(ctx context.Context, req *EntryUpsert) (*CloudEntry, error)
	GetEntry(ctx context.Context, cloudID string) (*CloudEntry, error)
	UpdateEntry(ctx context.Context, cloudID string, req *EntryUpsert) (*CloudEntry, error)
	DeleteEntry(ctx context.Context, cloudID string) error
	ListEntries(ctx context.Context) ([]CloudEntry, error)
	CreateAccessKeys(ctx context.Context, cloudID string, accessKeys []AccessKey) error
	ListAccessKeys(ctx context.Context, cloudID string) ([]AccessKey, error)
	RevokeAccessKey(ctx context.Context, cloudID, userID string) error
}

// Client talks JSON over HTTPS to the cloud API. It never retries: a failed
// call surfaces immediately and the caller decides what the failure means.
// Callers wanting a retry policy inject an *http.Client whose transport
// implements it.
type Client struct {
	baseURL string
	httpc   *http.Client
	tokens  TokenSource
	log     *slog.Logger
}

var _ API = (*Client)(nil)

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithHTTPClient replaces the underlying HTTP client, the hook for custom
// transports (retry, tracing, test doubles).
func WithHTTPClient(h *http.Client) ClientOption {
	return func(c *Client) { c.httpc = h }
}

// WithClientLogger replaces the client's logger.
func WithClientLogger(l *slog.Logger) ClientOption {
	return func(c *Client) { c.log = l }
}

func NewClient(baseURL string, tokens TokenSource, opts ...ClientOption) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpc:   &http.Client{Timeout: 30 * time.Second},
		tokens:  tokens,
		log:     slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Me returns the authenticated account, including its registered public key.
func (c *Client) Me(ctx context.Context) (*Account, error) {
	var acct Account
	if err := c.do(ctx, http.MethodGet, "/me", nil, &acct); err != nil {
		return nil, err
	}
	return &acct, nil
}

// CreateEntry publishes a new entry and returns the server's copy, carrying
// the assigned cloud id and server updated_at.
func (c *Client) CreateEntry(ctx context.Context, req *EntryUpsert) (*CloudEntry, error) {
	var e CloudEntry
	if err := c.do(ctx, http.MethodPost, "/entries", req, &e); err != nil {
		return nil, err
	}
	return &e, nil
}

// GetEntry fetches one cloud entry, including the requester's access key.
func (c *Client) GetEntry(ctx context.Context, cloudID string) (*CloudEntry, error) {
	var e CloudEntry
	if err := c.do(ctx, http.MethodGet, "/entries/"+url.PathEscape(cloudID), nil, &e); err != nil {
		return nil, err
	}
	return &e, nil
}

// UpdateEntry uploads new ciphertext for an existing entry. The server
// enforces req.IfUnmodifiedSince when set, answering 409 (ErrConflict) if
// its copy is newer.
func (c *Client) UpdateEntry(ctx context.Context, cloudID string, req *EntryUpsert) (*CloudEntry, error) {
	var e CloudEntry
	if err := c.do(ctx, http.MethodPut, "/entries/"+url.PathEscape(cloudID), req, &e); err != nil {
		return nil, err
	}
	return &e, nil
}

// DeleteEntry removes the cloud copy and all its access keys.
func (c *Client) DeleteEntry(ctx context.Context, cloudID string) error {
	return c.do(ctx, http.MethodDelete, "/entries/"+url.PathEscape(cloudID), nil, nil)
}

// ListEntries returns every cloud entry owned by or shared with the caller.
func (c *Client) ListEntries(ctx context.Context) ([]CloudEntry, error) {
	var entries []CloudEntry
	if err := c.do(ctx, http.MethodGet, "/entries", nil, &entries); err != nil {
		return nil, err
	}
	return entries, nil
}

// CreateAccessKeys grants access by uploading wrapped entry keys, batched in
// one request.
func (c *Client) CreateAccessKeys(ctx context.Context, cloudID string, accessKeys []AccessKey) error {
	body := struct {
		Keys []AccessKey `json:"keys"`
	}{Keys: accessKeys}
	return c.do(ctx, http.MethodPost, "/entries/"+url.PathEscape(cloudID)+"/access-keys", body, nil)
}

// ListAccessKeys returns the access keys of one entry, used for grantee
// diffing during re-sync.
func (c *Client) ListAccessKeys(ctx context.Context, cloudID string) ([]AccessKey, error) {
	var accessKeys []AccessKey
	if err := c.do(ctx, http.MethodGet, "/entries/"+url.PathEscape(cloudID)+"/access-keys", nil, &accessKeys); err != nil {
		return nil, err
	}
	return accessKeys, nil
}

// RevokeAccessKey deletes one user's wrapped key for an entry.
func (c *Client) RevokeAccessKey(ctx context.Context, cloudID, userID string) error {
	return c.do(ctx, http.MethodDelete,
		"/entries/"+url.PathEscape(cloudID)+"/access-keys/"+url.PathEscape(userID), nil, nil)
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encoding %s %s body: %w", method, path, err)
		}
		reader = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("building %s %s: %w", method, path, err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	token, err := c.tokens.Token()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnauthorized, err)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.httpc.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
	case resp.StatusCode == http.StatusUnauthorized, resp.StatusCode == http.StatusForbidden:
		return fmt.Errorf("%s %s: %w", method, path, ErrUnauthorized)
	case resp.StatusCode == http.StatusNotFound:
		return fmt.Errorf("%s %s: %w", method, path, ErrNotFound)
	case resp.StatusCode == http.StatusConflict:
		return fmt.Errorf("%s %s: %w", method, path, ErrConflict)
	default:
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("%s %s: unexpected status %d: %s", method, path, resp.StatusCode, strings.TrimSpace(string(snippet)))
	}

	if out == nil {
		io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decoding %s %s response: %w", method, path, err)
	}
	return nil
}
