// Package reddit implements the content source adapter on top of the Reddit
// OAuth JSON API. It honors the provider's pagination and rate limits and
// maps provider failures onto the pipeline error taxonomy.
package reddit

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"painscope/internal/fault"
)

const (
	maxAttempts   = 3
	backoffBase   = 1 * time.Second
	requestExpiry = 10 * time.Second
)

// Client is a Reddit OAuth2 client-credentials API client.
type Client struct {
	baseURL   string
	tokenURL  string
	clientID  string
	secret    string
	userAgent string
	client    *http.Client

	mu          sync.Mutex
	accessToken string
	tokenExpiry time.Time
}

// Config carries the credentials and endpoints for a Client.
type Config struct {
	ClientID     string
	ClientSecret string
	UserAgent    string
	BaseURL      string // e.g. https://oauth.reddit.com
	TokenURL     string // e.g. https://www.reddit.com/api/v1/access_token
}

// NewClient creates a Reddit API client.
func NewClient(cfg Config) *Client {
	base := strings.TrimRight(cfg.BaseURL, "/")
	if base == "" {
		base = "https://oauth.reddit.com"
	}
	tokenURL := cfg.TokenURL
	if tokenURL == "" {
		tokenURL = "https://www.reddit.com/api/v1/access_token"
	}
	ua := cfg.UserAgent
	if ua == "" {
		ua = "painscope/1.0"
	}
	return &Client{
		baseURL:   base,
		tokenURL:  tokenURL,
		clientID:  cfg.ClientID,
		secret:    cfg.ClientSecret,
		userAgent: ua,
		client:    &http.Client{Timeout: requestExpiry},
	}
}

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int    `json:"expires_in"`
}

// token returns a cached application token, refreshing it when expired.
func (c *Client) token(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.accessToken != "" && time.Now().Before(c.tokenExpiry) {
		return c.accessToken, nil
	}
	form := url.Values{"grant_type": {"client_credentials"}}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.tokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		return "", err
	}
	req.SetBasicAuth(c.clientID, c.secret)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("User-Agent", c.userAgent)
	resp, err := c.client.Do(req)
	if err != nil {
		return "", fault.Transient(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		b, _ := io.ReadAll(resp.Body)
		return "", fault.Auth(fmt.Errorf("reddit: token request status %d: %s", resp.StatusCode, strings.TrimSpace(string(b))))
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fault.Transientf("reddit: token request status %d", resp.StatusCode)
	}
	var tok tokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&tok); err != nil {
		return "", fault.Validation(fmt.Errorf("reddit: decode token response: %w", err))
	}
	if tok.AccessToken == "" {
		return "", fault.Auth(fmt.Errorf("reddit: empty access token"))
	}
	c.accessToken = tok.AccessToken
	// Refresh one minute early to avoid racing the expiry.
	c.tokenExpiry = time.Now().Add(time.Duration(tok.ExpiresIn)*time.Second - time.Minute)
	return c.accessToken, nil
}

// getJSON performs an authenticated GET and decodes the body into out.
// Rate-limit and server errors are retried with bounded exponential backoff;
// auth and not-found failures are surfaced immediately.
func (c *Client) getJSON(ctx context.Context, path string, query url.Values, out any) error {
	var lastErr error
	for attempt := 0; attempt < maxAttempts; attempt++ {
		if attempt > 0 {
			d := backoffBase << (attempt - 1)
			select {
			case <-ctx.Done():
				return fault.Transient(ctx.Err())
			case <-time.After(d):
			}
		}
		err := c.getJSONOnce(ctx, path, query, out)
		if err == nil {
			return nil
		}
		if !fault.IsTransient(err) {
			return err
		}
		lastErr = err
	}
	return fault.Transientf("reddit: %s failed after %d attempts: %w", path, maxAttempts, lastErr)
}

func (c *Client) getJSONOnce(ctx context.Context, path string, query url.Values, out any) error {
	tok, err := c.token(ctx)
	if err != nil {
		return err
	}
	endpoint := c.baseURL + path
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+tok)
	req.Header.Set("User-Agent", c.userAgent)
	resp, err := c.client.Do(req)
	if err != nil {
		return fault.Transient(err)
	}
	defer resp.Body.Close()
	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		c.invalidateToken()
		return fault.Auth(fmt.Errorf("reddit: %s status %d", path, resp.StatusCode))
	case resp.StatusCode == http.StatusNotFound:
		return fault.NotFound(fmt.Errorf("reddit: %s not found", path))
	case resp.StatusCode == http.StatusTooManyRequests:
		return fault.Transientf("reddit: %s rate limited", path)
	case resp.StatusCode < 200 || resp.StatusCode >= 300:
		return fault.Transientf("reddit: %s status %d", path, resp.StatusCode)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fault.Validation(fmt.Errorf("reddit: decode %s: %w", path, err))
	}
	return nil
}

func (c *Client) invalidateToken() {
	c.mu.Lock()
	c.accessToken = ""
	c.mu.Unlock()
}
