package contact

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/wattsync/wattsync/internal/provider"
	"github.com/wattsync/wattsync/pkg/models"
)

const (
	defaultBaseURL = "https://api.contact-digital-prod.net"
	defaultTimeout = 30 * time.Second

	// The usage API throttles aggressively; stay below one request per second.
	defaultMinInterval = time.Second
)

// Client implements the provider.Client interface for Contact Energy
type Client struct {
	username   string
	password   string
	apiKey     string
	baseURL    string
	httpClient *http.Client
	logger     *slog.Logger
	limiter    *rate.Limiter

	// Session token, acquired lazily on first use
	mu    sync.Mutex
	token string
}

// ClientOption configures the Contact Energy client
type ClientOption func(*Client)

// WithBaseURL sets a custom base URL (for testing)
func WithBaseURL(url string) ClientOption {
	return func(c *Client) {
		c.baseURL = url
	}
}

// WithHTTPClient sets a custom HTTP client
func WithHTTPClient(client *http.Client) ClientOption {
	return func(c *Client) {
		c.httpClient = client
	}
}

// WithAPIKey sets a custom API key
func WithAPIKey(key string) ClientOption {
	return func(c *Client) {
		if key != "" {
			c.apiKey = key
		}
	}
}

// WithMinInterval sets the minimum interval between requests
func WithMinInterval(d time.Duration) ClientOption {
	return func(c *Client) {
		if d > 0 {
			c.limiter = rate.NewLimiter(rate.Every(d), 1)
		} else {
			c.limiter = rate.NewLimiter(rate.Inf, 1)
		}
	}
}

// WithLogger sets a custom logger
func WithLogger(logger *slog.Logger) ClientOption {
	return func(c *Client) {
		c.logger = logger
	}
}

// NewClient creates a new Contact Energy client
func NewClient(username, password string, opts ...ClientOption) *Client {
	c := &Client{
		username:   username,
		password:   password,
		baseURL:    defaultBaseURL,
		httpClient: &http.Client{Timeout: defaultTimeout},
		logger:     slog.Default(),
		limiter:    rate.NewLimiter(rate.Every(defaultMinInterval), 1),
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// Authenticate logs in and caches the session token
func (c *Client) Authenticate(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.token != "" {
		return nil
	}
	return c.authenticateLocked(ctx)
}

func (c *Client) authenticateLocked(ctx context.Context) error {
	body, err := json.Marshal(loginRequest{Username: c.username, Password: c.password})
	if err != nil {
		return fmt.Errorf("failed to encode login request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/login/v2", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create login request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-api-key", c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return provider.NewAPIError("login", 0, err.Error(), err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		return fmt.Errorf("login rejected (HTTP %d): %w", resp.StatusCode, provider.ErrAuth)
	}
	if resp.StatusCode != http.StatusOK {
		return provider.NewAPIError("login", resp.StatusCode, readErrorBody(resp.Body), nil)
	}

	var login loginResponse
	if err := json.NewDecoder(resp.Body).Decode(&login); err != nil {
		return provider.NewAPIError("login", resp.StatusCode, "undecodable login response", err)
	}
	if login.Token == "" {
		return fmt.Errorf("login returned no token: %w", provider.ErrAuth)
	}

	c.token = login.Token
	c.logger.Info("authenticated with Contact Energy API")
	return nil
}

// ListAccounts returns the accounts and contracts visible to the credentials
func (c *Client) ListAccounts(ctx context.Context) ([]models.Account, error) {
	payload, err := c.get(ctx, "/accounts/v2", nil)
	if err != nil {
		return nil, err
	}

	var summary accountsResponse
	if err := json.Unmarshal(payload, &summary); err != nil {
		return nil, provider.NewAPIError("accounts", 0, "undecodable accounts response", err)
	}

	accounts := make([]models.Account, 0, len(summary.Accounts))
	for _, detail := range summary.Accounts {
		account := models.Account{AccountID: detail.ID}
		for _, contract := range detail.Contracts {
			account.Contracts = append(account.Contracts, models.Contract{
				ContractID: contract.ID,
				AccountID:  detail.ID,
			})
		}
		accounts = append(accounts, account)
	}

	return accounts, nil
}

// GetHourlyUsage returns hourly records for a single calendar date
func (c *Client) GetHourlyUsage(ctx context.Context, contractID, accountID string, date time.Time) ([]models.UsageRecord, error) {
	day := date.Format(models.DateLayout)
	payload, err := c.get(ctx, "/usage/v2/"+url.PathEscape(contractID), url.Values{
		"ba":       {accountID},
		"interval": {"hourly"},
		"from":     {day},
		"to":       {day},
	})
	if err != nil {
		return nil, err
	}

	return normalizeUsage(payload, c.logger), nil
}

// GetUsageRange returns daily-granularity records for an inclusive date range
func (c *Client) GetUsageRange(ctx context.Context, contractID, accountID string, start, end time.Time) ([]models.UsageRecord, error) {
	payload, err := c.get(ctx, "/usage/v2/"+url.PathEscape(contractID), url.Values{
		"ba":       {accountID},
		"interval": {"daily"},
		"from":     {start.Format(models.DateLayout)},
		"to":       {end.Format(models.DateLayout)},
	})
	if err != nil {
		return nil, err
	}

	return normalizeUsage(payload, c.logger), nil
}

// get performs an authenticated GET and returns the raw response body
func (c *Client) get(ctx context.Context, path string, query url.Values) (json.RawMessage, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	if err := c.Authenticate(ctx); err != nil {
		return nil, err
	}

	reqURL := c.baseURL + path
	if len(query) > 0 {
		reqURL += "?" + query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("x-api-key", c.apiKey)

	c.mu.Lock()
	req.Header.Set("session", c.token)
	c.mu.Unlock()

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, provider.NewAPIError(path, 0, err.Error(), err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		// Session expired; drop the token so the next call re-authenticates.
		c.mu.Lock()
		c.token = ""
		c.mu.Unlock()
		return nil, provider.NewAPIError(path, resp.StatusCode, "session rejected", provider.ErrAuth)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, provider.NewAPIError(path, resp.StatusCode, readErrorBody(resp.Body), nil)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, provider.NewAPIError(path, resp.StatusCode, "failed to read response body", err)
	}

	return body, nil
}

func readErrorBody(r io.Reader) string {
	body, err := io.ReadAll(io.LimitReader(r, 512))
	if err != nil || len(body) == 0 {
		return "no response body"
	}
	return string(body)
}
