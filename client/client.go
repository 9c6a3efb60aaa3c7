package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/patrickmn/go-cache"
)

const (
	defaultTimeout = 3 * time.Second
)

// Account is the subset of the host platform account the admin needs.
type Account struct {
	ID    int64    `json:"id"`
	Email string   `json:"email"`
	Roles []string `json:"roles"`
}

// StatusError is returned when the account platform answers with a non 2xx code.
type StatusError struct {
	Code int
}

func (e StatusError) Error() string {
	return fmt.Sprintf("unexpected status code: %d", e.Code)
}

// Client talks to the host account platform.
type Client struct {
	client       *http.Client
	cache        *cache.Cache
	userAgent    string
	endpoint     string
	serviceToken string
}

// New returns a client for the platform at endpoint. serviceToken
// authenticates calls the admin makes on its own behalf, such as role changes.
func New(endpoint, serviceToken string, tokenTTL time.Duration) *Client {
	httpClient := http.Client{
		Timeout: defaultTimeout,
	}
	if tokenTTL <= 0 {
		tokenTTL = 5 * time.Minute
	}

	c := &Client{
		client:       &httpClient,
		cache:        cache.New(tokenTTL, 2*tokenTTL),
		userAgent:    "customeradmin",
		endpoint:     strings.TrimRight(endpoint, "/"),
		serviceToken: serviceToken,
	}
	httpClient.Transport = c
	return c
}

func (c *Client) RoundTrip(req *http.Request) (*http.Response, error) {
	req.Header.Set("User-Agent", c.userAgent)
	return http.DefaultTransport.RoundTrip(req)
}

func (c *Client) HttpRequest(ctx context.Context, method, path, token string, body any, response any) error {
	if c.endpoint == "" {
		return fmt.Errorf("account endpoint is not configured")
	}

	var reader *bytes.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to encode request: %v", err)
		}
		reader = bytes.NewReader(b)
	} else {
		reader = bytes.NewReader(nil)
	}

	url := c.endpoint + path
	slog.DebugContext(ctx, "account request", slog.String("method", method), slog.String("url", url), slog.String("module", "client"))

	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return fmt.Errorf("failed to create request: %v", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to perform request: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return StatusError{Code: resp.StatusCode}
	}

	if response == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}

	err = json.NewDecoder(resp.Body).Decode(response)
	if err != nil {
		return fmt.Errorf("failed to decode response: %v", err)
	}

	return nil
}

// GetAccount returns the account owning token. Results are cached per token.
func (c *Client) GetAccount(ctx context.Context, token string) (Account, error) {
	cacheKey := "account:" + token
	x, found := c.cache.Get(cacheKey)
	if found {
		return x.(Account), nil
	}

	var account Account
	err := c.HttpRequest(ctx, http.MethodGet, "/accounts/me", token, nil, &account)
	if err != nil {
		return Account{}, fmt.Errorf("failed to get account: %w", err)
	}
	if account.ID <= 0 {
		return Account{}, fmt.Errorf("account platform returned invalid id %d", account.ID)
	}

	c.cache.Set(cacheKey, account, cache.DefaultExpiration)
	return account, nil
}

type setRoleRequest struct {
	Role string `json:"role"`
}

// SetRole assigns role to the account.
func (c *Client) SetRole(ctx context.Context, accountID int64, role string) error {
	if c.serviceToken == "" {
		return fmt.Errorf("failed to set role %s on account %d: service token is not configured", role, accountID)
	}
	path := "/accounts/" + strconv.FormatInt(accountID, 10) + "/role"
	err := c.HttpRequest(ctx, http.MethodPut, path, c.serviceToken, setRoleRequest{Role: role}, nil)
	if err != nil {
		return fmt.Errorf("failed to set role %s on account %d: %w", role, accountID, err)
	}
	return nil
}
