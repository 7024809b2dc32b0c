package signin

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"go.uber.org/zap"
)

// endpoints, relative to the API base url
const (
	LoginPath   = "/api/v1/user/login/"
	SignOutPath = "/api/v1/user/sign-out/"
)

// maximum response body read, anything bigger is not a login response
const maxResponseBytes = 1 << 20

// RejectedError the endpoint answered with a non-2xx status
type RejectedError struct {
	Status int
	Errors []string // as reported in the body, empty if the body had none
}

func (re *RejectedError) Error() string {
	if len(re.Errors) == 0 {
		return fmt.Sprintf("%s (status %d)", FailedToSignIn, re.Status)
	}
	return strings.Join(re.Errors, ", ")
}

// Messages the lines to show for this rejection.
//
// Server errors are comma joined and split again, so an error that itself
// contains ", " comes out as several lines.
func (re *RejectedError) Messages() []string {
	if len(re.Errors) == 0 {
		return []string{FailedToSignIn}
	}
	return strings.Split(strings.Join(re.Errors, ", "), ", ")
}

// Client Authenticator talking JSON to the login endpoint
type Client struct {
	base       string
	endpoint   string
	httpClient *http.Client
	logger     *zap.Logger
}

var (
	_ Authenticator = &Client{}
	_ Revoker       = &Client{}
)

// ClientOption configures a Client
type ClientOption func(*Client)

// WithHTTPClient use hc instead of http.DefaultClient
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) {
		if hc != nil {
			c.httpClient = hc
		}
	}
}

// WithClientLogger log exchanges at debug level
func WithClientLogger(logger *zap.Logger) ClientOption {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// NewClient create a login client for the API at baseURL
func NewClient(baseURL string, opts ...ClientOption) (*Client, error) {
	base := strings.TrimRight(strings.TrimSpace(baseURL), "/")
	parsed, err := url.Parse(base)
	if err != nil {
		return nil, fmt.Errorf("signin: invalid api base url: %w", err)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return nil, fmt.Errorf("signin: api base url must be http or https, got %q", baseURL)
	}

	c := &Client{
		base:       base,
		endpoint:   base + LoginPath,
		httpClient: http.DefaultClient,
		logger:     zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Login sends exactly one POST with {"credential","password"}. No retries.
func (c *Client) Login(ctx context.Context, credentials Credentials) (*SessionTokens, error) {
	body, err := json.Marshal(credentials)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Debug("login request failed", zap.String("url.full", c.endpoint), zap.Error(err))
		return nil, err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, err
	}
	c.logger.Debug("login response",
		zap.String("url.full", c.endpoint),
		zap.Int("http.response.status_code", resp.StatusCode),
	)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		messages, err := decodeErrors(raw)
		if err != nil {
			return nil, err
		}
		return nil, &RejectedError{Status: resp.StatusCode, Errors: messages}
	}

	tokens := new(SessionTokens)
	if err := json.Unmarshal(raw, tokens); err != nil {
		return nil, fmt.Errorf("decode login response: %w", err)
	}
	return tokens, nil
}

// Logout revokes the access token at the API, one PUT carrying it as bearer token
func (c *Client) Logout(ctx context.Context, access string) error {
	endpoint := c.base + SignOutPath
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, endpoint, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+access)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Debug("sign-out request failed", zap.String("url.full", endpoint), zap.Error(err))
		return err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return err
	}
	c.logger.Debug("sign-out response",
		zap.String("url.full", endpoint),
		zap.Int("http.response.status_code", resp.StatusCode),
	)
	if resp.StatusCode >= 200 && resp.StatusCode <= 299 {
		return nil
	}
	messages, err := decodeErrors(raw)
	if err != nil {
		return err
	}
	return &RejectedError{Status: resp.StatusCode, Errors: messages}
}

// decodeErrors reads the "errors" field of an error body, which is a list of strings or a single string
func decodeErrors(raw []byte) ([]string, error) {
	var payload struct {
		Errors json.RawMessage `json:"errors"`
	}
	if err := json.Unmarshal(raw, &payload); err != nil {
		return nil, fmt.Errorf("decode error response: %w", err)
	}
	if len(payload.Errors) == 0 || string(payload.Errors) == "null" {
		return nil, nil
	}

	var list []string
	if err := json.Unmarshal(payload.Errors, &list); err == nil {
		return list, nil
	}
	var single string
	if err := json.Unmarshal(payload.Errors, &single); err == nil {
		if single == "" {
			return nil, nil
		}
		return []string{single}, nil
	}
	return nil, fmt.Errorf("decode error response: unexpected errors field %s", payload.Errors)
}
