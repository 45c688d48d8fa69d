package session

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/goliatone/go-errors"
)

// Backend endpoints the session core knows about. The public ones are the
// identity stage's allow-list; the tenant-create endpoint is the tenant
// stage's skip.
const (
	EndpointLogin        = "/auth/login"
	EndpointRegister     = "/auth/register"
	EndpointTenantExists = "/tenants/exists"
	EndpointTenantCreate = "/tenants"
)

// AuthClient is the HTTP implementation of LoginService plus the other
// pre-session calls (register, tenant existence, tenant creation). It is
// meant to run over a pipeline-wrapped http.Client so the public
// allow-lists are exercised on its own requests.
type AuthClient struct {
	baseURL string
	http    *http.Client
	logger  Logger
}

var _ LoginService = (*AuthClient)(nil)

// AuthClientOption customizes AuthClient construction.
type AuthClientOption func(*AuthClient)

// WithAuthClientLogger overrides the fallback logger.
func WithAuthClientLogger(logger Logger) AuthClientOption {
	return func(c *AuthClient) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// NewAuthClient creates an AuthClient for the configured backend. A nil
// httpClient falls back to http.DefaultClient.
func NewAuthClient(cfg Config, httpClient *http.Client, opts ...AuthClientOption) *AuthClient {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	c := &AuthClient{
		baseURL: strings.TrimRight(cfg.GetBaseURL(), "/"),
		http:    httpClient,
		logger:  defLogger{},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(c)
		}
	}
	return c
}

// Login exchanges credentials for a signed token.
func (c *AuthClient) Login(ctx context.Context, creds Credentials) (*LoginResult, error) {
	if err := creds.Validate(); err != nil {
		return nil, errors.Wrap(err, errors.CategoryValidation, "invalid login payload")
	}

	result := &LoginResult{}
	if err := c.post(ctx, EndpointLogin, creds, result); err != nil {
		c.logger.Error("login request failed: %v", err)
		return nil, err
	}
	return result, nil
}

// Register creates a new account through the public register endpoint.
func (c *AuthClient) Register(ctx context.Context, payload RegisterPayload) error {
	if err := payload.Validate(); err != nil {
		return errors.Wrap(err, errors.CategoryValidation, "invalid registration payload")
	}
	return c.post(ctx, EndpointRegister, payload, nil)
}

// TenantExists checks whether a tenant is provisioned. Public endpoint,
// callable before any token exists.
func (c *AuthClient) TenantExists(ctx context.Context, tenantID string) (bool, error) {
	endpoint := EndpointTenantExists + "?tenantId=" + url.QueryEscape(tenantID)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+endpoint, nil)
	if err != nil {
		return false, errors.Wrap(err, errors.CategoryInternal, "failed to build request")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return false, errors.Wrap(err, errors.CategoryOperation, "tenant existence check failed")
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode >= http.StatusBadRequest {
		return false, ErrorFromStatus(resp.StatusCode, body)
	}

	var payload struct {
		Exists bool `json:"exists"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return false, errors.Wrap(err, errors.CategoryInternal, "unexpected tenant existence response")
	}
	return payload.Exists, nil
}

// CreateTenant provisions a tenant. The tenant stage skips its header for
// this endpoint since no tenant context exists yet.
func (c *AuthClient) CreateTenant(ctx context.Context, name string) error {
	payload := map[string]string{"name": name}
	return c.post(ctx, EndpointTenantCreate, payload, nil)
}

func (c *AuthClient) post(ctx context.Context, endpoint string, payload, out any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return errors.Wrap(err, errors.CategoryInternal, "failed to encode request payload")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+endpoint, bytes.NewReader(data))
	if err != nil {
		return errors.Wrap(err, errors.CategoryInternal, "failed to build request")
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return errors.Wrap(err, errors.CategoryOperation, "request dispatch failed")
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode >= http.StatusBadRequest {
		return ErrorFromStatus(resp.StatusCode, body)
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(body, out); err != nil {
		return errors.Wrap(err, errors.CategoryInternal, "unexpected response payload")
	}
	return nil
}
