package pipeline_test

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"net/url"
	"sync"
	"testing"

	session "github.com/campuskit/go-session"
	"github.com/campuskit/go-session/pipeline"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// captureTransport records the request it receives and returns a canned
// response, standing in for the real backend at the end of the chain.
type captureTransport struct {
	mu   sync.Mutex
	reqs []*http.Request
	resp *http.Response
	err  error
}

func (t *captureTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	t.mu.Lock()
	t.reqs = append(t.reqs, req)
	t.mu.Unlock()
	if t.err != nil {
		return nil, t.err
	}
	if t.resp != nil {
		return t.resp, nil
	}
	return okResponse(""), nil
}

func (t *captureTransport) last(tb testing.TB) *http.Request {
	tb.Helper()
	t.mu.Lock()
	defer t.mu.Unlock()
	require.NotEmpty(tb, t.reqs)
	return t.reqs[len(t.reqs)-1]
}

func okResponse(body string) *http.Response {
	return &http.Response{
		StatusCode: http.StatusOK,
		Body:       io.NopCloser(bytes.NewReader([]byte(body))),
		Header:     http.Header{},
	}
}

func statusResponse(status int, body string) *http.Response {
	return &http.Response{
		StatusCode: status,
		Body:       io.NopCloser(bytes.NewReader([]byte(body))),
		Header:     http.Header{},
	}
}

func newRequest(t *testing.T, method, target string) *http.Request {
	t.Helper()
	u, err := url.Parse("https://api.example.com" + target)
	require.NoError(t, err)
	return (&http.Request{
		Method: method,
		URL:    u,
		Header: http.Header{},
	}).WithContext(context.Background())
}

func seededTokens(t *testing.T, token, tenantID string) *session.TokenStore {
	t.Helper()
	tokens := session.NewTokenStore(session.NewMemoryStorage())
	ctx := context.Background()
	if token != "" {
		require.NoError(t, tokens.Save(ctx, token))
	}
	if tenantID != "" {
		require.NoError(t, tokens.SaveTenantID(ctx, tenantID))
	}
	return tokens
}

func TestChainStageOrder(t *testing.T) {
	tokens := seededTokens(t, "", "")
	chain := pipeline.New(tokens)

	assert.Equal(t, []string{"identity", "tenant", "accounting", "failure"}, chain.StageNames())
}

func TestIdentityStage(t *testing.T) {
	t.Run("attaches the bearer token to protected requests", func(t *testing.T) {
		tokens := seededTokens(t, "raw-token", "")
		base := &captureTransport{}
		chain := pipeline.New(tokens, pipeline.WithBaseTransport(base))

		_, err := chain.RoundTrip(newRequest(t, http.MethodGet, "/students"))

		require.NoError(t, err)
		assert.Equal(t, "Bearer raw-token", base.last(t).Header.Get(pipeline.HeaderAuthorization))
	})

	t.Run("skips public endpoints", func(t *testing.T) {
		tokens := seededTokens(t, "raw-token", "")
		base := &captureTransport{}
		chain := pipeline.New(tokens, pipeline.WithBaseTransport(base))

		for _, target := range []string{
			session.EndpointLogin,
			session.EndpointRegister,
			session.EndpointTenantExists,
		} {
			_, err := chain.RoundTrip(newRequest(t, http.MethodPost, target))
			require.NoError(t, err)
			assert.Empty(t, base.last(t).Header.Get(pipeline.HeaderAuthorization), "target %s", target)
		}
	})

	t.Run("no token means no header", func(t *testing.T) {
		tokens := seededTokens(t, "", "")
		base := &captureTransport{}
		chain := pipeline.New(tokens, pipeline.WithBaseTransport(base))

		_, err := chain.RoundTrip(newRequest(t, http.MethodGet, "/students"))

		require.NoError(t, err)
		assert.Empty(t, base.last(t).Header.Get(pipeline.HeaderAuthorization))
	})

	t.Run("original request is never mutated", func(t *testing.T) {
		tokens := seededTokens(t, "raw-token", "tenant-1")
		base := &captureTransport{}
		chain := pipeline.New(tokens, pipeline.WithBaseTransport(base))
		req := newRequest(t, http.MethodGet, "/students")

		_, err := chain.RoundTrip(req)

		require.NoError(t, err)
		assert.Empty(t, req.Header.Get(pipeline.HeaderAuthorization))
		assert.Empty(t, req.Header.Get(pipeline.HeaderTenantID))
	})
}

func TestTenantStage(t *testing.T) {
	t.Run("attaches the tenant header including public endpoints", func(t *testing.T) {
		tokens := seededTokens(t, "", "tenant-1")
		base := &captureTransport{}
		chain := pipeline.New(tokens, pipeline.WithBaseTransport(base))

		_, err := chain.RoundTrip(newRequest(t, http.MethodPost, session.EndpointLogin))

		require.NoError(t, err)
		assert.Equal(t, "tenant-1", base.last(t).Header.Get(pipeline.HeaderTenantID))
	})

	t.Run("skips tenant creation", func(t *testing.T) {
		tokens := seededTokens(t, "", "tenant-1")
		base := &captureTransport{}
		chain := pipeline.New(tokens, pipeline.WithBaseTransport(base))

		_, err := chain.RoundTrip(newRequest(t, http.MethodPost, session.EndpointTenantCreate))

		require.NoError(t, err)
		assert.Empty(t, base.last(t).Header.Get(pipeline.HeaderTenantID))
	})

	t.Run("a GET on the tenants collection still carries the header", func(t *testing.T) {
		tokens := seededTokens(t, "", "tenant-1")
		base := &captureTransport{}
		chain := pipeline.New(tokens, pipeline.WithBaseTransport(base))

		_, err := chain.RoundTrip(newRequest(t, http.MethodGet, session.EndpointTenantCreate))

		require.NoError(t, err)
		assert.Equal(t, "tenant-1", base.last(t).Header.Get(pipeline.HeaderTenantID))
	})

	t.Run("no persisted tenant means no header", func(t *testing.T) {
		tokens := seededTokens(t, "", "")
		base := &captureTransport{}
		chain := pipeline.New(tokens, pipeline.WithBaseTransport(base))

		_, err := chain.RoundTrip(newRequest(t, http.MethodGet, "/students"))

		require.NoError(t, err)
		assert.Empty(t, base.last(t).Header.Get(pipeline.HeaderTenantID))
	})
}
