package pipeline

import (
	"net/http"
	"strings"

	session "github.com/campuskit/go-session"
)

// HeaderAuthorization is the identity header attached to non-public requests.
const HeaderAuthorization = "Authorization"

// IdentityStage attaches the bearer token to every request whose target is
// not on the public allow-list. The token is read live from the token
// store so a refreshed token takes effect immediately.
type IdentityStage struct {
	tokens *session.TokenStore
	skip   []string
	logger session.Logger
}

// NewIdentityStage creates the identity stage with the fixed public
// allow-list: login, register, and the tenant-existence check.
func NewIdentityStage(tokens *session.TokenStore, logger session.Logger) *IdentityStage {
	if logger == nil {
		logger = session.DefaultLogger()
	}
	return &IdentityStage{
		tokens: tokens,
		logger: logger,
		skip: []string{
			session.EndpointLogin,
			session.EndpointRegister,
			session.EndpointTenantExists,
		},
	}
}

func (s *IdentityStage) Name() string { return "identity" }

func (s *IdentityStage) Execute(req *http.Request, next Dispatch) (*http.Response, error) {
	if s.public(req.URL.Path) {
		return next(req)
	}

	raw, ok := s.tokens.Read(req.Context())
	if !ok {
		return next(req)
	}

	clone := req.Clone(req.Context())
	clone.Header.Set(HeaderAuthorization, "Bearer "+raw)
	return next(clone)
}

func (s *IdentityStage) public(path string) bool {
	for _, endpoint := range s.skip {
		if strings.HasSuffix(path, endpoint) {
			return true
		}
	}
	return false
}
