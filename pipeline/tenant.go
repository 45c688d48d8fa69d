package pipeline

import (
	"net/http"
	"strings"

	session "github.com/campuskit/go-session"
)

// HeaderTenantID scopes every request to the school instance.
const HeaderTenantID = "X-Tenant-ID"

// TenantStage attaches the tenant header from the persisted tenant context.
// The tenant id lives independently of the token, so tenant-scoped public
// endpoints (login included) are covered before any token exists. The only
// skip is tenant creation, where no tenant context can exist yet.
type TenantStage struct {
	tokens *session.TokenStore
	logger session.Logger
}

func NewTenantStage(tokens *session.TokenStore, logger session.Logger) *TenantStage {
	if logger == nil {
		logger = session.DefaultLogger()
	}
	return &TenantStage{tokens: tokens, logger: logger}
}

func (s *TenantStage) Name() string { return "tenant" }

func (s *TenantStage) Execute(req *http.Request, next Dispatch) (*http.Response, error) {
	if isTenantCreate(req) {
		return next(req)
	}

	tenantID, ok := s.tokens.TenantID(req.Context())
	if !ok {
		return next(req)
	}

	clone := req.Clone(req.Context())
	clone.Header.Set(HeaderTenantID, tenantID)
	return next(clone)
}

func isTenantCreate(req *http.Request) bool {
	if req.Method != http.MethodPost {
		return false
	}
	path := strings.TrimRight(req.URL.Path, "/")
	return strings.HasSuffix(path, session.EndpointTenantCreate) &&
		!strings.HasSuffix(path, session.EndpointTenantExists)
}
