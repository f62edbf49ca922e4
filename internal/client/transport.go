package client

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/talentview/sessionkit/internal/observability"
	"github.com/talentview/sessionkit/internal/service"
)

var errBodyNotRewindable = errors.New("request body cannot be rewound for retry")

// authExemptPaths are the endpoints that establish or renew credentials.
// They never carry a bearer token and never trigger a refresh on 401.
var authExemptPaths = []string{
	"/auth/login",
	"/auth/register",
	"/auth/refresh",
}

// AuthTransport decorates an http.RoundTripper with bearer-token
// attachment and a single refresh-and-replay on 401. It never mutates
// the caller's request.
type AuthTransport struct {
	base        http.RoundTripper
	store       *service.TokenStore
	coordinator *service.RefreshCoordinator
	logger      *slog.Logger
}

func NewAuthTransport(base http.RoundTripper, store *service.TokenStore, coordinator *service.RefreshCoordinator, logger *slog.Logger) *AuthTransport {
	if base == nil {
		base = http.DefaultTransport
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &AuthTransport{base: base, store: store, coordinator: coordinator, logger: logger}
}

func (t *AuthTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if isAuthEndpoint(req.URL.Path) {
		return t.base.RoundTrip(req)
	}

	ctx := req.Context()
	token := t.currentToken(req)
	resp, err := t.base.RoundTrip(t.withBearer(req, token))
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusUnauthorized {
		return resp, nil
	}

	// One refresh, one replay. A second 401 is returned as-is so the
	// caller sees the authoritative server answer.
	retry, err := cloneForRetry(req)
	if err != nil {
		t.logger.Debug("request not replayable after 401", "path", req.URL.Path, "error", err)
		return resp, nil
	}

	newToken, refreshErr := t.coordinator.Refresh(ctx)
	if refreshErr != nil {
		observability.RecordRequestRetry(ctx, "refresh_failed")
		return resp, nil
	}
	resp.Body.Close()

	observability.RecordRequestRetry(ctx, "replayed")
	t.logger.Debug("replaying request with refreshed token", "path", req.URL.Path)
	return t.base.RoundTrip(t.withBearer(retry, newToken))
}

// currentToken refreshes proactively when the stored token is within the
// expiry margin, so most requests never see a 401 at all.
func (t *AuthTransport) currentToken(req *http.Request) string {
	ctx := req.Context()
	if t.store.IsExpired(ctx) {
		if token, err := t.coordinator.Refresh(ctx); err == nil {
			return token
		}
		// Fall through with whatever is stored; the server decides.
	}
	token, _ := t.store.AccessToken(ctx)
	return token
}

func (t *AuthTransport) withBearer(req *http.Request, token string) *http.Request {
	if token == "" {
		return req
	}
	out := req.Clone(req.Context())
	out.Header.Set("Authorization", "Bearer "+token)
	return out
}

// cloneForRetry rebuilds the request body via GetBody. Requests without a
// rewindable body cannot be replayed.
func cloneForRetry(req *http.Request) (*http.Request, error) {
	out := req.Clone(req.Context())
	if req.Body == nil || req.Body == http.NoBody {
		return out, nil
	}
	if req.GetBody == nil {
		return nil, errBodyNotRewindable
	}
	body, err := req.GetBody()
	if err != nil {
		return nil, err
	}
	out.Body = body
	return out, nil
}

func isAuthEndpoint(path string) bool {
	for _, p := range authExemptPaths {
		if strings.HasSuffix(path, p) {
			return true
		}
	}
	return false
}
