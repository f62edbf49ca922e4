package mockapi

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/talentview/sessionkit/internal/domain"
	"github.com/talentview/sessionkit/internal/security"
)

func newTestServer(t *testing.T, opts Options) *httptest.Server {
	t.Helper()
	jwtMgr := security.NewJWTManager("sessionkit-mockapi", "sessionkit", "access-secret-0123", "refresh-secret-0123")
	srv := NewServer(jwtMgr, opts, slog.New(slog.DiscardHandler))
	ts := httptest.NewServer(srv.Router())
	t.Cleanup(ts.Close)
	return ts
}

func postJSON(t *testing.T, url string, body any) *http.Response {
	t.Helper()
	payload, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	resp, err := http.Post(url, "application/json", bytes.NewReader(payload))
	if err != nil {
		t.Fatalf("post %s: %v", url, err)
	}
	return resp
}

func registerUser(t *testing.T, ts *httptest.Server) domain.AuthResponse {
	t.Helper()
	resp := postJSON(t, ts.URL+"/auth/register", domain.RegisterRequest{
		Email:     "jordan@example.test",
		Password:  "correct-horse",
		FirstName: "Jordan",
		LastName:  "Reyes",
	})
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("register status %d", resp.StatusCode)
	}
	var auth domain.AuthResponse
	if err := json.NewDecoder(resp.Body).Decode(&auth); err != nil {
		t.Fatalf("decode auth response: %v", err)
	}
	return auth
}

func TestRegisterLoginAndMe(t *testing.T) {
	ts := newTestServer(t, Options{})
	auth := registerUser(t, ts)
	if auth.AccessToken == "" || auth.RefreshToken == "" {
		t.Fatal("register must issue both tokens")
	}
	if auth.User.Email != "jordan@example.test" {
		t.Fatalf("unexpected user %+v", auth.User)
	}

	resp := postJSON(t, ts.URL+"/auth/login", domain.LoginRequest{Email: "jordan@example.test", Password: "correct-horse"})
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("login status %d", resp.StatusCode)
	}
	var login domain.AuthResponse
	if err := json.NewDecoder(resp.Body).Decode(&login); err != nil {
		t.Fatalf("decode login: %v", err)
	}

	req, _ := http.NewRequest(http.MethodGet, ts.URL+"/v1/me", nil)
	req.Header.Set("Authorization", "Bearer "+login.AccessToken)
	meResp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("me: %v", err)
	}
	defer meResp.Body.Close()
	if meResp.StatusCode != http.StatusOK {
		t.Fatalf("me status %d", meResp.StatusCode)
	}
	var me domain.UserDTO
	if err := json.NewDecoder(meResp.Body).Decode(&me); err != nil {
		t.Fatalf("decode me: %v", err)
	}
	if me.FirstName != "Jordan" {
		t.Fatalf("unexpected me %+v", me)
	}
}

func TestLoginWrongPassword(t *testing.T) {
	ts := newTestServer(t, Options{})
	registerUser(t, ts)

	resp := postJSON(t, ts.URL+"/auth/login", domain.LoginRequest{Email: "jordan@example.test", Password: "wrong"})
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", resp.StatusCode)
	}
	var apiErr domain.APIError
	if err := json.NewDecoder(resp.Body).Decode(&apiErr); err != nil {
		t.Fatalf("decode error body: %v", err)
	}
	if apiErr.Status != http.StatusUnauthorized || apiErr.Message == "" {
		t.Fatalf("unexpected error body %+v", apiErr)
	}
}

func TestDuplicateRegistrationConflicts(t *testing.T) {
	ts := newTestServer(t, Options{})
	registerUser(t, ts)

	resp := postJSON(t, ts.URL+"/auth/register", domain.RegisterRequest{Email: "jordan@example.test", Password: "correct-horse"})
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusConflict {
		t.Fatalf("expected 409, got %d", resp.StatusCode)
	}
}

func TestRefreshMintsNewAccessToken(t *testing.T) {
	ts := newTestServer(t, Options{AccessTokenTTL: time.Minute})
	auth := registerUser(t, ts)

	resp := postJSON(t, ts.URL+"/auth/refresh", domain.RefreshRequest{RefreshToken: auth.RefreshToken})
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("refresh status %d", resp.StatusCode)
	}
	var refreshed domain.RefreshResponse
	if err := json.NewDecoder(resp.Body).Decode(&refreshed); err != nil {
		t.Fatalf("decode refresh: %v", err)
	}
	if refreshed.AccessToken == "" || refreshed.ExpiresIn != 60 {
		t.Fatalf("unexpected refresh response %+v", refreshed)
	}

	req, _ := http.NewRequest(http.MethodGet, ts.URL+"/v1/me", nil)
	req.Header.Set("Authorization", "Bearer "+refreshed.AccessToken)
	meResp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("me: %v", err)
	}
	meResp.Body.Close()
	if meResp.StatusCode != http.StatusOK {
		t.Fatalf("refreshed token rejected: %d", meResp.StatusCode)
	}
}

func TestRefreshRejectsGarbageAndRevokedTokens(t *testing.T) {
	ts := newTestServer(t, Options{})
	auth := registerUser(t, ts)

	resp := postJSON(t, ts.URL+"/auth/refresh", domain.RefreshRequest{RefreshToken: "not-a-jwt"})
	resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("garbage token: expected 401, got %d", resp.StatusCode)
	}

	// Access tokens must not work as refresh tokens.
	resp = postJSON(t, ts.URL+"/auth/refresh", domain.RefreshRequest{RefreshToken: auth.AccessToken})
	resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("access-as-refresh: expected 401, got %d", resp.StatusCode)
	}

	// Logout revokes the refresh session.
	req, _ := http.NewRequest(http.MethodPost, ts.URL+"/auth/logout", nil)
	req.Header.Set("Authorization", "Bearer "+auth.AccessToken)
	logoutResp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("logout: %v", err)
	}
	logoutResp.Body.Close()
	if logoutResp.StatusCode != http.StatusOK {
		t.Fatalf("logout status %d", logoutResp.StatusCode)
	}

	resp = postJSON(t, ts.URL+"/auth/refresh", domain.RefreshRequest{RefreshToken: auth.RefreshToken})
	resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("revoked token: expected 401, got %d", resp.StatusCode)
	}
}

func TestExpiredAccessTokenRejected(t *testing.T) {
	ts := newTestServer(t, Options{AccessTokenTTL: time.Millisecond})
	auth := registerUser(t, ts)
	time.Sleep(20 * time.Millisecond)

	req, _ := http.NewRequest(http.MethodGet, ts.URL+"/v1/me", nil)
	req.Header.Set("Authorization", "Bearer "+auth.AccessToken)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("me: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401 for expired token, got %d", resp.StatusCode)
	}
}

func TestAuthRateLimit(t *testing.T) {
	ts := newTestServer(t, Options{AuthRateLimitRPM: 3})

	var last int
	for i := 0; i < 5; i++ {
		resp := postJSON(t, ts.URL+"/auth/login", domain.LoginRequest{Email: "x@y.test", Password: "nope"})
		resp.Body.Close()
		last = resp.StatusCode
	}
	if last != http.StatusTooManyRequests {
		t.Fatalf("expected 429 after exceeding the limit, got %d", last)
	}
}
