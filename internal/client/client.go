package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/talentview/sessionkit/internal/config"
	"github.com/talentview/sessionkit/internal/domain"
	"github.com/talentview/sessionkit/internal/service"
)

// Client is the typed entry point to the platform API. All calls except
// the auth endpoints flow through the authenticated transport, which
// attaches the bearer token and transparently refreshes it.
type Client struct {
	baseURL string
	http    *http.Client
	// plain skips the authenticated transport; the refresh exchange and
	// login/register must not recurse into it.
	plain  *http.Client
	store  *service.TokenStore
	logger *slog.Logger

	Coordinator *service.RefreshCoordinator
}

// New wires the full request pipeline: token store, refresh coordinator
// and the decorated transport. onTerminal fires once when a refresh
// episode fails irrecoverably and the session has been cleared.
func New(cfg *config.Config, store *service.TokenStore, onTerminal func(), logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	c := &Client{
		baseURL: strings.TrimRight(cfg.APIBaseURL, "/"),
		plain: &http.Client{
			Timeout:   cfg.RequestTimeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
		store:  store,
		logger: logger,
	}
	c.Coordinator = service.NewRefreshCoordinator(store, c.exchangeRefreshToken, onTerminal, logger)
	authTransport := NewAuthTransport(otelhttp.NewTransport(http.DefaultTransport), store, c.Coordinator, logger)
	c.http = &http.Client{Timeout: cfg.RequestTimeout, Transport: authTransport}
	return c
}

// Login exchanges credentials for a token pair and stores it.
func (c *Client) Login(ctx context.Context, email, password string) (*domain.AuthResponse, error) {
	var resp domain.AuthResponse
	err := c.postJSON(ctx, c.plain, "/auth/login", domain.LoginRequest{Email: email, Password: password}, &resp)
	if err != nil {
		return nil, fmt.Errorf("login: %w", err)
	}
	if err := c.store.SetSession(ctx, resp.AccessToken, resp.RefreshToken, time.Duration(resp.ExpiresIn)*time.Second); err != nil {
		return nil, fmt.Errorf("login: %w", err)
	}
	return &resp, nil
}

// Register creates an account and stores the issued token pair.
func (c *Client) Register(ctx context.Context, req domain.RegisterRequest) (*domain.AuthResponse, error) {
	var resp domain.AuthResponse
	if err := c.postJSON(ctx, c.plain, "/auth/register", req, &resp); err != nil {
		return nil, fmt.Errorf("register: %w", err)
	}
	if err := c.store.SetSession(ctx, resp.AccessToken, resp.RefreshToken, time.Duration(resp.ExpiresIn)*time.Second); err != nil {
		return nil, fmt.Errorf("register: %w", err)
	}
	return &resp, nil
}

// Refresh forces a token refresh through the shared coordinator.
func (c *Client) Refresh(ctx context.Context) (string, error) {
	return c.Coordinator.Refresh(ctx)
}

// Logout tells the server to revoke the session, then clears local state.
// Local teardown happens even when the server call fails.
func (c *Client) Logout(ctx context.Context) error {
	err := c.postJSON(ctx, c.http, "/auth/logout", struct{}{}, nil)
	if clearErr := c.store.Clear(ctx); clearErr != nil {
		c.logger.Warn("local session teardown incomplete", "error", clearErr)
	}
	if err != nil {
		return fmt.Errorf("logout: %w", err)
	}
	return nil
}

// Do issues an authenticated request relative to the configured base URL.
// The caller owns the response body.
func (c *Client) Do(ctx context.Context, method, path string, body any) (*http.Response, error) {
	req, err := c.newRequest(ctx, method, path, body)
	if err != nil {
		return nil, err
	}
	return c.http.Do(req)
}

// GetJSON issues an authenticated GET and decodes the response into out.
func (c *Client) GetJSON(ctx context.Context, path string, out any) error {
	resp, err := c.Do(ctx, http.MethodGet, path, nil)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	return decodeResponse(resp, out)
}

// exchangeRefreshToken is the coordinator's RefreshFunc. It goes through
// the plain client because /auth/refresh is exempt from the pipeline.
func (c *Client) exchangeRefreshToken(ctx context.Context, refreshToken string) (*domain.RefreshResponse, error) {
	var resp domain.RefreshResponse
	err := c.postJSON(ctx, c.plain, "/auth/refresh", domain.RefreshRequest{RefreshToken: refreshToken}, &resp)
	if err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *Client) postJSON(ctx context.Context, hc *http.Client, path string, body, out any) error {
	req, err := c.newRequest(ctx, http.MethodPost, path, body)
	if err != nil {
		return err
	}
	resp, err := hc.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	return decodeResponse(resp, out)
}

func (c *Client) newRequest(ctx context.Context, method, path string, body any) (*http.Request, error) {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("encode request body: %w", err)
		}
		reader = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	return req, nil
}

func decodeResponse(resp *http.Response, out any) error {
	if resp.StatusCode >= 400 {
		apiErr := &domain.APIError{Status: resp.StatusCode, Message: http.StatusText(resp.StatusCode)}
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<16))
		if err := json.Unmarshal(raw, apiErr); err != nil || apiErr.Message == "" {
			apiErr.Message = strings.TrimSpace(string(raw))
			if apiErr.Message == "" {
				apiErr.Message = http.StatusText(resp.StatusCode)
			}
		}
		apiErr.Status = resp.StatusCode
		return apiErr
	}
	if out == nil {
		io.Copy(io.Discard, io.LimitReader(resp.Body, 1<<16))
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response body: %w", err)
	}
	return nil
}
