package mockapi

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/talentview/sessionkit/internal/domain"
	"github.com/talentview/sessionkit/internal/http/response"
	"github.com/talentview/sessionkit/internal/security"
)

// Options tune the mock backend. Short TTLs make refresh behaviour easy
// to provoke from the CLI.
type Options struct {
	AccessTokenTTL   time.Duration
	RefreshTokenTTL  time.Duration
	AuthRateLimitRPM int
}

func (o Options) withDefaults() Options {
	if o.AccessTokenTTL <= 0 {
		o.AccessTokenTTL = 15 * time.Minute
	}
	if o.RefreshTokenTTL <= 0 {
		o.RefreshTokenTTL = 30 * 24 * time.Hour
	}
	if o.AuthRateLimitRPM <= 0 {
		o.AuthRateLimitRPM = 60
	}
	return o
}

// Server is an in-memory stand-in for the recruitment platform's auth
// API, wire-compatible with the endpoints the SDK talks to.
type Server struct {
	jwt    *security.JWTManager
	users  *userStore
	opts   Options
	logger *slog.Logger
}

func NewServer(jwtMgr *security.JWTManager, opts Options, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		jwt:    jwtMgr,
		users:  newUserStore(),
		opts:   opts.withDefaults(),
		logger: logger,
	}
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.Recoverer)

	authLimiter := newFixedWindowLimiter(s.opts.AuthRateLimitRPM, time.Minute)

	r.Get("/health/live", func(w http.ResponseWriter, r *http.Request) {
		response.JSON(w, r, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Route("/auth", func(r chi.Router) {
		r.With(authLimiter.middleware).Post("/register", s.handleRegister)
		r.With(authLimiter.middleware).Post("/login", s.handleLogin)
		r.With(authLimiter.middleware).Post("/refresh", s.handleRefresh)
		r.With(authMiddleware(s.jwt)).Post("/logout", s.handleLogout)
	})

	r.Route("/v1", func(r chi.Router) {
		r.Use(authMiddleware(s.jwt))
		r.Get("/me", s.handleMe)
		r.Get("/profile", s.handleMe)
	})

	return r
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req domain.RegisterRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.Error(w, r, http.StatusBadRequest, "malformed request body")
		return
	}
	if req.Email == "" || len(req.Password) < 8 {
		response.Error(w, r, http.StatusBadRequest, "email and a password of at least 8 characters are required")
		return
	}
	u, err := s.users.register(req.Email, req.Password, req.FirstName, req.LastName)
	if err != nil {
		if errors.Is(err, errUserExists) {
			response.Error(w, r, http.StatusConflict, err.Error())
			return
		}
		response.Error(w, r, http.StatusInternalServerError, "could not create the account")
		return
	}
	s.logger.Info("account registered", "user_id", u.ID, "email", u.Email)
	s.issueSession(w, r, u, http.StatusCreated)
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req domain.LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.Error(w, r, http.StatusBadRequest, "malformed request body")
		return
	}
	u, err := s.users.authenticate(req.Email, req.Password)
	if err != nil {
		response.Error(w, r, http.StatusUnauthorized, errInvalidCredentials.Error())
		return
	}
	s.issueSession(w, r, u, http.StatusOK)
}

func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	var req domain.RefreshRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.RefreshToken == "" {
		response.Error(w, r, http.StatusBadRequest, "refreshToken is required")
		return
	}
	claims, err := s.jwt.ParseRefreshToken(req.RefreshToken)
	if err != nil {
		response.Error(w, r, http.StatusUnauthorized, "invalid refresh token")
		return
	}
	userID, err := strconv.ParseUint(claims.Subject, 10, 64)
	if err != nil {
		response.Error(w, r, http.StatusUnauthorized, "invalid refresh token")
		return
	}
	if !s.users.sessionActive(uint(userID), claims.ID) {
		response.Error(w, r, http.StatusUnauthorized, "refresh token revoked")
		return
	}
	u, err := s.users.find(uint(userID))
	if err != nil {
		response.Error(w, r, http.StatusUnauthorized, "invalid refresh token")
		return
	}

	access, err := s.jwt.SignAccessToken(u.ID, u.Email, s.opts.AccessTokenTTL)
	if err != nil {
		response.Error(w, r, http.StatusInternalServerError, "could not mint access token")
		return
	}
	response.JSON(w, r, http.StatusOK, domain.RefreshResponse{
		AccessToken: access,
		TokenType:   "Bearer",
		ExpiresIn:   int64(s.opts.AccessTokenTTL.Seconds()),
	})
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	userID, ok := userIDFrom(r.Context())
	if !ok {
		response.Error(w, r, http.StatusUnauthorized, "not authenticated")
		return
	}
	s.users.revokeSessions(userID)
	s.logger.Info("sessions revoked", "user_id", userID)
	response.JSON(w, r, http.StatusOK, map[string]string{"status": "logged out"})
}

func (s *Server) handleMe(w http.ResponseWriter, r *http.Request) {
	userID, ok := userIDFrom(r.Context())
	if !ok {
		response.Error(w, r, http.StatusUnauthorized, "not authenticated")
		return
	}
	u, err := s.users.find(userID)
	if err != nil {
		response.Error(w, r, http.StatusNotFound, "account no longer exists")
		return
	}
	response.JSON(w, r, http.StatusOK, u.dto())
}

// issueSession mints a token pair, records the refresh session and
// writes the full auth response.
func (s *Server) issueSession(w http.ResponseWriter, r *http.Request, u *user, status int) {
	access, err := s.jwt.SignAccessToken(u.ID, u.Email, s.opts.AccessTokenTTL)
	if err != nil {
		response.Error(w, r, http.StatusInternalServerError, "could not mint access token")
		return
	}
	refresh, err := s.jwt.SignRefreshToken(u.ID, s.opts.RefreshTokenTTL)
	if err != nil {
		response.Error(w, r, http.StatusInternalServerError, "could not mint refresh token")
		return
	}
	claims, err := s.jwt.ParseRefreshToken(refresh)
	if err != nil {
		response.Error(w, r, http.StatusInternalServerError, "could not mint refresh token")
		return
	}
	s.users.trackSession(u.ID, claims.ID)

	response.JSON(w, r, status, domain.AuthResponse{
		AccessToken:  access,
		RefreshToken: refresh,
		TokenType:    "Bearer",
		ExpiresIn:    int64(s.opts.AccessTokenTTL.Seconds()),
		User:         u.dto(),
	})
}
