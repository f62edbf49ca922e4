package loadgen

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand"
	"net/http"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/talentview/sessionkit/internal/client"
	"github.com/talentview/sessionkit/internal/config"
	"github.com/talentview/sessionkit/internal/domain"
	"github.com/talentview/sessionkit/internal/repository"
	"github.com/talentview/sessionkit/internal/service"
)

// Config drives one traffic run against a mock backend.
type Config struct {
	BaseURL     string
	Profile     string // auth, api or mixed
	Duration    time.Duration
	RPS         int
	Concurrency int
	Seed        int64
}

type Result struct {
	TotalRequests int64
	Failures      int64
	StatusClasses map[string]int64
}

// Run registers a throwaway account and then drives authenticated
// traffic through the full SDK pipeline, so refresh and retry paths get
// load as well as the happy path.
func Run(ctx context.Context, cfg Config) (Result, error) {
	profile := normalizeProfile(cfg.Profile)
	if cfg.BaseURL == "" {
		return Result{}, fmt.Errorf("base URL is required")
	}
	if cfg.Duration <= 0 {
		cfg.Duration = 10 * time.Second
	}
	if cfg.RPS <= 0 {
		cfg.RPS = 10
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 4
	}

	logger := slog.New(slog.DiscardHandler)
	clientCfg := &config.Config{APIBaseURL: cfg.BaseURL, RequestTimeout: 10 * time.Second}
	store := service.NewTokenStore(repository.NewInMemoryCredentialRepository(), nil, logger)
	sdk := client.New(clientCfg, store, nil, logger)

	seed := cfg.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	email := fmt.Sprintf("loadgen-%d@example.test", rand.New(rand.NewSource(seed)).Int63())
	password := "loadgen-password"
	if _, err := sdk.Register(ctx, domain.RegisterRequest{
		Email:     email,
		Password:  password,
		FirstName: "Load",
		LastName:  "Generator",
	}); err != nil {
		return Result{}, fmt.Errorf("register loadgen account: %w", err)
	}

	runCtx, cancel := context.WithTimeout(ctx, cfg.Duration)
	defer cancel()

	var (
		mu      sync.Mutex
		total   int64
		fails   int64
		classes = make(map[string]int64)
	)
	record := func(status int, err error) {
		mu.Lock()
		defer mu.Unlock()
		total++
		if err != nil {
			fails++
			classes["error"]++
			return
		}
		class := classifyStatusClass(status)
		classes[class]++
		if status >= 400 {
			fails++
		}
	}

	interval := time.Second / time.Duration(cfg.RPS)
	g, gctx := errgroup.WithContext(runCtx)
	for w := 0; w < cfg.Concurrency; w++ {
		rng := rand.New(rand.NewSource(seed + int64(w)))
		g.Go(func() error {
			ticker := time.NewTicker(interval * time.Duration(cfg.Concurrency))
			defer ticker.Stop()
			for {
				select {
				case <-gctx.Done():
					return nil
				case <-ticker.C:
					status, err := fire(gctx, sdk, profile, email, password, rng)
					if err != nil && gctx.Err() != nil {
						// The window closed mid-request; not a failure.
						return nil
					}
					record(status, err)
				}
			}
		})
	}
	if err := g.Wait(); err != nil {
		return Result{TotalRequests: total, Failures: fails, StatusClasses: classes}, err
	}
	return Result{TotalRequests: total, Failures: fails, StatusClasses: classes}, nil
}

func fire(ctx context.Context, sdk *client.Client, profile, email, password string, rng *rand.Rand) (int, error) {
	kind := profile
	if profile == "mixed" {
		if rng.Intn(4) == 0 {
			kind = "auth"
		} else {
			kind = "api"
		}
	}
	switch kind {
	case "auth":
		if _, err := sdk.Login(ctx, email, password); err != nil {
			return 0, err
		}
		return http.StatusOK, nil
	default:
		resp, err := sdk.Do(ctx, http.MethodGet, "/v1/me", nil)
		if err != nil {
			return 0, err
		}
		resp.Body.Close()
		return resp.StatusCode, nil
	}
}

func classifyStatusClass(status int) string {
	switch {
	case status >= 200 && status < 300:
		return "2xx"
	case status >= 300 && status < 400:
		return "3xx"
	case status >= 400 && status < 500:
		return "4xx"
	case status >= 500 && status < 600:
		return "5xx"
	default:
		return "other"
	}
}

func normalizeProfile(profile string) string {
	p := strings.ToLower(strings.TrimSpace(profile))
	switch p {
	case "auth", "api", "mixed":
		return p
	default:
		return "mixed"
	}
}
