package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/talentview/sessionkit/internal/app"
	"github.com/talentview/sessionkit/internal/config"
	"github.com/talentview/sessionkit/internal/mockapi"
	"github.com/talentview/sessionkit/internal/observability"
	"github.com/talentview/sessionkit/internal/security"
	"github.com/talentview/sessionkit/internal/tools/common"
	"github.com/talentview/sessionkit/internal/tools/loadgen"
	"github.com/talentview/sessionkit/internal/tools/preflight"
)

func main() {
	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:          "sessionctl",
		Short:        "Session and readiness tooling for the recruitment platform",
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return common.LoadEnvFile(".env")
		},
	}
	root.AddCommand(
		newLoginCommand(),
		newRefreshCommand(),
		newStatusCommand(),
		newLogoutCommand(),
		preflight.NewCommand(),
		newMockAPICommand(),
		newLoadgenCommand(),
	)
	return root
}

// withApp builds the wired session layer for one command invocation and
// tears it down afterwards.
func withApp(fn func(ctx context.Context, a *app.App) error) error {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	cfg, err := config.Load(ctx)
	if err != nil {
		return err
	}
	a, err := app.New(ctx, cfg, func() {
		fmt.Fprintln(os.Stderr, "session expired; run 'sessionctl login' to sign in again")
	})
	if err != nil {
		return err
	}
	defer func() {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		_ = a.Close(shutdownCtx)
	}()
	return fn(ctx, a)
}

func newLoginCommand() *cobra.Command {
	var email, password string
	cmd := &cobra.Command{
		Use:   "login",
		Short: "Sign in and store the session",
		RunE: func(cmd *cobra.Command, args []string) error {
			if email == "" || password == "" {
				return errors.New("--email and --password are required")
			}
			return withApp(func(ctx context.Context, a *app.App) error {
				resp, err := a.Client.Login(ctx, email, password)
				if err != nil {
					return err
				}
				fmt.Printf("signed in as %s (token %s, expires in %ds)\n",
					resp.User.Email, security.Fingerprint(resp.AccessToken), resp.ExpiresIn)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&email, "email", "", "account email")
	cmd.Flags().StringVar(&password, "password", "", "account password")
	return cmd
}

func newRefreshCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "refresh",
		Short: "Force a token refresh",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(func(ctx context.Context, a *app.App) error {
				token, err := a.Client.Refresh(ctx)
				if err != nil {
					return err
				}
				fmt.Printf("refreshed access token %s\n", security.Fingerprint(token))
				return nil
			})
		},
	}
}

func newStatusCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show the stored session",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(func(ctx context.Context, a *app.App) error {
				sess, ok := a.Store.Session(ctx)
				if !ok {
					fmt.Println("no session stored")
					return nil
				}
				state := "valid"
				if a.Store.IsExpired(ctx) {
					state = "expired or expiring"
				}
				fmt.Printf("access token  %s (%s)\n", security.Fingerprint(sess.AccessToken), state)
				if sess.RefreshToken != "" {
					fmt.Printf("refresh token %s\n", security.Fingerprint(sess.RefreshToken))
				}
				if !sess.ExpiresAt.IsZero() {
					fmt.Printf("expires at    %s\n", sess.ExpiresAt.Format(time.RFC3339))
				}
				return nil
			})
		},
	}
}

func newLogoutCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Revoke the session and clear stored credentials",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(func(ctx context.Context, a *app.App) error {
				if err := a.Client.Logout(ctx); err != nil {
					fmt.Fprintf(os.Stderr, "server logout failed (%v); local credentials cleared\n", err)
					return nil
				}
				fmt.Println("logged out")
				return nil
			})
		},
	}
}

func newMockAPICommand() *cobra.Command {
	var addr string
	var accessTTL, refreshTTL time.Duration
	cmd := &cobra.Command{
		Use:   "mockapi",
		Short: "Run an in-memory stand-in for the platform auth API",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer cancel()

			cfg, err := config.Load(ctx)
			if err != nil {
				return err
			}
			logger, _, err := observability.InitLogger(ctx, cfg)
			if err != nil {
				return err
			}

			jwtMgr := security.NewJWTManager("sessionkit-mockapi", "sessionkit",
				envOr("SESSIONKIT_MOCKAPI_ACCESS_SECRET", "dev-access-secret"),
				envOr("SESSIONKIT_MOCKAPI_REFRESH_SECRET", "dev-refresh-secret"))
			srv := mockapi.NewServer(jwtMgr, mockapi.Options{
				AccessTokenTTL:  accessTTL,
				RefreshTokenTTL: refreshTTL,
			}, logger)

			httpSrv := &http.Server{
				Addr:              addr,
				Handler:           srv.Router(),
				ReadHeaderTimeout: 5 * time.Second,
			}
			go func() {
				<-ctx.Done()
				shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer shutdownCancel()
				_ = httpSrv.Shutdown(shutdownCtx)
			}()

			logger.Info("mock API listening", "addr", addr)
			if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&addr, "addr", ":8081", "listen address")
	cmd.Flags().DurationVar(&accessTTL, "access-ttl", 15*time.Minute, "access token lifetime")
	cmd.Flags().DurationVar(&refreshTTL, "refresh-ttl", 30*24*time.Hour, "refresh token lifetime")
	return cmd
}

func newLoadgenCommand() *cobra.Command {
	var (
		baseURL     string
		profile     string
		duration    time.Duration
		rps         int
		concurrency int
		seed        int64
		ci          bool
	)
	cmd := &cobra.Command{
		Use:   "loadgen",
		Short: "Drive authenticated traffic through the SDK pipeline",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer cancel()

			result, err := loadgen.Run(ctx, loadgen.Config{
				BaseURL:     baseURL,
				Profile:     profile,
				Duration:    duration,
				RPS:         rps,
				Concurrency: concurrency,
				Seed:        seed,
			})
			details := []string{
				fmt.Sprintf("total=%d failures=%d", result.TotalRequests, result.Failures),
			}
			for class, count := range result.StatusClasses {
				details = append(details, fmt.Sprintf("%s=%d", class, count))
			}
			if ci {
				common.PrintCIResult(err == nil && result.Failures == 0, "loadgen", details, err)
				if err != nil || result.Failures > 0 {
					os.Exit(4)
				}
				return nil
			}
			for _, d := range details {
				fmt.Println(d)
			}
			return err
		},
	}
	cmd.Flags().StringVar(&baseURL, "base-url", "http://localhost:8081", "target base URL")
	cmd.Flags().StringVar(&profile, "profile", "mixed", "traffic profile: auth, api or mixed")
	cmd.Flags().DurationVar(&duration, "duration", 10*time.Second, "run duration")
	cmd.Flags().IntVar(&rps, "rps", 20, "target requests per second")
	cmd.Flags().IntVar(&concurrency, "concurrency", 4, "worker count")
	cmd.Flags().Int64Var(&seed, "seed", 0, "random seed (0 picks one)")
	cmd.Flags().BoolVar(&ci, "ci", false, "non-interactive machine-readable output")
	return cmd
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
