package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/aistaff-ai/agentcore/internal/artifact"
	"github.com/aistaff-ai/agentcore/internal/auth"
	"github.com/aistaff-ai/agentcore/internal/capability"
	"github.com/aistaff-ai/agentcore/internal/config"
	"github.com/aistaff-ai/agentcore/internal/docrender"
	"github.com/aistaff-ai/agentcore/internal/httpapi"
	"github.com/aistaff-ai/agentcore/internal/provider"
	"github.com/aistaff-ai/agentcore/internal/ratelimit"
	"github.com/aistaff-ai/agentcore/internal/session"
	"github.com/aistaff-ai/agentcore/internal/store"
	"github.com/aistaff-ai/agentcore/internal/tools"
	"github.com/aistaff-ai/agentcore/internal/webhook"
)

func newMigrateCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "apply pending schema migrations and exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(*configPath)
			if err != nil {
				return err
			}
			db, err := store.Open(cfg.DatabaseURL)
			if err != nil {
				return err
			}
			defer db.Close()
			slog.Info("migration complete", "database_url", cfg.DatabaseURL)
			return nil
		},
	}
}

func newServeCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "run the HTTP chat-entry server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), *configPath)
		},
	}
}

func runServe(ctx context.Context, configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	db, err := store.Open(cfg.DatabaseURL)
	if err != nil {
		return err
	}
	defer db.Close()

	artifacts, err := artifact.New(cfg.OutputsDir, db, cfg.DownloadTokenSecret)
	if err != nil {
		return err
	}

	browser := tools.NewBrowserManager()
	registry := tools.NewRegistry(tools.Deps{Artifacts: artifacts, DB: db, Browser: browser})

	providers := buildProviders(cfg)
	if len(providers) == 0 {
		slog.Warn("no model provider configured; set anthropic.api_key or opencode.base_url")
	}

	authN, err := buildAuthResolver(cfg)
	if err != nil {
		return err
	}

	var limiter *ratelimit.Limiter
	if cfg.RedisURL != "" {
		limiter, err = ratelimit.NewFromURL(cfg.RedisURL, "agentcore")
		if err != nil {
			return fmt.Errorf("connect redis rate limiter: %w", err)
		}
		defer limiter.Close()
	}

	srv := httpapi.New(cfg, httpapi.Server{
		DB:          db,
		Sessions:    session.New(time.Duration(cfg.SessionTTL), cfg.MaxSessions),
		Artifacts:   artifacts,
		Tools:       registry,
		Providers:   providers,
		AuthN:       authN,
		Renderer:    docrender.PlaintextRenderer{},
		RateLimiter: limiter,
	})
	srv.Webhooks = webhook.NewDispatcher(httpapi.NewWebhookInvoke(srv))

	httpServer := &http.Server{Addr: cfg.HTTPAddr, Handler: srv.Routes()}

	serveCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	gc := artifact.NewGCWorker(artifacts, artifact.DefaultGCConfig(), slog.Default())
	go gc.Run(serveCtx)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		select {
		case sig := <-sigCh:
			slog.Info("received signal, shutting down", "signal", sig)
		case <-serveCtx.Done():
		}
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			slog.Error("http server shutdown error", "error", err)
		}
	}()

	slog.Info("agentd listening", "addr", cfg.HTTPAddr, "providers", providerNames(providers))
	if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	slog.Info("agentd stopped")
	return nil
}

// buildProviders wires every configured model-provider variant in
// preference order: native Anthropic first (it alone can satisfy the
// dangerous/unsandboxed capability bit, spec §4.7), then the sandboxed
// OpenCode broker as fallback. Subprocess backends (codex/pi/nanobot-style
// CLIs) are opt-in per deployment and are left to a future config section
// since none of the three ships a default binary path.
func buildProviders(cfg *config.Config) []provider.Provider {
	var providers []provider.Provider
	if cfg.Anthropic.APIKey != "" {
		providers = append(providers, provider.NewAnthropic(cfg.Anthropic.APIKey, cfg.Anthropic.BaseURL, cfg.ModelDefault))
	}
	if cfg.OpenCode.BaseURL != "" {
		providers = append(providers, provider.NewOpenCode(cfg.OpenCode.BaseURL, "", ""))
	}
	return providers
}

func providerNames(providers []provider.Provider) []string {
	names := make([]string, 0, len(providers))
	for _, p := range providers {
		names = append(names, p.Name())
	}
	return names
}

// buildAuthResolver picks JWTResolver for a real deployment or a fixed
// Static dev principal when auth_mode is "static" (no signing secret
// required), matching the teacher's "config decides which concrete
// collaborator backs an interface" idiom (pkg/channel vs internal/channel
// selection in daemon.New).
func buildAuthResolver(cfg *config.Config) (auth.Resolver, error) {
	switch cfg.AuthMode {
	case "static":
		return auth.Static{Principal: auth.Principal{UserID: 1, TeamID: 1, Role: capability.RoleOwner}}, nil
	default:
		if cfg.JWTSigningSecret == "" {
			return nil, errors.New("jwt_signing_secret is required when auth_mode is \"jwt\"")
		}
		return auth.NewJWTResolver([]byte(cfg.JWTSigningSecret), 30*time.Second), nil
	}
}
