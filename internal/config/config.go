// Package config loads the core's configuration from a JSON file merged
// with built-in defaults, then resolves any "$VAR"-prefixed string field
// against the environment. This mirrors the daemon's own
// LoadConfig/deepMergeJSON/resolveEnv shape rather than adopting a
// third-party env/config loader: the teacher already hand-rolls this, and
// the ambient-stack rule is to keep that idiom.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"time"
)

type Config struct {
	ProviderDefault string `json:"provider_default,omitempty"`
	ModelDefault    string `json:"model_default,omitempty"`

	WorkspaceDefault       string   `json:"workspace_default,omitempty"`
	ProjectsRootAllowlist  []string `json:"projects_root_allowlist,omitempty"`

	EnableShell    bool `json:"enable_shell"`
	EnableWrite    bool `json:"enable_write"`
	EnableBrowser  bool `json:"enable_browser"`
	AllowDangerous bool `json:"allow_dangerous"`

	SessionTTL         Duration `json:"session_ttl,omitempty"`
	MaxSessions        int      `json:"max_sessions,omitempty"`
	MaxSessionMessages int      `json:"max_session_messages,omitempty"`
	MaxContextChars    int      `json:"max_context_chars,omitempty"`

	OutputsDir string   `json:"outputs_dir,omitempty"`
	OutputsTTL Duration `json:"outputs_ttl,omitempty"`

	// HistorySessionsDir holds the grep-style JSON snapshot mirror synced
	// after every committed turn (spec §6); /history/search reads these
	// files instead of scanning the relational store.
	HistorySessionsDir string `json:"history_sessions_dir,omitempty"`

	MaxToolOutputChars int `json:"max_tool_output_chars,omitempty"`
	MaxFileReadChars   int `json:"max_file_read_chars,omitempty"`
	MaxSteps           int `json:"max_steps,omitempty"`

	PublicBaseURL string `json:"public_base_url,omitempty"`

	HTTPAddr    string `json:"http_addr,omitempty"`
	DatabaseURL string `json:"database_url,omitempty"`
	RedisURL    string `json:"redis_url,omitempty"`

	// RateLimitPerMinute caps /chat turns per (team, user) when RedisURL is
	// set; zero or no Redis configured disables rate limiting entirely.
	RateLimitPerMinute int `json:"rate_limit_per_minute,omitempty"`

	DownloadTokenSecret string `json:"download_token_secret,omitempty"`

	// JWTSigningSecret verifies bearer tokens minted by whatever issues them
	// outside the core (spec §1); AuthMode picks auth.JWTResolver ("jwt") or
	// a fixed dev principal ("static") for standalone/local runs.
	JWTSigningSecret string `json:"jwt_signing_secret,omitempty"`
	AuthMode         string `json:"auth_mode,omitempty"`

	Anthropic AnthropicConfig `json:"anthropic,omitempty"`
	OpenCode  OpenCodeConfig  `json:"opencode,omitempty"`

	SharedInviteToken string `json:"shared_invite_token,omitempty"`
}

type AnthropicConfig struct {
	APIKey  string `json:"api_key,omitempty"`
	BaseURL string `json:"base_url,omitempty"`
}

type OpenCodeConfig struct {
	BaseURL string `json:"base_url,omitempty"`
}

// Duration marshals/unmarshals as a Go duration string ("30s", "6h") inside
// JSON config, matching the teacher's EmbeddingsConfig.SyncInterval idiom.
type Duration time.Duration

func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Duration(d).String())
}

func (d *Duration) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	if s == "" {
		*d = 0
		return nil
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return err
	}
	*d = Duration(parsed)
	return nil
}

func defaultConfig() *Config {
	return &Config{
		ProviderDefault:       envOr("AGENTCORE_PROVIDER_DEFAULT", "native"),
		ModelDefault:          envOr("AGENTCORE_MODEL_DEFAULT", "claude-sonnet-4-5"),
		WorkspaceDefault:      envOr("AGENTCORE_WORKSPACE_DEFAULT", "workspace"),
		ProjectsRootAllowlist: nil,
		EnableShell:           envOr("AGENTCORE_ENABLE_SHELL", "") != "",
		EnableWrite:           envOr("AGENTCORE_ENABLE_WRITE", "") != "",
		EnableBrowser:         envOr("AGENTCORE_ENABLE_BROWSER", "") != "",
		AllowDangerous:        envOr("AGENTCORE_ALLOW_DANGEROUS", "") != "",
		SessionTTL:            Duration(2 * time.Hour),
		MaxSessions:           500,
		MaxSessionMessages:    120,
		MaxContextChars:       40_000,
		OutputsDir:            envOr("AGENTCORE_OUTPUTS_DIR", "data/outputs"),
		OutputsTTL:            Duration(7 * 24 * time.Hour),
		HistorySessionsDir:    envOr("AGENTCORE_HISTORY_SESSIONS_DIR", "data/history_sessions"),
		MaxToolOutputChars:    8_000,
		MaxFileReadChars:      60_000,
		MaxSteps:              12,
		PublicBaseURL:         envOr("AGENTCORE_PUBLIC_BASE_URL", ""),
		HTTPAddr:              envOr("AGENTCORE_HTTP_ADDR", ":8080"),
		DatabaseURL:           envOr("AGENTCORE_DATABASE_URL", "sqlite://data/agentcore.db"),
		RedisURL:              envOr("AGENTCORE_REDIS_URL", ""),
		RateLimitPerMinute:    60,
		DownloadTokenSecret:   envOr("AGENTCORE_DOWNLOAD_TOKEN_SECRET", "dev-secret-change-me"),
		JWTSigningSecret:      envOr("AGENTCORE_JWT_SECRET", ""),
		AuthMode:              envOr("AGENTCORE_AUTH_MODE", "jwt"),
		Anthropic: AnthropicConfig{
			APIKey:  envOr("ANTHROPIC_API_KEY", ""),
			BaseURL: envOr("ANTHROPIC_BASE_URL", ""),
		},
		OpenCode: OpenCodeConfig{
			BaseURL: envOr("AGENTCORE_OPENCODE_URL", ""),
		},
	}
}

// Load reads the config file at path (if non-empty), merges it over the
// built-in defaults, resolves $VAR indirections, and fills zero-valued
// limits with defaults.
func Load(path string) (*Config, error) {
	base := defaultConfig()
	baseJSON, err := json.Marshal(base)
	if err != nil {
		return nil, fmt.Errorf("marshal default config: %w", err)
	}

	merged := baseJSON
	if path != "" {
		fileData, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
		merged, err = deepMergeJSON(merged, fileData)
		if err != nil {
			return nil, fmt.Errorf("merge config %s: %w", path, err)
		}
	}

	var cfg Config
	if err := json.Unmarshal(merged, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	cfg.ProviderDefault = resolveEnv(cfg.ProviderDefault)
	cfg.ModelDefault = resolveEnv(cfg.ModelDefault)
	cfg.WorkspaceDefault = resolveEnv(cfg.WorkspaceDefault)
	cfg.OutputsDir = resolveEnv(cfg.OutputsDir)
	cfg.HistorySessionsDir = resolveEnv(cfg.HistorySessionsDir)
	cfg.PublicBaseURL = resolveEnv(cfg.PublicBaseURL)
	cfg.HTTPAddr = resolveEnv(cfg.HTTPAddr)
	cfg.DatabaseURL = resolveEnv(cfg.DatabaseURL)
	cfg.RedisURL = resolveEnv(cfg.RedisURL)
	cfg.DownloadTokenSecret = resolveEnv(cfg.DownloadTokenSecret)
	cfg.JWTSigningSecret = resolveEnv(cfg.JWTSigningSecret)
	cfg.Anthropic.APIKey = resolveEnv(cfg.Anthropic.APIKey)
	cfg.Anthropic.BaseURL = resolveEnv(cfg.Anthropic.BaseURL)
	cfg.OpenCode.BaseURL = resolveEnv(cfg.OpenCode.BaseURL)

	if cfg.HTTPAddr == "" {
		cfg.HTTPAddr = ":8080"
	}
	if cfg.MaxSteps <= 0 {
		cfg.MaxSteps = 12
	}
	return &cfg, nil
}

func deepMergeJSON(base, overlay []byte) ([]byte, error) {
	var baseMap map[string]interface{}
	if len(base) > 0 {
		if err := json.Unmarshal(base, &baseMap); err != nil {
			return nil, err
		}
	}
	if baseMap == nil {
		baseMap = map[string]interface{}{}
	}

	var overlayMap map[string]interface{}
	if len(overlay) > 0 {
		if err := json.Unmarshal(overlay, &overlayMap); err != nil {
			return nil, err
		}
	}
	mergeMap(baseMap, overlayMap)
	return json.Marshal(baseMap)
}

func mergeMap(dst, src map[string]interface{}) {
	for k, v := range src {
		dstObj, dstIsObj := dst[k].(map[string]interface{})
		srcObj, srcIsObj := v.(map[string]interface{})
		if dstIsObj && srcIsObj {
			mergeMap(dstObj, srcObj)
			dst[k] = dstObj
			continue
		}
		dst[k] = v
	}
}

func resolveEnv(s string) string {
	if len(s) > 1 && s[0] == '$' {
		if v := os.Getenv(s[1:]); v != "" {
			return v
		}
	}
	return s
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
