package bootstrap

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// ProviderEntry is a federated identity provider definition from config.
type ProviderEntry struct {
	Name     string `yaml:"name"`
	Issuer   string `yaml:"issuer"`
	Audience string `yaml:"audience"`
	JWKSURL  string `yaml:"jwks_url"`
}

// RouteEntry assigns an auth class to a method + path prefix.
type RouteEntry struct {
	Method string `yaml:"method"`
	Prefix string `yaml:"prefix"`
	Class  string `yaml:"class"`
}

// Config is the resolved runtime configuration.
// It merges file defaults and environment overrides so both local and
// deployed runs use the same binary.
type Config struct {
	ServiceID string

	HTTPPort int
	GRPCPort int

	DatabaseURL string
	RedisURL    string

	JWTPrivateKeyPEM  string
	JWTPublicKeyPEM   string
	JWTKeyID          string
	JWTIssuer         string
	AllowEphemeralJWT bool

	BcryptCost int

	DefaultRole        string
	TokenTTL           time.Duration
	RefreshTTL         time.Duration
	SessionTTL         time.Duration
	SessionAbsoluteTTL time.Duration

	SignatureWindow time.Duration

	MagicLinkTTL           time.Duration
	MagicLinkStrictBinding bool

	FailedLoginThreshold int
	LockoutWindow        time.Duration
	LockoutDuration      time.Duration

	JWKSCacheTTL time.Duration
	Providers    []ProviderEntry

	Routes []RouteEntry

	MaxDBConns         int32
	OutboxPollInterval time.Duration
	OutboxBatchSize    int
	OutboxClaimTTL     time.Duration
	OutboxMaxRetries   int
	NoncePruneInterval time.Duration
}

// configFile mirrors the YAML schema in configs/default.yaml. It is separate
// from Config so runtime-only fields stay internal.
type configFile struct {
	Service struct {
		ID       string `yaml:"id"`
		HTTPPort int    `yaml:"http_port"`
		GRPCPort int    `yaml:"grpc_port"`
	} `yaml:"service"`
	Dependencies struct {
		PostgresURL string `yaml:"postgres_url"`
		RedisURL    string `yaml:"redis_url"`
	} `yaml:"dependencies"`
	Signing struct {
		WindowSeconds int `yaml:"window_seconds"`
	} `yaml:"signing"`
	MagicLink struct {
		TTLMinutes    int  `yaml:"ttl_minutes"`
		StrictBinding bool `yaml:"strict_binding"`
	} `yaml:"magic_link"`
	Federated struct {
		CacheTTLHours int             `yaml:"cache_ttl_hours"`
		Providers     []ProviderEntry `yaml:"providers"`
	} `yaml:"federated"`
	Routes []RouteEntry `yaml:"routes"`
}

// LoadConfig resolves configuration in priority order: defaults -> file -> env.
func LoadConfig(path string) (Config, error) {
	cfg := Config{
		ServiceID:              "bubble-backend",
		HTTPPort:               8080,
		GRPCPort:               9090,
		JWTKeyID:               "bubble-auth-key-1",
		JWTIssuer:              "bubble-backend",
		AllowEphemeralJWT:      true,
		BcryptCost:             12,
		DefaultRole:            "USER",
		TokenTTL:               time.Hour,
		RefreshTTL:             30 * 24 * time.Hour,
		SessionTTL:             30 * 24 * time.Hour,
		SessionAbsoluteTTL:     90 * 24 * time.Hour,
		SignatureWindow:        5 * time.Minute,
		MagicLinkTTL:           15 * time.Minute,
		MagicLinkStrictBinding: false,
		FailedLoginThreshold:   5,
		LockoutWindow:          15 * time.Minute,
		LockoutDuration:        30 * time.Minute,
		JWKSCacheTTL:           24 * time.Hour,
		MaxDBConns:             20,
		OutboxPollInterval:     2 * time.Second,
		OutboxBatchSize:        100,
		OutboxClaimTTL:         30 * time.Second,
		OutboxMaxRetries:       5,
		NoncePruneInterval:     time.Minute,
	}

	raw, err := os.ReadFile(path)
	if err == nil {
		var f configFile
		if unmarshalErr := yaml.Unmarshal(raw, &f); unmarshalErr != nil {
			return Config{}, fmt.Errorf("parse config file: %w", unmarshalErr)
		}
		if f.Service.ID != "" {
			cfg.ServiceID = f.Service.ID
		}
		if f.Service.HTTPPort > 0 {
			cfg.HTTPPort = f.Service.HTTPPort
		}
		if f.Service.GRPCPort > 0 {
			cfg.GRPCPort = f.Service.GRPCPort
		}
		if f.Dependencies.PostgresURL != "" {
			cfg.DatabaseURL = f.Dependencies.PostgresURL
		}
		if f.Dependencies.RedisURL != "" {
			cfg.RedisURL = f.Dependencies.RedisURL
		}
		if f.Signing.WindowSeconds > 0 {
			cfg.SignatureWindow = time.Duration(f.Signing.WindowSeconds) * time.Second
		}
		if f.MagicLink.TTLMinutes > 0 {
			cfg.MagicLinkTTL = time.Duration(f.MagicLink.TTLMinutes) * time.Minute
		}
		cfg.MagicLinkStrictBinding = f.MagicLink.StrictBinding
		if f.Federated.CacheTTLHours > 0 {
			cfg.JWKSCacheTTL = time.Duration(f.Federated.CacheTTLHours) * time.Hour
		}
		if len(f.Federated.Providers) > 0 {
			cfg.Providers = f.Federated.Providers
		}
		if len(f.Routes) > 0 {
			cfg.Routes = f.Routes
		}
	}

	cfg.DatabaseURL = envOrDefault("DB_URL", envOrDefault("POSTGRES_URL", cfg.DatabaseURL))
	cfg.RedisURL = envOrDefault("REDIS_URL", cfg.RedisURL)
	cfg.JWTPrivateKeyPEM = envOrDefault("JWT_PRIVATE_KEY_PEM", cfg.JWTPrivateKeyPEM)
	cfg.JWTPublicKeyPEM = envOrDefault("JWT_PUBLIC_KEY_PEM", cfg.JWTPublicKeyPEM)
	cfg.JWTKeyID = envOrDefault("JWT_KEY_ID", cfg.JWTKeyID)
	cfg.JWTIssuer = envOrDefault("JWT_ISSUER", cfg.JWTIssuer)
	cfg.AllowEphemeralJWT = envBool("JWT_ALLOW_EPHEMERAL", cfg.AllowEphemeralJWT)
	cfg.DefaultRole = strings.ToUpper(envOrDefault("DEFAULT_ROLE", cfg.DefaultRole))
	cfg.MagicLinkStrictBinding = envBool("MAGIC_LINK_STRICT_BINDING", cfg.MagicLinkStrictBinding)

	cfg.HTTPPort = envInt("HTTP_PORT", cfg.HTTPPort)
	cfg.GRPCPort = envInt("GRPC_PORT", cfg.GRPCPort)
	cfg.BcryptCost = envInt("BCRYPT_ROUNDS", cfg.BcryptCost)
	cfg.FailedLoginThreshold = envInt("FAILED_LOGIN_THRESHOLD", cfg.FailedLoginThreshold)
	cfg.MaxDBConns = int32(envInt("DB_MAX_CONNS", int(cfg.MaxDBConns)))

	cfg.TokenTTL = time.Duration(envInt("TOKEN_EXPIRY_MINUTES", int(cfg.TokenTTL.Minutes()))) * time.Minute
	cfg.RefreshTTL = time.Duration(envInt("REFRESH_EXPIRY_DAYS", int(cfg.RefreshTTL.Hours()/24))) * 24 * time.Hour
	cfg.SessionTTL = time.Duration(envInt("SESSION_EXPIRY_DAYS", int(cfg.SessionTTL.Hours()/24))) * 24 * time.Hour
	cfg.SessionAbsoluteTTL = time.Duration(envInt("SESSION_ABSOLUTE_DAYS", int(cfg.SessionAbsoluteTTL.Hours()/24))) * 24 * time.Hour
	cfg.SignatureWindow = time.Duration(envInt("HMAC_WINDOW_SECONDS", int(cfg.SignatureWindow.Seconds()))) * time.Second
	cfg.MagicLinkTTL = time.Duration(envInt("MAGIC_LINK_TTL_MINUTES", int(cfg.MagicLinkTTL.Minutes()))) * time.Minute
	cfg.LockoutWindow = time.Duration(envInt("LOCKOUT_WINDOW_MINUTES", int(cfg.LockoutWindow.Minutes()))) * time.Minute
	cfg.LockoutDuration = time.Duration(envInt("ACCOUNT_LOCKOUT_MINUTES", int(cfg.LockoutDuration.Minutes()))) * time.Minute
	cfg.JWKSCacheTTL = time.Duration(envInt("JWKS_CACHE_TTL_HOURS", int(cfg.JWKSCacheTTL.Hours()))) * time.Hour
	cfg.OutboxPollInterval = time.Duration(envInt("OUTBOX_POLL_SECONDS", int(cfg.OutboxPollInterval.Seconds()))) * time.Second
	cfg.OutboxBatchSize = envInt("OUTBOX_BATCH_SIZE", cfg.OutboxBatchSize)
	cfg.OutboxClaimTTL = time.Duration(envInt("OUTBOX_CLAIM_TTL_SECONDS", int(cfg.OutboxClaimTTL.Seconds()))) * time.Second
	cfg.OutboxMaxRetries = envInt("OUTBOX_MAX_RETRIES", cfg.OutboxMaxRetries)
	cfg.NoncePruneInterval = time.Duration(envInt("NONCE_PRUNE_SECONDS", int(cfg.NoncePruneInterval.Seconds()))) * time.Second

	if cfg.DatabaseURL == "" {
		return Config{}, fmt.Errorf("missing DB_URL/POSTGRES_URL")
	}
	if cfg.RedisURL == "" {
		return Config{}, fmt.Errorf("missing REDIS_URL")
	}
	if (cfg.JWTPrivateKeyPEM == "" || cfg.JWTPublicKeyPEM == "") && !cfg.AllowEphemeralJWT {
		return Config{}, fmt.Errorf("missing JWT_PRIVATE_KEY_PEM or JWT_PUBLIC_KEY_PEM")
	}

	return cfg, nil
}

// envOrDefault returns an env var when present, otherwise the fallback.
func envOrDefault(name, fallback string) string {
	if value := os.Getenv(name); value != "" {
		return value
	}
	return fallback
}

// envInt parses integer env vars with safe fallback on empty/invalid values.
func envInt(name string, fallback int) int {
	raw := os.Getenv(name)
	if raw == "" {
		return fallback
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return v
}

// envBool parses common boolean env forms with a deterministic fallback.
func envBool(name string, fallback bool) bool {
	raw := os.Getenv(name)
	if raw == "" {
		return fallback
	}
	switch raw {
	case "1", "true", "TRUE", "yes", "YES":
		return true
	case "0", "false", "FALSE", "no", "NO":
		return false
	default:
		return fallback
	}
}
