// Package config resolves typed runtime options from the process
// environment: secrets, JWT claim names, timeouts, and limits.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds gateway configuration loaded from environment variables.
type Config struct {
	AppName string

	HTTPAddr    string
	DatabaseURL string
	ConfigFile  string // path to the tool catalog YAML
	PolicyFile  string // path to the policy YAML
	LogLevel    slog.Level

	JWTSecretKey          string
	JWTAlgorithm          string
	JWTAllowedAlgorithms  []string
	JWTIssuer             string
	JWTAudience           string
	JWTMaxTokenAge        time.Duration
	JWTClockSkew          time.Duration
	JWTUserIDClaim        string
	JWTExpClaim           string
	JWTIatClaim           string
	JWTTenantClaim        string
	JWTAPIVersionClaim    string
	JWTAllowedAPIVersions []string

	GatewaySharedSecret string

	MaxPayloadBytes int
	BackendTimeout  time.Duration
}

// Load resolves Config from the environment, applying the defaults named
// in the external-interface contract.
func Load() (*Config, error) {
	cfg := &Config{
		AppName:     envOr("APP_NAME", "toolgw"),
		HTTPAddr:    envOr("TOOLGW_HTTP_ADDR", "0.0.0.0:8000"),
		DatabaseURL: envOr("DATABASE_URL", defaultDataPath("toolgw.db")),
		ConfigFile:  envOr("TOOLGW_TOOL_CATALOG", defaultDataPath("tools.yaml")),
		PolicyFile:  envOr("TOOLGW_POLICY_FILE", defaultDataPath("policy.yaml")),
		LogLevel:    parseLogLevel(envOr("MCP_LOG_LEVEL", "INFO")),

		JWTSecretKey:         os.Getenv("JWT_SECRET_KEY"),
		JWTAlgorithm:         envOr("JWT_ALGORITHM", "HS256"),
		JWTAllowedAlgorithms: splitCSV(envOr("JWT_ALLOWED_ALGORITHMS", "HS256")),
		JWTIssuer:            os.Getenv("JWT_ISSUER"),
		JWTAudience:          os.Getenv("JWT_AUDIENCE"),
		JWTUserIDClaim:       envOr("JWT_USER_ID_CLAIM", "sub"),
		JWTExpClaim:          envOr("JWT_EXP_CLAIM", "exp"),
		JWTIatClaim:          envOr("JWT_IAT_CLAIM", "iat"),
		JWTTenantClaim:       envOr("JWT_TENANT_CLAIM", "workspace"),
		JWTAPIVersionClaim:   envOr("JWT_API_VERSION_CLAIM", "v"),

		GatewaySharedSecret: os.Getenv("TOOL_GATEWAY_SHARED_SECRET"),

		MaxPayloadBytes: 1024 * 1024,
		BackendTimeout:  30 * time.Second,
	}

	if v := os.Getenv("JWT_MAX_TOKEN_AGE_MINUTES"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return nil, fmt.Errorf("parse JWT_MAX_TOKEN_AGE_MINUTES: %w", err)
		}
		cfg.JWTMaxTokenAge = time.Duration(n) * time.Minute
	} else {
		cfg.JWTMaxTokenAge = 60 * time.Minute
	}

	skewSec := envOr("JWT_CLOCK_SKEW_SECONDS", "60")
	n, err := strconv.Atoi(skewSec)
	if err != nil {
		return nil, fmt.Errorf("parse JWT_CLOCK_SKEW_SECONDS: %w", err)
	}
	cfg.JWTClockSkew = time.Duration(n) * time.Second

	if v := os.Getenv("JWT_ALLOWED_API_VERSIONS"); v != "" {
		cfg.JWTAllowedAPIVersions = splitCSV(v)
	}

	return cfg, nil
}

// defaultDataPath returns ~/.toolgw/<filename>, falling back to a
// CWD-relative path if the home directory can't be resolved.
func defaultDataPath(filename string) string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filename
	}
	return home + "/.toolgw/" + filename
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func parseLogLevel(s string) slog.Level {
	switch strings.ToUpper(s) {
	case "DEBUG":
		return slog.LevelDebug
	case "WARN", "WARNING":
		return slog.LevelWarn
	case "ERROR":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func splitCSV(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}
