package config

import (
	"log/slog"
	"testing"
	"time"
)

func clearEnv(t *testing.T) {
	t.Helper()
	keys := []string{
		"APP_NAME", "TOOLGW_HTTP_ADDR", "DATABASE_URL", "TOOLGW_TOOL_CATALOG",
		"TOOLGW_POLICY_FILE", "MCP_LOG_LEVEL", "JWT_SECRET_KEY", "JWT_ALGORITHM",
		"JWT_ALLOWED_ALGORITHMS", "JWT_ISSUER", "JWT_AUDIENCE", "JWT_USER_ID_CLAIM",
		"JWT_EXP_CLAIM", "JWT_IAT_CLAIM", "JWT_TENANT_CLAIM", "JWT_API_VERSION_CLAIM",
		"TOOL_GATEWAY_SHARED_SECRET", "JWT_MAX_TOKEN_AGE_MINUTES", "JWT_CLOCK_SKEW_SECONDS",
		"JWT_ALLOWED_API_VERSIONS",
	}
	for _, k := range keys {
		t.Setenv(k, "")
	}
}

func TestLoad_Defaults(t *testing.T) {
	clearEnv(t)
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.AppName != "toolgw" {
		t.Errorf("AppName = %q, want toolgw", cfg.AppName)
	}
	if cfg.HTTPAddr != "0.0.0.0:8000" {
		t.Errorf("HTTPAddr = %q", cfg.HTTPAddr)
	}
	if cfg.JWTAlgorithm != "HS256" {
		t.Errorf("JWTAlgorithm = %q", cfg.JWTAlgorithm)
	}
	if len(cfg.JWTAllowedAlgorithms) != 1 || cfg.JWTAllowedAlgorithms[0] != "HS256" {
		t.Errorf("JWTAllowedAlgorithms = %v", cfg.JWTAllowedAlgorithms)
	}
	if cfg.JWTMaxTokenAge != 60*time.Minute {
		t.Errorf("JWTMaxTokenAge = %v, want 60m", cfg.JWTMaxTokenAge)
	}
	if cfg.JWTClockSkew != 60*time.Second {
		t.Errorf("JWTClockSkew = %v, want 60s", cfg.JWTClockSkew)
	}
	if cfg.MaxPayloadBytes != 1024*1024 {
		t.Errorf("MaxPayloadBytes = %d", cfg.MaxPayloadBytes)
	}
	if cfg.LogLevel != slog.LevelInfo {
		t.Errorf("LogLevel = %v, want Info", cfg.LogLevel)
	}
}

func TestLoad_OverridesFromEnv(t *testing.T) {
	clearEnv(t)
	t.Setenv("APP_NAME", "custom-gw")
	t.Setenv("JWT_ALLOWED_ALGORITHMS", "HS256, RS256 ,ES256")
	t.Setenv("JWT_MAX_TOKEN_AGE_MINUTES", "15")
	t.Setenv("JWT_CLOCK_SKEW_SECONDS", "5")
	t.Setenv("JWT_ALLOWED_API_VERSIONS", "v1,v2")
	t.Setenv("MCP_LOG_LEVEL", "debug")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.AppName != "custom-gw" {
		t.Errorf("AppName = %q", cfg.AppName)
	}
	want := []string{"HS256", "RS256", "ES256"}
	if len(cfg.JWTAllowedAlgorithms) != len(want) {
		t.Fatalf("JWTAllowedAlgorithms = %v, want %v", cfg.JWTAllowedAlgorithms, want)
	}
	for i, w := range want {
		if cfg.JWTAllowedAlgorithms[i] != w {
			t.Errorf("JWTAllowedAlgorithms[%d] = %q, want %q", i, cfg.JWTAllowedAlgorithms[i], w)
		}
	}
	if cfg.JWTMaxTokenAge != 15*time.Minute {
		t.Errorf("JWTMaxTokenAge = %v, want 15m", cfg.JWTMaxTokenAge)
	}
	if cfg.JWTClockSkew != 5*time.Second {
		t.Errorf("JWTClockSkew = %v, want 5s", cfg.JWTClockSkew)
	}
	if len(cfg.JWTAllowedAPIVersions) != 2 || cfg.JWTAllowedAPIVersions[1] != "v2" {
		t.Errorf("JWTAllowedAPIVersions = %v", cfg.JWTAllowedAPIVersions)
	}
	if cfg.LogLevel != slog.LevelDebug {
		t.Errorf("LogLevel = %v, want Debug", cfg.LogLevel)
	}
}

func TestLoad_InvalidMaxTokenAgeReturnsError(t *testing.T) {
	clearEnv(t)
	t.Setenv("JWT_MAX_TOKEN_AGE_MINUTES", "not-a-number")
	if _, err := Load(); err == nil {
		t.Fatal("expected error for non-numeric JWT_MAX_TOKEN_AGE_MINUTES")
	}
}

func TestLoad_InvalidClockSkewReturnsError(t *testing.T) {
	clearEnv(t)
	t.Setenv("JWT_CLOCK_SKEW_SECONDS", "not-a-number")
	if _, err := Load(); err == nil {
		t.Fatal("expected error for non-numeric JWT_CLOCK_SKEW_SECONDS")
	}
}

func TestParseLogLevel(t *testing.T) {
	cases := map[string]slog.Level{
		"DEBUG":   slog.LevelDebug,
		"debug":   slog.LevelDebug,
		"WARN":    slog.LevelWarn,
		"WARNING": slog.LevelWarn,
		"ERROR":   slog.LevelError,
		"INFO":    slog.LevelInfo,
		"bogus":   slog.LevelInfo,
	}
	for in, want := range cases {
		if got := parseLogLevel(in); got != want {
			t.Errorf("parseLogLevel(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestSplitCSV(t *testing.T) {
	if got := splitCSV(""); got != nil {
		t.Errorf("splitCSV(\"\") = %v, want nil", got)
	}
	got := splitCSV("a, b ,,c")
	want := []string{"a", "b", "c"}
	if len(got) != len(want) {
		t.Fatalf("splitCSV = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("splitCSV[%d] = %q, want %q", i, got[i], want[i])
		}
	}
}
