package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("APP_ENV", "development")
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Merit.TargetPoints != 50 {
		t.Errorf("target points = %d, want 50", cfg.Merit.TargetPoints)
	}
	if cfg.Merit.LeaderboardLimit != 10 {
		t.Errorf("leaderboard limit = %d, want 10", cfg.Merit.LeaderboardLimit)
	}
	if cfg.Merit.RecentWindow != 30*24*time.Hour {
		t.Errorf("recent window = %s, want 720h", cfg.Merit.RecentWindow)
	}
	if cfg.Cache.EventsTTL != 15*time.Minute {
		t.Errorf("events ttl = %s, want 15m", cfg.Cache.EventsTTL)
	}
	if len(cfg.Auth.AllowedDomains) != 2 {
		t.Errorf("allowed domains = %v", cfg.Auth.AllowedDomains)
	}
	if opts := cfg.Database.PoolOptions(); opts.MaxConns != 20 || opts.MinConns != 2 || opts.LockTimeout != 5*time.Second {
		t.Errorf("pool options = %+v", opts)
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("MERIT_TARGET_POINTS", "80")
	t.Setenv("AUTH_ALLOWED_DOMAINS", " Example.EDU ,uni.test")
	t.Setenv("CORS_ALLOWED_ORIGINS", "http://a.test,http://b.test")
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Merit.TargetPoints != 80 {
		t.Errorf("target points = %d, want 80", cfg.Merit.TargetPoints)
	}
	if got := cfg.Auth.AllowedDomains[0]; got != "example.edu" {
		t.Errorf("domain not normalised: %q", got)
	}
	if len(cfg.Server.CORSAllowedOrigins) != 2 {
		t.Errorf("origins = %v", cfg.Server.CORSAllowedOrigins)
	}
}

func TestLoadRejectsInvalid(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
	}{
		{"zero target", map[string]string{"MERIT_TARGET_POINTS": "0"}},
		{"negative limit", map[string]string{"LEADERBOARD_DEFAULT_LIMIT": "-1"}},
		{"stale shorter than fresh", map[string]string{"CACHE_EVENTS_TTL": "1h", "CACHE_EVENTS_STALE_TTL": "10m"}},
		{"default secret in production", map[string]string{"APP_ENV": "production"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			if _, err := Load(); err == nil {
				t.Fatal("expected error")
			}
		})
	}
}

func TestDSN(t *testing.T) {
	c := DatabaseConfig{Host: "db", Port: "5432", User: "u", Password: "p", DBName: "m", SSLMode: "disable"}
	if got, want := c.DSN(), "postgres://u:p@db:5432/m?sslmode=disable"; got != want {
		t.Errorf("DSN = %q, want %q", got, want)
	}
	c.URL = "postgres://other"
	if c.DSN() != "postgres://other" {
		t.Errorf("URL should win")
	}
}

func TestDevLoginDisabledInProduction(t *testing.T) {
	cfg := &Config{Server: ServerConfig{Environment: "production"}, Auth: AuthConfig{DevLogin: true}}
	if cfg.DevLoginEnabled() {
		t.Error("dev login must be off in production")
	}
	cfg.Server.Environment = "development"
	if !cfg.DevLoginEnabled() {
		t.Error("dev login should be on")
	}
}
