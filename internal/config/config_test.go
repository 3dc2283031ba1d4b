// Recgate - Order Recommendation Gateway and Cache
// Copyright 2026 Ordercast Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/ordercast/recgate

package config

import (
	"strings"
	"testing"
	"time"
)

// validConfig returns a default config with the required fields filled
// in, suitable as a baseline for mutation in validation tests.
func validConfig() *Config {
	cfg := defaultConfig()
	cfg.Security.EncryptKey = "0123456789abcdef"
	cfg.Security.SignKey = cfg.Security.EncryptKey
	return cfg
}

func TestValidate_Defaults(t *testing.T) {
	cfg := validConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config with encrypt key should validate, got: %v", err)
	}
}

func TestValidate_RequiresEncryptKey(t *testing.T) {
	cfg := validConfig()
	cfg.Security.EncryptKey = ""
	err := cfg.Validate()
	if err == nil {
		t.Fatal("expected error for missing ENCRYPT_KEY")
	}
	if !strings.Contains(err.Error(), "ENCRYPT_KEY") {
		t.Errorf("error should name ENCRYPT_KEY, got: %v", err)
	}
}

func TestValidate_EncryptKeyLength(t *testing.T) {
	tests := []struct {
		name    string
		key     string
		wantErr bool
	}{
		{"aes_128", "0123456789abcdef", false},
		{"aes_192", "0123456789abcdef01234567", false},
		{"aes_256", "0123456789abcdef0123456789abcdef", false},
		{"too_short", "short", true},
		{"seventeen_bytes", "0123456789abcdefX", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			cfg.Security.EncryptKey = tt.key
			err := cfg.Validate()
			if tt.wantErr && err == nil {
				t.Errorf("key of length %d should be rejected", len(tt.key))
			}
			if !tt.wantErr && err != nil {
				t.Errorf("key of length %d should be accepted, got: %v", len(tt.key), err)
			}
		})
	}
}

func TestValidate_RejectsSampleKeyInProduction(t *testing.T) {
	cfg := validConfig()
	cfg.Security.EncryptKey = placeholderEncryptKey

	cfg.Server.Environment = "development"
	if err := cfg.Validate(); err != nil {
		t.Fatalf("sample key should be allowed in development, got: %v", err)
	}

	cfg.Server.Environment = "production"
	if err := cfg.Validate(); err == nil {
		t.Fatal("sample key should be rejected in production")
	}
}

func TestValidate_NonceWindowCoversTolerance(t *testing.T) {
	cfg := validConfig()
	cfg.Security.TimestampToleranceMs = 60000
	cfg.Security.NonceTTL = 90 * time.Second // < 2 * 60s

	err := cfg.Validate()
	if err == nil {
		t.Fatal("nonce window below twice the tolerance should be rejected")
	}
	if !strings.Contains(err.Error(), "NONCE_TTL") {
		t.Errorf("error should name NONCE_TTL, got: %v", err)
	}

	// Exactly twice the tolerance is the minimum accepted window.
	cfg.Security.NonceTTL = 2 * time.Minute
	if err := cfg.Validate(); err != nil {
		t.Fatalf("window of exactly twice the tolerance should validate, got: %v", err)
	}

	// With replay protection off the relationship is not enforced.
	cfg.Security.NonceTTL = 30 * time.Second
	cfg.Security.ReplayProtection = false
	if err := cfg.Validate(); err != nil {
		t.Fatalf("window check should be skipped when replay protection is off, got: %v", err)
	}
}

func TestValidate_Callers(t *testing.T) {
	t.Run("empty_list_is_valid", func(t *testing.T) {
		cfg := validConfig()
		cfg.Security.Callers = nil
		if err := cfg.Validate(); err != nil {
			t.Fatalf("empty caller list should validate, got: %v", err)
		}
	})

	t.Run("missing_token_rejected", func(t *testing.T) {
		cfg := validConfig()
		cfg.Security.Callers = []CallerConfig{{ID: "checkout-service"}}
		if err := cfg.Validate(); err == nil {
			t.Fatal("caller without token should be rejected")
		}
	})

	t.Run("duplicate_id_rejected", func(t *testing.T) {
		cfg := validConfig()
		cfg.Security.Callers = []CallerConfig{
			{ID: "checkout-service", Token: "tok-a"},
			{ID: "checkout-service", Token: "tok-b"},
		}
		if err := cfg.Validate(); err == nil {
			t.Fatal("duplicate caller id should be rejected")
		}
	})
}

func TestValidate_OpsUsers(t *testing.T) {
	hash := "$2a$10$N9qo8uLOickgx2ZMRZoMyeIjZAgcfl7p92ldGxad68LJZdL17lhWy"

	t.Run("requires_jwt_secret", func(t *testing.T) {
		cfg := validConfig()
		cfg.Security.OpsUsers = []OpsUserConfig{{Username: "admin", PasswordHash: hash, Role: "admin"}}
		cfg.Security.JWTSecret = "short"
		err := cfg.Validate()
		if err == nil || !strings.Contains(err.Error(), "JWT_SECRET") {
			t.Fatalf("expected JWT_SECRET error, got: %v", err)
		}
	})

	t.Run("requires_bcrypt_hash", func(t *testing.T) {
		cfg := validConfig()
		cfg.Security.JWTSecret = strings.Repeat("s", 32)
		cfg.Security.OpsUsers = []OpsUserConfig{{Username: "admin", PasswordHash: "plaintext", Role: "admin"}}
		if err := cfg.Validate(); err == nil {
			t.Fatal("plaintext password_hash should be rejected")
		}
	})

	t.Run("rejects_unknown_role", func(t *testing.T) {
		cfg := validConfig()
		cfg.Security.JWTSecret = strings.Repeat("s", 32)
		cfg.Security.OpsUsers = []OpsUserConfig{{Username: "admin", PasswordHash: hash, Role: "superuser"}}
		if err := cfg.Validate(); err == nil {
			t.Fatal("unknown role should be rejected")
		}
	})

	t.Run("valid_accounts_accepted", func(t *testing.T) {
		cfg := validConfig()
		cfg.Security.JWTSecret = strings.Repeat("s", 32)
		cfg.Security.OpsUsers = []OpsUserConfig{
			{Username: "admin", PasswordHash: hash, Role: "admin"},
			{Username: "oncall", PasswordHash: hash, Role: "viewer"},
		}
		if err := cfg.Validate(); err != nil {
			t.Fatalf("valid ops users should validate, got: %v", err)
		}
	})
}

func TestValidate_Engine(t *testing.T) {
	t.Run("empty_url_skips_validation", func(t *testing.T) {
		cfg := validConfig()
		cfg.Engine.URL = ""
		cfg.Engine.Timeout = 0 // Would fail if engine validation ran
		if err := cfg.Validate(); err != nil {
			t.Fatalf("disabled engine should skip validation, got: %v", err)
		}
	})

	t.Run("rejects_bad_scheme", func(t *testing.T) {
		cfg := validConfig()
		cfg.Engine.URL = "ftp://engine.internal"
		if err := cfg.Validate(); err == nil {
			t.Fatal("non-http engine URL should be rejected")
		}
	})

	t.Run("accepts_https", func(t *testing.T) {
		cfg := validConfig()
		cfg.Engine.URL = "https://engine.internal:9000"
		if err := cfg.Validate(); err != nil {
			t.Fatalf("https engine URL should validate, got: %v", err)
		}
	})
}

func TestValidate_BoundaryFields(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"port_zero", func(c *Config) { c.Server.Port = 0 }},
		{"port_too_large", func(c *Config) { c.Server.Port = 70000 }},
		{"bad_environment", func(c *Config) { c.Server.Environment = "staging" }},
		{"zero_tolerance", func(c *Config) { c.Security.TimestampToleranceMs = 0 }},
		{"nonce_capacity_too_small", func(c *Config) { c.Security.NonceCapacity = 100 }},
		{"skip_path_missing_slash", func(c *Config) { c.Security.SkipPaths = []string{"health"} }},
		{"store_path_missing", func(c *Config) { c.Store.InMemory = false; c.Store.Path = "" }},
		{"zero_pool_ttl", func(c *Config) { c.Cache.PoolTTL = 0 }},
		{"too_many_workers", func(c *Config) { c.Tasks.Workers = 128 }},
		{"audit_path_missing", func(c *Config) { c.Audit.Enabled = true; c.Audit.DBPath = "" }},
		{"bad_log_level", func(c *Config) { c.Logging.Level = "verbose" }},
		{"bad_log_format", func(c *Config) { c.Logging.Format = "text" }},
		{"max_page_below_default", func(c *Config) { c.API.DefaultPageSize = 100; c.API.MaxPageSize = 50 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)
			if err := cfg.Validate(); err == nil {
				t.Error("expected validation error")
			}
		})
	}
}

func TestSigningKey_FallsBackToEncryptKey(t *testing.T) {
	sec := SecurityConfig{EncryptKey: "0123456789abcdef"}
	if got := string(sec.SigningKey()); got != "0123456789abcdef" {
		t.Errorf("expected fallback to encrypt key, got %q", got)
	}

	sec.SignKey = "dedicated-hmac-key"
	if got := string(sec.SigningKey()); got != "dedicated-hmac-key" {
		t.Errorf("expected dedicated sign key, got %q", got)
	}
}

func TestTimestampTolerance_Conversion(t *testing.T) {
	sec := SecurityConfig{TimestampToleranceMs: 60000}
	if got := sec.TimestampTolerance(); got != time.Minute {
		t.Errorf("expected 1m tolerance, got %s", got)
	}
}
