// Recgate - Order Recommendation Gateway and Cache
// Copyright 2026 Ordercast Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/ordercast/recgate

package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

// DefaultConfigPaths lists the paths where config files are searched in order of priority.
// The first file found will be used.
var DefaultConfigPaths = []string{
	"config.yaml",
	"config.yml",
	"/etc/recgate/config.yaml",
	"/etc/recgate/config.yml",
}

// ConfigPathEnvVar is the environment variable that can override the config file path.
const ConfigPathEnvVar = "CONFIG_PATH"

// defaultConfig returns a Config struct with all sensible default values.
// These defaults are applied first, then overridden by config file and env vars.
func defaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:            "0.0.0.0",
			Port:            8080,
			Timeout:         30 * time.Second,
			ShutdownTimeout: 30 * time.Second,
			Environment:     "development",
		},
		Security: SecurityConfig{
			EncryptKey:           "",
			SignKey:              "", // Falls back to EncryptKey
			TimestampToleranceMs: 60000,
			NonceTTL:             2 * time.Minute,
			NonceCapacity:        262144,
			SignatureValidation:  true,
			ReplayProtection:     true,
			ExpectedPlatform:     "",
			SkipPaths:            []string{"/", "/health", "/metrics", "/api/auth/login"},
			Callers:              nil, // Empty allow-list admits any authenticated caller
			JWTSecret:            "",
			JWTTTL:               24 * time.Hour,
			OpsUsers:             nil,
			RateLimitReqs:        300,
			RateLimitWindow:      time.Minute,
			RateLimitDisabled:    false,
			CORSOrigins:          []string{"*"},
		},
		Store: StoreConfig{
			Path:           "/data/recgate",
			InMemory:       false,
			GCInterval:     10 * time.Minute,
			GCDiscardRatio: 0.5,
		},
		Cache: CacheConfig{
			PoolTTL:       time.Hour,
			TaskTTL:       30 * time.Minute,
			SweepInterval: time.Minute,
		},
		Engine: EngineConfig{
			URL:             "", // Disabled by default - pool writes fall back to empty lists
			Timeout:         10 * time.Second,
			MaxItems:        50,
			BreakerFailures: 5,
			BreakerCooldown: 30 * time.Second,
		},
		Tasks: TasksConfig{
			Workers:    4,
			BufferSize: 64,
		},
		Audit: AuditConfig{
			Enabled:         true,
			DBPath:          "/data/audit.duckdb",
			BufferSize:      1000,
			RetentionDays:   90,
			CleanupInterval: 24 * time.Hour,
		},
		Authz: AuthzConfig{
			ModelPath:      "",
			PolicyPath:     "",
			DefaultRole:    "viewer",
			AutoReload:     true,
			ReloadInterval: 30 * time.Second,
			CacheEnabled:   true,
			CacheTTL:       5 * time.Minute,
		},
		API: APIConfig{
			DefaultPageSize: 50,
			MaxPageSize:     1000,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Caller: false,
		},
	}
}

// LoadWithKoanf loads configuration using Koanf v2 with layered sources:
//  1. Defaults: Built-in sensible defaults
//  2. Config File: Optional YAML config file (if exists)
//  3. Environment Variables: Override any setting
//
// Precedence is ENV > File > Defaults. After unmarshaling, the HMAC
// signing key falls back to the encryption key when unset, and the
// result is validated before being returned.
func LoadWithKoanf() (*Config, error) {
	k := koanf.New(".")

	// Layer 1: Load defaults from struct
	defaults := defaultConfig()
	if err := k.Load(structs.Provider(defaults, "koanf"), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	// Layer 2: Load config file (optional)
	configPath := findConfigFile()
	if configPath != "" {
		if err := k.Load(file.Provider(configPath), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", configPath, err)
		}
	}

	// Layer 3: Load environment variables (highest priority)
	// Transform environment variable names to koanf paths:
	// ENCRYPT_KEY -> security.encrypt_key
	// POOL_TTL -> cache.pool_ttl
	envProvider := env.Provider("", ".", envTransformFunc)
	if err := k.Load(envProvider, nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	// Post-process slice fields from comma-separated strings
	if err := processSliceFields(k); err != nil {
		return nil, fmt.Errorf("failed to process slice fields: %w", err)
	}

	// Unmarshal into Config struct
	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal configuration: %w", err)
	}

	if cfg.Security.SignKey == "" {
		cfg.Security.SignKey = cfg.Security.EncryptKey
	}

	// Validate the configuration
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

// findConfigFile searches for a config file in the default paths.
// Returns the path to the first file found, or empty string if none found.
func findConfigFile() string {
	// Check environment variable first
	if envPath := os.Getenv(ConfigPathEnvVar); envPath != "" {
		if _, err := os.Stat(envPath); err == nil {
			return envPath
		}
	}

	// Search default paths
	for _, path := range DefaultConfigPaths {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}

	return ""
}

// sliceConfigPaths defines which config paths should be parsed as comma-separated slices
var sliceConfigPaths = []string{
	"security.skip_paths",
	"security.cors_origins",
}

// processSliceFields converts comma-separated string values to slices for known slice fields.
// This is necessary because env vars come in as strings, but the config expects slices.
func processSliceFields(k *koanf.Koanf) error {
	for _, path := range sliceConfigPaths {
		val := k.Get(path)
		if val == nil {
			continue
		}

		// If it's already a slice (from YAML file), skip
		if _, ok := val.([]interface{}); ok {
			continue
		}
		if _, ok := val.([]string); ok {
			continue
		}

		// If it's a string, split by comma
		if strVal, ok := val.(string); ok {
			if strVal == "" {
				continue
			}
			parts := strings.Split(strVal, ",")
			trimmed := make([]string, 0, len(parts))
			for _, p := range parts {
				p = strings.TrimSpace(p)
				if p != "" {
					trimmed = append(trimmed, p)
				}
			}
			if len(trimmed) > 0 {
				if err := k.Set(path, trimmed); err != nil {
					return fmt.Errorf("failed to set %s: %w", path, err)
				}
			}
		}
	}
	return nil
}

// envTransformFunc transforms environment variable names to koanf config paths.
//
// Examples:
//   - ENCRYPT_KEY -> security.encrypt_key
//   - HTTP_PORT -> server.port
//   - POOL_TTL -> cache.pool_ttl
//   - AUDIT_DB_PATH -> audit.db_path
func envTransformFunc(key string) string {
	key = strings.ToLower(key)

	envMappings := map[string]string{
		// Server mappings
		"http_host":        "server.host",
		"http_port":        "server.port",
		"http_timeout":     "server.timeout",
		"shutdown_timeout": "server.shutdown_timeout",
		"environment":      "server.environment",

		// Security mappings
		"encrypt_key":                 "security.encrypt_key",
		"sign_key":                    "security.sign_key",
		"timestamp_tolerance_ms":      "security.timestamp_tolerance_ms",
		"nonce_ttl":                   "security.nonce_ttl",
		"nonce_capacity":              "security.nonce_capacity",
		"enable_signature_validation": "security.signature_validation",
		"enable_replay_protection":    "security.replay_protection",
		"expected_platform":           "security.expected_platform",
		"skip_paths":                  "security.skip_paths",
		"jwt_secret":                  "security.jwt_secret",
		"jwt_ttl":                     "security.jwt_ttl",
		"rate_limit_requests":         "security.rate_limit_requests",
		"rate_limit_window":           "security.rate_limit_window",
		"disable_rate_limit":          "security.rate_limit_disabled",
		"cors_origins":                "security.cors_origins",

		// Store mappings
		"store_path":             "store.path",
		"store_in_memory":        "store.in_memory",
		"store_gc_interval":      "store.gc_interval",
		"store_gc_discard_ratio": "store.gc_discard_ratio",

		// Cache mappings
		"pool_ttl":       "cache.pool_ttl",
		"task_ttl":       "cache.task_ttl",
		"sweep_interval": "cache.sweep_interval",

		// Engine mappings
		"engine_url":              "engine.url",
		"engine_timeout":          "engine.timeout",
		"engine_max_items":        "engine.max_items",
		"engine_breaker_failures": "engine.breaker_failures",
		"engine_breaker_cooldown": "engine.breaker_cooldown",

		// Task worker mappings
		"task_workers":     "tasks.workers",
		"task_buffer_size": "tasks.buffer_size",

		// Audit mappings
		"audit_enabled":          "audit.enabled",
		"audit_db_path":          "audit.db_path",
		"audit_buffer_size":      "audit.buffer_size",
		"audit_retention_days":   "audit.retention_days",
		"audit_cleanup_interval": "audit.cleanup_interval",

		// Authz mappings
		"authz_model_path":      "authz.model_path",
		"authz_policy_path":     "authz.policy_path",
		"authz_default_role":    "authz.default_role",
		"authz_auto_reload":     "authz.auto_reload",
		"authz_reload_interval": "authz.reload_interval",
		"authz_cache_enabled":   "authz.cache_enabled",
		"authz_cache_ttl":       "authz.cache_ttl",

		// API mappings
		"api_default_page_size": "api.default_page_size",
		"api_max_page_size":     "api.max_page_size",

		// Logging mappings
		"log_level":  "logging.level",
		"log_format": "logging.format",
		"log_caller": "logging.caller",
	}

	if mapped, ok := envMappings[key]; ok {
		return mapped
	}

	// For unmapped keys, return empty string to skip them
	// This prevents random environment variables from polluting config
	return ""
}
