// Recgate - Order Recommendation Gateway and Cache
// Copyright 2026 Ordercast Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/ordercast/recgate

// Package config loads and validates application configuration from
// defaults, an optional YAML file, and environment variables, in that
// order of precedence (environment wins).
package config

import (
	"time"
)

// Config holds all application configuration.
//
// Loading order (Koanf v2):
//  1. Defaults: built-in values for every optional setting
//  2. Config file: optional YAML file (config.yaml or CONFIG_PATH)
//  3. Environment variables: override any setting
//
// Config is immutable after LoadWithKoanf() and safe for concurrent
// reads from multiple goroutines.
type Config struct {
	Server   ServerConfig   `koanf:"server"`
	Security SecurityConfig `koanf:"security"`
	Store    StoreConfig    `koanf:"store"`
	Cache    CacheConfig    `koanf:"cache"`
	Engine   EngineConfig   `koanf:"engine"`
	Tasks    TasksConfig    `koanf:"tasks"`
	Audit    AuditConfig    `koanf:"audit"`
	Authz    AuthzConfig    `koanf:"authz"`
	API      APIConfig      `koanf:"api"`
	Logging  LoggingConfig  `koanf:"logging"`
}

// ServerConfig holds HTTP server settings.
//
// Environment Variables:
//   - HTTP_HOST: Listen address (default: 0.0.0.0)
//   - HTTP_PORT: Listen port (default: 8080)
//   - HTTP_TIMEOUT: Read/write timeout (default: 30s)
//   - SHUTDOWN_TIMEOUT: Graceful shutdown deadline (default: 30s)
//   - ENVIRONMENT: "development" or "production" (default: development)
type ServerConfig struct {
	Host            string        `koanf:"host"`
	Port            int           `koanf:"port"`
	Timeout         time.Duration `koanf:"timeout"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout"`
	Environment     string        `koanf:"environment"` // Enables stricter validation when "production"
}

// SecurityConfig holds the request authentication settings for the
// gateway: envelope crypto keys, freshness window, replay protection,
// caller allow-list, and the operator login surface.
//
// The gateway authenticates backend callers via an encrypted envelope
// in the x-encrypt-key header. EncryptKey decrypts the envelope
// (AES, so it must be 16, 24, or 32 bytes). SignKey verifies the
// HMAC-SHA256 signature inside the envelope and defaults to
// EncryptKey when unset, matching deployments that share one secret
// for both purposes.
//
// Environment Variables:
//   - ENCRYPT_KEY: AES key for envelope decryption (required)
//   - SIGN_KEY: HMAC key for signature verification (default: ENCRYPT_KEY)
//   - TIMESTAMP_TOLERANCE_MS: Accepted clock skew in milliseconds (default: 60000)
//   - NONCE_TTL: Replay rejection window (default: 2m)
//   - NONCE_CAPACITY: In-memory nonce ledger bound (default: 262144)
//   - ENABLE_SIGNATURE_VALIDATION: Verify envelope signatures (default: true)
//   - ENABLE_REPLAY_PROTECTION: Reject repeated nonces (default: true)
//   - EXPECTED_PLATFORM: Required platform field value; empty accepts any non-empty
//   - SKIP_PATHS: Comma-separated paths that bypass authentication
//   - JWT_SECRET: Operator token signing secret (32+ chars, required when ops users exist)
//   - JWT_TTL: Operator token lifetime (default: 24h)
//   - RATE_LIMIT_REQUESTS: Requests per window per client IP (default: 300)
//   - RATE_LIMIT_WINDOW: Rate limit window (default: 1m)
//   - DISABLE_RATE_LIMIT: Disable rate limiting entirely (default: false)
//   - CORS_ORIGINS: Comma-separated allowed origins (default: *)
//
// Callers and OpsUsers are structured lists and can only be set via
// the YAML config file:
//
//	security:
//	  callers:
//	    - id: checkout-service
//	      token: "$2a$10$..."   # bcrypt hash, or a plain shared token
//	  ops_users:
//	    - username: admin
//	      password_hash: "$2a$10$..."
//	      role: admin
type SecurityConfig struct {
	EncryptKey           string        `koanf:"encrypt_key"`
	SignKey              string        `koanf:"sign_key"`
	TimestampToleranceMs int64         `koanf:"timestamp_tolerance_ms"`
	NonceTTL             time.Duration `koanf:"nonce_ttl"`
	NonceCapacity        int           `koanf:"nonce_capacity"`
	SignatureValidation  bool          `koanf:"signature_validation"`
	ReplayProtection     bool          `koanf:"replay_protection"`
	ExpectedPlatform     string        `koanf:"expected_platform"`
	SkipPaths            []string      `koanf:"skip_paths"`
	Callers              []CallerConfig `koanf:"callers"`

	// Operator surface (ops API behind /api/ops)
	JWTSecret string          `koanf:"jwt_secret"`
	JWTTTL    time.Duration   `koanf:"jwt_ttl"`
	OpsUsers  []OpsUserConfig `koanf:"ops_users"`

	// Rate limiting applied to the authenticated API surface
	RateLimitReqs     int           `koanf:"rate_limit_requests"`
	RateLimitWindow   time.Duration `koanf:"rate_limit_window"`
	RateLimitDisabled bool          `koanf:"rate_limit_disabled"`

	CORSOrigins []string `koanf:"cors_origins"`
}

// CallerConfig identifies one backend service allowed through the
// gateway. Token accepts either a bcrypt hash (recognized by the $2
// prefix) or a plain shared token compared in constant time. An empty
// Callers list disables the allow-list check and admits any caller
// that passes envelope authentication.
type CallerConfig struct {
	ID    string `koanf:"id"`
	Token string `koanf:"token"`
}

// OpsUserConfig is one operator account for the ops API.
// PasswordHash must be a bcrypt hash. Role is "admin" or "viewer".
type OpsUserConfig struct {
	Username     string `koanf:"username"`
	PasswordHash string `koanf:"password_hash"`
	Role         string `koanf:"role"`
}

// StoreConfig holds Badger key-value store settings. The store backs
// the nonce ledger, the order-to-user mapping, and the recommendation
// pools when persistence is enabled.
//
// Environment Variables:
//   - STORE_PATH: Badger data directory (default: /data/recgate)
//   - STORE_IN_MEMORY: Keep all state in memory, no disk (default: false)
//   - STORE_GC_INTERVAL: Value-log GC cadence (default: 10m)
type StoreConfig struct {
	Path           string        `koanf:"path"`
	InMemory       bool          `koanf:"in_memory"`
	GCInterval     time.Duration `koanf:"gc_interval"`
	GCDiscardRatio float64       `koanf:"gc_discard_ratio"`
}

// CacheConfig holds recommendation pool and task record lifetimes.
//
// Environment Variables:
//   - POOL_TTL: Recommendation pool lifetime (default: 1h)
//   - TASK_TTL: Async task status record lifetime (default: 30m)
//   - SWEEP_INTERVAL: Expired-entry sweep cadence for in-memory state (default: 1m)
type CacheConfig struct {
	PoolTTL       time.Duration `koanf:"pool_ttl"`
	TaskTTL       time.Duration `koanf:"task_ttl"`
	SweepInterval time.Duration `koanf:"sweep_interval"`
}

// EngineConfig holds the upstream recommendation engine client
// settings. An empty URL disables the engine; pool writes then fall
// back to empty item lists and the service degrades gracefully.
//
// Environment Variables:
//   - ENGINE_URL: Engine base URL (default: empty, disabled)
//   - ENGINE_TIMEOUT: Per-request timeout (default: 10s)
//   - ENGINE_MAX_ITEMS: Max items requested per user (default: 50)
//   - ENGINE_BREAKER_FAILURES: Consecutive failures before the circuit opens (default: 5)
//   - ENGINE_BREAKER_COOLDOWN: Open-state duration before half-open probes (default: 30s)
type EngineConfig struct {
	URL             string        `koanf:"url"`
	Timeout         time.Duration `koanf:"timeout"`
	MaxItems        int           `koanf:"max_items"`
	BreakerFailures uint32        `koanf:"breaker_failures"`
	BreakerCooldown time.Duration `koanf:"breaker_cooldown"`
}

// TasksConfig holds async refresh worker settings.
//
// Environment Variables:
//   - TASK_WORKERS: Concurrent refresh workers (default: 4)
//   - TASK_BUFFER_SIZE: In-process queue depth (default: 64)
type TasksConfig struct {
	Workers    int `koanf:"workers"`
	BufferSize int `koanf:"buffer_size"`
}

// AuditConfig holds security audit trail settings. Authentication
// decisions and cache invalidations are recorded asynchronously to an
// embedded DuckDB database.
//
// Environment Variables:
//   - AUDIT_ENABLED: Record audit events (default: true)
//   - AUDIT_DB_PATH: DuckDB file path (default: /data/audit.duckdb)
//   - AUDIT_BUFFER_SIZE: Async writer queue depth (default: 1000)
//   - AUDIT_RETENTION_DAYS: Days to keep events (default: 90)
//   - AUDIT_CLEANUP_INTERVAL: Retention sweep cadence (default: 24h)
type AuditConfig struct {
	Enabled         bool          `koanf:"enabled"`
	DBPath          string        `koanf:"db_path"`
	BufferSize      int           `koanf:"buffer_size"`
	RetentionDays   int           `koanf:"retention_days"`
	CleanupInterval time.Duration `koanf:"cleanup_interval"`
}

// AuthzConfig holds Casbin RBAC settings for the ops API. The embedded
// model and policy ship two roles, admin and viewer; a file-backed
// policy can replace them without a rebuild.
//
// Environment Variables:
//   - AUTHZ_MODEL_PATH: Casbin model file path (default: embedded)
//   - AUTHZ_POLICY_PATH: Casbin policy file path (default: embedded)
//   - AUTHZ_DEFAULT_ROLE: Role for operators without an assignment (default: viewer)
//   - AUTHZ_AUTO_RELOAD: Reload a file-backed policy periodically (default: true)
//   - AUTHZ_RELOAD_INTERVAL: Policy reload cadence (default: 30s)
//   - AUTHZ_CACHE_ENABLED: Cache enforcement decisions (default: true)
//   - AUTHZ_CACHE_TTL: Decision cache lifetime (default: 5m)
type AuthzConfig struct {
	ModelPath      string        `koanf:"model_path"`
	PolicyPath     string        `koanf:"policy_path"`
	DefaultRole    string        `koanf:"default_role"`
	AutoReload     bool          `koanf:"auto_reload"`
	ReloadInterval time.Duration `koanf:"reload_interval"`
	CacheEnabled   bool          `koanf:"cache_enabled"`
	CacheTTL       time.Duration `koanf:"cache_ttl"`
}

// APIConfig holds response pagination limits for the ops API.
//
// Environment Variables:
//   - API_DEFAULT_PAGE_SIZE: Default page size (default: 50)
//   - API_MAX_PAGE_SIZE: Maximum page size (default: 1000)
type APIConfig struct {
	DefaultPageSize int `koanf:"default_page_size"`
	MaxPageSize     int `koanf:"max_page_size"`
}

// LoggingConfig holds log output settings.
//
// Environment Variables:
//   - LOG_LEVEL: trace, debug, info, warn, error (default: info)
//   - LOG_FORMAT: json or console (default: json)
//   - LOG_CALLER: Include caller file:line (default: false)
type LoggingConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
	Caller bool   `koanf:"caller"`
}

// TimestampTolerance returns the accepted clock skew as a duration.
func (s SecurityConfig) TimestampTolerance() time.Duration {
	return time.Duration(s.TimestampToleranceMs) * time.Millisecond
}

// SigningKey returns the HMAC key bytes, falling back to the
// encryption key when no dedicated signing key is configured.
func (s SecurityConfig) SigningKey() []byte {
	if s.SignKey != "" {
		return []byte(s.SignKey)
	}
	return []byte(s.EncryptKey)
}
