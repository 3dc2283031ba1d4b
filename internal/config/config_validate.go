// Recgate - Order Recommendation Gateway and Cache
// Copyright 2026 Ordercast Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/ordercast/recgate

package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"
)

// Validate checks that required configuration is present and valid
func (c *Config) Validate() error {
	if err := c.validateServer(); err != nil {
		return err
	}

	if err := c.validateSecurity(); err != nil {
		return err
	}

	if err := c.validateStore(); err != nil {
		return err
	}

	if err := c.validateCache(); err != nil {
		return err
	}

	if err := c.validateEngine(); err != nil {
		return err
	}

	if err := c.validateTasks(); err != nil {
		return err
	}

	if err := c.validateAudit(); err != nil {
		return err
	}

	if err := c.validateAPI(); err != nil {
		return err
	}

	return c.validateLogging()
}

// validateServer validates HTTP server settings
func (c *Config) validateServer() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("HTTP_PORT must be between 1 and 65535")
	}
	if c.Server.Timeout <= 0 {
		return fmt.Errorf("HTTP_TIMEOUT must be positive")
	}
	if c.Server.ShutdownTimeout <= 0 {
		return fmt.Errorf("SHUTDOWN_TIMEOUT must be positive")
	}
	switch c.Server.Environment {
	case "development", "production":
	default:
		return fmt.Errorf("ENVIRONMENT must be 'development' or 'production'")
	}
	return nil
}

// Sample key shipped in example configs. Refused in production.
const placeholderEncryptKey = "1234567890123456"

func (c *Config) validateSecurity() error {
	validators := []func() error{
		c.validateEncryptKey,
		c.validateFreshnessWindow,
		c.validateSkipPaths,
		c.validateCallers,
		c.validateOpsUsers,
		c.validateRateLimit,
	}

	for _, validator := range validators {
		if err := validator(); err != nil {
			return err
		}
	}
	return nil
}

// validateEncryptKey validates the envelope crypto keys
func (c *Config) validateEncryptKey() error {
	key := c.Security.EncryptKey
	if key == "" {
		return fmt.Errorf("ENCRYPT_KEY is required")
	}
	switch len(key) {
	case 16, 24, 32:
	default:
		return fmt.Errorf("ENCRYPT_KEY must be 16, 24, or 32 bytes (AES-128/192/256), got %d", len(key))
	}
	if c.Server.Environment == "production" && key == placeholderEncryptKey {
		return fmt.Errorf("ENCRYPT_KEY must not use the sample key in production")
	}
	return nil
}

// validateFreshnessWindow validates the timestamp tolerance and nonce
// window. The replay window must cover at least twice the tolerance:
// an envelope stamped at the far edge of the accepted skew must still
// find its nonce on record for the full span in which a copy of it
// would be accepted.
func (c *Config) validateFreshnessWindow() error {
	if c.Security.TimestampToleranceMs <= 0 {
		return fmt.Errorf("TIMESTAMP_TOLERANCE_MS must be positive")
	}
	if c.Security.NonceTTL <= 0 {
		return fmt.Errorf("NONCE_TTL must be positive")
	}
	minWindow := 2 * c.Security.TimestampTolerance()
	if c.Security.ReplayProtection && c.Security.NonceTTL < minWindow {
		return fmt.Errorf("NONCE_TTL (%s) must be at least twice TIMESTAMP_TOLERANCE_MS (%s)",
			c.Security.NonceTTL, minWindow)
	}
	if c.Security.NonceCapacity < 1024 {
		return fmt.Errorf("NONCE_CAPACITY must be at least 1024")
	}
	return nil
}

// validateSkipPaths validates the authentication bypass list
func (c *Config) validateSkipPaths() error {
	for _, p := range c.Security.SkipPaths {
		if !strings.HasPrefix(p, "/") {
			return fmt.Errorf("SKIP_PATHS entry %q must start with /", p)
		}
	}
	return nil
}

// validateCallers validates the caller allow-list entries
func (c *Config) validateCallers() error {
	seen := make(map[string]struct{}, len(c.Security.Callers))
	for _, caller := range c.Security.Callers {
		if caller.ID == "" {
			return fmt.Errorf("security.callers entries require a non-empty id")
		}
		if caller.Token == "" {
			return fmt.Errorf("security.callers entry %q requires a token", caller.ID)
		}
		if _, dup := seen[caller.ID]; dup {
			return fmt.Errorf("security.callers entry %q is duplicated", caller.ID)
		}
		seen[caller.ID] = struct{}{}
	}
	return nil
}

// validateOpsUsers validates operator accounts and the JWT secret
// they depend on
func (c *Config) validateOpsUsers() error {
	if len(c.Security.OpsUsers) == 0 {
		return nil // Ops API is optional - no validation needed when no accounts exist
	}

	if len(c.Security.JWTSecret) < 32 {
		return fmt.Errorf("JWT_SECRET must be at least 32 characters when ops users are configured")
	}
	if c.Security.JWTTTL <= 0 {
		return fmt.Errorf("JWT_TTL must be positive")
	}

	seen := make(map[string]struct{}, len(c.Security.OpsUsers))
	for _, user := range c.Security.OpsUsers {
		if user.Username == "" {
			return fmt.Errorf("security.ops_users entries require a non-empty username")
		}
		if !strings.HasPrefix(user.PasswordHash, "$2") {
			return fmt.Errorf("security.ops_users entry %q requires a bcrypt password_hash", user.Username)
		}
		switch user.Role {
		case "admin", "viewer":
		default:
			return fmt.Errorf("security.ops_users entry %q has invalid role %q (must be admin or viewer)",
				user.Username, user.Role)
		}
		if _, dup := seen[user.Username]; dup {
			return fmt.Errorf("security.ops_users entry %q is duplicated", user.Username)
		}
		seen[user.Username] = struct{}{}
	}
	return nil
}

// validateRateLimit validates rate limiting settings
func (c *Config) validateRateLimit() error {
	if c.Security.RateLimitDisabled {
		return nil
	}
	if c.Security.RateLimitReqs < 1 {
		return fmt.Errorf("RATE_LIMIT_REQUESTS must be at least 1")
	}
	if c.Security.RateLimitWindow < time.Second {
		return fmt.Errorf("RATE_LIMIT_WINDOW must be at least 1s")
	}
	return nil
}

// validateStore validates Badger store settings
func (c *Config) validateStore() error {
	if !c.Store.InMemory && c.Store.Path == "" {
		return fmt.Errorf("STORE_PATH is required unless STORE_IN_MEMORY=true")
	}
	if c.Store.GCInterval < time.Minute {
		return fmt.Errorf("STORE_GC_INTERVAL must be at least 1m")
	}
	if c.Store.GCDiscardRatio <= 0 || c.Store.GCDiscardRatio > 1 {
		return fmt.Errorf("store.gc_discard_ratio must be in (0, 1]")
	}
	return nil
}

// validateCache validates pool and task record lifetimes
func (c *Config) validateCache() error {
	if c.Cache.PoolTTL <= 0 {
		return fmt.Errorf("POOL_TTL must be positive")
	}
	if c.Cache.TaskTTL <= 0 {
		return fmt.Errorf("TASK_TTL must be positive")
	}
	if c.Cache.SweepInterval < time.Second {
		return fmt.Errorf("SWEEP_INTERVAL must be at least 1s")
	}
	return nil
}

// validateEngine validates the recommendation engine client settings
// (only if an engine URL is configured)
func (c *Config) validateEngine() error {
	if c.Engine.URL == "" {
		return nil // Engine is optional - gateway degrades to empty pools
	}

	if err := validateHTTPURL(c.Engine.URL, "ENGINE_URL"); err != nil {
		return err
	}
	if c.Engine.Timeout <= 0 {
		return fmt.Errorf("ENGINE_TIMEOUT must be positive")
	}
	if c.Engine.MaxItems < 1 || c.Engine.MaxItems > 500 {
		return fmt.Errorf("ENGINE_MAX_ITEMS must be between 1 and 500")
	}
	if c.Engine.BreakerFailures < 1 {
		return fmt.Errorf("ENGINE_BREAKER_FAILURES must be at least 1")
	}
	if c.Engine.BreakerCooldown < time.Second {
		return fmt.Errorf("ENGINE_BREAKER_COOLDOWN must be at least 1s")
	}
	return nil
}

// validateTasks validates async refresh worker settings
func (c *Config) validateTasks() error {
	if c.Tasks.Workers < 1 || c.Tasks.Workers > 64 {
		return fmt.Errorf("TASK_WORKERS must be between 1 and 64")
	}
	if c.Tasks.BufferSize < 1 {
		return fmt.Errorf("TASK_BUFFER_SIZE must be at least 1")
	}
	return nil
}

// validateAudit validates audit trail settings (only if enabled)
func (c *Config) validateAudit() error {
	if !c.Audit.Enabled {
		return nil
	}

	if c.Audit.DBPath == "" {
		return fmt.Errorf("AUDIT_DB_PATH is required when AUDIT_ENABLED=true")
	}
	if c.Audit.BufferSize < 1 {
		return fmt.Errorf("AUDIT_BUFFER_SIZE must be at least 1")
	}
	if c.Audit.RetentionDays < 1 || c.Audit.RetentionDays > 3650 {
		return fmt.Errorf("AUDIT_RETENTION_DAYS must be between 1 and 3650")
	}
	if c.Audit.CleanupInterval < time.Minute {
		return fmt.Errorf("AUDIT_CLEANUP_INTERVAL must be at least 1m")
	}
	return nil
}

// validateAPI validates pagination limits
func (c *Config) validateAPI() error {
	if c.API.DefaultPageSize < 1 {
		return fmt.Errorf("API_DEFAULT_PAGE_SIZE must be at least 1")
	}
	if c.API.MaxPageSize < c.API.DefaultPageSize {
		return fmt.Errorf("API_MAX_PAGE_SIZE must be >= API_DEFAULT_PAGE_SIZE")
	}
	return nil
}

// validateLogging validates log output settings
func (c *Config) validateLogging() error {
	switch c.Logging.Level {
	case "trace", "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("LOG_LEVEL must be one of: trace, debug, info, warn, error")
	}
	switch c.Logging.Format {
	case "json", "console":
	default:
		return fmt.Errorf("LOG_FORMAT must be 'json' or 'console'")
	}
	return nil
}

// validateHTTPURL checks that the value parses as an absolute http or
// https URL with a host
func validateHTTPURL(raw, name string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("%s is invalid: %w", name, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("%s must use http or https scheme", name)
	}
	if u.Host == "" {
		return fmt.Errorf("%s must include a host", name)
	}
	return nil
}
