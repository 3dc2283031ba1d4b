// Recgate - Order Recommendation Gateway and Cache
// Copyright 2026 Ordercast Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/ordercast/recgate

package auth

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/ordercast/recgate/internal/config"
)

// Claims represents JWT claims for operator tokens
type Claims struct {
	Username string `json:"username"`
	Role     string `json:"role"`
	jwt.RegisteredClaims
}

// JWTManager handles operator token creation and validation
type JWTManager struct {
	secret  []byte
	timeout time.Duration
}

// NewJWTManager creates a JWT token manager for the ops API.
//
// Parameters:
//   - cfg: Security configuration containing JWT secret and token TTL
//
// Returns:
//   - Pointer to initialized JWTManager
//   - error if JWT_SECRET is empty
//
// Security Requirements:
//   - JWT_SECRET must be at least 32 characters (enforced by config validation)
//   - Uses HS256 signing algorithm (HMAC with SHA-256)
func NewJWTManager(cfg *config.SecurityConfig) (*JWTManager, error) {
	secret := cfg.JWTSecret
	if secret == "" {
		return nil, fmt.Errorf("JWT_SECRET is required but was empty")
	}

	return &JWTManager{
		secret:  []byte(secret),
		timeout: cfg.JWTTTL,
	}, nil
}

// GenerateToken creates a signed token for an authenticated operator.
//
// Token Claims:
//   - Username: Operator identifier
//   - Role: Authorization role ("admin" or "viewer")
//   - ExpiresAt: now + configured JWT_TTL
//   - IssuedAt, NotBefore: token is valid immediately
//
// Tokens are stateless and cannot be revoked before expiration, which
// is why JWT_TTL defaults to a day rather than a month.
func (m *JWTManager) GenerateToken(username, role string) (string, error) {
	claims := &Claims{
		Username: username,
		Role:     role,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(m.timeout)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			NotBefore: jwt.NewNumericDate(time.Now()),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signedToken, err := token.SignedString(m.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}

	return signedToken, nil
}

// ValidateToken validates a token string and extracts the claims.
//
// Validation Steps:
//  1. Parse token structure and extract claims
//  2. Verify the HMAC-SHA256 signature against the secret
//  3. Check the signing algorithm is HMAC (prevents algorithm confusion attacks)
//  4. Verify ExpiresAt and NotBefore
func (m *JWTManager) ValidateToken(tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return m.secret, nil
	})

	if err != nil {
		return nil, fmt.Errorf("failed to parse token: %w", err)
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, fmt.Errorf("invalid token claims")
	}

	return claims, nil
}
