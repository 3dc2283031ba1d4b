// Recgate - Order Recommendation Gateway and Cache
// Copyright 2026 Ordercast Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/ordercast/recgate

package auth

import (
	"fmt"

	"golang.org/x/crypto/bcrypt"

	"github.com/ordercast/recgate/internal/config"
)

// opsUser is one operator account with a pre-hashed password.
type opsUser struct {
	passwordHash []byte
	role         string
}

// OpsUserStore verifies operator credentials for the ops API login.
// Accounts come from configuration with bcrypt password hashes; no
// plaintext password ever reaches this store.
type OpsUserStore struct {
	users map[string]opsUser

	// dummyHash absorbs a bcrypt comparison for unknown usernames so
	// lookup timing does not reveal which accounts exist.
	dummyHash []byte
}

// NewOpsUserStore creates a store over the configured operator
// accounts. Hash format and role values are checked here as well as in
// config validation, since tests construct stores directly.
func NewOpsUserStore(accounts []config.OpsUserConfig) (*OpsUserStore, error) {
	dummy, err := bcrypt.GenerateFromPassword([]byte("recgate.no-such-user"), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("failed to prepare credential store: %w", err)
	}

	users := make(map[string]opsUser, len(accounts))
	for _, account := range accounts {
		if account.Username == "" {
			return nil, fmt.Errorf("ops user with empty username")
		}
		if _, err := bcrypt.Cost([]byte(account.PasswordHash)); err != nil {
			return nil, fmt.Errorf("ops user %q: password_hash is not a bcrypt hash: %w", account.Username, err)
		}
		switch account.Role {
		case "admin", "viewer":
		default:
			return nil, fmt.Errorf("ops user %q: invalid role %q", account.Username, account.Role)
		}
		if _, dup := users[account.Username]; dup {
			return nil, fmt.Errorf("ops user %q is duplicated", account.Username)
		}
		users[account.Username] = opsUser{
			passwordHash: []byte(account.PasswordHash),
			role:         account.Role,
		}
	}

	return &OpsUserStore{users: users, dummyHash: dummy}, nil
}

// Verify checks a username/password pair and returns the account role.
// Unknown usernames still pay for a bcrypt comparison, and the error
// is identical for unknown users and wrong passwords.
func (s *OpsUserStore) Verify(username, password string) (string, error) {
	user, ok := s.users[username]
	hash := s.dummyHash
	if ok {
		hash = user.passwordHash
	}

	match := bcrypt.CompareHashAndPassword(hash, []byte(password)) == nil
	if !ok || !match {
		return "", fmt.Errorf("invalid username or password")
	}
	return user.role, nil
}

// Empty reports whether no operator accounts are configured.
func (s *OpsUserStore) Empty() bool {
	return s == nil || len(s.users) == 0
}
