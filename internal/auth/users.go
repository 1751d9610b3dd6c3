package auth

import (
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/nerrad567/ems-console/internal/infrastructure/config"
)

// Users authenticates operators against the configured user list.
// Usernames are compared case-insensitively.
type Users struct {
	hashes map[string]string
}

// NewUsers indexes the configured operators. Each hash must be a valid
// Argon2id PHC string so a typo in config fails at startup, not at login.
func NewUsers(users []config.UserConfig) (*Users, error) {
	u := &Users{hashes: make(map[string]string, len(users))}
	for _, cfg := range users {
		name := strings.ToLower(strings.TrimSpace(cfg.Username))
		if name == "" {
			return nil, errors.New("auth: user with empty username")
		}
		if _, _, _, err := decodePHC(cfg.PasswordHash); err != nil {
			return nil, fmt.Errorf("user %q: %w", cfg.Username, err)
		}
		if _, dup := u.hashes[name]; dup {
			return nil, fmt.Errorf("auth: duplicate user %q", cfg.Username)
		}
		u.hashes[name] = cfg.PasswordHash
	}
	return u, nil
}

// Len returns the number of configured operators.
func (u *Users) Len() int {
	return len(u.hashes)
}

// Authenticate returns ErrInvalidCredentials unless password matches the
// stored hash for username.
func (u *Users) Authenticate(username, password string) error {
	hash, ok := u.hashes[strings.ToLower(strings.TrimSpace(username))]
	if !ok {
		// Unknown users still pay the hashing cost.
		hash = dummyHash()
	}

	match, err := VerifyPassword(password, hash)
	if err != nil {
		return fmt.Errorf("verifying password: %w", err)
	}
	if !ok || !match {
		return ErrInvalidCredentials
	}
	return nil
}

var (
	dummyOnce sync.Once
	dummy     string
)

func dummyHash() string {
	dummyOnce.Do(func() {
		h, err := HashPassword("ems-console-unknown-user")
		if err != nil {
			h = encodePHC(defaultParams, make([]byte, saltLen), make([]byte, defaultParams.keyLen))
		}
		dummy = h
	})
	return dummy
}
