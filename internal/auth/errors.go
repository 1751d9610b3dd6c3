package auth

import "errors"

var (
	// ErrInvalidCredentials covers both unknown usernames and wrong passwords.
	ErrInvalidCredentials = errors.New("auth: invalid credentials")

	// ErrTokenInvalid is returned for malformed, expired or forged tokens.
	ErrTokenInvalid = errors.New("auth: token invalid")

	// ErrInvalidHash is returned when a stored hash is not an Argon2id PHC string.
	ErrInvalidHash = errors.New("auth: invalid password hash")

	// ErrNoSecret is returned when signing or verifying without a secret.
	ErrNoSecret = errors.New("auth: jwt secret not configured")
)
