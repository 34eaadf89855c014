package auth

import "errors"

var (
	// ErrTokenInvalid is returned for a token with a bad signature, expiry,
	// algorithm or subject.
	ErrTokenInvalid = errors.New("auth: invalid token")

	// ErrInvalidHash is returned for a stored password hash that is not an
	// Argon2id PHC string.
	ErrInvalidHash = errors.New("auth: invalid password hash")

	// ErrSecretRequired is returned when signing without a secret.
	ErrSecretRequired = errors.New("auth: signing secret is required")
)
