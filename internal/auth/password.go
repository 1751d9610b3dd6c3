package auth

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"fmt"
	"strings"

	"golang.org/x/crypto/argon2"
)

// hashParams are the Argon2id cost parameters encoded in a PHC string.
type hashParams struct {
	time    uint32
	memory  uint32
	threads uint8
	keyLen  uint32
}

// defaultParams follow the OWASP Argon2id baseline.
var defaultParams = hashParams{
	time:    3,
	memory:  64 * 1024,
	threads: 1,
	keyLen:  32,
}

const saltLen = 16

var b64 = base64.RawStdEncoding

// HashPassword returns the Argon2id PHC encoding of password, e.g.
// $argon2id$v=19$m=65536,t=3,p=1$<salt>$<key>.
// It is used by the hash-password subcommand to produce config entries.
func HashPassword(password string) (string, error) {
	salt := make([]byte, saltLen)
	if _, err := rand.Read(salt); err != nil {
		return "", fmt.Errorf("generating salt: %w", err)
	}
	p := defaultParams
	key := argon2.IDKey([]byte(password), salt, p.time, p.memory, p.threads, p.keyLen)
	return encodePHC(p, salt, key), nil
}

// VerifyPassword reports whether password matches the PHC hash.
// A malformed hash returns ErrInvalidHash rather than false.
func VerifyPassword(password, encoded string) (bool, error) {
	p, salt, key, err := decodePHC(encoded)
	if err != nil {
		return false, err
	}
	candidate := argon2.IDKey([]byte(password), salt, p.time, p.memory, p.threads, p.keyLen)
	return subtle.ConstantTimeCompare(key, candidate) == 1, nil
}

func encodePHC(p hashParams, salt, key []byte) string {
	return fmt.Sprintf("$argon2id$v=%d$m=%d,t=%d,p=%d$%s$%s",
		argon2.Version, p.memory, p.time, p.threads,
		b64.EncodeToString(salt), b64.EncodeToString(key))
}

func decodePHC(encoded string) (p hashParams, salt, key []byte, err error) {
	fields := strings.Split(encoded, "$")
	// "", "argon2id", "v=..", "m=..,t=..,p=..", salt, key
	if len(fields) != 6 || fields[0] != "" {
		return p, nil, nil, fmt.Errorf("%w: expected 6 fields", ErrInvalidHash)
	}
	if fields[1] != "argon2id" {
		return p, nil, nil, fmt.Errorf("%w: algorithm %q", ErrInvalidHash, fields[1])
	}

	var version int
	if _, err = fmt.Sscanf(fields[2], "v=%d", &version); err != nil {
		return p, nil, nil, fmt.Errorf("%w: version: %w", ErrInvalidHash, err)
	}
	if version != argon2.Version {
		return p, nil, nil, fmt.Errorf("%w: version %d", ErrInvalidHash, version)
	}
	if _, err = fmt.Sscanf(fields[3], "m=%d,t=%d,p=%d", &p.memory, &p.time, &p.threads); err != nil {
		return p, nil, nil, fmt.Errorf("%w: params: %w", ErrInvalidHash, err)
	}

	if salt, err = b64.DecodeString(fields[4]); err != nil {
		return p, nil, nil, fmt.Errorf("%w: salt: %w", ErrInvalidHash, err)
	}
	if key, err = b64.DecodeString(fields[5]); err != nil {
		return p, nil, nil, fmt.Errorf("%w: key: %w", ErrInvalidHash, err)
	}
	if len(key) == 0 {
		return p, nil, nil, fmt.Errorf("%w: empty key", ErrInvalidHash)
	}
	p.keyLen = uint32(len(key)) //nolint:gosec // decoded key length always fits uint32

	return p, salt, key, nil
}
