package auth

import (
	"fmt"
	"strings"

	"golang.org/x/crypto/bcrypt"

	"github.com/loobric/smooth-core/internal/common"
)

// API keys are presented as "<grant-id>.<secret>". The grant id gives an
// indexed lookup; only the secret half is bcrypt-hashed at rest.

// NewKeySecret returns a fresh random key secret.
func NewKeySecret() string {
	return common.MakeRandHexString(32)
}

// FormatKey assembles the plain-text key handed to the caller exactly once.
func FormatKey(grantID, secret string) string {
	return grantID + "." + secret
}

// SplitKey separates a presented key into grant id and secret.
func SplitKey(raw string) (grantID, secret string, err error) {
	grantID, secret, ok := strings.Cut(raw, ".")
	if !ok || grantID == "" || secret == "" {
		return "", "", common.ErrUnauthenticated
	}
	return grantID, secret, nil
}

// HashSecret returns the bcrypt hash stored in place of the secret.
func HashSecret(secret string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(secret), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("hashing secret: %w", err)
	}
	return string(hash), nil
}

// VerifySecret reports whether secret matches the stored hash.
func VerifySecret(hash, secret string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(secret)) == nil
}
