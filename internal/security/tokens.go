package security

import (
	"crypto/sha256"
	"encoding/hex"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Fingerprint returns a short stable digest of a token, safe to log.
func Fingerprint(token string) string {
	if token == "" {
		return ""
	}
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])[:12]
}

// TokenExpiry extracts the exp claim from a JWT without verifying the
// signature. Used as a fallback when the server omits expiresIn. Returns
// the zero time when the token is not a JWT or carries no expiry.
func TokenExpiry(raw string) time.Time {
	claims := jwt.RegisteredClaims{}
	parser := jwt.NewParser()
	if _, _, err := parser.ParseUnverified(raw, &claims); err != nil {
		return time.Time{}
	}
	if claims.ExpiresAt == nil {
		return time.Time{}
	}
	return claims.ExpiresAt.Time
}
