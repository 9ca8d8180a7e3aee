package auth

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Validator outcomes. The middleware maps all of them to 401, but
// callers and logs distinguish why a credential was refused.
var (
	// ErrMalformed means no bearer credential was presented, or the
	// Authorization header is not in the expected scheme.
	ErrMalformed = errors.New("malformed or missing bearer credential")
	// ErrExpired means the token's expiry claim is in the past.
	ErrExpired = errors.New("credential expired")
	// ErrInvalidToken covers signature mismatch and any other
	// verification failure.
	ErrInvalidToken = errors.New("invalid credential")
)

// Claims is the token payload the gateway understands. The subject
// registered claim carries the user id backends trust.
type Claims struct {
	jwt.RegisteredClaims
}

// Validator verifies bearer tokens against a shared HMAC secret.
// It is stateless and safe for concurrent use.
type Validator struct {
	secret []byte
}

func NewValidator(secret string) *Validator {
	return &Validator{secret: []byte(secret)}
}

// Validate verifies the raw token and returns the authenticated
// identity (the subject claim). The error is one of ErrMalformed,
// ErrExpired or ErrInvalidToken.
func (v *Validator) Validate(raw string) (string, error) {
	if raw == "" {
		return "", ErrMalformed
	}

	claims := &Claims{}
	token, err := jwt.ParseWithClaims(raw, claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %q", t.Method.Alg())
		}
		return v.secret, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return "", ErrExpired
		}
		return "", ErrInvalidToken
	}
	if !token.Valid || claims.Subject == "" {
		return "", ErrInvalidToken
	}

	return claims.Subject, nil
}

// Sign mints a token for the given subject, valid for ttl. Used by
// the tokengen tool and by tests; the gateway itself never issues
// credentials.
func (v *Validator) Sign(subject string, ttl time.Duration) (string, error) {
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(ttl)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			Issuer:    "edge-gateway",
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(v.secret)
	if err != nil {
		return "", fmt.Errorf("signing token: %w", err)
	}
	return signed, nil
}

// ExtractBearer pulls the bearer token out of the request's
// Authorization header. Returns ErrMalformed when the header is
// absent or uses another scheme.
func ExtractBearer(r *http.Request) (string, error) {
	header := r.Header.Get("Authorization")
	if header == "" {
		return "", ErrMalformed
	}

	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") || parts[1] == "" {
		return "", ErrMalformed
	}

	return parts[1], nil
}
