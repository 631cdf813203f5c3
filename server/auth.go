package server

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	errMissingToken = errors.New("missing bearer token")
	errUnknownUser  = errors.New("unknown user")
)

// claims are the JWT claims of an access token.
type claims struct {
	UserID string `json:"user_id"`
	jwt.RegisteredClaims
}

// issueToken returns a signed token for userID, valid for cfg.TokenLifetime from now.
func issueToken(cfg Config, userID string, now time.Time) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims{
		UserID: userID,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(now.Add(cfg.TokenLifetime)),
			IssuedAt:  jwt.NewNumericDate(now),
		},
	})
	return token.SignedString([]byte(cfg.Secret))
}

// verifyToken checks the signature and the exp and iat claims of raw and returns its user, who
// must still be allowed by cfg.
func verifyToken(cfg Config, raw string, now time.Time) (string, error) {
	var c claims
	_, err := jwt.ParseWithClaims(raw, &c, func(*jwt.Token) (interface{}, error) {
		return []byte(cfg.Secret), nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithLeeway(cfg.TokenLeeway),
		jwt.WithExpirationRequired(),
		jwt.WithIssuedAt(),
		jwt.WithTimeFunc(func() time.Time { return now }),
	)
	if err != nil {
		return "", err
	}
	if c.IssuedAt == nil {
		return "", jwt.ErrTokenRequiredClaimMissing
	}
	if !cfg.allowsUser(c.UserID) {
		return "", errUnknownUser
	}
	return c.UserID, nil
}

// bearerToken extracts the token from an "Authorization: Bearer <token>" header.
func bearerToken(r *http.Request) (string, error) {
	parts := strings.Fields(r.Header.Get("Authorization"))
	if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
		return "", errMissingToken
	}
	return parts[1], nil
}
